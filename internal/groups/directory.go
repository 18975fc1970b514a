package groups

import (
	"context"
	"math/rand"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/srcf/lightbluetent/internal/assets"
	"github.com/srcf/lightbluetent/internal/bbb"
	"github.com/srcf/lightbluetent/internal/models"
	"github.com/srcf/lightbluetent/pkg/response"
)

// Catalogue lists every group and the rooms of many groups at once.
type Catalogue interface {
	List(ctx context.Context) ([]models.Group, error)
}

// RoomsByGroup lists the rooms of several groups.
type RoomsByGroup interface {
	ListForGroups(ctx context.Context, groupIDs []string) ([]models.Room, error)
}

// DirectoryEntry is one group on the front page.
type DirectoryEntry struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Logo    *assets.Image `json:"logo,omitempty"`
	Running bool          `json:"running"`
	Rooms   []RoomSummary `json:"rooms"`
}

// Directory serves the front-page listing of groups.
type Directory struct {
	groups   Catalogue
	rooms    RoomsByGroup
	meetings *bbb.Meetings
	logos    Logos
	logger   *zap.Logger
	shuffle  func(n int, swap func(i, j int))
}

// NewDirectory creates the directory handler.
func NewDirectory(groups Catalogue, rooms RoomsByGroup, meetings *bbb.Meetings, logos Logos, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{groups: groups, rooms: rooms, meetings: meetings, logos: logos, logger: logger, shuffle: rand.Shuffle}
}

// List handles GET /. Groups come back in random order so none is always first.
func (d *Directory) List(c *gin.Context) {
	ctx := c.Request.Context()
	groups, err := d.groups.List(ctx)
	if err != nil {
		d.logger.Error("list groups", zap.Error(err))
		response.Internal(c, "failed to load directory")
		return
	}
	ids := make([]string, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	rooms, err := d.rooms.ListForGroups(ctx, ids)
	if err != nil {
		d.logger.Error("list rooms", zap.Error(err))
		response.Internal(c, "failed to load directory")
		return
	}

	confs := make([]models.Conference, 0, len(groups)+len(rooms))
	for i := range groups {
		confs = append(confs, &groups[i])
	}
	for i := range rooms {
		confs = append(confs, &rooms[i])
	}
	running := d.meetings.RunningSet(ctx, confs)

	byGroup := make(map[string][]RoomSummary, len(groups))
	for _, r := range rooms {
		if r.GroupID == nil {
			continue
		}
		byGroup[*r.GroupID] = append(byGroup[*r.GroupID], RoomSummary{
			ID:             r.ID,
			Name:           r.Name,
			Path:           r.PublicPath(),
			Authentication: r.Authentication,
			Running:        running[r.ID],
		})
	}

	entries := make([]DirectoryEntry, 0, len(groups))
	for i := range groups {
		g := &groups[i]
		e := DirectoryEntry{ID: g.ID, Name: g.Name, Running: running[g.MeetingKey], Rooms: byGroup[g.ID]}
		if g.Logo != "" && d.logos != nil {
			if img, ok, err := d.logos.Lookup(ctx, g.Logo); err == nil && ok {
				e.Logo = &img
			}
		}
		entries = append(entries, e)
	}
	d.shuffle(len(entries), func(i, j int) { entries[i], entries[j] = entries[j], entries[i] })
	response.OK(c, entries)
}
