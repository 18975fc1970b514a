package bbb

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/srcf/lightbluetent/internal/models"
)

// statusFanout bounds concurrent status calls when listing many meetings.
const statusFanout = 8

// Meetings builds Meeting values for rooms and groups with the site's public links attached.
type Meetings struct {
	client  *Client
	baseURL string
	logger  *zap.Logger
}

// NewMeetings creates a factory. publicBaseURL has no trailing slash.
func NewMeetings(client *Client, publicBaseURL string, logger *zap.Logger) *Meetings {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Meetings{client: client, baseURL: publicBaseURL, logger: logger}
}

// Room is the meeting for room. logoURL may be empty.
func (m *Meetings) Room(room *models.Room, logoURL string) *Meeting {
	return NewMeeting(m.client, room, MeetingOptions{
		LogoutURL: m.baseURL + room.PublicPath(),
		LogoURL:   logoURL,
	}, m.logger)
}

// Group is the group-level meeting for g.
func (m *Meetings) Group(g *models.Group, logoURL string) *Meeting {
	return NewMeeting(m.client, g, MeetingOptions{
		LogoutURL: m.baseURL + "/g/" + g.ID,
		LogoURL:   logoURL,
	}, m.logger)
}

// PublicURL is the absolute form of a site path.
func (m *Meetings) PublicURL(path string) string {
	return m.baseURL + path
}

// InviteMessage is shown only to moderators once the meeting starts.
func InviteMessage(link string) string {
	return fmt.Sprintf("To invite others to this event, share your room link: %s", link)
}

// Running reports whether conf's meeting is running, collapsing failures to false.
func (m *Meetings) Running(ctx context.Context, conf models.Conference) bool {
	return NewMeeting(m.client, conf, MeetingOptions{}, m.logger).IsRunning(ctx)
}

// RunningSet checks many meetings concurrently and returns the running state by meeting id.
func (m *Meetings) RunningSet(ctx context.Context, confs []models.Conference) map[string]bool {
	out := make(map[string]bool, len(confs))
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(statusFanout)
	for _, conf := range confs {
		conf := conf
		g.Go(func() error {
			running := m.Running(ctx, conf)
			mu.Lock()
			out[conf.MeetingID()] = running
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
