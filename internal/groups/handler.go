// Package groups manages societies and other organisations: their welcome page, owners,
// logo, links, whitelist and group-level meeting.
package groups

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/srcf/lightbluetent/internal/assets"
	"github.com/srcf/lightbluetent/internal/bbb"
	"github.com/srcf/lightbluetent/internal/links"
	"github.com/srcf/lightbluetent/internal/middleware"
	"github.com/srcf/lightbluetent/internal/models"
	"github.com/srcf/lightbluetent/internal/rooms"
	"github.com/srcf/lightbluetent/internal/validation"
	"github.com/srcf/lightbluetent/pkg/response"
	"github.com/srcf/lightbluetent/pkg/utils"
)

var (
	ErrNotFound       = errors.New("groups: not found")
	ErrShortNameTaken = errors.New("groups: short name already in use")
	ErrLastOwner      = errors.New("groups: a group must keep at least one owner")
)

// Store is the persistence the handler needs.
type Store interface {
	Create(ctx context.Context, g *models.Group, ownerID uuid.UUID) error
	Get(ctx context.Context, id string) (*models.Group, error)
	IsOwner(ctx context.Context, groupID string, userID uuid.UUID) (bool, error)
	AddOwner(ctx context.Context, groupID string, userID uuid.UUID) error
	RemoveOwner(ctx context.Context, groupID string, userID uuid.UUID) error
	Owners(ctx context.Context, groupID string) ([]models.UserPublic, error)
	Update(ctx context.Context, g *models.Group) error
	SetLogo(ctx context.Context, id, key string) error
	Delete(ctx context.Context, id string) error
	AddWhitelist(ctx context.Context, groupID, crsid string) error
	RemoveWhitelist(ctx context.Context, groupID, crsid string) error
	Whitelist(ctx context.Context, groupID string) ([]string, error)
}

// RoomLister lists a group's rooms.
type RoomLister interface {
	ListForGroup(ctx context.Context, groupID string) ([]models.Room, error)
}

// Logos stores group logos.
type Logos interface {
	Replace(ctx context.Context, key string, uploads []assets.Upload) ([]models.Asset, error)
	Remove(ctx context.Context, key string) error
	Lookup(ctx context.Context, key string) (assets.Image, bool, error)
}

// Deps are the collaborators of Handler.
type Deps struct {
	Store        Store
	Users        rooms.Users
	Rooms        RoomLister
	Meetings     *bbb.Meetings
	Links        rooms.LinkStore
	Logos        Logos
	Names        rooms.Namer
	MaxLogoBytes int64
	SupportEmail string
	Logger       *zap.Logger
}

// Handler handles group HTTP endpoints.
type Handler struct {
	Deps
}

// NewHandler creates a groups handler.
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.MaxLogoBytes <= 0 {
		d.MaxLogoBytes = 2 << 20
	}
	return &Handler{Deps: d}
}

// LogoKey is the asset key of a group's logo.
func LogoKey(groupID string) string { return "group-" + groupID }

// RoomSummary is a room listed on its group's page.
type RoomSummary struct {
	ID             string                `json:"id"`
	Name           string                `json:"name"`
	Path           string                `json:"path"`
	Authentication models.Authentication `json:"authentication"`
	Running        bool                  `json:"running"`
}

// PublicView is the group welcome page.
type PublicView struct {
	Group   *models.Group `json:"group"`
	Logo    *assets.Image `json:"logo,omitempty"`
	Running bool          `json:"running"`
	Rooms   []RoomSummary `json:"rooms"`
	Links   []models.Link `json:"links"`
}

// ManageView is the owners' settings page.
type ManageView struct {
	PublicView
	Owners    []models.UserPublic `json:"owners"`
	Whitelist []string            `json:"whitelist"`
}

func (h *Handler) fail(c *gin.Context, err error, action string) {
	var bbbErr *bbb.Error
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "group not found")
	case errors.Is(err, ErrLastOwner):
		response.Conflict(c, "A group must keep at least one owner.")
	case errors.Is(err, links.ErrUnknownLink), errors.Is(err, links.ErrIncompleteOrder):
		response.BadRequest(c, err.Error())
	case errors.As(err, &bbbErr):
		h.Logger.Error(action+" failed", zap.Error(err))
		response.BadGateway(c, fmt.Sprintf(
			"The meeting server could not complete the request. Please contact %s and include the following: %s",
			h.SupportEmail, bbbErr.Message))
	default:
		if fields, ok := validation.Fields(err); ok {
			response.Unprocessable(c, "There were problems with the information you provided.", fields)
			return
		}
		h.Logger.Error(action+" failed", zap.Error(err))
		response.Internal(c, "failed to "+action)
	}
}

type owned struct {
	group *models.Group
	user  *models.User
}

// authorize loads the group named in the path for one of its owners.
func (h *Handler) authorize(c *gin.Context) (*owned, bool) {
	ctx := c.Request.Context()
	g, err := h.Store.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, "load group")
		return nil, false
	}
	user, err := h.Users.FindByCRSid(ctx, middleware.PrincipalFrom(c))
	if err != nil {
		h.fail(c, err, "load user")
		return nil, false
	}
	if user == nil {
		response.Forbidden(c, "you do not manage this group")
		return nil, false
	}
	ok, err := h.Store.IsOwner(ctx, g.ID, user.ID)
	if err != nil {
		h.fail(c, err, "check group owner")
		return nil, false
	}
	if !ok {
		response.Forbidden(c, "you do not manage this group")
		return nil, false
	}
	return &owned{group: g, user: user}, true
}

func (h *Handler) logo(ctx context.Context, g *models.Group) *assets.Image {
	if g.Logo == "" {
		return nil
	}
	img, ok, err := h.Logos.Lookup(ctx, g.Logo)
	if err != nil {
		h.Logger.Warn("load group logo", zap.String("group_id", g.ID), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	return &img
}

func (h *Handler) meeting(ctx context.Context, g *models.Group) (*bbb.Meeting, *assets.Image) {
	img := h.logo(ctx, g)
	logoURL := ""
	if img != nil {
		logoURL = img.Main
	}
	return h.Meetings.Group(g, logoURL), img
}

func (h *Handler) publicView(ctx context.Context, g *models.Group) (PublicView, error) {
	meeting, img := h.meeting(ctx, g)
	list, err := h.Rooms.ListForGroup(ctx, g.ID)
	if err != nil {
		return PublicView{}, fmt.Errorf("list rooms: %w", err)
	}
	confs := make([]models.Conference, len(list))
	for i := range list {
		confs[i] = &list[i]
	}
	running := h.Meetings.RunningSet(ctx, confs)
	summaries := make([]RoomSummary, 0, len(list))
	for _, r := range list {
		summaries = append(summaries, RoomSummary{
			ID:             r.ID,
			Name:           r.Name,
			Path:           r.PublicPath(),
			Authentication: r.Authentication,
			Running:        running[r.ID],
		})
	}
	ls, err := h.Links.List(ctx, links.GroupParent(g.ID))
	if err != nil {
		return PublicView{}, fmt.Errorf("list links: %w", err)
	}
	return PublicView{
		Group:   g,
		Logo:    img,
		Running: meeting.IsRunning(ctx),
		Rooms:   summaries,
		Links:   ls,
	}, nil
}

// Register handles POST /u/register_group.
func (h *Handler) Register(c *gin.Context) {
	ctx := c.Request.Context()
	crsid := middleware.PrincipalFrom(c)
	user, err := h.Users.FindByCRSid(ctx, crsid)
	if err != nil {
		h.fail(c, err, "load user")
		return
	}
	if user == nil || user.IsVisitor() {
		response.Forbidden(c, "register before creating a group")
		return
	}
	var form RegisterForm
	if !validation.Bind(c, &form) {
		return
	}
	if err := form.Validate(); err != nil {
		h.fail(c, err, "register group")
		return
	}
	g := &models.Group{
		ID:          form.ShortName,
		Name:        form.Name,
		Description: optional(form.Description),
		Website:     optional(form.Website),
		MeetingKey:  utils.UniqueString(),
		AttendeePW:  utils.UniqueString(),
		ModeratorPW: utils.UniqueString(),
	}
	if err := h.Store.Create(ctx, g, user.ID); err != nil {
		if errors.Is(err, ErrShortNameTaken) {
			response.Unprocessable(c, "There were problems with the information you provided.",
				map[string]string{"short_name": shortNameTakenMessage})
			return
		}
		h.fail(c, err, "register group")
		return
	}
	h.Logger.Info("group registered", zap.String("group_id", g.ID), zap.String("crsid", crsid))
	response.Created(c, g)
}

// Show handles GET /g/:id.
func (h *Handler) Show(c *gin.Context) {
	ctx := c.Request.Context()
	g, err := h.Store.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, "load group")
		return
	}
	view, err := h.publicView(ctx, g)
	if err != nil {
		h.fail(c, err, "load group")
		return
	}
	response.OK(c, view)
}

// Join handles POST /g/:id/join.
func (h *Handler) Join(c *gin.Context) {
	ctx := c.Request.Context()
	g, err := h.Store.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, "load group")
		return
	}
	var form JoinForm
	if !validation.Bind(c, &form) {
		return
	}
	name := strings.TrimSpace(form.FullName)
	if name == "" {
		if p := middleware.PrincipalFrom(c); p != "" {
			name = h.Names.DisplayName(ctx, p)
		}
	}
	if utf8.RuneCountInString(name) <= 1 {
		response.Unprocessable(c, "That name is too short.", map[string]string{"full_name": "That name is too short."})
		return
	}
	meeting, _ := h.meeting(ctx, g)
	if !meeting.IsRunning(ctx) {
		response.Conflict(c, "This meeting is no longer running.")
		return
	}
	url, err := meeting.AttendeeURL(name)
	if err != nil {
		h.fail(c, err, "build join url")
		return
	}
	response.Redirect(c, url)
}

// Manage handles GET /g/:id/manage.
func (h *Handler) Manage(c *gin.Context) {
	o, ok := h.authorize(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	view, err := h.publicView(ctx, o.group)
	if err != nil {
		h.fail(c, err, "load group")
		return
	}
	owners, err := h.Store.Owners(ctx, o.group.ID)
	if err != nil {
		h.fail(c, err, "load owners")
		return
	}
	wl, err := h.Store.Whitelist(ctx, o.group.ID)
	if err != nil {
		h.fail(c, err, "load whitelist")
		return
	}
	response.OK(c, ManageView{PublicView: view, Owners: owners, Whitelist: wl})
}

// Begin handles POST /g/:id/begin.
func (h *Handler) Begin(c *gin.Context) {
	o, ok := h.authorize(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var form JoinForm
	_ = c.ShouldBind(&form)
	name := strings.TrimSpace(form.FullName)
	if name == "" {
		name = o.user.DisplayName()
	}
	meeting, _ := h.meeting(ctx, o.group)
	if !meeting.IsRunning(ctx) {
		invite := bbb.InviteMessage(h.Meetings.PublicURL("/g/" + o.group.ID))
		if _, err := meeting.Create(ctx, invite); err != nil {
			h.fail(c, err, "create meeting")
			return
		}
		h.Logger.Info("group meeting started", zap.String("group_id", o.group.ID), zap.String("crsid", o.user.CRSid))
	}
	url, err := meeting.ModeratorURL(name)
	if err != nil {
		h.fail(c, err, "build join url")
		return
	}
	response.Redirect(c, url)
}

// End handles POST /g/:id/end.
func (h *Handler) End(c *gin.Context) {
	o, ok := h.authorize(c)
	if !ok {
		return
	}
	meeting, _ := h.meeting(c.Request.Context(), o.group)
	if err := meeting.End(c.Request.Context()); err != nil {
		h.fail(c, err, "end meeting")
		return
	}
	response.NoContent(c)
}

// Update handles PATCH /g/:id.
func (h *Handler) Update(c *gin.Context) {
	o, ok := h.authorize(c)
	if !ok {
		return
	}
	var form UpdateForm
	if !validation.Bind(c, &form) {
		return
	}
	g := *o.group
	if err := form.Apply(&g); err != nil {
		h.fail(c, err, "update group")
		return
	}
	if err := h.Store.Update(c.Request.Context(), &g); err != nil {
		h.fail(c, err, "update group")
		return
	}
	response.OK(c, &g)
}

// Delete handles DELETE /g/:id. The logo is removed after the row.
func (h *Handler) Delete(c *gin.Context) {
	o, ok := h.authorize(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.Store.Delete(ctx, o.group.ID); err != nil {
		h.fail(c, err, "delete group")
		return
	}
	if o.group.Logo != "" {
		if err := h.Logos.Remove(ctx, o.group.Logo); err != nil {
			h.Logger.Warn("remove logo of deleted group", zap.String("group_id", o.group.ID), zap.Error(err))
		}
	}
	h.Logger.Info("group deleted", zap.String("group_id", o.group.ID), zap.String("crsid", o.user.CRSid))
	response.NoContent(c)
}

// UploadLogo handles POST /g/:id/logo. The multipart form carries "logo" and optionally
// density variants named like "logo@2x".
func (h *Handler) UploadLogo(c *gin.Context) {
	o, ok := h.authorize(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxLogoBytes*4)
	mf, err := c.MultipartForm()
	if err != nil {
		response.BadRequest(c, "logo upload required")
		return
	}
	uploads, closers, err := h.uploads(mf)
	defer func() {
		for _, f := range closers {
			_ = f.Close()
		}
	}()
	if err != nil {
		h.fail(c, err, "upload logo")
		return
	}
	ctx := c.Request.Context()
	key := LogoKey(o.group.ID)
	if _, err := h.Logos.Replace(ctx, key, uploads); err != nil {
		h.fail(c, err, "upload logo")
		return
	}
	if err := h.Store.SetLogo(ctx, o.group.ID, key); err != nil {
		h.fail(c, err, "upload logo")
		return
	}
	o.group.Logo = key
	response.OK(c, gin.H{"logo": h.logo(ctx, o.group)})
}

func (h *Handler) uploads(mf *multipart.Form) ([]assets.Upload, []multipart.File, error) {
	var (
		uploads []assets.Upload
		opened  []multipart.File
	)
	errs := &validation.Error{}
	for field, files := range mf.File {
		if !strings.HasPrefix(field, "logo") || len(files) == 0 {
			continue
		}
		variant := strings.TrimPrefix(field, "logo")
		if !assets.ValidVariant(variant) {
			errs.Add(field, "Unrecognised logo variant.")
			continue
		}
		fh := files[0]
		if fh.Size > h.MaxLogoBytes {
			errs.Add(field, "That image is too large.")
			continue
		}
		f, err := fh.Open()
		if err != nil {
			return nil, opened, fmt.Errorf("open %s: %w", field, err)
		}
		opened = append(opened, f)
		uploads = append(uploads, assets.Upload{
			Variant:     variant,
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Body:        f,
			Size:        fh.Size,
		})
	}
	if len(uploads) == 0 && !errs.HasErrors() {
		errs.Add("logo", "Choose an image to upload.")
	}
	if err := errs.Err(); err != nil {
		return nil, opened, err
	}
	return uploads, opened, nil
}

// DeleteLogo handles DELETE /g/:id/logo.
func (h *Handler) DeleteLogo(c *gin.Context) {
	o, ok := h.authorize(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if o.group.Logo == "" {
		response.NoContent(c)
		return
	}
	if err := h.Logos.Remove(ctx, o.group.Logo); err != nil {
		h.fail(c, err, "remove logo")
		return
	}
	if err := h.Store.SetLogo(ctx, o.group.ID, ""); err != nil {
		h.fail(c, err, "remove logo")
		return
	}
	response.NoContent(c)
}

// AddOwner handles POST /g/:id/owners. The new owner must already be registered.
func (h *Handler) AddOwner(c *gin.Context) {
	o, ok := h.authorize(c)
	if !ok {
		return
	}
	var form CRSidForm
	if !validation.Bind(c, &form) {
		return
	}
	if err := form.Normalize(); err != nil {
		h.fail(c, err, "add owner")
		return
	}
	ctx := c.Request.Context()
	u, err := h.Users.FindByCRSid(ctx, form.CRSid)
	if err != nil {
		h.fail(c, err, "add owner")
		return
	}
	if u == nil || u.IsVisitor() {
		response.Unprocessable(c, "That person has not registered yet.",
			map[string]string{"crsid": "That person has not registered yet."})
		return
	}
	if err := h.Store.AddOwner(ctx, o.group.ID, u.ID); err != nil {
		h.fail(c, err, "add owner")
		return
	}
	h.Logger.Info("group owner added", zap.String("group_id", o.group.ID), zap.String("owner", u.CRSid),
		zap.String("by", o.user.CRSid))
	response.Created(c, u.ToPublic())
}

// RemoveOwner handles DELETE /g/:id/owners/:crsid.
func (h *Handler) RemoveOwner(c *gin.Context) {
	o, ok := h.authorize(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	u, err := h.Users.FindByCRSid(ctx, c.Param("crsid"))
	if err != nil {
		h.fail(c, err, "remove owner")
		return
	}
	if u == nil {
		response.NotFound(c, "not an owner")
		return
	}
	if err := h.Store.RemoveOwner(ctx, o.group.ID, u.ID); err != nil {
		h.fail(c, err, "remove owner")
		return
	}
	response.NoContent(c)
}

// AddLink handles POST /g/:id/links.
func (h *Handler) AddLink(c *gin.Context) {
	o, ok := h.authorize(c)
	if !ok {
		return
	}
	var form links.Form
	if !validation.Bind(c, &form) {
		return
	}
	if err := form.Validate(); err != nil {
		h.fail(c, err, "add link")
		return
	}
	l, err := h.Links.Append(c.Request.Context(), links.GroupParent(o.group.ID), form.Name, form.URL)
	if err != nil {
		h.fail(c, err, "add link")
		return
	}
	response.Created(c, l)
}

func linkID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("linkId"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid link id")
		return 0, false
	}
	return id, true
}

// EditLink handles PATCH /g/:id/links/:linkId.
func (h *Handler) EditLink(c *gin.Context) {
	o, ok := h.authorize(c)
	if !ok {
		return
	}
	id, ok := linkID(c)
	if !ok {
		return
	}
	var form links.Form
	if !validation.Bind(c, &form) {
		return
	}
	if err := form.Validate(); err != nil {
		h.fail(c, err, "edit link")
		return
	}
	l, err := h.Links.Update(c.Request.Context(), links.GroupParent(o.group.ID), id, form.Name, form.URL)
	if err != nil {
		h.fail(c, err, "edit link")
		return
	}
	response.OK(c, l)
}

// DeleteLink handles DELETE /g/:id/links/:linkId.
func (h *Handler) DeleteLink(c *gin.Context) {
	o, ok := h.authorize(c)
	if !ok {
		return
	}
	id, ok := linkID(c)
	if !ok {
		return
	}
	if err := h.Links.Delete(c.Request.Context(), links.GroupParent(o.group.ID), id); err != nil {
		h.fail(c, err, "delete link")
		return
	}
	response.NoContent(c)
}

// OrderLinks handles PUT /g/:id/links/order.
func (h *Handler) OrderLinks(c *gin.Context) {
	o, ok := h.authorize(c)
	if !ok {
		return
	}
	var form links.OrderForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.BadRequest(c, "order required")
		return
	}
	list, err := h.Links.Reorder(c.Request.Context(), links.GroupParent(o.group.ID), form.Order)
	if err != nil {
		h.fail(c, err, "reorder links")
		return
	}
	response.OK(c, list)
}

// AddWhitelist handles POST /g/:id/whitelist.
func (h *Handler) AddWhitelist(c *gin.Context) {
	o, ok := h.authorize(c)
	if !ok {
		return
	}
	var form CRSidForm
	if !validation.Bind(c, &form) {
		return
	}
	if err := form.Normalize(); err != nil {
		h.fail(c, err, "whitelist user")
		return
	}
	if err := h.Store.AddWhitelist(c.Request.Context(), o.group.ID, form.CRSid); err != nil {
		h.fail(c, err, "whitelist user")
		return
	}
	h.Logger.Info("group whitelist added", zap.String("group_id", o.group.ID), zap.String("crsid", form.CRSid),
		zap.String("by", o.user.CRSid))
	response.Created(c, gin.H{"crsid": form.CRSid})
}

// RemoveWhitelist handles DELETE /g/:id/whitelist/:crsid.
func (h *Handler) RemoveWhitelist(c *gin.Context) {
	o, ok := h.authorize(c)
	if !ok {
		return
	}
	if err := h.Store.RemoveWhitelist(c.Request.Context(), o.group.ID, c.Param("crsid")); err != nil {
		h.fail(c, err, "remove from whitelist")
		return
	}
	response.NoContent(c)
}
