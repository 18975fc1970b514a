package rooms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/srcf/lightbluetent/internal/access"
	"github.com/srcf/lightbluetent/internal/assets"
	"github.com/srcf/lightbluetent/internal/bbb"
	"github.com/srcf/lightbluetent/internal/links"
	"github.com/srcf/lightbluetent/internal/middleware"
	"github.com/srcf/lightbluetent/internal/models"
	"github.com/srcf/lightbluetent/internal/recurrence"
	"github.com/srcf/lightbluetent/internal/validation"
	"github.com/srcf/lightbluetent/pkg/response"
	"github.com/srcf/lightbluetent/pkg/utils"
)

// LinkStore persists a parent's links.
type LinkStore interface {
	List(ctx context.Context, p links.Parent) ([]models.Link, error)
	Append(ctx context.Context, p links.Parent, name, url string) (*models.Link, error)
	Update(ctx context.Context, p links.Parent, id int64, name, url string) (*models.Link, error)
	Delete(ctx context.Context, p links.Parent, id int64) error
	Reorder(ctx context.Context, p links.Parent, ids []int64) ([]models.Link, error)
}

// GroupFinder loads a room's parent group.
type GroupFinder interface {
	Get(ctx context.Context, id string) (*models.Group, error)
}

// Logos resolves a logo key to image URLs.
type Logos interface {
	Lookup(ctx context.Context, key string) (assets.Image, bool, error)
}

// Namer supplies a display name for a principal.
type Namer interface {
	DisplayName(ctx context.Context, crsid string) string
}

// Deps are the collaborators of Handler.
type Deps struct {
	Service      *Service
	Meetings     *bbb.Meetings
	Gate         *access.Gate
	Links        LinkStore
	Groups       GroupFinder
	Logos        Logos
	Names        Namer
	Validator    *recurrence.Validator
	SupportEmail string
	Logger       *zap.Logger
}

// Handler handles room HTTP endpoints.
type Handler struct {
	Deps
	now func() time.Time
}

// NewHandler creates a rooms handler.
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Handler{Deps: d, now: time.Now}
}

// SessionView is a stored session with its rule rendered for display.
type SessionView struct {
	models.Session
	Rule string                 `json:"rule,omitempty"`
	Next *recurrence.Occurrence `json:"next,omitempty"`
}

// LinkView is a link ready to render.
type LinkView struct {
	ID   int64           `json:"id"`
	Name string          `json:"name"`
	Href string          `json:"href"`
	Type models.LinkType `json:"type"`
}

// ManageView is the owner's settings page.
type ManageView struct {
	Room      *models.Room  `json:"room"`
	Password  *string       `json:"password,omitempty"`
	PublicURL string        `json:"public_url"`
	Running   bool          `json:"running"`
	Sessions  []SessionView `json:"sessions"`
	Links     []models.Link `json:"links"`
	Whitelist []string      `json:"whitelist"`
}

// GroupSummary is the parent group shown on a room page.
type GroupSummary struct {
	ID   string        `json:"id"`
	Name string        `json:"name"`
	Logo *assets.Image `json:"logo,omitempty"`
}

// PublicView is the public room page.
type PublicView struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	Alias          *string                `json:"alias,omitempty"`
	Paragraphs     []string               `json:"description,omitempty"`
	Authentication models.Authentication  `json:"authentication"`
	Group          *GroupSummary          `json:"group,omitempty"`
	Running        bool                   `json:"running"`
	InSession      bool                   `json:"in_session"`
	Next           *recurrence.Occurrence `json:"next,omitempty"`
	Links          []LinkView             `json:"links"`
	SignedIn       bool                   `json:"signed_in"`
}

// JoinForm is an attendee's join submission.
type JoinForm struct {
	Name     string `json:"name" form:"name"`
	Password string `json:"password" form:"password"`
}

// BeginForm optionally overrides the moderator's display name.
type BeginForm struct {
	FullName string `json:"full_name" form:"full_name"`
}

// fail maps an error onto a response. Ownerless rooms were already logged by the service.
func (h *Handler) fail(c *gin.Context, err error, action string) {
	var (
		bbbErr *bbb.Error
		denial *access.Denial
	)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, pgx.ErrNoRows):
		response.NotFound(c, "not found")
	case errors.Is(err, ErrForbidden):
		response.Forbidden(c, "you do not manage this room")
	case errors.Is(err, ErrOwnerless):
		response.Internal(c, "this room is misconfigured")
	case errors.Is(err, ErrAliasTaken):
		response.Unprocessable(c, "invalid room details", map[string]string{"alias": aliasTakenMessage})
	case errors.As(err, &denial):
		response.Unprocessable(c, denial.Message(), denial.Fields())
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

func (h *Handler) authorize(c *gin.Context) (*Managed, bool) {
	m, err := h.Service.Authorize(c.Request.Context(), c.Param("id"), middleware.PrincipalFrom(c))
	if err != nil {
		h.fail(c, err, "load room")
		return nil, false
	}
	return m, true
}

func (h *Handler) parentGroup(ctx context.Context, room *models.Room) (*GroupSummary, string) {
	if room.GroupID == nil || h.Groups == nil {
		return nil, ""
	}
	g, err := h.Groups.Get(ctx, *room.GroupID)
	if err != nil {
		h.Logger.Warn("load parent group", zap.String("room_id", room.ID), zap.Error(err))
		return nil, ""
	}
	summary := &GroupSummary{ID: g.ID, Name: g.Name}
	if g.Logo == "" || h.Logos == nil {
		return summary, ""
	}
	img, ok, err := h.Logos.Lookup(ctx, g.Logo)
	if err != nil {
		h.Logger.Warn("load group logo", zap.String("group_id", g.ID), zap.Error(err))
		return summary, ""
	}
	if !ok {
		return summary, ""
	}
	summary.Logo = &img
	return summary, img.Main
}

func (h *Handler) meeting(ctx context.Context, room *models.Room) (*bbb.Meeting, *GroupSummary) {
	group, logo := h.parentGroup(ctx, room)
	return h.Meetings.Room(room, logo), group
}

func (h *Handler) sessions(ctx context.Context, roomID string) ([]models.Session, error) {
	list, err := h.Service.store.Sessions(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return recurrence.Localize(list, h.Validator.Location), nil
}

func linkViews(list []models.Link) []LinkView {
	out := make([]LinkView, 0, len(list))
	for _, l := range list {
		out = append(out, LinkView{ID: l.ID, Name: l.Name, Href: links.Href(l), Type: l.Type})
	}
	return out
}

// CreateForGroup handles POST /g/:id/rooms.
func (h *Handler) CreateForGroup(c *gin.Context) {
	ctx := c.Request.Context()
	groupID := c.Param("id")
	crsid := middleware.PrincipalFrom(c)
	user, err := h.Service.users.FindByCRSid(ctx, crsid)
	if err != nil {
		h.fail(c, err, "load user")
		return
	}
	if _, err := h.Groups.Get(ctx, groupID); err != nil {
		response.NotFound(c, "group not found")
		return
	}
	if user == nil {
		response.Forbidden(c, "you do not manage this group")
		return
	}
	ok, err := h.Service.owners.IsOwner(ctx, groupID, user.ID)
	if err != nil {
		h.fail(c, err, "check group owner")
		return
	}
	if !ok {
		response.Forbidden(c, "you do not manage this group")
		return
	}
	h.create(c, &models.Room{GroupID: &groupID})
}

// CreatePersonal handles POST /u/rooms.
func (h *Handler) CreatePersonal(c *gin.Context) {
	user, err := h.Service.users.FindByCRSid(c.Request.Context(), middleware.PrincipalFrom(c))
	if err != nil {
		h.fail(c, err, "load user")
		return
	}
	if user == nil || user.IsVisitor() {
		response.Forbidden(c, "register before creating rooms")
		return
	}
	h.create(c, &models.Room{UserID: &user.ID})
}

func (h *Handler) create(c *gin.Context, room *models.Room) {
	var form CreateForm
	if !validation.Bind(c, &form) {
		return
	}
	auth, err := form.Validate()
	if err != nil {
		h.fail(c, err, "create room")
		return
	}
	room.ID = utils.RoomID()
	room.Name = form.Name
	room.Description = optional(form.Description)
	room.Authentication = auth
	room.AttendeePW = utils.UniqueString()
	room.ModeratorPW = utils.UniqueString()
	if auth == models.AuthPassword {
		pw := utils.RoomPassword()
		room.Password = &pw
	}
	if err := h.Service.store.Create(c.Request.Context(), room); err != nil {
		h.fail(c, err, "create room")
		return
	}
	h.Logger.Info("room created", zap.String("room_id", room.ID), zap.String("crsid", middleware.PrincipalFrom(c)))
	response.Created(c, room)
}

// Manage handles GET /r/:id/manage.
func (h *Handler) Manage(c *gin.Context) {
	m, ok := h.authorize(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	room := m.Room

	sessions, err := h.sessions(ctx, room.ID)
	if err != nil {
		h.fail(c, err, "load sessions")
		return
	}
	now := h.now()
	views := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		v := SessionView{Session: s, Rule: recurrence.RuleString(s)}
		if sch, err := recurrence.NewSchedule(s); err == nil {
			if o, ok := sch.NextAfter(now); ok {
				v.Next = &o
			}
		}
		views = append(views, v)
	}
	list, err := h.Links.List(ctx, links.RoomParent(room.ID))
	if err != nil {
		h.fail(c, err, "load links")
		return
	}
	wl, err := h.Service.store.Whitelist(ctx, room.ID)
	if err != nil {
		h.fail(c, err, "load whitelist")
		return
	}
	meeting, _ := h.meeting(ctx, room)
	response.OK(c, ManageView{
		Room:      room,
		Password:  room.Password,
		PublicURL: h.Meetings.PublicURL(room.PublicPath()),
		Running:   meeting.IsRunning(ctx),
		Sessions:  views,
		Links:     list,
		Whitelist: wl,
	})
}

// Update handles POST /r/:id/update/:type.
func (h *Handler) Update(c *gin.Context) {
	m, ok := h.authorize(c)
	if !ok {
		return
	}
	switch kind := c.Param("type"); kind {
	case "room_details":
		h.updateDetails(c, m)
	case "room_times":
		h.updateTimes(c, m)
	case "room_features":
		h.updateFeatures(c, m)
	case "links_order":
		h.updateLinksOrder(c, m)
	default:
		h.Logger.Warn("unknown room update", zap.String("type", kind), zap.String("room_id", m.Room.ID))
		response.NotFound(c, "unknown update")
	}
}

func (h *Handler) updateDetails(c *gin.Context, m *Managed) {
	ctx := c.Request.Context()
	var form DetailsForm
	if !validation.Bind(c, &form) {
		return
	}
	room := *m.Room
	if err := form.Apply(&room); err != nil {
		h.fail(c, err, "update room")
		return
	}
	if room.Alias != nil {
		msg, err := h.Service.CheckAlias(ctx, room.ID, *room.Alias)
		if err != nil {
			h.fail(c, err, "check alias")
			return
		}
		if msg != "" {
			response.Unprocessable(c, "invalid room details", map[string]string{"alias": msg})
			return
		}
	}
	if form.Whitelist != "" {
		h.Logger.Info("whitelisting", zap.String("room_id", room.ID), zap.String("crsid", form.Whitelist),
			zap.String("by", m.User.CRSid))
		if _, err := h.Gate.ResolveVisitor(ctx, form.Whitelist); err != nil {
			h.fail(c, err, "whitelist user")
			return
		}
	}
	if err := h.Service.store.UpdateDetails(ctx, &room, form.Whitelist); err != nil {
		h.fail(c, err, "update room")
		return
	}
	response.OK(c, &room)
}

func (h *Handler) updateTimes(c *gin.Context, m *Managed) {
	var form recurrence.SessionForm
	if !validation.Bind(c, &form) {
		return
	}
	s, err := h.Validator.Validate(form)
	if err != nil {
		h.fail(c, err, "add session")
		return
	}
	s.RoomID = m.Room.ID
	if err := h.Service.store.AddSession(c.Request.Context(), &s); err != nil {
		h.fail(c, err, "add session")
		return
	}
	response.Created(c, SessionView{Session: s, Rule: recurrence.RuleString(s)})
}

func (h *Handler) updateFeatures(c *gin.Context, m *Managed) {
	var form FeaturesForm
	if !validation.Bind(c, &form) {
		return
	}
	d, err := form.Settings()
	if err != nil {
		h.fail(c, err, "update features")
		return
	}
	if err := h.Service.store.UpdateFeatures(c.Request.Context(), m.Room.ID, d); err != nil {
		h.fail(c, err, "update features")
		return
	}
	m.Room.DisplaySettings = d
	response.OK(c, m.Room)
}

func (h *Handler) updateLinksOrder(c *gin.Context, m *Managed) {
	var form links.OrderForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.BadRequest(c, "order required")
		return
	}
	list, err := h.Links.Reorder(c.Request.Context(), links.RoomParent(m.Room.ID), form.Order)
	if err != nil {
		h.fail(c, err, "reorder links")
		return
	}
	response.OK(c, list)
}

// AddLink handles POST /r/:id/links.
func (h *Handler) AddLink(c *gin.Context) {
	m, ok := h.authorize(c)
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
	l, err := h.Links.Append(c.Request.Context(), links.RoomParent(m.Room.ID), form.Name, form.URL)
	if err != nil {
		h.fail(c, err, "add link")
		return
	}
	response.Created(c, l)
}

// EditLink handles PATCH /r/:id/links/:linkId.
func (h *Handler) EditLink(c *gin.Context) {
	m, ok := h.authorize(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("linkId"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid link id")
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
	l, err := h.Links.Update(c.Request.Context(), links.RoomParent(m.Room.ID), id, form.Name, form.URL)
	if err != nil {
		h.fail(c, err, "edit link")
		return
	}
	response.OK(c, l)
}

// DeleteLink handles DELETE /r/:id/links/:linkId.
func (h *Handler) DeleteLink(c *gin.Context) {
	m, ok := h.authorize(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("linkId"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid link id")
		return
	}
	if err := h.Links.Delete(c.Request.Context(), links.RoomParent(m.Room.ID), id); err != nil {
		h.fail(c, err, "delete link")
		return
	}
	response.NoContent(c)
}

// Begin handles POST /r/:id/begin: the meeting is created if it is not running and the
// owner is sent in as moderator.
func (h *Handler) Begin(c *gin.Context) {
	m, ok := h.authorize(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var form BeginForm
	_ = c.ShouldBind(&form)
	name := strings.TrimSpace(form.FullName)
	if name == "" {
		name = h.Names.DisplayName(ctx, m.User.CRSid)
	}

	meeting, _ := h.meeting(ctx, m.Room)
	if !meeting.IsRunning(ctx) {
		invite := bbb.InviteMessage(h.Meetings.PublicURL(m.Room.PublicPath()))
		if _, err := meeting.Create(ctx, invite); err != nil {
			h.fail(c, err, "create meeting")
			return
		}
		h.Logger.Info("meeting started", zap.String("room_id", m.Room.ID), zap.String("crsid", m.User.CRSid))
	}
	url, err := meeting.ModeratorURL(name)
	if err != nil {
		h.fail(c, err, "build join url")
		return
	}
	response.Redirect(c, url)
}

// End handles POST /r/:id/end.
func (h *Handler) End(c *gin.Context) {
	m, ok := h.authorize(c)
	if !ok {
		return
	}
	meeting, _ := h.meeting(c.Request.Context(), m.Room)
	if err := meeting.End(c.Request.Context()); err != nil {
		h.fail(c, err, "end meeting")
		return
	}
	response.NoContent(c)
}

// NewPassword handles POST /r/:id/new_password.
func (h *Handler) NewPassword(c *gin.Context) {
	m, ok := h.authorize(c)
	if !ok {
		return
	}
	pw := utils.RoomPassword()
	if err := h.Service.store.SetPassword(c.Request.Context(), m.Room.ID, pw); err != nil {
		h.fail(c, err, "set password")
		return
	}
	response.OK(c, gin.H{"password": pw})
}

// Unwhitelist handles DELETE /r/:id/whitelist/:crsid.
func (h *Handler) Unwhitelist(c *gin.Context) {
	m, ok := h.authorize(c)
	if !ok {
		return
	}
	if err := h.Service.store.RemoveWhitelist(c.Request.Context(), m.Room.ID, c.Param("crsid")); err != nil {
		h.fail(c, err, "remove from whitelist")
		return
	}
	response.NoContent(c)
}

// DeleteSession handles DELETE /r/:id/sessions/:sessionId.
func (h *Handler) DeleteSession(c *gin.Context) {
	m, ok := h.authorize(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("sessionId"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	if err := h.Service.store.DeleteSession(c.Request.Context(), m.Room.ID, id); err != nil {
		h.fail(c, err, "delete session")
		return
	}
	h.Logger.Info("session deleted", zap.String("room_id", m.Room.ID), zap.Int64("session_id", id),
		zap.String("crsid", m.User.CRSid))
	response.NoContent(c)
}

// Delete handles DELETE /r/:id.
func (h *Handler) Delete(c *gin.Context) {
	m, ok := h.authorize(c)
	if !ok {
		return
	}
	if err := h.Service.store.Delete(c.Request.Context(), m.Room.ID); err != nil {
		h.fail(c, err, "delete room")
		return
	}
	h.Logger.Info("room deleted", zap.String("room_id", m.Room.ID), zap.String("crsid", m.User.CRSid))
	response.NoContent(c)
}

func (h *Handler) resolve(c *gin.Context) (*models.Room, bool) {
	room, redirect, err := h.Service.Resolve(c.Request.Context(), c.Param("id"), c.Param("alias"),
		middleware.PrincipalFrom(c))
	if err != nil {
		h.fail(c, err, "load room")
		return nil, false
	}
	if redirect {
		c.Redirect(http.StatusFound, room.PublicPath())
		return nil, false
	}
	return room, true
}

// provision records a visitor for a signed-in principal seen for the first time.
func (h *Handler) provision(ctx context.Context, principal string) {
	if principal == "" {
		return
	}
	if _, err := h.Gate.ResolveVisitor(ctx, principal); err != nil {
		h.Logger.Warn("provision visitor", zap.String("crsid", principal), zap.Error(err))
	}
}

// Show handles GET /:alias and GET /r/:id/join. A room reached by id that has an alias is
// redirected to it.
func (h *Handler) Show(c *gin.Context) {
	room, ok := h.resolve(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	principal := middleware.PrincipalFrom(c)
	h.provision(ctx, principal)

	meeting, group := h.meeting(ctx, room)
	view := PublicView{
		ID:             room.ID,
		Name:           room.Name,
		Alias:          room.Alias,
		Authentication: room.Authentication,
		Group:          group,
		Running:        meeting.IsRunning(ctx),
		SignedIn:       principal != "",
	}
	if room.Description != nil {
		view.Paragraphs = strings.Split(*room.Description, "\n")
	}
	sessions, err := h.sessions(ctx, room.ID)
	if err != nil {
		h.fail(c, err, "load sessions")
		return
	}
	now := h.now()
	if view.InSession, err = recurrence.InSession(sessions, now); err != nil {
		h.Logger.Warn("evaluate sessions", zap.String("room_id", room.ID), zap.Error(err))
	}
	if next, found, err := recurrence.Next(sessions, now); err == nil && found {
		view.Next = &next
	}
	list, err := h.Links.List(ctx, links.RoomParent(room.ID))
	if err != nil {
		h.fail(c, err, "load links")
		return
	}
	view.Links = linkViews(list)
	response.OK(c, view)
}

// Join handles POST /:alias and POST /r/:id/join.
func (h *Handler) Join(c *gin.Context) {
	room, ok := h.resolve(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var form JoinForm
	if !validation.Bind(c, &form) {
		return
	}
	principal := middleware.PrincipalFrom(c)
	h.provision(ctx, principal)

	meeting, _ := h.meeting(ctx, room)
	if !meeting.IsRunning(ctx) {
		response.Conflict(c, "This meeting is no longer running.")
		return
	}

	name := strings.TrimSpace(form.Name)
	if name == "" && principal != "" && (room.Authentication == models.AuthRaven || room.Authentication == models.AuthWhitelist) {
		name = h.Names.DisplayName(ctx, principal)
	}
	err := h.Gate.Authorize(ctx, access.Request{Room: room, Name: name, Password: form.Password, Principal: principal})
	if err != nil {
		h.fail(c, err, "check access")
		return
	}
	url, err := meeting.AttendeeURL(name)
	if err != nil {
		h.fail(c, err, "build join url")
		return
	}
	h.Logger.Info("attendee joined", zap.String("room_id", room.ID), zap.String("name", name))
	response.Redirect(c, url)
}

// Calendar handles GET /r/:id/calendar.ics.
func (h *Handler) Calendar(c *gin.Context) {
	ctx := c.Request.Context()
	room, _, err := h.Service.Resolve(ctx, c.Param("id"), "", middleware.PrincipalFrom(c))
	if err != nil {
		h.fail(c, err, "load room")
		return
	}
	sessions, err := h.sessions(ctx, room.ID)
	if err != nil {
		h.fail(c, err, "load sessions")
		return
	}
	cal := recurrence.CalendarRoom{
		Name:     room.Name,
		URL:      h.Meetings.PublicURL(room.PublicPath()),
		Sessions: sessions,
	}
	if room.Description != nil {
		cal.Description = *room.Description
	}
	c.Header("Content-Type", "text/calendar; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", room.ID+".ics"))
	c.Status(http.StatusOK)
	if err := recurrence.WriteCalendar(c.Writer, cal, h.now()); err != nil {
		h.Logger.Error("write calendar", zap.String("room_id", room.ID), zap.Error(err))
	}
}
