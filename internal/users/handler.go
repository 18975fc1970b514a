package users

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/srcf/lightbluetent/internal/bbb"
	"github.com/srcf/lightbluetent/internal/lookup"
	"github.com/srcf/lightbluetent/internal/middleware"
	"github.com/srcf/lightbluetent/internal/models"
	"github.com/srcf/lightbluetent/internal/validation"
	"github.com/srcf/lightbluetent/pkg/response"
)

// SettingSignups is the settings row that overrides ENABLE_SIGNUPS.
const SettingSignups = "enable_signups"

// Store is the user persistence the handler needs.
type Store interface {
	FindByCRSid(ctx context.Context, crsid string) (*models.User, error)
	Register(ctx context.Context, crsid, fullName, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, crsid string, fullName, email *string) (*models.User, error)
	Setting(ctx context.Context, name string) (string, bool, error)
}

// GroupLister lists the groups a user owns.
type GroupLister interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Group, error)
}

// RoomLister lists personal and group rooms.
type RoomLister interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Room, error)
	ListForGroups(ctx context.Context, groupIDs []string) ([]models.Room, error)
}

// Directory looks people up to prefill registration.
type Directory interface {
	Person(ctx context.Context, crsid string) (lookup.Person, error)
}

// Deps are the collaborators of Handler.
type Deps struct {
	Store         Store
	Groups        GroupLister
	Rooms         RoomLister
	Meetings      *bbb.Meetings
	Directory     Directory
	EnableSignups bool
	Logger        *zap.Logger
}

// Handler handles registration, profile and home endpoints.
type Handler struct {
	Deps
}

// NewHandler creates a users handler.
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Handler{Deps: d}
}

// HomeRoom is a room on the signed-in user's home page.
type HomeRoom struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Path    string  `json:"path"`
	GroupID *string `json:"group_id,omitempty"`
	Running bool    `json:"running"`
}

// HomeGroup is an owned group on the home page.
type HomeGroup struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Running bool       `json:"running"`
	Rooms   []HomeRoom `json:"rooms"`
}

// HomeView is GET /u/home.
type HomeView struct {
	User   models.UserPublic `json:"user"`
	Groups []HomeGroup       `json:"groups"`
	Rooms  []HomeRoom        `json:"rooms"`
}

// RegisterView prefills the registration form.
type RegisterView struct {
	CRSid          string `json:"crsid"`
	FullName       string `json:"full_name"`
	Email          string `json:"email"`
	SignupsEnabled bool   `json:"signups_enabled"`
}

func (h *Handler) signupsEnabled(ctx context.Context) bool {
	v, ok, err := h.Store.Setting(ctx, SettingSignups)
	if err != nil {
		h.Logger.Warn("read signup setting", zap.Error(err))
		return h.EnableSignups
	}
	if !ok {
		return h.EnableSignups
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		return h.EnableSignups
	}
	return enabled
}

// Home handles GET /u/home. Unregistered principals are sent to registration.
func (h *Handler) Home(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := h.Store.FindByCRSid(ctx, middleware.PrincipalFrom(c))
	if err != nil {
		h.Logger.Error("load user", zap.Error(err))
		response.Internal(c, "failed to load user")
		return
	}
	if user == nil || user.IsVisitor() {
		c.Redirect(http.StatusFound, "/u/register")
		return
	}

	groups, err := h.Groups.ListForUser(ctx, user.ID)
	if err != nil {
		h.Logger.Error("list groups", zap.String("crsid", user.CRSid), zap.Error(err))
		response.Internal(c, "failed to load groups")
		return
	}
	ids := make([]string, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	groupRooms, err := h.Rooms.ListForGroups(ctx, ids)
	if err != nil {
		h.Logger.Error("list group rooms", zap.String("crsid", user.CRSid), zap.Error(err))
		response.Internal(c, "failed to load rooms")
		return
	}
	personal, err := h.Rooms.ListForUser(ctx, user.ID)
	if err != nil {
		h.Logger.Error("list rooms", zap.String("crsid", user.CRSid), zap.Error(err))
		response.Internal(c, "failed to load rooms")
		return
	}

	confs := make([]models.Conference, 0, len(groups)+len(groupRooms)+len(personal))
	for i := range groups {
		confs = append(confs, &groups[i])
	}
	for i := range groupRooms {
		confs = append(confs, &groupRooms[i])
	}
	for i := range personal {
		confs = append(confs, &personal[i])
	}
	running := h.Meetings.RunningSet(ctx, confs)

	home := func(r models.Room) HomeRoom {
		return HomeRoom{ID: r.ID, Name: r.Name, Path: r.PublicPath(), GroupID: r.GroupID, Running: running[r.ID]}
	}
	byGroup := map[string][]HomeRoom{}
	for _, r := range groupRooms {
		byGroup[*r.GroupID] = append(byGroup[*r.GroupID], home(r))
	}
	view := HomeView{User: user.ToPublic(), Groups: make([]HomeGroup, 0, len(groups)), Rooms: make([]HomeRoom, 0, len(personal))}
	for _, g := range groups {
		view.Groups = append(view.Groups, HomeGroup{ID: g.ID, Name: g.Name, Running: running[g.MeetingKey], Rooms: byGroup[g.ID]})
	}
	for _, r := range personal {
		view.Rooms = append(view.Rooms, home(r))
	}
	response.OK(c, view)
}

// RegisterPage handles GET /u/register, prefilling from the directory.
func (h *Handler) RegisterPage(c *gin.Context) {
	ctx := c.Request.Context()
	crsid := middleware.PrincipalFrom(c)
	user, err := h.Store.FindByCRSid(ctx, crsid)
	if err != nil {
		h.Logger.Error("load user", zap.Error(err))
		response.Internal(c, "failed to load user")
		return
	}
	if user != nil && !user.IsVisitor() {
		c.Redirect(http.StatusFound, "/u/home")
		return
	}
	view := RegisterView{CRSid: crsid, SignupsEnabled: h.signupsEnabled(ctx)}
	if p, err := h.Directory.Person(ctx, crsid); err == nil {
		view.FullName = p.Name
		view.Email = p.Email
	} else {
		h.Logger.Info("directory prefill unavailable", zap.String("crsid", crsid), zap.Error(err))
	}
	response.OK(c, view)
}

// Register handles POST /u/register.
func (h *Handler) Register(c *gin.Context) {
	ctx := c.Request.Context()
	crsid := middleware.PrincipalFrom(c)
	if !h.signupsEnabled(ctx) {
		response.Forbidden(c, "Registration is currently closed.")
		return
	}
	var form RegisterForm
	if !validation.Bind(c, &form) {
		return
	}
	if err := form.Validate(crsid); err != nil {
		fields, _ := validation.Fields(err)
		response.Unprocessable(c, "There were problems with the information you provided.", fields)
		return
	}
	user, err := h.Store.Register(ctx, crsid, form.FullName, form.Email)
	switch {
	case errors.Is(err, ErrAlreadyRegistered):
		response.Conflict(c, "You have already registered.")
		return
	case errors.Is(err, ErrEmailTaken):
		response.Unprocessable(c, "There were problems with the information you provided.",
			map[string]string{"email": "That email address is already registered."})
		return
	case err != nil:
		h.Logger.Error("register user", zap.String("crsid", crsid), zap.Error(err))
		response.Internal(c, "failed to register")
		return
	}
	h.Logger.Info("user registered", zap.String("crsid", crsid))
	response.Created(c, user)
}

// Profile handles GET /u/profile.
func (h *Handler) Profile(c *gin.Context) {
	user, err := h.Store.FindByCRSid(c.Request.Context(), middleware.PrincipalFrom(c))
	if err != nil {
		h.Logger.Error("load user", zap.Error(err))
		response.Internal(c, "failed to load user")
		return
	}
	if user == nil || user.IsVisitor() {
		response.NotFound(c, "not registered")
		return
	}
	response.OK(c, user)
}

// UpdateProfile handles PATCH /u/profile.
func (h *Handler) UpdateProfile(c *gin.Context) {
	ctx := c.Request.Context()
	crsid := middleware.PrincipalFrom(c)
	user, err := h.Store.FindByCRSid(ctx, crsid)
	if err != nil {
		h.Logger.Error("load user", zap.Error(err))
		response.Internal(c, "failed to load user")
		return
	}
	if user == nil || user.IsVisitor() {
		response.NotFound(c, "not registered")
		return
	}
	var body ProfileUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		if errs := validation.Translate(&body, err); errs.HasErrors() {
			response.Unprocessable(c, "There were problems with the information you provided.", errs.FieldErrors)
			return
		}
		response.BadRequest(c, "invalid request")
		return
	}
	if err := body.Validate(crsid); err != nil {
		fields, _ := validation.Fields(err)
		response.Unprocessable(c, "There were problems with the information you provided.", fields)
		return
	}
	updated, err := h.Store.UpdateProfile(ctx, crsid, body.FullName, body.Email)
	if errors.Is(err, ErrEmailTaken) {
		response.Unprocessable(c, "There were problems with the information you provided.",
			map[string]string{"email": "That email address is already registered."})
		return
	}
	if err != nil {
		h.Logger.Error("update profile", zap.String("crsid", crsid), zap.Error(err))
		response.Internal(c, "failed to update profile")
		return
	}
	response.OK(c, updated)
}
