package users

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srcf/lightbluetent/internal/bbb"
	"github.com/srcf/lightbluetent/internal/lookup"
	"github.com/srcf/lightbluetent/internal/middleware"
	"github.com/srcf/lightbluetent/internal/models"
)

type memStore struct {
	users    map[string]*models.User
	settings map[string]string
}

func (s *memStore) FindByCRSid(_ context.Context, crsid string) (*models.User, error) {
	return s.users[crsid], nil
}

func (s *memStore) Register(_ context.Context, crsid, fullName, email string) (*models.User, error) {
	if u, ok := s.users[crsid]; ok && !u.IsVisitor() {
		return nil, ErrAlreadyRegistered
	}
	for _, u := range s.users {
		if u.Email != nil && *u.Email == email {
			return nil, ErrEmailTaken
		}
	}
	u := &models.User{ID: uuid.New(), CRSid: crsid, FullName: &fullName, Email: &email}
	s.users[crsid] = u
	return u, nil
}

func (s *memStore) UpdateProfile(_ context.Context, crsid string, fullName, email *string) (*models.User, error) {
	u := s.users[crsid]
	if fullName != nil {
		u.FullName = fullName
	}
	if email != nil {
		u.Email = email
	}
	return u, nil
}

func (s *memStore) Setting(_ context.Context, name string) (string, bool, error) {
	v, ok := s.settings[name]
	return v, ok, nil
}

type stubGroups []models.Group

func (s stubGroups) ListForUser(context.Context, uuid.UUID) ([]models.Group, error) { return s, nil }

type stubRooms struct {
	personal []models.Room
	group    []models.Room
}

func (s stubRooms) ListForUser(context.Context, uuid.UUID) ([]models.Room, error) { return s.personal, nil }
func (s stubRooms) ListForGroups(context.Context, []string) ([]models.Room, error) { return s.group, nil }

type stubDirectory map[string]lookup.Person

func (s stubDirectory) Person(_ context.Context, crsid string) (lookup.Person, error) {
	p, ok := s[crsid]
	if !ok {
		return lookup.Person{}, lookup.ErrUnavailable
	}
	return p, nil
}

func strPtr(s string) *string { return &s }

func newRouter(t *testing.T, store *memStore, signups bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		running := "false"
		if r.URL.Query().Get("meetingID") == "mine" {
			running = "true"
		}
		_, _ = w.Write([]byte(`<response><returncode>SUCCESS</returncode><running>` + running + `</running></response>`))
	}))
	t.Cleanup(srv.Close)

	h := NewHandler(Deps{
		Store:  store,
		Groups: stubGroups{{ID: "jazz", Name: "Jazz", MeetingKey: "jazzkey"}},
		Rooms: stubRooms{
			personal: []models.Room{{ID: "mine", Name: "Office hours"}},
			group:    []models.Room{{ID: "jam", Name: "Jam", GroupID: strPtr("jazz")}},
		},
		Meetings:      bbb.NewMeetings(bbb.NewClient(srv.URL+"/api/", "s", time.Second, time.Second, nil), "https://events.example.org", nil),
		Directory:     stubDirectory{"abc12": {CRSid: "abc12", Name: "Ada Byron", Email: "abc12@cam.ac.uk"}},
		EnableSignups: signups,
	})
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextPrincipal, c.GetHeader("X-Test-Principal"))
		c.Next()
	})
	r.GET("/u/home", h.Home)
	r.GET("/u/register", h.RegisterPage)
	r.POST("/u/register", h.Register)
	r.PATCH("/u/profile", h.UpdateProfile)
	return r
}

func serve(r *gin.Engine, req *http.Request, principal string) *httptest.ResponseRecorder {
	req.Header.Set("X-Test-Principal", principal)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func registerRequest(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/u/register", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestRegisterFlow(t *testing.T) {
	store := &memStore{users: map[string]*models.User{"abc12": {ID: uuid.New(), CRSid: "abc12"}}, settings: map[string]string{}}
	r := newRouter(t, store, true)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/u/home", nil), "abc12")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/u/register", w.Header().Get("Location"))

	w = serve(r, httptest.NewRequest(http.MethodGet, "/u/register", nil), "abc12")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"full_name":"Ada Byron"`)

	form := url.Values{"full_name": {"Ada Byron"}, "email_address": {"abc12@cam.ac.uk"}, "dpa": {"true"}, "tos": {"true"}}
	w = serve(r, registerRequest(form), "abc12")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.False(t, store.users["abc12"].IsVisitor())

	w = serve(r, registerRequest(form), "abc12")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/u/register", nil), "abc12")
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestRegister_SignupsSettingOverridesConfig(t *testing.T) {
	store := &memStore{users: map[string]*models.User{}, settings: map[string]string{SettingSignups: "false"}}
	r := newRouter(t, store, true)

	form := url.Values{"full_name": {"Ada Byron"}, "email_address": {"abc12@cam.ac.uk"}, "dpa": {"true"}, "tos": {"true"}}
	w := serve(r, registerRequest(form), "abc12")
	assert.Equal(t, http.StatusForbidden, w.Code)

	store.settings[SettingSignups] = "true"
	form.Set("email_address", "xyz99@cam.ac.uk")
	w = serve(r, registerRequest(form), "abc12")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHome(t *testing.T) {
	store := &memStore{users: map[string]*models.User{
		"abc12": {ID: uuid.New(), CRSid: "abc12", Email: strPtr("abc12@cam.ac.uk")},
	}}
	r := newRouter(t, store, false)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/u/home", nil), "abc12")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"id":"mine","name":"Office hours","path":"/r/mine","running":true`)
	assert.Contains(t, body, `"id":"jam","name":"Jam","path":"/r/jam","group_id":"jazz","running":false`)
}

func TestUpdateProfile(t *testing.T) {
	store := &memStore{users: map[string]*models.User{
		"abc12": {ID: uuid.New(), CRSid: "abc12", Email: strPtr("abc12@cam.ac.uk")},
	}}
	r := newRouter(t, store, false)

	req := httptest.NewRequest(http.MethodPatch, "/u/profile", strings.NewReader(`{"full_name":"Ada Lovelace"}`))
	req.Header.Set("Content-Type", "application/json")
	w := serve(r, req, "abc12")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Ada Lovelace", *store.users["abc12"].FullName)

	req = httptest.NewRequest(http.MethodPatch, "/u/profile", strings.NewReader(`{"email":"bad"}`))
	req.Header.Set("Content-Type", "application/json")
	w = serve(r, req, "abc12")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
