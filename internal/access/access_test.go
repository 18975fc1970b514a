package access

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/srcf/lightbluetent/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWhitelists struct {
	rooms  map[string][]string
	groups map[string][]string
	err    error
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (s *stubWhitelists) RoomWhitelisted(_ context.Context, roomID, crsid string) (bool, error) {
	return contains(s.rooms[roomID], crsid), s.err
}

func (s *stubWhitelists) GroupWhitelisted(_ context.Context, groupID, crsid string) (bool, error) {
	return contains(s.groups[groupID], crsid), s.err
}

type stubVisitors struct {
	users map[string]*models.User
	calls int
}

func (s *stubVisitors) UpsertVisitor(_ context.Context, crsid string) (*models.User, bool, error) {
	s.calls++
	if u, ok := s.users[crsid]; ok {
		return u, false, nil
	}
	u := &models.User{ID: uuid.New(), CRSid: crsid, RoleID: 1}
	s.users[crsid] = u
	return u, true, nil
}

func strPtr(s string) *string { return &s }

func room(mode models.Authentication) *models.Room {
	return &models.Room{ID: "r1", GroupID: strPtr("jazz"), Authentication: mode}
}

func denialField(t *testing.T, err error) string {
	t.Helper()
	var d *Denial
	require.True(t, errors.As(err, &d), "expected denial, got %v", err)
	return d.Field
}

func TestAuthorize_NameTooShort(t *testing.T) {
	g := NewGate(&stubWhitelists{}, nil, nil)
	for _, name := range []string{"", "A", "  B  ", "é"} {
		err := g.Authorize(context.Background(), Request{Room: room(models.AuthPublic), Name: name})
		assert.ErrorIs(t, err, ErrNameTooShort, "name %q", name)
		assert.Equal(t, "name", denialField(t, err))
	}
	assert.NoError(t, g.Authorize(context.Background(), Request{Room: room(models.AuthPublic), Name: "Al"}))
}

func TestAuthorize_Password(t *testing.T) {
	g := NewGate(&stubWhitelists{}, nil, nil)
	r := room(models.AuthPassword)
	r.Password = strPtr("abc123")

	err := g.Authorize(context.Background(), Request{Room: r, Name: "Ada", Password: "wrong"})
	assert.ErrorIs(t, err, ErrIncorrectPassword)
	var d *Denial
	require.True(t, errors.As(err, &d))
	assert.Equal(t, map[string]string{"password": "Incorrect password."}, d.Fields())

	assert.NoError(t, g.Authorize(context.Background(), Request{Room: r, Name: "Ada", Password: "abc123"}))

	// The name check still applies with the right password.
	err = g.Authorize(context.Background(), Request{Room: r, Name: "A", Password: "abc123"})
	assert.ErrorIs(t, err, ErrNameTooShort)
}

func TestAuthorize_PasswordModeWithoutPassword(t *testing.T) {
	g := NewGate(&stubWhitelists{}, nil, nil)
	err := g.Authorize(context.Background(), Request{Room: room(models.AuthPassword), Name: "Ada"})
	assert.ErrorIs(t, err, ErrIncorrectPassword)
}

func TestAuthorize_Raven(t *testing.T) {
	g := NewGate(&stubWhitelists{}, nil, nil)
	err := g.Authorize(context.Background(), Request{Room: room(models.AuthRaven), Name: "Ada"})
	assert.ErrorIs(t, err, ErrSignInRequired)
	assert.NoError(t, g.Authorize(context.Background(), Request{Room: room(models.AuthRaven), Name: "Ada", Principal: "al123"}))
}

func TestAuthorize_Whitelist(t *testing.T) {
	wl := &stubWhitelists{
		rooms:  map[string][]string{"r1": {"ab123"}},
		groups: map[string][]string{"jazz": {"cd456"}},
	}
	g := NewGate(wl, nil, nil)
	r := room(models.AuthWhitelist)

	assert.NoError(t, g.Authorize(context.Background(), Request{Room: r, Name: "Ada", Principal: "ab123"}))
	assert.NoError(t, g.Authorize(context.Background(), Request{Room: r, Name: "Cal", Principal: "cd456"}))

	err := g.Authorize(context.Background(), Request{Room: r, Name: "Eve", Principal: "ef789"})
	assert.ErrorIs(t, err, ErrNotWhitelisted)
	assert.Equal(t, "principal", denialField(t, err))

	err = g.Authorize(context.Background(), Request{Room: r, Name: "Eve"})
	assert.ErrorIs(t, err, ErrSignInRequired)
}

func TestAuthorize_PersonalRoomIgnoresGroupWhitelist(t *testing.T) {
	wl := &stubWhitelists{groups: map[string][]string{"jazz": {"cd456"}}}
	g := NewGate(wl, nil, nil)
	owner := uuid.New()
	r := &models.Room{ID: "r2", UserID: &owner, Authentication: models.AuthWhitelist}

	err := g.Authorize(context.Background(), Request{Room: r, Name: "Cal", Principal: "cd456"})
	assert.ErrorIs(t, err, ErrNotWhitelisted)
}

func TestAuthorize_WhitelistLookupError(t *testing.T) {
	g := NewGate(&stubWhitelists{err: errors.New("connection reset")}, nil, nil)
	err := g.Authorize(context.Background(), Request{Room: room(models.AuthWhitelist), Name: "Ada", Principal: "ab123"})
	require.Error(t, err)
	var d *Denial
	assert.False(t, errors.As(err, &d))
}

func TestResolveVisitor_Idempotent(t *testing.T) {
	visitors := &stubVisitors{users: map[string]*models.User{}}
	g := NewGate(&stubWhitelists{}, visitors, nil)

	first, err := g.ResolveVisitor(context.Background(), "ab123")
	require.NoError(t, err)
	second, err := g.ResolveVisitor(context.Background(), "ab123")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.IsVisitor())

	none, err := g.ResolveVisitor(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, none)
	assert.Equal(t, 2, visitors.calls)
}
