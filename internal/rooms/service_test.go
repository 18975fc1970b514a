package rooms

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/srcf/lightbluetent/internal/models"
)

type memStore struct {
	rooms     map[string]*models.Room
	sessions  map[string][]models.Session
	whitelist map[string][]string
	updateErr error
}

func newMemStore(rooms ...*models.Room) *memStore {
	s := &memStore{
		rooms:     map[string]*models.Room{},
		sessions:  map[string][]models.Session{},
		whitelist: map[string][]string{},
	}
	for _, r := range rooms {
		s.rooms[r.ID] = r
	}
	return s
}

func (s *memStore) Create(_ context.Context, room *models.Room) error {
	s.rooms[room.ID] = room
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*models.Room, error) {
	r, ok := s.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) GetByAlias(_ context.Context, alias string) (*models.Room, error) {
	for _, r := range s.rooms {
		if r.Alias != nil && *r.Alias == alias {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) ListForGroup(_ context.Context, groupID string) ([]models.Room, error) {
	var out []models.Room
	for _, r := range s.rooms {
		if r.GroupID != nil && *r.GroupID == groupID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *memStore) UpdateDetails(_ context.Context, room *models.Room, whitelist string) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	cp := *room
	s.rooms[room.ID] = &cp
	if whitelist != "" {
		s.whitelist[room.ID] = append(s.whitelist[room.ID], whitelist)
	}
	return nil
}

func (s *memStore) UpdateFeatures(_ context.Context, id string, d models.DisplaySettings) error {
	s.rooms[id].DisplaySettings = d
	return nil
}

func (s *memStore) SetPassword(_ context.Context, id, password string) error {
	s.rooms[id].Password = &password
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	delete(s.rooms, id)
	return nil
}

func (s *memStore) AddSession(_ context.Context, sess *models.Session) error {
	sess.ID = int64(len(s.sessions[sess.RoomID]) + 1)
	s.sessions[sess.RoomID] = append(s.sessions[sess.RoomID], *sess)
	return nil
}

func (s *memStore) Sessions(_ context.Context, roomID string) ([]models.Session, error) {
	return s.sessions[roomID], nil
}

func (s *memStore) DeleteSession(_ context.Context, roomID string, sessionID int64) error {
	list := s.sessions[roomID]
	for i, sess := range list {
		if sess.ID == sessionID {
			s.sessions[roomID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *memStore) RemoveWhitelist(_ context.Context, roomID, crsid string) error {
	list := s.whitelist[roomID]
	for i, c := range list {
		if c == crsid {
			s.whitelist[roomID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *memStore) Whitelist(_ context.Context, roomID string) ([]string, error) {
	return s.whitelist[roomID], nil
}

type stubUsers map[string]*models.User

func (s stubUsers) FindByCRSid(_ context.Context, crsid string) (*models.User, error) {
	return s[crsid], nil
}

type stubOwners map[string][]uuid.UUID

func (s stubOwners) IsOwner(_ context.Context, groupID string, userID uuid.UUID) (bool, error) {
	for _, id := range s[groupID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func strPtr(s string) *string { return &s }

type fixture struct {
	store  *memStore
	users  stubUsers
	owners stubOwners
	owner  *models.User
	other  *models.User
}

func newFixture(rooms ...*models.Room) *fixture {
	owner := &models.User{ID: uuid.New(), CRSid: "abc12", Email: strPtr("abc12@cam.ac.uk"), FullName: strPtr("Ada Byron")}
	other := &models.User{ID: uuid.New(), CRSid: "xyz99", Email: strPtr("xyz99@cam.ac.uk")}
	return &fixture{
		store:  newMemStore(rooms...),
		users:  stubUsers{owner.CRSid: owner, other.CRSid: other},
		owners: stubOwners{"jazz": {owner.ID}},
		owner:  owner,
		other:  other,
	}
}

func TestService_AuthorizeGroupRoom(t *testing.T) {
	f := newFixture(&models.Room{ID: "r1", Name: "Jam", GroupID: strPtr("jazz")})
	svc := NewService(f.store, f.users, f.owners, nil)
	ctx := context.Background()

	m, err := svc.Authorize(ctx, "r1", "abc12")
	require.NoError(t, err)
	assert.Equal(t, "r1", m.Room.ID)
	assert.Equal(t, f.owner.ID, m.User.ID)

	_, err = svc.Authorize(ctx, "r1", "xyz99")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Authorize(ctx, "r1", "")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Authorize(ctx, "r1", "nobody")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Authorize(ctx, "missing", "abc12")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_AuthorizePersonalRoom(t *testing.T) {
	f := newFixture()
	f.store.rooms["r2"] = &models.Room{ID: "r2", Name: "Office hours", UserID: &f.owner.ID}
	svc := NewService(f.store, f.users, f.owners, nil)

	_, err := svc.Authorize(context.Background(), "r2", "abc12")
	require.NoError(t, err)

	_, err = svc.Authorize(context.Background(), "r2", "xyz99")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestService_AuthorizeOwnerlessLogsOnce(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	f := newFixture(&models.Room{ID: "orphan", Name: "Lost"})
	svc := NewService(f.store, f.users, f.owners, zap.New(core))

	_, err := svc.Authorize(context.Background(), "orphan", "abc12")
	assert.ErrorIs(t, err, ErrOwnerless)

	errs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, errs, 1)
	assert.Equal(t, "orphan", errs[0].ContextMap()["room_id"])
}

func TestService_AuthorizeBothOwnersIsOwnerless(t *testing.T) {
	f := newFixture()
	f.store.rooms["both"] = &models.Room{ID: "both", GroupID: strPtr("jazz"), UserID: &f.owner.ID}
	svc := NewService(f.store, f.users, f.owners, nil)

	_, err := svc.Authorize(context.Background(), "both", "abc12")
	assert.ErrorIs(t, err, ErrOwnerless)
}

func TestService_Resolve(t *testing.T) {
	f := newFixture(
		&models.Room{ID: "r1", GroupID: strPtr("jazz"), Alias: strPtr("jam")},
		&models.Room{ID: "r2", GroupID: strPtr("jazz")},
	)
	svc := NewService(f.store, f.users, f.owners, nil)
	ctx := context.Background()

	room, redirect, err := svc.Resolve(ctx, "r1", "", "")
	require.NoError(t, err)
	assert.True(t, redirect)
	assert.Equal(t, "/jam", room.PublicPath())

	room, redirect, err = svc.Resolve(ctx, "", "jam", "")
	require.NoError(t, err)
	assert.False(t, redirect)
	assert.Equal(t, "r1", room.ID)

	_, redirect, err = svc.Resolve(ctx, "r2", "", "")
	require.NoError(t, err)
	assert.False(t, redirect)

	_, _, err = svc.Resolve(ctx, "", "nope", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_ResolveOwnerlessLogsOnce(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	f := newFixture(&models.Room{ID: "orphan", Name: "Lost", Alias: strPtr("lost")})
	svc := NewService(f.store, f.users, f.owners, zap.New(core))
	ctx := context.Background()

	room, redirect, err := svc.Resolve(ctx, "orphan", "", "")
	assert.ErrorIs(t, err, ErrOwnerless)
	assert.Nil(t, room)
	assert.False(t, redirect)

	_, _, err = svc.Resolve(ctx, "", "lost", "abc12")
	assert.ErrorIs(t, err, ErrOwnerless)

	errs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, errs, 2)
	assert.Equal(t, "orphan", errs[0].ContextMap()["room_id"])
	assert.Equal(t, "abc12", errs[1].ContextMap()["crsid"])
}

func TestService_CheckAlias(t *testing.T) {
	f := newFixture(&models.Room{ID: "r1", GroupID: strPtr("jazz"), Alias: strPtr("jam")})
	svc := NewService(f.store, f.users, f.owners, nil)
	ctx := context.Background()

	msg, err := svc.CheckAlias(ctx, "r1", "jam")
	require.NoError(t, err)
	assert.Empty(t, msg, "a room keeps its own alias")

	msg, err = svc.CheckAlias(ctx, "r2", "jam")
	require.NoError(t, err)
	assert.Equal(t, aliasTakenMessage, msg)

	msg, err = svc.CheckAlias(ctx, "r2", "auth")
	require.NoError(t, err)
	assert.Contains(t, msg, "reserved")

	msg, err = svc.CheckAlias(ctx, "r2", "fresh-name")
	require.NoError(t, err)
	assert.Empty(t, msg)
}
