// Package rooms manages rooms: ownership, settings, schedules and the public join page.
package rooms

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/srcf/lightbluetent/internal/models"
)

var (
	ErrNotFound   = errors.New("rooms: not found")
	ErrForbidden  = errors.New("rooms: forbidden")
	ErrOwnerless  = errors.New("rooms: room has neither a group nor a user owner")
	ErrAliasTaken = errors.New("rooms: alias already in use")
)

// Store is the persistence the rooms service needs.
type Store interface {
	Create(ctx context.Context, room *models.Room) error
	Get(ctx context.Context, id string) (*models.Room, error)
	GetByAlias(ctx context.Context, alias string) (*models.Room, error)
	ListForGroup(ctx context.Context, groupID string) ([]models.Room, error)
	UpdateDetails(ctx context.Context, room *models.Room, whitelist string) error
	UpdateFeatures(ctx context.Context, id string, d models.DisplaySettings) error
	SetPassword(ctx context.Context, id, password string) error
	Delete(ctx context.Context, id string) error
	AddSession(ctx context.Context, s *models.Session) error
	Sessions(ctx context.Context, roomID string) ([]models.Session, error)
	DeleteSession(ctx context.Context, roomID string, sessionID int64) error
	RemoveWhitelist(ctx context.Context, roomID, crsid string) error
	Whitelist(ctx context.Context, roomID string) ([]string, error)
}

// Users finds local user records; nil without error when absent.
type Users interface {
	FindByCRSid(ctx context.Context, crsid string) (*models.User, error)
}

// GroupOwners answers group ownership.
type GroupOwners interface {
	IsOwner(ctx context.Context, groupID string, userID uuid.UUID) (bool, error)
}

// Service applies ownership rules to room operations.
type Service struct {
	store  Store
	users  Users
	owners GroupOwners
	logger *zap.Logger
}

// NewService creates a rooms service.
func NewService(store Store, users Users, owners GroupOwners, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, users: users, owners: owners, logger: logger}
}

// Managed is a room together with the user allowed to manage it.
type Managed struct {
	Room *models.Room
	User *models.User
}

// Authorize loads room id for management by crsid. A missing room is ErrNotFound; a room
// the principal does not own is ErrForbidden. A room with neither (or both) owners is a
// data fault: it is logged at error level and reported as ErrOwnerless.
func (s *Service) Authorize(ctx context.Context, id, crsid string) (*Managed, error) {
	room, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !room.HasOwner() {
		return nil, s.ownerless(room, crsid)
	}
	if crsid == "" {
		return nil, ErrForbidden
	}
	user, err := s.users.FindByCRSid(ctx, crsid)
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", crsid, err)
	}
	if user == nil {
		return nil, ErrForbidden
	}
	if room.GroupID != nil {
		ok, err := s.owners.IsOwner(ctx, *room.GroupID, user.ID)
		if err != nil {
			return nil, fmt.Errorf("check owner of group %s: %w", *room.GroupID, err)
		}
		if !ok {
			return nil, ErrForbidden
		}
		return &Managed{Room: room, User: user}, nil
	}
	if *room.UserID != user.ID {
		return nil, ErrForbidden
	}
	return &Managed{Room: room, User: user}, nil
}

func (s *Service) ownerless(room *models.Room, crsid string) error {
	s.logger.Error("room has no single owner",
		zap.String("room_id", room.ID), zap.String("room_name", room.Name), zap.String("crsid", crsid))
	return ErrOwnerless
}

// Resolve finds a room for its public pages by alias or by id. redirect is set when the
// room was reached by id but has an alias. Ownerless rooms are refused as in Authorize.
func (s *Service) Resolve(ctx context.Context, id, alias, crsid string) (room *models.Room, redirect bool, err error) {
	if alias != "" {
		room, err = s.store.GetByAlias(ctx, alias)
	} else {
		room, err = s.store.Get(ctx, id)
	}
	if err != nil {
		return nil, false, err
	}
	if !room.HasOwner() {
		return nil, false, s.ownerless(room, crsid)
	}
	return room, alias == "" && room.Alias != nil && *room.Alias != "", nil
}

// CheckAlias reports a problem with alias for room id, or "" when it may be used.
func (s *Service) CheckAlias(ctx context.Context, id, alias string) (string, error) {
	if msg := ValidateAlias(alias); msg != "" {
		return msg, nil
	}
	other, err := s.store.GetByAlias(ctx, alias)
	switch {
	case errors.Is(err, ErrNotFound):
		return "", nil
	case err != nil:
		return "", err
	case other.ID != id:
		return aliasTakenMessage, nil
	}
	return "", nil
}
