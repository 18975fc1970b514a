// Package access decides whether an attendee may be handed a room's join URL.
package access

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/srcf/lightbluetent/internal/models"
	"go.uber.org/zap"
)

var (
	ErrNameTooShort      = errors.New("access: name too short")
	ErrIncorrectPassword = errors.New("access: incorrect password")
	ErrSignInRequired    = errors.New("access: sign in required")
	ErrNotWhitelisted    = errors.New("access: not whitelisted")
)

var messages = map[error]string{
	ErrNameTooShort:      "That name is too short.",
	ErrIncorrectPassword: "Incorrect password.",
	ErrSignInRequired:    "You must sign in to join this room.",
	ErrNotWhitelisted:    "You are not on the list of people allowed to join this room.",
}

// Denial is a refused join attempt, scoped to the form field at fault.
type Denial struct {
	Field string
	Err   error
}

func (d *Denial) Error() string { return d.Err.Error() }

func (d *Denial) Unwrap() error { return d.Err }

// Message is the text shown next to the offending field.
func (d *Denial) Message() string {
	if m, ok := messages[d.Err]; ok {
		return m
	}
	return d.Err.Error()
}

// Fields renders the denial for a form redisplay.
func (d *Denial) Fields() map[string]string {
	return map[string]string{d.Field: d.Message()}
}

// Whitelists answers membership of room and group allow-lists.
type Whitelists interface {
	RoomWhitelisted(ctx context.Context, roomID, crsid string) (bool, error)
	GroupWhitelisted(ctx context.Context, groupID, crsid string) (bool, error)
}

// Visitors provisions a local identity for a signed-in principal.
type Visitors interface {
	UpsertVisitor(ctx context.Context, crsid string) (*models.User, bool, error)
}

// Request is one join attempt.
type Request struct {
	Room      *models.Room
	Name      string
	Password  string
	Principal string // verified sign-on identity, empty when anonymous
}

// Gate applies a room's authentication mode to join attempts.
type Gate struct {
	whitelists Whitelists
	visitors   Visitors
	logger     *zap.Logger
}

// NewGate creates a Gate.
func NewGate(whitelists Whitelists, visitors Visitors, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{whitelists: whitelists, visitors: visitors, logger: logger}
}

// Authorize returns nil when req may join, a *Denial when it may not, or another error
// when membership could not be checked.
func (g *Gate) Authorize(ctx context.Context, req Request) error {
	if utf8.RuneCountInString(strings.TrimSpace(req.Name)) <= 1 {
		return &Denial{Field: "name", Err: ErrNameTooShort}
	}

	room := req.Room
	switch room.Authentication {
	case models.AuthPublic:
		return nil

	case models.AuthPassword:
		if room.Password == nil || subtle.ConstantTimeCompare([]byte(req.Password), []byte(*room.Password)) != 1 {
			return &Denial{Field: "password", Err: ErrIncorrectPassword}
		}
		return nil

	case models.AuthRaven:
		if req.Principal == "" {
			return &Denial{Field: "principal", Err: ErrSignInRequired}
		}
		return nil

	case models.AuthWhitelist:
		if req.Principal == "" {
			return &Denial{Field: "principal", Err: ErrSignInRequired}
		}
		ok, err := g.whitelisted(ctx, room, req.Principal)
		if err != nil {
			return err
		}
		if !ok {
			g.logger.Info("join refused, not whitelisted",
				zap.String("room_id", room.ID), zap.String("crsid", req.Principal))
			return &Denial{Field: "principal", Err: ErrNotWhitelisted}
		}
		return nil
	}
	return fmt.Errorf("room %s: unknown authentication mode %q", room.ID, room.Authentication)
}

func (g *Gate) whitelisted(ctx context.Context, room *models.Room, crsid string) (bool, error) {
	ok, err := g.whitelists.RoomWhitelisted(ctx, room.ID, crsid)
	if err != nil {
		return false, fmt.Errorf("check room whitelist: %w", err)
	}
	if ok || room.GroupID == nil {
		return ok, nil
	}
	ok, err = g.whitelists.GroupWhitelisted(ctx, *room.GroupID, crsid)
	if err != nil {
		return false, fmt.Errorf("check group whitelist: %w", err)
	}
	return ok, nil
}

// ResolveVisitor returns the local user for principal, creating a visitor record the
// first time the principal is seen.
func (g *Gate) ResolveVisitor(ctx context.Context, principal string) (*models.User, error) {
	if principal == "" {
		return nil, nil
	}
	u, created, err := g.visitors.UpsertVisitor(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("resolve visitor %s: %w", principal, err)
	}
	if created {
		g.logger.Info("registered visitor", zap.String("crsid", principal))
	}
	return u, nil
}
