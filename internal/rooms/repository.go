package rooms

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/srcf/lightbluetent/internal/models"
	"github.com/srcf/lightbluetent/pkg/database"
)

const roomColumns = `id, name, alias, description, group_id, user_id, authentication, password,
	attendee_pw, moderator_pw, welcome_text, banner_text, banner_color, mute_on_start,
	disable_private_chat, created_at, updated_at`

func scanRoom(row pgx.Row) (*models.Room, error) {
	var r models.Room
	err := row.Scan(&r.ID, &r.Name, &r.Alias, &r.Description, &r.GroupID, &r.UserID, &r.Authentication,
		&r.Password, &r.AttendeePW, &r.ModeratorPW, &r.WelcomeText, &r.BannerText, &r.BannerColor,
		&r.MuteOnStart, &r.DisablePrivateChat, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectRooms(rows pgx.Rows, err error) ([]models.Room, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *r)
	}
	return list, rows.Err()
}

func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// Repository handles room, session and room whitelist persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a rooms repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a room.
func (r *Repository) Create(ctx context.Context, room *models.Room) error {
	const q = `INSERT INTO rooms (id, name, alias, description, group_id, user_id, authentication, password,
			attendee_pw, moderator_pw)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, room.ID, room.Name, room.Alias, room.Description, room.GroupID, room.UserID,
		string(room.Authentication), room.Password, room.AttendeePW, room.ModeratorPW).
		Scan(&room.CreatedAt, &room.UpdatedAt)
	if c, ok := uniqueViolation(err); ok && c == "rooms_alias_key" {
		return ErrAliasTaken
	}
	return err
}

// Get returns a room by id.
func (r *Repository) Get(ctx context.Context, id string) (*models.Room, error) {
	return scanRoom(r.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
}

// GetByAlias returns a room by alias.
func (r *Repository) GetByAlias(ctx context.Context, alias string) (*models.Room, error) {
	return scanRoom(r.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE alias = $1`, alias))
}

// ListForGroup returns a group's rooms by name.
func (r *Repository) ListForGroup(ctx context.Context, groupID string) ([]models.Room, error) {
	return collectRooms(r.pool.Query(ctx, `SELECT `+roomColumns+` FROM rooms WHERE group_id = $1 ORDER BY name, id`, groupID))
}

// ListForGroups returns the rooms of several groups.
func (r *Repository) ListForGroups(ctx context.Context, groupIDs []string) ([]models.Room, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	return collectRooms(r.pool.Query(ctx, `SELECT `+roomColumns+` FROM rooms WHERE group_id = ANY($1) ORDER BY name, id`, groupIDs))
}

// ListForUser returns a user's personal rooms.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Room, error) {
	return collectRooms(r.pool.Query(ctx, `SELECT `+roomColumns+` FROM rooms WHERE user_id = $1 ORDER BY name, id`, userID))
}

// UpdateDetails saves name, alias, description, authentication and password, and when
// whitelist is set permits that CRSid in the same transaction. Concurrent edits are
// last-write-wins.
func (r *Repository) UpdateDetails(ctx context.Context, room *models.Room, whitelist string) error {
	const q = `UPDATE rooms SET name = $2, alias = $3, description = $4, authentication = $5, password = $6,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, q, room.ID, room.Name, room.Alias, room.Description,
			string(room.Authentication), room.Password).Scan(&room.UpdatedAt)
		if c, ok := uniqueViolation(err); ok && c == "rooms_alias_key" {
			return ErrAliasTaken
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil || whitelist == "" {
			return err
		}
		_, err = tx.Exec(ctx, `INSERT INTO room_whitelist (room_id, crsid) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			room.ID, whitelist)
		return err
	})
}

// UpdateFeatures saves the meeting display settings.
func (r *Repository) UpdateFeatures(ctx context.Context, id string, d models.DisplaySettings) error {
	const q = `UPDATE rooms SET welcome_text = $2, banner_text = $3, banner_color = $4, mute_on_start = $5,
			disable_private_chat = $6, updated_at = NOW()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, d.WelcomeText, d.BannerText, d.BannerColor, d.MuteOnStart, d.DisablePrivateChat)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPassword replaces the shared join password.
func (r *Repository) SetPassword(ctx context.Context, id, password string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE rooms SET password = $2, updated_at = NOW() WHERE id = $1`, id, password)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a room; sessions, links and whitelist entries cascade.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddSession stores a validated session.
func (r *Repository) AddSession(ctx context.Context, s *models.Session) error {
	const q = `INSERT INTO sessions (room_id, start_at, end_at, recur, limit_count, limit_until)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, s.RoomID, s.Start, s.End, string(s.Recur), s.Count, s.Until).
		Scan(&s.ID, &s.CreatedAt)
}

// Sessions returns a room's sessions by start time.
func (r *Repository) Sessions(ctx context.Context, roomID string) ([]models.Session, error) {
	const q = `SELECT id, room_id, start_at, end_at, recur, limit_count, limit_until, created_at
		FROM sessions WHERE room_id = $1 ORDER BY start_at, id`
	rows, err := r.pool.Query(ctx, q, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Session
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.ID, &s.RoomID, &s.Start, &s.End, &s.Recur, &s.Count, &s.Until, &s.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// DeleteSession removes one of a room's sessions.
func (r *Repository) DeleteSession(ctx context.Context, roomID string, sessionID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1 AND room_id = $2`, sessionID, roomID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveWhitelist withdraws crsid's permission.
func (r *Repository) RemoveWhitelist(ctx context.Context, roomID, crsid string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM room_whitelist WHERE room_id = $1 AND crsid = $2`, roomID, crsid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Whitelist lists the CRSids permitted to join a room.
func (r *Repository) Whitelist(ctx context.Context, roomID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT crsid FROM room_whitelist WHERE room_id = $1 ORDER BY crsid`, roomID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// RoomWhitelisted implements access.Whitelists.
func (r *Repository) RoomWhitelisted(ctx context.Context, roomID, crsid string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM room_whitelist WHERE room_id = $1 AND crsid = $2)`,
		roomID, crsid).Scan(&ok)
	return ok, err
}

// GroupWhitelisted implements access.Whitelists.
func (r *Repository) GroupWhitelisted(ctx context.Context, groupID, crsid string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM group_whitelist WHERE group_id = $1 AND crsid = $2)`,
		groupID, crsid).Scan(&ok)
	return ok, err
}
