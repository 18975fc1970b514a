package groups

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

const groupColumns = `g.id, g.name, g.description, g.website, g.logo, g.meeting_key, g.attendee_pw, g.moderator_pw,
	g.welcome_text, g.banner_text, g.banner_color, g.mute_on_start, g.disable_private_chat, g.created_at, g.updated_at`

func scanGroup(row pgx.Row) (*models.Group, error) {
	var g models.Group
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.Website, &g.Logo, &g.MeetingKey, &g.AttendeePW, &g.ModeratorPW,
		&g.WelcomeText, &g.BannerText, &g.BannerColor, &g.MuteOnStart, &g.DisablePrivateChat, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func collectGroups(rows pgx.Rows, err error) ([]models.Group, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *g)
	}
	return list, rows.Err()
}

// Repository handles group, group_owners and group_whitelist persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a groups repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a group and makes ownerID its first owner.
func (r *Repository) Create(ctx context.Context, g *models.Group, ownerID uuid.UUID) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const q = `INSERT INTO groups (id, name, description, website, meeting_key, attendee_pw, moderator_pw)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at, updated_at`
		err := tx.QueryRow(ctx, q, g.ID, g.Name, g.Description, g.Website, g.MeetingKey, g.AttendeePW, g.ModeratorPW).
			Scan(&g.CreatedAt, &g.UpdatedAt)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "groups_pkey" {
			return ErrShortNameTaken
		}
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `INSERT INTO group_owners (group_id, user_id) VALUES ($1, $2)`, g.ID, ownerID)
		return err
	})
}

// Get returns a group by id.
func (r *Repository) Get(ctx context.Context, id string) (*models.Group, error) {
	return scanGroup(r.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups g WHERE g.id = $1`, id))
}

// List returns every group by name.
func (r *Repository) List(ctx context.Context) ([]models.Group, error) {
	return collectGroups(r.pool.Query(ctx, `SELECT `+groupColumns+` FROM groups g ORDER BY g.name, g.id`))
}

// ListForUser returns the groups userID owns.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Group, error) {
	const q = `SELECT ` + groupColumns + `
		FROM groups g
		INNER JOIN group_owners o ON o.group_id = g.id
		WHERE o.user_id = $1
		ORDER BY g.name, g.id`
	return collectGroups(r.pool.Query(ctx, q, userID))
}

// IsOwner reports whether userID owns groupID.
func (r *Repository) IsOwner(ctx context.Context, groupID string, userID uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM group_owners WHERE group_id = $1 AND user_id = $2)`,
		groupID, userID).Scan(&ok)
	return ok, err
}

// AddOwner makes userID an owner of groupID. Adding twice is harmless.
func (r *Repository) AddOwner(ctx context.Context, groupID string, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO group_owners (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		groupID, userID)
	return err
}

// RemoveOwner withdraws userID's ownership. The last owner cannot be removed.
func (r *Repository) RemoveOwner(ctx context.Context, groupID string, userID uuid.UUID) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var n int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM group_owners WHERE group_id = $1`, groupID).Scan(&n); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM group_owners WHERE group_id = $1 AND user_id = $2`, groupID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if n <= 1 {
			return ErrLastOwner
		}
		return nil
	})
}

// Owners lists a group's owners.
func (r *Repository) Owners(ctx context.Context, groupID string) ([]models.UserPublic, error) {
	const q = `SELECT u.id, u.crsid, COALESCE(u.full_name, u.crsid)
		FROM group_owners o
		INNER JOIN users u ON u.id = o.user_id
		WHERE o.group_id = $1
		ORDER BY o.added_at`
	rows, err := r.pool.Query(ctx, q, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.UserPublic
	for rows.Next() {
		var u models.UserPublic
		if err := rows.Scan(&u.ID, &u.CRSid, &u.FullName); err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

// Update saves the editable fields. Concurrent edits are last-write-wins.
func (r *Repository) Update(ctx context.Context, g *models.Group) error {
	const q = `UPDATE groups SET name = $2, description = $3, website = $4, welcome_text = $5, banner_text = $6,
			banner_color = $7, mute_on_start = $8, disable_private_chat = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	err := r.pool.QueryRow(ctx, q, g.ID, g.Name, g.Description, g.Website, g.WelcomeText, g.BannerText,
		g.BannerColor, g.MuteOnStart, g.DisablePrivateChat).Scan(&g.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// SetLogo records the asset key of the group's logo; "" clears it.
func (r *Repository) SetLogo(ctx context.Context, id, key string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE groups SET logo = $2, updated_at = NOW() WHERE id = $1`, id, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a group; its rooms, links, owners and whitelist cascade.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddWhitelist permits crsid to join the group's whitelisted rooms.
func (r *Repository) AddWhitelist(ctx context.Context, groupID, crsid string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO group_whitelist (group_id, crsid) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		groupID, crsid)
	return err
}

// RemoveWhitelist withdraws crsid's group-wide permission.
func (r *Repository) RemoveWhitelist(ctx context.Context, groupID, crsid string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM group_whitelist WHERE group_id = $1 AND crsid = $2`, groupID, crsid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Whitelist lists the group-wide permitted CRSids.
func (r *Repository) Whitelist(ctx context.Context, groupID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT crsid FROM group_whitelist WHERE group_id = $1 ORDER BY crsid`, groupID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
