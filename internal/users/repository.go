package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/srcf/lightbluetent/internal/models"
)

var (
	ErrAlreadyRegistered = errors.New("users: already registered")
	ErrEmailTaken        = errors.New("users: email already registered")
)

const userColumns = `id, crsid, email, full_name, role_id, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.CRSid, &u.Email, &u.FullName, &u.RoleID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Repository handles user persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a users repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByCRSid returns the user for crsid, or nil when there is none.
func (r *Repository) FindByCRSid(ctx context.Context, crsid string) (*models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE crsid = $1`, crsid))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// UpsertVisitor returns the user for crsid, creating a visitor record first if needed.
// created reports whether a record was inserted.
func (r *Repository) UpsertVisitor(ctx context.Context, crsid string) (*models.User, bool, error) {
	const q = `INSERT INTO users (crsid, role_id)
		SELECT $1, id FROM roles WHERE name = $2
		ON CONFLICT (crsid) DO NOTHING
		RETURNING ` + userColumns
	u, err := scanUser(r.pool.QueryRow(ctx, q, crsid, string(models.RoleVisitor)))
	if err == nil {
		return u, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}
	u, err = r.FindByCRSid(ctx, crsid)
	if err != nil {
		return nil, false, err
	}
	if u == nil {
		return nil, false, errors.New("users: visitor role missing")
	}
	return u, false, nil
}

// Register records name and email for crsid with the user role. A visitor record is
// upgraded in place.
func (r *Repository) Register(ctx context.Context, crsid, fullName, email string) (*models.User, error) {
	const q = `INSERT INTO users (crsid, email, full_name, role_id)
		SELECT $1, $2, $3, id FROM roles WHERE name = $4
		ON CONFLICT (crsid) DO UPDATE
			SET email = EXCLUDED.email, full_name = EXCLUDED.full_name,
				role_id = EXCLUDED.role_id, updated_at = NOW()
			WHERE users.email IS NULL
		RETURNING ` + userColumns
	u, err := scanUser(r.pool.QueryRow(ctx, q, crsid, email, fullName, string(models.RoleUser)))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrAlreadyRegistered
	case isUniqueViolation(err):
		return nil, ErrEmailTaken
	}
	return u, err
}

// UpdateProfile sets the user's name and/or email; nil leaves a field unchanged.
func (r *Repository) UpdateProfile(ctx context.Context, crsid string, fullName, email *string) (*models.User, error) {
	const q = `UPDATE users SET
			full_name = COALESCE($2, full_name),
			email = COALESCE($3, email),
			updated_at = NOW()
		WHERE crsid = $1
		RETURNING ` + userColumns
	u, err := scanUser(r.pool.QueryRow(ctx, q, crsid, fullName, email))
	if isUniqueViolation(err) {
		return nil, ErrEmailTaken
	}
	return u, err
}

// Capabilities returns the permissions of crsid's role; nil when there is no record.
func (r *Repository) Capabilities(ctx context.Context, crsid string) (models.Capabilities, error) {
	const q = `SELECT rp.permission FROM users u
		JOIN role_permissions rp ON rp.role_id = u.role_id
		WHERE u.crsid = $1`
	rows, err := r.pool.Query(ctx, q, crsid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []models.Permission
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, models.Permission(p))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(perms) == 0 {
		return nil, nil
	}
	return models.NewCapabilities(perms...), nil
}

// SetRole moves crsid to the named role. It is used by the admin CLI.
func (r *Repository) SetRole(ctx context.Context, crsid string, role models.RoleName) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET role_id = (SELECT id FROM roles WHERE name = $2), updated_at = NOW()
		WHERE crsid = $1`, crsid, string(role))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Setting reads a portal setting; ok is false when it is unset.
func (r *Repository) Setting(ctx context.Context, name string) (value string, ok bool, err error) {
	err = r.pool.QueryRow(ctx, `SELECT value FROM settings WHERE name = $1`, name).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	return value, err == nil, err
}

// PutSetting stores a portal setting.
func (r *Repository) PutSetting(ctx context.Context, name, value string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO settings (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, name, value)
	return err
}
