package assets

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/srcf/lightbluetent/internal/models"
	"github.com/srcf/lightbluetent/pkg/database"
)

// Repository is the assets index.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an assets repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns the variants stored under key.
func (r *Repository) List(ctx context.Context, key string) ([]models.Asset, error) {
	const q = `SELECT id, key, variant, path, created_at FROM assets WHERE key = $1 ORDER BY variant`
	rows, err := r.pool.Query(ctx, q, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Asset
	for rows.Next() {
		var a models.Asset
		if err := rows.Scan(&a.ID, &a.Key, &a.Variant, &a.Path, &a.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// Replace swaps key's rows for variants in one transaction.
func (r *Repository) Replace(ctx context.Context, key string, variants []models.Asset) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM assets WHERE key = $1`, key); err != nil {
			return err
		}
		for i := range variants {
			const q = `INSERT INTO assets (key, variant, path) VALUES ($1, $2, $3) RETURNING id, created_at`
			a := &variants[i]
			if err := tx.QueryRow(ctx, q, key, a.Variant, a.Path).Scan(&a.ID, &a.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteKey removes every row for key.
func (r *Repository) DeleteKey(ctx context.Context, key string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM assets WHERE key = $1`, key)
	return err
}
