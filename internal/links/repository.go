package links

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/srcf/lightbluetent/internal/models"
	"github.com/srcf/lightbluetent/pkg/database"
)

// Parent is the group or room a link hangs off.
type Parent struct {
	GroupID string
	RoomID  string
}

// GroupParent is the parent for a group's links.
func GroupParent(id string) Parent { return Parent{GroupID: id} }

// RoomParent is the parent for a room's links.
func RoomParent(id string) Parent { return Parent{RoomID: id} }

func (p Parent) column() string {
	if p.RoomID != "" {
		return "room_id"
	}
	return "group_id"
}

func (p Parent) id() string {
	if p.RoomID != "" {
		return p.RoomID
	}
	return p.GroupID
}

// lockQuery serialises structural changes to one parent's links on the parent row.
func (p Parent) lockQuery() string {
	if p.RoomID != "" {
		return `SELECT 1 FROM rooms WHERE id = $1 FOR UPDATE`
	}
	return `SELECT 1 FROM groups WHERE id = $1 FOR UPDATE`
}

const linkColumns = `id, group_id, room_id, name, url, type, display_order, created_at`

func scanLink(row pgx.Row) (models.Link, error) {
	var l models.Link
	err := row.Scan(&l.ID, &l.GroupID, &l.RoomID, &l.Name, &l.URL, &l.Type, &l.DisplayOrder, &l.CreatedAt)
	return l, err
}

// Repository persists links and keeps each parent's display order dense.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a links repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func list(ctx context.Context, q querier, p Parent) ([]models.Link, error) {
	sql := `SELECT ` + linkColumns + ` FROM links WHERE ` + p.column() + ` = $1 ORDER BY display_order, id`
	rows, err := q.Query(ctx, sql, p.id())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// List returns the parent's links in display order.
func (r *Repository) List(ctx context.Context, p Parent) ([]models.Link, error) {
	return list(ctx, r.pool, p)
}

func lockParent(ctx context.Context, tx pgx.Tx, p Parent) error {
	var one int
	if err := tx.QueryRow(ctx, p.lockQuery(), p.id()).Scan(&one); err != nil {
		return fmt.Errorf("lock %s %s: %w", p.column(), p.id(), err)
	}
	return nil
}

func writeOrders(ctx context.Context, tx pgx.Tx, changed []models.Link) error {
	if len(changed) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, l := range changed {
		batch.Queue(`UPDATE links SET display_order = $2 WHERE id = $1`, l.ID, l.DisplayOrder)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func normalize(ctx context.Context, tx pgx.Tx, p Parent) ([]models.Link, error) {
	siblings, err := list(ctx, tx, p)
	if err != nil {
		return nil, err
	}
	if err := writeOrders(ctx, tx, Renumber(siblings)); err != nil {
		return nil, fmt.Errorf("renumber links: %w", err)
	}
	return siblings, nil
}

// Normalize rewrites the parent's link orders to 0..n-1, keeping their relative order.
// Running it on an already dense list changes nothing.
func (r *Repository) Normalize(ctx context.Context, p Parent) ([]models.Link, error) {
	var out []models.Link
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockParent(ctx, tx, p); err != nil {
			return err
		}
		var err error
		out, err = normalize(ctx, tx, p)
		return err
	})
	return out, err
}

// Append adds a link after the parent's existing ones.
func (r *Repository) Append(ctx context.Context, p Parent, name, url string) (*models.Link, error) {
	var created models.Link
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockParent(ctx, tx, p); err != nil {
			return err
		}
		siblings, err := normalize(ctx, tx, p)
		if err != nil {
			return err
		}
		sql := `INSERT INTO links (` + p.column() + `, name, url, type, display_order)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING ` + linkColumns
		created, err = scanLink(tx.QueryRow(ctx, sql, p.id(), name, url, Classify(url), NextOrder(siblings)))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Update changes a link's name and URL in place, keeping its position.
func (r *Repository) Update(ctx context.Context, p Parent, id int64, name, url string) (*models.Link, error) {
	sql := `UPDATE links SET name = $3, url = $4, type = $5
		WHERE id = $1 AND ` + p.column() + ` = $2
		RETURNING ` + linkColumns
	l, err := scanLink(r.pool.QueryRow(ctx, sql, id, p.id(), name, url, Classify(url)))
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Delete removes a link and closes the gap it leaves. It returns pgx.ErrNoRows when the
// link does not belong to the parent.
func (r *Repository) Delete(ctx context.Context, p Parent, id int64) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockParent(ctx, tx, p); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM links WHERE id = $1 AND `+p.column()+` = $2`, id, p.id())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		_, err = normalize(ctx, tx, p)
		return err
	})
}

// Reorder sets the parent's link order to the sequence ids. Every id must belong to the
// parent and every sibling must be listed once.
func (r *Repository) Reorder(ctx context.Context, p Parent, ids []int64) ([]models.Link, error) {
	var out []models.Link
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockParent(ctx, tx, p); err != nil {
			return err
		}
		siblings, err := list(ctx, tx, p)
		if err != nil {
			return err
		}
		changed, err := ApplyOrder(siblings, ids)
		if err != nil {
			return err
		}
		if err := writeOrders(ctx, tx, changed); err != nil {
			return fmt.Errorf("reorder links: %w", err)
		}
		out = siblings
		return nil
	})
	return out, err
}
