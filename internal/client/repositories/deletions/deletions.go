// Package deletions keeps the queue of local deletions that still have to
// be sent to the server.
package deletions

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/marksync/internal/client/models"
	"github.com/dmitrijs2005/marksync/internal/dbx"
)

// Repository is the pending-delete queue.
type Repository interface {
	// Enqueue is idempotent per (kind, id).
	Enqueue(ctx context.Context, kind models.Kind, id string) error
	List(ctx context.Context) ([]models.PendingDelete, error)
	Remove(ctx context.Context, kind models.Kind, id string) error
	DeleteAll(ctx context.Context) error
}

type SQLiteRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, kind models.Kind, id string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pending_deletes (kind, id, created_at) VALUES (?, ?, ?) ON CONFLICT(kind, id) DO NOTHING`,
		string(kind), id, dbx.FormatTime(r.now()))
	if err != nil {
		return fmt.Errorf("failed to enqueue delete %s/%s: %w", kind, id, err)
	}
	return nil
}

// List returns categories last so bookmarks referencing them go first.
func (r *SQLiteRepository) List(ctx context.Context) ([]models.PendingDelete, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT kind, id, created_at FROM pending_deletes
		ORDER BY CASE kind WHEN 'bookmark' THEN 0 ELSE 1 END, created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending deletes: %w", err)
	}
	defer rows.Close()

	var result []models.PendingDelete
	for rows.Next() {
		var (
			d        models.PendingDelete
			kind, ts string
		)
		if err := rows.Scan(&kind, &d.ID, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan pending delete: %w", err)
		}
		d.Kind = models.Kind(kind)
		if d.CreatedAt, err = dbx.ParseTime(ts); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, kind models.Kind, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_deletes WHERE kind = ? AND id = ?`, string(kind), id)
	if err != nil {
		return fmt.Errorf("failed to remove pending delete %s/%s: %w", kind, id, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_deletes`); err != nil {
		return fmt.Errorf("failed to clear pending deletes: %w", err)
	}
	return nil
}
