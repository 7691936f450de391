package categories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/marksync/internal/client/models"
	"github.com/dmitrijs2005/marksync/internal/common"
	"github.com/dmitrijs2005/marksync/internal/dbx"
)

const columns = `id, name, icon, color, sort_order, bookmark_count, sync_version,
	is_encrypted, created_at, updated_at, synced, dirty`

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCategory(s scanner) (*models.Category, error) {
	var (
		c                    models.Category
		createdAt, updatedAt string
	)
	err := s.Scan(&c.ID, &c.Name, &c.Icon, &c.Color, &c.Order, &c.BookmarkCount,
		&c.SyncVersion, &c.IsEncrypted, &createdAt, &updatedAt, &c.Synced, &c.Dirty)
	if err != nil {
		return nil, err
	}
	if c.CreatedAt, err = dbx.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = dbx.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Category, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM categories WHERE id = ?`, id)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category %s: %w", id, err)
	}
	return c, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, c *models.Category) error {
	query := `INSERT INTO categories (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.Name, c.Icon, c.Color, c.Order, c.BookmarkCount, c.SyncVersion, c.IsEncrypted,
		dbx.FormatTime(c.CreatedAt), dbx.FormatTime(c.UpdatedAt), c.Synced, c.Dirty)
	if err != nil {
		return fmt.Errorf("failed to insert category %s: %w", c.ID, err)
	}
	return nil
}

// Update leaves bookmark_count alone; it is owned by RefreshBookmarkCounts.
func (r *SQLiteRepository) Update(ctx context.Context, c *models.Category) error {
	query := `UPDATE categories SET name = ?, icon = ?, color = ?, sort_order = ?,
		sync_version = ?, is_encrypted = ?, created_at = ?, updated_at = ?, synced = ?, dirty = ?
		WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query,
		c.Name, c.Icon, c.Color, c.Order, c.SyncVersion, c.IsEncrypted,
		dbx.FormatTime(c.CreatedAt), dbx.FormatTime(c.UpdatedAt), c.Synced, c.Dirty, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update category %s: %w", c.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("category %s: %w", c.ID, common.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete category %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) query(ctx context.Context, where string, a ...any) ([]*models.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM categories `+where, a...)
	if err != nil {
		return nil, fmt.Errorf("failed to select categories: %w", err)
	}
	defer rows.Close()

	var result []*models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Category, error) {
	return r.query(ctx, "ORDER BY sort_order, name, id")
}

func (r *SQLiteRepository) ListDirty(ctx context.Context) ([]*models.Category, error) {
	return r.query(ctx, "WHERE dirty = 1 ORDER BY sort_order, name, id")
}

func (r *SQLiteRepository) FindUnsyncedByName(ctx context.Context, name, excludeID string) (*models.Category, error) {
	list, err := r.query(ctx, "WHERE synced = 0 AND name = ? AND id <> ? ORDER BY created_at, id LIMIT 1", name, excludeID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (r *SQLiteRepository) RefreshBookmarkCounts(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE categories SET bookmark_count = (
			SELECT COUNT(*) FROM bookmarks WHERE bookmarks.category_id = categories.id
		)`)
	if err != nil {
		return fmt.Errorf("failed to refresh bookmark counts: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	n, err := dbx.Count(ctx, r.db, `SELECT COUNT(*) FROM categories`)
	if err != nil {
		return 0, fmt.Errorf("failed to count categories: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM categories`); err != nil {
		return fmt.Errorf("failed to delete categories: %w", err)
	}
	return nil
}
