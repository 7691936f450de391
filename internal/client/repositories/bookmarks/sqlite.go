package bookmarks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/marksync/internal/client/models"
	"github.com/dmitrijs2005/marksync/internal/common"
	"github.com/dmitrijs2005/marksync/internal/dbx"
)

const columns = `id, title, url, note, source, is_read, is_favorite, tags, category_id,
	image_urls, file_url, pending_images, pending_file, sync_version, is_encrypted,
	created_at, updated_at, synced, dirty`

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

func scanBookmark(s scanner) (*models.Bookmark, error) {
	var (
		b                     models.Bookmark
		tags, images, pending string
		category              sql.NullString
		createdAt, updatedAt  string
	)
	err := s.Scan(&b.ID, &b.Title, &b.URL, &b.Note, &b.Source, &b.IsRead, &b.IsFavorite,
		&tags, &category, &images, &b.FileURL, &pending, &b.PendingFile,
		&b.SyncVersion, &b.IsEncrypted, &createdAt, &updatedAt, &b.Synced, &b.Dirty)
	if err != nil {
		return nil, err
	}
	b.CategoryID = category.String

	if b.Tags, err = dbx.DecodeStrings(tags); err != nil {
		return nil, err
	}
	if b.ImageURLs, err = dbx.DecodeStrings(images); err != nil {
		return nil, err
	}
	if b.PendingImages, err = dbx.DecodeStrings(pending); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = dbx.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if b.UpdatedAt, err = dbx.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// args returns the column values in the order of columns.
func args(b *models.Bookmark) ([]any, error) {
	tags, err := dbx.EncodeStrings(b.Tags)
	if err != nil {
		return nil, err
	}
	images, err := dbx.EncodeStrings(b.ImageURLs)
	if err != nil {
		return nil, err
	}
	pending, err := dbx.EncodeStrings(b.PendingImages)
	if err != nil {
		return nil, err
	}
	return []any{
		b.ID, b.Title, b.URL, b.Note, b.Source, b.IsRead, b.IsFavorite,
		tags, dbx.NullString(b.CategoryID), images, b.FileURL, pending, b.PendingFile,
		b.SyncVersion, b.IsEncrypted, dbx.FormatTime(b.CreatedAt), dbx.FormatTime(b.UpdatedAt),
		b.Synced, b.Dirty,
	}, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Bookmark, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM bookmarks WHERE id = ?`, id)
	b, err := scanBookmark(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bookmark %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bookmark %s: %w", id, err)
	}
	return b, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, b *models.Bookmark) error {
	a, err := args(b)
	if err != nil {
		return err
	}
	query := `INSERT INTO bookmarks (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, a...); err != nil {
		return fmt.Errorf("failed to insert bookmark %s: %w", b.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, b *models.Bookmark) error {
	a, err := args(b)
	if err != nil {
		return err
	}
	// id moves to the end for the WHERE clause
	a = append(a[1:], b.ID)
	query := `UPDATE bookmarks SET title = ?, url = ?, note = ?, source = ?, is_read = ?,
		is_favorite = ?, tags = ?, category_id = ?, image_urls = ?, file_url = ?,
		pending_images = ?, pending_file = ?, sync_version = ?, is_encrypted = ?,
		created_at = ?, updated_at = ?, synced = ?, dirty = ?
		WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, a...)
	if err != nil {
		return fmt.Errorf("failed to update bookmark %s: %w", b.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("bookmark %s: %w", b.ID, common.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete bookmark %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) query(ctx context.Context, where string, a ...any) ([]*models.Bookmark, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM bookmarks `+where+` ORDER BY created_at, id`, a...)
	if err != nil {
		return nil, fmt.Errorf("failed to select bookmarks: %w", err)
	}
	defer rows.Close()

	var result []*models.Bookmark
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bookmark: %w", err)
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Bookmark, error) {
	return r.query(ctx, "")
}

func (r *SQLiteRepository) ListDirty(ctx context.Context) ([]*models.Bookmark, error) {
	return r.query(ctx, "WHERE dirty = 1")
}

func (r *SQLiteRepository) ListByCategory(ctx context.Context, categoryID string) ([]*models.Bookmark, error) {
	return r.query(ctx, "WHERE category_id = ?", categoryID)
}

func (r *SQLiteRepository) exec(ctx context.Context, op, query string, a ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, a...)
	if err != nil {
		return 0, fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) RemapCategory(ctx context.Context, oldID, newID string) (int64, error) {
	return r.exec(ctx, "remap category",
		`UPDATE bookmarks SET category_id = ?, dirty = 1 WHERE category_id = ?`, newID, oldID)
}

func (r *SQLiteRepository) ClearCategory(ctx context.Context, categoryID string) (int64, error) {
	return r.exec(ctx, "clear category",
		`UPDATE bookmarks SET category_id = NULL, dirty = 1 WHERE category_id = ?`, categoryID)
}

func (r *SQLiteRepository) ClearOrphaned(ctx context.Context) (int64, error) {
	return r.exec(ctx, "clear orphaned categories", `
		UPDATE bookmarks SET category_id = NULL, dirty = 1
		WHERE category_id IS NOT NULL
		  AND category_id NOT IN (SELECT id FROM categories)`)
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	n, err := dbx.Count(ctx, r.db, `SELECT COUNT(*) FROM bookmarks`)
	if err != nil {
		return 0, fmt.Errorf("failed to count bookmarks: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM bookmarks`); err != nil {
		return fmt.Errorf("failed to delete bookmarks: %w", err)
	}
	return nil
}
