// Package storage opens the local SQLite store, applies migrations and
// hands out repositories bound either to the database or to a transaction.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"github.com/dmitrijs2005/marksync/internal/client/migrations"
	"github.com/dmitrijs2005/marksync/internal/client/repositories/bookmarks"
	"github.com/dmitrijs2005/marksync/internal/client/repositories/categories"
	"github.com/dmitrijs2005/marksync/internal/client/repositories/deletions"
	"github.com/dmitrijs2005/marksync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/marksync/internal/dbx"
	"github.com/dmitrijs2005/marksync/internal/filex"

	_ "modernc.org/sqlite"
)

// ErrNotConfigured is returned by operations on a Store that was never opened.
var ErrNotConfigured = errors.New("local store is not configured")

type Repositories struct {
	Bookmarks  bookmarks.Repository
	Categories categories.Repository
	Deletions  deletions.Repository
	Metadata   metadata.Repository
}

// NewRepositories binds every repository to db.
func NewRepositories(db dbx.DBTX) *Repositories {
	return &Repositories{
		Bookmarks:  bookmarks.NewSQLiteRepository(db),
		Categories: categories.NewSQLiteRepository(db),
		Deletions:  deletions.NewSQLiteRepository(db),
		Metadata:   metadata.NewSQLiteRepository(db),
	}
}

// Store owns the write connection of the local database.
type Store struct {
	db    *sql.DB
	path  string
	repos *Repositories
}

func dsn(path string, readOnly bool) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	if readOnly {
		q.Add("mode", "ro")
	} else {
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "foreign_keys(0)")
	}
	return "file:" + path + "?" + q.Encode()
}

// Open creates the database file if needed and migrates it.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, ErrNotConfigured
	}
	if err := filex.EnsureParentDir(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn(path, false))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrations.Apply(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, path: path, repos: NewRepositories(db)}, nil
}

func (s *Store) Path() string { return s.path }

// DB exposes the underlying handle for tests and diagnostics.
func (s *Store) DB() *sql.DB { return s.db }

// Repos returns repositories bound to the database handle (autocommit).
func (s *Store) Repos() *Repositories { return s.repos }

// WithTx runs fn with repositories bound to one transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, r *Repositories) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, NewRepositories(tx))
	})
}

// ClearSyncData removes every record, queued delete and the sync cursor.
// The auth token and encryption keys are kept.
func (s *Store) ClearSyncData(ctx context.Context) error {
	return s.WithTx(ctx, func(ctx context.Context, r *Repositories) error {
		if err := r.Bookmarks.DeleteAll(ctx); err != nil {
			return err
		}
		if err := r.Categories.DeleteAll(ctx); err != nil {
			return err
		}
		if err := r.Deletions.DeleteAll(ctx); err != nil {
			return err
		}
		if err := r.Metadata.Delete(ctx, metadata.KeySyncCursor); err != nil {
			return err
		}
		return r.Metadata.Delete(ctx, metadata.KeyLastSyncAt)
	})
}

// Snapshot is a read-only connection to the same database file, used by
// background readers so they never contend with the writer.
type Snapshot struct {
	db    *sql.DB
	Repos *Repositories
}

func (s *Store) OpenSnapshot(ctx context.Context) (*Snapshot, error) {
	db, err := sql.Open("sqlite", dsn(s.path, true))
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping snapshot: %w", err)
	}
	return &Snapshot{db: db, Repos: NewRepositories(db)}, nil
}

func (s *Snapshot) Close() error { return s.db.Close() }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
