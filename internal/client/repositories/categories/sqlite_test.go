package categories

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/marksync/internal/client/migrations"
	"github.com/dmitrijs2005/marksync/internal/client/models"
	"github.com/dmitrijs2005/marksync/internal/common"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "categories.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Apply(context.Background(), db))
	return db
}

func TestInsertGetUpdate(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	ts := time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC)
	c := &models.Category{
		ID: "c1", Name: "Work", Icon: "briefcase", Color: "#112233", Order: 2,
		SyncVersion: 1, CreatedAt: ts, UpdatedAt: ts, Dirty: true,
	}
	require.NoError(t, r.Insert(ctx, c))

	got, err := r.Get(ctx, "c1")
	require.NoError(t, err)
	if diff := cmp.Diff(c, got); diff != "" {
		t.Fatalf("category mismatch (-want +got):\n%s", diff)
	}

	c.Name = "Job"
	c.Synced = true
	c.Dirty = false
	require.NoError(t, r.Update(ctx, c))
	got, err = r.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Job", got.Name)
	assert.True(t, got.Synced)

	_, err = r.Get(ctx, "nope")
	require.ErrorIs(t, err, common.ErrNotFound)
	require.ErrorIs(t, r.Update(ctx, &models.Category{ID: "nope"}), common.ErrNotFound)
}

func TestListOrderingAndDirty(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, &models.Category{ID: "b", Name: "B", Order: 1}))
	require.NoError(t, r.Insert(ctx, &models.Category{ID: "a", Name: "A", Order: 1, Dirty: true}))
	require.NoError(t, r.Insert(ctx, &models.Category{ID: "z", Name: "Z", Order: 0}))

	list, err := r.List(ctx)
	require.NoError(t, err)
	var ids []string
	for _, c := range list {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"z", "a", "b"}, ids)

	dirty, err := r.ListDirty(ctx)
	require.NoError(t, err)
	require.Len(t, dirty, 1)
	assert.Equal(t, "a", dirty[0].ID)
}

func TestFindUnsyncedByName(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, &models.Category{ID: "synced", Name: "News", Synced: true}))
	require.NoError(t, r.Insert(ctx, &models.Category{ID: "local", Name: "News"}))

	got, err := r.FindUnsyncedByName(ctx, "News", "srv-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "local", got.ID)

	got, err = r.FindUnsyncedByName(ctx, "News", "local")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = r.FindUnsyncedByName(ctx, "Other", "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRefreshBookmarkCounts(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, &models.Category{ID: "c1", Name: "One"}))
	require.NoError(t, r.Insert(ctx, &models.Category{ID: "c2", Name: "Two", BookmarkCount: 9}))
	_, err := db.Exec(`INSERT INTO bookmarks (id, url, category_id) VALUES ('b1','u','c1'), ('b2','u','c1'), ('b3','u',NULL)`)
	require.NoError(t, err)

	require.NoError(t, r.RefreshBookmarkCounts(ctx))

	c1, err := r.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, c1.BookmarkCount)
	c2, err := r.Get(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, 0, c2.BookmarkCount)
}

func TestDeleteAndDeleteAll(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, &models.Category{ID: "c1"}))
	require.NoError(t, r.Insert(ctx, &models.Category{ID: "c2"}))
	require.NoError(t, r.Delete(ctx, "c1"))

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, r.DeleteAll(ctx))
	n, err = r.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestErrorsAreWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("disk full")
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO categories`).WillReturnError(boom)
	require.ErrorIs(t, r.Insert(ctx, &models.Category{ID: "c1"}), boom)

	mock.ExpectExec(`UPDATE categories SET bookmark_count`).WillReturnError(boom)
	require.ErrorContains(t, r.RefreshBookmarkCounts(ctx), "failed to refresh bookmark counts")

	mock.ExpectQuery(`SELECT .* FROM categories`).WillReturnError(boom)
	_, err = r.List(ctx)
	require.ErrorContains(t, err, "failed to select categories")

	require.NoError(t, mock.ExpectationsWereMet())
}
