package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/marksync/internal/client/models"
	"github.com/dmitrijs2005/marksync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/marksync/internal/client/storage"
	"github.com/dmitrijs2005/marksync/internal/logging"
)

func newFetcher(s *storage.Store, srv *fakeServer) *Fetcher {
	return NewFetcher(srv, s, NewReconciler(nil, logging.Nop()), logging.Nop())
}

type snapshot struct {
	Bookmarks  []*models.Bookmark
	Categories []*models.Category
	Cursor     string
}

func takeSnapshot(t *testing.T, s *storage.Store) snapshot {
	t.Helper()
	ctx := context.Background()
	b, err := s.Repos().Bookmarks.List(ctx)
	require.NoError(t, err)
	c, err := s.Repos().Categories.List(ctx)
	require.NoError(t, err)
	cur, err := s.Repos().Metadata.Get(ctx, metadata.KeySyncCursor)
	require.NoError(t, err)
	return snapshot{Bookmarks: b, Categories: c, Cursor: string(cur)}
}

func sampleDelta() *models.DeltaResponse {
	return &models.DeltaResponse{
		UpdatedCategories: models.RecordList[models.CategoryPayload]{
			{ID: "c1", Name: "Tech", UpdatedAt: models.NewTimestamp(t0)},
		},
		UpdatedBookmarks: models.RecordList[models.BookmarkPayload]{
			{ID: "b1", Title: "Go", CategoryID: strptr("c1"), Tags: []string{"lang"}, UpdatedAt: models.NewTimestamp(t0)},
			{ID: "b2", Title: "Rust", UpdatedAt: models.NewTimestamp(t0)},
		},
		DeletedIDs:        models.DeletedIDs{Bookmarks: []string{"gone"}},
		CurrentServerTime: json.RawMessage(`"2025-04-01T10:00:00Z"`),
	}
}

func TestApply_IsIdempotent(t *testing.T) {
	s := openStore(t)
	f := newFetcher(s, newFakeServer())
	ctx := context.Background()

	mustInsertBookmark(t, s, &models.Bookmark{ID: "gone", Synced: true})

	apply := func() {
		require.NoError(t, s.WithTx(ctx, func(ctx context.Context, r *storage.Repositories) error {
			_, err := f.Apply(ctx, r, sampleDelta())
			return err
		}))
	}

	apply()
	once := takeSnapshot(t, s)
	apply()
	twice := takeSnapshot(t, s)

	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("second application changed state (-once +twice):\n%s", diff)
	}
	assert.Equal(t, []string{"b1", "b2"}, bookmarkIDsIn(t, s))
	assert.Equal(t, `"2025-04-01T10:00:00Z"`, once.Cursor)
}

func TestApply_DeleteBeforeInsert(t *testing.T) {
	s := openStore(t)
	f := newFetcher(s, newFakeServer())
	ctx := context.Background()

	mustInsertBookmark(t, s, &models.Bookmark{ID: "B5", Title: "old", Synced: true})
	require.NoError(t, s.Repos().Deletions.Enqueue(ctx, models.KindBookmark, "B5"))

	delta := &models.DeltaResponse{
		UpdatedBookmarks: models.RecordList[models.BookmarkPayload]{{ID: "B5", Title: "recreated"}},
		DeletedIDs:       models.DeletedIDs{Bookmarks: []string{"B5"}},
	}
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, r *storage.Repositories) error {
		res, err := f.Apply(ctx, r, delta)
		assert.Equal(t, 1, res.Deleted)
		assert.Equal(t, 1, res.Bookmarks)
		return err
	}))

	got, err := s.Repos().Bookmarks.Get(ctx, "B5")
	require.NoError(t, err)
	assert.Equal(t, "recreated", got.Title)

	queued, err := s.Repos().Deletions.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, queued, "tombstone clears the queued delete")
}

func TestDownload_AdvancesCursorAndSendsIt(t *testing.T) {
	s := openStore(t)
	srv := newFakeServer()
	srv.deltas = []*models.DeltaResponse{
		{CurrentServerTime: json.RawMessage(`1714979289`)},
		{CurrentServerTime: json.RawMessage(`null`)},
	}
	f := newFetcher(s, srv)
	ctx := context.Background()

	res, err := f.Download(ctx)
	require.NoError(t, err)
	assert.True(t, res.FullSync)

	res, err = f.Download(ctx)
	require.NoError(t, err)
	assert.False(t, res.FullSync)

	require.Len(t, srv.cursors, 2)
	assert.Nil(t, srv.cursors[0])
	assert.Equal(t, `1714979289`, string(srv.cursors[1]))

	cur, err := f.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, `1714979289`, string(cur), "a null server time keeps the cursor")
}

func TestDownload_FailedApplyKeepsCursor(t *testing.T) {
	s := openStore(t)
	srv := newFakeServer()
	srv.deltas = []*models.DeltaResponse{{
		UpdatedBookmarks:  models.RecordList[models.BookmarkPayload]{{ID: "ok"}, {Title: "missing id"}},
		CurrentServerTime: json.RawMessage(`"T2"`),
	}}
	f := newFetcher(s, srv)
	ctx := context.Background()

	require.NoError(t, s.Repos().Metadata.Set(ctx, metadata.KeySyncCursor, []byte(`"T1"`)))

	_, err := f.Download(ctx)
	require.Error(t, err)

	cur, err := f.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, `"T1"`, string(cur))
	assert.Empty(t, bookmarkIDsIn(t, s), "partial delta is rolled back")
}

func TestDownload_TransportError(t *testing.T) {
	s := openStore(t)
	srv := newFakeServer()
	boom := errors.New("connection reset")
	srv.deltaErrs = []error{boom}

	_, err := newFetcher(s, srv).Download(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestDownload_EmptyDeltaOnlyAdvancesCursor(t *testing.T) {
	s := openStore(t)
	srv := newFakeServer()
	srv.deltas = []*models.DeltaResponse{{CurrentServerTime: json.RawMessage(`"T2"`)}}
	ctx := context.Background()

	var buf bytes.Buffer
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	f := NewFetcher(srv, s, NewReconciler(nil, log), log)

	res, err := f.Download(ctx)
	require.NoError(t, err)
	assert.Equal(t, DownloadResult{FullSync: true}, res)
	assert.Contains(t, buf.String(), "delta empty")
	assert.NotContains(t, buf.String(), "delta applied")

	v, err := s.Repos().Metadata.Get(ctx, metadata.KeySyncCursor)
	require.NoError(t, err)
	assert.JSONEq(t, `"T2"`, string(v))
}
