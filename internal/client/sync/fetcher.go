package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/marksync/internal/client/client"
	"github.com/dmitrijs2005/marksync/internal/client/models"
	"github.com/dmitrijs2005/marksync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/marksync/internal/client/storage"
	"github.com/dmitrijs2005/marksync/internal/logging"
)

// Fetcher downloads and applies deltas.
type Fetcher struct {
	client client.Client
	store  *storage.Store
	rec    *Reconciler
	log    logging.Logger
}

func NewFetcher(c client.Client, store *storage.Store, rec *Reconciler, log logging.Logger) *Fetcher {
	return &Fetcher{client: c, store: store, rec: rec, log: log}
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// Cursor returns the stored cursor, nil when a full sync is due.
func (f *Fetcher) Cursor(ctx context.Context) (json.RawMessage, error) {
	v, err := f.store.Repos().Metadata.Get(ctx, metadata.KeySyncCursor)
	if err != nil {
		return nil, err
	}
	if isNull(v) {
		return nil, nil
	}
	return json.RawMessage(v), nil
}

// Download pulls the delta since the stored cursor and applies it in one
// transaction. The new cursor is written in the same transaction.
func (f *Fetcher) Download(ctx context.Context) (DownloadResult, error) {
	var res DownloadResult

	cursor, err := f.Cursor(ctx)
	if err != nil {
		return res, fmt.Errorf("read cursor: %w", err)
	}
	res.FullSync = cursor == nil

	delta, err := f.client.Delta(ctx, cursor)
	if err != nil {
		return res, err
	}

	err = f.store.WithTx(ctx, func(ctx context.Context, repos *storage.Repositories) error {
		res, err = f.Apply(ctx, repos, delta)
		return err
	})
	res.FullSync = cursor == nil
	if err != nil {
		return res, fmt.Errorf("apply delta: %w", err)
	}

	if delta.IsEmpty() {
		f.log.Debug(ctx, "delta empty, cursor advanced", "full", res.FullSync)
		return res, nil
	}
	f.log.Info(ctx, "delta applied", "full", res.FullSync, "categories", res.Categories,
		"bookmarks", res.Bookmarks, "deleted", res.Deleted, "promoted", res.Promoted)
	return res, nil
}

// Apply writes delta into repos: tombstones, then categories, then
// bookmarks, then the cursor.
func (f *Fetcher) Apply(ctx context.Context, repos *storage.Repositories, delta *models.DeltaResponse) (DownloadResult, error) {
	var res DownloadResult

	for _, id := range delta.DeletedIDs.Bookmarks {
		if err := repos.Bookmarks.Delete(ctx, id); err != nil {
			return res, err
		}
		if err := repos.Deletions.Remove(ctx, models.KindBookmark, id); err != nil {
			return res, err
		}
		res.Deleted++
	}
	for _, id := range delta.DeletedIDs.Categories {
		if err := repos.Categories.Delete(ctx, id); err != nil {
			return res, err
		}
		if err := repos.Deletions.Remove(ctx, models.KindCategory, id); err != nil {
			return res, err
		}
		res.Deleted++
	}

	count := func(o Outcome) {
		switch o {
		case OutcomePromoted:
			res.Promoted++
		case OutcomeKeptLocal:
			res.KeptLocal++
		}
	}

	for _, p := range delta.UpdatedCategories {
		o, err := f.rec.ApplyCategory(ctx, repos, p)
		if err != nil {
			return res, err
		}
		count(o)
		res.Categories++
	}
	for _, p := range delta.UpdatedBookmarks {
		o, err := f.rec.ApplyBookmark(ctx, repos, p)
		if err != nil {
			return res, err
		}
		count(o)
		res.Bookmarks++
	}

	if !isNull(delta.CurrentServerTime) {
		if err := repos.Metadata.Set(ctx, metadata.KeySyncCursor, bytes.TrimSpace(delta.CurrentServerTime)); err != nil {
			return res, err
		}
	}
	return res, nil
}
