package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/marksync/internal/client/models"
	"github.com/dmitrijs2005/marksync/internal/client/storage"
	"github.com/dmitrijs2005/marksync/internal/common"
	"github.com/dmitrijs2005/marksync/internal/logging"
)

// Outcome is what the Reconciler did with one server record.
type Outcome int

const (
	OutcomeInserted Outcome = iota
	OutcomeUpdated
	OutcomeKeptLocal
	OutcomePromoted
)

// Sent is the version of a local record an upsert payload was built from.
type Sent struct {
	SyncVersion int64
	UpdatedAt   time.Time
}

// changedSince reports whether the local row was edited after the payload
// was built.
func (s *Sent) changedSince(version int64, updated time.Time) bool {
	return version != s.SyncVersion || !updated.Equal(s.UpdatedAt)
}

// Reconciler applies server records to repositories bound to a transaction.
type Reconciler struct {
	cipher Cipher
	log    logging.Logger
}

func NewReconciler(c Cipher, log logging.Logger) *Reconciler {
	if c == nil {
		c = plainCipher{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Reconciler{cipher: c, log: log}
}

func (r *Reconciler) getBookmark(ctx context.Context, repos *storage.Repositories, id string) (*models.Bookmark, error) {
	if id == "" {
		return nil, nil
	}
	b, err := repos.Bookmarks.Get(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	return b, err
}

func (r *Reconciler) getCategory(ctx context.Context, repos *storage.Repositories, id string) (*models.Category, error) {
	if id == "" {
		return nil, nil
	}
	c, err := repos.Categories.Get(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	return c, err
}

// carryMedia keeps local media that has not reached the server yet.
func carryMedia(dst *models.Bookmark, local *models.Bookmark) {
	dst.PendingImages = local.PendingImages
	if dst.FileURL == "" {
		dst.PendingFile = local.PendingFile
	}
	if dst.HasPendingMedia() {
		dst.Dirty = true
	}
}

// ApplyBookmark reconciles one server bookmark from a delta.
func (r *Reconciler) ApplyBookmark(ctx context.Context, repos *storage.Repositories, p models.BookmarkPayload) (Outcome, error) {
	return r.applyBookmark(ctx, repos, p, nil)
}

// AcknowledgeBookmark applies the server's echo of a bookmark we just
// uploaded. The echo wins unless the local row changed after sent.
func (r *Reconciler) AcknowledgeBookmark(ctx context.Context, repos *storage.Repositories, p models.BookmarkPayload, sent Sent) (Outcome, error) {
	return r.applyBookmark(ctx, repos, p, &sent)
}

func (r *Reconciler) applyBookmark(ctx context.Context, repos *storage.Repositories, p models.BookmarkPayload, sent *Sent) (Outcome, error) {
	if p.ID == "" {
		return 0, fmt.Errorf("bookmark without id (local_id %q)", p.LocalID)
	}
	incoming := p.Bookmark()
	decryptBookmark(r.cipher, &incoming)

	existing, err := r.getBookmark(ctx, repos, incoming.ID)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		if err := r.absorbBookmark(ctx, repos, p); err != nil {
			return 0, err
		}
		if keepLocal(existing.Dirty, existing.SyncVersion, existing.UpdatedAt, incoming.UpdatedAt, sent) {
			existing.Synced = true
			if incoming.SyncVersion > existing.SyncVersion {
				existing.SyncVersion = incoming.SyncVersion
			}
			if err := repos.Bookmarks.Update(ctx, existing); err != nil {
				return 0, err
			}
			return OutcomeKeptLocal, nil
		}
		carryMedia(&incoming, existing)
		if err := repos.Bookmarks.Update(ctx, &incoming); err != nil {
			return 0, err
		}
		return OutcomeUpdated, nil
	}

	if p.LocalID != "" && p.LocalID != p.ID {
		local, err := r.getBookmark(ctx, repos, p.LocalID)
		if err != nil {
			return 0, err
		}
		if local != nil {
			return OutcomePromoted, r.promoteBookmark(ctx, repos, local, &incoming, sent)
		}
	}

	if err := repos.Bookmarks.Insert(ctx, &incoming); err != nil {
		return 0, err
	}
	return OutcomeInserted, nil
}

// keepLocal decides whether a dirty local row survives a server copy. For
// deltas the newer updated_at wins; for an upsert echo the server copy wins
// unless the row was edited while the request was in flight.
func keepLocal(dirty bool, version int64, updated, remote time.Time, sent *Sent) bool {
	if !dirty {
		return false
	}
	if sent != nil {
		return sent.changedSince(version, updated)
	}
	return updated.After(remote)
}

// absorbBookmark drops a leftover unsynced copy under p.LocalID when the
// server record already exists locally under its own id.
func (r *Reconciler) absorbBookmark(ctx context.Context, repos *storage.Repositories, p models.BookmarkPayload) error {
	if p.LocalID == "" || p.LocalID == p.ID {
		return nil
	}
	local, err := r.getBookmark(ctx, repos, p.LocalID)
	if err != nil || local == nil || local.Synced {
		return err
	}
	r.log.Debug(ctx, "dropping duplicate local bookmark", "local_id", local.ID, "id", p.ID)
	return repos.Bookmarks.Delete(ctx, local.ID)
}

// promoteBookmark moves local under the server id: insert new, delete old.
func (r *Reconciler) promoteBookmark(ctx context.Context, repos *storage.Repositories, local, remote *models.Bookmark, sent *Sent) error {
	promoted := *local
	promoted.ID = remote.ID
	promoted.Synced = true
	promoted.CreatedAt = remote.CreatedAt
	promoted.UpdatedAt = remote.UpdatedAt
	promoted.SyncVersion = remote.SyncVersion
	if len(remote.ImageURLs) > 0 {
		promoted.ImageURLs = remote.ImageURLs
	}
	if remote.FileURL != "" {
		promoted.FileURL = remote.FileURL
		promoted.PendingFile = ""
	}
	promoted.Dirty = !promoted.SameContent(remote) || promoted.HasPendingMedia() ||
		(sent != nil && sent.changedSince(local.SyncVersion, local.UpdatedAt))

	if err := repos.Bookmarks.Insert(ctx, &promoted); err != nil {
		return fmt.Errorf("promote bookmark %s -> %s: %w", local.ID, remote.ID, err)
	}
	if err := repos.Bookmarks.Delete(ctx, local.ID); err != nil {
		return fmt.Errorf("promote bookmark %s -> %s: %w", local.ID, remote.ID, err)
	}
	r.log.Debug(ctx, "bookmark promoted", "local_id", local.ID, "id", remote.ID, "dirty", promoted.Dirty)
	return nil
}

// ApplyCategory reconciles one server category from a delta.
func (r *Reconciler) ApplyCategory(ctx context.Context, repos *storage.Repositories, p models.CategoryPayload) (Outcome, error) {
	return r.applyCategory(ctx, repos, p, nil)
}

// AcknowledgeCategory is AcknowledgeBookmark for categories.
func (r *Reconciler) AcknowledgeCategory(ctx context.Context, repos *storage.Repositories, p models.CategoryPayload, sent Sent) (Outcome, error) {
	return r.applyCategory(ctx, repos, p, &sent)
}

func (r *Reconciler) applyCategory(ctx context.Context, repos *storage.Repositories, p models.CategoryPayload, sent *Sent) (Outcome, error) {
	if p.ID == "" {
		return 0, fmt.Errorf("category without id (local_id %q)", p.LocalID)
	}
	incoming := p.Category()
	decryptCategory(r.cipher, &incoming)

	existing, err := r.getCategory(ctx, repos, incoming.ID)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		if err := r.absorbCategory(ctx, repos, p); err != nil {
			return 0, err
		}
		if keepLocal(existing.Dirty, existing.SyncVersion, existing.UpdatedAt, incoming.UpdatedAt, sent) {
			existing.Synced = true
			if incoming.SyncVersion > existing.SyncVersion {
				existing.SyncVersion = incoming.SyncVersion
			}
			if err := repos.Categories.Update(ctx, existing); err != nil {
				return 0, err
			}
			return OutcomeKeptLocal, nil
		}
		if err := repos.Categories.Update(ctx, &incoming); err != nil {
			return 0, err
		}
		return OutcomeUpdated, nil
	}

	var local *models.Category
	if p.LocalID != "" && p.LocalID != p.ID {
		if local, err = r.getCategory(ctx, repos, p.LocalID); err != nil {
			return 0, err
		}
	}
	if local == nil && incoming.Name != "" {
		if local, err = repos.Categories.FindUnsyncedByName(ctx, incoming.Name, incoming.ID); err != nil {
			return 0, err
		}
		if local != nil {
			r.log.Debug(ctx, "category matched by name", "local_id", local.ID, "id", incoming.ID)
		}
	}
	if local != nil {
		return OutcomePromoted, r.promoteCategory(ctx, repos, local, &incoming, sent)
	}

	if err := repos.Categories.Insert(ctx, &incoming); err != nil {
		return 0, err
	}
	return OutcomeInserted, nil
}

func (r *Reconciler) absorbCategory(ctx context.Context, repos *storage.Repositories, p models.CategoryPayload) error {
	if p.LocalID == "" || p.LocalID == p.ID {
		return nil
	}
	local, err := r.getCategory(ctx, repos, p.LocalID)
	if err != nil || local == nil || local.Synced {
		return err
	}
	if _, err := repos.Bookmarks.RemapCategory(ctx, local.ID, p.ID); err != nil {
		return err
	}
	r.log.Debug(ctx, "dropping duplicate local category", "local_id", local.ID, "id", p.ID)
	return repos.Categories.Delete(ctx, local.ID)
}

// promoteCategory moves local under the server id and remaps its bookmarks
// within the caller's transaction.
func (r *Reconciler) promoteCategory(ctx context.Context, repos *storage.Repositories, local, remote *models.Category, sent *Sent) error {
	promoted := *local
	promoted.ID = remote.ID
	promoted.Synced = true
	promoted.CreatedAt = remote.CreatedAt
	promoted.UpdatedAt = remote.UpdatedAt
	promoted.SyncVersion = remote.SyncVersion
	promoted.Dirty = !promoted.SameContent(remote) ||
		(sent != nil && sent.changedSince(local.SyncVersion, local.UpdatedAt))

	if err := repos.Categories.Insert(ctx, &promoted); err != nil {
		return fmt.Errorf("promote category %s -> %s: %w", local.ID, remote.ID, err)
	}
	n, err := repos.Bookmarks.RemapCategory(ctx, local.ID, remote.ID)
	if err != nil {
		return fmt.Errorf("promote category %s -> %s: %w", local.ID, remote.ID, err)
	}
	if err := repos.Categories.Delete(ctx, local.ID); err != nil {
		return fmt.Errorf("promote category %s -> %s: %w", local.ID, remote.ID, err)
	}
	r.log.Debug(ctx, "category promoted", "local_id", local.ID, "id", remote.ID, "remapped", n)
	return nil
}
