package sync

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/marksync/internal/client/storage"
	"github.com/dmitrijs2005/marksync/internal/logging"
)

// MaxEncryptionPasses bounds the encryption repair loop.
const MaxEncryptionPasses = 5

// Repairer runs the post-download fixups. Each pass is idempotent.
type Repairer struct {
	store  *storage.Store
	cipher Cipher
	log    logging.Logger
}

func NewRepairer(store *storage.Store, c Cipher, log logging.Logger) *Repairer {
	if c == nil {
		c = plainCipher{}
	}
	return &Repairer{store: store, cipher: c, log: log}
}

// Run executes every pass. Failures are logged and do not stop later passes.
func (r *Repairer) Run(ctx context.Context) RepairResult {
	var res RepairResult

	n, err := r.Orphans(ctx)
	if err != nil {
		r.log.Warn(ctx, "orphan repair failed", "err", err)
	}
	res.Orphans = n

	passes, changed, err := r.Encryption(ctx)
	if err != nil {
		r.log.Warn(ctx, "encryption repair failed", "err", err, "passes", passes)
	}
	res.EncryptionPasses, res.Decrypted = passes, changed

	if err := r.store.Repos().Categories.RefreshBookmarkCounts(ctx); err != nil {
		r.log.Warn(ctx, "bookmark count refresh failed", "err", err)
	}

	if res.Orphans > 0 || res.Decrypted > 0 {
		r.log.Info(ctx, "local data repaired", "orphans", res.Orphans, "decrypted", res.Decrypted, "passes", res.EncryptionPasses)
	}
	return res
}

// Orphans detaches bookmarks whose category does not exist and marks them
// dirty.
func (r *Repairer) Orphans(ctx context.Context) (int64, error) {
	return r.store.Repos().Bookmarks.ClearOrphaned(ctx)
}

// Encryption decrypts fields still holding ciphertext. Each pass peels one
// layer; the loop stops at the first pass without changes or after
// MaxEncryptionPasses. It returns the passes run and the number of record
// rewrites.
func (r *Repairer) Encryption(ctx context.Context) (int, int, error) {
	if !r.cipher.KeyAvailable() {
		return 0, 0, nil
	}

	total := 0
	for pass := 1; pass <= MaxEncryptionPasses; pass++ {
		changed, err := r.encryptionPass(ctx)
		if err != nil {
			return pass, total, fmt.Errorf("pass %d: %w", pass, err)
		}
		total += changed
		if changed == 0 {
			return pass, total, nil
		}
	}
	return MaxEncryptionPasses, total, nil
}

func (r *Repairer) encryptionPass(ctx context.Context) (int, error) {
	changed := 0
	err := r.store.WithTx(ctx, func(ctx context.Context, repos *storage.Repositories) error {
		changed = 0

		cats, err := repos.Categories.List(ctx)
		if err != nil {
			return err
		}
		for _, c := range cats {
			if !decryptCategory(r.cipher, c) {
				continue
			}
			c.Dirty = true
			if err := repos.Categories.Update(ctx, c); err != nil {
				return err
			}
			changed++
		}

		bms, err := repos.Bookmarks.List(ctx)
		if err != nil {
			return err
		}
		for _, b := range bms {
			if !decryptBookmark(r.cipher, b) {
				continue
			}
			b.Dirty = true
			if err := repos.Bookmarks.Update(ctx, b); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	return changed, err
}
