package sync

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/marksync/internal/client/client"
	"github.com/dmitrijs2005/marksync/internal/client/media"
	"github.com/dmitrijs2005/marksync/internal/client/models"
	"github.com/dmitrijs2005/marksync/internal/client/storage"
	"github.com/dmitrijs2005/marksync/internal/logging"
)

const defaultMediaWorkers = 4

// Uploader pushes local changes to the server.
type Uploader struct {
	client  client.Client
	store   *storage.Store
	rec     *Reconciler
	cipher  Cipher
	media   media.Uploader
	workers int
	log     logging.Logger
}

type UploaderOption func(*Uploader)

// WithMediaUploader overrides the server /media/upload backend.
func WithMediaUploader(m media.Uploader) UploaderOption {
	return func(u *Uploader) {
		if m != nil {
			u.media = m
		}
	}
}

func WithMediaWorkers(n int) UploaderOption {
	return func(u *Uploader) {
		if n > 0 {
			u.workers = n
		}
	}
}

func NewUploader(c client.Client, store *storage.Store, rec *Reconciler, ci Cipher, log logging.Logger, opts ...UploaderOption) *Uploader {
	if ci == nil {
		ci = plainCipher{}
	}
	u := &Uploader{
		client:  c,
		store:   store,
		rec:     rec,
		cipher:  ci,
		media:   media.NewServerUploader(c),
		workers: defaultMediaWorkers,
		log:     log,
	}
	for _, o := range opts {
		o(u)
	}
	return u
}

// Upload drains queued deletes, then upserts dirty categories and dirty
// bookmarks. A failed batch aborts the run; media failures do not.
func (u *Uploader) Upload(ctx context.Context) (UploadResult, error) {
	var res UploadResult

	n, err := u.drainDeletes(ctx)
	res.RemoteDeletes = n
	if err != nil {
		return res, err
	}

	if err := u.uploadCategories(ctx, &res); err != nil {
		return res, err
	}
	if err := u.uploadBookmarks(ctx, &res); err != nil {
		return res, err
	}
	return res, nil
}

func (u *Uploader) drainDeletes(ctx context.Context) (int, error) {
	repos := u.store.Repos()
	pending, err := repos.Deletions.List(ctx)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, d := range pending {
		switch d.Kind {
		case models.KindBookmark:
			err = u.client.DeleteBookmark(ctx, d.ID)
		case models.KindCategory:
			err = u.client.DeleteCategory(ctx, d.ID)
		default:
			u.log.Warn(ctx, "dropping queued delete of unknown kind", "kind", d.Kind, "id", d.ID)
			err = nil
		}
		if err != nil && !client.IsNotFound(err) {
			return done, fmt.Errorf("delete %s %s: %w", d.Kind, d.ID, err)
		}
		if err := repos.Deletions.Remove(ctx, d.Kind, d.ID); err != nil {
			return done, err
		}
		done++
	}
	return done, nil
}

func (u *Uploader) uploadCategories(ctx context.Context, res *UploadResult) error {
	dirty, err := u.store.Repos().Categories.ListDirty(ctx)
	if err != nil {
		return err
	}
	if len(dirty) == 0 {
		return nil
	}

	payloads := make([]models.CategoryPayload, 0, len(dirty))
	sent := make(map[string]Sent, len(dirty))
	for _, c := range dirty {
		p := c.Payload()
		if err := sealCategory(u.cipher, &p); err != nil {
			return err
		}
		payloads = append(payloads, p)
		sent[c.ID] = Sent{SyncVersion: c.SyncVersion, UpdatedAt: c.UpdatedAt}
	}

	echoed, err := u.client.UpsertCategories(ctx, payloads)
	if err != nil {
		return err
	}

	err = u.store.WithTx(ctx, func(ctx context.Context, repos *storage.Repositories) error {
		for _, p := range echoed {
			var (
				o   Outcome
				err error
			)
			if v, ok := lookupSent(sent, p.LocalID, p.ID); ok {
				o, err = u.rec.AcknowledgeCategory(ctx, repos, p, v)
			} else {
				o, err = u.rec.ApplyCategory(ctx, repos, p)
			}
			if err != nil {
				return err
			}
			if o == OutcomePromoted {
				res.Promoted++
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply category upsert response: %w", err)
	}

	res.Categories += len(payloads)
	u.warnUnmatched(ctx, models.KindCategory, categoryIDs(payloads), categoryEchoIDs(echoed))
	return nil
}

func (u *Uploader) uploadBookmarks(ctx context.Context, res *UploadResult) error {
	dirty, err := u.store.Repos().Bookmarks.ListDirty(ctx)
	if err != nil {
		return err
	}
	if len(dirty) == 0 {
		return nil
	}

	var batch, multipart []*models.Bookmark
	for _, b := range dirty {
		if err := u.prunePending(ctx, b); err != nil {
			return err
		}
		if needsMultipart(b) {
			multipart = append(multipart, b)
			continue
		}
		batch = append(batch, b)
	}

	if err := u.uploadMedia(ctx, batch, res); err != nil {
		return err
	}

	if len(batch) > 0 {
		payloads := make([]models.BookmarkPayload, 0, len(batch))
		sent := make(map[string]Sent, len(batch))
		for _, b := range batch {
			p := b.Payload()
			if err := sealBookmark(u.cipher, &p); err != nil {
				return err
			}
			payloads = append(payloads, p)
			sent[b.ID] = sentOf(b)
		}
		echoed, err := u.client.UpsertBookmarks(ctx, payloads)
		if err != nil {
			return err
		}
		if err := u.applyBookmarks(ctx, echoed, sent, res); err != nil {
			return err
		}
		res.Bookmarks += len(payloads)
		u.warnUnmatched(ctx, models.KindBookmark, bookmarkIDs(payloads), bookmarkEchoIDs(echoed))
	}

	for _, b := range multipart {
		if err := u.uploadMultipart(ctx, b, res); err != nil {
			return err
		}
		res.Bookmarks++
	}
	return nil
}

func needsMultipart(b *models.Bookmark) bool {
	return len(b.PendingImages) > 0 && len(b.ImageURLs) == 0 && b.PendingFile != "" && b.FileURL == ""
}

// prunePending forgets pending attachments that are gone from disk.
func (u *Uploader) prunePending(ctx context.Context, b *models.Bookmark) error {
	changed := false
	kept := b.PendingImages[:0:0]
	for _, p := range b.PendingImages {
		if media.Exists(p) {
			kept = append(kept, p)
			continue
		}
		u.log.Warn(ctx, "pending image missing, dropping", "bookmark", b.ID, "path", p)
		changed = true
	}
	if b.PendingFile != "" && !media.Exists(b.PendingFile) {
		u.log.Warn(ctx, "pending file missing, dropping", "bookmark", b.ID, "path", b.PendingFile)
		b.PendingFile = ""
		changed = true
	}
	if !changed {
		return nil
	}
	if len(kept) == 0 {
		kept = nil
	}
	b.PendingImages = kept
	return u.store.Repos().Bookmarks.Update(ctx, b)
}

type mediaJob struct {
	bookmark *models.Bookmark
	path     string
	isFile   bool
	url      string
	err      error
}

// uploadMedia uploads pending attachments and splices the URLs into the
// local records. Images that fail stay pending and are retried next cycle.
func (u *Uploader) uploadMedia(ctx context.Context, bookmarks []*models.Bookmark, res *UploadResult) error {
	var jobs []*mediaJob
	for _, b := range bookmarks {
		if !b.HasPendingMedia() {
			continue
		}
		for _, p := range b.PendingImages {
			jobs = append(jobs, &mediaJob{bookmark: b, path: p})
		}
		if b.PendingFile != "" && b.FileURL == "" {
			jobs = append(jobs, &mediaJob{bookmark: b, path: b.PendingFile, isFile: true})
		}
	}
	if len(jobs) == 0 {
		return nil
	}

	var g errgroup.Group
	g.SetLimit(u.workers)
	for _, j := range jobs {
		g.Go(func() error {
			f, err := media.Load(j.path)
			if err != nil {
				j.err = err
				return nil
			}
			j.url, j.err = u.media.Upload(ctx, f)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	touched := map[*models.Bookmark]bool{}
	failedImages := map[*models.Bookmark][]string{}
	okImages := map[*models.Bookmark][]string{}
	for _, j := range jobs {
		b := j.bookmark
		touched[b] = true
		if j.err != nil {
			res.MediaFailed++
			u.log.Error(ctx, "media upload failed", "bookmark", b.ID, "path", j.path, "err", j.err)
			if !j.isFile {
				failedImages[b] = append(failedImages[b], j.path)
			}
			continue
		}
		res.MediaUploaded++
		if j.isFile {
			b.FileURL = j.url
			b.PendingFile = ""
		} else {
			okImages[b] = append(okImages[b], j.url)
		}
	}

	repos := u.store.Repos()
	for b := range touched {
		if urls := okImages[b]; len(urls) > 0 {
			b.ImageURLs = append(b.ImageURLs, urls...)
			b.PendingImages = failedImages[b]
		}
		if err := repos.Bookmarks.Update(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (u *Uploader) uploadMultipart(ctx context.Context, b *models.Bookmark, res *UploadResult) error {
	var (
		images []client.File
		unread []string
	)
	for _, p := range b.PendingImages {
		f, err := media.Load(p)
		if err != nil {
			res.MediaFailed++
			u.log.Error(ctx, "media read failed", "bookmark", b.ID, "path", p, "err", err)
			unread = append(unread, p)
			continue
		}
		images = append(images, f)
	}
	var doc *client.File
	if f, err := media.Load(b.PendingFile); err != nil {
		res.MediaFailed++
		u.log.Error(ctx, "media read failed", "bookmark", b.ID, "path", b.PendingFile, "err", err)
	} else {
		doc = &f
	}

	p := b.Payload()
	if err := sealBookmark(u.cipher, &p); err != nil {
		return err
	}
	echoed, err := u.client.UpsertBookmarkMultipart(ctx, p, images, doc)
	if err != nil {
		return err
	}
	res.MediaUploaded += len(images)
	if doc != nil {
		res.MediaUploaded++
	}
	sent := map[string]Sent{b.ID: sentOf(b)}
	err = u.store.WithTx(ctx, func(ctx context.Context, repos *storage.Repositories) error {
		if ack := echoOf(echoed, b.ID); ack != nil {
			// Parts the server stored are no longer pending.
			if len(ack.ImageURLs) > 0 {
				b.PendingImages = unread
			}
			if doc != nil && ack.FileURL != nil && *ack.FileURL != "" {
				b.PendingFile = ""
			}
			if err := repos.Bookmarks.Update(ctx, b); err != nil {
				return err
			}
		}
		return u.applyEchoes(ctx, repos, echoed, sent, res)
	})
	if err != nil {
		return fmt.Errorf("apply bookmark upsert response: %w", err)
	}
	u.warnUnmatched(ctx, models.KindBookmark, []string{p.ID}, bookmarkEchoIDs(echoed))
	return nil
}

func echoOf(echoed []models.BookmarkPayload, id string) *models.BookmarkPayload {
	for i := range echoed {
		if echoed[i].LocalID == id || echoed[i].ID == id {
			return &echoed[i]
		}
	}
	return nil
}

func sentOf(b *models.Bookmark) Sent {
	return Sent{SyncVersion: b.SyncVersion, UpdatedAt: b.UpdatedAt}
}

// lookupSent finds the local version behind an echoed record, keyed by the
// id it was sent under.
func lookupSent(sent map[string]Sent, localID, id string) (Sent, bool) {
	if localID != "" {
		if v, ok := sent[localID]; ok {
			return v, true
		}
	}
	v, ok := sent[id]
	return v, ok
}

// applyBookmarks stores the server's echo of an upsert. Echoes of records in
// sent are acknowledgements; anything else is reconciled like a delta.
func (u *Uploader) applyBookmarks(ctx context.Context, echoed []models.BookmarkPayload, sent map[string]Sent, res *UploadResult) error {
	err := u.store.WithTx(ctx, func(ctx context.Context, repos *storage.Repositories) error {
		return u.applyEchoes(ctx, repos, echoed, sent, res)
	})
	if err != nil {
		return fmt.Errorf("apply bookmark upsert response: %w", err)
	}
	return nil
}

func (u *Uploader) applyEchoes(ctx context.Context, repos *storage.Repositories, echoed []models.BookmarkPayload, sent map[string]Sent, res *UploadResult) error {
	for _, p := range echoed {
		var (
			o   Outcome
			err error
		)
		if v, ok := lookupSent(sent, p.LocalID, p.ID); ok {
			o, err = u.rec.AcknowledgeBookmark(ctx, repos, p, v)
		} else {
			o, err = u.rec.ApplyBookmark(ctx, repos, p)
		}
		if err != nil {
			return err
		}
		if o == OutcomePromoted {
			res.Promoted++
		}
	}
	return nil
}

// warnUnmatched logs sent records the server did not echo; they stay dirty.
func (u *Uploader) warnUnmatched(ctx context.Context, kind models.Kind, sent []string, echoed map[string]bool) {
	for _, id := range sent {
		if !echoed[id] {
			u.log.Warn(ctx, "record not acknowledged by server", "kind", kind, "id", id)
		}
	}
}

func bookmarkIDs(ps []models.BookmarkPayload) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func bookmarkEchoIDs(ps []models.BookmarkPayload) map[string]bool {
	out := make(map[string]bool, 2*len(ps))
	for _, p := range ps {
		out[p.ID] = true
		if p.LocalID != "" {
			out[p.LocalID] = true
		}
	}
	return out
}

func categoryIDs(ps []models.CategoryPayload) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func categoryEchoIDs(ps []models.CategoryPayload) map[string]bool {
	out := make(map[string]bool, 2*len(ps))
	for _, p := range ps {
		out[p.ID] = true
		if p.LocalID != "" {
			out[p.LocalID] = true
		}
	}
	return out
}
