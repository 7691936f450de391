package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/marksync/internal/client/media"
	"github.com/dmitrijs2005/marksync/internal/client/models"
	"github.com/dmitrijs2005/marksync/internal/client/storage"
	"github.com/dmitrijs2005/marksync/internal/common"
	"github.com/dmitrijs2005/marksync/internal/logging"
)

// BookmarkInput carries the user-editable bookmark fields.
type BookmarkInput struct {
	Title      string
	URL        string
	Note       string
	Tags       []string
	CategoryID string
	IsRead     bool
	IsFavorite bool
}

// CategoryInput carries the user-editable category fields.
type CategoryInput struct {
	Name  string
	Icon  string
	Color string
	Order int
}

// Library mutates the local store.
type Library struct {
	store  *storage.Store
	source string
	log    logging.Logger

	now   func() time.Time
	newID func() string
}

// NewLibrary returns a Library; source tags bookmarks created here.
func NewLibrary(store *storage.Store, source string, log logging.Logger) *Library {
	if log == nil {
		log = logging.Nop()
	}
	return &Library{
		store:  store,
		source: source,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrValidation, fmt.Sprintf(format, args...))
}

func cleanTags(tags []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func (l *Library) checkBookmark(ctx context.Context, repos *storage.Repositories, in *BookmarkInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.URL = strings.TrimSpace(in.URL)
	if in.Title == "" && in.URL == "" {
		return validationf("bookmark needs a title or a url")
	}
	if in.URL != "" {
		u, err := url.Parse(in.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return validationf("invalid url %q", in.URL)
		}
	}
	if in.CategoryID != "" {
		if _, err := repos.Categories.Get(ctx, in.CategoryID); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return validationf("category %s does not exist", in.CategoryID)
			}
			return err
		}
	}
	in.Tags = cleanTags(in.Tags)
	return nil
}

// touch stamps a local edit.
func (l *Library) touch(updatedAt *time.Time, version *int64, dirty *bool) {
	*updatedAt = l.now()
	*version++
	*dirty = true
}

// AddBookmark stores a new bookmark under a fresh local id.
func (l *Library) AddBookmark(ctx context.Context, in BookmarkInput) (*models.Bookmark, error) {
	repos := l.store.Repos()
	if err := l.checkBookmark(ctx, repos, &in); err != nil {
		return nil, err
	}
	now := l.now()
	b := &models.Bookmark{
		ID:          l.newID(),
		Title:       in.Title,
		URL:         in.URL,
		Note:        in.Note,
		Source:      l.source,
		IsRead:      in.IsRead,
		IsFavorite:  in.IsFavorite,
		Tags:        in.Tags,
		CategoryID:  in.CategoryID,
		SyncVersion: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
		Dirty:       true,
	}
	if err := repos.Bookmarks.Insert(ctx, b); err != nil {
		return nil, err
	}
	l.log.Debug(ctx, "bookmark created", "id", b.ID)
	return b, nil
}

// UpdateBookmark replaces the editable fields of bookmark id.
func (l *Library) UpdateBookmark(ctx context.Context, id string, in BookmarkInput) (*models.Bookmark, error) {
	var out *models.Bookmark
	err := l.store.WithTx(ctx, func(ctx context.Context, repos *storage.Repositories) error {
		b, err := repos.Bookmarks.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := l.checkBookmark(ctx, repos, &in); err != nil {
			return err
		}
		b.Title, b.URL, b.Note = in.Title, in.URL, in.Note
		b.Tags, b.CategoryID = in.Tags, in.CategoryID
		b.IsRead, b.IsFavorite = in.IsRead, in.IsFavorite
		l.touch(&b.UpdatedAt, &b.SyncVersion, &b.Dirty)
		out = b
		return repos.Bookmarks.Update(ctx, b)
	})
	return out, err
}

// SetRead flips the read flag.
func (l *Library) SetRead(ctx context.Context, id string, read bool) error {
	return l.editBookmark(ctx, id, func(b *models.Bookmark) error {
		b.IsRead = read
		return nil
	})
}

func (l *Library) SetFavorite(ctx context.Context, id string, fav bool) error {
	return l.editBookmark(ctx, id, func(b *models.Bookmark) error {
		b.IsFavorite = fav
		return nil
	})
}

func (l *Library) editBookmark(ctx context.Context, id string, fn func(b *models.Bookmark) error) error {
	return l.store.WithTx(ctx, func(ctx context.Context, repos *storage.Repositories) error {
		b, err := repos.Bookmarks.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
		l.touch(&b.UpdatedAt, &b.SyncVersion, &b.Dirty)
		return repos.Bookmarks.Update(ctx, b)
	})
}

func checkAttachment(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	st, err := os.Stat(abs)
	if err != nil {
		return "", validationf("cannot attach %s: %v", path, err)
	}
	if st.IsDir() {
		return "", validationf("cannot attach directory %s", path)
	}
	if st.Size() > media.MaxFileSize {
		return "", validationf("%s exceeds %d bytes", path, media.MaxFileSize)
	}
	return abs, nil
}

// AttachImages queues local images for upload. The new set replaces any
// images already uploaded for the bookmark.
func (l *Library) AttachImages(ctx context.Context, id string, paths ...string) error {
	if len(paths) == 0 {
		return validationf("no images given")
	}
	abs := make([]string, 0, len(paths))
	for _, p := range paths {
		a, err := checkAttachment(p)
		if err != nil {
			return err
		}
		abs = append(abs, a)
	}
	return l.editBookmark(ctx, id, func(b *models.Bookmark) error {
		if len(b.ImageURLs) > 0 {
			b.ImageURLs = nil
			b.PendingImages = nil
		}
		b.PendingImages = append(b.PendingImages, abs...)
		return nil
	})
}

// AttachFile queues a document for upload, replacing the current one.
func (l *Library) AttachFile(ctx context.Context, id, path string) error {
	abs, err := checkAttachment(path)
	if err != nil {
		return err
	}
	return l.editBookmark(ctx, id, func(b *models.Bookmark) error {
		b.FileURL = ""
		b.PendingFile = abs
		return nil
	})
}

// DeleteBookmark removes the bookmark locally. Records the server knows
// about are queued for remote deletion in the same transaction.
func (l *Library) DeleteBookmark(ctx context.Context, id string) error {
	return l.store.WithTx(ctx, func(ctx context.Context, repos *storage.Repositories) error {
		b, err := repos.Bookmarks.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := repos.Bookmarks.Delete(ctx, id); err != nil {
			return err
		}
		if b.Synced {
			return repos.Deletions.Enqueue(ctx, models.KindBookmark, id)
		}
		return nil
	})
}

// Bookmarks lists bookmarks, optionally only those in categoryID.
func (l *Library) Bookmarks(ctx context.Context, categoryID string) ([]*models.Bookmark, error) {
	if categoryID == "" {
		return l.store.Repos().Bookmarks.List(ctx)
	}
	return l.store.Repos().Bookmarks.ListByCategory(ctx, categoryID)
}

func (l *Library) Bookmark(ctx context.Context, id string) (*models.Bookmark, error) {
	return l.store.Repos().Bookmarks.Get(ctx, id)
}

func checkCategory(in *CategoryInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return validationf("category needs a name")
	}
	return nil
}

// AddCategory stores a new category under a fresh local id.
func (l *Library) AddCategory(ctx context.Context, in CategoryInput) (*models.Category, error) {
	if err := checkCategory(&in); err != nil {
		return nil, err
	}
	now := l.now()
	c := &models.Category{
		ID:          l.newID(),
		Name:        in.Name,
		Icon:        in.Icon,
		Color:       in.Color,
		Order:       in.Order,
		SyncVersion: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
		Dirty:       true,
	}
	if err := l.store.Repos().Categories.Insert(ctx, c); err != nil {
		return nil, err
	}
	l.log.Debug(ctx, "category created", "id", c.ID)
	return c, nil
}

func (l *Library) UpdateCategory(ctx context.Context, id string, in CategoryInput) (*models.Category, error) {
	if err := checkCategory(&in); err != nil {
		return nil, err
	}
	var out *models.Category
	err := l.store.WithTx(ctx, func(ctx context.Context, repos *storage.Repositories) error {
		c, err := repos.Categories.Get(ctx, id)
		if err != nil {
			return err
		}
		c.Name, c.Icon, c.Color, c.Order = in.Name, in.Icon, in.Color, in.Order
		l.touch(&c.UpdatedAt, &c.SyncVersion, &c.Dirty)
		out = c
		return repos.Categories.Update(ctx, c)
	})
	return out, err
}

// DeleteCategory removes the category and detaches its bookmarks, which
// become dirty so the server learns they are uncategorized.
func (l *Library) DeleteCategory(ctx context.Context, id string) error {
	return l.store.WithTx(ctx, func(ctx context.Context, repos *storage.Repositories) error {
		c, err := repos.Categories.Get(ctx, id)
		if err != nil {
			return err
		}
		n, err := repos.Bookmarks.ClearCategory(ctx, id)
		if err != nil {
			return err
		}
		if err := repos.Categories.Delete(ctx, id); err != nil {
			return err
		}
		l.log.Debug(ctx, "category deleted", "id", id, "detached", n)
		if c.Synced {
			return repos.Deletions.Enqueue(ctx, models.KindCategory, id)
		}
		return nil
	})
}

func (l *Library) Categories(ctx context.Context) ([]*models.Category, error) {
	if err := l.store.Repos().Categories.RefreshBookmarkCounts(ctx); err != nil {
		return nil, err
	}
	return l.store.Repos().Categories.List(ctx)
}
