package sync

import (
	"context"
	"encoding/json"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/marksync/internal/client/client"
	"github.com/dmitrijs2005/marksync/internal/client/models"
	"github.com/dmitrijs2005/marksync/internal/client/storage"
	"github.com/dmitrijs2005/marksync/internal/cryptox"
)

var t0 = time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

type authStub bool

func (a authStub) Authenticated(context.Context) bool { return bool(a) }

// fakeServer is an in-memory client.Client. Upserts echo each payload under
// a server id (idMap, or "srv-"+local id) with local_id set.
type fakeServer struct {
	client.Client

	mu        gosync.Mutex
	deltas    []*models.DeltaResponse
	deltaErrs []error
	cursors   []json.RawMessage
	deltaHook func(ctx context.Context) error

	idMap          map[string]string
	upsertErr      error
	sentCategories []models.CategoryPayload
	sentBookmarks  []models.BookmarkPayload
	multipart      []multipartCall

	deleteErrs map[string]error
	deleted    []string

	mediaErr map[string]error
	uploaded []string
}

type multipartCall struct {
	payload models.BookmarkPayload
	images  []client.File
	doc     *client.File
}

func newFakeServer() *fakeServer {
	return &fakeServer{idMap: map[string]string{}, deleteErrs: map[string]error{}, mediaErr: map[string]error{}}
}

func (f *fakeServer) Delta(ctx context.Context, cursor json.RawMessage) (*models.DeltaResponse, error) {
	if f.deltaHook != nil {
		if err := f.deltaHook(ctx); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors = append(f.cursors, cursor)
	if len(f.deltaErrs) > 0 {
		err := f.deltaErrs[0]
		if len(f.deltaErrs) > 1 {
			f.deltaErrs = f.deltaErrs[1:]
		}
		if err != nil {
			return nil, err
		}
	}
	if len(f.deltas) == 0 {
		return &models.DeltaResponse{}, nil
	}
	d := f.deltas[0]
	f.deltas = f.deltas[1:]
	return d, nil
}

func (f *fakeServer) serverID(local, id string) string {
	if local == "" {
		return id
	}
	if s, ok := f.idMap[local]; ok {
		return s
	}
	return "srv-" + local
}

func (f *fakeServer) UpsertCategories(_ context.Context, items []models.CategoryPayload) ([]models.CategoryPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	f.sentCategories = append(f.sentCategories, items...)
	out := make([]models.CategoryPayload, len(items))
	for i, p := range items {
		p.ID = f.serverID(p.LocalID, p.ID)
		out[i] = p
	}
	return out, nil
}

func (f *fakeServer) echoBookmark(p models.BookmarkPayload) models.BookmarkPayload {
	p.ID = f.serverID(p.LocalID, p.ID)
	if p.CategoryID != nil {
		c := *p.CategoryID
		p.CategoryID = &c
	}
	return p
}

func (f *fakeServer) UpsertBookmarks(_ context.Context, items []models.BookmarkPayload) ([]models.BookmarkPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	f.sentBookmarks = append(f.sentBookmarks, items...)
	out := make([]models.BookmarkPayload, len(items))
	for i, p := range items {
		out[i] = f.echoBookmark(p)
	}
	return out, nil
}

func (f *fakeServer) UpsertBookmarkMultipart(_ context.Context, item models.BookmarkPayload, images []client.File, doc *client.File) ([]models.BookmarkPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.multipart = append(f.multipart, multipartCall{payload: item, images: images, doc: doc})
	echo := f.echoBookmark(item)
	for _, img := range images {
		echo.ImageURLs = append(echo.ImageURLs, "https://cdn/"+img.Name)
	}
	if doc != nil {
		u := "https://cdn/" + doc.Name
		echo.FileURL = &u
	}
	return []models.BookmarkPayload{echo}, nil
}

func (f *fakeServer) DeleteBookmark(_ context.Context, id string) error {
	return f.del("bookmark/" + id)
}

func (f *fakeServer) DeleteCategory(_ context.Context, id string) error {
	return f.del("category/" + id)
}

func (f *fakeServer) del(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErrs[key]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeServer) UploadMedia(_ context.Context, file client.File) (*models.MediaUploadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.mediaErr[file.Name]; err != nil {
		return nil, err
	}
	f.uploaded = append(f.uploaded, file.Name)
	return &models.MediaUploadResponse{URL: "https://cdn/" + file.Name}, nil
}

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newCipher(t *testing.T) *cryptox.FieldCipher {
	t.Helper()
	key := make([]byte, cryptox.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	c, err := cryptox.NewFieldCipher(key)
	require.NoError(t, err)
	return c
}

type sleepRecorder struct {
	mu     gosync.Mutex
	sleeps []time.Duration
	err    error
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
	return s.err
}

func newCoordinator(t *testing.T, store *storage.Store, srv *fakeServer, ci Cipher, opts ...CoordinatorOption) (*Coordinator, *sleepRecorder) {
	t.Helper()
	rec := &sleepRecorder{}
	opts = append([]CoordinatorOption{WithSleeper(rec.sleep)}, opts...)
	c := NewCoordinator(Deps{Store: store, Client: srv, Auth: authStub(true), Cipher: ci}, opts...)
	return c, rec
}

func strptr(s string) *string { return &s }

func mustInsertBookmark(t *testing.T, s *storage.Store, b *models.Bookmark) {
	t.Helper()
	require.NoError(t, s.Repos().Bookmarks.Insert(context.Background(), b))
}

func mustInsertCategory(t *testing.T, s *storage.Store, c *models.Category) {
	t.Helper()
	require.NoError(t, s.Repos().Categories.Insert(context.Background(), c))
}

func bookmarkIDsIn(t *testing.T, s *storage.Store) []string {
	t.Helper()
	list, err := s.Repos().Bookmarks.List(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, b := range list {
		ids = append(ids, b.ID)
	}
	return ids
}

func categoryIDsIn(t *testing.T, s *storage.Store) []string {
	t.Helper()
	list, err := s.Repos().Categories.List(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.ID)
	}
	return ids
}
