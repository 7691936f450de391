package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/marksync/internal/client/models"
	"github.com/dmitrijs2005/marksync/internal/logging"
)

func layered(t *testing.T, c Cipher, text string, layers int) string {
	t.Helper()
	for i := 0; i < layers; i++ {
		var err error
		text, err = c.Encrypt(text)
		require.NoError(t, err)
	}
	return text
}

func TestRepair_OrphansClearedAndMarkedDirty(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	mustInsertCategory(t, s, &models.Category{ID: "c1", Name: "Kept", Synced: true})
	mustInsertBookmark(t, s, &models.Bookmark{ID: "b1", CategoryID: "c1", Synced: true})
	mustInsertBookmark(t, s, &models.Bookmark{ID: "b2", CategoryID: "deleted", Synced: true})

	res := NewRepairer(s, nil, logging.Nop()).Run(ctx)
	assert.EqualValues(t, 1, res.Orphans)

	list, err := s.Repos().Bookmarks.List(ctx)
	require.NoError(t, err)
	for _, b := range list {
		if b.CategoryID != "" {
			_, err := s.Repos().Categories.Get(ctx, b.CategoryID)
			require.NoError(t, err, "bookmark %s points at a missing category", b.ID)
		}
	}

	b2, err := s.Repos().Bookmarks.Get(ctx, "b2")
	require.NoError(t, err)
	assert.Empty(t, b2.CategoryID)
	assert.True(t, b2.Dirty)

	c1, err := s.Repos().Categories.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, c1.BookmarkCount)
}

func TestRepair_EncryptionConverges(t *testing.T) {
	s := openStore(t)
	ci := newCipher(t)
	ctx := context.Background()

	mustInsertCategory(t, s, &models.Category{ID: "c1", Name: layered(t, ci, "Work", 1), IsEncrypted: true, Synced: true})
	mustInsertBookmark(t, s, &models.Bookmark{
		ID:     "b1",
		Title:  layered(t, ci, "Twice", 2),
		URL:    layered(t, ci, "https://example.com", 1),
		Note:   "plain note",
		Tags:   []string{layered(t, ci, "go", 2), "plain"},
		Synced: true,
	})
	mustInsertBookmark(t, s, &models.Bookmark{ID: "b2", Title: "already plain", Synced: true})

	r := NewRepairer(s, ci, logging.Nop())
	passes, changed, err := r.Encryption(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, passes, "two peeling passes and one quiet pass")
	assert.Equal(t, 3, changed)

	b1, err := s.Repos().Bookmarks.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Twice", b1.Title)
	assert.Equal(t, "https://example.com", b1.URL)
	assert.Equal(t, "plain note", b1.Note)
	assert.Equal(t, []string{"go", "plain"}, b1.Tags)
	assert.True(t, b1.Dirty)
	assert.False(t, b1.IsEncrypted)

	c1, err := s.Repos().Categories.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Work", c1.Name)
	assert.True(t, c1.Dirty)

	b2, err := s.Repos().Bookmarks.Get(ctx, "b2")
	require.NoError(t, err)
	assert.False(t, b2.Dirty)

	passes, changed, err = r.Encryption(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, passes)
	assert.Zero(t, changed)
}

func TestRepair_EncryptionIsBounded(t *testing.T) {
	s := openStore(t)
	ci := newCipher(t)
	ctx := context.Background()

	mustInsertBookmark(t, s, &models.Bookmark{ID: "b1", Title: layered(t, ci, "deep", MaxEncryptionPasses+1)})

	passes, changed, err := NewRepairer(s, ci, logging.Nop()).Encryption(ctx)
	require.NoError(t, err)
	assert.Equal(t, MaxEncryptionPasses, passes)
	assert.Equal(t, MaxEncryptionPasses, changed)

	b1, err := s.Repos().Bookmarks.Get(ctx, "b1")
	require.NoError(t, err)
	plain, ok := ci.Decrypt(b1.Title)
	require.True(t, ok, "one layer is left for the next cycle")
	assert.Equal(t, "deep", plain)
}

func TestRepair_EncryptionSkippedWithoutKey(t *testing.T) {
	s := openStore(t)
	ci := newCipher(t)
	enc := layered(t, ci, "x", 1)
	ci.ClearKey()

	mustInsertBookmark(t, s, &models.Bookmark{ID: "b1", Title: enc})

	passes, changed, err := NewRepairer(s, ci, logging.Nop()).Encryption(context.Background())
	require.NoError(t, err)
	assert.Zero(t, passes)
	assert.Zero(t, changed)
}
