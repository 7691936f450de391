package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/marksync/internal/client/models"
)

func TestSealBookmark_WithoutKeySendsPlaintext(t *testing.T) {
	ci := newCipher(t)
	ci.ClearKey()

	p := models.BookmarkPayload{ID: "b1", Title: "t", IsEncrypted: true}
	require.NoError(t, sealBookmark(ci, &p))
	assert.Equal(t, "t", p.Title)
	assert.False(t, p.IsEncrypted)
}

func TestSealBookmark_DoesNotAliasTags(t *testing.T) {
	ci := newCipher(t)
	tags := []string{"a", "b"}
	p := models.BookmarkPayload{ID: "b1", Title: "t", Tags: tags}

	require.NoError(t, sealBookmark(ci, &p))
	assert.Equal(t, []string{"a", "b"}, tags)
	for i, enc := range p.Tags {
		plain, ok := ci.Decrypt(enc)
		require.True(t, ok)
		assert.Equal(t, tags[i], plain)
	}
}

func TestDecryptBookmark_PeelsOneLayer(t *testing.T) {
	ci := newCipher(t)
	b := models.Bookmark{
		Title:       layered(t, ci, "title", 2),
		Note:        "note",
		IsEncrypted: true,
	}

	require.True(t, decryptBookmark(ci, &b))
	assert.False(t, b.IsEncrypted)
	inner, ok := ci.Decrypt(b.Title)
	require.True(t, ok)
	assert.Equal(t, "title", inner)

	require.True(t, decryptBookmark(ci, &b))
	assert.Equal(t, "title", b.Title)
	assert.False(t, decryptBookmark(ci, &b))
}

func TestPlainCipher(t *testing.T) {
	c := plainCipher{}
	cat := models.Category{Name: "x"}
	assert.False(t, decryptCategory(c, &cat))

	p := models.CategoryPayload{Name: "x"}
	require.NoError(t, sealCategory(c, &p))
	assert.Equal(t, "x", p.Name)
	assert.False(t, p.IsEncrypted)
}
