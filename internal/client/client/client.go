package client

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/marksync/internal/client/models"
)

// File is an in-memory attachment sent as a multipart file part.
type File struct {
	Name string
	Data []byte
}

// TokenSource supplies the bearer token. It returns ErrNotAuthenticated
// when there is no usable token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client is the set of server calls the sync engine depends on.
type Client interface {
	// Delta fetches changes since cursor; a nil cursor requests everything.
	Delta(ctx context.Context, cursor json.RawMessage) (*models.DeltaResponse, error)
	UpsertBookmarks(ctx context.Context, items []models.BookmarkPayload) ([]models.BookmarkPayload, error)
	// UpsertBookmarkMultipart sends one bookmark together with its media.
	UpsertBookmarkMultipart(ctx context.Context, item models.BookmarkPayload, images []File, doc *File) ([]models.BookmarkPayload, error)
	UpsertCategories(ctx context.Context, items []models.CategoryPayload) ([]models.CategoryPayload, error)
	DeleteBookmark(ctx context.Context, id string) error
	DeleteCategory(ctx context.Context, id string) error
	UploadMedia(ctx context.Context, f File) (*models.MediaUploadResponse, error)
	// Ping reports whether the server answers at all.
	Ping(ctx context.Context) error
}
