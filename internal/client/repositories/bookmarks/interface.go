package bookmarks

import (
	"context"

	"github.com/dmitrijs2005/marksync/internal/client/models"
)

// Repository defines bookmark persistence.
type Repository interface {
	// Get returns common.ErrNotFound when no row has the id.
	Get(ctx context.Context, id string) (*models.Bookmark, error)
	Insert(ctx context.Context, b *models.Bookmark) error
	// Update overwrites the row with b.ID; common.ErrNotFound if absent.
	Update(ctx context.Context, b *models.Bookmark) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.Bookmark, error)
	ListDirty(ctx context.Context) ([]*models.Bookmark, error)
	ListByCategory(ctx context.Context, categoryID string) ([]*models.Bookmark, error)

	// RemapCategory points every bookmark referencing oldID at newID and
	// marks those bookmarks dirty.
	RemapCategory(ctx context.Context, oldID, newID string) (int64, error)
	// ClearCategory detaches bookmarks from categoryID and marks them dirty.
	ClearCategory(ctx context.Context, categoryID string) (int64, error)
	// ClearOrphaned detaches bookmarks whose category no longer exists.
	ClearOrphaned(ctx context.Context) (int64, error)

	Count(ctx context.Context) (int, error)
	DeleteAll(ctx context.Context) error
}
