package categories

import (
	"context"

	"github.com/dmitrijs2005/marksync/internal/client/models"
)

// Repository defines category persistence.
type Repository interface {
	Get(ctx context.Context, id string) (*models.Category, error)
	Insert(ctx context.Context, c *models.Category) error
	Update(ctx context.Context, c *models.Category) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.Category, error)
	ListDirty(ctx context.Context) ([]*models.Category, error)

	// FindUnsyncedByName returns the first never-synced category named
	// name whose id differs from excludeID, or (nil, nil).
	FindUnsyncedByName(ctx context.Context, name, excludeID string) (*models.Category, error)

	// RefreshBookmarkCounts recomputes BookmarkCount for every category.
	RefreshBookmarkCounts(ctx context.Context) error

	Count(ctx context.Context) (int, error)
	DeleteAll(ctx context.Context) error
}
