// Package metadata persists the small key-value area of the local store:
// the sync cursor, the auth token and the encryption salt.
package metadata

import (
	"context"
)

// Well-known keys.
const (
	KeySyncCursor      = "sync.cursor"
	KeyLastSyncAt      = "sync.last_success_at"
	KeyAuthToken       = "auth.token"
	KeyEncryptionSalt  = "crypto.salt"
	KeyEncryptionCheck = "crypto.verifier"
)

// Repository reads and writes opaque values by key. Get returns (nil, nil)
// for a missing key.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
}
