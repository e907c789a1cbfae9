package store

import "context"

// Store is the persistence primitive behind the settings store. Keys are
// stored verbatim; namespacing is up to the caller.
type Store interface {
	// ListKeys returns the keys starting with prefix, sorted.
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	// GetValue returns nil, nil for a key that does not exist.
	GetValue(ctx context.Context, key string) ([]byte, error)
	PutValue(ctx context.Context, key string, value []byte) error
	// DeleteKey is a no-op for a key that does not exist.
	DeleteKey(ctx context.Context, key string) error
	Close() error
}
