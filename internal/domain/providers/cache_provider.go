package providers

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when the key does not exist
var ErrCacheMiss = errors.New("cache miss")

// CacheProvider is a byte-valued key/value store with expiry
type CacheProvider interface {
	// Get retrieves a value, or ErrCacheMiss
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key; a zero ttl keeps it until deleted
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
