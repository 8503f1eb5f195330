package providers

import (
	"context"
	"time"
)

// RunLock is an advisory lease that serializes batch runs
type RunLock interface {
	// TryAcquire takes the lease for ttl. acquired is false, with no error,
	// when another holder has it.
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (token string, acquired bool, err error)

	// Release frees the lease if token still owns it
	Release(ctx context.Context, name, token string) error
}
