package providers

import (
	"context"
	"time"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
)

// QueueCacheStore persists the operator's local queue cache across reloads
type QueueCacheStore interface {
	// Load returns the cache saved for day, or nil if there is none
	Load(ctx context.Context, day time.Time) (*entities.QueueCache, error)

	// Save replaces the stored cache for cache.QueueDate
	Save(ctx context.Context, cache *entities.QueueCache) error
}
