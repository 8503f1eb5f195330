package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/providers"
)

const queueCacheKeyPrefix = "queue:cache:"

// RedisQueueCacheStore keeps the queue cache as JSON under a per-day key
type RedisQueueCacheStore struct {
	cache providers.CacheProvider
	ttl   time.Duration
}

// NewRedisQueueCacheStore stores caches through cache, expiring them after ttl
func NewRedisQueueCacheStore(cache providers.CacheProvider, ttl time.Duration) *RedisQueueCacheStore {
	return &RedisQueueCacheStore{cache: cache, ttl: ttl}
}

var _ providers.QueueCacheStore = (*RedisQueueCacheStore)(nil)

func queueCacheKey(day time.Time) string {
	return queueCacheKeyPrefix + entities.DayOf(day).Format("2006-01-02")
}

// Load returns the cache for day, or nil on a miss
func (s *RedisQueueCacheStore) Load(ctx context.Context, day time.Time) (*entities.QueueCache, error) {
	raw, err := s.cache.Get(ctx, queueCacheKey(day))
	if errors.Is(err, providers.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cache entities.QueueCache
	if err := json.Unmarshal(raw, &cache); err != nil {
		return nil, fmt.Errorf("decode queue cache: %w", err)
	}
	return &cache, nil
}

// Save overwrites the cache for cache.QueueDate
func (s *RedisQueueCacheStore) Save(ctx context.Context, cache *entities.QueueCache) error {
	if cache == nil {
		return errors.New("nil queue cache")
	}
	raw, err := json.Marshal(cache)
	if err != nil {
		return fmt.Errorf("encode queue cache: %w", err)
	}
	return s.cache.Set(ctx, queueCacheKey(cache.QueueDate), raw, s.ttl)
}
