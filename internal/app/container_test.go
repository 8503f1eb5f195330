package app

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/outpatient-scheduling/internal/adapters/cache"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/clients/redis"
	"github.com/zatekoja/outpatient-scheduling/pkg/config"
)

func TestQueueCacheStore_FileBackend(t *testing.T) {
	c := &Container{Config: &config.Config{Queue: config.QueueConfig{
		CacheBackend: "file",
		CacheDir:     t.TempDir(),
	}}}

	store, err := c.queueCacheStore()
	require.NoError(t, err)
	assert.IsType(t, &cache.FileQueueCacheStore{}, store)
}

func TestQueueCacheStore_RedisWithoutClientFallsBackToFile(t *testing.T) {
	c := &Container{Config: &config.Config{Queue: config.QueueConfig{
		CacheBackend: "redis",
		CacheDir:     t.TempDir(),
	}}}

	store, err := c.queueCacheStore()
	require.NoError(t, err)
	assert.IsType(t, &cache.FileQueueCacheStore{}, store)
}

func TestQueueCacheStore_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClientFromAddr(mr.Addr())
	t.Cleanup(func() { rc.Close() })

	c := &Container{
		Config: &config.Config{Queue: config.QueueConfig{
			CacheBackend: "redis",
			CacheTTL:     time.Hour,
		}},
		Redis: rc,
	}

	store, err := c.queueCacheStore()
	require.NoError(t, err)
	assert.IsType(t, &cache.RedisQueueCacheStore{}, store)
}

func TestClose_ToleratesPartialContainer(t *testing.T) {
	c := &Container{}
	assert.NotPanics(t, c.Close)
}
