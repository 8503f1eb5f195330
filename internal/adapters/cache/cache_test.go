package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/providers"
	redisclient "github.com/zatekoja/outpatient-scheduling/internal/infrastructure/clients/redis"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *redisclient.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisclient.NewClientFromAddr(mr.Addr())
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func sampleCache(day time.Time) *entities.QueueCache {
	c := entities.NewQueueCache(day)
	c.LastKnown = []*entities.QueueEntry{
		{ID: "q1", RequestID: "R1", QueueDate: day, QueuePosition: 1, PriorityRank: 1, SeverityScore: 9, Status: entities.QueueEntryStatusApproved},
		{ID: "q2", RequestID: "R2", QueueDate: day, QueuePosition: 2, PriorityRank: 2, SeverityScore: 8, Status: entities.QueueEntryStatusApproved},
	}
	c.Unavailable = []*entities.QueueEntry{{ID: "q3", RequestID: "R3", Status: entities.QueueEntryStatusUnavailable}}
	c.PendingSync = []string{"q4"}
	c.UpdatedAt = day.Add(9 * time.Hour)
	return c
}

func TestRedisAdapter_GetSetDelete(t *testing.T) {
	mr, client := setupMiniredis(t)
	adapter := NewRedisAdapter(client)
	ctx := context.Background()

	_, err := adapter.Get(ctx, "absent")
	assert.True(t, errors.Is(err, providers.ErrCacheMiss))

	require.NoError(t, adapter.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := adapter.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	require.NoError(t, adapter.Delete(ctx, "k"))
	assert.False(t, mr.Exists("k"))
	require.NoError(t, adapter.Delete(ctx, "k"), "deleting a missing key")
}

func TestFileQueueCacheStore_SaveThenLoad(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileQueueCacheStore(dir)
	require.NoError(t, err)
	ctx := context.Background()
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	loaded, err := store.Load(ctx, day)
	require.NoError(t, err)
	assert.Nil(t, loaded, "no file yet")

	require.NoError(t, store.Save(ctx, sampleCache(day)))

	loaded, err = store.Load(ctx, day.Add(15*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.IsFor(day))
	require.Len(t, loaded.LastKnown, 2)
	assert.Equal(t, "q1", loaded.LastKnown[0].ID)
	assert.Equal(t, entities.QueueEntryStatusApproved, loaded.LastKnown[0].Status)
	require.Len(t, loaded.Unavailable, 1)
	assert.Equal(t, []string{"q4"}, loaded.PendingSync)

	other, err := store.Load(ctx, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestFileQueueCacheStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileQueueCacheStore(dir)
	require.NoError(t, err)
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(context.Background(), sampleCache(day)))
	}

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "queue-2025-03-10.yaml", files[0].Name())
}

func TestFileQueueCacheStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileQueueCacheStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "queue-2025-03-10.yaml"), []byte("last_known: [\n"), 0o644))

	_, err = store.Load(context.Background(), time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)
}

func TestRedisQueueCacheStore_SaveThenLoad(t *testing.T) {
	mr, client := setupMiniredis(t)
	store := NewRedisQueueCacheStore(NewRedisAdapter(client), 48*time.Hour)
	ctx := context.Background()
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	loaded, err := store.Load(ctx, day)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	require.NoError(t, store.Save(ctx, sampleCache(day)))
	assert.True(t, mr.Exists("queue:cache:2025-03-10"))
	assert.Equal(t, 48*time.Hour, mr.TTL("queue:cache:2025-03-10"))

	loaded, err = store.Load(ctx, day)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Len(t, loaded.LastKnown, 2)
	assert.Equal(t, []string{"q4"}, loaded.PendingSync)
}

func TestRedisRunLock_ExclusiveUntilReleased(t *testing.T) {
	mr, client := setupMiniredis(t)
	lock := NewRedisRunLock(client)
	ctx := context.Background()

	token, ok, err := lock.TryAcquire(ctx, "triage-batch", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = lock.TryAcquire(ctx, "triage-batch", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lock.Release(ctx, "triage-batch", "someone-else"))
	assert.True(t, mr.Exists("lock:triage-batch"), "foreign token must not release")

	require.NoError(t, lock.Release(ctx, "triage-batch", token))
	assert.False(t, mr.Exists("lock:triage-batch"))

	_, ok, err = lock.TryAcquire(ctx, "triage-batch", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisRunLock_ExpiredLeaseCanBeRetaken(t *testing.T) {
	mr, client := setupMiniredis(t)
	lock := NewRedisRunLock(client)
	ctx := context.Background()

	_, ok, err := lock.TryAcquire(ctx, "triage-batch", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	_, ok, err = lock.TryAcquire(ctx, "triage-batch", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryRunLock(t *testing.T) {
	lock := NewMemoryRunLock()
	now := time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)
	lock.now = func() time.Time { return now }
	ctx := context.Background()

	token, ok, err := lock.TryAcquire(ctx, "triage-batch", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = lock.TryAcquire(ctx, "triage-batch", time.Minute)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	second, ok, _ := lock.TryAcquire(ctx, "triage-batch", time.Minute)
	assert.True(t, ok, "expired lease is retaken")

	require.NoError(t, lock.Release(ctx, "triage-batch", token))
	_, ok, _ = lock.TryAcquire(ctx, "triage-batch", time.Minute)
	assert.False(t, ok, "stale token must not release the new holder")

	require.NoError(t, lock.Release(ctx, "triage-batch", second))
	_, ok, _ = lock.TryAcquire(ctx, "triage-batch", time.Minute)
	assert.True(t, ok)
}
