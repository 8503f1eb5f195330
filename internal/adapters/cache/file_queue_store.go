package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/providers"
)

// FileQueueCacheStore keeps one YAML file per queue day. Writes go to a temp
// file that is fsynced and renamed over the target, so a crash leaves either
// the old or the new cache and never a torn one.
type FileQueueCacheStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileQueueCacheStore creates the store, creating dir if needed
func NewFileQueueCacheStore(dir string) (*FileQueueCacheStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create queue cache dir: %w", err)
	}
	return &FileQueueCacheStore{dir: dir}, nil
}

var _ providers.QueueCacheStore = (*FileQueueCacheStore)(nil)

func (s *FileQueueCacheStore) path(day time.Time) string {
	return filepath.Join(s.dir, "queue-"+day.Format("2006-01-02")+".yaml")
}

// Load reads the cache for day, or nil if none was saved
func (s *FileQueueCacheStore) Load(ctx context.Context, day time.Time) (*entities.QueueCache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := os.ReadFile(s.path(entities.DayOf(day)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read queue cache: %w", err)
	}

	var cache entities.QueueCache
	if err := yaml.Unmarshal(content, &cache); err != nil {
		return nil, fmt.Errorf("decode queue cache: %w", err)
	}
	return &cache, nil
}

// Save atomically replaces the file for cache.QueueDate
func (s *FileQueueCacheStore) Save(ctx context.Context, cache *entities.QueueCache) error {
	if cache == nil {
		return errors.New("nil queue cache")
	}
	content, err := yaml.Marshal(cache)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return atomicWrite(s.path(entities.DayOf(cache.QueueDate)), content)
}

func atomicWrite(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".queue-cache-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}
