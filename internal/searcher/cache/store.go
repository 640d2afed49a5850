package cache

import (
	"context"
	"path"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/errors"
)

// Store is the key-value backend of the caches and the save-point store.
// Get reports a missing key with an error wrapping errors.ErrNotFound.
// *redis.Client from pkg/redis satisfies it.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type memoryItem struct {
	value   string
	expires time.Time
}

// MemoryStore keeps entries in process memory. It serves single-machine
// deployments without Redis and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryItem), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	item, ok := s.items[key]
	s.mu.RUnlock()
	if !ok || (!item.expires.IsZero() && s.now().After(item.expires)) {
		return "", apperrors.New(apperrors.ErrNotFound, "memory.get", key)
	}
	return item.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	var v string
	switch x := value.(type) {
	case string:
		v = x
	case []byte:
		v = string(x)
	default:
		return apperrors.Newf(apperrors.ErrInvalidInput, "memory.set", "unsupported value type %T", value)
	}
	item := memoryItem{value: v}
	if ttl > 0 {
		item.expires = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.items[key] = item
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.items, k)
	}
	return nil
}

// FlushByPattern deletes the keys matching a Redis-style glob. Keys never
// contain "/", so path.Match globbing agrees with Redis.
func (s *MemoryStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for k := range s.items {
		ok, err := path.Match(pattern, k)
		if err != nil {
			return deleted, apperrors.Newf(apperrors.ErrInvalidInput, "memory.flush", "pattern %q: %v", pattern, err)
		}
		if ok {
			delete(s.items, k)
			deleted++
		}
	}
	return deleted, nil
}

func isMiss(err error) bool {
	return apperrors.Is(err, apperrors.ErrNotFound)
}
