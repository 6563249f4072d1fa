package ratewindow

import (
	"context"
	"sync"
	"time"
)

const memoryShards = 32

type memoryEntry struct {
	count     int64
	windowEnd time.Time
}

type memoryShard struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// MemoryStore is an in-process Store. Each key lives in one of a fixed
// number of mutex-guarded shards, so concurrent increments of the same key
// are linearized and never lose updates.
//
// Windows are created lazily on first increment and never deleted inline;
// call PurgeExpired periodically to reclaim memory for dead keys.
type MemoryStore struct {
	shards [memoryShards]memoryShard

	now func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{now: time.Now}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]*memoryEntry)
	}
	return s
}

func (s *MemoryStore) shard(key string) *memoryShard {
	// FNV-1a, inlined to avoid an allocation per lookup.
	var h uint32 = 2166136261
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return &s.shards[h%memoryShards]
}

// Peek implements Store.
func (s *MemoryStore) Peek(_ context.Context, key string) (int64, time.Duration, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, ok := sh.entries[key]
	if !ok {
		return 0, 0, nil
	}

	now := s.now()
	if !now.Before(entry.windowEnd) {
		return 0, 0, nil
	}
	return entry.count, entry.windowEnd.Sub(now), nil
}

// Incr implements Store.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := s.now()
	entry, ok := sh.entries[key]
	if !ok || !now.Before(entry.windowEnd) {
		sh.entries[key] = &memoryEntry{count: 1, windowEnd: now.Add(window)}
		return 1, nil
	}

	entry.count++
	return entry.count, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	delete(sh.entries, key)
	return nil
}

// PurgeExpired removes every entry whose window has elapsed and returns
// the number removed.
func (s *MemoryStore) PurgeExpired() int {
	now := s.now()
	removed := 0

	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, entry := range sh.entries {
			if !now.Before(entry.windowEnd) {
				delete(sh.entries, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// SetClock overrides the time source. Intended for tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}
