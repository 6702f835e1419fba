package cache

import (
	"context"
	"sync"
	"time"
)

// Store is a process-wide keyed cache. Values are opaque bytes with an
// absolute expiry; readers never see expired entries. Concurrent writers to
// the same key race last-write-wins, which is fine because every cached value
// is cheaply recomputable.
type Store interface {
	// Get returns the cached value for key, or ok=false when the key is
	// absent or expired.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	// Set stores data under key for ttl, replacing any previous entry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Remove deletes the entry for key if present.
	Remove(ctx context.Context, key string) error
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store for redis-less deployments and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory cache store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the value for key, dropping it when expired
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if s.now().After(entry.expiresAt) {
		delete(s.entries, key)
		return nil, false, nil
	}
	return entry.data, true, nil
}

// Set stores data under key until now+ttl
func (s *MemoryStore) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{
		data:      data,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// Remove deletes the entry for key
func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}
