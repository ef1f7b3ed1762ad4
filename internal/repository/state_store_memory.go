package repository

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value     []byte
	expiresAt time.Time
	hasTTL    bool
}

func (e memEntry) isExpired(now time.Time) bool {
	return e.hasTTL && now.After(e.expiresAt)
}

type memoryStateStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

func NewMemoryStateStore() StateStore {
	return newMemoryStateStore(time.Now)
}

func newMemoryStateStore(now func() time.Time) *memoryStateStore {
	return &memoryStateStore{
		entries: make(map[string]memEntry),
		now:     now,
	}
}

func (s *memoryStateStore) SetIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if entry, ok := s.entries[key]; ok && !entry.isExpired(now) {
		return false, nil
	}

	entry := memEntry{value: value}
	if ttl > 0 {
		entry.hasTTL = true
		entry.expiresAt = now.Add(ttl)
	}
	s.entries[key] = entry
	return true, nil
}

func (s *memoryStateStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
