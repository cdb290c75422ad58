package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"
)

// entry is one recorded attempt in an in-memory window.
type entry struct {
	at     time.Time
	member string
}

// window is the in-memory sorted-set equivalent for one identifier.
type window struct {
	entries   []entry
	expiresAt time.Time
}

// MemoryWindowStore is an in-process WindowStore for tests and single-node
// development. It is not shared across processes, so it cannot provide the
// cross-instance accounting the Redis store exists for.
type MemoryWindowStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewMemoryWindowStore creates an empty in-memory store.
func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

var _ WindowStore = (*MemoryWindowStore)(nil)

// Record implements WindowStore.Record. The mutex makes the
// prune/count/insert/expire sequence atomic, mirroring the Redis pipeline.
func (s *MemoryWindowStore) Record(ctx context.Context, key string, windowStart, now time.Time, member string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.get(key)
	w.prune(windowStart)
	count := int64(len(w.entries))
	w.entries = append(w.entries, entry{at: now, member: member})
	w.expiresAt = s.now().Add(ttl)
	return count, nil
}

// Count implements WindowStore.Count.
func (s *MemoryWindowStore) Count(ctx context.Context, key string, windowStart time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		return 0, nil
	}
	w.prune(windowStart)
	return int64(len(w.entries)), nil
}

// Delete implements WindowStore.Delete.
func (s *MemoryWindowStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.windows, key)
	return nil
}

// Cleanup implements WindowStore.Cleanup. It also drops keys whose TTL has
// lapsed, standing in for the native expiry Redis provides.
func (s *MemoryWindowStore) Cleanup(ctx context.Context, prefix string, windowStart time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	deleted := 0
	for key, w := range s.windows {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		w.prune(windowStart)
		if len(w.entries) == 0 || (!w.expiresAt.IsZero() && now.After(w.expiresAt)) {
			delete(s.windows, key)
			deleted++
		}
	}
	return deleted, nil
}

// get returns the window for key, creating it if needed. Caller holds mu.
func (s *MemoryWindowStore) get(key string) *window {
	w, ok := s.windows[key]
	if !ok {
		w = &window{}
		s.windows[key] = w
	}
	return w
}

// prune drops entries recorded before windowStart. Entries are appended in
// time order, so a single scan from the front suffices.
func (w *window) prune(windowStart time.Time) {
	i := 0
	for i < len(w.entries) && w.entries[i].at.Before(windowStart) {
		i++
	}
	if i > 0 {
		w.entries = append(w.entries[:0], w.entries[i:]...)
	}
}
