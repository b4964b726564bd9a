package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

// MemoryStore is an in-process CounterStore. Counters are lost on restart and
// are not shared between instances.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*window)}
}

// Hit implements CounterStore.
func (s *MemoryStore) Hit(_ context.Context, key string, now time.Time, length time.Duration, limit int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || now.Sub(w.start) >= length {
		s.windows[key] = &window{start: now, count: 1}
		return 1, true, nil
	}
	if w.count >= limit {
		return w.count, false, nil
	}
	w.count++
	return w.count, true, nil
}

// Sweep drops windows that ended before now and returns how many were
// removed.
func (s *MemoryStore) Sweep(now time.Time, length time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, w := range s.windows {
		if now.Sub(w.start) >= length {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
