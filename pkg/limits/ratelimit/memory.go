package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryWindow struct {
	start  time.Time
	window time.Duration
	count  int64
}

// MemoryStore is an in-process WindowStore. Windows are created lazily on
// the first request and reset once they have elapsed.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
}

// NewMemoryStore creates an empty in-memory window store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*memoryWindow),
	}
}

// Increment implements WindowStore.
func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration, now time.Time) (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.start.Add(w.window)) {
		w = &memoryWindow{start: now, window: window}
		s.windows[key] = w
	}
	w.count++

	return Window{Start: w.start, Count: w.count}, nil
}

// Decrement implements WindowStore.
func (s *MemoryStore) Decrement(_ context.Context, key string, _ time.Duration, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.start.Add(w.window)) {
		return nil
	}
	if w.count > 0 {
		w.count--
	}
	return nil
}

// Sweep drops windows that have elapsed at now and returns how many were
// removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, w := range s.windows {
		if !now.Before(w.start.Add(w.window)) {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live windows.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// Run sweeps expired windows every interval until ctx is cancelled.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}
