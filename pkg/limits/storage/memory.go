package storage

import (
	"context"
	"sync"
	"time"

	"mercator-hq/governor/pkg/limits/usage"
)

// DefaultMaxAlerts bounds a MemoryStore created with a non-positive size.
const DefaultMaxAlerts = 1000

// MemoryStore keeps the most recent alerts in a fixed-size ring.
// The oldest alert is overwritten once the ring is full. All data is lost
// when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	ring   []Record
	next   int
	size   int
	lastID int64
}

// NewMemoryStore creates a store holding up to maxAlerts alerts.
func NewMemoryStore(maxAlerts int) *MemoryStore {
	if maxAlerts <= 0 {
		maxAlerts = DefaultMaxAlerts
	}
	return &MemoryStore{ring: make([]Record, maxAlerts)}
}

// Save implements AlertStore.
func (m *MemoryStore) Save(_ context.Context, alert usage.Alert) (*Record, error) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastID++
	rec := Record{ID: m.lastID, Alert: alert}
	m.ring[m.next] = rec
	m.next = (m.next + 1) % len(m.ring)
	if m.size < len(m.ring) {
		m.size++
	}
	return &rec, nil
}

// List implements AlertStore.
func (m *MemoryStore) List(_ context.Context, filter Filter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := filter.limit()
	out := make([]Record, 0, min(limit, m.size))
	for i := 1; i <= m.size && len(out) < limit; i++ {
		rec := m.ring[(m.next-i+len(m.ring))%len(m.ring)]
		if filter.matches(rec.Alert) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Cleanup implements AlertStore.
func (m *MemoryStore) Cleanup(_ context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := make([]Record, 0, m.size)
	for i := m.size; i >= 1; i-- {
		rec := m.ring[(m.next-i+len(m.ring))%len(m.ring)]
		if !rec.Timestamp.Before(olderThan) {
			kept = append(kept, rec)
		}
	}

	removed := m.size - len(kept)
	m.ring = make([]Record, len(m.ring))
	copy(m.ring, kept)
	m.size = len(kept)
	m.next = len(kept) % len(m.ring)
	return removed, nil
}

// Len returns the number of stored alerts.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Ping implements AlertStore.
func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close implements AlertStore.
func (m *MemoryStore) Close() error {
	return nil
}
