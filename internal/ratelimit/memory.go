package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

type entry struct {
	count   int
	resetAt time.Time
}

// MemoryStore is the process-local fallback counter store: a mutex-guarded
// map with a probabilistic expiry sweep (about 1% of calls) so abandoned
// keys do not accumulate.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Incr implements Store. An entry whose window has elapsed is replaced by
// a fresh one, never merged.
func (m *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if rand.Intn(100) == 0 {
		m.sweepLocked(now)
	}

	e, ok := m.entries[key]
	if !ok || !now.Before(e.resetAt) {
		e = entry{count: 1, resetAt: now.Add(window)}
	} else {
		e.count++
	}
	m.entries[key] = e
	return e.count, e.resetAt, nil
}

// Len reports the number of live entries. Used by tests and stats.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// sweepLocked drops entries whose window has elapsed. Caller holds m.mu.
func (m *MemoryStore) sweepLocked(now time.Time) {
	for k, e := range m.entries {
		if !now.Before(e.resetAt) {
			delete(m.entries, k)
		}
	}
}
