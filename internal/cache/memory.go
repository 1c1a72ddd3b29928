package cache

import (
	"sync"
	"time"

	"github.com/akarpos/quantfolio/internal/domain"
)

// Memory is an in-memory Store used in tests and short-lived runs where no
// cache database is configured.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	series    domain.HistoricalSeries
	storedAt  time.Time
	expiresAt time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) GetSeries(key string, maxAge time.Duration) (*domain.HistoricalSeries, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}

	now := time.Now()
	if !now.Before(e.expiresAt) {
		return nil, false
	}
	if maxAge > 0 && now.Sub(e.storedAt) > maxAge {
		return nil, false
	}

	series := e.series
	return &series, true
}

func (m *Memory) SetSeries(key string, series domain.HistoricalSeries, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.entries[key] = memoryEntry{
		series:    series,
		storedAt:  now,
		expiresAt: now.Add(ttl),
	}
	return nil
}

func (m *Memory) Invalidate(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
