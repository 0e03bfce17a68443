// internal/storage/history/memory.go
package history

import (
	"context"
	"sync"
	"time"

	"github.com/newthinker/botdash/internal/core"
)

// MemoryStore is a bounded in-memory signal history.
type MemoryStore struct {
	entries []Entry
	index   map[string]int
	maxSize int
	now     func() time.Time
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory store with max capacity.
func NewMemoryStore(maxSize int) *MemoryStore {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &MemoryStore{
		entries: make([]Entry, 0, maxSize),
		index:   make(map[string]int, maxSize),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Save adds a signal unless one with the same key is stored.
func (m *MemoryStore) Save(ctx context.Context, signal core.Signal) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := signal.Key()
	if _, ok := m.index[key]; ok {
		return false, nil
	}

	m.entries = append(m.entries, Entry{Key: key, Signal: signal, SeenAt: m.now()})

	// Trim if over capacity (remove oldest)
	if len(m.entries) > m.maxSize {
		m.entries = append(m.entries[:0:0], m.entries[len(m.entries)-m.maxSize:]...)
	}
	m.reindex()
	return true, nil
}

func (m *MemoryStore) reindex() {
	clear(m.index)
	for i, e := range m.entries {
		m.index[e.Key] = i
	}
}

// Get retrieves an entry by key.
func (m *MemoryStore) Get(ctx context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.index[key]
	if !ok {
		return nil, core.ErrSignalNotFound
	}
	e := m.entries[i]
	return &e, nil
}

// List returns entries matching the filter, newest first.
func (m *MemoryStore) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []Entry{}
	for i := len(m.entries) - 1; i >= 0; i-- {
		if matches(m.entries[i], filter) {
			result = append(result, m.entries[i])
		}
	}

	// Apply offset and limit
	if filter.Offset >= len(result) {
		return []Entry{}, nil
	}
	if filter.Offset > 0 {
		result = result[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// Count returns the count of matching entries.
func (m *MemoryStore) Count(ctx context.Context, filter ListFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, e := range m.entries {
		if matches(e, filter) {
			count++
		}
	}
	return count, nil
}

func matches(e Entry, filter ListFilter) bool {
	if filter.Type != "" && e.Signal.Type != filter.Type {
		return false
	}
	at := e.SeenAt
	if e.Signal.Timestamp.Valid() {
		at = e.Signal.Timestamp.Time
	}
	if !filter.From.IsZero() && at.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && at.After(filter.To) {
		return false
	}
	return true
}
