package sequence

import (
	"context"
	"sync"
)

type counterKey struct {
	prefix string
	year   int
}

// MemoryStore counts in process. Seed stands in for rows numbered before
// the counter existed.
type MemoryStore struct {
	mu     sync.Mutex
	values map[counterKey]int
	seeds  map[counterKey]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[counterKey]int{}, seeds: map[counterKey]int{}}
}

func (m *MemoryStore) Seed(prefix string, year, existing int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seeds[counterKey{prefix, year}] = existing
}

func (m *MemoryStore) Next(_ context.Context, _ Owner, prefix string, year int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := counterKey{prefix, year}
	v, ok := m.values[k]
	if !ok {
		v = m.seeds[k]
	}
	v++
	m.values[k] = v
	return v, nil
}

func (m *MemoryStore) Peek(_ context.Context, _ Owner, prefix string, year int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := counterKey{prefix, year}
	if v, ok := m.values[k]; ok {
		return v + 1, nil
	}
	return m.seeds[k] + 1, nil
}

func (m *MemoryStore) Snapshot() func() {
	m.mu.Lock()
	saved := make(map[counterKey]int, len(m.values))
	for k, v := range m.values {
		saved[k] = v
	}
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.values = saved
		m.mu.Unlock()
	}
}
