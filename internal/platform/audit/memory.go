package audit

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps entries in process. It takes part in dbtest.Runner
// transactions through Snapshot.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
	nextID  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Insert(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *MemoryStore) Search(_ context.Context, p SearchParams) ([]*Entry, int, error) {
	m.mu.RLock()
	var filtered []*Entry
	for _, e := range m.entries {
		if matches(e, p) {
			filtered = append(filtered, e)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].ID > filtered[j].ID
	})

	total := len(filtered)
	start := p.Offset
	if start > total {
		start = total
	}
	end := start + p.Limit
	if end > total || p.Limit <= 0 {
		end = total
	}
	return filtered[start:end], total, nil
}

func matches(e *Entry, p SearchParams) bool {
	if p.Module != "" && e.Module != p.Module {
		return false
	}
	if p.Action != "" && e.ActionCode != p.Action {
		return false
	}
	if p.UserID != 0 && e.UserID != p.UserID {
		return false
	}
	if p.RecordID != 0 && e.RecordID != p.RecordID {
		return false
	}
	if p.From != nil && e.CreatedAt.Before(*p.From) {
		return false
	}
	if p.To != nil && !e.CreatedAt.Before(*p.To) {
		return false
	}
	return true
}

// Entries returns every stored entry in insertion order.
func (m *MemoryStore) Entries() []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Actions lists the action codes in insertion order.
func (m *MemoryStore) Actions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.ActionCode
	}
	return out
}

func (m *MemoryStore) Snapshot() func() {
	m.mu.Lock()
	saved := make([]*Entry, len(m.entries))
	copy(saved, m.entries)
	nextID := m.nextID
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.entries = saved
		m.nextID = nextID
		m.mu.Unlock()
	}
}
