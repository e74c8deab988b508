package notification

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps notifications in process. It takes part in
// dbtest.Runner transactions through Snapshot.
type MemoryStore struct {
	mu     sync.RWMutex
	items  []*Notification
	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Enqueue(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	n.ID = m.nextID
	cp := *n
	m.items = append(m.items, &cp)
	return nil
}

func (m *MemoryStore) ListForUser(_ context.Context, userID int64, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []*Notification
	for i := len(m.items) - 1; i >= 0; i-- {
		n := m.items[i]
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		matched = append(matched, n)
	}
	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *MemoryStore) ClaimUnrelayed(_ context.Context, limit int) ([]*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Notification
	for _, n := range m.items {
		if n.RelayedAt == nil {
			cp := *n
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) MarkRelayed(_ context.Context, ids []int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	for i, n := range m.items {
		if set[n.ID] {
			cp := *n
			stamp := at
			cp.RelayedAt = &stamp
			m.items[i] = &cp
		}
	}
	return nil
}

// All returns every notification in insertion order.
func (m *MemoryStore) All() []*Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Notification, len(m.items))
	copy(out, m.items)
	return out
}

// Types lists notification types in insertion order.
func (m *MemoryStore) Types() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.items))
	for i, n := range m.items {
		out[i] = n.Type
	}
	return out
}

func (m *MemoryStore) Snapshot() func() {
	m.mu.Lock()
	saved := make([]*Notification, len(m.items))
	copy(saved, m.items)
	nextID := m.nextID
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.items = saved
		m.nextID = nextID
		m.mu.Unlock()
	}
}
