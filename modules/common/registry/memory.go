package registry

import (
	"container/list"
	"context"
	"sync"
)

// Memory - process-local bounded registry; the oldest insertion is evicted at capacity
type Memory struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List
}

// NewMemory - capacity <= 0 means unbounded
func NewMemory(capacity int) *Memory {
	return &Memory{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (m *Memory) Put(ctx context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.Asset.Data = append([]byte(nil), entry.Asset.Data...)
	if el, ok := m.entries[entry.ProjectID]; ok {
		el.Value = entry
		m.order.MoveToBack(el)
		return nil
	}

	m.entries[entry.ProjectID] = m.order.PushBack(entry)
	for m.capacity > 0 && m.order.Len() > m.capacity {
		oldest := m.order.Front()
		m.order.Remove(oldest)
		delete(m.entries, oldest.Value.(Entry).ProjectID)
	}
	return nil
}

func (m *Memory) Get(ctx context.Context, projectID string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.entries[projectID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	entry := el.Value.(Entry)
	entry.Asset.Data = append([]byte(nil), entry.Asset.Data...)
	return entry, nil
}

func (m *Memory) Delete(ctx context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.entries[projectID]; ok {
		m.order.Remove(el)
		delete(m.entries, projectID)
	}
	return nil
}

// List - project ids, least recently accepted first
func (m *Memory) List(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, m.order.Len())
	for el := m.order.Front(); el != nil; el = el.Next() {
		ids = append(ids, el.Value.(Entry).ProjectID)
	}
	return ids, nil
}

// Len - number of entries held
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
