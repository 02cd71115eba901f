package ledger

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. Entries live for the process lifetime.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	entries map[Kind][]*Entry
	byKey   map[string]*Entry
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[Kind][]*Entry),
		byKey:   make(map[string]*Entry),
	}
}

// Append implements Store.
func (m *MemoryStore) Append(_ context.Context, e *Entry) (*Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.IdempotencyKey != "" {
		if existing, ok := m.byKey[e.IdempotencyKey]; ok {
			return existing.Clone(), true, nil
		}
	}

	m.nextID++
	stored := e.Clone()
	stored.ID = m.nextID
	m.entries[e.Kind] = append(m.entries[e.Kind], stored)
	if stored.IdempotencyKey != "" {
		m.byKey[stored.IdempotencyKey] = stored
	}
	return stored.Clone(), false, nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, kind Kind) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Entry, 0, len(m.entries[kind]))
	for _, e := range m.entries[kind] {
		out = append(out, e.Clone())
	}
	return out, nil
}

// Latest implements Store.
func (m *MemoryStore) Latest(_ context.Context, kind Kind) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.entries[kind]
	if len(list) == 0 {
		return nil, nil
	}
	return list[len(list)-1].Clone(), nil
}
