package kv

import (
	"context"
	"maps"
	"slices"
	"sync"
)

type MemStore struct {
	mu   sync.RWMutex
	data map[string]Entry
}

func NewMemStore() *MemStore {
	return &MemStore{data: map[string]Entry{}}
}

func (m *MemStore) Create(_ context.Context, key string, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return ErrKeyExists
	}
	m.data[key] = clone(entry)
	return nil
}

func (m *MemStore) Put(_ context.Context, key string, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = clone(entry)
	return nil
}

func (m *MemStore) Get(_ context.Context, key string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.data[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return clone(entry), nil
}

func (m *MemStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func clone(e Entry) Entry {
	return Entry{Data: slices.Clone(e.Data), Meta: maps.Clone(e.Meta)}
}

var _ Store = (*MemStore)(nil)
