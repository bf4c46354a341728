package prefs

import (
	"context"
	"maps"
	"sync"
)

// Store persists the local values of scopes. Scope ids are "global" or
// "entity/<kind>/<key>"; the Default scope is never persisted.
type Store interface {
	// Load returns every value stored for a scope. An unknown scope yields
	// an empty map.
	Load(ctx context.Context, scope string) (map[string]Value, error)
	Put(ctx context.Context, scope, key string, v Value) error
	Delete(ctx context.Context, scope, key string) error
	Clear(ctx context.Context, scope string) error
}

// MemoryStore keeps values in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	scopes map[string]map[string]Value

	// FailWith, when set, is returned by every operation.
	FailWith error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scopes: make(map[string]map[string]Value)}
}

func (m *MemoryStore) Load(ctx context.Context, scope string) (map[string]Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	out := maps.Clone(m.scopes[scope])
	if out == nil {
		out = make(map[string]Value)
	}
	return out, nil
}

func (m *MemoryStore) Put(ctx context.Context, scope, key string, v Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	values, ok := m.scopes[scope]
	if !ok {
		values = make(map[string]Value)
		m.scopes[scope] = values
	}
	values[key] = v
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	delete(m.scopes[scope], key)
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	delete(m.scopes, scope)
	return nil
}

var _ Store = (*MemoryStore)(nil)
