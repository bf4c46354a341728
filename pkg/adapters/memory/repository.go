// Package memory provides an in-process core.Repository, used by tests and
// by the "memory" adapter.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/introspection"

	"github.com/aretw0/owlet/pkg/core"
)

// Repository keeps entities in maps guarded by a single lock.
type Repository struct {
	mu     sync.RWMutex
	data   map[core.Kind]map[string]core.Entity
	lastID int64
	closed bool

	// FailWith, when set, is returned by every operation. It simulates an
	// unreachable store.
	FailWith error
}

// NewRepository returns an empty repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[core.Kind]map[string]core.Entity)}
}

func (r *Repository) check() error {
	if r.FailWith != nil {
		return r.FailWith
	}
	if r.closed {
		return core.ErrClosed
	}
	return nil
}

// Initialize implements core.Repository.
func (r *Repository) Initialize(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.check()
}

// Load implements core.Loader.
func (r *Repository) Load(ctx context.Context, kind core.Kind, key string) (core.Entity, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.check(); err != nil {
		return nil, false, err
	}
	ent, ok := r.data[kind][key]
	if !ok {
		return nil, false, nil
	}
	return core.Clone(ent), true, nil
}

// List implements core.Repository.
func (r *Repository) List(ctx context.Context, kind core.Kind) ([]core.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.check(); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(r.data[kind]))
	for k := range r.data[kind] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]core.Entity, 0, len(keys))
	for _, k := range keys {
		out = append(out, core.Clone(r.data[kind][k]))
	}
	return out, nil
}

// Commit implements core.Repository.
func (r *Repository) Commit(ctx context.Context, changes []core.Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(); err != nil {
		return err
	}
	for _, c := range changes {
		switch c.Action {
		case core.ActionSave:
			bucket, ok := r.data[c.Kind]
			if !ok {
				bucket = make(map[string]core.Entity)
				r.data[c.Kind] = bucket
			}
			bucket[c.Key] = core.Clone(c.Entity)
		case core.ActionDelete:
			delete(r.data[c.Kind], c.Key)
		}
	}
	r.lastID = max(r.lastID, core.MaxSavedID(changes))
	return nil
}

// NextID implements core.Repository.
func (r *Repository) NextID(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(); err != nil {
		return 0, err
	}
	r.lastID++
	return r.lastID, nil
}

// Close implements core.Repository.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Len returns the number of stored entities of a kind.
func (r *Repository) Len(kind core.Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data[kind])
}

// ComponentType implements introspection.Component.
func (r *Repository) ComponentType() string { return "memory-repository" }

var _ core.Repository = (*Repository)(nil)
var _ introspection.Component = (*Repository)(nil)
