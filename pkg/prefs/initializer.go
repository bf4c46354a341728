package prefs

import (
	"context"
	"fmt"
	"sync"
)

// Initializer seeds default values. It receives a handle to the Default
// scope and must not depend on other initializers having run.
type Initializer interface {
	Initialize(ctx context.Context, defaults *Scope) error
}

// InitializerFunc adapts a function to an Initializer.
type InitializerFunc func(ctx context.Context, defaults *Scope) error

func (f InitializerFunc) Initialize(ctx context.Context, defaults *Scope) error {
	return f(ctx, defaults)
}

type namedInitializer struct {
	name string
	init Initializer
}

// Registry is the host-supplied, ordered list of initializers.
type Registry struct {
	mu      sync.Mutex
	entries []namedInitializer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends an initializer under a well-known name.
func (r *Registry) Register(name string, init Initializer) {
	if init == nil {
		panic(fmt.Sprintf("prefs: nil initializer %q", name))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, namedInitializer{name: name, init: init})
}

// RegisterFunc is Register for plain functions.
func (r *Registry) RegisterFunc(name string, fn func(ctx context.Context, defaults *Scope) error) {
	r.Register(name, InitializerFunc(fn))
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}

func (r *Registry) snapshot() []namedInitializer {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]namedInitializer(nil), r.entries...)
}

// InitReport summarizes an initialization run.
type InitReport struct {
	Ran    []string
	Failed map[string]error
}
