package prefs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/aretw0/introspection"

	"github.com/aretw0/owlet/pkg/core"
)

const (
	DefaultScopeID = "default"
	GlobalScopeID  = "global"
)

// EntityScopeID returns the id of the scope holding overrides for an entity.
func EntityScopeID(ref core.Reference) string {
	return "entity/" + string(ref.Kind()) + "/" + ref.Key()
}

// Config configures a Service.
type Config struct {
	// Store persists Global and Entity scopes. Nil keeps them in memory.
	Store  Store
	Logger *slog.Logger
}

// Service owns the scope chain. It is built once by the host and passed to
// every component that needs preferences.
type Service struct {
	store    Store
	logger   *slog.Logger
	notifier *notifier

	defaults *Scope
	global   *Scope

	initOnce sync.Once
	report   InitReport

	mu       sync.Mutex
	entities int
}

// NewService builds the Default scope (empty until Initialize) and loads the
// Global scope from the store.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:    cfg.Store,
		logger:   logger,
		notifier: &notifier{logger: logger},
	}
	s.defaults = newScope(DefaultScopeID, nil, nil, nil, s.notifier.emit)

	values, err := s.load(ctx, GlobalScopeID)
	if err != nil {
		return nil, err
	}
	s.global = newScope(GlobalScopeID, s.defaults, s.store, values, s.notifier.emit)
	return s, nil
}

func (s *Service) load(ctx context.Context, id string) (map[string]Value, error) {
	if s.store == nil {
		return nil, nil
	}
	values, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, &core.PersistenceError{Op: "load preferences", Key: id, Err: err}
	}
	return values, nil
}

// Default returns the root scope, seeded by initializers.
func (s *Service) Default() *Scope { return s.defaults }

// Global returns the application-wide scope whose parent is Default.
func (s *Service) Global() *Scope { return s.global }

// EntityScope returns a new scope for the entity, parented to Global.
// Instances are not cached: two calls for the same entity return distinct
// scopes loaded from the same stored values.
func (s *Service) EntityScope(ctx context.Context, entity core.Entity) (*Scope, error) {
	if entity == nil || entity.NaturalKey() == "" {
		core.Violation("entity scope for unsaved or nil entity")
	}
	return s.ReferenceScope(ctx, core.RefFor(entity))
}

// ReferenceScope is EntityScope for callers holding only a reference.
func (s *Service) ReferenceScope(ctx context.Context, ref core.Reference) (*Scope, error) {
	if ref == nil {
		core.Violation("entity scope for nil reference")
	}
	id := EntityScopeID(ref)
	values, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.entities++
	s.mu.Unlock()
	return newScope(id, s.global, s.store, values, s.notifier.emit), nil
}

// AddListener registers l for changes in any scope. With patterns, only
// keys matching one of them (doublestar syntax, e.g. "update.*") are
// delivered. The returned func removes the listener.
func (s *Service) AddListener(l Listener, patterns ...string) (remove func()) {
	return s.notifier.add(l, patterns)
}

// Initialize runs every initializer of reg against the Default scope. It
// only has an effect the first time it is called.
//
// Each initializer writes into its own staging scope; values are copied
// into Default only when it returns without error or panic, so a failing
// initializer leaves no partial state behind. Failures are logged and
// skipped.
func (s *Service) Initialize(ctx context.Context, reg *Registry) InitReport {
	s.initOnce.Do(func() {
		s.report = InitReport{Failed: make(map[string]error)}
		for _, e := range reg.snapshot() {
			if err := s.runInitializer(ctx, e); err != nil {
				s.report.Failed[e.name] = err
				s.logger.Error("preference initializer failed", "name", e.name, "error", err)
				continue
			}
			s.report.Ran = append(s.report.Ran, e.name)
		}
	})
	return s.report
}

func (s *Service) runInitializer(ctx context.Context, e namedInitializer) (err error) {
	staging := NewScope(DefaultScopeID, nil)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("initializer panic: %v", r)
			if s.logger.Enabled(ctx, slog.LevelDebug) {
				s.logger.Debug("initializer panic stack", "name", e.name, "stack", string(debug.Stack()))
			}
		}
	}()

	if err := e.init.Initialize(ctx, staging); err != nil {
		return err
	}

	for _, key := range staging.Keys() {
		v, _ := staging.Local(key)
		if err := s.defaults.Put(ctx, key, v); err != nil {
			return errors.Join(fmt.Errorf("failed to seed %q", key), err)
		}
	}
	return nil
}

// Close releases the store when it holds resources.
func (s *Service) Close() error {
	if c, ok := s.store.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// ServiceState exposes internal state for observability.
type ServiceState struct {
	DefaultKeys  int      `json:"default_keys"`
	GlobalKeys   int      `json:"global_keys"`
	EntityScopes int      `json:"entity_scopes_built"`
	Initializers []string `json:"initializers"`
	FailedInit   []string `json:"failed_initializers,omitempty"`
	Persistent   bool     `json:"persistent"`
}

// State implements introspection.Introspectable.
func (s *Service) State() any {
	s.mu.Lock()
	entities := s.entities
	s.mu.Unlock()

	var failed []string
	for name := range s.report.Failed {
		failed = append(failed, name)
	}
	return ServiceState{
		DefaultKeys:  len(s.defaults.Keys()),
		GlobalKeys:   len(s.global.Keys()),
		EntityScopes: entities,
		Initializers: s.report.Ran,
		FailedInit:   failed,
		Persistent:   s.store != nil,
	}
}

// ComponentType implements introspection.Component.
func (s *Service) ComponentType() string { return "preference-service" }

var _ introspection.Introspectable = (*Service)(nil)
var _ introspection.Component = (*Service)(nil)
