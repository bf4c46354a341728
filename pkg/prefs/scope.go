package prefs

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/owlet/pkg/core"
)

// Scope is one layer of the preference chain. Reads fall back to the parent
// when the key is not stored locally; writes only ever touch the local
// values. Every write is atomic with respect to other operations on the
// same scope.
type Scope struct {
	id     string
	parent *Scope
	store  Store
	notify func(EventType, Event)

	mu     sync.RWMutex
	values map[string]Value
}

// NewScope creates an unpersisted scope. Most callers get scopes from a
// Service instead.
func NewScope(id string, parent *Scope) *Scope {
	return newScope(id, parent, nil, nil, nil)
}

func newScope(id string, parent *Scope, store Store, values map[string]Value, notify func(EventType, Event)) *Scope {
	if values == nil {
		values = make(map[string]Value)
	}
	return &Scope{id: id, parent: parent, store: store, values: values, notify: notify}
}

// ID returns the scope id ("default", "global", "entity/<kind>/<key>").
func (s *Scope) ID() string { return s.id }

// Parent returns the scope reads fall back to, nil for the root.
func (s *Scope) Parent() *Scope { return s.parent }

// Keys returns the locally stored keys, sorted.
func (s *Scope) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Local returns the value stored in this scope only.
func (s *Scope) Local(key string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Lookup resolves key through the chain and reports the scope that holds it.
func (s *Scope) Lookup(key string) (Value, *Scope, bool) {
	for scope := s; scope != nil; scope = scope.parent {
		if v, ok := scope.Local(key); ok {
			return v, scope, true
		}
	}
	return Value{}, nil, false
}

// Get resolves key through the chain. An absent key is not an error.
func (s *Scope) Get(key string) (Value, bool) {
	v, _, ok := s.Lookup(key)
	return v, ok
}

func (s *Scope) typed(key string, t Type) (Value, bool) {
	v, ok := s.Get(key)
	if ok {
		v.expect(t)
	}
	return v, ok
}

// GetBoolean returns a Boolean preference. ok is false when the key is unset.
func (s *Scope) GetBoolean(key string) (value bool, ok bool) {
	if v, ok := s.typed(key, Boolean); ok {
		return v.AsBoolean(), true
	}
	return false, false
}

// GetInteger returns an Integer preference.
func (s *Scope) GetInteger(key string) (int32, bool) {
	if v, ok := s.typed(key, Integer); ok {
		return v.AsInteger(), true
	}
	return 0, false
}

// GetLong returns a Long preference.
func (s *Scope) GetLong(key string) (int64, bool) {
	if v, ok := s.typed(key, Long); ok {
		return v.AsLong(), true
	}
	return 0, false
}

// GetString returns a String preference.
func (s *Scope) GetString(key string) (string, bool) {
	if v, ok := s.typed(key, String); ok {
		return v.AsString(), true
	}
	return "", false
}

// GetBooleans returns a BooleanArray preference, nil when unset.
func (s *Scope) GetBooleans(key string) []bool {
	if v, ok := s.typed(key, BooleanArray); ok {
		return v.AsBooleans()
	}
	return nil
}

// GetIntegers returns an IntegerArray preference, nil when unset.
func (s *Scope) GetIntegers(key string) []int32 {
	if v, ok := s.typed(key, IntegerArray); ok {
		return v.AsIntegers()
	}
	return nil
}

// GetLongs returns a LongArray preference, nil when unset.
func (s *Scope) GetLongs(key string) []int64 {
	if v, ok := s.typed(key, LongArray); ok {
		return v.AsLongs()
	}
	return nil
}

// GetStrings returns a StringArray preference, nil when unset.
func (s *Scope) GetStrings(key string) []string {
	if v, ok := s.typed(key, StringArray); ok {
		return v.AsStrings()
	}
	return nil
}

// Put replaces the whole local value of key. Arrays are never merged.
// A zero Value or empty key is a contract violation. When the scope is
// persisted and the store fails, nothing changes and a
// *core.PersistenceError is returned.
func (s *Scope) Put(ctx context.Context, key string, v Value) error {
	if key == "" {
		core.Violation("preference put with empty key")
	}
	if v.IsZero() {
		core.Violation("preference put of %q with no value", key)
	}

	s.mu.Lock()
	old, existed := s.values[key]
	if existed && old.Equal(v) {
		s.mu.Unlock()
		return nil
	}
	if s.store != nil {
		if err := s.store.Put(ctx, s.id, key, v); err != nil {
			s.mu.Unlock()
			return &core.PersistenceError{Op: "put preference", Key: s.id + "#" + key, Err: err}
		}
	}
	s.values[key] = v
	s.mu.Unlock()

	typ := EventAdded
	if existed {
		typ = EventUpdated
	}
	s.emit(typ, Event{Key: key, Value: v, Scope: s.id})
	return nil
}

func (s *Scope) PutBoolean(ctx context.Context, key string, b bool) error {
	return s.Put(ctx, key, BooleanValue(b))
}

func (s *Scope) PutInteger(ctx context.Context, key string, i int32) error {
	return s.Put(ctx, key, IntegerValue(i))
}

func (s *Scope) PutLong(ctx context.Context, key string, l int64) error {
	return s.Put(ctx, key, LongValue(l))
}

func (s *Scope) PutString(ctx context.Context, key string, str string) error {
	return s.Put(ctx, key, StringValue(str))
}

func (s *Scope) PutBooleans(ctx context.Context, key string, b []bool) error {
	return s.Put(ctx, key, BooleansValue(b))
}

func (s *Scope) PutIntegers(ctx context.Context, key string, v []int32) error {
	return s.Put(ctx, key, IntegersValue(v))
}

func (s *Scope) PutLongs(ctx context.Context, key string, v []int64) error {
	return s.Put(ctx, key, LongsValue(v))
}

func (s *Scope) PutStrings(ctx context.Context, key string, v []string) error {
	return s.Put(ctx, key, StringsValue(v))
}

// Delete removes key from this scope only. Deleting an unset key is a no-op.
func (s *Scope) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	old, existed := s.values[key]
	if !existed {
		s.mu.Unlock()
		return nil
	}
	if s.store != nil {
		if err := s.store.Delete(ctx, s.id, key); err != nil {
			s.mu.Unlock()
			return &core.PersistenceError{Op: "delete preference", Key: s.id + "#" + key, Err: err}
		}
	}
	delete(s.values, key)
	s.mu.Unlock()

	s.emit(EventDeleted, Event{Key: key, Value: old, Scope: s.id})
	return nil
}

// Clear removes every local value. The parent is never touched.
func (s *Scope) Clear(ctx context.Context) error {
	s.mu.Lock()
	if s.store != nil {
		if err := s.store.Clear(ctx, s.id); err != nil {
			s.mu.Unlock()
			return &core.PersistenceError{Op: "clear preferences", Key: s.id, Err: err}
		}
	}
	removed := s.values
	s.values = make(map[string]Value)
	s.mu.Unlock()

	keys := make([]string, 0, len(removed))
	for k := range removed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.emit(EventDeleted, Event{Key: k, Value: removed[k], Scope: s.id})
	}
	return nil
}

func (s *Scope) emit(typ EventType, ev Event) {
	if s.notify != nil {
		s.notify(typ, ev)
	}
}
