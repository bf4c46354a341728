package typed

import (
	"context"

	"github.com/aretw0/owlet/pkg/prefs"
)

// Key is a preference key bound to a Go type.
type Key[T any] struct {
	name   string
	typ    prefs.Type
	encode func(T) prefs.Value
	decode func(prefs.Value) T
}

func BoolKey(name string) Key[bool] {
	return Key[bool]{name, prefs.Boolean, prefs.BooleanValue, prefs.Value.AsBoolean}
}

func IntKey(name string) Key[int32] {
	return Key[int32]{name, prefs.Integer, prefs.IntegerValue, prefs.Value.AsInteger}
}

func LongKey(name string) Key[int64] {
	return Key[int64]{name, prefs.Long, prefs.LongValue, prefs.Value.AsLong}
}

func StringKey(name string) Key[string] {
	return Key[string]{name, prefs.String, prefs.StringValue, prefs.Value.AsString}
}

func BoolsKey(name string) Key[[]bool] {
	return Key[[]bool]{name, prefs.BooleanArray, prefs.BooleansValue, prefs.Value.AsBooleans}
}

func IntsKey(name string) Key[[]int32] {
	return Key[[]int32]{name, prefs.IntegerArray, prefs.IntegersValue, prefs.Value.AsIntegers}
}

func LongsKey(name string) Key[[]int64] {
	return Key[[]int64]{name, prefs.LongArray, prefs.LongsValue, prefs.Value.AsLongs}
}

func StringsKey(name string) Key[[]string] {
	return Key[[]string]{name, prefs.StringArray, prefs.StringsValue, prefs.Value.AsStrings}
}

// Name returns the preference key.
func (k Key[T]) Name() string { return k.name }

// Type returns the preference type of the key.
func (k Key[T]) Type() prefs.Type { return k.typ }

// Get resolves the key through the scope chain.
func (k Key[T]) Get(s *prefs.Scope) (T, bool) {
	v, ok := s.Get(k.name)
	if !ok {
		var zero T
		return zero, false
	}
	return k.decode(v), true
}

// GetOr returns def when the key is unset in every scope.
func (k Key[T]) GetOr(s *prefs.Scope, def T) T {
	if v, ok := k.Get(s); ok {
		return v
	}
	return def
}

// Put stores v in s.
func (k Key[T]) Put(ctx context.Context, s *prefs.Scope, v T) error {
	return s.Put(ctx, k.name, k.encode(v))
}

// Initializer returns an initializer that seeds the key with def.
func (k Key[T]) Initializer(def T) prefs.Initializer {
	return prefs.InitializerFunc(func(ctx context.Context, defaults *prefs.Scope) error {
		return k.Put(ctx, defaults, def)
	})
}

// Event decodes the value carried by a preference event for this key.
// ok is false for events about other keys.
func (k Key[T]) Event(e prefs.Event) (T, bool) {
	if e.Key != k.name {
		var zero T
		return zero, false
	}
	return k.decode(e.Value), true
}
