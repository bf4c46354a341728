package core

import (
	"context"
	"fmt"
)

// Reference is the kind-erased view of a Ref.
type Reference interface {
	Kind() Kind
	Key() string
	fmt.Stringer
}

// Ref is an immutable handle to an entity of type E.
//
// A Ref only carries the natural key. Two refs built from the same key text
// are == and hash identically when used as map keys. Resolution always goes
// back to the Loader; nothing is cached.
type Ref[E Entity] struct {
	key string
}

// NewRef builds a reference from a natural key. An empty key panics.
func NewRef[E Entity](key string) Ref[E] {
	if key == "" {
		var zero E
		Violation("reference to %s with empty key", zero.Kind())
	}
	return Ref[E]{key: key}
}

// IDRef builds a reference to an id-keyed entity.
func IDRef[E Entity](id int64) Ref[E] {
	if id <= 0 {
		var zero E
		Violation("reference to %s with invalid id %d", zero.Kind(), id)
	}
	return Ref[E]{key: idKey(id)}
}

// LinkRef builds a reference to the feed with the given link.
func LinkRef(link string) Ref[*Feed] {
	return NewRef[*Feed](link)
}

// RefOf returns a reference to a persisted entity.
func RefOf[E Entity](e E) Ref[E] {
	key := e.NaturalKey()
	if key == "" {
		Violation("reference to unsaved or nil %s", e.Kind())
	}
	return Ref[E]{key: key}
}

// Kind returns the kind of the referenced entity.
func (r Ref[E]) Kind() Kind {
	var zero E
	return zero.Kind()
}

// Key returns the natural key.
func (r Ref[E]) Key() string { return r.key }

// IsZero reports whether r is the zero Ref (built without a constructor).
func (r Ref[E]) IsZero() bool { return r.key == "" }

// Equal reports whether both refs point to the same natural key.
func (r Ref[E]) Equal(other Ref[E]) bool { return r.key == other.key }

func (r Ref[E]) String() string { return string(r.Kind()) + ":" + r.key }

// ReferencesSameTarget reports whether e has this reference's kind and
// natural key. It never performs I/O.
func (r Ref[E]) ReferencesSameTarget(e Entity) bool {
	if e == nil || r.key == "" {
		return false
	}
	if e.Kind() != r.Kind() {
		return false
	}
	key := e.NaturalKey()
	return key != "" && key == r.key
}

// Resolve loads the current entity. A deleted entity yields ok == false and
// a nil error; a store failure yields a *PersistenceError.
func (r Ref[E]) Resolve(ctx context.Context, loader Loader) (E, bool, error) {
	var zero E
	if r.key == "" {
		Violation("resolve of zero %s reference", r.Kind())
	}
	if loader == nil {
		Violation("resolve of %s without a loader", r)
	}

	ent, ok, err := loader.Load(ctx, r.Kind(), r.key)
	if err != nil {
		return zero, false, NewPersistenceError("load", r.Kind(), r.key, err)
	}
	if !ok || ent == nil {
		return zero, false, nil
	}

	typed, ok := ent.(E)
	if !ok {
		return zero, false, &PersistenceError{
			Op:   "load",
			Kind: r.Kind(),
			Key:  r.key,
			Err:  fmt.Errorf("unexpected entity type %T", ent),
		}
	}
	return typed, true, nil
}

// RefFor returns the kind-erased reference of a persisted entity.
func RefFor(e Entity) Reference {
	switch v := e.(type) {
	case *Folder:
		return RefOf(v)
	case *BookMark:
		return RefOf(v)
	case *SearchMark:
		return RefOf(v)
	case *NewsBin:
		return RefOf(v)
	case *Feed:
		return RefOf(v)
	case *News:
		return RefOf(v)
	case *Label:
		return RefOf(v)
	case *Attachment:
		return RefOf(v)
	}
	Violation("reference to unsupported entity %T", e)
	return nil
}

// ParseRef builds a kind-erased reference from a kind name and a key.
func ParseRef(kind Kind, key string) (Reference, error) {
	if key == "" {
		return nil, fmt.Errorf("empty key for %s reference", kind)
	}
	switch kind {
	case KindFolder:
		return NewRef[*Folder](key), nil
	case KindBookMark:
		return NewRef[*BookMark](key), nil
	case KindSearchMark:
		return NewRef[*SearchMark](key), nil
	case KindNewsBin:
		return NewRef[*NewsBin](key), nil
	case KindFeed:
		return NewRef[*Feed](key), nil
	case KindNews:
		return NewRef[*News](key), nil
	case KindLabel:
		return NewRef[*Label](key), nil
	case KindAttachment:
		return NewRef[*Attachment](key), nil
	}
	return nil, fmt.Errorf("unknown entity kind %q", kind)
}
