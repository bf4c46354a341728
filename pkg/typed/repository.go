// Package typed offers type-safe views over the model service and the
// preference scopes.
package typed

import (
	"context"
	"fmt"

	"github.com/aretw0/owlet/pkg/core"
)

// Repository is a typed view of one entity kind of a core.Service.
type Repository[E core.Entity] struct {
	svc *core.Service
}

// NewRepository creates a type-safe wrapper around an existing service.
func NewRepository[E core.Entity](svc *core.Service) *Repository[E] {
	return &Repository[E]{svc: svc}
}

// Kind returns the entity kind handled by the repository.
func (r *Repository[E]) Kind() core.Kind {
	var zero E
	return zero.Kind()
}

// Get resolves a reference.
func (r *Repository[E]) Get(ctx context.Context, ref core.Ref[E]) (E, bool, error) {
	return ref.Resolve(ctx, r.svc)
}

// List returns every stored entity of the kind.
func (r *Repository[E]) List(ctx context.Context) ([]E, error) {
	ents, err := r.svc.List(ctx, r.Kind())
	if err != nil {
		return nil, err
	}
	out := make([]E, 0, len(ents))
	for _, ent := range ents {
		typed, ok := ent.(E)
		if !ok {
			return nil, fmt.Errorf("unexpected %T in %s listing", ent, r.Kind())
		}
		out = append(out, typed)
	}
	return out, nil
}

// Save stores entities in one transaction.
func (r *Repository[E]) Save(ctx context.Context, entities ...E) error {
	generic := make([]core.Entity, len(entities))
	for i, e := range entities {
		generic[i] = e
	}
	return r.svc.Save(ctx, generic...)
}

// Delete removes the referenced entities in one transaction.
func (r *Repository[E]) Delete(ctx context.Context, refs ...core.Ref[E]) error {
	generic := make([]core.Reference, len(refs))
	for i, ref := range refs {
		generic[i] = ref
	}
	return r.svc.Delete(ctx, generic...)
}

// Listener receives references to the entities of a batch, never the
// entities themselves. Nil fields are skipped.
type Listener[E core.Entity] struct {
	OnAdded   func(refs []core.Ref[E])
	OnUpdated func(refs []core.Ref[E])
	OnDeleted func(refs []core.Ref[E])
}

// Listen registers l on the service bus for this kind.
func (r *Repository[E]) Listen(l Listener[E]) (remove func()) {
	return r.svc.AddListener(r.Kind(), core.ListenerFuncs{
		OnAdded:   adapt(l.OnAdded),
		OnUpdated: adapt(l.OnUpdated),
		OnDeleted: adapt(l.OnDeleted),
	})
}

func adapt[E core.Entity](fn func([]core.Ref[E])) func([]core.ModelEvent) {
	if fn == nil {
		return nil
	}
	return func(events []core.ModelEvent) {
		refs := make([]core.Ref[E], 0, len(events))
		for _, ev := range events {
			if typed, ok := ev.Entity().(E); ok {
				refs = append(refs, core.RefOf(typed))
			}
		}
		fn(refs)
	}
}
