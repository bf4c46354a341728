package core

import "context"

// Loader looks up the current state of an entity by natural key.
// A missing entity is reported with ok == false, not with an error.
type Loader interface {
	Load(ctx context.Context, kind Kind, key string) (Entity, bool, error)
}

// Action is the kind of staged mutation.
type Action string

const (
	ActionSave   Action = "save"
	ActionDelete Action = "delete"
)

// Change is one staged mutation handed to Repository.Commit.
// For deletes Entity holds the last known state.
type Change struct {
	Action Action
	Kind   Kind
	Key    string
	Entity Entity
}

// MaxSavedID returns the largest numeric id among the saved entities of
// changes, or zero. Repositories move their id sequence past it on commit.
func MaxSavedID(changes []Change) int64 {
	var top int64
	for _, c := range changes {
		if c.Action != ActionSave {
			continue
		}
		if ided, ok := c.Entity.(identified); ok && ided.EntityID() > top {
			top = ided.EntityID()
		}
	}
	return top
}

// Repository is the persistence collaborator of the model.
// Adhering to this interface keeps the core independent of the underlying
// storage (memory, filesystem, SQL).
type Repository interface {
	Loader

	// List returns every stored entity of a kind, ordered by natural key.
	List(ctx context.Context, kind Kind) ([]Entity, error)

	// Commit applies all changes atomically: either every change is
	// visible afterwards, or none is.
	Commit(ctx context.Context, changes []Change) error

	// NextID allocates a fresh numeric id.
	NextID(ctx context.Context) (int64, error)

	// Initialize ensures the underlying storage is ready (directories, schema).
	Initialize(ctx context.Context) error

	// Close releases the resources held by the repository.
	Close() error
}

// Watchable is implemented by repositories that can report changes made
// outside of this process.
type Watchable interface {
	Watch(ctx context.Context, pattern string) (<-chan ExternalEvent, error)
}
