package core

import (
	"fmt"
	"strings"
)

// EventType is the callback a ModelEvent is delivered to.
type EventType string

const (
	EventAdded   EventType = "added"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// ModelEvent reports that one entity was touched by a transaction.
//
// Root events describe the entity the transaction targeted; cascade events
// (IsRoot() == false) describe an entity affected as a side effect, such as
// the folder that lost a child. Events are immutable.
type ModelEvent struct {
	entity    Entity
	root      bool
	oldParent *Folder
}

// NewEvent builds an event for entity.
func NewEvent(entity Entity, isRoot bool) ModelEvent {
	if entity == nil {
		Violation("model event without entity")
	}
	return ModelEvent{entity: entity, root: isRoot}
}

// NewReparentEvent builds an event reporting that entity moved away from
// oldParent.
func NewReparentEvent(entity Entity, isRoot bool, oldParent *Folder) ModelEvent {
	ev := NewEvent(entity, isRoot)
	if oldParent == nil {
		Violation("reparent event for %s without previous parent", entity.Kind())
	}
	ev.oldParent = oldParent
	return ev
}

func (e ModelEvent) Entity() Entity { return e.entity }
func (e ModelEvent) IsRoot() bool   { return e.root }
func (e ModelEvent) Kind() Kind     { return e.entity.Kind() }

// OldParent returns the previous parent of a reparented entity, nil otherwise.
func (e ModelEvent) OldParent() *Folder { return e.oldParent }

// Reference returns a handle to the event's entity so listeners can drop
// the live object and resolve later.
func (e ModelEvent) Reference() Reference { return RefFor(e.entity) }

// NewBatch returns an empty batch for this event's kind. It has no side
// effects; accumulating events is the caller's job.
func (e ModelEvent) NewBatch(txID string) *Batch {
	return &Batch{Kind: e.Kind(), TxID: txID}
}

func (e ModelEvent) String() string {
	s := string(e.Kind()) + ":" + e.entity.NaturalKey()
	if !e.root {
		s += " (cascade)"
	}
	if e.oldParent != nil {
		s += fmt.Sprintf(" from folder:%d", e.oldParent.ID)
	}
	return s
}

// Batch groups the events of one kind produced by one transaction so each
// listener gets one callback per event type instead of one per entity.
type Batch struct {
	Kind    Kind
	TxID    string
	Added   []ModelEvent
	Updated []ModelEvent
	Deleted []ModelEvent
}

// Append adds ev to the list matching typ, preserving creation order.
func (b *Batch) Append(typ EventType, ev ModelEvent) {
	if ev.Kind() != b.Kind {
		Violation("%s event appended to %s batch", ev.Kind(), b.Kind)
	}
	switch typ {
	case EventAdded:
		b.Added = append(b.Added, ev)
	case EventUpdated:
		b.Updated = append(b.Updated, ev)
	case EventDeleted:
		b.Deleted = append(b.Deleted, ev)
	default:
		Violation("unknown event type %q", typ)
	}
}

// Len returns the number of events in the batch.
func (b Batch) Len() int { return len(b.Added) + len(b.Updated) + len(b.Deleted) }

// String implements lifecycle.Event.
func (b Batch) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s tx=%s", b.Kind, b.TxID)
	if n := len(b.Added); n > 0 {
		fmt.Fprintf(&sb, " added=%d", n)
	}
	if n := len(b.Updated); n > 0 {
		fmt.Fprintf(&sb, " updated=%d", n)
	}
	if n := len(b.Deleted); n > 0 {
		fmt.Fprintf(&sb, " deleted=%d", n)
	}
	return sb.String()
}

// Listener receives the batched events of one entity kind.
type Listener interface {
	Added(events []ModelEvent)
	Updated(events []ModelEvent)
	Deleted(events []ModelEvent)
}

// ListenerFuncs adapts plain functions to a Listener. Nil fields are skipped,
// so a listener only implements what it needs.
type ListenerFuncs struct {
	OnAdded   func(events []ModelEvent)
	OnUpdated func(events []ModelEvent)
	OnDeleted func(events []ModelEvent)
}

func (f ListenerFuncs) Added(events []ModelEvent) {
	if f.OnAdded != nil {
		f.OnAdded(events)
	}
}

func (f ListenerFuncs) Updated(events []ModelEvent) {
	if f.OnUpdated != nil {
		f.OnUpdated(events)
	}
}

func (f ListenerFuncs) Deleted(events []ModelEvent) {
	if f.OnDeleted != nil {
		f.OnDeleted(events)
	}
}
