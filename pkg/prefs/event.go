package prefs

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/owlet/pkg/core"
)

// EventType names the listener callback an Event is delivered to.
type EventType string

const (
	EventAdded   EventType = "added"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// Event is an immutable snapshot of one preference mutation. For deletions
// Value holds the value that was removed.
type Event struct {
	Key   string
	Value Value
	Scope string
}

func (e Event) AsBoolean() bool     { return e.Value.AsBoolean() }
func (e Event) AsInteger() int32    { return e.Value.AsInteger() }
func (e Event) AsLong() int64       { return e.Value.AsLong() }
func (e Event) AsString() string    { return e.Value.AsString() }
func (e Event) AsStrings() []string { return e.Value.AsStrings() }

func (e Event) String() string {
	return fmt.Sprintf("%s#%s=%s", e.Scope, e.Key, e.Value)
}

// Listener is notified synchronously, on the mutating goroutine, after a
// scope's local values changed.
type Listener interface {
	PreferenceAdded(Event)
	PreferenceUpdated(Event)
	PreferenceDeleted(Event)
}

// ListenerFuncs adapts plain functions to a Listener; nil fields are skipped.
type ListenerFuncs struct {
	OnAdded   func(Event)
	OnUpdated func(Event)
	OnDeleted func(Event)
}

func (f ListenerFuncs) PreferenceAdded(e Event) {
	if f.OnAdded != nil {
		f.OnAdded(e)
	}
}

func (f ListenerFuncs) PreferenceUpdated(e Event) {
	if f.OnUpdated != nil {
		f.OnUpdated(e)
	}
}

func (f ListenerFuncs) PreferenceDeleted(e Event) {
	if f.OnDeleted != nil {
		f.OnDeleted(e)
	}
}

type registration struct {
	id       int
	l        Listener
	patterns []string
}

func (r registration) matches(key string) bool {
	if len(r.patterns) == 0 {
		return true
	}
	for _, p := range r.patterns {
		if ok, _ := doublestar.Match(p, key); ok {
			return true
		}
	}
	return false
}

// notifier fans events out to the registered listeners.
type notifier struct {
	mu     sync.RWMutex
	nextID int
	regs   []registration
	logger *slog.Logger
}

func (n *notifier) add(l Listener, patterns []string) func() {
	if l == nil {
		core.Violation("nil preference listener")
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			core.Violation("invalid preference key pattern %q", p)
		}
	}

	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.regs = append(n.regs, registration{id: id, l: l, patterns: patterns})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			for i, r := range n.regs {
				if r.id == id {
					n.regs = append(n.regs[:i:i], n.regs[i+1:]...)
					return
				}
			}
		})
	}
}

func (n *notifier) emit(typ EventType, ev Event) {
	n.mu.RLock()
	regs := append([]registration(nil), n.regs...)
	n.mu.RUnlock()

	for _, r := range regs {
		if !r.matches(ev.Key) {
			continue
		}
		n.deliver(r.l, typ, ev)
	}
}

func (n *notifier) deliver(l Listener, typ EventType, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("preference listener panic", "event", ev.String(), "type", typ, "error", fmt.Errorf("%v", r))
		}
	}()
	switch typ {
	case EventAdded:
		l.PreferenceAdded(ev)
	case EventUpdated:
		l.PreferenceUpdated(ev)
	case EventDeleted:
		l.PreferenceDeleted(ev)
	}
}
