package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/lifecycle"
)

// DefaultEventBuffer is the subscription buffer used when none is given.
const DefaultEventBuffer = 100

type listenerEntry struct {
	id int
	l  Listener
}

type subscription struct {
	id int
	ch chan Batch
}

// Bus delivers batches of model events to listeners registered per kind.
//
// Dispatch runs on the caller's goroutine (the one that committed) and is
// serialized: two batches are never delivered concurrently, so listeners
// need no locking of their own. Consumers that must run elsewhere use
// Subscribe and receive batches on a channel.
type Bus struct {
	mu        sync.RWMutex
	dispatch  sync.Mutex
	nextID    int
	listeners map[Kind][]listenerEntry
	subs      map[int]*subscription
	logger    *slog.Logger
	metrics   *Metrics
}

// NewBus creates an event bus.
func NewBus(logger *slog.Logger, metrics *Metrics) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		listeners: make(map[Kind][]listenerEntry),
		subs:      make(map[int]*subscription),
		logger:    logger,
		metrics:   metrics,
	}
}

// AddListener registers l for events of kind. The returned func removes it.
func (b *Bus) AddListener(kind Kind, l Listener) (remove func()) {
	if l == nil {
		Violation("nil listener for %s", kind)
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners[kind] = append(b.listeners[kind], listenerEntry{id: id, l: l})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			entries := b.listeners[kind]
			for i, e := range entries {
				if e.id == id {
					b.listeners[kind] = append(entries[:i:i], entries[i+1:]...)
					break
				}
			}
		})
	}
}

// ListenerCount returns how many listeners are registered for kind.
func (b *Bus) ListenerCount(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[kind])
}

// Dispatch delivers batches in order. Within a batch, listeners see added,
// then updated, then deleted events. A panicking listener is logged and
// does not prevent delivery to the others.
func (b *Bus) Dispatch(batches ...*Batch) {
	b.dispatch.Lock()
	defer b.dispatch.Unlock()

	for _, batch := range batches {
		if batch == nil || batch.Len() == 0 {
			continue
		}

		b.mu.RLock()
		entries := append([]listenerEntry(nil), b.listeners[batch.Kind]...)
		b.mu.RUnlock()

		for _, e := range entries {
			if len(batch.Added) > 0 {
				b.deliver(e.l.Added, batch, EventAdded, batch.Added)
			}
			if len(batch.Updated) > 0 {
				b.deliver(e.l.Updated, batch, EventUpdated, batch.Updated)
			}
			if len(batch.Deleted) > 0 {
				b.deliver(e.l.Deleted, batch, EventDeleted, batch.Deleted)
			}
		}

		b.metrics.observeBatch(batch)
		b.publish(*batch)
	}
}

func (b *Bus) deliver(fn func([]ModelEvent), batch *Batch, typ EventType, events []ModelEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("model listener panic",
				"kind", batch.Kind,
				"type", typ,
				"tx", batch.TxID,
				"error", fmt.Errorf("%v", r),
			)
		}
	}()
	fn(events)
}

func (b *Bus) publish(batch Batch) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		select {
		case s.ch <- batch:
		default:
			b.metrics.observeDrop()
			b.logger.Warn("subscriber buffer full, dropping batch", "subscription", s.id, "batch", batch.String())
		}
	}
}

// Subscribe returns a channel receiving every dispatched batch until ctx is
// done, at which point the channel is closed. A full buffer drops batches
// instead of blocking the committing goroutine.
func (b *Bus) Subscribe(ctx context.Context, buffer int) <-chan Batch {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}

	b.mu.Lock()
	b.nextID++
	s := &subscription{id: b.nextID, ch: make(chan Batch, buffer)}
	b.subs[s.id] = s
	b.mu.Unlock()

	lifecycle.Go(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s.id)
		close(s.ch)
		b.mu.Unlock()
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		b.logger.Error("subscription cleanup failed", "subscription", s.id, "error", err)
	}))

	return s.ch
}
