package fs

import (
	"sync"
	"time"

	"github.com/aretw0/owlet/pkg/core"
)

// debouncer coalesces bursts of filesystem events for the same entity into
// one event delivered after a quiet period.
type debouncer struct {
	delay   time.Duration
	mu      sync.Mutex
	pending map[string]*pendingEvent
	stopped bool
	wg      sync.WaitGroup
}

type pendingEvent struct {
	event core.ExternalEvent
	timer *time.Timer
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{
		delay:   delay,
		pending: make(map[string]*pendingEvent),
	}
}

// merge folds a newer event type into a pending one.
func merge(prev, next core.ExternalEventType) core.ExternalEventType {
	switch {
	case next == core.ExternalDelete:
		return core.ExternalDelete
	case prev == core.ExternalCreate:
		return core.ExternalCreate
	case prev == core.ExternalDelete:
		// Deleted then recreated: the entity still exists, with new content.
		return core.ExternalModify
	}
	return next
}

// add schedules fn for the event, replacing any pending event for the same entity.
func (d *debouncer) add(e core.ExternalEvent, fn func(core.ExternalEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	key := string(e.Kind) + "/" + e.Key
	if p, ok := d.pending[key]; ok {
		if p.timer.Stop() {
			d.wg.Done()
		}
		e.Type = merge(p.event.Type, e.Type)
	}

	p := &pendingEvent{event: e}
	d.wg.Add(1)
	p.timer = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		d.mu.Lock()
		if d.pending[key] != p {
			d.mu.Unlock()
			return
		}
		delete(d.pending, key)
		d.mu.Unlock()
		fn(p.event)
	})
	d.pending[key] = p
}

// stopAndWait rejects new events, cancels pending ones and waits up to
// timeout for callbacks already running.
func (d *debouncer) stopAndWait(timeout time.Duration) {
	d.mu.Lock()
	d.stopped = true
	for key, p := range d.pending {
		if p.timer.Stop() {
			d.wg.Done()
		}
		delete(d.pending, key)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
