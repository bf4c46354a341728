// Package lifecycle adapts owlet event channels to lifecycle.Source so
// model batches and external changes can feed lifecycle-managed consumers.
package lifecycle

import (
	"context"

	"github.com/aretw0/lifecycle"
)

type channelSource[E lifecycle.Event] struct {
	events <-chan E
	out    chan lifecycle.Event
}

// NewSource creates a lifecycle.Source that emits the values of events.
// core.Batch and core.ExternalEvent both qualify.
func NewSource[E lifecycle.Event](events <-chan E) lifecycle.Source {
	return &channelSource[E]{
		events: events,
		out:    make(chan lifecycle.Event),
	}
}

func (s *channelSource[E]) Events() <-chan lifecycle.Event {
	return s.out
}

// Start pumps events until the input closes or ctx is done, then closes
// the output channel.
func (s *channelSource[E]) Start(ctx context.Context) error {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-s.events:
				if !ok {
					return nil
				}
				select {
				case s.out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}
