package core

import (
	"github.com/aretw0/introspection"
)

// ServiceState exposes internal state for observability.
type ServiceState struct {
	EventBufferSize int          `json:"event_buffer_size"`
	RepositoryType  string       `json:"repository_type"`
	CountersLoaded  bool         `json:"counters_loaded"`
	CountedFeeds    int          `json:"counted_feeds"`
	Listeners       map[Kind]int `json:"listeners"`
}

// State implements introspection.Introspectable.
func (s *Service) State() any {
	s.mu.RLock()
	loaded := s.countersLoaded
	s.mu.RUnlock()

	repoType := "repository"
	if comp, ok := s.repo.(introspection.Component); ok {
		repoType = comp.ComponentType()
	}

	listeners := make(map[Kind]int)
	for _, k := range Kinds {
		if n := s.bus.ListenerCount(k); n > 0 {
			listeners[k] = n
		}
	}

	return ServiceState{
		EventBufferSize: s.eventBufferSize,
		RepositoryType:  repoType,
		CountersLoaded:  loaded,
		CountedFeeds:    len(s.counter.Links()),
		Listeners:       listeners,
	}
}

// ComponentType implements introspection.Component.
func (s *Service) ComponentType() string {
	return "model-service"
}

var _ introspection.Introspectable = (*Service)(nil)
var _ introspection.Component = (*Service)(nil)
var _ Loader = (*Service)(nil)
