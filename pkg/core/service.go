package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Config configures a Service.
type Config struct {
	Logger *slog.Logger
	// Registerer receives the model metrics. Nil uses a private registry.
	Registerer prometheus.Registerer
	// EventBuffer is the default Subscribe buffer. Zero means DefaultEventBuffer.
	EventBuffer int
}

// Service mediates between the persistence collaborator and the rest of
// the application: it runs transactions, turns them into model events and
// keeps the news counters current.
type Service struct {
	txMu            sync.Mutex
	repo            Repository
	bus             *Bus
	logger          *slog.Logger
	metrics         *Metrics
	eventBufferSize int

	// mu orders counter rebuilds against per-transaction adjustments.
	// counterGen changes with every counter mutation.
	mu             sync.RWMutex
	counter        *NewsCounter
	countersLoaded bool
	counterGen     uint64

	queueMu  sync.Mutex
	queue    [][]*Batch
	draining bool
}

// NewService creates a new Service over repo.
func NewService(repo Repository, cfg Config) *Service {
	if repo == nil {
		Violation("service without repository")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	metrics := NewMetrics(cfg.Registerer)
	return &Service{
		repo:            repo,
		bus:             NewBus(logger, metrics),
		counter:         NewNewsCounter(),
		logger:          logger,
		metrics:         metrics,
		eventBufferSize: buffer,
	}
}

// Start initializes the repository and loads the news counters.
func (s *Service) Start(ctx context.Context) error {
	if err := s.repo.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	return s.RebuildCounters(ctx)
}

// Close releases the repository.
func (s *Service) Close() error {
	return s.repo.Close()
}

// Repository returns the persistence collaborator.
func (s *Service) Repository() Repository { return s.repo }

// Bus returns the event bus.
func (s *Service) Bus() *Bus { return s.bus }

// Counter returns the news counters.
func (s *Service) Counter() *NewsCounter { return s.counter }

// Load implements Loader, so references can be resolved against the service.
func (s *Service) Load(ctx context.Context, kind Kind, key string) (Entity, bool, error) {
	ent, ok, err := s.repo.Load(ctx, kind, key)
	if err != nil {
		return nil, false, NewPersistenceError("load", kind, key, err)
	}
	return ent, ok, nil
}

// List returns every entity of a kind.
func (s *Service) List(ctx context.Context, kind Kind) ([]Entity, error) {
	ents, err := s.repo.List(ctx, kind)
	if err != nil {
		return nil, NewPersistenceError("list", kind, "", err)
	}
	return ents, nil
}

// AddListener registers a listener for a kind of entity.
func (s *Service) AddListener(kind Kind, l Listener) (remove func()) {
	return s.bus.AddListener(kind, l)
}

// Subscribe receives every batch on a channel; see Bus.Subscribe.
func (s *Service) Subscribe(ctx context.Context) <-chan Batch {
	return s.bus.Subscribe(ctx, s.eventBufferSize)
}

// RebuildCounters recomputes the news counters from the stored news.
// A transaction adjusting the counters while the news are listed makes the
// listing stale, so it is taken again.
func (s *Service) RebuildCounters(ctx context.Context) error {
	for {
		gen := s.counterGeneration()
		news, err := s.List(ctx, KindNews)
		if err != nil {
			return err
		}

		s.mu.Lock()
		if s.counterGen != gen {
			s.mu.Unlock()
			continue
		}
		s.counter.Reset()
		for _, ent := range news {
			if n, ok := ent.(*News); ok {
				s.counter.countNews(n, 1)
			}
		}
		s.counterGen++
		s.countersLoaded = true
		s.mu.Unlock()
		return nil
	}
}

func (s *Service) counterGeneration() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counterGen
}

// adjustCounters applies fn under the counter lock unless the counters
// changed since gen. It reports false when the caller must rebuild instead.
func (s *Service) adjustCounters(gen uint64, fn func(c *NewsCounter)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.countersLoaded {
		return true
	}
	if s.counterGen != gen {
		return false
	}
	fn(s.counter)
	s.counterGen++
	return true
}

// WithTransaction runs fn in a transaction. If fn returns an error nothing
// is persisted and no event is produced. Otherwise the staged changes are
// committed atomically and the resulting batches are dispatched.
//
// Batches are normally delivered on the calling goroutine before
// WithTransaction returns. When another goroutine is already delivering
// batches, this transaction's batches are queued behind them and delivered
// on that goroutine, possibly after WithTransaction has returned.
func (s *Service) WithTransaction(ctx context.Context, fn func(tx *Tx) error) error {
	batches, err := s.run(ctx, fn)
	if err != nil {
		return err
	}
	s.enqueue(batches)
	return nil
}

func (s *Service) run(ctx context.Context, fn func(tx *Tx) error) ([]*Batch, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := s.begin()
	defer func() { tx.done = true }()

	if err := fn(tx); err != nil {
		s.metrics.observeTransaction("rolled_back")
		return nil, err
	}
	batches, err := tx.commit(ctx)
	if err != nil {
		s.metrics.observeTransaction("failed")
		return nil, err
	}
	s.metrics.observeTransaction("committed")
	return batches, nil
}

// Save stores entities in a single transaction.
func (s *Service) Save(ctx context.Context, entities ...Entity) error {
	return s.WithTransaction(ctx, func(tx *Tx) error {
		for _, e := range entities {
			if err := tx.Save(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes the referenced entities (and their dependents) in a
// single transaction.
func (s *Service) Delete(ctx context.Context, refs ...Reference) error {
	return s.WithTransaction(ctx, func(tx *Tx) error {
		for _, r := range refs {
			if err := tx.Delete(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// enqueue hands batches to the bus in commit order. A transaction committed
// from inside a listener is delivered after the current dispatch returns.
func (s *Service) enqueue(batches []*Batch) {
	if len(batches) == 0 {
		return
	}

	s.queueMu.Lock()
	s.queue = append(s.queue, batches)
	if s.draining {
		s.queueMu.Unlock()
		return
	}
	s.draining = true
	s.queueMu.Unlock()

	for {
		s.queueMu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.queueMu.Unlock()
			return
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.queueMu.Unlock()

		s.bus.Dispatch(next...)
	}
}

// Watch turns changes made outside of this process into model events.
// It returns once the watcher is running; events flow until ctx is done.
func (s *Service) Watch(ctx context.Context, pattern string) error {
	w, ok := s.repo.(Watchable)
	if !ok {
		return errors.New("repository does not support watching")
	}

	events, err := w.Watch(ctx, pattern)
	if err != nil {
		return err
	}

	lifecycle.Go(ctx, func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				s.handleExternal(ctx, e)
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		s.logger.Error("external change loop failed", "error", err)
	}))
	return nil
}

func (s *Service) handleExternal(ctx context.Context, e ExternalEvent) {
	var (
		ent Entity
		typ EventType
	)
	switch e.Type {
	case ExternalDelete:
		ent = entityStub(e.Kind, e.Key)
		typ = EventDeleted
	case ExternalCreate, ExternalModify:
		loaded, ok, err := s.Load(ctx, e.Kind, e.Key)
		if err != nil {
			s.logger.Warn("failed to load externally changed entity", "event", e.String(), "error", err)
			return
		}
		if !ok {
			return
		}
		ent = loaded
		typ = EventUpdated
		if e.Type == ExternalCreate {
			typ = EventAdded
		}
	default:
		return
	}
	if ent == nil {
		return
	}

	ev := NewEvent(ent, true)
	batch := ev.NewBatch(uuid.NewString())
	batch.Append(typ, ev)

	if e.Kind == KindNews {
		if err := s.RebuildCounters(ctx); err != nil {
			s.logger.Warn("failed to rebuild counters", "error", err)
		}
	}

	s.logger.Debug("external change", "event", e.String(), "at", time.Unix(e.Timestamp, 0))
	s.enqueue([]*Batch{batch})
}

// entityStub returns an entity carrying only its natural key, used to
// describe entities that no longer exist.
func entityStub(kind Kind, key string) Entity {
	ent := NewEntity(kind)
	switch v := ent.(type) {
	case nil:
		return nil
	case *Feed:
		v.Link = key
	case identified:
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil || id <= 0 {
			return nil
		}
		v.setID(id)
	}
	return ent
}

func (s *Service) begin() *Tx {
	return &Tx{
		svc:     s,
		id:      uuid.NewString(),
		entries: make(map[entryKey]*txEntry),
	}
}

