package search

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/aretw0/introspection"

	"github.com/aretw0/owlet/pkg/core"
)

// MemoryIndex indexes news in process memory. It is filled from the model
// on Startup and follows news events on the bus afterwards.
type MemoryIndex struct {
	svc    *core.Service
	logger *slog.Logger

	mu        sync.RWMutex
	docs      map[int64]document
	started   bool
	remove    func()
	listeners []IndexListener
}

// NewMemoryIndex creates an index over svc's news.
func NewMemoryIndex(svc *core.Service, logger *slog.Logger) *MemoryIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryIndex{svc: svc, logger: logger, docs: make(map[int64]document)}
}

// Startup implements Searcher.
func (m *MemoryIndex) Startup(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	// Subscribe before the initial listing so no commit slips between them.
	m.remove = m.svc.AddListener(core.KindNews, core.ListenerFuncs{
		OnAdded:   m.index,
		OnUpdated: m.index,
		OnDeleted: m.unindex,
	})
	m.mu.Unlock()

	if err := m.Reindex(ctx); err != nil {
		_ = m.Shutdown(ctx)
		return err
	}
	return nil
}

// Shutdown implements Searcher.
func (m *MemoryIndex) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	remove := m.remove
	m.remove = nil
	m.started = false
	m.mu.Unlock()
	if remove != nil {
		remove()
	}
	return nil
}

// Reindex rebuilds the index from the model.
func (m *MemoryIndex) Reindex(ctx context.Context) error {
	ents, err := m.svc.List(ctx, core.KindNews)
	if err != nil {
		return err
	}
	docs := make(map[int64]document, len(ents))
	for _, e := range ents {
		if n, ok := e.(*core.News); ok {
			docs[n.ID] = newDocument(n)
		}
	}
	m.mu.Lock()
	m.docs = docs
	m.mu.Unlock()
	m.notify()
	return nil
}

func (m *MemoryIndex) index(events []core.ModelEvent) {
	m.mu.Lock()
	for _, ev := range events {
		if n, ok := ev.Entity().(*core.News); ok {
			m.docs[n.ID] = newDocument(n)
		}
	}
	m.mu.Unlock()
	m.notify()
}

func (m *MemoryIndex) unindex(events []core.ModelEvent) {
	m.mu.Lock()
	for _, ev := range events {
		if n, ok := ev.Entity().(*core.News); ok {
			delete(m.docs, n.ID)
		}
	}
	m.mu.Unlock()
	m.notify()
}

// SearchNews implements Searcher.
func (m *MemoryIndex) SearchNews(ctx context.Context, conditions []core.SearchCondition, matchAll bool) ([]Hit, error) {
	if err := Validate(conditions); err != nil {
		core.Violation("search: %v", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.started {
		return nil, core.NewPersistenceError("search", core.KindNews, "", core.ErrClosed)
	}
	if len(conditions) == 0 {
		return nil, nil
	}

	type scored struct {
		id    int64
		score float64
	}
	var found []scored
	for _, d := range m.docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s := d.score(conditions, matchAll); s > 0 {
			found = append(found, scored{id: d.id, score: s})
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].score != found[j].score {
			return found[i].score > found[j].score
		}
		return found[i].id < found[j].id
	})
	hits := make([]Hit, len(found))
	for i, f := range found {
		hits[i] = Hit{News: core.IDRef[*core.News](f.id), Score: f.score}
	}
	return hits, nil
}

// SearchMark runs the conditions stored in a search mark.
func (m *MemoryIndex) SearchMark(ctx context.Context, mark *core.SearchMark) ([]Hit, error) {
	return m.SearchNews(ctx, mark.Conditions, mark.MatchAll)
}

// ClearIndex implements Searcher. The index stays empty until Reindex or
// new news events arrive.
func (m *MemoryIndex) ClearIndex(ctx context.Context) error {
	m.mu.Lock()
	m.docs = make(map[int64]document)
	m.mu.Unlock()
	m.notify()
	return nil
}

// AddIndexListener implements Searcher.
func (m *MemoryIndex) AddIndexListener(l IndexListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// RemoveIndexListener implements Searcher. Listeners are compared with ==,
// so register an IndexListenerFunc by pointer if it will be removed.
func (m *MemoryIndex) RemoveIndexListener(l IndexListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = slices.DeleteFunc(m.listeners, func(x IndexListener) bool { return x == l })
}

func (m *MemoryIndex) notify() {
	m.mu.RLock()
	docs := len(m.docs)
	listeners := slices.Clone(m.listeners)
	m.mu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("index listener panicked", "panic", r)
				}
			}()
			l.IndexUpdated(docs)
		}()
	}
}

// IndexState exposes internal state for observability.
type IndexState struct {
	Started   bool `json:"started"`
	Documents int  `json:"documents"`
	Listeners int  `json:"listeners"`
}

// State implements introspection.Introspectable.
func (m *MemoryIndex) State() any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return IndexState{Started: m.started, Documents: len(m.docs), Listeners: len(m.listeners)}
}

// ComponentType implements introspection.Component.
func (m *MemoryIndex) ComponentType() string { return "search-index" }

var _ Searcher = (*MemoryIndex)(nil)
var _ introspection.Introspectable = (*MemoryIndex)(nil)
var _ introspection.Component = (*MemoryIndex)(nil)
