package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/introspection"

	"github.com/aretw0/owlet/pkg/core"
	"github.com/aretw0/owlet/pkg/prefs"
	"github.com/aretw0/owlet/pkg/search"
)

// App is the host object owning one profile: the model service, the
// preference service and the search index. Build it once and pass it to
// whatever needs it.
type App struct {
	Model  *core.Service
	Prefs  *prefs.Service
	Search *search.MemoryIndex

	// InitReport lists the preference initializers that ran or failed.
	InitReport prefs.InitReport

	logger    *slog.Logger
	stopWatch context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// New opens the profile at uri and starts every service.
//
//	app, err := owlet.Open("./profile", owlet.WithAutoInit(true))
func New(ctx context.Context, uri string, opts ...Option) (*App, error) {
	o := parseOptions(opts)
	b, err := openBackend(uri, o)
	if err != nil {
		return nil, err
	}

	eventBuffer, _ := o.config["event_buffer"].(int)
	model := core.NewService(b.repo, core.Config{
		Logger:      o.logger,
		Registerer:  o.registerer,
		EventBuffer: eventBuffer,
	})
	if err := model.Start(ctx); err != nil {
		_ = b.repo.Close()
		return nil, err
	}

	p, err := prefs.NewService(ctx, prefs.Config{Store: b.store, Logger: o.logger})
	if err != nil {
		_ = model.Close()
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}

	app := &App{
		Model:  model,
		Prefs:  p,
		Search: search.NewMemoryIndex(model, o.logger),
		logger: o.logger,
	}
	app.InitReport = p.Initialize(ctx, o.initializers)

	if err := app.Search.Startup(ctx); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to start search index: %w", err)
	}

	if pattern, ok := o.config["watch"].(string); ok {
		if err := app.Watch(pattern); err != nil {
			_ = app.Close()
			return nil, err
		}
	}
	return app, nil
}

// Watch starts forwarding external store changes into the model until
// Close. It fails when the repository cannot be watched.
func (a *App) Watch(pattern string) error {
	ctx, cancel := context.WithCancel(context.Background())
	if err := a.Model.Watch(ctx, pattern); err != nil {
		cancel()
		return fmt.Errorf("failed to watch store: %w", err)
	}
	if a.stopWatch != nil {
		a.stopWatch()
	}
	a.stopWatch = cancel
	return nil
}

// History returns the latest n versioning entries of the store, newest
// first. It fails when the store keeps no history.
func (a *App) History(ctx context.Context, n int) ([]string, error) {
	h, ok := a.Model.Repository().(interface {
		History(ctx context.Context, n int) ([]string, error)
	})
	if !ok {
		return nil, errors.New("store does not keep history")
	}
	return h.History(ctx, n)
}

// Close stops the watcher and the search index and releases the stores.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		if a.stopWatch != nil {
			a.stopWatch()
		}
		var errs []error
		if err := a.Search.Shutdown(context.Background()); err != nil {
			errs = append(errs, err)
		}
		if err := a.Prefs.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := a.Model.Close(); err != nil {
			errs = append(errs, err)
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

// Components lists the introspectable parts of the App.
func (a *App) Components() []introspection.Introspectable {
	out := []introspection.Introspectable{a.Model, a.Prefs, a.Search}
	if c, ok := a.Model.Repository().(introspection.Introspectable); ok {
		out = append(out, c)
	}
	return out
}
