package owlet

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/owlet/internal/platform"
	"github.com/aretw0/owlet/pkg/core"
	"github.com/aretw0/owlet/pkg/prefs"
	"github.com/aretw0/owlet/pkg/typed"
)

// --- Types ---

// App is the host object owning a profile's model, preferences and search.
type App = platform.App

// Repository is a public alias for the typed entity repository.
type Repository[E core.Entity] = typed.Repository[E]

// Listener is a public alias for a typed model listener.
type Listener[E core.Entity] = typed.Listener[E]

// Key is a public alias for a typed preference key.
type Key[T any] = typed.Key[T]

// --- Configuration ---

// Option defines a functional option for configuring owlet.
type Option = platform.Option

// Adapter names.
const (
	AdapterMemory   = platform.AdapterMemory
	AdapterFS       = platform.AdapterFS
	AdapterSQLite   = platform.AdapterSQLite
	AdapterPostgres = platform.AdapterPostgres
)

// WithAdapter selects the storage adapter by name.
func WithAdapter(name string) Option { return platform.WithAdapter(name) }

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option { return platform.WithLogger(logger) }

// WithRepository injects a persistence collaborator.
func WithRepository(repo core.Repository) Option { return platform.WithRepository(repo) }

// WithPreferenceStore overrides the store backing Global and Entity scopes.
func WithPreferenceStore(store prefs.Store) Option { return platform.WithPreferenceStore(store) }

// WithInitializers sets the registry run against the Default scope.
// Open uses DefaultInitializers when this option is absent.
func WithInitializers(reg *prefs.Registry) Option { return platform.WithInitializers(reg) }

// WithRegisterer sets where model metrics are registered.
func WithRegisterer(reg prometheus.Registerer) Option { return platform.WithRegisterer(reg) }

// WithSystemDir sets the hidden directory name (e.g. ".owlet").
func WithSystemDir(name string) Option { return platform.WithSystemDir(name) }

// WithFormat selects the fs entity file format ("yaml" or "json").
func WithFormat(format string) Option { return platform.WithFormat(format) }

// WithEventBuffer sets the default buffer of model subscriptions.
func WithEventBuffer(size int) Option { return platform.WithEventBuffer(size) }

// WithAutoInit creates the profile (and its git repository) when missing.
func WithAutoInit(auto bool) Option { return platform.WithAutoInit(auto) }

// WithVersioning enables or disables git history for fs profiles.
func WithVersioning(enabled bool) Option { return platform.WithVersioning(enabled) }

// WithMustExist fails when the profile directory is missing.
func WithMustExist(must bool) Option { return platform.WithMustExist(must) }

// WithForceTemp forces the profile into a temporary directory.
func WithForceTemp(force bool) Option { return platform.WithForceTemp(force) }

// WithReadOnly opens the profile read-only.
func WithReadOnly(enabled bool) Option { return platform.WithReadOnly(enabled) }

// WithDevSafety controls the `go run` sandbox.
func WithDevSafety(enabled bool) Option { return platform.WithDevSafety(enabled) }

// WithWatch watches the store for external changes matching pattern.
func WithWatch(pattern string) Option { return platform.WithWatch(pattern) }

// WithWatcherErrorHandler receives watcher and versioning failures.
func WithWatcherErrorHandler(fn func(error)) Option {
	return platform.WithWatcherErrorHandler(fn)
}

// --- Factory ---

// Open opens the profile at uri and starts the model, preference and
// search services.
func Open(ctx context.Context, uri string, opts ...Option) (*App, error) {
	opts = append([]Option{WithInitializers(DefaultInitializers())}, opts...)
	return platform.New(ctx, uri, opts...)
}

// Init creates and initializes a store without starting any service.
func Init(uri string, opts ...Option) (core.Repository, error) {
	return platform.Init(uri, opts...)
}

// NewRepository returns a typed view of one entity kind.
func NewRepository[E core.Entity](app *App) *typed.Repository[E] {
	return typed.NewRepository[E](app.Model)
}

// --- Change reasons ---

const (
	ChangeFeat  = platform.ChangeFeat
	ChangeFix   = platform.ChangeFix
	ChangeChore = platform.ChangeChore
)

// FormatChangeReason builds a conventional change reason.
func FormatChangeReason(ctype, scope, subject, body string) string {
	return platform.FormatChangeReason(ctype, scope, subject, body)
}

// WithChangeReason attaches a change reason to ctx for versioned stores.
func WithChangeReason(ctx context.Context, reason string) context.Context {
	return platform.WithChangeReason(ctx, reason)
}

// --- Safety & Utils ---

// IsDevRun reports whether the process runs via `go run` or `go test`.
func IsDevRun() bool { return platform.IsDevRun() }

// ResolveStorePath applies the dev sandbox rules to a path.
func ResolveStorePath(userPath string, forceTemp bool) string {
	return platform.ResolveStorePath(userPath, forceTemp)
}

// FindRoot looks upwards from startDir for a profile root.
func FindRoot(startDir, systemDir string) (string, error) {
	return platform.FindRoot(startDir, systemDir)
}
