package platform

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/owlet/pkg/core"
	"github.com/aretw0/owlet/pkg/prefs"
)

// Adapter names accepted by WithAdapter.
const (
	AdapterMemory   = "memory"
	AdapterFS       = "fs"
	AdapterSQLite   = "sqlite"
	AdapterPostgres = "postgres"
)

// options holds the internal configuration for an owlet App.
type options struct {
	repository   core.Repository
	prefStore    prefs.Store
	logger       *slog.Logger
	adapter      string
	registerer   prometheus.Registerer
	initializers *prefs.Registry
	config       map[string]any
}

// Option defines a functional option for configuring owlet.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		adapter: AdapterFS,
		config:  make(map[string]any),
	}
}

func parseOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// WithAdapter selects the storage adapter by name: "memory", "fs"
// (default), "sqlite" or "postgres".
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRepository injects a persistence collaborator. The adapter setting
// is ignored when one is provided.
func WithRepository(repo core.Repository) Option {
	return func(o *options) {
		o.repository = repo
	}
}

// WithPreferenceStore overrides the store backing Global and Entity scopes.
// By default the store follows the adapter.
func WithPreferenceStore(store prefs.Store) Option {
	return func(o *options) {
		o.prefStore = store
	}
}

// WithInitializers sets the registry run against the Default scope at
// startup.
func WithInitializers(reg *prefs.Registry) Option {
	return func(o *options) {
		o.initializers = reg
	}
}

// WithRegisterer sets where model metrics are registered. Nil keeps them
// in a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithSystemDir sets the hidden directory name used by the fs adapter.
// Defaults to ".owlet".
func WithSystemDir(name string) Option {
	return func(o *options) {
		o.config["system_dir"] = name
	}
}

// WithFormat selects the fs entity file format: "yaml" (default) or "json".
func WithFormat(format string) Option {
	return func(o *options) {
		o.config["format"] = format
	}
}

// WithEventBuffer sets the default buffer of model subscriptions.
// Zero means core.DefaultEventBuffer.
func WithEventBuffer(size int) Option {
	return func(o *options) {
		o.config["event_buffer"] = size
	}
}

// WithAutoInit creates the profile directory and, with versioning, the git
// repository when missing.
func WithAutoInit(auto bool) Option {
	return func(o *options) {
		o.config["auto_init"] = auto
	}
}

// WithVersioning enables or disables git history for the fs adapter.
// When unset it is detected: an existing .git directory turns it on.
func WithVersioning(enabled bool) Option {
	return func(o *options) {
		o.config["versioning"] = enabled
	}
}

// WithMustExist fails startup when the profile directory is missing.
func WithMustExist(must bool) Option {
	return func(o *options) {
		o.config["must_exist"] = must
	}
}

// WithForceTemp forces the profile into a temporary directory.
func WithForceTemp(force bool) Option {
	return func(o *options) {
		o.config["temp_dir"] = force
	}
}

// WithReadOnly opens the profile read-only. Writes return core.ErrReadOnly,
// initialization is skipped and the dev sandbox is bypassed.
func WithReadOnly(enabled bool) Option {
	return func(o *options) {
		o.config["read_only"] = enabled
	}
}

// WithDevSafety controls the sandbox used under `go run` and `go test`.
// By default (true) file-based profiles are redirected to a temporary
// directory so a development build cannot touch real data.
//
// CAUTION: Only disable this if you are sure your code is safe.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.config["dev_safety"] = enabled
	}
}

// WithWatch starts watching the store for external changes once the App
// is open. Only entity files matching pattern (doublestar, relative to
// the profile root) are reported; "" watches everything.
func WithWatch(pattern string) Option {
	return func(o *options) {
		o.config["watch"] = pattern
	}
}

// WithWatcherErrorHandler receives watcher and versioning failures, which
// are otherwise only logged.
func WithWatcherErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.config["watcher_error_handler"] = fn
	}
}

func (o *options) flag(key string, def bool) bool {
	if v, ok := o.config[key].(bool); ok {
		return v
	}
	return def
}

func (o *options) text(key string) string {
	s, _ := o.config[key].(string)
	return s
}
