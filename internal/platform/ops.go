package platform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/owlet/pkg/adapters/fs"
	"github.com/aretw0/owlet/pkg/adapters/memory"
	"github.com/aretw0/owlet/pkg/adapters/sqlstore"
	"github.com/aretw0/owlet/pkg/core"
	"github.com/aretw0/owlet/pkg/git"
	"github.com/aretw0/owlet/pkg/prefs"
)

// backend is a persistence collaborator paired with the preference store
// that lives next to it.
type backend struct {
	repo  core.Repository
	store prefs.Store
}

// Init builds and initializes the repository selected by opts. The uri is
// adapter-specific: a directory for "fs", a database file for "sqlite", a
// connection URL for "postgres"; "memory" ignores it.
func Init(uri string, opts ...Option) (core.Repository, error) {
	o := parseOptions(opts)
	b, err := openBackend(uri, o)
	if err != nil {
		return nil, err
	}
	if err := b.repo.Initialize(context.Background()); err != nil {
		return nil, err
	}
	return b.repo, nil
}

func openBackend(uri string, o *options) (*backend, error) {
	if o.repository != nil {
		return withStore(&backend{repo: o.repository}, o), nil
	}

	var (
		b   *backend
		err error
	)
	switch o.adapter {
	case AdapterMemory:
		b = &backend{repo: memory.NewRepository()}
	case AdapterFS:
		b, err = openFS(uri, o)
	case AdapterSQLite, AdapterPostgres:
		b, err = openSQL(uri, o)
	default:
		return nil, fmt.Errorf("unknown adapter: %s", o.adapter)
	}
	if err != nil {
		return nil, err
	}
	return withStore(b, o), nil
}

func withStore(b *backend, o *options) *backend {
	if o.prefStore != nil {
		b.store = o.prefStore
	}
	if b.store == nil {
		b.store = prefs.NewMemoryStore()
	}
	return b
}

// resolvePath applies the dev sandbox to a file-based location.
func resolvePath(path string, o *options) string {
	readOnly := o.flag("read_only", false)
	bypass := readOnly || !o.flag("dev_safety", true)
	useTemp := o.flag("temp_dir", false) || (IsDevRun() && !bypass)
	resolved := ResolveStorePath(path, useTemp)

	if IsDevRun() {
		switch {
		case readOnly:
			o.logger.Debug("running in READ-ONLY mode (bypassing dev sandbox)", "path", resolved)
		case bypass:
			o.logger.Warn("running in UNSAFE mode (bypassing dev sandbox)", "path", resolved)
		default:
			o.logger.Debug("running in SAFE mode (dev sandbox enabled)", "path", resolved)
		}
	}
	if useTemp && resolved != filepath.Clean(path) {
		o.logger.Warn("profile redirected to sandbox", "original_path", path, "resolved_path", resolved)
	}
	return resolved
}

func openFS(path string, o *options) (*backend, error) {
	resolved := resolvePath(path, o)
	systemDir := o.text("system_dir")
	if systemDir == "" {
		systemDir = fs.DefaultSystemDir
	}
	readOnly := o.flag("read_only", false)
	autoInit := o.flag("auto_init", false)

	versioning, explicit := o.config["versioning"].(bool)
	if !explicit {
		versioning = detectVersioning(resolved, systemDir, autoInit)
		o.logger.Debug("detected versioning mode", "versioning", versioning, "path", resolved)
	}

	errorHandler, _ := o.config["watcher_error_handler"].(func(error))
	repo, err := fs.NewRepository(fs.Config{
		Path:         resolved,
		SystemDir:    systemDir,
		Format:       o.text("format"),
		AutoInit:     autoInit,
		MustExist:    o.flag("must_exist", false),
		Versioning:   versioning,
		ReadOnly:     readOnly,
		Logger:       o.logger,
		ErrorHandler: errorHandler,
	})
	if err != nil {
		return nil, err
	}
	return &backend{repo: repo, store: fs.NewPreferenceStore(resolved, systemDir, readOnly)}, nil
}

// detectVersioning turns git history on for existing repositories and for
// fresh profiles created with auto init when git is available. An existing
// profile without .git stays unversioned.
func detectVersioning(path, systemDir string, autoInit bool) bool {
	if hasFile(path, ".git") {
		return true
	}
	if !autoInit || !git.IsInstalled() {
		return false
	}
	_, err := os.Stat(filepath.Join(path, systemDir))
	return os.IsNotExist(err)
}

func openSQL(uri string, o *options) (*backend, error) {
	dialect, err := sqlstore.DialectFor(o.adapter)
	if err != nil {
		return nil, err
	}
	dsn := uri
	if o.adapter == AdapterSQLite {
		if dsn == "" {
			dsn = "owlet.db"
		}
		dsn = resolvePath(dsn, o)
	}

	store, err := sqlstore.Open(sqlstore.Config{
		Dialect:  dialect,
		DSN:      dsn,
		ReadOnly: o.flag("read_only", false),
		Logger:   o.logger,
	})
	if err != nil {
		return nil, err
	}
	return &backend{repo: store, store: store.Preferences()}, nil
}
