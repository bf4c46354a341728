package fs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/owlet/pkg/core"
)

// Watch implements core.Watchable. pattern is a doublestar glob matched
// against entity paths relative to the profile ("news/*", "feed/**"); an
// empty pattern matches everything. Writes made through this repository
// are not reported back.
func (r *Repository) Watch(ctx context.Context, pattern string) (<-chan core.ExternalEvent, error) {
	if pattern == "" {
		pattern = "**"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid watch pattern %q", pattern)
	}

	// Prime the cache so reconciliation only reports real differences.
	if _, err := r.Reconcile(ctx); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := r.addWatches(watcher); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	w := &watchLoop{
		repo:      r,
		pattern:   pattern,
		watcher:   watcher,
		debouncer: newDebouncer(50 * time.Millisecond),
		out:       make(chan core.ExternalEvent, 64),
	}
	r.setWatcherActive(true)

	lifecycle.Go(ctx, w.run, lifecycle.WithErrorHandler(func(err error) {
		r.report(fmt.Errorf("watcher failed: %w", err))
	}))
	return w.out, nil
}

func (r *Repository) addWatches(watcher *fsnotify.Watcher) error {
	if err := watcher.Add(r.Path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", r.Path, err)
	}
	for _, kind := range core.Kinds {
		dir := filepath.Join(r.Path, string(kind))
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("failed to watch %s: %w", dir, err)
			}
		}
	}
	if r.config.Versioning {
		_ = watcher.Add(filepath.Join(r.Path, ".git"))
	}
	return nil
}

type watchLoop struct {
	repo      *Repository
	pattern   string
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	out       chan core.ExternalEvent
	gitLocked bool
}

func (w *watchLoop) run(ctx context.Context) error {
	logger := w.repo.config.Logger
	defer func() {
		if recovered := recover(); recovered != nil {
			// Stack traces only at debug level.
			if logger.Enabled(ctx, slog.LevelDebug) {
				logger.Error("watcher panic", "error", recovered, "stack", string(debug.Stack()))
			} else {
				logger.Error("watcher panic", "error", recovered)
			}
		}
	}()
	defer close(w.out)
	defer w.repo.setWatcherActive(false)
	defer w.watcher.Close()
	// The debouncer must drain before out is closed.
	defer w.debouncer.stopAndWait(5 * time.Second)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}
			if w.handleGitLock(ctx, event) {
				continue
			}
			if w.gitLocked {
				continue
			}
			w.handle(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			w.repo.report(fmt.Errorf("fsnotify: %w", err))
		}
	}
}

// handleGitLock pauses the loop while git holds .git/index.lock and
// reconciles once it is released.
func (w *watchLoop) handleGitLock(ctx context.Context, event fsnotify.Event) bool {
	if filepath.Base(event.Name) != "index.lock" || filepath.Base(filepath.Dir(event.Name)) != ".git" {
		return false
	}
	switch {
	case event.Has(fsnotify.Create):
		w.gitLocked = true
		w.repo.config.Logger.Debug("git operations detected, pausing watcher")
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		w.gitLocked = false
		w.repo.config.Logger.Debug("git operations finished, reconciling")
		w.reconcile(ctx)
	}
	return true
}

func (w *watchLoop) reconcile(ctx context.Context) {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		events, err := w.repo.Reconcile(ctx)
		if err != nil {
			return err
		}
		for _, e := range events {
			if w.matches(w.repo.relPath(e.Kind, e.Key)) {
				w.send(ctx, e)
			}
		}
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		w.repo.report(fmt.Errorf("reconcile failed: %w", err))
	}))
}

func (w *watchLoop) matches(rel string) bool {
	ok, err := doublestar.Match(w.pattern, rel)
	return err == nil && ok
}

func (w *watchLoop) handle(ctx context.Context, event fsnotify.Event) {
	rel, err := filepath.Rel(w.repo.Path, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	// A new kind directory: start watching it.
	if event.Has(fsnotify.Create) && core.Kind(rel).Valid() {
		if err := w.watcher.Add(event.Name); err != nil {
			w.repo.report(fmt.Errorf("failed to watch %s: %w", event.Name, err))
		}
		return
	}

	kind, key, ok := w.repo.parseRel(rel)
	if !ok || !w.matches(rel) || w.repo.isOwnWrite(rel) {
		return
	}

	var typ core.ExternalEventType
	switch {
	case event.Has(fsnotify.Create):
		typ = core.ExternalCreate
	case event.Has(fsnotify.Write):
		typ = core.ExternalModify
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		typ = core.ExternalDelete
		w.repo.cache.Delete(rel)
	default:
		return
	}

	w.repo.config.Logger.Debug("external change", "path", rel, "type", typ)
	w.send(ctx, core.ExternalEvent{Type: typ, Kind: kind, Key: key, Timestamp: time.Now().Unix()})
}

func (w *watchLoop) send(ctx context.Context, e core.ExternalEvent) {
	w.debouncer.add(e, func(e core.ExternalEvent) {
		// out may already be closed if the loop is shutting down.
		defer func() { _ = recover() }()
		select {
		case w.out <- e:
		case <-ctx.Done():
		}
	})
}

// Reconcile compares the files on disk with the cache and returns the
// differences as external events. The cache is updated to match the disk.
func (r *Repository) Reconcile(ctx context.Context) ([]core.ExternalEvent, error) {
	seen := make(map[string]bool)
	var events []core.ExternalEvent
	now := time.Now().Unix()

	for _, kind := range core.Kinds {
		entries, err := os.ReadDir(filepath.Join(r.Path, string(kind)))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, de := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			rel := string(kind) + "/" + de.Name()
			_, key, ok := r.parseRel(rel)
			if de.IsDir() || !ok {
				continue
			}
			info, err := de.Info()
			if err != nil {
				continue
			}
			seen[rel] = true

			typ := core.ExternalModify
			if !r.cache.Has(rel) {
				typ = core.ExternalCreate
			} else if _, fresh := r.cache.Get(rel, info.ModTime()); fresh {
				continue
			}
			if _, err := r.loadFile(rel, kind, key, info.ModTime()); err != nil {
				r.config.Logger.Warn("skipping unreadable entity file", "path", rel, "error", err)
				continue
			}
			events = append(events, core.ExternalEvent{Type: typ, Kind: kind, Key: key, Timestamp: now})
		}
	}

	for _, gone := range r.cache.Missing(seen) {
		if kind, key, ok := r.parseRel(gone); ok {
			events = append(events, core.ExternalEvent{Type: core.ExternalDelete, Kind: kind, Key: key, Timestamp: now})
		}
	}
	r.cache.Prune(seen)

	if !r.config.ReadOnly {
		if err := r.cache.Save(); err != nil {
			r.config.Logger.Warn("failed to save cache", "error", err)
		}
	}
	r.recordReconcile()
	return events, nil
}
