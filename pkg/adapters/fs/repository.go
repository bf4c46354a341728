// Package fs stores entities as one file per entity under a profile
// directory, optionally versioned with git.
//
// Layout: <root>/<kind>/<escaped natural key><ext>. System files (cache,
// id sequence, preferences) live under <root>/<SystemDir>.
package fs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/owlet/pkg/core"
	"github.com/aretw0/owlet/pkg/git"
)

// DefaultSystemDir holds owlet's bookkeeping files inside the profile.
const DefaultSystemDir = ".owlet"

// Repository implements core.Repository using the filesystem and, when
// Versioning is set, git.
type Repository struct {
	Path       string
	git        *git.Client
	cache      *cache
	config     Config
	serializer Serializer

	// writeMu serializes writers inside the process; the git lock file
	// serializes them across processes.
	writeMu sync.Mutex

	mu            sync.RWMutex
	watcherActive bool
	lastReconcile *time.Time
	lastCommit    *time.Time
	ownWrites     map[string]time.Time
}

// Config holds the configuration for the filesystem repository.
type Config struct {
	Path         string
	SystemDir    string // e.g. ".owlet"
	Format       string // "yaml" (default) or "json"
	AutoInit     bool   // run git init when Versioning is on and the profile is not a repository
	MustExist    bool
	Versioning   bool
	ReadOnly     bool
	Logger       *slog.Logger
	ErrorHandler func(error) // receives watcher and versioning errors
}

// NewRepository creates a new filesystem-backed repository.
func NewRepository(config Config) (*Repository, error) {
	if config.Path == "" {
		return nil, errors.New("fs repository needs a path")
	}
	if config.SystemDir == "" {
		config.SystemDir = DefaultSystemDir
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	ser, err := SerializerFor(config.Format)
	if err != nil {
		return nil, err
	}
	return &Repository{
		Path:       config.Path,
		git:        git.NewClient(config.Path, config.SystemDir+".lock", config.Logger),
		cache:      newCache(config.Path, config.SystemDir),
		config:     config,
		serializer: ser,
		ownWrites:  make(map[string]time.Time),
	}, nil
}

// Initialize performs the necessary setup for the repository (mkdir, git init).
func (r *Repository) Initialize(ctx context.Context) error {
	if r.config.MustExist || r.config.ReadOnly {
		info, err := os.Stat(r.Path)
		if os.IsNotExist(err) {
			return fmt.Errorf("profile path does not exist: %s", r.Path)
		}
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("profile path is not a directory: %s", r.Path)
		}
	} else {
		if err := os.MkdirAll(filepath.Join(r.Path, r.config.SystemDir), 0755); err != nil {
			return fmt.Errorf("failed to create profile directory: %w", err)
		}
	}

	if err := r.cache.Load(); err != nil {
		r.config.Logger.Warn("ignoring unreadable cache", "path", r.cache.Path, "error", err)
	}

	if r.config.Versioning && !r.config.ReadOnly {
		if err := r.initVersioning(ctx); err != nil {
			return err
		}
	}
	if !r.config.ReadOnly {
		if err := r.seedSequence(ctx); err != nil {
			return fmt.Errorf("failed to seed id sequence: %w", err)
		}
	}
	return nil
}

func (r *Repository) initVersioning(ctx context.Context) error {
	if !git.IsInstalled() {
		return fmt.Errorf("git is not installed")
	}

	wasNewRepo := false
	if !r.git.IsRepo() {
		if !r.config.AutoInit {
			return fmt.Errorf("path is not a git repository: %s", r.Path)
		}
		if err := r.git.Init(ctx); err != nil {
			return fmt.Errorf("failed to git init: %w", err)
		}
		wasNewRepo = true
	}

	mod, err := r.ensureIgnore()
	if err != nil {
		return fmt.Errorf("failed to ensure .gitignore: %w", err)
	}

	if mod && wasNewRepo {
		if err := r.git.Add(ctx, ".gitignore"); err != nil {
			return fmt.Errorf("failed to add .gitignore: %w", err)
		}
		if err := r.git.Commit(ctx, fmt.Sprintf("chore: configure %s ignore", r.config.SystemDir)); err != nil {
			return fmt.Errorf("failed to commit .gitignore: %w", err)
		}
	}
	return nil
}

func (r *Repository) ensureIgnore() (bool, error) {
	ignorePath := filepath.Join(r.Path, ".gitignore")
	entries := []string{r.config.SystemDir + "/", r.config.SystemDir + ".lock", TempFilePrefix + "*"}

	content, err := os.ReadFile(ignorePath)
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}

	present := make(map[string]bool)
	for _, line := range strings.Split(string(content), "\n") {
		present[strings.TrimSpace(line)] = true
	}

	var missing []string
	for _, e := range entries {
		if !present[e] {
			missing = append(missing, e)
		}
	}
	if len(missing) == 0 {
		return false, nil
	}

	f, err := os.OpenFile(ignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return false, err
	}
	defer f.Close()

	if len(content) > 0 && !strings.HasSuffix(string(content), "\n") {
		if _, err := f.WriteString("\n"); err != nil {
			return false, err
		}
	}
	if _, err := f.WriteString(strings.Join(missing, "\n") + "\n"); err != nil {
		return false, err
	}
	return true, nil
}

// relPath returns the slash-separated path of an entity file relative to the root.
func (r *Repository) relPath(kind core.Kind, key string) string {
	return string(kind) + "/" + url.QueryEscape(key) + r.serializer.Ext()
}

// parseRel is the inverse of relPath. ok is false for files owlet does not own.
func (r *Repository) parseRel(rel string) (kind core.Kind, key string, ok bool) {
	rel = filepath.ToSlash(rel)
	dir, file, found := strings.Cut(rel, "/")
	if !found || strings.Contains(file, "/") || isTempFile(file) {
		return "", "", false
	}
	kind = core.Kind(dir)
	if !kind.Valid() || filepath.Ext(file) != r.serializer.Ext() {
		return "", "", false
	}
	key, err := url.QueryUnescape(strings.TrimSuffix(file, r.serializer.Ext()))
	if err != nil || key == "" {
		return "", "", false
	}
	return kind, key, true
}

func (r *Repository) abs(rel string) string {
	return filepath.Join(r.Path, filepath.FromSlash(rel))
}

// Load implements core.Loader.
func (r *Repository) Load(ctx context.Context, kind core.Kind, key string) (core.Entity, bool, error) {
	if !kind.Valid() {
		return nil, false, fmt.Errorf("unknown kind %q", kind)
	}
	rel := r.relPath(kind, key)
	info, err := os.Stat(r.abs(rel))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	ent, err := r.loadFile(rel, kind, key, info.ModTime())
	if err != nil {
		return nil, false, err
	}
	return ent, true, nil
}

// loadFile decodes an entity file, serving it from the cache when the
// modification time is unchanged.
func (r *Repository) loadFile(rel string, kind core.Kind, key string, mtime time.Time) (core.Entity, error) {
	if entry, ok := r.cache.Get(rel, mtime); ok {
		if ent, err := entry.decode(); err == nil {
			return ent, nil
		}
	}

	data, err := os.ReadFile(r.abs(rel))
	if err != nil {
		return nil, err
	}
	ent := core.NewEntity(kind)
	if err := r.serializer.Unmarshal(data, ent); err != nil {
		return nil, fmt.Errorf("%s: %w", rel, err)
	}
	if got := ent.NaturalKey(); got != key {
		return nil, fmt.Errorf("%s: stored key %q does not match file name", rel, got)
	}

	if entry, err := newIndexEntry(ent, mtime); err == nil {
		r.cache.Set(rel, entry)
	}
	return ent, nil
}

// List implements core.Repository.
func (r *Repository) List(ctx context.Context, kind core.Kind) ([]core.Entity, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	entries, err := os.ReadDir(filepath.Join(r.Path, string(kind)))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	type keyed struct {
		key string
		ent core.Entity
	}
	out := make([]keyed, 0, len(entries))
	for _, de := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if de.IsDir() {
			continue
		}
		rel := string(kind) + "/" + de.Name()
		k, key, ok := r.parseRel(rel)
		if !ok || k != kind {
			continue
		}
		info, err := de.Info()
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		ent, err := r.loadFile(rel, kind, key, info.ModTime())
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, keyed{key, ent})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	ents := make([]core.Entity, len(out))
	for i, k := range out {
		ents[i] = k.ent
	}
	return ents, nil
}

// NextID implements core.Repository. The sequence lives in the system
// directory and is shared by every process holding the lock.
func (r *Repository) NextID(ctx context.Context) (int64, error) {
	if r.config.ReadOnly {
		return 0, core.ErrReadOnly
	}
	unlock, err := r.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	last, err := r.readSequence()
	if err != nil {
		return 0, err
	}
	next := last + 1
	if err := r.writeSequence(next); err != nil {
		return 0, err
	}
	return next, nil
}

func (r *Repository) sequencePath() string {
	return filepath.Join(r.Path, r.config.SystemDir, "sequence")
}

func (r *Repository) readSequence() (int64, error) {
	path := r.sequencePath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	last, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt id sequence %s: %w", path, err)
	}
	return last, nil
}

func (r *Repository) writeSequence(v int64) error {
	if err := os.MkdirAll(filepath.Dir(r.sequencePath()), 0755); err != nil {
		return err
	}
	return writeFileAtomic(r.sequencePath(), []byte(strconv.FormatInt(v, 10)+"\n"), 0644)
}

// advanceSequence moves the sequence to at least id. The caller holds the lock.
func (r *Repository) advanceSequence(id int64) error {
	if id <= 0 {
		return nil
	}
	last, err := r.readSequence()
	if err != nil {
		return err
	}
	if id <= last {
		return nil
	}
	return r.writeSequence(id)
}

// maxStoredID scans the entity directories for the largest numeric id.
// Files are not decoded; the id is the file name.
func (r *Repository) maxStoredID() (int64, error) {
	var top int64
	for _, kind := range core.Kinds {
		if _, ok := core.NewEntity(kind).(interface{ EntityID() int64 }); !ok {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(r.Path, string(kind)))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return 0, err
		}
		for _, de := range entries {
			if de.IsDir() {
				continue
			}
			_, key, ok := r.parseRel(string(kind) + "/" + de.Name())
			if !ok {
				continue
			}
			if id, err := strconv.ParseInt(key, 10, 64); err == nil && id > top {
				top = id
			}
		}
	}
	return top, nil
}

func (r *Repository) seedSequence(ctx context.Context) error {
	top, err := r.maxStoredID()
	if err != nil || top == 0 {
		return err
	}
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	return r.advanceSequence(top)
}

// lock takes the in-process writer mutex, then the cross-process lock file.
func (r *Repository) lock(ctx context.Context) (func(), error) {
	r.writeMu.Lock()
	unlock, err := r.git.Lock(ctx)
	if err != nil {
		r.writeMu.Unlock()
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return func() {
		unlock()
		r.writeMu.Unlock()
	}, nil
}

// Close implements core.Repository.
func (r *Repository) Close() error {
	if r.config.ReadOnly {
		return nil
	}
	return r.cache.Save()
}

// History returns the last n change reasons recorded by git.
func (r *Repository) History(ctx context.Context, n int) ([]string, error) {
	if !r.config.Versioning {
		return nil, errors.New("versioning is disabled")
	}
	return r.git.Log(ctx, n)
}

// markOwnWrite records a path written by this process so the watcher
// does not report it back as an external change.
func (r *Repository) markOwnWrite(rel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ownWrites[rel] = time.Now()
}

const ownWriteWindow = 2 * time.Second

func (r *Repository) isOwnWrite(rel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.ownWrites[rel]
	if !ok {
		return false
	}
	if time.Since(at) > ownWriteWindow {
		delete(r.ownWrites, rel)
		return false
	}
	return true
}

var _ core.Repository = (*Repository)(nil)
var _ core.Watchable = (*Repository)(nil)
