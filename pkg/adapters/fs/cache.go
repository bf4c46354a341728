package fs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/owlet/pkg/core"
)

// indexEntry holds the decoded form of one entity file.
type indexEntry struct {
	Kind         core.Kind       `json:"kind"`
	Key          string          `json:"key"`
	LastModified time.Time       `json:"lastModified"`
	Entity       json.RawMessage `json:"entity"`
}

// decode returns a fresh entity built from the cached payload.
func (e *indexEntry) decode() (core.Entity, error) {
	ent := core.NewEntity(e.Kind)
	if ent == nil {
		return nil, fmt.Errorf("unknown kind %q in cache", e.Kind)
	}
	if err := json.Unmarshal(e.Entity, ent); err != nil {
		return nil, err
	}
	return ent, nil
}

func newIndexEntry(ent core.Entity, mtime time.Time) (*indexEntry, error) {
	raw, err := json.Marshal(ent)
	if err != nil {
		return nil, err
	}
	return &indexEntry{
		Kind:         ent.Kind(),
		Key:          ent.NaturalKey(),
		LastModified: mtime,
		Entity:       raw,
	}, nil
}

// index represents the persistent cache state.
type index struct {
	Version int                    `json:"version"`
	Entries map[string]*indexEntry `json:"entries"` // Key is relative path (e.g. "feed/http%3A%2F%2Fx.yaml")
	dirty   bool
	mu      sync.RWMutex
}

// cache manages the loading, updating, and saving of the index.
type cache struct {
	Path  string // Path to .owlet/index.json
	index *index
}

// newCache initializes a cache at the given path.
func newCache(root, systemDir string) *cache {
	return &cache{
		Path: filepath.Join(root, systemDir, "index.json"),
		index: &index{
			Version: 1,
			Entries: make(map[string]*indexEntry),
		},
	}
}

// Load reads the cache from disk. A missing or corrupt file yields an empty index.
func (c *cache) Load() error {
	c.index.mu.Lock()
	defer c.index.mu.Unlock()

	data, err := os.ReadFile(c.Path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cache: %w", err)
	}

	if err := json.Unmarshal(data, c.index); err != nil || c.index.Entries == nil {
		c.index.Entries = make(map[string]*indexEntry)
		return nil
	}

	c.index.dirty = false
	return nil
}

// Save persists the cache to disk if it is dirty.
func (c *cache) Save() error {
	c.index.mu.RLock()
	if !c.index.dirty {
		c.index.mu.RUnlock()
		return nil
	}
	data, err := json.Marshal(c.index)
	c.index.mu.RUnlock()

	if err != nil {
		return err
	}

	if err := writeFileAtomic(c.Path, data, 0644); err != nil {
		return err
	}

	c.index.mu.Lock()
	c.index.dirty = false
	c.index.mu.Unlock()

	return nil
}

// Get retrieves an entry if it exists and matches the file's mtime.
func (c *cache) Get(relPath string, currentMtime time.Time) (*indexEntry, bool) {
	c.index.mu.RLock()
	defer c.index.mu.RUnlock()

	entry, ok := c.index.Entries[relPath]
	if !ok {
		return nil, false
	}
	if !entry.LastModified.Equal(currentMtime) {
		return nil, false
	}
	return entry, true
}

// Has reports whether relPath is indexed, fresh or not.
func (c *cache) Has(relPath string) bool {
	c.index.mu.RLock()
	defer c.index.mu.RUnlock()
	_, ok := c.index.Entries[relPath]
	return ok
}

// Missing returns the indexed paths absent from seen, sorted.
func (c *cache) Missing(seen map[string]bool) []string {
	c.index.mu.RLock()
	defer c.index.mu.RUnlock()

	var out []string
	for path := range c.index.Entries {
		if !seen[path] {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// Set updates an entry in the cache.
func (c *cache) Set(relPath string, entry *indexEntry) {
	c.index.mu.Lock()
	defer c.index.mu.Unlock()

	c.index.Entries[relPath] = entry
	c.index.dirty = true
}

// Prune removes entries that are not in the 'keep' set.
func (c *cache) Prune(keep map[string]bool) {
	c.index.mu.Lock()
	defer c.index.mu.Unlock()

	for path := range c.index.Entries {
		if !keep[path] {
			delete(c.index.Entries, path)
			c.index.dirty = true
		}
	}
}

// Delete removes a single entry from the cache.
func (c *cache) Delete(relPath string) {
	c.index.mu.Lock()
	defer c.index.mu.Unlock()

	if _, ok := c.index.Entries[relPath]; ok {
		delete(c.index.Entries, relPath)
		c.index.dirty = true
	}
}

// Len returns the number of entries in the cache.
func (c *cache) Len() int {
	c.index.mu.RLock()
	defer c.index.mu.RUnlock()
	return len(c.index.Entries)
}
