package fs

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/owlet/pkg/core"
	"github.com/aretw0/owlet/pkg/prefs"
)

// storedValue is the on-disk form of a prefs.Value.
type storedValue struct {
	Type   string   `yaml:"type"`
	Values []string `yaml:"values,flow"`
}

// PreferenceStore implements prefs.Store with one YAML file per scope.
type PreferenceStore struct {
	dir      string
	readOnly bool
	mu       sync.Mutex
}

// NewPreferenceStore stores scopes under <root>/<systemDir>/prefs.
func NewPreferenceStore(root, systemDir string, readOnly bool) *PreferenceStore {
	if systemDir == "" {
		systemDir = DefaultSystemDir
	}
	return &PreferenceStore{
		dir:      filepath.Join(root, systemDir, "prefs"),
		readOnly: readOnly,
	}
}

func (s *PreferenceStore) path(scope string) string {
	return filepath.Join(s.dir, url.QueryEscape(scope)+".yaml")
}

// Load implements prefs.Store.
func (s *PreferenceStore) Load(ctx context.Context, scope string) (map[string]prefs.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(scope)
}

func (s *PreferenceStore) read(scope string) (map[string]prefs.Value, error) {
	out := make(map[string]prefs.Value)
	data, err := os.ReadFile(s.path(scope))
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}

	var raw map[string]storedValue
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid preference file for %s: %w", scope, err)
	}
	for key, sv := range raw {
		t, err := prefs.ParseType(sv.Type)
		if err != nil {
			return nil, fmt.Errorf("preference %s/%s: %w", scope, key, err)
		}
		v, err := prefs.Decode(t, sv.Values)
		if err != nil {
			return nil, fmt.Errorf("preference %s/%s: %w", scope, key, err)
		}
		out[key] = v
	}
	return out, nil
}

func (s *PreferenceStore) write(scope string, values map[string]prefs.Value) error {
	if s.readOnly {
		return core.ErrReadOnly
	}
	if len(values) == 0 {
		if err := os.Remove(s.path(scope)); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	raw := make(map[string]storedValue, len(values))
	for key, v := range values {
		raw[key] = storedValue{Type: v.Type().String(), Values: v.Encoded()}
	}
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path(scope), data, 0644)
}

func (s *PreferenceStore) update(scope string, fn func(map[string]prefs.Value)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.read(scope)
	if err != nil {
		return err
	}
	fn(values)
	return s.write(scope, values)
}

// Put implements prefs.Store.
func (s *PreferenceStore) Put(ctx context.Context, scope, key string, v prefs.Value) error {
	return s.update(scope, func(m map[string]prefs.Value) { m[key] = v })
}

// Delete implements prefs.Store.
func (s *PreferenceStore) Delete(ctx context.Context, scope, key string) error {
	return s.update(scope, func(m map[string]prefs.Value) { delete(m, key) })
}

// Clear implements prefs.Store.
func (s *PreferenceStore) Clear(ctx context.Context, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(scope, nil)
}

var _ prefs.Store = (*PreferenceStore)(nil)
