package fs

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/owlet/pkg/core"
)

// Serializer defines how entities are written to and read from files.
type Serializer interface {
	// Ext is the file extension, including the dot.
	Ext() string
	Marshal(e core.Entity) ([]byte, error)
	// Unmarshal decodes data into e, which must be a pointer from core.NewEntity.
	Unmarshal(data []byte, e core.Entity) error
}

// SerializerFor returns the serializer registered for a format name
// ("yaml", "json"). An empty name selects YAML.
func SerializerFor(format string) (Serializer, error) {
	switch format {
	case "", "yaml", "yml":
		return YAMLSerializer{}, nil
	case "json":
		return JSONSerializer{}, nil
	}
	return nil, fmt.Errorf("unknown format %q", format)
}

// --- YAML Serializer ---

// YAMLSerializer is the default, hand-editable format.
type YAMLSerializer struct{}

func (YAMLSerializer) Ext() string { return ".yaml" }

func (YAMLSerializer) Marshal(e core.Entity) ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(e); err != nil {
		return nil, err
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (YAMLSerializer) Unmarshal(data []byte, e core.Entity) error {
	if err := yaml.Unmarshal(data, e); err != nil {
		return fmt.Errorf("invalid yaml: %w", err)
	}
	return nil
}

// --- JSON Serializer ---

// JSONSerializer writes indented JSON.
type JSONSerializer struct{}

func (JSONSerializer) Ext() string { return ".json" }

func (JSONSerializer) Marshal(e core.Entity) ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}

func (JSONSerializer) Unmarshal(data []byte, e core.Entity) error {
	if err := json.Unmarshal(data, e); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}
