package intent

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// ErrInvalidManifest indicates a manifest that cannot be parsed or fails schema validation.
var ErrInvalidManifest = errors.New("invalid intent manifest")

// schemaURL is the $id of the embedded manifest schema.
const schemaURL = "https://trustgate.dev/schemas/model-intent.schema.json"

//go:embed schema.json
var schemaJSON []byte

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("intent schema load failed: %w", err)
	}
	s, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("intent schema compile failed: %w", err)
	}
	return s, nil
})

// Manifest declares what a model is intended to be used for.
type Manifest struct {
	APIVersion string   `yaml:"apiVersion"`
	Kind       string   `yaml:"kind"`
	Model      ModelRef `yaml:"model"`
	Intent     Intent   `yaml:"intent"`
}

// ModelRef identifies the model a manifest applies to.
type ModelRef struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version,omitempty"`
}

// Intent lists the permitted and forbidden uses of a model.
type Intent struct {
	Purpose        string     `yaml:"purpose"`
	AllowedUses    []string   `yaml:"allowedUses"`
	ProhibitedUses []string   `yaml:"prohibitedUses,omitempty"`
	Expires        *time.Time `yaml:"expires,omitempty"`
}

// LoadManifest reads, schema-validates, and decodes the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read intent manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest schema-validates and decodes a YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse: %w", ErrInvalidManifest, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidManifest)
	}

	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(jsonValue(raw)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrInvalidManifest, err)
	}
	return &m, nil
}

// jsonValue converts a decoded YAML value into the JSON value model
// expected by the schema validator.
func jsonValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = jsonValue(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = jsonValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = jsonValue(val)
		}
		return out
	case time.Time:
		return t.Format(time.RFC3339Nano)
	default:
		return v
	}
}
