package policy

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Effect is the decision a rule produces when its expression matches.
type Effect string

// Rule effects.
const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Rule is a single CEL rule in a policy document.
type Rule struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description,omitempty"`
	Effect      Effect `yaml:"effect"`
	Expression  string `yaml:"expression"`
}

// Document is the on-disk policy format.
type Document struct {
	Name    string `yaml:"name"`
	Default Effect `yaml:"default,omitempty"`
	Rules   []Rule `yaml:"rules"`
}

// ParseDocument decodes and validates a YAML policy document.
// An omitted default is treated as deny.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: parse: %w", ErrMalformedPolicy, err)
	}

	if doc.Default == "" {
		doc.Default = EffectDeny
	}
	if err := doc.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPolicy, err)
	}
	return &doc, nil
}

func (d *Document) validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("policy name is required")
	}
	if !d.Default.valid() {
		return fmt.Errorf("unknown default %q (want allow or deny)", d.Default)
	}

	seen := make(map[string]bool, len(d.Rules))
	for i, r := range d.Rules {
		if r.ID == "" {
			return fmt.Errorf("rule %d: id is required", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("rule %q: duplicate id", r.ID)
		}
		seen[r.ID] = true
		if !r.Effect.valid() {
			return fmt.Errorf("rule %q: unknown effect %q", r.ID, r.Effect)
		}
		if strings.TrimSpace(r.Expression) == "" {
			return fmt.Errorf("rule %q: expression is required", r.ID)
		}
	}
	return nil
}

func (e Effect) valid() bool {
	return e == EffectAllow || e == EffectDeny
}
