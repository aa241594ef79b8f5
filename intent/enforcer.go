package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/meigma/trustgate"
)

// Rule violations. They are returned wrapped in a *trustgate.TrustViolation.
var (
	ErrUseNotPermitted = errors.New("use not permitted by intent manifest")
	ErrManifestExpired = errors.New("intent manifest expired")
)

// DefaultUse is the declared use when none is configured.
const DefaultUse = "inference"

// Enforcer checks a declared use against a model's intent manifest.
type Enforcer struct {
	use    string
	now    func() time.Time
	logger *slog.Logger
}

// NewEnforcer creates an Enforcer.
func NewEnforcer(opts ...Option) (*Enforcer, error) {
	e := &Enforcer{
		use:    DefaultUse,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Use returns the declared use.
func (e *Enforcer) Use() string {
	return e.use
}

// LoadAndEnforce implements trustgate.IntentEnforcer.
//
// Manifest read, parse, and schema errors are returned as plain errors.
// Rule denials are returned as a *trustgate.TrustViolation for the intent stage.
func (e *Enforcer) LoadAndEnforce(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m, err := LoadManifest(path)
	if err != nil {
		return err
	}
	e.logger.Debug("intent manifest loaded", "path", path, "model", m.Model.Name, "use", e.use)

	return e.Enforce(m)
}

// Enforce applies the manifest rules to the declared use.
// A prohibited use is rejected even when it also appears in allowedUses.
func (e *Enforcer) Enforce(m *Manifest) error {
	if slices.Contains(m.Intent.ProhibitedUses, e.use) {
		return violation(ErrUseNotPermitted,
			"use %q is prohibited for model %s", e.use, m.Model.Name)
	}
	if !slices.Contains(m.Intent.AllowedUses, e.use) {
		return violation(ErrUseNotPermitted,
			"use %q is not an allowed use for model %s (allowed: %s)",
			e.use, m.Model.Name, strings.Join(m.Intent.AllowedUses, ", "))
	}
	if m.Intent.Expires != nil && !e.now().Before(*m.Intent.Expires) {
		return violation(ErrManifestExpired,
			"intent manifest for model %s expired at %s",
			m.Model.Name, m.Intent.Expires.UTC().Format(time.RFC3339))
	}
	return nil
}

func violation(cause error, format string, args ...any) *trustgate.TrustViolation {
	return trustgate.WrapTrustViolation(trustgate.StageIntent, fmt.Sprintf(format, args...), cause)
}

// Ensure Enforcer implements trustgate.IntentEnforcer.
var _ trustgate.IntentEnforcer = (*Enforcer)(nil)
