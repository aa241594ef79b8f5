package intent

import (
	"errors"
	"log/slog"
	"time"
)

// Option configures an Enforcer.
type Option func(*Enforcer) error

// WithUse sets the use the caller declares for the model.
// The default is "inference".
func WithUse(use string) Option {
	return func(e *Enforcer) error {
		if use == "" {
			return errors.New("intent: use must not be empty")
		}
		e.use = use
		return nil
	}
}

// WithClock sets the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(e *Enforcer) error {
		if now == nil {
			return errors.New("intent: clock must not be nil")
		}
		e.now = now
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Enforcer) error {
		if logger != nil {
			e.logger = logger
		}
		return nil
	}
}
