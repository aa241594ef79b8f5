package policy

import (
	"errors"
	"log/slog"
	"time"
)

// Option configures an Evaluator.
type Option func(*Evaluator) error

// WithClock sets the time source bound to the now variable.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) error {
		if now == nil {
			return errors.New("policy: nil clock")
		}
		e.now = now
		return nil
	}
}

// WithCostLimit caps the CEL evaluation cost of a single rule.
func WithCostLimit(limit uint64) Option {
	return func(e *Evaluator) error {
		if limit == 0 {
			return errors.New("policy: cost limit must be positive")
		}
		e.costLimit = limit
		return nil
	}
}

// WithLogger sets a logger for the evaluator. By default, logging is disabled.
// A nil logger is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) error {
		if logger != nil {
			e.logger = logger
		}
		return nil
	}
}
