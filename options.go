package trustgate

import (
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline) error

// WithIntentEnforcer sets the enforcer used when a run configures an intent path.
func WithIntentEnforcer(e IntentEnforcer) PipelineOption {
	return func(p *Pipeline) error {
		if e == nil {
			return errors.New("trustgate: nil intent enforcer")
		}
		p.intent = e
		return nil
	}
}

// WithLogger sets a logger for the pipeline. By default, logging is disabled.
// A nil logger is ignored.
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) error {
		if logger != nil {
			p.logger = logger
		}
		return nil
	}
}

// WithStageCallback registers a callback for stage transitions.
func WithStageCallback(fn StageCallback) PipelineOption {
	return func(p *Pipeline) error {
		p.onStage = fn
		return nil
	}
}

// WithTracerProvider sets the provider used to create stage spans.
// Defaults to the global otel provider.
func WithTracerProvider(tp trace.TracerProvider) PipelineOption {
	return func(p *Pipeline) error {
		p.tracerProvider = tp
		return nil
	}
}
