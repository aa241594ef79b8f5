package trustgate

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/meigma/trustgate"

// Pipeline runs the trust stages in order and releases the artifact only
// when every stage passes.
//
// A Pipeline holds no per-run state and is safe for concurrent use.
type Pipeline struct {
	verifier Verifier
	policy   PolicyEvaluator
	intent   IntentEnforcer
	loader   ArtifactLoader

	logger         *slog.Logger
	onStage        StageCallback
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
}

// NewPipeline creates a pipeline from its collaborators.
//
// The intent enforcer is optional and is set with WithIntentEnforcer; a run
// that configures an intent path without one fails at the intent stage.
func NewPipeline(verifier Verifier, policy PolicyEvaluator, loader ArtifactLoader, opts ...PipelineOption) (*Pipeline, error) {
	if verifier == nil {
		return nil, errors.New("trustgate: nil verifier")
	}
	if policy == nil {
		return nil, errors.New("trustgate: nil policy evaluator")
	}
	if loader == nil {
		return nil, errors.New("trustgate: nil artifact loader")
	}

	p := &Pipeline{
		verifier: verifier,
		policy:   policy,
		loader:   loader,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	if p.tracerProvider == nil {
		p.tracerProvider = otel.GetTracerProvider()
	}
	p.tracer = p.tracerProvider.Tracer(tracerName)

	return p, nil
}

// runState is the per-invocation context threaded through the stages.
type runState struct {
	id     string
	logger *slog.Logger
}

// Run executes the pipeline for cfg.
//
// Exactly one of the results is non-nil. When the error is non-nil it is
// always a *TrustViolation naming the stage that failed.
func (p *Pipeline) Run(ctx context.Context, cfg PipelineConfig) (*Artifact, error) {
	r := &runState{id: uuid.NewString()}
	r.logger = p.logger.With("run_id", r.id)

	ctx, span := p.tracer.Start(ctx, "trustgate.Run", trace.WithAttributes(
		attribute.String("trustgate.run_id", r.id),
		attribute.String("trustgate.model_path", cfg.ModelPath),
		attribute.Bool("trustgate.intent", cfg.HasIntent()),
	))
	defer span.End()

	artifact, tv := p.run(ctx, r, cfg)
	if tv != nil {
		span.SetAttributes(attribute.String("trustgate.failed_stage", tv.Stage.String()))
		span.SetStatus(codes.Error, tv.Reason)
		r.logger.Warn("trust pipeline denied", "stage", tv.Stage, "reason", tv.Reason)
		return nil, tv
	}

	span.SetStatus(codes.Ok, "")
	r.logger.Info("trust pipeline passed", "model", cfg.ModelPath, "digest", artifact.Digest.String())
	return artifact, nil
}

// run sequences the stages. Each stage gates the next.
func (p *Pipeline) run(ctx context.Context, r *runState, cfg PipelineConfig) (*Artifact, *TrustViolation) {
	facts, tv := p.verify(ctx, r, cfg)
	if tv != nil {
		return nil, tv
	}

	if tv := p.evaluatePolicy(ctx, r, cfg, facts); tv != nil {
		return nil, tv
	}

	if tv := p.enforceIntent(ctx, r, cfg); tv != nil {
		return nil, tv
	}

	return p.load(ctx, r, cfg)
}

func (p *Pipeline) verify(ctx context.Context, r *runState, cfg PipelineConfig) (VerificationFacts, *TrustViolation) {
	var facts VerificationFacts
	tv := p.stage(ctx, r, StageVerification, func(ctx context.Context) *TrustViolation {
		f, err := p.verifier.Verify(ctx, cfg.ModelPath, cfg.CertPath)
		if err != nil {
			return WrapTrustViolation(StageVerification, err.Error(), err)
		}
		facts = f
		return nil
	})
	return facts, tv
}

func (p *Pipeline) evaluatePolicy(ctx context.Context, r *runState, cfg PipelineConfig, facts VerificationFacts) *TrustViolation {
	return p.stage(ctx, r, StagePolicy, func(ctx context.Context) *TrustViolation {
		policy, err := p.policy.LoadPolicy(ctx, cfg.PolicyPath)
		if err != nil {
			return WrapTrustViolation(StagePolicy, err.Error(), err)
		}

		decision, err := p.policy.Evaluate(ctx, policy, facts)
		if err != nil {
			return WrapTrustViolation(StagePolicy, err.Error(), err)
		}

		// A completed evaluation is not enough; the decision must also be ALLOW.
		if !decision.Allowed() {
			return WrapTrustViolation(StagePolicy, PolicyDeniedPrefix+decision.Reason, ErrPolicyDenied)
		}

		r.logger.Debug("policy allowed", "policy", policyName(policy), "reason", decision.Reason)
		return nil
	})
}

func (p *Pipeline) enforceIntent(ctx context.Context, r *runState, cfg PipelineConfig) *TrustViolation {
	if !cfg.HasIntent() {
		r.logger.Debug("stage skipped", "stage", StageIntent)
		p.emit(r, StageEvent{Stage: StageIntent, Status: StageSkipped})
		return nil
	}

	return p.stage(ctx, r, StageIntent, func(ctx context.Context) *TrustViolation {
		if p.intent == nil {
			return WrapTrustViolation(StageIntent, ErrNoIntentEnforcer.Error(), ErrNoIntentEnforcer)
		}

		err := p.intent.LoadAndEnforce(ctx, cfg.IntentPath)
		if err == nil {
			return nil
		}
		// The enforcer's own stage attribution wins.
		if tv, ok := AsTrustViolation(err); ok {
			return tv
		}
		return WrapTrustViolation(StageIntent, err.Error(), err)
	})
}

func (p *Pipeline) load(ctx context.Context, r *runState, cfg PipelineConfig) (*Artifact, *TrustViolation) {
	var artifact *Artifact
	tv := p.stage(ctx, r, StageLoad, func(ctx context.Context) *TrustViolation {
		a, err := p.loader.Load(ctx, cfg.ModelPath)
		if err != nil || a == nil {
			// Post-trust infrastructure fault: log the cause, report the fixed reason.
			r.logger.Debug("artifact load failed", "error", err)
			return WrapTrustViolation(StageLoad, LoadFailureReason, ErrLoadFailed)
		}
		artifact = a
		return nil
	})
	if tv != nil {
		return nil, tv
	}
	return artifact, nil
}

// stage runs fn inside a span and reports its transitions.
func (p *Pipeline) stage(ctx context.Context, r *runState, stage Stage, fn func(context.Context) *TrustViolation) *TrustViolation {
	ctx, span := p.tracer.Start(ctx, "trustgate."+stage.String())
	defer span.End()

	r.logger.Debug("stage started", "stage", stage)
	p.emit(r, StageEvent{Stage: stage, Status: StageStarted})

	if tv := fn(ctx); tv != nil {
		span.SetStatus(codes.Error, tv.Reason)
		p.emit(r, StageEvent{Stage: tv.Stage, Status: StageFailed, Violation: tv})
		return tv
	}

	span.SetStatus(codes.Ok, "")
	r.logger.Debug("stage passed", "stage", stage)
	p.emit(r, StageEvent{Stage: stage, Status: StagePassed})
	return nil
}

func (p *Pipeline) emit(r *runState, event StageEvent) {
	if p.onStage == nil {
		return
	}
	event.RunID = r.id
	p.onStage(event)
}

func policyName(policy Policy) string {
	if policy == nil {
		return ""
	}
	return policy.Name()
}
