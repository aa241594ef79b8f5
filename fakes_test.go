package trustgate_test

import (
	"context"
	"sync"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/trustgate"
)

// recorder tracks collaborator calls in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeVerifier struct {
	rec   *recorder
	facts trustgate.VerificationFacts
	err   error
}

func (f *fakeVerifier) Verify(_ context.Context, _, _ string) (trustgate.VerificationFacts, error) {
	f.rec.record("verify")
	if f.err != nil {
		return nil, f.err
	}
	return f.facts, nil
}

type fakePolicy struct{ name string }

func (p fakePolicy) Name() string { return p.name }

type fakeEvaluator struct {
	rec      *recorder
	loadErr  error
	evalErr  error
	decision trustgate.PolicyDecision

	mu       sync.Mutex
	gotFacts trustgate.VerificationFacts
}

func (f *fakeEvaluator) LoadPolicy(_ context.Context, path string) (trustgate.Policy, error) {
	f.rec.record("load-policy")
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return fakePolicy{name: path}, nil
}

func (f *fakeEvaluator) Evaluate(_ context.Context, _ trustgate.Policy, facts trustgate.VerificationFacts) (trustgate.PolicyDecision, error) {
	f.rec.record("evaluate")
	f.mu.Lock()
	f.gotFacts = facts
	f.mu.Unlock()
	if f.evalErr != nil {
		return trustgate.PolicyDecision{}, f.evalErr
	}
	return f.decision, nil
}

type fakeEnforcer struct {
	rec *recorder
	err error
}

func (f *fakeEnforcer) LoadAndEnforce(_ context.Context, _ string) error {
	f.rec.record("enforce")
	return f.err
}

type fakeLoader struct {
	rec      *recorder
	artifact *trustgate.Artifact
	err      error
}

func (f *fakeLoader) Load(_ context.Context, path string) (*trustgate.Artifact, error) {
	f.rec.record("load")
	if f.err != nil {
		return nil, f.err
	}
	if f.artifact != nil {
		return f.artifact, nil
	}
	data := []byte("weights:" + path)
	return &trustgate.Artifact{
		Path:   path,
		Digest: digest.FromBytes(data),
		Size:   int64(len(data)),
		Format: "safetensors",
		Data:   data,
	}, nil
}

// harness bundles a full set of passing fakes sharing one recorder.
type harness struct {
	rec       *recorder
	verifier  *fakeVerifier
	evaluator *fakeEvaluator
	enforcer  *fakeEnforcer
	loader    *fakeLoader
}

func newHarness() *harness {
	rec := &recorder{}
	return &harness{
		rec: rec,
		verifier: &fakeVerifier{rec: rec, facts: trustgate.VerificationFacts{
			"signer": map[string]any{"subject": "release@example.com"},
		}},
		evaluator: &fakeEvaluator{rec: rec, decision: trustgate.PolicyDecision{
			Decision: trustgate.DecisionAllow,
			Reason:   "trusted signer",
		}},
		enforcer: &fakeEnforcer{rec: rec},
		loader:   &fakeLoader{rec: rec},
	}
}

func (h *harness) pipeline(opts ...trustgate.PipelineOption) (*trustgate.Pipeline, error) {
	opts = append([]trustgate.PipelineOption{trustgate.WithIntentEnforcer(h.enforcer)}, opts...)
	return trustgate.NewPipeline(h.verifier, h.evaluator, h.loader, opts...)
}

func baseConfig() trustgate.PipelineConfig {
	return trustgate.PipelineConfig{
		ModelPath:  "model.safetensors",
		CertPath:   "model.safetensors.sigstore.json",
		PolicyPath: "policy.yaml",
	}
}

func withIntent(cfg trustgate.PipelineConfig) trustgate.PipelineConfig {
	cfg.IntentPath = "model.intent.yaml"
	return cfg
}
