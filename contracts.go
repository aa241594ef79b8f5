package trustgate

import (
	"context"

	"github.com/opencontainers/go-digest"
)

// VerificationFacts is the structured result of identity verification.
//
// The pipeline never interprets facts; it hands them to the PolicyEvaluator
// and drops them once policy evaluation completes.
type VerificationFacts map[string]any

// Policy is a loaded policy, opaque to the pipeline.
type Policy interface {
	// Name identifies the policy in logs and traces.
	Name() string
}

// Decision is the outcome of a policy evaluation.
type Decision string

// Policy decisions.
const (
	DecisionAllow Decision = "ALLOW"
	DecisionDeny  Decision = "DENY"
)

// PolicyDecision is the result of evaluating a policy against verification facts.
type PolicyDecision struct {
	Decision Decision
	Reason   string
}

// Allowed reports whether the decision permits use of the artifact.
func (d PolicyDecision) Allowed() bool {
	return d.Decision == DecisionAllow
}

// TensorInfo describes one tensor in a model file header.
type TensorInfo struct {
	Name    string
	DType   string
	Shape   []int64
	Offsets [2]int64
}

// Artifact is a loaded model. It is owned by the caller once Run returns it.
type Artifact struct {
	// Path is the path the model was loaded from.
	Path string

	// Digest is the digest of the (decompressed) model bytes.
	Digest digest.Digest

	// Size is the size of the model bytes.
	Size int64

	// Format is the detected serialization format (e.g. "safetensors").
	Format string

	// Tensors lists tensor metadata for formats that expose a header.
	Tensors []TensorInfo

	// Metadata holds free-form header metadata, when the format has any.
	Metadata map[string]string

	// Data holds the model bytes.
	Data []byte
}

// Verifier establishes the identity of a model from its signature material.
type Verifier interface {
	// Verify checks the model at modelPath against the certificate or bundle
	// at certPath. It fails on any identity or signature mismatch, a missing
	// file, or malformed certificate material.
	Verify(ctx context.Context, modelPath, certPath string) (VerificationFacts, error)
}

// PolicyEvaluator loads policies and evaluates them against verification facts.
type PolicyEvaluator interface {
	// LoadPolicy reads the policy at policyPath. It fails on malformed or
	// unreadable policy source.
	LoadPolicy(ctx context.Context, policyPath string) (Policy, error)

	// Evaluate applies policy to facts. A DENY decision is a valid result,
	// not an error; only malformed input fails.
	Evaluate(ctx context.Context, policy Policy, facts VerificationFacts) (PolicyDecision, error)
}

// IntentEnforcer loads an intent manifest and enforces it.
type IntentEnforcer interface {
	// LoadAndEnforce returns nil when the manifest permits use. It may return
	// a *TrustViolation, whose stage is authoritative, or any other error.
	LoadAndEnforce(ctx context.Context, intentPath string) error
}

// ArtifactLoader deserializes a model once all trust checks have passed.
type ArtifactLoader interface {
	// Load reads and deserializes the model at modelPath.
	Load(ctx context.Context, modelPath string) (*Artifact, error)
}
