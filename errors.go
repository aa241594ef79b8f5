package trustgate

import (
	"errors"
	"fmt"
)

// Stage identifies one gated phase of the trust pipeline.
//
// The four canonical stages are defined as constants. Stage is an open
// string type so that collaborators running their own sub-pipelines can
// report a more specific stage, which the sequencer passes through untouched.
type Stage string

// Canonical pipeline stages, in execution order.
const (
	StageVerification Stage = "verification"
	StagePolicy       Stage = "policy"
	StageIntent       Stage = "intent"
	StageLoad         Stage = "load"
)

// Stages lists the canonical stages in the order the pipeline runs them.
var Stages = []Stage{StageVerification, StagePolicy, StageIntent, StageLoad}

// String implements fmt.Stringer.
func (s Stage) String() string {
	return string(s)
}

// LoadFailureReason is the fixed reason reported for any load-stage failure.
// The underlying cause is not surfaced because the artifact is already trusted.
const LoadFailureReason = "Model loading failed after trust checks"

// PolicyDeniedPrefix prefixes the reason of a policy DENY decision.
const PolicyDeniedPrefix = "Policy denied model usage: "

// Sentinel errors carried by trust violations.
var (
	// ErrPolicyDenied indicates the policy evaluator returned a non-ALLOW decision.
	ErrPolicyDenied = errors.New("trustgate: policy denied")

	// ErrNoIntentEnforcer indicates an intent path was configured without an enforcer.
	ErrNoIntentEnforcer = errors.New("no intent enforcer configured")

	// ErrLoadFailed indicates the artifact loader failed after all trust checks passed.
	ErrLoadFailed = errors.New("trustgate: load failed")
)

// TrustViolation is the single failure type returned by the pipeline.
// It is created once at the point of failure and never modified afterwards.
type TrustViolation struct {
	// Stage is the stage that did not pass.
	Stage Stage

	// Reason is a human-readable explanation of the failure.
	Reason string

	cause error
}

// NewTrustViolation creates a violation for the given stage and reason.
func NewTrustViolation(stage Stage, reason string) *TrustViolation {
	return &TrustViolation{Stage: stage, Reason: reason}
}

// WrapTrustViolation creates a violation that keeps cause reachable via errors.Unwrap.
// The reason is reported as-is; cause is not rendered.
func WrapTrustViolation(stage Stage, reason string, cause error) *TrustViolation {
	return &TrustViolation{Stage: stage, Reason: reason, cause: cause}
}

// NilViolationReason is the reason reported when a collaborator returns a
// nil *TrustViolation stored in a non-nil error.
const NilViolationReason = "collaborator returned a nil trust violation"

// Error implements the error interface.
func (v *TrustViolation) Error() string {
	if v == nil {
		return NilViolationReason
	}
	return fmt.Sprintf("[%s] %s", v.Stage, v.Reason)
}

// Unwrap returns the underlying cause, if any.
func (v *TrustViolation) Unwrap() error {
	if v == nil {
		return nil
	}
	return v.cause
}

// AsTrustViolation reports whether err is or wraps a non-nil TrustViolation
// and returns it.
func AsTrustViolation(err error) (*TrustViolation, bool) {
	var tv *TrustViolation
	if errors.As(err, &tv) && tv != nil {
		return tv, true
	}
	return nil, false
}
