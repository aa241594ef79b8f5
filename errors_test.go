package trustgate_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/trustgate"
)

func TestTrustViolation_Error(t *testing.T) {
	t.Parallel()

	tv := trustgate.NewTrustViolation(trustgate.StagePolicy, "Policy denied model usage: unsigned")
	assert.Equal(t, "[policy] Policy denied model usage: unsigned", tv.Error())
	assert.NoError(t, tv.Unwrap())
}

func TestWrapTrustViolation_KeepsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("bundle: unexpected EOF")
	tv := trustgate.WrapTrustViolation(trustgate.StageVerification, "verification failed", cause)

	assert.ErrorIs(t, tv, cause)
	assert.Equal(t, "[verification] verification failed", tv.Error())
}

func TestAsTrustViolation(t *testing.T) {
	t.Parallel()

	tv := trustgate.NewTrustViolation(trustgate.StageIntent, "expired")

	got, ok := trustgate.AsTrustViolation(fmt.Errorf("enforce: %w", tv))
	require.True(t, ok)
	assert.Same(t, tv, got)

	_, ok = trustgate.AsTrustViolation(errors.New("plain"))
	assert.False(t, ok)

	_, ok = trustgate.AsTrustViolation(nil)
	assert.False(t, ok)
}

func TestTrustViolation_NilReceiver(t *testing.T) {
	t.Parallel()

	var tv *trustgate.TrustViolation
	var err error = tv

	assert.Equal(t, trustgate.NilViolationReason, err.Error())
	assert.NoError(t, errors.Unwrap(err))

	got, ok := trustgate.AsTrustViolation(err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestStages_Order(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []trustgate.Stage{"verification", "policy", "intent", "load"}, trustgate.Stages)
}

func TestPolicyDecision_Allowed(t *testing.T) {
	t.Parallel()

	assert.True(t, trustgate.PolicyDecision{Decision: trustgate.DecisionAllow}.Allowed())
	assert.False(t, trustgate.PolicyDecision{Decision: trustgate.DecisionDeny}.Allowed())
	assert.False(t, trustgate.PolicyDecision{}.Allowed())
}

func TestPipelineConfig_HasIntent(t *testing.T) {
	t.Parallel()

	assert.False(t, trustgate.PipelineConfig{}.HasIntent())
	assert.True(t, trustgate.PipelineConfig{IntentPath: "intent.yaml"}.HasIntent())
}
