package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meigma/trustgate"
	"github.com/meigma/trustgate/sigstore"
)

func TestExitCode(t *testing.T) {
	t.Parallel()

	denied := &deniedError{violation: trustgate.NewTrustViolation(trustgate.StagePolicy, "nope")}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: exitOK},
		{name: "denied", err: denied, want: exitDenied},
		{name: "wrapped denial", err: fmt.Errorf("run: %w", denied), want: exitDenied},
		{name: "bare violation is an error", err: trustgate.NewTrustViolation(trustgate.StageLoad, "x"), want: exitError},
		{name: "usage error", err: errors.New("bad flag"), want: exitError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestDeniedError_Unwrap(t *testing.T) {
	t.Parallel()

	tv := trustgate.NewTrustViolation(trustgate.StageIntent, "use not permitted")
	err := &deniedError{violation: tv}

	got, ok := trustgate.AsTrustViolation(err)
	assert.True(t, ok)
	assert.Same(t, tv, got)
	assert.Equal(t, tv.Error(), err.Error())
}

func TestFormatError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "canceled", err: fmt.Errorf("load: %w", context.Canceled), want: "Error: operation canceled"},
		{name: "deadline", err: context.DeadlineExceeded, want: "Error: operation timed out"},
		{
			name: "no ambient token",
			err:  sigstore.ErrNoAmbientToken,
			want: "Error: keyless signing needs an ambient OIDC token (run in GitHub Actions with id-token: write)",
		},
		{
			name: "missing file",
			err:  fmt.Errorf("read key: %w", os.ErrNotExist),
			want: "Error: file not found: read key: file does not exist",
		},
		{name: "other", err: errors.New("boom"), want: "Error: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, formatError(tt.err))
		})
	}
}
