package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	if yaml != "" {
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))
	}
	return v
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(newViper(t, ""))
	require.NoError(t, err)

	assert.Equal(t, ProgressAuto, cfg.Progress)
	assert.Equal(t, "inference", cfg.Intent.Use)
	assert.Equal(t, DefaultFulcioURL, cfg.Sign.Fulcio)
	assert.Equal(t, DefaultRekorURL, cfg.Sign.Rekor)
	assert.Zero(t, cfg.Load.Timeout)

	size, err := cfg.Load.MaxSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(8<<30), size)
}

func TestLoad_FromFile(t *testing.T) {
	t.Parallel()

	cfg, err := Load(newViper(t, `
policy:
  path: /etc/trustgate/policy.yaml
intent:
  use: evaluation
verify:
  issuer: https://token.actions.githubusercontent.com
  subject: release@example.com
load:
  max-size: 512MiB
  timeout: 30s
`))
	require.NoError(t, err)

	assert.Equal(t, "/etc/trustgate/policy.yaml", cfg.Policy.Path)
	assert.Equal(t, "evaluation", cfg.Intent.Use)
	assert.Equal(t, "release@example.com", cfg.Verify.Subject)
	assert.Equal(t, 30*time.Second, cfg.Load.Timeout)

	size, err := cfg.Load.MaxSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(512<<20), size)
}

func TestLoad_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "progress mode", yaml: "progress: fancy\n", wantErr: "invalid progress mode"},
		{name: "max size", yaml: "load:\n  max-size: lots\n", wantErr: "invalid max-size"},
		{name: "zero max size", yaml: "load:\n  max-size: 0B\n", wantErr: "invalid max-size"},
		{name: "negative timeout", yaml: "load:\n  timeout: -1s\n", wantErr: "must not be negative"},
		{name: "issuer without subject", yaml: "verify:\n  issuer: https://issuer.example.com\n", wantErr: "set together"},
		{name: "key with identity", yaml: "verify:\n  public-key: k.pub\n  issuer: i\n  subject: s\n", wantErr: "does not use issuer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Load(newViper(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
