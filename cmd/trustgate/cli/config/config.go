package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// Progress modes.
const (
	ProgressAuto  = "auto"
	ProgressTTY   = "tty"
	ProgressPlain = "plain"
)

// Default public Sigstore endpoints used for keyless signing.
const (
	DefaultFulcioURL = "https://fulcio.sigstore.dev"
	DefaultRekorURL  = "https://rekor.sigstore.dev"
)

// Config is the trustgate CLI configuration.
// Use mapstructure tags for Viper unmarshaling.
type Config struct {
	Verbose  bool         `mapstructure:"verbose"`
	Progress string       `mapstructure:"progress"`
	Policy   PolicyConfig `mapstructure:"policy"`
	Intent   IntentConfig `mapstructure:"intent"`
	Verify   VerifyConfig `mapstructure:"verify"`
	Load     LoadConfig   `mapstructure:"load"`
	Sign     SignConfig   `mapstructure:"sign"`
}

// PolicyConfig locates the policy document.
type PolicyConfig struct {
	Path string `mapstructure:"path"`
}

// IntentConfig locates the intent manifest and names the declared use.
type IntentConfig struct {
	Path string `mapstructure:"path"`
	Use  string `mapstructure:"use"`
}

// VerifyConfig holds signature verification settings.
type VerifyConfig struct {
	TrustedRoot string `mapstructure:"trusted-root"`
	PublicKey   string `mapstructure:"public-key"`
	Issuer      string `mapstructure:"issuer"`
	Subject     string `mapstructure:"subject"`
}

// LoadConfig holds model loading settings.
type LoadConfig struct {
	MaxSize string        `mapstructure:"max-size"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SignConfig holds bundle signing settings.
type SignConfig struct {
	Key      string `mapstructure:"key"`
	Password string `mapstructure:"password"`
	Fulcio   string `mapstructure:"fulcio"`
	Rekor    string `mapstructure:"rekor"`
}

// Defaults returns the default settings as a nested map, suitable for
// viper defaults and for writing a fresh config file.
func Defaults() map[string]any {
	return map[string]any{
		"progress": ProgressAuto,
		"policy":   map[string]any{"path": ""},
		"intent":   map[string]any{"path": "", "use": "inference"},
		"verify": map[string]any{
			// trusted-root, public-key, issuer, subject are deployment specific
			"trusted-root": "",
			"public-key":   "",
			"issuer":       "",
			"subject":      "",
		},
		"load": map[string]any{
			"max-size": "8GiB",
			"timeout":  "0s",
		},
		"sign": map[string]any{
			// key and password are typically passed via flags or env vars
			"fulcio": DefaultFulcioURL,
			"rekor":  DefaultRekorURL,
		},
	}
}

// SetDefaults registers Defaults on v.
func SetDefaults(v *viper.Viper) {
	setDefaults(v, "", Defaults())
}

func setDefaults(v *viper.Viper, prefix string, m map[string]any) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			setDefaults(v, key, nested)
			continue
		}
		v.SetDefault(key, val)
	}
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that do not depend on the command being run.
func (c *Config) Validate() error {
	switch c.Progress {
	case ProgressAuto, ProgressTTY, ProgressPlain:
	default:
		return fmt.Errorf("invalid progress mode %q (want auto, tty, or plain)", c.Progress)
	}
	if _, err := c.Load.MaxSizeBytes(); err != nil {
		return err
	}
	if c.Load.Timeout < 0 {
		return errors.New("load timeout must not be negative")
	}
	if (c.Verify.Issuer == "") != (c.Verify.Subject == "") {
		return errors.New("issuer and subject must be set together")
	}
	if c.Verify.PublicKey != "" && c.Verify.Issuer != "" {
		return errors.New("public-key verification does not use issuer or subject")
	}
	return nil
}

// MaxSizeBytes parses MaxSize, accepting units such as "512MiB" or "8GB".
func (l LoadConfig) MaxSizeBytes() (int64, error) {
	n, err := humanize.ParseBytes(l.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("invalid max-size %q: %w", l.MaxSize, err)
	}
	if n == 0 || n > 1<<62 {
		return 0, fmt.Errorf("invalid max-size %q", l.MaxSize)
	}
	return int64(n), nil
}
