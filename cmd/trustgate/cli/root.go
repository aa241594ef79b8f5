// Package cli implements the trustgate command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/meigma/trustgate"
	"github.com/meigma/trustgate/cmd/trustgate/cli/config"
	"github.com/meigma/trustgate/intent"
	"github.com/meigma/trustgate/loader"
	"github.com/meigma/trustgate/policy"
	"github.com/meigma/trustgate/sigstore"
)

// Build information set via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes.
const (
	exitOK     = 0
	exitError  = 1
	exitDenied = 2
)

var (
	cfgFile   string
	configErr error
)

var rootCmd = &cobra.Command{
	Use:   "trustgate",
	Short: "Load models only after they pass trust checks",
	Long: `Trustgate gates model loading behind an ordered sequence of trust checks.

A model is verified against its sigstore bundle, the verified facts are
evaluated against a CEL policy, an optional intent manifest is enforced,
and only then is the model loaded.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return configErr
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default $XDG_CONFIG_HOME/trustgate/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose debug logging")
	rootCmd.PersistentFlags().String("progress", config.ProgressAuto, "Stage progress output (auto, tty, plain)")
	mustBind("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	mustBind("progress", rootCmd.PersistentFlags().Lookup("progress"))

	rootCmd.Version = version
}

// initConfig wires viper to the config file and TRUSTGATE_ environment variables.
func initConfig() {
	config.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix("TRUSTGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
	// Secrets have no default, so bind them for Unmarshal to see.
	_ = viper.BindEnv("sign.password")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		if dir, err := config.Dir(); err == nil {
			viper.AddConfigPath(dir)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			configErr = fmt.Errorf("read config: %w", err)
		}
	}
}

// mustBind binds a flag to a viper key. It only fails on a nil flag.
func mustBind(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

// Execute runs the root command. Errors other than denials are printed to stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && ExitCode(err) == exitError {
		fmt.Fprintln(os.Stderr, formatError(err))
	}
	return err
}

// ExitCode maps an Execute result to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case isDenied(err):
		return exitDenied
	default:
		return exitError
	}
}

// deniedError reports a model rejected by the trust pipeline. It has
// already been rendered to stdout by the time it is returned.
type deniedError struct {
	violation *trustgate.TrustViolation
}

func (e *deniedError) Error() string { return e.violation.Error() }
func (e *deniedError) Unwrap() error { return e.violation }

func isDenied(err error) bool {
	var d *deniedError
	return errors.As(err, &d)
}

// currentConfig decodes and validates the effective configuration.
func currentConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// newLogger returns a stderr logger at Debug when verbose, Warn otherwise.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newPipeline builds the reference trust pipeline from cfg.
func newPipeline(cfg *config.Config, logger *slog.Logger, stderr io.Writer) (*trustgate.Pipeline, error) {
	verifierOpts := []sigstore.VerifierOption{sigstore.WithLogger(logger)}
	switch {
	case cfg.Verify.PublicKey != "":
		verifierOpts = append(verifierOpts, sigstore.WithPublicKeyFile(cfg.Verify.PublicKey))
	case cfg.Verify.TrustedRoot != "":
		verifierOpts = append(verifierOpts, sigstore.WithTrustedRootFile(cfg.Verify.TrustedRoot))
	}
	if cfg.Verify.Issuer != "" {
		verifierOpts = append(verifierOpts, sigstore.WithIdentity(cfg.Verify.Issuer, cfg.Verify.Subject))
	}
	verifier, err := sigstore.NewVerifier(verifierOpts...)
	if err != nil {
		return nil, err
	}

	evaluator, err := policy.NewEvaluator(policy.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	enforcer, err := intent.NewEnforcer(intent.WithUse(cfg.Intent.Use), intent.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	reporter := newStageReporter(stderr, progressEnabled(cfg.Progress))

	maxSize, err := cfg.Load.MaxSizeBytes()
	if err != nil {
		return nil, err
	}
	files, err := loader.NewFileLoader(
		loader.WithMaxSize(maxSize),
		loader.WithLogger(logger),
		loader.WithProgress(reporter.loadProgress()),
	)
	if err != nil {
		return nil, err
	}

	return trustgate.NewPipeline(verifier, evaluator, files,
		trustgate.WithIntentEnforcer(enforcer),
		trustgate.WithLogger(logger),
		trustgate.WithStageCallback(reporter.onStage()),
	)
}

// signalContext returns a context that is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// formatError converts errors to user-friendly messages.
func formatError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, context.Canceled):
		return "Error: operation canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "Error: operation timed out"
	case errors.Is(err, sigstore.ErrNoAmbientToken):
		return "Error: keyless signing needs an ambient OIDC token (run in GitHub Actions with id-token: write)"
	case errors.Is(err, os.ErrNotExist):
		return fmt.Sprintf("Error: file not found: %v", err)
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
