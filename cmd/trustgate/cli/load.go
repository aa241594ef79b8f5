package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/trustgate"
	"github.com/meigma/trustgate/sigstore"
)

var (
	loadCert    string
	loadDetails bool
)

var loadCmd = &cobra.Command{
	Use:   "load <model>",
	Short: "Verify, check, and load a model",
	Long: `Load runs the trust pipeline over a model file.

The model is verified against its sigstore bundle, the verified facts are
evaluated against the policy, the intent manifest is enforced when given,
and the model is loaded. The first failing stage denies the model.

Exit codes: 0 when the model is loaded, 2 when it is denied, 1 on usage or
configuration errors.

Examples:
  trustgate load --policy policy.yaml model.safetensors
  trustgate load --policy policy.yaml --intent intent.yaml --use evaluation model.gguf
  trustgate load --public-key release.pub --policy policy.yaml model.onnx`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	flags := loadCmd.Flags()
	flags.StringVar(&loadCert, "cert", "", "Sigstore bundle for the model (default <model>.sigstore.json)")
	flags.BoolVar(&loadDetails, "details", false, "Print digest, size, and format of the loaded model")

	flags.String("policy", "", "Policy document (required)")
	flags.String("intent", "", "Intent manifest")
	flags.String("use", "inference", "Declared use checked against the intent manifest")
	flags.String("trusted-root", "", "Sigstore trusted root JSON (default public Sigstore)")
	flags.String("public-key", "", "Verify against this PEM public key instead of certificates")
	flags.String("issuer", "", "Required OIDC issuer of the signing certificate")
	flags.String("subject", "", "Required subject of the signing certificate")
	flags.Duration("timeout", 0, "Abort the run after this long (0 for no limit)")
	flags.String("max-size", "8GiB", "Largest model accepted, after decompression")

	for key, name := range map[string]string{
		"policy.path":         "policy",
		"intent.path":         "intent",
		"intent.use":          "use",
		"verify.trusted-root": "trusted-root",
		"verify.public-key":   "public-key",
		"verify.issuer":       "issuer",
		"verify.subject":      "subject",
		"load.timeout":        "timeout",
		"load.max-size":       "max-size",
	} {
		mustBind(key, flags.Lookup(name))
	}

	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	cfg, err := currentConfig()
	if err != nil {
		return err
	}
	if cfg.Policy.Path == "" {
		return errors.New("--policy is required (or set policy.path in the config)")
	}

	modelPath := args[0]
	certPath := loadCert
	if certPath == "" {
		certPath = modelPath + sigstore.BundleSuffix
	}

	logger := newLogger(cfg)
	pipeline, err := newPipeline(cfg, logger, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	if cfg.Load.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, cfg.Load.Timeout)
		defer cancelTimeout()
	}

	artifact, err := pipeline.Run(ctx, trustgate.PipelineConfig{
		ModelPath:  modelPath,
		CertPath:   certPath,
		PolicyPath: cfg.Policy.Path,
		IntentPath: cfg.Intent.Path,
	})
	if err != nil {
		tv, ok := trustgate.AsTrustViolation(err)
		if !ok {
			return err
		}
		printDenied(cmd.OutOrStdout(), tv)
		return &deniedError{violation: tv}
	}

	printLoaded(cmd.OutOrStdout(), artifact, loadDetails)
	return nil
}

func printDenied(w io.Writer, tv *trustgate.TrustViolation) {
	fmt.Fprintln(w, "DENIED")
	fmt.Fprintf(w, "Stage: %s\n", tv.Stage)
	fmt.Fprintf(w, "Reason: %s\n", tv.Reason)
}

func printLoaded(w io.Writer, artifact *trustgate.Artifact, details bool) {
	fmt.Fprintln(w, "SUCCESS: model loaded")
	if !details {
		return
	}
	fmt.Fprintf(w, "Digest: %s\n", artifact.Digest)
	fmt.Fprintf(w, "Size: %s\n", humanize.IBytes(uint64(artifact.Size)))
	fmt.Fprintf(w, "Format: %s\n", artifact.Format)
	if len(artifact.Tensors) > 0 {
		fmt.Fprintf(w, "Tensors: %d\n", len(artifact.Tensors))
	}
}
