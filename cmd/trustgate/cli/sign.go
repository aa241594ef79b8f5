package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meigma/trustgate/sigstore"
)

var (
	signOutput  string
	signKeyless bool
)

var signCmd = &cobra.Command{
	Use:   "sign <model>",
	Short: "Write a sigstore bundle for a model",
	Long: `Sign writes a sigstore bundle over the bytes of a model file.

With --key the bundle is signed by a PEM private key and verifies with the
matching public key. With --keyless an ephemeral key is certified by Fulcio
using the ambient GitHub Actions OIDC token, and the signature is recorded
in Rekor.

Set TRUSTGATE_SIGN_PASSWORD for encrypted keys.

Examples:
  trustgate sign --key release.pem model.safetensors
  trustgate sign --keyless --output model.bundle.json model.safetensors`,
	Args: cobra.ExactArgs(1),
	RunE: runSign,
}

func init() {
	flags := signCmd.Flags()
	flags.StringVarP(&signOutput, "output", "o", "", "Bundle path (default <model>.sigstore.json)")
	flags.BoolVar(&signKeyless, "keyless", false, "Sign with Fulcio and Rekor using an ambient OIDC token")
	flags.String("key", "", "PEM private key")
	flags.String("fulcio", "", "Fulcio URL for keyless signing")
	flags.String("rekor", "", "Rekor URL for keyless signing")
	signCmd.MarkFlagsMutuallyExclusive("key", "keyless")

	mustBind("sign.key", flags.Lookup("key"))
	mustBind("sign.fulcio", flags.Lookup("fulcio"))
	mustBind("sign.rekor", flags.Lookup("rekor"))

	rootCmd.AddCommand(signCmd)
}

func runSign(cmd *cobra.Command, args []string) error {
	cfg, err := currentConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	var opts []sigstore.SignerOption
	switch {
	case signKeyless:
		token, err := sigstore.AmbientToken(ctx)
		if err != nil {
			return err
		}
		opts = append(opts,
			sigstore.WithEphemeralKey(),
			sigstore.WithFulcio(cfg.Sign.Fulcio),
			sigstore.WithIDToken(token),
			sigstore.WithRekor(cfg.Sign.Rekor),
		)
	case cfg.Sign.Key != "":
		pemData, err := os.ReadFile(cfg.Sign.Key)
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		var password []byte
		if cfg.Sign.Password != "" {
			password = []byte(cfg.Sign.Password)
		}
		opts = append(opts, sigstore.WithPrivateKeyPEM(pemData, password))
	default:
		return errors.New("either --key or --keyless is required")
	}

	signer, err := sigstore.NewSigner(opts...)
	if err != nil {
		return err
	}
	out, err := signer.WriteBundle(ctx, args[0], signOutput)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote bundle: %s\n", out)
	return nil
}
