package sigstore

import (
	"crypto"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/sigstore/sigstore-go/pkg/root"
	"github.com/sigstore/sigstore-go/pkg/sign"
	"github.com/sigstore/sigstore-go/pkg/verify"
)

// SignerOption configures a Signer.
type SignerOption func(*Signer) error

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier) error

// WithEphemeralKey signs with a freshly generated key. Pair it with
// WithFulcio so the key is bound to an OIDC identity.
func WithEphemeralKey() SignerOption {
	return func(s *Signer) error {
		kp, err := sign.NewEphemeralKeypair(nil)
		if err != nil {
			return err
		}
		s.keypair = kp
		return nil
	}
}

// WithFulcio requests a signing certificate from the Fulcio CA at baseURL.
func WithFulcio(baseURL string) SignerOption {
	return func(s *Signer) error {
		s.opts.CertificateProvider = sign.NewFulcio(&sign.FulcioOptions{
			BaseURL: baseURL,
		})
		return nil
	}
}

// WithRekor records the signature in the Rekor log at baseURL.
// It may be given more than once.
func WithRekor(baseURL string) SignerOption {
	return func(s *Signer) error {
		s.opts.TransparencyLogs = append(s.opts.TransparencyLogs,
			sign.NewRekor(&sign.RekorOptions{BaseURL: baseURL}))
		return nil
	}
}

// WithIDToken sets the OIDC token exchanged for a Fulcio certificate.
func WithIDToken(token string) SignerOption {
	return func(s *Signer) error {
		if token == "" {
			return errors.New("sigstore: empty ID token")
		}
		s.opts.CertificateProviderOptions = &sign.CertificateProviderOptions{IDToken: token}
		return nil
	}
}

// WithPrivateKey signs with key. ECDSA, RSA, and Ed25519 keys are supported.
func WithPrivateKey(key crypto.Signer) SignerOption {
	return func(s *Signer) error {
		kp, err := NewStaticKeypair(key)
		if err != nil {
			return err
		}
		s.keypair = kp
		return nil
	}
}

// WithPrivateKeyPEM signs with a PEM-encoded private key.
// Pass a nil password for unencrypted keys.
func WithPrivateKeyPEM(pemData, password []byte) SignerOption {
	return func(s *Signer) error {
		key, err := ParsePrivateKeyPEM(pemData, password)
		if err != nil {
			return err
		}
		return WithPrivateKey(key)(s)
	}
}

// WithTrustedRoot sets the trusted material used for certificate bundles.
func WithTrustedRoot(tr root.TrustedMaterial) VerifierOption {
	return func(v *Verifier) error {
		v.trustedRoot = tr
		return nil
	}
}

// WithTrustedRootFile loads a trusted root from a JSON file.
func WithTrustedRootFile(path string) VerifierOption {
	return func(v *Verifier) error {
		tr, err := root.NewTrustedRootFromPath(path)
		if err != nil {
			return fmt.Errorf("sigstore: load trusted root: %w", err)
		}
		v.trustedRoot = tr
		return nil
	}
}

// WithIdentity requires certificates issued to subject by the OIDC issuer.
func WithIdentity(issuer, subject string) VerifierOption {
	return func(v *Verifier) error {
		id, err := verify.NewShortCertificateIdentity(issuer, "", subject, "")
		if err != nil {
			return err
		}
		v.identity = &id
		return nil
	}
}

// WithPublicKey trusts only bundles signed by pub.
func WithPublicKey(pub crypto.PublicKey) VerifierOption {
	return func(v *Verifier) error {
		if pub == nil {
			return errors.New("sigstore: nil public key")
		}
		v.publicKey = pub
		return nil
	}
}

// WithPublicKeyPEM trusts only bundles signed by the PEM-encoded key.
func WithPublicKeyPEM(pemData []byte) VerifierOption {
	return func(v *Verifier) error {
		pub, err := ParsePublicKeyPEM(pemData)
		if err != nil {
			return err
		}
		return WithPublicKey(pub)(v)
	}
}

// WithPublicKeyFile trusts only bundles signed by the PEM key in path.
func WithPublicKeyFile(path string) VerifierOption {
	return func(v *Verifier) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("sigstore: read public key: %w", err)
		}
		return WithPublicKeyPEM(data)(v)
	}
}

// WithLogger sets the verifier's logger.
func WithLogger(logger *slog.Logger) VerifierOption {
	return func(v *Verifier) error {
		if logger != nil {
			v.logger = logger
		}
		return nil
	}
}
