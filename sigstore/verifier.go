package sigstore

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/sigstore/sigstore-go/pkg/bundle"
	"github.com/sigstore/sigstore-go/pkg/root"
	"github.com/sigstore/sigstore-go/pkg/verify"
	"github.com/sigstore/sigstore/pkg/signature"

	"github.com/meigma/trustgate"
	"github.com/meigma/trustgate/internal/progress"
)

// Signer kinds reported in verification facts.
const (
	SignerKindCertificate = "certificate"
	SignerKindKey         = "key"
)

// Verifier implements trustgate.Verifier for sigstore bundles.
//
// It checks certificate-based bundles against a trusted root, or
// key-based bundles against a single trusted public key.
type Verifier struct {
	trustedRoot root.TrustedMaterial
	identity    *verify.CertificateIdentity
	publicKey   crypto.PublicKey
	keyHint     string
	logger      *slog.Logger
}

// NewVerifier creates a sigstore-based verifier.
//
// Without WithTrustedRoot, WithTrustedRootFile, or a public key, the public
// Sigstore trusted root is fetched over the network.
func NewVerifier(opts ...VerifierOption) (*Verifier, error) {
	v := &Verifier{
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}

	if v.publicKey != nil {
		if v.identity != nil {
			return nil, errors.New("sigstore: identity requirements apply to certificates, not public keys")
		}
		tm, err := v.publicKeyMaterial()
		if err != nil {
			return nil, err
		}
		v.trustedRoot = tm
		return v, nil
	}

	if v.trustedRoot == nil {
		tr, err := root.FetchTrustedRoot()
		if err != nil {
			return nil, fmt.Errorf("sigstore fetch trusted root: %w", err)
		}
		v.trustedRoot = tr
	}

	if v.identity == nil {
		v.logger.Warn("sigstore verifier created without identity requirement; " +
			"any valid signature will be accepted regardless of signer")
	}

	return v, nil
}

func (v *Verifier) publicKeyMaterial() (root.TrustedMaterial, error) {
	sv, err := signature.LoadVerifier(v.publicKey, hashFor(v.publicKey))
	if err != nil {
		return nil, fmt.Errorf("sigstore: load public key verifier: %w", err)
	}
	hint, err := KeyHint(v.publicKey)
	if err != nil {
		return nil, err
	}
	v.keyHint = hint

	return root.NewTrustedPublicKeyMaterialFromMapping(map[string]*root.ExpiringKey{
		hint: root.NewExpiringKey(sv, time.Time{}, time.Time{}),
	}), nil
}

// hashFor returns the digest algorithm paired with pub when signing.
func hashFor(pub crypto.PublicKey) crypto.Hash {
	if k, ok := pub.(*ecdsa.PublicKey); ok {
		switch k.Curve {
		case elliptic.P384():
			return crypto.SHA384
		case elliptic.P521():
			return crypto.SHA512
		}
	}
	return crypto.SHA256
}

// Verify implements trustgate.Verifier.
//
// certPath names a sigstore bundle. The model file is streamed into the
// verifier, and its digest and size are reported in the returned facts.
func (v *Verifier) Verify(ctx context.Context, modelPath, certPath string) (trustgate.VerificationFacts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bundleJSON, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	var b bundle.Bundle
	if err := b.UnmarshalJSON(bundleJSON); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBundleMalformed, err)
	}

	f, err := os.Open(modelPath)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer f.Close()

	verifier, err := verify.NewVerifier(v.trustedRoot, v.verifierOptions()...)
	if err != nil {
		return nil, fmt.Errorf("sigstore create verifier: %w", err)
	}

	digester := digest.Canonical.Digester()
	counter := progress.NewReader(ctx, f, -1)
	artifact := io.TeeReader(counter, digester.Hash())
	policy := verify.NewPolicy(verify.WithArtifact(artifact), v.policyOption())

	result, err := verifier.Verify(&b, policy)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	}

	// Drain whatever the verifier left unread so the digest covers the whole file.
	if _, err := io.Copy(io.Discard, artifact); err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	facts := v.facts(result)
	facts["model"] = map[string]any{
		"path":   modelPath,
		"digest": digester.Digest().String(),
		"size":   counter.N(),
	}
	v.logger.Debug("model signature verified",
		"model", modelPath,
		"bundle", certPath,
		"signer", facts["signer"],
	)
	return facts, nil
}

func (v *Verifier) verifierOptions() []verify.VerifierOption {
	if v.publicKey != nil {
		return []verify.VerifierOption{verify.WithCurrentTime()}
	}
	return []verify.VerifierOption{
		verify.WithObserverTimestamps(1),
		verify.WithTransparencyLog(1),
	}
}

func (v *Verifier) policyOption() verify.PolicyOption {
	switch {
	case v.publicKey != nil:
		return verify.WithKey()
	case v.identity != nil:
		return verify.WithCertificateIdentity(*v.identity)
	default:
		return verify.WithoutIdentitiesUnsafe()
	}
}

// facts converts a verification result into the map handed to policy rules.
func (v *Verifier) facts(result *verify.VerificationResult) trustgate.VerificationFacts {
	signer := map[string]any{
		"kind":               SignerKindKey,
		"subject":            "",
		"issuer":             "",
		"certificate_issuer": "",
		"key_hint":           v.keyHint,
	}
	if result.Signature != nil && result.Signature.Certificate != nil {
		cert := result.Signature.Certificate
		signer["kind"] = SignerKindCertificate
		signer["subject"] = cert.SubjectAlternativeName
		signer["issuer"] = cert.Issuer
		signer["certificate_issuer"] = cert.CertificateIssuer
	}

	timestamps := make([]string, 0, len(result.VerifiedTimestamps))
	for _, ts := range result.VerifiedTimestamps {
		timestamps = append(timestamps, ts.Timestamp.UTC().Format(time.RFC3339))
	}

	return trustgate.VerificationFacts{
		"signer":     signer,
		"timestamps": timestamps,
		"bundle":     map[string]any{"media_type": result.MediaType},
	}
}

// Ensure Verifier implements trustgate.Verifier.
var _ trustgate.Verifier = (*Verifier)(nil)
