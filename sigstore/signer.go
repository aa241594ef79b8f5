package sigstore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sigstore/sigstore-go/pkg/sign"
	"google.golang.org/protobuf/encoding/protojson"
)

// BundleMediaType is the media type of bundles produced by Signer.
const BundleMediaType = "application/vnd.dev.sigstore.bundle.v0.3+json"

// BundleSuffix is appended to a model path to name its default bundle file.
const BundleSuffix = ".sigstore.json"

// Signer produces sigstore bundles for model files.
type Signer struct {
	keypair sign.Keypair
	opts    sign.BundleOptions
}

// NewSigner creates a sigstore-based signer.
func NewSigner(opts ...SignerOption) (*Signer, error) {
	s := &Signer{}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.keypair == nil {
		return nil, errors.New("sigstore: no keypair configured (use WithEphemeralKey or WithPrivateKey)")
	}
	if s.opts.CertificateProvider != nil && s.opts.CertificateProviderOptions == nil {
		return nil, errors.New("sigstore: Fulcio signing requires an ID token (use WithIDToken)")
	}

	return s, nil
}

// SignFile signs the contents of modelPath and returns the bundle as JSON.
func (s *Signer) SignFile(ctx context.Context, modelPath string) ([]byte, error) {
	data, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	return s.Sign(ctx, data)
}

// Sign signs data and returns the bundle as JSON.
func (s *Signer) Sign(ctx context.Context, data []byte) ([]byte, error) {
	opts := s.opts
	opts.Context = ctx

	b, err := sign.Bundle(&sign.PlainData{Data: data}, s.keypair, opts)
	if err != nil {
		return nil, fmt.Errorf("sigstore sign: %w", err)
	}

	bundleJSON, err := protojson.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("sigstore marshal bundle: %w", err)
	}
	return bundleJSON, nil
}

// WriteBundle signs modelPath and writes the bundle to out.
// An empty out writes next to the model with BundleSuffix appended.
func (s *Signer) WriteBundle(ctx context.Context, modelPath, out string) (string, error) {
	if out == "" {
		out = modelPath + BundleSuffix
	}

	bundleJSON, err := s.SignFile(ctx, modelPath)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(out, bundleJSON, 0o644); err != nil {
		return "", fmt.Errorf("write bundle: %w", err)
	}
	return out, nil
}
