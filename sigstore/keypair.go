package sigstore

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"

	protocommon "github.com/sigstore/protobuf-specs/gen/pb-go/common/v1"
	"github.com/sigstore/sigstore-go/pkg/sign"
	"github.com/sigstore/sigstore/pkg/cryptoutils"
	"github.com/sigstore/sigstore/pkg/signature"
)

// StaticKeypair signs with a long-lived private key.
type StaticKeypair struct {
	privKey    crypto.Signer
	algDetails signature.AlgorithmDetails
	hint       string
}

// NewStaticKeypair wraps key as a sign.Keypair. The signing algorithm is
// derived from the key type and size.
func NewStaticKeypair(key crypto.Signer) (*StaticKeypair, error) {
	if key == nil {
		return nil, errors.New("sigstore: nil key")
	}

	algo, err := keyDetails(key)
	if err != nil {
		return nil, err
	}
	algDetails, err := signature.GetAlgorithmDetails(algo)
	if err != nil {
		return nil, fmt.Errorf("sigstore: get algorithm details: %w", err)
	}

	hint, err := KeyHint(key.Public())
	if err != nil {
		return nil, err
	}

	return &StaticKeypair{privKey: key, algDetails: algDetails, hint: hint}, nil
}

// KeyHint returns the identifier bundles use to name a public key: the
// base64-encoded SHA-256 of its PKIX encoding.
func KeyHint(pub crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("sigstore: marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

func keyDetails(key crypto.Signer) (protocommon.PublicKeyDetails, error) {
	const unspecified = protocommon.PublicKeyDetails_PUBLIC_KEY_DETAILS_UNSPECIFIED

	switch k := key.(type) {
	case *ecdsa.PrivateKey:
		switch k.Curve {
		case elliptic.P256():
			return protocommon.PublicKeyDetails_PKIX_ECDSA_P256_SHA_256, nil
		case elliptic.P384():
			return protocommon.PublicKeyDetails_PKIX_ECDSA_P384_SHA_384, nil
		case elliptic.P521():
			return protocommon.PublicKeyDetails_PKIX_ECDSA_P521_SHA_512, nil
		}
		return unspecified, fmt.Errorf("sigstore: unsupported ECDSA curve: %s", k.Curve.Params().Name)
	case *rsa.PrivateKey:
		switch bits := k.N.BitLen(); {
		case bits >= 4096:
			return protocommon.PublicKeyDetails_PKIX_RSA_PKCS1V15_4096_SHA256, nil
		case bits >= 3072:
			return protocommon.PublicKeyDetails_PKIX_RSA_PKCS1V15_3072_SHA256, nil
		case bits >= 2048:
			return protocommon.PublicKeyDetails_PKIX_RSA_PKCS1V15_2048_SHA256, nil
		default:
			return unspecified, fmt.Errorf("sigstore: RSA key size %d bits is too small (minimum 2048)", bits)
		}
	case ed25519.PrivateKey:
		return protocommon.PublicKeyDetails_PKIX_ED25519, nil
	default:
		return unspecified, fmt.Errorf("sigstore: unsupported key type: %T", key)
	}
}

// ParsePrivateKeyPEM parses a PKCS8, PKCS1 (RSA), or SEC1 (EC) private key.
// Encrypted legacy PEM blocks need a password; pass nil otherwise.
func ParsePrivateKeyPEM(pemData, password []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("sigstore: failed to decode PEM block")
	}

	keyBytes := block.Bytes
	//nolint:staticcheck // legacy encrypted PEM is still produced by common tooling
	if x509.IsEncryptedPEMBlock(block) {
		if password == nil {
			return nil, errors.New("sigstore: encrypted key requires password")
		}
		var err error
		//nolint:staticcheck // see above
		keyBytes, err = x509.DecryptPEMBlock(block, password)
		if err != nil {
			return nil, fmt.Errorf("sigstore: decrypt PEM block: %w", err)
		}
	}

	switch block.Type {
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("sigstore: parse PKCS8 private key: %w", err)
		}
		s, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("sigstore: key type %T does not implement crypto.Signer", key)
		}
		return s, nil
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("sigstore: parse PKCS1 private key: %w", err)
		}
		return key, nil
	case "EC PRIVATE KEY":
		key, err := x509.ParseECPrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("sigstore: parse EC private key: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("sigstore: unsupported PEM block type: %s", block.Type)
	}
}

// ParsePublicKeyPEM parses a PEM-encoded PKIX public key.
func ParsePublicKeyPEM(pemData []byte) (crypto.PublicKey, error) {
	pub, err := cryptoutils.UnmarshalPEMToPublicKey(pemData)
	if err != nil {
		return nil, fmt.Errorf("sigstore: parse public key: %w", err)
	}
	return pub, nil
}

// GetHashAlgorithm implements sign.Keypair.
func (s *StaticKeypair) GetHashAlgorithm() protocommon.HashAlgorithm {
	return s.algDetails.GetProtoHashType()
}

// GetSigningAlgorithm implements sign.Keypair.
func (s *StaticKeypair) GetSigningAlgorithm() protocommon.PublicKeyDetails {
	return s.algDetails.GetSignatureAlgorithm()
}

// GetHint implements sign.Keypair.
func (s *StaticKeypair) GetHint() []byte {
	return []byte(s.hint)
}

// GetKeyAlgorithm implements sign.Keypair.
func (s *StaticKeypair) GetKeyAlgorithm() string {
	switch s.algDetails.GetKeyType() {
	case signature.ECDSA:
		return "ECDSA"
	case signature.RSA:
		return "RSA"
	case signature.ED25519:
		return "ED25519"
	default:
		return ""
	}
}

// GetPublicKey implements sign.Keypair.
func (s *StaticKeypair) GetPublicKey() crypto.PublicKey {
	return s.privKey.Public()
}

// GetPublicKeyPem implements sign.Keypair.
func (s *StaticKeypair) GetPublicKeyPem() (string, error) {
	b, err := cryptoutils.MarshalPublicKeyToPEM(s.privKey.Public())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SignData implements sign.Keypair. It returns the signature and the bytes
// that were signed: a digest for RSA and ECDSA, the raw data for Ed25519.
func (s *StaticKeypair) SignData(_ context.Context, data []byte) ([]byte, []byte, error) {
	hf := s.algDetails.GetHashType()
	toSign := data
	if hf != crypto.Hash(0) {
		h := hf.New()
		h.Write(data)
		toSign = h.Sum(nil)
	}

	sig, err := s.privKey.Sign(rand.Reader, toSign, hf)
	if err != nil {
		return nil, nil, err
	}
	return sig, toSign, nil
}

var _ sign.Keypair = (*StaticKeypair)(nil)
