package sigstore

import "errors"

var (
	// ErrSignatureInvalid indicates a bundle that does not verify against the
	// model, the trusted material, or the required identity.
	ErrSignatureInvalid = errors.New("signature verification failed")

	// ErrBundleMalformed indicates a bundle file that cannot be parsed.
	ErrBundleMalformed = errors.New("malformed sigstore bundle")
)
