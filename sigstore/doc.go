// Package sigstore signs and verifies model files with sigstore bundles.
//
// # Verification
//
// Verifier implements trustgate.Verifier. Certificate bundles are checked
// against a trusted root, which defaults to the public Sigstore instance,
// and must carry a transparency log entry and an observer timestamp.
// Key bundles are checked against a single trusted public key.
//
//	verifier, err := sigstore.NewVerifier(
//	    sigstore.WithIdentity("https://token.actions.githubusercontent.com",
//	        "https://github.com/org/models/.github/workflows/release.yml@refs/heads/main"),
//	)
//
// A successful verification returns facts for policy rules:
//
//	model.path, model.digest, model.size
//	signer.kind, signer.subject, signer.issuer, signer.certificate_issuer, signer.key_hint
//	timestamps
//	bundle.media_type
//
// # Signing
//
// Signer writes a bundle next to the model file, either with a local key
// or keyless through Fulcio and Rekor:
//
//	token, _ := sigstore.AmbientToken(ctx)
//	signer, err := sigstore.NewSigner(
//	    sigstore.WithEphemeralKey(),
//	    sigstore.WithFulcio("https://fulcio.sigstore.dev"),
//	    sigstore.WithIDToken(token),
//	    sigstore.WithRekor("https://rekor.sigstore.dev"),
//	)
package sigstore
