// Package trustgate gates access to a trained model behind an ordered
// sequence of trust checks.
//
// A Pipeline runs four stages strictly in order and stops at the first
// failure:
//
//  1. verification: a Verifier establishes the model's identity
//  2. policy: a PolicyEvaluator decides whether the verified model may be used
//  3. intent: an optional IntentEnforcer checks the declared intent manifest
//  4. load: an ArtifactLoader deserializes the model
//
// The model is returned only if every stage passes. Otherwise Run returns a
// *TrustViolation naming the stage and the reason.
//
// # Basic Usage
//
//	verifier, err := sigstore.NewVerifier(sigstore.WithIdentity(issuer, subject))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	evaluator, _ := policy.NewEvaluator()
//	enforcer, _ := intent.NewEnforcer(intent.WithUse("inference"))
//	files, _ := loader.NewFileLoader()
//
//	pipeline, err := trustgate.NewPipeline(verifier, evaluator, files,
//	    trustgate.WithIntentEnforcer(enforcer),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	model, err := pipeline.Run(ctx, trustgate.PipelineConfig{
//	    ModelPath:  "model.safetensors",
//	    CertPath:   "model.safetensors.sigstore.json",
//	    PolicyPath: "policy.yaml",
//	    IntentPath: "model.intent.yaml",
//	})
//	if tv, ok := trustgate.AsTrustViolation(err); ok {
//	    fmt.Println("denied at", tv.Stage, ":", tv.Reason)
//	}
//
// # Failure Reporting
//
// Collaborator errors are re-tagged with the stage that called them. Two
// exceptions apply: a *TrustViolation returned by the intent enforcer passes
// through with its own stage, and load failures always carry the fixed
// LoadFailureReason.
package trustgate
