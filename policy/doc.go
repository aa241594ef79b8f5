// Package policy evaluates model-usage policies written as ordered CEL rules.
//
// A policy document is YAML:
//
//	name: production-models
//	default: deny
//	rules:
//	  - id: revoked-key
//	    effect: deny
//	    expression: facts.signer.key_hint == "2f1c..."
//	  - id: release-signer
//	    description: signed by the release pipeline
//	    effect: allow
//	    expression: |
//	      facts.signer.subject == "release@example.com" &&
//	      facts.signer.issuer == "https://token.actions.githubusercontent.com"
//
// The first rule whose expression is true decides. Expressions may use the
// verification facts (facts) and the evaluation time (now). Missing keys are
// evaluation errors; guard optional facts with has().
package policy
