// Package intent enforces model intent manifests.
//
// A manifest declares the purpose of a model and the uses it may and may
// not be put to:
//
//	apiVersion: trustgate.dev/v1
//	kind: ModelIntent
//	model:
//	  name: resnet50
//	  version: 1.2.0
//	intent:
//	  purpose: image classification
//	  allowedUses: [inference, evaluation]
//	  prohibitedUses: [fine-tuning]
//	  expires: 2027-01-01T00:00:00Z
//
// Manifests are validated against an embedded JSON Schema before any rule
// is checked.
package intent
