package trustgate

// PipelineConfig holds the inputs for a single pipeline run.
// It is passed by value and is not modified by the pipeline.
type PipelineConfig struct {
	// ModelPath is the model artifact to verify and load.
	ModelPath string

	// CertPath is the signature bundle or certificate for the model.
	CertPath string

	// PolicyPath is the policy source to evaluate.
	PolicyPath string

	// IntentPath is the optional intent manifest. Empty means absent,
	// in which case the intent stage is skipped.
	IntentPath string
}

// HasIntent reports whether an intent manifest was configured.
func (c PipelineConfig) HasIntent() bool {
	return c.IntentPath != ""
}
