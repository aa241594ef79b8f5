package trustgate

// StageStatus describes how far a stage got during a run.
type StageStatus string

// Stage statuses reported to a StageCallback.
const (
	StageStarted StageStatus = "started"
	StagePassed  StageStatus = "passed"
	StageFailed  StageStatus = "failed"
	StageSkipped StageStatus = "skipped"
)

// StageEvent reports a stage transition during a pipeline run.
type StageEvent struct {
	// RunID identifies the run the event belongs to.
	RunID string
	// Stage is the stage that changed state. For StageFailed it is the
	// violation's stage, which an intent enforcer may have set to a
	// stage of its own.
	Stage Stage
	// Status is the new state of the stage.
	Status StageStatus
	// Violation is set when Status is StageFailed.
	Violation *TrustViolation
}

// StageCallback is called synchronously on every stage transition.
// Implementations should return quickly; the next stage waits for them.
type StageCallback func(event StageEvent)
