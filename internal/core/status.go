package core

// StepStatus is the terminal state of one step execution.
// Values match the serialized run result format.
type StepStatus string

const (
	StepSuccess            StepStatus = "SUCCESS"
	StepRetried            StepStatus = "RETRIED"
	StepError              StepStatus = "ERROR"
	StepSkipped            StepStatus = "SKIPPED"
	StepVerificationFailed StepStatus = "VERIFICATION_FAILED"
)

// IsSuccess reports whether the step completed its HTTP call successfully.
func (s StepStatus) IsSuccess() bool {
	return s == StepSuccess || s == StepRetried
}

// IsFailure reports whether the step counts as failed for the run status law.
func (s StepStatus) IsFailure() bool {
	return s == StepError || s == StepVerificationFailed
}

// RunStatus is the state of a whole suite run. RUNNING is an in-flight
// sentinel; the others are terminal outcomes.
type RunStatus string

const (
	RunRunning        RunStatus = "RUNNING"
	RunSuccess        RunStatus = "SUCCESS"
	RunPartialFailure RunStatus = "PARTIAL_FAILURE"
	RunFailure        RunStatus = "FAILURE"
	// RunCancelled marks runs stopped by the caller. It appears only on
	// the persisted TestRun envelope; the execution result itself reports
	// FAILURE for cancelled runs.
	RunCancelled RunStatus = "CANCELLED"
)

// IsTerminal reports whether the run reached a final state.
func (s RunStatus) IsTerminal() bool {
	return s != RunRunning && s != ""
}

// VerificationStatus is the outcome of a single data verification.
type VerificationStatus string

const (
	VerificationSuccess VerificationStatus = "SUCCESS"
	VerificationFailed  VerificationStatus = "FAILED"
	VerificationError   VerificationStatus = "ERROR"
)

// TriggerType records what started a run.
type TriggerType string

const (
	TriggerManual    TriggerType = "MANUAL"
	TriggerScheduled TriggerType = "SCHEDULED"
)

// RunStatusFor derives the overall run status from step results:
// SUCCESS when no step failed, FAILURE when no step succeeded, and
// PARTIAL_FAILURE otherwise.
func RunStatusFor(results []StepExecutionResult) RunStatus {
	var failed, succeeded int
	for _, r := range results {
		if r.Status.IsFailure() {
			failed++
		}
		if r.Status.IsSuccess() {
			succeeded++
		}
	}
	switch {
	case failed == 0:
		return RunSuccess
	case succeeded > 0:
		return RunPartialFailure
	default:
		return RunFailure
	}
}
