package runtime

import "github.com/probeflow/probeflow/internal/core"

// EventType names a run stream event.
type EventType string

const (
	EventRunStarted    EventType = "run-started"
	EventStepComplete  EventType = "step-complete"
	EventInputRequired EventType = "input-required"
	EventRunComplete   EventType = "run-complete"
	EventRunError      EventType = "run-error"
)

// RunEvent is one event on a run's stream. Seq is assigned on publish,
// starting at 1, and orders the retained history for replay.
type RunEvent struct {
	Seq  int64     `json:"seq"`
	Type EventType `json:"type"`

	// RunID accompanies run-started and input-required events.
	RunID string `json:"runId,omitempty"`

	// StepResult is the step-complete payload.
	StepResult *core.StepExecutionResult `json:"stepResult,omitempty"`

	// StepID, StepName and Fields form the input-required payload.
	StepID   string                  `json:"stepId,omitempty"`
	StepName string                  `json:"stepName,omitempty"`
	Fields   []core.ManualInputField `json:"fields,omitempty"`

	// Result is the run-complete payload.
	Result *core.SuiteExecutionResult `json:"result,omitempty"`

	// Message is the run-error payload.
	Message string `json:"message,omitempty"`
}

// EventSink receives run events as they happen. A nil sink drops them.
type EventSink func(RunEvent)

func (s EventSink) emit(ev RunEvent) {
	if s != nil {
		s(ev)
	}
}
