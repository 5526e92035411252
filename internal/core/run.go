package core

import "time"

// TestRun is the persisted record of one suite execution.
type TestRun struct {
	// ID is the unique run identifier.
	ID string `json:"id"`
	// SuiteName names the executed suite.
	SuiteName string `json:"suiteName"`
	// EnvironmentName names the environment the run executed against.
	EnvironmentName string `json:"environmentName"`
	// TriggerType records what started the run.
	TriggerType TriggerType `json:"triggerType"`
	// ScheduleID references the schedule for scheduled runs.
	ScheduleID string `json:"scheduleId,omitempty"`
	// Status is the run lifecycle state.
	Status RunStatus `json:"status"`
	// StartedAt is when execution began.
	StartedAt time.Time `json:"startedAt"`
	// CompletedAt is when execution finished; zero while running.
	CompletedAt time.Time `json:"completedAt,omitzero"`
	// TotalDurationMs is the wall time of the whole run.
	TotalDurationMs int64 `json:"totalDurationMs,omitempty"`
	// Result is the serialized execution result tree.
	Result *SuiteExecutionResult `json:"result,omitempty"`
}

// SuiteExecutionResult is the result tree of one run.
type SuiteExecutionResult struct {
	SuiteName       string    `json:"suiteName"`
	EnvironmentName string    `json:"environmentName"`
	Status          RunStatus `json:"status"`
	StartedAt       time.Time `json:"startedAt"`
	CompletedAt     time.Time `json:"completedAt,omitzero"`
	TotalDurationMs int64     `json:"totalDurationMs"`
	// StepResults holds one entry per top-level step in execution order,
	// reflecting the latest execution of each step within the run.
	StepResults []StepExecutionResult `json:"stepResults"`
}

// StepExecutionResult captures the outcome of one step execution.
type StepExecutionResult struct {
	StepID   string     `json:"stepId"`
	StepName string     `json:"stepName"`
	Status   StepStatus `json:"status"`

	// ResponseCode is the HTTP status, or 0 on transport failure.
	ResponseCode    int               `json:"responseCode"`
	ResponseBody    string            `json:"responseBody,omitempty"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
	// DurationMs covers the HTTP call including retries.
	DurationMs int64 `json:"durationMs"`
	// Attempts counts HTTP attempts including the first.
	Attempts int `json:"attempts,omitempty"`
	// ErrorMessage explains ERROR and SKIPPED statuses.
	ErrorMessage string `json:"errorMessage,omitempty"`
	// FromCache marks results visible to later dependents via the
	// within-run cache.
	FromCache bool `json:"fromCache"`

	// ExtractedVariables holds the step's published variables by name.
	ExtractedVariables map[string]string `json:"extractedVariables,omitempty"`
	// ValidationResults holds response validation outcomes, in order.
	ValidationResults []ValidationResult `json:"validationResults,omitempty"`
	// VerificationResults holds data verification outcomes, in order.
	VerificationResults []VerificationResult `json:"verificationResults,omitempty"`
	// Warnings lists non-fatal resolution diagnostics.
	Warnings []string `json:"warnings,omitempty"`

	// Resolved request details for display and debugging.
	RequestURL         string            `json:"requestUrl,omitempty"`
	RequestBody        string            `json:"requestBody,omitempty"`
	RequestHeaders     map[string]string `json:"requestHeaders,omitempty"`
	RequestQueryParams map[string]string `json:"requestQueryParams,omitempty"`
}

// ValidationResult is the outcome of one response validation.
type ValidationResult struct {
	ValidationType ValidationType `json:"validationType"`
	Passed         bool           `json:"passed"`
	Expected       string         `json:"expected,omitempty"`
	Actual         string         `json:"actual,omitempty"`
	Message        string         `json:"message,omitempty"`
}

// VerificationResult is the outcome of one data verification.
type VerificationResult struct {
	ConnectorName    string             `json:"connectorName"`
	Query            string             `json:"query"`
	Status           VerificationStatus `json:"status"`
	Message          string             `json:"message,omitempty"`
	DurationMs       int64              `json:"durationMs"`
	AssertionResults []AssertionResult  `json:"assertionResults,omitempty"`
}

// AssertionResult is the outcome of one assertion inside a verification.
type AssertionResult struct {
	JSONPath      string   `json:"jsonPath"`
	Operator      Operator `json:"operator"`
	ExpectedValue string   `json:"expectedValue,omitempty"`
	ActualValue   string   `json:"actualValue,omitempty"`
	Passed        bool     `json:"passed"`
}

// ManualInputField describes one pending manual input on an
// input-required event.
type ManualInputField struct {
	// Name is the placeholder name.
	Name string `json:"name"`
	// DefaultValue is the literal default from the placeholder, if any.
	DefaultValue string `json:"defaultValue,omitempty"`
	// CachedValue is the value from an earlier prompt in the same run,
	// offered for reuse when a dependency is re-executed.
	CachedValue string `json:"cachedValue,omitempty"`
}
