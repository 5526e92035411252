package core

import (
	"errors"
	"fmt"
	"strings"
)

// Not-found errors surfaced to callers.
var (
	ErrSuiteNotFound       = errors.New("test suite not found")
	ErrStepNotFound        = errors.New("test step not found")
	ErrEnvironmentNotFound = errors.New("environment not found")
	ErrRunNotFound         = errors.New("run not found")
	ErrScheduleNotFound    = errors.New("schedule not found")
	ErrConnectorNotFound   = errors.New("connector not found")
)

// Conflict errors from the stores.
var (
	ErrSuiteExists       = errors.New("a test suite with this name already exists")
	ErrEnvironmentExists = errors.New("an environment with this name already exists")
	ErrRunExists         = errors.New("a run with this id already exists")
	ErrScheduleExists    = errors.New("a schedule with this id already exists")
)

// Errors from the run registry.
var (
	ErrRunCancelled = errors.New("run cancelled")
	ErrInputPending = errors.New("a manual input request is already pending for this run")
)

// Errors on validating definitions.
var (
	ErrSuiteNameRequired      = errors.New("suite name must be specified")
	ErrStepNameRequired       = errors.New("step name must be specified")
	ErrStepNameDuplicate      = errors.New("step name must be unique")
	ErrStepIDDuplicate        = errors.New("step id must be unique")
	ErrInvalidMethod          = errors.New("method must be one of GET, POST, PUT, DELETE, PATCH")
	ErrSelfDependency         = errors.New("a step may not depend on itself")
	ErrUnknownDependency      = errors.New("dependency target must belong to the same suite")
	ErrCircularDependency     = errors.New("Adding these dependencies would create a circular dependency")
	ErrNegativeCacheTTL       = errors.New("cacheTtlSeconds must not be negative")
	ErrEnvNameRequired        = errors.New("environment name must be specified")
	ErrVariableKeyDuplicate   = errors.New("variable key must be unique within an environment")
	ErrConnectorNameDuplicate = errors.New("connector name must be unique within an environment")
	ErrFileKeyDuplicate       = errors.New("file key must be unique within an environment")
	ErrUnknownConnector       = errors.New("verification references an unknown connector")
	ErrScheduleCronRequired   = errors.New("schedule cron expression must be specified")
	ErrScheduleSuiteRequired  = errors.New("schedule suite must be specified")
	ErrCronExprInvalid        = errors.New("invalid cron expression")
)

// ErrorList collects multiple validation errors.
type ErrorList []error

// Error implements the error interface. It returns all errors separated
// by a semicolon.
func (e ErrorList) Error() string {
	errStrings := make([]string, len(e))
	for i, err := range e {
		errStrings[i] = err.Error()
	}
	return strings.Join(errStrings, "; ")
}

// Unwrap allows errors.Is to check against each error in the list.
func (e ErrorList) Unwrap() []error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// ValidationError carries the field context of a definition error.
type ValidationError struct {
	Field string
	Value any
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("field '%s': %v (value: %+v)", e.Field, e.Err, e.Value)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError wraps an error with field context.
func NewValidationError(field string, value any, err error) error {
	return &ValidationError{Field: field, Value: value, Err: err}
}
