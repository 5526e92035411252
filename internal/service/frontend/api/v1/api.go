// Package api implements the v1 admin API handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/probeflow/probeflow/internal/cmn/logger"
	"github.com/probeflow/probeflow/internal/connector"
	"github.com/probeflow/probeflow/internal/core"
	"github.com/probeflow/probeflow/internal/runtime"
)

// RunCoordinator is the runtime surface the run handlers drive.
type RunCoordinator interface {
	StartRun(ctx context.Context, opts runtime.StartRunOptions) (*core.TestRun, error)
	SubmitInput(runID string, values map[string]string) error
	CancelRun(runID, reason string) error
	SubscribeEvents(ctx context.Context, runID string, afterSeq int64) (func() (runtime.RunEvent, bool), error)
	IsLive(runID string) bool
}

var _ RunCoordinator = (*runtime.Manager)(nil)

// API serves the v1 admin endpoints over the stores and the run
// coordinator.
type API struct {
	suites     core.SuiteStore
	envs       core.EnvironmentStore
	runs       core.RunStore
	schedules  core.ScheduleStore
	manager    RunCoordinator
	connectors connector.Executor
	location   *time.Location
	clock      func() time.Time
}

// APIOption is a functional option for configuring the API.
type APIOption func(*API)

// WithConnectorGateway overrides the connector gateway used by the
// connection-test endpoint.
func WithConnectorGateway(gw connector.Executor) APIOption {
	return func(a *API) {
		a.connectors = gw
	}
}

// WithLocation sets the timezone used to evaluate cron expressions.
func WithLocation(loc *time.Location) APIOption {
	return func(a *API) {
		a.location = loc
	}
}

// WithClock overrides the time source for schedule timestamps.
func WithClock(clock func() time.Time) APIOption {
	return func(a *API) {
		a.clock = clock
	}
}

// New constructs an API over the given stores and run coordinator.
func New(
	suites core.SuiteStore,
	envs core.EnvironmentStore,
	runs core.RunStore,
	schedules core.ScheduleStore,
	manager RunCoordinator,
	opts ...APIOption,
) *API {
	a := &API{
		suites:     suites,
		envs:       envs,
		runs:       runs,
		schedules:  schedules,
		manager:    manager,
		connectors: connector.NewGateway(),
		location:   time.Local,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ConfigureRoutes mounts the v1 endpoints on the given router.
func (a *API) ConfigureRoutes(r chi.Router) {
	r.Get("/health", a.handleHealth)

	r.Route("/suites", func(r chi.Router) {
		r.Get("/", a.handleListSuites)
		r.Post("/", a.handleCreateSuite)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", a.handleGetSuite)
			r.Put("/", a.handleUpdateSuite)
			r.Delete("/", a.handleDeleteSuite)
		})
	})

	r.Route("/environments", func(r chi.Router) {
		r.Get("/", a.handleListEnvironments)
		r.Post("/", a.handleCreateEnvironment)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", a.handleGetEnvironment)
			r.Put("/", a.handleUpdateEnvironment)
			r.Delete("/", a.handleDeleteEnvironment)
			r.Post("/files", a.handleUploadEnvironmentFile)
		})
	})

	r.Post("/connectors/test", a.handleTestConnector)

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", a.handleListRuns)
		r.Post("/", a.handleStartRun)
		r.Route("/{runId}", func(r chi.Router) {
			r.Get("/", a.handleGetRun)
			r.Get("/events", a.handleRunEvents)
			r.Post("/input", a.handleSubmitInput)
			r.Post("/cancel", a.handleCancelRun)
		})
	})

	r.Route("/schedules", func(r chi.Router) {
		r.Get("/", a.handleListSchedules)
		r.Post("/", a.handleCreateSchedule)
		r.Get("/preview", a.handlePreviewSchedule)
		r.Route("/{scheduleId}", func(r chi.Router) {
			r.Get("/", a.handleGetSchedule)
			r.Put("/", a.handleUpdateSchedule)
			r.Delete("/", a.handleDeleteSchedule)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
}

// writeError resolves err to an HTTP status and writes the JSON error
// body. Unexpected errors are logged and reported as 500s without
// leaking internals.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, message, httpStatusCode := a.resolveError(err)

	if httpStatusCode == http.StatusInternalServerError {
		logger.Errorf(r.Context(), "Internal server error: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:    code,
		Message: message,
	})
}

// badRequestErrors are definition-level failures reported as 400s.
var badRequestErrors = []error{
	core.ErrSuiteNameRequired,
	core.ErrStepNameRequired,
	core.ErrStepNameDuplicate,
	core.ErrStepIDDuplicate,
	core.ErrInvalidMethod,
	core.ErrSelfDependency,
	core.ErrUnknownDependency,
	core.ErrCircularDependency,
	core.ErrNegativeCacheTTL,
	core.ErrEnvNameRequired,
	core.ErrVariableKeyDuplicate,
	core.ErrConnectorNameDuplicate,
	core.ErrFileKeyDuplicate,
	core.ErrUnknownConnector,
	core.ErrScheduleCronRequired,
	core.ErrScheduleSuiteRequired,
	core.ErrCronExprInvalid,
}

func (a *API) resolveError(err error) (ErrorCode, string, int) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Message, apiErr.HTTPStatus
	}

	switch {
	case errors.Is(err, core.ErrSuiteNotFound),
		errors.Is(err, core.ErrStepNotFound),
		errors.Is(err, core.ErrEnvironmentNotFound),
		errors.Is(err, core.ErrRunNotFound),
		errors.Is(err, core.ErrScheduleNotFound),
		errors.Is(err, core.ErrConnectorNotFound):
		return ErrorCodeNotFound, err.Error(), http.StatusNotFound
	case errors.Is(err, core.ErrSuiteExists),
		errors.Is(err, core.ErrEnvironmentExists),
		errors.Is(err, core.ErrRunExists),
		errors.Is(err, core.ErrScheduleExists):
		return ErrorCodeAlreadyExists, err.Error(), http.StatusConflict
	case errors.Is(err, core.ErrInputPending):
		return ErrorCodeConflict, err.Error(), http.StatusConflict
	}

	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return ErrorCodeBadRequest, err.Error(), http.StatusBadRequest
		}
	}
	var validationErr *core.ValidationError
	if errors.As(err, &validationErr) {
		return ErrorCodeBadRequest, err.Error(), http.StatusBadRequest
	}

	return ErrorCodeInternalError, "An unexpected error occurred", http.StatusInternalServerError
}

func (a *API) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON decodes the request body into v, rejecting unknown fields
// so definition typos surface instead of silently dropping data.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errBadRequest("invalid request body: " + err.Error())
	}
	return nil
}
