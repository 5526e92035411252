package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/probeflow/probeflow/internal/connector"
	"github.com/probeflow/probeflow/internal/core"
	"github.com/probeflow/probeflow/internal/persis"
	"github.com/probeflow/probeflow/internal/runtime"
)

// fakeCoordinator implements RunCoordinator over a real run registry so
// the event and input endpoints exercise the real stream semantics.
type fakeCoordinator struct {
	registry *runtime.Registry

	mu       sync.Mutex
	started  []runtime.StartRunOptions
	startErr error
	run      *core.TestRun
}

func (f *fakeCoordinator) StartRun(_ context.Context, opts runtime.StartRunOptions) (*core.TestRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, opts)
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.run, nil
}

func (f *fakeCoordinator) SubmitInput(runID string, values map[string]string) error {
	return f.registry.SubmitInput(runID, values)
}

func (f *fakeCoordinator) CancelRun(runID, reason string) error {
	return f.registry.Cancel(runID, reason)
}

func (f *fakeCoordinator) SubscribeEvents(ctx context.Context, runID string, afterSeq int64) (func() (runtime.RunEvent, bool), error) {
	return f.registry.Subscribe(ctx, runID, afterSeq)
}

func (f *fakeCoordinator) IsLive(runID string) bool {
	_, err := f.registry.Events(runID)
	return err == nil
}

func (f *fakeCoordinator) startedOpts() []runtime.StartRunOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]runtime.StartRunOptions, len(f.started))
	copy(out, f.started)
	return out
}

// fakeGateway records the connector handed to TestConnection and
// returns a canned error.
type fakeGateway struct {
	mu      sync.Mutex
	testErr error
	last    core.Connector
}

var _ connector.Executor = (*fakeGateway)(nil)

func (f *fakeGateway) Execute(context.Context, core.Connector, string, time.Duration) (string, error) {
	return "{}", nil
}

func (f *fakeGateway) TestConnection(_ context.Context, conn core.Connector) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = conn
	return f.testErr
}

func (f *fakeGateway) lastConnector() core.Connector {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// testAPI bundles the API under test with its backing stores and fakes.
type testAPI struct {
	api     *API
	router  *chi.Mux
	stores  *persis.Stores
	coord   *fakeCoordinator
	gateway *fakeGateway
}

func setupAPI(t *testing.T, opts ...APIOption) *testAPI {
	t.Helper()

	stores, err := persis.NewFactory(t.TempDir()).Stores()
	require.NoError(t, err)

	coord := &fakeCoordinator{registry: runtime.NewRegistry()}
	gateway := &fakeGateway{}

	apiOpts := append([]APIOption{WithConnectorGateway(gateway)}, opts...)
	a := New(stores.Suites, stores.Environments, stores.Runs, stores.Schedules, coord, apiOpts...)

	router := chi.NewRouter()
	router.Route("/api/v1", func(r chi.Router) {
		a.ConfigureRoutes(r)
	})

	return &testAPI{
		api:     a,
		router:  router,
		stores:  stores,
		coord:   coord,
		gateway: gateway,
	}
}

// do performs a JSON request against the router and returns the
// recorded response.
func (ta *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	ta.router.ServeHTTP(w, req)
	return w
}

// decodeBody unmarshals the recorded JSON response body into out.
func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

// decodeError unmarshals the recorded error body.
func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	decodeBody(t, w, &resp)
	return resp
}

func TestHealth(t *testing.T) {
	t.Parallel()
	ta := setupAPI(t)

	w := ta.do(t, http.MethodGet, "/api/v1/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestResolveError(t *testing.T) {
	t.Parallel()
	ta := setupAPI(t)

	tests := []struct {
		name       string
		err        error
		wantCode   ErrorCode
		wantStatus int
	}{
		{
			name:       "NotFound",
			err:        core.ErrSuiteNotFound,
			wantCode:   ErrorCodeNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "AlreadyExists",
			err:        core.ErrEnvironmentExists,
			wantCode:   ErrorCodeAlreadyExists,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "InputPending",
			err:        core.ErrInputPending,
			wantCode:   ErrorCodeConflict,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "ValidationSentinel",
			err:        core.ErrCircularDependency,
			wantCode:   ErrorCodeBadRequest,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "WrappedValidationError",
			err:        core.NewValidationError("steps[0].method", "FETCH", core.ErrInvalidMethod),
			wantCode:   ErrorCodeBadRequest,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "APIError",
			err:        errBadRequest("custom"),
			wantCode:   ErrorCodeBadRequest,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Unexpected",
			err:        io.ErrUnexpectedEOF,
			wantCode:   ErrorCodeInternalError,
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			code, _, status := ta.api.resolveError(tc.err)
			assert.Equal(t, tc.wantCode, code)
			assert.Equal(t, tc.wantStatus, status)
		})
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	ta := setupAPI(t)

	w := ta.do(t, http.MethodPost, "/api/v1/suites", map[string]any{
		"name":  "checkout",
		"setps": []any{},
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, ErrorCodeBadRequest, resp.Code)
	assert.Contains(t, resp.Message, "setps")
}
