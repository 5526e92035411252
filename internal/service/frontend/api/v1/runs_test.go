package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/probeflow/probeflow/internal/core"
	"github.com/probeflow/probeflow/internal/runtime"
)

func seedRun(t *testing.T, ta *testAPI, run *core.TestRun) {
	t.Helper()
	require.NoError(t, ta.stores.Runs.Create(context.Background(), run))
}

func runRecord(id string, status core.RunStatus, startedAt time.Time) *core.TestRun {
	run := &core.TestRun{
		ID:              id,
		SuiteName:       "checkout",
		EnvironmentName: "staging",
		TriggerType:     core.TriggerManual,
		Status:          status,
		StartedAt:       startedAt,
	}
	if status.IsTerminal() {
		run.CompletedAt = startedAt.Add(3 * time.Second)
		run.TotalDurationMs = 3000
	}
	return run
}

func TestRunsStart(t *testing.T) {
	t.Parallel()

	t.Run("StartsRun", func(t *testing.T) {
		t.Parallel()
		ta := setupAPI(t)
		ta.coord.run = runRecord("r1", core.RunRunning, time.Now())

		w := ta.do(t, http.MethodPost, "/api/v1/runs", map[string]any{
			"suite":       "checkout",
			"environment": "staging",
			"inputs":      map[string]string{"OTP": "123456"},
		})

		require.Equal(t, http.StatusCreated, w.Code)
		assert.JSONEq(t, `{"runId":"r1"}`, w.Body.String())

		opts := ta.coord.startedOpts()
		require.Len(t, opts, 1)
		assert.Equal(t, "checkout", opts[0].SuiteName)
		assert.Equal(t, "staging", opts[0].EnvironmentName)
		assert.Equal(t, map[string]string{"OTP": "123456"}, opts[0].Inputs)
	})

	t.Run("MissingSuite", func(t *testing.T) {
		t.Parallel()
		ta := setupAPI(t)

		w := ta.do(t, http.MethodPost, "/api/v1/runs", map[string]any{
			"environment": "staging",
		})

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeError(t, w).Message, "suite is required")
	})

	t.Run("UnknownSuite", func(t *testing.T) {
		t.Parallel()
		ta := setupAPI(t)
		ta.coord.startErr = core.ErrSuiteNotFound

		w := ta.do(t, http.MethodPost, "/api/v1/runs", map[string]any{
			"suite": "missing",
		})

		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, ErrorCodeNotFound, decodeError(t, w).Code)
	})
}

func TestRunsList(t *testing.T) {
	t.Parallel()
	ta := setupAPI(t)

	base := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	seedRun(t, ta, runRecord("r1", core.RunSuccess, base))
	seedRun(t, ta, runRecord("r2", core.RunFailure, base.Add(time.Hour)))
	r3 := runRecord("r3", core.RunRunning, base.Add(2*time.Hour))
	r3.SuiteName = "search"
	seedRun(t, ta, r3)

	listIDs := func(t *testing.T, path string) []string {
		t.Helper()
		w := ta.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Runs []runSummary `json:"runs"`
		}
		decodeBody(t, w, &resp)
		ids := make([]string, 0, len(resp.Runs))
		for _, r := range resp.Runs {
			ids = append(ids, r.ID)
		}
		return ids
	}

	t.Run("RecentFirst", func(t *testing.T) {
		assert.Equal(t, []string{"r3", "r2", "r1"}, listIDs(t, "/api/v1/runs"))
	})

	t.Run("FilterBySuite", func(t *testing.T) {
		assert.Equal(t, []string{"r2", "r1"}, listIDs(t, "/api/v1/runs?suite=checkout"))
	})

	t.Run("FilterByStatus", func(t *testing.T) {
		assert.Equal(t, []string{"r2"}, listIDs(t, "/api/v1/runs?status=failure"))
	})

	t.Run("FilterByStatusList", func(t *testing.T) {
		assert.Equal(t, []string{"r3", "r2"}, listIDs(t, "/api/v1/runs?status=FAILURE,RUNNING"))
	})

	t.Run("Limit", func(t *testing.T) {
		assert.Equal(t, []string{"r3", "r2"}, listIDs(t, "/api/v1/runs?limit=2"))
	})

	t.Run("UnknownStatus", func(t *testing.T) {
		w := ta.do(t, http.MethodGet, "/api/v1/runs?status=BOGUS", nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeError(t, w).Message, "unknown run status")
	})

	t.Run("InvalidLimit", func(t *testing.T) {
		for _, limit := range []string{"0", "-1", "abc"} {
			w := ta.do(t, http.MethodGet, "/api/v1/runs?limit="+limit, nil)
			require.Equal(t, http.StatusBadRequest, w.Code)
		}
	})
}

func TestRunsGet(t *testing.T) {
	t.Parallel()
	ta := setupAPI(t)

	run := runRecord("r1", core.RunSuccess, time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC))
	run.Result = &core.SuiteExecutionResult{
		SuiteName:       "checkout",
		EnvironmentName: "staging",
		Status:          core.RunSuccess,
		StartedAt:       run.StartedAt,
		CompletedAt:     run.CompletedAt,
		TotalDurationMs: 3000,
		StepResults: []core.StepExecutionResult{
			{StepID: "login", StepName: "Login", Status: core.StepSuccess, ResponseCode: 200, DurationMs: 120},
		},
	}
	seedRun(t, ta, run)

	w := ta.do(t, http.MethodGet, "/api/v1/runs/r1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got core.TestRun
	decodeBody(t, w, &got)
	assert.Equal(t, "r1", got.ID)
	require.NotNil(t, got.Result)
	require.Len(t, got.Result.StepResults, 1)
	assert.Equal(t, "login", got.Result.StepResults[0].StepID)

	w = ta.do(t, http.MethodGet, "/api/v1/runs/missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunsSubmitInput(t *testing.T) {
	t.Parallel()

	t.Run("MergesIntoCache", func(t *testing.T) {
		t.Parallel()
		ta := setupAPI(t)
		handle, err := ta.coord.registry.Register("r-live")
		require.NoError(t, err)

		w := ta.do(t, http.MethodPost, "/api/v1/runs/r-live/input", map[string]string{
			"TOKEN": "abc",
		})

		require.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "abc", handle.Inputs()["TOKEN"])
	})

	t.Run("ResolvesPendingPrompt", func(t *testing.T) {
		t.Parallel()
		ta := setupAPI(t)
		handle, err := ta.coord.registry.Register("r-live")
		require.NoError(t, err)
		outcome, err := handle.RequestInput()
		require.NoError(t, err)

		w := ta.do(t, http.MethodPost, "/api/v1/runs/r-live/input", map[string]string{
			"OTP": "9999",
		})

		require.Equal(t, http.StatusNoContent, w.Code)
		got := <-outcome
		require.NoError(t, got.Err)
		assert.Equal(t, "9999", got.Values["OTP"])
	})

	t.Run("FinishedRunConflicts", func(t *testing.T) {
		t.Parallel()
		ta := setupAPI(t)
		seedRun(t, ta, runRecord("r-done", core.RunSuccess, time.Now()))

		w := ta.do(t, http.MethodPost, "/api/v1/runs/r-done/input", map[string]string{
			"TOKEN": "abc",
		})

		require.Equal(t, http.StatusConflict, w.Code)
		resp := decodeError(t, w)
		assert.Equal(t, ErrorCodeConflict, resp.Code)
		assert.Contains(t, resp.Message, "not active")
	})

	t.Run("UnknownRun", func(t *testing.T) {
		t.Parallel()
		ta := setupAPI(t)

		w := ta.do(t, http.MethodPost, "/api/v1/runs/missing/input", map[string]string{
			"TOKEN": "abc",
		})

		require.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRunsCancel(t *testing.T) {
	t.Parallel()

	t.Run("CancelsWithReason", func(t *testing.T) {
		t.Parallel()
		ta := setupAPI(t)
		handle, err := ta.coord.registry.Register("r-live")
		require.NoError(t, err)

		w := ta.do(t, http.MethodPost, "/api/v1/runs/r-live/cancel", map[string]string{
			"reason": "operator stop",
		})

		require.Equal(t, http.StatusNoContent, w.Code)
		reason, cancelled := handle.Cancelled()
		assert.True(t, cancelled)
		assert.Equal(t, "operator stop", reason)
	})

	t.Run("EmptyBodyUsesDefaultReason", func(t *testing.T) {
		t.Parallel()
		ta := setupAPI(t)
		handle, err := ta.coord.registry.Register("r-live")
		require.NoError(t, err)

		w := ta.do(t, http.MethodPost, "/api/v1/runs/r-live/cancel", nil)

		require.Equal(t, http.StatusNoContent, w.Code)
		reason, cancelled := handle.Cancelled()
		assert.True(t, cancelled)
		assert.Equal(t, "cancelled by caller", reason)
	})

	t.Run("FinishedRunConflicts", func(t *testing.T) {
		t.Parallel()
		ta := setupAPI(t)
		seedRun(t, ta, runRecord("r-done", core.RunCancelled, time.Now()))

		w := ta.do(t, http.MethodPost, "/api/v1/runs/r-done/cancel", nil)
		require.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("UnknownRun", func(t *testing.T) {
		t.Parallel()
		ta := setupAPI(t)

		w := ta.do(t, http.MethodPost, "/api/v1/runs/missing/cancel", nil)
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRunsEventsLive(t *testing.T) {
	t.Parallel()

	emitHistory := func(t *testing.T, ta *testAPI, runID string) *runtime.RunHandle {
		t.Helper()
		handle, err := ta.coord.registry.Register(runID)
		require.NoError(t, err)
		handle.Emit(runtime.RunEvent{Type: runtime.EventRunStarted, RunID: runID})
		handle.Emit(runtime.RunEvent{Type: runtime.EventStepComplete, StepResult: &core.StepExecutionResult{
			StepID:       "login",
			StepName:     "Login",
			Status:       core.StepSuccess,
			ResponseCode: 200,
		}})
		return handle
	}

	t.Run("ReplaysRetainedEvents", func(t *testing.T) {
		t.Parallel()
		ta := setupAPI(t)
		handle := emitHistory(t, ta, "r-live")
		handle.Close()

		req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/r-live/events", nil)
		w := httptest.NewRecorder()
		ta.router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
		assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
		assert.True(t, w.Flushed)

		body := w.Body.String()
		assert.Contains(t, body, "event: run-started\nid: 1\n")
		assert.Contains(t, body, `"runId":"r-live"`)
		assert.Contains(t, body, "event: step-complete\nid: 2\n")
		assert.Contains(t, body, `"stepId":"login"`)
	})

	t.Run("ResumesAfterSeq", func(t *testing.T) {
		t.Parallel()
		ta := setupAPI(t)
		emitHistory(t, ta, "r-live").Close()

		req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/r-live/events?afterSeq=1", nil)
		w := httptest.NewRecorder()
		ta.router.ServeHTTP(w, req)

		body := w.Body.String()
		assert.NotContains(t, body, "run-started")
		assert.Contains(t, body, "event: step-complete\nid: 2\n")
	})

	t.Run("ResumesFromLastEventID", func(t *testing.T) {
		t.Parallel()
		ta := setupAPI(t)
		emitHistory(t, ta, "r-live").Close()

		req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/r-live/events", nil)
		req.Header.Set("Last-Event-ID", "1")
		w := httptest.NewRecorder()
		ta.router.ServeHTTP(w, req)

		body := w.Body.String()
		assert.NotContains(t, body, "run-started")
		assert.Contains(t, body, "event: step-complete")
	})

	t.Run("ReturnsOnDisconnect", func(t *testing.T) {
		t.Parallel()
		ta := setupAPI(t)
		emitHistory(t, ta, "r-open")

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/r-open/events", nil).WithContext(ctx)
		w := httptest.NewRecorder()

		// The stream stays open, so the handler returns only once the
		// request context expires.
		ta.router.ServeHTTP(w, req)

		assert.Contains(t, w.Body.String(), "event: run-started")
	})

	t.Run("InvalidCursor", func(t *testing.T) {
		t.Parallel()
		ta := setupAPI(t)
		emitHistory(t, ta, "r-live")

		w := ta.do(t, http.MethodGet, "/api/v1/runs/r-live/events?afterSeq=later", nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeError(t, w).Message, "afterSeq")
	})
}

func TestRunsEventsStored(t *testing.T) {
	t.Parallel()

	t.Run("SynthesizesHistory", func(t *testing.T) {
		t.Parallel()
		ta := setupAPI(t)

		run := runRecord("r-done", core.RunSuccess, time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC))
		run.Result = &core.SuiteExecutionResult{
			SuiteName:       "checkout",
			EnvironmentName: "staging",
			Status:          core.RunSuccess,
			StartedAt:       run.StartedAt,
			CompletedAt:     run.CompletedAt,
			TotalDurationMs: 3000,
			StepResults: []core.StepExecutionResult{
				{StepID: "login", StepName: "Login", Status: core.StepSuccess, ResponseCode: 200, DurationMs: 120},
				{StepID: "cart", StepName: "View cart", Status: core.StepSuccess, ResponseCode: 200, DurationMs: 80},
			},
		}
		seedRun(t, ta, run)

		w := ta.do(t, http.MethodGet, "/api/v1/runs/r-done/events", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

		body := w.Body.String()
		assert.Contains(t, body, "event: run-started\nid: 1\n")
		assert.Contains(t, body, "event: step-complete\nid: 2\n")
		assert.Contains(t, body, "event: step-complete\nid: 3\n")
		assert.Contains(t, body, "event: run-complete\nid: 4\n")
		assert.Contains(t, body, `"totalDurationMs":3000`)
		assert.NotContains(t, body, "run-error")
	})

	t.Run("StaleRunningRunReportsError", func(t *testing.T) {
		t.Parallel()
		ta := setupAPI(t)
		seedRun(t, ta, runRecord("r-stale", core.RunRunning, time.Now()))

		w := ta.do(t, http.MethodGet, "/api/v1/runs/r-stale/events", nil)
		require.Equal(t, http.StatusOK, w.Code)

		body := w.Body.String()
		assert.Contains(t, body, "event: run-error")
		assert.Contains(t, body, "no longer live")
	})

	t.Run("UnknownRun", func(t *testing.T) {
		t.Parallel()
		ta := setupAPI(t)

		w := ta.do(t, http.MethodGet, "/api/v1/runs/missing/events", nil)
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}
