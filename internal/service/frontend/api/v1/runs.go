package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"github.com/probeflow/probeflow/internal/core"
	"github.com/probeflow/probeflow/internal/runtime"
)

// heartbeatInterval is the SSE heartbeat period to keep connections
// alive through proxies.
const heartbeatInterval = 30 * time.Second

type startRunRequest struct {
	Suite       string            `json:"suite"`
	Environment string            `json:"environment,omitempty"`
	StepID      string            `json:"stepId,omitempty"`
	Inputs      map[string]string `json:"inputs,omitempty"`
}

// runSummary is the list representation of a run: the envelope without
// the result tree.
type runSummary struct {
	ID              string           `json:"id"`
	SuiteName       string           `json:"suiteName"`
	EnvironmentName string           `json:"environmentName"`
	TriggerType     core.TriggerType `json:"triggerType"`
	ScheduleID      string           `json:"scheduleId,omitempty"`
	Status          core.RunStatus   `json:"status"`
	StartedAt       time.Time        `json:"startedAt"`
	CompletedAt     time.Time        `json:"completedAt,omitzero"`
	TotalDurationMs int64            `json:"totalDurationMs,omitempty"`
}

func (a *API) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if req.Suite == "" {
		a.writeError(w, r, errBadRequest("suite is required"))
		return
	}

	run, err := a.manager.StartRun(r.Context(), runtime.StartRunOptions{
		SuiteName:       req.Suite,
		EnvironmentName: req.Environment,
		StepID:          req.StepID,
		Inputs:          req.Inputs,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respondJSON(w, http.StatusCreated, map[string]string{"runId": run.ID})
}

func (a *API) handleListRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var opts []core.ListRunsOption
	if suite := query.Get("suite"); suite != "" {
		opts = append(opts, core.WithSuiteName(suite))
	}
	if statusParam := query.Get("status"); statusParam != "" {
		statuses, err := parseRunStatuses(statusParam)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		opts = append(opts, core.WithStatuses(statuses))
	}
	limit := 50
	if limitParam := query.Get("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil || parsed < 1 {
			a.writeError(w, r, errBadRequest("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	opts = append(opts, core.WithLimit(limit))

	runs, err := a.runs.List(r.Context(), opts...)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	summaries := lo.Map(runs, func(run *core.TestRun, _ int) runSummary {
		return runSummary{
			ID:              run.ID,
			SuiteName:       run.SuiteName,
			EnvironmentName: run.EnvironmentName,
			TriggerType:     run.TriggerType,
			ScheduleID:      run.ScheduleID,
			Status:          run.Status,
			StartedAt:       run.StartedAt,
			CompletedAt:     run.CompletedAt,
			TotalDurationMs: run.TotalDurationMs,
		}
	})
	a.respondJSON(w, http.StatusOK, map[string]any{"runs": summaries})
}

func parseRunStatuses(param string) ([]core.RunStatus, error) {
	var statuses []core.RunStatus
	for _, s := range strings.Split(param, ",") {
		status := core.RunStatus(strings.ToUpper(strings.TrimSpace(s)))
		switch status {
		case core.RunRunning, core.RunSuccess, core.RunPartialFailure, core.RunFailure, core.RunCancelled:
			statuses = append(statuses, status)
		default:
			return nil, errBadRequest(fmt.Sprintf("unknown run status: %s", s))
		}
	}
	return statuses, nil
}

func (a *API) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.runs.Get(r.Context(), chi.URLParam(r, "runId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respondJSON(w, http.StatusOK, run)
}

func (a *API) handleSubmitInput(w http.ResponseWriter, r *http.Request) {
	var values map[string]string
	if err := decodeJSON(r, &values); err != nil {
		a.writeError(w, r, err)
		return
	}

	runID := chi.URLParam(r, "runId")
	if err := a.manager.SubmitInput(runID, values); err != nil {
		a.writeError(w, r, a.liveRunError(r, runID, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cancelRunRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (a *API) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	// The body is optional; an empty body cancels with the default reason.
	var req cancelRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		a.writeError(w, r, errBadRequest("invalid request body: "+err.Error()))
		return
	}

	runID := chi.URLParam(r, "runId")
	if err := a.manager.CancelRun(runID, req.Reason); err != nil {
		a.writeError(w, r, a.liveRunError(r, runID, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// liveRunError distinguishes a finished run from an unknown one when
// the registry reports no live run: input and cancel on a finished run
// are conflicts, not 404s.
func (a *API) liveRunError(r *http.Request, runID string, err error) error {
	if !errors.Is(err, core.ErrRunNotFound) {
		return err
	}
	if _, getErr := a.runs.Get(r.Context(), runID); getErr == nil {
		return &Error{
			Code:       ErrorCodeConflict,
			HTTPStatus: http.StatusConflict,
			Message:    "run is not active",
		}
	}
	return err
}

// handleRunEvents streams the run's events as SSE. Live runs replay the
// retained backlog past afterSeq and then stream new events until the
// run finishes; finished runs get their history synthesized from the
// persisted record.
func (a *API) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runId")

	afterSeq, err := eventCursor(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	next, err := a.manager.SubscribeEvents(r.Context(), runID, afterSeq)
	if err != nil {
		run, getErr := a.runs.Get(r.Context(), runID)
		if getErr != nil {
			a.writeError(w, r, getErr)
			return
		}
		a.streamStoredRun(w, run)
		return
	}
	a.streamLiveRun(w, r, next)
}

// eventCursor reads the replay position from the afterSeq query
// parameter, falling back to the standard Last-Event-ID reconnect
// header.
func eventCursor(r *http.Request) (int64, error) {
	cursor := r.URL.Query().Get("afterSeq")
	if cursor == "" {
		cursor = r.Header.Get("Last-Event-ID")
	}
	if cursor == "" {
		return 0, nil
	}
	seq, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil || seq < 0 {
		return 0, errBadRequest("afterSeq must be a non-negative integer")
	}
	return seq, nil
}

func (a *API) streamLiveRun(w http.ResponseWriter, r *http.Request, next func() (runtime.RunEvent, bool)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	setSSEHeaders(w)
	flusher.Flush()

	// Pump the blocking pull into a channel so heartbeats keep flowing
	// while the run is quiet. The pull observes the request context, so
	// a disconnect ends the pump goroutine as well.
	type pulled struct {
		ev runtime.RunEvent
		ok bool
	}
	events := make(chan pulled)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			ev, ok := next()
			select {
			case events <- pulled{ev: ev, ok: ok}:
				if !ok {
					return
				}
			case <-done:
				return
			}
		}
	}()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case res := <-events:
			if !res.ok {
				return
			}
			if err := writeSSEEvent(w, res.ev); err != nil {
				return
			}
			flusher.Flush()
			heartbeat.Reset(heartbeatInterval)
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// streamStoredRun reconstructs the event history of a finished run from
// its persisted record and closes the stream. Input prompts are
// transient and not reconstructed, so sequence numbers restart from 1
// and the full history is always sent.
func (a *API) streamStoredRun(w http.ResponseWriter, run *core.TestRun) {
	setSSEHeaders(w)

	events := []runtime.RunEvent{{Type: runtime.EventRunStarted, RunID: run.ID}}
	if run.Result != nil {
		for i := range run.Result.StepResults {
			events = append(events, runtime.RunEvent{
				Type:       runtime.EventStepComplete,
				StepResult: &run.Result.StepResults[i],
			})
		}
		events = append(events, runtime.RunEvent{Type: runtime.EventRunComplete, Result: run.Result})
	}
	if !run.Status.IsTerminal() {
		// A RUNNING record without a live registry entry means the
		// process died mid-run.
		events = append(events, runtime.RunEvent{Type: runtime.EventRunError, Message: "run is no longer live"})
	}

	for i, ev := range events {
		ev.Seq = int64(i) + 1
		if err := writeSSEEvent(w, ev); err != nil {
			return
		}
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func writeSSEEvent(w io.Writer, ev runtime.RunEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", ev.Type, ev.Seq, data)
	return err
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
