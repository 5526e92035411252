package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/probeflow/probeflow/internal/core"
	"github.com/probeflow/probeflow/internal/service/scheduler"
)

// previewCount is how many upcoming fire times the preview endpoint
// returns.
const previewCount = 5

type scheduleRequest struct {
	SuiteName       string `json:"suiteName"`
	EnvironmentName string `json:"environmentName,omitempty"`
	CronExpr        string `json:"cronExpr"`
	Active          bool   `json:"active"`
	Description     string `json:"description,omitempty"`
}

func (a *API) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := a.schedules.List(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respondJSON(w, http.StatusOK, map[string]any{"schedules": schedules})
}

func (a *API) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	sched := &core.RunSchedule{
		ID:              uuid.New().String(),
		SuiteName:       req.SuiteName,
		EnvironmentName: req.EnvironmentName,
		CronExpr:        req.CronExpr,
		Active:          req.Active,
		Description:     req.Description,
	}
	if err := a.stampNextRun(sched); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.schedules.Create(r.Context(), sched); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respondJSON(w, http.StatusCreated, sched)
}

func (a *API) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := a.schedules.Get(r.Context(), chi.URLParam(r, "scheduleId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respondJSON(w, http.StatusOK, sched)
}

// handleUpdateSchedule replaces the schedule definition while keeping
// its identity and fire history. The running scheduler picks up the
// change on its next store sync.
func (a *API) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	sched, err := a.schedules.Get(r.Context(), chi.URLParam(r, "scheduleId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	sched.SuiteName = req.SuiteName
	sched.EnvironmentName = req.EnvironmentName
	sched.CronExpr = req.CronExpr
	sched.Active = req.Active
	sched.Description = req.Description
	if err := a.stampNextRun(sched); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.schedules.Update(r.Context(), sched); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respondJSON(w, http.StatusOK, sched)
}

func (a *API) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := a.schedules.Delete(r.Context(), chi.URLParam(r, "scheduleId")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePreviewSchedule(w http.ResponseWriter, r *http.Request) {
	expr := r.URL.Query().Get("expr")
	if expr == "" {
		a.writeError(w, r, errBadRequest("expr is required"))
		return
	}
	times, err := scheduler.Preview(expr, a.clock().In(a.location), previewCount)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respondJSON(w, http.StatusOK, map[string]any{"times": times})
}

// stampNextRun computes the schedule's next fire time from its cron
// expression. Inactive schedules carry no next run. An empty expression
// passes through so store validation reports it.
func (a *API) stampNextRun(sched *core.RunSchedule) error {
	if sched.CronExpr == "" {
		return nil
	}
	parsed, err := scheduler.ParseCron(sched.CronExpr)
	if err != nil {
		return err
	}
	if sched.Active {
		sched.NextRunAt = parsed.Next(a.clock().In(a.location))
	} else {
		sched.NextRunAt = time.Time{}
	}
	return nil
}
