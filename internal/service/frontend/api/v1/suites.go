package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"github.com/probeflow/probeflow/internal/core"
)

// suiteSummary is the list representation of a suite.
type suiteSummary struct {
	Name               string `json:"name"`
	Description        string `json:"description,omitempty"`
	DefaultEnvironment string `json:"defaultEnvironment,omitempty"`
	StepCount          int    `json:"stepCount"`
}

func (a *API) handleListSuites(w http.ResponseWriter, r *http.Request) {
	suites, err := a.suites.List(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	summaries := lo.Map(suites, func(s *core.TestSuite, _ int) suiteSummary {
		return suiteSummary{
			Name:               s.Name,
			Description:        s.Description,
			DefaultEnvironment: s.DefaultEnvironment,
			StepCount:          len(s.Steps),
		}
	})
	a.respondJSON(w, http.StatusOK, map[string]any{"suites": summaries})
}

func (a *API) handleCreateSuite(w http.ResponseWriter, r *http.Request) {
	var suite core.TestSuite
	if err := decodeJSON(r, &suite); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.suites.Create(r.Context(), &suite); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respondJSON(w, http.StatusCreated, map[string]string{"name": suite.Name})
}

func (a *API) handleGetSuite(w http.ResponseWriter, r *http.Request) {
	suite, err := a.suites.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respondJSON(w, http.StatusOK, suite)
}

func (a *API) handleUpdateSuite(w http.ResponseWriter, r *http.Request) {
	var suite core.TestSuite
	if err := decodeJSON(r, &suite); err != nil {
		a.writeError(w, r, err)
		return
	}
	// The path names the suite; a mismatched body name is rejected
	// rather than silently renaming.
	name := chi.URLParam(r, "name")
	if suite.Name == "" {
		suite.Name = name
	} else if suite.Name != name {
		a.writeError(w, r, errBadRequest("suite name does not match URL"))
		return
	}
	if err := a.suites.Update(r.Context(), &suite); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respondJSON(w, http.StatusOK, &suite)
}

func (a *API) handleDeleteSuite(w http.ResponseWriter, r *http.Request) {
	if err := a.suites.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
