package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/probeflow/probeflow/internal/core"
)

func sampleSuite(name string) core.TestSuite {
	return core.TestSuite{
		Name:               name,
		Description:        "checkout flow probes",
		DefaultEnvironment: "staging",
		Steps: []core.TestStep{
			{
				ID:     "login",
				Name:   "Login",
				Method: "POST",
				URL:    "https://api.example.com/login",
			},
			{
				ID:           "cart",
				Name:         "View cart",
				Method:       "GET",
				URL:          "https://api.example.com/cart",
				Dependencies: []core.Dependency{{DependsOnStepID: "login"}},
			},
		},
	}
}

func TestSuitesCreateAndGet(t *testing.T) {
	t.Parallel()
	ta := setupAPI(t)

	w := ta.do(t, http.MethodPost, "/api/v1/suites", sampleSuite("checkout"))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"name":"checkout"}`, w.Body.String())

	w = ta.do(t, http.MethodGet, "/api/v1/suites/checkout", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var suite core.TestSuite
	decodeBody(t, w, &suite)
	assert.Equal(t, "checkout", suite.Name)
	assert.Equal(t, "staging", suite.DefaultEnvironment)
	require.Len(t, suite.Steps, 2)
	assert.Equal(t, "login", suite.Steps[0].ID)
	require.Len(t, suite.Steps[1].Dependencies, 1)
	assert.Equal(t, "login", suite.Steps[1].Dependencies[0].DependsOnStepID)
}

func TestSuitesGetNotFound(t *testing.T) {
	t.Parallel()
	ta := setupAPI(t)

	w := ta.do(t, http.MethodGet, "/api/v1/suites/missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	resp := decodeError(t, w)
	assert.Equal(t, ErrorCodeNotFound, resp.Code)
	assert.Equal(t, "test suite not found", resp.Message)
}

func TestSuitesCreateConflict(t *testing.T) {
	t.Parallel()
	ta := setupAPI(t)

	w := ta.do(t, http.MethodPost, "/api/v1/suites", sampleSuite("checkout"))
	require.Equal(t, http.StatusCreated, w.Code)

	w = ta.do(t, http.MethodPost, "/api/v1/suites", sampleSuite("checkout"))
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, ErrorCodeAlreadyExists, decodeError(t, w).Code)
}

func TestSuitesCreateValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(s *core.TestSuite)
		wantMessage string
	}{
		{
			name:        "MissingName",
			mutate:      func(s *core.TestSuite) { s.Name = "" },
			wantMessage: "suite name must be specified",
		},
		{
			name: "DuplicateStepName",
			mutate: func(s *core.TestSuite) {
				s.Steps[1].Name = s.Steps[0].Name
			},
			wantMessage: "step name must be unique",
		},
		{
			name: "CircularDependency",
			mutate: func(s *core.TestSuite) {
				s.Steps[0].Dependencies = []core.Dependency{{DependsOnStepID: "cart"}}
			},
			wantMessage: "circular dependency",
		},
		{
			name: "InvalidMethod",
			mutate: func(s *core.TestSuite) {
				s.Steps[0].Method = "FETCH"
			},
			wantMessage: "method must be one of",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ta := setupAPI(t)

			suite := sampleSuite("checkout")
			tc.mutate(&suite)

			w := ta.do(t, http.MethodPost, "/api/v1/suites", suite)
			require.Equal(t, http.StatusBadRequest, w.Code)

			resp := decodeError(t, w)
			assert.Equal(t, ErrorCodeBadRequest, resp.Code)
			assert.Contains(t, resp.Message, tc.wantMessage)
		})
	}
}

func TestSuitesList(t *testing.T) {
	t.Parallel()
	ta := setupAPI(t)

	for _, name := range []string{"search", "checkout"} {
		w := ta.do(t, http.MethodPost, "/api/v1/suites", sampleSuite(name))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := ta.do(t, http.MethodGet, "/api/v1/suites", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Suites []suiteSummary `json:"suites"`
	}
	decodeBody(t, w, &resp)
	require.Len(t, resp.Suites, 2)
	assert.Equal(t, "checkout", resp.Suites[0].Name)
	assert.Equal(t, 2, resp.Suites[0].StepCount)
	assert.Equal(t, "search", resp.Suites[1].Name)
}

func TestSuitesUpdate(t *testing.T) {
	t.Parallel()
	ta := setupAPI(t)

	w := ta.do(t, http.MethodPost, "/api/v1/suites", sampleSuite("checkout"))
	require.Equal(t, http.StatusCreated, w.Code)

	t.Run("ReplacesDefinition", func(t *testing.T) {
		updated := sampleSuite("checkout")
		updated.Description = "rewritten"
		updated.Steps = updated.Steps[:1]

		w := ta.do(t, http.MethodPut, "/api/v1/suites/checkout", updated)
		require.Equal(t, http.StatusOK, w.Code)

		var suite core.TestSuite
		decodeBody(t, w, &suite)
		assert.Equal(t, "rewritten", suite.Description)
		assert.Len(t, suite.Steps, 1)
	})

	t.Run("BackfillsNameFromPath", func(t *testing.T) {
		updated := sampleSuite("checkout")
		updated.Name = ""

		w := ta.do(t, http.MethodPut, "/api/v1/suites/checkout", updated)
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("RejectsNameMismatch", func(t *testing.T) {
		updated := sampleSuite("renamed")

		w := ta.do(t, http.MethodPut, "/api/v1/suites/checkout", updated)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeError(t, w).Message, "does not match")
	})

	t.Run("UnknownSuite", func(t *testing.T) {
		w := ta.do(t, http.MethodPut, "/api/v1/suites/missing", sampleSuite("missing"))
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSuitesDelete(t *testing.T) {
	t.Parallel()
	ta := setupAPI(t)

	w := ta.do(t, http.MethodPost, "/api/v1/suites", sampleSuite("checkout"))
	require.Equal(t, http.StatusCreated, w.Code)

	w = ta.do(t, http.MethodDelete, "/api/v1/suites/checkout", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = ta.do(t, http.MethodGet, "/api/v1/suites/checkout", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = ta.do(t, http.MethodDelete, "/api/v1/suites/checkout", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
