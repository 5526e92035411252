package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/probeflow/probeflow/internal/connector"
	"github.com/probeflow/probeflow/internal/core"
)

func TestConnectorsTest(t *testing.T) {
	t.Parallel()

	t.Run("Reachable", func(t *testing.T) {
		t.Parallel()
		ta := setupAPI(t)

		w := ta.do(t, http.MethodPost, "/api/v1/connectors/test", map[string]any{
			"name":   "orders-db",
			"type":   "POSTGRES",
			"config": map[string]string{"host": "db.example.com"},
		})

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true}`, w.Body.String())
		assert.Equal(t, core.ConnectorPostgres, ta.gateway.lastConnector().Type)
	})

	t.Run("Unreachable", func(t *testing.T) {
		t.Parallel()
		ta := setupAPI(t)
		ta.gateway.testErr = errors.New("dial tcp: connection refused")

		w := ta.do(t, http.MethodPost, "/api/v1/connectors/test", map[string]any{
			"type":   "REDIS",
			"config": map[string]string{"addr": "cache.example.com:6379"},
		})

		require.Equal(t, http.StatusOK, w.Code, "a failed probe still answers 200")
		var resp struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		}
		decodeBody(t, w, &resp)
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Message, "connection refused")
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		t.Parallel()
		ta := setupAPI(t)
		ta.gateway.testErr = connector.ErrUnsupportedType

		w := ta.do(t, http.MethodPost, "/api/v1/connectors/test", map[string]any{
			"type": "SQLITE",
		})

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, ErrorCodeBadRequest, decodeError(t, w).Code)
	})

	t.Run("MissingType", func(t *testing.T) {
		t.Parallel()
		ta := setupAPI(t)

		w := ta.do(t, http.MethodPost, "/api/v1/connectors/test", map[string]any{
			"config": map[string]string{},
		})

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeError(t, w).Message, "connector type is required")
	})
}
