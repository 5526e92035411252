package api

import (
	"errors"
	"net/http"

	"github.com/probeflow/probeflow/internal/connector"
	"github.com/probeflow/probeflow/internal/core"
)

type testConnectorRequest struct {
	Name   string             `json:"name,omitempty"`
	Type   core.ConnectorType `json:"type"`
	Config map[string]string  `json:"config"`
}

type testConnectorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// handleTestConnector probes the backend named by the request body. A
// failed probe is a successful request: the outcome travels in the
// response body so clients can surface the backend's own error.
func (a *API) handleTestConnector(w http.ResponseWriter, r *http.Request) {
	var req testConnectorRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if req.Type == "" {
		a.writeError(w, r, errBadRequest("connector type is required"))
		return
	}

	conn := core.Connector{Name: req.Name, Type: req.Type, Config: req.Config}
	if err := a.connectors.TestConnection(r.Context(), conn); err != nil {
		if errors.Is(err, connector.ErrUnsupportedType) {
			a.writeError(w, r, errBadRequest(err.Error()))
			return
		}
		a.respondJSON(w, http.StatusOK, testConnectorResponse{Success: false, Message: err.Error()})
		return
	}
	a.respondJSON(w, http.StatusOK, testConnectorResponse{Success: true})
}
