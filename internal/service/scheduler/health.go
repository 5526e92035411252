package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/probeflow/probeflow/internal/cmn/logger"
	"github.com/probeflow/probeflow/internal/cmn/logger/tag"
)

// HealthServer exposes a liveness endpoint for the scheduler process so
// deployments can probe it separately from the API server.
type HealthServer struct {
	server *http.Server
	port   int
}

// NewHealthServer creates a health check server listening on port.
// Port 0 disables it.
func NewHealthServer(port int) *HealthServer {
	return &HealthServer{port: port}
}

// Start starts serving in the background.
func (h *HealthServer) Start(ctx context.Context) error {
	if h.port == 0 {
		logger.Info(ctx, "Scheduler health check server disabled (port=0)")
		return nil
	}

	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Get("/health", handleHealth)

	h.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", h.port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info(ctx, "Starting scheduler health check server", tag.Port(h.port))
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "Health check server error", tag.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down, giving in-flight probes a few seconds.
func (h *HealthServer) Stop(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown health check server: %w", err)
	}
	return nil
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}
