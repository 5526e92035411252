// Package frontend serves the admin HTTP API.
package frontend

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/probeflow/probeflow/internal/cmn/config"
	"github.com/probeflow/probeflow/internal/cmn/logger"
	"github.com/probeflow/probeflow/internal/cmn/logger/tag"
	apiv1 "github.com/probeflow/probeflow/internal/service/frontend/api/v1"
)

// Server is the admin API HTTP server.
type Server struct {
	api        *apiv1.API
	config     *config.Config
	httpServer *http.Server
	listener   net.Listener // Optional pre-bound listener (for tests)
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithListener sets a pre-bound listener for the server.
// When set, the server will use this listener instead of creating its own.
// This is useful for tests to avoid race conditions with port allocation.
func WithListener(l net.Listener) ServerOption {
	return func(s *Server) {
		s.listener = l
	}
}

// NewServer constructs a Server serving the given API under the
// configured base path.
func NewServer(cfg *config.Config, api *apiv1.API, opts ...ServerOption) *Server {
	srv := &Server{
		api:    api,
		config: cfg,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Serve starts the HTTP server and blocks until the context is
// cancelled or a termination signal arrives, then shuts down
// gracefully.
func (srv *Server) Serve(ctx context.Context) error {
	srv.httpServer = &http.Server{
		Handler:           srv.buildRouter(),
		Addr:              srv.config.Server.Addr(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	// Log before starting the goroutine to avoid a race in tests.
	logger.Info(ctx, "Server is starting", tag.Addr(srv.httpServer.Addr))

	go srv.startServer(ctx)

	srv.waitForShutdown(ctx)
	return nil
}

// Handler returns the configured router without starting a listener.
// Tests drive it through httptest.
func (srv *Server) Handler() http.Handler {
	return srv.buildRouter()
}

func (srv *Server) buildRouter() *chi.Mux {
	requestLogger := httplog.NewLogger("http", httplog.Options{
		LogLevel:         slog.LevelDebug,
		JSON:             srv.config.Global.LogFormat == "json",
		Concise:          true,
		RequestHeaders:   true,
		MessageFieldName: "msg",
		ResponseHeaders:  true,
	})

	r := chi.NewMux()
	r.Use(middleware.RealIP)
	r.Use(middleware.Compress(5))
	r.Use(httplog.RequestLogger(requestLogger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Content-Encoding", "Accept"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RedirectSlashes)

	r.Route(srv.apiBasePath(), func(r chi.Router) {
		srv.api.ConfigureRoutes(r)
	})
	return r
}

// apiBasePath joins the configured base path with the API prefix,
// normalized to a leading slash.
func (srv *Server) apiBasePath() string {
	basePath := path.Join(srv.config.Server.BasePath, "api/v1")
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return basePath
}

func (srv *Server) startServer(ctx context.Context) {
	var err error
	if srv.listener != nil {
		logger.Info(ctx, "Starting server on pre-bound listener")
		err = srv.httpServer.Serve(srv.listener)
	} else {
		err = srv.httpServer.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		logger.Error(ctx, "Server failed to start or unexpected shutdown", tag.Error(err))
	}
}

// Shutdown gracefully shuts down the server.
func (srv *Server) Shutdown(ctx context.Context) error {
	if srv.httpServer == nil {
		return nil
	}
	logger.Info(ctx, "Server is shutting down", tag.Addr(srv.httpServer.Addr))

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	srv.httpServer.SetKeepAlivesEnabled(false)
	return srv.httpServer.Shutdown(shutdownCtx)
}

// waitForShutdown blocks until the context is done or a termination
// signal arrives, then drains in-flight requests.
func (srv *Server) waitForShutdown(ctx context.Context) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-ctx.Done():
		logger.Info(ctx, "Context done, shutting down server")
	case sig := <-quit:
		logger.Info(ctx, "Received shutdown signal", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv.httpServer.SetKeepAlivesEnabled(false)
	if err := srv.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Failed to shutdown server gracefully", tag.Error(err))
	}
}
