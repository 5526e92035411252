package cmd

import (
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/probeflow/probeflow/internal/cmn/logger"
	"github.com/probeflow/probeflow/internal/cmn/logger/tag"
)

func CmdStartAll() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "start-all [flags]",
			Short: "Launch the admin API server and scheduler in a single process",
			Long: `Simultaneously start the admin API server and the scheduler in a single command.

This convenience command combines the functionality of 'probeflow server' and
'probeflow scheduler' into a single process, making it easier to run a complete
ProbeFlow instance. The server exposes the management API while the scheduler
fires suite runs from their cron schedules. Both share one run registry, so
scheduled runs are visible on the server's event stream endpoints.

Flags:
  --host string         Host address to bind the web server to (default: 127.0.0.1)
  --port int            Port number for the web server to listen on (default: 8765)
  --data-dir string     Path to the directory holding definitions and run records
  --health-port int     Port for the scheduler health check endpoint

Example:
  probeflow start-all --host=0.0.0.0 --port=8765 --data-dir=/var/lib/probeflow

This process runs continuously in the foreground until terminated.
`,
		}, startAllFlags, runStartAll,
	)
}

var startAllFlags = []commandLineFlag{dataDirFlag, hostFlag, portFlag, healthPortFlag}

func runStartAll(ctx *Context, _ []string) error {
	// Create a context that will be cancelled on interrupt signal
	signalCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize all services
	scheduler, err := ctx.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	server := ctx.NewServer()

	// Create a new context with the signal context for services
	serviceCtx := &Context{
		Context:          signalCtx,
		Command:          ctx.Command,
		Flags:            ctx.Flags,
		Config:           ctx.Config,
		Quiet:            ctx.Quiet,
		SuiteStore:       ctx.SuiteStore,
		EnvironmentStore: ctx.EnvironmentStore,
		RunStore:         ctx.RunStore,
		ScheduleStore:    ctx.ScheduleStore,
		Manager:          ctx.Manager,
	}

	// WaitGroup to track all services
	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	// Start scheduler
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info(serviceCtx, "Scheduler initialization", tag.Dir(serviceCtx.Config.Paths.SchedulesDir))
		if err := scheduler.Start(serviceCtx); err != nil {
			select {
			case errCh <- fmt.Errorf("scheduler failed: %w", err):
			default:
			}
		}
	}()

	// Start server
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Give the scheduler a moment to start
		time.Sleep(100 * time.Millisecond)
		logger.Info(serviceCtx, "Server initialization",
			tag.Host(serviceCtx.Config.Server.Host), tag.Port(serviceCtx.Config.Server.Port))
		if err := server.Serve(serviceCtx); err != nil {
			select {
			case errCh <- fmt.Errorf("server failed: %w", err):
			default:
			}
		}
	}()

	// Wait for signal or error
	var firstErr error
	select {
	case <-signalCtx.Done():
		logger.Info(ctx, "Received shutdown signal", tag.Error(signalCtx.Err()))
	case err := <-errCh:
		firstErr = err
		logger.Error(ctx, "Service failed, shutting down", tag.Error(err))
		stop() // Cancel the signal context to trigger shutdown of other services
	}

	// Wait for all services to finish with timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info(ctx, "All services stopped gracefully")
	case <-time.After(30 * time.Second):
		logger.Error(ctx, "Timeout waiting for services to stop")
	}

	return firstErr
}
