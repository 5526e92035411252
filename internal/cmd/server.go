package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/probeflow/probeflow/internal/cmn/logger"
	"github.com/probeflow/probeflow/internal/cmn/logger/tag"
)

func CmdServer() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "server [flags]",
			Short: "Start the admin API server for suite management",
			Long: `Launch the ProbeFlow admin server that exposes the HTTP API for managing test suites and runs.

The API allows you to:
- Create, update and inspect test suite and environment definitions
- Start suite runs and submit manual input to waiting runs
- Follow run progress on a live event stream
- Manage cron schedules for recurring runs
- Probe backend connector connectivity

Flags:
  --host string      Host address to bind the server to (default: 127.0.0.1)
  --port int         Port number to listen on (default: 8765)
  --data-dir string  Path to the directory holding definitions and run records

Example:
  probeflow server --host=0.0.0.0 --port=8765 --data-dir=/var/lib/probeflow
`,
		}, serverFlags, runServer,
	)
}

var serverFlags = []commandLineFlag{dataDirFlag, hostFlag, portFlag}

func runServer(ctx *Context, _ []string) error {
	logger.Info(ctx, "Server initialization",
		tag.Host(ctx.Config.Server.Host), tag.Port(ctx.Config.Server.Port))

	server := ctx.NewServer()
	if err := server.Serve(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
