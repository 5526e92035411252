package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/probeflow/probeflow/internal/cmn/logger"
	"github.com/probeflow/probeflow/internal/cmn/logger/tag"
)

func CmdScheduler() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "scheduler [flags]",
			Short: "Start the scheduler process",
			Long: `Launch the scheduler process that fires suite runs from cron schedules.

Example:
  probeflow scheduler --data-dir=/var/lib/probeflow

This process runs continuously to execute scheduled suites. Scheduled
runs resolve manual inputs from their defaults; steps that require a
value without one are skipped.
`,
		}, schedulerFlags, runScheduler,
	)
}

var schedulerFlags = []commandLineFlag{dataDirFlag, healthPortFlag}

func runScheduler(ctx *Context, _ []string) error {
	signalCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx.Context = signalCtx

	logger.Info(ctx, "Scheduler initialization",
		tag.Dir(ctx.Config.Paths.SchedulesDir), tag.String("logFormat", ctx.Config.Global.LogFormat))

	scheduler, err := ctx.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler in directory %s: %w",
			ctx.Config.Paths.SchedulesDir, err)
	}

	return nil
}
