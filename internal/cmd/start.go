package cmd

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/probeflow/probeflow/internal/cmn/logger"
	"github.com/probeflow/probeflow/internal/cmn/logger/tag"
	"github.com/probeflow/probeflow/internal/cmn/stringutil"
	"github.com/probeflow/probeflow/internal/core"
	"github.com/probeflow/probeflow/internal/runtime"
)

// CmdStart creates and returns a cobra command for running a suite
func CmdStart() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "start [flags] <suite name>",
			Short: "Execute a test suite",
			Long: `Begin execution of the named test suite against an environment.

The suite runs against its default environment unless --environment picks
another one. Steps execute in dependency order; when a step needs manual
input, the command prompts for each value on the terminal. Pre-supplied
--input values answer prompts without stopping.

Example:
  probeflow start checkout --environment=staging --input TOKEN=abc123

The command exits non-zero unless every step of the run succeeded.
`,
			Args: cobra.ExactArgs(1),
		}, startFlags, runStart,
	)
}

// Command line flags for the start command
var startFlags = []commandLineFlag{environmentFlag, stepFlag, inputFlag, dataDirFlag}

// runStart handles the execution of the start command
func runStart(ctx *Context, args []string) error {
	inputs, err := parseInputValues(ctx.Command)
	if err != nil {
		return err
	}
	environment, _ := ctx.Command.Flags().GetString("environment")
	stepID, _ := ctx.Command.Flags().GetString("step")

	// Open the run log before starting so the whole lifecycle is
	// mirrored to the file.
	logFile, err := ctx.OpenRunLogFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to initialize log file for suite %s: %w", args[0], err)
	}
	defer func() {
		_ = logFile.Close()
	}()
	ctx.LogToFile(logFile)

	signalCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run, err := ctx.Manager.StartRun(ctx, runtime.StartRunOptions{
		SuiteName:       args[0],
		EnvironmentName: environment,
		StepID:          stepID,
		Inputs:          inputs,
	})
	if err != nil {
		return fmt.Errorf("failed to start run for suite %s: %w", args[0], err)
	}

	// The first interrupt cancels the run; a second one gets default
	// handling and kills the process.
	go func() {
		<-signalCtx.Done()
		stop()
		_ = ctx.Manager.CancelRun(run.ID, "interrupted")
	}()

	if err := followRun(ctx, run.ID); err != nil {
		logger.Warn(ctx, "Event stream ended early", tag.RunID(run.ID), tag.Error(err))
	}

	final, err := ctx.RunStore.Get(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load run record %s: %w", run.ID, err)
	}

	if final.Status != core.RunSuccess {
		if ctx.Quiet {
			os.Exit(1)
		}
		println(renderRunSummary(final))
		return fmt.Errorf("run %s finished with status %s", final.ID, final.Status)
	}

	if !ctx.Quiet {
		println(renderRunSummary(final))
	}
	return nil
}

// followRun pumps the run's event stream, answering input prompts from
// the terminal, until the run finishes.
func followRun(ctx *Context, runID string) error {
	next, err := ctx.Manager.SubscribeEvents(ctx, runID, 0)
	if err != nil {
		// The run finished before we attached; the record has the outcome.
		if errors.Is(err, core.ErrRunNotFound) {
			return nil
		}
		return err
	}

	stdin := bufio.NewReader(os.Stdin)
	for {
		ev, ok := next()
		if !ok {
			return nil
		}
		if ev.Type != runtime.EventInputRequired {
			continue
		}
		values, err := promptInputs(stdin, os.Stderr, ev)
		if err != nil {
			_ = ctx.Manager.CancelRun(runID, "input stream closed")
			continue
		}
		if err := ctx.Manager.SubmitInput(runID, values); err != nil {
			logger.Warn(ctx, "Failed to submit input", tag.RunID(runID), tag.Error(err))
		}
	}
}

// promptInputs collects one value per requested field, offering the
// cached or default value when the user answers with an empty line.
func promptInputs(in *bufio.Reader, out io.Writer, ev runtime.RunEvent) (map[string]string, error) {
	fmt.Fprintf(out, "Step %q needs input:\n", ev.StepName)
	values := make(map[string]string, len(ev.Fields))
	for _, field := range ev.Fields {
		offered := field.CachedValue
		if offered == "" {
			offered = field.DefaultValue
		}
		if offered != "" {
			fmt.Fprintf(out, "  %s [%s]: ", field.Name, offered)
		} else {
			fmt.Fprintf(out, "  %s: ", field.Name)
		}
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			line = offered
		}
		values[field.Name] = line
	}
	return values, nil
}

// parseInputValues parses repeated --input KEY=VALUE flags.
func parseInputValues(cmd *cobra.Command) (map[string]string, error) {
	pairs, err := cmd.Flags().GetStringArray("input")
	if err != nil {
		return nil, fmt.Errorf("failed to get input flag: %w", err)
	}
	if len(pairs) == 0 {
		return nil, nil
	}
	values := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid input %q: expected KEY=VALUE", pair)
		}
		values[key] = value
	}
	return values, nil
}

var runHeader = table.Row{
	"Run ID",
	"Suite",
	"Environment",
	"Started At",
	"Finished At",
	"Status",
}

func renderRunSummary(run *core.TestRun) string {
	var buf bytes.Buffer
	buf.WriteString("\nSummary ->\n")

	summaryTable := table.NewWriter()
	summaryTable.AppendHeader(runHeader)
	summaryTable.AppendRow(table.Row{
		run.ID,
		run.SuiteName,
		run.EnvironmentName,
		stringutil.FormatTime(run.StartedAt),
		stringutil.FormatTime(run.CompletedAt),
		string(run.Status),
	})
	buf.WriteString(summaryTable.Render())
	buf.WriteString("\n")

	if run.Result != nil && len(run.Result.StepResults) > 0 {
		buf.WriteString("Details ->\n")
		buf.WriteString(renderStepSummary(run.Result.StepResults))
	}
	return buf.String()
}

var stepHeader = table.Row{
	"#",
	"Step",
	"Status",
	"Code",
	"Duration",
	"Error",
}

func renderStepSummary(results []core.StepExecutionResult) string {
	stepTable := table.NewWriter()
	stepTable.AppendHeader(stepHeader)

	for i, r := range results {
		code := ""
		if r.ResponseCode != 0 {
			code = strconv.Itoa(r.ResponseCode)
		}
		stepTable.AppendRow(table.Row{
			fmt.Sprintf("%d", i+1),
			r.StepName,
			string(r.Status),
			code,
			fmt.Sprintf("%dms", r.DurationMs),
			r.ErrorMessage,
		})
	}

	return stepTable.Render()
}
