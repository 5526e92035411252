package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/probeflow/probeflow/internal/cmn/fileutil"
	"github.com/probeflow/probeflow/internal/cmn/logger"
	"github.com/probeflow/probeflow/internal/cmn/logger/tag"
	"github.com/probeflow/probeflow/internal/core"
	"github.com/probeflow/probeflow/internal/service/scheduler"
)

func CmdValidate() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "validate [flags] <file> [file...]",
			Short: "Validate definition files without saving them",
			Long: `Check definition files against the same rules the API applies on save.

Suites are checked for duplicate step names, unknown and circular
dependencies and invalid HTTP methods; environments for duplicate
variable keys, connector names and file keys; schedules for a valid
cron expression.

Example:
  probeflow validate suites/checkout.yaml
  probeflow validate --kind=environment environments/staging.yaml

The command exits non-zero if any file fails validation.
`,
			Args: cobra.MinimumNArgs(1),
		}, validateFlags, runValidate,
	)
}

var validateFlags = []commandLineFlag{kindFlag}

func runValidate(ctx *Context, args []string) error {
	kind, _ := ctx.Command.Flags().GetString("kind")

	var failed int
	for _, path := range args {
		if err := validateFile(kind, path); err != nil {
			logger.Error(ctx, "Validation failed", tag.File(path), tag.Error(err))
			failed++
			continue
		}
		logger.Info(ctx, "Validation passed", tag.File(path))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed validation", failed, len(args))
	}
	return nil
}

// validateFile parses one definition file and applies the save-time
// validation rules for its kind. Definitions without a name take it
// from the file name, matching how the stores key their files.
func validateFile(kind, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	fallbackName := fileutil.TrimYAMLFileExtension(filepath.Base(path))

	switch kind {
	case "suite":
		var suite core.TestSuite
		if err := unmarshalDefinition(data, &suite); err != nil {
			return err
		}
		if suite.Name == "" {
			suite.Name = fallbackName
		}
		return core.ValidateSuite(&suite)

	case "environment":
		var env core.Environment
		if err := unmarshalDefinition(data, &env); err != nil {
			return err
		}
		if env.Name == "" {
			env.Name = fallbackName
		}
		return core.ValidateEnvironment(&env)

	case "schedule":
		var sched core.RunSchedule
		if err := unmarshalDefinition(data, &sched); err != nil {
			return err
		}
		if err := core.ValidateSchedule(&sched); err != nil {
			return err
		}
		_, err := scheduler.ParseCron(sched.CronExpr)
		return err

	default:
		return fmt.Errorf("unknown definition kind %q (expected suite, environment or schedule)", kind)
	}
}

// unmarshalDefinition decodes a YAML document through JSON so the keys
// match the API representation.
func unmarshalDefinition(data []byte, out any) error {
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	if err := json.Unmarshal(jsonData, out); err != nil {
		return fmt.Errorf("invalid definition: %w", err)
	}
	return nil
}
