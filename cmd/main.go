package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/probeflow/probeflow/internal/build"
	"github.com/probeflow/probeflow/internal/cmd"

	_ "github.com/probeflow/probeflow/internal/connector/drivers" // Register connector drivers
)

var rootCmd = &cobra.Command{
	Use:   build.Slug,
	Short: "ProbeFlow is an API test suite orchestration engine",
	Long: `ProbeFlow is an API test suite orchestration engine.

It executes HTTP test suites in dependency order against configurable
environments, verifies side effects in databases, caches and message
brokers, and records every run for inspection over the admin API.
`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(cmd.CmdStart())
	rootCmd.AddCommand(cmd.CmdValidate())
	rootCmd.AddCommand(cmd.CmdVersion())
	rootCmd.AddCommand(cmd.CmdServer())
	rootCmd.AddCommand(cmd.CmdScheduler())
	rootCmd.AddCommand(cmd.CmdStartAll())

	build.Version = version
}

var version = "0.0.0"
