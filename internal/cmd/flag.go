package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type commandLineFlag struct {
	name, shorthand, defaultValue, usage string
	required                             bool
	isBool                               bool
	isSlice                              bool
}

var (
	configFlag = commandLineFlag{
		name:      "config",
		shorthand: "c",
		usage:     "config file (default is $HOME/.config/probeflow/config.yaml)",
	}
	quietFlag = commandLineFlag{
		name:      "quiet",
		shorthand: "q",
		usage:     "suppress console output during execution",
		isBool:    true,
	}
	dataDirFlag = commandLineFlag{
		name:      "data-dir",
		shorthand: "d",
		usage:     "location of definition and run data (default is $XDG_DATA_HOME/probeflow)",
	}
	hostFlag = commandLineFlag{
		name:      "host",
		shorthand: "s",
		usage:     "server host",
	}
	portFlag = commandLineFlag{
		name:      "port",
		shorthand: "p",
		usage:     "server port",
	}
	environmentFlag = commandLineFlag{
		name:      "environment",
		shorthand: "e",
		usage:     "environment to run against (default is the suite's default environment)",
	}
	stepFlag = commandLineFlag{
		name:  "step",
		usage: "run a single step together with the dependencies it needs",
	}
	inputFlag = commandLineFlag{
		name:      "input",
		shorthand: "i",
		usage:     "manual input value as KEY=VALUE (repeatable)",
		isSlice:   true,
	}
	healthPortFlag = commandLineFlag{
		name:  "health-port",
		usage: "port for the scheduler health check endpoint (disabled when unset)",
	}
	kindFlag = commandLineFlag{
		name:         "kind",
		shorthand:    "k",
		defaultValue: "suite",
		usage:        "definition kind to validate: suite, environment or schedule",
	}
)

// initFlags registers the given flags on the command, plus the config
// and quiet flags every command carries.
func initFlags(cmd *cobra.Command, flags ...commandLineFlag) {
	flags = append(flags, configFlag, quietFlag)
	for _, flag := range flags {
		switch {
		case flag.isBool:
			cmd.Flags().BoolP(flag.name, flag.shorthand, flag.defaultValue == "true", flag.usage)
		case flag.isSlice:
			cmd.Flags().StringArrayP(flag.name, flag.shorthand, nil, flag.usage)
		default:
			cmd.Flags().StringP(flag.name, flag.shorthand, flag.defaultValue, flag.usage)
		}
		if flag.required {
			if err := cmd.MarkFlagRequired(flag.name); err != nil {
				fmt.Printf("failed to mark flag %s as required: %v\n", flag.name, err)
			}
		}
	}
}

func bindFlags(cmd *cobra.Command, flags ...commandLineFlag) {
	names := []string{"config", "quiet"}
	for _, flag := range flags {
		names = append(names, flag.name)
	}
	for _, name := range names {
		if err := viper.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			fmt.Printf("failed to bind flag %s: %v\n", name, err)
		}
	}
}
