package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/probeflow/probeflow/internal/cmn/config"
	"github.com/probeflow/probeflow/internal/cmn/fileutil"
	"github.com/probeflow/probeflow/internal/cmn/logger"
	"github.com/probeflow/probeflow/internal/connector"
	"github.com/probeflow/probeflow/internal/core"
	"github.com/probeflow/probeflow/internal/persis/fileenv"
	"github.com/probeflow/probeflow/internal/persis/filerun"
	"github.com/probeflow/probeflow/internal/persis/fileschedule"
	"github.com/probeflow/probeflow/internal/persis/filesuite"
	"github.com/probeflow/probeflow/internal/runtime"
	"github.com/probeflow/probeflow/internal/service/frontend"
	apiv1 "github.com/probeflow/probeflow/internal/service/frontend/api/v1"
	"github.com/probeflow/probeflow/internal/service/scheduler"
)

// Context holds the configuration for a command.
type Context struct {
	context.Context

	Command *cobra.Command
	Flags   []commandLineFlag
	Config  *config.Config
	Quiet   bool

	SuiteStore       core.SuiteStore
	EnvironmentStore core.EnvironmentStore
	RunStore         core.RunStore
	ScheduleStore    core.ScheduleStore
	Manager          *runtime.Manager
}

// NewContext initializes the application setup by loading configuration,
// setting up logger context, and logging any warnings.
func NewContext(cmd *cobra.Command, flags []commandLineFlag) (*Context, error) {
	ctx := cmd.Context()

	bindFlags(cmd, flags...)

	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return nil, fmt.Errorf("failed to get quiet flag: %w", err)
	}

	var loaderOpts []config.LoaderOption

	// Use a custom config file if provided via the viper flag "config"
	if cfgPath := viper.GetString("config"); cfgPath != "" {
		loaderOpts = append(loaderOpts, config.WithConfigFile(cfgPath))
	}

	cfg, err := config.Load(loaderOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyFlagOverrides(cmd, cfg); err != nil {
		return nil, err
	}

	// Create a logger context based on config and quiet mode
	var opts []logger.Option
	if cfg.Global.Debug || os.Getenv("DEBUG") != "" {
		opts = append(opts, logger.WithDebug())
	}
	if quiet {
		opts = append(opts, logger.WithQuiet())
	}
	if cfg.Global.LogFormat != "" {
		opts = append(opts, logger.WithFormat(cfg.Global.LogFormat))
	}
	ctx = logger.WithLogger(ctx, logger.NewLogger(opts...))

	// Log any warnings collected during configuration loading
	for _, w := range cfg.Warnings {
		logger.Warn(ctx, w)
	}

	var suiteOpts []filesuite.Option
	var envOpts []fileenv.Option

	switch cmd.Name() {
	case "server", "scheduler", "start-all":
		// For long-running processes, definition parses are cached.
		suiteOpts = append(suiteOpts,
			filesuite.WithFileCache(fileutil.NewCache[*core.TestSuite]("suites", 0, 12*time.Hour)))
		envOpts = append(envOpts,
			fileenv.WithFileCache(fileutil.NewCache[*core.Environment]("environments", 0, 12*time.Hour)))
	}

	suites, err := filesuite.New(cfg.Paths.SuitesDir, suiteOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open suite store: %w", err)
	}
	envs, err := fileenv.New(cfg.Paths.EnvironmentsDir, envOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open environment store: %w", err)
	}
	runs, err := filerun.New(cfg.Paths.RunsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	schedules, err := fileschedule.New(cfg.Paths.SchedulesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open schedule store: %w", err)
	}

	runner := runtime.NewSuiteRunner(
		connector.NewGateway(),
		runtime.WithRequestTimeout(cfg.Engine.RequestTimeout),
		runtime.WithListenerSettle(cfg.Engine.ListenerSettle),
		runtime.WithInputTimeout(cfg.Engine.InputTimeout),
	)
	manager := runtime.NewManager(runner, runtime.NewRegistry(), suites, envs, runs)

	return &Context{
		Context:          ctx,
		Command:          cmd,
		Flags:            flags,
		Config:           cfg,
		Quiet:            quiet,
		SuiteStore:       suites,
		EnvironmentStore: envs,
		RunStore:         runs,
		ScheduleStore:    schedules,
		Manager:          manager,
	}, nil
}

// applyFlagOverrides folds command line flags into the loaded
// configuration. Flags take precedence over the config file and
// environment variables.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.Paths.SuitesDir = filepath.Join(dataDir, "suites")
		cfg.Paths.EnvironmentsDir = filepath.Join(dataDir, "environments")
		cfg.Paths.RunsDir = filepath.Join(dataDir, "runs")
		cfg.Paths.SchedulesDir = filepath.Join(dataDir, "schedules")
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid port number: %s", port)
		}
		cfg.Server.Port = p
	}
	return nil
}

// LogToFile rebuilds the logger context with an extra file writer so
// that run output is mirrored to the log file.
func (c *Context) LogToFile(f *os.File) {
	var opts []logger.Option
	if c.Config.Global.Debug {
		opts = append(opts, logger.WithDebug())
	}
	if c.Quiet {
		opts = append(opts, logger.WithQuiet())
	}
	if c.Config.Global.LogFormat != "" {
		opts = append(opts, logger.WithFormat(c.Config.Global.LogFormat))
	}
	if f != nil {
		opts = append(opts, logger.WithWriter(f))
	}
	c.Context = logger.WithLogger(c.Context, logger.NewLogger(opts...))
}

// OpenRunLogFile creates the per-run log file under the configured log
// directory. It is opened before the run starts, so the file name
// carries a timestamp rather than the run id.
func (c *Context) OpenRunLogFile(suiteName string) (*os.File, error) {
	dir := filepath.Join(c.Config.Paths.LogDir, fileutil.SafeName(suiteName))
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to initialize log directory %s: %w", dir, err)
	}
	name := fmt.Sprintf("run_%s.log", time.Now().UTC().Format("20060102_150405.000Z"))
	return os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) //nolint:gosec // path derived from SafeName
}

// NewServer creates the admin API server over the shared stores.
func (c *Context) NewServer() *frontend.Server {
	api := apiv1.New(
		c.SuiteStore,
		c.EnvironmentStore,
		c.RunStore,
		c.ScheduleStore,
		c.Manager,
		apiv1.WithLocation(c.Config.Global.Location),
	)
	return frontend.NewServer(c.Config, api)
}

// NewScheduler creates the scheduler service that fires runs from cron
// schedules.
func (c *Context) NewScheduler() (*scheduler.Service, error) {
	opts := []scheduler.Option{scheduler.WithLocation(c.Config.Global.Location)}
	if port, _ := c.Command.Flags().GetString("health-port"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid health check port: %s", port)
		}
		opts = append(opts, scheduler.WithHealthPort(p))
	}
	return scheduler.New(c.Manager, c.ScheduleStore, opts...), nil
}

// NewCommand creates a new command instance with the given cobra command and run function.
func NewCommand(cmd *cobra.Command, flags []commandLineFlag, runFunc func(cmd *Context, args []string) error) *cobra.Command {
	initFlags(cmd, flags...)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx, err := NewContext(cmd, flags)
		if err != nil {
			fmt.Printf("Initialization error: %v\n", err)
			os.Exit(1)
		}
		if err := runFunc(ctx, args); err != nil {
			logger.Error(ctx.Context, "Command failed", "err", err)
			os.Exit(1)
		}
		return nil
	}

	return cmd
}
