package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/probeflow/probeflow/internal/build"
)

// Defaults applied when neither the config file nor the environment
// provides a value.
const (
	defaultHost           = "127.0.0.1"
	defaultPort           = 8765
	defaultRequestTimeout = 30 * time.Second
	defaultListenerSettle = 500 * time.Millisecond
)

// Loader reads and merges configuration from the config file and
// environment variables.
type Loader struct {
	v          *viper.Viper
	configFile string
	homeDir    string
	warnings   []string
}

// LoaderOption is a functional option for configuring a Loader.
type LoaderOption func(*Loader)

// WithConfigFile sets an explicit configuration file path.
func WithConfigFile(configFile string) LoaderOption {
	return func(l *Loader) {
		l.configFile = configFile
	}
}

// WithHomeDir overrides the application home directory. All paths are
// then resolved relative to it instead of the XDG layout.
func WithHomeDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.homeDir = dir
	}
}

// Load reads the configuration using a fresh loader.
func Load(opts ...LoaderOption) (*Config, error) {
	l := &Loader{v: viper.New()}
	for _, opt := range opts {
		opt(l)
	}
	return l.load()
}

func (l *Loader) load() (*Config, error) {
	paths := l.resolvePaths()

	l.setupViper(paths)

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var def Definition
	if err := l.v.Unmarshal(&def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg, err := l.buildConfig(def, paths)
	if err != nil {
		return nil, err
	}

	cfg.Paths.ConfigFileUsed = l.v.ConfigFileUsed()
	cfg.Warnings = l.warnings

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// appPaths is the default directory layout before overrides.
type appPaths struct {
	configDir string
	dataDir   string
	logDir    string
}

func (l *Loader) resolvePaths() appPaths {
	if l.homeDir == "" {
		l.homeDir = os.Getenv(strings.ToUpper(build.Slug) + "_HOME")
	}
	if l.homeDir != "" {
		return appPaths{
			configDir: l.homeDir,
			dataDir:   filepath.Join(l.homeDir, "data"),
			logDir:    filepath.Join(l.homeDir, "logs"),
		}
	}
	return appPaths{
		configDir: filepath.Join(xdg.ConfigHome, build.Slug),
		dataDir:   filepath.Join(xdg.DataHome, build.Slug),
		logDir:    filepath.Join(xdg.DataHome, build.Slug, "logs"),
	}
}

func (l *Loader) setupViper(paths appPaths) {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.AddConfigPath(paths.configDir)
		l.v.SetConfigName("config")
	}
	l.v.SetConfigType("yaml")
	l.v.SetEnvPrefix(strings.ToUpper(build.Slug))
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	l.v.SetDefault("host", defaultHost)
	l.v.SetDefault("port", defaultPort)
	l.v.SetDefault("logFormat", "text")
}

func (l *Loader) buildConfig(def Definition, paths appPaths) (*Config, error) {
	cfg := &Config{
		Global: Global{
			Debug:     def.Debug,
			LogFormat: def.LogFormat,
			TZ:        def.TZ,
		},
		Server: Server{
			Host:     def.Host,
			Port:     def.Port,
			BasePath: strings.TrimSuffix(def.BasePath, "/"),
		},
		Engine: Engine{
			RequestTimeout: defaultRequestTimeout,
			ListenerSettle: defaultListenerSettle,
		},
		Paths: Paths{
			SuitesDir:       filepath.Join(paths.dataDir, "suites"),
			EnvironmentsDir: filepath.Join(paths.dataDir, "environments"),
			RunsDir:         filepath.Join(paths.dataDir, "runs"),
			SchedulesDir:    filepath.Join(paths.dataDir, "schedules"),
			LogDir:          paths.logDir,
		},
	}

	if err := l.setTimezone(&cfg.Global); err != nil {
		return nil, err
	}

	if def.Paths != nil {
		overridePath(&cfg.Paths.SuitesDir, def.Paths.SuitesDir)
		overridePath(&cfg.Paths.EnvironmentsDir, def.Paths.EnvironmentsDir)
		overridePath(&cfg.Paths.RunsDir, def.Paths.RunsDir)
		overridePath(&cfg.Paths.SchedulesDir, def.Paths.SchedulesDir)
		overridePath(&cfg.Paths.LogDir, def.Paths.LogDir)
	}

	if def.Engine != nil {
		if d := l.parseDuration("engine.requestTimeout", def.Engine.RequestTimeout); d > 0 {
			cfg.Engine.RequestTimeout = d
		}
		if d := l.parseDuration("engine.listenerSettle", def.Engine.ListenerSettle); d > 0 {
			cfg.Engine.ListenerSettle = d
		}
		if d := l.parseDuration("engine.inputTimeout", def.Engine.InputTimeout); d > 0 {
			cfg.Engine.InputTimeout = d
		}
	}

	return cfg, nil
}

func (l *Loader) setTimezone(g *Global) error {
	if g.TZ == "" {
		g.Location = time.Local
		return nil
	}
	loc, err := time.LoadLocation(g.TZ)
	if err != nil {
		return fmt.Errorf("failed to load timezone %q: %w", g.TZ, err)
	}
	g.Location = loc
	return nil
}

// parseDuration parses a duration string, returning zero and adding a
// warning if invalid.
func (l *Loader) parseDuration(fieldName, value string) time.Duration {
	if value == "" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		l.warnings = append(l.warnings, fmt.Sprintf("Invalid %s value: %s", fieldName, value))
		return 0
	}
	return d
}

func overridePath(target *string, value string) {
	if value != "" {
		*target = value
	}
}
