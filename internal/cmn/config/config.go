// Package config loads and validates application configuration from
// config files, environment variables, and defaults.
package config

import (
	"fmt"
	"time"
)

// Config holds the application configuration assembled by the loader.
type Config struct {
	// Global contains settings that apply to every service.
	Global Global
	// Server configures the admin API server.
	Server Server
	// Engine configures run execution behavior.
	Engine Engine
	// Paths holds the resolved directory layout.
	Paths Paths
	// Warnings collected while loading the configuration.
	Warnings []string
}

// Global contains settings shared by all services.
type Global struct {
	// Debug enables debug-level logging.
	Debug bool
	// LogFormat selects the log output format ("text" or "json").
	LogFormat string
	// TZ is the IANA timezone name used for schedule evaluation.
	TZ string
	// Location is the resolved timezone; defaults to the system local zone.
	Location *time.Location
}

// Server configures the admin API HTTP server.
type Server struct {
	// Host is the address the server binds to.
	Host string
	// Port is the TCP port the server listens on.
	Port int
	// BasePath prefixes all API routes when the server runs behind a proxy.
	BasePath string
}

// Addr returns the host:port address string for the server.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Engine configures suite execution behavior.
type Engine struct {
	// RequestTimeout bounds each HTTP step request.
	RequestTimeout time.Duration
	// ListenerSettle is the pause after spawning pre-listeners so that
	// backend subscriptions are established before the step fires.
	ListenerSettle time.Duration
	// InputTimeout bounds how long an interactive run waits for manual
	// input. Zero means wait until cancelled.
	InputTimeout time.Duration
}

// Paths holds the directory layout for definition and run storage.
type Paths struct {
	// SuitesDir stores test suite definition files.
	SuitesDir string
	// EnvironmentsDir stores environment definition files.
	EnvironmentsDir string
	// RunsDir stores persisted run results.
	RunsDir string
	// SchedulesDir stores schedule definition files.
	SchedulesDir string
	// LogDir stores service log files.
	LogDir string
	// ConfigFileUsed is the path of the loaded config file, if any.
	ConfigFileUsed string
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", c.Server.Port)
	}
	if c.Engine.RequestTimeout < 0 {
		return fmt.Errorf("invalid request timeout: %v", c.Engine.RequestTimeout)
	}
	return nil
}
