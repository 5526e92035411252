// Package persis provides persistence layer components for ProbeFlow.
package persis

import (
	"fmt"
	"path/filepath"

	"github.com/probeflow/probeflow/internal/cmn/fileutil"
	"github.com/probeflow/probeflow/internal/core"
	"github.com/probeflow/probeflow/internal/persis/fileenv"
	"github.com/probeflow/probeflow/internal/persis/filerun"
	"github.com/probeflow/probeflow/internal/persis/fileschedule"
	"github.com/probeflow/probeflow/internal/persis/filesuite"
)

// Stores bundles every store backed by the data directory.
type Stores struct {
	// Suites provides suite definition storage
	Suites core.SuiteStore
	// Environments provides environment definition and file asset storage
	Environments core.EnvironmentStore
	// Runs provides run record storage
	Runs core.RunStore
	// Schedules provides run schedule storage
	Schedules core.ScheduleStore
}

// Factory creates file-backed stores under a single data directory
// (e.g., ~/.local/share/probeflow/data).
type Factory struct {
	dataDir string

	// Optional caches for performance
	suiteCache *fileutil.Cache[*core.TestSuite]
	envCache   *fileutil.Cache[*core.Environment]
}

// FactoryOption is a functional option for configuring the Factory.
type FactoryOption func(*Factory)

// WithSuiteCache sets the cache for parsed suite definitions.
func WithSuiteCache(cache *fileutil.Cache[*core.TestSuite]) FactoryOption {
	return func(f *Factory) {
		f.suiteCache = cache
	}
}

// WithEnvironmentCache sets the cache for parsed environment definitions.
func WithEnvironmentCache(cache *fileutil.Cache[*core.Environment]) FactoryOption {
	return func(f *Factory) {
		f.envCache = cache
	}
}

// NewFactory creates a new Factory rooted at the given data directory.
func NewFactory(dataDir string, opts ...FactoryOption) *Factory {
	f := &Factory{dataDir: dataDir}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Stores creates all file-backed stores, creating their directories on
// first use.
func (f *Factory) Stores() (*Stores, error) {
	var suiteOpts []filesuite.Option
	if f.suiteCache != nil {
		suiteOpts = append(suiteOpts, filesuite.WithFileCache(f.suiteCache))
	}
	suites, err := filesuite.New(f.SuitesDir(), suiteOpts...)
	if err != nil {
		return nil, err
	}

	var envOpts []fileenv.Option
	if f.envCache != nil {
		envOpts = append(envOpts, fileenv.WithFileCache(f.envCache))
	}
	environments, err := fileenv.New(f.EnvironmentsDir(), envOpts...)
	if err != nil {
		return nil, err
	}

	runs, err := filerun.New(f.RunsDir())
	if err != nil {
		return nil, err
	}

	schedules, err := fileschedule.New(f.SchedulesDir())
	if err != nil {
		return nil, err
	}

	return &Stores{
		Suites:       suites,
		Environments: environments,
		Runs:         runs,
		Schedules:    schedules,
	}, nil
}

// Path accessors for store directories

// SuitesDir returns the suite definitions directory.
func (f *Factory) SuitesDir() string {
	return filepath.Join(f.dataDir, "suites")
}

// EnvironmentsDir returns the environment definitions directory.
func (f *Factory) EnvironmentsDir() string {
	return filepath.Join(f.dataDir, "environments")
}

// RunsDir returns the run records directory.
func (f *Factory) RunsDir() string {
	return filepath.Join(f.dataDir, "runs")
}

// SchedulesDir returns the run schedules directory.
func (f *Factory) SchedulesDir() string {
	return filepath.Join(f.dataDir, "schedules")
}

// DataDir returns the base data directory.
func (f *Factory) DataDir() string {
	return f.dataDir
}

// String returns a string representation of the factory for debugging.
func (f *Factory) String() string {
	return fmt.Sprintf("Factory{dataDir=%s}", f.dataDir)
}
