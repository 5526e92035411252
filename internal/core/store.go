package core

import "context"

// SuiteStore provides an interface for interacting with the underlying
// storage for test suite definitions. It abstracts the storage mechanism
// so that different implementations (file-based, in-memory, etc.) can be
// used interchangeably.
type SuiteStore interface {
	// Create stores a new suite definition after validating it.
	// It returns ErrSuiteExists when a suite with the same name exists.
	Create(ctx context.Context, suite *TestSuite) error
	// Update replaces an existing suite definition after validating it.
	// It returns ErrSuiteNotFound when the suite does not exist.
	Update(ctx context.Context, suite *TestSuite) error
	// Get returns the suite with the given name.
	Get(ctx context.Context, name string) (*TestSuite, error)
	// List returns all suite definitions sorted by name.
	List(ctx context.Context) ([]*TestSuite, error)
	// Delete removes a suite definition.
	Delete(ctx context.Context, name string) error
}

// EnvironmentStore provides an interface for interacting with the
// underlying storage for environment definitions and their file assets.
type EnvironmentStore interface {
	// Create stores a new environment definition after validating it.
	// It returns ErrEnvironmentExists when the name is taken.
	Create(ctx context.Context, env *Environment) error
	// Update replaces an existing environment definition. File assets
	// absent from the updated definition are removed from storage.
	Update(ctx context.Context, env *Environment) error
	// Get returns the environment with the given name, with the content
	// of every file asset loaded.
	Get(ctx context.Context, name string) (*Environment, error)
	// List returns all environment definitions sorted by name, without
	// file asset contents.
	List(ctx context.Context) ([]*Environment, error)
	// Delete removes an environment definition and its file assets.
	Delete(ctx context.Context, name string) error
	// SaveFile stores a file asset's content and registers it on the
	// environment. An existing asset with the same key is replaced.
	SaveFile(ctx context.Context, envName string, asset FileAsset) error
}

// RunStore provides an interface for interacting with the underlying
// storage for run records.
type RunStore interface {
	// Create stores a new run record.
	Create(ctx context.Context, run *TestRun) error
	// Update replaces an existing run record.
	Update(ctx context.Context, run *TestRun) error
	// Get returns the run with the given id.
	Get(ctx context.Context, runID string) (*TestRun, error)
	// List returns run records, most recent first.
	List(ctx context.Context, opts ...ListRunsOption) ([]*TestRun, error)
}

// ListRunsOptions contains filters for listing run records.
type ListRunsOptions struct {
	SuiteName string
	Statuses  []RunStatus
	Limit     int
}

// ListRunsOption is a functional option for configuring ListRunsOptions.
type ListRunsOption func(*ListRunsOptions)

// WithSuiteName restricts the listing to runs of one suite.
func WithSuiteName(name string) ListRunsOption {
	return func(o *ListRunsOptions) {
		o.SuiteName = name
	}
}

// WithStatuses restricts the listing to runs in the given statuses.
func WithStatuses(statuses []RunStatus) ListRunsOption {
	return func(o *ListRunsOptions) {
		o.Statuses = statuses
	}
}

// WithLimit caps the number of returned run records.
func WithLimit(limit int) ListRunsOption {
	return func(o *ListRunsOptions) {
		o.Limit = limit
	}
}

// ScheduleStore provides an interface for interacting with the underlying
// storage for run schedules. Deletion is soft: deleted schedules stay on
// disk flagged as deleted so that an already-fired trigger can detect the
// removal, but they are invisible to Get and List.
type ScheduleStore interface {
	// Create stores a new schedule after validating it.
	Create(ctx context.Context, schedule *RunSchedule) error
	// Update replaces an existing schedule.
	Update(ctx context.Context, schedule *RunSchedule) error
	// Get returns the schedule with the given id. Soft-deleted schedules
	// yield ErrScheduleNotFound.
	Get(ctx context.Context, id string) (*RunSchedule, error)
	// List returns all schedules that are not soft-deleted, sorted by
	// creation time.
	List(ctx context.Context) ([]*RunSchedule, error)
	// Delete soft-deletes the schedule with the given id.
	Delete(ctx context.Context, id string) error
}
