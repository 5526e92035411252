package runtime

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/probeflow/probeflow/internal/cmn/logger"
	"github.com/probeflow/probeflow/internal/cmn/logger/tag"
	"github.com/probeflow/probeflow/internal/core"
)

// NewManager creates a new Manager instance over the given runner,
// registry and stores.
func NewManager(
	runner *SuiteRunner,
	registry *Registry,
	suites core.SuiteStore,
	envs core.EnvironmentStore,
	runs core.RunStore,
) *Manager {
	return &Manager{
		runner:   runner,
		registry: registry,
		suites:   suites,
		envs:     envs,
		runs:     runs,
		clock:    time.Now,
	}
}

// Manager drives the run lifecycle: it loads the suite and environment,
// registers the run, persists the RUNNING record, executes through the
// suite runner and persists the outcome. Interactive runs execute in the
// background and report progress on the run's event stream; scheduled
// runs execute synchronously.
type Manager struct {
	runner   *SuiteRunner
	registry *Registry
	suites   core.SuiteStore
	envs     core.EnvironmentStore
	runs     core.RunStore

	clock func() time.Time
	wg    sync.WaitGroup
}

// StartRunOptions parameterizes an interactive run.
type StartRunOptions struct {
	// SuiteName names the suite to run.
	SuiteName string
	// EnvironmentName overrides the suite's default environment.
	EnvironmentName string
	// StepID restricts the run to one step and its dependency closure.
	StepID string
	// Inputs pre-seeds the manual-input cache.
	Inputs map[string]string
}

// startSpec is the resolved start request shared by all trigger paths.
type startSpec struct {
	suiteName  string
	envName    string
	stepID     string
	trigger    core.TriggerType
	scheduleID string
}

// StartRun starts an interactive run and returns its persisted RUNNING
// record. Execution continues in the background; progress, input
// prompts and the final result are delivered on the run's event stream.
func (m *Manager) StartRun(ctx context.Context, opts StartRunOptions) (*core.TestRun, error) {
	prep, run, handle, err := m.begin(ctx, startSpec{
		suiteName: opts.SuiteName,
		envName:   opts.EnvironmentName,
		stepID:    opts.StepID,
		trigger:   core.TriggerManual,
	})
	if err != nil {
		return nil, err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.execute(context.WithoutCancel(ctx), prep, run, handle, RunOptions{
			Handle:      handle,
			Inputs:      opts.Inputs,
			Interactive: true,
		})
	}()

	return run, nil
}

// StartScheduledRun executes one non-interactive firing of a schedule
// and blocks until the run completes. Manual placeholders resolve from
// their defaults; steps with defaultless placeholders are skipped.
func (m *Manager) StartScheduledRun(ctx context.Context, schedule *core.RunSchedule) (*core.TestRun, error) {
	prep, run, handle, err := m.begin(ctx, startSpec{
		suiteName:  schedule.SuiteName,
		envName:    schedule.EnvironmentName,
		trigger:    core.TriggerScheduled,
		scheduleID: schedule.ID,
	})
	if err != nil {
		return nil, err
	}

	m.wg.Add(1)
	defer m.wg.Done()
	m.execute(ctx, prep, run, handle, RunOptions{Handle: handle})
	return run, nil
}

// begin resolves the definitions, registers the run and persists its
// RUNNING record.
func (m *Manager) begin(ctx context.Context, spec startSpec) (*PreparedExecution, *core.TestRun, *RunHandle, error) {
	suite, err := m.suites.Get(ctx, spec.suiteName)
	if err != nil {
		return nil, nil, nil, err
	}

	envName := spec.envName
	if envName == "" {
		envName = suite.DefaultEnvironment
	}
	if envName == "" {
		return nil, nil, nil, core.ErrEnvNameRequired
	}
	env, err := m.envs.Get(ctx, envName)
	if err != nil {
		return nil, nil, nil, err
	}

	prep, err := Prepare(suite, env, spec.stepID)
	if err != nil {
		return nil, nil, nil, err
	}

	runID, err := m.genRunID()
	if err != nil {
		return nil, nil, nil, err
	}
	handle, err := m.registry.Register(runID)
	if err != nil {
		return nil, nil, nil, err
	}

	run := &core.TestRun{
		ID:              runID,
		SuiteName:       suite.Name,
		EnvironmentName: envName,
		TriggerType:     spec.trigger,
		ScheduleID:      spec.scheduleID,
		Status:          core.RunRunning,
		StartedAt:       m.clock(),
	}
	if err := m.runs.Create(ctx, run); err != nil {
		m.registry.Unregister(runID)
		return nil, nil, nil, fmt.Errorf("failed to persist run record: %w", err)
	}

	handle.Emit(RunEvent{Type: EventRunStarted, RunID: runID})
	logger.Info(ctx, "Run started",
		tag.RunID(runID),
		tag.Suite(suite.Name),
		tag.Environment(envName),
		tag.Type(string(spec.trigger)))
	return prep, run, handle, nil
}

// execute runs the prepared suite and persists the outcome. The run is
// unregistered afterwards; late event subscribers are served from the
// persisted record.
func (m *Manager) execute(ctx context.Context, prep *PreparedExecution, run *core.TestRun, handle *RunHandle, opts RunOptions) {
	defer m.registry.Unregister(run.ID)

	var result *core.SuiteExecutionResult
	execWithRecovery(ctx, func() {
		result = m.runner.Execute(ctx, prep, opts)
	})

	if result == nil {
		run.Status = core.RunFailure
		run.CompletedAt = m.clock()
		run.TotalDurationMs = run.CompletedAt.Sub(run.StartedAt).Milliseconds()
		handle.Emit(RunEvent{Type: EventRunError, Message: "run aborted unexpectedly"})
	} else {
		run.Status = result.Status
		run.CompletedAt = result.CompletedAt
		run.TotalDurationMs = result.TotalDurationMs
		run.Result = result
	}
	if _, cancelled := handle.Cancelled(); cancelled {
		run.Status = core.RunCancelled
	}

	if err := m.runs.Update(ctx, run); err != nil {
		logger.Error(ctx, "Failed to persist run result", tag.RunID(run.ID), tag.Error(err))
		handle.Emit(RunEvent{Type: EventRunError, Message: fmt.Sprintf("failed to persist run result: %v", err)})
	}
	if result != nil {
		handle.Emit(RunEvent{Type: EventRunComplete, Result: result})
	}
	handle.Close()

	logger.Info(ctx, "Run finished",
		tag.RunID(run.ID),
		tag.Suite(run.SuiteName),
		tag.Status(string(run.Status)),
		tag.Duration(run.CompletedAt.Sub(run.StartedAt)))
}

// genRunID generates a unique run id using UUID version 7 so that ids
// sort by creation time.
func (m *Manager) genRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate run ID: %w", err)
	}
	return id.String(), nil
}

// SubmitInput merges submitted values into the run's manual-input cache
// and completes a pending input prompt if one is outstanding.
func (m *Manager) SubmitInput(runID string, values map[string]string) error {
	return m.registry.SubmitInput(runID, values)
}

// CancelRun cancels a live run. Any blocked input prompt unblocks and
// the executor stops before its next step.
func (m *Manager) CancelRun(runID, reason string) error {
	return m.registry.Cancel(runID, reason)
}

// SubscribeEvents attaches to a live run's event stream after the given
// sequence. It returns core.ErrRunNotFound once the run has finished;
// callers then serve events synthesized from the persisted record.
func (m *Manager) SubscribeEvents(ctx context.Context, runID string, afterSeq int64) (func() (RunEvent, bool), error) {
	return m.registry.Subscribe(ctx, runID, afterSeq)
}

// IsLive reports whether the run is still registered.
func (m *Manager) IsLive(runID string) bool {
	_, err := m.registry.Events(runID)
	return err == nil
}

// Shutdown waits for in-flight background runs to finish or the context
// to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execWithRecovery executes fn with panic recovery so a misbehaving
// driver cannot take the whole process down.
func execWithRecovery(ctx context.Context, fn func()) {
	defer func() {
		if panicObj := recover(); panicObj != nil {
			stack := debug.Stack()

			var err error
			switch v := panicObj.(type) {
			case error:
				err = v
			case string:
				err = fmt.Errorf("panic: %s", v)
			default:
				err = fmt.Errorf("panic: %v", v)
			}

			logger.Error(ctx, "Recovered from panic",
				tag.Error(err),
				tag.Type(fmt.Sprintf("%T", panicObj)),
				tag.String("stack-trace", string(stack)))
		}
	}()

	fn()
}
