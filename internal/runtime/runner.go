package runtime

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/probeflow/probeflow/internal/cmn/logger"
	"github.com/probeflow/probeflow/internal/cmn/logger/tag"
	"github.com/probeflow/probeflow/internal/connector"
	"github.com/probeflow/probeflow/internal/core"
)

// RunOptions carries the per-run collaboration points into the suite
// executor.
type RunOptions struct {
	// Handle connects the run to the registry for events, manual input
	// and cancellation. May be nil for detached executions.
	Handle *RunHandle
	// Inputs pre-seeds the manual-input cache.
	Inputs map[string]string
	// Interactive enables input prompts. Non-interactive runs resolve
	// manual placeholders from collected defaults and pre-mark steps
	// with defaultless placeholders as SKIPPED.
	Interactive bool
}

// runState is the mutable state of one suite execution.
type runState struct {
	scope      *Scope
	executedAt map[string]time.Time
}

// SuiteRunner executes a prepared suite: it materializes and refreshes
// dependencies, coordinates pre-listeners and manual-input prompts,
// runs each step through the step executor and derives the overall run
// status.
type SuiteRunner struct {
	steps        *StepExecutor
	verifier     *Verifier
	clock        func() time.Time
	inputTimeout time.Duration
}

// RunnerOption is a functional option for configuring the SuiteRunner.
type RunnerOption func(*SuiteRunner)

// WithRequestTimeout bounds each step's HTTP request.
func WithRequestTimeout(d time.Duration) RunnerOption {
	return func(r *SuiteRunner) {
		if d > 0 {
			r.steps.client.SetTimeout(d)
		}
	}
}

// WithListenerSettle sets the pause granted to pre-listeners before the
// step fires.
func WithListenerSettle(d time.Duration) RunnerOption {
	return func(r *SuiteRunner) {
		if d > 0 {
			r.verifier.settle = d
		}
	}
}

// WithInputTimeout bounds the wait for manual input. Zero waits until
// the run is cancelled.
func WithInputTimeout(d time.Duration) RunnerOption {
	return func(r *SuiteRunner) {
		r.inputTimeout = d
	}
}

// NewSuiteRunner returns a runner whose verifications dispatch through
// the given connector gateway.
func NewSuiteRunner(gateway connector.Executor, opts ...RunnerOption) *SuiteRunner {
	r := &SuiteRunner{
		steps:    NewStepExecutor(),
		verifier: NewVerifier(gateway),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs the prepared suite to completion and returns the result
// tree. Cancellation records an ERROR step, stops the remaining order
// and forces the run status to FAILURE.
func (r *SuiteRunner) Execute(ctx context.Context, prep *PreparedExecution, opts RunOptions) *core.SuiteExecutionResult {
	startedAt := r.clock()
	state := &runState{
		scope: &Scope{
			Env:     prep.Environment,
			Steps:   prep.Steps,
			Results: make(map[string]*core.StepExecutionResult),
			Vars:    make(map[string]string),
			Inputs:  make(map[string]string),
		},
		executedAt: make(map[string]time.Time),
	}
	maps.Copy(state.scope.Inputs, opts.Inputs)

	if !opts.Interactive {
		r.preMarkUnresolvable(ctx, prep, state, opts)
	}

	cancelled := false
	for _, stepID := range prep.Order {
		if _, done := state.scope.Results[stepID]; done {
			continue
		}
		if err := r.runStep(ctx, prep, state, opts, stepID); err != nil {
			cancelled = true
			break
		}
	}

	completedAt := r.clock()
	result := &core.SuiteExecutionResult{
		SuiteName:       prep.Suite.Name,
		StartedAt:       startedAt,
		CompletedAt:     completedAt,
		TotalDurationMs: completedAt.Sub(startedAt).Milliseconds(),
	}
	if prep.Environment != nil {
		result.EnvironmentName = prep.Environment.Name
	}
	for _, stepID := range prep.Order {
		if res, ok := state.scope.Results[stepID]; ok {
			result.StepResults = append(result.StepResults, *res)
		}
	}
	result.Status = core.RunStatusFor(result.StepResults)
	if cancelled {
		result.Status = core.RunFailure
	}
	return result
}

// runStep executes one step of the top-level order after settling its
// dependency closure.
func (r *SuiteRunner) runStep(ctx context.Context, prep *PreparedExecution, state *runState, opts RunOptions, stepID string) error {
	step, ok := prep.Steps[stepID]
	if !ok {
		return nil
	}
	if err := r.ensureDependencies(ctx, prep, state, opts, step); err != nil {
		return err
	}
	return r.executeOnce(ctx, prep, state, opts, step, nil)
}

// ensureDependencies materializes absent producers and re-executes ones
// whose cached result may not be consumed through the declaring edge,
// depth first. Producers that ended in ERROR or SKIPPED stay as they
// are; the dependency gate handles them.
func (r *SuiteRunner) ensureDependencies(ctx context.Context, prep *PreparedExecution, state *runState, opts RunOptions, step *core.TestStep) error {
	for _, dep := range step.Dependencies {
		producer, known := prep.Steps[dep.DependsOnStepID]
		if !known {
			continue
		}
		prior, cached := state.scope.Results[dep.DependsOnStepID]
		if cached && (prior.Status == core.StepError || prior.Status == core.StepSkipped) {
			continue
		}
		if cached && !r.needsRefresh(state, producer, dep) {
			continue
		}
		if err := r.ensureDependencies(ctx, prep, state, opts, producer); err != nil {
			return err
		}
		var refresh *core.Dependency
		if cached {
			edge := dep
			refresh = &edge
			logger.Info(ctx, "Re-executing dependency",
				tag.Step(producer.Name), tag.Dependency(step.Name))
		}
		if err := r.executeOnce(ctx, prep, state, opts, producer, refresh); err != nil {
			return err
		}
	}
	return nil
}

// needsRefresh decides whether a cached producer result may be consumed
// through this dependency edge.
func (r *SuiteRunner) needsRefresh(state *runState, producer *core.TestStep, dep core.Dependency) bool {
	if !dep.UseCache {
		return true
	}
	if !producer.Cacheable || producer.CacheTTLSeconds <= 0 {
		return false
	}
	at, ok := state.executedAt[producer.ID]
	if !ok {
		return false
	}
	ttl := time.Duration(producer.CacheTTLSeconds) * time.Second
	return r.clock().Sub(at) >= ttl
}

// executeOnce runs one step through the full per-step sequence:
// pre-listeners, manual input, HTTP execution, variable merge,
// verifications, cache marking and recording.
func (r *SuiteRunner) executeOnce(ctx context.Context, prep *PreparedExecution, state *runState, opts RunOptions, step *core.TestStep, refresh *core.Dependency) error {
	scope := state.scope

	if reason, yes := cancelReason(opts.Handle); yes {
		r.recordCancelled(ctx, state, opts, step, reason)
		return fmt.Errorf("%w: %s", core.ErrRunCancelled, reason)
	}

	listeners := r.verifier.StartPreListeners(ctx, step, scope)

	if err := r.promptForInputs(ctx, step, scope, opts, refresh); err != nil {
		reason, yes := cancelReason(opts.Handle)
		if !yes {
			reason = err.Error()
		}
		r.recordCancelled(ctx, state, opts, step, reason)
		return err
	}

	res := r.steps.Execute(ctx, step, scope)

	for name, val := range res.ExtractedVariables {
		scope.Vars[step.Name+"."+name] = val
	}

	res.VerificationResults = r.verifier.Collect(ctx, step, scope, listeners, func(msg string) {
		res.Warnings = append(res.Warnings, msg)
	})
	FinalizeStatus(res)

	if refresh != nil {
		res.FromCache = false
	} else if step.Cacheable {
		res.FromCache = true
	}

	scope.Results[step.ID] = res
	state.executedAt[step.ID] = r.clock()
	r.emitStepComplete(opts, res)
	return nil
}

// promptForInputs blocks the run on an input-required rendezvous when
// the step still references manual placeholders. Refresh executions
// honor the dependency's reuseManualInput flag: reuse the cache
// silently, or re-prompt with every field's cached value attached.
func (r *SuiteRunner) promptForInputs(ctx context.Context, step *core.TestStep, scope *Scope, opts RunOptions, refresh *core.Dependency) error {
	if !opts.Interactive || opts.Handle == nil {
		return nil
	}
	if refresh != nil && refresh.ReuseManualInput {
		return nil
	}
	fields := r.manualFields(step, scope)
	if len(fields) == 0 {
		return nil
	}

	reprompt := refresh != nil
	ask := make([]core.ManualInputField, 0, len(fields))
	for _, f := range fields {
		cached, inCache := scope.Inputs[f.Name]
		if inCache {
			if !reprompt {
				continue
			}
			f.CachedValue = cached
		}
		ask = append(ask, f)
	}
	if len(ask) == 0 {
		return nil
	}

	ch, err := opts.Handle.RequestInput()
	if err != nil {
		return err
	}
	opts.Handle.Emit(RunEvent{
		Type:     EventInputRequired,
		RunID:    opts.Handle.RunID(),
		StepID:   step.ID,
		StepName: step.Name,
		Fields:   ask,
	})
	logger.Info(ctx, "Waiting for manual input", tag.Step(step.Name), tag.Count(len(ask)))

	var timeout <-chan time.Time
	if r.inputTimeout > 0 {
		timer := time.NewTimer(r.inputTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case out := <-ch:
		if out.Err != nil {
			return out.Err
		}
		for k, v := range out.Values {
			scope.Inputs[k] = v
		}
		return nil
	case <-timeout:
		return fmt.Errorf("timed out waiting for manual input after %s", r.inputTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// manualFields returns the step's manual placeholders in order of first
// appearance across its URL, body, query values and header values,
// after env and step-variable resolution.
func (r *SuiteRunner) manualFields(step *core.TestStep, scope *Scope) []core.ManualInputField {
	res := scope.resolver(r.clock, nil)
	var fields []core.ManualInputField
	seen := make(map[string]bool)
	collect := func(text string) {
		if text == "" {
			return
		}
		for _, f := range ManualInputNames(res.ResolveNoManual(text)) {
			if seen[f.Name] {
				continue
			}
			seen[f.Name] = true
			fields = append(fields, f)
		}
	}
	collect(step.URL)
	collect(step.Body)
	for _, q := range step.QueryParams {
		collect(q.Value)
	}
	for _, h := range step.Headers {
		collect(h.Value)
	}
	return fields
}

// preMarkUnresolvable collects every manual placeholder across the
// suite into a defaults map and pre-marks steps that reference a
// placeholder with no default anywhere. Scheduled runs cannot prompt;
// dependents of a pre-marked step skip through the dependency gate.
func (r *SuiteRunner) preMarkUnresolvable(ctx context.Context, prep *PreparedExecution, state *runState, opts RunOptions) {
	res := state.scope.resolver(r.clock, nil)
	defaults := make(map[string]string)
	names := make(map[string][]string, len(prep.Steps))

	for i := range prep.Suite.Steps {
		step := &prep.Suite.Steps[i]
		seen := make(map[string]bool)
		collect := func(text string) {
			if text == "" {
				return
			}
			resolved := res.ResolveNoManual(text)
			for _, groups := range reManual.FindAllStringSubmatch(resolved, -1) {
				name := groups[1]
				if !seen[name] {
					seen[name] = true
					names[step.ID] = append(names[step.ID], name)
				}
				if _, ok := defaults[name]; !ok && strings.Contains(groups[0], ":") {
					defaults[name] = groups[2]
				}
			}
		}
		collect(step.URL)
		collect(step.Body)
		for _, q := range step.QueryParams {
			collect(q.Value)
		}
		for _, h := range step.Headers {
			collect(h.Value)
		}
	}

	for name, def := range defaults {
		if _, ok := state.scope.Inputs[name]; !ok {
			state.scope.Inputs[name] = def
		}
	}

	for i := range prep.Suite.Steps {
		step := &prep.Suite.Steps[i]
		for _, name := range names[step.ID] {
			if _, ok := state.scope.Inputs[name]; ok {
				continue
			}
			marked := &core.StepExecutionResult{
				StepID:       step.ID,
				StepName:     step.Name,
				Status:       core.StepSkipped,
				ErrorMessage: "Manual input required but no default provided (scheduled run)",
			}
			state.scope.Results[step.ID] = marked
			r.emitStepComplete(opts, marked)
			logger.Warn(ctx, "Step requires manual input with no default",
				tag.Step(step.Name), tag.Variable(name))
			break
		}
	}
}

func (r *SuiteRunner) recordCancelled(ctx context.Context, state *runState, opts RunOptions, step *core.TestStep, reason string) {
	res := &core.StepExecutionResult{
		StepID:       step.ID,
		StepName:     step.Name,
		Status:       core.StepError,
		ErrorMessage: fmt.Sprintf("Run cancelled: %s", reason),
	}
	state.scope.Results[step.ID] = res
	r.emitStepComplete(opts, res)
	logger.Info(ctx, "Run cancelled", tag.Step(step.Name), tag.Reason(reason))
}

func (r *SuiteRunner) emitStepComplete(opts RunOptions, res *core.StepExecutionResult) {
	if opts.Handle == nil {
		return
	}
	opts.Handle.Emit(RunEvent{Type: EventStepComplete, StepResult: res})
}

func cancelReason(h *RunHandle) (string, bool) {
	if h == nil {
		return "", false
	}
	return h.Cancelled()
}
