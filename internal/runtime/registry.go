package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/probeflow/probeflow/internal/core"
)

// InputOutcome is what a pending manual-input rendezvous resolves to:
// either the submitted values or a cancellation error.
type InputOutcome struct {
	Values map[string]string
	Err    error
}

// Registry tracks live runs in one process: each run's event stream,
// manual-input cache and at most one pending input rendezvous.
type Registry struct {
	mu   sync.Mutex
	runs map[string]*liveRun
}

type liveRun struct {
	handle *RunHandle
}

// RunHandle is the executor-facing side of one registered run.
type RunHandle struct {
	runID  string
	stream *eventStream

	mu           sync.Mutex
	inputs       map[string]string
	pending      chan InputOutcome
	cancelled    bool
	cancelReason string
}

// NewRegistry creates an empty run registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*liveRun)}
}

// Register adds a run and returns its handle. Registering an id twice
// is a caller defect and returns an error.
func (r *Registry) Register(runID string) (*RunHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[runID]; ok {
		return nil, fmt.Errorf("run %s is already registered", runID)
	}
	h := &RunHandle{
		runID:  runID,
		stream: newEventStream(),
		inputs: make(map[string]string),
	}
	r.runs[runID] = &liveRun{handle: h}
	return h, nil
}

// Unregister removes all state for a run, cancelling any outstanding
// input rendezvous and closing the event stream.
func (r *Registry) Unregister(runID string) {
	r.mu.Lock()
	live, ok := r.runs[runID]
	delete(r.runs, runID)
	r.mu.Unlock()
	if !ok {
		return
	}
	live.handle.cancel("run unregistered")
	live.handle.stream.Close()
}

// Subscribe attaches to a run's event stream after the given sequence.
// Retained events past that point are replayed before live delivery.
func (r *Registry) Subscribe(ctx context.Context, runID string, afterSeq int64) (func() (RunEvent, bool), error) {
	h, err := r.handle(runID)
	if err != nil {
		return nil, err
	}
	return h.stream.Subscribe(ctx, afterSeq), nil
}

// SubmitInput merges the submitted values into the run's manual-input
// cache and completes a pending rendezvous if one is outstanding.
func (r *Registry) SubmitInput(runID string, values map[string]string) error {
	h, err := r.handle(runID)
	if err != nil {
		return err
	}
	h.submit(values)
	return nil
}

// Cancel cancels a run: any blocked input prompt unblocks with
// ErrRunCancelled and the executor stops before its next step.
func (r *Registry) Cancel(runID, reason string) error {
	h, err := r.handle(runID)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = "cancelled by caller"
	}
	h.cancel(reason)
	return nil
}

// Events returns a copy of the run's retained event history.
func (r *Registry) Events(runID string) ([]RunEvent, error) {
	h, err := r.handle(runID)
	if err != nil {
		return nil, err
	}
	return h.stream.Events(), nil
}

func (r *Registry) handle(runID string) (*RunHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	live, ok := r.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	return live.handle, nil
}

// Emit publishes an event on the run's stream and returns it with its
// assigned sequence.
func (h *RunHandle) Emit(ev RunEvent) RunEvent {
	return h.stream.Publish(ev)
}

// Close ends the run's event stream. Retained events stay available to
// late subscribers until the run is unregistered.
func (h *RunHandle) Close() {
	h.stream.Close()
}

// RunID returns the handle's run id.
func (h *RunHandle) RunID() string {
	return h.runID
}

// Inputs returns a snapshot of the manual-input cache.
func (h *RunHandle) Inputs() map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]string, len(h.inputs))
	for k, v := range h.inputs {
		out[k] = v
	}
	return out
}

// RequestInput opens the run's single input rendezvous and returns its
// receive side. At most one request may be outstanding per run.
func (h *RunHandle) RequestInput() (<-chan InputOutcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		ch := make(chan InputOutcome, 1)
		ch <- InputOutcome{Err: fmt.Errorf("%w: %s", core.ErrRunCancelled, h.cancelReason)}
		return ch, nil
	}
	if h.pending != nil {
		return nil, core.ErrInputPending
	}
	h.pending = make(chan InputOutcome, 1)
	return h.pending, nil
}

// Cancelled reports whether the run was cancelled and why.
func (h *RunHandle) Cancelled() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelReason, h.cancelled
}

func (h *RunHandle) submit(values map[string]string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	merged := make(map[string]string, len(values))
	for k, v := range values {
		h.inputs[k] = v
		merged[k] = v
	}
	if h.pending != nil {
		h.pending <- InputOutcome{Values: merged}
		h.pending = nil
	}
}

func (h *RunHandle) cancel(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return
	}
	h.cancelled = true
	h.cancelReason = reason
	if h.pending != nil {
		h.pending <- InputOutcome{Err: fmt.Errorf("%w: %s", core.ErrRunCancelled, reason)}
		h.pending = nil
	}
}
