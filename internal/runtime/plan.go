package runtime

import (
	"github.com/probeflow/probeflow/internal/core"
)

// PreparedExecution is a suite compiled for one run: the top-level
// execution order, the step index and the environment to run against.
type PreparedExecution struct {
	Suite       *core.TestSuite
	Environment *core.Environment
	Order       []string
	Steps       map[string]*core.TestStep
}

// Prepare compiles a suite against an environment. A non-empty
// targetStepID narrows the order to the dependency subgraph of that
// step, keeping dependencyOnly steps the target needs.
func Prepare(suite *core.TestSuite, env *core.Environment, targetStepID string) (*PreparedExecution, error) {
	var (
		order []string
		err   error
	)
	if targetStepID != "" {
		order, err = SubgraphOrder(suite.Steps, targetStepID)
	} else {
		order, err = ExecutionOrder(suite.Steps)
	}
	if err != nil {
		return nil, err
	}
	return &PreparedExecution{
		Suite:       suite,
		Environment: env,
		Order:       order,
		Steps:       suite.StepMap(),
	}, nil
}
