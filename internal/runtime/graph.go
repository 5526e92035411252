package runtime

import (
	"container/heap"
	"fmt"

	"github.com/samber/lo"

	"github.com/probeflow/probeflow/internal/core"
)

// DepGraph maps each step id to the ids of the steps it depends on.
type DepGraph map[string][]string

// BuildDepGraph collects predecessor edges from the steps' dependency
// declarations. Edges referencing ids outside the step set are dropped;
// definition validation reports those separately.
func BuildDepGraph(steps []core.TestStep) DepGraph {
	known := make(map[string]struct{}, len(steps))
	for i := range steps {
		known[steps[i].ID] = struct{}{}
	}
	graph := make(DepGraph, len(steps))
	for i := range steps {
		step := &steps[i]
		for _, dep := range step.Dependencies {
			if _, ok := known[dep.DependsOnStepID]; !ok {
				continue
			}
			graph[step.ID] = append(graph[step.ID], dep.DependsOnStepID)
		}
	}
	return graph
}

// ExecutionOrder produces the deterministic top-level execution order.
// Kahn's algorithm drains a min-priority queue keyed by sortOrder with
// step name as the tie break, so ready steps always emit in the same
// order. Steps marked dependencyOnly are filtered from the result after
// sorting; the executor materializes them on demand.
func ExecutionOrder(steps []core.TestStep) ([]string, error) {
	stepByID := stepIndex(steps)
	order, err := kahnSort(stepByID, BuildDepGraph(steps))
	if err != nil {
		return nil, err
	}
	return lo.Filter(order, func(id string, _ int) bool {
		return !stepByID[id].DependencyOnly
	}), nil
}

// SubgraphOrder produces the minimal order needed to execute one target
// step: its reflexive-transitive predecessors, sorted the same way as
// the full order. dependencyOnly steps are kept since everything
// collected is required.
func SubgraphOrder(steps []core.TestStep, targetID string) ([]string, error) {
	stepByID := stepIndex(steps)
	if _, ok := stepByID[targetID]; !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrStepNotFound, targetID)
	}
	graph := BuildDepGraph(steps)

	include := map[string]*core.TestStep{targetID: stepByID[targetID]}
	queue := []string{targetID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, pred := range graph[id] {
			if _, seen := include[pred]; seen {
				continue
			}
			include[pred] = stepByID[pred]
			queue = append(queue, pred)
		}
	}
	return kahnSort(include, graph)
}

// kahnSort topologically sorts the given steps. The dependency editor
// rejects cycles at save time, so a leftover here is a defect surfaced
// as an error rather than a panic.
func kahnSort(stepByID map[string]*core.TestStep, graph DepGraph) ([]string, error) {
	inDegree := make(map[string]int, len(stepByID))
	successors := make(map[string][]string, len(stepByID))
	for id := range stepByID {
		inDegree[id] = 0
	}
	for id, preds := range graph {
		if _, ok := stepByID[id]; !ok {
			continue
		}
		for _, pred := range preds {
			if _, ok := stepByID[pred]; !ok {
				continue
			}
			inDegree[id]++
			successors[pred] = append(successors[pred], id)
		}
	}

	ready := &readyQueue{}
	heap.Init(ready)
	for id, deg := range inDegree {
		if deg == 0 {
			heap.Push(ready, stepByID[id])
		}
	}

	order := make([]string, 0, len(stepByID))
	for ready.Len() > 0 {
		step := heap.Pop(ready).(*core.TestStep)
		order = append(order, step.ID)
		for _, succ := range successors[step.ID] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				heap.Push(ready, stepByID[succ])
			}
		}
	}
	if len(order) != len(stepByID) {
		return nil, core.ErrCircularDependency
	}
	return order, nil
}

func stepIndex(steps []core.TestStep) map[string]*core.TestStep {
	m := make(map[string]*core.TestStep, len(steps))
	for i := range steps {
		m[steps[i].ID] = &steps[i]
	}
	return m
}

// readyQueue is a min-heap of ready steps keyed by (sortOrder, name).
type readyQueue []*core.TestStep

func (q readyQueue) Len() int { return len(q) }

func (q readyQueue) Less(i, j int) bool {
	if q[i].SortOrder != q[j].SortOrder {
		return q[i].SortOrder < q[j].SortOrder
	}
	return q[i].Name < q[j].Name
}

func (q readyQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *readyQueue) Push(x any) { *q = append(*q, x.(*core.TestStep)) }

func (q *readyQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
