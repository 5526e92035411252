package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probeflow/probeflow/internal/core"
)

func step(id string, sortOrder int, deps ...string) core.TestStep {
	s := core.TestStep{ID: id, Name: "step-" + id, Method: "GET", URL: "/" + id, SortOrder: sortOrder}
	for _, d := range deps {
		s.Dependencies = append(s.Dependencies, core.Dependency{DependsOnStepID: d, UseCache: true})
	}
	return s
}

func TestExecutionOrder(t *testing.T) {
	t.Parallel()

	t.Run("RespectsDependencies", func(t *testing.T) {
		steps := []core.TestStep{
			step("c", 1, "b"),
			step("b", 2, "a"),
			step("a", 3),
		}
		order, err := ExecutionOrder(steps)
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b", "c"}, order)
	})
	t.Run("SortOrderBreaksTies", func(t *testing.T) {
		steps := []core.TestStep{
			step("z", 3),
			step("m", 1),
			step("a", 2),
		}
		order, err := ExecutionOrder(steps)
		require.NoError(t, err)
		require.Equal(t, []string{"m", "a", "z"}, order)
	})
	t.Run("NameBreaksEqualSortOrder", func(t *testing.T) {
		steps := []core.TestStep{
			step("b", 1),
			step("a", 1),
		}
		order, err := ExecutionOrder(steps)
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b"}, order)
	})
	t.Run("DeterministicAcrossInputPermutations", func(t *testing.T) {
		steps := []core.TestStep{
			step("a", 1),
			step("b", 2, "a"),
			step("c", 3, "a"),
			step("d", 4, "b", "c"),
			step("e", 5),
		}
		want, err := ExecutionOrder(steps)
		require.NoError(t, err)
		for i := 0; i < len(steps); i++ {
			rotated := append(append([]core.TestStep{}, steps[i:]...), steps[:i]...)
			got, err := ExecutionOrder(rotated)
			require.NoError(t, err)
			require.Equal(t, want, got)
		}
	})
	t.Run("FiltersDependencyOnly", func(t *testing.T) {
		login := step("login", 1)
		login.DependencyOnly = true
		steps := []core.TestStep{
			login,
			step("orders", 2, "login"),
		}
		order, err := ExecutionOrder(steps)
		require.NoError(t, err)
		require.Equal(t, []string{"orders"}, order)
	})
	t.Run("CycleIsFatal", func(t *testing.T) {
		steps := []core.TestStep{
			step("a", 1, "b"),
			step("b", 2, "a"),
		}
		_, err := ExecutionOrder(steps)
		require.ErrorIs(t, err, core.ErrCircularDependency)
	})
	t.Run("UnknownDependencyIgnored", func(t *testing.T) {
		steps := []core.TestStep{step("a", 1, "ghost")}
		order, err := ExecutionOrder(steps)
		require.NoError(t, err)
		require.Equal(t, []string{"a"}, order)
	})
	t.Run("Empty", func(t *testing.T) {
		order, err := ExecutionOrder(nil)
		require.NoError(t, err)
		require.Empty(t, order)
	})
}

func TestSubgraphOrder(t *testing.T) {
	t.Parallel()

	steps := []core.TestStep{
		step("login", 1),
		step("createUser", 2, "login"),
		step("createOrder", 3, "createUser"),
		step("unrelated", 4),
	}

	t.Run("MinimalPrefix", func(t *testing.T) {
		order, err := SubgraphOrder(steps, "createOrder")
		require.NoError(t, err)
		require.Equal(t, []string{"login", "createUser", "createOrder"}, order)
	})
	t.Run("TargetWithoutDependencies", func(t *testing.T) {
		order, err := SubgraphOrder(steps, "unrelated")
		require.NoError(t, err)
		require.Equal(t, []string{"unrelated"}, order)
	})
	t.Run("KeepsDependencyOnlySteps", func(t *testing.T) {
		login := step("login", 1)
		login.DependencyOnly = true
		sub := []core.TestStep{login, step("orders", 2, "login")}
		order, err := SubgraphOrder(sub, "orders")
		require.NoError(t, err)
		require.Equal(t, []string{"login", "orders"}, order)
	})
	t.Run("DiamondCollapsesOnce", func(t *testing.T) {
		diamond := []core.TestStep{
			step("base", 1),
			step("left", 2, "base"),
			step("right", 3, "base"),
			step("top", 4, "left", "right"),
		}
		order, err := SubgraphOrder(diamond, "top")
		require.NoError(t, err)
		require.Equal(t, []string{"base", "left", "right", "top"}, order)
	})
	t.Run("UnknownTarget", func(t *testing.T) {
		_, err := SubgraphOrder(steps, "ghost")
		require.ErrorIs(t, err, core.ErrStepNotFound)
	})
}

func TestBuildDepGraph(t *testing.T) {
	t.Parallel()

	steps := []core.TestStep{
		step("a", 1),
		step("b", 2, "a", "ghost"),
	}
	graph := BuildDepGraph(steps)
	require.Equal(t, DepGraph{"b": {"a"}}, graph)
}
