package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	watchmanerrors "github.com/Melevir/opensource-watchman/pkg/errors"
)

// constStep returns a step producing its own name, depending on params.
func constStep(name string, params ...string) Step {
	return Step{
		Name:   name,
		Params: params,
		Fn: func(context.Context, Inputs) (any, error) {
			return name, nil
		},
	}
}

func indexIn(t *testing.T, order []string, name string) int {
	t.Helper()
	for i, v := range order {
		if v == name {
			return i
		}
	}
	t.Fatalf("%q not in plan %v", name, order)
	return -1
}

func TestBuildPlan_DependenciesBeforeDependents(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.BindFixedParameters(map[string]any{"owner": "acme"})
	require.NoError(t, r.Register(
		constStep("report", "rules", "summary"),
		constStep("rules", "data"),
		constStep("summary", "data", "owner"),
		constStep("data", "owner"),
		constStep("unrelated"),
	))

	plan, err := r.BuildPlan("report")
	require.NoError(t, err)
	require.Equal(t, []string{"report"}, plan.Requested)
	require.ElementsMatch(t, []string{"report", "rules", "summary", "data"}, plan.Steps)
	require.NotContains(t, plan.Steps, "unrelated")

	for _, name := range plan.Steps {
		step, ok := r.Lookup(name)
		require.True(t, ok)
		for _, param := range step.Params {
			if param == "owner" {
				continue
			}
			require.Less(t, indexIn(t, plan.Steps, param), indexIn(t, plan.Steps, name))
		}
	}

	require.Equal(t, [][]string{{"data"}, {"rules", "summary"}, {"report"}}, plan.Levels)
}

func TestBuildPlan_RandomDAGsAreTopological(t *testing.T) {
	t.Parallel()

	for seed := 0; seed < 20; seed++ {
		r := NewRegistry()
		var names []string
		for i := 0; i < 15; i++ {
			name := fmt.Sprintf("s%02d", i)
			var params []string
			// only depend on lower indexes so the graph stays acyclic
			for j := 0; j < i; j++ {
				if (i*7+j*3+seed)%4 == 0 {
					params = append(params, fmt.Sprintf("s%02d", j))
				}
			}
			require.NoError(t, r.Register(constStep(name, params...)))
			names = append(names, name)
		}

		plan, err := r.BuildPlan(names...)
		require.NoError(t, err)
		require.Len(t, plan.Steps, len(names))

		for _, name := range plan.Steps {
			step, _ := r.Lookup(name)
			for _, param := range step.Params {
				require.Less(t, indexIn(t, plan.Steps, param), indexIn(t, plan.Steps, name))
			}
		}
	}
}

func TestBuildPlan_DeduplicatesSharedDependencies(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(
		constStep("base"),
		constStep("left", "base"),
		constStep("right", "base"),
		constStep("top", "left", "right"),
	))

	plan, err := r.BuildPlan("top", "left", "top")
	require.NoError(t, err)
	require.Equal(t, []string{"base", "left", "right", "top"}, plan.Steps)
	require.Equal(t, []string{"left", "top"}, plan.Requested)
}

func TestBuildPlan_IsDeterministic(t *testing.T) {
	t.Parallel()

	build := func() *ExecutionPlan {
		r := NewRegistry()
		require.NoError(t, r.Register(
			constStep("a"),
			constStep("b", "a"),
			constStep("c", "a"),
			constStep("d", "c", "b"),
		))
		plan, err := r.BuildPlan("d", "c")
		require.NoError(t, err)
		return plan
	}

	first := build()
	for i := 0; i < 10; i++ {
		require.Equal(t, first, build())
	}
}

func TestBuildPlan_DetectsTwoStepCycle(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(constStep("A", "B"), constStep("B", "A")))

	plan, err := r.BuildPlan("A")
	require.Nil(t, plan)

	var cycleErr *watchmanerrors.CyclicDependencyError
	require.ErrorAs(t, err, &cycleErr)
	require.Equal(t, []string{"A", "B", "A"}, cycleErr.Cycle)
}

func TestBuildPlan_DetectsSelfCycle(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(constStep("loop", "loop")))

	_, err := r.BuildPlan("loop")
	var cycleErr *watchmanerrors.CyclicDependencyError
	require.ErrorAs(t, err, &cycleErr)
	require.Contains(t, cycleErr.Cycle, "loop")
}

func TestBuildPlan_FixedParameterBreaksCycle(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(constStep("A", "B"), constStep("B", "A")))
	r.BindFixedParameters(map[string]any{"B": "fixed"})

	plan, err := r.BuildPlan("A")
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, plan.Steps)
}

func TestBuildPlan_UnresolvedParameter(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(constStep("b", "x")))

	_, err := r.BuildPlan("b")
	var unresolved *watchmanerrors.UnresolvedParameterError
	require.ErrorAs(t, err, &unresolved)
	require.Equal(t, "b", unresolved.Step)
	require.Equal(t, "x", unresolved.Param)
}

func TestBuildPlan_UnknownRequestedName(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, err := r.BuildPlan("ghost")

	var unresolved *watchmanerrors.UnresolvedParameterError
	require.ErrorAs(t, err, &unresolved)
	require.Equal(t, "ghost", unresolved.Step)
	require.Empty(t, unresolved.Param)
}

func TestBuildPlan_RequestedFixedParameterNeedsNoSteps(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.BindFixedParameters(map[string]any{"owner": "acme"})

	plan, err := r.BuildPlan("owner")
	require.NoError(t, err)
	require.Empty(t, plan.Steps)
	require.Equal(t, []string{"owner"}, plan.Requested)
}

func TestExecutionPlan_String(t *testing.T) {
	t.Parallel()

	plan := &ExecutionPlan{Levels: [][]string{{"a", "b"}, {"c"}}}
	require.Equal(t, "Level 0 (2 steps): a, b\nLevel 1 (1 steps): c\n", plan.String())

	var nilPlan *ExecutionPlan
	require.Equal(t, "", nilPlan.String())
	require.Equal(t, 0, nilPlan.Len())
}
