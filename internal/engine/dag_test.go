package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	watchmanerrors "github.com/Melevir/opensource-watchman/pkg/errors"
)

func buildGraph(t *testing.T, nodes []string, edges [][2]string) *Graph {
	t.Helper()

	graph := NewGraph()
	for _, id := range nodes {
		_, err := graph.AddNode(id)
		require.NoError(t, err)
	}
	for _, edge := range edges {
		require.NoError(t, graph.AddEdge(edge[0], edge[1]))
	}
	return graph
}

func TestTopologicalSort_GeneratesLevels(t *testing.T) {
	t.Parallel()

	graph := buildGraph(t,
		[]string{"api", "readme", "badges"},
		[][2]string{{"api", "readme"}, {"readme", "badges"}},
	)

	require.NoError(t, graph.TopologicalSort())
	require.Equal(t, [][]string{{"api"}, {"readme"}, {"badges"}}, graph.Levels)
}

func TestTopologicalSort_AllowsParallelSteps(t *testing.T) {
	t.Parallel()

	graph := buildGraph(t,
		[]string{"issues", "pull_requests", "report"},
		[][2]string{{"issues", "report"}, {"pull_requests", "report"}},
	)

	require.NoError(t, graph.TopologicalSort())
	require.Len(t, graph.Levels, 2)
	require.Equal(t, []string{"issues", "pull_requests"}, graph.Levels[0])
	require.Equal(t, []string{"report"}, graph.Levels[1])
}

func TestTopologicalSort_LevelsFollowInsertionOrder(t *testing.T) {
	t.Parallel()

	graph := buildGraph(t,
		[]string{"root", "zeta", "alpha"},
		[][2]string{{"root", "zeta"}, {"root", "alpha"}},
	)

	require.NoError(t, graph.TopologicalSort())
	require.Equal(t, []string{"zeta", "alpha"}, graph.Levels[1])
}

func TestTopologicalSort_DetectsCycles(t *testing.T) {
	t.Parallel()

	graph := buildGraph(t,
		[]string{"a", "b", "c"},
		[][2]string{{"c", "a"}, {"a", "b"}, {"b", "c"}},
	)

	err := graph.TopologicalSort()
	require.Error(t, err)

	var cycleErr *watchmanerrors.CyclicDependencyError
	require.ErrorAs(t, err, &cycleErr)
	require.NotEmpty(t, cycleErr.Cycle)
	require.Equal(t, cycleErr.Cycle[0], cycleErr.Cycle[len(cycleErr.Cycle)-1])
	require.Nil(t, graph.Levels)
}

func TestDetectCycle_NoCycle(t *testing.T) {
	t.Parallel()

	graph := buildGraph(t, []string{"a", "b"}, [][2]string{{"a", "b"}})
	require.Nil(t, graph.DetectCycle())
}

func TestAddNode_DuplicateStep(t *testing.T) {
	t.Parallel()

	graph := NewGraph()
	_, err := graph.AddNode("step1")
	require.NoError(t, err)

	_, err = graph.AddNode("step1")
	require.Error(t, err)
	var dupErr *watchmanerrors.DuplicateStepError
	require.ErrorAs(t, err, &dupErr)
	require.Equal(t, "step1", dupErr.Name)
}

func TestAddNode_EmptyName(t *testing.T) {
	t.Parallel()

	_, err := NewGraph().AddNode("")
	var valErr *watchmanerrors.ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestAddNode_InitializesNodesMapIfNil(t *testing.T) {
	t.Parallel()

	graph := &Graph{}
	require.Nil(t, graph.Nodes)

	node, err := graph.AddNode("step1")
	require.NoError(t, err)
	require.NotNil(t, graph.Nodes)
	require.Equal(t, "step1", node.ID)
}

func TestAddEdge_UnknownEndpoints(t *testing.T) {
	t.Parallel()

	graph := buildGraph(t, []string{"known"}, nil)

	var valErr *watchmanerrors.ValidationError
	require.ErrorAs(t, graph.AddEdge("unknown", "known"), &valErr)
	require.ErrorAs(t, graph.AddEdge("known", "unknown"), &valErr)
}

func TestAddEdge_IgnoresDuplicateEdges(t *testing.T) {
	t.Parallel()

	graph := buildGraph(t, []string{"step1", "step2"}, [][2]string{{"step1", "step2"}, {"step1", "step2"}})

	node1 := graph.Nodes["step1"]
	node2 := graph.Nodes["step2"]
	require.Len(t, node1.Dependents, 1)
	require.Contains(t, node1.Dependents, node2)
	require.Contains(t, node2.DependsOn, node1)
}
