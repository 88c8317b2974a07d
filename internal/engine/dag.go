package engine

import (
	"fmt"
	"sort"

	watchmanerrors "github.com/Melevir/opensource-watchman/pkg/errors"
)

// Node represents a vertex in the dependency graph.
type Node struct {
	ID         string
	DependsOn  []*Node
	Dependents []*Node
}

// Graph is a directed acyclic graph over step names. Nodes keep insertion
// order so levels are reproducible for identical inputs.
type Graph struct {
	Nodes  map[string]*Node
	Levels [][]string

	order []string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{Nodes: make(map[string]*Node)}
}

// AddNode inserts a vertex.
func (g *Graph) AddNode(id string) (*Node, error) {
	if id == "" {
		return nil, watchmanerrors.NewValidationError("steps", "step name cannot be empty", nil)
	}

	if g.Nodes == nil {
		g.Nodes = make(map[string]*Node)
	}

	if _, exists := g.Nodes[id]; exists {
		return nil, watchmanerrors.NewDuplicateStepError(id)
	}

	node := &Node{ID: id}
	g.Nodes[id] = node
	g.order = append(g.order, id)
	return node, nil
}

// AddEdge records that `to` depends on `from`.
func (g *Graph) AddEdge(from, to string) error {
	source, ok := g.Nodes[from]
	if !ok {
		return watchmanerrors.NewValidationError("steps", fmt.Sprintf("unknown dependency %q", from), nil)
	}

	target, ok := g.Nodes[to]
	if !ok {
		return watchmanerrors.NewValidationError("steps", fmt.Sprintf("unknown dependency target %q", to), nil)
	}

	for _, existing := range source.Dependents {
		if existing == target {
			return nil
		}
	}

	source.Dependents = append(source.Dependents, target)
	target.DependsOn = append(target.DependsOn, source)
	return nil
}

// TopologicalSort computes the DAG levels using Kahn's algorithm. Every level
// only contains nodes whose dependencies all sit in earlier levels.
func (g *Graph) TopologicalSort() error {
	indegree := make(map[string]int, len(g.Nodes))
	for id, node := range g.Nodes {
		indegree[id] = len(node.DependsOn)
	}

	var queue []string
	for _, id := range g.order {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	position := g.positions()
	processed := 0
	var levels [][]string

	for len(queue) > 0 {
		currentLevel := queue
		levels = append(levels, append([]string(nil), currentLevel...))

		var nextLevel []string
		for _, id := range currentLevel {
			processed++
			for _, dependent := range g.Nodes[id].Dependents {
				indegree[dependent.ID]--
				if indegree[dependent.ID] == 0 {
					nextLevel = append(nextLevel, dependent.ID)
				}
			}
		}

		sortByPosition(nextLevel, position)
		queue = nextLevel
	}

	if processed != len(g.Nodes) {
		return watchmanerrors.NewCyclicDependencyError(g.DetectCycle())
	}

	g.Levels = levels
	return nil
}

// DetectCycle returns the nodes participating in a dependency cycle, or nil
// if no cycle exists. The returned path starts and ends with the same node.
func (g *Graph) DetectCycle() []string {
	visiting := make(map[string]bool, len(g.Nodes))
	visited := make(map[string]bool, len(g.Nodes))
	var stack []string

	var cycle []string
	var dfs func(string) bool
	dfs = func(id string) bool {
		visiting[id] = true
		stack = append(stack, id)

		for _, dep := range g.Nodes[id].DependsOn {
			if visited[dep.ID] {
				continue
			}
			if visiting[dep.ID] {
				idx := indexOf(stack, dep.ID)
				if idx >= 0 {
					cycle = append([]string{}, stack[idx:]...)
					cycle = append(cycle, dep.ID)
				}
				return true
			}
			if dfs(dep.ID) {
				return true
			}
		}

		visiting[id] = false
		visited[id] = true
		stack = stack[:len(stack)-1]
		return false
	}

	for _, id := range g.order {
		if visited[id] {
			continue
		}
		if dfs(id) {
			break
		}
	}

	return cycle
}

func (g *Graph) positions() map[string]int {
	position := make(map[string]int, len(g.order))
	for i, id := range g.order {
		position[id] = i
	}
	return position
}

func sortByPosition(ids []string, position map[string]int) {
	sort.SliceStable(ids, func(i, j int) bool {
		return position[ids[i]] < position[ids[j]]
	})
}

func indexOf(slice []string, target string) int {
	for i, v := range slice {
		if v == target {
			return i
		}
	}
	return -1
}
