package engine

import (
	"fmt"
	"sort"
	"strings"

	watchmanerrors "github.com/Melevir/opensource-watchman/pkg/errors"
)

// ExecutionPlan is the ordered set of steps needed to produce a requested
// output set.
type ExecutionPlan struct {
	// Requested holds the requested names after deduplication.
	Requested []string
	// Steps lists every needed step, dependencies before dependents.
	Steps []string
	// Levels groups Steps so that each step only depends on earlier levels.
	Levels [][]string
}

// Len reports how many steps the plan executes.
func (p *ExecutionPlan) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Steps)
}

// String renders a human readable summary of the plan.
func (p *ExecutionPlan) String() string {
	if p == nil {
		return ""
	}

	var b strings.Builder
	for i, level := range p.Levels {
		fmt.Fprintf(&b, "Level %d (%d steps): %s\n", i, len(level), strings.Join(level, ", "))
	}
	return b.String()
}

// BuildPlan walks the dependencies of the requested names and returns the
// minimal execution plan producing them.
func (r *Registry) BuildPlan(requested ...string) (*ExecutionPlan, error) {
	return r.snapshot().plan(requested)
}

const (
	unvisited = iota
	inProgress
	done
)

func (s *snapshot) plan(requested []string) (*ExecutionPlan, error) {
	targets, err := s.orderRequested(requested)
	if err != nil {
		return nil, err
	}

	state := make(map[string]int, len(s.steps))
	var path []string
	var order []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case inProgress:
			idx := indexOf(path, name)
			cycle := append(append([]string{}, path[idx:]...), name)
			return watchmanerrors.NewCyclicDependencyError(cycle)
		}

		state[name] = inProgress
		path = append(path, name)

		for _, param := range s.steps[name].Params {
			switch s.source(param) {
			case SourceFixed:
				continue
			case SourceStep:
				if err := visit(param); err != nil {
					return err
				}
			default:
				return watchmanerrors.NewUnresolvedParameterError(name, param, "")
			}
		}

		path = path[:len(path)-1]
		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, name := range targets {
		if s.source(name) != SourceStep {
			continue
		}
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	levels, err := s.levels(order)
	if err != nil {
		return nil, err
	}

	return &ExecutionPlan{
		Requested: targets,
		Steps:     order,
		Levels:    levels,
	}, nil
}

// orderRequested deduplicates requested names, puts registered steps in
// registration order and fails on names nothing can produce.
func (s *snapshot) orderRequested(requested []string) ([]string, error) {
	seen := make(map[string]struct{}, len(requested))
	var steps, fixed []string

	for _, name := range requested {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}

		switch s.source(name) {
		case SourceFixed:
			fixed = append(fixed, name)
		case SourceStep:
			steps = append(steps, name)
		default:
			return nil, watchmanerrors.NewUnresolvedParameterError(name, "", "requested name is neither a step nor a fixed parameter")
		}
	}

	sort.SliceStable(steps, func(i, j int) bool {
		return s.index[steps[i]] < s.index[steps[j]]
	})
	return append(steps, fixed...), nil
}

func (s *snapshot) levels(order []string) ([][]string, error) {
	graph := NewGraph()
	for _, name := range order {
		if _, err := graph.AddNode(name); err != nil {
			return nil, err
		}
	}
	for _, name := range order {
		for _, param := range s.steps[name].Params {
			if s.source(param) != SourceStep {
				continue
			}
			if err := graph.AddEdge(param, name); err != nil {
				return nil, err
			}
		}
	}
	if err := graph.TopologicalSort(); err != nil {
		return nil, err
	}
	return graph.Levels, nil
}
