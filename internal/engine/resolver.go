package engine

import (
	watchmanerrors "github.com/Melevir/opensource-watchman/pkg/errors"
)

// Source classifies where a parameter value comes from.
type Source int

const (
	// SourceUnresolved means nothing can supply the parameter.
	SourceUnresolved Source = iota
	// SourceFixed means the parameter is a caller supplied fixed value.
	SourceFixed
	// SourceStep means the parameter is the output of another step.
	SourceStep
)

func (s Source) String() string {
	switch s {
	case SourceFixed:
		return "fixed"
	case SourceStep:
		return "step"
	default:
		return "unresolved"
	}
}

// Resolution is the classification of one declared parameter.
type Resolution struct {
	Param  string
	Source Source
}

// Resolve classifies every declared parameter of the named step. Fixed
// parameters win over steps registered under the same name.
func (r *Registry) Resolve(stepName string) ([]Resolution, error) {
	return r.snapshot().resolve(stepName)
}

func (s *snapshot) resolve(stepName string) ([]Resolution, error) {
	step, ok := s.steps[stepName]
	if !ok {
		return nil, watchmanerrors.NewUnresolvedParameterError(stepName, "", "no step registered under this name")
	}

	resolutions := make([]Resolution, 0, len(step.Params))
	for _, param := range step.Params {
		resolutions = append(resolutions, Resolution{Param: param, Source: s.source(param)})
	}
	return resolutions, nil
}

func (s *snapshot) source(name string) Source {
	if _, ok := s.fixed[name]; ok {
		return SourceFixed
	}
	if _, ok := s.steps[name]; ok {
		return SourceStep
	}
	return SourceUnresolved
}
