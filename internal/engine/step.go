package engine

import (
	"context"
	"fmt"
)

// StepKind tells whether a step only transforms values it receives or also
// reaches out to the outside world. The engine treats both kinds the same;
// the kind is surfaced in logs and traces.
type StepKind int

const (
	// KindTransform marks a step that is referentially transparent given its inputs.
	KindTransform StepKind = iota
	// KindEffect marks a step that performs external I/O.
	KindEffect
)

func (k StepKind) String() string {
	switch k {
	case KindEffect:
		return "effect"
	default:
		return "transform"
	}
}

// StepFunc computes a step's value from its declared inputs.
type StepFunc func(ctx context.Context, in Inputs) (any, error)

// Step is a named computation with an explicit list of dependency names.
// Each entry in Params is resolved, at plan time, to either a fixed parameter
// or the output of the step registered under that name.
type Step struct {
	Name   string
	Params []string
	Kind   StepKind
	Fn     StepFunc
}

// Inputs holds the resolved value of every declared parameter of a step.
type Inputs map[string]any

// Get returns the raw value bound to name.
func (in Inputs) Get(name string) (any, bool) {
	v, ok := in[name]
	return v, ok
}

// Input retrieves a declared input with type assertion. A nil value yields
// the zero value of T so optional results can flow between steps.
func Input[T any](in Inputs, name string) (T, error) {
	var zero T

	val, ok := in[name]
	if !ok {
		return zero, fmt.Errorf("input %q not declared", name)
	}
	if val == nil {
		return zero, nil
	}

	typed, ok := val.(T)
	if !ok {
		return zero, fmt.Errorf("input %q has wrong type (got %T, want %T)", name, val, zero)
	}
	return typed, nil
}

// Func0 builds a step without parameters from a typed function.
func Func0[R any](name string, fn func(ctx context.Context) (R, error)) Step {
	return Step{
		Name: name,
		Fn: func(ctx context.Context, _ Inputs) (any, error) {
			return fn(ctx)
		},
	}
}

// Func1 builds a single-parameter step from a typed function.
func Func1[A, R any](name, a string, fn func(ctx context.Context, a A) (R, error)) Step {
	return Step{
		Name:   name,
		Params: []string{a},
		Fn: func(ctx context.Context, in Inputs) (any, error) {
			av, err := Input[A](in, a)
			if err != nil {
				return nil, err
			}
			return fn(ctx, av)
		},
	}
}

// Func2 builds a two-parameter step from a typed function.
func Func2[A, B, R any](name, a, b string, fn func(ctx context.Context, a A, b B) (R, error)) Step {
	return Step{
		Name:   name,
		Params: []string{a, b},
		Fn: func(ctx context.Context, in Inputs) (any, error) {
			av, err := Input[A](in, a)
			if err != nil {
				return nil, err
			}
			bv, err := Input[B](in, b)
			if err != nil {
				return nil, err
			}
			return fn(ctx, av, bv)
		},
	}
}

// Func3 builds a three-parameter step from a typed function.
func Func3[A, B, C, R any](name, a, b, c string, fn func(ctx context.Context, a A, b B, c C) (R, error)) Step {
	return Step{
		Name:   name,
		Params: []string{a, b, c},
		Fn: func(ctx context.Context, in Inputs) (any, error) {
			av, err := Input[A](in, a)
			if err != nil {
				return nil, err
			}
			bv, err := Input[B](in, b)
			if err != nil {
				return nil, err
			}
			cv, err := Input[C](in, c)
			if err != nil {
				return nil, err
			}
			return fn(ctx, av, bv, cv)
		},
	}
}

// AsEffect returns a copy of the step marked as effecting.
func (s Step) AsEffect() Step {
	s.Kind = KindEffect
	return s
}

func (s Step) clone() Step {
	s.Params = append([]string(nil), s.Params...)
	return s
}
