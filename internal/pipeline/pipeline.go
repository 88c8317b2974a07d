// Package pipeline runs an author-ordered list of steps over a shared,
// growing context. Each step reads declared keys and returns an update that
// is merged into the context before the next step runs.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Melevir/opensource-watchman/internal/engine"
	"github.com/Melevir/opensource-watchman/internal/logger"
	"github.com/Melevir/opensource-watchman/internal/model"
	watchmanerrors "github.com/Melevir/opensource-watchman/pkg/errors"
)

// Update is the set of keys a step adds or overwrites.
type Update map[string]any

// Context is the accumulated key/value state of a pipeline run.
type Context map[string]any

// Get returns the raw value stored under key.
func (c Context) Get(key string) (any, bool) {
	v, ok := c[key]
	return v, ok
}

// Keys returns the context keys in sorted order.
func (c Context) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Value fetches a typed context value. Missing keys are an error.
func Value[T any](c Context, key string) (T, error) {
	return engine.Input[T](engine.Inputs(c), key)
}

// StepFunc computes a context update from the step's declared inputs.
type StepFunc func(ctx context.Context, in engine.Inputs) (Update, error)

// Step is one stage of a pipeline. Params are read from the context and
// Provides lists the keys the returned Update is expected to carry.
type Step struct {
	Name     string
	Params   []string
	Provides []string
	Kind     engine.StepKind
	Fn       StepFunc
}

// Pipeline is an ordered list of steps.
type Pipeline struct {
	steps  []Step
	logger *logger.Logger
	trace  *engine.Trace
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithLogger attaches a logger used for each step run.
func WithLogger(log *logger.Logger) Option {
	return func(p *Pipeline) {
		p.logger = log
	}
}

// WithTrace records every executed step into trace.
func WithTrace(trace *engine.Trace) Option {
	return func(p *Pipeline) {
		p.trace = trace
	}
}

// New builds a pipeline preserving the given order. Step names must be
// unique and non-empty.
func New(steps []Step, opts ...Option) (*Pipeline, error) {
	seen := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		if step.Name == "" {
			return nil, watchmanerrors.NewValidationError("steps", "step name cannot be empty", nil)
		}
		if step.Fn == nil {
			return nil, watchmanerrors.NewValidationError(step.Name, "step implementation is nil", nil)
		}
		if _, ok := seen[step.Name]; ok {
			return nil, watchmanerrors.NewDuplicateStepError(step.Name)
		}
		seen[step.Name] = struct{}{}
	}

	p := &Pipeline{steps: append([]Step(nil), steps...)}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Names returns step names in execution order.
func (p *Pipeline) Names() []string {
	names := make([]string, 0, len(p.steps))
	for _, step := range p.steps {
		names = append(names, step.Name)
	}
	return names
}

// Validate checks that every step can run given the fixed parameters. It
// reports a step overwriting a fixed parameter, a dependency cycle between
// steps, or a parameter that no earlier step provides.
func (p *Pipeline) Validate(fixed map[string]any) error {
	for _, step := range p.steps {
		for _, key := range step.Provides {
			if _, ok := fixed[key]; ok {
				return watchmanerrors.NewValidationError(step.Name, fmt.Sprintf("step provides %q which is a fixed parameter", key), nil)
			}
		}
	}

	graph, err := p.graph(fixed)
	if err != nil {
		return err
	}
	if err := graph.TopologicalSort(); err != nil {
		return err
	}

	available := make(map[string]struct{}, len(fixed))
	for key := range fixed {
		available[key] = struct{}{}
	}
	for i, step := range p.steps {
		for _, param := range step.Params {
			if _, ok := available[param]; ok {
				continue
			}
			detail := ""
			if later := p.providerAfter(i, param); later != "" {
				detail = fmt.Sprintf("provided later by step %q", later)
			}
			return watchmanerrors.NewUnresolvedParameterError(step.Name, param, detail)
		}
		for _, key := range step.Provides {
			available[key] = struct{}{}
		}
	}
	return nil
}

// graph links each consumer to the step it reads a parameter from: the
// nearest earlier provider, or any later provider when none came before.
func (p *Pipeline) graph(fixed map[string]any) (*engine.Graph, error) {
	graph := engine.NewGraph()
	for _, step := range p.steps {
		if _, err := graph.AddNode(step.Name); err != nil {
			return nil, err
		}
	}

	for i, step := range p.steps {
		for _, param := range step.Params {
			if _, ok := fixed[param]; ok {
				continue
			}
			providers := p.providersBefore(i, param)
			if len(providers) == 0 {
				providers = p.providersAfter(i, param)
			}
			for _, provider := range providers {
				if err := graph.AddEdge(provider, step.Name); err != nil {
					return nil, err
				}
			}
		}
	}
	return graph, nil
}

func (p *Pipeline) providersBefore(idx int, key string) []string {
	for i := idx - 1; i >= 0; i-- {
		if provides(p.steps[i], key) {
			return []string{p.steps[i].Name}
		}
	}
	return nil
}

func (p *Pipeline) providersAfter(idx int, key string) []string {
	var names []string
	for i := idx + 1; i < len(p.steps); i++ {
		if provides(p.steps[i], key) {
			names = append(names, p.steps[i].Name)
		}
	}
	return names
}

func (p *Pipeline) providerAfter(idx int, key string) string {
	if names := p.providersAfter(idx, key); len(names) > 0 {
		return names[0]
	}
	return ""
}

func provides(step Step, key string) bool {
	for _, k := range step.Provides {
		if k == key {
			return true
		}
	}
	return false
}

// Run validates the pipeline and executes its steps in order. The returned
// context holds the fixed parameters plus every merged update.
func (p *Pipeline) Run(ctx context.Context, fixed map[string]any) (Context, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := p.Validate(fixed); err != nil {
		return nil, err
	}

	state := make(Context, len(fixed))
	for k, v := range fixed {
		state[k] = v
	}

	p.logger.WithField("steps", len(p.steps)).Debug("pipeline started")

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return nil, watchmanerrors.NewStepExecutionError(step.Name, err)
		}

		in := make(engine.Inputs, len(step.Params))
		for _, param := range step.Params {
			v, ok := state[param]
			if !ok {
				return nil, watchmanerrors.NewUnresolvedParameterError(step.Name, param, "missing from context at run time")
			}
			in[param] = v
		}

		log := p.logger.WithFields(map[string]any{"step": step.Name, "kind": step.Kind.String()})
		start := time.Now()
		update, err := engine.Recover(func() (Update, error) {
			return step.Fn(ctx, in)
		})
		if err == nil {
			err = mergeUpdate(state, update, fixed)
		}
		duration := time.Since(start)

		entry := model.StepTrace{
			Step:      step.Name,
			Kind:      step.Kind.String(),
			Status:    model.StatusSuccess,
			Duration:  duration,
			Timestamp: time.Now(),
		}
		if err != nil {
			entry.Status = model.StatusFailed
			entry.Error = err
			p.trace.Record(entry)
			log.Error(err, "step failed")
			return nil, watchmanerrors.NewStepExecutionError(step.Name, err)
		}

		p.trace.Record(entry)
		log.WithFields(map[string]any{
			"duration": duration.String(),
			"updated":  len(update),
		}).Debug("step finished")
	}

	return state, nil
}

func mergeUpdate(state Context, update Update, fixed map[string]any) error {
	for key, value := range update {
		if _, ok := fixed[key]; ok {
			return watchmanerrors.NewValidationError(key, "update overwrites a fixed parameter", nil)
		}
		state[key] = value
	}
	return nil
}
