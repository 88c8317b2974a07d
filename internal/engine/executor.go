package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/Melevir/opensource-watchman/internal/logger"
	"github.com/Melevir/opensource-watchman/internal/model"
	watchmanerrors "github.com/Melevir/opensource-watchman/pkg/errors"
)

// Results maps requested (and optionally intermediate) names to values.
type Results map[string]any

// Names returns the result keys in sorted order.
func (r Results) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Value fetches a typed result.
func Value[T any](r Results, name string) (T, error) {
	return Input[T](Inputs(r), name)
}

// Trace collects per-step records of an evaluation. It is safe for
// concurrent use.
type Trace struct {
	mu    sync.Mutex
	steps []model.StepTrace
}

// Record appends one entry. A nil Trace ignores it.
func (t *Trace) Record(entry model.StepTrace) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, entry)
}

// Steps returns a copy of the recorded entries in completion order.
func (t *Trace) Steps() []model.StepTrace {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]model.StepTrace(nil), t.steps...)
}

type calculateOptions struct {
	intermediates bool
	concurrency   int
	trace         *Trace
}

// CalculateOption tunes a single Calculate call.
type CalculateOption func(*calculateOptions)

// WithIntermediates returns every value computed during the call instead of
// only the requested ones.
func WithIntermediates() CalculateOption {
	return func(o *calculateOptions) {
		o.intermediates = true
	}
}

// WithConcurrency runs independent steps of a plan level on up to n
// goroutines. n <= 1 keeps evaluation sequential.
func WithConcurrency(n int) CalculateOption {
	return func(o *calculateOptions) {
		o.concurrency = n
	}
}

// WithTrace records each executed step into trace.
func WithTrace(trace *Trace) CalculateOption {
	return func(o *calculateOptions) {
		o.trace = trace
	}
}

// Calculate plans and executes the steps needed for requested and returns
// their values. Any step failure aborts the call and no results are returned.
func (r *Registry) Calculate(ctx context.Context, requested []string, opts ...CalculateOption) (Results, error) {
	options := calculateOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	snap := r.snapshot()
	plan, err := snap.plan(requested)
	if err != nil {
		return nil, err
	}

	log := r.logger
	log.WithFields(map[string]any{
		"requested": len(plan.Requested),
		"steps":     plan.Len(),
		"levels":    len(plan.Levels),
	}).Debug("execution plan built")

	run := &evaluation{
		snap:  snap,
		cache: make(map[string]any, plan.Len()),
		log:   log,
		trace: options.trace,
	}

	if options.concurrency > 1 {
		err = run.executeLevels(ctx, plan.Levels, options.concurrency)
	} else {
		err = run.executeSequential(ctx, plan.Steps)
	}
	if err != nil {
		return nil, err
	}

	return run.results(plan, options.intermediates), nil
}

// RunAll evaluates every registered step and returns all computed values.
func (r *Registry) RunAll(ctx context.Context, opts ...CalculateOption) (Results, error) {
	opts = append(opts, WithIntermediates())
	return r.Calculate(ctx, r.Names(), opts...)
}

// evaluation owns the run cache of one Calculate call.
type evaluation struct {
	snap  *snapshot
	mu    sync.RWMutex
	cache map[string]any
	log   *logger.Logger
	trace *Trace
}

func (e *evaluation) executeSequential(ctx context.Context, steps []string) error {
	for _, name := range steps {
		value, err := e.executeStep(ctx, name)
		if err != nil {
			return err
		}
		e.store(name, value)
	}
	return nil
}

func (e *evaluation) executeLevels(ctx context.Context, levels [][]string, parallel int) error {
	workerPool := make(chan struct{}, parallel)

	for _, level := range levels {
		if len(level) == 1 {
			value, err := e.executeStep(ctx, level[0])
			if err != nil {
				return err
			}
			e.store(level[0], value)
			continue
		}

		levelErrs := make([]error, len(level))
		var wg sync.WaitGroup

		for idx, name := range level {
			wg.Add(1)
			go func(idx int, name string) {
				defer wg.Done()

				workerPool <- struct{}{}
				defer func() { <-workerPool }()

				value, err := e.executeStep(ctx, name)
				if err != nil {
					levelErrs[idx] = err
					return
				}
				e.store(name, value)
			}(idx, name)
		}

		wg.Wait()

		var result *multierror.Error
		for _, err := range levelErrs {
			if err != nil {
				result = multierror.Append(result, err)
			}
		}
		if result != nil {
			if len(result.Errors) == 1 {
				return result.Errors[0]
			}
			return result
		}
	}
	return nil
}

func (e *evaluation) executeStep(ctx context.Context, name string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, watchmanerrors.NewStepExecutionError(name, err)
	}

	step := e.snap.steps[name]
	in, err := e.inputs(step)
	if err != nil {
		return nil, err
	}

	log := e.log.WithFields(map[string]any{"step": name, "kind": step.Kind.String()})
	log.Debug("step started")

	start := time.Now()
	value, err := invoke(ctx, step, in)
	duration := time.Since(start)

	entry := model.StepTrace{
		Step:      name,
		Kind:      step.Kind.String(),
		Status:    model.StatusSuccess,
		Duration:  duration,
		Timestamp: time.Now(),
	}

	if err != nil {
		entry.Status = model.StatusFailed
		entry.Error = err
		e.trace.Record(entry)
		log.Error(err, "step failed")
		return nil, watchmanerrors.NewStepExecutionError(name, err)
	}

	e.trace.Record(entry)
	log.WithField("duration", duration.String()).Debug("step finished")
	return value, nil
}

func (e *evaluation) inputs(step Step) (Inputs, error) {
	in := make(Inputs, len(step.Params))

	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, param := range step.Params {
		if v, ok := e.snap.fixed[param]; ok {
			in[param] = v
			continue
		}
		v, ok := e.cache[param]
		if !ok {
			return nil, watchmanerrors.NewUnresolvedParameterError(step.Name, param, "dependency has not been computed")
		}
		in[param] = v
	}
	return in, nil
}

func (e *evaluation) store(name string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache[name] = value
}

func (e *evaluation) results(plan *ExecutionPlan, intermediates bool) Results {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(Results, len(plan.Requested))
	if intermediates {
		for name, value := range e.cache {
			out[name] = value
		}
	}
	for _, name := range plan.Requested {
		if v, ok := e.snap.fixed[name]; ok {
			out[name] = v
			continue
		}
		out[name] = e.cache[name]
	}
	return out
}

func invoke(ctx context.Context, step Step, in Inputs) (any, error) {
	return Recover(func() (any, error) {
		return step.Fn(ctx, in)
	})
}

// Recover runs fn and turns a panic into an error.
func Recover[T any](fn func() (T, error)) (value T, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()
	return fn()
}
