package engine

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Melevir/opensource-watchman/internal/logger"
	watchmanerrors "github.com/Melevir/opensource-watchman/pkg/errors"
)

// Registry stores the steps and fixed parameters of one computation graph.
// Registration is expected to complete before evaluation starts; the registry
// is safe for concurrent evaluations afterwards.
type Registry struct {
	mu     sync.RWMutex
	steps  map[string]Step
	order  []string
	fixed  map[string]any
	logger *logger.Logger
}

// RegistryOption customises a Registry at construction time.
type RegistryOption func(*Registry)

// WithLogger attaches a logger used during registration and evaluation.
func WithLogger(log *logger.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = log
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		steps: make(map[string]Step),
		fixed: make(map[string]any),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds steps under their own names. Either every step of the call
// is registered or none is.
func (r *Registry) Register(steps ...Step) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.registerLocked(steps)
}

// RegisterAs adds a single step under an explicit name, leaving the step's
// own name untouched everywhere else.
func (r *Registry) RegisterAs(name string, step Step) error {
	step.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.registerLocked([]Step{step})
}

// RegisterWithPrefixStrip registers each step under its name with prefix
// removed, so `fetch_readme` becomes `readme` when stripping `fetch_`. Every
// step must carry the prefix.
func (r *Registry) RegisterWithPrefixStrip(prefix string, steps ...Step) error {
	renamed, err := StripPrefix(prefix, steps...)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.registerLocked(renamed)
}

// StripPrefix returns copies of steps renamed by removing prefix.
func StripPrefix(prefix string, steps ...Step) ([]Step, error) {
	if prefix == "" {
		return nil, watchmanerrors.NewValidationError("prefix", "prefix cannot be empty", nil)
	}

	renamed := make([]Step, 0, len(steps))
	for _, step := range steps {
		short, ok := strings.CutPrefix(step.Name, prefix)
		if !ok {
			return nil, watchmanerrors.NewValidationError(step.Name, fmt.Sprintf("step name does not start with prefix %q", prefix), nil)
		}
		if short == "" {
			return nil, watchmanerrors.NewValidationError(step.Name, "step name is empty after stripping prefix", nil)
		}
		step.Name = short
		renamed = append(renamed, step)
	}
	return renamed, nil
}

func (r *Registry) registerLocked(steps []Step) error {
	pending := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		if step.Name == "" {
			return watchmanerrors.NewValidationError("steps", "step name cannot be empty", nil)
		}
		if step.Fn == nil {
			return watchmanerrors.NewValidationError(step.Name, "step implementation is nil", nil)
		}
		if _, exists := r.steps[step.Name]; exists {
			return watchmanerrors.NewDuplicateStepError(step.Name)
		}
		if _, exists := pending[step.Name]; exists {
			return watchmanerrors.NewDuplicateStepError(step.Name)
		}
		pending[step.Name] = struct{}{}
	}

	for _, step := range steps {
		r.steps[step.Name] = step.clone()
		r.order = append(r.order, step.Name)
		r.logger.WithFields(map[string]any{
			"step":   step.Name,
			"kind":   step.Kind.String(),
			"params": len(step.Params),
		}).Debug("step registered")
	}
	return nil
}

// BindFixedParameters merges caller supplied leaf values. Later calls
// override earlier ones for the same key.
func (r *Registry) BindFixedParameters(params map[string]any) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, value := range params {
		r.fixed[key] = value
	}
	return r
}

// Names returns registered step names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Lookup returns the step registered under name.
func (r *Registry) Lookup(name string) (Step, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	step, ok := r.steps[name]
	if !ok {
		return Step{}, false
	}
	return step.clone(), true
}

// FixedParameter returns the value bound to a fixed parameter.
func (r *Registry) FixedParameter(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.fixed[name]
	return v, ok
}

// Len reports how many steps are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}

// snapshot is an immutable view of the registry used for one plan or
// evaluation, so registration after the fact cannot affect a running call.
type snapshot struct {
	steps map[string]Step
	index map[string]int
	order []string
	fixed map[string]any
}

func (r *Registry) snapshot() *snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := &snapshot{
		steps: make(map[string]Step, len(r.steps)),
		index: make(map[string]int, len(r.order)),
		order: append([]string(nil), r.order...),
		fixed: make(map[string]any, len(r.fixed)),
	}
	for i, name := range r.order {
		s.steps[name] = r.steps[name]
		s.index[name] = i
	}
	for k, v := range r.fixed {
		s.fixed[k] = v
	}
	return s
}
