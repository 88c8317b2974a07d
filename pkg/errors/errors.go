package errors

import (
	"fmt"
	"strings"
)

// ParseError represents a YAML parsing failure with optional line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}

	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures configuration and registration validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// DuplicateStepError is returned at registration time when a step name is
// already taken in the target namespace.
type DuplicateStepError struct {
	Name string
}

// NewDuplicateStepError constructs a DuplicateStepError.
func NewDuplicateStepError(name string) error {
	return &DuplicateStepError{Name: name}
}

func (e *DuplicateStepError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("duplicate step %q\nHint: rename one of the steps or register it under another name", e.Name)
}

// UnresolvedParameterError reports a step input that is neither a fixed
// parameter nor the output of another step. Param is empty when the step
// itself is unknown.
type UnresolvedParameterError struct {
	Step   string
	Param  string
	Detail string
}

// NewUnresolvedParameterError constructs an UnresolvedParameterError.
func NewUnresolvedParameterError(step, param, detail string) error {
	return &UnresolvedParameterError{Step: step, Param: param, Detail: detail}
}

func (e *UnresolvedParameterError) Error() string {
	if e == nil {
		return ""
	}

	var msg string
	if e.Param == "" {
		msg = fmt.Sprintf("unresolved step %q", e.Step)
	} else {
		msg = fmt.Sprintf("step %q requires unresolved parameter %q", e.Step, e.Param)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// CyclicDependencyError is returned when steps depend on each other in a loop.
// Cycle lists the steps on the loop in dependency order, starting and ending
// with the same step.
type CyclicDependencyError struct {
	Cycle []string
}

// NewCyclicDependencyError constructs a CyclicDependencyError.
func NewCyclicDependencyError(cycle []string) error {
	return &CyclicDependencyError{Cycle: append([]string(nil), cycle...)}
}

func (e *CyclicDependencyError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Cycle) == 0 {
		return "circular dependency detected"
	}
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Cycle, " -> "))
}

// StepExecutionError wraps a failure raised by a step implementation.
type StepExecutionError struct {
	Step string
	Err  error
}

// NewStepExecutionError constructs a StepExecutionError.
func NewStepExecutionError(step string, err error) error {
	return &StepExecutionError{Step: step, Err: err}
}

func (e *StepExecutionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Step != "" {
		return fmt.Sprintf("execution error on step %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("execution error: %v", e.Err)
}

// Unwrap exposes the root error.
func (e *StepExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
