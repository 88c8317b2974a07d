package model

import (
	"time"
)

const (
	// StatusSuccess marks a step that returned a value.
	StatusSuccess = "success"
	// StatusFailed marks a step that returned an error or panicked.
	StatusFailed = "failed"
)

// StepTrace captures the outcome of executing a single step during one
// evaluation.
type StepTrace struct {
	Step      string        `json:"step"`
	Kind      string        `json:"kind"`
	Status    string        `json:"status"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
	Error     error         `json:"-"`
}

// Failed reports whether the step did not produce a value.
func (t StepTrace) Failed() bool {
	return t.Status == StatusFailed
}
