package model

import (
	"sort"
)

// Severity ranks how serious a rule violation is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// RepoStatus summarises the violations of one repository.
type RepoStatus string

const (
	RepoStatusOK          RepoStatus = "ok"
	RepoStatusHasWarnings RepoStatus = "has_warnings"
	RepoStatusHasErrors   RepoStatus = "has_errors"
)

// Violation groups the messages a single rule produced.
type Violation struct {
	RuleID   string   `json:"rule_id"`
	Severity Severity `json:"severity"`
	Messages []string `json:"messages"`
}

// RepoResult is the audit outcome for one repository.
type RepoResult struct {
	Owner       string      `json:"owner"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	PackageName string      `json:"package_name,omitempty"`
	BadgesURLs  []string    `json:"badges_urls,omitempty"`
	Status      RepoStatus  `json:"status"`
	Violations  []Violation `json:"violations"`
	// Trace holds every value computed during the audit when requested.
	Trace map[string]any `json:"trace,omitempty"`
	Steps []StepTrace    `json:"steps,omitempty"`
}

// FullName returns owner/name.
func (r RepoResult) FullName() string {
	return r.Owner + "/" + r.Name
}

// ViolationIDs returns the ids of violated rules in sorted order.
func (r RepoResult) ViolationIDs() []string {
	ids := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		ids = append(ids, v.RuleID)
	}
	sort.Strings(ids)
	return ids
}

// StatusFor derives the repository status from its violations.
func StatusFor(violations []Violation) RepoStatus {
	status := RepoStatusOK
	for _, v := range violations {
		if v.Severity == SeverityCritical {
			return RepoStatusHasErrors
		}
		status = RepoStatusHasWarnings
	}
	return status
}

// ExitCode returns 1 when any repository has errors, 0 otherwise.
func ExitCode(results []RepoResult) int {
	for _, r := range results {
		if r.Status == RepoStatusHasErrors {
			return 1
		}
	}
	return 0
}
