package audit

import (
	"github.com/Melevir/opensource-watchman/internal/model"
)

// Rule describes one repository check. The rule id is also the name of the
// step computing its messages.
type Rule struct {
	ID          string
	Severity    model.Severity
	Description string
}

var catalog = []Rule{
	{ID: "D01", Severity: model.SeverityCritical, Description: "readme file exists"},
	{ID: "D02", Severity: model.SeverityWarning, Description: "readme has required sections"},
	{ID: "C01", Severity: model.SeverityCritical, Description: "CI config exists"},
	{ID: "C02", Severity: model.SeverityCritical, Description: "last CI build passed"},
	{ID: "C03", Severity: model.SeverityWarning, Description: "CI build runs required commands"},
	{ID: "C04", Severity: model.SeverityWarning, Description: "CI badge is in readme"},
	{ID: "C05", Severity: model.SeverityCritical, Description: "weekly CI cron build is enabled"},
	{ID: "P01", Severity: model.SeverityWarning, Description: "CI runs on required python versions"},
	{ID: "R01", Severity: model.SeverityWarning, Description: "package name is declared"},
	{ID: "R02", Severity: model.SeverityCritical, Description: "package is released on PyPI"},
	{ID: "S01", Severity: model.SeverityCritical, Description: "repository has recent commits"},
	{ID: "T01", Severity: model.SeverityCritical, Description: "project exists on CodeClimate"},
	{ID: "T02", Severity: model.SeverityCritical, Description: "test coverage is reported"},
	{ID: "T03", Severity: model.SeverityWarning, Description: "test coverage is high enough"},
	{ID: "T04", Severity: model.SeverityWarning, Description: "coverage badge is in readme"},
	{ID: "I01", Severity: model.SeverityWarning, Description: "enough recently updated issues"},
	{ID: "M01", Severity: model.SeverityCritical, Description: "no stale mergeable pull requests"},
}

// Rules returns the rule catalog in reporting order.
func Rules() []Rule {
	return append([]Rule(nil), catalog...)
}

// RuleIDs returns every rule id in reporting order.
func RuleIDs() []string {
	ids := make([]string, 0, len(catalog))
	for _, r := range catalog {
		ids = append(ids, r.ID)
	}
	return ids
}

// LookupRule returns the rule registered under id.
func LookupRule(id string) (Rule, bool) {
	for _, r := range catalog {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}
