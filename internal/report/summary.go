package report

import (
	"fmt"
	"strings"

	"github.com/Melevir/opensource-watchman/internal/model"
)

// Summary aggregates repository counts by status.
type Summary struct {
	Checked  int `json:"checked_repos_number"`
	OK       int `json:"ok_repos_number"`
	Warnings int `json:"repos_with_warnings_number"`
	Critical int `json:"critical_repos_number"`
}

// Summarize counts results by status.
func Summarize(results []model.RepoResult) Summary {
	s := Summary{Checked: len(results)}
	for _, r := range results {
		switch r.Status {
		case model.RepoStatusOK:
			s.OK++
		case model.RepoStatusHasWarnings:
			s.Warnings++
		case model.RepoStatusHasErrors:
			s.Critical++
		}
	}
	return s
}

// OKPercent is the share of ok repositories, 0 when nothing was checked.
func (s Summary) OKPercent() float64 {
	if s.Checked == 0 {
		return 0
	}
	return float64(s.OK) / float64(s.Checked) * 100
}

// View renders the summary lines.
func (s Summary) View() string {
	var lines []string
	lines = append(lines, fmt.Sprintf("%.2f%% of all repos are ok (%d of %d)", s.OKPercent(), s.OK, s.Checked))
	if s.Warnings > 0 || s.Critical > 0 {
		lines = append(lines, fmt.Sprintf("%d with warnings, %d with errors", s.Warnings, s.Critical))
	}
	return strings.Join(lines, "\n")
}
