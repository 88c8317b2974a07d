// Package report renders audit results for people and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Melevir/opensource-watchman/internal/model"
)

// Format selects a renderer.
type Format string

const (
	FormatTerminal Format = "term"
	FormatJSON     Format = "json"
	FormatHTML     Format = "html"
)

// ParseFormat validates a user supplied output format.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(value)) {
	case FormatTerminal, "":
		return FormatTerminal, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatHTML:
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want term, json or html)", value)
	}
}

// Write renders results in format.
func Write(w io.Writer, format Format, results []model.RepoResult) error {
	switch format {
	case FormatJSON:
		return JSON(w, results)
	case FormatTerminal:
		return Terminal(w, results)
	case FormatHTML:
		return HTML(w, nil, results)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

type styles struct {
	repo     lipgloss.Style
	ok       lipgloss.Style
	critical lipgloss.Style
	warning  lipgloss.Style
	summary  lipgloss.Style
}

// newStyles binds styles to w so colours are dropped for non terminals.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		repo:     r.NewStyle().Bold(true),
		ok:       r.NewStyle().Foreground(lipgloss.Color("42")),
		critical: r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		warning:  r.NewStyle().Foreground(lipgloss.Color("214")),
		summary:  r.NewStyle().Italic(true),
	}
}

func (s styles) severity(sev model.Severity) lipgloss.Style {
	if sev == model.SeverityCritical {
		return s.critical
	}
	return s.warning
}

// Terminal prints every repository followed by its violations, one line per
// message and sorted by rule id, then the overall summary.
func Terminal(w io.Writer, results []model.RepoResult) error {
	st := newStyles(w)

	var b strings.Builder
	for _, r := range results {
		b.WriteString(st.repo.Render(r.FullName()))
		b.WriteString("\n")

		violations := append([]model.Violation(nil), r.Violations...)
		sort.SliceStable(violations, func(i, j int) bool {
			return violations[i].RuleID < violations[j].RuleID
		})
		for _, v := range violations {
			style := st.severity(v.Severity)
			for _, msg := range v.Messages {
				fmt.Fprintf(&b, "\t%s\n", style.Render(v.RuleID+": "+msg))
			}
		}
		if len(r.Violations) == 0 {
			fmt.Fprintf(&b, "\t%s\n", st.ok.Render("ok"))
		}
	}
	if len(results) > 0 {
		b.WriteString("\n")
		for _, line := range strings.Split(Summarize(results).View(), "\n") {
			b.WriteString(st.summary.Render(line))
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// JSON writes results as an indented array.
func JSON(w io.Writer, results []model.RepoResult) error {
	if results == nil {
		results = []model.RepoResult{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
