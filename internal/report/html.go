package report

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"sort"

	"github.com/Masterminds/sprig/v3"

	"github.com/Melevir/opensource-watchman/internal/model"
)

// DefaultHTMLFile is where the HTML report goes when no file is given.
const DefaultHTMLFile = "report.html"

//go:embed templates/report.html.tmpl
var defaultHTMLTemplate string

// severityColors maps severities and the ok state to CSS colours.
var severityColors = map[string]string{
	"ok":                           "green",
	string(model.SeverityWarning):  "yellow",
	string(model.SeverityCritical): "red",
}

// HTMLContext is the data an HTML report template is executed with.
type HTMLContext struct {
	Owner          string
	Repos          []model.RepoResult
	SeverityColors map[string]string
	Summary        Summary
}

// NewHTMLContext orders repositories by violation count, fewest first. Owner
// is set when every repository shares it.
func NewHTMLContext(results []model.RepoResult) HTMLContext {
	repos := append([]model.RepoResult(nil), results...)
	sort.SliceStable(repos, func(i, j int) bool {
		return len(repos[i].Violations) < len(repos[j].Violations)
	})

	owner := ""
	for i, r := range repos {
		if i == 0 {
			owner = r.Owner
			continue
		}
		if r.Owner != owner {
			owner = ""
			break
		}
	}

	colors := make(map[string]string, len(severityColors))
	for k, v := range severityColors {
		colors[k] = v
	}
	return HTMLContext{
		Owner:          owner,
		Repos:          repos,
		SeverityColors: colors,
		Summary:        Summarize(results),
	}
}

// templateFuncs extend the sprig function map.
var templateFuncs = template.FuncMap{
	"severityColor": func(sev model.Severity) string {
		return severityColors[string(sev)]
	},
	"statusColor": func(status model.RepoStatus) string {
		switch status {
		case model.RepoStatusHasErrors:
			return severityColors[string(model.SeverityCritical)]
		case model.RepoStatusHasWarnings:
			return severityColors[string(model.SeverityWarning)]
		default:
			return severityColors["ok"]
		}
	},
}

// LoadTemplate parses the HTML report template at path, or the built-in one
// when path is empty.
func LoadTemplate(path string) (*template.Template, error) {
	if path == "" {
		return newTemplate("report").Parse(defaultHTMLTemplate)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template file %q: %w", path, err)
	}
	tmpl, err := newTemplate(path).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse template %q: %w", path, err)
	}
	return tmpl, nil
}

func newTemplate(name string) *template.Template {
	return template.New(name).Funcs(sprig.FuncMap()).Funcs(templateFuncs)
}

// HTML renders results with tmpl. A nil tmpl means the built-in template.
func HTML(w io.Writer, tmpl *template.Template, results []model.RepoResult) error {
	if tmpl == nil {
		var err error
		if tmpl, err = LoadTemplate(""); err != nil {
			return err
		}
	}
	if err := tmpl.Execute(w, NewHTMLContext(results)); err != nil {
		return fmt.Errorf("render template %q: %w", tmpl.Name(), err)
	}
	return nil
}
