package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Melevir/opensource-watchman/internal/model"
)

func TestNewHTMLContext(t *testing.T) {
	t.Parallel()

	results := []model.RepoResult{sampleResults()[1], sampleResults()[0]}
	ctx := NewHTMLContext(results)

	require.Equal(t, "acme", ctx.Owner)
	require.Equal(t, "acme/widgets", ctx.Repos[0].FullName())
	require.Equal(t, "acme/gadgets", ctx.Repos[1].FullName())
	require.Equal(t, "acme/gadgets", results[0].FullName(), "input order is kept")
	require.Equal(t, Summary{Checked: 2, OK: 1, Critical: 1}, ctx.Summary)
	require.Equal(t, map[string]string{"ok": "green", "warning": "yellow", "critical": "red"}, ctx.SeverityColors)

	mixed := append(sampleResults(), model.RepoResult{Owner: "other", Name: "tools", Status: model.RepoStatusOK})
	require.Empty(t, NewHTMLContext(mixed).Owner)
	require.Empty(t, NewHTMLContext(nil).Repos)
}

func TestHTML_DefaultTemplate(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	require.NoError(t, Write(buf, FormatHTML, sampleResults()))
	out := buf.String()

	require.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	require.Contains(t, out, "<title>acme watchman report</title>")
	require.Contains(t, out, "acme: repository health")
	require.Contains(t, out, "Checked 2 repos")
	require.Contains(t, out, `<h2 style="color: green">acme/widgets</h2>`)
	require.Contains(t, out, `<h2 style="color: red">acme/gadgets</h2>`)
	require.Contains(t, out, `<li style="color: red">D01: README.md not found</li>`)
	require.Contains(t, out, `<li style="color: yellow">C03: mypy is not found in build</li>`)
	require.Contains(t, out, "T03: Test coverage is too low (50.00&lt;80)")
	require.Less(t, strings.Index(out, "acme/widgets</h2>"), strings.Index(out, "acme/gadgets</h2>"))
}

func TestHTML_CustomTemplate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.tmpl")
	body := `{{.Owner}}:{{range .Repos}} {{.Name}}={{len .Violations}}{{end}} ok={{.Summary.OK}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	tmpl, err := LoadTemplate(path)
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	require.NoError(t, HTML(buf, tmpl, sampleResults()))
	require.Equal(t, "acme: widgets=0 gadgets=3 ok=1", buf.String())
}

func TestHTML_SprigFunctions(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.tmpl")
	body := `{{range .Repos}}{{.Name | upper}};{{end}}{{.Owner | default "everyone"}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	tmpl, err := LoadTemplate(path)
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	results := append(sampleResults(), model.RepoResult{Owner: "other", Name: "tools"})
	require.NoError(t, HTML(buf, tmpl, results))
	require.Equal(t, "WIDGETS;TOOLS;GADGETS;everyone", buf.String())
}

func TestLoadTemplate_Errors(t *testing.T) {
	t.Parallel()

	_, err := LoadTemplate(filepath.Join(t.TempDir(), "missing.tmpl"))
	require.ErrorContains(t, err, "read template file")

	path := filepath.Join(t.TempDir(), "broken.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("{{range .Repos}}"), 0o600))
	_, err = LoadTemplate(path)
	require.ErrorContains(t, err, "parse template")

	path = filepath.Join(t.TempDir(), "badfield.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("{{.Missing}}"), 0o600))
	tmpl, err := LoadTemplate(path)
	require.NoError(t, err)
	require.ErrorContains(t, HTML(&bytes.Buffer{}, tmpl, nil), "render template")
}
