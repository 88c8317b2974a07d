package main

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Melevir/opensource-watchman/internal/audit"
	"github.com/Melevir/opensource-watchman/internal/config"
	"github.com/Melevir/opensource-watchman/internal/logger"
	"github.com/Melevir/opensource-watchman/internal/model"
	"github.com/Melevir/opensource-watchman/internal/report"
	"github.com/Melevir/opensource-watchman/internal/sources/localrepo"
)

type auditOptions struct {
	SnapshotPaths []string
	ConfigPath    string
	RepoPath      string
	Output        string
	TemplatePath  string
	ResultFile    string
	Skip          []string
	Parallel      int
	Trace         bool
	Timeout       time.Duration
}

func newAuditCmd(root *rootFlags) *cobra.Command {
	opts := auditOptions{}

	cmd := &cobra.Command{
		Use:   "audit --snapshot <file> [--snapshot <file>...]",
		Short: "Audit repository snapshots against the rule catalog",
		Long: `Audit evaluates every active rule for each repository snapshot and prints
the violations. Returns exit code 1 if any repository has critical
violations, 2 on configuration errors and 3 when an audit cannot complete.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(root, cmd.ErrOrStderr())
			if err != nil {
				return &exitError{code: exitRuntimeError, err: fmt.Errorf("create logger: %w", err)}
			}
			return runAudit(cmd.Context(), opts, log, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringArrayVarP(&opts.SnapshotPaths, "snapshot", "s", nil, "Repository snapshot YAML file (repeatable)")
	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Audit configuration YAML file")
	cmd.Flags().StringVar(&opts.RepoPath, "repo-path", "", "Local git clone overriding the snapshot's repository files")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", string(report.FormatTerminal), "Output format: term, json or html")
	cmd.Flags().StringVar(&opts.TemplatePath, "template", "", "HTML report template (defaults to the built-in one)")
	cmd.Flags().StringVar(&opts.ResultFile, "result-file", report.DefaultHTMLFile, "File the HTML report is written to")
	cmd.Flags().StringSliceVar(&opts.Skip, "skip", nil, "Rule ids to skip")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 0, "Steps evaluated concurrently per repository (defaults to settings.parallel)")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "Include every computed value and step timing in JSON output")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 2*time.Minute, "Overall audit timeout; accepts Go duration strings (e.g. 30s)")
	_ = cmd.MarkFlagRequired("snapshot")

	return cmd
}

func runAudit(ctx context.Context, opts auditOptions, log *logger.Logger, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(opts.Output)
	if err != nil {
		return &exitError{code: exitConfigError, err: err}
	}
	var tmpl *template.Template
	if format == report.FormatHTML {
		if tmpl, err = report.LoadTemplate(opts.TemplatePath); err != nil {
			return &exitError{code: exitConfigError, err: err}
		}
	}
	skip, err := normalizeRuleIDs(opts.Skip)
	if err != nil {
		return &exitError{code: exitConfigError, err: err}
	}
	if len(opts.SnapshotPaths) == 0 {
		return &exitError{code: exitConfigError, err: errors.New("at least one --snapshot is required")}
	}
	if opts.RepoPath != "" && len(opts.SnapshotPaths) != 1 {
		return &exitError{code: exitConfigError, err: errors.New("--repo-path needs exactly one --snapshot")}
	}

	snapshots := make([]*config.Snapshot, 0, len(opts.SnapshotPaths))
	for _, path := range opts.SnapshotPaths {
		snap, err := config.LoadSnapshot(path)
		if err != nil {
			return &exitError{code: exitConfigError, err: fmt.Errorf("error loading snapshot: %w", err)}
		}
		snapshots = append(snapshots, snap)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	if opts.RepoPath != "" {
		source := localrepo.New(cfg, localrepo.WithLogger(log))
		data, err := source.Read(ctx, opts.RepoPath)
		if err != nil {
			return &exitError{code: exitRuntimeError, err: err}
		}
		source.Overlay(data, &snapshots[0].GitHub)
	}

	auditorOpts := []audit.Option{
		audit.WithLogger(log),
		audit.WithSkip(skip...),
		audit.WithTrace(opts.Trace),
	}
	if opts.Parallel > 0 {
		auditorOpts = append(auditorOpts, audit.WithParallel(opts.Parallel))
	}
	auditor := audit.New(cfg, auditorOpts...)

	log.WithFields(map[string]any{
		"snapshots": len(snapshots),
		"rules":     len(auditor.ActiveRules()),
	}).Info("starting audit")

	results := make([]model.RepoResult, len(snapshots))
	g, gctx := errgroup.WithContext(ctx)
	for i, snap := range snapshots {
		g.Go(func() error {
			result, err := auditor.Audit(gctx, snap)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return &exitError{code: exitRuntimeError, err: fmt.Errorf("audit error: %w", err)}
	}

	if format == report.FormatHTML {
		err = writeHTMLReport(opts.ResultFile, tmpl, results)
	} else {
		err = report.Write(out, format, results)
	}
	if err != nil {
		return &exitError{code: exitRuntimeError, err: fmt.Errorf("write report: %w", err)}
	}
	if format == report.FormatHTML {
		log.WithFields(map[string]any{"file": opts.ResultFile}).Info("html report written")
	}

	if code := model.ExitCode(results); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

func writeHTMLReport(path string, tmpl *template.Template, results []model.RepoResult) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return report.HTML(f, tmpl, results)
}

// loadConfig reads the audit configuration and checks settings.skip against
// the rule catalog, as --skip is.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, &exitError{code: exitConfigError, err: fmt.Errorf("error parsing configuration: %w", err)}
	}
	skip, err := normalizeRuleIDs(cfg.Settings.Skip)
	if err != nil {
		return nil, &exitError{code: exitConfigError, err: fmt.Errorf("error parsing configuration: settings.skip: %w", err)}
	}
	cfg.Settings.Skip = skip
	return cfg, nil
}

// normalizeRuleIDs upper-cases ids and rejects unknown ones.
func normalizeRuleIDs(ids []string) ([]string, error) {
	normalized := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToUpper(strings.TrimSpace(id))
		if _, ok := audit.LookupRule(id); !ok {
			return nil, fmt.Errorf("unknown rule %q", id)
		}
		normalized = append(normalized, id)
	}
	return normalized, nil
}
