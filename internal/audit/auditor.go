// Package audit checks one repository snapshot against the rule catalog by
// evaluating rule steps on a computation graph.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/Melevir/opensource-watchman/internal/config"
	"github.com/Melevir/opensource-watchman/internal/engine"
	"github.com/Melevir/opensource-watchman/internal/logger"
	"github.com/Melevir/opensource-watchman/internal/model"
)

// Names of the descriptive outputs requested next to the rules.
const (
	outputPackageName = "package_name"
	outputDescription = "project_description"
	outputBadges      = "badges_urls"
)

// Auditor evaluates the rule catalog for repository snapshots. It is safe
// for concurrent use; every Audit call builds its own registry.
type Auditor struct {
	cfg       *config.Config
	logger    *logger.Logger
	clock     func() time.Time
	skip      map[string]struct{}
	parallel  int
	withTrace bool
}

// Option customises an Auditor.
type Option func(*Auditor)

// WithLogger attaches a logger.
func WithLogger(log *logger.Logger) Option {
	return func(a *Auditor) {
		a.logger = log
	}
}

// WithClock overrides the time source used for age based rules.
func WithClock(clock func() time.Time) Option {
	return func(a *Auditor) {
		a.clock = clock
	}
}

// WithSkip excludes rules from the report in addition to settings.skip.
func WithSkip(ids ...string) Option {
	return func(a *Auditor) {
		for _, id := range ids {
			a.skip[id] = struct{}{}
		}
	}
}

// WithParallel runs independent steps on up to n goroutines.
func WithParallel(n int) Option {
	return func(a *Auditor) {
		a.parallel = n
	}
}

// WithTrace keeps every computed value and step timing in the result.
func WithTrace(enabled bool) Option {
	return func(a *Auditor) {
		a.withTrace = enabled
	}
}

// New creates an Auditor for cfg. A nil cfg means DefaultConfig.
func New(cfg *config.Config, opts ...Option) *Auditor {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	a := &Auditor{
		cfg:      cfg,
		clock:    time.Now,
		skip:     make(map[string]struct{}),
		parallel: cfg.Settings.Parallel,
	}
	for _, id := range cfg.Settings.Skip {
		a.skip[id] = struct{}{}
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ActiveRules returns the ids of rules that are not skipped, in catalog order.
func (a *Auditor) ActiveRules() []string {
	var ids []string
	for _, id := range RuleIDs() {
		if a.skipped(id) {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (a *Auditor) skipped(id string) bool {
	if _, ok := a.skip[id]; ok {
		return true
	}
	return a.cfg.Skipped(id)
}

// Registry builds the computation graph for snap: fixed parameters from the
// configuration and snapshot, helper steps and one step per rule.
func (a *Auditor) Registry(snap *config.Snapshot) (*engine.Registry, error) {
	if snap == nil {
		snap = &config.Snapshot{}
	}

	reg := engine.NewRegistry(engine.WithLogger(a.logger))
	reg.BindFixedParameters(a.fixedParameters(snap))

	groups := []struct {
		prefix string
		steps  []engine.Step
	}{
		{prefix: "fetch_", steps: fetchSteps()},
		{prefix: "analyze_", steps: analyzeSteps()},
		{prefix: "compose_", steps: composeSteps()},
		{prefix: "extract_", steps: extractSteps()},
	}
	for _, group := range groups {
		if err := reg.RegisterWithPrefixStrip(group.prefix, group.steps...); err != nil {
			return nil, fmt.Errorf("register %s steps: %w", group.prefix, err)
		}
	}

	if err := reg.Register(ruleSteps()...); err != nil {
		return nil, fmt.Errorf("register rules: %w", err)
	}
	return reg, nil
}

func (a *Auditor) fixedParameters(snap *config.Snapshot) map[string]any {
	cfg := a.cfg
	return map[string]any{
		"owner":                             snap.Owner,
		"repo_name":                         snap.Name,
		"github_data":                       snap.GitHub,
		"travis_data":                       snap.Travis,
		"codeclimate_data":                  snap.CodeClimate,
		"pypi_data":                         snap.PyPI,
		"travis_badge_url":                  snap.TravisBadgeURL(),
		"now":                               a.clock(),
		"readme_file_name":                  cfg.ReadmeFileName,
		"ci_config_file_name":               cfg.CIConfigFileName,
		"package_name_path":                 cfg.PackageNamePath,
		"required_readme_sections":          cfg.RequiredReadmeSections,
		"required_commands_to_run_in_build": cfg.RequiredCommandsToRunInBuild,
		"required_python_versions":          cfg.RequiredPythonVersions,
		"max_age_of_last_commit_in_months":  cfg.MaxAgeOfLastCommitInMonths,
		"min_test_coverage_percents":        cfg.MinTestCoveragePercents,
		"min_number_of_actual_issues":       cfg.MinNumberOfActualIssues,
		"max_issue_update_age_months":       cfg.MaxIssueUpdateAgeMonths,
		"max_ok_pr_age_days":                cfg.MaxOKPullRequestAgeDays,
	}
}

// Plan returns the execution plan for ruleIDs, or for every active rule when
// none is given.
func (a *Auditor) Plan(ruleIDs ...string) (*engine.ExecutionPlan, error) {
	if len(ruleIDs) == 0 {
		ruleIDs = a.ActiveRules()
	}
	for _, id := range ruleIDs {
		if _, ok := LookupRule(id); !ok {
			return nil, fmt.Errorf("unknown rule %q", id)
		}
	}

	reg, err := a.Registry(nil)
	if err != nil {
		return nil, err
	}
	return reg.BuildPlan(ruleIDs...)
}

// Audit evaluates the active rules for snap.
func (a *Auditor) Audit(ctx context.Context, snap *config.Snapshot) (model.RepoResult, error) {
	if snap == nil {
		return model.RepoResult{}, fmt.Errorf("audit: snapshot is nil")
	}

	log := a.logger.WithFields(map[string]any{"repo": snap.FullName()})

	reg, err := a.Registry(snap)
	if err != nil {
		return model.RepoResult{}, err
	}

	rules := a.ActiveRules()
	requested := append(append([]string(nil), rules...), outputPackageName, outputDescription, outputBadges)

	opts := []engine.CalculateOption{engine.WithConcurrency(a.parallel)}
	var trace *engine.Trace
	if a.withTrace {
		trace = &engine.Trace{}
		opts = append(opts, engine.WithIntermediates(), engine.WithTrace(trace))
	}

	log.WithField("rules", len(rules)).Debug("audit started")

	results, err := reg.Calculate(ctx, requested, opts...)
	if err != nil {
		log.Error(err, "audit failed")
		return model.RepoResult{}, fmt.Errorf("audit %s: %w", snap.FullName(), err)
	}

	result := model.RepoResult{
		Owner:      snap.Owner,
		Name:       snap.Name,
		Violations: []model.Violation{},
	}
	if result.PackageName, err = engine.Value[string](results, outputPackageName); err != nil {
		return model.RepoResult{}, err
	}
	if result.Description, err = engine.Value[string](results, outputDescription); err != nil {
		return model.RepoResult{}, err
	}
	if result.BadgesURLs, err = engine.Value[[]string](results, outputBadges); err != nil {
		return model.RepoResult{}, err
	}

	for _, id := range rules {
		messages, err := engine.Value[[]string](results, id)
		if err != nil {
			return model.RepoResult{}, fmt.Errorf("rule %s: %w", id, err)
		}
		if len(messages) == 0 {
			continue
		}
		rule, _ := LookupRule(id)
		result.Violations = append(result.Violations, model.Violation{
			RuleID:   id,
			Severity: rule.Severity,
			Messages: messages,
		})
	}
	result.Status = model.StatusFor(result.Violations)

	if a.withTrace {
		result.Trace = results
		result.Steps = trace.Steps()
	}

	log.WithFields(map[string]any{
		"status":     string(result.Status),
		"violations": len(result.Violations),
	}).Info("audit finished")

	return result, nil
}
