package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mergestat/timediff"
	"gopkg.in/yaml.v3"

	"github.com/Melevir/opensource-watchman/internal/config"
	"github.com/Melevir/opensource-watchman/internal/engine"
	"github.com/Melevir/opensource-watchman/internal/markdown"
)

// ruleSteps returns one step per catalog rule. Each yields the rule's
// violation messages; an empty list means the rule holds.
func ruleSteps() []engine.Step {
	return []engine.Step{
		engine.Func2("D01", "github_data", "readme_file_name", hasReadme),
		engine.Func3("D02", "required_readme_sections", "github_data", "D01", hasRequiredReadmeSections),
		engine.Func2("C01", "github_data", "ci_config_file_name", hasCIConfig),
		engine.Func2("C02", "travis_data", "C01", isCIBuildOK),
		engine.Func3("C03", "required_commands_to_run_in_build", "github_data", "travis_data", hasRequiredCommandsInBuild),
		engine.Func3("C04", "github_data", "travis_badge_url", "readme_file_name", hasCIBadgeInReadme),
		engine.Func2("C05", "travis_data", "C01", hasWeeklyCronBuild),
		engine.Func3("P01", "github_data", "C01", "required_python_versions", supportsPythonVersions),
		engine.Func3("R01", "package_name", "package_name_path", "github_data", hasPackageName),
		engine.Func3("R02", "is_pypi_response_ok", "package_name", "github_data", isPackageOnPyPI),
		engine.Func3("S01", "github_data", "max_age_of_last_commit_in_months", "now", hasRecentCommits),
		{
			Name:   "T01",
			Params: []string{"code_climate_repo_id", "owner", "repo_name", "github_data"},
			Fn: func(_ context.Context, in engine.Inputs) (any, error) {
				repoID, err := engine.Input[*string](in, "code_climate_repo_id")
				if err != nil {
					return nil, err
				}
				gh, err := engine.Input[config.GitHubData](in, "github_data")
				if err != nil {
					return nil, err
				}
				if isReadings(gh) || repoID != nil {
					return []string{}, nil
				}
				return []string{fmt.Sprintf("%s not found at Codeclimate", fullName(in))}, nil
			},
		},
		{
			Name:   "T02",
			Params: []string{"test_coverage", "code_climate_repo_id", "owner", "repo_name"},
			Fn: func(_ context.Context, in engine.Inputs) (any, error) {
				coverage, err := engine.Input[*float64](in, "test_coverage")
				if err != nil {
					return nil, err
				}
				repoID, err := engine.Input[*string](in, "code_climate_repo_id")
				if err != nil {
					return nil, err
				}
				if repoID == nil || coverage != nil {
					return []string{}, nil
				}
				return []string{fmt.Sprintf("No test coverage info found for %s at Codeclimate", fullName(in))}, nil
			},
		},
		engine.Func3("T03", "test_coverage", "min_test_coverage_percents", "github_data", isTestCoverageFine),
		engine.Func3("T04", "github_data", "test_coverage_badge_url", "readme_file_name", hasCoverageBadge),
		{
			Name:   "I01",
			Params: []string{"github_data", "issues_stale_days", "max_issue_update_age_months", "min_number_of_actual_issues"},
			Fn: func(_ context.Context, in engine.Inputs) (any, error) {
				gh, err := engine.Input[config.GitHubData](in, "github_data")
				if err != nil {
					return nil, err
				}
				stale, err := engine.Input[map[int]int](in, "issues_stale_days")
				if err != nil {
					return nil, err
				}
				maxAge, err := engine.Input[int](in, "max_issue_update_age_months")
				if err != nil {
					return nil, err
				}
				minIssues, err := engine.Input[int](in, "min_number_of_actual_issues")
				if err != nil {
					return nil, err
				}
				return hasEnoughActualIssues(gh, stale, maxAge, minIssues), nil
			},
		},
		{
			Name:   "M01",
			Params: []string{"github_data", "is_prs_ok_to_merge", "pull_requests_updated_at", "max_ok_pr_age_days", "now"},
			Fn: func(_ context.Context, in engine.Inputs) (any, error) {
				gh, err := engine.Input[config.GitHubData](in, "github_data")
				if err != nil {
					return nil, err
				}
				okToMerge, err := engine.Input[map[int]bool](in, "is_prs_ok_to_merge")
				if err != nil {
					return nil, err
				}
				updatedAt, err := engine.Input[map[int]time.Time](in, "pull_requests_updated_at")
				if err != nil {
					return nil, err
				}
				maxAge, err := engine.Input[int](in, "max_ok_pr_age_days")
				if err != nil {
					return nil, err
				}
				now, err := engine.Input[time.Time](in, "now")
				if err != nil {
					return nil, err
				}
				return hasNoStalePullRequests(gh, okToMerge, updatedAt, maxAge, now), nil
			},
		},
	}
}

func fullName(in engine.Inputs) string {
	owner, _ := engine.Input[string](in, "owner")
	repo, _ := engine.Input[string](in, "repo_name")
	return owner + "/" + repo
}

func hasReadme(_ context.Context, gh config.GitHubData, readmeFileName string) ([]string, error) {
	if gh.Readme != nil {
		return []string{}, nil
	}
	return []string{fmt.Sprintf("%s not found", readmeFileName)}, nil
}

func hasRequiredReadmeSections(_ context.Context, sections [][]string, gh config.GitHubData, d01 []string) ([]string, error) {
	errs := []string{}
	if isReadings(gh) || len(d01) > 0 {
		return errs, nil
	}

	readme := deref(gh.Readme)
	for _, options := range sections {
		if !markdown.ContainsAny(readme, options) {
			errs = append(errs, fmt.Sprintf("None of following found in readme: %s", strings.Join(options, ",")))
		}
	}
	return errs, nil
}

func hasCIConfig(_ context.Context, gh config.GitHubData, ciConfigFileName string) ([]string, error) {
	if gh.CIConfig != nil {
		return []string{}, nil
	}
	return []string{fmt.Sprintf("%s not found", ciConfigFileName)}, nil
}

func isCIBuildOK(_ context.Context, travis config.TravisData, c01 []string) ([]string, error) {
	if len(c01) == 0 && travis.LastBuildState != "" && travis.LastBuildState != "passed" {
		return []string{"Current build status on Travis is not ok"}, nil
	}
	return []string{}, nil
}

func hasRequiredCommandsInBuild(_ context.Context, required []config.CommandRequirement, gh config.GitHubData, travis config.TravisData) ([]string, error) {
	errs := []string{}
	for _, req := range required {
		if !req.Applies(gh.RepoConfig) || len(req.Commands) == 0 {
			continue
		}
		if logsHaveAnyCommand(travis.BuildCommands, req.Commands) {
			continue
		}
		if len(req.Commands) > 1 {
			errs = append(errs, fmt.Sprintf("None of %s is found in build", strings.Join(req.Commands, ",")))
		} else {
			errs = append(errs, fmt.Sprintf("%s is not found in build", req.Commands[0]))
		}
	}
	return errs, nil
}

// logsHaveAnyCommand reports whether any build command runs one of
// commands, either as the whole line, its first word or a spaced word.
func logsHaveAnyCommand(log, commands []string) bool {
	for _, required := range commands {
		for _, line := range log {
			if line == required ||
				strings.HasPrefix(line, required+" ") ||
				strings.Contains(line, " "+required+" ") {
				return true
			}
		}
	}
	return false
}

func hasCIBadgeInReadme(_ context.Context, gh config.GitHubData, badgeURL, readmeFileName string) ([]string, error) {
	readme := deref(gh.Readme)
	if readme != "" && !strings.Contains(readme, badgeURL) {
		return []string{fmt.Sprintf("Travis badge not found in %s", readmeFileName)}, nil
	}
	return []string{}, nil
}

func hasWeeklyCronBuild(_ context.Context, travis config.TravisData, c01 []string) ([]string, error) {
	if len(c01) > 0 {
		return []string{}, nil
	}
	for _, cron := range travis.Crontabs {
		if cron.Interval == "weekly" {
			return []string{}, nil
		}
	}
	return []string{"Travis weekly cron build is not enabled"}, nil
}

func supportsPythonVersions(_ context.Context, gh config.GitHubData, c01 []string, required []string) ([]string, error) {
	errs := []string{}
	if !isPython(gh) || len(c01) > 0 {
		return errs, nil
	}

	built := ciPythonVersions(deref(gh.CIConfig))
	for _, version := range required {
		if _, ok := built[version]; !ok {
			errs = append(errs, fmt.Sprintf("Travis build is not running on Python %s", version))
		}
	}
	return errs, nil
}

// ciPythonVersions reads the python key of a CI config. Malformed documents
// yield no versions. Scalars keep their source text so 3.10 stays 3.10.
func ciPythonVersions(content string) map[string]struct{} {
	versions := map[string]struct{}{}

	var doc struct {
		Python yaml.Node `yaml:"python"`
	}
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return versions
	}

	switch doc.Python.Kind {
	case yaml.ScalarNode:
		versions[doc.Python.Value] = struct{}{}
	case yaml.SequenceNode:
		for _, item := range doc.Python.Content {
			if item.Kind == yaml.ScalarNode {
				versions[item.Value] = struct{}{}
			}
		}
	}
	return versions
}

func hasPackageName(_ context.Context, packageName, packageNamePath string, gh config.GitHubData) ([]string, error) {
	if isProject(gh) || !isPython(gh) || packageName != "" {
		return []string{}, nil
	}
	return []string{fmt.Sprintf("Package name not found at %s", packageNamePath)}, nil
}

func isPackageOnPyPI(_ context.Context, released *bool, packageName string, gh config.GitHubData) ([]string, error) {
	if isProject(gh) && !isPython(gh) {
		return []string{}, nil
	}
	if packageName != "" && (released == nil || !*released) {
		return []string{fmt.Sprintf("Package %s is not released at PyPI", packageName)}, nil
	}
	return []string{}, nil
}

func hasRecentCommits(_ context.Context, gh config.GitHubData, maxAgeMonths int, now time.Time) ([]string, error) {
	if gh.LastCommitDate == nil {
		return []string{"No commits found"}, nil
	}

	last := *gh.LastCommitDate
	if float64(daysBetween(last, now))/30 > float64(maxAgeMonths) {
		return []string{fmt.Sprintf(
			"Last commit was at %s (%s), more than %d months ago",
			last.Format(time.DateOnly),
			timediff.TimeDiff(last, timediff.WithStartTime(now)),
			maxAgeMonths,
		)}, nil
	}
	return []string{}, nil
}

func isTestCoverageFine(_ context.Context, coverage *float64, minCoverage float64, gh config.GitHubData) ([]string, error) {
	if isReadings(gh) || coverage == nil || *coverage == 0 {
		return []string{}, nil
	}
	if *coverage < minCoverage {
		return []string{fmt.Sprintf("Test coverage is too low (%.2f<%g)", *coverage, minCoverage)}, nil
	}
	return []string{}, nil
}

func hasCoverageBadge(_ context.Context, gh config.GitHubData, badgeURL, readmeFileName string) ([]string, error) {
	readme := deref(gh.Readme)
	if readme != "" && badgeURL != "" && !strings.Contains(readme, badgeURL) {
		return []string{fmt.Sprintf("Codeclimate test coverage badge not found at %s", readmeFileName)}, nil
	}
	return []string{}, nil
}

func hasEnoughActualIssues(gh config.GitHubData, stale map[int]int, maxAgeMonths, minIssues int) []string {
	if gh.RepoConfig["features_from_contributors_are_welcome"] == "False" {
		return []string{}
	}

	actual := 0
	for _, issue := range gh.OpenIssues {
		days, ok := stale[issue.Number]
		if !ok {
			continue
		}
		if float64(days)/30 < float64(maxAgeMonths) {
			actual++
		}
	}
	if actual < minIssues {
		return []string{fmt.Sprintf("Too few actual issues (%d<%d)", actual, minIssues)}
	}
	return []string{}
}

func hasNoStalePullRequests(gh config.GitHubData, okToMerge map[int]bool, updatedAt map[int]time.Time, maxAgeDays int, now time.Time) []string {
	errs := []string{}
	for _, pr := range gh.OpenPullRequests {
		if pr.Details == nil || !okToMerge[pr.Number] {
			continue
		}
		updated, ok := updatedAt[pr.Number]
		if !ok {
			continue
		}
		if days := daysBetween(updated, now); days > maxAgeDays {
			errs = append(errs, fmt.Sprintf("Pull request #%d is stale for too long (%d days)", pr.Number, days))
		}
	}
	return errs
}
