package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Melevir/opensource-watchman/internal/config"
	"github.com/Melevir/opensource-watchman/internal/engine"
	"github.com/Melevir/opensource-watchman/internal/markdown"
)

const codeClimateBadgeURL = "https://api.codeclimate.com/v1/badges/%s/test_coverage"

// fetchSteps read service data out of the snapshot. They are registered
// with the fetch_ prefix stripped.
func fetchSteps() []engine.Step {
	return []engine.Step{
		engine.Func2("fetch_package_name", "github_data", "package_name_path", fetchPackageName),
		engine.Func1("fetch_code_climate_repo_id", "codeclimate_data",
			func(_ context.Context, cc config.CodeClimateData) (*string, error) {
				return cc.RepoID, nil
			}).AsEffect(),
		engine.Func1("fetch_test_coverage", "codeclimate_data",
			func(_ context.Context, cc config.CodeClimateData) (*float64, error) {
				return cc.TestCoverage, nil
			}).AsEffect(),
		engine.Func1("fetch_code_climate_badge_token", "codeclimate_data",
			func(_ context.Context, cc config.CodeClimateData) (*string, error) {
				return cc.BadgeToken, nil
			}).AsEffect(),
		engine.Func1("fetch_test_coverage_badge_url", "code_climate_badge_token", fetchTestCoverageBadgeURL),
		engine.Func2("fetch_issues_stale_days", "github_data", "now", fetchIssuesStaleDays),
	}
}

// analyzeSteps derive verdicts used by several rules.
func analyzeSteps() []engine.Step {
	return []engine.Step{
		engine.Func1("analyze_is_prs_ok_to_merge", "github_data", analyzeIsPRsOKToMerge),
		engine.Func3("analyze_is_pypi_response_ok", "package_name", "github_data", "pypi_data", analyzeIsPyPIResponseOK),
	}
}

func composeSteps() []engine.Step {
	return []engine.Step{
		engine.Func1("compose_pull_requests_updated_at", "github_data", composePullRequestsUpdatedAt),
	}
}

// extractSteps produce the descriptive fields of a repository result.
func extractSteps() []engine.Step {
	return []engine.Step{
		engine.Func1("extract_project_description", "github_data",
			func(_ context.Context, gh config.GitHubData) (string, error) {
				return markdown.Sentence(gh.Description), nil
			}),
		engine.Func1("extract_badges_urls", "github_data",
			func(_ context.Context, gh config.GitHubData) ([]string, error) {
				return markdown.BadgeURLs(deref(gh.Readme)), nil
			}),
	}
}

// fetchPackageName finds `name = "value"` in the package file, the last
// assignment winning. Comments after # are ignored.
func fetchPackageName(_ context.Context, gh config.GitHubData, packageNamePath string) (string, error) {
	if gh.PackageFile == nil {
		return "", nil
	}

	variable := config.PackageVariable(packageNamePath)
	name := ""
	for _, line := range strings.Split(*gh.PackageFile, "\n") {
		code, _, _ := strings.Cut(line, "#")
		prepared := strings.ReplaceAll(strings.TrimSpace(code), " ", "")
		value, ok := strings.CutPrefix(prepared, variable+"=")
		if !ok {
			continue
		}
		value, _, _ = strings.Cut(value, "=")
		name = strings.Trim(strings.Trim(value, ","), `'"`)
	}
	return name, nil
}

func fetchTestCoverageBadgeURL(_ context.Context, token *string) (string, error) {
	if token == nil || *token == "" {
		return "", nil
	}
	return fmt.Sprintf(codeClimateBadgeURL, *token), nil
}

// fetchIssuesStaleDays maps issue number to days since the issue or its
// latest comment was updated.
func fetchIssuesStaleDays(_ context.Context, gh config.GitHubData, now time.Time) (map[int]int, error) {
	stale := make(map[int]int, len(gh.OpenIssues))
	for _, issue := range gh.OpenIssues {
		updatedAt := issue.UpdatedAt
		if len(issue.Comments) > 0 {
			updatedAt = latestComment(issue.Comments)
		}
		if updatedAt.IsZero() {
			continue
		}
		stale[issue.Number] = daysBetween(updatedAt, now)
	}
	return stale, nil
}

func analyzeIsPRsOKToMerge(_ context.Context, gh config.GitHubData) (map[int]bool, error) {
	ok := make(map[int]bool, len(gh.OpenPullRequests))
	for _, pr := range gh.OpenPullRequests {
		ok[pr.Number] = true
		if pr.Details == nil {
			continue
		}
		if pr.Details.StatusState != "" && pr.Details.StatusState != "success" {
			ok[pr.Number] = false
			continue
		}
		if pr.Details.LastReviewState == "CHANGES_REQUESTED" {
			ok[pr.Number] = false
		}
	}
	return ok, nil
}

// analyzeIsPyPIResponseOK returns nil when there is no package to look up.
func analyzeIsPyPIResponseOK(_ context.Context, packageName string, gh config.GitHubData, pypi config.PyPIData) (*bool, error) {
	if isProject(gh) && !isPython(gh) {
		released := false
		return &released, nil
	}
	if packageName == "" {
		return nil, nil
	}
	released := pypi.Released != nil && *pypi.Released
	return &released, nil
}

// composePullRequestsUpdatedAt takes the later of the pull request update
// and its latest comment. Pull requests without details are left out.
func composePullRequestsUpdatedAt(_ context.Context, gh config.GitHubData) (map[int]time.Time, error) {
	updated := make(map[int]time.Time, len(gh.OpenPullRequests))
	for _, pr := range gh.OpenPullRequests {
		if pr.Details == nil {
			continue
		}
		updatedAt := pr.UpdatedAt
		if last := latestComment(pr.Details.Comments); last.After(updatedAt) {
			updatedAt = last
		}
		if updatedAt.IsZero() {
			continue
		}
		updated[pr.Number] = updatedAt
	}
	return updated, nil
}

func latestComment(comments []config.Comment) time.Time {
	var latest time.Time
	for _, c := range comments {
		if c.UpdatedAt.After(latest) {
			latest = c.UpdatedAt
		}
	}
	return latest
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

func repoType(gh config.GitHubData) string {
	return gh.RepoConfig["type"]
}

func isReadings(gh config.GitHubData) bool {
	return repoType(gh) == "readings"
}

func isProject(gh config.GitHubData) bool {
	return repoType(gh) == "project"
}

func isPython(gh config.GitHubData) bool {
	return config.PythonOnly.Holds(gh.RepoConfig)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
