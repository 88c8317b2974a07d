package config

import (
	"fmt"
	"time"
)

// Snapshot describes one repository as the remote services report it.
type Snapshot struct {
	Owner       string          `yaml:"owner" json:"owner" validate:"required"`
	Name        string          `yaml:"name" json:"name" validate:"required"`
	GitHub      GitHubData      `yaml:"github" json:"github"`
	Travis      TravisData      `yaml:"travis" json:"travis"`
	CodeClimate CodeClimateData `yaml:"codeclimate" json:"codeclimate"`
	PyPI        PyPIData        `yaml:"pypi" json:"pypi"`
}

// FullName returns owner/name.
func (s *Snapshot) FullName() string {
	return fmt.Sprintf("%s/%s", s.Owner, s.Name)
}

// GitHubData holds repository content and activity. Nil file contents mean
// the file does not exist.
type GitHubData struct {
	Description      string            `yaml:"description,omitempty" json:"description,omitempty"`
	Readme           *string           `yaml:"readme,omitempty" json:"readme,omitempty"`
	CIConfig         *string           `yaml:"ci_config,omitempty" json:"ci_config,omitempty"`
	PackageFile      *string           `yaml:"package_file,omitempty" json:"package_file,omitempty"`
	RepoConfig       map[string]string `yaml:"repo_config,omitempty" json:"repo_config,omitempty"`
	LastCommitDate   *time.Time        `yaml:"last_commit_date,omitempty" json:"last_commit_date,omitempty"`
	OpenIssues       []Issue           `yaml:"open_issues,omitempty" json:"open_issues,omitempty" validate:"dive"`
	OpenPullRequests []PullRequest     `yaml:"open_pull_requests,omitempty" json:"open_pull_requests,omitempty" validate:"dive"`
}

// Issue is an open issue with its comments.
type Issue struct {
	Number    int       `yaml:"number" json:"number" validate:"min=1"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
	Comments  []Comment `yaml:"comments,omitempty" json:"comments,omitempty"`
}

// Comment carries the last update time of an issue or pull request comment.
type Comment struct {
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}

// PullRequest is an open pull request. Details is nil when they could not
// be fetched.
type PullRequest struct {
	Number    int                 `yaml:"number" json:"number" validate:"min=1"`
	UpdatedAt time.Time           `yaml:"updated_at" json:"updated_at"`
	Details   *PullRequestDetails `yaml:"details,omitempty" json:"details,omitempty"`
}

// PullRequestDetails holds the state of the pull request's last commit.
type PullRequestDetails struct {
	LastCommitSHA   string    `yaml:"last_commit_sha,omitempty" json:"last_commit_sha,omitempty"`
	StatusState     string    `yaml:"status_state,omitempty" json:"status_state,omitempty" validate:"omitempty,oneof=success pending failure error"`
	LastReviewState string    `yaml:"last_review_state,omitempty" json:"last_review_state,omitempty" validate:"omitempty,oneof=APPROVED CHANGES_REQUESTED COMMENTED DISMISSED PENDING"`
	Comments        []Comment `yaml:"comments,omitempty" json:"comments,omitempty"`
}

// TravisData describes the CI state of the repository.
type TravisData struct {
	LastBuildState string    `yaml:"last_build_state,omitempty" json:"last_build_state,omitempty"`
	BuildCommands  []string  `yaml:"build_commands,omitempty" json:"build_commands,omitempty"`
	Crontabs       []Crontab `yaml:"crontabs,omitempty" json:"crontabs,omitempty" validate:"dive"`
	BadgeURL       string    `yaml:"badge_url,omitempty" json:"badge_url,omitempty" validate:"omitempty,url"`
}

// Crontab is a scheduled CI build.
type Crontab struct {
	Interval string `yaml:"interval" json:"interval" validate:"oneof=daily weekly monthly"`
}

// CodeClimateData describes the code quality service state.
type CodeClimateData struct {
	RepoID       *string  `yaml:"repo_id,omitempty" json:"repo_id,omitempty"`
	TestCoverage *float64 `yaml:"test_coverage,omitempty" json:"test_coverage,omitempty" validate:"omitempty,min=0,max=100"`
	BadgeToken   *string  `yaml:"badge_token,omitempty" json:"badge_token,omitempty"`
}

// PyPIData tells whether the package page answered. Nil means unknown.
type PyPIData struct {
	Released *bool `yaml:"released,omitempty" json:"released,omitempty"`
}

// TravisBadgeURL returns the configured badge url or the default one.
func (s *Snapshot) TravisBadgeURL() string {
	if s.Travis.BadgeURL != "" {
		return s.Travis.BadgeURL
	}
	return fmt.Sprintf("https://travis-ci.org/%s/%s.svg", s.Owner, s.Name)
}
