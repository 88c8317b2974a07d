package config

import (
	"strings"
)

// Prerequisite gates a required build command on the repository's own
// configuration section.
type Prerequisite string

const (
	// PythonOnly applies when main_languages mentions python.
	PythonOnly Prerequisite = "python_only"
	// RusOnly applies when the repository language is ru.
	RusOnly Prerequisite = "rus_only"
)

// Holds reports whether the prerequisite is satisfied by repoConfig.
func (p Prerequisite) Holds(repoConfig map[string]string) bool {
	switch p {
	case PythonOnly:
		return strings.Contains(repoConfig["main_languages"], "python")
	case RusOnly:
		return repoConfig["language"] == "ru"
	default:
		return false
	}
}

// Config represents the full audit configuration document.
type Config struct {
	ConfigFileName    string `yaml:"config_file_name" validate:"required"`
	ConfigSectionName string `yaml:"config_section_name" validate:"required"`
	ReadmeFileName    string `yaml:"readme_file_name" validate:"required"`
	CIConfigFileName  string `yaml:"ci_config_file_name" validate:"required"`
	PackageNamePath   string `yaml:"package_name_path" validate:"required,package_path"`

	RequiredReadmeSections       [][]string           `yaml:"required_readme_sections" validate:"dive,min=1,dive,required"`
	RequiredCommandsToRunInBuild []CommandRequirement `yaml:"required_commands_to_run_in_build" validate:"dive"`
	RequiredPythonVersions       []string             `yaml:"required_python_versions" validate:"dive,python_version"`
	MaxAgeOfLastCommitInMonths   int                  `yaml:"max_age_of_last_commit_in_months" validate:"min=1"`
	MinTestCoveragePercents      float64              `yaml:"min_test_coverage_percents" validate:"min=0,max=100"`
	MinNumberOfActualIssues      int                  `yaml:"min_number_of_actual_issues" validate:"min=0"`
	MaxIssueUpdateAgeMonths      int                  `yaml:"max_issue_update_age_months" validate:"min=1"`
	MaxOKPullRequestAgeDays      int                  `yaml:"max_ok_pr_age_days" validate:"min=0"`

	Settings Settings `yaml:"settings,omitempty"`
}

// CommandRequirement lists alternative commands of which at least one has
// to appear in the last CI build, when every prerequisite holds.
type CommandRequirement struct {
	Prerequisites []Prerequisite `yaml:"prerequisites,omitempty" validate:"dive,oneof=python_only rus_only"`
	Commands      []string       `yaml:"cmd" validate:"required,min=1,dive,required"`
}

// Applies reports whether every prerequisite holds for repoConfig.
func (r CommandRequirement) Applies(repoConfig map[string]string) bool {
	for _, p := range r.Prerequisites {
		if !p.Holds(repoConfig) {
			return false
		}
	}
	return true
}

// Settings holds global execution parameters.
type Settings struct {
	Parallel int      `yaml:"parallel,omitempty" validate:"omitempty,min=1,max=32"`
	Skip     []string `yaml:"skip,omitempty" validate:"omitempty,dive,rule_id"`
}

// PackageFile is the file part of package_name_path.
func (c *Config) PackageFile() string {
	file, _, _ := strings.Cut(c.PackageNamePath, ":")
	return file
}

// PackageVariable is the variable part of a package_name_path value.
func PackageVariable(packageNamePath string) string {
	idx := strings.LastIndex(packageNamePath, ":")
	return packageNamePath[idx+1:]
}

// DefaultConfig returns the configuration used when no file is supplied.
func DefaultConfig() *Config {
	return &Config{
		ConfigFileName:    "setup.cfg",
		ConfigSectionName: "opensource_watchman",
		ReadmeFileName:    "README.md",
		CIConfigFileName:  ".travis.yml",
		PackageNamePath:   "setup.py:package_name",
		RequiredReadmeSections: [][]string{
			{"installation"},
			{"contributing", "contribution"},
			{"usage", "example"},
		},
		RequiredCommandsToRunInBuild: []CommandRequirement{
			{Prerequisites: []Prerequisite{PythonOnly}, Commands: []string{"flake8"}},
			{Prerequisites: []Prerequisite{PythonOnly}, Commands: []string{"mypy"}},
			{Prerequisites: []Prerequisite{PythonOnly}, Commands: []string{"pytest", "py.test", "python -m pytest"}},
			{Commands: []string{"mdl"}},
			{Prerequisites: []Prerequisite{PythonOnly}, Commands: []string{"safety"}},
			{Prerequisites: []Prerequisite{RusOnly}, Commands: []string{"rozental"}},
		},
		RequiredPythonVersions:     []string{"3.7", "3.8"},
		MaxAgeOfLastCommitInMonths: 6,
		MinTestCoveragePercents:    80,
		MinNumberOfActualIssues:    3,
		MaxIssueUpdateAgeMonths:    6,
		MaxOKPullRequestAgeDays:    7,
		Settings: Settings{
			Parallel: 1,
		},
	}
}

// Skipped reports whether ruleID is listed in settings.skip.
func (c *Config) Skipped(ruleID string) bool {
	for _, id := range c.Settings.Skip {
		if strings.EqualFold(id, ruleID) {
			return true
		}
	}
	return false
}
