package config

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	watchmanerrors "github.com/Melevir/opensource-watchman/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	ruleIDPattern        = regexp.MustCompile(`^[A-Za-z]\d{2}$`)
	pythonVersionPattern = regexp.MustCompile(`^\d+\.\d+(?:\.\d+)?$`)
	packagePathPattern   = regexp.MustCompile(`^[^:\s]+:[A-Za-z_][A-Za-z0-9_]*$`)
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})

		_ = v.RegisterValidation("rule_id", func(fl validator.FieldLevel) bool {
			return ruleIDPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("python_version", func(fl validator.FieldLevel) bool {
			return pythonVersionPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("package_path", func(fl validator.FieldLevel) bool {
			return packagePathPattern.MatchString(fl.Field().String())
		})

		validateInst = v
	})

	return validateInst
}

// ValidateConfig performs schema and cross-field validation on the configuration.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return watchmanerrors.NewValidationError("config", "configuration is nil", nil)
	}

	if err := validatorInstance().Struct(cfg); err != nil {
		return convertValidationError(err)
	}

	seen := make(map[string]struct{}, len(cfg.RequiredPythonVersions))
	for i, version := range cfg.RequiredPythonVersions {
		if _, ok := seen[version]; ok {
			return watchmanerrors.NewValidationError(
				fmt.Sprintf("required_python_versions[%d]", i),
				fmt.Sprintf("duplicate python version %q", version),
				nil,
			)
		}
		seen[version] = struct{}{}
	}

	return nil
}

// ValidateSnapshot checks the structural constraints of a repository snapshot.
func ValidateSnapshot(snap *Snapshot) error {
	if snap == nil {
		return watchmanerrors.NewValidationError("snapshot", "snapshot is nil", nil)
	}

	if err := validatorInstance().Struct(snap); err != nil {
		return convertValidationError(err)
	}

	issues := make(map[int]struct{}, len(snap.GitHub.OpenIssues))
	for i, issue := range snap.GitHub.OpenIssues {
		if _, ok := issues[issue.Number]; ok {
			return watchmanerrors.NewValidationError(
				fmt.Sprintf("github.open_issues[%d].number", i),
				fmt.Sprintf("duplicate issue number %d", issue.Number),
				nil,
			)
		}
		issues[issue.Number] = struct{}{}
	}

	pulls := make(map[int]struct{}, len(snap.GitHub.OpenPullRequests))
	for i, pr := range snap.GitHub.OpenPullRequests {
		if _, ok := pulls[pr.Number]; ok {
			return watchmanerrors.NewValidationError(
				fmt.Sprintf("github.open_pull_requests[%d].number", i),
				fmt.Sprintf("duplicate pull request number %d", pr.Number),
				nil,
			)
		}
		pulls[pr.Number] = struct{}{}
	}

	return nil
}
