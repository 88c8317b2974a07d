package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	watchmanerrors "github.com/Melevir/opensource-watchman/pkg/errors"
)

func TestValidatorInstance_IsShared(t *testing.T) {
	t.Parallel()

	require.Same(t, validatorInstance(), validatorInstance())
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(cfg *Config)
		field  string
	}{
		{name: "defaults are valid"},
		{
			name:   "missing readme name",
			mutate: func(cfg *Config) { cfg.ReadmeFileName = "" },
			field:  "readme_file_name",
		},
		{
			name:   "empty readme section alternatives",
			mutate: func(cfg *Config) { cfg.RequiredReadmeSections = append(cfg.RequiredReadmeSections, []string{}) },
			field:  "required_readme_sections[3]",
		},
		{
			name: "unknown prerequisite",
			mutate: func(cfg *Config) {
				cfg.RequiredCommandsToRunInBuild[0].Prerequisites = []Prerequisite{"go_only"}
			},
			field: "required_commands_to_run_in_build[0].prerequisites[0]",
		},
		{
			name:   "command requirement without commands",
			mutate: func(cfg *Config) { cfg.RequiredCommandsToRunInBuild[3].Commands = nil },
			field:  "required_commands_to_run_in_build[3].cmd",
		},
		{
			name:   "coverage above one hundred",
			mutate: func(cfg *Config) { cfg.MinTestCoveragePercents = 120 },
			field:  "min_test_coverage_percents",
		},
		{
			name:   "parallel out of range",
			mutate: func(cfg *Config) { cfg.Settings.Parallel = 64 },
			field:  "settings.parallel",
		},
		{
			name:   "duplicate python version",
			mutate: func(cfg *Config) { cfg.RequiredPythonVersions = []string{"3.8", "3.8"} },
			field:  "required_python_versions[1]",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			if tc.mutate != nil {
				tc.mutate(cfg)
			}

			err := ValidateConfig(cfg)
			if tc.field == "" {
				require.NoError(t, err)
				return
			}

			var valErr *watchmanerrors.ValidationError
			require.ErrorAs(t, err, &valErr)
			require.Equal(t, tc.field, valErr.Field)
		})
	}
}

func TestValidateConfig_Nil(t *testing.T) {
	t.Parallel()

	var valErr *watchmanerrors.ValidationError
	require.ErrorAs(t, ValidateConfig(nil), &valErr)
}

func TestPrerequisites(t *testing.T) {
	t.Parallel()

	python := map[string]string{"main_languages": "python, js"}
	russian := map[string]string{"language": "ru"}

	require.True(t, PythonOnly.Holds(python))
	require.False(t, PythonOnly.Holds(russian))
	require.True(t, RusOnly.Holds(russian))
	require.False(t, Prerequisite("other").Holds(python))

	req := CommandRequirement{Prerequisites: []Prerequisite{PythonOnly, RusOnly}, Commands: []string{"rozental"}}
	require.False(t, req.Applies(python))
	require.True(t, req.Applies(map[string]string{"main_languages": "python", "language": "ru"}))
	require.True(t, CommandRequirement{Commands: []string{"mdl"}}.Applies(nil))
}

func TestPackageNamePath(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.Equal(t, "setup.py", cfg.PackageFile())
	require.Equal(t, "package_name", PackageVariable(cfg.PackageNamePath))
	require.Equal(t, "__title__", PackageVariable("pkg/__about__.py:__title__"))
}
