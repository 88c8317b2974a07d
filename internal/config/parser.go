package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	watchmanerrors "github.com/Melevir/opensource-watchman/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// ParseConfig loads a configuration file from disk on top of DefaultConfig,
// validates it, and returns the resulting model.
func ParseConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, watchmanerrors.NewParseError(path, 0, err)
	}

	return ParseConfigBytes(path, data)
}

// ParseConfigBytes decodes data as a configuration document. Keys absent
// from data keep their default value.
func ParseConfigBytes(path string, data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, watchmanerrors.NewParseError(path, extractLine(err), err)
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadConfig returns DefaultConfig when path is empty and ParseConfig otherwise.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	return ParseConfig(path)
}

// LoadSnapshot reads and validates a repository snapshot document.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, watchmanerrors.NewParseError(path, 0, err)
	}

	return ParseSnapshot(path, data)
}

// ParseSnapshot decodes data as a repository snapshot.
func ParseSnapshot(path string, data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, watchmanerrors.NewParseError(path, extractLine(err), err)
	}

	if err := ValidateSnapshot(&snap); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}

	return &snap, nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	_, scanErr := fmt.Sscanf(matches[1], "%d", &line)
	if scanErr != nil {
		return 0
	}

	return line
}
