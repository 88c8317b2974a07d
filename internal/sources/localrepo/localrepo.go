// Package localrepo reads repository data from a local git clone. It runs
// an ordered pipeline over the committed HEAD tree and overlays the result
// onto snapshot GitHub data.
package localrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"gopkg.in/ini.v1"

	"github.com/Melevir/opensource-watchman/internal/config"
	"github.com/Melevir/opensource-watchman/internal/engine"
	"github.com/Melevir/opensource-watchman/internal/logger"
	"github.com/Melevir/opensource-watchman/internal/markdown"
	"github.com/Melevir/opensource-watchman/internal/pipeline"
)

// Context keys produced by the pipeline.
const (
	keyRepository     = "repository"
	keyFiles          = "files"
	keyLastCommitDate = "last_commit_date"
	keyRepoConfig     = "repo_config"
	keyDescription    = "project_description"
)

// Data is what a local clone tells about a repository.
type Data struct {
	Files          map[string]string
	LastCommitDate *time.Time
	RepoConfig     map[string]string
	Description    string
}

// Source reads local clones using file names from the audit configuration.
type Source struct {
	cfg    *config.Config
	logger *logger.Logger
	trace  *engine.Trace
}

// Option customises a Source.
type Option func(*Source)

// WithLogger attaches a logger to the pipeline.
func WithLogger(log *logger.Logger) Option {
	return func(s *Source) {
		s.logger = log
	}
}

// WithTrace records pipeline steps into trace.
func WithTrace(trace *engine.Trace) Option {
	return func(s *Source) {
		s.trace = trace
	}
}

// New creates a Source. A nil cfg means DefaultConfig.
func New(cfg *config.Config, opts ...Option) *Source {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Source{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pipeline returns the ordered steps used by Read.
func (s *Source) Pipeline() (*pipeline.Pipeline, error) {
	return pipeline.New([]pipeline.Step{
		{
			Name:     "open_repository",
			Params:   []string{"repo_path"},
			Provides: []string{keyRepository},
			Kind:     engine.KindEffect,
			Fn:       openRepository,
		},
		{
			Name:     "read_target_files",
			Params:   []string{keyRepository, "target_files"},
			Provides: []string{keyFiles},
			Kind:     engine.KindEffect,
			Fn:       readTargetFiles,
		},
		{
			Name:     "read_last_commit_date",
			Params:   []string{keyRepository},
			Provides: []string{keyLastCommitDate},
			Kind:     engine.KindEffect,
			Fn:       readLastCommitDate,
		},
		{
			Name:     "parse_repo_config",
			Params:   []string{keyFiles, "config_file_name", "config_section_name"},
			Provides: []string{keyRepoConfig},
			Fn:       parseRepoConfig,
		},
		{
			Name:     "extract_project_description",
			Params:   []string{keyFiles, "readme_file_name"},
			Provides: []string{keyDescription},
			Fn: func(_ context.Context, in engine.Inputs) (pipeline.Update, error) {
				readme, err := readmeContent(in)
				if err != nil {
					return nil, err
				}
				return pipeline.Update{keyDescription: markdown.Sentence(markdown.Description(readme))}, nil
			},
		},
	}, pipeline.WithLogger(s.logger), pipeline.WithTrace(s.trace))
}

// TargetFiles lists the repository files the audit looks at.
func (s *Source) TargetFiles() []string {
	return []string{
		s.cfg.ReadmeFileName,
		s.cfg.CIConfigFileName,
		s.cfg.PackageFile(),
		s.cfg.ConfigFileName,
	}
}

// Read runs the pipeline against the clone at path.
func (s *Source) Read(ctx context.Context, path string) (*Data, error) {
	p, err := s.Pipeline()
	if err != nil {
		return nil, err
	}

	state, err := p.Run(ctx, map[string]any{
		"repo_path":           path,
		"target_files":        s.TargetFiles(),
		"config_file_name":    s.cfg.ConfigFileName,
		"config_section_name": s.cfg.ConfigSectionName,
		"readme_file_name":    s.cfg.ReadmeFileName,
	})
	if err != nil {
		return nil, fmt.Errorf("read local repository %s: %w", path, err)
	}

	data := &Data{}
	if data.Files, err = pipeline.Value[map[string]string](state, keyFiles); err != nil {
		return nil, err
	}
	if data.LastCommitDate, err = pipeline.Value[*time.Time](state, keyLastCommitDate); err != nil {
		return nil, err
	}
	if data.RepoConfig, err = pipeline.Value[map[string]string](state, keyRepoConfig); err != nil {
		return nil, err
	}
	if data.Description, err = pipeline.Value[string](state, keyDescription); err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]any{
		"path":  path,
		"files": len(data.Files),
	}).Debug("local repository read")
	return data, nil
}

// Overlay replaces snapshot GitHub data with what the clone holds. Files
// missing from the clone leave the snapshot value untouched, and the
// description is only filled when the snapshot has none. Badges are left to
// the audit, which reads them from the overlaid readme.
func (s *Source) Overlay(data *Data, gh *config.GitHubData) {
	if data == nil || gh == nil {
		return
	}

	overlayFile := func(name string, dst **string) {
		if content, ok := data.Files[name]; ok {
			*dst = &content
		}
	}
	overlayFile(s.cfg.ReadmeFileName, &gh.Readme)
	overlayFile(s.cfg.CIConfigFileName, &gh.CIConfig)
	overlayFile(s.cfg.PackageFile(), &gh.PackageFile)

	if len(data.RepoConfig) > 0 {
		gh.RepoConfig = data.RepoConfig
	}
	if data.LastCommitDate != nil {
		gh.LastCommitDate = data.LastCommitDate
	}
	if gh.Description == "" {
		gh.Description = data.Description
	}
}

func openRepository(_ context.Context, in engine.Inputs) (pipeline.Update, error) {
	path, err := engine.Input[string](in, "repo_path")
	if err != nil {
		return nil, err
	}
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return pipeline.Update{keyRepository: repo}, nil
}

// headCommit returns nil for a repository without commits.
func headCommit(repo *git.Repository) (*object.Commit, error) {
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	return repo.CommitObject(head.Hash())
}

func readTargetFiles(ctx context.Context, in engine.Inputs) (pipeline.Update, error) {
	repo, err := engine.Input[*git.Repository](in, keyRepository)
	if err != nil {
		return nil, err
	}
	targets, err := engine.Input[[]string](in, "target_files")
	if err != nil {
		return nil, err
	}

	files := make(map[string]string, len(targets))
	commit, err := headCommit(repo)
	if err != nil || commit == nil {
		return pipeline.Update{keyFiles: files}, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("read HEAD tree: %w", err)
	}

	for _, name := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, seen := files[name]; seen || name == "" {
			continue
		}
		file, err := tree.File(name)
		if errors.Is(err, object.ErrFileNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		content, err := file.Contents()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		files[name] = content
	}
	return pipeline.Update{keyFiles: files}, nil
}

func readLastCommitDate(_ context.Context, in engine.Inputs) (pipeline.Update, error) {
	repo, err := engine.Input[*git.Repository](in, keyRepository)
	if err != nil {
		return nil, err
	}
	commit, err := headCommit(repo)
	if err != nil {
		return nil, err
	}
	if commit == nil {
		return pipeline.Update{keyLastCommitDate: (*time.Time)(nil)}, nil
	}
	when := commit.Committer.When.UTC()
	return pipeline.Update{keyLastCommitDate: &when}, nil
}

// parseRepoConfig reads the watchman section of the INI style config file.
// A missing file or section yields an empty map.
func parseRepoConfig(_ context.Context, in engine.Inputs) (pipeline.Update, error) {
	files, err := engine.Input[map[string]string](in, keyFiles)
	if err != nil {
		return nil, err
	}
	fileName, err := engine.Input[string](in, "config_file_name")
	if err != nil {
		return nil, err
	}
	section, err := engine.Input[string](in, "config_section_name")
	if err != nil {
		return nil, err
	}

	repoConfig, err := ParseRepoConfig(files[fileName], section)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fileName, err)
	}
	return pipeline.Update{keyRepoConfig: repoConfig}, nil
}

// ParseRepoConfig returns the keys of section in an INI document.
func ParseRepoConfig(content, section string) (map[string]string, error) {
	values := map[string]string{}
	if content == "" {
		return values, nil
	}

	doc, err := ini.LoadSources(ini.LoadOptions{
		AllowPythonMultilineValues: true,
		SkipUnrecognizableLines:    true,
	}, []byte(content))
	if err != nil {
		return nil, err
	}
	if !doc.HasSection(section) {
		return values, nil
	}
	for key, value := range doc.Section(section).KeysHash() {
		values[key] = value
	}
	return values, nil
}

func readmeContent(in engine.Inputs) (string, error) {
	files, err := engine.Input[map[string]string](in, keyFiles)
	if err != nil {
		return "", err
	}
	name, err := engine.Input[string](in, "readme_file_name")
	if err != nil {
		return "", err
	}
	return files[name], nil
}
