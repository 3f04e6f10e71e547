// Package cli wires the core components (internal/...) into the `git-ai`
// command-line surface: checkpoint, blame, show-prompt, and the hooks
// subtree the git wrapper drives. One file per command, errors returned
// rather than printed inline, RunE everywhere.
package cli

import (
	"context"
	"errors"
	"os"

	"github.com/git-ai-tool/git-ai/internal/config"
	"github.com/git-ai-tool/git-ai/internal/giterrors"
	"github.com/git-ai-tool/git-ai/internal/gitrepo"
)

// GitAIVersion is stamped into every authorship log's metadata.git_ai_version
// field. Overridable at build time via -ldflags.
var GitAIVersion = "dev"

// SilentError wraps an error that main.go's top-level handler does not
// print: either the command has already reported it to the user, or the
// exit code alone signals it (show-prompt's unknown short hash, exit 2).
type SilentError struct{ Err error }

func (e *SilentError) Error() string { return e.Err.Error() }
func (e *SilentError) Unwrap() error { return e.Err }

func silent(err error) error {
	if err == nil {
		return nil
	}
	return &SilentError{Err: err}
}

// codedError is implemented by errors that carry their own process exit
// code, such as exitCodeError from a passed-through git subprocess.
type codedError interface{ ExitCode() int }

// ExitCodeFor follows the Git convention: 0 success, 2 for "query
// returned no results", the wrapped subprocess's own code when one is
// present, 1 for everything else.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var coded codedError
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	if errors.Is(err, giterrors.ErrNoResults) || errors.Is(err, giterrors.ErrPromptNotFound) {
		return 2
	}
	return 1
}

// openRepo opens the repository containing dir (or the current
// directory if dir is empty) and loads its settings.
func openRepo(dir string) (*gitrepo.Repo, *config.Settings, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, nil, err
		}
		dir = wd
	}
	repo, err := gitrepo.Open(dir)
	if err != nil {
		return nil, nil, err
	}
	gitDir, err := repo.GitDir()
	if err != nil {
		return nil, nil, err
	}
	settings, err := config.Load(repoRootFromGitDir(gitDir))
	if err != nil {
		settings, _ = config.Load("")
	}
	return repo, settings, nil
}

// GetLogLevel returns the configured log level for the repository
// containing the current working directory, registered with
// logging.SetLogLevelGetter as a fallback for when GIT_AI_LOG_LEVEL is
// unset. Returns empty string if settings can't be loaded.
func GetLogLevel() string {
	_, settings, err := openRepo("")
	if err != nil || settings == nil {
		return ""
	}
	return settings.LogLevel
}

func repoRootFromGitDir(gitDir string) string {
	// gitDir is "<root>/.git"; strip the trailing component.
	if len(gitDir) > 5 && gitDir[len(gitDir)-5:] == "/.git" {
		return gitDir[:len(gitDir)-5]
	}
	return gitDir
}

func backgroundOrCmdCtx(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
