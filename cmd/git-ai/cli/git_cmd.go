package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/git-ai-tool/git-ai/internal/gitintercept"
	"github.com/git-ai-tool/git-ai/internal/gitrepo"
	"github.com/git-ai-tool/git-ai/internal/logging"
)

// newGitCmd returns the `git-ai git <args...>` passthrough command: the
// wrapper a `git` shim on PATH execs into so every surrounding git
// command gets intercepted. It runs gitintercept.Run with the authorship
// pre/post hooks wired in (hooks_git_cmd.go).
func newGitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                "git [args...]",
		Short:              "Run the real git binary with authorship tracking wired around it",
		Hidden:             true,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGitIntercept(cmd, args)
		},
	}
	return cmd
}

// runGitIntercept is shared by the top-level `git-ai git ...` command and
// the `git-ai hooks git ...` entrypoint a PATH shim exec's into, so a repo
// can wire either convention into its PATH without duplicating the
// pre/post-hook composition.
func runGitIntercept(cmd *cobra.Command, args []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}

	gitDir := ""
	if repo, openErr := gitrepo.Open(wd); openErr == nil {
		gitDir, _ = repo.GitDir()
	}
	if gitDir == "" {
		gitDir = wd
	}
	logging.SetLogLevelGetter(GetLogLevel)
	cleanup := logging.Init(gitDir, "git-ai")
	defer cleanup()

	exitCode := gitintercept.Run(cmd.Context(), wd, args, authorshipHooks())
	if exitCode != 0 {
		return silent(exitCodeError{code: exitCode})
	}
	return nil
}

// exitCodeError carries the real git subprocess's exit code through to
// main.go so `git-ai git ...` mirrors it exactly instead of collapsing
// every failure to 1.
type exitCodeError struct{ code int }

func (e exitCodeError) Error() string { return "git exited non-zero" }
func (e exitCodeError) ExitCode() int { return e.code }
