package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/git-ai-tool/git-ai/internal/config"
	"github.com/git-ai-tool/git-ai/internal/gitintercept"
)

// shimSnippet is the shell line printed at the end of the wizard: it
// points a plain `git` invocation at this binary so every surrounding
// git command gets intercepted. Installing it is left to the user rather
// than done for them, since it edits a file init doesn't own.
const shimSnippet = `git() { git-ai git "$@"; }`

func newInitCmd() *cobra.Command {
	var tool string
	var author string
	var nonInteractive bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Set up line-level AI authorship tracking for this repository",
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, settings, err := openRepo("")
			if err != nil {
				return fmt.Errorf("git-ai init must run inside a git repository: %w", err)
			}
			gitDir, err := repo.GitDir()
			if err != nil {
				return err
			}
			repoRoot := repoRootFromGitDir(gitDir)

			if author == "" {
				author = settings.DefaultAuthor
			}
			if author == "" || author == "human" {
				if detected := detectGitUserName(cmd.Context(), repoRoot); detected != "" {
					author = detected
				}
			}

			if !nonInteractive && isInteractiveTerminal() {
				if err := runInitForm(&tool, &author); err != nil {
					return silent(err)
				}
			}

			settings.DefaultAuthor = author
			if err := config.Save(repoRoot, settings); err != nil {
				return err
			}

			printInitSummary(cmd, author, tool)
			return nil
		},
	}

	cmd.Flags().StringVar(&tool, "tool", "", "default AI tool to mention in the getting-started output")
	cmd.Flags().StringVar(&author, "author", "", "default human author identity")
	cmd.Flags().BoolVar(&nonInteractive, "yes", false, "skip the interactive prompts and accept the detected/flag values")
	return cmd
}

func runInitForm(tool, author *string) error {
	toolOptions := make([]huh.Option[string], 0, len(knownTools)+1)
	toolOptions = append(toolOptions, huh.NewOption("none / ask at checkpoint time", ""))
	for name := range knownTools {
		toolOptions = append(toolOptions, huh.NewOption(name, name))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Default human author identity").
				Description("Recorded in checkpoint metadata when no --author flag is given.").
				Value(author),
			huh.NewSelect[string]().
				Title("Primary AI coding assistant").
				Description("Used for the getting-started hint only; checkpoint recognizes every listed tool regardless of this choice.").
				Options(toolOptions...).
				Value(tool),
		),
	)
	return form.Run()
}

func printInitSummary(cmd *cobra.Command, author, tool string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "git-ai configured (default author: %s)\n\n", author)
	fmt.Fprintln(out, "Add the following to your shell profile so every git invocation is tracked:")
	fmt.Fprintf(out, "\n  %s\n\n", shimSnippet)
	if tool != "" {
		fmt.Fprintf(out, "After an edit from %s, run:\n  git-ai checkpoint %s\n", tool, tool)
	}
	fmt.Fprintln(out, "After a manual edit, run:\n  git-ai checkpoint")
}

// isInteractiveTerminal gates the huh wizard on stdout actually being a
// TTY, falling back to the flag/detected defaults when git-ai runs from a
// script, CI job, or editor-integration hook with no terminal attached.
func isInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func detectGitUserName(ctx context.Context, repoRoot string) string {
	res, err := gitintercept.ExecGit(ctx, repoRoot, []string{"config", "user.name"})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(res.Stdout))
}
