package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/git-ai-tool/git-ai/internal/blame"
	"github.com/git-ai-tool/git-ai/internal/workinglog"
)

// gitAIOnlyBlameFlags are recognized by git-ai itself and stripped
// before the remaining argv is passed through verbatim to `git blame`:
// every other flag's semantics are untouched.
var gitAIOnlyBlameFlags = map[string]bool{
	"--mark-unknown":             true,
	"--use-prompt-hashes-as-names": true,
}

func newBlameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                "blame [git-blame-flags] [--mark-unknown] [--contents -] <path>",
		Short:              "Show per-line authorship, attributing AI-authored lines to their prompt session",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, settings, err := openRepo("")
			if err != nil {
				return err
			}
			markUnknownDefault := settings != nil && settings.MarkUnknownBlame
			opts, path, err := parseBlameArgs(args, cmd.InOrStdin(), markUnknownDefault)
			if err != nil {
				return err
			}
			gitDir, err := repo.GitDir()
			if err != nil {
				return err
			}
			workDir := repoRootFromGitDir(gitDir)

			var store *workinglog.Store
			if opts.ContentsPath != "" {
				store, err = workinglog.OpenForBase(gitDir, headSHAOrInitial(repo))
				if err == nil {
					defer store.Close()
				}
			}

			lines, err := blame.Run(cmd.Context(), repo, workDir, path, opts, store)
			if err != nil {
				return err
			}
			printBlame(cmd.OutOrStdout(), lines)
			return nil
		},
	}
	return cmd
}

// parseBlameArgs separates git-ai's own flags from the pass-through git
// blame argv, reading --contents - from stdin when requested.
// markUnknownDefault seeds opts.MarkUnknown from settings.mark_unknown_blame;
// a literal --mark-unknown flag always wins over it.
func parseBlameArgs(args []string, stdin io.Reader, markUnknownDefault bool) (blame.Options, string, error) {
	opts := blame.Options{MarkUnknown: markUnknownDefault}
	var rest []string

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--mark-unknown":
			opts.MarkUnknown = true
		case a == "--use-prompt-hashes-as-names":
			opts.UsePromptHashesAsNames = true
		case a == "--contents":
			i++
			if i >= len(args) {
				return opts, "", fmt.Errorf("--contents requires a value")
			}
			if args[i] == "-" {
				// ExecGit runs git blame as a detached subprocess with no
				// stdin wired through, so the buffer this process reads
				// from its own stdin is written to a scratch file and
				// that path is handed to `git blame --contents` instead.
				buf, err := io.ReadAll(stdin)
				if err != nil {
					return opts, "", err
				}
				f, err := os.CreateTemp("", "git-ai-blame-contents-*")
				if err != nil {
					return opts, "", err
				}
				if _, err := f.Write(buf); err != nil {
					f.Close()
					return opts, "", err
				}
				f.Close()
				opts.ContentsPath = f.Name()
			} else {
				opts.ContentsPath = args[i]
			}
		default:
			if !gitAIOnlyBlameFlags[a] {
				rest = append(rest, a)
			}
		}
	}

	if len(rest) == 0 {
		return opts, "", fmt.Errorf("blame requires a path")
	}
	path := rest[len(rest)-1]
	opts.ExtraGitArgs = rest[:len(rest)-1]

	return opts, path, nil
}

func printBlame(w io.Writer, lines []blame.Line) {
	width := 0
	for _, l := range lines {
		if n := len(l.AuthorName); n > width {
			width = n
		}
	}
	for i, l := range lines {
		sha := l.CommitSHA
		if len(sha) > 8 {
			sha = sha[:8]
		}
		author := l.AuthorName
		if width > 0 {
			author = author + strings.Repeat(" ", width-len(author))
		}
		fmt.Fprintf(w, "%s (%s %5d) %s\n", sha, author, i+1, l.Content)
	}
}
