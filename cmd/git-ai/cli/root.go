package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

const gettingStarted = `

Getting Started:
  Run 'git-ai init' inside a repository to enable line-level AI
  authorship tracking, then use 'git-ai checkpoint <tool>' after an AI
  edit and 'git-ai checkpoint' after a human edit. Every 'git commit'
  (and every history-rewriting command wrapped through 'git-ai git ...')
  keeps the authorship record in sync automatically.
`

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "git-ai",
		Short:         "Line-level AI authorship tracking for Git",
		Long:          "git-ai tracks which lines of committed source were written by AI coding assistants versus humans." + gettingStarted,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newCheckpointCmd())
	cmd.AddCommand(newBlameCmd())
	cmd.AddCommand(newShowPromptCmd())
	cmd.AddCommand(newHooksCmd())
	cmd.AddCommand(newGitCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "git-ai %s\n", GitAIVersion)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
