package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/git-ai-tool/git-ai/internal/authorship"
	"github.com/git-ai-tool/git-ai/internal/giterrors"
	"github.com/git-ai-tool/git-ai/internal/promptstore"
)

func newShowPromptCmd() *cobra.Command {
	var commitRev string
	var offset int

	cmd := &cobra.Command{
		Use:   "show-prompt <short-hash>",
		Short: "Resolve a prompt session's transcript using the fallback chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash := args[0]
			repo, settings, err := openRepo("")
			if err != nil {
				return err
			}
			gitDir, err := repo.GitDir()
			if err != nil {
				return err
			}

			rev := commitRev
			if rev == "" {
				rev = headSHAOrInitial(repo)
			}

			// Resolve the hash first against the named commit's own log,
			// then fall back to walking reachable notes.
			var resolvers promptstore.ChainResolver
			if log, logErr := authorship.Read(repo, rev); logErr == nil {
				resolvers = append(resolvers, promptstore.InLogResolver{Log: log})
			}
			resolvers = append(resolvers, &promptstore.NoteWalkResolver{Repo: repo, Start: rev})

			cacheBytes := int64(0)
			if settings != nil {
				cacheBytes = settings.PromptCacheSizeBytes
			}
			cas, casErr := promptstore.OpenCAS(gitDir, cacheBytes)
			if casErr != nil {
				cas = nil
			}

			timeout := time.Duration(0)
			if settings != nil && settings.NetworkTimeoutSeconds > 0 {
				timeout = time.Duration(settings.NetworkTimeoutSeconds) * time.Second
			}
			fetcher := promptstore.NewFetcher(timeout)

			db, dbErr := promptstore.OpenDB(gitDir)
			if dbErr == nil {
				defer db.Close()
			} else {
				db = nil
			}

			session, messages, err := promptstore.Show(cmd.Context(), resolvers, cas, fetcher, db, hash)
			if err != nil {
				if errors.Is(err, giterrors.ErrPromptNotFound) {
					return silent(err)
				}
				return err
			}

			printSession(cmd, hash, session, messages, offset)
			return nil
		},
	}
	cmd.Flags().StringVar(&commitRev, "commit", "", "commit to resolve the hash from (defaults to HEAD)")
	cmd.Flags().IntVar(&offset, "offset", 0, "skip this many leading transcript messages")
	return cmd
}

func printSession(cmd *cobra.Command, hash string, session authorship.PromptSession, messages []authorship.Message, offset int) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  %s  %s\n", hash, session.AgentID.Tool, session.AgentID.Model)
	if session.HumanAuthor != "" {
		fmt.Fprintf(out, "human: %s\n", session.HumanAuthor)
	}
	fmt.Fprintf(out, "additions=%d deletions=%d accepted=%d overridden=%d\n",
		session.TotalAdditions, session.TotalDeletions, session.AcceptedLines, session.OverriddenLines)
	fmt.Fprintf(out, "transcript size: %s\n", humanize.Bytes(transcriptByteSize(messages)))

	if offset < 0 || offset > len(messages) {
		offset = 0
	}
	for _, m := range messages[offset:] {
		fmt.Fprintf(out, "--- %s (%s) ---\n%s\n", m.Kind, messageAge(m.Timestamp), m.Content)
	}
}

// transcriptByteSize sums the content length of every message, printed
// with humanize.Bytes so a show-prompt on a long session reads "42 kB"
// rather than a raw byte count.
func transcriptByteSize(messages []authorship.Message) uint64 {
	var n uint64
	for _, m := range messages {
		n += uint64(len(m.Content))
	}
	return n
}

// messageAge renders a message's timestamp as a relative duration
// ("3 minutes ago"); zero timestamps (messages read back from stores that
// don't carry one) print as "unknown time" rather than "54 years ago".
func messageAge(ts time.Time) string {
	if ts.IsZero() {
		return "unknown time"
	}
	return humanize.Time(ts)
}
