package cli

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/spf13/cobra"

	"github.com/git-ai-tool/git-ai/internal/authorship"
	"github.com/git-ai-tool/git-ai/internal/diffattr"
	"github.com/git-ai-tool/git-ai/internal/gitintercept"
	"github.com/git-ai-tool/git-ai/internal/gitrepo"
	"github.com/git-ai-tool/git-ai/internal/lineset"
	"github.com/git-ai-tool/git-ai/internal/workinglog"
)

// knownTools are the first positional argument values newCheckpointCmd
// recognizes as an AI tool rather than a path. mock_ai must always be
// accepted so tests never depend on a real agent integration.
var knownTools = map[string]bool{
	"mock_ai": true, "claude-code": true, "cursor": true, "windsurf": true,
	"copilot": true, "codex": true, "gemini-cli": true,
}

func newCheckpointCmd() *cobra.Command {
	var author string

	cmd := &cobra.Command{
		Use:   "checkpoint [tool] [<path>...]",
		Short: "Record a human or AI edit checkpoint",
		Long: "checkpoint records the current state of the named paths (or every " +
			"changed tracked path, if omitted) as a working-log checkpoint. A " +
			"recognized tool name (e.g. mock_ai) as the first argument records an " +
			"AI checkpoint using the agent identity from the environment; " +
			"otherwise the checkpoint is attributed to --author or the default " +
			"human author.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tool := ""
			paths := args
			if len(args) > 0 && knownTools[args[0]] {
				tool = args[0]
				paths = args[1:]
			}
			return runCheckpoint(cmd.Context(), tool, author, paths)
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "human author identity for a human checkpoint")
	return cmd
}

func runCheckpoint(ctx context.Context, tool, author string, paths []string) error {
	ctx = backgroundOrCmdCtx(ctx)
	repo, settings, err := openRepo("")
	if err != nil {
		return err
	}
	gitDir, err := repo.GitDir()
	if err != nil {
		return err
	}
	workDir := repoRootFromGitDir(gitDir)

	if len(paths) == 0 {
		paths, err = changedPaths(ctx, workDir)
		if err != nil {
			return err
		}
	}
	if len(paths) == 0 {
		return nil
	}

	baseSHA := headSHAOrInitial(repo)
	store, err := workinglog.OpenForBase(gitDir, baseSHA)
	if err != nil {
		return err
	}
	defer store.Close()

	if author == "" {
		author = settings.DefaultAuthor
	}

	cp := workinglog.Checkpoint{Kind: workinglog.Human, Author: author}
	if tool != "" {
		agentID := authorship.AgentID{
			Tool:  tool,
			ID:    envOrDefault("GIT_AI_SESSION_ID", "session-"+tool),
			Model: envOrDefault("GIT_AI_MODEL", "unknown-model"),
		}
		cp.Kind = workinglog.AiAgent
		cp.AgentID = &agentID
		if author == "" {
			author = "ai"
		}
		cp.Author = author
	}

	now := time.Now().UTC()
	authorID := authorship.HumanAuthor
	if cp.Kind == workinglog.AiAgent {
		authorID = cp.AgentID.ShortHash()
	}

	var diffHashInput []byte
	sort.Strings(paths)
	for _, p := range paths {
		rel, err := filepath.Rel(workDir, absPath(workDir, p))
		if err != nil {
			rel = p
		}
		newContent, err := os.ReadFile(absPath(workDir, p)) //nolint:gosec // path from caller's own checkpoint invocation
		if err != nil {
			continue // deleted file: nothing to attest
		}

		priorContent, prior := priorStateFor(repo, store, rel, baseSHA)
		result := diffattr.Compute(priorContent, string(newContent), prior, authorID, now)

		blobSHA, err := store.PutBlob(newContent)
		if err != nil {
			return err
		}

		cp.Entries = append(cp.Entries, workinglog.CheckpointEntry{
			FilePath:         rel,
			BlobSHA:          blobSHA,
			Attributions:     result.Attributions,
			LineAttributions: result.LineAttributions,
		})
		cp.LineStats.Additions += result.Additions
		cp.LineStats.Deletions += result.Deletions
		diffHashInput = append(diffHashInput, []byte(rel)...)
		diffHashInput = append(diffHashInput, newContent...)
	}
	if len(cp.Entries) == 0 {
		return nil
	}

	sum := sha256.Sum256(diffHashInput)
	cp.DiffHash = hex.EncodeToString(sum[:])
	cp.CreatedAt = now

	_, err = store.AppendCheckpoint(cp)
	return err
}

// priorStateFor resolves the content and per-line author map the new
// checkpoint should diff against: the most recent working-log checkpoint
// for the file if one exists, else the file as committed at baseSHA.
func priorStateFor(repo *gitrepo.Repo, store *workinglog.Store, relPath, baseSHA string) (string, diffattr.PriorAuthors) {
	entries, err := store.EntriesForFile(relPath)
	if err == nil && len(entries) > 0 {
		last := entries[len(entries)-1]
		content, cerr := store.GetBlob(last.BlobSHA)
		if cerr == nil {
			prior := diffattr.PriorAuthors{}
			for _, a := range last.Attributions {
				for l := a.Range.Start; l <= a.Range.End; l++ {
					prior[l] = a.AuthorID
				}
			}
			return string(content), prior
		}
	}

	if baseSHA == workinglog.InitialBaseName {
		return "", nil
	}
	commit, err := repo.CommitObject(plumbing.NewHash(baseSHA))
	if err != nil {
		return "", nil
	}
	tree, err := commit.Tree()
	if err != nil {
		return "", nil
	}
	f, err := tree.File(relPath)
	if err != nil {
		return "", nil
	}
	content, err := f.Contents()
	if err != nil {
		return "", nil
	}

	log, err := authorship.Read(repo, baseSHA)
	if err != nil {
		return content, nil
	}
	fa, ok := log.FileByPath(relPath)
	if !ok {
		return content, nil
	}
	prior := diffattr.PriorAuthors{}
	for _, line := range lineset.Compress(allLines(content)).Lines() {
		if a := fa.AuthorAt(line); a != "" {
			prior[line] = a
		}
	}
	return content, prior
}

func allLines(content string) []int {
	n := 0
	if content != "" {
		n = 1
		for _, r := range content {
			if r == '\n' {
				n++
			}
		}
		if content[len(content)-1] == '\n' {
			n--
		}
	}
	lines := make([]int, n)
	for i := range lines {
		lines[i] = i + 1
	}
	return lines
}

func headSHAOrInitial(repo *gitrepo.Repo) string {
	head, err := repo.Head()
	if err != nil {
		return workinglog.InitialBaseName
	}
	return head.Hash().String()
}

func changedPaths(ctx context.Context, workDir string) ([]string, error) {
	res, err := gitintercept.ExecGit(ctx, workDir, []string{"status", "--porcelain"})
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range splitLines(string(res.Stdout)) {
		if len(line) < 4 {
			continue
		}
		out = append(out, line[3:])
	}
	return out, nil
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func absPath(workDir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workDir, p)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
