package cli

import (
	"context"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/spf13/cobra"

	"github.com/git-ai-tool/git-ai/internal/authorship"
	"github.com/git-ai-tool/git-ai/internal/config"
	"github.com/git-ai-tool/git-ai/internal/gitargv"
	"github.com/git-ai-tool/git-ai/internal/gitintercept"
	"github.com/git-ai-tool/git-ai/internal/gitrepo"
	"github.com/git-ai-tool/git-ai/internal/logging"
	"github.com/git-ai-tool/git-ai/internal/promptstore"
	"github.com/git-ai-tool/git-ai/internal/reconcile"
	"github.com/git-ai-tool/git-ai/internal/synth"
	"github.com/git-ai-tool/git-ai/internal/workinglog"
)

// newHooksCmd is the hidden parent for commands a PATH shim invokes
// instead of running the real git directly.
func newHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "hooks",
		Short:  "Internal hook entrypoints",
		Long:   "Commands invoked by an installed git shim. Not for direct use.",
		Hidden: true,
	}
	cmd.AddCommand(&cobra.Command{
		Use:                "git [args...]",
		Hidden:             true,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGitIntercept(cmd, args)
		},
	})
	return cmd
}

// authorshipHooks composes the pre/post hooks gitintercept.Run drives
// around every wrapped git invocation: Pre captures the state a Post
// dispatch needs (the HEAD the command is about to move away from), Post
// folds pending working-log checkpoints into a new note or repairs notes
// orphaned by a history rewrite, depending on which operation ran.
func authorshipHooks() gitintercept.Hooks {
	return gitintercept.Hooks{Pre: hookPre, Post: hookPost}
}

func hookPre(ctx context.Context, inv gitargv.Invocation) (gitintercept.PreState, error) {
	repo, _, err := openRepo("")
	if err != nil {
		return gitintercept.PreState{}, err
	}
	gitDir, err := repo.GitDir()
	if err != nil {
		return gitintercept.PreState{}, err
	}
	return gitintercept.PreState{
		"old_head": headSHAOrInitial(repo),
		"git_dir":  gitDir,
	}, nil
}

func hookPost(ctx context.Context, inv gitargv.Invocation, pre gitintercept.PreState, exitCode int) error {
	if exitCode != 0 {
		return nil
	}
	repo, settings, err := openRepo("")
	if err != nil {
		return err
	}
	gitDir := pre["git_dir"]
	if gitDir == "" {
		gitDir, err = repo.GitDir()
		if err != nil {
			return err
		}
	}
	workDir := repoRootFromGitDir(gitDir)
	oldHead := pre["old_head"]
	newHead := headSHAOrInitial(repo)

	op := gitintercept.Classify(inv.Command)
	historyRewrite := op.RewritesHistory() || (settings != nil && settings.IsHistoryRewriteCommand(inv.Command))
	if historyRewrite {
		lock, lockErr := reconcile.AcquireLock(gitDir)
		if lockErr != nil {
			return lockErr
		}
		defer lock.Release()
	}

	var dispatchErr error
	switch op {
	case gitintercept.OpCommit:
		dispatchErr = hookCommit(repo, gitDir, workDir, oldHead, newHead, inv.HasCommandFlag("--amend"), settings)
	case gitintercept.OpMerge:
		dispatchErr = hookMerge(ctx, repo, gitDir, workDir, oldHead, newHead, inv, settings)
	case gitintercept.OpCherryPick:
		dispatchErr = hookCherryPick(ctx, repo, workDir, oldHead, newHead, inv)
	case gitintercept.OpRebase:
		dispatchErr = hookRebase(ctx, repo, workDir, oldHead, newHead, inv)
	case gitintercept.OpStash:
		dispatchErr = hookStash(ctx, gitDir, workDir, oldHead, newHead, inv)
	case gitintercept.OpReset:
		dispatchErr = hookReset(gitDir, oldHead, newHead)
	}

	if historyRewrite {
		if _, err := reconcile.PruneOrphans(gitDir, repo); err != nil {
			logging.Warn(ctx, "pruning orphaned working logs failed", "error", err.Error())
		}
	}
	return dispatchErr
}

// hookCommit folds the working log accumulated against oldHead into a
// note for newHead, then archives that log and opens a fresh one keyed
// by newHead for the checkpoints that follow.
func hookCommit(repo *gitrepo.Repo, gitDir, workDir, oldHead, newHead string, amend bool, settings *config.Settings) error {
	if oldHead == newHead {
		return nil
	}
	store, err := workinglog.OpenForBase(gitDir, oldHead)
	if err != nil {
		return err
	}
	defer store.Close()

	checkpoints, err := store.ListCheckpoints()
	if err != nil {
		return err
	}
	logged := synth.Synthesize(checkpoints, newHead, GitAIVersion)

	if amend {
		var synthesized *authorship.Log
		if len(checkpoints) > 0 {
			synthesized = &logged
		}
		if err := reconcile.Amend(repo, oldHead, newHead, synthesized, GitAIVersion); err != nil {
			return err
		}
	} else if err := authorship.Write(repo, newHead, logged); err != nil {
		return err
	}

	cacheBytes := int64(0)
	if settings != nil {
		cacheBytes = settings.PromptCacheSizeBytes
	}
	if err := promptstore.SpillTranscripts(gitDir, workDir, newHead, logged, cacheBytes); err != nil {
		logging.Warn(context.Background(), "prompt store spill failed", "error", err.Error())
	}

	if err := store.ArchiveAt(newHead); err != nil {
		return err
	}
	next, err := workinglog.OpenForBase(gitDir, newHead)
	if err != nil {
		return err
	}
	return next.Close()
}

func hookMerge(ctx context.Context, repo *gitrepo.Repo, gitDir, workDir, oldHead, newHead string, inv gitargv.Invocation, settings *config.Settings) error {
	if inv.HasCommandFlag("--squash") {
		branch, ok := inv.PosArg(0)
		if !ok {
			return nil
		}
		sourceTip, err := resolveRev(ctx, workDir, branch)
		if err != nil {
			return err
		}
		checkpoints, err := reconcile.TranslateForMergeSquash(repo, sourceTip)
		if err != nil || len(checkpoints) == 0 {
			return err
		}
		store, err := workinglog.OpenForBase(gitDir, oldHead)
		if err != nil {
			return err
		}
		defer store.Close()
		for _, cp := range checkpoints {
			if _, err := store.AppendCheckpoint(cp); err != nil {
				return err
			}
		}
		return nil
	}
	return hookCommit(repo, gitDir, workDir, oldHead, newHead, false, settings)
}

func hookCherryPick(ctx context.Context, repo *gitrepo.Repo, workDir, oldHead, newHead string, inv gitargv.Invocation) error {
	if oldHead == newHead {
		return nil
	}
	var oldCommits []string
	for i := 0; ; i++ {
		arg, ok := inv.PosArg(i)
		if !ok {
			break
		}
		sha, err := resolveRev(ctx, workDir, arg)
		if err != nil {
			continue
		}
		oldCommits = append(oldCommits, sha)
	}
	newCommits, err := revList(ctx, workDir, oldHead+".."+newHead)
	if err != nil {
		return err
	}
	return pairUpAndReconcile(repo, oldCommits, newCommits)
}

func hookRebase(ctx context.Context, repo *gitrepo.Repo, workDir, oldHead, newHead string, inv gitargv.Invocation) error {
	if oldHead == newHead {
		return nil
	}
	if inv.HasCommandFlag("--rebase-merges") {
		pairs, err := reconcile.MapRebaseMerges(repo, oldHead, newHead, func(o, n string) bool {
			return sameTree(repo, o, n)
		})
		if err != nil {
			return err
		}
		for _, p := range pairs {
			if p.Old == p.New {
				continue
			}
			if _, err := reconcile.Transplant(repo, p.Old, p.New, GitAIVersion); err != nil {
				return err
			}
		}
		return nil
	}

	upstream, _ := inv.PosArg(0)
	base := upstream
	if base == "" {
		base = newHead
	}
	mergeBase, err := mergeBaseOf(ctx, workDir, oldHead, base)
	if err != nil {
		return err
	}
	oldCommits, err := revList(ctx, workDir, mergeBase+".."+oldHead)
	if err != nil {
		return err
	}
	newCommits, err := revList(ctx, workDir, mergeBase+".."+newHead)
	if err != nil {
		return err
	}
	return pairUpAndReconcile(repo, oldCommits, newCommits)
}

func pairUpAndReconcile(repo *gitrepo.Repo, oldCommits, newCommits []string) error {
	switch {
	case len(oldCommits) == 0 || len(newCommits) == 0:
		return nil
	case len(oldCommits) == len(newCommits):
		for i := range oldCommits {
			if _, err := reconcile.Transplant(repo, oldCommits[i], newCommits[i], GitAIVersion); err != nil {
				return err
			}
		}
		return nil
	case len(newCommits) == 1:
		_, err := reconcile.SquashFixup(repo, oldCommits, newCommits[0], GitAIVersion)
		return err
	default:
		n := len(oldCommits)
		if len(newCommits) < n {
			n = len(newCommits)
		}
		for i := 0; i < n; i++ {
			if _, err := reconcile.Transplant(repo, oldCommits[i], newCommits[i], GitAIVersion); err != nil {
				return err
			}
		}
		return nil
	}
}

func hookStash(ctx context.Context, gitDir, workDir, oldHead, newHead string, inv gitargv.Invocation) error {
	sub, ok := inv.PosArg(0)
	if !ok {
		sub = "push"
	}
	switch sub {
	case "push", "save", "":
		store, err := workinglog.OpenForBase(gitDir, oldHead)
		if err != nil {
			return err
		}
		defer store.Close()
		stashSHA, err := resolveRev(ctx, workDir, "stash@{0}")
		if err != nil {
			return nil // nothing was stashed (e.g. clean tree)
		}
		return reconcile.SealForStash(store, stashSHA)
	case "pop", "apply":
		store, err := reconcile.RestoreForStash(gitDir, newHead)
		if err != nil {
			return err
		}
		return store.Close()
	default:
		return nil
	}
}

func hookReset(gitDir, oldHead, newHead string) error {
	if oldHead == newHead {
		return nil
	}
	oldStore, err := workinglog.OpenForBase(gitDir, oldHead)
	if err != nil {
		return err
	}
	newStore, err := reconcile.ResealForReset(oldStore, oldHead, gitDir, newHead)
	if err != nil {
		return err
	}
	return newStore.Close()
}

func sameTree(repo *gitrepo.Repo, oldSHA, newSHA string) bool {
	oldCommit, err := repo.CommitObject(plumbing.NewHash(oldSHA))
	if err != nil {
		return false
	}
	newCommit, err := repo.CommitObject(plumbing.NewHash(newSHA))
	if err != nil {
		return false
	}
	if oldCommit.TreeHash == newCommit.TreeHash {
		return true
	}
	return strings.TrimSpace(oldCommit.Message) == strings.TrimSpace(newCommit.Message)
}

func resolveRev(ctx context.Context, workDir, rev string) (string, error) {
	res, err := gitintercept.ExecGit(ctx, workDir, []string{"rev-parse", rev})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}

func mergeBaseOf(ctx context.Context, workDir, a, b string) (string, error) {
	res, err := gitintercept.ExecGit(ctx, workDir, []string{"merge-base", a, b})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}

func revList(ctx context.Context, workDir, rangeExpr string) ([]string, error) {
	res, err := gitintercept.ExecGit(ctx, workDir, []string{"rev-list", "--reverse", rangeExpr})
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(string(res.Stdout)), "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}
