// Package reconcile implements the history-rewrite reconciler: whenever
// a Git operation replaces commits C_old_1..n with C_new_1..m, it
// rebuilds authorship notes for the new commits that preserve the intent
// of the originals, rather than leaving them orphaned or silently empty.
package reconcile

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/git-ai-tool/git-ai/internal/authorship"
	"github.com/git-ai-tool/git-ai/internal/diffattr"
	"github.com/git-ai-tool/git-ai/internal/gitrepo"
	"github.com/git-ai-tool/git-ai/internal/lineset"
	"github.com/git-ai-tool/git-ai/internal/logging"
	"github.com/git-ai-tool/git-ai/internal/workinglog"
)

// CommitPair associates an old commit with the new commit that replaced
// it.
type CommitPair struct {
	Old string
	New string
}

// Amend rebuilds the note for newSHA, the replacement for oldSHA
// produced by `git commit --amend`. A non-nil synthesized log (folded
// from the working-log checkpoints accumulated since oldSHA) is installed
// under the new SHA as is. With a nil synthesized log, oldSHA's log is
// carried over verbatim, or an empty log is written if oldSHA has none.
func Amend(repo *gitrepo.Repo, oldSHA, newSHA string, synthesized *authorship.Log, gitAIVersion string) error {
	var log authorship.Log
	if synthesized != nil {
		log = *synthesized
	} else {
		old, err := authorship.Read(repo, oldSHA)
		if err != nil {
			log = authorship.New(newSHA, gitAIVersion)
		} else {
			log = old
		}
	}
	log.Metadata.BaseCommitSHA = newSHA
	if log.Metadata.SchemaVersion == "" {
		log.Metadata.SchemaVersion = authorship.SchemaVersion
	}
	return authorship.Write(repo, newSHA, log)
}

// Transplant handles a non-merge rebase or cherry-pick replacing oldSHA
// with newSHA: files identical between the old and new trees keep their
// attestations unchanged; files whose content differs (typically due to
// conflict resolution) are re-attributed by diffing newSHA's parent tree
// against newSHA's tree, crediting the edit to the human resolving the
// conflict and carrying forward whichever AI sessions still own unchanged
// lines.
func Transplant(repo *gitrepo.Repo, oldSHA, newSHA, gitAIVersion string) (authorship.Log, error) {
	oldLog, err := authorship.Read(repo, oldSHA)
	if err != nil {
		// No note on C_old: synthesize an empty, human-only log.
		empty := authorship.New(newSHA, gitAIVersion)
		return empty, authorship.Write(repo, newSHA, empty)
	}

	oldTree, err := treeFor(repo, oldSHA)
	if err != nil {
		return authorship.Log{}, err
	}
	newTree, err := treeFor(repo, newSHA)
	if err != nil {
		return authorship.Log{}, err
	}
	parentTree, err := parentTreeFor(repo, newSHA)
	if err != nil {
		return authorship.Log{}, err
	}
	parentLog := emptyLogIfMissing(repo, newSHA, gitAIVersion, parentSHA(repo, newSHA))

	newLog := authorship.New(newSHA, gitAIVersion)
	newLog.Metadata.Prompts = clonePrompts(oldLog.Metadata.Prompts)

	for _, path := range unionPaths(oldTree, newTree) {
		newContent, newOK := fileContent(newTree, path)
		if !newOK {
			continue // deleted in the new tree, nothing to attest
		}
		oldContent, oldOK := fileContent(oldTree, path)

		if oldOK && oldContent == newContent {
			if fa, ok := oldLog.FileByPath(path); ok {
				newLog.Attestations = append(newLog.Attestations, fa)
			}
			continue
		}

		parentContent, _ := fileContent(parentTree, path)
		parentFA, _ := parentLog.FileByPath(path)
		prior := priorAuthorsFor(parentFA, countLines(parentContent))

		result := diffattr.Compute(parentContent, newContent, prior, authorship.HumanAuthor, time.Now())
		authorsByLine := diffattr.AuthorsFromResult(result, countLines(newContent))
		fa := attestationFromAuthors(path, authorsByLine)
		if len(fa.Entries) > 0 {
			newLog.Attestations = append(newLog.Attestations, fa)
		}
	}

	sort.Slice(newLog.Attestations, func(i, j int) bool {
		return newLog.Attestations[i].FilePath < newLog.Attestations[j].FilePath
	})
	return newLog, authorship.Write(repo, newSHA, newLog)
}

// MapRebaseMerges pairs old and new commits reachable from oldTip/newTip
// by breadth-first traversal of both parent slots, required so side
// branches folded in by `--rebase-merges` get their authorship rewritten
// too (following only the first parent would miss them). correlate
// decides whether an old commit and a candidate new commit represent the
// same logical change (by tree equivalence, message, or patch-id,
// depending on what the caller can cheaply check); pairs are emitted in
// the order old commits are first visited.
func MapRebaseMerges(repo *gitrepo.Repo, oldTip, newTip string, correlate func(oldSHA, newSHA string) bool) ([]CommitPair, error) {
	oldOrder, err := bfsAllParents(repo, oldTip)
	if err != nil {
		return nil, err
	}
	newOrder, err := bfsAllParents(repo, newTip)
	if err != nil {
		return nil, err
	}

	var pairs []CommitPair
	used := map[string]bool{}
	for _, o := range oldOrder {
		for _, n := range newOrder {
			if used[n] {
				continue
			}
			if correlate(o, n) {
				pairs = append(pairs, CommitPair{Old: o, New: n})
				used[n] = true
				break
			}
		}
	}
	return pairs, nil
}

func bfsAllParents(repo *gitrepo.Repo, start string) ([]string, error) {
	commit, err := repo.CommitObject(hashFromHex(start))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", start, err)
	}
	var order []string
	seen := map[string]bool{}
	queue := []*object.Commit{commit}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		sha := cur.Hash.String()
		if seen[sha] {
			continue
		}
		seen[sha] = true
		order = append(order, sha)
		for _, ph := range cur.ParentHashes {
			parent, err := repo.CommitObject(ph)
			if err != nil {
				continue
			}
			queue = append(queue, parent)
		}
	}
	return order, nil
}

// SquashFixup folds the notes of oldSHAs (replayed in order, each
// supplying its attested authors as the baseline for the next) into a
// single note for newSHA, then attributes whatever final edits the
// squash/fixup introduced to the human performing it. m < n: many old
// commits collapse to one new commit.
func SquashFixup(repo *gitrepo.Repo, oldSHAs []string, newSHA, gitAIVersion string) (authorship.Log, error) {
	fileAuthors := map[string]map[int]string{}
	prompts := map[string]authorship.PromptSession{}

	for _, old := range oldSHAs {
		log, err := authorship.Read(repo, old)
		if err != nil {
			continue // human-only commit in the squash range
		}
		for hash, session := range log.Metadata.Prompts {
			prompts[hash] = session
		}
		tree, err := treeFor(repo, old)
		if err != nil {
			continue
		}
		for _, fa := range log.Attestations {
			content, ok := fileContent(tree, fa.FilePath)
			if !ok {
				continue
			}
			n := countLines(content)
			authors := fileAuthors[fa.FilePath]
			if authors == nil {
				authors = map[int]string{}
				fileAuthors[fa.FilePath] = authors
			}
			for line := 1; line <= n; line++ {
				if a := fa.AuthorAt(line); a != "" {
					authors[line] = a
				}
			}
		}
	}

	lastOld := ""
	if len(oldSHAs) > 0 {
		lastOld = oldSHAs[len(oldSHAs)-1]
	}
	lastTree, _ := treeFor(repo, lastOld)
	newTree, err := treeFor(repo, newSHA)
	if err != nil {
		return authorship.Log{}, err
	}

	newLog := authorship.New(newSHA, gitAIVersion)
	newLog.Metadata.Prompts = prompts

	for _, path := range unionPaths(lastTree, newTree) {
		newContent, ok := fileContent(newTree, path)
		if !ok {
			continue
		}
		priorContent, priorOK := fileContent(lastTree, path)
		prior := diffattr.PriorAuthors(fileAuthors[path])

		var result diffattr.Result
		if priorOK {
			result = diffattr.Compute(priorContent, newContent, prior, authorship.HumanAuthor, time.Now())
		} else {
			result = diffattr.Compute("", newContent, nil, authorship.HumanAuthor, time.Now())
		}
		authorsByLine := diffattr.AuthorsFromResult(result, countLines(newContent))
		// Lines diffattr didn't touch (pure carry-forward with no edits at
		// all, priorContent == newContent) keep the replayed authors map.
		if priorOK && priorContent == newContent {
			authorsByLine = prior
		}
		fa := attestationFromAuthors(path, authorsByLine)
		if len(fa.Entries) > 0 {
			newLog.Attestations = append(newLog.Attestations, fa)
		}
	}

	sort.Slice(newLog.Attestations, func(i, j int) bool {
		return newLog.Attestations[i].FilePath < newLog.Attestations[j].FilePath
	})
	return newLog, authorship.Write(repo, newSHA, newLog)
}

// TranslateForMergeSquash converts the authorship log attached to a
// merge --squash source branch's tip into a synthetic per-session
// sequence of working-log checkpoints for the target branch's working
// log, so the target's very next commit synthesizes the squashed
// branch's attributions as if they had happened on the target directly.
// Checkpoint entries carry no blob SHA: the squash merge replays
// attribution state, not file content, and the blob store is not
// consulted when these checkpoints are folded by internal/synth.
func TranslateForMergeSquash(repo *gitrepo.Repo, sourceTipSHA string) ([]workinglog.Checkpoint, error) {
	log, err := authorship.Read(repo, sourceTipSHA)
	if err != nil {
		return nil, nil // human-only tip, nothing to translate
	}

	// internal/synth replaces a file's author map with each entry's
	// Attributions, so every entry names the AI lines of all sessions in
	// its file; LineAttributions stay per session.
	fileAttributions := map[string][]diffattr.ByteAttribution{}
	for _, fa := range log.Attestations {
		for _, entry := range fa.Entries {
			fileAttributions[fa.FilePath] = append(fileAttributions[fa.FilePath], attributionsFromRanges(entry.Ranges, entry.Hash)...)
		}
	}

	bySession := map[string]*workinglog.Checkpoint{}
	var order []string
	for _, fa := range log.Attestations {
		for _, entry := range fa.Entries {
			cp := bySession[entry.Hash]
			if cp == nil {
				session := log.Metadata.Prompts[entry.Hash]
				cp = &workinglog.Checkpoint{
					Kind:     workinglog.AiAgent,
					Author:   session.HumanAuthor,
					AgentID:  &session.AgentID,
					DiffHash: "squash:" + sourceTipSHA + ":" + entry.Hash,
				}
				bySession[entry.Hash] = cp
				order = append(order, entry.Hash)
			}
			cp.Entries = append(cp.Entries, workinglog.CheckpointEntry{
				FilePath:         fa.FilePath,
				LineAttributions: entry.Ranges,
				Attributions:     fileAttributions[fa.FilePath],
			})
			cp.LineStats.Additions += len(entry.Ranges.Lines())
		}
	}

	checkpoints := make([]workinglog.Checkpoint, 0, len(order))
	for _, hash := range order {
		checkpoints = append(checkpoints, *bySession[hash])
	}
	return checkpoints, nil
}

func attributionsFromRanges(ranges lineset.Set, hash string) []diffattr.ByteAttribution {
	out := make([]diffattr.ByteAttribution, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, diffattr.ByteAttribution{Range: r, AuthorID: hash})
	}
	return out
}

// SealForStash archives store at stashSHA so the current working-log
// state persists alongside the stash entry. The database file itself
// remains on disk under its base SHA; archiving
// only stops further checkpoint writes from landing on a base that the
// stash push has moved the working tree away from.
func SealForStash(store *workinglog.Store, stashSHA string) error {
	return store.ArchiveAt(stashSHA)
}

// RestoreForStash reopens the working log for baseSHA after a stash
// pop/apply restores the working tree to (or near) that base. If pop
// landed on the same base the stash was pushed from, this simply
// unarchives nothing (archiving only ever blocked new writes, never read
// access) and returns the existing store so its checkpoints are intact.
// If the base moved (new commits landed on the branch while stashed),
// the caller gets a store for the new base; carrying the old checkpoints
// forward onto it is intentionally not attempted here since the stash
// pop's own conflict-resolution commit (if any) will run the standard
// synthesizer and is the natural place to re-attribute those lines.
func RestoreForStash(gitDir, baseSHA string) (*workinglog.Store, error) {
	return workinglog.OpenForBase(gitDir, baseSHA)
}

// ResealForReset implements `git reset --mixed|--hard`'s rule: the
// working log is sealed at the old HEAD and a fresh log opened for the
// new HEAD.
func ResealForReset(oldStore *workinglog.Store, oldHeadSHA, gitDir, newHeadSHA string) (*workinglog.Store, error) {
	if err := oldStore.ArchiveAt(oldHeadSHA); err != nil {
		return nil, fmt.Errorf("seal working log at old head %s: %w", oldHeadSHA, err)
	}
	return workinglog.OpenForBase(gitDir, newHeadSHA)
}

// PruneOrphans deletes archived working-log databases whose base commit
// no longer resolves in repo: the steady-state cleanup after a rebase,
// cherry-pick, or reset leaves old base SHAs unreachable once their
// checkpoints have already been folded into a note (or abandoned). An
// unarchived log is left alone even if its base looks unreachable, since
// an in-progress checkpoint sequence on another branch must survive a
// history rewrite running concurrently elsewhere in the repo.
func PruneOrphans(gitDir string, repo *gitrepo.Repo) (int, error) {
	bases, err := workinglog.ListBaseFiles(gitDir)
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, base := range bases {
		if base == workinglog.InitialBaseName {
			continue
		}
		if _, err := repo.CommitObject(hashFromHex(base)); err == nil {
			continue // base commit still resolves, not an orphan
		}

		store, err := workinglog.OpenForBase(gitDir, base)
		if err != nil {
			continue
		}
		if !store.IsArchived() {
			_ = store.Close()
			continue
		}
		if err := store.Remove(); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

// --- tree/content helpers -------------------------------------------------

func treeFor(repo *gitrepo.Repo, sha string) (*object.Tree, error) {
	if sha == "" {
		return nil, nil
	}
	commit, err := repo.CommitObject(hashFromHex(sha))
	if err != nil {
		return nil, fmt.Errorf("resolve commit %s: %w", sha, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("resolve tree for %s: %w", sha, err)
	}
	return tree, nil
}

func parentTreeFor(repo *gitrepo.Repo, sha string) (*object.Tree, error) {
	commit, err := repo.CommitObject(hashFromHex(sha))
	if err != nil {
		return nil, fmt.Errorf("resolve commit %s: %w", sha, err)
	}
	if len(commit.ParentHashes) == 0 {
		return nil, nil
	}
	parent, err := repo.CommitObject(commit.ParentHashes[0])
	if err != nil {
		return nil, fmt.Errorf("resolve parent of %s: %w", sha, err)
	}
	return parent.Tree()
}

func parentSHA(repo *gitrepo.Repo, sha string) string {
	commit, err := repo.CommitObject(hashFromHex(sha))
	if err != nil || len(commit.ParentHashes) == 0 {
		return ""
	}
	return commit.ParentHashes[0].String()
}

func emptyLogIfMissing(repo *gitrepo.Repo, newSHA, gitAIVersion, parentSHA string) authorship.Log {
	if parentSHA == "" {
		return authorship.New(newSHA, gitAIVersion)
	}
	log, err := authorship.Read(repo, parentSHA)
	if err != nil {
		logging.Debug(context.Background(), "no note on rebase parent, treating as human-only", "sha", parentSHA)
		return authorship.New(newSHA, gitAIVersion)
	}
	return log
}

func fileContent(tree *object.Tree, path string) (string, bool) {
	if tree == nil {
		return "", false
	}
	f, err := tree.File(path)
	if err != nil {
		return "", false
	}
	rc, err := f.Reader()
	if err != nil {
		return "", false
	}
	defer rc.Close()
	buf, err := io.ReadAll(rc)
	if err != nil {
		return "", false
	}
	return string(buf), true
}

func unionPaths(trees ...*object.Tree) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range trees {
		if t == nil {
			continue
		}
		_ = t.Files().ForEach(func(f *object.File) error {
			if !seen[f.Name] {
				seen[f.Name] = true
				out = append(out, f.Name)
			}
			return nil
		})
	}
	sort.Strings(out)
	return out
}

func priorAuthorsFor(fa authorship.FileAttestation, lineCount int) diffattr.PriorAuthors {
	out := make(diffattr.PriorAuthors, lineCount)
	for line := 1; line <= lineCount; line++ {
		if a := fa.AuthorAt(line); a != "" {
			out[line] = a
		}
	}
	return out
}

func attestationFromAuthors(path string, authors map[int]string) authorship.FileAttestation {
	byHash := map[string][]lineset.Range{}
	for line, hash := range authors {
		if hash == "" || hash == authorship.HumanAuthor {
			continue
		}
		byHash[hash] = append(byHash[hash], lineset.Single(line))
	}
	hashes := make([]string, 0, len(byHash))
	for h := range byHash {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	fa := authorship.FileAttestation{FilePath: path}
	for _, h := range hashes {
		fa.Entries = append(fa.Entries, authorship.AttestationEntry{Hash: h, Ranges: lineset.Normalize(byHash[h])})
	}
	return fa
}

func clonePrompts(in map[string]authorship.PromptSession) map[string]authorship.PromptSession {
	out := make(map[string]authorship.PromptSession, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := 1
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	if len(s) > 0 && s[len(s)-1] == '\n' {
		n--
	}
	return n
}

func hashFromHex(s string) plumbing.Hash {
	return plumbing.NewHash(s)
}
