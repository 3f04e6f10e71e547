// Package synth implements the authorship synthesizer (spec §4.5, C5):
// it folds an ordered sequence of working-log checkpoints into the
// AuthorshipLog written as a commit's note. Determinism (spec's testable
// property 5) comes entirely from internal/authorship.Serialize's
// stable sort; this package only needs to build the same Log value for
// the same inputs.
package synth

import (
	"sort"

	"github.com/git-ai-tool/git-ai/internal/authorship"
	"github.com/git-ai-tool/git-ai/internal/lineset"
	"github.com/git-ai-tool/git-ai/internal/workinglog"
)

// fileState tracks the per-line author map for one file across the
// replay, plus per-session accounting needed for overridden_lines.
type fileState struct {
	lineCount int
	authors   map[int]string // line -> short hash, "" or authorship.HumanAuthor for human
}

// Synthesize folds checkpoints (in insertion order) over baseCommitSHA
// into a Log. Human-authored lines are never named in a FileAttestation
// (absence = human); a checkpoint's Author is kept only as its AI
// session's HumanAuthor metadata.
func Synthesize(checkpoints []workinglog.Checkpoint, baseCommitSHA, gitAIVersion string) authorship.Log {
	log := authorship.New(baseCommitSHA, gitAIVersion)

	files := map[string]*fileState{}
	sessions := map[string]*authorship.PromptSession{}
	// overridden_lines, keyed by short hash; accepted_lines is derived
	// from the final replayed state once all checkpoints are folded.
	overridden := map[string]int{}

	fileOrder := newOrderTracker()

	for _, cp := range checkpoints {
		authorID := authorship.HumanAuthor
		if cp.Kind == workinglog.AiAgent && cp.AgentID != nil {
			authorID = cp.AgentID.ShortHash()
			session := sessions[authorID]
			if session == nil {
				session = &authorship.PromptSession{AgentID: *cp.AgentID, HumanAuthor: cp.Author}
				sessions[authorID] = session
			}
			session.TotalAdditions += cp.LineStats.Additions
			session.TotalDeletions += cp.LineStats.Deletions
			if len(cp.Transcript) > 0 && session.Messages == nil {
				session.Messages = cp.Transcript
			}
		}

		for _, entry := range cp.Entries {
			fileOrder.see(entry.FilePath)
			fs := files[entry.FilePath]
			if fs == nil {
				fs = &fileState{authors: map[int]string{}}
				files[entry.FilePath] = fs
			}
			applyEntry(fs, entry, authorID, overridden)
		}
	}

	for _, path := range fileOrder.order {
		fs := files[path]
		fa := buildAttestation(path, fs)
		if len(fa.Entries) > 0 {
			log.Attestations = append(log.Attestations, fa)
		}
	}

	for _, session := range sessions {
		hash := session.ShortHash()
		session.OverriddenLines = overridden[hash]
	}

	finalAccepted := map[string]int{}
	for _, fs := range files {
		for _, author := range fs.authors {
			if author != "" && author != authorship.HumanAuthor {
				finalAccepted[author]++
			}
		}
	}
	for hash, session := range sessions {
		session.AcceptedLines = finalAccepted[hash]
		log.Metadata.Prompts[hash] = *session
	}

	sort.Slice(log.Attestations, func(i, j int) bool {
		return log.Attestations[i].FilePath < log.Attestations[j].FilePath
	})
	return log
}

// applyEntry folds one checkpoint's file entry into fs: the entry already
// carries forward unaffected lines via diffattr.Compute, so fs's author
// map is replaced as a whole by the entry's Attributions (a line they do
// not cover is left unattributed), and lines previously attributed to a
// different AI session that lose coverage here count toward that
// session's overridden total.
func applyEntry(fs *fileState, entry workinglog.CheckpointEntry, authorID string, overridden map[string]int) {
	newAuthors := map[int]string{}
	maxLine := fs.lineCount
	for _, a := range entry.Attributions {
		for l := a.Range.Start; l <= a.Range.End; l++ {
			newAuthors[l] = a.AuthorID
			if l > maxLine {
				maxLine = l
			}
		}
	}

	// Any line this checkpoint explicitly attributed to authorID that
	// previously belonged to a *different* AI session is an override of
	// that session, beyond what diffattr already counted as deletions of
	// lines outside the new file entirely.
	for _, r := range entry.LineAttributions {
		for l := r.Start; l <= r.End; l++ {
			if prior, ok := fs.authors[l]; ok && prior != "" && prior != authorship.HumanAuthor && prior != authorID {
				overridden[prior]++
			}
		}
	}

	fs.authors = newAuthors
	fs.lineCount = maxLine
}

// buildAttestation collapses fs's final line->author map into a
// FileAttestation: one AttestationEntry per distinct AI short hash,
// human lines simply absent.
func buildAttestation(path string, fs *fileState) authorship.FileAttestation {
	if fs == nil {
		return authorship.FileAttestation{FilePath: path}
	}
	byAuthor := map[string][]lineset.Range{}
	for line, author := range fs.authors {
		if author == "" || author == authorship.HumanAuthor {
			continue
		}
		byAuthor[author] = append(byAuthor[author], lineset.Single(line))
	}

	hashes := make([]string, 0, len(byAuthor))
	for h := range byAuthor {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	fa := authorship.FileAttestation{FilePath: path}
	for _, h := range hashes {
		fa.Entries = append(fa.Entries, authorship.AttestationEntry{
			Hash:   h,
			Ranges: lineset.Normalize(byAuthor[h]),
		})
	}
	return fa
}

// orderTracker records the first-seen order of file paths so Log's
// attestations are produced in a stable, input-derived order before the
// final sort-by-path (sorting is idempotent, but this keeps iteration
// order predictable when callers inspect pre-sort intermediate state in
// tests).
type orderTracker struct {
	order []string
	seen  map[string]bool
}

func newOrderTracker() *orderTracker { return &orderTracker{seen: map[string]bool{}} }

func (o *orderTracker) see(path string) {
	if !o.seen[path] {
		o.seen[path] = true
		o.order = append(o.order, path)
	}
}
