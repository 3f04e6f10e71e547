// Package blame implements the blame engine: it runs the
// real `git blame --porcelain`, rewrites each line's author using the
// authorship notes attached to the commits it cites, and overlays
// virtual attribution from the working log for uncommitted buffers. It
// never mutates repository state.
package blame

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/git-ai-tool/git-ai/internal/authorship"
	"github.com/git-ai-tool/git-ai/internal/gitintercept"
	"github.com/git-ai-tool/git-ai/internal/gitrepo"
	"github.com/git-ai-tool/git-ai/internal/workinglog"
)

// UnknownAuthor is what --mark-unknown substitutes for a commit with no
// authorship note.
const UnknownAuthor = "Unknown"

// ExternalContentsSHA is the sentinel SHA used for virtual-attribution
// lines overlaid from the working log.
const ExternalContentsSHA = "0000000"

// ExternalContentsAuthor labels virtual-attribution lines.
const ExternalContentsAuthor = "External file (--contents)"

// RawLine is one line of git blame --porcelain output, before any
// authorship rewriting.
type RawLine struct {
	CommitSHA   string
	OrigLine    int
	FinalLine   int
	AuthorName  string
	AuthorEmail string
	AuthorTime  time.Time
	Content     string
}

// Line is the final, rewritten output.
type Line struct {
	CommitSHA     string
	AuthorName    string
	AuthorEmail   string
	Timestamp     time.Time
	Content       string
	PromptHash    string
	Session       *authorship.PromptSession
	MarkedUnknown bool
	Virtual       bool
}

// Options configures one blame run.
type Options struct {
	Rev                    string   // defaults to HEAD
	ExtraGitArgs           []string // passed through verbatim: -L, --porcelain is always added, -b, --root, etc.
	MarkUnknown            bool
	UsePromptHashesAsNames bool
	ContentsPath           string // git blame --contents <file>, "" if not set
}

// Cache memoizes note reads across a single blame invocation: a commit
// cited many times in one file's blame only costs one note read.
type Cache struct {
	logs map[string]authorship.Log
	miss map[string]bool
}

// NewCache returns an empty per-run cache.
func NewCache() *Cache {
	return &Cache{logs: map[string]authorship.Log{}, miss: map[string]bool{}}
}

func (c *Cache) logFor(repo *gitrepo.Repo, sha string) (authorship.Log, bool) {
	if log, ok := c.logs[sha]; ok {
		return log, true
	}
	if c.miss[sha] {
		return authorship.Log{}, false
	}
	log, err := authorship.Read(repo, sha)
	if err != nil {
		c.miss[sha] = true
		return authorship.Log{}, false
	}
	c.logs[sha] = log
	return log, true
}

// Run performs the full blame pipeline for path at the given options.
func Run(ctx context.Context, repo *gitrepo.Repo, workDir, path string, opts Options, store *workinglog.Store) ([]Line, error) {
	argv := []string{"blame", "--porcelain"}
	argv = append(argv, opts.ExtraGitArgs...)
	if opts.ContentsPath != "" {
		argv = append(argv, "--contents", opts.ContentsPath)
	}
	rev := opts.Rev
	if rev == "" {
		rev = "HEAD"
	}
	argv = append(argv, rev, "--", path)

	res, err := gitintercept.ExecGit(ctx, workDir, argv)
	if err != nil {
		return nil, err
	}

	raw := ParsePorcelain(res.Stdout)
	cache := NewCache()
	lines := make([]Line, 0, len(raw))
	for _, r := range raw {
		lines = append(lines, attribute(repo, cache, path, r, opts))
	}

	if opts.ContentsPath != "" && store != nil {
		entries, err := store.EntriesForFile(path)
		if err == nil {
			lines = overlayVirtual(lines, entries)
		}
	}

	return lines, nil
}

// attribute rewrites one raw blame line, looking up its authorship note
// and resolving the cited line to a human author or an AI prompt hash.
func attribute(repo *gitrepo.Repo, cache *Cache, path string, r RawLine, opts Options) Line {
	line := Line{
		CommitSHA:   r.CommitSHA,
		AuthorName:  r.AuthorName,
		AuthorEmail: r.AuthorEmail,
		Timestamp:   r.AuthorTime,
		Content:     r.Content,
	}

	log, ok := cache.logFor(repo, r.CommitSHA)
	if !ok {
		if opts.MarkUnknown {
			line.AuthorName = UnknownAuthor
			line.MarkedUnknown = true
		}
		return line
	}

	fa, ok := log.FileByPath(path)
	if !ok {
		return line // no attestation for this file: human-authored, passthrough
	}

	hash := fa.AuthorAt(r.FinalLine)
	if hash == "" {
		return line // human-authored line, passthrough the Git author
	}

	line.PromptHash = hash
	if session, ok := log.Metadata.Prompts[hash]; ok {
		line.Session = &session
		if opts.UsePromptHashesAsNames {
			line.AuthorName = hash
		} else {
			line.AuthorName = session.AgentID.Tool
		}
	} else if opts.UsePromptHashesAsNames {
		line.AuthorName = hash
	}
	return line
}

// overlayVirtual labels lines covered by the working log's most recent
// checkpoint for path with the external-contents sentinel. Later
// checkpoints in entries take precedence over earlier ones for the
// same line, matching the replay order the synthesizer itself uses.
func overlayVirtual(lines []Line, entries []workinglog.CheckpointEntry) []Line {
	owner := map[int]string{}
	for _, e := range entries {
		for _, r := range e.Attributions {
			for l := r.Range.Start; l <= r.Range.End; l++ {
				owner[l] = r.AuthorID
			}
		}
	}
	for i := range lines {
		lineNum := i + 1
		tool, ok := owner[lineNum]
		if !ok || tool == authorship.HumanAuthor {
			continue
		}
		lines[i].CommitSHA = ExternalContentsSHA
		lines[i].AuthorName = fmt.Sprintf("%s (%s)", ExternalContentsAuthor, tool)
		lines[i].Virtual = true
	}
	return lines
}

// ParsePorcelain parses `git blame --porcelain` output into RawLine
// records, one per final-file line, capturing the author identity and
// timestamp fields the rewriting pass needs (blamebot's parser only
// keeps the SHA and line numbers; this extends it with author
// name/email/time and the line content itself). Per the porcelain
// format, header fields (author, author-mail, author-time, ...) are only
// emitted the first time a commit appears anywhere in the output;
// headers are therefore keyed by commit SHA, not by group, so a commit
// cited in multiple non-contiguous hunks still gets its author filled in
// everywhere.
func ParsePorcelain(out []byte) []RawLine {
	type groupInfo struct {
		sha   string
		orig  int
		final int
	}

	var groups []groupInfo
	headersBySHA := map[string]map[string]string{}
	contentByFinal := map[int]string{}

	var currentHeaders map[string]string
	var currentFinal int

	for _, line := range strings.Split(string(out), "\n") {
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "\t"):
			contentByFinal[currentFinal] = line[1:]
		case isShaHeaderLine(line):
			fields := strings.Fields(line)
			sha := fields[0]
			orig, _ := strconv.Atoi(fields[1])
			final, _ := strconv.Atoi(fields[2])
			currentFinal = final
			groups = append(groups, groupInfo{sha: sha, orig: orig, final: final})
			if headersBySHA[sha] == nil {
				headersBySHA[sha] = map[string]string{}
			}
			currentHeaders = headersBySHA[sha]
		default:
			if idx := strings.IndexByte(line, ' '); idx > 0 && currentHeaders != nil {
				currentHeaders[line[:idx]] = line[idx+1:]
			}
		}
	}

	out2 := make([]RawLine, 0, len(groups))
	for _, g := range groups {
		h := headersBySHA[g.sha]
		r := RawLine{
			CommitSHA:   g.sha,
			OrigLine:    g.orig,
			FinalLine:   g.final,
			AuthorName:  h["author"],
			AuthorEmail: strings.Trim(h["author-mail"], "<>"),
			Content:     contentByFinal[g.final],
		}
		if ts, err := strconv.ParseInt(h["author-time"], 10, 64); err == nil {
			r.AuthorTime = time.Unix(ts, 0)
		}
		out2 = append(out2, r)
	}
	return out2
}

func isShaHeaderLine(line string) bool {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return false
	}
	sha := fields[0]
	if len(sha) != 40 {
		return false
	}
	for _, c := range sha {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return true
}
