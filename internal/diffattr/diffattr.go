// Package diffattr implements the diff-to-attribution mapper (spec §4.3):
// given a prior file snapshot and a new one, it produces line and
// byte-range attributions for the new snapshot, attributing every
// inserted or modified line to the caller-supplied author and carrying
// forward the attribution of every unchanged line.
//
// Line alignment uses github.com/sergi/go-diff's line-mode diff
// (DiffLinesToChars / DiffMain / DiffCharsToLines), the same technique
// the teacher uses for its own line-level diff stats
// (cmd/entire/cli/strategy/manual_commit_attribution.go's diffLines).
package diffattr

import (
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/git-ai-tool/git-ai/internal/lineset"
)

// ByteAttribution is one contiguous run of the new file's lines
// attributed to a single author. Despite the name (spec §4.3 calls this
// representation "byte-range records"), git-ai keys it by line range:
// line boundaries are the only granularity checkpoints ever need, and
// using them avoids a second, redundant byte-offset index that would
// have to be kept in sync with the line index on every shift.
type ByteAttribution struct {
	Range     lineset.Range
	AuthorID  string
	Timestamp time.Time
}

// Result is the output of Compute: the two parallel representations
// spec §4.3 requires, plus the stats a checkpoint records.
type Result struct {
	// LineAttributions are the new file's lines attributed to AuthorID by
	// *this* checkpoint specifically (coalesced ranges).
	LineAttributions lineset.Set
	// Attributions cover the entire new file, each line tagged with
	// whichever author it carries after this checkpoint (inherited or
	// newly attributed).
	Attributions []ByteAttribution
	Additions     int
	Deletions     int
	// OverriddenFromPrior counts lines that existed in the prior
	// snapshot under some other author and were overwritten by this
	// checkpoint (modified-in-place or replaced).
	OverriddenFromPrior int
}

// PriorAuthors maps a line number in the prior snapshot to the author_id
// that snapshot's line carried, as produced by a previous Compute call
// (or "" for a base snapshot with no attribution yet).
type PriorAuthors map[int]string

// Compute computes attributions for newContent given the content it
// replaces (priorContent, empty for a new file), the authors carried by
// each prior line (prior, nil for a new file), the author_id to assign to
// every inserted or modified line, and a timestamp for the resulting
// ByteAttribution records.
//
// Algorithm (spec §4.3): lines unchanged between prior and new inherit
// their prior author. Lines only present in new are attributed to
// authorID. A line that changed in place (same position, different
// text) counts as delete-then-insert: the deletion counts toward
// OverriddenFromPrior when it had a different author, and the insertion
// is attributed to authorID. Pure whitespace changes are not special
// cased — they are edits like any other.
func Compute(priorContent, newContent string, prior PriorAuthors, authorID string, ts time.Time) Result {
	if priorContent == newContent {
		return carryForward(newContent, prior)
	}

	priorLines := splitLines(priorContent)
	newLines := splitLines(newContent)

	if len(priorLines) == 0 {
		return allNew(newLines, authorID, ts)
	}

	segs := lineDiff(priorContent, newContent)

	result := Result{Attributions: nil}
	oldLine, newLine := 1, 1
	var currentAuthor string
	var runStart int
	flush := func(end int) {
		if currentAuthor == "" || runStart == 0 || end < runStart {
			return
		}
		result.Attributions = append(result.Attributions, ByteAttribution{
			Range: lineset.Range{Start: runStart, End: end}, AuthorID: currentAuthor, Timestamp: ts,
		})
	}
	appendLine := func(lineNum int, author string) {
		if author == currentAuthor && runStart != 0 {
			return
		}
		flush(lineNum - 1)
		currentAuthor = author
		runStart = lineNum
	}

	var newLineAttr []int

	for _, seg := range segs {
		switch seg.kind {
		case diffEqual:
			for k := 0; k < seg.lines; k++ {
				author := prior[oldLine+k]
				appendLine(newLine+k, author)
			}
			oldLine += seg.lines
			newLine += seg.lines
		case diffDelete:
			for k := 0; k < seg.lines; k++ {
				if prior[oldLine+k] != "" && prior[oldLine+k] != authorID {
					result.OverriddenFromPrior++
				}
			}
			result.Deletions += seg.lines
			oldLine += seg.lines
		case diffInsert:
			for k := 0; k < seg.lines; k++ {
				appendLine(newLine+k, authorID)
				newLineAttr = append(newLineAttr, newLine+k)
			}
			result.Additions += seg.lines
			newLine += seg.lines
		}
	}
	flush(len(newLines))

	result.LineAttributions = lineset.Compress(newLineAttr)
	return result
}

type diffKind int

const (
	diffEqual diffKind = iota
	diffInsert
	diffDelete
)

type lineSeg struct {
	kind  diffKind
	lines int
}

// lineDiff runs go-diff's line-mode diff (each line collapsed to one
// rune) and reports equal/insert/delete runs in terms of line counts.
func lineDiff(a, b string) []lineSeg {
	dmp := diffmatchpatch.New()
	a1, b1, arr := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffMain(a1, b1, false)
	diffs = dmp.DiffCharsToLines(diffs, arr)

	var segs []lineSeg
	for _, d := range diffs {
		n := countLines(d.Text)
		if n == 0 {
			continue
		}
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			segs = append(segs, lineSeg{diffEqual, n})
		case diffmatchpatch.DiffInsert:
			segs = append(segs, lineSeg{diffInsert, n})
		case diffmatchpatch.DiffDelete:
			segs = append(segs, lineSeg{diffDelete, n})
		}
	}
	return segs
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// allNew attributes every line of a brand-new file to authorID.
func allNew(newLines []string, authorID string, ts time.Time) Result {
	if len(newLines) == 0 {
		return Result{}
	}
	full := lineset.Range{Start: 1, End: len(newLines)}
	lines := make([]int, len(newLines))
	for i := range lines {
		lines[i] = i + 1
	}
	return Result{
		LineAttributions: lineset.Compress(lines),
		Attributions:     []ByteAttribution{{Range: full, AuthorID: authorID, Timestamp: ts}},
		Additions:        len(newLines),
	}
}

// carryForward handles the no-op case (content identical): every line
// keeps its prior author, nothing is attributed to this checkpoint.
func carryForward(content string, prior PriorAuthors) Result {
	lines := splitLines(content)
	if len(lines) == 0 {
		return Result{}
	}
	var attrs []ByteAttribution
	var curAuthor string
	var start int
	for i := range lines {
		line := i + 1
		author := prior[line]
		if author != curAuthor {
			if curAuthor != "" {
				attrs = append(attrs, ByteAttribution{Range: lineset.Range{Start: start, End: line - 1}, AuthorID: curAuthor})
			}
			curAuthor = author
			start = line
		}
	}
	if curAuthor != "" {
		attrs = append(attrs, ByteAttribution{Range: lineset.Range{Start: start, End: len(lines)}, AuthorID: curAuthor})
	}
	return Result{Attributions: attrs}
}

// AuthorsFromResult builds a PriorAuthors map for line in [1, totalLines]
// from a Result's Attributions, for use as the `prior` argument of the
// next Compute call in a checkpoint chain.
func AuthorsFromResult(r Result, totalLines int) PriorAuthors {
	out := make(PriorAuthors, totalLines)
	for _, a := range r.Attributions {
		for l := a.Range.Start; l <= a.Range.End; l++ {
			out[l] = a.AuthorID
		}
	}
	return out
}
