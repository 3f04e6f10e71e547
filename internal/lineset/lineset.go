// Package lineset implements a small, pure algebra over 1-indexed,
// inclusive line ranges that every other component (attestations,
// checkpoints, blame intervals) builds on.
//
// A Range is either a single line (Start == End) or an inclusive span.
// A Set is always kept sorted and coalesced: no two ranges in a Set are
// adjacent or overlapping after Normalize has run over it.
package lineset

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/git-ai-tool/git-ai/internal/giterrors"
)

// Range is an inclusive, 1-indexed span of line numbers.
type Range struct {
	Start int
	End   int
}

// Single returns a Range covering exactly one line.
func Single(line int) Range { return Range{Start: line, End: line} }

// Len returns the number of lines the range covers.
func (r Range) Len() int { return r.End - r.Start + 1 }

// Contains reports whether line falls within r.
func (r Range) Contains(line int) bool { return line >= r.Start && line <= r.End }

// Set is a sorted, disjoint collection of Ranges.
type Set []Range

// Normalize sorts ranges by start and coalesces overlapping or adjacent
// ones. Invalid ranges (End < Start, Start <= 0) are dropped. Example:
// [1-3, 5, 4, 7-9] -> [1-5, 7-9].
func Normalize(ranges []Range) Set {
	clean := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		if r.Start <= 0 || r.End < r.Start {
			continue
		}
		clean = append(clean, r)
	}
	if len(clean) == 0 {
		return Set{}
	}

	sort.Slice(clean, func(i, j int) bool {
		if clean[i].Start != clean[j].Start {
			return clean[i].Start < clean[j].Start
		}
		return clean[i].End < clean[j].End
	})

	out := make(Set, 0, len(clean))
	cur := clean[0]
	for _, r := range clean[1:] {
		if r.Start <= cur.End+1 {
			if r.End > cur.End {
				cur.End = r.End
			}
			continue
		}
		out = append(out, cur)
		cur = r
	}
	out = append(out, cur)
	return out
}

// Contains reports whether line is covered by any range in s. s must
// already be normalized.
func (s Set) Contains(line int) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i].End >= line })
	return i < len(s) && s[i].Start <= line
}

// Subtract returns a \ b: every line in a that is not covered by any
// range in b. A single range in a may split into two when b removes its
// middle. Both a and b are normalized first.
func Subtract(a, b []Range) Set {
	an := Normalize(a)
	bn := Normalize(b)
	if len(bn) == 0 {
		return an
	}

	var out Set
	for _, r := range an {
		pieces := []Range{r}
		for _, cut := range bn {
			if cut.End < r.Start || cut.Start > r.End {
				continue
			}
			var next []Range
			for _, p := range pieces {
				next = append(next, subtractOne(p, cut)...)
			}
			pieces = next
		}
		out = append(out, pieces...)
	}
	return Normalize(out)
}

func subtractOne(r, cut Range) []Range {
	if cut.End < r.Start || cut.Start > r.End {
		return []Range{r}
	}
	var out []Range
	if cut.Start > r.Start {
		out = append(out, Range{Start: r.Start, End: cut.Start - 1})
	}
	if cut.End < r.End {
		out = append(out, Range{Start: cut.End + 1, End: r.End})
	}
	return out
}

// Shift adjusts r for an insertion or deletion of |offset| lines at
// insertionPoint (old-file line numbering): ranges starting at or after
// insertionPoint move by offset, ranges ending before it are unchanged,
// and a range spanning the point splits. The result is 0, 1, or 2 ranges; an empty
// result means r was fully consumed by a deletion.
func Shift(r Range, insertionPoint, offset int) []Range {
	if offset == 0 {
		return []Range{r}
	}
	if offset > 0 {
		return shiftInsert(r, insertionPoint, offset)
	}
	return shiftDelete(r, insertionPoint, offset)
}

// shiftInsert handles offset > 0: `offset` new lines appear starting at
// insertionPoint; everything that was at or after insertionPoint moves
// down by offset.
func shiftInsert(r Range, insertionPoint, offset int) []Range {
	switch {
	case r.End < insertionPoint:
		return []Range{r}
	case r.Start >= insertionPoint:
		return []Range{{Start: r.Start + offset, End: r.End + offset}}
	default:
		// r straddles the insertion point: the part before is untouched,
		// the part at/after moves down by offset.
		return []Range{
			{Start: r.Start, End: insertionPoint - 1},
			{Start: insertionPoint + offset, End: r.End + offset},
		}
	}
}

// shiftDelete handles offset < 0: a run of -offset lines starting at
// insertionPoint is removed; everything after it moves up by -offset.
func shiftDelete(r Range, insertionPoint, offset int) []Range {
	delStart := insertionPoint
	delEnd := insertionPoint - offset - 1 // offset is negative

	switch {
	case r.End < delStart:
		return []Range{r}
	case r.Start > delEnd:
		return []Range{{Start: r.Start + offset, End: r.End + offset}}
	default:
		var out []Range
		if r.Start < delStart {
			out = append(out, Range{Start: r.Start, End: delStart - 1})
		}
		if r.End > delEnd {
			out = append(out, Range{Start: delEnd + 1 + offset, End: r.End + offset})
		}
		return out
	}
}

// ShiftSet applies Shift to every range in s, flattens any splits, and
// returns a freshly normalized result.
func ShiftSet(s []Range, insertionPoint, offset int) Set {
	var out []Range
	for _, r := range s {
		out = append(out, Shift(r, insertionPoint, offset)...)
	}
	return Normalize(out)
}

// Compress collapses a sorted or unsorted list of individual line numbers
// into coalesced ranges.
func Compress(lines []int) Set {
	ranges := make([]Range, 0, len(lines))
	for _, l := range lines {
		ranges = append(ranges, Single(l))
	}
	return Normalize(ranges)
}

// Lines expands s back into an individual, sorted, deduplicated line list.
func (s Set) Lines() []int {
	var out []int
	for _, r := range s {
		for l := r.Start; l <= r.End; l++ {
			out = append(out, l)
		}
	}
	return out
}

// String renders s using the on-disk compact notation: comma-separated,
// "a-b" for multi-line ranges, "n" for singles, sorted ascending by start.
func (s Set) String() string {
	parts := make([]string, 0, len(s))
	for _, r := range s {
		if r.Start == r.End {
			parts = append(parts, strconv.Itoa(r.Start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", r.Start, r.End))
		}
	}
	return strings.Join(parts, ",")
}

// Parse parses the compact notation ("4-7,12,15-16") into a normalized
// Set. Empty input yields an empty Set.
func Parse(s string) (Set, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Set{}, nil
	}

	var ranges []Range
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.Index(part, "-"); idx > 0 {
			start, err := strconv.Atoi(strings.TrimSpace(part[:idx]))
			if err != nil {
				return nil, fmt.Errorf("%w: range start %q: %v", giterrors.ErrInvalidRange, part, err)
			}
			end, err := strconv.Atoi(strings.TrimSpace(part[idx+1:]))
			if err != nil {
				return nil, fmt.Errorf("%w: range end %q: %v", giterrors.ErrInvalidRange, part, err)
			}
			if end < start || start <= 0 {
				return nil, fmt.Errorf("%w: %q", giterrors.ErrInvalidRange, part)
			}
			ranges = append(ranges, Range{Start: start, End: end})
		} else {
			n, err := strconv.Atoi(part)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("%w: %q", giterrors.ErrInvalidRange, part)
			}
			ranges = append(ranges, Single(n))
		}
	}
	return Normalize(ranges), nil
}
