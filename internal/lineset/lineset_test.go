package lineset_test

import (
	"testing"

	"github.com/git-ai-tool/git-ai/internal/lineset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rng(start, end int) lineset.Range { return lineset.Range{Start: start, End: end} }

func TestNormalizeCoalescesAndSorts(t *testing.T) {
	got := lineset.Normalize([]lineset.Range{rng(1, 3), rng(5, 5), rng(4, 4), rng(7, 9)})
	assert.Equal(t, lineset.Set{rng(1, 5), rng(7, 9)}, got)
}

func TestNormalizeDropsInvalid(t *testing.T) {
	got := lineset.Normalize([]lineset.Range{rng(3, 1), rng(0, 2), rng(2, 4)})
	assert.Equal(t, lineset.Set{rng(2, 4)}, got)
}

func TestNormalizeEmpty(t *testing.T) {
	assert.Equal(t, lineset.Set{}, lineset.Normalize(nil))
}

func TestContains(t *testing.T) {
	s := lineset.Normalize([]lineset.Range{rng(1, 5), rng(10, 12)})
	assert.True(t, s.Contains(1))
	assert.True(t, s.Contains(5))
	assert.True(t, s.Contains(11))
	assert.False(t, s.Contains(6))
	assert.False(t, s.Contains(9))
	assert.False(t, s.Contains(13))
}

func TestSubtractSplitsRange(t *testing.T) {
	got := lineset.Subtract([]lineset.Range{rng(1, 10)}, []lineset.Range{rng(4, 6)})
	assert.Equal(t, lineset.Set{rng(1, 3), rng(7, 10)}, got)
}

func TestSubtractSuperset(t *testing.T) {
	got := lineset.Subtract([]lineset.Range{rng(4, 6)}, []lineset.Range{rng(1, 10)})
	assert.Empty(t, got)
}

func TestSubtractDisjoint(t *testing.T) {
	got := lineset.Subtract([]lineset.Range{rng(1, 3)}, []lineset.Range{rng(10, 12)})
	assert.Equal(t, lineset.Set{rng(1, 3)}, got)
}

func TestShiftIdentity(t *testing.T) {
	r := rng(5, 8)
	got := lineset.Shift(r, 3, 0)
	assert.Equal(t, []lineset.Range{r}, got)
}

func TestShiftAboveInsertionUnaffected(t *testing.T) {
	got := lineset.Shift(rng(1, 3), 10, 5)
	assert.Equal(t, []lineset.Range{rng(1, 3)}, got)
}

func TestShiftBelowInsertionMoves(t *testing.T) {
	got := lineset.Shift(rng(10, 12), 5, 3)
	assert.Equal(t, []lineset.Range{rng(13, 15)}, got)
}

func TestShiftStraddlingInsertionSplits(t *testing.T) {
	got := lineset.Shift(rng(5, 15), 10, 3)
	require.Len(t, got, 2)
	assert.Equal(t, rng(5, 9), got[0])
	assert.Equal(t, rng(13, 18), got[1])
}

func TestShiftInverse(t *testing.T) {
	// shift(r, p, n) followed by shift(_, p, -n) returns the original range set
	// (testable property #3).
	original := rng(5, 20)
	forward := lineset.ShiftSet([]lineset.Range{original}, 10, 4)
	require.Len(t, forward, 2)
	back := lineset.ShiftSet(forward, 10, -4)
	require.Len(t, back, 1)
	assert.Equal(t, original, back[0])
}

func TestShiftDeletionConsumesRange(t *testing.T) {
	got := lineset.Shift(rng(5, 7), 4, -10)
	assert.Empty(t, got)
}

func TestShiftDeletionSplitsStraddling(t *testing.T) {
	// Delete lines 5-7 (3 lines at insertion point 5); range 3-10 straddles.
	got := lineset.Shift(rng(3, 10), 5, -3)
	require.Len(t, got, 2)
	assert.Equal(t, rng(3, 4), got[0])
	assert.Equal(t, rng(5, 7), got[1]) // 8-10 shifted down by 3
}

func TestCompress(t *testing.T) {
	got := lineset.Compress([]int{7, 1, 2, 3, 9, 8})
	assert.Equal(t, lineset.Set{rng(1, 3), rng(7, 9)}, got)
}

func TestStringRoundTrip(t *testing.T) {
	s, err := lineset.Parse("4-7,12,15-16")
	require.NoError(t, err)
	assert.Equal(t, "4-7,12,15-16", s.String())
}

func TestParseInvalid(t *testing.T) {
	_, err := lineset.Parse("4-2")
	assert.Error(t, err)

	_, err = lineset.Parse("abc")
	assert.Error(t, err)
}

func TestParseEmpty(t *testing.T) {
	s, err := lineset.Parse("")
	require.NoError(t, err)
	assert.Empty(t, s)
}

func TestLines(t *testing.T) {
	s := lineset.Normalize([]lineset.Range{rng(1, 3), rng(5, 5)})
	assert.Equal(t, []int{1, 2, 3, 5}, s.Lines())
}
