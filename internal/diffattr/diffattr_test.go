package diffattr_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-ai-tool/git-ai/internal/diffattr"
)

func TestComputeNewFileAllAttributedToAuthor(t *testing.T) {
	content := "line1\nline2\nline3"
	r := diffattr.Compute("", content, nil, "ai-hash", time.Time{})
	assert.Equal(t, "1-3", r.LineAttributions.String())
	assert.Equal(t, 3, r.Additions)
	assert.Equal(t, 0, r.Deletions)
	require.Len(t, r.Attributions, 1)
	assert.Equal(t, "ai-hash", r.Attributions[0].AuthorID)
}

func TestComputeInsertionInMiddleShiftsUnchangedLines(t *testing.T) {
	prior := "a\nb\nc\nd"
	// insert two lines after "b"
	next := "a\nb\nX\nY\nc\nd"
	priorAuthors := diffattr.PriorAuthors{1: "human", 2: "human", 3: "human", 4: "human"}

	r := diffattr.Compute(prior, next, priorAuthors, "ai-hash", time.Time{})
	assert.Equal(t, "3-4", r.LineAttributions.String())
	assert.Equal(t, 2, r.Additions)
	assert.Equal(t, 0, r.Deletions)

	full := diffattr.AuthorsFromResult(r, 6)
	assert.Equal(t, "human", full[1])
	assert.Equal(t, "human", full[2])
	assert.Equal(t, "ai-hash", full[3])
	assert.Equal(t, "ai-hash", full[4])
	assert.Equal(t, "human", full[5])
	assert.Equal(t, "human", full[6])
}

func TestComputeModifiedLineCountsAsOverridden(t *testing.T) {
	prior := "alpha\nbeta\ngamma"
	next := "alpha\nBETA-CHANGED\ngamma"
	priorAuthors := diffattr.PriorAuthors{1: "human", 2: "ai-session-1", 3: "human"}

	r := diffattr.Compute(prior, next, priorAuthors, "ai-session-2", time.Time{})
	assert.Equal(t, 1, r.OverriddenFromPrior)
	assert.Equal(t, "2", r.LineAttributions.String())
}

func TestComputeIdenticalContentProducesNoNewAttribution(t *testing.T) {
	content := "same\ncontent"
	priorAuthors := diffattr.PriorAuthors{1: "human", 2: "ai-hash"}
	r := diffattr.Compute(content, content, priorAuthors, "ai-hash", time.Time{})
	assert.Empty(t, r.LineAttributions)
	assert.Equal(t, 0, r.Additions)
	assert.Equal(t, 0, r.Deletions)

	full := diffattr.AuthorsFromResult(r, 2)
	assert.Equal(t, "human", full[1])
	assert.Equal(t, "ai-hash", full[2])
}

func TestComputeDeletionOnly(t *testing.T) {
	prior := "a\nb\nc"
	next := "a\nc"
	priorAuthors := diffattr.PriorAuthors{1: "human", 2: "human", 3: "human"}
	r := diffattr.Compute(prior, next, priorAuthors, "ai-hash", time.Time{})
	assert.Equal(t, 1, r.Deletions)
	assert.Equal(t, 0, r.Additions)
	assert.Empty(t, r.LineAttributions)
}
