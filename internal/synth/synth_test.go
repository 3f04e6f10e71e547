package synth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-ai-tool/git-ai/internal/authorship"
	"github.com/git-ai-tool/git-ai/internal/diffattr"
	"github.com/git-ai-tool/git-ai/internal/lineset"
	"github.com/git-ai-tool/git-ai/internal/synth"
	"github.com/git-ai-tool/git-ai/internal/workinglog"
)

// TestSynthesizeScenarioA mirrors spec §8 Scenario A: a human-authored
// 10-line file, then an AI checkpoint replacing lines 4-7.
func TestSynthesizeScenarioA(t *testing.T) {
	agentID := authorship.AgentID{Tool: "mock_ai", ID: "sess-1", Model: "test-model"}
	hash := agentID.ShortHash()

	checkpoints := []workinglog.Checkpoint{
		{
			Kind:     workinglog.AiAgent,
			Author:   "ai",
			AgentID:  &agentID,
			DiffHash: "dh-1",
			LineStats: workinglog.LineStats{Additions: 4, Deletions: 4},
			Entries: []workinglog.CheckpointEntry{
				{
					FilePath: "calculator.rs",
					BlobSHA:  "blob-1",
					LineAttributions: lineset.Normalize([]lineset.Range{{Start: 4, End: 7}}),
					Attributions: []diffattr.ByteAttribution{
						{Range: lineset.Range{Start: 1, End: 3}, AuthorID: authorship.HumanAuthor},
						{Range: lineset.Range{Start: 4, End: 7}, AuthorID: hash, Timestamp: time.Now()},
						{Range: lineset.Range{Start: 8, End: 10}, AuthorID: authorship.HumanAuthor},
					},
				},
			},
		},
	}

	log := synth.Synthesize(checkpoints, "base-sha", "0.1.0")

	require.Len(t, log.Attestations, 1)
	fa := log.Attestations[0]
	assert.Equal(t, "calculator.rs", fa.FilePath)
	require.Len(t, fa.Entries, 1)
	assert.Equal(t, hash, fa.Entries[0].Hash)
	assert.Equal(t, "4-7", fa.Entries[0].Ranges.String())

	session, ok := log.Metadata.Prompts[hash]
	require.True(t, ok)
	assert.Equal(t, 4, session.AcceptedLines)
	assert.Equal(t, 4, session.TotalAdditions)
}

func TestSynthesizeHumanOnlyCommitIsMetadataOnly(t *testing.T) {
	checkpoints := []workinglog.Checkpoint{
		{
			Kind: workinglog.Human, Author: "human", DiffHash: "dh-human",
			Entries: []workinglog.CheckpointEntry{
				{
					FilePath: "readme.md",
					Attributions: []diffattr.ByteAttribution{
						{Range: lineset.Range{Start: 1, End: 5}, AuthorID: authorship.HumanAuthor},
					},
				},
			},
		},
	}
	log := synth.Synthesize(checkpoints, "base-sha", "0.1.0")
	assert.True(t, log.IsEmpty())
}

func TestSynthesizeLaterCheckpointOverridesEarlierSession(t *testing.T) {
	agent1 := authorship.AgentID{Tool: "mock_ai", ID: "sess-1", Model: "m"}
	agent2 := authorship.AgentID{Tool: "mock_ai", ID: "sess-2", Model: "m"}
	hash1 := agent1.ShortHash()
	hash2 := agent2.ShortHash()

	checkpoints := []workinglog.Checkpoint{
		{
			Kind: workinglog.AiAgent, Author: "ai", AgentID: &agent1, DiffHash: "dh-1",
			Entries: []workinglog.CheckpointEntry{{
				FilePath:         "x.go",
				LineAttributions: lineset.Normalize([]lineset.Range{{Start: 1, End: 5}}),
				Attributions:     []diffattr.ByteAttribution{{Range: lineset.Range{Start: 1, End: 5}, AuthorID: hash1}},
			}},
		},
		{
			Kind: workinglog.AiAgent, Author: "ai", AgentID: &agent2, DiffHash: "dh-2",
			Entries: []workinglog.CheckpointEntry{{
				FilePath:         "x.go",
				LineAttributions: lineset.Normalize([]lineset.Range{{Start: 1, End: 2}}),
				Attributions: []diffattr.ByteAttribution{
					{Range: lineset.Range{Start: 1, End: 2}, AuthorID: hash2},
					{Range: lineset.Range{Start: 3, End: 5}, AuthorID: hash1},
				},
			}},
		},
	}

	log := synth.Synthesize(checkpoints, "base-sha", "0.1.0")
	sess1 := log.Metadata.Prompts[hash1]
	sess2 := log.Metadata.Prompts[hash2]
	assert.Equal(t, 3, sess1.AcceptedLines)
	assert.Equal(t, 2, sess1.OverriddenLines)
	assert.Equal(t, 2, sess2.AcceptedLines)
}

func TestSynthesizeIsDeterministic(t *testing.T) {
	agentID := authorship.AgentID{Tool: "mock_ai", ID: "sess-1", Model: "m"}
	hash := agentID.ShortHash()
	checkpoints := []workinglog.Checkpoint{
		{
			Kind: workinglog.AiAgent, Author: "ai", AgentID: &agentID, DiffHash: "dh-1",
			Entries: []workinglog.CheckpointEntry{{
				FilePath:         "a.go",
				LineAttributions: lineset.Normalize([]lineset.Range{{Start: 1, End: 2}}),
				Attributions:     []diffattr.ByteAttribution{{Range: lineset.Range{Start: 1, End: 2}, AuthorID: hash}},
			}},
		},
	}

	log1 := synth.Synthesize(checkpoints, "base-sha", "0.1.0")
	log2 := synth.Synthesize(checkpoints, "base-sha", "0.1.0")

	b1, err := authorship.Serialize(log1)
	require.NoError(t, err)
	b2, err := authorship.Serialize(log2)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}
