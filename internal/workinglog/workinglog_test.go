package workinglog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-ai-tool/git-ai/internal/authorship"
	"github.com/git-ai-tool/git-ai/internal/lineset"
	"github.com/git-ai-tool/git-ai/internal/workinglog"
)

func openTestStore(t *testing.T) *workinglog.Store {
	t.Helper()
	gitDir := t.TempDir()
	s, err := workinglog.OpenForBase(gitDir, "abc123")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetBlobDedup(t *testing.T) {
	s := openTestStore(t)
	sha1, err := s.PutBlob([]byte("hello world"))
	require.NoError(t, err)
	sha2, err := s.PutBlob([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, sha1, sha2)

	content, err := s.GetBlob(sha1)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(content))
}

func TestGetBlobMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetBlob("deadbeef")
	assert.Error(t, err)
}

func TestAppendCheckpointIdempotentByDiffHash(t *testing.T) {
	s := openTestStore(t)
	cp := workinglog.Checkpoint{
		Kind:     workinglog.AiAgent,
		Author:   "ai",
		AgentID:  &authorship.AgentID{Tool: "mock_ai", ID: "sess-1", Model: "m"},
		DiffHash: "dh-1",
		Entries: []workinglog.CheckpointEntry{
			{FilePath: "a.go", BlobSHA: "sha1", LineAttributions: lineset.Normalize([]lineset.Range{{Start: 1, End: 3}})},
		},
	}
	id1, err := s.AppendCheckpoint(cp)
	require.NoError(t, err)
	id2, err := s.AppendCheckpoint(cp)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	checkpoints, err := s.ListCheckpoints()
	require.NoError(t, err)
	require.Len(t, checkpoints, 1)
	assert.Equal(t, "a.go", checkpoints[0].Entries[0].FilePath)
}

func TestListCheckpointsPreservesInsertionOrder(t *testing.T) {
	s := openTestStore(t)
	for i, hash := range []string{"dh-a", "dh-b", "dh-c"} {
		_, err := s.AppendCheckpoint(workinglog.Checkpoint{
			Kind: workinglog.Human, Author: "human", DiffHash: hash,
			Entries: []workinglog.CheckpointEntry{{FilePath: "f.go", BlobSHA: "s", LineAttributions: lineset.Set{}}},
		})
		require.NoError(t, err, "checkpoint %d", i)
	}
	checkpoints, err := s.ListCheckpoints()
	require.NoError(t, err)
	require.Len(t, checkpoints, 3)
	assert.Equal(t, "dh-a", checkpoints[0].DiffHash)
	assert.Equal(t, "dh-b", checkpoints[1].DiffHash)
	assert.Equal(t, "dh-c", checkpoints[2].DiffHash)
}

func TestArchiveAtSealsStore(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.ArchiveAt("deadbeef"))
	assert.True(t, s.IsArchived())

	_, err := s.AppendCheckpoint(workinglog.Checkpoint{Kind: workinglog.Human, Author: "human", DiffHash: "dh-x"})
	assert.Error(t, err)
}

func TestEntriesForFileFiltersAcrossCheckpoints(t *testing.T) {
	s := openTestStore(t)
	_, err := s.AppendCheckpoint(workinglog.Checkpoint{
		Kind: workinglog.Human, Author: "human", DiffHash: "dh-1",
		Entries: []workinglog.CheckpointEntry{{FilePath: "a.go", BlobSHA: "s1"}, {FilePath: "b.go", BlobSHA: "s2"}},
	})
	require.NoError(t, err)
	_, err = s.AppendCheckpoint(workinglog.Checkpoint{
		Kind: workinglog.Human, Author: "human", DiffHash: "dh-2",
		Entries: []workinglog.CheckpointEntry{{FilePath: "a.go", BlobSHA: "s3"}},
	})
	require.NoError(t, err)

	entries, err := s.EntriesForFile("a.go")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "s1", entries[0].BlobSHA)
	assert.Equal(t, "s3", entries[1].BlobSHA)
}
