package gitrepo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-ai-tool/git-ai/internal/gitrepo"
	"github.com/git-ai-tool/git-ai/internal/testutil"
)

func TestWriteAndReadNoteRoundTrip(t *testing.T) {
	tr := testutil.NewRepo(t)
	tr.WriteFile("a.txt", "hello\n")
	sha := tr.Commit("initial", "a.txt")

	repo, err := gitrepo.Open(tr.Dir)
	require.NoError(t, err)

	require.False(t, repo.HasNote(sha))

	require.NoError(t, repo.WriteNote(sha, []byte("note body one")))
	assert.True(t, repo.HasNote(sha))

	got, err := repo.ReadNote(sha)
	require.NoError(t, err)
	assert.Equal(t, "note body one", string(got))
}

func TestWriteNoteOverwritesExisting(t *testing.T) {
	tr := testutil.NewRepo(t)
	tr.WriteFile("a.txt", "hello\n")
	sha := tr.Commit("initial", "a.txt")

	repo, err := gitrepo.Open(tr.Dir)
	require.NoError(t, err)

	require.NoError(t, repo.WriteNote(sha, []byte("v1")))
	require.NoError(t, repo.WriteNote(sha, []byte("v2")))

	got, err := repo.ReadNote(sha)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))
}

func TestWriteNotePreservesOtherCommitsNotes(t *testing.T) {
	tr := testutil.NewRepo(t)
	tr.WriteFile("a.txt", "one\n")
	sha1 := tr.Commit("first", "a.txt")
	tr.WriteFile("a.txt", "two\n")
	sha2 := tr.Commit("second", "a.txt")

	repo, err := gitrepo.Open(tr.Dir)
	require.NoError(t, err)

	require.NoError(t, repo.WriteNote(sha1, []byte("note1")))
	require.NoError(t, repo.WriteNote(sha2, []byte("note2")))

	got1, err := repo.ReadNote(sha1)
	require.NoError(t, err)
	assert.Equal(t, "note1", string(got1))

	got2, err := repo.ReadNote(sha2)
	require.NoError(t, err)
	assert.Equal(t, "note2", string(got2))
}

func TestReadNoteMissingReturnsError(t *testing.T) {
	tr := testutil.NewRepo(t)
	tr.WriteFile("a.txt", "hello\n")
	sha := tr.Commit("initial", "a.txt")

	repo, err := gitrepo.Open(tr.Dir)
	require.NoError(t, err)

	_, err = repo.ReadNote(sha)
	assert.Error(t, err)
}
