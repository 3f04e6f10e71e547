package blame_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-ai-tool/git-ai/internal/authorship"
	"github.com/git-ai-tool/git-ai/internal/blame"
	"github.com/git-ai-tool/git-ai/internal/gitrepo"
	"github.com/git-ai-tool/git-ai/internal/lineset"
	"github.com/git-ai-tool/git-ai/internal/testutil"
)

const samplePorcelain = `650a2353bf5d091d57c8358ceef906b700787ca2 1 1 2
author t
author-mail <t@t.com>
author-time 1785533702
author-tz +0000
committer t
committer-mail <t@t.com>
committer-time 1785533702
committer-tz +0000
summary c1
boundary
filename a.txt
	one
650a2353bf5d091d57c8358ceef906b700787ca2 2 2
	two
3a79339607fc295bffcfb4feb92e5556e8b460fa 3 3 1
author t
author-mail <t@t.com>
author-time 1785533703
author-tz +0000
committer t
committer-mail <t@t.com>
committer-time 1785533703
committer-tz +0000
summary c2
previous 650a2353bf5d091d57c8358ceef906b700787ca2 a.txt
filename a.txt
	THREE-edited
`

func TestParsePorcelainFillsHeaderForContinuationLine(t *testing.T) {
	lines := blame.ParsePorcelain([]byte(samplePorcelain))
	require.Len(t, lines, 3)

	assert.Equal(t, "650a2353bf5d091d57c8358ceef906b700787ca2", lines[0].CommitSHA)
	assert.Equal(t, "t", lines[0].AuthorName)
	assert.Equal(t, "t@t.com", lines[0].AuthorEmail)
	assert.Equal(t, "one", lines[0].Content)

	// Line 2 reuses the commit from line 1 with no repeated header block;
	// author fields must still be filled in from the first occurrence.
	assert.Equal(t, "650a2353bf5d091d57c8358ceef906b700787ca2", lines[1].CommitSHA)
	assert.Equal(t, "t", lines[1].AuthorName)
	assert.Equal(t, "two", lines[1].Content)

	assert.Equal(t, "3a79339607fc295bffcfb4feb92e5556e8b460fa", lines[2].CommitSHA)
	assert.Equal(t, "THREE-edited", lines[2].Content)
}

func openRepo(t *testing.T, tr *testutil.Repo) *gitrepo.Repo {
	t.Helper()
	r, err := gitrepo.Open(tr.Dir)
	require.NoError(t, err)
	return r
}

func TestRunRewritesAuthorFromNote(t *testing.T) {
	tr := testutil.NewRepo(t)
	repo := openRepo(t, tr)

	tr.WriteFile("a.txt", "one\ntwo\nthree\n")
	sha := tr.Commit("c1", "a.txt")

	log := authorship.New(sha, "0.1.0")
	hash := authorship.ShortHash("mock_ai", "sess-1")
	log.Metadata.Prompts[hash] = authorship.PromptSession{AgentID: authorship.AgentID{Tool: "mock_ai", ID: "sess-1", Model: "m"}}
	log.Attestations = []authorship.FileAttestation{{
		FilePath: "a.txt",
		Entries:  []authorship.AttestationEntry{{Hash: hash, Ranges: lineset.Normalize([]lineset.Range{{Start: 2, End: 2}})}},
	}}
	require.NoError(t, authorship.Write(repo, sha, log))

	lines, err := blame.Run(context.Background(), repo, tr.Dir, "a.txt", blame.Options{}, nil)
	require.NoError(t, err)
	require.Len(t, lines, 3)

	assert.Equal(t, "", lines[0].PromptHash) // human line 1, author passthrough
	assert.Equal(t, hash, lines[1].PromptHash)
	assert.Equal(t, "mock_ai", lines[1].AuthorName)
	assert.Equal(t, "", lines[2].PromptHash)
}

func TestRunMarkUnknownWhenNoNote(t *testing.T) {
	tr := testutil.NewRepo(t)
	repo := openRepo(t, tr)

	tr.WriteFile("a.txt", "x\n")
	tr.Commit("no note", "a.txt")

	lines, err := blame.Run(context.Background(), repo, tr.Dir, "a.txt", blame.Options{MarkUnknown: true}, nil)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, blame.UnknownAuthor, lines[0].AuthorName)
	assert.True(t, lines[0].MarkedUnknown)
}

func TestRunUsePromptHashesAsNames(t *testing.T) {
	tr := testutil.NewRepo(t)
	repo := openRepo(t, tr)

	tr.WriteFile("a.txt", "one\n")
	sha := tr.Commit("c1", "a.txt")

	hash := authorship.ShortHash("mock_ai", "sess-2")
	log := authorship.New(sha, "0.1.0")
	log.Metadata.Prompts[hash] = authorship.PromptSession{AgentID: authorship.AgentID{Tool: "mock_ai", ID: "sess-2", Model: "m"}}
	log.Attestations = []authorship.FileAttestation{{
		FilePath: "a.txt",
		Entries:  []authorship.AttestationEntry{{Hash: hash, Ranges: lineset.Normalize([]lineset.Range{{Start: 1, End: 1}})}},
	}}
	require.NoError(t, authorship.Write(repo, sha, log))

	lines, err := blame.Run(context.Background(), repo, tr.Dir, "a.txt", blame.Options{UsePromptHashesAsNames: true}, nil)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, hash, lines[0].AuthorName)
}
