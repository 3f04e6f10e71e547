package authorship_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-ai-tool/git-ai/internal/authorship"
	"github.com/git-ai-tool/git-ai/internal/lineset"
)

func sampleLog() authorship.Log {
	hash := authorship.ShortHash("mock_ai", "session-1")
	log := authorship.New("deadbeefcafebabe00000000000000000000000", "0.1.0")
	log.Attestations = []authorship.FileAttestation{
		{
			FilePath: "src/main.go",
			Entries: []authorship.AttestationEntry{
				{Hash: hash, Ranges: lineset.Normalize([]lineset.Range{{Start: 4, End: 7}, {Start: 12, End: 12}})},
			},
		},
		{
			FilePath: "has space.txt",
			Entries: []authorship.AttestationEntry{
				{Hash: hash, Ranges: lineset.Normalize([]lineset.Range{{Start: 1, End: 1}})},
			},
		},
	}
	log.Metadata.Prompts[hash] = authorship.PromptSession{
		AgentID:        authorship.AgentID{Tool: "mock_ai", ID: "session-1", Model: "test-model"},
		TotalAdditions: 5,
		AcceptedLines:  5,
	}
	return log
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	log := sampleLog()

	raw, err := authorship.Serialize(log)
	require.NoError(t, err)

	got, err := authorship.Deserialize(raw)
	require.NoError(t, err)

	assert.Equal(t, log.Metadata.SchemaVersion, got.Metadata.SchemaVersion)
	assert.Equal(t, log.Metadata.BaseCommitSHA, got.Metadata.BaseCommitSHA)
	assert.Len(t, got.Attestations, 2)

	fa, ok := got.FileByPath("src/main.go")
	require.True(t, ok)
	require.Len(t, fa.Entries, 1)
	assert.Equal(t, "4-7,12", fa.Entries[0].Ranges.String())
}

func TestSerializeIsDeterministic(t *testing.T) {
	log := sampleLog()
	a, err := authorship.Serialize(log)
	require.NoError(t, err)
	b, err := authorship.Serialize(log)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSerializeQuotesPathsWithSpaces(t *testing.T) {
	raw, err := authorship.Serialize(sampleLog())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"has space.txt"`)
}

func TestSerializeRejectsQuoteInPath(t *testing.T) {
	log := authorship.New("abc", "0.1.0")
	log.Attestations = []authorship.FileAttestation{{FilePath: `weird"path.go`}}
	_, err := authorship.Serialize(log)
	assert.Error(t, err)
}

func TestDeserializeEmptyLog(t *testing.T) {
	log := authorship.New("abc123", "0.1.0")
	raw, err := authorship.Serialize(log)
	require.NoError(t, err)

	got, err := authorship.Deserialize(raw)
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
}

func TestDeserializeRejectsUnknownSchema(t *testing.T) {
	data := []byte("---\n{\"schema_version\": \"authorship/9.0.0\", \"base_commit_sha\": \"x\", \"prompts\": {}}\n")
	_, err := authorship.Deserialize(data)
	assert.Error(t, err)
}

func TestDeserializeAcceptsNewerMinorOfSameMajor(t *testing.T) {
	data := []byte("---\n{\"schema_version\": \"authorship/3.12.4\", \"base_commit_sha\": \"x\", \"prompts\": {}}\n")
	log, err := authorship.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, "authorship/3.12.4", log.Metadata.SchemaVersion)
}

func TestCheckSchemaVersionRejectsMalformedVersion(t *testing.T) {
	assert.Error(t, authorship.CheckSchemaVersion("authorship/not-a-version"))
	assert.Error(t, authorship.CheckSchemaVersion("3.0.0"))
}

func TestDeserializeRejectsMissingDivider(t *testing.T) {
	_, err := authorship.Deserialize([]byte("src/main.go\n  abc123 1-2\n"))
	assert.Error(t, err)
}

func TestFileAttestationAuthorAt(t *testing.T) {
	fa := authorship.FileAttestation{
		FilePath: "f.go",
		Entries: []authorship.AttestationEntry{
			{Hash: "aaaa", Ranges: lineset.Normalize([]lineset.Range{{Start: 1, End: 10}})},
			{Hash: "bbbb", Ranges: lineset.Normalize([]lineset.Range{{Start: 5, End: 6}})},
		},
	}
	assert.Equal(t, "aaaa", fa.AuthorAt(1))
	assert.Equal(t, "bbbb", fa.AuthorAt(5))
	assert.Equal(t, "", fa.AuthorAt(20))
}

func TestHashesDeduplicates(t *testing.T) {
	log := sampleLog()
	assert.Len(t, log.Hashes(), 1)
}
