package promptstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/git-ai-tool/git-ai/internal/authorship"
)

func TestCASStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cas, err := OpenCAS(dir, 0)
	require.NoError(t, err)

	body := []byte(`{"hash":"abc","messages":[]}`)
	hash, err := cas.Put(body)
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	// Second write of identical content is a no-op.
	hash2, err := cas.Put(body)
	require.NoError(t, err)
	require.Equal(t, hash, hash2)

	got, err := cas.Get(hash)
	require.NoError(t, err)
	require.Equal(t, body, got)

	_, err = cas.Get("deadbeef")
	require.Error(t, err)
}

func TestCASStoreEvictsOldestWhenOverBudget(t *testing.T) {
	dir := t.TempDir()
	cas, err := OpenCAS(dir, 10)
	require.NoError(t, err)

	require.NoError(t, cas.PutKeyed("oldest", []byte("0123456789")))
	require.NoError(t, cas.PutKeyed("newest", []byte("abcdefghij")))

	_, err = cas.Get("oldest")
	require.Error(t, err, "oldest blob should have been evicted once the cache exceeded its byte budget")

	got, err := cas.Get("newest")
	require.NoError(t, err)
	require.Equal(t, []byte("abcdefghij"), got)
}

func TestSpillTranscriptsWritesCASAndDB(t *testing.T) {
	gitDir := t.TempDir()
	t.Setenv("GIT_AI_TEST_DB_PATH", filepath.Join(t.TempDir(), "prompts.db"))

	log := authorship.Log{
		Metadata: authorship.Metadata{
			Prompts: map[string]authorship.PromptSession{
				"hash1": {
					AgentID:  authorship.AgentID{Tool: "mock_ai", ID: "sess-1", Model: "test-model"},
					Messages: []authorship.Message{{Kind: authorship.MessageUser, Content: "implement the calculator"}},
				},
			},
		},
	}

	require.NoError(t, SpillTranscripts(gitDir, "/repo", "deadbeef", log, 0))

	cas, err := OpenCAS(gitDir, 0)
	require.NoError(t, err)
	body, err := cas.Get("hash1")
	require.NoError(t, err)
	require.Contains(t, string(body), "implement the calculator")

	db, err := OpenDB(gitDir)
	require.NoError(t, err)
	defer db.Close()
	rec, err := db.Get("hash1")
	require.NoError(t, err)
	require.Equal(t, "mock_ai", rec.Tool)
	require.Equal(t, "deadbeef", rec.CommitSHA)
}

func TestDBUpsertAndSearch(t *testing.T) {
	t.Setenv("GIT_AI_TEST_DB_PATH", filepath.Join(t.TempDir(), "prompts.db"))
	db, err := OpenDB(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	rec := PromptDbRecord{
		ShortHash:  "0123456789abcdef",
		Workdir:    "/repo",
		CommitSHA:  "deadbeef",
		Tool:       "mock_ai",
		AgentID:    "sess-1",
		Model:      "claude-3-sonnet",
		CreatedAt:  time.Now(),
		Transcript: `[{"kind":"user","content":"implement the calculator"}]`,
	}
	require.NoError(t, db.Upsert(rec))

	got, err := db.Get(rec.ShortHash)
	require.NoError(t, err)
	require.Equal(t, rec.Tool, got.Tool)
	require.Equal(t, rec.Transcript, got.Transcript)

	hashes, err := db.Search("calculator")
	require.NoError(t, err)
	require.Contains(t, hashes, rec.ShortHash)

	_, err = db.Get("missing")
	require.Error(t, err)
}

func TestFetcherTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Millisecond)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestFetcherSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hash":"x","messages":[]}`))
	}))
	defer srv.Close()

	f := NewFetcher(time.Second)
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Contains(t, string(body), "hash")
}

func TestChainResolver(t *testing.T) {
	log := authorship.Log{
		Metadata: authorship.Metadata{
			Prompts: map[string]authorship.PromptSession{
				"hash1": {AgentID: authorship.AgentID{Tool: "mock_ai", ID: "sess-1"}},
			},
		},
	}
	chain := ChainResolver{InLogResolver{Log: log}}

	s, ok := chain.Resolve("hash1")
	require.True(t, ok)
	require.Equal(t, "mock_ai", s.AgentID.Tool)

	_, ok = chain.Resolve("missing")
	require.False(t, ok)
}

func TestShowPrefersInlineMessages(t *testing.T) {
	log := authorship.Log{
		Metadata: authorship.Metadata{
			Prompts: map[string]authorship.PromptSession{
				"hash1": {
					AgentID:  authorship.AgentID{Tool: "mock_ai", ID: "sess-1"},
					Messages: []authorship.Message{{Kind: authorship.MessageUser, Content: "hi"}},
				},
			},
		},
	}
	resolver := InLogResolver{Log: log}

	session, messages, err := Show(context.Background(), resolver, nil, nil, nil, "hash1")
	require.NoError(t, err)
	require.Equal(t, "mock_ai", session.AgentID.Tool)
	require.Len(t, messages, 1)
}

func TestShowNotFound(t *testing.T) {
	resolver := ChainResolver{}
	_, _, err := Show(context.Background(), resolver, nil, nil, nil, "missing")
	require.Error(t, err)
}
