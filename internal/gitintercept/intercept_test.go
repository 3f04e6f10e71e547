package gitintercept_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-ai-tool/git-ai/internal/gitargv"
	"github.com/git-ai-tool/git-ai/internal/gitintercept"
)

func TestClassify(t *testing.T) {
	cases := map[string]gitintercept.Operation{
		"commit":      gitintercept.OpCommit,
		"rebase":      gitintercept.OpRebase,
		"cherry-pick": gitintercept.OpCherryPick,
		"status":      gitintercept.OpOther,
		"log":         gitintercept.OpOther,
	}
	for cmd, want := range cases {
		assert.Equal(t, want, gitintercept.Classify(cmd), cmd)
	}
}

func TestRewritesHistory(t *testing.T) {
	assert.True(t, gitintercept.OpRebase.RewritesHistory())
	assert.True(t, gitintercept.OpStash.RewritesHistory())
	assert.False(t, gitintercept.OpCommit.RewritesHistory())
	assert.False(t, gitintercept.OpOther.RewritesHistory())
}

func TestExecGitCapturesOutput(t *testing.T) {
	dir := t.TempDir()
	res, err := gitintercept.ExecGit(context.Background(), dir, []string{"init"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
}

func TestExecGitReportsNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	_, err := gitintercept.ExecGit(context.Background(), dir, []string{"this-is-not-a-git-command"})
	assert.Error(t, err)
}

func TestRunInvokesPreAndPostHooks(t *testing.T) {
	dir := t.TempDir()
	_, err := gitintercept.ExecGit(context.Background(), dir, []string{"init"})
	require.NoError(t, err)

	var preCalled, postCalled bool
	var gotExitCode int
	hooks := gitintercept.Hooks{
		Pre: func(ctx context.Context, inv gitargv.Invocation) (gitintercept.PreState, error) {
			preCalled = true
			return gitintercept.PreState{"head": "abc"}, nil
		},
		Post: func(ctx context.Context, inv gitargv.Invocation, pre gitintercept.PreState, exitCode int) error {
			postCalled = true
			gotExitCode = exitCode
			assert.Equal(t, "abc", pre["head"])
			return nil
		},
	}

	exit := gitintercept.Run(context.Background(), dir, []string{"status"}, hooks)
	assert.Equal(t, 0, exit)
	assert.True(t, preCalled)
	assert.True(t, postCalled)
	assert.Equal(t, 0, gotExitCode)
}

func TestRunSkipsPostHookOnDryRun(t *testing.T) {
	dir := t.TempDir()
	_, err := gitintercept.ExecGit(context.Background(), dir, []string{"init"})
	require.NoError(t, err)
	testFile := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(testFile, []byte("x"), 0o644))

	var postCalled bool
	hooks := gitintercept.Hooks{
		Post: func(ctx context.Context, inv gitargv.Invocation, pre gitintercept.PreState, exitCode int) error {
			postCalled = true
			return nil
		},
	}

	gitintercept.Run(context.Background(), dir, []string{"add", "--dry-run", "a.txt"}, hooks)
	assert.False(t, postCalled)
}

func TestRunContinuesWhenPreHookErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := gitintercept.ExecGit(context.Background(), dir, []string{"init"})
	require.NoError(t, err)

	var postCalled bool
	hooks := gitintercept.Hooks{
		Pre: func(ctx context.Context, inv gitargv.Invocation) (gitintercept.PreState, error) {
			return nil, assert.AnError
		},
		Post: func(ctx context.Context, inv gitargv.Invocation, pre gitintercept.PreState, exitCode int) error {
			postCalled = true
			return nil
		},
	}

	exit := gitintercept.Run(context.Background(), dir, []string{"status"}, hooks)
	assert.Equal(t, 0, exit)
	assert.True(t, postCalled)
}
