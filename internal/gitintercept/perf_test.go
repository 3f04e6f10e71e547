package gitintercept_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/git-ai-tool/git-ai/internal/gitintercept"
)

// TestPassthroughOverheadBudget exercises the §4.6 "wrapper overhead must
// stay under ~10% or 70ms, whichever is larger" contract: it times a bare
// `git status` directly against the real binary, then through
// PassthroughGit with no hooks attached, and asserts the added overhead
// fits the budget. This is a coarse smoke check, not a microbenchmark; CI
// noise can dominate on a cold checkout, so the budget itself is generous.
func TestPassthroughOverheadBudget(t *testing.T) {
	dir := t.TempDir()
	_, err := gitintercept.ExecGit(context.Background(), dir, []string{"init"})
	require.NoError(t, err)

	baseline := timeExecGit(t, dir)
	wrapped := timePassthrough(t, dir)

	budget := baseline / 10
	if budget < 70*time.Millisecond {
		budget = 70 * time.Millisecond
	}
	overhead := wrapped - baseline
	if overhead > budget {
		t.Errorf("passthrough overhead %v exceeded budget %v (baseline %v, wrapped %v)", overhead, budget, baseline, wrapped)
	}
}

func timeExecGit(t *testing.T, dir string) time.Duration {
	t.Helper()
	start := time.Now()
	_, err := gitintercept.ExecGit(context.Background(), dir, []string{"status"})
	require.NoError(t, err)
	return time.Since(start)
}

func timePassthrough(t *testing.T, dir string) time.Duration {
	t.Helper()
	start := time.Now()
	_, _, err := gitintercept.PassthroughGit(context.Background(), dir, []string{"status"})
	require.NoError(t, err)
	return time.Since(start)
}
