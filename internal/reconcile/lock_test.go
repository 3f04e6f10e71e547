package reconcile_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-ai-tool/git-ai/internal/giterrors"
	"github.com/git-ai-tool/git-ai/internal/reconcile"
)

func TestAcquireLockExcludesConcurrentHolder(t *testing.T) {
	dir := t.TempDir()

	lock, err := reconcile.AcquireLock(dir)
	require.NoError(t, err)
	require.NotEmpty(t, lock.Token)

	_, err = reconcile.AcquireLock(dir)
	assert.True(t, errors.Is(err, giterrors.ErrReconcileLocked))

	require.NoError(t, lock.Release())

	lock2, err := reconcile.AcquireLock(dir)
	require.NoError(t, err)
	assert.NotEqual(t, lock.Token, lock2.Token)
	require.NoError(t, lock2.Release())
}

func TestLockReleaseIsIdempotentOnMissingFile(t *testing.T) {
	dir := t.TempDir()
	lock, err := reconcile.AcquireLock(dir)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())
}
