package reconcile

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/git-ai-tool/git-ai/internal/giterrors"
)

// lockFileName is the advisory lock the reconciler holds under the repo's
// git directory for the duration of a history rewrite (spec §5): "the
// reconciler holds an advisory file lock under the repo's Git directory
// for the duration of a rewrite; concurrent rewrites in the same repo
// block." Git itself does not serialize rebase/cherry-pick/stash the way
// it does `commit`, so the reconciler takes its own.
const lockFileName = "git-ai-reconcile.lock"

// Lock is a held advisory lock. Its Token is a per-acquisition uuid
// written into the lock file purely for diagnostics (which invocation is
// holding it); the filesystem
// presence of the lock file is what actually excludes other processes.
type Lock struct {
	path  string
	Token string
}

// AcquireLock creates the reconciler's advisory lock under gitDir,
// failing with giterrors.ErrReconcileLocked if another reconciliation
// already holds it.
func AcquireLock(gitDir string) (*Lock, error) {
	path := filepath.Join(gitDir, lockFileName)
	token := uuid.NewString()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644) //nolint:gosec // advisory lock, not sensitive
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", giterrors.ErrReconcileLocked, path)
		}
		return nil, fmt.Errorf("create reconcile lock %s: %w", path, err)
	}
	defer f.Close()

	fmt.Fprintf(f, "%s\n%d\n%s\n", token, os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	return &Lock{path: path, Token: token}, nil
}

// Release removes the lock file, allowing the next reconciliation to
// proceed.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release reconcile lock %s: %w", l.path, err)
	}
	return nil
}
