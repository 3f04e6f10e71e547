// Package testutil provides scratch git repositories and fixture commits
// for tests across the module, scoped to what unit tests need (no CLI
// subprocess driving).
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Repo is a disposable git repository rooted in a t.TempDir().
type Repo struct {
	T    *testing.T
	Dir  string
	Repo *git.Repository
}

// NewRepo initializes an empty repository with a deterministic test
// identity and GPG signing disabled, so fixture commits never depend on
// the host machine's global git config.
func NewRepo(t *testing.T) *Repo {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("git init: %v", err)
	}

	cfg, err := repo.Config()
	if err != nil {
		t.Fatalf("repo config: %v", err)
	}
	cfg.User.Name = "Test User"
	cfg.User.Email = "test@example.com"
	if cfg.Raw == nil {
		cfg.Raw = config.New()
	}
	cfg.Raw.Section("commit").SetOption("gpgsign", "false")
	if err := repo.SetConfig(cfg); err != nil {
		t.Fatalf("set repo config: %v", err)
	}

	return &Repo{T: t, Dir: dir, Repo: repo}
}

// WriteFile writes relPath under the repo's working tree, creating parent
// directories as needed.
func (r *Repo) WriteFile(relPath, content string) {
	r.T.Helper()
	full := filepath.Join(r.Dir, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		r.T.Fatalf("mkdir %s: %v", filepath.Dir(full), err)
	}
	if err := os.WriteFile(full, []byte(content), 0o600); err != nil {
		r.T.Fatalf("write %s: %v", full, err)
	}
}

// Commit stages every path in paths and commits them, returning the new
// commit's hex SHA.
func (r *Repo) Commit(message string, paths ...string) string {
	r.T.Helper()
	wt, err := r.Repo.Worktree()
	if err != nil {
		r.T.Fatalf("worktree: %v", err)
	}
	for _, p := range paths {
		if _, err := wt.Add(p); err != nil {
			r.T.Fatalf("add %s: %v", p, err)
		}
	}
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author:            &object.Signature{Name: "Test User", Email: "test@example.com"},
		AllowEmptyCommits: true,
	})
	if err != nil {
		r.T.Fatalf("commit: %v", err)
	}
	return hash.String()
}

// Head returns the current HEAD commit's hex SHA.
func (r *Repo) Head() string {
	r.T.Helper()
	ref, err := r.Repo.Head()
	if err != nil {
		r.T.Fatalf("head: %v", err)
	}
	return ref.Hash().String()
}

// Branch creates and checks out a new branch named name from HEAD.
func (r *Repo) Branch(name string) {
	r.T.Helper()
	head, err := r.Repo.Head()
	if err != nil {
		r.T.Fatalf("head: %v", err)
	}
	refName := plumbing.NewBranchReferenceName(name)
	if err := r.Repo.Storer.SetReference(plumbing.NewHashReference(refName, head.Hash())); err != nil {
		r.T.Fatalf("create branch %s: %v", name, err)
	}
	wt, err := r.Repo.Worktree()
	if err != nil {
		r.T.Fatalf("worktree: %v", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: refName}); err != nil {
		r.T.Fatalf("checkout %s: %v", name, err)
	}
}
