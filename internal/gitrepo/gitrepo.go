// Package gitrepo centralizes go-git repository access shared by every
// other component: opening the repository, resolving revisions, and
// reading/writing the refs/notes/ai namespace that carries authorship
// logs. Kept separate from internal/authorship so the serialization
// format can be tested without a live repository.
package gitrepo

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/git-ai-tool/git-ai/internal/giterrors"
)

// NotesRef is the Git notes namespace all authorship logs live under.
const NotesRef = "refs/notes/ai"

// Repo wraps a go-git repository with the note-tree helpers every
// component (synthesizer, reconciler, blame) needs.
type Repo struct {
	*git.Repository
	path string
}

// Open opens the repository rooted at or above path.
func Open(path string) (*Repo, error) {
	r, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", giterrors.ErrGitExec, path, err)
	}
	return &Repo{Repository: r, path: path}, nil
}

// GitDir returns the repository's .git directory.
func (r *Repo) GitDir() (string, error) {
	wt, err := r.Worktree()
	if err != nil {
		// Bare repository: the storer's filesystem root is the git dir.
		return r.path, nil
	}
	return wt.Filesystem.Root() + "/.git", nil
}

// ReadNote returns the raw blob content of the note attached to
// commitSHA under NotesRef, or giterrors.ErrObjectNotFound.
func (r *Repo) ReadNote(commitSHA string) ([]byte, error) {
	tree, _, err := r.notesTree()
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, fmt.Errorf("%w: no notes ref", giterrors.ErrObjectNotFound)
	}
	entry, err := tree.FindEntry(commitSHA)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", giterrors.ErrObjectNotFound, commitSHA)
	}
	blob, err := r.BlobObject(entry.Hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", giterrors.ErrObjectNotFound, commitSHA, err)
	}
	rc, err := blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", giterrors.ErrObjectNotFound, commitSHA, err)
	}
	defer rc.Close()

	buf, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", giterrors.ErrObjectNotFound, commitSHA, err)
	}
	return buf, nil
}

// HasNote reports whether commitSHA has a note attached.
func (r *Repo) HasNote(commitSHA string) bool {
	_, err := r.ReadNote(commitSHA)
	return err == nil
}

// WriteNote attaches content as the note for commitSHA, creating a new
// notes commit on top of the current refs/notes/ai tip (or a root commit
// if the ref doesn't exist yet). The write is a compare-and-swap on the
// ref: if the ref moved concurrently the caller gets
// giterrors.ErrNotesLocked and should retry.
func (r *Repo) WriteNote(commitSHA string, content []byte) error {
	tree, parent, err := r.notesTree()
	if err != nil {
		return err
	}

	entries := map[string]plumbing.Hash{}
	if tree != nil {
		for _, e := range tree.Entries {
			entries[e.Name] = e.Hash
		}
	}

	blobHash, err := r.writeBlob(content)
	if err != nil {
		return err
	}
	entries[commitSHA] = blobHash

	newTreeHash, err := r.writeFlatTree(entries)
	if err != nil {
		return err
	}

	commitHash, err := r.writeCommit(newTreeHash, parent, "git-ai: update authorship notes")
	if err != nil {
		return err
	}

	return r.compareAndSwapNotesRef(parent, commitHash)
}

func (r *Repo) notesTree() (*object.Tree, plumbing.Hash, error) {
	ref, err := r.Reference(plumbing.ReferenceName(NotesRef), true)
	if err != nil {
		return nil, plumbing.ZeroHash, nil //nolint:nilerr // no notes ref yet is expected on a fresh repo
	}
	commit, err := r.CommitObject(ref.Hash())
	if err != nil {
		return nil, plumbing.ZeroHash, fmt.Errorf("%w: notes commit %s: %v", giterrors.ErrObjectNotFound, ref.Hash(), err)
	}
	tree, err := r.TreeObject(commit.TreeHash)
	if err != nil {
		return nil, plumbing.ZeroHash, fmt.Errorf("%w: notes tree: %v", giterrors.ErrObjectNotFound, err)
	}
	return tree, ref.Hash(), nil
}

func (r *Repo) writeBlob(content []byte) (plumbing.Hash, error) {
	obj := r.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(content)))

	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: blob writer: %v", giterrors.ErrGitExec, err)
	}
	if _, err := w.Write(content); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, fmt.Errorf("%w: write blob: %v", giterrors.ErrGitExec, err)
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: close blob writer: %v", giterrors.ErrGitExec, err)
	}
	return r.Storer.SetEncodedObject(obj)
}

// writeFlatTree stores notes without the fanout subdirectories Git uses
// once a namespace grows large; `git notes` tooling reads flat trees
// transparently and will re-fan-out itself if it later rewrites the tree.
func (r *Repo) writeFlatTree(entries map[string]plumbing.Hash) (plumbing.Hash, error) {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	tree := &object.Tree{}
	for _, name := range names {
		tree.Entries = append(tree.Entries, object.TreeEntry{
			Name: name,
			Mode: filemode.Regular,
			Hash: entries[name],
		})
	}

	obj := r.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: encode notes tree: %v", giterrors.ErrGitExec, err)
	}
	return r.Storer.SetEncodedObject(obj)
}

func (r *Repo) writeCommit(treeHash, parent plumbing.Hash, message string) (plumbing.Hash, error) {
	sig := r.notesSignature()
	commit := &object.Commit{
		TreeHash:  treeHash,
		Author:    sig,
		Committer: sig,
		Message:   message,
	}
	if parent != plumbing.ZeroHash {
		commit.ParentHashes = []plumbing.Hash{parent}
	}

	obj := r.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: encode notes commit: %v", giterrors.ErrGitExec, err)
	}
	return r.Storer.SetEncodedObject(obj)
}

func (r *Repo) notesSignature() object.Signature {
	sig := object.Signature{Name: "git-ai", Email: "git-ai@localhost"}
	sig.When = time.Now()
	if cfg, err := r.ConfigScoped(0); err == nil {
		if cfg.User.Name != "" {
			sig.Name = cfg.User.Name
		}
		if cfg.User.Email != "" {
			sig.Email = cfg.User.Email
		}
	}
	return sig
}

// compareAndSwapNotesRef updates refs/notes/ai from oldHash to newHash.
// A mismatch (another writer moved the ref) surfaces as
// giterrors.ErrNotesLocked so the caller can reread and retry.
func (r *Repo) compareAndSwapNotesRef(oldHash, newHash plumbing.Hash) error {
	refName := plumbing.ReferenceName(NotesRef)
	newRef := plumbing.NewHashReference(refName, newHash)

	if oldHash == plumbing.ZeroHash {
		if err := r.Storer.SetReference(newRef); err != nil {
			return fmt.Errorf("%w: %v", giterrors.ErrNotesLocked, err)
		}
		return nil
	}

	oldRef := plumbing.NewHashReference(refName, oldHash)
	if err := r.Storer.CheckAndSetReference(newRef, oldRef); err != nil {
		return fmt.Errorf("%w: %v", giterrors.ErrNotesLocked, err)
	}
	return nil
}
