package authorship

import (
	"errors"
	"fmt"

	"github.com/git-ai-tool/git-ai/internal/giterrors"
	"github.com/git-ai-tool/git-ai/internal/gitrepo"
)

// Read loads and deserializes the authorship log attached to commitSHA.
func Read(repo *gitrepo.Repo, commitSHA string) (Log, error) {
	raw, err := repo.ReadNote(commitSHA)
	if err != nil {
		return Log{}, err
	}
	log, err := Deserialize(raw)
	if err != nil {
		return Log{}, fmt.Errorf("note for %s: %w", commitSHA, err)
	}
	return log, nil
}

// Write serializes log and attaches it as the note for commitSHA,
// retrying once on a concurrent-writer conflict (giterrors.ErrNotesLocked)
// since a single rebase/reconcile pass may touch many commits in a row
// while another process is also writing notes.
func Write(repo *gitrepo.Repo, commitSHA string, log Log) error {
	raw, err := Serialize(log)
	if err != nil {
		return err
	}

	err = repo.WriteNote(commitSHA, raw)
	if err == nil {
		return nil
	}
	if !errors.Is(err, giterrors.ErrNotesLocked) {
		return err
	}
	return repo.WriteNote(commitSHA, raw)
}

// Exists reports whether commitSHA has an authorship note.
func Exists(repo *gitrepo.Repo, commitSHA string) bool {
	return repo.HasNote(commitSHA)
}
