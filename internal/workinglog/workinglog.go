// Package workinglog implements the working log store (spec §4.4, C4):
// an append-only, per-base-commit sequence of checkpoints plus a
// content-addressed blob store, backed by a local embedded database the
// way JensRoland-blamebot's internal/index package backs its reason
// index with modernc.org/sqlite via database/sql.
package workinglog

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/git-ai-tool/git-ai/internal/authorship"
	"github.com/git-ai-tool/git-ai/internal/diffattr"
	"github.com/git-ai-tool/git-ai/internal/giterrors"
	"github.com/git-ai-tool/git-ai/internal/lineset"
)

// Kind enumerates who produced a checkpoint.
type Kind string

const (
	Human  Kind = "human"
	AiAgent Kind = "ai_agent"
)

// InitialBaseName is the literal base key used for a repository with no
// commits yet (spec §3.1).
const InitialBaseName = "initial"

// DirName is relative to the repository's .git directory.
const DirName = "git-ai/workinglog"

// CheckpointEntry is one touched file within a Checkpoint.
type CheckpointEntry struct {
	FilePath         string
	BlobSHA          string
	Attributions     []diffattr.ByteAttribution
	LineAttributions lineset.Set
}

// LineStats summarizes a checkpoint's additions/deletions across all its
// entries.
type LineStats struct {
	Additions int
	Deletions int
}

// Checkpoint is a single recorded edit event (spec §3.1).
type Checkpoint struct {
	ID        int64
	Kind      Kind
	Author    string
	AgentID   *authorship.AgentID
	Transcript []authorship.Message
	Entries   []CheckpointEntry
	LineStats LineStats
	DiffHash  string
	CreatedAt time.Time
}

// Store is the working log for one base commit SHA, backed by a single
// SQLite file under .git/git-ai/workinglog/<base>.db.
type Store struct {
	db       *sql.DB
	path     string
	baseSHA  string
	archived bool
}

// OpenForBase returns the store keyed by baseSHA under gitDir, creating
// the database file and schema if absent. baseSHA should be
// InitialBaseName for a repository with no commits.
func OpenForBase(gitDir, baseSHA string) (*Store, error) {
	if baseSHA == "" {
		baseSHA = InitialBaseName
	}
	dir := filepath.Join(gitDir, DirName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: mkdir %s: %v", giterrors.ErrBlobMissing, dir, err)
	}
	path := filepath.Join(dir, dbFileName(baseSHA))

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open working log db %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single-writer sqlite file; serializes transactional appends

	s := &Store{db: db, path: path, baseSHA: baseSHA}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.archived = s.readArchived()
	return s, nil
}

func dbFileName(baseSHA string) string {
	return baseSHA + ".db"
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// BaseSHA returns the base commit SHA this store is keyed by.
func (s *Store) BaseSHA() string { return s.baseSHA }

// Path returns the on-disk database file path.
func (s *Store) Path() string { return s.path }

// Remove closes the store and deletes its underlying database file. Used
// by the reconciler (ListBaseFiles + PruneOrphans) to clean up archived
// working logs whose base commit is no longer resolvable after a history
// rewrite.
func (s *Store) Remove() error {
	path := s.path
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close working log %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove working log %s: %w", path, err)
	}
	return nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			author TEXT NOT NULL,
			agent_tool TEXT,
			agent_id TEXT,
			agent_model TEXT,
			transcript_json TEXT,
			additions INTEGER NOT NULL,
			deletions INTEGER NOT NULL,
			diff_hash TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS checkpoint_entries (
			checkpoint_id INTEGER NOT NULL REFERENCES checkpoints(id),
			file_path TEXT NOT NULL,
			blob_sha TEXT NOT NULL,
			attributions_json TEXT NOT NULL,
			line_attributions TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS blobs (
			sha TEXT PRIMARY KEY,
			content BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate working log schema: %w", err)
	}
	return nil
}

func (s *Store) readArchived() bool {
	var v string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'archived'`).Scan(&v)
	return err == nil && v == "true"
}

// IsArchived reports whether ArchiveAt has sealed this store against
// further writes.
func (s *Store) IsArchived() bool { return s.archived }

// ArchiveAt seals the log against further checkpoint writes once
// commitSHA's commit has consumed it (spec §3.2: "archived — not
// deleted"). Read access (ListCheckpoints, GetBlob) remains available.
func (s *Store) ArchiveAt(commitSHA string) error {
	_, err := s.db.Exec(`INSERT INTO meta(key, value) VALUES ('archived', 'true'), ('archived_at_commit', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, commitSHA)
	if err != nil {
		return fmt.Errorf("archive working log: %w", err)
	}
	s.archived = true
	return nil
}

// PutBlob stores content keyed by its SHA-256 hex digest, a no-op if the
// hash already exists (content-addressed dedup, spec §4.4).
func (s *Store) PutBlob(content []byte) (string, error) {
	sha := sha256Hex(content)
	_, err := s.db.Exec(`INSERT OR IGNORE INTO blobs(sha, content) VALUES (?, ?)`, sha, content)
	if err != nil {
		return "", fmt.Errorf("put blob: %w", err)
	}
	return sha, nil
}

// GetBlob returns the content stored under sha, or giterrors.ErrBlobMissing.
func (s *Store) GetBlob(sha string) ([]byte, error) {
	var content []byte
	err := s.db.QueryRow(`SELECT content FROM blobs WHERE sha = ?`, sha).Scan(&content)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", giterrors.ErrBlobMissing, sha)
	}
	if err != nil {
		return nil, fmt.Errorf("get blob %s: %w", sha, err)
	}
	return content, nil
}

// AppendCheckpoint records cp, assigning it the next sequence number.
// Idempotent by DiffHash: a checkpoint whose diff hash is already
// present is silently dropped (spec §4.4), returning the existing
// checkpoint's ID.
func (s *Store) AppendCheckpoint(cp Checkpoint) (int64, error) {
	if s.archived {
		return 0, fmt.Errorf("working log for base %s is archived: no further writes", s.baseSHA)
	}

	var existingID int64
	err := s.db.QueryRow(`SELECT id FROM checkpoints WHERE diff_hash = ?`, cp.DiffHash).Scan(&existingID)
	if err == nil {
		return existingID, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("check diff_hash dedup: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin checkpoint transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var seq int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(seq), 0) + 1 FROM checkpoints`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("compute next seq: %w", err)
	}

	var transcriptJSON []byte
	if cp.Transcript != nil {
		transcriptJSON, err = json.Marshal(cp.Transcript)
		if err != nil {
			return 0, fmt.Errorf("marshal transcript: %w", err)
		}
	}

	var tool, agentID, model string
	if cp.AgentID != nil {
		tool, agentID, model = cp.AgentID.Tool, cp.AgentID.ID, cp.AgentID.Model
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	res, err := tx.Exec(`
		INSERT INTO checkpoints(seq, kind, author, agent_tool, agent_id, agent_model, transcript_json, additions, deletions, diff_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seq, string(cp.Kind), cp.Author, nullIfEmpty(tool), nullIfEmpty(agentID), nullIfEmpty(model),
		nullIfEmptyBytes(transcriptJSON), cp.LineStats.Additions, cp.LineStats.Deletions, cp.DiffHash, cp.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("insert checkpoint: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("checkpoint last insert id: %w", err)
	}

	for _, e := range cp.Entries {
		attrJSON, err := json.Marshal(e.Attributions)
		if err != nil {
			return 0, fmt.Errorf("marshal attributions for %s: %w", e.FilePath, err)
		}
		_, err = tx.Exec(`
			INSERT INTO checkpoint_entries(checkpoint_id, file_path, blob_sha, attributions_json, line_attributions)
			VALUES (?, ?, ?, ?, ?)`,
			id, e.FilePath, e.BlobSHA, string(attrJSON), e.LineAttributions.String())
		if err != nil {
			return 0, fmt.Errorf("insert checkpoint entry %s: %w", e.FilePath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit checkpoint transaction: %w", err)
	}
	return id, nil
}

// ListCheckpoints returns every checkpoint in insertion order.
func (s *Store) ListCheckpoints() ([]Checkpoint, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, author, agent_tool, agent_id, agent_model, transcript_json, additions, deletions, diff_hash, created_at
		FROM checkpoints ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		var cp Checkpoint
		var kind, createdAt string
		var tool, agentID, model, transcriptJSON sql.NullString
		if err := rows.Scan(&cp.ID, &kind, &cp.Author, &tool, &agentID, &model, &transcriptJSON,
			&cp.LineStats.Additions, &cp.LineStats.Deletions, &cp.DiffHash, &createdAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		cp.Kind = Kind(kind)
		if tool.Valid {
			cp.AgentID = &authorship.AgentID{Tool: tool.String, ID: agentID.String, Model: model.String}
		}
		if transcriptJSON.Valid && transcriptJSON.String != "" {
			if err := json.Unmarshal([]byte(transcriptJSON.String), &cp.Transcript); err != nil {
				return nil, fmt.Errorf("unmarshal transcript for checkpoint %d: %w", cp.ID, err)
			}
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			cp.CreatedAt = ts
		}

		entries, err := s.entriesFor(cp.ID)
		if err != nil {
			return nil, err
		}
		cp.Entries = entries
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return out, nil
}

func (s *Store) entriesFor(checkpointID int64) ([]CheckpointEntry, error) {
	rows, err := s.db.Query(`
		SELECT file_path, blob_sha, attributions_json, line_attributions
		FROM checkpoint_entries WHERE checkpoint_id = ?`, checkpointID)
	if err != nil {
		return nil, fmt.Errorf("query checkpoint entries: %w", err)
	}
	defer rows.Close()

	var out []CheckpointEntry
	for rows.Next() {
		var e CheckpointEntry
		var attrJSON, rangesStr string
		if err := rows.Scan(&e.FilePath, &e.BlobSHA, &attrJSON, &rangesStr); err != nil {
			return nil, fmt.Errorf("scan checkpoint entry: %w", err)
		}
		if err := json.Unmarshal([]byte(attrJSON), &e.Attributions); err != nil {
			return nil, fmt.Errorf("unmarshal attributions for %s: %w", e.FilePath, err)
		}
		ranges, err := lineset.Parse(rangesStr)
		if err != nil {
			return nil, fmt.Errorf("parse line_attributions for %s: %w", e.FilePath, err)
		}
		e.LineAttributions = ranges
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoint entries: %w", err)
	}
	return out, nil
}

// EntriesForFile returns, across every checkpoint in order, the entries
// that touched filePath — used by the blame engine's virtual attribution
// overlay (spec §4.8) to find the most recent checkpoint covering a
// buffer's lines.
func (s *Store) EntriesForFile(filePath string) ([]CheckpointEntry, error) {
	checkpoints, err := s.ListCheckpoints()
	if err != nil {
		return nil, err
	}
	var out []CheckpointEntry
	for _, cp := range checkpoints {
		for _, e := range cp.Entries {
			if e.FilePath == filePath {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// ListBaseFiles returns every base name with a working log database
// present under gitDir, sorted, the literal InitialBaseName included
// when its database exists. Used by the reconciler to
// find an orphaned working log after a rebase changes the base.
func ListBaseFiles(gitDir string) ([]string, error) {
	dir := filepath.Join(gitDir, DirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read working log dir: %w", err)
	}
	var bases []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		const suffix = ".db"
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			bases = append(bases, name[:len(name)-len(suffix)])
		}
	}
	sort.Strings(bases)
	return bases, nil
}

func sha256Hex(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfEmptyBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
