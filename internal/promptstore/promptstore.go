// Package promptstore implements the content-addressed prompt store
// (spec §4.9, C9): the authorship log carries only a short hash, and
// full transcript bodies live here, reachable through a three-tier
// fallback chain (local CAS cache -> remote messages_url fetch -> local
// sqlite PromptDbRecord lookup), mirroring the original's
// show_prompt.rs fallback and backed by modernc.org/sqlite the way
// JensRoland-blamebot's internal/index package backs its reason index.
package promptstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/git-ai-tool/git-ai/internal/authorship"
	"github.com/git-ai-tool/git-ai/internal/giterrors"
	"github.com/git-ai-tool/git-ai/internal/gitrepo"
)

// DirName is relative to the repository's .git directory.
const DirName = "git-ai/prompts"

// CASSubdir holds cached transcript JSON blobs keyed by their CAS hash.
const CASSubdir = "cas"

// DBFileName is the sqlite database mirroring PromptSession rows.
const DBFileName = "prompts.db"

// DefaultNetworkTimeout bounds remote messages_url fetches (spec §5).
const DefaultNetworkTimeout = 30 * time.Second

// Transcript is the canonical JSON shape a messages_url resolves to.
type Transcript struct {
	Hash     string               `json:"hash"`
	Messages []authorship.Message `json:"messages"`
}

// CASHash returns the content-addressed hash of a transcript's canonical
// JSON encoding.
func CASHash(messages []authorship.Message) (string, []byte, error) {
	body, err := json.Marshal(messages)
	if err != nil {
		return "", nil, fmt.Errorf("marshal transcript: %w", err)
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), body, nil
}

// PromptDbRecord mirrors one PromptSession with first-class columns
// (spec §3.1), stored alongside a full-text-searchable transcript blob.
type PromptDbRecord struct {
	ShortHash   string
	Workdir     string
	CommitSHA   string
	Tool        string
	AgentID     string
	Model       string
	HumanAuthor string
	CreatedAt   time.Time
	Transcript  string // raw JSON-encoded []authorship.Message
}

// DB is the local relational mirror of prompt sessions (fallback tier 3
// and the CLI's `show-prompt`/search surface).
type DB struct {
	sql *sql.DB
}

// OpenDB opens (creating if absent) the sqlite database under gitDir,
// honoring GIT_AI_TEST_DB_PATH so tests never touch a real repository
// (spec §6.5).
func OpenDB(gitDir string) (*DB, error) {
	path := DBPath(gitDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open prompt db %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sql: sqlDB}
	if err := db.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// DBPath returns the sqlite file path: GIT_AI_TEST_DB_PATH if set, else
// the default location under gitDir.
func DBPath(gitDir string) string {
	if p := os.Getenv("GIT_AI_TEST_DB_PATH"); p != "" {
		return p
	}
	return filepath.Join(gitDir, DirName, DBFileName)
}

func (db *DB) migrate() error {
	_, err := db.sql.Exec(`
		CREATE TABLE IF NOT EXISTS prompts (
			short_hash   TEXT PRIMARY KEY,
			workdir      TEXT NOT NULL,
			commit_sha   TEXT,
			tool         TEXT NOT NULL,
			agent_id     TEXT NOT NULL,
			model        TEXT,
			human_author TEXT,
			created_at   TEXT NOT NULL,
			transcript   TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create prompts table: %w", err)
	}
	_, err = db.sql.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS prompts_fts USING fts5(
			short_hash UNINDEXED, transcript, content='prompts', content_rowid='rowid'
		)
	`)
	if err != nil {
		return fmt.Errorf("create prompts_fts table: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (db *DB) Close() error { return db.sql.Close() }

// Upsert records or replaces rec, keeping its full-text index in sync.
func (db *DB) Upsert(rec PromptDbRecord) error {
	tx, err := db.sql.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO prompts(short_hash, workdir, commit_sha, tool, agent_id, model, human_author, created_at, transcript)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(short_hash) DO UPDATE SET
			workdir=excluded.workdir, commit_sha=excluded.commit_sha, tool=excluded.tool,
			agent_id=excluded.agent_id, model=excluded.model, human_author=excluded.human_author,
			transcript=excluded.transcript`,
		rec.ShortHash, rec.Workdir, rec.CommitSHA, rec.Tool, rec.AgentID, rec.Model,
		rec.HumanAuthor, rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.Transcript)
	if err != nil {
		return fmt.Errorf("upsert prompt %s: %w", rec.ShortHash, err)
	}

	if _, err := tx.Exec(`DELETE FROM prompts_fts WHERE short_hash = ?`, rec.ShortHash); err != nil {
		return fmt.Errorf("refresh fts for %s: %w", rec.ShortHash, err)
	}
	if _, err := tx.Exec(`INSERT INTO prompts_fts(short_hash, transcript) VALUES (?, ?)`, rec.ShortHash, rec.Transcript); err != nil {
		return fmt.Errorf("index fts for %s: %w", rec.ShortHash, err)
	}

	return tx.Commit()
}

// Get returns the record for hash, or giterrors.ErrPromptNotFound.
func (db *DB) Get(hash string) (PromptDbRecord, error) {
	var rec PromptDbRecord
	var createdAt string
	err := db.sql.QueryRow(`
		SELECT short_hash, workdir, commit_sha, tool, agent_id, model, human_author, created_at, transcript
		FROM prompts WHERE short_hash = ?`, hash).Scan(
		&rec.ShortHash, &rec.Workdir, &rec.CommitSHA, &rec.Tool, &rec.AgentID,
		&rec.Model, &rec.HumanAuthor, &createdAt, &rec.Transcript)
	if err == sql.ErrNoRows {
		return PromptDbRecord{}, fmt.Errorf("%w: %s", giterrors.ErrPromptNotFound, hash)
	}
	if err != nil {
		return PromptDbRecord{}, fmt.Errorf("get prompt %s: %w", hash, err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return rec, nil
}

// Search runs a full-text query over transcript bodies, returning
// matching short hashes ordered by relevance.
func (db *DB) Search(query string) ([]string, error) {
	rows, err := db.sql.Query(`SELECT short_hash FROM prompts_fts WHERE transcript MATCH ? ORDER BY rank`, query)
	if err != nil {
		return nil, fmt.Errorf("search prompts: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		out = append(out, hash)
	}
	return out, rows.Err()
}

// CASStore is the local tier-1 transcript cache: raw JSON blobs on disk
// keyed by content hash, bounded to maxBytes total (settings'
// prompt_cache_size_bytes) by evicting the least-recently-written blobs.
type CASStore struct {
	dir      string
	maxBytes int64
}

// OpenCAS returns the CAS cache rooted at <gitDir>/DirName/CASSubdir.
// maxBytes <= 0 disables eviction (unbounded cache).
func OpenCAS(gitDir string, maxBytes int64) (*CASStore, error) {
	dir := filepath.Join(gitDir, DirName, CASSubdir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &CASStore{dir: dir, maxBytes: maxBytes}, nil
}

func (c *CASStore) path(hash string) string {
	return filepath.Join(c.dir, hash+".json")
}

// Put stores body under its own content hash, returning the hash. A
// second write of identical content is a no-op (content-addressed dedup).
func (c *CASStore) Put(body []byte) (string, error) {
	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])
	if err := c.write(hash, body); err != nil {
		return "", err
	}
	return hash, nil
}

// PutKeyed stores body under an explicit key rather than its content
// hash, used to spill a PromptSession's transcript into the cache keyed
// by its short hash so a later show-prompt can resolve it even if the
// commit that produced it is no longer reachable from the lookup start.
func (c *CASStore) PutKeyed(key string, body []byte) error {
	return c.write(key, body)
}

func (c *CASStore) write(key string, body []byte) error {
	path := c.path(key)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, body, 0o600); err != nil { //nolint:gosec // path derived from a caller-supplied hash
		return fmt.Errorf("write cas blob %s: %w", key, err)
	}
	c.evict()
	return nil
}

// evict removes the least-recently-written blobs until the cache
// directory is back under maxBytes. A non-positive maxBytes disables it.
func (c *CASStore) evict() {
	if c.maxBytes <= 0 {
		return
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}

	type blob struct {
		path string
		size int64
		mod  time.Time
	}
	var blobs []blob
	var total int64
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		blobs = append(blobs, blob{path: filepath.Join(c.dir, e.Name()), size: info.Size(), mod: info.ModTime()})
		total += info.Size()
	}
	if total <= c.maxBytes {
		return
	}

	sort.Slice(blobs, func(i, j int) bool { return blobs[i].mod.Before(blobs[j].mod) })
	for _, b := range blobs {
		if total <= c.maxBytes {
			return
		}
		if err := os.Remove(b.path); err == nil {
			total -= b.size
		}
	}
}

// Get returns the cached body for hash, or giterrors.ErrBlobMissing.
func (c *CASStore) Get(hash string) ([]byte, error) {
	body, err := os.ReadFile(c.path(hash)) //nolint:gosec // path derived from content hash
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", giterrors.ErrBlobMissing, hash)
		}
		return nil, fmt.Errorf("read cas blob %s: %w", hash, err)
	}
	return body, nil
}

// Fetcher retrieves a transcript body from a messages_url, bounded by a
// timeout (spec §5: network calls degrade gracefully rather than
// blocking local operations).
type Fetcher struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewFetcher returns a Fetcher with DefaultNetworkTimeout, overridable
// via the caller's Settings.NetworkTimeoutSeconds.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultNetworkTimeout
	}
	return &Fetcher{Client: &http.Client{Timeout: timeout}, Timeout: timeout}
}

// Fetch retrieves the raw transcript body at url. Errors are always
// giterrors.ErrNetworkTimeout or giterrors.ErrNetworkUnavailable so
// callers can fall back without inspecting message text.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", giterrors.ErrNetworkUnavailable, err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %v", giterrors.ErrNetworkTimeout, url, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", giterrors.ErrNetworkUnavailable, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: status %d", giterrors.ErrNetworkUnavailable, url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", giterrors.ErrNetworkUnavailable, url, err)
	}
	return body, nil
}

// Resolver looks up a PromptSession by its short hash (spec §9's
// PromptResolver interface), composed across sources until one answers.
type Resolver interface {
	Resolve(hash string) (authorship.PromptSession, bool)
}

// InLogResolver resolves hashes directly from one already-loaded log's
// metadata, the cheapest and most common case (the hash's own commit).
type InLogResolver struct {
	Log authorship.Log
}

// Resolve implements Resolver.
func (r InLogResolver) Resolve(hash string) (authorship.PromptSession, bool) {
	s, ok := r.Log.Metadata.Prompts[hash]
	return s, ok
}

// NoteWalkResolver performs the "best-effort search across reachable
// notes" spec §4.7 requires when a remapped commit's log references a
// hash not present in its own metadata: it walks commits reachable from
// Start and inspects each one's authorship note. Results (hits and
// misses) are memoized per instance, matching the blame engine's
// "foreign-prompt cache" (spec §4.8).
type NoteWalkResolver struct {
	Repo  *gitrepo.Repo
	Start string

	cache map[string]authorship.PromptSession
	miss  map[string]bool
}

// Resolve implements Resolver, walking first-parent history from Start
// until hash is found or history is exhausted.
func (r *NoteWalkResolver) Resolve(hash string) (authorship.PromptSession, bool) {
	if r.cache == nil {
		r.cache = map[string]authorship.PromptSession{}
		r.miss = map[string]bool{}
	}
	if s, ok := r.cache[hash]; ok {
		return s, true
	}
	if r.miss[hash] {
		return authorship.PromptSession{}, false
	}

	sha := r.Start
	seen := map[string]bool{}
	for sha != "" && !seen[sha] {
		seen[sha] = true
		log, err := authorship.Read(r.Repo, sha)
		if err == nil {
			if s, ok := log.Metadata.Prompts[hash]; ok {
				r.cache[hash] = s
				return s, true
			}
		}
		commit, cerr := r.Repo.CommitObject(plumbing.NewHash(sha))
		if cerr != nil || commit.NumParents() == 0 {
			break
		}
		sha = commit.ParentHashes[0].String()
	}

	r.miss[hash] = true
	return authorship.PromptSession{}, false
}

// ChainResolver tries each Resolver in order, returning the first hit.
type ChainResolver []Resolver

// Resolve implements Resolver.
func (c ChainResolver) Resolve(hash string) (authorship.PromptSession, bool) {
	for _, r := range c {
		if s, ok := r.Resolve(hash); ok {
			return s, true
		}
	}
	return authorship.PromptSession{}, false
}

// SpillTranscripts writes every inline-transcript PromptSession in log
// into the CAS cache and the sqlite mirror, keyed by its short hash, so a
// later show-prompt can resolve the transcript through tiers 1 or 3 even
// when the note that originally carried it isn't reachable from the
// lookup's starting commit (spec §4.7's "best-effort search" degrades to
// these once notes-walking is exhausted). Failures are collected but
// never stop the loop: a prompt store write must never fail a commit.
func SpillTranscripts(gitDir, workdir, commitSHA string, log authorship.Log, maxCacheBytes int64) error {
	hasTranscripts := false
	for _, session := range log.Metadata.Prompts {
		if len(session.Messages) > 0 {
			hasTranscripts = true
			break
		}
	}
	if !hasTranscripts {
		return nil
	}

	cas, casErr := OpenCAS(gitDir, maxCacheBytes)
	db, dbErr := OpenDB(gitDir)
	if db != nil {
		defer db.Close()
	}
	if casErr != nil && dbErr != nil {
		return fmt.Errorf("opening prompt store: cas: %v, db: %v", casErr, dbErr)
	}

	var errs []error
	now := time.Now().UTC()
	for hash, session := range log.Metadata.Prompts {
		if len(session.Messages) == 0 {
			continue
		}
		body, err := json.Marshal(Transcript{Hash: hash, Messages: session.Messages})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if cas != nil {
			if err := cas.PutKeyed(hash, body); err != nil {
				errs = append(errs, err)
			}
		}
		if db != nil {
			messagesJSON, err := json.Marshal(session.Messages)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			rec := PromptDbRecord{
				ShortHash:   hash,
				Workdir:     workdir,
				CommitSHA:   commitSHA,
				Tool:        session.AgentID.Tool,
				AgentID:     session.AgentID.ID,
				Model:       session.AgentID.Model,
				HumanAuthor: session.HumanAuthor,
				CreatedAt:   now,
				Transcript:  string(messagesJSON),
			}
			if err := db.Upsert(rec); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("spilling %d prompt transcript(s): %v", len(errs), errs[0])
	}
	return nil
}

// Show implements the full show-prompt fallback chain (spec §4.9/§12):
// resolve the session by hash, then fetch its transcript body through
// (1) the local CAS cache, (2) a remote fetch of MessagesURL if present,
// (3) the local sqlite PromptDbRecord. It never errors on a network
// failure; it just returns fewer messages than the session claims.
func Show(ctx context.Context, resolver Resolver, cas *CASStore, fetcher *Fetcher, db *DB, hash string) (authorship.PromptSession, []authorship.Message, error) {
	session, ok := resolver.Resolve(hash)
	if !ok {
		return authorship.PromptSession{}, nil, fmt.Errorf("%w: %s", giterrors.ErrPromptNotFound, hash)
	}

	if len(session.Messages) > 0 {
		return session, session.Messages, nil
	}

	if cas != nil {
		if body, err := cas.Get(hash); err == nil {
			var t Transcript
			if jerr := json.Unmarshal(body, &t); jerr == nil {
				return session, t.Messages, nil
			}
		}
	}

	if session.MessagesURL != "" && fetcher != nil {
		if body, err := fetcher.Fetch(ctx, session.MessagesURL); err == nil {
			var t Transcript
			if jerr := json.Unmarshal(body, &t); jerr == nil {
				if cas != nil {
					_, _ = cas.Put(body)
				}
				return session, t.Messages, nil
			}
		}
	}

	if db != nil {
		if rec, err := db.Get(hash); err == nil && rec.Transcript != "" {
			var messages []authorship.Message
			if jerr := json.Unmarshal([]byte(rec.Transcript), &messages); jerr == nil {
				return session, messages, nil
			}
		}
	}

	return session, nil, nil
}
