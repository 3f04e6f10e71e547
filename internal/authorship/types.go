// Package authorship implements the authorship log data model and its
// on-disk serialization: the durable record, attached as a Git note,
// naming which line ranges of which files are attributable to which AI
// prompt sessions.
package authorship

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/git-ai-tool/git-ai/internal/lineset"
)

// SchemaVersion is the current authorship log format identifier. Bumped
// on any breaking change to the serialization.
const SchemaVersion = "authorship/3.0.0"

// HumanAuthor is the sentinel author_id used for human-attributed lines.
// Human lines are never recorded as attestations (absence = human); the
// sentinel exists for intermediate replay state and for checkpoint
// authorship before synthesis.
const HumanAuthor = "human"

// MessageKind enumerates the transcript message types that make up a
// PromptSession's conversation.
type MessageKind string

const (
	MessageUser      MessageKind = "user"
	MessageAssistant MessageKind = "assistant"
	MessageThinking  MessageKind = "thinking"
	MessagePlan      MessageKind = "plan"
	MessageToolUse   MessageKind = "tool_use"
)

// Message is one entry in a PromptSession's ordered transcript.
type Message struct {
	Kind      MessageKind `json:"kind"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// AgentID identifies the AI tool, its session, and the model used.
type AgentID struct {
	Tool  string `json:"tool"`
	ID    string `json:"id"`
	Model string `json:"model"`
}

// ShortHash returns the first 16 hex characters of SHA-256(tool + ":" +
// id), the durable identity of a PromptSession inside authorship logs.
func (a AgentID) ShortHash() string {
	return ShortHash(a.Tool, a.ID)
}

// ShortHash computes the short hash for an arbitrary (tool, id) pair
// without requiring a full AgentID.
func ShortHash(tool, id string) string {
	sum := sha256.Sum256([]byte(tool + ":" + id))
	return hex.EncodeToString(sum[:])[:16]
}

// PromptSession is an immutable description of one AI interaction.
type PromptSession struct {
	AgentID     AgentID   `json:"agent_id"`
	HumanAuthor string    `json:"human_author,omitempty"`
	Messages    []Message `json:"messages,omitempty"`

	TotalAdditions  int `json:"total_additions"`
	TotalDeletions  int `json:"total_deletions"`
	AcceptedLines   int `json:"accepted_lines"`
	OverriddenLines int `json:"overridden_lines"`

	// MessagesURL is an optional content-addressed pointer into the
	// external prompt store; set when the transcript body exceeds the
	// inline size threshold.
	MessagesURL string `json:"messages_url,omitempty"`
}

// ShortHash is a convenience accessor equal to s.AgentID.ShortHash().
func (s PromptSession) ShortHash() string { return s.AgentID.ShortHash() }

// AttestationEntry states that the line ranges are attributable to the
// PromptSession identified by Hash.
type AttestationEntry struct {
	Hash   string
	Ranges lineset.Set
}

// FileAttestation collects the attestation entries for one file. Entries
// are ordered; for overlapping ranges the later entry wins when querying.
// The synthesizer always produces disjoint entries, so this ordering is a
// determinism tie-break rather than a load-bearing query rule for logs it
// writes; other producers of raw (unsynthesized) logs may rely on it.
type FileAttestation struct {
	FilePath string
	Entries  []AttestationEntry
}

// AuthorAt returns the short hash attributed to line, or "" if no entry
// covers it (i.e. the line is human-authored or out of range). Later
// entries take precedence over earlier ones for the same line.
func (fa FileAttestation) AuthorAt(line int) string {
	author := ""
	for _, e := range fa.Entries {
		if e.Ranges.Contains(line) {
			author = e.Hash
		}
	}
	return author
}

// Metadata is the JSON-serialized block following the "---" divider.
type Metadata struct {
	SchemaVersion string                   `json:"schema_version"`
	GitAIVersion  string                   `json:"git_ai_version,omitempty"`
	BaseCommitSHA string                   `json:"base_commit_sha"`
	Prompts       map[string]PromptSession `json:"prompts"`
}

// NewMetadata returns an empty, schema-stamped Metadata for baseCommitSHA.
func NewMetadata(baseCommitSHA, gitAIVersion string) Metadata {
	return Metadata{
		SchemaVersion: SchemaVersion,
		GitAIVersion:  gitAIVersion,
		BaseCommitSHA: baseCommitSHA,
		Prompts:       make(map[string]PromptSession),
	}
}

// Log is the complete authorship record attached to one commit.
type Log struct {
	Attestations []FileAttestation
	Metadata     Metadata
}

// New returns an empty Log for baseCommitSHA.
func New(baseCommitSHA, gitAIVersion string) Log {
	return Log{Metadata: NewMetadata(baseCommitSHA, gitAIVersion)}
}

// FileByPath returns the FileAttestation for path and true if present.
func (l Log) FileByPath(path string) (FileAttestation, bool) {
	for _, fa := range l.Attestations {
		if fa.FilePath == path {
			return fa, true
		}
	}
	return FileAttestation{}, false
}

// IsEmpty reports whether the log carries no attestations and no
// prompts — the "metadata-only" shape written for human-only commits.
func (l Log) IsEmpty() bool {
	return len(l.Attestations) == 0 && len(l.Metadata.Prompts) == 0
}

// Hashes returns every short hash referenced by any attestation entry in
// the log, deduplicated.
func (l Log) Hashes() []string {
	seen := make(map[string]bool)
	var out []string
	for _, fa := range l.Attestations {
		for _, e := range fa.Entries {
			if !seen[e.Hash] {
				seen[e.Hash] = true
				out = append(out, e.Hash)
			}
		}
	}
	return out
}
