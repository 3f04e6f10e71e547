// Package giterrors enumerates the typed error taxonomy used across git-ai:
// parse errors, resolution errors, git errors, IO errors, network errors,
// and user errors. Callers use errors.Is/errors.As against these sentinels
// rather than matching on message text.
package giterrors

import "errors"

// Parse errors: malformed authorship log, unknown schema version, invalid
// line-range syntax.
var (
	ErrMalformedLog    = errors.New("malformed authorship log")
	ErrUnknownSchema   = errors.New("unknown authorship log schema version")
	ErrInvalidRange    = errors.New("invalid line range syntax")
	ErrInvalidPath     = errors.New("invalid or unquotable file path")
)

// Resolution errors: a prompt short hash could not be found in any
// reachable commit's authorship note.
var ErrPromptNotFound = errors.New("prompt session not found in any reachable note")

// Git errors: subprocess failure, missing object, unresolvable revision.
var (
	ErrGitExec          = errors.New("git subprocess failed")
	ErrObjectNotFound   = errors.New("git object not found")
	ErrRevisionNotFound = errors.New("revision could not be resolved")
)

// IO errors: filesystem access, notes ref contention, blob store misses.
var (
	ErrBlobMissing      = errors.New("blob not found in working log store")
	ErrNotesLocked      = errors.New("refs/notes/ai ref update rejected (concurrent writer)")
	ErrReconcileLocked  = errors.New("a history-rewrite reconciliation is already in progress for this repository")
)

// Network errors: prompt-store remote fetch failures/timeouts. Never
// block local operations; callers degrade and keep the messages_url
// pointer instead of inline messages.
var (
	ErrNetworkTimeout   = errors.New("network request timed out")
	ErrNetworkUnavailable = errors.New("remote prompt store unavailable")
)

// User errors: missing required argument, mutually exclusive flags.
var (
	ErrMissingArgument    = errors.New("missing required argument")
	ErrMutuallyExclusive  = errors.New("mutually exclusive flags specified together")
	ErrNoResults          = errors.New("query returned no results")
)
