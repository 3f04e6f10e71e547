// Package gitintercept implements the Git operation interceptor: it runs
// a pre-command hook, the real `git` binary, and a post-command hook
// around every invocation, detecting which operation ran so authorship
// metadata can be repaired afterward. All calls to the real git binary
// funnel through ExecGit, a single narrow surface for shelling out.
package gitintercept

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/git-ai-tool/git-ai/internal/gitargv"
	"github.com/git-ai-tool/git-ai/internal/giterrors"
	"github.com/git-ai-tool/git-ai/internal/logging"
)

// RealGitEnvVar overrides the git binary git-ai shells out to. Needed
// because git-ai itself may be installed as a `git` shim on PATH; without
// an override it would recurse into itself.
const RealGitEnvVar = "GIT_AI_REAL_GIT"

// PerfEnvVar, when set to "2", makes Run emit a JSON performance record
// to stderr for every invocation.
const PerfEnvVar = "GIT_AI_DEBUG_PERFORMANCE"

// Operation classifies the Git subcommand an invocation ran.
type Operation string

const (
	OpCommit     Operation = "commit"
	OpMerge      Operation = "merge"
	OpRebase     Operation = "rebase"
	OpCherryPick Operation = "cherry-pick"
	OpStash      Operation = "stash"
	OpReset      Operation = "reset"
	OpCheckout   Operation = "checkout"
	OpRevert     Operation = "revert"
	OpAm         Operation = "am"
	OpClone      Operation = "clone"
	OpPull       Operation = "pull"
	OpPush       Operation = "push"
	OpNotes      Operation = "notes"
	OpHelp       Operation = "help"
	OpVersion    Operation = "version"
	OpOther      Operation = "other"
)

// Classify maps a parsed subcommand name to an Operation.
func Classify(command string) Operation {
	switch command {
	case "commit", "merge", "rebase", "cherry-pick", "stash", "reset",
		"checkout", "revert", "am", "clone", "pull", "push", "notes", "help", "version":
		return Operation(command)
	default:
		return OpOther
	}
}

// RewritesHistory reports whether op is one the post-hook should route
// through the reconciler rather than the plain synthesizer.
func (op Operation) RewritesHistory() bool {
	switch op {
	case OpRebase, OpCherryPick, OpStash, OpReset, OpAm, OpRevert:
		return true
	case OpMerge:
		return true // only --squash matters; caller inspects CommandArgs
	default:
		return false
	}
}

// ExecResult is the outcome of running the real git binary.
type ExecResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// realGitPath resolves the binary ExecGit shells out to: the override
// env var if set, else "git" resolved from PATH.
func realGitPath() string {
	if p := os.Getenv(RealGitEnvVar); p != "" {
		return p
	}
	return "git"
}

// ExecGit runs the real git binary with argv (everything after `git`) in
// dir, capturing stdout/stderr rather than inheriting them. Used by every
// internal component that needs to shell out to git (status checks,
// rev-parse, blame) rather than passthrough the user's own invocation.
func ExecGit(ctx context.Context, dir string, argv []string) (ExecResult, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, realGitPath(), argv...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := ExecResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), Duration: time.Since(start)}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
		return result, nil
	case asExitError(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		return result, fmt.Errorf("%w: git %v exited %d: %s", giterrors.ErrGitExec, argv, result.ExitCode, stderr.String())
	default:
		return result, fmt.Errorf("%w: git %v: %v", giterrors.ErrGitExec, argv, err)
	}
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

// PassthroughGit runs the real git binary with argv, inheriting this
// process's stdio exactly as the user invoked it, and returns the exit
// code. This is what Run uses for the actual wrapped command: authorship
// tracking must never change what the user sees.
func PassthroughGit(ctx context.Context, dir string, argv []string) (int, time.Duration, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, realGitPath(), argv...)
	cmd.Dir = dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	dur := time.Since(start)

	var exitErr *exec.ExitError
	if err == nil {
		return 0, dur, nil
	}
	if asExitError(err, &exitErr) {
		return exitErr.ExitCode(), dur, nil
	}
	return 1, dur, fmt.Errorf("%w: %v", giterrors.ErrGitExec, err)
}

// Hooks lets Run's caller supply the post-hook logic without
// gitintercept importing synth/reconcile directly (those packages
// already depend on gitrepo/workinglog; keeping the dependency direction
// one-way avoids a cycle and keeps this package testable with a fake).
type Hooks struct {
	// Pre runs before the real git subprocess. It must never return an
	// error that blocks the git invocation — Run logs pre-hook errors and
	// continues.
	Pre func(ctx context.Context, inv gitargv.Invocation) (PreState, error)
	// Post runs after the real git subprocess, regardless of its exit
	// code, unless DryRun was detected. Errors are logged, never
	// propagated to the process exit code.
	Post func(ctx context.Context, inv gitargv.Invocation, pre PreState, exitCode int) error
}

// PreState is opaque context threaded from Pre to Post, e.g. the
// resolved original HEAD or current branch. Kept as a plain map so
// gitintercept never needs to know its shape.
type PreState map[string]string

// Run is the full pre-hook -> real git -> post-hook cycle for one
// invocation. It never prevents the git command from completing: a Pre
// failure is logged and Run proceeds with an empty PreState; a Post
// failure is logged and the user's original exit code is preserved.
func Run(ctx context.Context, dir string, rawArgs []string, hooks Hooks) int {
	inv := gitargv.Parse(rawArgs)
	ctx = logging.WithOperation(ctx, string(Classify(inv.Command)))

	pre, err := safePre(ctx, hooks, inv)
	if err != nil {
		logging.Warn(ctx, "pre-hook failed, continuing", "error", err.Error())
	}

	exitCode, dur, err := PassthroughGit(ctx, dir, inv.ToArgv())
	if err != nil {
		logging.Error(ctx, "failed to exec git", "error", err.Error())
		fmt.Fprintln(os.Stderr, logging.ErrPrefix, "failed to run git:", err)
		return 1
	}

	dryRun := inv.HasCommandFlag("--dry-run")
	if !dryRun && hooks.Post != nil {
		if err := hooks.Post(ctx, inv, pre, exitCode); err != nil {
			logging.Warn(ctx, "post-hook failed", "error", err.Error())
			fmt.Fprintln(os.Stderr, logging.ErrPrefix, "authorship tracking failed:", err)
		}
	}

	maybeEmitPerf(inv, dur, exitCode)
	return exitCode
}

func safePre(ctx context.Context, hooks Hooks, inv gitargv.Invocation) (pre PreState, err error) {
	if hooks.Pre == nil {
		return PreState{}, nil
	}
	defer func() {
		if r := recover(); r != nil {
			pre, err = PreState{}, fmt.Errorf("pre-hook panicked: %v", r)
		}
	}()
	return hooks.Pre(ctx, inv)
}

// maybeEmitPerf writes the GIT_AI_DEBUG_PERFORMANCE=2 JSON record when
// requested.
func maybeEmitPerf(inv gitargv.Invocation, dur time.Duration, exitCode int) {
	if os.Getenv(PerfEnvVar) != "2" {
		return
	}
	fmt.Fprintf(os.Stderr, "%s {\"command\":%q,\"duration_ms\":%d,\"exit_code\":%d}\n",
		logging.PerfPrefix, inv.Command, dur.Milliseconds(), exitCode)
}
