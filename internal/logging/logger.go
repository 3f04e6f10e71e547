// Package logging provides structured logging for the git-ai interceptor
// and CLI using slog. Every git invocation is a short-lived process, so
// the logger is initialized once per process and writes newline-delimited
// JSON to a per-repository log file.
//
//	cleanup := logging.Init(repoGitDir, "git-ai")
//	defer cleanup()
//
//	ctx = logging.WithComponent(ctx, "interceptor")
//	logging.Info(ctx, "dispatching post-hook", slog.String("op", "rebase"))
package logging

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogLevelEnvVar controls verbosity. GIT_AI_DEBUG_PERFORMANCE also bumps
// the interceptor into emitting a performance record (see
// internal/gitintercept).
const LogLevelEnvVar = "GIT_AI_LOG_LEVEL"

// LogsDirName is relative to the repository's .git directory.
const LogsDirName = "git-ai/logs"

var (
	logger         *slog.Logger
	logFile        *os.File
	logBufWriter   *bufio.Writer
	mu             sync.RWMutex
	logLevelGetter func() string
)

// SetLogLevelGetter registers a settings-backed fallback used when
// GIT_AI_LOG_LEVEL is unset. Kept as an indirection so this package never
// imports internal/config (which would be an import cycle).
func SetLogLevelGetter(getter func() string) {
	mu.Lock()
	defer mu.Unlock()
	logLevelGetter = getter
}

// Init opens (creating if necessary) the log file under
// <gitDir>/git-ai/logs/<name>.log and returns a cleanup function that
// flushes and closes it. On any failure it falls back to stderr and
// still returns a usable cleanup function.
func Init(gitDir, name string) func() {
	mu.Lock()
	defer mu.Unlock()

	closeLocked()

	level := resolveLevel()

	logsPath := filepath.Join(gitDir, LogsDirName)
	if err := os.MkdirAll(logsPath, 0o750); err != nil {
		logger = createLogger(os.Stderr, level)
		return Close
	}

	path := filepath.Join(logsPath, name+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // name is caller-controlled, repo-local
	if err != nil {
		logger = createLogger(os.Stderr, level)
		return Close
	}

	logFile = f
	logBufWriter = bufio.NewWriterSize(f, 8192)
	logger = createLogger(logBufWriter, level)
	return Close
}

// Close flushes and closes the active log file, if any. Safe to call
// multiple times and safe to call when Init was never called.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
}

func closeLocked() {
	if logBufWriter != nil {
		_ = logBufWriter.Flush()
		logBufWriter = nil
	}
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

func resolveLevel() slog.Level {
	levelStr := os.Getenv(LogLevelEnvVar)
	if levelStr == "" && logLevelGetter != nil {
		levelStr = logLevelGetter()
	}
	return parseLevel(levelStr)
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func createLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func getLogger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		return slog.Default()
	}
	return logger
}

func Debug(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelDebug, msg, attrs...) }
func Info(ctx context.Context, msg string, attrs ...any)  { log(ctx, slog.LevelInfo, msg, attrs...) }
func Warn(ctx context.Context, msg string, attrs ...any)  { log(ctx, slog.LevelWarn, msg, attrs...) }
func Error(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelError, msg, attrs...) }

// LogDuration logs msg with a duration_ms attribute computed from start.
// Intended for defer:
//
//	defer logging.LogDuration(ctx, slog.LevelDebug, "post-hook completed", time.Now())
func LogDuration(ctx context.Context, level slog.Level, msg string, start time.Time, attrs ...any) {
	all := make([]any, 0, len(attrs)+1)
	all = append(all, slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	all = append(all, attrs...)
	log(ctx, level, msg, all...)
}

func log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	l := getLogger()

	var all []any
	if ctx != nil {
		if v := sessionIDFromContext(ctx); v != "" {
			all = append(all, slog.String("session_id", v))
		}
		if v := componentFromContext(ctx); v != "" {
			all = append(all, slog.String("component", v))
		}
		if v := operationFromContext(ctx); v != "" {
			all = append(all, slog.String("operation", v))
		}
	}
	all = append(all, attrs...)

	l.Log(nil, level, msg, all...) //nolint:staticcheck // context values already flattened into attrs above
}

// PerfPrefix is the stdout/stderr prefix used by GIT_AI_DEBUG_PERFORMANCE=2
// records.
const PerfPrefix = "[git-ai (perf-json)]"

// ErrPrefix is the stderr prefix for user-visible error output.
const ErrPrefix = "[git-ai]"

// Warnf writes a "[git-ai] ..." line to stderr, for user-visible,
// non-fatal degradation: a git operation should never fail just because
// authorship tracking hit a snag.
func Warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, ErrPrefix+" "+format+"\n", args...)
}
