// Package config loads git-ai's ambient settings: a .git-ai/settings.json
// checked into the repository plus a .git-ai/settings.local.json overlay
// that is not, layered so that only explicitly-present keys in the local
// file override the base file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SettingsFile and SettingsLocalFile are relative to the repository root.
const (
	SettingsFile      = ".git-ai/settings.json"
	SettingsLocalFile = ".git-ai/settings.local.json"
)

// TestConfigPatchEnvVar (spec §6.5) lets tests override merged settings for
// the process lifetime without touching the repository's settings files.
// The value is either a path to a JSON file or an inline JSON object,
// applied with the same present-keys-only merge as SettingsLocalFile.
const TestConfigPatchEnvVar = "GIT_AI_TEST_CONFIG_PATCH"

// DefaultHistoryRewriteCommands are the git subcommands the interceptor
// treats as potentially history-rewriting by default. Settings may add to
// this list for exotic aliases (spec §4.6's "escape hatch").
var DefaultHistoryRewriteCommands = []string{
	"rebase", "cherry-pick", "commit", "stash", "reset", "am", "revert",
}

// Settings is the parsed contents of .git-ai/settings.json merged with
// .git-ai/settings.local.json.
type Settings struct {
	// DefaultAuthor is used as the checkpoint author when no --author flag
	// is given.
	DefaultAuthor string `json:"default_author,omitempty"`

	// LogLevel mirrors GIT_AI_LOG_LEVEL when the env var is unset.
	LogLevel string `json:"log_level,omitempty"`

	// PromptCacheSizeBytes bounds the local CAS cache for prompt-store
	// transcripts (§4.9 fallback chain, tier 1).
	PromptCacheSizeBytes int64 `json:"prompt_cache_size_bytes,omitempty"`

	// NetworkTimeoutSeconds bounds prompt-store remote fetches (§5).
	NetworkTimeoutSeconds int `json:"network_timeout_seconds,omitempty"`

	// HistoryRewriteCommands extends DefaultHistoryRewriteCommands.
	HistoryRewriteCommands []string `json:"history_rewrite_commands,omitempty"`

	// MarkUnknownBlame mirrors blame's --mark-unknown default.
	MarkUnknownBlame bool `json:"mark_unknown_blame,omitempty"`
}

func defaults() *Settings {
	return &Settings{
		DefaultAuthor:         "human",
		LogLevel:              "info",
		PromptCacheSizeBytes:  64 * 1024 * 1024,
		NetworkTimeoutSeconds: 30,
	}
}

// Load reads SettingsFile under repoRoot, then applies SettingsLocalFile
// overrides if present. Missing files yield defaults, never an error.
func Load(repoRoot string) (*Settings, error) {
	base, err := loadFromFile(filepath.Join(repoRoot, SettingsFile))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", SettingsFile, err)
	}

	localPath := filepath.Join(repoRoot, SettingsLocalFile)
	localData, err := os.ReadFile(localPath) //nolint:gosec // path built from caller-controlled repoRoot
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading %s: %w", SettingsLocalFile, err)
		}
	} else if err := mergeJSON(base, localData); err != nil {
		return nil, fmt.Errorf("merging %s: %w", SettingsLocalFile, err)
	}

	if err := applyTestConfigPatch(base); err != nil {
		return nil, err
	}
	return base, nil
}

// applyTestConfigPatch reads TestConfigPatchEnvVar, if set, and merges it
// over s. The value is treated as inline JSON when it starts with '{' after
// trimming whitespace, otherwise as a path to a JSON file.
func applyTestConfigPatch(s *Settings) error {
	v := os.Getenv(TestConfigPatchEnvVar)
	if v == "" {
		return nil
	}

	data := []byte(v)
	if !strings.HasPrefix(strings.TrimSpace(v), "{") {
		read, err := os.ReadFile(v) //nolint:gosec // test-only hook, path comes from env var under test control
		if err != nil {
			return fmt.Errorf("reading %s: %w", TestConfigPatchEnvVar, err)
		}
		data = read
	}
	if err := mergeJSON(s, data); err != nil {
		return fmt.Errorf("applying %s: %w", TestConfigPatchEnvVar, err)
	}
	return nil
}

func loadFromFile(path string) (*Settings, error) {
	s := defaults()
	data, err := os.ReadFile(path) //nolint:gosec // path built from caller-controlled repoRoot
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}

// mergeJSON overlays only the keys present in data onto s, so an empty or
// zero-valued local setting never clobbers a base value the user set.
func mergeJSON(s *Settings, data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing JSON: %w", err)
	}

	if v, ok := raw["default_author"]; ok {
		if err := json.Unmarshal(v, &s.DefaultAuthor); err != nil {
			return err
		}
	}
	if v, ok := raw["log_level"]; ok {
		if err := json.Unmarshal(v, &s.LogLevel); err != nil {
			return err
		}
	}
	if v, ok := raw["prompt_cache_size_bytes"]; ok {
		if err := json.Unmarshal(v, &s.PromptCacheSizeBytes); err != nil {
			return err
		}
	}
	if v, ok := raw["network_timeout_seconds"]; ok {
		if err := json.Unmarshal(v, &s.NetworkTimeoutSeconds); err != nil {
			return err
		}
	}
	if v, ok := raw["history_rewrite_commands"]; ok {
		var extra []string
		if err := json.Unmarshal(v, &extra); err != nil {
			return err
		}
		s.HistoryRewriteCommands = append(s.HistoryRewriteCommands, extra...)
	}
	if v, ok := raw["mark_unknown_blame"]; ok {
		if err := json.Unmarshal(v, &s.MarkUnknownBlame); err != nil {
			return err
		}
	}
	return nil
}

// Save writes s to SettingsFile under repoRoot as indented JSON, creating
// the .git-ai directory if needed.
func Save(repoRoot string, s *Settings) error {
	path := filepath.Join(repoRoot, SettingsFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil { //nolint:gosec // project-local, non-secret settings file
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// IsHistoryRewriteCommand reports whether name (the parsed git
// subcommand) is treated as history-rewriting: the post-hook holds the
// reconcile lock and prunes orphaned working logs around it. Which
// handler runs is still chosen by the classified operation alone.
func (s *Settings) IsHistoryRewriteCommand(name string) bool {
	for _, c := range DefaultHistoryRewriteCommands {
		if c == name {
			return true
		}
	}
	for _, c := range s.HistoryRewriteCommands {
		if c == name {
			return true
		}
	}
	return false
}
