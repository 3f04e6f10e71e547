package authorship

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/git-ai-tool/git-ai/internal/giterrors"
	"github.com/git-ai-tool/git-ai/internal/lineset"
)

const divider = "---"

// Serialize renders log in the on-disk text+JSON format: one block per
// file (path, then two-space-indented "<hash> <ranges>" entries), a
// "---" divider, then the metadata as pretty JSON. Attestations are
// sorted by file path and entries within a file by short hash so that
// identical logs always serialize to identical bytes.
func Serialize(log Log) ([]byte, error) {
	var buf bytes.Buffer

	files := make([]FileAttestation, len(log.Attestations))
	copy(files, log.Attestations)
	sort.Slice(files, func(i, j int) bool { return files[i].FilePath < files[j].FilePath })

	for _, fa := range files {
		quoted, err := quotePath(fa.FilePath)
		if err != nil {
			return nil, err
		}
		buf.WriteString(quoted)
		buf.WriteByte('\n')

		entries := make([]AttestationEntry, len(fa.Entries))
		copy(entries, fa.Entries)
		sort.Slice(entries, func(i, j int) bool { return entries[i].Hash < entries[j].Hash })

		for _, e := range entries {
			fmt.Fprintf(&buf, "  %s %s\n", e.Hash, lineset.Set(e.Ranges).String())
		}
	}

	buf.WriteString(divider)
	buf.WriteByte('\n')

	metaJSON, err := marshalMetadata(log.Metadata)
	if err != nil {
		return nil, err
	}
	buf.Write(metaJSON)
	buf.WriteByte('\n')

	return buf.Bytes(), nil
}

// marshalMetadata produces deterministic pretty JSON: Go's encoding/json
// already sorts map keys during marshal, which satisfies the "prompts is
// a sorted map" rule without extra bookkeeping.
func marshalMetadata(m Metadata) ([]byte, error) {
	if m.Prompts == nil {
		m.Prompts = map[string]PromptSession{}
	}
	return json.MarshalIndent(m, "", "  ")
}

// quotePath double-quotes paths containing whitespace; a path containing
// a double quote is rejected outright.
func quotePath(path string) (string, error) {
	if strings.ContainsRune(path, '"') {
		return "", fmt.Errorf("%w: %q contains a double quote", giterrors.ErrInvalidPath, path)
	}
	if strings.ContainsAny(path, " \t") {
		return `"` + path + `"`, nil
	}
	return path, nil
}

func unquotePath(token string) (string, error) {
	if len(token) >= 2 && token[0] == '"' && token[len(token)-1] == '"' {
		return token[1 : len(token)-1], nil
	}
	if strings.ContainsRune(token, '"') {
		return "", fmt.Errorf("%w: %q is not a well-formed quoted path", giterrors.ErrInvalidPath, token)
	}
	return token, nil
}

// Deserialize parses the on-disk text+JSON format produced by Serialize.
func Deserialize(data []byte) (Log, error) {
	text := string(data)
	idx := strings.Index(text, "\n"+divider+"\n")
	var dividerLen int
	if idx < 0 {
		if strings.HasPrefix(text, divider+"\n") {
			idx = 0
			dividerLen = len(divider) + 1
		} else {
			return Log{}, fmt.Errorf("%w: missing %q divider", giterrors.ErrMalformedLog, divider)
		}
	} else {
		dividerLen = len("\n" + divider + "\n")
	}

	body := text[:idx]
	jsonPart := text[idx+dividerLen:]

	attestations, err := parseBody(body)
	if err != nil {
		return Log{}, err
	}

	var meta Metadata
	if err := json.Unmarshal([]byte(strings.TrimSpace(jsonPart)), &meta); err != nil {
		return Log{}, fmt.Errorf("%w: metadata JSON: %v", giterrors.ErrMalformedLog, err)
	}
	if meta.SchemaVersion == "" {
		return Log{}, fmt.Errorf("%w: missing schema_version", giterrors.ErrMalformedLog)
	}
	if err := CheckSchemaVersion(meta.SchemaVersion); err != nil {
		return Log{}, err
	}
	if meta.Prompts == nil {
		meta.Prompts = map[string]PromptSession{}
	}

	return Log{Attestations: attestations, Metadata: meta}, nil
}

func parseBody(body string) ([]FileAttestation, error) {
	var out []FileAttestation
	var cur *FileAttestation

	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "  ") {
			if cur == nil {
				return nil, fmt.Errorf("%w: entry line before any file path", giterrors.ErrMalformedLog)
			}
			entry, err := parseEntryLine(strings.TrimPrefix(line, "  "))
			if err != nil {
				return nil, err
			}
			cur.Entries = append(cur.Entries, entry)
			continue
		}

		if cur != nil {
			out = append(out, *cur)
		}
		path, err := unquotePath(line)
		if err != nil {
			return nil, err
		}
		cur = &FileAttestation{FilePath: path}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", giterrors.ErrMalformedLog, err)
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out, nil
}

func parseEntryLine(line string) (AttestationEntry, error) {
	parts := strings.SplitN(line, " ", 2)
	if len(parts) != 2 {
		return AttestationEntry{}, fmt.Errorf("%w: entry %q missing ranges", giterrors.ErrMalformedLog, line)
	}
	ranges, err := lineset.Parse(parts[1])
	if err != nil {
		return AttestationEntry{}, fmt.Errorf("%w: %v", giterrors.ErrMalformedLog, err)
	}
	return AttestationEntry{Hash: parts[0], Ranges: ranges}, nil
}

// schemaFamilyPrefix is stripped from a "authorship/X.Y.Z" string before
// handing the remainder to golang.org/x/mod/semver, which requires the
// leading "v" semver itself uses.
const schemaFamilyPrefix = "authorship/"

// CheckSchemaVersion rejects any schema version outside the currently
// supported major family ("authorship/3.x.y"). Versions are checked with
// semver.IsValid/semver.Major rather than a bare string prefix so that a
// well-formed but newer minor/patch release ("authorship/3.12.0") is
// accepted while a major bump ("authorship/4.0.0") is rejected as unknown.
func CheckSchemaVersion(version string) error {
	if !strings.HasPrefix(version, schemaFamilyPrefix) {
		return fmt.Errorf("%w: %q", giterrors.ErrUnknownSchema, version)
	}
	v := "v" + strings.TrimPrefix(version, schemaFamilyPrefix)
	if !semver.IsValid(v) {
		return fmt.Errorf("%w: %q", giterrors.ErrUnknownSchema, version)
	}
	supported := "v" + strings.TrimPrefix(SchemaVersion, schemaFamilyPrefix)
	if semver.Major(v) != semver.Major(supported) {
		return fmt.Errorf("%w: %q", giterrors.ErrUnknownSchema, version)
	}
	return nil
}
