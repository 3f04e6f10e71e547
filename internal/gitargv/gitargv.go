// Package gitargv parses the argv git-ai receives after the `git` token
// (e.g. `-C .. commit -m foo`), separating recognized global options from
// the subcommand and its arguments. It is kept independent of the exec
// wrapper (internal/gitintercept) so the grammar is its own testable
// unit, mirroring the original implementation's standalone cli_parser
// module (src/git/cli_parser.rs).
package gitargv

import "strings"

// metaNoValue options are only meaningful before a subcommand; git
// rewrites them to `help`/`version` invocations (handled by rewrite).
var metaNoValue = map[string]bool{
	"-v": true, "--version": true,
	"-h": true, "--help": true,
	"--html-path": true, "--man-path": true, "--info-path": true,
}

// globalNoValue options carry no argument.
var globalNoValue = map[string]bool{
	"-p": true, "--paginate": true,
	"-P": true, "--no-pager": true,
	"--no-replace-objects": true,
	"--no-lazy-fetch":      true,
	"--no-optional-locks":  true,
	"--no-advice":          true,
	"--bare":               true,
	"--literal-pathspecs":  true,
	"--glob-pathspecs":     true,
	"--noglob-pathspecs":   true,
	"--icase-pathspecs":    true,
}

// globalValueKeys are the canonical (non-sticky) spellings of value-taking
// global options, in the order §6.1 lists them.
var globalValueKeys = []string{
	"-C", "-c", "--git-dir", "--work-tree", "--namespace",
	"--config-env", "--list-cmds", "--attr-source", "--super-prefix",
	"--exec-path",
}

// Invocation is the result of parsing the tokens that follow `git`.
type Invocation struct {
	// GlobalArgs are recognized global options and their values, in
	// original order.
	GlobalArgs []string
	// Command is the classified subcommand, or "" if none was found
	// (e.g. bare `git --version`).
	Command string
	// CommandArgs are every token after Command.
	CommandArgs []string
	// SawEndOfOpts records whether a top-level `--` preceded Command.
	SawEndOfOpts bool
}

// ToArgv reconstructs the full argv (global args, command, command args)
// in the order git itself would see them.
func (inv Invocation) ToArgv() []string {
	out := make([]string, 0, len(inv.GlobalArgs)+len(inv.CommandArgs)+2)
	out = append(out, inv.GlobalArgs...)
	if inv.SawEndOfOpts {
		out = append(out, "--")
	}
	if inv.Command != "" {
		out = append(out, inv.Command)
	}
	out = append(out, inv.CommandArgs...)
	return out
}

// HasCommandFlag reports whether flag appears verbatim among CommandArgs.
func (inv Invocation) HasCommandFlag(flag string) bool {
	for _, a := range inv.CommandArgs {
		if a == flag {
			return true
		}
	}
	return false
}

// Pathspecs returns every CommandArgs token after a literal `--`
// separator, i.e. the pathspecs git treats literally.
func (inv Invocation) Pathspecs() []string {
	for i, a := range inv.CommandArgs {
		if a == "--" {
			return inv.CommandArgs[i+1:]
		}
	}
	return nil
}

// PosArg returns the n-th (0-indexed) positional argument among
// CommandArgs, skipping flags and the values of flags known to take one.
func (inv Invocation) PosArg(n int) (string, bool) {
	count := 0
	skipNext := false
	for _, a := range inv.CommandArgs {
		if skipNext {
			skipNext = false
			continue
		}
		if strings.HasPrefix(a, "-") {
			if strings.Contains(a, "=") {
				continue
			}
			if isFlagWithValue(a) {
				skipNext = true
			}
			continue
		}
		if count == n {
			return a, true
		}
		count++
	}
	return "", false
}

// isFlagWithValue is a heuristic list of common flags that consume the
// following token as their value, used only by PosArg to skip over them.
func isFlagWithValue(flag string) bool {
	switch flag {
	case "-m", "--message", "-F", "--file", "-t", "--template", "-e", "--edit",
		"--author", "--date", "-s", "--strategy", "-X", "--strategy-option",
		"--since", "--until", "--before", "--after", "--format", "--pretty",
		"-n", "--max-count", "--skip", "-b", "-B", "-u", "--set-upstream",
		"--config", "--depth", "--shallow-since":
		return true
	default:
		return false
	}
}

type kind int

const (
	kindGlobalNoValue kind = iota
	kindGlobalTakesValue
	kindMetaNoValue
	kindUnknown
)

func isEqForm(tok, long string) bool {
	return len(tok) > len(long)+1 && strings.HasPrefix(tok, long) && tok[len(long)] == '='
}

func classify(tok string) kind {
	if metaNoValue[tok] {
		return kindMetaNoValue
	}
	if tok == "--exec-path" || isEqForm(tok, "--exec-path") {
		return kindGlobalTakesValue
	}
	if globalNoValue[tok] {
		return kindGlobalNoValue
	}
	if tok == "-C" || strings.HasPrefix(tok, "-C") {
		return kindGlobalTakesValue
	}
	if tok == "-c" || strings.HasPrefix(tok, "-c") {
		return kindGlobalTakesValue
	}
	for _, key := range []string{"--git-dir", "--work-tree", "--namespace", "--config-env", "--list-cmds", "--attr-source", "--super-prefix"} {
		if tok == key || isEqForm(tok, key) {
			return kindGlobalTakesValue
		}
	}
	if tok == "--" {
		return kindUnknown
	}
	if strings.HasPrefix(tok, "-") {
		return kindUnknown
	}
	return kindUnknown
}

// stickyKey returns which global-value option tok belongs to, for sticky
// short forms (-Cpath, -cname=value) and --long/--long= forms.
func stickyKey(tok string) string {
	for _, key := range globalValueKeys {
		if strings.HasPrefix(tok, key) {
			return key
		}
	}
	return ""
}

// takeValueish consumes one global option token that may carry its value
// attached (`--opt=VAL`, `-Cpath`, `-cname=value`) or as the next token.
func takeValueish(all []string, i int, key string) (taken []string, consumed int) {
	tok := all[i]

	if eq := strings.IndexByte(tok, '='); eq > 0 && strings.HasPrefix(tok, "--") {
		return []string{tok}, 1
	}
	if key == "-C" && tok != "-C" && strings.HasPrefix(tok, "-C") {
		return []string{tok}, 1
	}
	if key == "-c" && tok != "-c" && strings.HasPrefix(tok, "-c") {
		return []string{tok}, 1
	}
	if i+1 < len(all) {
		return []string{tok, all[i+1]}, 2
	}
	return []string{tok}, 1
}

// Parse parses args (the tokens following `git`) into an Invocation,
// following the grammar of spec §6.1: global options are peeled off the
// front, `--` forces the next token to be the command even if it starts
// with '-', and bare meta options (`--version`, `--help`) with no command
// are preserved as CommandArgs for rewrite to act on.
func Parse(args []string) Invocation {
	var globalArgs []string
	var preCommandMeta []string
	var command string
	haveCommand := false
	sawEndOfOpts := false

	i := 0
	for i < len(args) {
		tok := args[i]

		if tok == "--" {
			sawEndOfOpts = true
			i++
			break
		}

		switch classify(tok) {
		case kindGlobalNoValue:
			globalArgs = append(globalArgs, tok)
			i++
		case kindGlobalTakesValue:
			key := stickyKey(tok)
			taken, consumed := takeValueish(args, i, key)
			globalArgs = append(globalArgs, taken...)
			i += consumed
		case kindMetaNoValue:
			preCommandMeta = append(preCommandMeta, tok)
			i++
		case kindUnknown:
			if strings.HasPrefix(tok, "-") {
				haveCommand = false
			}
			goto doneGlobals
		}
	}
doneGlobals:

	if !haveCommand {
		if i < len(args) {
			if sawEndOfOpts || !strings.HasPrefix(args[i], "-") {
				command = args[i]
				haveCommand = true
				i++
			}
		}
	}

	var commandArgs []string
	if haveCommand {
		commandArgs = append(commandArgs, args[i:]...)
	} else {
		commandArgs = append(commandArgs, preCommandMeta...)
		commandArgs = append(commandArgs, args[i:]...)
	}

	inv := Invocation{
		GlobalArgs:   globalArgs,
		Command:      command,
		CommandArgs:  commandArgs,
		SawEndOfOpts: sawEndOfOpts,
	}
	return rewrite(inv, preCommandMeta)
}

// rewrite applies git(1)'s help/version precedence rules (§6.1): --help
// before the subcommand rewrites to `help <cmd>`; --version with no
// --help rewrites to `version`; --help always wins over --version.
func rewrite(inv Invocation, preCommandMeta []string) Invocation {
	hasHelp := containsAny(preCommandMeta, "--help", "-h")
	hasVersion := containsAny(preCommandMeta, "--version", "-v")

	if inv.Command != "" {
		switch {
		case hasHelp:
			newArgs := append([]string{inv.Command}, inv.CommandArgs...)
			inv.Command = "help"
			inv.CommandArgs = newArgs
		case hasVersion:
			inv.Command = "version"
			inv.CommandArgs = dropFirst(preCommandMeta, "--version", "-v")
		}
		return inv
	}

	// With no command, Parse has already placed preCommandMeta at the
	// front of CommandArgs; only the triggering option is removed.
	switch {
	case hasHelp:
		inv.Command = "help"
		inv.CommandArgs = dropFirst(inv.CommandArgs, "--help", "-h")
	case hasVersion:
		inv.Command = "version"
		inv.CommandArgs = dropFirst(inv.CommandArgs, "--version", "-v")
	}
	return inv
}

func containsAny(toks []string, candidates ...string) bool {
	for _, t := range toks {
		for _, c := range candidates {
			if t == c {
				return true
			}
		}
	}
	return false
}

// dropFirst removes the first occurrence of any of targets from toks,
// preserving order of everything else.
func dropFirst(toks []string, targets ...string) []string {
	out := make([]string, 0, len(toks))
	dropped := false
	for _, t := range toks {
		if !dropped {
			for _, target := range targets {
				if t == target {
					dropped = true
					goto skip
				}
			}
		}
		out = append(out, t)
	skip:
	}
	return out
}

// IsHelp reports whether the parsed invocation is a help request, either
// via the rewritten `help` command or the bare `-h`/`--help` meta form.
func (inv Invocation) IsHelp() bool {
	return inv.Command == "help"
}
