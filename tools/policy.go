// Command Policy - read-only allowlist for agent-issued shell commands.
//
// Information Hiding:
// - Forbidden pattern tables hidden
// - Quote-aware pipe splitting and tokenization hidden
// - Path canonicalization and symlink resolution hidden
// - Per-command hardening rules hidden

package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mattn/go-shellwords"
)

// DefaultMaxCommandLength is the longest command the policy will consider.
const DefaultMaxCommandLength = 500

// DefaultAllowedCommands are the read-only utilities a command may start with.
var DefaultAllowedCommands = []string{
	"ls", "cat", "head", "tail", "grep", "rg", "find", "wc", "sort", "uniq",
	"awk", "cut", "tr", "file", "stat", "du", "tree", "pwd", "less", "more",
}

// Verdict is the allow/deny decision for one candidate command.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

func allow() Verdict {
	return Verdict{Allowed: true, Reason: "command validated"}
}

func deny(format string, args ...interface{}) Verdict {
	return Verdict{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

type forbiddenRule struct {
	category string
	token    string
	re       *regexp.Regexp
}

func literal(category, token string) forbiddenRule {
	return forbiddenRule{category: category, token: token, re: regexp.MustCompile(regexp.QuoteMeta(token))}
}

func verbs(category string, names ...string) []forbiddenRule {
	rules := make([]forbiddenRule, 0, len(names))
	for _, name := range names {
		rules = append(rules, forbiddenRule{
			category: category,
			token:    name,
			re:       regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`),
		})
	}
	return rules
}

// forbiddenRules is scanned against the raw command, in order.
// Metacharacters come first so chaining is reported as chaining.
var forbiddenRules = func() []forbiddenRule {
	rules := []forbiddenRule{
		literal("command chaining", "&&"),
		literal("command chaining", ";"),
		literal("background execution", "&"),
		literal("command substitution", "`"),
		literal("command substitution", "$("),
		literal("variable expansion", "${"),
		literal("line break", "\n"),
		literal("line break", "\r"),
		literal("output redirection", ">"),
		literal("input redirection", "<"),
	}
	rules = append(rules, verbs("file mutation verb", "rm", "mv", "cp", "touch", "mkdir", "rmdir")...)
	rules = append(rules, verbs("permission change", "chmod", "chown", "chgrp")...)
	rules = append(rules, verbs("system command", "dd", "mkfs", "fdisk", "mount", "umount", "sudo")...)
	rules = append(rules, verbs("process control", "kill", "pkill", "killall")...)
	rules = append(rules, verbs("network access", "wget", "curl", "scp", "rsync")...)
	rules = append(rules, verbs("package manager", "apt", "apt-get", "yum", "dnf", "pip", "npm")...)
	rules = append(rules, verbs("interactive editor", "vi", "vim", "nano", "emacs", "ed")...)
	return rules
}()

var (
	findDenied = map[string]bool{
		"-exec": true, "-execdir": true, "-ok": true, "-okdir": true, "-delete": true,
		"-fprint": true, "-fprint0": true, "-fprintf": true, "-fls": true,
		"-L": true, "-H": true, "-follow": true, "-files0-from": true,
	}
	awkSystemCall = regexp.MustCompile(`system\s*\(`)
)

// CommandPolicy decides which commands may run inside the workspace root.
// It holds only static rule tables and is safe for concurrent use.
type CommandPolicy struct {
	root      string
	maxLength int
	allowed   map[string]bool
}

// NewCommandPolicy creates a policy confined to root.
// The root is made absolute and symlink-resolved once here.
func NewCommandPolicy(root string) (*CommandPolicy, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace root cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	p := &CommandPolicy{
		root:      canonicalize(abs),
		maxLength: DefaultMaxCommandLength,
	}
	return p.WithAllowedCommands(DefaultAllowedCommands), nil
}

// WithMaxLength sets the maximum command length. Non-positive values are ignored.
func (p *CommandPolicy) WithMaxLength(n int) *CommandPolicy {
	if n > 0 {
		p.maxLength = n
	}
	return p
}

// WithAllowedCommands replaces the allowlist of leading commands.
func (p *CommandPolicy) WithAllowedCommands(commands []string) *CommandPolicy {
	p.allowed = make(map[string]bool, len(commands))
	for _, c := range commands {
		p.allowed[c] = true
	}
	return p
}

// Root returns the canonical workspace root.
func (p *CommandPolicy) Root() string {
	return p.root
}

// Validate decides whether command may run. It never panics on malformed
// input; every denial carries a human-readable reason.
func (p *CommandPolicy) Validate(command string) Verdict {
	if strings.TrimSpace(command) == "" {
		return deny("empty command")
	}
	if len(command) > p.maxLength {
		return deny("command exceeds maximum length of %d characters", p.maxLength)
	}

	for _, rule := range forbiddenRules {
		if rule.re.MatchString(command) {
			return deny("forbidden %s %q detected", rule.category, rule.token)
		}
	}

	segments, err := ParsePipeline(command)
	if err != nil {
		return deny("parse error: %v", err)
	}
	for _, args := range segments {
		if v := p.validateSegment(args); !v.Allowed {
			return v
		}
	}
	return allow()
}

func (p *CommandPolicy) validateSegment(args []string) Verdict {
	name := args[0]
	if !p.allowed[name] {
		return deny("command %q is not in the allowed list", name)
	}

	for _, arg := range args[1:] {
		if strings.HasPrefix(arg, "-") {
			if candidate, ok := flagValuePath(arg); ok {
				if v := p.checkPath(candidate); !v.Allowed {
					return v
				}
			}
			continue
		}
		if v := p.checkPath(arg); !v.Allowed {
			return v
		}
	}

	return hardening(name, args[1:])
}

// checkPath denies traversal segments and anything resolving outside the root.
func (p *CommandPolicy) checkPath(arg string) Verdict {
	if hasTraversal(arg) {
		return deny("path traversal detected in %q", arg)
	}
	resolved := arg
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(p.root, resolved)
	}
	if !p.within(canonicalize(resolved)) {
		return deny("path %q is outside the workspace", arg)
	}
	return allow()
}

func (p *CommandPolicy) within(path string) bool {
	if p.root == string(filepath.Separator) {
		return true
	}
	return path == p.root || strings.HasPrefix(path, p.root+string(filepath.Separator))
}

func hasTraversal(arg string) bool {
	for _, part := range strings.FieldsFunc(arg, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return true
		}
	}
	return false
}

// flagValuePath extracts a path-like value embedded in a flag,
// as in --file=/etc/passwd or -f/etc/passwd.
func flagValuePath(flag string) (string, bool) {
	if i := strings.Index(flag, "="); i >= 0 {
		value := flag[i+1:]
		return value, strings.ContainsAny(value, "/\\") || hasTraversal(value)
	}
	if i := strings.IndexAny(flag, "/\\"); i >= 0 {
		return flag[i:], true
	}
	return "", false
}

// hardening applies rules specific to individual utilities. Options that
// run other programs, write files, follow symlinks out of the tree, or take
// path names from a data stream are denied.
func hardening(name string, args []string) Verdict {
	switch name {
	case "find":
		for _, arg := range args {
			if findDenied[arg] {
				return deny("find option %q is not allowed", arg)
			}
		}
	case "awk":
		for _, arg := range args {
			if arg == "-f" || strings.HasPrefix(arg, "--file") {
				return deny("awk program files are not allowed")
			}
			switch {
			case awkSystemCall.MatchString(arg):
				return deny("awk system() calls are not allowed")
			case strings.Contains(arg, "getline"):
				return deny("awk getline is not allowed")
			case strings.Contains(arg, "|"):
				return deny("awk pipes are not allowed")
			case strings.Contains(arg, "ARGV"):
				return deny("awk ARGV access is not allowed")
			}
		}
	case "sort":
		for _, arg := range args {
			switch {
			case isLongOption(arg, "--output") || isShortCluster(arg, 'o'):
				return deny("sort output files are not allowed")
			case isLongOption(arg, "--compress-program"):
				return deny("sort compression programs are not allowed")
			case isLongOption(arg, "--temporary-directory") || isShortCluster(arg, 'T'):
				return deny("sort temporary directories are not allowed")
			case isLongOption(arg, "--files0-from"):
				return deny("sort --files0-from is not allowed")
			}
		}
	case "du", "wc":
		for _, arg := range args {
			if isLongOption(arg, "--files0-from") {
				return deny("%s --files0-from is not allowed", name)
			}
			if name == "du" && (isLongOption(arg, "--dereference") || isShortCluster(arg, 'L')) {
				return deny("du symlink dereferencing is not allowed")
			}
		}
	case "grep":
		for _, arg := range args {
			if isLongOption(arg, "--dereference-recursive") || isShortCluster(arg, 'R') {
				return deny("grep symlink-following recursion is not allowed")
			}
		}
	case "ls":
		for _, arg := range args {
			if isLongOption(arg, "--dereference") || isShortCluster(arg, 'L') {
				return deny("ls symlink dereferencing is not allowed")
			}
		}
	case "tree":
		for _, arg := range args {
			switch {
			case isShortCluster(arg, 'o'):
				return deny("tree output files are not allowed")
			case isShortCluster(arg, 'l'):
				return deny("tree symlink following is not allowed")
			}
		}
	case "rg":
		for _, arg := range args {
			switch {
			case strings.HasPrefix(arg, "--pre"):
				return deny("rg preprocessors are not allowed")
			case arg == "--follow" || isShortCluster(arg, 'L'):
				return deny("rg symlink following is not allowed")
			}
		}
	case "file":
		for _, arg := range args {
			switch {
			case arg == "-C" || arg == "--compile":
				return deny("file magic compilation is not allowed")
			case isLongOption(arg, "--files-from") || isShortCluster(arg, 'f'):
				return deny("file name lists are not allowed")
			}
		}
	case "uniq":
		operands := 0
		for _, arg := range args {
			if !strings.HasPrefix(arg, "-") {
				operands++
			}
		}
		if operands > 1 {
			return deny("uniq output files are not allowed")
		}
	}
	return allow()
}

// isLongOption reports whether arg is the long option name, with or without
// an attached value, or one of its abbreviations accepted by getopt_long.
func isLongOption(arg, name string) bool {
	key, _, _ := strings.Cut(arg, "=")
	return len(key) > 2 && strings.HasPrefix(key, "--") && strings.HasPrefix(name, key)
}

// isShortCluster reports whether arg is a single-dash flag group containing c.
func isShortCluster(arg string, c byte) bool {
	if len(arg) < 2 || arg[0] != '-' || arg[1] == '-' {
		return false
	}
	return strings.IndexByte(arg[1:], c) >= 0
}

// ParsePipeline splits command on unquoted pipes and tokenizes each segment
// with POSIX quoting rules. The executor runs exactly these argv lists.
func ParsePipeline(command string) ([][]string, error) {
	raw, err := splitPipes(command)
	if err != nil {
		return nil, err
	}
	segments := make([][]string, 0, len(raw))
	for i, segment := range raw {
		parser := shellwords.NewParser()
		args, err := parser.Parse(segment)
		if err != nil {
			return nil, err
		}
		if parser.Position >= 0 {
			return nil, fmt.Errorf("unsupported shell operator in segment %d", i+1)
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("empty pipeline segment %d", i+1)
		}
		segments = append(segments, args)
	}
	return segments, nil
}

func splitPipes(command string) ([]string, error) {
	var (
		segments               []string
		cur                    strings.Builder
		single, double, escape bool
	)
	for _, r := range command {
		switch {
		case escape:
			escape = false
		case r == '\\' && !single:
			escape = true
		case r == '\'' && !double:
			single = !single
		case r == '"' && !single:
			double = !double
		case r == '|' && !single && !double:
			segments = append(segments, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteRune(r)
	}
	if single || double {
		return nil, errors.New("unterminated quoted string")
	}
	return append(segments, cur.String()), nil
}

// canonicalize resolves symlinks in path. For paths that do not exist it
// resolves the deepest existing ancestor and re-appends the remainder.
func canonicalize(path string) string {
	clean := filepath.Clean(path)
	if resolved, err := filepath.EvalSymlinks(clean); err == nil {
		return resolved
	}
	dir, rest := clean, ""
	for {
		parent := filepath.Dir(dir)
		rest = filepath.Join(filepath.Base(dir), rest)
		if parent == dir {
			return clean
		}
		if _, err := os.Lstat(parent); err == nil {
			if resolved, err := filepath.EvalSymlinks(parent); err == nil {
				return filepath.Join(resolved, rest)
			}
			return clean
		}
		dir = parent
	}
}
