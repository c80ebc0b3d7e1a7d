// Package ignore implements gitignore-style path exclusion rules.
//
// A RuleSet is immutable once parsed and safe for concurrent readers.
// Matching follows the gitignore syntax: later rules override earlier
// ones, `!` re-includes, a leading `/` anchors a pattern to the root and
// a trailing `/` restricts it to directories. Unlike git itself, a
// negated rule can re-include a path whose parent directory is excluded.
package ignore

import (
	"bufio"
	"bytes"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
)

// IgnoreFileName is the rule file loaded from the scan root.
const IgnoreFileName = ".gitignore"

type rule struct {
	pattern  string
	negate   bool
	dirOnly  bool
	anchored bool
}

// RuleSet is an ordered list of parsed ignore rules.
type RuleSet struct {
	rules []rule
}

// Load reads <root>/.gitignore and parses it into a RuleSet. A missing or
// unreadable file is not an error: it is logged and an empty set is
// returned, so archiving proceeds without exclusions.
func Load(root string, logger *zap.Logger) *RuleSet {
	name := filepath.Join(root, IgnoreFileName)
	data, err := os.ReadFile(name)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read ignore file", zap.String("path", name), zap.Error(err))
		}
		return &RuleSet{}
	}

	rs := ParseRules(data)
	logger.Debug("loaded ignore rules", zap.String("path", name), zap.Int("rules", len(rs.rules)))
	return rs
}

// ParseRules parses gitignore-syntax rule content. Blank lines and lines
// starting with '#' are skipped.
func ParseRules(data []byte) *RuleSet {
	rs := &RuleSet{}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if r, ok := parseLine(scanner.Text()); ok {
			rs.rules = append(rs.rules, r)
		}
	}

	return rs
}

func parseLine(line string) (rule, bool) {
	// Trailing spaces are ignored unless escaped with backslash.
	for strings.HasSuffix(line, " ") && !strings.HasSuffix(line, "\\ ") {
		line = line[:len(line)-1]
	}
	line = strings.ReplaceAll(line, "\\ ", " ")

	if line == "" || strings.HasPrefix(line, "#") {
		return rule{}, false
	}

	var r rule

	if strings.HasPrefix(line, "!") {
		r.negate = true
		line = line[1:]
	} else if strings.HasPrefix(line, "\\!") || strings.HasPrefix(line, "\\#") {
		line = line[1:]
	}

	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}

	if strings.HasPrefix(line, "/") {
		r.anchored = true
		line = strings.TrimPrefix(line, "/")
	} else if strings.Contains(line, "/") {
		// A slash anywhere in the pattern anchors it to the root.
		r.anchored = true
	}

	if line == "" {
		return rule{}, false
	}

	r.pattern = line
	return r, true
}

// Len returns the number of rules in the set.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Merge returns a new set with other's rules appended after rs's.
// Later rules keep their override power, so extra patterns supplied by
// a caller take precedence over the ignore file.
func (rs *RuleSet) Merge(other *RuleSet) *RuleSet {
	merged := &RuleSet{rules: make([]rule, 0, len(rs.rules)+len(other.rules))}
	merged.rules = append(merged.rules, rs.rules...)
	merged.rules = append(merged.rules, other.rules...)
	return merged
}

// HasNegations reports whether any rule in the set re-includes paths.
// Callers walking a tree may prune excluded directories only when this
// is false; otherwise a later rule could re-include a nested path.
func (rs *RuleSet) HasNegations() bool {
	for _, r := range rs.rules {
		if r.negate {
			return true
		}
	}
	return false
}

// Match reports whether relPath should be excluded. relPath must be
// slash-separated and relative to the rule-set root; isDir tells whether
// it names a directory. The last rule that matches the path or one of
// its parent directories decides.
func (rs *RuleSet) Match(relPath string, isDir bool) bool {
	relPath = strings.Trim(path.Clean(relPath), "/")
	if relPath == "." || relPath == "" {
		return false
	}

	excluded := false
	for _, r := range rs.rules {
		if r.hits(relPath, isDir) {
			excluded = !r.negate
		}
	}
	return excluded
}

// hits reports whether the rule matches relPath itself or any of its
// parent directories. A rule matching a directory applies to everything
// beneath it.
func (r rule) hits(relPath string, isDir bool) bool {
	if (!r.dirOnly || isDir) && r.matchOne(relPath) {
		return true
	}

	for parent := path.Dir(relPath); parent != "." && parent != "/"; parent = path.Dir(parent) {
		if r.matchOne(parent) {
			return true
		}
	}
	return false
}

func (r rule) matchOne(p string) bool {
	pattern := r.pattern
	if !r.anchored {
		// Unanchored patterns match at any depth, including the root.
		pattern = "**/" + pattern
	}

	ok, err := doublestar.Match(pattern, p)
	if err != nil {
		// Malformed pattern: gitignore treats it as matching nothing.
		return false
	}
	return ok
}
