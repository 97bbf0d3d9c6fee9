// Package ignore filters document paths against gitignore-style
// patterns. Patterns come from the built-in defaults, the docs.ignore
// config list, and an optional .brainmcpignore file in the docs root.
// Syntax follows https://git-scm.com/docs/gitignore: `*` and `?` stop at
// path separators, `**` crosses them, a trailing `/` restricts the rule
// to directories, and a leading `!` re-includes a previously ignored
// path.
package ignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// IgnoreFileName is the optional per-corpus ignore file.
const IgnoreFileName = ".brainmcpignore"

// Matcher holds compiled ignore patterns and provides thread-safe matching.
type Matcher struct {
	rules []rule
	mu    sync.RWMutex
}

// rule is a single compiled pattern.
type rule struct {
	pattern  string
	regex    *regexp.Regexp
	negation bool // starts with !
	dirOnly  bool // ends with /
	anchored bool // contains / or starts with /
}

// New creates an empty Matcher.
func New() *Matcher {
	return &Matcher{rules: make([]rule, 0)}
}

// NewWithPatterns creates a Matcher pre-loaded with the given patterns.
func NewWithPatterns(patterns []string) *Matcher {
	m := New()
	for _, p := range patterns {
		m.AddPattern(p)
	}
	return m
}

// AddPattern adds one ignore pattern. Empty lines and comments are
// silently skipped so file contents can be fed line by line.
func (m *Matcher) AddPattern(pattern string) {
	pattern = strings.TrimSpace(pattern)

	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return
	}

	r := rule{pattern: pattern}

	if strings.HasPrefix(pattern, "!") {
		r.negation = true
		pattern = strings.TrimPrefix(pattern, "!")
	}

	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}

	if strings.HasPrefix(pattern, "/") {
		r.anchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	}

	// A pattern with an internal / applies from the root: "notes/drafts"
	// means "/notes/drafts", not "**/notes/drafts".
	if strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") && !strings.HasPrefix(pattern, "*") {
		r.anchored = true
	}

	r.regex = regexp.MustCompile("^" + patternToRegex(pattern) + "$")

	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
}

// AddFromFile reads patterns from an ignore file, one per line.
func (m *Matcher) AddFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m.AddPattern(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read ignore file: %w", err)
	}

	return nil
}

// Match reports whether a docs-root-relative path should be ignored.
// Later rules win, so a negation can re-include an earlier match.
func (m *Matcher) Match(path string, isDir bool) bool {
	path = filepath.ToSlash(path)

	m.mu.RLock()
	defer m.mu.RUnlock()

	ignored := false
	for _, r := range m.rules {
		if matchRule(path, isDir, r) {
			ignored = !r.negation
		}
	}
	return ignored
}

// matchRule checks one rule. Directory-only patterns also match files
// inside that directory: for "drafts/", "drafts/a.md" matches.
func matchRule(path string, isDir bool, r rule) bool {
	parts := strings.Split(path, "/")
	basename := parts[len(parts)-1]

	if r.anchored {
		if r.regex.MatchString(path) {
			if r.dirOnly {
				return isDir
			}
			return true
		}
		// Files inside an anchored ignored directory.
		if r.dirOnly {
			for i := range parts[:len(parts)-1] {
				if r.regex.MatchString(strings.Join(parts[:i+1], "/")) {
					return true
				}
			}
		}
		return false
	}

	if r.dirOnly {
		for i, part := range parts {
			if r.regex.MatchString(part) {
				if i == len(parts)-1 {
					return isDir
				}
				return true
			}
		}
		return false
	}

	if r.regex.MatchString(basename) {
		return true
	}
	if r.regex.MatchString(path) {
		return true
	}
	for _, part := range parts {
		if r.regex.MatchString(part) {
			return true
		}
	}
	return false
}

// patternToRegex converts an ignore pattern to a regex string.
func patternToRegex(pattern string) string {
	var result strings.Builder

	i := 0
	for i < len(pattern) {
		c := pattern[i]

		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				if i+2 < len(pattern) && pattern[i+2] == '/' {
					// **/ matches any number of directories.
					result.WriteString("(?:.*/)?")
					i += 3
					continue
				} else if i == 0 || pattern[i-1] == '/' {
					// Trailing or slash-delimited ** matches anything.
					result.WriteString(".*")
					i += 2
					continue
				}
			}
			// Single * stops at path separators.
			result.WriteString("[^/]*")
			i++

		case '?':
			result.WriteString("[^/]")
			i++

		case '[':
			j := i + 1
			for j < len(pattern) && pattern[j] != ']' {
				j++
			}
			if j < len(pattern) {
				result.WriteString(pattern[i : j+1])
				i = j + 1
			} else {
				result.WriteString(regexp.QuoteMeta(string(c)))
				i++
			}

		case '\\':
			if i+1 < len(pattern) {
				result.WriteString(regexp.QuoteMeta(string(pattern[i+1])))
				i += 2
			} else {
				result.WriteString(regexp.QuoteMeta(string(c)))
				i++
			}

		case '.', '+', '^', '$', '(', ')', '{', '}', '|':
			result.WriteString(regexp.QuoteMeta(string(c)))
			i++

		default:
			result.WriteByte(c)
			i++
		}
	}

	return result.String()
}
