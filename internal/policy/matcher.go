// Package policy implements the allow/block path-matching rules used to
// decide whether a path participates in indexing, watching, or search.
// It is a standalone value type constructed with explicit pattern
// lists — no process-wide config singleton is read from inside it.
package policy

import (
	"path/filepath"
	"strings"
)

// Matcher evaluates a path against an ordered allow-list and block-list.
// Within each list the first matching pattern wins; an empty allow-list
// means "allow everything" and an empty block-list means "block nothing".
// A path is admitted iff it is allowed and not blocked.
type Matcher struct {
	allow []string
	block []string
}

// New builds a Matcher over the given allow and block pattern lists.
func New(allow, block []string) *Matcher {
	return &Matcher{allow: allow, block: block}
}

// Admitted reports whether path is allowed and not blocked.
func (m *Matcher) Admitted(path string) bool {
	return m.Allowed(path) && !m.Blocked(path)
}

// Allowed reports whether path matches the allow-list. An empty allow-list
// allows everything.
func (m *Matcher) Allowed(path string) bool {
	if len(m.allow) == 0 {
		return true
	}
	return matchAny(path, m.allow)
}

// Blocked reports whether path matches the block-list. An empty block-list
// blocks nothing. Patterns are tried against the full path and against
// the basename too, so a pattern like "*.tmp" blocks a matching file
// regardless of its directory.
func (m *Matcher) Blocked(path string) bool {
	if len(m.block) == 0 {
		return false
	}
	if matchAny(path, m.block) {
		return true
	}
	return matchAny(filepath.Base(path), m.block)
}

func matchAny(path string, patterns []string) bool {
	for _, p := range patterns {
		if matchOne(path, p) {
			return true
		}
	}
	return false
}

// matchOne applies ordered rules to a single pattern. Rule 1 (plain
// absolute path, no wildcards) gets directory-prefix semantics; rules
// 2-4 (``**/X/**``, ``**/X``, plain shell-glob) all reduce to one
// doublestar glob match over path components, since treating ``**`` as
// "zero or more path components" already gives rule 2 and rule 3 their
// behavior as special cases of the general glob.
func matchOne(path, pattern string) bool {
	if isPlainAbsolutePath(pattern) {
		return withinDir(path, pattern)
	}
	return globMatch(path, pattern)
}

func isPlainAbsolutePath(pattern string) bool {
	return filepath.IsAbs(pattern) && !strings.ContainsAny(pattern, "*?[")
}

// withinDir reports whether path is dir itself or is nested under it,
// compared component-wise (not a raw string prefix, so "/foo/bar" never
// matches a "/foo/barbaz" pattern).
func withinDir(path, dir string) bool {
	pc := splitClean(path)
	dc := splitClean(dir)
	if len(dc) > len(pc) {
		return false
	}
	for i, d := range dc {
		if pc[i] != d {
			return false
		}
	}
	return true
}

func splitClean(p string) []string {
	p = filepath.ToSlash(filepath.Clean(p))
	p = strings.TrimPrefix(p, "/")
	if p == "" || p == "." {
		return nil
	}
	return strings.Split(p, "/")
}

// globMatch matches path against pattern component-by-component, treating
// a "**" pattern segment as "zero or more path components" (filepath.Match
// has no doublestar support; this is the minimal addition on top of it).
func globMatch(path, pattern string) bool {
	return globSegments(splitClean(path), splitClean(pattern))
}

func globSegments(pathParts, patternParts []string) bool {
	if len(patternParts) == 0 {
		return len(pathParts) == 0
	}
	head := patternParts[0]
	if head == "**" {
		if globSegments(pathParts, patternParts[1:]) {
			return true
		}
		if len(pathParts) == 0 {
			return false
		}
		return globSegments(pathParts[1:], patternParts)
	}
	if len(pathParts) == 0 {
		return false
	}
	if ok, err := filepath.Match(head, pathParts[0]); err != nil || !ok {
		return false
	}
	return globSegments(pathParts[1:], patternParts[1:])
}
