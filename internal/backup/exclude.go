// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package backup

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultExcludes are applied when no exclusion list is configured
var DefaultExcludes = []string{
	"node_modules",
	".git",
	"*.tmp",
	"*.log",
}

// Excluder decides whether a path inside a source tree is skipped.
//
// Patterns match per path segment:
//   - glob patterns (containing *, ?, [ or {) must match a whole segment
//   - literal patterns match any segment that contains them
//   - patterns containing a separator match a contiguous run of segments
//
// Matching is always relative to the source root, so the root's own name
// never takes part.
type Excluder struct {
	patterns []string
	globs    []string
}

// NewExcluder normalises patterns to forward slashes and drops empty entries
func NewExcluder(patterns []string) *Excluder {
	e := &Excluder{patterns: make([]string, 0, len(patterns))}
	for _, p := range patterns {
		p = strings.Trim(filepath.ToSlash(strings.TrimSpace(p)), "/")
		if p == "" {
			continue
		}
		e.patterns = append(e.patterns, p)
		g := segmentGlob(p)
		// The path itself, or anything below it, at any depth
		e.globs = append(e.globs, "**/"+g, "**/"+g+"/**")
	}
	return e
}

// segmentGlob turns a literal pattern into a containment glob
func segmentGlob(p string) string {
	if isGlob(p) || strings.Contains(p, "/") {
		return p
	}
	return "*" + p + "*"
}

// Patterns returns the normalised pattern list
func (e *Excluder) Patterns() []string {
	return e.patterns
}

// Excluded reports whether rel (relative to the source root) is excluded
func (e *Excluder) Excluded(rel string) bool {
	if e == nil || len(e.globs) == 0 {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, g := range e.globs {
		// Malformed patterns never match
		if ok, err := doublestar.Match(g, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// TarArgs renders the patterns as GNU tar exclusion arguments for an archive
// whose members are named prefix/... Patterns are anchored below prefix so a
// root directory such as "me.github.io" is never matched by ".git".
func (e *Excluder) TarArgs(prefix string) []string {
	if e == nil || len(e.patterns) == 0 {
		return nil
	}
	root := tarQuote(prefix) + "/"
	args := []string{"--anchored", "--wildcards", "--wildcards-match-slash"}
	for _, p := range e.patterns {
		g := segmentGlob(p)
		args = append(args, "--exclude="+root+g, "--exclude="+root+"*/"+g)
	}
	return args
}

// tarQuote escapes wildcard characters in a literal member name
func tarQuote(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`*?[]\`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isGlob(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}
