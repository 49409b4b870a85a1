package workspace

import (
	"path/filepath"
	"strings"

	"github.com/moby/patternmatcher"
)

// DefaultExcludePatterns are always applied when copying a source tree
// into a workspace: test files and directories, dependency directories.
// Dotfiles are handled separately (any path segment starting with ".").
var DefaultExcludePatterns = []string{
	"**/*_test.go",
	"**/*.test.*",
	"**/*.spec.*",
	"**/__tests__",
	"**/__mocks__",
	"**/node_modules",
	"**/vendor",
	"**/deps",
	"**/dist",
	"**/build",
}

// Excluder decides whether a path relative to the copy source should be
// left out of the workspace. Patterns containing glob metacharacters are
// compiled through patternmatcher (which translates them to regular
// expressions); plain patterns match as path substrings.
type Excluder struct {
	substrings []string
	matcher    *patternmatcher.PatternMatcher
}

// NewExcluder builds an Excluder from the default patterns plus any
// user-configured extras.
func NewExcluder(extra []string) (*Excluder, error) {
	patterns := append(append([]string{}, DefaultExcludePatterns...), extra...)

	var globs, substrings []string
	for _, p := range patterns {
		if strings.ContainsAny(p, "*?[") {
			globs = append(globs, p)
		} else {
			substrings = append(substrings, p)
		}
	}

	matcher, err := patternmatcher.New(globs)
	if err != nil {
		return nil, err
	}

	return &Excluder{substrings: substrings, matcher: matcher}, nil
}

// Excluded reports whether the given source-relative path should be
// skipped. Dotfiles and dot-directories are excluded at any depth.
func (e *Excluder) Excluded(relPath string) bool {
	rel := filepath.ToSlash(relPath)
	if rel == "." || rel == "" {
		return false
	}

	for _, segment := range strings.Split(rel, "/") {
		if strings.HasPrefix(segment, ".") {
			return true
		}
	}

	for _, sub := range e.substrings {
		if strings.Contains(rel, sub) {
			return true
		}
	}

	matched, err := e.matcher.MatchesOrParentMatches(rel)
	if err != nil {
		return false
	}
	return matched
}
