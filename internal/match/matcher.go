// Package match implements the pattern-matching semantics spec.md §4.3
// describes: "**" segment wildcards via doublestar, $NAME/${NAME} env
// expansion, and the absolute-vs-repo-relative path decision.
package match

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dvtools/dv-hooks/internal/domain/policy"
)

// Matcher evaluates path patterns against repo-relative candidate paths.
type Matcher struct {
	repoRoot  string
	expandEnv bool
	absolute  bool
}

// New builds a Matcher from the policy options that govern pattern
// semantics.
func New(repoRoot string, opts policy.Options) *Matcher {
	return &Matcher{
		repoRoot:  repoRoot,
		expandEnv: opts.ExpandEnv,
		absolute:  opts.TreatPatternsAsAbsoluteWhenStartingWithSlash,
	}
}

// Match reports whether candidate (a repo-relative path using "/"
// separators) matches pattern, after env expansion and absolute/relative
// resolution.
func (m *Matcher) Match(pattern, candidate string) bool {
	pattern = m.expand(pattern)

	if strings.HasPrefix(pattern, "/") && m.absolute {
		absPattern := filepath.ToSlash(filepath.Join(m.repoRoot, pattern))
		absCandidate := filepath.ToSlash(filepath.Join(m.repoRoot, candidate))
		ok, _ := doublestar.Match(absPattern, absCandidate)
		return ok
	}

	pattern = strings.TrimPrefix(pattern, "/")
	candidate = strings.TrimPrefix(candidate, "/")
	ok, _ := doublestar.Match(pattern, candidate)
	return ok
}

// MatchAny reports whether candidate matches any of patterns.
func (m *Matcher) MatchAny(patterns []string, candidate string) bool {
	for _, p := range patterns {
		if m.Match(p, candidate) {
			return true
		}
	}
	return false
}

// expand substitutes $NAME/${NAME} references using the process
// environment, leaving undefined variables literal, when ExpandEnv is on.
func (m *Matcher) expand(pattern string) string {
	if !m.expandEnv {
		return pattern
	}
	return os.Expand(pattern, func(name string) string {
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return "$" + name
	})
}

// Extension returns a file's final extension, lowercased and with a
// leading dot. Files without a "." in their final path segment have no
// extension and never match an extension allowlist.
func Extension(path string) string {
	base := filepath.Base(path)
	idx := strings.LastIndex(base, ".")
	if idx <= 0 {
		// idx == 0 means a dotfile with no further "." (e.g. ".gitignore")
		// — that leading dot is not an extension separator.
		return ""
	}
	return strings.ToLower(base[idx:])
}

// ExtensionAllowed reports whether path's extension is present in allowed
// (already normalized to lowercase-with-dot by config.SetDefaults).
func ExtensionAllowed(path string, allowed []string) bool {
	ext := Extension(path)
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if a == ext {
			return true
		}
	}
	return false
}
