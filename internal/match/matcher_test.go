package match

import (
	"testing"

	"github.com/dvtools/dv-hooks/internal/domain/policy"
)

func defaultOpts() policy.Options {
	return policy.Options{ExpandEnv: true, TreatPatternsAsAbsoluteWhenStartingWithSlash: true}
}

func TestMatch_DoubleStarSpansSegments(t *testing.T) {
	m := New("/repo", defaultOpts())
	if !m.Match("design/**", "design/sub/dir/apb.v") {
		t.Fatal("expected design/** to match a nested path")
	}
	if !m.Match("design/**", "design/apb.v") {
		t.Fatal("expected design/** to match zero intermediate segments")
	}
	if m.Match("design/**", "other/apb.v") {
		t.Fatal("expected design/** not to match outside design/")
	}
}

func TestMatch_SingleStarStaysWithinSegment(t *testing.T) {
	m := New("/repo", defaultOpts())
	if !m.Match("sw/*.cfg", "sw/setup.cfg") {
		t.Fatal("expected sw/*.cfg to match a direct child")
	}
	if m.Match("sw/*.cfg", "sw/nested/setup.cfg") {
		t.Fatal("expected sw/*.cfg not to cross a path segment")
	}
}

func TestMatch_EnvExpansion(t *testing.T) {
	t.Setenv("PROJ", "widget")
	m := New("/repo", defaultOpts())
	if !m.Match("design/$PROJ/**", "design/widget/top.v") {
		t.Fatal("expected $PROJ to expand before matching")
	}
}

func TestMatch_UndefinedEnvVarStaysLiteral(t *testing.T) {
	m := New("/repo", defaultOpts())
	if m.Match("design/$NOPE_NOT_SET/**", "design/anything/top.v") {
		t.Fatal("expected an undefined env var to remain literal, not a wildcard")
	}
	if !m.Match("design/$NOPE_NOT_SET/**", "design/$NOPE_NOT_SET/top.v") {
		t.Fatal("expected the literal unexpanded variable name to match itself")
	}
}

func TestExtension(t *testing.T) {
	cases := map[string]string{
		"design/apb.v":   ".v",
		"README.MD":      ".md",
		".gitignore":     "",
		"Makefile":       "",
		"a/b/c.tar.gz":   ".gz",
	}
	for path, want := range cases {
		if got := Extension(path); got != want {
			t.Errorf("Extension(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestExtensionAllowed(t *testing.T) {
	allowed := []string{".md", ".txt"}
	if !ExtensionAllowed("docs/readme.md", allowed) {
		t.Fatal("expected .md to be allowed")
	}
	if ExtensionAllowed("docs/readme", allowed) {
		t.Fatal("expected an extensionless file never to match")
	}
}
