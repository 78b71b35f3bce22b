package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dvtools/dv-hooks/internal/domain/policy"
)

func writePolicy(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "hook_policy.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write policy file: %v", err)
	}
	return path
}

func TestLoadPolicy_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writePolicy(t, dir, `{"version": 1}`)

	p, err := LoadPolicy(dir, path)
	if err != nil {
		t.Fatalf("LoadPolicy() error: %v", err)
	}
	if !p.Options.CaseSensitiveUsers {
		t.Error("expected case_sensitive_users to default true")
	}
	if p.Options.LogPath != "simlog/precommit_access.log" {
		t.Errorf("unexpected default log path: %q", p.Options.LogPath)
	}
	if p.Options.UI.MaxFilesPerGroup != 25 {
		t.Errorf("expected default max_files_per_group=25, got %d", p.Options.UI.MaxFilesPerGroup)
	}
	if p.Freeze.Priority != policy.FreezePriorityOverrideAll {
		t.Errorf("expected default freeze priority override_all, got %q", p.Freeze.Priority)
	}
	if p.SmokeTest.Mode != policy.SmokeModeBlock {
		t.Errorf("expected default smoke mode block, got %q", p.SmokeTest.Mode)
	}
}

func TestLoadPolicy_NormalizesExtensions(t *testing.T) {
	dir := t.TempDir()
	path := writePolicy(t, dir, `{
		"version": 1,
		"global_bypass": {"allowed_extensions": ["MD", ".TXT", "yaml"]}
	}`)

	p, err := LoadPolicy(dir, path)
	if err != nil {
		t.Fatalf("LoadPolicy() error: %v", err)
	}
	want := []string{".md", ".txt", ".yaml"}
	if len(p.GlobalBypass.AllowedExtensions) != len(want) {
		t.Fatalf("got %v, want %v", p.GlobalBypass.AllowedExtensions, want)
	}
	for i, ext := range want {
		if p.GlobalBypass.AllowedExtensions[i] != ext {
			t.Errorf("index %d: got %q, want %q", i, p.GlobalBypass.AllowedExtensions[i], ext)
		}
	}
}

func TestLoadPolicy_MissingFile_ReturnsError(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadPolicy(dir, filepath.Join(dir, "does-not-exist.json")); err == nil {
		t.Fatal("expected an error for a missing policy file")
	}
}

func TestLoadPolicy_InvalidPolicy_ReturnsValidationError(t *testing.T) {
	dir := t.TempDir()
	path := writePolicy(t, dir, `{"version": 1, "locked": [{"name": "core"}]}`)
	if _, err := LoadPolicy(dir, path); err == nil {
		t.Fatal("expected a validation error for a locked entry missing paths")
	}
}
