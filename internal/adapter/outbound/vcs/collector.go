// Package vcs collects the staged change set and the current user
// identity from the version-control system invoking this hook.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strings"

	"github.com/dvtools/dv-hooks/internal/domain/change"
)

// Collector queries the VCS for the pending commit's staged changes.
type Collector struct {
	RepoRoot string
}

// New returns a Collector rooted at repoRoot.
func New(repoRoot string) *Collector {
	return &Collector{RepoRoot: repoRoot}
}

// StagedChanges runs the equivalent of `git diff --cached --name-status -M`
// with rename detection and parses its output into the Change list §3
// describes.
func (c *Collector) StagedChanges(ctx context.Context) ([]change.Change, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", "--cached", "--name-status", "-M")
	cmd.Dir = c.RepoRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git diff --cached --name-status -M: %w: %s", err, stderr.String())
	}

	return parseNameStatus(stdout.String())
}

func parseNameStatus(output string) ([]change.Change, error) {
	var changes []change.Change
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			return nil, fmt.Errorf("malformed diff --name-status line: %q", line)
		}
		code := fields[0]

		var c change.Change
		switch {
		case code == "A":
			c = change.Change{Status: change.StatusAdded, NewPath: fields[1]}
		case code == "M":
			c = change.Change{Status: change.StatusModified, NewPath: fields[1]}
		case code == "D":
			c = change.Change{Status: change.StatusDeleted, OldPath: fields[1]}
		case code == "T":
			c = change.Change{Status: change.StatusTypeChanged, NewPath: fields[1]}
		case strings.HasPrefix(code, "R"):
			if len(fields) < 3 {
				return nil, fmt.Errorf("malformed rename line: %q", line)
			}
			c = change.Change{Status: change.StatusRenamed, OldPath: fields[1], NewPath: fields[2]}
		case strings.HasPrefix(code, "C"):
			if len(fields) < 3 {
				return nil, fmt.Errorf("malformed copy line: %q", line)
			}
			c = change.Change{Status: change.StatusCopied, OldPath: fields[1], NewPath: fields[2]}
		default:
			return nil, fmt.Errorf("unrecognized diff status %q in line %q", code, line)
		}
		changes = append(changes, c)
	}
	return changes, nil
}

// CurrentUser resolves the committing identity: first the VCS's configured
// user.name, falling back to the ambient OS user when that is unset.
func (c *Collector) CurrentUser(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "config", "user.name")
	cmd.Dir = c.RepoRoot

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err == nil {
		if name := strings.TrimSpace(stdout.String()); name != "" {
			return name, nil
		}
	}

	if name := os.Getenv("USER"); name != "" {
		return name, nil
	}
	if name := os.Getenv("USERNAME"); name != "" {
		return name, nil
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username, nil
	}
	return "", fmt.Errorf("unable to resolve current user identity")
}
