// Package smoke implements the post-decision validation gate (spec.md
// §4.8): it selects and runs configured command groups when the staged
// paths match their trigger globs, streaming output to a log and honoring
// a per-command timeout with process-group termination.
package smoke

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dvtools/dv-hooks/internal/domain/change"
	"github.com/dvtools/dv-hooks/internal/domain/policy"
	"github.com/dvtools/dv-hooks/internal/match"
)

// CommandResult records one executed command's outcome.
type CommandResult struct {
	Group    string
	Argv     []string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Failed reports whether this command did not succeed.
func (r CommandResult) Failed() bool {
	return r.TimedOut || r.ExitCode != 0
}

// Report is the outcome of a full Run: every command actually executed, in
// order, stopping each group at its first failure.
type Report struct {
	Triggered bool
	Results   []CommandResult
}

// AnyFailed reports whether any executed command failed.
func (r Report) AnyFailed() bool {
	for _, c := range r.Results {
		if c.Failed() {
			return true
		}
	}
	return false
}

// Gate runs the configured command groups against a log file.
type Gate struct {
	cfg      policy.SmokeTest
	matcher  *match.Matcher
	repoRoot string
	logPath  string
}

// New builds a Gate. logPath is typically simlog/smoke.log under repoRoot.
func New(cfg policy.SmokeTest, matcher *match.Matcher, repoRoot, logPath string) *Gate {
	return &Gate{cfg: cfg, matcher: matcher, repoRoot: repoRoot, logPath: logPath}
}

// Run selects triggered groups from the new-side paths of non-deleted
// changes and executes them in declared order, each group stopping at its
// first non-zero exit. It is a no-op, returning a zero Report, if the gate
// is disabled.
func (g *Gate) Run(ctx context.Context, changes []change.Change) (Report, error) {
	var report Report
	if !g.cfg.Enabled {
		return report, nil
	}

	var paths []string
	for _, c := range changes {
		if c.IsDeletion() || c.NewPath == "" {
			continue
		}
		paths = append(paths, c.NewPath)
	}

	logFile, err := g.openLog()
	if err != nil {
		return report, fmt.Errorf("open smoke log: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	if anyMatch(g.matcher, g.cfg.PathsCompileElab, paths) {
		report.Triggered = true
		results, err := g.runGroup(ctx, "compile_elab", g.cfg.CmdsCompileElab, logFile)
		report.Results = append(report.Results, results...)
		if err != nil {
			return report, err
		}
	}

	if anyMatch(g.matcher, g.cfg.SWHeaderGlobs, paths) {
		report.Triggered = true
		results, err := g.runGroup(ctx, "sw", g.cfg.CmdsSW, logFile)
		report.Results = append(report.Results, results...)
		if err != nil {
			return report, err
		}
	}

	return report, nil
}

func anyMatch(m *match.Matcher, globs []string, paths []string) bool {
	if len(globs) == 0 {
		return false
	}
	for _, p := range paths {
		if m.MatchAny(globs, p) {
			return true
		}
	}
	return false
}

func (g *Gate) openLog() (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(g.logPath), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(g.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// runGroup executes argvs in order, stopping at the first failure.
func (g *Gate) runGroup(ctx context.Context, group string, argvs [][]string, log io.Writer) ([]CommandResult, error) {
	var results []CommandResult
	timeout := time.Duration(g.cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	for _, argv := range argvs {
		if len(argv) == 0 {
			continue
		}
		res, err := g.runOne(ctx, group, argv, timeout, log)
		results = append(results, res)
		if err != nil {
			return results, fmt.Errorf("smoke command %v: %w", argv, err)
		}
		if res.Failed() {
			break
		}
	}
	return results, nil
}

func (g *Gate) runOne(ctx context.Context, group string, argv []string, timeout time.Duration, log io.Writer) (CommandResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := wrap(runCtx, g.cfg, argv)
	cmd.Dir = g.repoRoot
	cmd.Env = os.Environ()
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		killProcessGroup(cmd)
		return nil
	}

	cmd.Stdout = log
	cmd.Stderr = log

	fmt.Fprintf(log, "--- [%s] %v ---\n", group, argv)
	start := time.Now()
	err := cmd.Start()
	if err == nil {
		err = cmd.Wait()
	}
	duration := time.Since(start)

	res := CommandResult{Group: group, Argv: argv, Duration: duration}

	if runCtx.Err() == context.DeadlineExceeded {
		killProcessGroup(cmd)
		res.TimedOut = true
		res.ExitCode = -1
		fmt.Fprintf(log, "--- [%s] timed out after %s ---\n", group, timeout)
		return res, nil
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, err
	}
	res.ExitCode = 0
	return res, nil
}

// wrap builds the *exec.Cmd for one argv, applying the configured shell
// wrapping discipline: csh with an optional setup script sourced first, a
// POSIX shell wrapper, or the argv executed directly.
func wrap(ctx context.Context, cfg policy.SmokeTest, argv []string) *exec.Cmd {
	switch cfg.Shell {
	case "csh":
		quoted := shellQuoteAll(argv)
		script := quoted
		if cfg.SetupScript != "" {
			if _, err := os.Stat(cfg.SetupScript); err == nil {
				script = fmt.Sprintf("source %s && %s", shellQuote(cfg.SetupScript), quoted)
			}
		}
		return exec.CommandContext(ctx, "csh", "-c", script)
	case "sh":
		return exec.CommandContext(ctx, "sh", "-c", shellQuoteAll(argv))
	default:
		return exec.CommandContext(ctx, argv[0], argv[1:]...)
	}
}

func shellQuoteAll(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
