// Package hook wires the policy loader, change collector, pattern
// matcher, rule evaluator, bypass resolver, smoke gate, and result
// presenter into the single pre-commit entrypoint.
package hook

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dvtools/dv-hooks/internal/adapter/outbound/audit"
	"github.com/dvtools/dv-hooks/internal/adapter/outbound/ledgerstore"
	"github.com/dvtools/dv-hooks/internal/adapter/outbound/vcs"
	"github.com/dvtools/dv-hooks/internal/config"
	"github.com/dvtools/dv-hooks/internal/domain/change"
	"github.com/dvtools/dv-hooks/internal/domain/policy"
	"github.com/dvtools/dv-hooks/internal/domain/verdict"
	"github.com/dvtools/dv-hooks/internal/match"
	"github.com/dvtools/dv-hooks/internal/service/bypass"
	"github.com/dvtools/dv-hooks/internal/service/evaluator"
	"github.com/dvtools/dv-hooks/internal/service/present"
	"github.com/dvtools/dv-hooks/internal/service/smoke"
)

// LedgerRelPath is the fixed location under the VCS metadata directory
// spec.md §4.6 names for the bypass ledger.
const LedgerRelPath = "dv-hooks/bypass_ledger.json"

// Options configures one hook run. RepoRoot and GitDir are resolved by
// the caller (typically the CLI command) before constructing Options.
type Options struct {
	RepoRoot    string
	GitDir      string
	PolicyPath  string // empty uses the default config/hook_policy.json
	BypassToken string
	BypassReason string
	Out         *os.File
	Logger      *slog.Logger
}

// Result is what the CLI needs to decide its exit code.
type Result struct {
	Allow    bool
	Verdicts []verdict.Verdict
	Smoke    smoke.Report
}

// Run executes one full pre-commit evaluation.
func Run(ctx context.Context, opts Options) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	runID := uuid.NewString()
	started := time.Now()

	p, err := config.LoadPolicy(opts.RepoRoot, opts.PolicyPath)
	if err != nil {
		return Result{}, fmt.Errorf("load policy: %w", err)
	}

	collector := vcs.New(opts.RepoRoot)
	changes, err := collector.StagedChanges(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("collect staged changes: %w", err)
	}
	user, err := collector.CurrentUser(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("resolve current user: %w", err)
	}

	matcher := match.New(opts.RepoRoot, p.Options)
	eval := evaluator.New(p, matcher, user, time.Now())
	verdicts := eval.Evaluate(changes)

	auditPath := filepath.Join(opts.RepoRoot, p.Options.LogPath)
	auditLog := audit.New(auditPath, runID)
	logVerdicts(auditLog, user, verdicts)

	if anyBlock(verdicts) {
		var blocked []change.Change
		for _, v := range verdicts {
			if v.IsBlock() {
				blocked = append(blocked, v.Change)
			}
		}
		store := ledgerstore.New(filepath.Join(opts.GitDir, LedgerRelPath), logger)
		resolver := bypass.New(p, store)
		outcome, err := resolver.Resolve(verdicts, bypass.Input{
			Token:  opts.BypassToken,
			Reason: opts.BypassReason,
			User:   user,
			Files:  changedPaths(blocked),
			RunID:  runID,
			Now:    time.Now(),
		})
		if err != nil {
			_ = auditLog.Line("user=%s bypass resolution failed: %v", user, err)
			return Result{}, fmt.Errorf("bypass resolution: %w", err)
		}
		logBypassOutcome(auditLog, user, outcome)
	}

	var smokeReport smoke.Report
	smokeBlocking := p.SmokeTest.Mode != policy.SmokeModeWarn
	if p.SmokeTest.Enabled && !anyBlock(verdicts) {
		gate := smoke.New(p.SmokeTest, matcher, opts.RepoRoot, filepath.Join(opts.RepoRoot, "simlog", "smoke.log"))
		smokeReport, err = gate.Run(ctx, changes)
		if err != nil {
			_ = auditLog.Line("user=%s smoke gate error: %v", user, err)
			return Result{}, fmt.Errorf("smoke gate: %w", err)
		}
		_ = auditLog.Line("user=%s smoke triggered=%v failed=%v", user, smokeReport.Triggered, smokeReport.AnyFailed())
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	presenter := present.New(present.EnvFromOS(), p.Options.UI.MaxFilesPerGroup, started)
	allow := presenter.Render(out, verdicts, smokeReport, smokeBlocking)

	return Result{Allow: allow, Verdicts: verdicts, Smoke: smokeReport}, nil
}

func anyBlock(verdicts []verdict.Verdict) bool {
	for _, v := range verdicts {
		if v.IsBlock() {
			return true
		}
	}
	return false
}

func changedPaths(changes []change.Change) []string {
	var paths []string
	for _, c := range changes {
		paths = append(paths, c.EffectivePaths()...)
	}
	return paths
}

func logVerdicts(l *audit.Logger, user string, verdicts []verdict.Verdict) {
	for _, v := range verdicts {
		_ = l.Line("user=%s status=%s old=%s new=%s decision=%s rule=%s detail=%q",
			user, v.Change.Status, v.Change.OldPath, v.Change.NewPath, v.Decision, v.Rule, v.Detail)
	}
}

func logBypassOutcome(l *audit.Logger, user string, outcome bypass.Outcome) {
	if outcome.FreezeAttempted {
		_ = l.Line("user=%s freeze bypass attempted succeeded=%v reason=%q", user, outcome.FreezeSucceeded, outcome.FreezeDenialReason)
	}
	if outcome.EmergencyAttempted {
		_ = l.Line("user=%s emergency bypass attempted succeeded=%v reason=%q", user, outcome.EmergencySucceeded, outcome.EmergencyDenialReason)
	}
}
