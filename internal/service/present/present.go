// Package present renders the rule evaluator's verdicts into the text a
// developer sees in their terminal (spec.md §4.9). Color and box-drawing
// are purely cosmetic — the exit code and gating decisions are computed
// upstream, never here.
package present

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/dvtools/dv-hooks/internal/domain/verdict"
	"github.com/dvtools/dv-hooks/internal/service/smoke"
)

// Env captures the cosmetic environment toggles spec.md §6 lists.
type Env struct {
	NoColor        bool
	Mute           bool
	SuppressTips   bool
	ShowDecisions  bool
}

// EnvFromOS reads the cosmetic toggles from the process environment.
func EnvFromOS() Env {
	return Env{
		NoColor:       os.Getenv("NO_COLOR") != "",
		Mute:          os.Getenv("DV_HOOK_MUTE") != "",
		SuppressTips:  os.Getenv("DV_HOOK_TIPS") == "0",
		ShowDecisions: os.Getenv("DV_HOOK_SHOW_DECISIONS") == "1",
	}
}

// group is one {rule, explanation} bucket of offending changes.
type group struct {
	rule   verdict.Rule
	detail string
	paths  []string
}

// Presenter renders a verdict set plus an optional smoke report.
type Presenter struct {
	env             Env
	maxFilesPerGroup int
	started         time.Time
}

// New builds a Presenter. maxFilesPerGroup truncates each group's path
// listing (options.ui.max_files_per_group); started is the invocation's
// start time, used to report elapsed duration.
func New(env Env, maxFilesPerGroup int, started time.Time) *Presenter {
	if maxFilesPerGroup <= 0 {
		maxFilesPerGroup = 25
	}
	return &Presenter{env: env, maxFilesPerGroup: maxFilesPerGroup, started: started}
}

// Render writes the final report to w and reports whether the commit
// should be allowed: true only when no Block verdicts remain and the
// smoke report (if any) did not hard-fail.
func (p *Presenter) Render(w io.Writer, verdicts []verdict.Verdict, sm smoke.Report, smokeBlocking bool) bool {
	blocks := blockingVerdicts(verdicts)
	smokeFailed := sm.AnyFailed()

	clean := len(blocks) == 0 && (!smokeFailed || !smokeBlocking)

	if p.env.ShowDecisions {
		p.renderDecisions(w, verdicts)
	}

	if clean {
		if !p.env.Mute {
			fmt.Fprintln(w, p.style(lipgloss.Color("2")).Render("✓ pre-commit checks passed")+
				" "+humanize.Time(p.started))
		}
		if smokeFailed {
			fmt.Fprintln(w, p.style(lipgloss.Color("3")).Render("⚠ smoke test reported failures (warn mode, commit proceeds)")+
				" — see simlog/smoke.log")
		}
		return true
	}

	if p.env.Mute {
		fmt.Fprintf(w, "BLOCKED: %d change(s) blocked; %d group(s)\n", len(blocks), len(groupVerdicts(blocks)))
		return false
	}

	for _, g := range groupVerdicts(blocks) {
		p.renderGroup(w, g)
	}

	if smokeFailed && smokeBlocking {
		fmt.Fprintln(w, p.style(lipgloss.Color("1")).Render("✗ smoke test failed")+" — see simlog/smoke.log for details")
	}

	return false
}

func (p *Presenter) renderDecisions(w io.Writer, verdicts []verdict.Verdict) {
	for _, v := range verdicts {
		path := v.Change.NewPath
		if path == "" {
			path = v.Change.OldPath
		}
		fmt.Fprintf(w, "  %-7s %-18s %s\n", v.Decision, v.Rule, path)
	}
}

func (p *Presenter) renderGroup(w io.Writer, g group) {
	header := p.style(lipgloss.Color("1")).Bold(true).Render(fmt.Sprintf("[%s] %s", g.rule, g.detail))
	fmt.Fprintln(w, header)

	shown := g.paths
	truncated := 0
	if len(shown) > p.maxFilesPerGroup {
		truncated = len(shown) - p.maxFilesPerGroup
		shown = shown[:p.maxFilesPerGroup]
	}
	for _, path := range shown {
		fmt.Fprintf(w, "    %s\n", path)
	}
	if truncated > 0 {
		fmt.Fprintf(w, "    ... and %d more\n", truncated)
	}

	if !p.env.SuppressTips {
		if tip := bypassTip(g.rule); tip != "" {
			fmt.Fprintln(w, p.style(lipgloss.Color("4")).Render("    tip: "+tip))
		}
	}
}

func bypassTip(rule verdict.Rule) string {
	switch rule {
	case verdict.RuleFreeze:
		return "set DV_HOOK_BYPASS=<token> (and DV_HOOK_BYPASS_REASON if required) to request a freeze bypass"
	case verdict.RuleDeletionProtected, verdict.RuleLocked, verdict.RuleRestricted:
		return "set DV_HOOK_BYPASS=<token> (and DV_HOOK_BYPASS_REASON if required) to request an emergency bypass"
	default:
		return ""
	}
}

func (p *Presenter) style(color lipgloss.Color) lipgloss.Style {
	s := lipgloss.NewStyle()
	if p.env.NoColor {
		return s
	}
	return s.Foreground(color)
}

func blockingVerdicts(verdicts []verdict.Verdict) []verdict.Verdict {
	var blocks []verdict.Verdict
	for _, v := range verdicts {
		if v.IsBlock() {
			blocks = append(blocks, v)
		}
	}
	return blocks
}

// groupVerdicts buckets blocking verdicts by {rule, detail}, preserving
// first-seen order across groups and within each group's path list.
func groupVerdicts(blocks []verdict.Verdict) []group {
	index := map[string]int{}
	var groups []group

	for _, v := range blocks {
		key := string(v.Rule) + "\x00" + v.Detail
		path := v.Change.NewPath
		if path == "" {
			path = v.Change.OldPath
		}
		if i, ok := index[key]; ok {
			groups[i].paths = append(groups[i].paths, path)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, group{rule: v.Rule, detail: v.Detail, paths: []string{path}})
	}

	sort.SliceStable(groups, func(i, j int) bool { return rulePriority(groups[i].rule) < rulePriority(groups[j].rule) })
	return groups
}

func rulePriority(r verdict.Rule) int {
	order := []verdict.Rule{
		verdict.RulePolicyEdit, verdict.RuleFreeze, verdict.RuleDeletionProtected,
		verdict.RuleGlobalExt, verdict.RuleLocked, verdict.RuleRestricted, verdict.RuleDefault,
	}
	for i, rule := range order {
		if rule == r {
			return i
		}
	}
	return len(order)
}

