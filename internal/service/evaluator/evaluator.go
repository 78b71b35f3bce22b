// Package evaluator implements the rule-evaluator pipeline (spec.md §4.4):
// for every staged change it produces exactly one Verdict by applying
// PolicyEdit, Freeze, DeletionProtected, GlobalExt, Locked, Restricted,
// and Default in order, honoring Freeze's configurable priority.
package evaluator

import (
	"strings"
	"time"

	"github.com/dvtools/dv-hooks/internal/config"
	"github.com/dvtools/dv-hooks/internal/domain/change"
	"github.com/dvtools/dv-hooks/internal/domain/policy"
	"github.com/dvtools/dv-hooks/internal/domain/verdict"
	"github.com/dvtools/dv-hooks/internal/match"
)

// Evaluator applies one loaded policy to a change set for one user at one
// point in time.
type Evaluator struct {
	policy  *policy.Policy
	matcher *match.Matcher
	now     time.Time
	user    string
}

// New builds an Evaluator. now is the wall-clock the Freeze rule compares
// windows against; callers pass time.Now() in production and a fixed
// instant in tests.
func New(p *policy.Policy, m *match.Matcher, user string, now time.Time) *Evaluator {
	return &Evaluator{policy: p, matcher: m, now: now, user: user}
}

// Evaluate produces one Verdict per Change, in input order.
func (e *Evaluator) Evaluate(changes []change.Change) []verdict.Verdict {
	verdicts := make([]verdict.Verdict, 0, len(changes))
	for _, c := range changes {
		verdicts = append(verdicts, e.evaluateOne(c))
	}
	return verdicts
}

func (e *Evaluator) evaluateOne(c change.Change) verdict.Verdict {
	if v, ok := e.checkPolicyEdit(c); ok {
		return v
	}

	freezeOverridesAll := e.policy.Freeze.Priority != policy.FreezePriorityAfterRestricted

	if freezeOverridesAll {
		if v, ok := e.checkFreeze(c); ok {
			return v
		}
	}

	if v, ok := e.checkDeletionProtected(c); ok {
		return v
	}

	if v, ok := e.checkGlobalExt(c); ok {
		return v
	}

	if v, ok := e.checkLocked(c); ok {
		return v
	}

	if v, ok := e.checkRestricted(c); ok {
		return v
	}

	if !freezeOverridesAll {
		if v, ok := e.checkFreeze(c); ok {
			return v
		}
	}

	return verdict.Verdict{Change: c, Decision: verdict.Allow, Rule: verdict.RuleDefault, Detail: "no rule matched"}
}

// checkPolicyEdit blocks, terminally and non-bypassably, any change to the
// policy file itself by a non-admin.
func (e *Evaluator) checkPolicyEdit(c change.Change) (verdict.Verdict, bool) {
	touchesPolicy := c.NewPath == policy.HookPolicyPath || c.OldPath == policy.HookPolicyPath
	if !touchesPolicy {
		return verdict.Verdict{}, false
	}
	if e.isAdmin(e.user) {
		return verdict.Verdict{}, false
	}
	return verdict.Verdict{
		Change:   c,
		Decision: verdict.Block,
		Rule:     verdict.RulePolicyEdit,
		Detail:   "only config_admins may edit " + policy.HookPolicyPath,
	}, true
}

// checkFreeze blocks a change whose effective paths match any currently
// active freeze window.
func (e *Evaluator) checkFreeze(c change.Change) (verdict.Verdict, bool) {
	fz := e.policy.Freeze
	if !fz.Enabled {
		return verdict.Verdict{}, false
	}

	for _, win := range fz.Windows {
		if !e.windowActive(win) {
			continue
		}
		for _, p := range c.EffectivePaths() {
			if e.matcher.MatchAny(win.Paths, p) {
				return verdict.Verdict{
					Change:   c,
					Decision: verdict.Block,
					Rule:     verdict.RuleFreeze,
					Detail:   "path is frozen: matched " + p,
				}, true
			}
		}
	}
	return verdict.Verdict{}, false
}

// windowActive reports whether a freeze window is currently in effect: a
// pure toggle (no From/To) is active whenever freeze is enabled; a bounded
// window is active when now falls in [from, to] inclusive.
func (e *Evaluator) windowActive(win policy.FreezeWindow) bool {
	if win.From == "" && win.To == "" {
		return true
	}
	var from, to time.Time
	var err error
	if win.From != "" {
		from, err = config.ParseHookTimestamp(win.From)
		if err != nil {
			return false
		}
	}
	if win.To != "" {
		to, err = config.ParseHookTimestamp(win.To)
		if err != nil {
			return false
		}
	}
	if !from.IsZero() && e.now.Before(from) {
		return false
	}
	if !to.IsZero() && e.now.After(to) {
		return false
	}
	return true
}

// checkDeletionProtected blocks a non-admin delete (or the deleted side of
// a rename/copy) of a path in deletion_protected.
func (e *Evaluator) checkDeletionProtected(c change.Change) (verdict.Verdict, bool) {
	if !c.HasOldSide() {
		return verdict.Verdict{}, false
	}
	if !e.matcher.MatchAny(e.policy.DeletionProtected, c.OldPath) {
		return verdict.Verdict{}, false
	}
	if e.isAdmin(e.user) {
		return verdict.Verdict{}, false
	}
	return verdict.Verdict{
		Change:   c,
		Decision: verdict.Block,
		Rule:     verdict.RuleDeletionProtected,
		Detail:   "deletion of protected path requires admin: " + c.OldPath,
	}, true
}

// checkGlobalExt allows a non-deletion change whose extension is in the
// policy-wide always-allowed set.
func (e *Evaluator) checkGlobalExt(c change.Change) (verdict.Verdict, bool) {
	if c.IsDeletion() || c.NewPath == "" {
		return verdict.Verdict{}, false
	}
	if !match.ExtensionAllowed(c.NewPath, e.policy.GlobalBypass.AllowedExtensions) {
		return verdict.Verdict{}, false
	}
	return verdict.Verdict{
		Change:   c,
		Decision: verdict.Allow,
		Rule:     verdict.RuleGlobalExt,
		Detail:   "extension globally allowed: " + match.Extension(c.NewPath),
	}, true
}

// checkLocked blocks a change to a locked path unless its extension is in
// that entry's own allowlist. The first matching entry wins.
func (e *Evaluator) checkLocked(c change.Change) (verdict.Verdict, bool) {
	if c.NewPath == "" {
		return verdict.Verdict{}, false
	}
	for _, entry := range e.policy.Locked {
		if !e.matcher.MatchAny(entry.Paths, c.NewPath) {
			continue
		}
		if match.ExtensionAllowed(c.NewPath, entry.AllowedExtensions) {
			return verdict.Verdict{}, false
		}
		return verdict.Verdict{
			Change:   c,
			Decision: verdict.Block,
			Rule:     verdict.RuleLocked,
			Detail:   "path is locked: " + describeLocked(entry),
		}, true
	}
	return verdict.Verdict{}, false
}

// checkRestricted allows a change to a restricted path when the user is
// listed, or the extension is carved out, and blocks otherwise. The first
// matching entry wins.
func (e *Evaluator) checkRestricted(c change.Change) (verdict.Verdict, bool) {
	if c.NewPath == "" {
		return verdict.Verdict{}, false
	}
	for _, entry := range e.policy.Restricted {
		if !e.matcher.MatchAny(entry.Paths, c.NewPath) {
			continue
		}
		if e.userIn(entry.AllowedUsers) {
			return verdict.Verdict{
				Change:   c,
				Decision: verdict.Allow,
				Rule:     verdict.RuleRestricted,
				Detail:   "user allowed on restricted path: " + describeRestricted(entry),
			}, true
		}
		if match.ExtensionAllowed(c.NewPath, entry.AllowedExtensions) {
			return verdict.Verdict{
				Change:   c,
				Decision: verdict.Allow,
				Rule:     verdict.RuleRestricted,
				Detail:   "extension allowed on restricted path: " + describeRestricted(entry),
			}, true
		}
		return verdict.Verdict{
			Change:   c,
			Decision: verdict.Block,
			Rule:     verdict.RuleRestricted,
			Detail:   "restricted path: " + describeRestricted(entry),
		}, true
	}
	return verdict.Verdict{}, false
}

// isAdmin reports whether user is listed in config_admins, honoring
// CaseSensitiveUsers.
func (e *Evaluator) isAdmin(user string) bool {
	return e.userMatchesAny(e.policy.ConfigAdmins, user)
}

// userIn reports whether e.user appears in the given allowlist, honoring
// CaseSensitiveUsers.
func (e *Evaluator) userIn(allowed []string) bool {
	return e.userMatchesAny(allowed, e.user)
}

func (e *Evaluator) userMatchesAny(list []string, user string) bool {
	if e.policy.Options.CaseSensitiveUsers {
		for _, u := range list {
			if u == user {
				return true
			}
		}
		return false
	}
	lower := strings.ToLower(user)
	for _, u := range list {
		if strings.ToLower(u) == lower {
			return true
		}
	}
	return false
}

func describeLocked(entry policy.LockedEntry) string {
	if entry.Name != "" {
		return entry.Name
	}
	if len(entry.Paths) > 0 {
		return entry.Paths[0]
	}
	return "locked"
}

func describeRestricted(entry policy.RestrictedEntry) string {
	if entry.Name != "" {
		return entry.Name
	}
	if len(entry.Paths) > 0 {
		return entry.Paths[0]
	}
	return "restricted"
}
