package evaluator

import (
	"testing"
	"time"

	"github.com/dvtools/dv-hooks/internal/domain/change"
	"github.com/dvtools/dv-hooks/internal/domain/policy"
	"github.com/dvtools/dv-hooks/internal/domain/verdict"
	"github.com/dvtools/dv-hooks/internal/match"
)

func basePolicy() *policy.Policy {
	return &policy.Policy{
		ConfigAdmins: []string{"admin1"},
		Options:      policy.Options{CaseSensitiveUsers: true},
	}
}

func newEval(p *policy.Policy, user string) *Evaluator {
	m := match.New("", p.Options)
	return New(p, m, user, time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC))
}

func TestEvaluate_DefaultAllow(t *testing.T) {
	e := newEval(basePolicy(), "bob")
	v := e.evaluateOne(change.Change{Status: change.StatusAdded, NewPath: "design/foo.v"})
	if v.Decision != verdict.Allow || v.Rule != verdict.RuleDefault {
		t.Fatalf("got %+v, want Allow/Default", v)
	}
}

func TestEvaluate_PolicyEdit_BlocksNonAdmin(t *testing.T) {
	e := newEval(basePolicy(), "bob")
	v := e.evaluateOne(change.Change{Status: change.StatusModified, NewPath: policy.HookPolicyPath})
	if v.Decision != verdict.Block || v.Rule != verdict.RulePolicyEdit {
		t.Fatalf("got %+v, want Block/PolicyEdit", v)
	}
}

func TestEvaluate_PolicyEdit_AllowsAdmin(t *testing.T) {
	e := newEval(basePolicy(), "admin1")
	v := e.evaluateOne(change.Change{Status: change.StatusModified, NewPath: policy.HookPolicyPath})
	if v.Decision != verdict.Allow {
		t.Fatalf("got %+v, want Allow for admin policy edit", v)
	}
}

func TestEvaluate_Freeze_BlocksMatchingPath(t *testing.T) {
	p := basePolicy()
	p.Freeze = policy.Freeze{
		Enabled: true,
		Windows: []policy.FreezeWindow{{Paths: []string{"design/**"}}},
	}
	e := newEval(p, "bob")
	v := e.evaluateOne(change.Change{Status: change.StatusModified, NewPath: "design/core.v"})
	if v.Decision != verdict.Block || v.Rule != verdict.RuleFreeze {
		t.Fatalf("got %+v, want Block/Freeze", v)
	}
}

func TestEvaluate_Freeze_WindowBounds(t *testing.T) {
	p := basePolicy()
	p.Freeze = policy.Freeze{
		Enabled: true,
		Windows: []policy.FreezeWindow{{
			From:  "2026-01-01 00:00:00",
			To:    "2026-02-01 00:00:00",
			Paths: []string{"design/**"},
		}},
	}
	e := newEval(p, "bob") // now is 2026-06-15, outside the window
	v := e.evaluateOne(change.Change{Status: change.StatusModified, NewPath: "design/core.v"})
	if v.Decision != verdict.Allow {
		t.Fatalf("got %+v, want Allow: freeze window has elapsed", v)
	}
}

func TestEvaluate_DeletionProtected_BlocksNonAdminDelete(t *testing.T) {
	p := basePolicy()
	p.DeletionProtected = []string{"design/core.v"}
	e := newEval(p, "bob")
	v := e.evaluateOne(change.Change{Status: change.StatusDeleted, OldPath: "design/core.v"})
	if v.Decision != verdict.Block || v.Rule != verdict.RuleDeletionProtected {
		t.Fatalf("got %+v, want Block/DeletionProtected", v)
	}
}

func TestEvaluate_DeletionProtected_AllowsAdmin(t *testing.T) {
	p := basePolicy()
	p.DeletionProtected = []string{"design/core.v"}
	e := newEval(p, "admin1")
	v := e.evaluateOne(change.Change{Status: change.StatusDeleted, OldPath: "design/core.v"})
	if v.Decision != verdict.Allow {
		t.Fatalf("got %+v, want Allow for admin delete", v)
	}
}

func TestEvaluate_GlobalExt_AllowsRegardlessOfLocked(t *testing.T) {
	p := basePolicy()
	p.GlobalBypass.AllowedExtensions = []string{".md"}
	p.Locked = []policy.LockedEntry{{Paths: []string{"design/**"}}}
	e := newEval(p, "bob")
	v := e.evaluateOne(change.Change{Status: change.StatusAdded, NewPath: "design/notes.md"})
	if v.Decision != verdict.Allow || v.Rule != verdict.RuleGlobalExt {
		t.Fatalf("got %+v, want Allow/GlobalExt", v)
	}
}

func TestEvaluate_Locked_BlocksUnlessExtensionCarvedOut(t *testing.T) {
	p := basePolicy()
	p.Locked = []policy.LockedEntry{{Name: "core-rtl", Paths: []string{"design/**"}, AllowedExtensions: []string{".md"}}}
	e := newEval(p, "bob")

	blocked := e.evaluateOne(change.Change{Status: change.StatusModified, NewPath: "design/core.v"})
	if blocked.Decision != verdict.Block || blocked.Rule != verdict.RuleLocked {
		t.Fatalf("got %+v, want Block/Locked", blocked)
	}

	allowed := e.evaluateOne(change.Change{Status: change.StatusAdded, NewPath: "design/readme.md"})
	if allowed.Decision != verdict.Allow {
		t.Fatalf("got %+v, want Allow for carved-out extension", allowed)
	}
}

func TestEvaluate_Restricted_AllowsListedUser(t *testing.T) {
	p := basePolicy()
	p.Restricted = []policy.RestrictedEntry{{Name: "release", Paths: []string{"release/**"}, AllowedUsers: []string{"bob"}}}
	e := newEval(p, "bob")
	v := e.evaluateOne(change.Change{Status: change.StatusModified, NewPath: "release/manifest.txt"})
	if v.Decision != verdict.Allow || v.Rule != verdict.RuleRestricted {
		t.Fatalf("got %+v, want Allow/Restricted", v)
	}
}

func TestEvaluate_Restricted_BlocksUnlistedUser(t *testing.T) {
	p := basePolicy()
	p.Restricted = []policy.RestrictedEntry{{Name: "release", Paths: []string{"release/**"}, AllowedUsers: []string{"carol"}}}
	e := newEval(p, "bob")
	v := e.evaluateOne(change.Change{Status: change.StatusModified, NewPath: "release/manifest.txt"})
	if v.Decision != verdict.Block || v.Rule != verdict.RuleRestricted {
		t.Fatalf("got %+v, want Block/Restricted", v)
	}
}

func TestEvaluate_RenameAgainstDeletionProtected_BlocksOnOldSide(t *testing.T) {
	p := basePolicy()
	p.DeletionProtected = []string{"design/core.v"}
	e := newEval(p, "bob")
	v := e.evaluateOne(change.Change{Status: change.StatusRenamed, OldPath: "design/core.v", NewPath: "design/core_v2.v"})
	if v.Decision != verdict.Block || v.Rule != verdict.RuleDeletionProtected {
		t.Fatalf("got %+v, want Block/DeletionProtected for rename of a protected old path", v)
	}
}

func TestEvaluate_FreezePriorityAfterRestricted(t *testing.T) {
	p := basePolicy()
	p.Freeze = policy.Freeze{
		Enabled:  true,
		Priority: policy.FreezePriorityAfterRestricted,
		Windows:  []policy.FreezeWindow{{Paths: []string{"release/**"}}},
	}
	p.Restricted = []policy.RestrictedEntry{{Paths: []string{"release/**"}, AllowedUsers: []string{"bob"}}}
	e := newEval(p, "bob")
	v := e.evaluateOne(change.Change{Status: change.StatusModified, NewPath: "release/manifest.txt"})
	if v.Decision != verdict.Allow || v.Rule != verdict.RuleRestricted {
		t.Fatalf("got %+v, want Allow/Restricted to win over Freeze under after_restricted priority", v)
	}
}

func TestEvaluate_CaseInsensitiveUsers(t *testing.T) {
	p := basePolicy()
	p.Options.CaseSensitiveUsers = false
	p.ConfigAdmins = []string{"Admin1"}
	e := newEval(p, "admin1")
	v := e.evaluateOne(change.Change{Status: change.StatusModified, NewPath: policy.HookPolicyPath})
	if v.Decision != verdict.Allow {
		t.Fatalf("got %+v, want Allow: case-insensitive admin match", v)
	}
}
