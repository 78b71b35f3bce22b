// Package bypass implements the two-pass bypass resolver (spec.md §4.5):
// given a plaintext token and optional reason from the environment, it
// tries to clear Block verdicts first under the freeze scope, then under
// the emergency scope, consulting and updating the ledger for one-time
// tokens.
package bypass

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/dvtools/dv-hooks/internal/domain/ledger"
	"github.com/dvtools/dv-hooks/internal/domain/policy"
	"github.com/dvtools/dv-hooks/internal/domain/verdict"
)

// hashPrefixLen is the number of hex characters of the SHA-256 digest kept
// in a ledger record: enough to correlate audit entries, not enough to
// reconstruct a usable token.
const hashPrefixLen = 12

// Input bundles everything the resolver needs beyond the verdict list.
type Input struct {
	Token   string // DV_HOOK_BYPASS, plaintext; empty means no attempt was made
	Reason  string // DV_HOOK_BYPASS_REASON
	User    string
	Files   []string // effective paths of the changes carrying a Block, for the ledger record
	RunID   string
	Now     time.Time
}

// Resolver applies Input against a loaded policy and a ledger store.
type Resolver struct {
	policy *policy.Policy
	store  ledger.Store
}

// New builds a Resolver.
func New(p *policy.Policy, store ledger.Store) *Resolver {
	return &Resolver{policy: p, store: store}
}

// Outcome reports what the resolver did, for the presenter and audit log.
type Outcome struct {
	FreezeAttempted    bool
	FreezeSucceeded    bool
	FreezeDenialReason string
	EmergencyAttempted bool
	EmergencySucceeded bool
	EmergencyDenialReason string
}

// Resolve mutates verdicts in place, clearing every Block that an eligible
// bypass pass can clear, and returns a record of what happened. It is a
// no-op (Input.Token empty, or no Block present) returning a zero Outcome.
func (r *Resolver) Resolve(verdicts []verdict.Verdict, in Input) (Outcome, error) {
	var out Outcome

	if !anyBlock(verdicts) || in.Token == "" {
		return out, nil
	}

	digest := sha256.Sum256([]byte(in.Token))
	fullHex := hex.EncodeToString(digest[:])
	prefix := fullHex[:hashPrefixLen]

	if hasRule(verdicts, verdict.RuleFreeze, verdict.Block) && r.policy.Freeze.Enabled {
		out.FreezeAttempted = true
		ok, denial, err := r.attempt(passConfig{
			scope:         ledger.ScopeFreeze,
			allowedUsers:  r.policy.Freeze.AllowedUsers,
			requireReason: r.policy.Freeze.RequireReason,
			tokens:        r.policy.Freeze.Tokens,
		}, in, fullHex, prefix)
		if err != nil {
			return out, fmt.Errorf("freeze bypass: %w", err)
		}
		out.FreezeSucceeded = ok
		out.FreezeDenialReason = denial
		if ok {
			clearRule(verdicts, verdict.RuleFreeze, "freeze")
		}
	}

	if r.policy.EmergencyBypass.Enabled && hasAnyRule(verdicts, verdict.Block, verdict.RuleDeletionProtected, verdict.RuleLocked, verdict.RuleRestricted) {
		out.EmergencyAttempted = true
		ok, denial, err := r.attempt(passConfig{
			scope:         ledger.ScopeEmergency,
			allowedUsers:  r.policy.EmergencyBypass.AllowedUsers,
			requireReason: r.policy.EmergencyBypass.RequireReason,
			tokens:        r.policy.EmergencyBypass.Tokens,
		}, in, fullHex, prefix)
		if err != nil {
			return out, fmt.Errorf("emergency bypass: %w", err)
		}
		out.EmergencySucceeded = ok
		out.EmergencyDenialReason = denial
		if ok {
			clearRules(verdicts, "emergency", verdict.RuleDeletionProtected, verdict.RuleLocked, verdict.RuleRestricted)
		}
	}

	return out, nil
}

type passConfig struct {
	scope         ledger.Scope
	allowedUsers  []string
	requireReason bool
	tokens        []policy.Token
}

// attempt evaluates the five conditions spec.md §4.5 lists, in order, and
// on full success records the ledger entry (consuming a one-time token,
// or simply appending for a reusable one) before reporting success.
func (r *Resolver) attempt(cfg passConfig, in Input, fullHex, prefix string) (ok bool, denialReason string, err error) {
	if !userListed(cfg.allowedUsers, in.User, r.policy.Options.CaseSensitiveUsers) {
		return false, "user not eligible for this bypass scope", nil
	}
	if cfg.requireReason && strings.TrimSpace(in.Reason) == "" {
		return false, "a reason is required for this bypass scope", nil
	}

	tok, found := matchToken(cfg.tokens, fullHex)
	if !found {
		return false, "token does not match any configured bypass token", nil
	}

	if tok.Expires != "" {
		expires, perr := parseExpiry(tok.Expires)
		if perr != nil {
			return false, "", fmt.Errorf("parse token expiry: %w", perr)
		}
		if !in.Now.Before(expires) {
			return false, "token has expired", nil
		}
	}

	draft := ledger.Record{
		Timestamp:  in.Now,
		User:       in.User,
		Scope:      cfg.scope,
		Label:      tok.Label,
		HashPrefix: prefix,
		Reusable:   tok.Reusable,
		Reason:     in.Reason,
		Files:      in.Files,
		RunID:      in.RunID,
	}

	if tok.Reusable {
		draft.Result = ledger.ResultConsumed
		if err := r.store.Append(draft); err != nil {
			return false, "", fmt.Errorf("write ledger record: %w", err)
		}
		return true, "", nil
	}

	replay, err := r.store.Consume(draft)
	if err != nil {
		return false, "", fmt.Errorf("consume one-time token: %w", err)
	}
	if replay {
		return false, "token already used (one-time token)", nil
	}
	return true, "", nil
}

// parseExpiry is a small indirection so tests can avoid importing config
// (which would create an import cycle were config ever to depend on
// bypass); it duplicates the layout, not the validation logic.
func parseExpiry(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02 15:04:05", s, time.Local)
}

func matchToken(tokens []policy.Token, fullHex string) (policy.Token, bool) {
	for _, t := range tokens {
		if subtle.ConstantTimeCompare([]byte(strings.ToLower(t.SHA256)), []byte(fullHex)) == 1 {
			return t, true
		}
	}
	return policy.Token{}, false
}

func userListed(allowed []string, user string, caseSensitive bool) bool {
	if caseSensitive {
		for _, u := range allowed {
			if u == user {
				return true
			}
		}
		return false
	}
	lower := strings.ToLower(user)
	for _, u := range allowed {
		if strings.ToLower(u) == lower {
			return true
		}
	}
	return false
}

func anyBlock(verdicts []verdict.Verdict) bool {
	for _, v := range verdicts {
		if v.IsBlock() {
			return true
		}
	}
	return false
}

func hasRule(verdicts []verdict.Verdict, rule verdict.Rule, decision verdict.Decision) bool {
	for _, v := range verdicts {
		if v.Rule == rule && v.Decision == decision {
			return true
		}
	}
	return false
}

func hasAnyRule(verdicts []verdict.Verdict, decision verdict.Decision, rules ...verdict.Rule) bool {
	for _, r := range rules {
		if hasRule(verdicts, r, decision) {
			return true
		}
	}
	return false
}

func clearRule(verdicts []verdict.Verdict, rule verdict.Rule, scopeLabel string) {
	for i := range verdicts {
		if verdicts[i].Rule == rule && verdicts[i].IsBlock() {
			verdicts[i].Decision = verdict.Allow
			verdicts[i].Bypassed = scopeLabel
		}
	}
}

func clearRules(verdicts []verdict.Verdict, scopeLabel string, rules ...verdict.Rule) {
	for _, rule := range rules {
		clearRule(verdicts, rule, scopeLabel)
	}
}
