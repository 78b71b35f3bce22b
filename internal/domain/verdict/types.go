// Package verdict holds the rule evaluator's per-change output type.
package verdict

import "github.com/dvtools/dv-hooks/internal/domain/change"

// Decision is the terminal outcome for a single change.
type Decision string

const (
	Allow Decision = "Allow"
	Block Decision = "Block"
)

// Rule names the pipeline stage that produced the decision. The stages are
// listed in the order the evaluator checks them (subject to Freeze's
// configurable priority).
type Rule string

const (
	RulePolicyEdit        Rule = "PolicyEdit"
	RuleFreeze            Rule = "Freeze"
	RuleDeletionProtected Rule = "DeletionProtected"
	RuleGlobalExt         Rule = "GlobalExt"
	RuleLocked            Rule = "Locked"
	RuleRestricted        Rule = "Restricted"
	RuleDefault           Rule = "Default"
)

// Bypassed, when non-empty, records which bypass scope cleared an
// originally-Block verdict ("freeze" or "emergency"). The Rule field is
// left untouched so the audit trail still shows what matched.
type Verdict struct {
	Change   change.Change
	Decision Decision
	Rule     Rule
	Detail   string
	Bypassed string
}

// IsBlock reports whether this verdict currently stands as a Block.
func (v Verdict) IsBlock() bool {
	return v.Decision == Block
}
