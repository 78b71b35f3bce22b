// Package config loads and validates the hook policy document.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/dvtools/dv-hooks/internal/domain/policy"
)

const envPrefix = "DV_HOOKS"

// InitViper points a fresh Viper instance at the policy file (an explicit
// path, or the fixed repo-relative default) and wires up environment
// overrides the same way the CLI's other settings are bound.
func InitViper(repoRoot, policyPath string) *viper.Viper {
	v := viper.New()
	if policyPath == "" {
		policyPath = repoRoot + "/" + policy.HookPolicyPath
	}
	v.SetConfigFile(policyPath)
	v.SetConfigType("json")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return v
}

// LoadPolicy reads, defaults, and validates the policy document at
// policyPath (or config/hook_policy.json under repoRoot when empty).
func LoadPolicy(repoRoot, policyPath string) (*policy.Policy, error) {
	v := InitViper(repoRoot, policyPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	var p policy.Policy
	if err := v.Unmarshal(&p); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	SetDefaults(v, &p)

	if err := Validate(&p); err != nil {
		return nil, fmt.Errorf("policy validation failed: %w", err)
	}

	return &p, nil
}

// SetDefaults fills in the policy-wide defaults spec.md §4.1 mandates, and
// normalizes every extension list to lowercase with a leading dot. v.IsSet
// distinguishes a field the policy author left absent from one explicitly
// set to false, so an explicit "false" in the policy JSON is honored rather
// than overwritten by the default.
func SetDefaults(v *viper.Viper, p *policy.Policy) {
	if p.Version == 0 {
		p.Version = 1
	}

	if !v.IsSet("options.case_sensitive_users") {
		p.Options.CaseSensitiveUsers = true
	}
	if !v.IsSet("options.expand_env") {
		p.Options.ExpandEnv = true
	}
	if !v.IsSet("options.treat_patterns_as_absolute_when_starting_with_slash") {
		p.Options.TreatPatternsAsAbsoluteWhenStartingWithSlash = true
	}
	if p.Options.LogPath == "" {
		p.Options.LogPath = "simlog/precommit_access.log"
	}
	if p.Options.UI.MaxFilesPerGroup == 0 {
		p.Options.UI.MaxFilesPerGroup = 25
	}

	p.GlobalBypass.AllowedExtensions = normalizeExtensions(p.GlobalBypass.AllowedExtensions)
	for i := range p.Locked {
		p.Locked[i].AllowedExtensions = normalizeExtensions(p.Locked[i].AllowedExtensions)
	}
	for i := range p.Restricted {
		p.Restricted[i].AllowedExtensions = normalizeExtensions(p.Restricted[i].AllowedExtensions)
	}

	if p.Freeze.Priority == "" {
		p.Freeze.Priority = policy.FreezePriorityOverrideAll
	}
	if p.SmokeTest.Mode == "" {
		p.SmokeTest.Mode = policy.SmokeModeBlock
	}
	if p.SmokeTest.TimeoutSec == 0 {
		p.SmokeTest.TimeoutSec = 120
	}
}

// normalizeExtensions lowercases each entry and ensures a leading dot.
func normalizeExtensions(exts []string) []string {
	out := make([]string, len(exts))
	for i, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out[i] = e
	}
	return out
}
