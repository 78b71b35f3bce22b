// Package policy contains the domain types that make up a hook policy
// document: the declarative rules the evaluator applies to every staged
// change.
package policy

// Token is a hashed bypass secret. The raw secret is never stored; only its
// SHA-256 hex digest is, so a leaked policy file does not leak usable
// credentials.
type Token struct {
	Label    string `mapstructure:"label" json:"label" validate:"required"`
	SHA256   string `mapstructure:"sha256" json:"sha256" validate:"required,len=64,hexadecimal"`
	Reusable bool   `mapstructure:"reusable" json:"reusable"`
	// Expires is a local wall-clock timestamp "YYYY-MM-DD HH:MM:SS". Empty
	// means the token never expires.
	Expires string `mapstructure:"expires" json:"expires,omitempty" validate:"omitempty,hooktimestamp"`
}

// Options holds the small set of policy-wide toggles that change how
// patterns and user identities are compared.
type Options struct {
	CaseSensitiveUsers                         bool   `mapstructure:"case_sensitive_users" json:"case_sensitive_users"`
	ExpandEnv                                   bool   `mapstructure:"expand_env" json:"expand_env"`
	TreatPatternsAsAbsoluteWhenStartingWithSlash bool  `mapstructure:"treat_patterns_as_absolute_when_starting_with_slash" json:"treat_patterns_as_absolute_when_starting_with_slash"`
	LogPath                                     string `mapstructure:"log_path" json:"log_path"`
	UI                                          UIOptions `mapstructure:"ui" json:"ui"`
}

// UIOptions controls the cosmetic shape of the result presenter's report.
// None of these fields may influence a verdict.
type UIOptions struct {
	MaxFilesPerGroup int `mapstructure:"max_files_per_group" json:"max_files_per_group"`
}

// GlobalBypass lists extensions allowed for non-deletion changes ahead of
// the Locked and Restricted rules. PolicyEdit and DeletionProtected are
// checked first and still win, as does Freeze under the default
// override_all priority.
type GlobalBypass struct {
	AllowedExtensions []string `mapstructure:"allowed_extensions" json:"allowed_extensions"`
}

// LockedEntry locks a set of path patterns closed except for an optional
// per-entry extension allowlist.
type LockedEntry struct {
	Name              string   `mapstructure:"name" json:"name,omitempty"`
	Paths             []string `mapstructure:"paths" json:"paths" validate:"required,min=1"`
	AllowedExtensions []string `mapstructure:"allowed_extensions" json:"allowed_extensions,omitempty"`
}

// RestrictedEntry grants a set of path patterns to a specific user list,
// with an optional per-entry extension carve-out for everyone else.
type RestrictedEntry struct {
	Name              string   `mapstructure:"name" json:"name,omitempty"`
	Paths             []string `mapstructure:"paths" json:"paths" validate:"required,min=1"`
	AllowedUsers      []string `mapstructure:"allowed_users" json:"allowed_users,omitempty"`
	AllowedExtensions []string `mapstructure:"allowed_extensions" json:"allowed_extensions,omitempty"`
}

// EmergencyBypass is the second, broader of the two bypass scopes: it can
// clear DeletionProtected, Locked, and Restricted blocks (never Freeze or
// PolicyEdit).
type EmergencyBypass struct {
	Enabled       bool    `mapstructure:"enabled" json:"enabled"`
	AllowedUsers  []string `mapstructure:"allowed_users" json:"allowed_users,omitempty"`
	RequireReason bool    `mapstructure:"require_reason" json:"require_reason"`
	Tokens        []Token `mapstructure:"tokens" json:"tokens,omitempty" validate:"dive"`
}

// FreezeWindow is a (possibly open-ended) local-time interval during which
// the listed paths are immutable except via freeze bypass.
type FreezeWindow struct {
	From  string   `mapstructure:"from" json:"from,omitempty" validate:"omitempty,hooktimestamp"`
	To    string   `mapstructure:"to" json:"to,omitempty" validate:"omitempty,hooktimestamp"`
	Paths []string `mapstructure:"paths" json:"paths" validate:"required,min=1"`
}

// FreezePriority controls whether the Freeze rule is checked before
// DeletionProtected ("override_all", the default) or after Restricted.
type FreezePriority string

const (
	FreezePriorityOverrideAll FreezePriority = "override_all"
	FreezePriorityAfterRestricted FreezePriority = "after_restricted"
)

// Freeze is the time- or toggle-scoped immutability override.
type Freeze struct {
	Enabled       bool           `mapstructure:"enabled" json:"enabled"`
	Branch        string         `mapstructure:"branch" json:"branch,omitempty"`
	Windows       []FreezeWindow `mapstructure:"windows" json:"windows,omitempty" validate:"dive"`
	AllowedUsers  []string       `mapstructure:"allowed_users" json:"allowed_users,omitempty"`
	RequireReason bool           `mapstructure:"require_reason" json:"require_reason"`
	Tokens        []Token        `mapstructure:"tokens" json:"tokens,omitempty" validate:"dive"`
	Priority      FreezePriority `mapstructure:"priority" json:"priority,omitempty" validate:"omitempty,oneof=override_all after_restricted"`
}

// SmokeMode decides whether a smoke-gate failure blocks the commit or is
// merely recorded.
type SmokeMode string

const (
	SmokeModeWarn  SmokeMode = "warn"
	SmokeModeBlock SmokeMode = "block"
)

// SmokeTest configures the optional post-decision validation stage.
type SmokeTest struct {
	Enabled          bool      `mapstructure:"enabled" json:"enabled"`
	Mode             SmokeMode `mapstructure:"mode" json:"mode,omitempty" validate:"omitempty,oneof=warn block"`
	TimeoutSec       int       `mapstructure:"timeout_sec" json:"timeout_sec,omitempty"`
	Shell            string    `mapstructure:"shell" json:"shell,omitempty" validate:"omitempty,oneof=csh sh"`
	SetupScript      string    `mapstructure:"setup_script" json:"setup_script,omitempty"`
	PathsCompileElab []string  `mapstructure:"paths_compile_elab" json:"paths_compile_elab,omitempty"`
	CmdsCompileElab  [][]string `mapstructure:"cmds_compile_elab" json:"cmds_compile_elab,omitempty"`
	SWHeaderGlobs    []string  `mapstructure:"sw_header_globs" json:"sw_header_globs,omitempty"`
	CmdsSW           [][]string `mapstructure:"cmds_sw" json:"cmds_sw,omitempty"`
}

// Policy is the full, immutable-within-a-run declarative document loaded
// from config/hook_policy.json.
type Policy struct {
	Version           int               `mapstructure:"version" json:"version"`
	ConfigAdmins      []string          `mapstructure:"config_admins" json:"config_admins,omitempty"`
	Options           Options           `mapstructure:"options" json:"options"`
	GlobalBypass      GlobalBypass      `mapstructure:"global_bypass" json:"global_bypass"`
	Locked            []LockedEntry     `mapstructure:"locked" json:"locked,omitempty" validate:"dive"`
	Restricted        []RestrictedEntry `mapstructure:"restricted" json:"restricted,omitempty" validate:"dive"`
	DeletionProtected []string          `mapstructure:"deletion_protected" json:"deletion_protected,omitempty"`
	EmergencyBypass   EmergencyBypass   `mapstructure:"emergency_bypass" json:"emergency_bypass"`
	Freeze            Freeze            `mapstructure:"freeze" json:"freeze"`
	SmokeTest         SmokeTest         `mapstructure:"smoke_test" json:"smoke_test"`
}

// HookPolicyPath is the fixed repo-relative location the loader reads.
const HookPolicyPath = "config/hook_policy.json"
