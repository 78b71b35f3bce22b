// Package cmd provides the CLI commands for dv-hooks.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	repoRoot   string
	policyPath string
)

var rootCmd = &cobra.Command{
	Use:   "dv-hooks",
	Short: "Declarative pre-commit access control for design and build repos",
	Long: `dv-hooks evaluates every staged change against a declarative JSON
policy before a commit is allowed: frozen paths, deletion-protected files,
locked directories, and user-restricted areas, with a bypass-token escape
hatch for emergencies.

Installed as a VCS pre-commit hook, "dv-hooks" with no subcommand runs the
decision engine directly and exits non-zero to abort the commit.

Configuration:
  The policy document lives at config/hook_policy.json under the repo
  root by default; override with --policy.

Commands:
  run          Evaluate staged changes and decide whether to allow the commit
  install      Install dv-hooks as the repository's pre-commit hook
  validate     Load and validate the policy document without evaluating changes
  hash-token   Generate the SHA-256 hash for a bypass token
  ledger show  Print the bypass ledger
  ledger reset Archive and clear the bypass ledger
  version      Print version information`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHook(cmd, args)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	rootCmd.PersistentFlags().StringVar(&repoRoot, "repo-root", wd, "repository root (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "path to the policy document (default: <repo-root>/config/hook_policy.json)")
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
