package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var installForce bool

const hookShimMarker = "# installed-by: dv-hooks"

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install dv-hooks as the repository's pre-commit hook",
	Long: `install writes a small shell shim to .git/hooks/pre-commit that
invokes "dv-hooks run". It refuses to overwrite a pre-existing hook that
it did not itself install, unless --force is given.`,
	RunE: runInstall,
}

func init() {
	installCmd.Flags().BoolVar(&installForce, "force", false, "overwrite an existing pre-commit hook")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	gitDir, err := resolveGitDir(repoRoot)
	if err != nil {
		return err
	}
	hooksDir := filepath.Join(gitDir, "hooks")
	if err := os.MkdirAll(hooksDir, 0755); err != nil {
		return fmt.Errorf("create hooks directory: %w", err)
	}

	hookPath := filepath.Join(hooksDir, "pre-commit")
	if existing, err := os.ReadFile(hookPath); err == nil {
		if !strings.Contains(string(existing), hookShimMarker) && !installForce {
			return fmt.Errorf("%s already exists and was not installed by dv-hooks; rerun with --force to overwrite", hookPath)
		}
	}

	selfExe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve dv-hooks executable path: %w", err)
	}

	shim := fmt.Sprintf("#!/bin/sh\n%s\nexec %q run\n", hookShimMarker, selfExe)
	if err := os.WriteFile(hookPath, []byte(shim), 0755); err != nil {
		return fmt.Errorf("write pre-commit hook: %w", err)
	}

	fmt.Fprintf(os.Stdout, "installed pre-commit hook at %s\n", hookPath)
	return nil
}
