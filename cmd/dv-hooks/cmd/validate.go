package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dvtools/dv-hooks/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the policy document without evaluating any changes",
	Long: `validate reads the policy document, applies defaults, and runs
schema validation — the same steps "run" performs before touching the
staged change set. Useful in CI to catch a malformed policy before it
reaches a developer's pre-commit hook.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	p, err := config.LoadPolicy(repoRoot, policyPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "policy is valid: version=%d locked=%d restricted=%d deletion_protected=%d\n",
		p.Version, len(p.Locked), len(p.Restricted), len(p.DeletionProtected))
	return nil
}
