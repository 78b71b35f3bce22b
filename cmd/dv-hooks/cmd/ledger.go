package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dvtools/dv-hooks/internal/adapter/outbound/ledgerstore"
	"github.com/dvtools/dv-hooks/internal/service/hook"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect or reset the bypass ledger",
}

var ledgerResetForce bool

var ledgerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print every record in the bypass ledger",
	RunE:  runLedgerShow,
}

var ledgerResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Archive the bypass ledger and start a fresh, empty one",
	Long: `reset moves the current ledger aside as bypass_ledger.json.bak
(overwriting any prior backup) and leaves no ledger file in its place — the
next bypass attempt recreates it. This does not affect policy-level
decisions made by already-recorded bypasses; it only clears the replay
history for one-time tokens.`,
	RunE: runLedgerReset,
}

func init() {
	ledgerResetCmd.Flags().BoolVar(&ledgerResetForce, "force", false, "skip the confirmation prompt")
	ledgerCmd.AddCommand(ledgerShowCmd, ledgerResetCmd)
	rootCmd.AddCommand(ledgerCmd)
}

func ledgerPath() (string, error) {
	gitDir, err := resolveGitDir(repoRoot)
	if err != nil {
		return "", err
	}
	return filepath.Join(gitDir, hook.LedgerRelPath), nil
}

func runLedgerShow(cmd *cobra.Command, args []string) error {
	path, err := ledgerPath()
	if err != nil {
		return err
	}

	store := ledgerstore.New(path, newLogger())
	records, err := store.Load()
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "ledger is empty")
		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func runLedgerReset(cmd *cobra.Command, args []string) error {
	path, err := ledgerPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "nothing to reset — no ledger file found.")
		return nil
	}

	if !ledgerResetForce {
		fmt.Fprintf(os.Stderr, "This will archive %s and start an empty ledger. Proceed? [y/N] ", path)
		var answer string
		fmt.Scanln(&answer) //nolint:errcheck // interactive prompt, error irrelevant
		if answer != "y" && answer != "Y" {
			fmt.Fprintln(os.Stderr, "aborted.")
			return nil
		}
	}

	backup := path + ".bak"
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}
	if err := os.WriteFile(backup, data, 0600); err != nil {
		return fmt.Errorf("write ledger backup: %w", err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove ledger: %w", err)
	}

	fmt.Fprintf(os.Stderr, "ledger archived to %s; reset complete.\n", backup)
	return nil
}
