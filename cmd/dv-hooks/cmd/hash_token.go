package cmd

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token [token]",
	Short: "Generate the SHA-256 hash for a bypass token",
	Long: `Generate the SHA-256 hash of a bypass token for use in a policy
document's freeze.tokens or emergency_bypass.tokens list.

The output format is "sha256:<hex>"; the policy's "sha256" field expects
just the hex digest, so leave out the "sha256:" prefix when pasting it.

Example:
  dv-hooks hash-token "my-freeze-token"
  # Output: sha256:0f7f697a...

The raw token never needs to be stored anywhere but the person presenting
it via DV_HOOK_BYPASS; only its hash goes into the policy file. Prefer an
environment variable over a literal argument to avoid it landing in shell
history:
  dv-hooks hash-token "$MY_TOKEN"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		hash := sha256.Sum256([]byte(args[0]))
		fmt.Printf("sha256:%s\n", hex.EncodeToString(hash[:]))
	},
}

func init() {
	rootCmd.AddCommand(hashTokenCmd)
}
