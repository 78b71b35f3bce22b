// Command dv-hooks evaluates staged VCS changes against a declarative
// access-control policy before a commit is allowed to proceed.
package main

import (
	"fmt"
	"os"

	"github.com/dvtools/dv-hooks/cmd/dv-hooks/cmd"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "dv-hooks: fatal: %v\n", r)
			os.Exit(1)
		}
	}()
	cmd.Execute()
}
