// Command petadopt manages a pet adoption registry backed by a SQLite
// journal.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/petadopt/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
