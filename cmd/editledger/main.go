// Command editledger records, inspects, and reverses edits to tracked entities.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/editledger/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
