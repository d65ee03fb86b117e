// Command braid records workflow provenance and cascades invalidations.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/braid/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Command errors are already reported in the requested format
		if !cli.IsReported(err) {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		os.Exit(cli.GetExitCode(err))
	}
}
