// Command atlas runs the incident and route map sync engine.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/atlas/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
