// Command stinger is the spec §6.3 command-line surface: a thin cobra
// wrapper that exercises the same pipeline package the HTTP adapter
// uses, grounded on the teacher's command registration pattern.
package main

import (
	"fmt"
	"os"

	"github.com/stinger-run/stinger/cmd/stinger/commands"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := commands.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "stinger: %v\n", err)
		if exitErr, ok := err.(commands.ExitCoder); ok {
			return exitErr.ExitCode()
		}
		return 2
	}
	return 0
}
