// Command asyncgraph builds, runs and inspects the built-in sample programs.
package main

import (
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand(newCLI(os.Stdout, os.Stderr))
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
