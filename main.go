// Lattice - code dependency graph engine.
//
// Lattice indexes extractor output into a versioned dependency graph,
// enabling fuzzy search, impact analysis, cycle detection, and
// budget-aware context selection.
package main

import (
	"fmt"
	"os"

	"github.com/latticegraph/lattice/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
