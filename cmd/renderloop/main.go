// Command renderloop drives simulated root bindings from the terminal.
package main

import (
	"fmt"
	"os"

	"github.com/go-drift/renderloop/cmd/renderloop/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
