// Package main is the entry point for dsmark.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/dsmark/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
