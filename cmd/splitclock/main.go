// Package main is the entry point for the splitclock CLI.
package main

import (
	"os"

	"github.com/splitclock/splitclock/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
