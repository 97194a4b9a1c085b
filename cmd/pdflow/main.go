// Package main provides the entry point for the pdflow CLI.
package main

import (
	"os"

	"github.com/fabworks/pdflow/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
