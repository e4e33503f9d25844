// Package cli provides the command-line interface for CortexDesk
package cli

import (
	"os"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

// Run starts the CLI application
func Run() {
	rootCmd := NewRootCmd()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
