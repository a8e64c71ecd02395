// Package cmd implements the gatewayd command-line interface: a thin
// cobra wrapper around internal/app, with a SilenceUsage root command,
// version injected at build time via SetVersion, and subcommands
// registered from their own init funcs.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes, semantically distinct for scripting.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

// rootCmd is the base command for the gateway binary.
var rootCmd = &cobra.Command{
	Use:   "gatewayd",
	Short: "Aggregate many MCP servers behind one MCP endpoint",
	Long: `gatewayd is a universal aggregating proxy for the Model Context
Protocol. It connects outbound to a configured set of MCP servers, merges
their tools, resources, and prompts into one addressable capability space,
and serves that aggregate back out over stdio, SSE, or streamable-HTTP.`,
	SilenceUsage: true,
}

// SetVersion injects the build-time version into the root command, called
// from main before Execute.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command and translates a returned error into a
// process exit code.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "gatewayd version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}
