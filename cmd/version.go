package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpfleet/gateway/internal/pidfile"
	"github.com/mcpfleet/gateway/internal/session"
)

// versionCmd prints the CLI's own build-time version plus, if a gateway
// process's PID file names one still alive, that instance's listen
// address.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the gateway CLI and server version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "gatewayd version %s\n", rootCmd.Version)

		info, ok := pidfile.ReadLive(versionConfigDir)
		if !ok {
			fmt.Fprintf(cmd.OutOrStdout(), "\nServer: (not running)\n")
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nServer: %s (%s) running at pid %d, %s\n",
			session.ServerName, session.ServerVersion, info.PID, info.URL)
	},
}

var versionConfigDir string

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().StringVar(&versionConfigDir, "config-path", ".", "Directory containing the running gateway's PID file")
}
