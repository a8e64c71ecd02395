package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpfleet/gateway/internal/app"
)

var (
	serveDebug     bool
	serveYolo      bool
	serveConfigDir string
	serveTransport string
	serveHost      string
	servePort      int
	servePublicURL string
	serveTestMode  bool
)

// serveCmd starts the gateway and blocks until signalled.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the aggregating MCP gateway",
	Long: `Starts the gateway: connects to every MCP server named in
config.json, discovers their tools/resources/prompts, and serves the
aggregate back out over the selected transport until interrupted.

--config-path selects the directory holding config.json and presets.yaml
(default: current directory).`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(serveConfigDir, serveDebug, serveYolo, serveTransport, serveHost, servePort, servePublicURL, serveTestMode)

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable verbose logging")
	serveCmd.Flags().BoolVar(&serveYolo, "yolo", false, "Recorded in the app config only; the destructive-tool denylist follows features.yolo in config.json")
	serveCmd.Flags().StringVar(&serveConfigDir, "config-path", ".", "Directory containing config.json and presets.yaml")
	serveCmd.Flags().StringVar(&serveTransport, "transport", "streamable-http", "Inbound transport: stdio, sse, or streamable-http")
	serveCmd.Flags().StringVar(&serveHost, "host", "0.0.0.0", "Bind address for the sse/streamable-http transports")
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Bind port for the sse/streamable-http transports")
	serveCmd.Flags().StringVar(&servePublicURL, "public-url", "http://localhost:8080", "Externally-reachable base URL, used as the OAuth issuer")
	serveCmd.Flags().BoolVar(&serveTestMode, "test-mode", false, "Recorded in the app config only; upstream call timeouts are unchanged")
}
