package app

import (
	"context"
	"fmt"
	"os"

	"github.com/mcpfleet/gateway/internal/config"
	"github.com/mcpfleet/gateway/pkg/logging"
)

// Application bootstraps and runs the gateway process end to end, in two
// phases: a construction phase (NewApplication) that loads configuration
// and wires every component, and an execution phase (Run) that starts
// the inbound transport and blocks until signalled.
type Application struct {
	config   *Config
	services *Services
}

// NewApplication loads cfg.ConfigPath and constructs every core component
// against the loaded snapshot. The returned Application has not yet
// connected to any upstream or started listening; Run does both.
func NewApplication(cfg *Config) (*Application, error) {
	logLevel := logging.LevelInfo
	if cfg.Debug {
		logLevel = logging.LevelDebug
	}
	logging.Init(logLevel, os.Stderr)

	snapshot, err := config.Load(cfg.ConfigPath)
	if err != nil {
		logging.Error("Bootstrap", err, "failed to load configuration from %s", cfg.ConfigPath)
		return nil, fmt.Errorf("load configuration %s: %w", cfg.ConfigPath, err)
	}
	cfg.Snapshot = snapshot
	logging.Info("Bootstrap", "loaded configuration from %s (%d upstream server(s), transport=%s)",
		cfg.ConfigPath, len(snapshot.MCPServers), describeTransport(cfg))

	services, err := InitializeServices(cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "failed to initialize services")
		return nil, fmt.Errorf("initialize services: %w", err)
	}

	return &Application{config: cfg, services: services}, nil
}

// Run connects every configured upstream, starts the inbound transport and
// background maintenance loops, and blocks until ctx is cancelled or a
// termination signal arrives, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	return runServer(ctx, a.config, a.services)
}
