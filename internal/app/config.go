// Package app bootstraps the gateway process: it loads the configuration
// document, constructs every core component in dependency order (Outbound
// Manager, Capability Aggregator, Template Factory, Connection Resolver,
// Inbound Session Service, Reload Engine, inbound OAuth provider), wires
// the inbound transports, and runs until signalled to stop. It is the
// one place that knows how every other package fits together, so main.go
// and cmd/ stay thin.
package app

import (
	"time"

	"github.com/mcpfleet/gateway/internal/config"
)

// Config holds the process-level settings resolved from CLI flags before
// any component is constructed.
type Config struct {
	// ConfigDir is the directory containing config.json, presets.yaml, and
	// the PID file. Defaults to the current directory.
	ConfigDir string

	// ConfigPath is the configuration document path, defaulting to
	// <ConfigDir>/config.json.
	ConfigPath string

	// Debug enables verbose logging.
	Debug bool

	// Yolo records the --yolo flag. No component reads it: the
	// destructive-tool denylist follows features.yolo in the configuration
	// document.
	Yolo bool

	// Transport selects the inbound transport: stdio, sse, or
	// streamable-http (default).
	Transport string

	// Host/Port are the HTTP bind address for the sse/streamable-http
	// transports.
	Host string
	Port int

	// PublicURL is this process's externally-reachable base URL, used as
	// the OAuth issuer and as the outbound authorization redirect target.
	PublicURL string

	// TestMode records the --test-mode flag. No component reads it:
	// upstream call deadlines are the same with or without it, and
	// config.TestModeRequestTimeout is not applied anywhere.
	TestMode bool

	// Snapshot is populated by Bootstrap once the configuration document
	// has been loaded.
	Snapshot *config.Snapshot
}

// NewConfig builds the process configuration from resolved CLI flags.
func NewConfig(configDir string, debug, yolo bool, transport, host string, port int, publicURL string, testMode bool) *Config {
	return &Config{
		ConfigDir:  configDir,
		ConfigPath: configDir + "/config.json",
		Debug:      debug,
		Yolo:       yolo,
		Transport:  transport,
		Host:       host,
		Port:       port,
		PublicURL:  publicURL,
		TestMode:   testMode,
	}
}

// DefaultSessionTTL is used when the config document does not otherwise
// constrain it.
const DefaultSessionTTL = 24 * time.Hour

// DefaultStorageSweepInterval is the sweep cadence for every TTL-bearing
// storage.Repository and the inbound rate limiter.
const DefaultStorageSweepInterval = 60 * time.Second

// DefaultCacheTTL bounds how long an untouched schema-cache or
// filter-cache entry survives between sweeps.
const DefaultCacheTTL = 30 * time.Minute
