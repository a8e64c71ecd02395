package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcpfleet/gateway/internal/config"
	"github.com/mcpfleet/gateway/internal/pidfile"
	"github.com/mcpfleet/gateway/internal/server"
	"github.com/mcpfleet/gateway/internal/storage"
	"github.com/mcpfleet/gateway/pkg/logging"
)

// runServer connects every configured upstream, starts the inbound
// transport named by cfg.Transport, and blocks until ctx is cancelled or
// a SIGINT/SIGTERM arrives.
func runServer(ctx context.Context, cfg *Config, services *Services) error {
	services.Connect(ctx, cfg.Snapshot)
	services.Sessions.Start(ctx, server.SessionHooksOption(services.Sessions))

	if err := pidfile.Write(cfg.ConfigDir, pidfile.Info{
		URL:       cfg.PublicURL,
		Port:      cfg.Port,
		Host:      cfg.Host,
		Transport: describeTransport(cfg),
	}); err != nil {
		logging.Warn("Bootstrap", "failed to write pid file: %v", err)
	}
	defer func() {
		if err := pidfile.Remove(cfg.ConfigDir); err != nil {
			logging.Warn("Bootstrap", "failed to remove pid file: %v", err)
		}
	}()

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	repos := append(services.StorageRepositories(), sessionSweepRepository{services}, cacheSweepRepository{services})
	go storage.RunSweeper(sweepCtx, DefaultStorageSweepInterval, repos...)

	watcher := config.NewWatcher(config.WatcherConfig{
		Path:     cfg.ConfigPath,
		Debounce: time.Duration(cfg.Snapshot.ConfigReload.DebounceMs) * time.Millisecond,
		OnReload: func(snap *config.Snapshot) { services.Reload.Reload(ctx, snap) },
	})
	if err := watcher.Start(); err != nil {
		logging.Warn("Bootstrap", "configuration live-reload unavailable: %v", err)
	}
	defer watcher.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	switch cfg.Transport {
	case "stdio":
		logging.Info("Bootstrap", "serving MCP over stdio")
		errCh := make(chan error, 1)
		go func() { errCh <- server.RunStdio(runCtx, services.Sessions) }()
		select {
		case <-sigCh:
			logging.Info("Bootstrap", "signal received, shutting down")
			cancel()
			return nil
		case err := <-errCh:
			return err
		}

	default:
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		httpServer := server.New(server.Options{
			Addr:          addr,
			Transport:     cfg.Transport,
			Sessions:      services.Sessions,
			AuthProvider:  services.AuthProvider,
			OutboundOAuth: services,
			Issuer:        cfg.PublicURL,
		})
		services.Transport = httpServer

		errCh := make(chan error, 1)
		httpServer.Start(errCh)
		logging.Info("Bootstrap", "gateway listening on %s (public url %s)", addr, cfg.PublicURL)

		select {
		case <-sigCh:
			logging.Info("Bootstrap", "signal received, shutting down")
		case err := <-errCh:
			logging.Error("Bootstrap", err, "HTTP server failed")
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

// sessionSweepRepository adapts the session registry's own TTL sweep to
// storage.Repository's Sweep-only usage in storage.RunSweeper, so one
// ticker drives every TTL-bearing store in the process.
type sessionSweepRepository struct {
	services *Services
}

func (r sessionSweepRepository) Get(string) ([]byte, bool)          { return nil, false }
func (r sessionSweepRepository) Save(string, []byte, time.Duration) {}
func (r sessionSweepRepository) Delete(string)                      {}
func (r sessionSweepRepository) Sweep() int                         { return r.services.SessionRegistrySweeper()() }

// cacheSweepRepository joins the aggregator's schema and filter cache
// sweeps onto the same ticker.
type cacheSweepRepository struct {
	services *Services
}

func (r cacheSweepRepository) Get(string) ([]byte, bool)          { return nil, false }
func (r cacheSweepRepository) Save(string, []byte, time.Duration) {}
func (r cacheSweepRepository) Delete(string)                      {}
func (r cacheSweepRepository) Sweep() int {
	r.services.Aggregator.SchemaCache().Sweep(DefaultCacheTTL)
	return r.services.Aggregator.FilterCache().Sweep(DefaultCacheTTL)
}
