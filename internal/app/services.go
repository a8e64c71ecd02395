package app

import (
	"context"

	"github.com/mcpfleet/gateway/internal/capability"
	"github.com/mcpfleet/gateway/internal/config"
	"github.com/mcpfleet/gateway/internal/inboundauth"
	"github.com/mcpfleet/gateway/internal/outbound"
	"github.com/mcpfleet/gateway/internal/outbound/transport"
	"github.com/mcpfleet/gateway/internal/reload"
	"github.com/mcpfleet/gateway/internal/resolver"
	"github.com/mcpfleet/gateway/internal/server"
	"github.com/mcpfleet/gateway/internal/session"
	"github.com/mcpfleet/gateway/internal/storage"
	"github.com/mcpfleet/gateway/internal/tagquery"
	"github.com/mcpfleet/gateway/internal/template"
	"github.com/mcpfleet/gateway/pkg/logging"
)

// proxyName is this proxy's own advertised server name, used by the
// Outbound Manager's circular-dependency guard and as the MCP server
// name returned in the initialize handshake (internal/session).
const proxyName = session.ServerName

// Services holds every constructed component plus the inbound HTTP/stdio
// surface, wired together in dependency order by InitializeServices.
type Services struct {
	Outbounds    *outbound.Manager
	Aggregator   *capability.Aggregator
	Resolver     *resolver.Resolver
	Templates    *template.Factory
	Sessions     *session.Service
	Reload       *reload.Engine
	Presets      *tagquery.PresetStore
	AuthProvider *inboundauth.Provider

	clientStore  storage.Repository
	codeStore    storage.Repository
	authStore    storage.Repository
	sessionStore storage.Repository

	Transport *server.HTTPServer
}

// InitializeServices constructs every core component against cfg.Snapshot
// (already loaded by NewApplication). It connects no upstream and starts
// no transport: the initial connect-all + capability refresh is
// Services.Connect, and listening happens in Application.Run.
func InitializeServices(cfg *Config) (*Services, error) {
	snap := cfg.Snapshot

	verifiers := outbound.NewMemoryVerifierStore()
	redirectFn := func(serverName string) string {
		return cfg.PublicURL + "/oauth/callback/" + serverName
	}
	authorizer := transport.NewAuthorizer(verifiers, redirectFn)
	exchanger := transport.NewExchanger(func(name string) (config.MCPServerParams, bool) {
		p, ok := snap.MCPServers[name]
		return p, ok
	}, verifiers, redirectFn)

	outbounds := outbound.NewManager(outbound.Config{
		ProxyName:             proxyName,
		MaxConcurrentConnects: 8,
		Exchanger:             exchanger,
		Authorizer:            authorizer,
	})

	aggregator := capability.New(capability.Config{
		Outbounds:         outbounds,
		MaxConcurrentPoll: 8,
		SchemaCacheSize:   1024,
		FilterCacheSize:   4096,
	})

	templates := template.NewFactory(outbounds)

	resolv := resolver.New(outbounds, templates)

	sessionStore := storage.NewMemoryRepository()
	clientStore := storage.NewMemoryRepository()
	codeStore := storage.NewMemoryRepository()
	authSessionStore := storage.NewMemoryRepository()

	presets := tagquery.NewPresetStore(cfg.ConfigDir)

	registry := session.NewRegistry(sessionStore, DefaultSessionTTL)

	reloadEngine := reload.New(reload.Config{
		Outbounds:          outbounds,
		Aggregator:         aggregator,
		BreakerThreshold:   3,
		BreakerCooldown:    300,
		MaxConcurrentApply: 8,
	}, snap)

	sessions := session.NewService(session.Config{
		Aggregator: aggregator,
		Resolver:   resolv,
		Outbounds:  outbounds,
		Templates:  templates,
		Snapshot:   reloadEngine,
		Store:      registry,
		Presets:    presets,
	})

	// The reload Engine notifies sessions of capability changes; this is
	// a wiring-time back-reference rather than a constructor field since
	// reload.New must run before the Notifier (the Session Service) it
	// notifies can exist, and Go has no forward-declared interface
	// satisfaction without one of the two taking the other as a setter.
	reloadEngine.SetNotifier(sessions)

	authProvider := inboundauth.NewProvider(
		clientStore, codeStore, authSessionStore,
		inboundauth.Settings{
			Enabled:           snap.Auth.Enabled,
			AvailableTags:     func() []string { return reloadEngine.Active().AllTags() },
			AccessTokenTTLSec: snap.Auth.AccessTokenTTLSec,
			AuthCodeTTLSec:    snap.Auth.AuthCodeTTLSec,
		},
		inboundauth.NewRateLimiter(snap.RateLimits.WindowMs, snap.RateLimits.Max),
	)

	svcs := &Services{
		Outbounds:    outbounds,
		Aggregator:   aggregator,
		Resolver:     resolv,
		Templates:    templates,
		Sessions:     sessions,
		Reload:       reloadEngine,
		Presets:      presets,
		AuthProvider: authProvider,
		clientStore:  clientStore,
		codeStore:    codeStore,
		authStore:    authSessionStore,
		sessionStore: sessionStore,
	}

	return svcs, nil
}

// Connect performs the initial connect-all against the loaded snapshot
// and the first capability refresh.
func (s *Services) Connect(ctx context.Context, snap *config.Snapshot) {
	logging.Info("Bootstrap", "connecting %d configured upstream(s)", len(snap.MCPServers))
	s.Outbounds.CreateAll(ctx, snap.MCPServers)
	s.Aggregator.RefreshAll(ctx)
	s.Aggregator.UpdateCapabilities()
}

// CompleteUpstreamOAuth finishes the AwaitingOAuth flow for the named
// upstream, refreshes the aggregated capability surface, and notifies
// attached sessions if the upstream's tools became visible.
func (s *Services) CompleteUpstreamOAuth(ctx context.Context, serverName, code string) error {
	if err := s.Outbounds.FinishOAuth(ctx, serverName, code); err != nil {
		return err
	}
	s.Aggregator.RefreshAll(ctx)
	if cs := s.Aggregator.UpdateCapabilities(); cs.HasChanges {
		s.Sessions.BroadcastCapabilityChange(cs)
	}
	return nil
}

// StorageRepositories returns every TTL-bearing repository this process
// owns, for the background sweeper.
func (s *Services) StorageRepositories() []storage.Repository {
	return []storage.Repository{s.clientStore, s.codeStore, s.authStore, s.sessionStore}
}

// SessionRegistrySweeper exposes the session registry's own sweep so it
// can join the same background ticker as the storage repositories.
func (s *Services) SessionRegistrySweeper() func() int {
	return func() int { return s.Sessions.SweepExpired() }
}

// describeTransport normalizes cfg.Transport to its effective value, since
// an unset flag means the streamable-HTTP default.
func describeTransport(cfg *Config) string {
	if cfg.Transport == "" {
		return "streamable-http"
	}
	return cfg.Transport
}
