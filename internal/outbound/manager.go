// Package outbound implements the Outbound Connection Manager: it owns every
// live binding to an upstream MCP server, drives each through its lifecycle
// state machine (Connecting/Connected/AwaitingOAuth/Error/Disconnected),
// retries transient failures with backoff, and guards against a proxy
// connecting to itself.
package outbound

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mcpfleet/gateway/internal/config"
	"github.com/mcpfleet/gateway/internal/errs"
	"github.com/mcpfleet/gateway/internal/outbound/transport"
	"github.com/mcpfleet/gateway/pkg/logging"
	"github.com/mcpfleet/gateway/pkg/parallel"
)

const logSubsystem = "OutboundManager"

// OAuthExchanger exchanges an authorization code for the headers that
// should be merged into a connection's params to authenticate subsequent
// requests. It is the hook finishOAuth calls before rebuilding the
// transport; callers that never configure inbound-triggered outbound OAuth
// can leave this nil.
type OAuthExchanger interface {
	Exchange(ctx context.Context, serverName, authorizationCode string) (headers map[string]string, err error)
}

// OAuthAuthorizer turns the bare issuer recovered from an upstream's 401
// challenge into a complete, PKCE-bearing authorization URL. Callers that
// never configure inbound-triggered outbound OAuth can leave this nil, in
// which case AwaitingOAuth connections expose the bare issuer URL instead.
type OAuthAuthorizer interface {
	BuildAuthorizationURL(ctx context.Context, serverName, issuer string, params config.MCPServerParams) (authorizationURL string, err error)
}

type entry struct {
	conn      *Connection
	client    transport.Client
	params    config.MCPServerParams
	isNetwork bool
	cancel    context.CancelFunc
}

// Manager owns every OutboundConnection. All mutation of connection state
// happens under mu; callers only ever observe state through Snapshot or
// GetByName.
type Manager struct {
	mu          sync.RWMutex
	entries     map[string]*entry // keyed by Key.String()
	proxyName   string
	retry       RetryPolicy
	maxInFlight int
	exchanger   OAuthExchanger
	authorizer  OAuthAuthorizer
}

// Config configures a Manager.
type Config struct {
	// ProxyName is this proxy's own advertised server name, used for the
	// circular-dependency guard.
	ProxyName string
	Retry     RetryPolicy
	// MaxConcurrentConnects bounds createAll's fan-out.
	MaxConcurrentConnects int
	Exchanger             OAuthExchanger
	Authorizer            OAuthAuthorizer
}

// NewManager constructs an empty Manager.
func NewManager(cfg Config) *Manager {
	return &Manager{
		entries:     make(map[string]*entry),
		proxyName:   cfg.ProxyName,
		retry:       cfg.Retry.withDefaults(),
		maxInFlight: cfg.MaxConcurrentConnects,
		exchanger:   cfg.Exchanger,
		authorizer:  cfg.Authorizer,
	}
}

// CreateAll connects every enabled entry in servers concurrently, at most
// maxInFlight in flight, and returns the resulting connections keyed by
// their connectionKey string. Individual connect failures are recorded on
// their Connection (status Error) rather than aborting the batch.
func (m *Manager) CreateAll(ctx context.Context, servers map[string]config.MCPServerParams) map[string]*Connection {
	type item struct {
		name   string
		params config.MCPServerParams
	}

	items := make([]item, 0, len(servers))
	for name, params := range servers {
		if params.Disabled {
			continue
		}
		items = append(items, item{name: name, params: params})
	}

	results, _ := parallel.Run(ctx, items, m.maxInFlight,
		func(ctx context.Context, it item) (*Connection, error) {
			return m.CreateOne(ctx, it.name, it.params, CreateOptions{})
		},
		&parallel.Events[item, *Connection]{
			ItemComplete: func(r parallel.ItemResult[item, *Connection]) {
				if r.Err != nil {
					logging.Warn(logSubsystem, "connect %q failed: %v", r.Input.name, r.Err)
				}
			},
		},
	)

	out := make(map[string]*Connection, len(results))
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		out[e.conn.Key.String()] = e.conn
	}
	return out
}

// CreateOne connects a single upstream and registers it under its
// allocated Key. If a connection already exists under that key it is
// returned unchanged: CreateOne is not a reconnect operation, Restart is.
func (m *Manager) CreateOne(ctx context.Context, name string, params config.MCPServerParams, opts CreateOptions) (*Connection, error) {
	key := allocateKey(name, params, opts)
	keyStr := key.String()

	m.mu.Lock()
	if existing, ok := m.entries[keyStr]; ok {
		m.mu.Unlock()
		return existing.conn, nil
	}
	connCtx, cancel := context.WithCancel(context.Background())
	e := &entry{
		conn: &Connection{
			Name:   name,
			Key:    key,
			Status: StatusConnecting,
			Tags:   params.Tags,
		},
		params:    params,
		isNetwork: params.IsNetwork(),
		cancel:    cancel,
	}
	m.entries[keyStr] = e
	m.mu.Unlock()

	go m.connectLoop(connCtx, e)

	return e.conn, nil
}

// connectLoop drives a single connection's Connecting state through retry
// until it either reaches Connected, AwaitingOAuth, or exhausts its retry
// budget and settles in Error.
func (m *Manager) connectLoop(ctx context.Context, e *entry) {
	for attempt := 1; attempt <= m.retry.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return
		}

		err := m.attemptConnect(ctx, e)
		if err == nil {
			return
		}

		var authErr *transport.AuthRequiredError
		if isAuthRequired(err, &authErr) {
			authURL := authErr.AuthorizationURL
			if m.authorizer != nil {
				built, buildErr := m.authorizer.BuildAuthorizationURL(ctx, e.conn.Name, authErr.AuthorizationURL, e.params)
				if buildErr != nil {
					logging.Warn(logSubsystem, "building authorization url for %q: %v", e.conn.Name, buildErr)
				} else {
					authURL = built
				}
			}
			m.mu.Lock()
			e.conn.Status = StatusAwaitingOAuth
			e.conn.AuthorizationURL = authURL
			e.conn.LastError = err
			m.mu.Unlock()
			return // never auto-retry OAuth
		}

		if errs.IsCircularDependency(err) {
			m.mu.Lock()
			e.conn.Status = StatusError
			e.conn.LastError = err
			m.mu.Unlock()
			return // not a transient failure, no point retrying
		}

		m.mu.Lock()
		e.conn.LastError = err
		e.conn.Status = StatusError
		m.mu.Unlock()

		if attempt == m.retry.MaxAttempts {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.retry.delay(attempt)):
		}
	}
}

func isAuthRequired(err error, out **transport.AuthRequiredError) bool {
	ae, ok := err.(*transport.AuthRequiredError)
	if ok {
		*out = ae
	}
	return ok
}

// attemptConnect makes one connection attempt, populating the connection's
// capabilities on success and applying the circular-dependency guard.
func (m *Manager) attemptConnect(ctx context.Context, e *entry) error {
	m.mu.Lock()
	e.conn.Status = StatusConnecting
	m.mu.Unlock()

	cli, err := transport.New(e.params)
	if err != nil {
		return &errs.ClientConnectionError{ServerName: e.conn.Name, Cause: err}
	}

	connectCtx, cancel := context.WithTimeout(ctx, e.params.ConnectionTimeout(15*time.Second))
	defer cancel()

	result, err := cli.Initialize(connectCtx)
	if err != nil {
		if authErr, ok := err.(*transport.AuthRequiredError); ok {
			return authErr
		}
		return &errs.ClientConnectionError{ServerName: e.conn.Name, Cause: err}
	}

	if result != nil && result.ServerInfo.Name == m.proxyName && m.proxyName != "" {
		cli.Close()
		return &errs.CircularDependencyError{ServerName: e.conn.Name}
	}

	caps, instructions := m.fetchCapabilities(ctx, cli)

	m.mu.Lock()
	e.client = cli
	e.conn.Status = StatusConnected
	e.conn.Capabilities = caps
	e.conn.Instructions = instructions
	e.conn.LastConnected = time.Now()
	e.conn.LastError = nil
	e.conn.AuthorizationURL = ""
	m.mu.Unlock()

	return nil
}

// fetchCapabilities lists tools/resources/prompts from a freshly-connected
// upstream. Any one of these three failing is tolerated (not every
// upstream implements all three): an empty result is used in its place.
func (m *Manager) fetchCapabilities(ctx context.Context, cli transport.Client) (Capabilities, string) {
	var caps Capabilities

	if tools, err := cli.ListTools(ctx); err == nil {
		caps.Tools = tools
	}
	if resources, err := cli.ListResources(ctx); err == nil {
		caps.Resources = resources
	}
	if prompts, err := cli.ListPrompts(ctx); err == nil {
		caps.Prompts = prompts
	}

	return caps, ""
}

// RemoveOne tears down and forgets the connection at key. It is a no-op if
// no connection is registered under that key.
func (m *Manager) RemoveOne(key string) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.entries, key)
	m.mu.Unlock()

	e.cancel()
	if e.client != nil {
		e.client.Close()
	}
}

// Restart tears down the connection at key (if present) and reconnects
// using newParams, reusing the same key.
func (m *Manager) Restart(ctx context.Context, key string, newParams config.MCPServerParams) (*Connection, error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if ok {
		delete(m.entries, key)
	}
	m.mu.Unlock()

	if ok {
		e.cancel()
		if e.client != nil {
			e.client.Close()
		}
	}

	parsed := ParseKey(key)
	if ok {
		// The entry's own Key knows whether its suffix is a hash or a
		// session ID; ParseKey alone cannot tell them apart.
		parsed = e.conn.Key
	}
	opts := CreateOptions{}
	if parsed.SessionID != "" {
		opts = CreateOptions{IsTemplate: true, SessionID: parsed.SessionID}
	} else if parsed.Hash != "" {
		opts = CreateOptions{IsTemplate: true}
	}

	return m.CreateOne(ctx, parsed.Name, newParams, opts)
}

// GetByName resolves name to a connection, applying the resolution order: a
// caller-specific (per-client) connection for sessionID if one exists,
// otherwise any shareable template-hash connection for name, otherwise the
// static connection for name.
func (m *Manager) GetByName(name, sessionID string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if sessionID != "" {
		if e, ok := m.entries[TemplateSessionKey(name, sessionID).String()]; ok {
			return e.conn, true
		}
	}

	for _, e := range m.entries {
		if e.conn.Key.Name == name && e.conn.Key.Hash != "" {
			return e.conn, true
		}
	}

	if e, ok := m.entries[StaticKey(name).String()]; ok {
		return e.conn, true
	}

	return nil, false
}

// FinishOAuth completes the AwaitingOAuth flow for the connection at key:
// it exchanges authorizationCode for headers via the configured
// OAuthExchanger, merges them into the stored params, and reconnects.
func (m *Manager) FinishOAuth(ctx context.Context, key, authorizationCode string) error {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("no connection registered for key %q", key)
	}
	if !e.isNetwork {
		m.mu.Unlock()
		return &errs.UnsupportedTransportError{Transport: string(e.params.Type), Operation: "finishOAuth"}
	}
	params := e.params
	name := e.conn.Name
	m.mu.Unlock()

	if m.exchanger == nil {
		return fmt.Errorf("no OAuth exchanger configured for %q", name)
	}

	headers, err := m.exchanger.Exchange(ctx, name, authorizationCode)
	if err != nil {
		return fmt.Errorf("exchange authorization code for %q: %w", name, err)
	}

	merged := make(map[string]string, len(params.Headers)+len(headers))
	for k, v := range params.Headers {
		merged[k] = v
	}
	for k, v := range headers {
		merged[k] = v
	}
	params.Headers = merged

	m.mu.Lock()
	e.params = params
	m.mu.Unlock()

	return m.attemptConnect(ctx, e)
}

// Snapshot returns a read-only copy of every registered connection, keyed
// by its connectionKey string.
func (m *Manager) Snapshot() map[string]*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*Connection, len(m.entries))
	for k, e := range m.entries {
		c := *e.conn
		out[k] = &c
	}
	return out
}

// Client returns the live transport.Client for key, or false if the
// connection isn't Connected.
func (m *Manager) Client(key string) (transport.Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok || e.client == nil || e.conn.Status != StatusConnected {
		return nil, false
	}
	return e.client, true
}
