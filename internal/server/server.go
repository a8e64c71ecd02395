package server

import (
	"context"
	"net/http"
	"os"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mcpfleet/gateway/internal/inboundauth"
	"github.com/mcpfleet/gateway/internal/session"
	"github.com/mcpfleet/gateway/pkg/logging"
)

const logSubsystem = "Server"

// HTTP server timeouts. Only per-call and per-connect deadlines are
// configurable; the listener-level values are fixed.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 0 // streamable-HTTP's GET back-channel is long-lived; no write deadline.
	idleTimeout       = 120 * time.Second
)

// HTTPServer wires the Inbound Session Service's shared MCPServer onto
// the network transports (SSE and streamable-HTTP) plus the inbound
// OAuth 2.1 endpoints, behind one *http.Server.
type HTTPServer struct {
	addr   string
	mux    *http.ServeMux
	server *http.Server
}

// Options configures New.
type Options struct {
	Addr string

	// Transport selects which MCP wire transport is mounted at "/": "sse"
	// for the legacy HTTP+SSE pair, anything else (including the empty
	// string) for streamable-HTTP, the primary transport.
	Transport string

	Sessions     *session.Service
	AuthProvider *inboundauth.Provider

	// OutboundOAuth completes an upstream's OAuth flow from the
	// /oauth/callback/<serverName> redirect; nil disables the route.
	OutboundOAuth OAuthCompleter

	// Issuer is this process's externally-visible base URL, used to
	// build the OAuth discovery document and authorization/token URLs.
	Issuer string
}

// New builds an HTTPServer. It does not start listening; call Start.
func New(opts Options) *HTTPServer {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	oauthEP := newOAuthEndpoints(opts.AuthProvider, opts.Issuer)
	mux.HandleFunc("/.well-known/oauth-authorization-server", oauthEP.serveMetadata)
	mux.HandleFunc("/authorize", oauthEP.serveAuthorize)
	mux.HandleFunc("/token", oauthEP.serveToken)
	mux.HandleFunc("/revoke", oauthEP.serveRevoke)
	mux.HandleFunc("/register", oauthEP.serveRegister)

	if opts.OutboundOAuth != nil {
		mux.HandleFunc("/oauth/callback/", oauthCallbackHandler(opts.OutboundOAuth))
	}

	var mcpHandler http.Handler
	switch opts.Transport {
	case "sse":
		sseServer := mcpserver.NewSSEServer(
			opts.Sessions.MCPServer(),
			mcpserver.WithSSEEndpoint("/sse"),
			mcpserver.WithMessageEndpoint("/message"),
			mcpserver.WithKeepAlive(true),
			mcpserver.WithKeepAliveInterval(30*time.Second),
		)
		mcpHandler = sseServer

	default:
		idManager := newSessionIDManager(opts.Sessions, session.TransportStreamableHTTP)
		streamableServer := mcpserver.NewStreamableHTTPServer(
			opts.Sessions.MCPServer(),
			mcpserver.WithEndpointPath("/mcp"),
			mcpserver.WithSessionIdManager(idManager),
		)
		mcpHandler = streamableServer
	}

	// Bearer auth runs first so the query-filter middleware can narrow the
	// session's filter by the token's granted tags.
	mux.Handle("/", bearerAuthMiddleware(opts.AuthProvider)(queryFilterMiddleware(mcpHandler)))

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	return &HTTPServer{addr: opts.Addr, mux: mux, server: srv}
}

// Start begins listening in a background goroutine; errCh receives the
// first unexpected error, if any.
func (h *HTTPServer) Start(errCh chan<- error) {
	logging.Info(logSubsystem, "listening on %s", h.addr)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
}

// Shutdown gracefully stops the HTTP server.
func (h *HTTPServer) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// RunStdio runs the shared MCPServer over stdin/stdout until ctx is
// cancelled, for the single process-wide stdio session. There is
// no bearer-auth or query-filter middleware on this path: stdio sessions
// are implicitly trusted, the same way a local CLI invocation is.
func RunStdio(ctx context.Context, sessions *session.Service) error {
	stdioServer := mcpserver.NewStdioServer(sessions.MCPServer())
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}
