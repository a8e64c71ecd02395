package server

import (
	"context"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mcpfleet/gateway/internal/session"
	"github.com/mcpfleet/gateway/pkg/logging"
)

// pendingOptionsKey is the context key the query-filter middleware uses to
// stash a request's parsed OpenOptions, read back out by the
// OnRegisterSession hook once the SDK has assigned the session its id.
type pendingOptionsKey struct{}

func contextWithPendingOptions(ctx context.Context, opts session.OpenOptions) context.Context {
	return context.WithValue(ctx, pendingOptionsKey{}, opts)
}

func pendingOptionsFromContext(ctx context.Context) (session.OpenOptions, bool) {
	opts, ok := ctx.Value(pendingOptionsKey{}).(session.OpenOptions)
	return opts, ok
}

// sessionIDManager bridges the Inbound Session Service's OpenSession/
// DeleteSession lifecycle to mark3labs/mcp-go's SessionIdManager
// interface, in two phases: Generate() runs inside the SDK's initialize
// handling with no request context available, so it opens the session
// permissively (tagquery.Any); the OnRegisterSession hook then narrows
// the filter from the query string via Service.Refine once the request —
// and therefore its context — is available.
type sessionIDManager struct {
	svc       *session.Service
	transport session.Transport
}

func newSessionIDManager(svc *session.Service, tr session.Transport) *sessionIDManager {
	return &sessionIDManager{svc: svc, transport: tr}
}

// Generate implements mcpserver.SessionIdManager.
func (m *sessionIDManager) Generate() string {
	sess, err := m.svc.OpenSession(context.Background(), m.transport, session.OpenOptions{FilterMode: session.FilterModeNone})
	if err != nil {
		logging.Warn("Server", "opening session failed: %v", err)
		return ""
	}
	return sess.ID
}

// Validate implements mcpserver.SessionIdManager: unknown ids are reported
// as an error per the interface contract, not as isTerminated.
func (m *sessionIDManager) Validate(sessionID string) (isTerminated bool, err error) {
	if _, ok := m.svc.Session(sessionID); !ok {
		if _, restoreErr := m.svc.RestoreSession(context.Background(), sessionID); restoreErr != nil {
			return false, restoreErr
		}
	}
	return false, nil
}

// Terminate implements mcpserver.SessionIdManager.
func (m *sessionIDManager) Terminate(sessionID string) (isNotAllowed bool, err error) {
	m.svc.DeleteSession(sessionID)
	return false, nil
}

// SessionHooksOption builds the narrow-on-register / close-on-unregister
// half of the two-phase pattern as a mcpserver.ServerOption, for passing
// into session.Service.Start before the shared MCPServer is constructed:
// the SDK only invokes hooks registered on the MCPServer itself, not ones
// passed to the SSE/streamable-HTTP transport constructors.
func SessionHooksOption(svc *session.Service) mcpserver.ServerOption {
	hooks := &mcpserver.Hooks{}

	hooks.AddOnRegisterSession(func(ctx context.Context, clientSession mcpserver.ClientSession) {
		opts, ok := pendingOptionsFromContext(ctx)
		if !ok {
			return
		}
		if err := svc.Refine(clientSession.SessionID(), opts); err != nil {
			logging.Warn("Server", "refining session %s filter failed: %v", clientSession.SessionID(), err)
		}
	})

	hooks.AddOnUnregisterSession(func(_ context.Context, clientSession mcpserver.ClientSession) {
		svc.CloseSession(clientSession.SessionID(), false)
	})

	return mcpserver.WithHooks(hooks)
}

// queryFilterMiddleware parses the filter query parameters on every request
// and stashes them in context for the OnRegisterSession hook to consume;
// a parse failure (mutually-exclusive filters, an invalid tag name) is
// rejected with 400 before the MCP handler ever sees the request.
func queryFilterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		opts, err := parseQueryFilter(r)
		if err != nil {
			writeJSONError(w, err)
			return
		}
		if info, ok := authInfoFromContext(r.Context()); ok {
			opts.AuthExpr = info.Expr()
		}
		r = r.WithContext(contextWithPendingOptions(r.Context(), opts))
		next.ServeHTTP(w, r)
	})
}
