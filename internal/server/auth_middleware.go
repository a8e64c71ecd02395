package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/mcpfleet/gateway/internal/inboundauth"
)

type authInfoKey struct{}

func contextWithAuthInfo(ctx context.Context, info inboundauth.AuthInfo) context.Context {
	return context.WithValue(ctx, authInfoKey{}, info)
}

// authInfoFromContext returns the bearer token's resolved identity, or the
// zero value if none was ever set (never true once bearerAuthMiddleware has
// run, since the anonymous/auth-disabled identity is a non-error result).
func authInfoFromContext(ctx context.Context) (inboundauth.AuthInfo, bool) {
	info, ok := ctx.Value(authInfoKey{}).(inboundauth.AuthInfo)
	return info, ok
}

// bearerAuthMiddleware enforces inbound authentication: every MCP
// request (streamable-HTTP or SSE) must carry a bearer token that
// VerifyAccessToken accepts. When the provider is globally disabled,
// VerifyAccessToken itself returns the anonymous all-tags identity for any
// (or no) token, so this middleware is unconditionally mounted rather than
// toggled by config.
func bearerAuthMiddleware(provider *inboundauth.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			info, err := provider.VerifyAccessToken(token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="mcp-gateway"`)
				writeJSONError(w, err)
				return
			}
			r = r.WithContext(contextWithAuthInfo(r.Context(), info))
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return h[len(prefix):]
	}
	return ""
}
