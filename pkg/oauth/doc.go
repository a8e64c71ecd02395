// Package oauth provides shared OAuth 2.1 types and utilities used on both
// sides of the gateway.
//
// It is imported by the inbound authorization server (internal/inboundauth,
// internal/server), the outbound OAuth-capable transports
// (internal/outbound/transport) and the session service's auth://status
// resource (internal/session).
//
// # Core Components
//
//   - Token: OAuth token representation with expiry checking
//   - Metadata: OAuth/OIDC server metadata (RFC 8414)
//   - AuthChallenge: Parsed WWW-Authenticate header information
//   - PKCE: Proof Key for Code Exchange generation (RFC 7636)
//   - Client: OAuth client for metadata discovery and token operations
//
// # Usage
//
//	import "github.com/mcpfleet/gateway/pkg/oauth"
//
//	challenge, err := oauth.ParseWWWAuthenticate(header)
//	pkce, err := oauth.GeneratePKCE()
//
//	client := oauth.NewClient(oauth.WithHTTPClient(httpClient), oauth.WithLogger(logger))
//	metadata, err := client.DiscoverMetadata(ctx, issuer)
package oauth
