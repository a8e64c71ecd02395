package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/mcpfleet/gateway/internal/config"
	"github.com/mcpfleet/gateway/pkg/oauth"
)

// VerifierPutter records the PKCE verifier generated for an authorization
// attempt so a later Exchanger can recover it. MemoryVerifierStore
// satisfies both this and VerifierStore.
type VerifierPutter interface {
	Put(serverName, verifier string)
}

// Authorizer turns the bare issuer URL mapAuthError recovers from an
// upstream's 401 challenge into a complete authorization URL: it discovers
// the issuer's metadata, mints a fresh PKCE challenge, records the
// verifier for Exchanger to consume later, and assembles the redirect
// using the pkg/oauth helpers.
type Authorizer struct {
	client     *oauth.Client
	verifiers  VerifierPutter
	redirectFn func(serverName string) string
}

// NewAuthorizer builds an Authorizer. redirectFn resolves a server name to
// the gateway's own OAuth callback URL for that upstream.
func NewAuthorizer(verifiers VerifierPutter, redirectFn func(string) string) *Authorizer {
	return &Authorizer{
		client:     oauth.NewClient(),
		verifiers:  verifiers,
		redirectFn: redirectFn,
	}
}

// BuildAuthorizationURL satisfies outbound.OAuthAuthorizer.
func (a *Authorizer) BuildAuthorizationURL(ctx context.Context, serverName, issuer string, params config.MCPServerParams) (string, error) {
	if issuer == "" {
		return "", fmt.Errorf("no issuer recovered from %s's 401 challenge", serverName)
	}

	metadata, err := a.client.DiscoverMetadata(ctx, issuer)
	if err != nil {
		return "", fmt.Errorf("discovering OAuth metadata for %s: %w", serverName, err)
	}

	pkce, err := oauth.GeneratePKCE()
	if err != nil {
		return "", fmt.Errorf("generating PKCE challenge for %s: %w", serverName, err)
	}
	a.verifiers.Put(serverName, pkce.CodeVerifier)

	state, err := oauth.GenerateState()
	if err != nil {
		return "", fmt.Errorf("generating OAuth state for %s: %w", serverName, err)
	}

	var clientID string
	var scope string
	if params.OAuth != nil {
		clientID = params.OAuth.ClientID
		scope = strings.Join(params.OAuth.Scopes, " ")
	}

	redirectURI := ""
	if a.redirectFn != nil {
		redirectURI = a.redirectFn(serverName)
	}

	return a.client.BuildAuthorizationURL(metadata.AuthorizationEndpoint, clientID, redirectURI, state, scope, pkce)
}
