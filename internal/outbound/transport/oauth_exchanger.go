package transport

import (
	"context"
	"fmt"

	"github.com/mcpfleet/gateway/internal/config"
	"github.com/mcpfleet/gateway/pkg/oauth"
)

// VerifierStore looks up the PKCE verifier that was generated when the
// authorization URL for a given server was first issued. Implementations
// are expected to be single-use: once read, the verifier should be
// forgotten so a code cannot be replayed against a stale verifier.
type VerifierStore interface {
	TakeVerifier(serverName string) (verifier string, ok bool)
}

// Exchanger implements outbound.OAuthExchanger against a real authorization
// server, using pkg/oauth.Client for metadata discovery and
// token exchange. It turns an authorization code plus its matching PKCE
// verifier into the bearer header subsequent upstream requests should
// carry.
type Exchanger struct {
	client     *oauth.Client
	servers    func(name string) (config.MCPServerParams, bool)
	verifiers  VerifierStore
	redirectFn func(serverName string) string
}

// NewExchanger builds an Exchanger. servers resolves a server name to its
// configured params (for the issuer/clientId/redirect lookup); verifiers
// recovers the PKCE verifier recorded when the authorization URL for that
// server was built.
func NewExchanger(servers func(string) (config.MCPServerParams, bool), verifiers VerifierStore, redirectFn func(string) string) *Exchanger {
	return &Exchanger{
		client:     oauth.NewClient(),
		servers:    servers,
		verifiers:  verifiers,
		redirectFn: redirectFn,
	}
}

// Exchange satisfies outbound.OAuthExchanger.
func (e *Exchanger) Exchange(ctx context.Context, serverName, authorizationCode string) (map[string]string, error) {
	params, ok := e.servers(serverName)
	if !ok || params.OAuth == nil {
		return nil, fmt.Errorf("server %s has no OAuth configuration", serverName)
	}

	metadata, err := e.client.DiscoverMetadata(ctx, params.URL)
	if err != nil {
		return nil, fmt.Errorf("discovering OAuth metadata for %s: %w", serverName, err)
	}

	verifier := ""
	if e.verifiers != nil {
		verifier, _ = e.verifiers.TakeVerifier(serverName)
	}

	redirectURI := ""
	if e.redirectFn != nil {
		redirectURI = e.redirectFn(serverName)
	}

	token, err := e.client.ExchangeCode(ctx, metadata.TokenEndpoint, authorizationCode, redirectURI, params.OAuth.ClientID, verifier)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code for %s: %w", serverName, err)
	}

	return map[string]string{
		"Authorization": "Bearer " + token.AccessToken,
	}, nil
}
