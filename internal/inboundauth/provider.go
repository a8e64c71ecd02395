package inboundauth

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mcpfleet/gateway/internal/errs"
	"github.com/mcpfleet/gateway/internal/storage"
	"github.com/mcpfleet/gateway/pkg/oauth"
)

const (
	defaultAuthCodeTTL    = 60 * time.Second
	defaultAccessTokenTTL = 24 * time.Hour
	defaultClientTTL      = 30 * 24 * time.Hour
)

// Settings is the provider's runtime configuration, re-read on every call
// so a config reload takes effect immediately without restarting the
// provider (tags especially: the scope set tracks the live snapshot).
type Settings struct {
	Enabled           bool
	AvailableTags     func() []string
	AccessTokenTTLSec int
	AuthCodeTTLSec    int
}

// Provider is the per-process OAuth 2.1 authorization server.
// It never talks to an external identity provider: it is the
// authorization server, minting and verifying its own opaque tokens.
type Provider struct {
	clients     storage.Repository
	codes       storage.Repository
	sessions    storage.Repository
	settings    Settings
	rateLimiter *RateLimiter
}

// NewProvider constructs a Provider over three storage areas. Passing the
// same storage.Repository for more than one area is valid as long as key
// prefixes (auth/clients, auth/codes, auth/sessions) don't collide, which
// they cannot by construction.
func NewProvider(clients, codes, sessions storage.Repository, settings Settings, limiter *RateLimiter) *Provider {
	return &Provider{clients: clients, codes: codes, sessions: sessions, settings: settings, rateLimiter: limiter}
}

func (p *Provider) authCodeTTL() time.Duration {
	if p.settings.AuthCodeTTLSec > 0 {
		d := time.Duration(p.settings.AuthCodeTTLSec) * time.Second
		if d > defaultAuthCodeTTL {
			d = defaultAuthCodeTTL
		}
		return d
	}
	return defaultAuthCodeTTL
}

func (p *Provider) accessTokenTTL() time.Duration {
	if p.settings.AccessTokenTTLSec > 0 {
		return time.Duration(p.settings.AccessTokenTTLSec) * time.Second
	}
	return defaultAccessTokenTTL
}

func (p *Provider) availableTags() []string {
	if p.settings.AvailableTags == nil {
		return nil
	}
	return p.settings.AvailableTags()
}

// AvailableScopes returns the scope list advertised in the discovery
// document: tag:<tag> for every currently configured tag.
func (p *Provider) AvailableScopes() []string {
	tags := p.availableTags()
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, TagToScope(t))
	}
	sort.Strings(out)
	return out
}

// CheckRateLimit applies the sliding-window limiter to clientIP for one of
// the authorize/token/revoke/register endpoints. HTTP handlers call this
// before doing any other work.
func (p *Provider) CheckRateLimit(clientIP string) error {
	if p.rateLimiter == nil {
		return nil
	}
	if allowed, retryAfter := p.rateLimiter.Allow(clientIP); !allowed {
		return &errs.RateLimitedError{RetryAfterSeconds: retryAfter}
	}
	return nil
}

// RegisterClient implements the dynamic client registration endpoint
// (POST /register). Registrations only ever expire by storage TTL (30d);
// a client that goes quiet simply has to re-register.
func (p *Provider) RegisterClient(redirectURIs []string, clientName string) (ClientRegistration, error) {
	if len(redirectURIs) == 0 {
		return ClientRegistration{}, &errs.InvalidRequestError{Reason: "redirect_uris is required"}
	}
	reg := ClientRegistration{
		ClientID:     uuid.NewString(),
		RedirectURIs: redirectURIs,
		ClientName:   clientName,
	}
	p.clients.Save("auth/clients/"+reg.ClientID, mustMarshal(reg), defaultClientTTL)
	return reg, nil
}

func (p *Provider) lookupClient(clientID string) (ClientRegistration, bool) {
	raw, ok := p.clients.Get("auth/clients/" + clientID)
	if !ok {
		return ClientRegistration{}, false
	}
	var reg ClientRegistration
	if err := json.Unmarshal(raw, &reg); err != nil {
		return ClientRegistration{}, false
	}
	return reg, true
}

func validRedirect(reg ClientRegistration, redirectURI string) bool {
	for _, u := range reg.RedirectURIs {
		if u == redirectURI {
			return true
		}
	}
	return false
}

// AuthorizeParams carries the parsed query parameters of GET /authorize.
type AuthorizeParams struct {
	ClientID            string
	RedirectURI         string
	Scope               string // space-separated scope list
	CodeChallenge       string
	CodeChallengeMethod string
	Resource            string
}

// Authorize validates an authorization request and, on success, mints an
// authorization code. There is no consent-screen rendering here —
// approval is implicit once the request validates, matching a
// machine-to-machine MCP client rather than a human browser flow.
func (p *Provider) Authorize(params AuthorizeParams) (code string, err error) {
	reg, ok := p.lookupClient(params.ClientID)
	if !ok {
		return "", &errs.InvalidClientError{Reason: fmt.Sprintf("unknown client %q", params.ClientID)}
	}
	if !validRedirect(reg, params.RedirectURI) {
		return "", &errs.InvalidRequestError{Reason: "redirect_uri does not match registration"}
	}
	if params.CodeChallengeMethod != "S256" {
		return "", &errs.InvalidRequestError{Reason: "code_challenge_method must be S256"}
	}

	scopes, err := p.validateScopes(params.Scope)
	if err != nil {
		return "", err
	}

	codeID := uuid.NewString()
	rec := AuthCode{
		ClientID:      params.ClientID,
		RedirectURI:   params.RedirectURI,
		Resource:      params.Resource,
		Scopes:        scopes,
		CodeChallenge: params.CodeChallenge,
		Method:        params.CodeChallengeMethod,
	}
	p.codes.Save("auth/codes/"+codeID, mustMarshal(rec), p.authCodeTTL())
	return codeID, nil
}

// validateScopes checks every requested scope is `tag:<tag>` for a
// currently configured tag; an empty scope string requests every tag.
func (p *Provider) validateScopes(scope string) ([]string, error) {
	available := make(map[string]struct{})
	for _, t := range p.availableTags() {
		available[t] = struct{}{}
	}

	if scope == "" {
		out := make([]string, 0, len(available))
		for t := range available {
			out = append(out, TagToScope(t))
		}
		sort.Strings(out)
		return out, nil
	}

	requested := splitScope(scope)
	out := make([]string, 0, len(requested))
	for _, s := range requested {
		tag, ok := ScopeToTag(s)
		if !ok {
			return nil, &errs.InvalidScopeError{Reason: fmt.Sprintf("scope %q is not of the form tag:<tag>", s)}
		}
		if _, known := available[tag]; !known {
			return nil, &errs.InvalidScopeError{Reason: fmt.Sprintf("tag %q is not configured", tag)}
		}
		out = append(out, s)
	}
	return out, nil
}

func splitScope(scope string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(scope); i++ {
		if i == len(scope) || scope[i] == ' ' {
			if i > start {
				out = append(out, scope[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// ExchangeAuthorizationCode implements POST /token's authorization_code
// grant. The code is deleted unconditionally once read so it can never be
// replayed, even if a later check in this call fails.
func (p *Provider) ExchangeAuthorizationCode(code, verifier, redirectURI, resource string) (token string, expiresAt time.Time, err error) {
	raw, ok := p.codes.Get("auth/codes/" + code)
	if !ok {
		return "", time.Time{}, &errs.InvalidGrantError{Reason: "unknown or expired authorization code"}
	}
	p.codes.Delete("auth/codes/" + code)

	var rec AuthCode
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", time.Time{}, &errs.InvalidGrantError{Reason: "corrupt authorization code record"}
	}

	if rec.RedirectURI != redirectURI {
		return "", time.Time{}, &errs.InvalidGrantError{Reason: "redirect_uri does not match the authorization request"}
	}
	if resource != "" && rec.Resource != "" && resource != rec.Resource {
		return "", time.Time{}, &errs.InvalidGrantError{Reason: "resource does not match the authorization request"}
	}
	if !oauth.VerifyPKCE(verifier, rec.CodeChallenge, rec.Method) {
		return "", time.Time{}, &errs.InvalidGrantError{Reason: "PKCE verification failed"}
	}

	tokenID := uuid.NewString()
	ttl := p.accessTokenTTL()
	expiresAt = time.Now().Add(ttl)
	session := TokenSession{
		ClientID: rec.ClientID,
		Resource: rec.Resource,
		Scopes:   rec.Scopes,
		Expires:  expiresAt,
	}
	p.sessions.Save("auth/sessions/"+tokenID, mustMarshal(session), ttl)

	return TokenPrefix + tokenID, expiresAt, nil
}

// VerifyAccessToken resolves a bearer token into its AuthInfo. When the
// provider is globally disabled, every token (including none presented)
// resolves to an anonymous, all-tags identity without a storage lookup —
// the deployment simply isn't running with auth turned on.
func (p *Provider) VerifyAccessToken(token string) (AuthInfo, error) {
	if !p.settings.Enabled {
		scopes := make([]string, 0)
		for _, t := range p.availableTags() {
			scopes = append(scopes, TagToScope(t))
		}
		return AuthInfo{ClientID: "anonymous", Scopes: scopes}, nil
	}

	if len(token) <= len(TokenPrefix) || token[:len(TokenPrefix)] != TokenPrefix {
		return AuthInfo{}, &errs.InvalidRequestError{Reason: "malformed bearer token"}
	}
	tokenID := token[len(TokenPrefix):]

	raw, ok := p.sessions.Get("auth/sessions/" + tokenID)
	if !ok {
		return AuthInfo{}, &errs.InvalidGrantError{Reason: "unknown or expired access token"}
	}
	var session TokenSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return AuthInfo{}, &errs.InvalidGrantError{Reason: "corrupt session record"}
	}
	if time.Now().After(session.Expires) {
		p.sessions.Delete("auth/sessions/" + tokenID)
		return AuthInfo{}, &errs.InvalidGrantError{Reason: "access token expired"}
	}

	return AuthInfo{
		ClientID:  session.ClientID,
		Scopes:    session.Scopes,
		ExpiresAt: session.Expires,
		Resource:  session.Resource,
	}, nil
}

// RevokeToken implements POST /revoke: best-effort, always succeeds even
// if the token was already gone.
func (p *Provider) RevokeToken(token string) {
	if len(token) <= len(TokenPrefix) {
		return
	}
	p.sessions.Delete("auth/sessions/" + token[len(TokenPrefix):])
}
