package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mcpfleet/gateway/internal/errs"
	"github.com/mcpfleet/gateway/internal/inboundauth"
	"github.com/mcpfleet/gateway/pkg/oauth"
)

// oauthEndpoints serves the inbound OAuth 2.1 surface directly against
// inboundauth.Provider rather than delegating to an external identity
// provider: this proxy IS the authorization server for its own bearer
// tokens.
type oauthEndpoints struct {
	provider *inboundauth.Provider
	issuer   string
}

func newOAuthEndpoints(provider *inboundauth.Provider, issuer string) *oauthEndpoints {
	return &oauthEndpoints{provider: provider, issuer: issuer}
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

// serveMetadata implements GET /.well-known/oauth-authorization-server
// (RFC 8414).
func (e *oauthEndpoints) serveMetadata(w http.ResponseWriter, r *http.Request) {
	meta := oauth.Metadata{
		Issuer:                            e.issuer,
		AuthorizationEndpoint:             e.issuer + "/authorize",
		TokenEndpoint:                     e.issuer + "/token",
		RegistrationEndpoint:              e.issuer + "/register",
		ScopesSupported:                   e.provider.AvailableScopes(),
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code"},
		TokenEndpointAuthMethodsSupported: []string{"none"},
		CodeChallengeMethodsSupported:     []string{"S256"},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(meta)
}

// serveRegister implements POST /register, dynamic client registration
// (RFC 7591), a subset covering redirect_uris and client_name only.
func (e *oauthEndpoints) serveRegister(w http.ResponseWriter, r *http.Request) {
	if err := e.provider.CheckRateLimit(clientIP(r)); err != nil {
		writeJSONError(w, err)
		return
	}
	if r.Method != http.MethodPost {
		writeJSONErrorStatus(w, http.StatusMethodNotAllowed, "invalid_request", "POST required")
		return
	}

	var body struct {
		RedirectURIs []string `json:"redirect_uris"`
		ClientName   string   `json:"client_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONErrorStatus(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	reg, err := e.provider.RegisterClient(body.RedirectURIs, body.ClientName)
	if err != nil {
		writeJSONError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(oauth.ClientMetadata{
		ClientID:     reg.ClientID,
		ClientName:   reg.ClientName,
		RedirectURIs: reg.RedirectURIs,
		GrantTypes:   []string{"authorization_code"},
	})
}

// serveAuthorize implements GET /authorize. There is no consent-screen
// rendering: a request that validates is auto-approved and redirected
// with its authorization code immediately, matching a machine client
// rather than a human browser flow.
func (e *oauthEndpoints) serveAuthorize(w http.ResponseWriter, r *http.Request) {
	if err := e.provider.CheckRateLimit(clientIP(r)); err != nil {
		writeJSONError(w, err)
		return
	}

	q := r.URL.Query()
	params := inboundauth.AuthorizeParams{
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               q.Get("scope"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		Resource:            q.Get("resource"),
	}

	code, err := e.provider.Authorize(params)
	if err != nil {
		writeJSONError(w, err)
		return
	}

	redirectURL := params.RedirectURI + "?code=" + code
	if state := q.Get("state"); state != "" {
		redirectURL += "&state=" + state
	}
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// serveToken implements POST /token's authorization_code grant. Refresh
// tokens are not supported.
func (e *oauthEndpoints) serveToken(w http.ResponseWriter, r *http.Request) {
	if err := e.provider.CheckRateLimit(clientIP(r)); err != nil {
		writeJSONError(w, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSONErrorStatus(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	if grantType := r.PostForm.Get("grant_type"); grantType != "authorization_code" {
		writeJSONError(w, &errs.InvalidGrantError{Reason: "unsupported grant_type: " + grantType})
		return
	}

	token, expiresAt, err := e.provider.ExchangeAuthorizationCode(
		r.PostForm.Get("code"),
		r.PostForm.Get("code_verifier"),
		r.PostForm.Get("redirect_uri"),
		r.PostForm.Get("resource"),
	)
	if err != nil {
		writeJSONError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(expiresAt.Sub(time.Now()).Seconds()),
	})
}

// serveRevoke implements POST /revoke: best-effort, always 200.
func (e *oauthEndpoints) serveRevoke(w http.ResponseWriter, r *http.Request) {
	if err := e.provider.CheckRateLimit(clientIP(r)); err != nil {
		writeJSONError(w, err)
		return
	}
	if err := r.ParseForm(); err == nil {
		e.provider.RevokeToken(r.PostForm.Get("token"))
	}
	w.WriteHeader(http.StatusOK)
}
