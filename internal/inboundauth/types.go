// Package inboundauth implements the inbound OAuth 2.1 Authorization Code
// + PKCE provider: a per-process authorization server issuing
// opaque bearer tokens scoped to tags, backed by the storage.Repository
// TTL contract rather than any external identity provider. It is distinct
// from the outbound OAuth delegation in internal/outbound/transport —
// this direction issues tokens, it does not consume them.
package inboundauth

import (
	"encoding/json"
	"time"

	"github.com/mcpfleet/gateway/internal/tagquery"
)

// TokenPrefix is prepended to every issued access token so bearer tokens
// are recognizable as belonging to this service at a glance.
const TokenPrefix = "mcpg_"

// ScopePrefix is the bijective scope<->tag mapping prefix: scope
// "tag:readonly" corresponds to tag "readonly" and nothing else.
const ScopePrefix = "tag:"

// TagToScope converts a configured tag into its OAuth scope string.
func TagToScope(tag string) string { return ScopePrefix + tag }

// ScopeToTag converts a scope string back into a tag, returning ok=false
// if it is not one of ours (i.e. does not start with ScopePrefix).
func ScopeToTag(scope string) (tag string, ok bool) {
	if len(scope) <= len(ScopePrefix) || scope[:len(ScopePrefix)] != ScopePrefix {
		return "", false
	}
	return scope[len(ScopePrefix):], true
}

// ClientRegistration is a dynamically registered OAuth client
// (stored under auth/clients/<clientId>).
type ClientRegistration struct {
	ClientID     string   `json:"clientId"`
	RedirectURIs []string `json:"redirectUris"`
	ClientName   string   `json:"clientName,omitempty"`
}

// AuthCode is the record stored for an issued authorization code
// (stored under auth/codes/<codeId>). It is deleted on first exchange.
type AuthCode struct {
	ClientID      string   `json:"clientId"`
	RedirectURI   string   `json:"redirectUri"`
	Resource      string   `json:"resource,omitempty"`
	Scopes        []string `json:"scopes"`
	CodeChallenge string   `json:"codeChallenge"`
	Method        string   `json:"method"`
}

// TokenSession is the record stored for an issued access token
// (stored under auth/sessions/<tokenId>).
type TokenSession struct {
	ClientID string    `json:"clientId"`
	Resource string    `json:"resource,omitempty"`
	Scopes   []string  `json:"scopes"`
	Expires  time.Time `json:"expires"`
}

// AuthInfo is what verifyAccessToken returns: the resolved identity and
// scope set a caller presented a bearer token for.
type AuthInfo struct {
	ClientID  string
	Scopes    []string
	ExpiresAt time.Time
	Resource  string
}

// Tags returns the tag filter implied by AuthInfo's scopes: the OR of
// every scope's tag. Non-tag scopes (there are none defined yet) are
// ignored rather than rejected.
func (a AuthInfo) Tags() []string {
	tags := make([]string, 0, len(a.Scopes))
	for _, s := range a.Scopes {
		if tag, ok := ScopeToTag(s); ok {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Expr returns the tag-filter expression a session opened under this
// AuthInfo should be narrowed to: the OR of its granted tags. It returns
// nil for the anonymous, auth-disabled identity, since that identity's
// scopes are a synthetic "every currently configured tag" snapshot, not a
// real grant, and must not hide untagged servers from it.
func (a AuthInfo) Expr() tagquery.Expr {
	if a.ClientID == "anonymous" {
		return nil
	}
	tags := a.Tags()
	if len(tags) == 0 {
		return nil
	}
	children := make(tagquery.Or, 0, len(tags))
	for _, t := range tags {
		children = append(children, tagquery.Tag(t))
	}
	return children
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
