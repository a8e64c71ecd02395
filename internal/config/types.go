// Package config defines the on-disk configuration document:
// MCPServerParams, the ConfigSnapshot it resolves into, validation, a JSON
// loader, and an fsnotify-driven debounced watcher for hot reload.
package config

import "time"

// TransportKind is the upstream transport an MCPServerParams configures.
type TransportKind string

const (
	TransportStdio          TransportKind = "stdio"
	TransportSSE            TransportKind = "sse"
	TransportHTTP           TransportKind = "http"
	TransportStreamableHTTP TransportKind = "streamable-http"
)

// TemplateOptions controls per-session factory behavior for an
// mcpTemplates entry. Exactly one of Shareable/PerClient is
// normally set; if neither is set, the factory treats the template as
// PerClient.
type TemplateOptions struct {
	Shareable bool `json:"shareable,omitempty"`
	PerClient bool `json:"perClient,omitempty"`
}

// OAuthConfig is the optional outbound OAuth configuration attached to a
// network-transport MCPServerParams.
type OAuthConfig struct {
	ClientID     string   `json:"clientId,omitempty"`
	ClientSecret string   `json:"clientSecret,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
}

// MCPServerParams is the configured upstream definition. It is
// used for both static entries (mcpServers) and template entries
// (mcpTemplates); templates additionally carry `{{…}}` placeholders in
// their string-valued leaves.
type MCPServerParams struct {
	Type TransportKind `json:"type"`

	// stdio fields.
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`

	// network fields.
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	OAuth   *OAuthConfig      `json:"oauth,omitempty"`

	Tags          []string         `json:"tags,omitempty"`
	Disabled      bool             `json:"disabled,omitempty"`
	RestartOnExit bool             `json:"restartOnExit,omitempty"`
	Template      *TemplateOptions `json:"template,omitempty"`

	ConnectionTimeoutMs int `json:"connectionTimeout,omitempty"`
	RequestTimeoutMs    int `json:"requestTimeout,omitempty"`
}

// ConnectionTimeout returns the configured connect timeout, falling back to
// a transport-appropriate default when unset.
func (p MCPServerParams) ConnectionTimeout(def time.Duration) time.Duration {
	if p.ConnectionTimeoutMs <= 0 {
		return def
	}
	return time.Duration(p.ConnectionTimeoutMs) * time.Millisecond
}

// RequestTimeout returns the configured per-call timeout, defaulting to
// DefaultRequestTimeout when unset.
func (p MCPServerParams) RequestTimeout() time.Duration {
	if p.RequestTimeoutMs <= 0 {
		return DefaultRequestTimeout
	}
	return time.Duration(p.RequestTimeoutMs) * time.Millisecond
}

// IsNetwork reports whether p is configured for a network transport.
func (p MCPServerParams) IsNetwork() bool {
	return p.Type == TransportSSE || p.Type == TransportHTTP || p.Type == TransportStreamableHTTP
}

// IsStdio reports whether p is configured for the stdio transport.
func (p MCPServerParams) IsStdio() bool {
	return p.Type == TransportStdio
}

// DefaultRequestTimeout is the default per-call deadline.
const DefaultRequestTimeout = 15 * time.Second

// TestModeRequestTimeout is the reduced deadline for test mode.
const TestModeRequestTimeout = 500 * time.Millisecond

// FailureMode is the templateSettings.failureMode value. No component
// reads it: whichever mode is set, reload keeps the previous template set
// when a changed template fails validation, and session attach skips a
// template that fails to render.
type FailureMode string

const (
	FailureModeGraceful FailureMode = "graceful"
	FailureModeStrict   FailureMode = "strict"
)

// TemplateSettings is the `templateSettings` block of the config document.
type TemplateSettings struct {
	ValidateOnReload bool        `json:"validateOnReload,omitempty"`
	FailureMode      FailureMode `json:"failureMode,omitempty"`
	CacheContext     bool        `json:"cacheContext,omitempty"`
}

// Features toggles optional behavior, e.g. the meta-tool façade.
type Features struct {
	LazyLoading bool `json:"lazyLoading,omitempty"`
	Pagination  bool `json:"pagination,omitempty"`

	// DestructiveTools names tools the aggregator refuses to invoke
	// through tool_invoke unless Yolo is set.
	DestructiveTools []string `json:"destructiveTools,omitempty"`
	Yolo             bool     `json:"yolo,omitempty"`
}

// RateLimitSettings configures the sliding-window limiter applied
// to the inbound OAuth endpoints.
type RateLimitSettings struct {
	WindowMs int `json:"windowMs,omitempty"`
	Max      int `json:"max,omitempty"`
}

// AuthSettings is the top-level `auth` block: whether the inbound OAuth
// provider is enabled, and token lifetimes.
type AuthSettings struct {
	Enabled           bool `json:"enabled,omitempty"`
	AccessTokenTTLSec int  `json:"accessTokenTtlSeconds,omitempty"`
	AuthCodeTTLSec    int  `json:"authCodeTtlSeconds,omitempty"`
}

// ConfigReloadSettings controls the fsnotify-driven watcher.
type ConfigReloadSettings struct {
	DebounceMs int `json:"debounceMs,omitempty"`
}

// DefaultDebounceMs is the default file-write debounce.
const DefaultDebounceMs = 100

// Document is the literal shape of the on-disk JSON file.
type Document struct {
	Version          string                     `json:"version,omitempty"`
	MCPServers       map[string]MCPServerParams `json:"mcpServers,omitempty"`
	MCPTemplates     map[string]MCPServerParams `json:"mcpTemplates,omitempty"`
	TemplateSettings TemplateSettings           `json:"templateSettings,omitempty"`
	Features         Features                   `json:"features,omitempty"`
	RateLimits       RateLimitSettings          `json:"rateLimits,omitempty"`
	Auth             AuthSettings               `json:"auth,omitempty"`
	ConfigReload     ConfigReloadSettings       `json:"configReload,omitempty"`
}

// Snapshot is an immutable, fully-resolved configuration view. Once
// constructed it is never mutated; reload produces a new Snapshot and
// swaps it in atomically.
type Snapshot struct {
	MCPServers       map[string]MCPServerParams
	MCPTemplates     map[string]MCPServerParams
	TemplateSettings TemplateSettings
	Features         Features
	RateLimits       RateLimitSettings
	Auth             AuthSettings
	ConfigReload     ConfigReloadSettings
}

// AllTags returns the union of tags across every static server and
// template, used to compute the OAuth scope set.
func (s *Snapshot) AllTags() []string {
	seen := make(map[string]struct{})
	var out []string
	collect := func(m map[string]MCPServerParams) {
		for _, p := range m {
			for _, t := range p.Tags {
				if _, ok := seen[t]; !ok {
					seen[t] = struct{}{}
					out = append(out, t)
				}
			}
		}
	}
	collect(s.MCPServers)
	collect(s.MCPTemplates)
	return out
}
