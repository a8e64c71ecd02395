// Package errs defines the error taxonomy that crosses the core's
// boundaries: outbound connection failures, tag-expression parse errors,
// OAuth errors, and reload diagnostics. Every kind implements error and
// carries enough structure for the HTTP layer to map it to a stable code,
// so call sites can use errors.As instead of string matching.
package errs

import (
	"errors"
	"fmt"
)

// ClientConnectionError reports a failed connect/handshake to an upstream.
type ClientConnectionError struct {
	ServerName string
	Cause      error
}

func (e *ClientConnectionError) Error() string {
	return fmt.Sprintf("connect to %q failed: %v", e.ServerName, e.Cause)
}

func (e *ClientConnectionError) Unwrap() error { return e.Cause }

// ClientNotFoundError reports a request referencing an unknown connection name.
type ClientNotFoundError struct {
	Name string
}

func (e *ClientNotFoundError) Error() string {
	return fmt.Sprintf("client %q not found", e.Name)
}

// CircularDependencyError reports an upstream identifying as this proxy.
type CircularDependencyError struct {
	ServerName string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("server %q reports the proxy's own advertised name", e.ServerName)
}

// UnsupportedTransportError reports an operation invalid for a transport kind.
type UnsupportedTransportError struct {
	Transport string
	Operation string
}

func (e *UnsupportedTransportError) Error() string {
	return fmt.Sprintf("%s unsupported for transport %q", e.Operation, e.Transport)
}

// OAuthRequiredError is a lifecycle signal, not a failure: the connection is
// AwaitingOAuth and the caller should surface AuthorizationURL.
type OAuthRequiredError struct {
	ServerName       string
	AuthorizationURL string
}

func (e *OAuthRequiredError) Error() string {
	return fmt.Sprintf("server %q requires authorization: %s", e.ServerName, e.AuthorizationURL)
}

// SchemaValidationError reports an upstream payload that failed validation.
type SchemaValidationError struct {
	ServerName string
	ToolName   string
	Cause      error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("schema validation failed for %s/%s: %v", e.ServerName, e.ToolName, e.Cause)
}

func (e *SchemaValidationError) Unwrap() error { return e.Cause }

// InvalidTagExpressionError reports a tag-expression parse failure with the
// column at which the parser gave up.
type InvalidTagExpressionError struct {
	Expression string
	Pos        int
	Msg        string
}

func (e *InvalidTagExpressionError) Error() string {
	return fmt.Sprintf("invalid tag expression %q at column %d: %s", e.Expression, e.Pos, e.Msg)
}

// OAuth errors, RFC 6749 §5.2 error codes surfaced as typed values.
type (
	InvalidScopeError struct{ Reason string }
	InvalidClientError struct{ Reason string }
	InvalidGrantError struct{ Reason string }
	InvalidRequestError struct{ Reason string }
)

func (e *InvalidScopeError) Error() string   { return "invalid_scope: " + e.Reason }
func (e *InvalidClientError) Error() string  { return "invalid_client: " + e.Reason }
func (e *InvalidGrantError) Error() string   { return "invalid_grant: " + e.Reason }
func (e *InvalidRequestError) Error() string { return "invalid_request: " + e.Reason }

// RateLimitedError reports a sliding-window rate limit rejection on an OAuth endpoint.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %ds", e.RetryAfterSeconds)
}

// TemplateRenderError is produced for diagnostics only: missing values
// never raise, so this kind is reserved for structural failures (e.g. an
// unparseable template, not a missing value).
type TemplateRenderError struct {
	TemplateName string
	Cause        error
}

func (e *TemplateRenderError) Error() string {
	return fmt.Sprintf("template %q render failed: %v", e.TemplateName, e.Cause)
}

func (e *TemplateRenderError) Unwrap() error { return e.Cause }

// ConfigParseError reports a malformed configuration document.
type ConfigParseError struct {
	Path  string
	Cause error
}

func (e *ConfigParseError) Error() string {
	return fmt.Sprintf("parse config %q: %v", e.Path, e.Cause)
}

func (e *ConfigParseError) Unwrap() error { return e.Cause }

// ConfigConflictError reports a name collision between mcpServers and mcpTemplates.
type ConfigConflictError struct {
	Name string
}

func (e *ConfigConflictError) Error() string {
	return fmt.Sprintf("name %q defined in both mcpServers and mcpTemplates", e.Name)
}

// Sentinel errors for simple, unparameterized conditions.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrConnectionExists   = errors.New("connection already exists")
	ErrReloadInFlight     = errors.New("a reload is already running")
	ErrCircuitBreakerOpen = errors.New("template circuit breaker is open")
)

// IsOAuthRequired reports whether err (or something it wraps) is an
// OAuthRequiredError, the one "error" that callers should treat as routine.
func IsOAuthRequired(err error) bool {
	var oauthErr *OAuthRequiredError
	return errors.As(err, &oauthErr)
}

// IsCircularDependency reports whether err is a CircularDependencyError.
func IsCircularDependency(err error) bool {
	var circErr *CircularDependencyError
	return errors.As(err, &circErr)
}
