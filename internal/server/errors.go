package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcpfleet/gateway/internal/errs"
)

// jsonError is the wire shape for every non-2xx HTTP response this
// package produces: {"error":{"code","message","details?"}}.
type jsonError struct {
	Error jsonErrorBody `json:"error"`
}

type jsonErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// statusAndCode maps the errs taxonomy to an HTTP status and a stable
// machine-readable code. Anything not recognized falls back to
// 500/internal_error rather than leaking an unmapped Go error type.
func statusAndCode(err error) (int, string) {
	var (
		clientNotFound   *errs.ClientNotFoundError
		oauthRequired    *errs.OAuthRequiredError
		schemaErr        *errs.SchemaValidationError
		invalidTagExpr   *errs.InvalidTagExpressionError
		invalidScope     *errs.InvalidScopeError
		invalidClient    *errs.InvalidClientError
		invalidGrant     *errs.InvalidGrantError
		invalidRequest   *errs.InvalidRequestError
		rateLimited      *errs.RateLimitedError
		unsupportedKind  *errs.UnsupportedTransportError
		circularDep      *errs.CircularDependencyError
		clientConnection *errs.ClientConnectionError
	)

	switch {
	case errors.As(err, &clientNotFound):
		return http.StatusNotFound, "client_not_found"
	case errors.Is(err, errs.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.As(err, &oauthRequired):
		return http.StatusUnauthorized, "oauth_required"
	case errors.As(err, &invalidScope):
		return http.StatusBadRequest, "invalid_scope"
	case errors.As(err, &invalidClient):
		return http.StatusUnauthorized, "invalid_client"
	case errors.As(err, &invalidGrant):
		return http.StatusBadRequest, "invalid_grant"
	case errors.As(err, &invalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.As(err, &invalidTagExpr):
		return http.StatusBadRequest, "invalid_tag_expression"
	case errors.As(err, &rateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.As(err, &schemaErr):
		return http.StatusBadRequest, "schema_validation_failed"
	case errors.As(err, &unsupportedKind):
		return http.StatusBadRequest, "unsupported_transport"
	case errors.As(err, &circularDep):
		return http.StatusConflict, "circular_dependency"
	case errors.As(err, &clientConnection):
		return http.StatusBadGateway, "client_connection_failed"
	case errors.Is(err, errs.ErrConnectionExists):
		return http.StatusConflict, "connection_exists"
	case errors.Is(err, errs.ErrReloadInFlight):
		return http.StatusConflict, "reload_in_flight"
	case errors.Is(err, errs.ErrCircuitBreakerOpen):
		return http.StatusServiceUnavailable, "circuit_breaker_open"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeJSONError maps err through statusAndCode and writes it as the
// JSON error envelope.
func writeJSONError(w http.ResponseWriter, err error) {
	status, code := statusAndCode(err)
	writeJSONErrorStatus(w, status, code, err.Error())
}

// writeJSONErrorStatus writes the error envelope with an explicit status
// and code, for call sites (OAuth endpoints) that must report a status
// the taxonomy doesn't itself carry (e.g. a malformed request body).
func writeJSONErrorStatus(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(jsonError{Error: jsonErrorBody{Code: code, Message: message}})
}
