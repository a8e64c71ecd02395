package server

import (
	"context"
	"net/http"
	"strings"
)

// OAuthCompleter finishes an upstream's AwaitingOAuth flow once the
// authorization server redirects the user back with a code.
type OAuthCompleter interface {
	CompleteUpstreamOAuth(ctx context.Context, serverName, code string) error
}

// oauthCallbackHandler serves GET /oauth/callback/<serverName>, the
// redirect target the Outbound Manager advertises to upstream
// authorization servers. The path suffix names the static upstream being
// authorized; the code travels in the query string.
func oauthCallbackHandler(completer OAuthCompleter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serverName := strings.TrimPrefix(r.URL.Path, "/oauth/callback/")
		if serverName == "" || strings.Contains(serverName, "/") {
			writeJSONErrorStatus(w, http.StatusBadRequest, "invalid_request", "missing or malformed server name in callback path")
			return
		}

		q := r.URL.Query()
		if errParam := q.Get("error"); errParam != "" {
			writeJSONErrorStatus(w, http.StatusBadRequest, "invalid_grant", "authorization server reported: "+errParam)
			return
		}
		code := q.Get("code")
		if code == "" {
			writeJSONErrorStatus(w, http.StatusBadRequest, "invalid_request", "missing code parameter")
			return
		}

		if err := completer.CompleteUpstreamOAuth(r.Context(), serverName, code); err != nil {
			writeJSONError(w, err)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Authorization complete. You can close this window.\n"))
	}
}
