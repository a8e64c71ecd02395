package transport

import (
	"fmt"

	"github.com/mcpfleet/gateway/pkg/oauth"
)

// mapAuthError inspects the error returned by an upstream's initialize call
// and, if it looks like a 401 challenge, rewraps it as an *AuthRequiredError*
// carrying whatever authorization-server hints could be recovered from the
// error text. mcp-go does not expose the raw HTTP response here, so this is
// a best-effort parse of the error string rather than a header read.
func mapAuthError(url string, err error) error {
	if err == nil || !oauth.Is401Error(err) {
		return err
	}

	challenge := oauth.ParseWWWAuthenticateFromError(err)
	authzURL := ""
	if challenge != nil {
		authzURL = challenge.GetIssuer()
	}

	return &AuthRequiredError{
		URL:              url,
		AuthorizationURL: authzURL,
		Err:              fmt.Errorf("upstream returned 401 unauthorized: %w", err),
	}
}
