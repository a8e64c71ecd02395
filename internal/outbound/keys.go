package outbound

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/mcpfleet/gateway/internal/config"
)

// CreateOptions carries the extra context createOne needs to allocate the
// right kind of Key for a template instance; it is ignored for static
// servers.
type CreateOptions struct {
	IsTemplate bool
	SessionID  string
}

// allocateKey implements the connection-key rule: a static server keys on
// its bare name; a shareable template instance keys on a hash of its
// rendered parameters so that identical renders collapse onto the same
// connection; everything else (explicit perClient, or neither flag set)
// keys per calling session.
func allocateKey(name string, params config.MCPServerParams, opts CreateOptions) Key {
	if !opts.IsTemplate {
		return StaticKey(name)
	}

	if params.Template != nil && params.Template.Shareable && !params.Template.PerClient {
		return TemplateHashKey(name, hashRenderedParams(params))
	}

	return TemplateSessionKey(name, opts.SessionID)
}

// hashRenderedParams hashes the rendered MCPServerParams so two sessions
// that render a shareable template identically land on the same
// connection key, and two that render it differently do not.
func hashRenderedParams(params config.MCPServerParams) string {
	// json.Marshal is deterministic for this struct: map keys marshal in
	// sorted order, and the struct itself has a fixed field order.
	data, err := json.Marshal(params)
	if err != nil {
		// Unreachable for a well-formed MCPServerParams; fall back to a
		// stable-but-degenerate hash rather than panicking.
		data = []byte(params.Type)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}
