package outbound

import (
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// Status is the lifecycle state of an OutboundConnection.
type Status string

const (
	StatusConnecting    Status = "connecting"
	StatusConnected     Status = "connected"
	StatusError         Status = "error"
	StatusAwaitingOAuth Status = "awaiting_oauth"
	StatusDisconnected  Status = "disconnected"
)

// Capabilities is the set of protocol-level objects an upstream reported
// during initialize/list, already merged into the shapes the aggregator
// consumes.
type Capabilities struct {
	Tools     []mcp.Tool
	Resources []mcp.Resource
	Prompts   []mcp.Prompt
}

// Connection is a live binding to a single upstream MCP server: one entry
// per connectionKey, owned exclusively by the Manager.
type Connection struct {
	Name             string
	Key              Key
	Status           Status
	Tags             []string
	Capabilities     Capabilities
	Instructions     string
	LastConnected    time.Time
	LastError        error
	AuthorizationURL string

	attempt int
}

// Key is the union of the three ways a connection can be addressed:
// a static server's bare name, a shareable template instance keyed by a
// hash of its rendered parameters, or a per-client template instance keyed
// by session ID. String() is the canonical wire/map-key form; it is a
// codec over this type, not the primary representation.
type Key struct {
	Name      string
	Hash      string
	SessionID string
}

// StaticKey builds the key for a static (non-template) server.
func StaticKey(name string) Key { return Key{Name: name} }

// TemplateHashKey builds the key for a shareable template instance.
func TemplateHashKey(name, hash string) Key { return Key{Name: name, Hash: hash} }

// TemplateSessionKey builds the key for a per-client template instance.
func TemplateSessionKey(name, sessionID string) Key { return Key{Name: name, SessionID: sessionID} }

// String renders the key in its canonical "name", "name:hash", or
// "name:sessionId" form.
func (k Key) String() string {
	switch {
	case k.SessionID != "":
		return k.Name + ":" + k.SessionID
	case k.Hash != "":
		return k.Name + ":" + k.Hash
	default:
		return k.Name
	}
}

// ParseKey recovers a Key from its string form. Since a shareable hash and
// a session ID are both just the suffix after the colon, ParseKey cannot
// distinguish them on its own — callers that need to know which kind of
// suffix they have should track it via the Manager's own bookkeeping
// instead of round-tripping through ParseKey.
func ParseKey(s string) Key {
	name, suffix, ok := strings.Cut(s, ":")
	if !ok {
		return Key{Name: name}
	}
	return Key{Name: name, Hash: suffix}
}

func (c *Connection) String() string {
	return fmt.Sprintf("Connection{name=%s key=%s status=%s}", c.Name, c.Key, c.Status)
}
