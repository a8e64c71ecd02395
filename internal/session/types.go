// Package session implements the inbound session service: it owns
// one shared mark3labs/mcp-go MCPServer instance, runs per-session tag
// filtering over the Capability Aggregator's view, dispatches tool/
// resource/prompt calls through the Connection Resolver, and persists
// enough session metadata to restore a streamable-HTTP session across a
// reconnect.
package session

import (
	"encoding/json"
	"time"

	"github.com/mcpfleet/gateway/internal/tagquery"
	"github.com/mcpfleet/gateway/internal/template"
)

// IDPrefix is prepended to every session id this service allocates, so the
// proxy can tell its own ids apart from any pass-through value a client
// might otherwise supply.
const IDPrefix = "mcpg-sess-"

// StdioSessionID is the fixed session id used for the single process-wide
// stdio session.
const StdioSessionID = "stdio"

// TagFilterMode records which of the three mutually-exclusive query
// filtering mechanisms a session was opened with, purely for
// diagnostics — the resolved Expr is what's actually evaluated.
type TagFilterMode string

const (
	FilterModeNone     TagFilterMode = "none"
	FilterModePreset   TagFilterMode = "preset"
	FilterModeAdvanced TagFilterMode = "advanced"
	FilterModeSimple   TagFilterMode = "simple"
)

// Transport is the inbound transport a session was opened over.
type Transport string

const (
	TransportStdio          Transport = "stdio"
	TransportSSE            Transport = "sse"
	TransportStreamableHTTP Transport = "streamable-http"
)

// OpenOptions carries OpenSession's parameters.
type OpenOptions struct {
	Tags             []string
	TagExpression    string
	PresetName       string
	FilterMode       TagFilterMode
	EnablePagination bool
	Context          template.ContextData
	CustomTemplate   string

	// AuthExpr, when non-nil, is the OR-of-token-scopes expression
	// derived from the bearer token's granted tags. It is ANDed
	// with whatever the query-string filter mode resolves to, so an
	// OAuth-scoped client can never see a server outside its granted
	// tags regardless of what it passes in the query string.
	AuthExpr tagquery.Expr
}

// Session is one inbound client's attached state: its resolved tag
// filter, its template-rendering context, and enough bookkeeping to
// restore it after a streamable-HTTP reconnect.
type Session struct {
	ID               string
	Transport        Transport
	Expr             tagquery.Expr
	FilterMode       TagFilterMode
	PresetName       string
	EnablePagination bool
	Context          template.ContextData
	CreatedAt        time.Time
	LastSeen         time.Time
}

// persistedSession is the JSON shape stored under
// transport/streamable/<sessionId> for restoration. Expr is stored
// in its string form and reparsed on restore rather than gob-encoding the
// Expr interface.
type persistedSession struct {
	ID               string               `json:"id"`
	Transport        Transport            `json:"transport"`
	ExprString       string               `json:"exprString,omitempty"`
	FilterMode       TagFilterMode        `json:"filterMode"`
	PresetName       string               `json:"presetName,omitempty"`
	EnablePagination bool                 `json:"enablePagination"`
	Context          template.ContextData `json:"context"`
	CreatedAt        time.Time            `json:"createdAt"`
}

func (s *Session) toPersisted() persistedSession {
	exprStr := ""
	if s.Expr != nil {
		exprStr = s.Expr.String()
	}
	return persistedSession{
		ID:               s.ID,
		Transport:        s.Transport,
		ExprString:       exprStr,
		FilterMode:       s.FilterMode,
		PresetName:       s.PresetName,
		EnablePagination: s.EnablePagination,
		Context:          s.Context,
		CreatedAt:        s.CreatedAt,
	}
}

func (p persistedSession) toSession() (*Session, error) {
	var expr tagquery.Expr
	if p.ExprString != "" {
		parsed, err := tagquery.ParseAdvanced(p.ExprString)
		if err != nil {
			return nil, err
		}
		expr = parsed
	}
	now := time.Now()
	return &Session{
		ID:               p.ID,
		Transport:        p.Transport,
		Expr:             expr,
		FilterMode:       p.FilterMode,
		PresetName:       p.PresetName,
		EnablePagination: p.EnablePagination,
		Context:          p.Context,
		CreatedAt:        p.CreatedAt,
		LastSeen:         now,
	}, nil
}

func marshalSession(s *Session) []byte {
	b, err := json.Marshal(s.toPersisted())
	if err != nil {
		panic(err)
	}
	return b
}

func unmarshalSession(data []byte) (*Session, error) {
	var p persistedSession
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p.toSession()
}
