package session

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mcpfleet/gateway/internal/outbound"
	"github.com/mcpfleet/gateway/pkg/oauth"
)

// registerAuthStatusResource exposes the auth://status sideband resource:
// agents can read it to discover which upstreams are AwaitingOAuth and
// the URL to complete authorization, without a side channel.
func (s *Service) registerAuthStatusResource() {
	s.mcpServer.AddResources(mcpserver.ServerResource{
		Resource: mcp.Resource{
			URI:         AuthStatusResourceURI,
			Name:        "Upstream authorization status",
			Description: "Reports which configured upstream MCP servers require OAuth authorization and the URL to complete it.",
			MIMEType:    "application/json",
		},
		Handler: s.authStatusHandler,
	})
}

func (s *Service) authStatusHandler(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	snapshot := s.outbounds.Snapshot()

	entries := make([]oauth.ServerAuthStatus, 0, len(snapshot))
	for _, conn := range snapshot {
		if conn.Key.SessionID != "" {
			// Per-client template instances are session-private; the
			// status resource only reports static/shareable upstreams.
			continue
		}
		entry := oauth.ServerAuthStatus{Name: conn.Name, Status: string(conn.Status)}
		if conn.Status == outbound.StatusAwaitingOAuth {
			entry.AuthorizationURL = conn.AuthorizationURL
		}
		if conn.LastError != nil {
			entry.Error = conn.LastError.Error()
		}
		entries = append(entries, entry)
	}

	body, err := json.Marshal(oauth.AuthStatusResponse{Servers: entries})
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      AuthStatusResourceURI,
			MIMEType: "application/json",
			Text:     string(body),
		},
	}, nil
}
