package session

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcpfleet/gateway/internal/errs"
)

// resolveClient finds the outbound client a (server, sessionID) pair
// should route through, applying the Connection Resolver's per-client/
// shareable-hash/static precedence.
func (s *Service) resolveClient(server, sessionID string) (*connAndClient, error) {
	conn, ok := s.resolver.Resolve(server, sessionID)
	if !ok {
		return nil, &errs.ClientNotFoundError{Name: server}
	}
	cli, ok := s.outbounds.Client(conn.Key.String())
	if !ok {
		return nil, &errs.ClientConnectionError{ServerName: server, Cause: fmt.Errorf("connection not ready (status %s)", conn.Status)}
	}
	return &connAndClient{key: conn.Key.String(), client: cli}, nil
}

type connAndClient struct {
	key    string
	client interface {
		CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
		ListTools(ctx context.Context) ([]mcp.Tool, error)
		GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error)
		ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)
	}
}

// getPrompt forwards a prompts/get call to the resolved upstream.
func (cc *connAndClient) getPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	return cc.client.GetPrompt(ctx, name, args)
}

// readResource forwards a resources/read call to the resolved upstream.
func (cc *connAndClient) readResource(ctx context.Context, uri string) ([]mcp.ResourceContents, error) {
	result, err := cc.client.ReadResource(ctx, uri)
	if err != nil {
		return nil, err
	}
	return result.Contents, nil
}

// CallTool implements metatools.Dispatcher: resolve (server, sessionID)
// to a live client and forward the call unchanged, relaying upstream
// error text as-is.
func (s *Service) CallTool(ctx context.Context, sessionID, server, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
	cc, err := s.resolveClient(server, sessionID)
	if err != nil {
		return nil, err
	}
	return cc.client.CallTool(ctx, toolName, args)
}

// FetchToolInputSchema implements metatools.Dispatcher's cache-miss
// backfill path: re-list the owning upstream's tools and return the
// matching one's schema. This only runs when the registry's own cached
// copy (populated at RefreshAll time) is absent.
func (s *Service) FetchToolInputSchema(ctx context.Context, sessionID, server, toolName string) (any, error) {
	cc, err := s.resolveClient(server, sessionID)
	if err != nil {
		return nil, err
	}
	tools, err := cc.client.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tools {
		if t.Name == toolName {
			return t.InputSchema, nil
		}
	}
	return nil, &errs.ClientNotFoundError{Name: toolName}
}
