// Package transport wraps github.com/mark3labs/mcp-go/client for the three
// outbound transport kinds the proxy speaks to upstream MCP servers over:
// stdio, SSE, and streamable-HTTP. Every implementation shares the same
// baseClient plumbing and satisfies the Client interface, so the outbound
// connection manager can treat them polymorphically.
package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// ProtocolVersion is the MCP protocol version this proxy speaks to upstreams.
const ProtocolVersion = "2024-11-05"

// ClientName/ClientVersion identify the proxy to upstream servers during
// the initialize handshake.
const (
	ClientName    = "mcp-gateway"
	ClientVersion = "1.0.0"
)

// Client is the common surface every outbound transport implements.
type Client interface {
	Initialize(ctx context.Context) (*mcp.InitializeResult, error)
	Close() error
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	ListResources(ctx context.Context) ([]mcp.Resource, error)
	ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)
	ListPrompts(ctx context.Context) ([]mcp.Prompt, error)
	GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error)
	Ping(ctx context.Context) error
}

// AuthRequiredError signals that an upstream demands OAuth before it will
// complete initialization. The outbound manager catches this and transitions
// the connection to AwaitingOAuth rather than treating it as a hard failure.
type AuthRequiredError struct {
	URL              string
	AuthorizationURL string
	Err              error
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("authorization required for %s: %v", e.URL, e.Err)
}

func (e *AuthRequiredError) Unwrap() error { return e.Err }

// baseClient provides the protocol operations shared by every transport: all
// of them differ only in how the underlying client.MCPClient is constructed.
type baseClient struct {
	mu        sync.RWMutex
	inner     client.MCPClient
	connected bool
}

func (b *baseClient) checkConnected() error {
	if !b.connected || b.inner == nil {
		return fmt.Errorf("transport not connected")
	}
	return nil
}

func (b *baseClient) setConnected(c client.MCPClient) {
	b.inner = c
	b.connected = true
}

func (b *baseClient) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected || b.inner == nil {
		return nil
	}
	err := b.inner.Close()
	b.inner = nil
	b.connected = false
	return err
}

func (b *baseClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.inner.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	return result.Tools, nil
}

func (b *baseClient) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := b.inner.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call tool %q: %w", name, err)
	}
	return result, nil
}

func (b *baseClient) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.inner.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return result.Resources, nil
}

func (b *baseClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	result, err := b.inner.ReadResource(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("read resource %q: %w", uri, err)
	}
	return result, nil
}

func (b *baseClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.inner.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	return result.Prompts, nil
}

func (b *baseClient) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	req := mcp.GetPromptRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := b.inner.GetPrompt(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get prompt %q: %w", name, err)
	}
	return result, nil
}

func (b *baseClient) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return err
	}
	return b.inner.Ping(ctx)
}

func initializeRequest() mcp.InitializeRequest {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = ProtocolVersion
	req.Params.ClientInfo = mcp.Implementation{Name: ClientName, Version: ClientVersion}
	req.Params.Capabilities = mcp.ClientCapabilities{}
	return req
}
