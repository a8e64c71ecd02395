package transport

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// SSEClient speaks the legacy HTTP+SSE outbound transport.
type SSEClient struct {
	baseClient
	url     string
	headers map[string]string
}

// NewSSEClient constructs an SSEClient for the given upstream URL.
func NewSSEClient(url string, headers map[string]string) *SSEClient {
	return &SSEClient{url: url, headers: headers}
}

func (c *SSEClient) Initialize(ctx context.Context) (*mcp.InitializeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var opts []transport.ClientOption
	if len(c.headers) > 0 {
		opts = append(opts, transport.WithHeaders(c.headers))
	}

	inner, err := client.NewSSEMCPClient(c.url, opts...)
	if err != nil {
		return nil, fmt.Errorf("create SSE client for %s: %w", c.url, err)
	}
	if err := inner.Start(ctx); err != nil {
		return nil, fmt.Errorf("start SSE transport for %s: %w", c.url, err)
	}

	result, err := inner.Initialize(ctx, initializeRequest())
	if err != nil {
		inner.Close()
		return nil, mapAuthError(c.url, err)
	}

	c.setConnected(inner)
	return result, nil
}
