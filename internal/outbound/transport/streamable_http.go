package transport

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// StreamableHTTPClient speaks the streamable-HTTP outbound transport, the
// default for network upstreams.
type StreamableHTTPClient struct {
	baseClient
	url     string
	headers map[string]string
}

// NewStreamableHTTPClient constructs a StreamableHTTPClient for the given
// upstream URL. headers may be nil.
func NewStreamableHTTPClient(url string, headers map[string]string) *StreamableHTTPClient {
	return &StreamableHTTPClient{url: url, headers: headers}
}

func (c *StreamableHTTPClient) Initialize(ctx context.Context) (*mcp.InitializeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var opts []transport.StreamableHTTPCOption
	if len(c.headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(c.headers))
	}

	inner, err := client.NewStreamableHttpClient(c.url, opts...)
	if err != nil {
		return nil, fmt.Errorf("create streamable-http client for %s: %w", c.url, err)
	}

	result, err := inner.Initialize(ctx, initializeRequest())
	if err != nil {
		inner.Close()
		return nil, mapAuthError(c.url, err)
	}

	c.setConnected(inner)
	return result, nil
}
