package transport

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// StdioClient runs an upstream MCP server as a local subprocess,
// communicating over its stdin/stdout.
type StdioClient struct {
	baseClient
	command string
	args    []string
	env     []string
}

// NewStdioClient constructs a StdioClient. env is in "KEY=VALUE" form, as
// the underlying client.NewStdioMCPClient expects.
func NewStdioClient(command string, args []string, env []string) *StdioClient {
	return &StdioClient{command: command, args: args, env: env}
}

func (c *StdioClient) Initialize(ctx context.Context) (*mcp.InitializeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inner, err := client.NewStdioMCPClient(c.command, c.env, c.args...)
	if err != nil {
		return nil, fmt.Errorf("start stdio process %q: %w", c.command, err)
	}

	result, err := inner.Initialize(ctx, initializeRequest())
	if err != nil {
		inner.Close()
		return nil, fmt.Errorf("initialize stdio upstream %q: %w", c.command, err)
	}

	c.setConnected(inner)
	return result, nil
}
