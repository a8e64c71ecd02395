package transport

import (
	"fmt"

	"github.com/mcpfleet/gateway/internal/config"
)

// New constructs the Client implementation for params' transport kind. The
// caller is responsible for having already resolved any `{{…}}` template
// placeholders in params.
func New(params config.MCPServerParams) (Client, error) {
	switch params.Type {
	case config.TransportStdio:
		return NewStdioClient(params.Command, params.Args, envSlice(params.Env)), nil
	case config.TransportSSE:
		return NewSSEClient(params.URL, params.Headers), nil
	case config.TransportHTTP, config.TransportStreamableHTTP:
		return NewStreamableHTTPClient(params.URL, params.Headers), nil
	default:
		return nil, fmt.Errorf("unsupported transport kind %q", params.Type)
	}
}

// envSlice converts the config document's map-form environment into the
// "KEY=VALUE" slice form client.NewStdioMCPClient expects.
func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
