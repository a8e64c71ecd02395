package metatools

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mcpfleet/gateway/internal/capability"
)

const (
	// ToolListName is the tool_list meta-tool's name.
	ToolListName = "tool_list"
	// ToolSchemaName is the tool_schema meta-tool's name.
	ToolSchemaName = "tool_schema"
	// ToolInvokeName is the tool_invoke meta-tool's name.
	ToolInvokeName = "tool_invoke"

	defaultListLimit = 50
	maxListLimit     = 500
)

// Registry is the view of the capability aggregator the façade needs: a
// session's already-filtered tool set, walkable in a stable per-server
// order for pagination.
type Registry interface {
	Tool(server, name string) (capability.ToolInfo, bool)
	ServersInOrder() []string
	ToolNamesForServer(server string) []string
}

// SchemaCache backfills a tool's full input schema on a cache miss,
// deduplicating concurrent fetches for the same key.
type SchemaCache interface {
	GetOrCompute(key capability.ItemKey, fetch func() (any, error)) (any, error)
}

// Dispatcher executes a resolved tool call against its owning upstream,
// or fetches a tool's schema directly when the cache needs to backfill.
type Dispatcher interface {
	CallTool(ctx context.Context, sessionID, server, toolName string, args map[string]any) (*mcp.CallToolResult, error)
	FetchToolInputSchema(ctx context.Context, sessionID, server, toolName string) (any, error)
}

// Provider implements the tool_list/tool_schema/tool_invoke façade that
// replaces direct tool exposure when a session's lazyLoading feature is
// enabled: a client sees three tools instead of the full
// aggregated union, and pages/dispatches through them.
type Provider struct {
	registry   Registry
	schemas    SchemaCache
	dispatcher Dispatcher
	denylist   *Denylist
}

// NewProvider constructs a Provider over the given session's filtered
// registry view, the shared schema cache, and the dispatcher used to
// actually run tool calls.
func NewProvider(registry Registry, schemas SchemaCache, dispatcher Dispatcher, denylist *Denylist) *Provider {
	return &Provider{registry: registry, schemas: schemas, dispatcher: dispatcher, denylist: denylist}
}

// Tools returns the mcp-go definitions of the three meta-tools, for
// registration in place of the aggregated tool set.
func (p *Provider) Tools() []mcpserver.ServerTool {
	return []mcpserver.ServerTool{
		{
			Tool: mcp.NewTool(ToolListName,
				mcp.WithDescription("List tools available across connected MCP servers, optionally filtered by server or name pattern. Paginated."),
				mcp.WithString("server", mcp.Description("Restrict the listing to this server name")),
				mcp.WithString("pattern", mcp.Description("Glob pattern matched against tool names, e.g. \"deploy_*\"")),
				mcp.WithNumber("limit", mcp.Description("Maximum entries to return (default 50, max 500)")),
				mcp.WithString("cursor", mcp.Description("Opaque pagination cursor from a previous tool_list call")),
			),
			Handler: p.HandleToolList,
		},
		{
			Tool: mcp.NewTool(ToolSchemaName,
				mcp.WithDescription("Fetch the full input schema for one tool by server and name."),
				mcp.WithString("server", mcp.Required(), mcp.Description("Server the tool belongs to")),
				mcp.WithString("toolName", mcp.Required(), mcp.Description("Tool name within that server")),
			),
			Handler: p.HandleToolSchema,
		},
		{
			Tool: mcp.NewTool(ToolInvokeName,
				mcp.WithDescription("Invoke one tool by server and name with the given arguments."),
				mcp.WithString("server", mcp.Required(), mcp.Description("Server the tool belongs to")),
				mcp.WithString("toolName", mcp.Required(), mcp.Description("Tool name within that server")),
				mcp.WithObject("args", mcp.Description("Arguments to pass to the tool")),
			),
			Handler: p.HandleToolInvoke,
		},
	}
}

func arguments(req mcp.CallToolRequest) map[string]interface{} {
	args, ok := req.Params.Arguments.(map[string]interface{})
	if !ok || args == nil {
		return map[string]interface{}{}
	}
	return args
}

func errorResult(kind errorKind, message string) *mcp.CallToolResult {
	return mcp.NewToolResultText(string(newErrorPayload(kind, message)))
}

func sessionIDFromContext(ctx context.Context) string {
	if session := mcpserver.ClientSessionFromContext(ctx); session != nil {
		if id := session.SessionID(); id != "" {
			return id
		}
	}
	return ""
}

// HandleToolList implements tool_list: a cross-server walk of the
// session's filtered tool set (servers in lexical order, each server's
// tools in upstream list order), optionally narrowed by server
// name and/or glob pattern, paginated via an opaque cursor.
func (p *Provider) HandleToolList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(req)

	onlyServer, _ := args["server"].(string)
	pattern, _ := args["pattern"].(string)

	limit := defaultListLimit
	if raw, ok := args["limit"].(float64); ok && raw > 0 {
		limit = int(raw)
		if limit > maxListLimit {
			limit = maxListLimit
		}
	}

	startOffset := 0
	if cursorStr, ok := args["cursor"].(string); ok && cursorStr != "" {
		if c, valid := capability.ParseCursor(cursorStr); valid {
			startOffset = decodeIndex(c.UpstreamCursor)
		}
		// An invalid cursor starts over from the first matching tool rather
		// than erroring, per the façade's pagination contract.
	}

	servers := p.registry.ServersInOrder()
	if onlyServer != "" {
		filtered := servers[:0:0]
		for _, s := range servers {
			if s == onlyServer {
				filtered = append(filtered, s)
			}
		}
		servers = filtered
	}

	// Walk servers in lexical order and each server's tools in upstream
	// list order, matching names against pattern, and take the [startOffset, startOffset+limit)
	// slice of that filtered sequence.
	var matched []ToolListEntry
	for _, server := range servers {
		for _, name := range p.registry.ToolNamesForServer(server) {
			if pattern != "" {
				if ok, _ := path.Match(pattern, name); !ok {
					continue
				}
			}
			info, ok := p.registry.Tool(server, name)
			if !ok {
				continue
			}
			matched = append(matched, ToolListEntry{
				Server:           server,
				Name:             info.Name,
				ShortDescription: shortDescription(info.Description),
			})
		}
	}

	if startOffset > len(matched) {
		startOffset = len(matched)
	}
	end := startOffset + limit
	if end > len(matched) {
		end = len(matched)
	}
	page := matched[startOffset:end]

	var nextCursor string
	if end < len(matched) {
		nextCursor = capability.EncodeCursor("tool_list", encodeIndex(end))
	}

	return listResult(page, nextCursor), nil
}

func listResult(entries []ToolListEntry, nextCursor string) *mcp.CallToolResult {
	result := ToolListResult{Tools: entries, NextCursor: nextCursor}
	b, err := marshalIndent(result)
	if err != nil {
		return errorResult(errUpstream, "failed to encode tool list")
	}
	return mcp.NewToolResultText(string(b))
}

func shortDescription(desc string) string {
	const maxLen = 160
	if len(desc) <= maxLen {
		return desc
	}
	return desc[:maxLen] + "..."
}

func encodeIndex(i int) string { return fmt.Sprintf("%d", i) }

func decodeIndex(s string) int {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0
	}
	return n
}

// HandleToolSchema implements tool_schema: resolve a tool's full input
// schema, backfilling the shared cache on a miss via the dispatcher.
func (p *Provider) HandleToolSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(req)

	server, _ := args["server"].(string)
	toolName, _ := args["toolName"].(string)
	if server == "" || toolName == "" {
		return errorResult(errValidation, "server and toolName are required"), nil
	}

	info, ok := p.registry.Tool(server, toolName)
	if !ok {
		return errorResult(errNotFound, fmt.Sprintf("tool %q not found on server %q", toolName, server)), nil
	}

	sessionID := sessionIDFromContext(ctx)
	schema, err := p.schemas.GetOrCompute(capability.ItemKey{Server: server, Name: toolName}, func() (any, error) {
		if info.InputSchema != nil {
			return info.InputSchema, nil
		}
		return p.dispatcher.FetchToolInputSchema(ctx, sessionID, server, toolName)
	})
	if err != nil {
		return errorResult(errUpstream, fmt.Sprintf("failed to fetch schema: %v", err)), nil
	}

	b, err := marshalIndent(schema)
	if err != nil {
		return errorResult(errUpstream, "failed to encode schema"), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// HandleToolInvoke implements tool_invoke: resolve and dispatch a tool
// call, refusing denylisted tool names outright unless yolo mode is on.
func (p *Provider) HandleToolInvoke(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(req)

	server, _ := args["server"].(string)
	toolName, _ := args["toolName"].(string)
	if server == "" || toolName == "" {
		return errorResult(errValidation, "server and toolName are required"), nil
	}

	if _, ok := p.registry.Tool(server, toolName); !ok {
		return errorResult(errNotFound, fmt.Sprintf("tool %q not found on server %q", toolName, server)), nil
	}

	if p.denylist.Blocked(toolName) {
		return errorResult(errValidation, fmt.Sprintf("tool %q is blocked by the destructive-tool denylist", toolName)), nil
	}

	toolArgs, _ := args["args"].(map[string]interface{})
	if toolArgs == nil {
		toolArgs = map[string]interface{}{}
	}

	sessionID := sessionIDFromContext(ctx)
	result, err := p.dispatcher.CallTool(ctx, sessionID, server, toolName, toolArgs)
	if err != nil {
		return errorResult(errUpstream, fmt.Sprintf("tool invocation failed: %v", err)), nil
	}
	return result, nil
}

func marshalIndent(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
