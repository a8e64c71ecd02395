package metatools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpfleet/gateway/internal/capability"
)

// fakeRegistry implements Registry over a fixed (server, tool) table.
type fakeRegistry struct {
	tools map[string][]capability.ToolInfo // server -> tools, in order
}

func (f *fakeRegistry) Tool(server, name string) (capability.ToolInfo, bool) {
	for _, t := range f.tools[server] {
		if t.Name == name {
			return t, true
		}
	}
	return capability.ToolInfo{}, false
}

func (f *fakeRegistry) ServersInOrder() []string {
	var out []string
	for s := range f.tools {
		out = append(out, s)
	}
	// Keep the fixed test order deterministic.
	for i := range out {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

func (f *fakeRegistry) ToolNamesForServer(server string) []string {
	var out []string
	for _, t := range f.tools[server] {
		out = append(out, t.Name)
	}
	return out
}

type fakeSchemaCache struct {
	computed int
}

func (f *fakeSchemaCache) GetOrCompute(_ capability.ItemKey, fetch func() (any, error)) (any, error) {
	f.computed++
	return fetch()
}

type fakeDispatcher struct {
	lastServer string
	lastTool   string
	lastArgs   map[string]any
	result     *mcp.CallToolResult
	err        error
}

func (f *fakeDispatcher) CallTool(_ context.Context, _, server, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
	f.lastServer, f.lastTool, f.lastArgs = server, toolName, args
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeDispatcher) FetchToolInputSchema(_ context.Context, _, server, toolName string) (any, error) {
	return map[string]any{"type": "object", "fetchedFor": server + "/" + toolName}, nil
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: struct {
			Name      string    `json:"name"`
			Arguments any       `json:"arguments,omitempty"`
			Meta      *mcp.Meta `json:"_meta,omitempty"`
		}{
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return text.Text
}

func decodeList(t *testing.T, result *mcp.CallToolResult) ToolListResult {
	t.Helper()
	var out ToolListResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	return out
}

func decodeError(t *testing.T, result *mcp.CallToolResult) (kind, message string) {
	t.Helper()
	var payload struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &payload))
	return payload.Error.Type, payload.Error.Message
}

func newTestProvider(dispatcher *fakeDispatcher) (*Provider, *fakeSchemaCache) {
	reg := &fakeRegistry{tools: map[string][]capability.ToolInfo{
		"fs": {
			{Server: "fs", Name: "read_file", Description: "Read a file"},
			{Server: "fs", Name: "write_file", Description: "Write a file"},
		},
		"git": {
			{Server: "git", Name: "git_log", Description: "Show history"},
			{Server: "git", Name: "git_push", Description: "Push commits"},
		},
	}}
	schemas := &fakeSchemaCache{}
	return NewProvider(reg, schemas, dispatcher, NewDenylist(nil, false)), schemas
}

func TestToolListReturnsAllInOrder(t *testing.T) {
	p, _ := newTestProvider(&fakeDispatcher{})

	result, err := p.HandleToolList(context.Background(), callRequest(nil))
	require.NoError(t, err)

	list := decodeList(t, result)
	require.Len(t, list.Tools, 4)
	assert.Equal(t, "fs", list.Tools[0].Server)
	assert.Equal(t, "read_file", list.Tools[0].Name)
	assert.Equal(t, "git", list.Tools[2].Server)
	assert.Empty(t, list.NextCursor)
}

func TestToolListFiltersByServer(t *testing.T) {
	p, _ := newTestProvider(&fakeDispatcher{})

	result, err := p.HandleToolList(context.Background(), callRequest(map[string]interface{}{"server": "git"}))
	require.NoError(t, err)

	list := decodeList(t, result)
	require.Len(t, list.Tools, 2)
	for _, entry := range list.Tools {
		assert.Equal(t, "git", entry.Server)
	}
}

func TestToolListGlobPattern(t *testing.T) {
	p, _ := newTestProvider(&fakeDispatcher{})

	result, err := p.HandleToolList(context.Background(), callRequest(map[string]interface{}{"pattern": "git_*"}))
	require.NoError(t, err)

	list := decodeList(t, result)
	require.Len(t, list.Tools, 2)
	assert.Equal(t, "git_log", list.Tools[0].Name)
	assert.Equal(t, "git_push", list.Tools[1].Name)
}

func TestToolListPaginates(t *testing.T) {
	p, _ := newTestProvider(&fakeDispatcher{})

	first, err := p.HandleToolList(context.Background(), callRequest(map[string]interface{}{"limit": float64(3)}))
	require.NoError(t, err)
	firstPage := decodeList(t, first)
	require.Len(t, firstPage.Tools, 3)
	require.NotEmpty(t, firstPage.NextCursor)

	second, err := p.HandleToolList(context.Background(), callRequest(map[string]interface{}{
		"limit":  float64(3),
		"cursor": firstPage.NextCursor,
	}))
	require.NoError(t, err)
	secondPage := decodeList(t, second)
	require.Len(t, secondPage.Tools, 1)
	assert.Empty(t, secondPage.NextCursor)
	assert.Equal(t, "git_push", secondPage.Tools[0].Name)
}

func TestToolListInvalidCursorStartsOver(t *testing.T) {
	p, _ := newTestProvider(&fakeDispatcher{})

	result, err := p.HandleToolList(context.Background(), callRequest(map[string]interface{}{"cursor": "not-base64!"}))
	require.NoError(t, err)

	list := decodeList(t, result)
	require.Len(t, list.Tools, 4)
	assert.Equal(t, "read_file", list.Tools[0].Name)
}

func TestToolSchemaRequiresServerAndName(t *testing.T) {
	p, _ := newTestProvider(&fakeDispatcher{})

	result, err := p.HandleToolSchema(context.Background(), callRequest(map[string]interface{}{"server": "fs"}))
	require.NoError(t, err)

	kind, _ := decodeError(t, result)
	assert.Equal(t, "validation", kind)
}

func TestToolSchemaUnknownToolIsNotFound(t *testing.T) {
	p, _ := newTestProvider(&fakeDispatcher{})

	result, err := p.HandleToolSchema(context.Background(), callRequest(map[string]interface{}{
		"server":   "fs",
		"toolName": "no_such_tool",
	}))
	require.NoError(t, err)

	kind, _ := decodeError(t, result)
	assert.Equal(t, "not_found", kind)
}

func TestToolSchemaBackfillsFromDispatcher(t *testing.T) {
	p, schemas := newTestProvider(&fakeDispatcher{})

	result, err := p.HandleToolSchema(context.Background(), callRequest(map[string]interface{}{
		"server":   "fs",
		"toolName": "read_file",
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, schemas.computed)
	assert.Contains(t, resultText(t, result), "fetchedFor")
}

func TestToolInvokeDispatches(t *testing.T) {
	dispatcher := &fakeDispatcher{result: mcp.NewToolResultText("upstream says hi")}
	p, _ := newTestProvider(dispatcher)

	result, err := p.HandleToolInvoke(context.Background(), callRequest(map[string]interface{}{
		"server":   "fs",
		"toolName": "read_file",
		"args":     map[string]interface{}{"path": "/etc/hostname"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "upstream says hi", resultText(t, result))
	assert.Equal(t, "fs", dispatcher.lastServer)
	assert.Equal(t, "read_file", dispatcher.lastTool)
	assert.Equal(t, map[string]any{"path": "/etc/hostname"}, dispatcher.lastArgs)
}

func TestToolInvokeUnknownToolIsNotFound(t *testing.T) {
	p, _ := newTestProvider(&fakeDispatcher{})

	result, err := p.HandleToolInvoke(context.Background(), callRequest(map[string]interface{}{
		"server":   "git",
		"toolName": "git_rebase",
	}))
	require.NoError(t, err)

	kind, _ := decodeError(t, result)
	assert.Equal(t, "not_found", kind)
}

func TestToolInvokeUpstreamFailureIsTagged(t *testing.T) {
	p, _ := newTestProvider(&fakeDispatcher{err: errors.New("connection reset")})

	result, err := p.HandleToolInvoke(context.Background(), callRequest(map[string]interface{}{
		"server":   "fs",
		"toolName": "read_file",
	}))
	require.NoError(t, err)

	kind, message := decodeError(t, result)
	assert.Equal(t, "upstream", kind)
	assert.Contains(t, message, "connection reset")
}

func TestToolInvokeDenylist(t *testing.T) {
	reg := &fakeRegistry{tools: map[string][]capability.ToolInfo{
		"infra": {{Server: "infra", Name: "delete_cluster"}},
	}}
	dispatcher := &fakeDispatcher{result: mcp.NewToolResultText("done")}

	blocked := NewProvider(reg, &fakeSchemaCache{}, dispatcher, NewDenylist([]string{"delete_cluster"}, false))
	result, err := blocked.HandleToolInvoke(context.Background(), callRequest(map[string]interface{}{
		"server":   "infra",
		"toolName": "delete_cluster",
	}))
	require.NoError(t, err)
	kind, _ := decodeError(t, result)
	assert.Equal(t, "validation", kind)

	// Yolo mode disables the denylist.
	yolo := NewProvider(reg, &fakeSchemaCache{}, dispatcher, NewDenylist([]string{"delete_cluster"}, true))
	result, err = yolo.HandleToolInvoke(context.Background(), callRequest(map[string]interface{}{
		"server":   "infra",
		"toolName": "delete_cluster",
	}))
	require.NoError(t, err)
	assert.Equal(t, "done", resultText(t, result))
}

func TestToolsDefinitionsExposeAllThree(t *testing.T) {
	p, _ := newTestProvider(&fakeDispatcher{})
	tools := p.Tools()
	require.Len(t, tools, 3)
	names := []string{tools[0].Tool.Name, tools[1].Tool.Name, tools[2].Tool.Name}
	assert.ElementsMatch(t, []string{ToolListName, ToolSchemaName, ToolInvokeName}, names)
}
