package capability

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcpfleet/gateway/internal/outbound"
	"github.com/mcpfleet/gateway/internal/tagquery"
	"github.com/stretchr/testify/assert"
)

func TestComputeViewFiltersByOwningServerTags(t *testing.T) {
	a := New(Config{Outbounds: outbound.NewManager(outbound.Config{}), MaxConcurrentPoll: 4, SchemaCacheSize: 10})
	a.registry.ReplaceServer("internal-only", []string{"internal"}, []mcp.Tool{{Name: "secret_tool"}}, nil, nil)
	a.registry.ReplaceServer("public", []string{"public"}, []mcp.Tool{{Name: "hello"}}, nil, nil)

	view := a.ComputeView(tagquery.Tag("public"))

	if assert.Len(t, view.Tools, 1) {
		assert.Equal(t, "public", view.Tools[0].Server)
		assert.Equal(t, "hello", view.Tools[0].Name)
	}
	assert.Empty(t, view.Resources)
	assert.Empty(t, view.Prompts)
}

func TestUpdateCapabilitiesDetectsAddedAndRemoved(t *testing.T) {
	a := New(Config{Outbounds: outbound.NewManager(outbound.Config{}), MaxConcurrentPoll: 4, SchemaCacheSize: 10})

	a.registry.ReplaceServer("a", nil, nil, nil, nil)
	first := a.UpdateCapabilities()
	assert.True(t, first.HasChanges)
	assert.Contains(t, first.Added, "a")

	unchanged := a.UpdateCapabilities()
	assert.False(t, unchanged.HasChanges)

	a.registry.RemoveServer("a")
	a.registry.ReplaceServer("b", nil, nil, nil, nil)
	third := a.UpdateCapabilities()
	assert.True(t, third.HasChanges)
	assert.Contains(t, third.Added, "b")
	assert.Contains(t, third.Removed, "a")
}
