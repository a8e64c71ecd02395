package reload

import (
	"testing"

	"github.com/mcpfleet/gateway/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestDiffServersStopStartRestart(t *testing.T) {
	old := map[string]config.MCPServerParams{
		"a": {Type: config.TransportStdio, Args: []string{"--port=1"}},
		"b": {Type: config.TransportStdio},
	}
	updated := map[string]config.MCPServerParams{
		"a": {Type: config.TransportStdio, Args: []string{"--port=2"}},
		"c": {Type: config.TransportStdio},
	}

	plan := DiffServers(old, updated)
	assert.Equal(t, []string{"b"}, plan.ToStop)
	assert.Equal(t, []string{"c"}, plan.ToStart)
	assert.Equal(t, []string{"a"}, plan.ToRestart)
}

func TestDiffServersNoChangesIsEmpty(t *testing.T) {
	same := map[string]config.MCPServerParams{
		"a": {Type: config.TransportStdio, Command: "echo"},
	}
	plan := DiffServers(same, same)
	assert.True(t, plan.Empty())
}
