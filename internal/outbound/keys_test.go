package outbound

import (
	"testing"

	"github.com/mcpfleet/gateway/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestAllocateKeyStaticServer(t *testing.T) {
	params := config.MCPServerParams{Type: config.TransportStdio, Command: "echo"}
	k := allocateKey("github", params, CreateOptions{})
	assert.Equal(t, "github", k.String())
}

func TestAllocateKeyPerClientTemplateDefault(t *testing.T) {
	params := config.MCPServerParams{Type: config.TransportStdio, Command: "echo"}
	k := allocateKey("github", params, CreateOptions{IsTemplate: true, SessionID: "sess-1"})
	assert.Equal(t, "github:sess-1", k.String())
}

func TestAllocateKeyExplicitPerClient(t *testing.T) {
	params := config.MCPServerParams{
		Type:     config.TransportStdio,
		Command:  "echo",
		Template: &config.TemplateOptions{PerClient: true},
	}
	k := allocateKey("github", params, CreateOptions{IsTemplate: true, SessionID: "sess-1"})
	assert.Equal(t, "github:sess-1", k.String())
}

func TestAllocateKeyShareableTemplateHashesParams(t *testing.T) {
	params := config.MCPServerParams{
		Type:     config.TransportStdio,
		Command:  "echo",
		Args:     []string{"--token", "abc"},
		Template: &config.TemplateOptions{Shareable: true},
	}
	k1 := allocateKey("github", params, CreateOptions{IsTemplate: true, SessionID: "sess-1"})
	k2 := allocateKey("github", params, CreateOptions{IsTemplate: true, SessionID: "sess-2"})

	assert.Equal(t, k1, k2, "identical renders of a shareable template collapse onto one key")
	assert.Equal(t, "github", k1.Name)
	assert.NotEmpty(t, k1.Hash)

	other := params
	other.Args = []string{"--token", "different"}
	k3 := allocateKey("github", other, CreateOptions{IsTemplate: true, SessionID: "sess-1"})
	assert.NotEqual(t, k1, k3, "different renders must not collide")
}
