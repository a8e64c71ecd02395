package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidDocument(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{
		"mcpServers": {"files": {"type": "stdio", "command": "files-server", "tags": ["fs"]}},
		"mcpTemplates": {"github": {"type": "streamable-http", "url": "https://{{host}}/mcp", "template": {"shareable": true}}}
	}`)

	snap, err := Load(path)
	require.NoError(t, err)
	require.Contains(t, snap.MCPServers, "files")
	require.Contains(t, snap.MCPTemplates, "github")
	assert.True(t, snap.MCPTemplates["github"].Template.Shareable)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestLoadMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{not json`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadFailsValidation(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{
		"mcpServers": {"x": {"type": "stdio"}}
	}`)
	_, err := Load(path)
	require.Error(t, err)
}
