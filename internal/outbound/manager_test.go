package outbound

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return NewManager(Config{ProxyName: "proxy", MaxConcurrentConnects: 4})
}

func insertEntry(m *Manager, key Key, status Status) *entry {
	e := &entry{conn: &Connection{Name: key.Name, Key: key, Status: status}}
	m.mu.Lock()
	m.entries[key.String()] = e
	m.mu.Unlock()
	return e
}

func TestGetByNamePrefersSessionKeyOverStaticAndHash(t *testing.T) {
	m := newTestManager()
	insertEntry(m, StaticKey("github"), StatusConnected)
	insertEntry(m, TemplateHashKey("github", "abc123"), StatusConnected)
	insertEntry(m, TemplateSessionKey("github", "sess-1"), StatusConnected)

	conn, ok := m.GetByName("github", "sess-1")
	require.True(t, ok)
	assert.Equal(t, "sess-1", conn.Key.SessionID)
}

func TestGetByNameFallsBackToTemplateHashThenStatic(t *testing.T) {
	m := newTestManager()
	insertEntry(m, StaticKey("github"), StatusConnected)
	insertEntry(m, TemplateHashKey("github", "abc123"), StatusConnected)

	conn, ok := m.GetByName("github", "sess-unrelated")
	require.True(t, ok)
	assert.Equal(t, "abc123", conn.Key.Hash)

	m2 := newTestManager()
	insertEntry(m2, StaticKey("github"), StatusConnected)
	conn2, ok := m2.GetByName("github", "")
	require.True(t, ok)
	assert.Equal(t, "github", conn2.Key.Name)
	assert.Empty(t, conn2.Key.Hash)
}

func TestGetByNameUnknownServerReturnsFalse(t *testing.T) {
	m := newTestManager()
	_, ok := m.GetByName("nope", "")
	assert.False(t, ok)
}

func TestRemoveOneIsIdempotent(t *testing.T) {
	m := newTestManager()
	e := insertEntry(m, StaticKey("github"), StatusConnected)
	e.cancel = func() {}

	m.RemoveOne("github")
	_, ok := m.GetByName("github", "")
	assert.False(t, ok)

	// second call must not panic on an already-removed key.
	m.RemoveOne("github")
}

func TestSnapshotReturnsIndependentCopies(t *testing.T) {
	m := newTestManager()
	insertEntry(m, StaticKey("github"), StatusConnected)

	snap := m.Snapshot()
	require.Len(t, snap, 1)
	snap["github"].Status = StatusError

	conn, _ := m.GetByName("github", "")
	assert.Equal(t, StatusConnected, conn.Status, "mutating a snapshot entry must not affect the live connection")
}

func TestFinishOAuthRejectsStdioTransport(t *testing.T) {
	m := newTestManager()
	e := insertEntry(m, StaticKey("local"), StatusAwaitingOAuth)
	e.isNetwork = false

	err := m.FinishOAuth(context.Background(), "local", "code")
	require.Error(t, err)
}

func TestFinishOAuthRequiresConfiguredExchanger(t *testing.T) {
	m := newTestManager()
	e := insertEntry(m, StaticKey("remote"), StatusAwaitingOAuth)
	e.isNetwork = true

	err := m.FinishOAuth(context.Background(), "remote", "code")
	require.Error(t, err)
}
