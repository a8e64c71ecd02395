package resolver

import (
	"testing"

	"github.com/mcpfleet/gateway/internal/outbound"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutbounds struct {
	snapshot map[string]*outbound.Connection
}

func (f *fakeOutbounds) Snapshot() map[string]*outbound.Connection { return f.snapshot }

func (f *fakeOutbounds) GetByName(name, sessionID string) (*outbound.Connection, bool) {
	conn, ok := f.snapshot[name]
	return conn, ok
}

type fakeHashes struct {
	table map[string]map[string]string // sessionID -> name -> hash
}

func (f *fakeHashes) HashFor(sessionID, name string) (string, bool) {
	names, ok := f.table[sessionID]
	if !ok {
		return "", false
	}
	hash, ok := names[name]
	return hash, ok
}

func conn(name string) *outbound.Connection { return &outbound.Connection{Name: name} }

func TestResolvePerClientTakesPriority(t *testing.T) {
	outbounds := &fakeOutbounds{snapshot: map[string]*outbound.Connection{
		"worker:sess-1": conn("worker"),
		"worker":        conn("worker-static"),
	}}
	r := New(outbounds, nil)
	got, ok := r.Resolve("worker", "sess-1")
	require.True(t, ok)
	assert.Equal(t, "worker", got.Name)
}

func TestResolveFallsBackToShareableHash(t *testing.T) {
	outbounds := &fakeOutbounds{snapshot: map[string]*outbound.Connection{
		"common:h1": conn("common"),
	}}
	hashes := &fakeHashes{table: map[string]map[string]string{"sess-1": {"common": "h1"}}}
	r := New(outbounds, hashes)
	got, ok := r.Resolve("common", "sess-1")
	require.True(t, ok)
	assert.Equal(t, "common", got.Name)
}

func TestResolveFallsBackToStatic(t *testing.T) {
	outbounds := &fakeOutbounds{snapshot: map[string]*outbound.Connection{
		"github": conn("github"),
	}}
	r := New(outbounds, nil)
	got, ok := r.Resolve("github", "sess-1")
	require.True(t, ok)
	assert.Equal(t, "github", got.Name)
}

func TestResolveNotFound(t *testing.T) {
	outbounds := &fakeOutbounds{snapshot: map[string]*outbound.Connection{}}
	r := New(outbounds, nil)
	_, ok := r.Resolve("missing", "sess-1")
	assert.False(t, ok)
}

func TestFilterForSessionIncludesStaticAndOwnSession(t *testing.T) {
	outbounds := &fakeOutbounds{snapshot: map[string]*outbound.Connection{
		"github":        conn("github"),
		"worker:sess-1": conn("worker-a"),
		"worker:sess-2": conn("worker-b"),
	}}
	r := New(outbounds, nil)
	view := r.FilterForSession("sess-1")
	assert.Contains(t, view, "github")
	assert.Contains(t, view, "worker:sess-1")
	assert.NotContains(t, view, "worker:sess-2")
}

func TestFilterForSessionIncludesSharedHashMatch(t *testing.T) {
	outbounds := &fakeOutbounds{snapshot: map[string]*outbound.Connection{
		"common:h1": conn("common"),
	}}
	hashes := &fakeHashes{table: map[string]map[string]string{"sess-1": {"common": "h1"}}}
	r := New(outbounds, hashes)
	view := r.FilterForSession("sess-1")
	assert.Contains(t, view, "common:h1")
}

func TestFilterForSessionSkipsMalformedKeys(t *testing.T) {
	outbounds := &fakeOutbounds{snapshot: map[string]*outbound.Connection{
		"a:b:c": conn("bad"),
	}}
	r := New(outbounds, nil)
	view := r.FilterForSession("sess-1")
	assert.NotContains(t, view, "a:b:c")
}
