package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpfleet/gateway/internal/storage"
	"github.com/mcpfleet/gateway/internal/tagquery"
	"github.com/mcpfleet/gateway/internal/template"
)

func TestRegistryPutGet(t *testing.T) {
	r := NewRegistry(nil, time.Hour)
	sess := &Session{ID: "mcpg-sess-1", Transport: TransportStreamableHTTP, LastSeen: time.Now()}
	r.Put(sess)

	got, ok := r.Get("mcpg-sess-1")
	require.True(t, ok)
	assert.Same(t, sess, got)

	_, ok = r.Get("mcpg-sess-2")
	assert.False(t, ok)
}

func TestRegistryRestoreAcrossRestart(t *testing.T) {
	store := storage.NewMemoryRepository()

	expr, err := tagquery.ParseAdvanced("web+!db")
	require.NoError(t, err)

	first := NewRegistry(store, time.Hour)
	first.Put(&Session{
		ID:         "mcpg-sess-persist",
		Transport:  TransportStreamableHTTP,
		Expr:       expr,
		FilterMode: FilterModeAdvanced,
		Context:    template.ContextData{Project: map[string]any{"name": "alpha"}},
		CreatedAt:  time.Now(),
		LastSeen:   time.Now(),
	})

	// A fresh registry over the same store models a process restart.
	second := NewRegistry(store, time.Hour)
	restored, err := second.Restore("mcpg-sess-persist")
	require.NoError(t, err)

	assert.Equal(t, "mcpg-sess-persist", restored.ID, "restoration must reuse the persisted id")
	assert.Equal(t, FilterModeAdvanced, restored.FilterMode)
	require.NotNil(t, restored.Expr)
	assert.True(t, restored.Expr.Evaluate(map[string]struct{}{"web": {}}))
	assert.False(t, restored.Expr.Evaluate(map[string]struct{}{"web": {}, "db": {}}))
	name, ok := restored.Context.Lookup("project.name")
	require.True(t, ok)
	assert.Equal(t, "alpha", name)
}

func TestRegistryRestoreUnknownFails(t *testing.T) {
	r := NewRegistry(storage.NewMemoryRepository(), time.Hour)
	_, err := r.Restore("mcpg-sess-nope")
	assert.Error(t, err)
}

func TestRegistryDeleteRemovesPersistedRecord(t *testing.T) {
	store := storage.NewMemoryRepository()
	r := NewRegistry(store, time.Hour)
	r.Put(&Session{ID: "mcpg-sess-gone", LastSeen: time.Now()})
	r.Delete("mcpg-sess-gone")

	_, ok := r.Get("mcpg-sess-gone")
	assert.False(t, ok)

	second := NewRegistry(store, time.Hour)
	_, err := second.Restore("mcpg-sess-gone")
	assert.Error(t, err)
}

func TestRegistrySweepEvictsExpired(t *testing.T) {
	r := NewRegistry(nil, time.Minute)
	r.Put(&Session{ID: "fresh", LastSeen: time.Now()})
	r.Put(&Session{ID: "stale", LastSeen: time.Now().Add(-2 * time.Minute)})

	removed := r.Sweep()
	assert.Equal(t, 1, removed)

	_, ok := r.Get("fresh")
	assert.True(t, ok)
	_, ok = r.Get("stale")
	assert.False(t, ok)
}

func TestSessionPersistRoundTrip(t *testing.T) {
	expr, err := tagquery.ParseAdvanced("(web,api)+!internal")
	require.NoError(t, err)

	in := &Session{
		ID:               "mcpg-sess-rt",
		Transport:        TransportStreamableHTTP,
		Expr:             expr,
		FilterMode:       FilterModeAdvanced,
		PresetName:       "prod",
		EnablePagination: true,
		CreatedAt:        time.Now().Truncate(time.Second),
	}

	out, err := unmarshalSession(marshalSession(in))
	require.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.FilterMode, out.FilterMode)
	assert.Equal(t, in.PresetName, out.PresetName)
	assert.True(t, out.EnablePagination)

	// The expression round-trips through its string form with identical
	// semantics.
	for _, tags := range []map[string]struct{}{
		{"web": {}},
		{"api": {}},
		{"web": {}, "internal": {}},
		{},
	} {
		assert.Equal(t, in.Expr.Evaluate(tags), out.Expr.Evaluate(tags))
	}
}
