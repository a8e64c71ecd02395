package tagquery

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresetStoreMissingFileIsEmpty(t *testing.T) {
	store := NewPresetStore(t.TempDir())
	presets, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, presets)
}

func TestPresetStoreSaveAndGet(t *testing.T) {
	store := NewPresetStore(t.TempDir())

	require.NoError(t, store.Save(Preset{Name: "web-only", Strategy: StrategyAdvanced, TagQuery: Query{Advanced: "web"}}))

	p, ok, err := store.Get("web-only")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StrategyAdvanced, p.Strategy)
}

func TestPresetStoreSaveUpserts(t *testing.T) {
	store := NewPresetStore(t.TempDir())

	require.NoError(t, store.Save(Preset{Name: "p", Description: "first"}))
	require.NoError(t, store.Save(Preset{Name: "p", Description: "second"}))

	presets, err := store.Load()
	require.NoError(t, err)
	require.Len(t, presets, 1)
	assert.Equal(t, "second", presets[0].Description)
}

func TestPresetStoreDelete(t *testing.T) {
	store := NewPresetStore(t.TempDir())
	require.NoError(t, store.Save(Preset{Name: "p"}))
	require.NoError(t, store.Delete("p"))

	presets, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, presets)
}

func TestPresetStorePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewPresetStore(dir).Save(Preset{Name: "p"}))

	reopened := NewPresetStore(dir)
	_, ok, err := reopened.Get("p")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.FileExists(t, filepath.Join(dir, presetFileName))
}
