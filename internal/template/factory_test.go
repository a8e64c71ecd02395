package template

import (
	"context"
	"testing"

	"github.com/mcpfleet/gateway/internal/config"
	"github.com/mcpfleet/gateway/internal/outbound"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutbounds struct {
	removed []string
}

func (f *fakeOutbounds) CreateOne(ctx context.Context, name string, params config.MCPServerParams, opts outbound.CreateOptions) (*outbound.Connection, error) {
	var key outbound.Key
	switch {
	case params.Template != nil && params.Template.Shareable && !params.Template.PerClient:
		key = outbound.TemplateHashKey(name, "hash-"+params.Args[0])
	default:
		key = outbound.TemplateSessionKey(name, opts.SessionID)
	}
	return &outbound.Connection{Name: name, Key: key, Status: outbound.StatusConnected}, nil
}

func (f *fakeOutbounds) RemoveOne(key string) {
	f.removed = append(f.removed, key)
}

func TestFactoryAttachPerClientAllocatesUniqueConnections(t *testing.T) {
	fo := &fakeOutbounds{}
	factory := NewFactory(fo)

	templates := map[string]config.MCPServerParams{
		"worker": {
			Type:     config.TransportStdio,
			Args:     []string{"{{project.name}}"},
			Template: &config.TemplateOptions{PerClient: true},
		},
	}

	factory.Attach(context.Background(), "sess-X", templates, ctxFor(map[string]any{"name": "alpha"}))
	factory.Attach(context.Background(), "sess-Y", templates, ctxFor(map[string]any{"name": "beta"}))

	_, ok := factory.HashFor("sess-X", "worker")
	assert.False(t, ok, "perClient templates are not in the hash table")
	assert.NotEqual(t, factory.perSession["sess-X"]["worker"], factory.perSession["sess-Y"]["worker"])
}

func TestFactoryAttachShareableJoinsSameHash(t *testing.T) {
	fo := &fakeOutbounds{}
	factory := NewFactory(fo)

	templates := map[string]config.MCPServerParams{
		"common": {
			Type:     config.TransportStdio,
			Args:     []string{"{{project.environment}}"},
			Template: &config.TemplateOptions{Shareable: true},
		},
	}

	factory.Attach(context.Background(), "sess-X", templates, ctxFor(map[string]any{"environment": "dev"}))
	factory.Attach(context.Background(), "sess-Y", templates, ctxFor(map[string]any{"environment": "dev"}))

	hashX, okX := factory.HashFor("sess-X", "common")
	hashY, okY := factory.HashFor("sess-Y", "common")
	require.True(t, okX)
	require.True(t, okY)
	assert.Equal(t, hashX, hashY)
}

func TestFactoryDetachStopsPerClientUnconditionally(t *testing.T) {
	fo := &fakeOutbounds{}
	factory := NewFactory(fo)
	templates := map[string]config.MCPServerParams{
		"worker": {Type: config.TransportStdio, Template: &config.TemplateOptions{PerClient: true}},
	}
	factory.Attach(context.Background(), "sess-X", templates, ctxFor(nil))
	factory.Detach("sess-X")
	assert.Contains(t, fo.removed, "worker:sess-X")
}

func TestFactoryDetachStopsShareableOnlyAfterLastSession(t *testing.T) {
	fo := &fakeOutbounds{}
	factory := NewFactory(fo)
	templates := map[string]config.MCPServerParams{
		"common": {Args: []string{"dev"}, Type: config.TransportStdio, Template: &config.TemplateOptions{Shareable: true}},
	}
	factory.Attach(context.Background(), "sess-X", templates, ctxFor(nil))
	factory.Attach(context.Background(), "sess-Y", templates, ctxFor(nil))

	factory.Detach("sess-X")
	assert.Empty(t, fo.removed, "shareable connection must survive while sess-Y still references it")

	factory.Detach("sess-Y")
	assert.NotEmpty(t, fo.removed, "last session leaving must stop the shareable connection")
}
