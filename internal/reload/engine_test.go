package reload

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mcpfleet/gateway/internal/capability"
	"github.com/mcpfleet/gateway/internal/config"
	"github.com/mcpfleet/gateway/internal/outbound"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutbounds struct {
	mu       sync.Mutex
	removed  []string
	created  []string
	restarted []string
}

func (f *fakeOutbounds) RemoveOne(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, key)
}

func (f *fakeOutbounds) CreateOne(ctx context.Context, name string, params config.MCPServerParams, opts outbound.CreateOptions) (*outbound.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, name)
	return &outbound.Connection{Name: name, Key: outbound.StaticKey(name)}, nil
}

func (f *fakeOutbounds) Restart(ctx context.Context, key string, newParams config.MCPServerParams) (*outbound.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarted = append(f.restarted, key)
	return &outbound.Connection{Name: key}, nil
}

type fakeAggregator struct {
	refreshCalls int
	changeSet    capability.ChangeSet
}

func (f *fakeAggregator) RefreshAll(ctx context.Context) { f.refreshCalls++ }
func (f *fakeAggregator) UpdateCapabilities() capability.ChangeSet { return f.changeSet }

type fakeNotifier struct {
	mu    sync.Mutex
	calls []capability.ChangeSet
}

func (f *fakeNotifier) BroadcastCapabilityChange(cs capability.ChangeSet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cs)
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.Fail(t, "condition never became true")
}

func TestEngineReloadAppliesPlanAndNotifiesOnChange(t *testing.T) {
	fo := &fakeOutbounds{}
	fa := &fakeAggregator{changeSet: capability.ChangeSet{HasChanges: true}}
	fn := &fakeNotifier{}

	initial := &config.Snapshot{MCPServers: map[string]config.MCPServerParams{
		"a": {Type: config.TransportStdio},
	}}
	e := New(Config{Outbounds: fo, Aggregator: fa, Notifier: fn, MaxConcurrentApply: 4}, initial)

	next := &config.Snapshot{MCPServers: map[string]config.MCPServerParams{
		"a": {Type: config.TransportStdio},
		"b": {Type: config.TransportStdio},
	}}
	e.Reload(context.Background(), next)

	waitUntil(t, func() bool {
		fo.mu.Lock()
		defer fo.mu.Unlock()
		return len(fo.created) == 1
	})
	assert.Contains(t, fo.created, "b")
	waitUntil(t, func() bool {
		fn.mu.Lock()
		defer fn.mu.Unlock()
		return len(fn.calls) == 1
	})
}

func TestEngineReloadCollapsesQueuedRequests(t *testing.T) {
	fo := &fakeOutbounds{}
	fa := &fakeAggregator{}
	e := New(Config{Outbounds: fo, Aggregator: fa, MaxConcurrentApply: 4}, &config.Snapshot{})

	for i := 0; i < 5; i++ {
		e.Reload(context.Background(), &config.Snapshot{MCPServers: map[string]config.MCPServerParams{
			"x": {Type: config.TransportStdio},
		}})
	}

	waitUntil(t, func() bool { return e.Active().MCPServers != nil })
	assert.Contains(t, e.Active().MCPServers, "x")
}

func TestEngineTemplateBreakerTripsOnSyntaxError(t *testing.T) {
	fo := &fakeOutbounds{}
	fa := &fakeAggregator{}
	e := New(Config{Outbounds: fo, Aggregator: fa, MaxConcurrentApply: 4, BreakerThreshold: 1}, &config.Snapshot{
		MCPTemplates: map[string]config.MCPServerParams{},
	})

	bad := &config.Snapshot{MCPTemplates: map[string]config.MCPServerParams{
		"broken": {Type: config.TransportStdio, Command: "{{#if project.x}}unterminated"},
	}}
	e.Reload(context.Background(), bad)

	waitUntil(t, func() bool { return e.Breaker().Open() })
	assert.Empty(t, e.Active().MCPTemplates, "a syntax-broken template must not be adopted")
}
