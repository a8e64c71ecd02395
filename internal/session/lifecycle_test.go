package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpfleet/gateway/internal/config"
	"github.com/mcpfleet/gateway/internal/errs"
	"github.com/mcpfleet/gateway/internal/outbound"
	"github.com/mcpfleet/gateway/internal/storage"
	"github.com/mcpfleet/gateway/internal/tagquery"
	"github.com/mcpfleet/gateway/internal/template"
)

// fakeOutbounds records the template factory's create/remove traffic.
type fakeOutbounds struct {
	created []string
	removed []string
}

func (f *fakeOutbounds) CreateOne(_ context.Context, name string, params config.MCPServerParams, opts outbound.CreateOptions) (*outbound.Connection, error) {
	var key outbound.Key
	if params.Template != nil && params.Template.Shareable && !params.Template.PerClient {
		key = outbound.TemplateHashKey(name, "deadbeef")
	} else {
		key = outbound.TemplateSessionKey(name, opts.SessionID)
	}
	f.created = append(f.created, key.String())
	return &outbound.Connection{Name: name, Key: key, Status: outbound.StatusConnected}, nil
}

func (f *fakeOutbounds) RemoveOne(key string) {
	f.removed = append(f.removed, key)
}

// staticSnapshot satisfies Snapshotter with a fixed snapshot.
type staticSnapshot struct {
	snap *config.Snapshot
}

func (s staticSnapshot) Active() *config.Snapshot { return s.snap }

func newTestService(t *testing.T, snap *config.Snapshot) (*Service, *fakeOutbounds) {
	t.Helper()
	if snap == nil {
		snap = &config.Snapshot{}
	}
	outbounds := &fakeOutbounds{}
	svc := NewService(Config{
		Templates: template.NewFactory(outbounds),
		Snapshot:  staticSnapshot{snap: snap},
		Store:     NewRegistry(storage.NewMemoryRepository(), time.Hour),
		Presets:   tagquery.NewPresetStore(t.TempDir()),
	})
	return svc, outbounds
}

func TestOpenSessionAllocatesPrefixedID(t *testing.T) {
	svc, _ := newTestService(t, nil)

	sess, err := svc.OpenSession(context.Background(), TransportStreamableHTTP, OpenOptions{FilterMode: FilterModeNone})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sess.ID, IDPrefix))

	got, ok := svc.Session(sess.ID)
	require.True(t, ok)
	assert.Same(t, sess, got)
}

func TestOpenSessionNoFilterMatchesEverything(t *testing.T) {
	svc, _ := newTestService(t, nil)

	sess, err := svc.OpenSession(context.Background(), TransportStreamableHTTP, OpenOptions{})
	require.NoError(t, err)
	assert.True(t, sess.Expr.Evaluate(map[string]struct{}{"anything": {}}))
	assert.True(t, sess.Expr.Evaluate(map[string]struct{}{}))
}

func TestOpenSessionSimpleTagsAreORed(t *testing.T) {
	svc, _ := newTestService(t, nil)

	sess, err := svc.OpenSession(context.Background(), TransportStreamableHTTP, OpenOptions{
		FilterMode: FilterModeSimple,
		Tags:       []string{"web", "db"},
	})
	require.NoError(t, err)
	assert.True(t, sess.Expr.Evaluate(map[string]struct{}{"web": {}}))
	assert.True(t, sess.Expr.Evaluate(map[string]struct{}{"db": {}}))
	assert.False(t, sess.Expr.Evaluate(map[string]struct{}{"files": {}}))
}

func TestOpenSessionRejectsInvalidTagName(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.OpenSession(context.Background(), TransportStreamableHTTP, OpenOptions{
		FilterMode: FilterModeSimple,
		Tags:       []string{"has space"},
	})
	var invalid *errs.InvalidTagExpressionError
	assert.ErrorAs(t, err, &invalid)
}

func TestOpenSessionAdvancedExpression(t *testing.T) {
	svc, _ := newTestService(t, nil)

	sess, err := svc.OpenSession(context.Background(), TransportStreamableHTTP, OpenOptions{
		FilterMode:    FilterModeAdvanced,
		TagExpression: "web+!db",
	})
	require.NoError(t, err)
	assert.True(t, sess.Expr.Evaluate(map[string]struct{}{"web": {}}))
	assert.False(t, sess.Expr.Evaluate(map[string]struct{}{"web": {}, "db": {}}))
}

func TestOpenSessionUnknownPresetFails(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.OpenSession(context.Background(), TransportStreamableHTTP, OpenOptions{
		FilterMode: FilterModePreset,
		PresetName: "missing",
	})
	assert.Error(t, err)
}

func TestOpenSessionPresetResolves(t *testing.T) {
	svc, _ := newTestService(t, nil)
	require.NoError(t, svc.presets.Save(tagquery.Preset{
		Name:     "prod",
		Strategy: "or",
		TagQuery: tagquery.Query{In: []string{"web", "api"}},
	}))

	sess, err := svc.OpenSession(context.Background(), TransportStreamableHTTP, OpenOptions{
		FilterMode: FilterModePreset,
		PresetName: "prod",
	})
	require.NoError(t, err)
	assert.Equal(t, "prod", sess.PresetName)
	assert.True(t, sess.Expr.Evaluate(map[string]struct{}{"api": {}}))
	assert.False(t, sess.Expr.Evaluate(map[string]struct{}{"db": {}}))
}

func TestAuthExprNarrowsQueryFilter(t *testing.T) {
	svc, _ := newTestService(t, nil)

	authExpr := tagquery.Or{tagquery.Tag("web")}
	sess, err := svc.OpenSession(context.Background(), TransportStreamableHTTP, OpenOptions{
		FilterMode:    FilterModeAdvanced,
		TagExpression: "web,db",
		AuthExpr:      authExpr,
	})
	require.NoError(t, err)

	// db alone satisfies the query filter but not the token's grant.
	assert.False(t, sess.Expr.Evaluate(map[string]struct{}{"db": {}}))
	assert.True(t, sess.Expr.Evaluate(map[string]struct{}{"web": {}}))
}

func TestAuthExprReplacesUnfilteredSession(t *testing.T) {
	svc, _ := newTestService(t, nil)

	sess, err := svc.OpenSession(context.Background(), TransportStreamableHTTP, OpenOptions{
		FilterMode: FilterModeNone,
		AuthExpr:   tagquery.Or{tagquery.Tag("web")},
	})
	require.NoError(t, err)
	assert.True(t, sess.Expr.Evaluate(map[string]struct{}{"web": {}}))
	assert.False(t, sess.Expr.Evaluate(map[string]struct{}{"db": {}}))
}

func TestOpenSessionAttachesTemplates(t *testing.T) {
	snap := &config.Snapshot{
		MCPTemplates: map[string]config.MCPServerParams{
			"worker": {
				Type:     config.TransportStdio,
				Command:  "worker",
				Args:     []string{"{{project.name}}"},
				Template: &config.TemplateOptions{PerClient: true},
			},
		},
	}
	svc, outbounds := newTestService(t, snap)

	sess, err := svc.OpenSession(context.Background(), TransportStreamableHTTP, OpenOptions{
		Context: template.ContextData{Project: map[string]any{"name": "alpha"}},
	})
	require.NoError(t, err)
	require.Len(t, outbounds.created, 1)
	assert.Equal(t, "worker:"+sess.ID, outbounds.created[0])
}

func TestCloseSessionDetachesTemplates(t *testing.T) {
	snap := &config.Snapshot{
		MCPTemplates: map[string]config.MCPServerParams{
			"worker": {
				Type:     config.TransportStdio,
				Command:  "worker",
				Template: &config.TemplateOptions{PerClient: true},
			},
		},
	}
	svc, outbounds := newTestService(t, snap)

	sess, err := svc.OpenSession(context.Background(), TransportStreamableHTTP, OpenOptions{})
	require.NoError(t, err)

	svc.CloseSession(sess.ID, false)
	require.Len(t, outbounds.removed, 1)
	assert.Equal(t, "worker:"+sess.ID, outbounds.removed[0])

	_, ok := svc.Session(sess.ID)
	assert.False(t, ok)
}

func TestRefineNarrowsOpenSession(t *testing.T) {
	svc, _ := newTestService(t, nil)

	sess, err := svc.OpenSession(context.Background(), TransportStreamableHTTP, OpenOptions{FilterMode: FilterModeNone})
	require.NoError(t, err)
	assert.True(t, sess.Expr.Evaluate(map[string]struct{}{"db": {}}))

	require.NoError(t, svc.Refine(sess.ID, OpenOptions{
		FilterMode: FilterModeSimple,
		Tags:       []string{"web"},
	}))

	refined, ok := svc.Session(sess.ID)
	require.True(t, ok)
	assert.False(t, refined.Expr.Evaluate(map[string]struct{}{"db": {}}))
	assert.True(t, refined.Expr.Evaluate(map[string]struct{}{"web": {}}))
}

func TestRefineUnknownSessionFails(t *testing.T) {
	svc, _ := newTestService(t, nil)
	err := svc.Refine("mcpg-sess-nope", OpenOptions{FilterMode: FilterModeNone})
	assert.ErrorIs(t, err, errs.ErrSessionNotFound)
}

func TestRestoreSessionKeepsIdentity(t *testing.T) {
	store := storage.NewMemoryRepository()
	outbounds := &fakeOutbounds{}
	mkService := func() *Service {
		return NewService(Config{
			Templates: template.NewFactory(outbounds),
			Snapshot:  staticSnapshot{snap: &config.Snapshot{}},
			Store:     NewRegistry(store, time.Hour),
			Presets:   tagquery.NewPresetStore(t.TempDir()),
		})
	}

	first := mkService()
	sess, err := first.OpenSession(context.Background(), TransportStreamableHTTP, OpenOptions{
		FilterMode:    FilterModeAdvanced,
		TagExpression: "web",
	})
	require.NoError(t, err)

	// A second service over the same store models a process restart.
	second := mkService()
	restored, err := second.RestoreSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, restored.ID)
	assert.Equal(t, FilterModeAdvanced, restored.FilterMode)
	assert.True(t, restored.Expr.Evaluate(map[string]struct{}{"web": {}}))
}

func TestRestoreSessionUnknownFails(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.RestoreSession(context.Background(), "mcpg-sess-nope")
	assert.ErrorIs(t, err, errs.ErrSessionNotFound)
}
