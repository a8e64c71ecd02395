package template

import (
	"context"
	"sync"

	"github.com/mcpfleet/gateway/internal/config"
	"github.com/mcpfleet/gateway/internal/outbound"
	"github.com/mcpfleet/gateway/pkg/logging"
)

const logSubsystem = "TemplateFactory"

// Outbounds is the subset of *outbound.Manager the Factory depends on.
type Outbounds interface {
	CreateOne(ctx context.Context, name string, params config.MCPServerParams, opts outbound.CreateOptions) (*outbound.Connection, error)
	RemoveOne(key string)
}

// refcount tracks how many sessions currently reference a shareable
// outbound instance, so it is stopped only once the last session leaves.
type refcount struct {
	key   string
	count int
}

// Factory is the per-session half of the template engine:
// at session attach it renders every mcpTemplates entry against the
// session's context, asks the Outbound Manager to materialize (or join)
// the resulting connection, and records the sessionId -> {templateName ->
// hash} back-index the Connection Resolver consults. It satisfies
// resolver.HashTable.
type Factory struct {
	engine    *Engine
	outbounds Outbounds

	mu         sync.Mutex
	bySession  map[string]map[string]string // sessionId -> templateName -> hash (shareable only)
	shareable  map[string]*refcount         // "name:hash" -> refcount
	perSession map[string]map[string]string // sessionId -> templateName -> connectionKey (perClient only)
}

// NewFactory constructs a Factory over outbounds.
func NewFactory(outbounds Outbounds) *Factory {
	return &Factory{
		engine:     New(),
		outbounds:  outbounds,
		bySession:  make(map[string]map[string]string),
		shareable:  make(map[string]*refcount),
		perSession: make(map[string]map[string]string),
	}
}

// HashFor satisfies resolver.HashTable: it answers "what hash did session
// render shareable template name to", or ok=false for a per-client
// template (the resolver finds those directly via name:sessionId) or an
// unattached template.
func (f *Factory) HashFor(sessionID, templateName string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hashes, ok := f.bySession[sessionID]
	if !ok {
		return "", false
	}
	hash, ok := hashes[templateName]
	return hash, ok
}

// Attach renders every template in templates against ctx and materializes
// or joins the resulting outbound for sessionID. It is idempotent per
// (sessionID, templateName) pair — calling it twice for the same session
// is a no-op for templates already attached.
func (f *Factory) Attach(ctx context.Context, sessionID string, templates map[string]config.MCPServerParams, lookup ContextLookup) {
	for name, params := range templates {
		if params.Disabled {
			continue
		}
		f.mu.Lock()
		_, shared := f.bySession[sessionID][name]
		_, own := f.perSession[sessionID][name]
		f.mu.Unlock()
		if shared || own {
			continue
		}
		rendered, err := f.engine.RenderParams(params, lookup)
		if err != nil {
			logging.Warn(logSubsystem, "session %s: render template %q failed, skipping: %v", sessionID, name, err)
			continue
		}

		perClient := rendered.Template == nil || rendered.Template.PerClient || !rendered.Template.Shareable

		conn, err := f.outbounds.CreateOne(ctx, name, rendered, outbound.CreateOptions{IsTemplate: true, SessionID: sessionID})
		if err != nil {
			logging.Warn(logSubsystem, "session %s: materialize template %q failed: %v", sessionID, name, err)
			continue
		}

		f.mu.Lock()
		if perClient {
			if f.perSession[sessionID] == nil {
				f.perSession[sessionID] = make(map[string]string)
			}
			f.perSession[sessionID][name] = conn.Key.String()
		} else {
			if f.bySession[sessionID] == nil {
				f.bySession[sessionID] = make(map[string]string)
			}
			f.bySession[sessionID][name] = conn.Key.Hash

			rc, ok := f.shareable[conn.Key.String()]
			if !ok {
				rc = &refcount{key: conn.Key.String()}
				f.shareable[conn.Key.String()] = rc
			}
			rc.count++
		}
		f.mu.Unlock()
	}
}

// Detach tears down sessionID's template attachments: per-client
// outbounds are stopped unconditionally; shareable outbounds are
// reference-counted and stopped only when the last referencing session
// detaches.
func (f *Factory) Detach(sessionID string) {
	f.mu.Lock()
	perClientKeys := f.perSession[sessionID]
	delete(f.perSession, sessionID)

	// Decrement refcounts for every shareable template this session held.
	var toStop []string
	for name, hash := range f.bySession[sessionID] {
		key := name + ":" + hash
		if rc, ok := f.shareable[key]; ok {
			rc.count--
			if rc.count <= 0 {
				toStop = append(toStop, key)
				delete(f.shareable, key)
			}
		}
	}
	delete(f.bySession, sessionID)
	f.mu.Unlock()

	for _, key := range perClientKeys {
		f.outbounds.RemoveOne(key)
	}
	for _, key := range toStop {
		f.outbounds.RemoveOne(key)
	}
}
