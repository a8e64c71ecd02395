package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mcpfleet/gateway/internal/capability"
	"github.com/mcpfleet/gateway/internal/config"
	"github.com/mcpfleet/gateway/internal/metatools"
	"github.com/mcpfleet/gateway/internal/outbound"
	"github.com/mcpfleet/gateway/internal/resolver"
	"github.com/mcpfleet/gateway/internal/tagquery"
	"github.com/mcpfleet/gateway/internal/template"
	"github.com/mcpfleet/gateway/pkg/logging"
)

// ServerName/ServerVersion identify the aggregated gateway to downstream
// clients during their initialize handshake.
const (
	ServerName    = "mcp-gateway"
	ServerVersion = "1.0.0"

	// AuthStatusResourceURI is the sideband resource reporting each
	// connected upstream's OAuth lifecycle state, so agents can discover
	// pending authorization URLs without a side channel.
	AuthStatusResourceURI = "auth://status"
)

// itemRef records what an exposed (possibly collision-prefixed) name maps
// back to: the owning server and the item's original upstream name.
type itemRef struct {
	server string
	name   string
}

// Snapshotter exposes the live config snapshot the service needs: feature
// flags and the active template set, read fresh on every session open so
// a reload takes effect without restarting sessions.
type Snapshotter interface {
	Active() *config.Snapshot
}

// Config configures a Service.
type Config struct {
	Aggregator *capability.Aggregator
	Resolver   *resolver.Resolver
	Outbounds  *outbound.Manager
	Templates  *template.Factory
	Snapshot   Snapshotter
	Store      *Registry
	Presets    *tagquery.PresetStore
}

// Service is the inbound session service: one shared
// mcp-go MCPServer instance, a session registry, and the glue that keeps
// the server's exposed tool/resource/prompt set in sync with the
// Capability Aggregator.
type Service struct {
	aggregator *capability.Aggregator
	resolver   *resolver.Resolver
	outbounds  *outbound.Manager
	templates  *template.Factory
	snapshot   Snapshotter
	registry   *Registry
	presets    *tagquery.PresetStore

	mcpServer *mcpserver.MCPServer

	mu           sync.RWMutex
	toolRefs     map[string]itemRef // exposed tool name -> owning server/original name
	promptRefs   map[string]itemRef
	resourceRefs map[string]itemRef // exposed URI -> owning server/original URI
}

// NewService constructs a Service. Call Start before accepting any
// inbound connection.
func NewService(cfg Config) *Service {
	return &Service{
		aggregator:   cfg.Aggregator,
		resolver:     cfg.Resolver,
		outbounds:    cfg.Outbounds,
		templates:    cfg.Templates,
		snapshot:     cfg.Snapshot,
		registry:     cfg.Store,
		presets:      cfg.Presets,
		toolRefs:     make(map[string]itemRef),
		promptRefs:   make(map[string]itemRef),
		resourceRefs: make(map[string]itemRef),
	}
}

// Start builds the shared MCPServer with session-scoped tool filtering
// and performs the first capability sync.
func (s *Service) Start(ctx context.Context, opts ...mcpserver.ServerOption) {
	serverOpts := append([]mcpserver.ServerOption{
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithLogging(),
		mcpserver.WithToolFilter(s.sessionToolFilter),
	}, opts...)
	s.mcpServer = mcpserver.NewMCPServer(ServerName, ServerVersion, serverOpts...)

	s.registerAuthStatusResource()
	s.syncMCPServer()
}

// MCPServer exposes the shared server instance for transport wiring
// (stdio/SSE/streamable-HTTP) in internal/server.
func (s *Service) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// sessionToolFilter is the WithToolFilter callback:
// every session sees only the tools whose owning server's tags satisfy
// its resolved tag expression, or the three meta-tools when lazyLoading
// is enabled.
func (s *Service) sessionToolFilter(ctx context.Context, _ []mcp.Tool) []mcp.Tool {
	sessionID := sessionIDFromContext(ctx)
	sess, ok := s.registry.Get(sessionID)
	if !ok {
		return nil
	}

	if s.snapshot.Active().Features.LazyLoading {
		provider := s.metatoolsProviderFor(sess)
		tools := make([]mcp.Tool, 0, 3)
		for _, st := range provider.Tools() {
			tools = append(tools, st.Tool)
		}
		return tools
	}

	view := s.aggregator.ComputeView(sess.Expr)
	out := make([]mcp.Tool, 0, len(view.Tools))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range view.Tools {
		exposed := s.aggregator.Registry().ResolveToolName(t.Server, t.Name)
		out = append(out, mcp.Tool{Name: exposed, Description: t.Description, InputSchema: toInputSchema(t.InputSchema)})
	}
	return out
}

func toInputSchema(v any) mcp.ToolInputSchema {
	if schema, ok := v.(mcp.ToolInputSchema); ok {
		return schema
	}
	return mcp.ToolInputSchema{Type: "object"}
}

// metatoolsProviderFor builds a façade bound to sess's filtered view,
// satisfying metatools.Registry over a fresh ComputeView snapshot per
// call rather than a standing index — session churn does not warrant
// the extra bookkeeping a cached per-session registry would need.
func (s *Service) metatoolsProviderFor(sess *Session) *metatools.Provider {
	view := s.aggregator.ComputeView(sess.Expr)
	reg := &sessionRegistryView{view: view}
	denylist := metatools.NewDenylist(s.snapshot.Active().Features.DestructiveTools, s.snapshot.Active().Features.Yolo)
	return metatools.NewProvider(reg, s.aggregator.SchemaCache(), s, denylist)
}

// sessionRegistryView adapts one ComputeView snapshot into
// metatools.Registry, the lazy-loading façade's read model.
type sessionRegistryView struct {
	view capability.View
}

func (v *sessionRegistryView) Tool(server, name string) (capability.ToolInfo, bool) {
	for _, t := range v.view.Tools {
		if t.Server == server && t.Name == name {
			return t, true
		}
	}
	return capability.ToolInfo{}, false
}

func (v *sessionRegistryView) ServersInOrder() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range v.view.Tools {
		if _, ok := seen[t.Server]; !ok {
			seen[t.Server] = struct{}{}
			out = append(out, t.Server)
		}
	}
	sort.Strings(out)
	return out
}

func (v *sessionRegistryView) ToolNamesForServer(server string) []string {
	var out []string
	for _, t := range v.view.Tools {
		if t.Server == server {
			out = append(out, t.Name)
		}
	}
	return out
}

// syncMCPServer diffs the aggregator's registry against the set of names
// currently registered on the shared MCPServer and adds/removes the
// difference in batches.
func (s *Service) syncMCPServer() {
	reg := s.aggregator.Registry()

	wantTools := make(map[string]itemRef)
	for _, t := range reg.AllTools() {
		exposed := reg.ResolveToolName(t.Server, t.Name)
		wantTools[exposed] = itemRef{server: t.Server, name: t.Name}
	}
	wantPrompts := make(map[string]itemRef)
	for _, p := range reg.AllPrompts() {
		wantPrompts[p.Name] = itemRef{server: p.Server, name: p.Name}
	}
	wantResources := make(map[string]itemRef)
	for _, r := range reg.AllResources() {
		wantResources[r.URI] = itemRef{server: r.Server, name: r.URI}
	}

	s.mu.Lock()
	var removeTools, removePrompts, removeResources []string
	for name := range s.toolRefs {
		if _, ok := wantTools[name]; !ok {
			removeTools = append(removeTools, name)
			delete(s.toolRefs, name)
		}
	}
	for name := range s.promptRefs {
		if _, ok := wantPrompts[name]; !ok {
			removePrompts = append(removePrompts, name)
			delete(s.promptRefs, name)
		}
	}
	for uri := range s.resourceRefs {
		if _, ok := wantResources[uri]; !ok {
			removeResources = append(removeResources, uri)
			delete(s.resourceRefs, uri)
		}
	}

	var addTools []mcpserver.ServerTool
	for name, ref := range wantTools {
		if _, ok := s.toolRefs[name]; ok {
			continue
		}
		s.toolRefs[name] = ref
		t, ok := reg.Tool(ref.server, ref.name)
		if !ok {
			continue
		}
		addTools = append(addTools, mcpserver.ServerTool{
			Tool:    mcp.Tool{Name: name, Description: t.Description, InputSchema: toInputSchema(t.InputSchema)},
			Handler: s.toolCallHandler(name),
		})
	}

	var addPrompts []mcpserver.ServerPrompt
	for name, ref := range wantPrompts {
		if _, ok := s.promptRefs[name]; ok {
			continue
		}
		s.promptRefs[name] = ref
		addPrompts = append(addPrompts, mcpserver.ServerPrompt{
			Prompt:  mcp.Prompt{Name: name},
			Handler: s.promptGetHandler(name),
		})
	}

	var addResources []mcpserver.ServerResource
	for uri, ref := range wantResources {
		if _, ok := s.resourceRefs[uri]; ok {
			continue
		}
		s.resourceRefs[uri] = ref
		addResources = append(addResources, mcpserver.ServerResource{
			Resource: resourceFor(reg, ref),
			Handler:  s.resourceReadHandler(uri),
		})
	}
	s.mu.Unlock()

	if s.mcpServer == nil {
		return
	}
	if len(removeTools) > 0 {
		s.mcpServer.DeleteTools(removeTools...)
	}
	if len(removePrompts) > 0 {
		s.mcpServer.DeletePrompts(removePrompts...)
	}
	for _, uri := range removeResources {
		s.mcpServer.RemoveResource(uri)
	}
	if len(addTools) > 0 {
		s.mcpServer.AddTools(addTools...)
	}
	if len(addPrompts) > 0 {
		s.mcpServer.AddPrompts(addPrompts...)
	}
	if len(addResources) > 0 {
		s.mcpServer.AddResources(addResources...)
	}
}

func resourceFor(reg *capability.ToolRegistry, ref itemRef) mcp.Resource {
	for _, r := range reg.AllResources() {
		if r.Server == ref.server && r.URI == ref.name {
			return mcp.Resource{URI: r.URI, Name: r.Name, Description: r.Description, MIMEType: r.MimeType}
		}
	}
	return mcp.Resource{URI: ref.name}
}

// toolCallHandler returns the dispatch closure for an already-registered
// exposed tool name, resolving it back to (server, originalName) via
// toolRefs each call so a reload's rename/removal is picked up immediately.
func (s *Service) toolCallHandler(exposedName string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.mu.RLock()
		ref, ok := s.toolRefs[exposedName]
		s.mu.RUnlock()
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("tool %q is no longer available", exposedName)), nil
		}

		denylist := metatools.NewDenylist(s.snapshot.Active().Features.DestructiveTools, s.snapshot.Active().Features.Yolo)
		if denylist.Blocked(ref.name) {
			return mcp.NewToolResultError(fmt.Sprintf("tool %q is blocked by the destructive-tool denylist", ref.name)), nil
		}

		args, ok := req.Params.Arguments.(map[string]interface{})
		if !ok || args == nil {
			args = map[string]interface{}{}
		}

		sessionID := sessionIDFromContext(ctx)
		result, err := s.CallTool(ctx, sessionID, ref.server, ref.name, args)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("tool execution failed: %v", err)), nil
		}
		return result, nil
	}
}

func (s *Service) promptGetHandler(exposedName string) func(context.Context, mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		s.mu.RLock()
		ref, ok := s.promptRefs[exposedName]
		s.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("prompt %q is no longer available", exposedName)
		}

		sessionID := sessionIDFromContext(ctx)
		cc, err := s.resolveClient(ref.server, sessionID)
		if err != nil {
			return nil, err
		}
		return cc.getPrompt(ctx, ref.name, req.Params.Arguments)
	}
}

func (s *Service) resourceReadHandler(uri string) func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		s.mu.RLock()
		ref, ok := s.resourceRefs[uri]
		s.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("resource %q is no longer available", uri)
		}

		sessionID := sessionIDFromContext(ctx)
		cc, err := s.resolveClient(ref.server, sessionID)
		if err != nil {
			return nil, err
		}
		return cc.readResource(ctx, ref.name)
	}
}

// BroadcastCapabilityChange implements reload.Notifier: resync the global
// exposed-item set, then send the tools, resources and prompts
// list_changed notifications to every attached session whose view
// includes a server in cs.Added or, when cs.Removed is non-empty, has a
// non-nil filter. The three notifications always go out together; a
// session's view before and after the change is not compared per category.
func (s *Service) BroadcastCapabilityChange(cs capability.ChangeSet) {
	s.syncMCPServer()

	if s.mcpServer == nil {
		return
	}

	for _, sess := range s.registry.All() {
		// A server the session's filter never matched cannot have
		// changed its view; skip the eventually-consistent notify.
		view := s.aggregator.ComputeView(sess.Expr)
		affected := false
		for _, server := range cs.Added {
			if viewHasServer(view, server) {
				affected = true
				break
			}
		}
		if !affected {
			for _, server := range cs.Removed {
				if serverCouldHaveBeenVisible(sess.Expr, server) {
					affected = true
					break
				}
			}
		}
		if !affected {
			continue
		}
		if err := s.mcpServer.SendNotificationToSpecificClient(sess.ID, "notifications/tools/list_changed", nil); err != nil {
			logging.Warn(logSubsystem, "notify session %s of tools change failed: %v", sess.ID, err)
		}
		if err := s.mcpServer.SendNotificationToSpecificClient(sess.ID, "notifications/resources/list_changed", nil); err != nil {
			logging.Warn(logSubsystem, "notify session %s of resources change failed: %v", sess.ID, err)
		}
		if err := s.mcpServer.SendNotificationToSpecificClient(sess.ID, "notifications/prompts/list_changed", nil); err != nil {
			logging.Warn(logSubsystem, "notify session %s of prompts change failed: %v", sess.ID, err)
		}
	}
}

func viewHasServer(view capability.View, server string) bool {
	for _, t := range view.Tools {
		if t.Server == server {
			return true
		}
	}
	return false
}

// serverCouldHaveBeenVisible is a conservative check used only for
// Removed servers, whose tags are gone by the time this runs: any
// session without an empty tag filter is assumed potentially affected,
// since the server's former tags can no longer be consulted.
func serverCouldHaveBeenVisible(expr tagquery.Expr, _ string) bool {
	return expr != nil
}

func sessionIDFromContext(ctx context.Context) string {
	if sess := mcpserver.ClientSessionFromContext(ctx); sess != nil {
		if id := sess.SessionID(); id != "" {
			return id
		}
	}
	return StdioSessionID
}

// newSessionID allocates an opaque, service-prefixed session id, so the
// proxy can tell its own ids apart from pass-through values.
func newSessionID() string {
	return IDPrefix + uuid.NewString()
}
