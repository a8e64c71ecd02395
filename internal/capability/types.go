// Package capability implements the Capability Aggregator: it polls every
// connected outbound for tools/resources/prompts, normalizes them into a
// ToolRegistry, caches full input schemas in a bounded SchemaCache, and
// computes per-session views by applying a session's tag expression
// against the owning server's tags (never the item's own tags — servers
// are tagged, not tools).
package capability

import (
	"sort"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// ItemKey identifies a tool/resource/prompt by the server that owns it and
// its name within that server, the ToolRegistry's primary index.
type ItemKey struct {
	Server string
	Name   string
}

// ToolInfo is the normalized, server-tagged view of a single upstream tool.
type ToolInfo struct {
	Server      string
	Name        string
	Description string
	InputSchema any
	Tags        []string
}

// ResourceInfo is the normalized, server-tagged view of a single upstream
// resource.
type ResourceInfo struct {
	Server      string
	URI         string
	Name        string
	Description string
	MimeType    string
	Tags        []string
}

// PromptInfo is the normalized, server-tagged view of a single upstream
// prompt.
type PromptInfo struct {
	Server      string
	Name        string
	Description string
	Tags        []string
}

// View is the filtered capability surface returned to a single session.
type View struct {
	Tools     []ToolInfo
	Resources []ResourceInfo
	Prompts   []PromptInfo
}

// ToolRegistry is the indexed union of every connected upstream's tools,
// resources, and prompts, with a by-server derived index. All mutation
// happens through ReplaceServer/RemoveServer; readers take a read lock.
type ToolRegistry struct {
	mu sync.RWMutex

	tools     map[ItemKey]ToolInfo
	resources map[ItemKey]ResourceInfo
	prompts   map[ItemKey]PromptInfo

	// byServer lists the tool names registered for a server, in upstream
	// list order, for pagination's lexical-order-of-clients walk and for
	// wholesale removal when a server disconnects.
	byServer map[string][]string
}

// NewToolRegistry constructs an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:     make(map[ItemKey]ToolInfo),
		resources: make(map[ItemKey]ResourceInfo),
		prompts:   make(map[ItemKey]PromptInfo),
		byServer:  make(map[string][]string),
	}
}

// ReplaceServer atomically replaces every item registered under server
// with the freshly-fetched set, used by RefreshAll per connected
// upstream. Passing an empty set for an unreachable server removes its
// tools from the view without touching any other server's entries — the
// "local recovery" rule: other upstreams are unaffected.
func (r *ToolRegistry) ReplaceServer(server string, tags []string, tools []mcp.Tool, resources []mcp.Resource, prompts []mcp.Prompt) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.byServer[server] {
		delete(r.tools, ItemKey{Server: server, Name: name})
	}
	for k := range r.resources {
		if k.Server == server {
			delete(r.resources, k)
		}
	}
	for k := range r.prompts {
		if k.Server == server {
			delete(r.prompts, k)
		}
	}

	names := make([]string, 0, len(tools))
	for _, t := range tools {
		key := ItemKey{Server: server, Name: t.Name}
		r.tools[key] = ToolInfo{
			Server:      server,
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
			Tags:        tags,
		}
		names = append(names, t.Name)
	}
	r.byServer[server] = names

	for _, res := range resources {
		key := ItemKey{Server: server, Name: res.URI}
		r.resources[key] = ResourceInfo{
			Server:      server,
			URI:         res.URI,
			Name:        res.Name,
			Description: res.Description,
			MimeType:    res.MIMEType,
			Tags:        tags,
		}
	}

	for _, p := range prompts {
		key := ItemKey{Server: server, Name: p.Name}
		r.prompts[key] = PromptInfo{
			Server:      server,
			Name:        p.Name,
			Description: p.Description,
			Tags:        tags,
		}
	}
}

// RemoveServer drops every item registered under server, used when an
// outbound connection is torn down (reload stop, session factory
// teardown).
func (r *ToolRegistry) RemoveServer(server string) {
	r.ReplaceServer(server, nil, nil, nil, nil)
	r.mu.Lock()
	delete(r.byServer, server)
	r.mu.Unlock()
}

// Tool looks up a single tool by server+name.
func (r *ToolRegistry) Tool(server, name string) (ToolInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[ItemKey{Server: server, Name: name}]
	return t, ok
}

// AllTools returns every registered tool, across every server.
func (r *ToolRegistry) AllTools() []ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolInfo, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// AllResources returns every registered resource.
func (r *ToolRegistry) AllResources() []ResourceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ResourceInfo, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res)
	}
	return out
}

// AllPrompts returns every registered prompt.
func (r *ToolRegistry) AllPrompts() []PromptInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PromptInfo, 0, len(r.prompts))
	for _, p := range r.prompts {
		out = append(out, p)
	}
	return out
}

// ResolveToolName returns the flat name a tool should be exposed under
// when every upstream's tools are merged into one namespace (the
// non-lazy-loading exposure mode): the bare name, unless some other
// server also registers a tool of that name, in which case it is
// prefixed "<server>_<name>" to disambiguate. The collision check is a
// live count over whatever servers are actually connected.
func (r *ToolRegistry) ResolveToolName(server, name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owners := 0
	for s, names := range r.byServer {
		for _, n := range names {
			if n == name {
				owners++
				break
			}
		}
		_ = s
	}
	if owners > 1 {
		return server + "_" + name
	}
	return name
}

// ServersInOrder returns every currently registered server name (a name
// dropped by RemoveServer is not included), in a stable lexical order — the order pagination's cross-upstream walk
// uses.
func (r *ToolRegistry) ServersInOrder() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byServer))
	for s := range r.byServer {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ToolNamesForServer returns the tool names registered for server, in
// upstream list order.
func (r *ToolRegistry) ToolNamesForServer(server string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := r.byServer[server]
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// schemaCacheEntry pairs a cached schema with its bookkeeping for LRU +
// access-count tiebreak eviction.
type schemaCacheEntry struct {
	schema      any
	lastAccess  time.Time
	accessCount int
}

// SchemaCache is a bounded LRU of full tool input schemas, keyed by
// (server, tool). Eviction picks the least-recently-used entry, breaking
// ties by lowest access count — a cheap approximation of LFU-among-LRU
// that favors evicting schemas that were both stale and rarely used.
type SchemaCache struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[ItemKey]*schemaCacheEntry

	// singleflight-style compute-if-absent bookkeeping: at most one
	// fetch in flight per key.
	inflight map[ItemKey]chan struct{}
}

// NewSchemaCache constructs a cache bounded to maxEntries.
func NewSchemaCache(maxEntries int) *SchemaCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &SchemaCache{
		maxEntries: maxEntries,
		entries:    make(map[ItemKey]*schemaCacheEntry),
		inflight:   make(map[ItemKey]chan struct{}),
	}
}

// Get returns the cached schema for key, if present, bumping its
// recency/access bookkeeping.
func (c *SchemaCache) Get(key ItemKey) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e.lastAccess = time.Now()
	e.accessCount++
	return e.schema, true
}

// Put stores schema for key, evicting the least-recently-used entry (with
// access-count tiebreak) if the cache is at capacity.
func (c *SchemaCache) Put(key ItemKey, schema any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[key] = &schemaCacheEntry{schema: schema, lastAccess: time.Now(), accessCount: 1}
}

// GetOrCompute returns the cached schema for key if present; otherwise it
// calls fetch exactly once per key even under concurrent callers — a
// second caller arriving while a fetch is in flight waits on the first
// caller's result rather than issuing a redundant upstream request, the
// single-writer-per-key rule the meta-tool façade's tool_schema needs on
// a cache miss.
func (c *SchemaCache) GetOrCompute(key ItemKey, fetch func() (any, error)) (any, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.lastAccess = time.Now()
		e.accessCount++
		c.mu.Unlock()
		return e.schema, nil
	}
	if wait, inflight := c.inflight[key]; inflight {
		c.mu.Unlock()
		<-wait
		schema, _ := c.Get(key)
		return schema, nil
	}
	done := make(chan struct{})
	c.inflight[key] = done
	c.mu.Unlock()

	schema, err := fetch()

	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()
	close(done)

	if err != nil {
		return nil, err
	}
	c.Put(key, schema)
	return schema, nil
}

func (c *SchemaCache) evictLocked() {
	var victim ItemKey
	var victimEntry *schemaCacheEntry
	for k, e := range c.entries {
		if victimEntry == nil ||
			e.lastAccess.Before(victimEntry.lastAccess) ||
			(e.lastAccess.Equal(victimEntry.lastAccess) && e.accessCount < victimEntry.accessCount) {
			victim, victimEntry = k, e
		}
	}
	if victimEntry != nil {
		delete(c.entries, victim)
	}
}

// Sweep removes entries untouched for longer than ttl, run periodically
// alongside the filter cache's own sweep.
func (c *SchemaCache) Sweep(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := time.Now().Add(-ttl)
	for k, e := range c.entries {
		if e.lastAccess.Before(cutoff) {
			delete(c.entries, k)
		}
	}
}

// RemoveServer drops every cached schema belonging to server, mirroring
// ToolRegistry.RemoveServer so a disconnected upstream's stale schemas
// don't linger.
func (c *SchemaCache) RemoveServer(server string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.Server == server {
			delete(c.entries, k)
		}
	}
}
