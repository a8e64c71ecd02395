package capability

import (
	"context"
	"sort"

	"github.com/mcpfleet/gateway/internal/outbound"
	"github.com/mcpfleet/gateway/internal/tagquery"
	"github.com/mcpfleet/gateway/pkg/logging"
	"github.com/mcpfleet/gateway/pkg/parallel"
)

const logSubsystem = "Aggregator"

// Aggregator computes and serves the merged, per-session-filtered
// capability surface over every connected outbound.
type Aggregator struct {
	outbounds   *outbound.Manager
	registry    *ToolRegistry
	schemaCache *SchemaCache
	filterCache *tagquery.FilterCache
	maxConc     int

	previous []string // server keys seen as of the last UpdateCapabilities call
}

// Config configures an Aggregator.
type Config struct {
	Outbounds         *outbound.Manager
	MaxConcurrentPoll int
	SchemaCacheSize   int
	FilterCacheSize   int
}

// New constructs an Aggregator over outbounds.
func New(cfg Config) *Aggregator {
	return &Aggregator{
		outbounds:   cfg.Outbounds,
		registry:    NewToolRegistry(),
		schemaCache: NewSchemaCache(cfg.SchemaCacheSize),
		filterCache: tagquery.NewFilterCache(cfg.FilterCacheSize),
		maxConc:     cfg.MaxConcurrentPoll,
	}
}

// Registry exposes the underlying ToolRegistry, e.g. for the meta-tool
// façade's tool_schema upstream-miss backfill.
func (a *Aggregator) Registry() *ToolRegistry { return a.registry }

// SchemaCache exposes the underlying SchemaCache.
func (a *Aggregator) SchemaCache() *SchemaCache { return a.schemaCache }

// FilterCache exposes the tag-evaluation memo so its periodic sweep can
// join the same ticker as the schema cache's.
func (a *Aggregator) FilterCache() *tagquery.FilterCache { return a.filterCache }

// RefreshAll repopulates the registry from the Outbound Manager's current
// snapshot, concurrently (bounded by maxConcurrentPoll): every Connected
// outbound's entries are replaced with the tools/resources/prompts stored
// on its Connection when it connected, and every other outbound's entries
// are removed. It sends no list request to any upstream; the stored lists
// change only when a connection (re)connects.
func (a *Aggregator) RefreshAll(ctx context.Context) {
	conns := a.outbounds.Snapshot()

	type item struct {
		key  string
		conn *outbound.Connection
	}
	items := make([]item, 0, len(conns))
	for key, conn := range conns {
		if conn.Status != outbound.StatusConnected {
			a.registry.RemoveServer(key)
			continue
		}
		items = append(items, item{key: key, conn: conn})
	}

	parallel.Run(ctx, items, a.maxConc, func(ctx context.Context, it item) (struct{}, error) {
		a.registry.ReplaceServer(it.key, it.conn.Tags, it.conn.Capabilities.Tools, it.conn.Capabilities.Resources, it.conn.Capabilities.Prompts)
		return struct{}{}, nil
	}, &parallel.Events[item, struct{}]{
		ItemComplete: func(r parallel.ItemResult[item, struct{}]) {
			if r.Err != nil {
				logging.Warn(logSubsystem, "refresh of %q failed, server omitted from views: %v", r.Input.key, r.Err)
			}
		},
	})
}

// ComputeView applies expr against every registered item's owning
// server's tags — never the item's own tags — and returns the filtered
// surface. A nil expr matches nothing, per the tag-query empty-expression
// rule.
func (a *Aggregator) ComputeView(expr tagquery.Expr) View {
	var v View
	for _, t := range a.registry.AllTools() {
		if a.filterCache.Evaluate(expr, t.Tags) {
			v.Tools = append(v.Tools, t)
		}
	}
	for _, r := range a.registry.AllResources() {
		if a.filterCache.Evaluate(expr, r.Tags) {
			v.Resources = append(v.Resources, r)
		}
	}
	for _, p := range a.registry.AllPrompts() {
		if a.filterCache.Evaluate(expr, p.Tags) {
			v.Prompts = append(v.Prompts, p)
		}
	}
	sort.Slice(v.Tools, func(i, j int) bool { return v.Tools[i].Server+v.Tools[i].Name < v.Tools[j].Server+v.Tools[j].Name })
	return v
}

// ChangeSet lists the servers added and removed between two capability
// snapshots, used by reload to decide whether to notify sessions; it does
// not break changes down by category (tools, resources, prompts).
type ChangeSet struct {
	Added, Removed    []string // server keys
	Current, Previous []string
	HasChanges        bool
}

// UpdateCapabilities re-derives the set of servers currently contributing
// capabilities and diffs it against the set observed at the previous
// call, returning a ChangeSet reload uses to decide whether to notify
// sessions. It does not itself poll upstreams — call RefreshAll first.
func (a *Aggregator) UpdateCapabilities() ChangeSet {
	current := a.registry.ServersInOrder()
	previous := a.previous
	a.previous = current

	prevSet := make(map[string]struct{}, len(previous))
	for _, s := range previous {
		prevSet[s] = struct{}{}
	}
	curSet := make(map[string]struct{}, len(current))
	for _, s := range current {
		curSet[s] = struct{}{}
	}

	var added, removed []string
	for s := range curSet {
		if _, ok := prevSet[s]; !ok {
			added = append(added, s)
		}
	}
	for s := range prevSet {
		if _, ok := curSet[s]; !ok {
			removed = append(removed, s)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)

	return ChangeSet{
		Added:      added,
		Removed:    removed,
		Current:    current,
		Previous:   previous,
		HasChanges: len(added) > 0 || len(removed) > 0,
	}
}
