package reload

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/mcpfleet/gateway/internal/capability"
	"github.com/mcpfleet/gateway/internal/config"
	"github.com/mcpfleet/gateway/internal/outbound"
	"github.com/mcpfleet/gateway/internal/template"
	"github.com/mcpfleet/gateway/pkg/logging"
	"github.com/mcpfleet/gateway/pkg/parallel"
)

const logSubsystem = "Reload"

// Outbounds is the subset of *outbound.Manager the reload Engine depends on.
type Outbounds interface {
	RemoveOne(key string)
	CreateOne(ctx context.Context, name string, params config.MCPServerParams, opts outbound.CreateOptions) (*outbound.Connection, error)
	Restart(ctx context.Context, key string, newParams config.MCPServerParams) (*outbound.Connection, error)
}

// Aggregator is the subset of *capability.Aggregator the Engine depends on.
type Aggregator interface {
	RefreshAll(ctx context.Context)
	UpdateCapabilities() capability.ChangeSet
}

// Notifier is told about a successful reload's capability ChangeSet; the
// Inbound Session Service implements this and sends all three listChanged
// notifications to each session the added or removed servers can affect,
// without comparing that session's view per category.
type Notifier interface {
	BroadcastCapabilityChange(cs capability.ChangeSet)
}

// Config configures an Engine.
type Config struct {
	Outbounds          Outbounds
	Aggregator         Aggregator
	Notifier           Notifier
	MaxConcurrentApply int
	BreakerThreshold   int
	BreakerCooldown    int // seconds; 0 uses DefaultBreakerCooldown
}

// Engine drives selective configuration reload. It owns the "active"
// snapshot that the rest of the system consults — which may lag the
// raw loaded snapshot's mcpTemplates if the template circuit breaker is
// open.
type Engine struct {
	outbounds  Outbounds
	aggregator Aggregator
	notifier   Notifier
	maxConc    int
	breaker    *CircuitBreaker
	engine     *template.Engine

	mu      sync.Mutex
	active  *config.Snapshot
	running bool
	pending *config.Snapshot
}

// New constructs an Engine seeded with the initial snapshot (the one
// CreateAll was already run against at startup).
func New(cfg Config, initial *config.Snapshot) *Engine {
	return &Engine{
		outbounds:  cfg.Outbounds,
		aggregator: cfg.Aggregator,
		notifier:   cfg.Notifier,
		maxConc:    cfg.MaxConcurrentApply,
		breaker:    NewCircuitBreaker(cfg.BreakerThreshold, secondsToDuration(cfg.BreakerCooldown)),
		engine:     template.New(),
		active:     initial,
	}
}

// Active returns the currently-active snapshot — the one session attach
// and the meta-tool façade should consult.
func (e *Engine) Active() *config.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Breaker exposes the template circuit breaker, e.g. for an explicit
// admin reset endpoint.
func (e *Engine) Breaker() *CircuitBreaker { return e.breaker }

// SetNotifier wires the Notifier after construction, breaking the
// constructor cycle between the Engine (which the Session Service takes
// as its Snapshotter) and the Session Service itself (which the Engine
// notifies of capability changes): one of the two must be buildable
// before the other, so app.InitializeServices builds the Engine first with no
// notifier and attaches it once the Session Service exists.
func (e *Engine) SetNotifier(n Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifier = n
}

// Reload requests a reload to newSnapshot. Under the single-flight rule:
// if a reload is already running, newSnapshot is recorded as the pending
// target and the call returns immediately; multiple requests that arrive
// while one is running collapse onto whichever was most recent when the
// running reload finishes. Intended as config.WatcherConfig.OnReload.
func (e *Engine) Reload(ctx context.Context, newSnapshot *config.Snapshot) {
	e.mu.Lock()
	if e.running {
		e.pending = newSnapshot
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	go e.runLoop(ctx, newSnapshot)
}

func (e *Engine) runLoop(ctx context.Context, snapshot *config.Snapshot) {
	for {
		e.applyOne(ctx, snapshot)

		e.mu.Lock()
		if e.pending != nil {
			snapshot = e.pending
			e.pending = nil
			e.mu.Unlock()
			continue
		}
		e.running = false
		e.mu.Unlock()
		return
	}
}

func (e *Engine) applyOne(ctx context.Context, newSnapshot *config.Snapshot) {
	e.mu.Lock()
	oldSnapshot := e.active
	e.mu.Unlock()

	plan := DiffServers(oldSnapshot.MCPServers, newSnapshot.MCPServers)
	if !plan.Empty() {
		logging.Info(logSubsystem, "applying reload: stop=%d start=%d restart=%d", len(plan.ToStop), len(plan.ToStart), len(plan.ToRestart))
	}

	for _, name := range plan.ToStop {
		e.outbounds.RemoveOne(name)
	}

	type applyItem struct {
		name      string
		params    config.MCPServerParams
		isRestart bool
	}
	items := make([]applyItem, 0, len(plan.ToStart)+len(plan.ToRestart))
	for _, name := range plan.ToStart {
		items = append(items, applyItem{name: name, params: newSnapshot.MCPServers[name]})
	}
	for _, name := range plan.ToRestart {
		items = append(items, applyItem{name: name, params: newSnapshot.MCPServers[name], isRestart: true})
	}

	parallel.Run(ctx, items, e.maxConc, func(ctx context.Context, it applyItem) (struct{}, error) {
		var err error
		if it.isRestart {
			_, err = e.outbounds.Restart(ctx, it.name, it.params)
		} else if !it.params.Disabled {
			_, err = e.outbounds.CreateOne(ctx, it.name, it.params, outbound.CreateOptions{})
		}
		return struct{}{}, err
	}, &parallel.Events[applyItem, struct{}]{
		ItemComplete: func(r parallel.ItemResult[applyItem, struct{}]) {
			if r.Err != nil {
				logging.Warn(logSubsystem, "apply %q failed: %v", r.Input.name, r.Err)
			}
		},
	})

	templates := e.reprocessTemplates(oldSnapshot.MCPTemplates, newSnapshot.MCPTemplates)

	merged := *newSnapshot
	merged.MCPTemplates = templates
	e.mu.Lock()
	e.active = &merged
	e.mu.Unlock()

	e.aggregator.RefreshAll(ctx)
	changeSet := e.aggregator.UpdateCapabilities()
	if changeSet.HasChanges && e.notifier != nil {
		e.notifier.BroadcastCapabilityChange(changeSet)
	}
}

// reprocessTemplates validates every changed template's syntax before
// adopting newTemplates. If the breaker is open, or if validation fails
// and trips the breaker, the previous template set is kept in place —
// subsequent reloads still handle static servers.
func (e *Engine) reprocessTemplates(oldTemplates, newTemplates map[string]config.MCPServerParams) map[string]config.MCPServerParams {
	if !e.breaker.Allow() {
		logging.Warn(logSubsystem, "template circuit breaker open, keeping previous template set")
		return oldTemplates
	}

	for name, params := range newTemplates {
		if old, ok := oldTemplates[name]; ok && reflect.DeepEqual(old, params) {
			continue
		}
		if err := e.engine.ValidateSyntax(params); err != nil {
			logging.Warn(logSubsystem, "template %q failed syntax validation, tripping breaker: %v", name, err)
			e.breaker.RecordFailure()
			return oldTemplates
		}
	}

	e.breaker.RecordSuccess()
	return newTemplates
}

func secondsToDuration(s int) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s) * time.Second
}
