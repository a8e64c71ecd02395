// Package reload implements selective configuration reload: diffing
// an old and new configuration snapshot into the minimal set of upstream
// stop/start/restart operations, a single-flight guard that collapses
// queued reload requests, and the template circuit breaker that protects
// static-server reload from a template syntax regression.
package reload

import (
	"reflect"
	"sort"

	"github.com/mcpfleet/gateway/internal/config"
)

// Plan is the minimal set of operations to bring the live outbound set
// from old to new: entries present only in old are stopped, entries
// present only in new are started, and entries present in both with
// structurally different params are restarted in place (same connection
// key, new process/client).
type Plan struct {
	ToStop    []string
	ToStart   []string
	ToRestart []string
}

// Empty reports whether the plan has no work.
func (p Plan) Empty() bool {
	return len(p.ToStop) == 0 && len(p.ToStart) == 0 && len(p.ToRestart) == 0
}

// DiffServers computes the Plan between two static mcpServers maps.
// Equality is structural (reflect.DeepEqual on MCPServerParams): map
// field order never affects the comparison since Go maps have no
// intrinsic order.
func DiffServers(old, new map[string]config.MCPServerParams) Plan {
	var plan Plan

	for name := range old {
		if _, ok := new[name]; !ok {
			plan.ToStop = append(plan.ToStop, name)
		}
	}
	for name, newParams := range new {
		oldParams, ok := old[name]
		if !ok {
			plan.ToStart = append(plan.ToStart, name)
			continue
		}
		if !reflect.DeepEqual(oldParams, newParams) {
			plan.ToRestart = append(plan.ToRestart, name)
		}
	}

	sort.Strings(plan.ToStop)
	sort.Strings(plan.ToStart)
	sort.Strings(plan.ToRestart)
	return plan
}
