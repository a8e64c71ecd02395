package metatools

// Denylist guards tool_invoke against a caller-supplied set of tool names
// considered destructive. The set is whatever the deployment configures —
// an aggregating proxy has no fixed catalog of dangerous tools to bake in.
type Denylist struct {
	allowDestructive bool
	blocked          map[string]struct{}
}

// NewDenylist builds a Denylist over toolNames. allowDestructive is the
// "yolo mode" escape hatch: when true, Blocked always returns false
// regardless of the configured set.
func NewDenylist(toolNames []string, allowDestructive bool) *Denylist {
	d := &Denylist{allowDestructive: allowDestructive, blocked: make(map[string]struct{}, len(toolNames))}
	for _, n := range toolNames {
		d.blocked[n] = struct{}{}
	}
	return d
}

// Blocked reports whether originalToolName should be refused.
func (d *Denylist) Blocked(originalToolName string) bool {
	if d == nil || d.allowDestructive {
		return false
	}
	_, ok := d.blocked[originalToolName]
	return ok
}
