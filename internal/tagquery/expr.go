// Package tagquery implements the tag expression language used to filter
// which upstream servers (and therefore which tools/resources/prompts) a
// session can see: a simple comma-separated OR form, an advanced infix
// grammar with and/or/not and parentheses, and the object form used by
// presets and OAuth scopes.
package tagquery

import "sort"

// Expr is the recursive tag-expression sum type: Tag, And, Or, Not. The
// zero value of the interface (nil) represents the empty expression,
// which matches nothing.
type Expr interface {
	// Evaluate reports whether tags (a set, duplicates and order
	// irrelevant) satisfies this expression.
	Evaluate(tags map[string]struct{}) bool
	// String renders the expression back into the advanced infix form.
	String() string
}

// Tag is a leaf expression: true iff the named tag is present.
type Tag string

func (t Tag) Evaluate(tags map[string]struct{}) bool {
	_, ok := tags[string(t)]
	return ok
}

func (t Tag) String() string { return string(t) }

// And is true iff every child is true. Evaluation short-circuits.
type And []Expr

func (a And) Evaluate(tags map[string]struct{}) bool {
	for _, child := range a {
		if !child.Evaluate(tags) {
			return false
		}
	}
	return true
}

func (a And) String() string { return joinChildren(a, "+") }

// Or is true iff any child is true. Evaluation short-circuits.
type Or []Expr

func (o Or) Evaluate(tags map[string]struct{}) bool {
	for _, child := range o {
		if child.Evaluate(tags) {
			return true
		}
	}
	return false
}

func (o Or) String() string { return joinChildren(o, ",") }

// Any is the match-everything expression: an unfiltered session uses it
// rather than a nil Expr, since nil means "matches nothing" throughout
// this package.
type Any struct{}

func (Any) Evaluate(map[string]struct{}) bool { return true }

func (Any) String() string { return "*" }

// Not negates its single child.
type Not struct{ Child Expr }

func (n Not) Evaluate(tags map[string]struct{}) bool {
	return !n.Child.Evaluate(tags)
}

func (n Not) String() string {
	return "-" + parenthesizeIfNeeded(n.Child)
}

func joinChildren(children []Expr, sep string) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = parenthesizeIfNeeded(c)
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}

// parenthesizeIfNeeded wraps composite children in parens so the
// stringified form round-trips through Parse.
func parenthesizeIfNeeded(e Expr) string {
	switch e.(type) {
	case And, Or:
		return "(" + e.String() + ")"
	default:
		return e.String()
	}
}

// NewSet builds the tag set Evaluate expects from a slice, collapsing
// duplicates and case-sensitively preserving each tag as given.
func NewSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return set
}

// Evaluate evaluates expr against tags. A nil expr (the empty expression)
// matches nothing.
func Evaluate(expr Expr, tags []string) bool {
	if expr == nil {
		return false
	}
	return expr.Evaluate(NewSet(tags))
}

// SortedTags returns tags sorted for deterministic output, used by callers
// that serialize a tag set for logging or hashing.
func SortedTags(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
