package template

import (
	"fmt"
	"strconv"
	"strings"
)

// node is one piece of a parsed template: literal text, a path
// interpolation, or an if/else block.
type node interface{ isNode() }

type textNode string

func (textNode) isNode() {}

// varNode renders ContextLookup.Lookup(path); a miss becomes "".
type varNode struct{ path string }

func (varNode) isNode() {}

// ifNode is {{#if cond}}then{{else}}elseBranch{{/if}}; elseBranch is nil
// when no {{else}} was present.
type ifNode struct {
	cond       condition
	then       []node
	elseBranch []node
}

func (ifNode) isNode() {}

// condition is either a bare path (truthy if present, non-empty and not
// "false") or an
// (eq a b)/(ne a b) comparison, the only two helper forms supported.
type condition interface {
	eval(lookup ContextLookup) bool
}

type pathCondition struct{ path string }

func (c pathCondition) eval(lookup ContextLookup) bool {
	v, ok := lookup.Lookup(c.path)
	return ok && v != "" && v != "false"
}

type eqCondition struct {
	lhs, rhs term
	negate   bool
}

func (c eqCondition) eval(lookup ContextLookup) bool {
	eq := c.lhs.resolve(lookup) == c.rhs.resolve(lookup)
	if c.negate {
		return !eq
	}
	return eq
}

// term is one operand of an (eq a b) comparison: either a dotted path or a
// quoted/bare string literal.
type term struct {
	literal string
	isPath  bool
}

func (t term) resolve(lookup ContextLookup) string {
	if !t.isPath {
		return t.literal
	}
	v, _ := lookup.Lookup(t.literal)
	return v
}

// parseNodes parses a sequence of nodes from the start of s, stopping at
// EOF or at an unconsumed {{else}}/{{/if}} marker, which (along with
// everything after it) is returned as rest for the caller (parseBlock) to
// inspect.
func parseNodes(s string) (nodes []node, rest string, err error) {
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			if s != "" {
				nodes = append(nodes, textNode(s))
			}
			return nodes, "", nil
		}
		if start > 0 {
			nodes = append(nodes, textNode(s[:start]))
		}
		end := strings.Index(s[start:], "}}")
		if end < 0 {
			return nil, "", fmt.Errorf("unterminated {{ at offset %d", start)
		}
		end += start
		tag := strings.TrimSpace(s[start+2 : end])
		after := s[end+2:]

		switch {
		case tag == "else" || strings.HasPrefix(tag, "/if"):
			return nodes, s[start:], nil

		case strings.HasPrefix(tag, "#if "):
			condSrc := strings.TrimSpace(tag[len("#if "):])
			cond, err := parseCondition(condSrc)
			if err != nil {
				return nil, "", err
			}
			thenNodes, rest, err := parseNodes(after)
			if err != nil {
				return nil, "", err
			}
			var elseNodes []node
			if strings.HasPrefix(strings.TrimSpace(rest), "{{else}}") {
				afterElse := strings.TrimPrefix(strings.TrimSpace(rest), "{{else}}")
				elseNodes, rest, err = parseNodes(afterElse)
				if err != nil {
					return nil, "", err
				}
			}
			trimmed := strings.TrimSpace(rest)
			if !strings.HasPrefix(trimmed, "{{/if}}") {
				return nil, "", fmt.Errorf("unterminated {{#if %s}} block", condSrc)
			}
			s = strings.TrimPrefix(trimmed, "{{/if}}")
			nodes = append(nodes, ifNode{cond: cond, then: thenNodes, elseBranch: elseNodes})
			continue

		default:
			nodes = append(nodes, varNode{path: tag})
		}

		s = after
	}
}

// parseCondition parses either a bare dotted path or an "(eq a b)" /
// "(ne a b)" comparison.
func parseCondition(src string) (condition, error) {
	if strings.HasPrefix(src, "(") {
		if !strings.HasSuffix(src, ")") {
			return nil, fmt.Errorf("unterminated condition %q", src)
		}
		inner := strings.TrimSpace(src[1 : len(src)-1])
		fields := splitArgs(inner)
		if len(fields) != 3 {
			return nil, fmt.Errorf("condition %q must be (eq|ne a b)", src)
		}
		op, a, b := fields[0], fields[1], fields[2]
		negate := false
		switch op {
		case "eq":
		case "ne":
			negate = true
		default:
			return nil, fmt.Errorf("unsupported condition helper %q", op)
		}
		return eqCondition{lhs: parseTerm(a), rhs: parseTerm(b), negate: negate}, nil
	}
	if src == "" {
		return nil, fmt.Errorf("empty condition")
	}
	return pathCondition{path: src}, nil
}

func parseTerm(s string) term {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		if unq, err := strconv.Unquote(`"` + strings.ReplaceAll(s[1:len(s)-1], `"`, `\"`) + `"`); err == nil {
			return term{literal: unq}
		}
		return term{literal: s[1 : len(s)-1]}
	}
	return term{literal: s, isPath: true}
}

// splitArgs splits a helper's argument list on whitespace, respecting
// single/double-quoted substrings.
func splitArgs(s string) []string {
	var out []string
	var cur strings.Builder
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			cur.WriteByte(c)
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
			cur.WriteByte(c)
		case c == ' ' || c == '\t':
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// evalNodes renders nodes against lookup.
func evalNodes(nodes []node, lookup ContextLookup) string {
	var b strings.Builder
	for _, n := range nodes {
		switch v := n.(type) {
		case textNode:
			b.WriteString(string(v))
		case varNode:
			if val, ok := lookup.Lookup(v.path); ok {
				b.WriteString(val)
			}
		case ifNode:
			if v.cond.eval(lookup) {
				b.WriteString(evalNodes(v.then, lookup))
			} else {
				b.WriteString(evalNodes(v.elseBranch, lookup))
			}
		}
	}
	return b.String()
}
