package tagquery

import (
	"regexp"
	"strings"

	"github.com/mcpfleet/gateway/internal/errs"
)

// tagNamePattern validates individual tag names: [A-Za-z0-9_-]{1,64},
// rejecting control characters and whitespace.
var tagNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidTagName reports whether name satisfies the tag-name grammar.
func ValidTagName(name string) bool {
	return tagNamePattern.MatchString(name)
}

// ParseSimple parses the legacy comma-separated OR form (`?tags=a,b,c`).
// Empty segments are dropped; every remaining tag must be valid, else an
// InvalidTagExpressionError is returned with the offending tag's byte
// offset in the original string.
func ParseSimple(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	var tags []string
	offset := 0
	for _, part := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			offset += len(part) + 1
			continue
		}
		if !ValidTagName(trimmed) {
			return nil, &errs.InvalidTagExpressionError{
				Expression: s,
				Pos:        offset + strings.Index(part, trimmed),
				Msg:        "invalid tag name: " + trimmed,
			}
		}
		tags = append(tags, trimmed)
		offset += len(part) + 1
	}
	return tags, nil
}

// ParseAdvanced parses the advanced infix grammar:
//
//	Expr   := Or
//	Or     := And (',' And)*         # also accepts 'or'
//	And    := Not ('+' Not)*         # also accepts 'and'
//	Not    := ('-'|'!') Not | Atom   # also accepts 'not'
//	Atom   := IDENT | '(' Expr ')'
//	IDENT  := [A-Za-z0-9_-]+
//
// An empty string parses to a nil Expr, which Evaluate treats as matching
// nothing.
func ParseAdvanced(s string) (Expr, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	p := &parser{input: s}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return nil, &errs.InvalidTagExpressionError{
			Expression: s,
			Pos:        p.pos,
			Msg:        "unexpected trailing input: " + p.input[p.pos:],
		}
	}
	return expr, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) fail(msg string) error {
	return &errs.InvalidTagExpressionError{Expression: p.input, Pos: p.pos, Msg: msg}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

// matchKeyword consumes a bareword operator ("and"/"or"/"not") at the
// current position if present, case-insensitively, and not followed by an
// identifier character (so it doesn't eat part of a tag named "order").
func (p *parser) matchKeyword(word string) bool {
	rest := p.input[p.pos:]
	if len(rest) < len(word) || !strings.EqualFold(rest[:len(word)], word) {
		return false
	}
	if len(rest) > len(word) && isIdentChar(rest[len(word)]) {
		return false
	}
	p.pos += len(word)
	return true
}

func (p *parser) parseOr() (Expr, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := Or{first}
	for {
		p.skipSpace()
		save := p.pos
		if p.peek() == ',' {
			p.pos++
		} else if p.matchKeyword("or") {
			// consumed
		} else {
			p.pos = save
			break
		}
		p.skipSpace()
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return children, nil
}

func (p *parser) parseAnd() (Expr, error) {
	first, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	children := And{first}
	for {
		p.skipSpace()
		save := p.pos
		if p.peek() == '+' {
			p.pos++
		} else if p.matchKeyword("and") {
			// consumed
		} else {
			p.pos = save
			break
		}
		p.skipSpace()
		next, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return children, nil
}

func (p *parser) parseNot() (Expr, error) {
	p.skipSpace()
	if p.peek() == '-' || p.peek() == '!' {
		p.pos++
		child, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Not{Child: child}, nil
	}
	save := p.pos
	if p.matchKeyword("not") {
		p.skipSpace()
		child, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Not{Child: child}, nil
	}
	p.pos = save
	return p.parseAtom()
}

func (p *parser) parseAtom() (Expr, error) {
	p.skipSpace()
	if p.peek() == '(' {
		p.pos++
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return nil, p.fail("expected ')'")
		}
		p.pos++
		return expr, nil
	}

	start := p.pos
	for p.pos < len(p.input) && isIdentChar(p.input[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return nil, p.fail("expected a tag name or '('")
	}
	ident := p.input[start:p.pos]
	if !ValidTagName(ident) {
		return nil, &errs.InvalidTagExpressionError{Expression: p.input, Pos: start, Msg: "invalid tag name: " + ident}
	}
	return Tag(ident), nil
}

func isIdentChar(b byte) bool {
	return b == '_' || b == '-' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
