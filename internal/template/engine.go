// Package template implements the template engine: {{path.to.field}}
// interpolation over a ContextLookup, plus {{#if x}}...{{else}}...{{/if}}
// and {{#if (eq a b)}}...{{/if}} conditionals. A missing value resolves to
// the empty string — the engine never raises for an unknown path, only
// for malformed template syntax (unbalanced blocks), which surfaces as a
// TemplateRenderError. templateSettings.failureMode is not consulted: the
// Per-Session Factory logs and skips a template that fails to render.
package template

import (
	"strings"

	"github.com/mcpfleet/gateway/internal/config"
	"github.com/mcpfleet/gateway/internal/errs"
)

// ContextLookup resolves a dotted path against a context object, the
// engine's only dynamic-resolution surface:
// unknown paths return ok=false rather than erroring.
type ContextLookup interface {
	Lookup(path string) (value string, ok bool)
}

// Engine renders {{…}} templates against a ContextLookup.
type Engine struct{}

// New constructs a template Engine.
func New() *Engine { return &Engine{} }

// RenderString renders every {{…}} construct in s against lookup. Missing
// values become the empty string; malformed syntax returns a
// TemplateRenderError.
func (e *Engine) RenderString(s string, lookup ContextLookup) (string, error) {
	nodes, rest, err := parseNodes(s)
	if err != nil {
		return "", &errs.TemplateRenderError{Cause: err}
	}
	if rest != "" {
		return "", &errs.TemplateRenderError{Cause: errUnexpected(rest)}
	}
	return evalNodes(nodes, lookup), nil
}

// RenderParams walks every string-valued leaf of params (command, args,
// env values, cwd, url, headers values) and renders it against lookup;
// non-string leaves (Tags, Disabled, timeouts, Template options) pass
// through untouched. The result is a concrete MCPServerParams ready to
// hand to the Outbound Manager.
func (e *Engine) RenderParams(params config.MCPServerParams, lookup ContextLookup) (config.MCPServerParams, error) {
	out := params

	var err error
	if out.Command, err = e.RenderString(params.Command, lookup); err != nil {
		return out, err
	}
	if out.Cwd, err = e.RenderString(params.Cwd, lookup); err != nil {
		return out, err
	}
	if out.URL, err = e.RenderString(params.URL, lookup); err != nil {
		return out, err
	}

	if params.Args != nil {
		out.Args = make([]string, len(params.Args))
		for i, a := range params.Args {
			if out.Args[i], err = e.RenderString(a, lookup); err != nil {
				return out, err
			}
		}
	}
	if params.Env != nil {
		out.Env = make(map[string]string, len(params.Env))
		for k, v := range params.Env {
			if out.Env[k], err = e.RenderString(v, lookup); err != nil {
				return out, err
			}
		}
	}
	if params.Headers != nil {
		out.Headers = make(map[string]string, len(params.Headers))
		for k, v := range params.Headers {
			if out.Headers[k], err = e.RenderString(v, lookup); err != nil {
				return out, err
			}
		}
	}

	return out, nil
}

// ValidateSyntax re-parses every string-valued leaf of params without
// rendering it, surfacing a malformed {{…}} construct (unterminated
// block, bad (eq a b) helper) without requiring a ContextLookup. Reload's
// template circuit breaker calls this on every changed mcpTemplates entry
// before committing it, so a syntax regression in one template trips the
// breaker instead of only failing at session-attach time.
func (e *Engine) ValidateSyntax(params config.MCPServerParams) error {
	check := func(s string) error {
		_, rest, err := parseNodes(s)
		if err != nil {
			return err
		}
		if rest != "" {
			return errUnexpected(rest)
		}
		return nil
	}

	if err := check(params.Command); err != nil {
		return err
	}
	if err := check(params.Cwd); err != nil {
		return err
	}
	if err := check(params.URL); err != nil {
		return err
	}
	for _, a := range params.Args {
		if err := check(a); err != nil {
			return err
		}
	}
	for _, v := range params.Env {
		if err := check(v); err != nil {
			return err
		}
	}
	for _, v := range params.Headers {
		if err := check(v); err != nil {
			return err
		}
	}
	return nil
}

func errUnexpected(rest string) error {
	return &unexpectedTrailingError{rest: rest}
}

type unexpectedTrailingError struct{ rest string }

func (e *unexpectedTrailingError) Error() string {
	return "unexpected trailing block terminator: " + firstLine(e.rest)
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\n\r"); i >= 0 {
		return s[:i]
	}
	if len(s) > 40 {
		return s[:40]
	}
	return s
}
