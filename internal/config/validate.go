package config

import (
	"fmt"
	"strings"

	"github.com/mcpfleet/gateway/internal/errs"
)

// templatePlaceholder matches a minimal `{{...}}` marker; full interpolation
// parsing lives in internal/template, this only needs to detect presence.
const templatePlaceholder = "{{"

// Validate enforces the document's structural invariants: disjoint names
// between mcpServers/mcpTemplates, exactly one of stdio-vs-network fields
// set per entry, and static servers must not use `{{…}}` interpolation.
func Validate(doc Document) error {
	for name, params := range doc.MCPServers {
		if _, ok := doc.MCPTemplates[name]; ok {
			return &errs.ConfigConflictError{Name: name}
		}
		if err := validateTransportFields(name, params); err != nil {
			return err
		}
		if hasTemplatePlaceholder(params) {
			return fmt.Errorf("static server %q must not contain {{...}} interpolation", name)
		}
	}

	for name, params := range doc.MCPTemplates {
		if err := validateTransportFields(name, params); err != nil {
			return err
		}
	}

	return nil
}

func validateTransportFields(name string, p MCPServerParams) error {
	switch p.Type {
	case TransportStdio:
		if p.Command == "" {
			return fmt.Errorf("server %q: stdio transport requires command", name)
		}
		if p.URL != "" {
			return fmt.Errorf("server %q: stdio transport must not set url", name)
		}
	case TransportSSE, TransportHTTP, TransportStreamableHTTP:
		if p.URL == "" {
			return fmt.Errorf("server %q: %s transport requires url", name, p.Type)
		}
		if p.Command != "" {
			return fmt.Errorf("server %q: %s transport must not set command", name, p.Type)
		}
	default:
		return fmt.Errorf("server %q: unknown transport type %q", name, p.Type)
	}
	return nil
}

func hasTemplatePlaceholder(p MCPServerParams) bool {
	if strings.Contains(p.Command, templatePlaceholder) || strings.Contains(p.Cwd, templatePlaceholder) || strings.Contains(p.URL, templatePlaceholder) {
		return true
	}
	for _, a := range p.Args {
		if strings.Contains(a, templatePlaceholder) {
			return true
		}
	}
	for _, v := range p.Env {
		if strings.Contains(v, templatePlaceholder) {
			return true
		}
	}
	for _, v := range p.Headers {
		if strings.Contains(v, templatePlaceholder) {
			return true
		}
	}
	return false
}

// ToSnapshot converts a validated Document into an immutable Snapshot,
// defaulting fields the document left unset.
func ToSnapshot(doc Document) *Snapshot {
	debounce := doc.ConfigReload.DebounceMs
	if debounce <= 0 {
		debounce = DefaultDebounceMs
	}

	servers := doc.MCPServers
	if servers == nil {
		servers = map[string]MCPServerParams{}
	}
	templates := doc.MCPTemplates
	if templates == nil {
		templates = map[string]MCPServerParams{}
	}

	return &Snapshot{
		MCPServers:       servers,
		MCPTemplates:     templates,
		TemplateSettings: doc.TemplateSettings,
		Features:         doc.Features,
		RateLimits:       doc.RateLimits,
		Auth:             doc.Auth,
		ConfigReload:     ConfigReloadSettings{DebounceMs: debounce},
	}
}
