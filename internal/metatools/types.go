// Package metatools implements the three pseudo-tools the capability
// aggregator injects into every session's tool set when the lazyLoading
// feature is enabled: tool_list, tool_schema, and tool_invoke. They
// give a client a façade over every upstream tool without the aggregator
// ever exposing the full (possibly huge) union directly.
package metatools

import "encoding/json"

// errorKind is the meta-tool error taxonomy: exposed verbatim to
// the caller, unlike ordinary tool-call errors which propagate upstream
// error text unchanged.
type errorKind string

const (
	errValidation errorKind = "validation"
	errNotFound   errorKind = "not_found"
	errUpstream   errorKind = "upstream"
)

type errorPayload struct {
	Error struct {
		Type    errorKind `json:"type"`
		Message string    `json:"message"`
	} `json:"error"`
}

func newErrorPayload(kind errorKind, message string) []byte {
	var p errorPayload
	p.Error.Type = kind
	p.Error.Message = message
	b, _ := json.Marshal(p)
	return b
}

// ToolListEntry is one row of tool_list's paginated result.
type ToolListEntry struct {
	Server           string `json:"server"`
	Name             string `json:"name"`
	ShortDescription string `json:"shortDescription"`
}

// ToolListResult is tool_list's full response payload.
type ToolListResult struct {
	Tools      []ToolListEntry `json:"tools"`
	NextCursor string          `json:"nextCursor,omitempty"`
}
