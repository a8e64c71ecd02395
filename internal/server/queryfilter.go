package server

import (
	"net/http"
	"strings"

	"github.com/mcpfleet/gateway/internal/errs"
	"github.com/mcpfleet/gateway/internal/session"
	"github.com/mcpfleet/gateway/internal/tagquery"
)

// parseQueryFilter picks the session's tag filter off the query string:
// a request names at most one of preset/tag-filter/tags. Combining more
// than one is a 400 InvalidRequest; an unrecognized tag in the legacy
// `tags` form is likewise rejected rather than silently dropped.
func parseQueryFilter(r *http.Request) (session.OpenOptions, error) {
	q := r.URL.Query()
	preset := q.Get("preset")
	tagFilter := q.Get("tag-filter")
	tags := q.Get("tags")

	present := 0
	for _, v := range []string{preset, tagFilter, tags} {
		if v != "" {
			present++
		}
	}
	if present > 1 {
		return session.OpenOptions{}, &errs.InvalidRequestError{Reason: "preset, tag-filter, and tags are mutually exclusive"}
	}

	switch {
	case preset != "":
		return session.OpenOptions{FilterMode: session.FilterModePreset, PresetName: preset}, nil

	case tagFilter != "":
		return session.OpenOptions{FilterMode: session.FilterModeAdvanced, TagExpression: tagFilter}, nil

	case tags != "":
		list := strings.Split(tags, ",")
		for i, t := range list {
			list[i] = strings.TrimSpace(t)
			if !tagquery.ValidTagName(list[i]) {
				return session.OpenOptions{}, &errs.InvalidRequestError{Reason: "invalid tag name: " + list[i]}
			}
		}
		return session.OpenOptions{FilterMode: session.FilterModeSimple, Tags: list}, nil

	default:
		return session.OpenOptions{FilterMode: session.FilterModeNone}, nil
	}
}
