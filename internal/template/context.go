package template

import (
	"strconv"
	"strings"
	"time"
)

// ContextData is the opaque bag a downstream client supplies on
// initialize (carried as params._meta.context), consumed only by the
// template engine and never trusted for security decisions. It
// implements ContextLookup directly: an unknown path resolves to absent
// rather than panicking or erroring.
type ContextData struct {
	Project     map[string]any `json:"project,omitempty"`
	User        map[string]any `json:"user,omitempty"`
	Environment struct {
		Variables map[string]string `json:"variables,omitempty"`
	} `json:"environment,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Version   string `json:"version,omitempty"`
	Transport struct {
		Client struct {
			Name    string `json:"name,omitempty"`
			Version string `json:"version,omitempty"`
			Title   string `json:"title,omitempty"`
		} `json:"client,omitempty"`
	} `json:"transport,omitempty"`
}

var _ ContextLookup = ContextData{}

// Lookup resolves one of the supported dotted paths:
// project.*, user.*, environment.variables.*, sessionId, timestamp,
// version, transport.client.name|version|title. Any other path,
// including a correctly-prefixed-but-absent leaf, returns ok=false.
func (c ContextData) Lookup(path string) (string, bool) {
	switch path {
	case "sessionId":
		return c.SessionID, c.SessionID != ""
	case "timestamp":
		if c.Timestamp == 0 {
			return "", false
		}
		return strconv.FormatInt(c.Timestamp, 10), true
	case "version":
		return c.Version, c.Version != ""
	case "transport.client.name":
		return c.Transport.Client.Name, c.Transport.Client.Name != ""
	case "transport.client.version":
		return c.Transport.Client.Version, c.Transport.Client.Version != ""
	case "transport.client.title":
		return c.Transport.Client.Title, c.Transport.Client.Title != ""
	}

	if rest, ok := strings.CutPrefix(path, "project."); ok {
		return lookupAny(c.Project, rest)
	}
	if rest, ok := strings.CutPrefix(path, "user."); ok {
		return lookupAny(c.User, rest)
	}
	if rest, ok := strings.CutPrefix(path, "environment.variables."); ok {
		v, ok := c.Environment.Variables[rest]
		return v, ok
	}

	return "", false
}

// lookupAny walks a dotted path through a JSON-shaped map[string]any tree
// (the representation project/user fields decode into) and stringifies
// the leaf it lands on.
func lookupAny(m map[string]any, path string) (string, bool) {
	parts := strings.Split(path, ".")
	var cur any = m
	for _, p := range parts {
		asMap, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		cur, ok = asMap[p]
		if !ok {
			return "", false
		}
	}
	return stringify(cur)
}

func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case nil:
		return "", false
	default:
		return "", false
	}
}

// NowTimestamp returns the current Unix time in seconds, the unit
// ContextData.Timestamp holds. The session layer does not call it: a
// context whose client omits timestamp keeps Timestamp zero, and the
// timestamp path then resolves to absent.
func NowTimestamp() int64 { return time.Now().Unix() }
