package capability

import (
	"encoding/base64"
	"regexp"
	"strings"
)

// MaxCursorDecodedLength bounds the decoded cursor: clientName (<=100
// chars) plus an optional upstream cursor, separated by one colon.
const MaxCursorDecodedLength = 1000

var clientNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

// Cursor is the decoded form of the opaque pagination cursor the
// meta-tool façade hands back to callers: base64(clientName ":"
// upstreamCursor).
type Cursor struct {
	ClientName     string
	UpstreamCursor string
}

// EncodeCursor builds the opaque cursor string for (clientName, upstreamCursor).
func EncodeCursor(clientName, upstreamCursor string) string {
	raw := clientName + ":" + upstreamCursor
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// ParseCursor decodes an opaque cursor. An invalid cursor (malformed
// base64, empty/too-long client name, or decoded length over the cap) is
// not an error here: callers should treat a false return as "start over
// from the first client in lexical order" and log a warning.
func ParseCursor(s string) (Cursor, bool) {
	if s == "" {
		return Cursor{}, false
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(decoded) > MaxCursorDecodedLength {
		return Cursor{}, false
	}
	name, upstream, ok := strings.Cut(string(decoded), ":")
	if !ok || !clientNamePattern.MatchString(name) {
		return Cursor{}, false
	}
	return Cursor{ClientName: name, UpstreamCursor: upstream}, true
}
