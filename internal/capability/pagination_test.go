package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	s := EncodeCursor("github", "upstream-cursor-1")
	got, ok := ParseCursor(s)
	require.True(t, ok)
	assert.Equal(t, "github", got.ClientName)
	assert.Equal(t, "upstream-cursor-1", got.UpstreamCursor)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	_, ok := ParseCursor("not-valid-base64!!")
	assert.False(t, ok)
}

func TestParseCursorRejectsEmpty(t *testing.T) {
	_, ok := ParseCursor("")
	assert.False(t, ok)
}

func TestParseCursorRejectsBadClientName(t *testing.T) {
	s := EncodeCursor("has spaces", "x")
	_, ok := ParseCursor(s)
	assert.False(t, ok)
}
