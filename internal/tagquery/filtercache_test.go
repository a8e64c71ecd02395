package tagquery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterCacheMatchesUncachedEvaluate(t *testing.T) {
	c := NewFilterCache(16)

	expr, err := ParseAdvanced("web+!db")
	require.NoError(t, err)

	cases := [][]string{
		{"web"},
		{"web", "db"},
		{"db"},
		nil,
	}
	for _, tags := range cases {
		assert.Equal(t, Evaluate(expr, tags), c.Evaluate(expr, tags))
		// Second call hits the cache; the answer must not change.
		assert.Equal(t, Evaluate(expr, tags), c.Evaluate(expr, tags))
	}
}

func TestFilterCacheNilAndAnyBypassCache(t *testing.T) {
	c := NewFilterCache(16)
	assert.False(t, c.Evaluate(nil, []string{"web"}))
	assert.True(t, c.Evaluate(Any{}, nil))
	assert.Equal(t, 0, c.Len())
}

func TestFilterCacheKeyDistinguishesTagSets(t *testing.T) {
	c := NewFilterCache(16)
	expr := Or{Tag("web")}

	assert.True(t, c.Evaluate(expr, []string{"web"}))
	assert.False(t, c.Evaluate(expr, []string{"db"}))
	assert.Equal(t, 2, c.Len())

	// Duplicates and ordering collapse onto the same entry.
	assert.True(t, c.Evaluate(expr, []string{"web", "web"}))
	assert.Equal(t, 2, c.Len())
}

func TestFilterCacheEvictsAtCapacity(t *testing.T) {
	c := NewFilterCache(2)
	expr := Or{Tag("a")}

	c.Evaluate(expr, []string{"a"})
	c.Evaluate(expr, []string{"b"})
	assert.Equal(t, 2, c.Len())

	c.Evaluate(expr, []string{"c"})
	assert.Equal(t, 2, c.Len())
}

func TestFilterCacheSweep(t *testing.T) {
	c := NewFilterCache(16)
	expr := Or{Tag("a")}
	c.Evaluate(expr, []string{"a"})
	require.Equal(t, 1, c.Len())

	// A zero TTL expires everything touched before now.
	time.Sleep(time.Millisecond)
	removed := c.Sweep(0)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, c.Len())
}
