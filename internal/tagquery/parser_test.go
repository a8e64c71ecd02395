package tagquery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimple(t *testing.T) {
	tags, err := ParseSimple("a,b,c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, tags)
}

func TestParseSimpleEmpty(t *testing.T) {
	tags, err := ParseSimple("")
	require.NoError(t, err)
	assert.Nil(t, tags)
}

func TestParseSimpleInvalidTag(t *testing.T) {
	_, err := ParseSimple("a,b!,c")
	require.Error(t, err)
}

func TestParseAdvancedEmpty(t *testing.T) {
	expr, err := ParseAdvanced("")
	require.NoError(t, err)
	assert.Nil(t, expr)
	assert.False(t, Evaluate(expr, []string{"web"}))
}

func TestParseAdvancedPrecedence(t *testing.T) {
	// S2 from spec: web+!db should match {web} but not {web, db}.
	expr, err := ParseAdvanced("web+!db")
	require.NoError(t, err)

	assert.True(t, Evaluate(expr, []string{"web"}))
	assert.False(t, Evaluate(expr, []string{"web", "db"}))
	assert.False(t, Evaluate(expr, []string{"db"}))
}

func TestParseAdvancedOrOfAnds(t *testing.T) {
	expr, err := ParseAdvanced("a+b,c")
	require.NoError(t, err)

	assert.True(t, Evaluate(expr, []string{"a", "b"}))
	assert.True(t, Evaluate(expr, []string{"c"}))
	assert.False(t, Evaluate(expr, []string{"a"}))
}

func TestParseAdvancedParens(t *testing.T) {
	expr, err := ParseAdvanced("(a,b)+c")
	require.NoError(t, err)

	assert.True(t, Evaluate(expr, []string{"a", "c"}))
	assert.True(t, Evaluate(expr, []string{"b", "c"}))
	assert.False(t, Evaluate(expr, []string{"a"}))
}

func TestParseAdvancedKeywords(t *testing.T) {
	expr, err := ParseAdvanced("web and not db")
	require.NoError(t, err)
	assert.True(t, Evaluate(expr, []string{"web"}))
	assert.False(t, Evaluate(expr, []string{"web", "db"}))
}

func TestParseAdvancedUnbalancedParen(t *testing.T) {
	_, err := ParseAdvanced("(a+b")
	require.Error(t, err)
}

func TestParseAdvancedInvalidTagName(t *testing.T) {
	_, err := ParseAdvanced("web$")
	require.Error(t, err)
}

func TestParseAdvancedTrailingGarbage(t *testing.T) {
	_, err := ParseAdvanced("a)")
	require.Error(t, err)
}

func TestRoundTripModuloAssociativity(t *testing.T) {
	for _, src := range []string{"a", "a+b", "a,b", "a+b,c", "(a,b)+c", "-a"} {
		expr, err := ParseAdvanced(src)
		require.NoError(t, err)

		reparsed, err := ParseAdvanced(expr.String())
		require.NoError(t, err)

		for _, tags := range [][]string{{"a"}, {"b"}, {"c"}, {"a", "b"}, {"a", "b", "c"}, {}} {
			assert.Equal(t, Evaluate(expr, tags), Evaluate(reparsed, tags), "mismatch for %q over %v", src, tags)
		}
	}
}

func TestValidTagName(t *testing.T) {
	assert.True(t, ValidTagName("web-service_1"))
	assert.False(t, ValidTagName(""))
	assert.False(t, ValidTagName("has space"))
	assert.False(t, ValidTagName("semi;colon"))
}

func TestQueryToExpressionIn(t *testing.T) {
	q := Query{In: []string{"a", "b"}}
	ok, err := EvaluateTagQueryObject(q, []string{"b"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestQueryToExpressionAdvancedString(t *testing.T) {
	q := Query{Advanced: "web+!db"}
	ok, err := EvaluateTagQueryObject(q, []string{"web"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestQueryToExpressionEmptyMatchesNothing(t *testing.T) {
	ok, err := EvaluateTagQueryObject(Query{}, []string{"web"})
	require.NoError(t, err)
	assert.False(t, ok)
}
