package template

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clanhall/taskwheel/internal/domain"
)

func TestParsePlainText(t *testing.T) {
	tmpl, err := Parse("Pick up 5 logs")
	require.NoError(t, err)
	assert.Equal(t, 0, tmpl.Placeholders())
	assert.Equal(t, "Pick up 5 logs", tmpl.Evaluate())
}

func TestSourceRoundTrip(t *testing.T) {
	source := "Kill {1,3} goblins and chop { 10 , 20 , 5 } logs"
	tmpl, err := Parse(source)
	require.NoError(t, err)
	assert.Equal(t, source, tmpl.Source())
}

func TestEvaluateRange(t *testing.T) {
	tmpl, err := Parse("Kill {1,3} goblins")
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		result := tmpl.Evaluate()
		require.True(t, strings.HasPrefix(result, "Kill "), result)
		require.True(t, strings.HasSuffix(result, " goblins"), result)
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(result, "Kill "), " goblins"))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1)
		assert.LessOrEqual(t, n, 3)
	}
}

func TestEvaluateRounding(t *testing.T) {
	// Every draw from [10, 19] rounded to a multiple of 10 is 10 or 20,
	// and 15..19 round up to 20.
	tmpl, err := Parse("{10,19,10}")
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		n, err := strconv.Atoi(tmpl.Evaluate())
		require.NoError(t, err)
		assert.Contains(t, []int{10, 20}, n)
	}
}

func TestEvaluateTiesRoundUp(t *testing.T) {
	tmpl, err := Parse("{5,5,10}")
	require.NoError(t, err)
	assert.Equal(t, "10", tmpl.Evaluate())
}

func TestEvaluateLeavesNoSpans(t *testing.T) {
	tmpl, err := Parse("a {1,9} b {2,8} c {3,7,2} d")
	require.NoError(t, err)
	assert.Equal(t, 3, tmpl.Placeholders())

	result := tmpl.Evaluate()
	assert.NotContains(t, result, "{")
	assert.NotContains(t, result, "}")
}

func TestEvaluateWhitespaceTolerated(t *testing.T) {
	tmpl, err := Parse("{ 2 , 2 }")
	require.NoError(t, err)
	assert.Equal(t, "2", tmpl.Evaluate())
}

func TestEvaluateIsNotIdempotent(t *testing.T) {
	tmpl, err := Parse("{1,1000000}")
	require.NoError(t, err)

	first := tmpl.Evaluate()
	same := true
	for i := 0; i < 20 && same; i++ {
		same = tmpl.Evaluate() == first
	}
	assert.False(t, same, "repeated evaluations should not all agree")
}

func TestParseRejectsMalformedSpans(t *testing.T) {
	for _, source := range []string{
		"{}",
		"{1}",
		"{1,2,3,4}",
		"{a,b}",
		"{1,2,}",
		"{-1,5}",
		"{3,1}",
		"{1,5,0}",
		"nested {1,{2}",
	} {
		_, err := Parse(source)
		require.Error(t, err, source)
		assert.ErrorIs(t, err, domain.ErrTemplateFormat, source)
		assert.Contains(t, err.Error(), source, "error should name the template")
	}
}

func TestParseKeepsUnterminatedBraceAsText(t *testing.T) {
	tmpl, err := Parse("almost {1,3")
	require.NoError(t, err)
	assert.Equal(t, "almost {1,3", tmpl.Evaluate())
}
