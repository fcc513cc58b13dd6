package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapsql/pkg/syntax"
)

func leafAt(kind syntax.Kind, raw string, start int) *Segment {
	return NewLeaf(kind, raw, Position{SourceStart: start, SourceEnd: start + len(raw), TemplatedStart: start, TemplatedEnd: start + len(raw), Line: 1, Column: start + 1})
}

func TestNewNode_RawConcatenation(t *testing.T) {
	sel := leafAt(syntax.Keyword, "SELECT", 0)
	ws := leafAt(syntax.Whitespace, " ", 6)
	lit := leafAt(syntax.NumericLiteral, "1", 7)

	node, err := NewNode(syntax.SelectStatement, []*Segment{sel, ws, lit})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", node.Raw())
	assert.Equal(t, 0, node.Position().SourceStart)
	assert.Equal(t, 8, node.Position().SourceEnd)
}

func TestNewNode_MetaContributesNoRaw(t *testing.T) {
	sel := leafAt(syntax.Keyword, "SELECT", 0)
	indent := NewMeta(syntax.Indent, Position{SourceStart: 6, TemplatedStart: 6})
	lit := leafAt(syntax.NumericLiteral, "1", 7)

	node, err := NewNode(syntax.Statement, []*Segment{sel, indent, lit})
	require.NoError(t, err)
	assert.Equal(t, "SELECT1", node.Raw())
}

func TestNewNode_NonMonotonicFails(t *testing.T) {
	a := leafAt(syntax.Keyword, "SELECT", 10)
	b := leafAt(syntax.NumericLiteral, "1", 0)

	_, err := NewNode(syntax.Statement, []*Segment{a, b})
	require.Error(t, err)
	var ipe *InvalidPositionError
	assert.ErrorAs(t, err, &ipe)
}

func TestIsCode(t *testing.T) {
	assert.True(t, leafAt(syntax.Keyword, "SELECT", 0).IsCode())
	assert.False(t, leafAt(syntax.Whitespace, " ", 0).IsCode())
	assert.False(t, NewMeta(syntax.Indent, Position{}).IsCode())
}

func TestRecursiveCrawl_StopsAtBoundary(t *testing.T) {
	inner := leafAt(syntax.ColumnReference, "a", 0)
	innerExpr, err := NewNode(syntax.Expression, []*Segment{inner})
	require.NoError(t, err)
	outer, err := NewNode(syntax.SelectClause, []*Segment{innerExpr})
	require.NoError(t, err)

	found := outer.RecursiveCrawl(RecursiveCrawlOptions{
		Include: map[syntax.Kind]struct{}{syntax.ColumnReference: {}},
		StopOn:  map[syntax.Kind]struct{}{syntax.Expression: {}},
	})
	assert.Empty(t, found, "crawl should not cross into Expression to find the column reference")

	foundNoStop := outer.RecursiveCrawl(RecursiveCrawlOptions{
		Include: map[syntax.Kind]struct{}{syntax.ColumnReference: {}},
	})
	assert.Len(t, foundNoStop, 1)
}

func TestRecursiveCrawl_NoRecurseIntoYieldsOutermostOnly(t *testing.T) {
	leaf := leafAt(syntax.NumericLiteral, "1", 0)
	inner, err := NewNode(syntax.Expression, []*Segment{leaf})
	require.NoError(t, err)
	outer, err := NewNode(syntax.Expression, []*Segment{inner})
	require.NoError(t, err)
	root, err := NewNode(syntax.SelectClause, []*Segment{outer})
	require.NoError(t, err)

	all := root.RecursiveCrawl(RecursiveCrawlOptions{
		Include: map[syntax.Kind]struct{}{syntax.Expression: {}},
	})
	assert.Len(t, all, 2)

	outermost := root.RecursiveCrawl(RecursiveCrawlOptions{
		Include:       map[syntax.Kind]struct{}{syntax.Expression: {}},
		NoRecurseInto: true,
	})
	require.Len(t, outermost, 1)
	assert.Same(t, outer, outermost[0])
}

func TestIsType_ClassTypes(t *testing.T) {
	syntax.SetClassTypes(syntax.ColumnReference, syntax.Identifier)
	c := leafAt(syntax.ColumnReference, "a", 0)
	assert.True(t, c.IsType(syntax.ColumnReference))
	assert.True(t, c.IsType(syntax.Identifier))
	assert.False(t, c.IsType(syntax.TableReference))
}
