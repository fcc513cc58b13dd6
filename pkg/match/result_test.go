package match

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leapstack-labs/leapsql/pkg/syntax"
)

func TestMatchResult_HasMatch(t *testing.T) {
	assert.False(t, EmptyAt(3).HasMatch())
	assert.True(t, FromSpan(3, 5).HasMatch())
	assert.True(t, EmptyAt(3).Wrap(syntax.Indent).HasMatch())
}

func TestMatchResult_Append(t *testing.T) {
	a := FromSpan(0, 2)
	b := FromSpan(2, 5)
	c := a.Append(b)
	assert.Equal(t, 0, c.Start)
	assert.Equal(t, 5, c.End)
}

func TestMatchResult_WrapTwiceNests(t *testing.T) {
	r := FromSpan(0, 1).Wrap(syntax.Expression)
	r2 := r.Wrap(syntax.ColumnExpression)
	assert.Equal(t, syntax.ColumnExpression, *r2.Matched)
	assert.Len(t, r2.ChildMatches, 1)
	assert.Equal(t, syntax.Expression, *r2.ChildMatches[0].Matched)
}

func TestMatchResult_IsBetterThan(t *testing.T) {
	a := FromSpan(0, 3)
	b := FromSpan(0, 5)
	assert.True(t, b.IsBetterThan(a))
	assert.False(t, a.IsBetterThan(b))

	tieNoWrap := FromSpan(0, 3)
	tieWrap := FromSpan(0, 3).Wrap(syntax.Expression)
	assert.True(t, tieWrap.IsBetterThan(tieNoWrap))
}
