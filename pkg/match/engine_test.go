package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapsql/pkg/compiled"
	"github.com/leapstack-labs/leapsql/pkg/compiler"
	"github.com/leapstack-labs/leapsql/pkg/dialect"
	"github.com/leapstack-labs/leapsql/pkg/grammar"
	"github.com/leapstack-labs/leapsql/pkg/segment"
	"github.com/leapstack-labs/leapsql/pkg/syntax"
)

func compileEngineDialect(t *testing.T, build func(d *dialect.Dialect)) (*dialect.Dialect, *compiled.Graph) {
	t.Helper()
	d := dialect.New("engine_test")
	build(d)
	require.NoError(t, d.Expand())
	g, err := compiler.Compile(d)
	require.NoError(t, err)
	return d, g
}

func delimitedNumberDialect(t *testing.T, allowTrailing bool) (*dialect.Dialect, *compiled.Graph) {
	t.Helper()
	return compileEngineDialect(t, func(d *dialect.Dialect) {
		require.NoError(t, d.Add("NumberSegment", &grammar.TypedParser{TemplateKind: syntax.NumericLiteral, OutKind: syntax.NumericLiteral}))
		require.NoError(t, d.Add("CommaSegment", &grammar.StringParser{Template: ",", Kind: syntax.Comma}))
		require.NoError(t, d.Add("FileSegment", &grammar.NodeMatcher{Kind: syntax.File, Child: &grammar.Delimited{
			Elements:      []grammar.Matchable{&grammar.Ref{Name: "NumberSegment"}},
			Delimiter:     &grammar.Ref{Name: "CommaSegment"},
			AllowGaps:     true,
			AllowTrailing: allowTrailing,
		}}))
	})
}

func numberListSegments() []*segment.Segment {
	return []*segment.Segment{
		buildLeaf(syntax.NumericLiteral, "1", 0),
		buildLeaf(syntax.Comma, ",", 1),
		buildLeaf(syntax.NumericLiteral, "2", 2),
		buildLeaf(syntax.Comma, ",", 3),
	}
}

func TestDelimited_TrailingDelimiterRollsBack(t *testing.T) {
	d, g := delimitedNumberDialect(t, false)

	file, err := RootParseFile(g, d, numberListSegments(), nil)
	require.NoError(t, err)
	assert.Equal(t, "1,2,", file.Raw())

	unparsable := file.RecursiveCrawl(segment.RecursiveCrawlOptions{
		Include: map[syntax.Kind]struct{}{syntax.Unparsable: {}},
	})
	require.Len(t, unparsable, 1, "the trailing comma must be handed back, not silently kept")
	assert.Equal(t, ",", unparsable[0].Raw())
}

func TestDelimited_AllowTrailingKeepsDelimiter(t *testing.T) {
	d, g := delimitedNumberDialect(t, true)

	file, err := RootParseFile(g, d, numberListSegments(), nil)
	require.NoError(t, err)
	assert.Equal(t, "1,2,", file.Raw())

	unparsable := file.RecursiveCrawl(segment.RecursiveCrawlOptions{
		Include: map[syntax.Kind]struct{}{syntax.Unparsable: {}},
	})
	assert.Empty(t, unparsable)
}

func TestDeeperMatch_RestoresTerminatorStack(t *testing.T) {
	_, g := compileEngineDialect(t, func(d *dialect.Dialect) {
		require.NoError(t, d.Add("A", &grammar.StringParser{Template: "A", Kind: syntax.Keyword}))
		require.NoError(t, d.Add("B", &grammar.StringParser{Template: "B", Kind: syntax.Keyword}))
	})
	symA, _ := g.Symbols.Lookup("A")
	symB, _ := g.Symbols.Lookup("B")
	a, b := g.Definition(symA), g.Definition(symB)

	ctx := NewParseContext(g, nil, nil)
	ctx.deeperMatch(false, []compiled.NodeId{a}, func() MatchResult {
		assert.Len(t, ctx.terminators, 1)
		ctx.deeperMatch(false, []compiled.NodeId{a, b}, func() MatchResult {
			// a is already on the stack and must not be pushed twice.
			assert.Len(t, ctx.terminators, 2)
			return EmptyAt(0)
		})
		assert.Len(t, ctx.terminators, 1)
		return EmptyAt(0)
	})
	assert.Empty(t, ctx.terminators)
}

func TestDeeperMatch_ClearResetsInheritedTerminators(t *testing.T) {
	_, g := compileEngineDialect(t, func(d *dialect.Dialect) {
		require.NoError(t, d.Add("A", &grammar.StringParser{Template: "A", Kind: syntax.Keyword}))
	})
	symA, _ := g.Symbols.Lookup("A")
	a := g.Definition(symA)

	ctx := NewParseContext(g, nil, nil)
	ctx.deeperMatch(false, []compiled.NodeId{a}, func() MatchResult {
		ctx.deeperMatch(true, nil, func() MatchResult {
			assert.Empty(t, ctx.terminators, "clear must drop inherited terminators for the inner scope")
			return EmptyAt(0)
		})
		assert.Len(t, ctx.terminators, 1, "the cleared stack must be restored afterwards")
		return EmptyAt(0)
	})
}

func TestSimple_SequenceUnionsLeadingOptionalPrefixes(t *testing.T) {
	_, g := compileEngineDialect(t, func(d *dialect.Dialect) {
		require.NoError(t, d.Add("S", &grammar.Sequence{Elements: []grammar.Matchable{
			&grammar.StringParser{Template: "FOO", Kind: syntax.Keyword, Optional: true},
			&grammar.StringParser{Template: "BAR", Kind: syntax.Keyword},
		}}))
	})
	sym, _ := g.Symbols.Lookup("S")

	ctx := NewParseContext(g, nil, nil)
	s := ctx.simple(g.Definition(sym))
	require.NotNil(t, s)
	assert.Contains(t, s.raws, "FOO", "a token matching the leading optional must stay admissible")
	assert.Contains(t, s.raws, "BAR")
}

func TestSimple_AllOptionalSequenceHasNoPrefix(t *testing.T) {
	_, g := compileEngineDialect(t, func(d *dialect.Dialect) {
		require.NoError(t, d.Add("S", &grammar.Sequence{Elements: []grammar.Matchable{
			&grammar.StringParser{Template: "FOO", Kind: syntax.Keyword, Optional: true},
		}}))
	})
	sym, _ := g.Symbols.Lookup("S")

	ctx := NewParseContext(g, nil, nil)
	assert.Nil(t, ctx.simple(g.Definition(sym)), "a sequence that can match empty cannot claim a prefix set")
}

func TestLookaheadExclude_MatchesUnlessLookaheadFollows(t *testing.T) {
	_, g := compileEngineDialect(t, func(d *dialect.Dialect) {
		require.NoError(t, d.Add("NotUnlessIn", &grammar.LookaheadExclude{FirstRaw: "NOT", LookaheadRaw: "IN"}))
	})
	sym, _ := g.Symbols.Lookup("NotUnlessIn")
	id := g.Definition(sym)

	notNull := []*segment.Segment{
		buildLeaf(syntax.Keyword, "not", 0),
		buildLeaf(syntax.Whitespace, " ", 3),
		buildLeaf(syntax.Keyword, "null", 4),
	}
	ctx := NewParseContext(g, notNull, nil)
	assert.True(t, ctx.matchNodeCached(id, 0, len(notNull)).HasMatch())

	notIn := []*segment.Segment{
		buildLeaf(syntax.Keyword, "not", 0),
		buildLeaf(syntax.Whitespace, " ", 3),
		buildLeaf(syntax.Keyword, "in", 4),
	}
	ctx = NewParseContext(g, notIn, nil)
	assert.False(t, ctx.matchNodeCached(id, 0, len(notIn)).HasMatch())
}

func TestConditional_InsertsMetaOnlyWhenSatisfied(t *testing.T) {
	_, g := compileEngineDialect(t, func(d *dialect.Dialect) {
		require.NoError(t, d.Add("JoinIndent", &grammar.Conditional{MetaKind: syntax.Indent, Requirements: []string{"indented_joins"}}))
	})
	sym, _ := g.Symbols.Lookup("JoinIndent")
	id := g.Definition(sym)

	ctx := NewParseContext(g, nil, IndentationConfig{"indented_joins": true})
	require.Len(t, ctx.matchNodeCached(id, 0, 0).InsertSegments, 1)

	ctx = NewParseContext(g, nil, IndentationConfig{})
	assert.Empty(t, ctx.matchNodeCached(id, 0, 0).InsertSegments)
}

func TestParseCache_HitReturnsIdenticalResult(t *testing.T) {
	d, g := delimitedNumberDialect(t, false)
	segs := numberListSegments()

	ctx := NewParseContext(g, segs, nil)
	ctx.Dialect = d
	sym, _ := g.Symbols.Lookup("NumberSegment")
	id := g.Definition(sym)

	first := ctx.matchNodeCached(id, 0, len(segs))
	second := ctx.matchNodeCached(id, 0, len(segs))
	assert.Equal(t, first, second)
	assert.True(t, first.HasMatch())
}
