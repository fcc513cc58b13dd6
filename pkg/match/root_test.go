package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapsql/pkg/compiler"
	"github.com/leapstack-labs/leapsql/pkg/dialect"
	"github.com/leapstack-labs/leapsql/pkg/grammar"
	"github.com/leapstack-labs/leapsql/pkg/segment"
	"github.com/leapstack-labs/leapsql/pkg/syntax"
)

// buildLeaf constructs a code leaf at consecutive byte offsets, mirroring
// the shape pkg/lex produces.
func buildLeaf(kind syntax.Kind, raw string, offset int) *segment.Segment {
	return segment.NewLeaf(kind, raw, segment.Position{
		SourceStart: offset, SourceEnd: offset + len(raw),
		TemplatedStart: offset, TemplatedEnd: offset + len(raw),
		Line: 1, Column: offset + 1,
	})
}

func buildTestDialect(t *testing.T) *dialect.Dialect {
	t.Helper()
	d := dialect.New("mini")

	require.NoError(t, d.Add("ColumnReference", &grammar.NodeMatcher{
		Kind:  syntax.ColumnReference,
		Child: &grammar.TypedParser{TemplateKind: syntax.NakedIdentifier, OutKind: syntax.NakedIdentifier},
	}))
	require.NoError(t, d.Add("SelectClauseElement", &grammar.NodeMatcher{
		Kind:  syntax.SelectClauseElement,
		Child: &grammar.Ref{Name: "ColumnReference"},
	}))
	require.NoError(t, d.Add("SelectClause", &grammar.NodeMatcher{
		Kind: syntax.SelectClause,
		Child: &grammar.Sequence{
			AllowGaps: true,
			Elements: []grammar.Matchable{
				grammar.RefKeyword("select"),
				&grammar.Ref{Name: "SelectClauseElement"},
			},
		},
	}))
	require.NoError(t, d.Add("SelectStatement", &grammar.NodeMatcher{
		Kind:  syntax.SelectStatement,
		Child: &grammar.Ref{Name: "SelectClause"},
	}))
	require.NoError(t, d.Add("FileSegment", &grammar.NodeMatcher{
		Kind: syntax.File,
		Child: &grammar.Sequence{
			AllowGaps: true,
			Elements:  []grammar.Matchable{&grammar.Ref{Name: "SelectStatement"}},
		},
	}))
	require.NoError(t, d.AddKeywordToSet("unreserved_keywords", "select"))
	require.NoError(t, d.Expand())
	return d
}

func TestRootParseFile_SimpleSelect(t *testing.T) {
	d := buildTestDialect(t)
	g, err := compiler.Compile(d)
	require.NoError(t, err)

	segs := []*segment.Segment{
		buildLeaf(syntax.Keyword, "SELECT", 0),
		buildLeaf(syntax.Whitespace, " ", 6),
		buildLeaf(syntax.NakedIdentifier, "a", 7),
	}

	file, err := RootParseFile(g, d, segs, nil)
	require.NoError(t, err)
	assert.Equal(t, syntax.File, file.Kind())
	assert.Equal(t, "SELECT a", file.Raw())

	cols := file.RecursiveCrawl(segment.RecursiveCrawlOptions{
		Include: map[syntax.Kind]struct{}{syntax.ColumnReference: {}},
	})
	require.Len(t, cols, 1)
	assert.Equal(t, "a", cols[0].Raw())

	stmts := file.RecursiveCrawl(segment.RecursiveCrawlOptions{
		Include: map[syntax.Kind]struct{}{syntax.SelectStatement: {}},
	})
	require.Len(t, stmts, 1)
}

func TestRootParseFile_UnparsableTail(t *testing.T) {
	d := buildTestDialect(t)
	g, err := compiler.Compile(d)
	require.NoError(t, err)

	segs := []*segment.Segment{
		buildLeaf(syntax.Keyword, "SELECT", 0),
		buildLeaf(syntax.Whitespace, " ", 6),
		buildLeaf(syntax.NakedIdentifier, "a", 7),
		buildLeaf(syntax.Whitespace, " ", 8),
		buildLeaf(syntax.NakedIdentifier, "garbage", 9),
	}

	file, err := RootParseFile(g, d, segs, nil)
	require.NoError(t, err)

	unparsable := file.RecursiveCrawl(segment.RecursiveCrawlOptions{
		Include: map[syntax.Kind]struct{}{syntax.Unparsable: {}},
	})
	assert.NotEmpty(t, unparsable, "trailing identifier the grammar doesn't account for should surface as Unparsable")
}

func TestRootParseFile_AllNonCode(t *testing.T) {
	d := buildTestDialect(t)
	g, err := compiler.Compile(d)
	require.NoError(t, err)

	segs := []*segment.Segment{buildLeaf(syntax.Whitespace, "   ", 0)}
	file, err := RootParseFile(g, d, segs, nil)
	require.NoError(t, err)
	assert.Equal(t, syntax.File, file.Kind())
	assert.Equal(t, "   ", file.Raw())
}
