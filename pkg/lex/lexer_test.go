package lex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapsql/pkg/dialects/ansi"
	"github.com/leapstack-labs/leapsql/pkg/syntax"
)

func TestLex_SimpleSelect(t *testing.T) {
	d := ansi.Build()
	segs, err := Lex(d, "select a from b")
	require.NoError(t, err)

	var raws []string
	for _, s := range segs {
		raws = append(raws, s.Raw())
	}
	assert.Equal(t, []string{"select", " ", "a", " ", "from", " ", "b", ""}, raws)
	assert.Equal(t, syntax.EndOfFile, segs[len(segs)-1].Kind())
	assert.True(t, segs[len(segs)-1].IsMeta())
}

func TestLex_Whitespace_and_Comments(t *testing.T) {
	d := ansi.Build()
	segs, err := Lex(d, "select 1 -- trailing comment\nfrom t")
	require.NoError(t, err)

	var kinds []syntax.Kind
	for _, s := range segs {
		kinds = append(kinds, s.Kind())
	}
	assert.Contains(t, kinds, syntax.Comment)
	assert.Contains(t, kinds, syntax.Newline)
}

func TestLex_StringAndQuotedIdentifier(t *testing.T) {
	d := ansi.Build()
	segs, err := Lex(d, `select "col", 'it''s' from t`)
	require.NoError(t, err)

	var found bool
	for _, s := range segs {
		if s.Kind() == syntax.QuotedIdentifier {
			assert.Equal(t, `"col"`, s.Raw())
			found = true
		}
		if s.Kind() == syntax.StringLiteral {
			assert.Equal(t, `'it''s'`, s.Raw())
		}
	}
	assert.True(t, found)
}

func TestLex_Brackets(t *testing.T) {
	d := ansi.Build()
	segs, err := Lex(d, "select a from t where a in (1, 2)")
	require.NoError(t, err)

	var kinds []syntax.Kind
	for _, s := range segs {
		kinds = append(kinds, s.Kind())
	}
	assert.Contains(t, kinds, syntax.StartBracket)
	assert.Contains(t, kinds, syntax.EndBracket)
	assert.Contains(t, kinds, syntax.Comma)
}

func TestLex_PositionTracksLineAndColumn(t *testing.T) {
	d := ansi.Build()
	segs, err := Lex(d, "select a\nfrom b")
	require.NoError(t, err)

	for _, s := range segs {
		if s.Raw() == "from" {
			pos := s.Position()
			assert.Equal(t, 2, pos.Line)
			assert.Equal(t, 1, pos.Column)
		}
	}
}

func TestLex_UnrecognizedInput(t *testing.T) {
	d := ansi.Build()
	_, err := Lex(d, "select a ~ b")
	require.Error(t, err)
	var lexErr *LexError
	assert.ErrorAs(t, err, &lexErr)
}
