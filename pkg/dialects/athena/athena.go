// Package athena defines the AWS Athena SQL dialect as an extension of
// ANSI: it clones the ANSI dialect wholesale, then overrides the handful of
// constructs Athena's Presto lineage changes — backtick-quoted identifiers
// and the UNLOAD statement — and layers on Athena-only keywords, an
// angle-bracket pair for Presto/Hive array types, and a small set of
// file-format literals. Inherited rules are never rewritten from scratch:
// overrides go through dialect.ReplaceGrammar so the cloned entries keep
// their identity.
package athena

import (
	"regexp"

	"github.com/leapstack-labs/leapsql/pkg/dialect"
	"github.com/leapstack-labs/leapsql/pkg/dialects/ansi"
	"github.com/leapstack-labs/leapsql/pkg/grammar"
	"github.com/leapstack-labs/leapsql/pkg/syntax"
)

// Dialect-specific kinds with no ANSI equivalent, registered the same way
// any extension package would add a new leaf kind at runtime (pkg/syntax's
// Register, not a built-in constant, since these only ever occur in
// Athena-flavored trees).
var (
	kindBackQuote         = syntax.Register("BackQuote")
	kindStartAngleBracket = syntax.Register("StartAngleBracket")
	kindEndAngleBracket   = syntax.Register("EndAngleBracket")
	kindFileFormat        = syntax.Register("FileFormat")
	kindUnloadStatement   = syntax.Register("UnloadStatement")
)

func init() {
	d := Build()
	if err := d.Expand(); err != nil {
		panic(err)
	}
	if err := dialect.Register(d); err != nil {
		panic(err)
	}
}

// Build clones the ANSI dialect and layers the Athena extensions on top.
// CloneFrom requires its parent to already be built (not necessarily
// expanded); ansi.Build returns a fresh mutable copy for exactly this
// purpose, so in-place ReplaceGrammar calls below never leak into the
// registered ansi dialect.
func Build() *dialect.Dialect {
	parent := ansi.Build()
	d := dialect.CloneFrom("athena", parent)

	// UNLOAD/TO/WITH join the reserved set so the regenerated naked
	// identifier parser refuses them as bare identifiers.
	if err := d.UpdateKeywordsFromMultilineString("reserved_keywords", athenaReservedKeywords); err != nil {
		panic(err)
	}
	if err := d.UpdateKeywordsFromMultilineString("unreserved_keywords", athenaUnreservedKeywords); err != nil {
		panic(err)
	}

	// Ahead of "operator", which would otherwise claim the leading "-".
	if err := d.InsertLexerMatchers([]dialect.LexerMatcher{
		{Name: "right_arrow", Kind: syntax.BinaryOperator, Literal: "->"},
	}, "operator"); err != nil {
		panic(err)
	}
	if err := d.InsertLexerMatchers([]dialect.LexerMatcher{
		{Name: "back_quote", Kind: kindBackQuote, Pattern: regexp.MustCompile("^`[^`]*`")},
	}, "word"); err != nil {
		panic(err)
	}

	if err := d.UpdateBracketSets("angle_bracket_pairs", []dialect.BracketPair{
		{BracketType: "angle", StartRefName: "StartAngleBracketSegment", EndRefName: "EndAngleBracketSegment", Persists: false},
	}); err != nil {
		panic(err)
	}

	add := func(name string, m grammar.Matchable) {
		if err := d.Add(name, m); err != nil {
			panic(err)
		}
	}
	replace := func(name string, m grammar.Matchable) {
		if err := d.ReplaceGrammar(name, m); err != nil {
			panic(err)
		}
	}

	add("StartAngleBracketSegment", &grammar.StringParser{Template: "<", Kind: kindStartAngleBracket})
	add("EndAngleBracketSegment", &grammar.StringParser{Template: ">", Kind: kindEndAngleBracket})

	for _, format := range []string{"JSONFILE", "RCFILE", "ORCFILE", "PARQUETFILE", "AVROFILE", "IONFILE", "SEQUENCEFILE", "TEXTFILE"} {
		add(format+"Segment", &grammar.StringParser{Template: format, Kind: kindFileFormat})
	}
	add("FileFormatGrammar", grammar.OneOf(
		&grammar.Ref{Name: "JSONFILESegment"},
		&grammar.Ref{Name: "RCFILESegment"},
		&grammar.Ref{Name: "ORCFILESegment"},
		&grammar.Ref{Name: "PARQUETFILESegment"},
		&grammar.Ref{Name: "AVROFILESegment"},
		&grammar.Ref{Name: "IONFILESegment"},
		&grammar.Ref{Name: "SEQUENCEFILESegment"},
		&grammar.Ref{Name: "TEXTFILESegment"},
	))

	// Backtick-quoted identifiers, Athena's Hive-flavored quoting. The raw
	// lexeme keeps its own kind; the parser retags it as a quoted
	// identifier, so downstream is-a checks treat all quoting styles alike.
	add("BackQuotedIdentifierSegment", &grammar.TypedParser{TemplateKind: kindBackQuote, OutKind: syntax.QuotedIdentifier})
	replace("SingleIdentifierGrammar", grammar.OneOf(
		&grammar.Ref{Name: "NakedIdentifierSegment"},
		&grammar.Ref{Name: "QuotedIdentifierSegment"},
		&grammar.Ref{Name: "BackQuotedIdentifierSegment"},
	))

	// UNLOAD (select ...) TO 'location' WITH (format = '...', ...).
	add("UnloadPropertyGrammar", &grammar.Sequence{
		AllowGaps: true,
		Elements: []grammar.Matchable{
			grammar.OneOf(
				grammar.RefKeyword("format"),
				grammar.RefKeyword("partitioned_by"),
				grammar.RefKeyword("compression"),
				grammar.RefKeyword("field_delimiter"),
			),
			&grammar.StringParser{Template: "=", Kind: syntax.ComparisonOperator},
			&grammar.Ref{Name: "QuotedLiteralSegment"},
		},
	})
	add("UnloadStatementSegment", &grammar.NodeMatcher{
		Kind: kindUnloadStatement,
		Child: &grammar.Sequence{
			AllowGaps: true,
			Elements: []grammar.Matchable{
				grammar.RefKeyword("unload"),
				&grammar.Bracketed{BracketType: "round", Inner: &grammar.Sequence{
					AllowGaps: true,
					Elements:  []grammar.Matchable{&grammar.Ref{Name: "SelectStatementSegment"}},
				}},
				grammar.RefKeyword("to"),
				&grammar.Ref{Name: "QuotedLiteralSegment"},
				&grammar.Sequence{AllowGaps: true, Optional: true, Elements: []grammar.Matchable{
					grammar.RefKeyword("with"),
					&grammar.Bracketed{BracketType: "round", Inner: &grammar.Sequence{
						AllowGaps: true,
						Elements: []grammar.Matchable{&grammar.Delimited{
							Elements:  []grammar.Matchable{&grammar.Ref{Name: "UnloadPropertyGrammar"}},
							Delimiter: &grammar.Ref{Name: "CommaSegment"},
							AllowGaps: true,
						}},
					}},
				}},
			},
		},
	})

	// ReplaceGrammar mutates the inherited NodeMatcher's child in place, so
	// every Ref already pointing at StatementSegment picks up the new
	// alternative without re-registration.
	replace("StatementSegment", grammar.OneOf(
		&grammar.Ref{Name: "UnloadStatementSegment"},
		&grammar.Ref{Name: "SetExpressionSegment"},
		&grammar.Ref{Name: "SelectStatementSegment"},
	))

	return d
}

const athenaReservedKeywords = `
unload
to
with
`

const athenaUnreservedKeywords = `
external
location
partitioned
partitioned_by
stored
tblproperties
serdeproperties
format
compression
field_delimiter
array
map
struct
`
