// Package ansi defines the base ANSI SQL dialect: its keyword sets,
// bracket pairs, lexer matchers, and the grammar rules for SELECT
// statements. Every other dialect in this module clones ANSI with
// dialect.CloneFrom and overrides only what differs (see pkg/dialects/athena).
package ansi

import (
	"regexp"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapsql/pkg/dialect"
	"github.com/leapstack-labs/leapsql/pkg/grammar"
	"github.com/leapstack-labs/leapsql/pkg/syntax"
)

func init() {
	d := Build()
	if err := d.Expand(); err != nil {
		panic(err) // a malformed built-in dialect is a programming error, not runtime input
	}
	if err := dialect.Register(d); err != nil {
		panic(err)
	}

	// class_types: a column/table reference is-a identifier; both quoted and
	// naked identifiers are-a identifier (spec.md §3, "a column reference is
	// also an identifier, etc.").
	syntax.SetClassTypes(syntax.ColumnReference, syntax.Identifier)
	syntax.SetClassTypes(syntax.TableReference, syntax.Identifier)
	syntax.SetClassTypes(syntax.ObjectReference, syntax.Identifier)
	syntax.SetClassTypes(syntax.NakedIdentifier, syntax.Identifier)
	syntax.SetClassTypes(syntax.QuotedIdentifier, syntax.Identifier)
}

var nakedIdentifierPattern = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

// Build constructs the mutable ANSI dialect. Exported so pkg/dialects/athena
// (and any future dialect) can dialect.CloneFrom it before Expand freezes it.
func Build() *dialect.Dialect {
	d := dialect.New("ansi")

	mustAdd(d, "reserved_keywords", reservedKeywords)
	mustAdd(d, "unreserved_keywords", unreservedKeywords)
	mustBrackets(d)
	mustLexer(d)
	mustGrammar(d)

	return d
}

func mustAdd(d *dialect.Dialect, set, text string) {
	if err := d.UpdateKeywordsFromMultilineString(set, text); err != nil {
		panic(err)
	}
}

// reservedKeywords can never be used as a bare identifier: the naked
// identifier parser's anti-pattern is built from this set, which is what
// stops an optional alias from swallowing the FROM in "select a, b from t".
// Every keyword the grammar references via grammar.RefKeyword lives in one
// of these two sets; dialect.Expand synthesizes a StringParser-backed
// NodeMatcher for each one that has no explicit override below.
const reservedKeywords = `
select
from
where
group
by
having
order
limit
offset
fetch
as
asc
desc
distinct
and
or
not
in
is
null
like
between
exists
case
when
then
else
end
cast
union
intersect
except
inner
left
right
full
outer
cross
join
on
using
`

// unreservedKeywords may still appear as identifiers (a column named
// "window" is legal ANSI), so they stay out of the anti-pattern.
const unreservedKeywords = `
window
first
next
rows
only
nulls
last
all
`

func mustBrackets(d *dialect.Dialect) {
	if err := d.UpdateBracketSets("bracket_pairs", []dialect.BracketPair{
		{BracketType: "round", StartRefName: "StartBracketSegment", EndRefName: "EndBracketSegment", Persists: true},
		{BracketType: "square", StartRefName: "StartSquareBracketSegment", EndRefName: "EndSquareBracketSegment", Persists: true},
	}); err != nil {
		panic(err)
	}
}

func mustLexer(d *dialect.Dialect) {
	if err := d.SetLexerMatchers([]dialect.LexerMatcher{
		{Name: "whitespace", Kind: syntax.Whitespace, Pattern: regexp.MustCompile(`^[ \t]+`)},
		{Name: "newline", Kind: syntax.Newline, Pattern: regexp.MustCompile(`^\r?\n`)},
		{Name: "line_comment", Kind: syntax.Comment, Pattern: regexp.MustCompile(`^--[^\r\n]*`)},
		{Name: "block_comment", Kind: syntax.Comment, Pattern: regexp.MustCompile(`(?s)^/\*.*?\*/`)},
		{Name: "numeric_literal", Kind: syntax.NumericLiteral, Pattern: regexp.MustCompile(`^[0-9]+(\.[0-9]+)?`)},
		{Name: "single_quote", Kind: syntax.StringLiteral, Pattern: regexp.MustCompile(`^'([^']|'')*'`)},
		{Name: "double_quote", Kind: syntax.QuotedIdentifier, Pattern: regexp.MustCompile(`^"([^"]|"")*"`)},
		{Name: "start_bracket", Kind: syntax.StartBracket, Literal: "("},
		{Name: "end_bracket", Kind: syntax.EndBracket, Literal: ")"},
		{Name: "start_square_bracket", Kind: syntax.StartSquareBracket, Literal: "["},
		{Name: "end_square_bracket", Kind: syntax.EndSquareBracket, Literal: "]"},
		{Name: "comma", Kind: syntax.Comma, Literal: ","},
		{Name: "dot", Kind: syntax.Dot, Literal: "."},
		{Name: "semicolon", Kind: syntax.Code, Literal: ";"},
		{Name: "star", Kind: syntax.Code, Literal: "*"},
		{Name: "operator", Kind: syntax.Code, Pattern: regexp.MustCompile(`^(<>|<=|>=|!=|[=<>+\-/%])`)},
		{Name: "word", Kind: syntax.Identifier, Pattern: regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*`)},
	}); err != nil {
		panic(err)
	}
}

func ref(name string) *grammar.Ref { return &grammar.Ref{Name: name} }

// reservedKeywordAntiPattern renders the dialect's reserved keyword set into
// the full-match alternation the naked identifier parser rejects. Sorted so
// the pattern is stable run to run.
func reservedKeywordAntiPattern(d *dialect.Dialect) *regexp.Regexp {
	set := d.Sets("reserved_keywords")
	kws := make([]string, 0, len(set))
	for kw := range set {
		kws = append(kws, kw)
	}
	sort.Strings(kws)
	return regexp.MustCompile(`^(` + strings.Join(kws, "|") + `)$`)
}

func mustGrammar(d *dialect.Dialect) {
	add := func(name string, m grammar.Matchable) {
		if err := d.Add(name, m); err != nil {
			panic(err)
		}
	}
	addGen := func(name string, g dialect.Generator) {
		if err := d.AddGenerator(name, g); err != nil {
			panic(err)
		}
	}

	add("StartBracketSegment", &grammar.NodeMatcher{Kind: syntax.StartBracket, Child: &grammar.StringParser{Template: "(", Kind: syntax.StartBracket}})
	add("EndBracketSegment", &grammar.NodeMatcher{Kind: syntax.EndBracket, Child: &grammar.StringParser{Template: ")", Kind: syntax.EndBracket}})
	add("StartSquareBracketSegment", &grammar.NodeMatcher{Kind: syntax.StartSquareBracket, Child: &grammar.StringParser{Template: "[", Kind: syntax.StartSquareBracket}})
	add("EndSquareBracketSegment", &grammar.NodeMatcher{Kind: syntax.EndSquareBracket, Child: &grammar.StringParser{Template: "]", Kind: syntax.EndSquareBracket}})
	add("CommaSegment", &grammar.NodeMatcher{Kind: syntax.Comma, Child: &grammar.StringParser{Template: ",", Kind: syntax.Comma}})
	add("DotSegment", &grammar.NodeMatcher{Kind: syntax.Dot, Child: &grammar.StringParser{Template: ".", Kind: syntax.Dot}})
	add("StarSegment", &grammar.StringParser{Template: "*", Kind: syntax.Code})

	// Comparison operators are listed longest-first so the character-class
	// alternative in the lexer's own "operator" matcher never wins a tie
	// (mirrored here for the grammar side, where StringParser/MultiStringParser
	// templates are matched by exact equality, not alternation order).
	add("ComparisonOperatorSegment", &grammar.MultiStringParser{
		Templates: []string{"<>", "!=", "<=", ">=", "=", "<", ">"},
		Kind:      syntax.ComparisonOperator,
	})
	add("BinaryOperatorSegment", &grammar.MultiStringParser{
		Templates: []string{"+", "-", "*", "/", "%"},
		Kind:      syntax.BinaryOperator,
	})

	// A generator rather than a static entry: the anti-pattern is rendered
	// from whichever reserved_keywords set the *expanding* dialect carries,
	// so a dialect that clones ansi and reserves more words (athena) gets
	// those words excluded without redefining the parser.
	addGen("NakedIdentifierSegment", func(d *dialect.Dialect) grammar.Matchable {
		return &grammar.RegexParser{
			Pattern:     nakedIdentifierPattern,
			AntiPattern: reservedKeywordAntiPattern(d),
			Kind:        syntax.NakedIdentifier,
		}
	})
	add("QuotedIdentifierSegment", &grammar.TypedParser{TemplateKind: syntax.QuotedIdentifier, OutKind: syntax.QuotedIdentifier})
	add("NumericLiteralSegment", &grammar.TypedParser{TemplateKind: syntax.NumericLiteral, OutKind: syntax.NumericLiteral})
	add("QuotedLiteralSegment", &grammar.TypedParser{TemplateKind: syntax.StringLiteral, OutKind: syntax.StringLiteral})

	add("SingleIdentifierGrammar", grammar.OneOf(ref("NakedIdentifierSegment"), ref("QuotedIdentifierSegment")))

	// ObjectReference: a dotted path of identifiers, e.g. schema.table.column.
	add("ObjectReference", &grammar.NodeMatcher{
		Kind: syntax.ObjectReference,
		Child: &grammar.Delimited{
			Elements:  []grammar.Matchable{ref("SingleIdentifierGrammar")},
			Delimiter: ref("DotSegment"),
			AllowGaps: false,
		},
	})

	add("ColumnReference", &grammar.NodeMatcher{Kind: syntax.ColumnReference, Child: ref("ObjectReference")})
	add("TableReference", &grammar.NodeMatcher{Kind: syntax.TableReference, Child: ref("ObjectReference")})

	add("WildcardIdentifierSegment", &grammar.NodeMatcher{
		Kind: syntax.WildcardIdentifier,
		Child: &grammar.Sequence{
			AllowGaps: false,
			Elements: []grammar.Matchable{
				&grammar.AnyNumberOf{
					Elements: []grammar.Matchable{&grammar.Sequence{AllowGaps: false, Elements: []grammar.Matchable{ref("SingleIdentifierGrammar"), ref("DotSegment")}}},
					Min:      0, Max: -1,
				},
				ref("StarSegment"),
			},
		},
	})
	add("WildcardExpressionSegment", &grammar.NodeMatcher{Kind: syntax.WildcardExpression, Child: ref("WildcardIdentifierSegment")})

	// BracketedExpression wraps a full Expression in round brackets; see
	// ExpressionTerm/Expression below for the term and operator grammar.
	add("BracketedExpression", &grammar.Bracketed{
		BracketType: "round",
		Inner:       &grammar.Sequence{AllowGaps: true, Elements: []grammar.Matchable{ref("Expression")}},
	})
	add("CaseExpressionSegment", &grammar.NodeMatcher{
		Kind: syntax.CaseExpression,
		Child: &grammar.Sequence{
			AllowGaps: true,
			Elements: []grammar.Matchable{
				grammar.RefKeyword("case"),
				&grammar.AnyNumberOf{
					Min: 1, Max: -1,
					Elements: []grammar.Matchable{&grammar.Sequence{AllowGaps: true, Elements: []grammar.Matchable{
						grammar.RefKeyword("when"), ref("Expression"), grammar.RefKeyword("then"), ref("Expression"),
					}}},
				},
				&grammar.Sequence{AllowGaps: true, Optional: true, Elements: []grammar.Matchable{grammar.RefKeyword("else"), ref("Expression")}},
				grammar.RefKeyword("end"),
			},
		},
	})
	add("CastExpressionSegment", &grammar.NodeMatcher{
		Kind: syntax.CastExpression,
		Child: &grammar.Sequence{
			AllowGaps: true,
			Elements: []grammar.Matchable{
				grammar.RefKeyword("cast"),
				&grammar.Bracketed{BracketType: "round", Inner: &grammar.Sequence{AllowGaps: true, Elements: []grammar.Matchable{
					ref("Expression"), grammar.RefKeyword("as"), ref("SingleIdentifierGrammar"),
				}}},
			},
		},
	})
	// ExpressionTerm is a single operand; Expression chains terms with binary
	// and comparison operators left-to-right and flat (no precedence
	// climbing) — lint-rule authoring past tree shape is out of scope here,
	// so "1+2*3" parses as a flat run of terms and operators under one
	// Expression node rather than a nested precedence tree.
	add("ExpressionTerm", grammar.OneOf(
		ref("CaseExpressionSegment"),
		ref("CastExpressionSegment"),
		ref("BracketedExpression"),
		ref("NumericLiteralSegment"),
		ref("QuotedLiteralSegment"),
		ref("ColumnReference"),
	))
	add("Expression", &grammar.NodeMatcher{
		Kind: syntax.Expression,
		Child: &grammar.Sequence{
			AllowGaps: true,
			Elements: []grammar.Matchable{
				ref("ExpressionTerm"),
				&grammar.AnyNumberOf{
					Min: 0, Max: -1,
					Elements: []grammar.Matchable{&grammar.Sequence{
						AllowGaps: true,
						Elements: []grammar.Matchable{
							grammar.OneOf(ref("BinaryOperatorSegment"), ref("ComparisonOperatorSegment")),
							ref("ExpressionTerm"),
						},
					}},
				},
			},
		},
	})

	add("AliasExpressionSegment", &grammar.NodeMatcher{
		Kind: syntax.AliasExpression,
		Child: &grammar.Sequence{
			AllowGaps: true,
			Elements: []grammar.Matchable{
				&grammar.Sequence{AllowGaps: true, Optional: true, Elements: []grammar.Matchable{grammar.RefKeyword("as")}},
				ref("SingleIdentifierGrammar"),
			},
		},
	})

	add("SelectClauseElement", &grammar.NodeMatcher{
		Kind: syntax.SelectClauseElement,
		Child: grammar.OneOf(
			ref("WildcardExpressionSegment"),
			&grammar.Sequence{AllowGaps: true, Elements: []grammar.Matchable{
				&grammar.NodeMatcher{Kind: syntax.ColumnExpression, Child: ref("Expression")},
				&grammar.Sequence{AllowGaps: true, Optional: true, Elements: []grammar.Matchable{ref("AliasExpressionSegment")}},
			}},
		),
	})

	add("SelectClauseSegment", &grammar.NodeMatcher{
		Kind: syntax.SelectClause,
		Child: &grammar.Sequence{
			AllowGaps: true,
			Elements: []grammar.Matchable{
				grammar.RefKeyword("select"),
				&grammar.Sequence{AllowGaps: true, Optional: true, Elements: []grammar.Matchable{grammar.RefKeyword("distinct")}},
				&grammar.Delimited{
					Elements:  []grammar.Matchable{ref("SelectClauseElement")},
					Delimiter: ref("CommaSegment"),
					AllowGaps: true,
				},
			},
		},
	})

	add("TableExpressionSegment", &grammar.NodeMatcher{Kind: syntax.TableExpression, Child: ref("TableReference")})
	add("FromExpressionElementSegment", &grammar.NodeMatcher{
		Kind: syntax.FromExpressionElement,
		Child: &grammar.Sequence{
			AllowGaps: true,
			Elements: []grammar.Matchable{
				ref("TableExpressionSegment"),
				&grammar.Sequence{AllowGaps: true, Optional: true, Elements: []grammar.Matchable{ref("AliasExpressionSegment")}},
			},
		},
	})

	add("JoinClauseSegment", &grammar.NodeMatcher{
		Kind: syntax.JoinClause,
		Child: &grammar.Sequence{
			AllowGaps: true,
			Elements: []grammar.Matchable{
				&grammar.NodeMatcher{Kind: syntax.JoinKeywords, Child: grammar.OneOf(
					&grammar.Sequence{AllowGaps: true, Elements: []grammar.Matchable{grammar.RefKeyword("inner"), grammar.RefKeyword("join")}},
					&grammar.Sequence{AllowGaps: true, Elements: []grammar.Matchable{grammar.RefKeyword("left"), &grammar.Sequence{AllowGaps: true, Optional: true, Elements: []grammar.Matchable{grammar.RefKeyword("outer")}}, grammar.RefKeyword("join")}},
					&grammar.Sequence{AllowGaps: true, Elements: []grammar.Matchable{grammar.RefKeyword("right"), &grammar.Sequence{AllowGaps: true, Optional: true, Elements: []grammar.Matchable{grammar.RefKeyword("outer")}}, grammar.RefKeyword("join")}},
					&grammar.Sequence{AllowGaps: true, Elements: []grammar.Matchable{grammar.RefKeyword("full"), &grammar.Sequence{AllowGaps: true, Optional: true, Elements: []grammar.Matchable{grammar.RefKeyword("outer")}}, grammar.RefKeyword("join")}},
					&grammar.Sequence{AllowGaps: true, Elements: []grammar.Matchable{grammar.RefKeyword("cross"), grammar.RefKeyword("join")}},
					grammar.RefKeyword("join"),
				)},
				ref("FromExpressionElementSegment"),
				&grammar.Sequence{AllowGaps: true, Optional: true, Elements: []grammar.Matchable{
					grammar.RefKeyword("on"), ref("Expression"),
				}},
			},
		},
	})

	add("FromExpressionSegment", &grammar.NodeMatcher{
		Kind: syntax.FromExpression,
		Child: &grammar.Sequence{
			AllowGaps: true,
			Elements: []grammar.Matchable{
				ref("FromExpressionElementSegment"),
				&grammar.AnyNumberOf{Elements: []grammar.Matchable{ref("JoinClauseSegment")}, Min: 0, Max: -1},
			},
		},
	})

	add("FromClauseSegment", &grammar.NodeMatcher{
		Kind: syntax.FromClause,
		Child: &grammar.Sequence{
			AllowGaps: true,
			Elements: []grammar.Matchable{
				grammar.RefKeyword("from"),
				&grammar.Delimited{Elements: []grammar.Matchable{ref("FromExpressionSegment")}, Delimiter: ref("CommaSegment"), AllowGaps: true},
			},
		},
	})

	add("WhereClauseSegment", &grammar.NodeMatcher{
		Kind: syntax.WhereClause,
		Child: &grammar.Sequence{AllowGaps: true, Elements: []grammar.Matchable{grammar.RefKeyword("where"), ref("Expression")}},
	})

	add("GroupByClauseSegment", &grammar.NodeMatcher{
		Kind: syntax.GroupByClause,
		Child: &grammar.Sequence{AllowGaps: true, Elements: []grammar.Matchable{
			grammar.RefKeyword("group"), grammar.RefKeyword("by"),
			&grammar.Delimited{Elements: []grammar.Matchable{ref("ColumnReference")}, Delimiter: ref("CommaSegment"), AllowGaps: true},
		}},
	})

	add("HavingClauseSegment", &grammar.NodeMatcher{
		Kind: syntax.HavingClause,
		Child: &grammar.Sequence{AllowGaps: true, Elements: []grammar.Matchable{grammar.RefKeyword("having"), ref("Expression")}},
	})

	add("OrderByClauseElement", &grammar.NodeMatcher{
		Kind: syntax.OrderByElement,
		Child: &grammar.Sequence{
			AllowGaps: true,
			Elements: []grammar.Matchable{
				ref("ColumnReference"),
				&grammar.Sequence{AllowGaps: true, Optional: true, Elements: []grammar.Matchable{grammar.OneOf(grammar.RefKeyword("asc"), grammar.RefKeyword("desc"))}},
			},
		},
	})
	add("OrderByClauseSegment", &grammar.NodeMatcher{
		Kind: syntax.OrderByClause,
		Child: &grammar.Sequence{AllowGaps: true, Elements: []grammar.Matchable{
			grammar.RefKeyword("order"), grammar.RefKeyword("by"),
			&grammar.Delimited{Elements: []grammar.Matchable{ref("OrderByClauseElement")}, Delimiter: ref("CommaSegment"), AllowGaps: true},
		}},
	})

	add("LimitClauseSegment", &grammar.NodeMatcher{
		Kind: syntax.LimitClause,
		Child: &grammar.Sequence{AllowGaps: true, Elements: []grammar.Matchable{grammar.RefKeyword("limit"), ref("NumericLiteralSegment")}},
	})

	add("SelectStatementSegment", &grammar.NodeMatcher{
		Kind: syntax.SelectStatement,
		Child: &grammar.Sequence{
			AllowGaps: true,
			Elements: []grammar.Matchable{
				ref("SelectClauseSegment"),
				&grammar.Sequence{AllowGaps: true, Optional: true, Elements: []grammar.Matchable{ref("FromClauseSegment")}},
				&grammar.Sequence{AllowGaps: true, Optional: true, Elements: []grammar.Matchable{ref("WhereClauseSegment")}},
				&grammar.Sequence{AllowGaps: true, Optional: true, Elements: []grammar.Matchable{ref("GroupByClauseSegment")}},
				&grammar.Sequence{AllowGaps: true, Optional: true, Elements: []grammar.Matchable{ref("HavingClauseSegment")}},
				&grammar.Sequence{AllowGaps: true, Optional: true, Elements: []grammar.Matchable{ref("OrderByClauseSegment")}},
				&grammar.Sequence{AllowGaps: true, Optional: true, Elements: []grammar.Matchable{ref("LimitClauseSegment")}},
			},
		},
	})

	add("SetOperatorSegment", &grammar.NodeMatcher{
		Kind: syntax.SetOperator,
		Child: grammar.OneOf(
			grammar.RefKeyword("union"),
			grammar.RefKeyword("intersect"),
			grammar.RefKeyword("except"),
		),
	})

	add("SetExpressionSegment", &grammar.NodeMatcher{
		Kind: syntax.SetExpression,
		Child: &grammar.Delimited{
			Elements:      []grammar.Matchable{ref("SelectStatementSegment")},
			Delimiter:     ref("SetOperatorSegment"),
			AllowGaps:     true,
			MinDelimiters: 1,
		},
	})

	add("StatementSegment", &grammar.NodeMatcher{
		Kind:  syntax.Statement,
		Child: grammar.OneOf(ref("SetExpressionSegment"), ref("SelectStatementSegment")),
	})

	add("FileSegment", &grammar.NodeMatcher{
		Kind: syntax.File,
		Child: &grammar.Delimited{
			Elements:      []grammar.Matchable{ref("StatementSegment")},
			Delimiter:     &grammar.StringParser{Template: ";", Kind: syntax.Code},
			AllowTrailing: true,
			AllowGaps:     true,
		},
	})
}
