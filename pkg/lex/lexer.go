// Package lex turns raw SQL text into the flat slice of segment.Segment
// leaves the match engine walks, driving entirely off a dialect's ordered
// LexerMatcher list rather than a hardcoded switch (spec.md §4.E expects
// the match engine to receive already-lexed segments; this package is
// where those segments come from).
package lex

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapsql/pkg/dialect"
	"github.com/leapstack-labs/leapsql/pkg/segment"
	"github.com/leapstack-labs/leapsql/pkg/syntax"
)

// LexError reports an offset the dialect's lexer matchers could not cover.
type LexError struct {
	Offset int
	Line   int
	Column int
	Detail string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lex: %s at %d:%d (offset %d)", e.Detail, e.Line, e.Column, e.Offset)
}

// Lex tokenizes sql against d's lexer matchers, trying each in declared
// order at every offset and taking the first that matches (sqlfluff-style
// "first match wins", not longest-match — dialect authors order matchers
// so longer literals/patterns precede their prefixes, the way ansi orders
// its comparison operators before the bare "=" case). The templated-byte
// mapping is the identity mapping: templating is out of scope (spec.md §1).
func Lex(d *dialect.Dialect, sql string) ([]*segment.Segment, error) {
	file := &segment.TemplatedFile{Source: sql, Templated: sql}
	matchers := d.LexerMatchers()

	var out []*segment.Segment
	pos := 0
	line, col := 1, 1

	for pos < len(sql) {
		raw, kind, ok := matchAt(matchers, sql[pos:])
		if !ok {
			return nil, &LexError{Offset: pos, Line: line, Column: col, Detail: fmt.Sprintf("unrecognized input starting %q", snippet(sql[pos:]))}
		}

		start := pos
		startLine, startCol := line, col
		for _, r := range raw {
			if r == '\n' {
				line++
				col = 1
			} else {
				col++
			}
		}
		pos += len(raw)

		out = append(out, segment.NewLeaf(kind, raw, segment.Position{
			SourceStart:    start,
			SourceEnd:      pos,
			TemplatedStart: start,
			TemplatedEnd:   pos,
			Line:           startLine,
			Column:         startCol,
			File:           file,
		}))
	}

	out = append(out, segment.NewMeta(syntax.EndOfFile, segment.Position{
		SourceStart: pos, SourceEnd: pos, TemplatedStart: pos, TemplatedEnd: pos,
		Line: line, Column: col, File: file,
	}))

	return out, nil
}

func matchAt(matchers []dialect.LexerMatcher, remaining string) (string, syntax.Kind, bool) {
	for _, m := range matchers {
		if m.Literal != "" {
			if strings.HasPrefix(remaining, m.Literal) {
				return m.Literal, m.Kind, true
			}
			continue
		}
		if m.Pattern == nil {
			continue
		}
		loc := m.Pattern.FindStringIndex(remaining)
		if loc != nil && loc[0] == 0 && loc[1] > 0 {
			return remaining[:loc[1]], m.Kind, true
		}
	}
	return "", syntax.Unknown, false
}

func snippet(s string) string {
	const max = 16
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
