// Package match is the table-driven parser: it walks compiled.Graph nodes
// against a flat slice of already-lexed segment.Segment leaves, producing
// MatchResults that RootParseFile folds into a segment.Segment tree
// (spec.md §4.E, §4.F).
package match

import "github.com/leapstack-labs/leapsql/pkg/syntax"

// InsertSegment records a zero-width meta to splice in at Idx when the
// match is realized into a segment tree.
type InsertSegment struct {
	Idx  int
	Kind syntax.Kind
}

// MatchResult is the parser's universal return value (spec.md §3, §4.F):
// a span over the segment slice, an optional wrap kind, metas to insert,
// and child matches to realize as the wrapped node's children.
type MatchResult struct {
	Start, End     int
	Matched        *syntax.Kind
	InsertSegments []InsertSegment
	ChildMatches   []MatchResult
}

// EmptyAt returns the canonical empty-but-located result used when a
// matcher declines to match at position i.
func EmptyAt(i int) MatchResult {
	return MatchResult{Start: i, End: i}
}

// FromSpan returns an unwrapped match covering [a,b).
func FromSpan(a, b int) MatchResult {
	return MatchResult{Start: a, End: b}
}

// HasMatch reports whether r represents an actual match: either it covers
// a non-empty span, or it is explicitly wrapped (spec.md §3).
func (r MatchResult) HasMatch() bool {
	return r.End > r.Start || r.Matched != nil
}

// Append concatenates other onto r. other.Start is expected to equal
// r.End; behavior is otherwise undefined, matching the source contract
// (spec.md §4.F). A wrapped or child-bearing other is kept as one child
// and realizes its own InsertSegments; otherwise its InsertSegments are
// merged into r's.
func (r MatchResult) Append(other MatchResult) MatchResult {
	out := r
	out.End = other.End
	if other.Matched != nil || len(other.ChildMatches) > 0 {
		out.InsertSegments = append([]InsertSegment(nil), r.InsertSegments...)
		out.ChildMatches = append(append([]MatchResult(nil), r.ChildMatches...), other)
	} else {
		out.InsertSegments = append(append([]InsertSegment(nil), r.InsertSegments...), other.InsertSegments...)
		out.ChildMatches = append(append([]MatchResult(nil), r.ChildMatches...), other.ChildMatches...)
	}
	return out
}

// Wrap tags r under kind. If r is not yet wrapped, the tag is applied in
// place; if it already carries a wrap, a fresh result is built with r as
// its sole child, preserving the inner wrap (spec.md §4.F).
func (r MatchResult) Wrap(kind syntax.Kind) MatchResult {
	k := kind
	if r.Matched == nil {
		r.Matched = &k
		return r
	}
	return MatchResult{Start: r.Start, End: r.End, Matched: &k, ChildMatches: []MatchResult{r}}
}

// IsBetterThan implements the ordering from spec.md §3: greater End wins;
// ties break in favor of having a wrap.
func (r MatchResult) IsBetterThan(other MatchResult) bool {
	if r.End != other.End {
		return r.End > other.End
	}
	if (r.Matched != nil) != (other.Matched != nil) {
		return r.Matched != nil
	}
	return false
}
