// Package segment implements the immutable parse-tree node (spec.md §3, §4.A).
//
// A Segment is either a leaf (raw text from the lexer, or a zero-width meta)
// or a node (an ordered list of children with no raw of its own). Segments
// are never mutated after construction and are safely shared across parses,
// matching the teacher's preference for small immutable value types over the
// original Pratt parser's pointer-heavy, mutable spi.Node.
package segment

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapsql/pkg/syntax"
)

// InvalidPositionError is returned when constructing a node whose children's
// spans are not monotonically increasing (spec.md §4.A failure semantics).
type InvalidPositionError struct {
	Kind   syntax.Kind
	Detail string
}

func (e *InvalidPositionError) Error() string {
	return fmt.Sprintf("invalid position building %s segment: %s", e.Kind, e.Detail)
}

// Segment is an immutable node in the lexed/parsed tree.
type Segment struct {
	kind     syntax.Kind
	raw      string // only meaningful for leaves
	pos      Position
	children []*Segment
}

// NewLeaf builds a leaf segment carrying literal source text.
func NewLeaf(kind syntax.Kind, raw string, pos Position) *Segment {
	return &Segment{kind: kind, raw: raw, pos: pos}
}

// NewMeta builds a zero-width synthetic segment (indent, dedent, implicit
// indent, end of file). Its raw is always empty and its position zero-width.
func NewMeta(kind syntax.Kind, at Position) *Segment {
	at.SourceEnd = at.SourceStart
	at.TemplatedEnd = at.TemplatedStart
	return &Segment{kind: kind, pos: at}
}

// NewNode builds a non-leaf segment from an ordered list of children. The
// node's position is derived from its children; construction fails with
// InvalidPositionError if the children's spans are not monotonic in DFS
// order (spec.md §4.A, §8 property 2), mirroring go idioms of returning
// errors rather than panicking on malformed input.
func NewNode(kind syntax.Kind, children []*Segment) (*Segment, error) {
	if len(children) == 0 {
		return &Segment{kind: kind, children: children}, nil
	}

	pos := children[0].pos
	prevEnd := children[0].pos.SourceEnd
	prevTemplatedEnd := children[0].pos.TemplatedEnd
	for _, c := range children[1:] {
		if c.pos.SourceStart < prevEnd {
			return nil, &InvalidPositionError{Kind: kind, Detail: "child source span precedes previous child"}
		}
		if c.pos.TemplatedStart < prevTemplatedEnd {
			return nil, &InvalidPositionError{Kind: kind, Detail: "child templated span precedes previous child"}
		}
		pos = spanning(pos, c.pos)
		prevEnd = c.pos.SourceEnd
		prevTemplatedEnd = c.pos.TemplatedEnd
	}

	return &Segment{kind: kind, pos: pos, children: children}, nil
}

// Kind returns the segment's syntax kind. Immutable once constructed
// (spec.md §3 invariant iii).
func (s *Segment) Kind() syntax.Kind { return s.kind }

// Raw returns the segment's literal text: for a leaf, the stored raw; for a
// node, the concatenation of its descendants' raws (meta segments contribute
// nothing, per spec.md §3 invariant i).
func (s *Segment) Raw() string {
	if s == nil {
		return ""
	}
	if len(s.children) == 0 {
		return s.raw
	}
	var b strings.Builder
	for _, c := range s.children {
		b.WriteString(c.Raw())
	}
	return b.String()
}

// Position returns the segment's source-location marker.
func (s *Segment) Position() Position { return s.pos }

// Children returns the segment's ordered children (empty for leaves).
func (s *Segment) Children() []*Segment { return s.children }

// IsLeaf reports whether the segment has no children.
func (s *Segment) IsLeaf() bool { return len(s.children) == 0 }

// IsMeta reports whether this is a zero-width synthetic segment.
func (s *Segment) IsMeta() bool { return s.kind.IsMeta() }

// IsCode reports whether the segment contributes to the code stream the
// match engine walks (everything except whitespace, comments, metas).
func (s *Segment) IsCode() bool {
	switch s.kind {
	case syntax.Whitespace, syntax.Newline, syntax.Comment, syntax.Indent, syntax.Dedent, syntax.ImplicitIndent, syntax.EndOfFile:
		return false
	default:
		return true
	}
}

// ClassTypes returns the transitive is-a set for this segment's kind.
func (s *Segment) ClassTypes() map[syntax.Kind]struct{} {
	return syntax.ClassTypes(s.kind)
}

// IsType reports whether the segment is, or is-a, kind k.
func (s *Segment) IsType(k syntax.Kind) bool {
	_, ok := s.ClassTypes()[k]
	return ok
}

// RecursiveCrawlOptions configures RecursiveCrawl.
type RecursiveCrawlOptions struct {
	Include       map[syntax.Kind]struct{} // kinds to yield; nil means "any"
	StopOn        map[syntax.Kind]struct{} // never recurse past a segment of one of these kinds
	AllowSelf     bool                     // consider the root segment itself a candidate
	NoRecurseInto bool                     // yield a match but do not descend into it
}

// RecursiveCrawl yields descendants (optionally including the receiver)
// whose kind is in opts.Include, never descending into a segment whose kind
// is in opts.StopOn, and — with NoRecurseInto — not descending into yielded
// matches either, so nested occurrences report only their outermost node
// (spec.md §4.A).
func (s *Segment) RecursiveCrawl(opts RecursiveCrawlOptions) []*Segment {
	var out []*Segment
	var walk func(*Segment, bool)
	walk = func(cur *Segment, isSelf bool) {
		matches := !isSelf || opts.AllowSelf
		if matches && opts.Include != nil {
			if _, ok := opts.Include[cur.kind]; !ok {
				matches = false
			}
		}
		if matches {
			out = append(out, cur)
			if opts.NoRecurseInto {
				return
			}
		}
		if _, stop := opts.StopOn[cur.kind]; stop && !isSelf {
			return
		}
		for _, c := range cur.children {
			walk(c, false)
		}
	}
	walk(s, true)
	return out
}
