package match

import (
	"sort"

	"github.com/leapstack-labs/leapsql/pkg/segment"
)

// realize turns a MatchResult into the concrete segment.Segment(s) it
// contributes to its parent. An unwrapped result (Matched == nil) may
// expand to more than one sibling segment; a wrapped result always
// collapses to exactly one (spec.md §4.F): either a retagged leaf (the
// "newtype" flavor of Wrap, when the match covers a single raw leaf
// straight from the input) or a new node built from its realized children.
func realize(ctx *ParseContext, r MatchResult) []*segment.Segment {
	children := realizeChildren(ctx, r)
	if r.Matched == nil {
		return children
	}
	if len(r.ChildMatches) == 0 && len(r.InsertSegments) == 0 && len(children) == 1 && children[0].IsLeaf() {
		leaf := children[0]
		return []*segment.Segment{segment.NewLeaf(*r.Matched, leaf.Raw(), leaf.Position())}
	}
	node, err := segment.NewNode(*r.Matched, children)
	if err != nil {
		// Spans within one MatchResult are built monotonically by Append,
		// so this signals an engine bug rather than recoverable input.
		return children
	}
	return []*segment.Segment{node}
}

type realizeItem struct {
	pos    int
	isMeta bool
	segs   []*segment.Segment
}

// realizeChildren expands r's span into ordered segments: explicit child
// matches realize recursively, and any stretch of the span no child claims
// (gaps a Sequence skipped over, directly-matched brackets and keywords
// whose results were merged rather than nested) is filled verbatim from the
// input slice, so the output tree reproduces the input byte-for-byte
// (spec.md §8 property 1).
func realizeChildren(ctx *ParseContext, r MatchResult) []*segment.Segment {
	if len(r.ChildMatches) == 0 && len(r.InsertSegments) == 0 {
		if r.Start >= r.End {
			return nil
		}
		return append([]*segment.Segment(nil), ctx.Segments[r.Start:r.End]...)
	}

	var items []realizeItem
	pos := r.Start
	for _, cm := range r.ChildMatches {
		for ; pos < cm.Start && pos < r.End; pos++ {
			items = append(items, realizeItem{pos: pos, segs: []*segment.Segment{ctx.Segments[pos]}})
		}
		items = append(items, realizeItem{pos: cm.Start, segs: realize(ctx, cm)})
		if cm.End > pos {
			pos = cm.End
		}
	}
	for ; pos < r.End; pos++ {
		items = append(items, realizeItem{pos: pos, segs: []*segment.Segment{ctx.Segments[pos]}})
	}
	for _, ins := range r.InsertSegments {
		items = append(items, realizeItem{
			pos: ins.Idx, isMeta: true,
			segs: []*segment.Segment{segment.NewMeta(ins.Kind, positionAt(ctx, ins.Idx))},
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].pos != items[j].pos {
			return items[i].pos < items[j].pos
		}
		return items[i].isMeta && !items[j].isMeta
	})

	var out []*segment.Segment
	for _, it := range items {
		out = append(out, it.segs...)
	}
	return out
}

func positionAt(ctx *ParseContext, idx int) segment.Position {
	if idx < len(ctx.Segments) {
		return ctx.Segments[idx].Position()
	}
	if len(ctx.Segments) > 0 {
		return ctx.Segments[len(ctx.Segments)-1].Position()
	}
	return segment.Position{}
}
