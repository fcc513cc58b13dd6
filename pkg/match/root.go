package match

import (
	"fmt"

	"github.com/leapstack-labs/leapsql/pkg/compiled"
	"github.com/leapstack-labs/leapsql/pkg/dialect"
	"github.com/leapstack-labs/leapsql/pkg/segment"
	"github.com/leapstack-labs/leapsql/pkg/syntax"
)

// MissingReferenceError is returned when the compiled grammar has no
// FileSegment entry to parse from.
type MissingReferenceError struct{ Name string }

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("match: missing reference %q", e.Name)
}

// RootParseFile is the match engine's entry point (spec.md §4.E): trim
// leading/trailing non-code, resolve the FileSegment root, run the match,
// and splice any unmatched tail in as an Unparsable recovery node before
// wrapping everything in a File node.
func RootParseFile(g *compiled.Graph, d *dialect.Dialect, segments []*segment.Segment, indent IndentationConfig) (*segment.Segment, error) {
	firstCode := 0
	for firstCode < len(segments) && !segments[firstCode].IsCode() {
		firstCode++
	}
	lastCode := len(segments) - 1
	for lastCode >= 0 && !segments[lastCode].IsCode() {
		lastCode--
	}

	if firstCode > lastCode {
		return segment.NewNode(syntax.File, segments)
	}

	sym, ok := g.Symbols.Lookup("FileSegment")
	if !ok {
		return nil, &MissingReferenceError{Name: "FileSegment"}
	}
	entry := g.Definition(sym)
	if entry == compiled.NoNode {
		return nil, &MissingReferenceError{Name: "FileSegment"}
	}
	if g.Nodes[entry].Kind == compiled.KindNodeMatcher {
		entry = g.Payloads[entry].(compiled.NodeMatcherPayload).Child
	}

	ctx := NewParseContext(g, segments, indent)
	ctx.Dialect = d

	upperBound := lastCode + 1
	result := ctx.matchNodeCached(entry, firstCode, upperBound)

	if ctx.bracketErr != nil {
		return nil, ctx.bracketErr
	}

	children := realize(ctx, result)

	consumedTo := result.End
	if !result.HasMatch() {
		consumedTo = firstCode
	}
	if consumedTo < upperBound {
		rec := MatchResult{Start: consumedTo, End: upperBound}.Wrap(syntax.Unparsable)
		children = append(children, realize(ctx, rec)...)
	}

	all := make([]*segment.Segment, 0, len(segments))
	all = append(all, segments[:firstCode]...)
	all = append(all, children...)
	all = append(all, segments[upperBound:]...)

	return segment.NewNode(syntax.File, all)
}
