package match

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/leapstack-labs/leapsql/pkg/segment"
)

// ParseError reports a structural failure severe enough that the parse
// must abort rather than fall back to an Unparsable recovery node
// (spec.md §7: "Bracket errors always surface"). Position is a segment
// index into the slice RootParseFile was called with; Segment is the
// offending segment itself when one was locatable (spec.md §6:
// "SQLParseError{description, segment?}"). ParseID correlates the error
// back to the ParseContext that raised it, so a host logging errors from
// several concurrent parses against one shared dialect can tell them
// apart (spec.md §5).
type ParseError struct {
	Message  string
	Position int
	Segment  *segment.Segment
	ParseID  uuid.UUID
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.ParseID, e.Message)
}

// latchBracketErr records the first bracket-imbalance error seen during a
// parse. Later calls are no-ops: the first failure is the one a caller
// wants to see, and nested brackets can otherwise overwrite it on unwind.
func (ctx *ParseContext) latchBracketErr(pos int, msg string) {
	if ctx.bracketErr != nil {
		return
	}
	var seg *segment.Segment
	if pos >= 0 && pos < len(ctx.Segments) {
		seg = ctx.Segments[pos]
	}
	ctx.bracketErr = &ParseError{Message: msg, Position: pos, Segment: seg, ParseID: ctx.ID}
}
