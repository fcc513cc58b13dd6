package match

import (
	"github.com/google/uuid"

	"github.com/leapstack-labs/leapsql/pkg/compiled"
	"github.com/leapstack-labs/leapsql/pkg/dialect"
	"github.com/leapstack-labs/leapsql/pkg/segment"
	"github.com/leapstack-labs/leapsql/pkg/syntax"
)

// IndentationConfig is the set of boolean feature flags Conditional
// consults (spec.md §3, §4.E). Unrecognized keys read as false.
type IndentationConfig map[string]bool

// Satisfies reports whether every requirement is set true.
func (c IndentationConfig) Satisfies(requirements []string) bool {
	for _, r := range requirements {
		if !c[r] {
			return false
		}
	}
	return true
}

type locKeyTuple struct {
	line, column int
	kind         syntax.Kind
	upperBound   int
}

type cacheKey struct {
	locKey    uint32
	matcherID compiled.NodeId
}

// simpleSet is the "admissible first token" prefix computed by simple()
// (spec.md §4.E, "Longest-match algorithm"): a matcher with a known simple
// set can only match if the current first token's raw or kind appears in
// it. A nil *simpleSet (as opposed to an empty, non-nil one) means "no
// known prefix" — always admissible.
type simpleSet struct {
	raws  map[string]struct{}
	kinds map[syntax.Kind]struct{}
}

func (s *simpleSet) admits(raw string, kinds map[syntax.Kind]struct{}) bool {
	if s == nil {
		return true
	}
	if _, ok := s.raws[raw]; ok {
		return true
	}
	for k := range kinds {
		if _, ok := s.kinds[k]; ok {
			return true
		}
	}
	return false
}

// ParseContext is the per-parse mutable state owned by the engine, never
// the grammar (spec.md §3 "Parse context", §5: never shared across
// goroutines).
type ParseContext struct {
	// ID uniquely identifies this parse, so a ParseError raised by one of
	// many concurrent parses against the same shared dialect can be
	// correlated back to its originating call in logs (spec.md §5:
	// "Multiple parses may run in parallel, each with its own context").
	ID          uuid.UUID
	Graph       *compiled.Graph
	Segments    []*segment.Segment
	Indentation IndentationConfig
	Dialect     *dialect.Dialect // consulted only for Bracketed's bracket-pair lookup

	terminators []compiled.NodeId // dynamic stack, innermost last

	parseCache  map[cacheKey]MatchResult
	locKeys     map[locKeyTuple]uint32
	nextLocKey  uint32
	simpleCache map[compiled.NodeId]*simpleSet
	simpleSeen  map[compiled.NodeId]struct{} // cycle guard for simple()

	// bracketErr latches the first bracket-imbalance error encountered
	// anywhere in the parse (spec.md §7: "Bracket errors always surface").
	// It is never cleared once set; RootParseFile checks it after the top
	// level match returns.
	bracketErr error
}

// effectiveTerminators merges a matcher's own explicit terminator list with
// the dynamic terminator stack contributed by enclosing grammars (spec.md
// §3 "Parse context", §4.E "Terminator stack discipline"). Enclosing
// terminators are tried after the matcher's own, matching push order.
func (ctx *ParseContext) effectiveTerminators(own []compiled.NodeId) []compiled.NodeId {
	if len(ctx.terminators) == 0 {
		return own
	}
	if len(own) == 0 {
		return ctx.terminators
	}
	out := make([]compiled.NodeId, 0, len(own)+len(ctx.terminators))
	out = append(out, own...)
	out = append(out, ctx.terminators...)
	return out
}

// NewParseContext builds a fresh context over segments for one parse.
func NewParseContext(g *compiled.Graph, segments []*segment.Segment, indent IndentationConfig) *ParseContext {
	if indent == nil {
		indent = IndentationConfig{}
	}
	return &ParseContext{
		ID:          uuid.New(),
		Graph:       g,
		Segments:    segments,
		Indentation: indent,
		parseCache:  make(map[cacheKey]MatchResult),
		locKeys:     make(map[locKeyTuple]uint32),
		simpleCache: make(map[compiled.NodeId]*simpleSet),
	}
}

func (ctx *ParseContext) locKeyFor(idx int, kind syntax.Kind, upperBound int) uint32 {
	line, col := 0, 0
	if idx < len(ctx.Segments) {
		p := ctx.Segments[idx].Position()
		line, col = p.Line, p.Column
	}
	t := locKeyTuple{line: line, column: col, kind: kind, upperBound: upperBound}
	if id, ok := ctx.locKeys[t]; ok {
		return id
	}
	id := ctx.nextLocKey
	ctx.nextLocKey++
	ctx.locKeys[t] = id
	return id
}

func (ctx *ParseContext) currentKind(idx int) syntax.Kind {
	if idx < len(ctx.Segments) {
		return ctx.Segments[idx].Kind()
	}
	return syntax.EndOfFile
}

func (ctx *ParseContext) cacheGet(idx int, upperBound int, matcher compiled.NodeId) (MatchResult, bool) {
	key := cacheKey{locKey: ctx.locKeyFor(idx, ctx.currentKind(idx), upperBound), matcherID: matcher}
	r, ok := ctx.parseCache[key]
	return r, ok
}

func (ctx *ParseContext) cachePut(idx int, upperBound int, matcher compiled.NodeId, r MatchResult) {
	key := cacheKey{locKey: ctx.locKeyFor(idx, ctx.currentKind(idx), upperBound), matcherID: matcher}
	ctx.parseCache[key] = r
}

// deeperMatch snapshots the terminator stack, optionally clears it, pushes
// push (deduped by structural equivalence group), runs f, then restores the
// stack exactly as it was (spec.md §4.E, "Terminator stack discipline").
func (ctx *ParseContext) deeperMatch(clear bool, push []compiled.NodeId, f func() MatchResult) MatchResult {
	saved := append([]compiled.NodeId(nil), ctx.terminators...)
	if clear {
		ctx.terminators = nil
	}
	for _, id := range push {
		if ctx.hasEqGroup(id) {
			continue
		}
		ctx.terminators = append(ctx.terminators, id)
	}
	result := f()
	ctx.terminators = saved
	return result
}

func (ctx *ParseContext) hasEqGroup(id compiled.NodeId) bool {
	group := ctx.Graph.EqGroups[id]
	for _, t := range ctx.terminators {
		if ctx.Graph.EqGroups[t] == group {
			return true
		}
	}
	return false
}
