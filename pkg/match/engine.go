package match

import (
	"strings"

	"github.com/leapstack-labs/leapsql/pkg/compiled"
	"github.com/leapstack-labs/leapsql/pkg/dialect"
	"github.com/leapstack-labs/leapsql/pkg/grammar"
	"github.com/leapstack-labs/leapsql/pkg/syntax"
)

// Dialect is consulted only for bracket pair resolution (start/end ref
// names, persists flag) — everything else the engine needs already lives
// in the compiled.Graph. Set it before calling matchNodeCached on any
// grammar containing a Bracketed matcher.
func (ctx *ParseContext) SetDialect(d *dialect.Dialect) { ctx.Dialect = d }

func nextCodeIdx(ctx *ParseContext, idx, upperBound int) int {
	pos := idx
	for pos < upperBound && pos < len(ctx.Segments) && !ctx.Segments[pos].IsCode() {
		pos++
	}
	return pos
}

func isOptional(g *compiled.Graph, id compiled.NodeId) bool {
	switch g.Nodes[id].Kind {
	case compiled.KindRef:
		return g.Payloads[id].(compiled.RefPayload).Optional
	case compiled.KindSequence:
		return g.Payloads[id].(compiled.SequencePayload).Optional
	case compiled.KindAnyNumberOf:
		// A repeat that tolerates zero matches is skippable by definition:
		// failing to match anything and matching zero-width are the same.
		p := g.Payloads[id].(compiled.AnyNumberOfPayload)
		return p.Optional || p.Min == 0
	case compiled.KindDelimited:
		return g.Payloads[id].(compiled.DelimitedPayload).Optional
	case compiled.KindStringParser:
		return g.Payloads[id].(compiled.StringParserPayload).Optional
	case compiled.KindMultiStringParser:
		return g.Payloads[id].(compiled.MultiStringParserPayload).Optional
	case compiled.KindRegexParser:
		return g.Payloads[id].(compiled.RegexParserPayload).Optional
	case compiled.KindTypedParser:
		return g.Payloads[id].(compiled.TypedParserPayload).Optional
	case compiled.KindNothing:
		return true
	default:
		return false
	}
}

// matchNodeCached is the single recursive entry point every variant
// matcher calls into, honoring the per-parse cache (spec.md §4.E,
// "Caching").
func (ctx *ParseContext) matchNodeCached(id compiled.NodeId, idx, upperBound int) MatchResult {
	if id == compiled.NoNode {
		return EmptyAt(idx)
	}
	if cached, ok := ctx.cacheGet(idx, upperBound, id); ok {
		return cached
	}
	r := ctx.matchNodeUncached(id, idx, upperBound)
	ctx.cachePut(idx, upperBound, id, r)
	return r
}

func (ctx *ParseContext) matchNodeUncached(id compiled.NodeId, idx, upperBound int) MatchResult {
	switch ctx.Graph.Nodes[id].Kind {
	case compiled.KindNothing:
		return EmptyAt(idx)
	case compiled.KindCode:
		return matchCode(ctx, idx, upperBound)
	case compiled.KindNonCode:
		return matchNonCode(ctx, idx, upperBound)
	case compiled.KindStringParser:
		return matchStringParser(ctx, ctx.Graph.Payloads[id].(compiled.StringParserPayload), idx, upperBound)
	case compiled.KindMultiStringParser:
		return matchMultiStringParser(ctx, ctx.Graph.Payloads[id].(compiled.MultiStringParserPayload), idx, upperBound)
	case compiled.KindRegexParser:
		return matchRegexParser(ctx, ctx.Graph.Payloads[id].(compiled.RegexParserPayload), idx, upperBound)
	case compiled.KindTypedParser:
		return matchTypedParser(ctx, ctx.Graph.Payloads[id].(compiled.TypedParserPayload), idx, upperBound)
	case compiled.KindNodeMatcher:
		return ctx.matchNodeMatcher(ctx.Graph.Payloads[id].(compiled.NodeMatcherPayload), idx, upperBound)
	case compiled.KindRef:
		return ctx.matchRef(ctx.Graph.Payloads[id].(compiled.RefPayload), idx, upperBound)
	case compiled.KindSequence:
		return ctx.matchSequence(ctx.Graph.Payloads[id].(compiled.SequencePayload), idx, upperBound)
	case compiled.KindAnyNumberOf:
		return ctx.matchAnyNumberOf(ctx.Graph.Payloads[id].(compiled.AnyNumberOfPayload), idx, upperBound)
	case compiled.KindDelimited:
		return ctx.matchDelimited(ctx.Graph.Payloads[id].(compiled.DelimitedPayload), idx, upperBound)
	case compiled.KindBracketed:
		return ctx.matchBracketed(ctx.Graph.Payloads[id].(compiled.BracketedPayload), idx, upperBound)
	case compiled.KindAnything:
		p := ctx.Graph.Payloads[id].(compiled.AnythingPayload)
		terms := ctx.effectiveTerminators(ctx.Graph.KidsSlice(p.Terminators))
		end := ctx.greedyMatchEnd(idx, upperBound, terms)
		return FromSpan(idx, end)
	case compiled.KindMeta:
		p := ctx.Graph.Payloads[id].(compiled.MetaPayload)
		r := EmptyAt(idx)
		r.InsertSegments = []InsertSegment{{Idx: idx, Kind: syntax.Kind(p.Kind)}}
		return r
	case compiled.KindConditional:
		p := ctx.Graph.Payloads[id].(compiled.ConditionalPayload)
		r := EmptyAt(idx)
		if ctx.Indentation.Satisfies(p.Requirements) {
			r.InsertSegments = []InsertSegment{{Idx: idx, Kind: syntax.Kind(p.MetaKind)}}
		}
		return r
	case compiled.KindBracketedSegmentMatcher:
		if idx < upperBound && idx < len(ctx.Segments) && ctx.Segments[idx].Kind() == syntax.Bracketed {
			return FromSpan(idx, idx+1)
		}
		return EmptyAt(idx)
	case compiled.KindLookaheadExclude:
		return matchLookaheadExclude(ctx, ctx.Graph.Payloads[id].(compiled.LookaheadExcludePayload), idx, upperBound)
	default:
		return EmptyAt(idx)
	}
}

func matchCode(ctx *ParseContext, idx, upperBound int) MatchResult {
	if idx < upperBound && idx < len(ctx.Segments) && ctx.Segments[idx].IsCode() {
		return FromSpan(idx, idx+1)
	}
	return EmptyAt(idx)
}

func matchNonCode(ctx *ParseContext, idx, upperBound int) MatchResult {
	pos := idx
	for pos < upperBound && pos < len(ctx.Segments) && !ctx.Segments[pos].IsCode() {
		pos++
	}
	return FromSpan(idx, pos)
}

func matchStringParser(ctx *ParseContext, p compiled.StringParserPayload, idx, upperBound int) MatchResult {
	if idx >= upperBound || idx >= len(ctx.Segments) || !ctx.Segments[idx].IsCode() {
		return EmptyAt(idx)
	}
	if strings.ToUpper(ctx.Segments[idx].Raw()) != ctx.Graph.Strings.Value(p.Template) {
		return EmptyAt(idx)
	}
	return FromSpan(idx, idx+1).Wrap(syntax.Kind(p.Kind))
}

func matchMultiStringParser(ctx *ParseContext, p compiled.MultiStringParserPayload, idx, upperBound int) MatchResult {
	if idx >= upperBound || idx >= len(ctx.Segments) || !ctx.Segments[idx].IsCode() {
		return EmptyAt(idx)
	}
	raw := strings.ToUpper(ctx.Segments[idx].Raw())
	for _, t := range p.Templates {
		if ctx.Graph.Strings.Value(t) == raw {
			return FromSpan(idx, idx+1).Wrap(syntax.Kind(p.Kind))
		}
	}
	return EmptyAt(idx)
}

func matchRegexParser(ctx *ParseContext, p compiled.RegexParserPayload, idx, upperBound int) MatchResult {
	if idx >= upperBound || idx >= len(ctx.Segments) || !ctx.Segments[idx].IsCode() {
		return EmptyAt(idx)
	}
	pattern := ctx.Graph.Regexes.Value(p.Pattern)
	if pattern == nil {
		return EmptyAt(idx)
	}
	raw := strings.ToUpper(ctx.Segments[idx].Raw())
	loc := pattern.FindStringIndex(raw)
	if loc == nil || loc[0] != 0 || loc[1] != len(raw) {
		return EmptyAt(idx)
	}
	if anti := ctx.Graph.Regexes.Value(p.AntiPattern); anti != nil && anti.MatchString(raw) {
		return EmptyAt(idx)
	}
	return FromSpan(idx, idx+1).Wrap(syntax.Kind(p.Kind))
}

func matchTypedParser(ctx *ParseContext, p compiled.TypedParserPayload, idx, upperBound int) MatchResult {
	if idx >= upperBound || idx >= len(ctx.Segments) {
		return EmptyAt(idx)
	}
	if ctx.Segments[idx].Kind() != syntax.Kind(p.TemplateKind) {
		return EmptyAt(idx)
	}
	return FromSpan(idx, idx+1).Wrap(syntax.Kind(p.OutKind))
}

func matchLookaheadExclude(ctx *ParseContext, p compiled.LookaheadExcludePayload, idx, upperBound int) MatchResult {
	if idx >= upperBound || idx >= len(ctx.Segments) || !ctx.Segments[idx].IsCode() {
		return EmptyAt(idx)
	}
	if strings.ToUpper(ctx.Segments[idx].Raw()) != ctx.Graph.Strings.Value(p.FirstRaw) {
		return EmptyAt(idx)
	}
	next := nextCodeIdx(ctx, idx+1, upperBound)
	if next < upperBound && next < len(ctx.Segments) {
		if strings.ToUpper(ctx.Segments[next].Raw()) == ctx.Graph.Strings.Value(p.LookaheadRaw) {
			return EmptyAt(idx)
		}
	}
	return FromSpan(idx, idx+1)
}

func (ctx *ParseContext) matchNodeMatcher(p compiled.NodeMatcherPayload, idx, upperBound int) MatchResult {
	if idx < upperBound && idx < len(ctx.Segments) && ctx.Segments[idx].Kind() == syntax.Kind(p.Kind) {
		return FromSpan(idx, idx+1)
	}
	inner := ctx.matchNodeCached(p.Child, idx, upperBound)
	if !inner.HasMatch() {
		return EmptyAt(idx)
	}
	return inner.Wrap(syntax.Kind(p.Kind))
}

func (ctx *ParseContext) matchRef(p compiled.RefPayload, idx, upperBound int) MatchResult {
	terms := ctx.Graph.KidsSlice(p.Terminators)
	if p.Exclude != compiled.NoNode {
		excl := ctx.deeperMatch(false, terms, func() MatchResult {
			return ctx.matchNodeCached(p.Exclude, idx, upperBound)
		})
		if excl.HasMatch() {
			return EmptyAt(idx)
		}
	}
	return ctx.deeperMatch(p.ResetTerminators, terms, func() MatchResult {
		return ctx.matchNodeCached(p.Resolved, idx, upperBound)
	})
}

// longestMatch picks the best-matching admissible candidate (spec.md §4.E,
// "Longest-match algorithm"), returning the candidate's own NodeId so
// AnyNumberOf can track per-element repeat counts.
func (ctx *ParseContext) longestMatch(candidates []compiled.NodeId, idx, upperBound int) (MatchResult, compiled.NodeId, bool) {
	firstRaw, firstKinds := ctx.firstToken(idx, upperBound)
	var best MatchResult
	bestID := compiled.NoNode
	found := false
	for _, c := range candidates {
		if !ctx.simple(c).admits(firstRaw, firstKinds) {
			continue
		}
		m := ctx.matchNodeCached(c, idx, upperBound)
		if !m.HasMatch() {
			continue
		}
		if !found || m.IsBetterThan(best) {
			best, bestID, found = m, c, true
		}
		if m.End == upperBound {
			break
		}
	}
	return best, bestID, found
}

func (ctx *ParseContext) firstToken(idx, upperBound int) (string, map[syntax.Kind]struct{}) {
	pos := nextCodeIdx(ctx, idx, upperBound)
	if pos >= upperBound || pos >= len(ctx.Segments) {
		return "", nil
	}
	seg := ctx.Segments[pos]
	return strings.ToUpper(seg.Raw()), seg.ClassTypes()
}

// simple computes (and memoizes) the admissible-first-token prefix set for
// id, guarded against cycles through Ref by a visited-node crumb trail
// (spec.md §4.E).
func (ctx *ParseContext) simple(id compiled.NodeId) *simpleSet {
	if id == compiled.NoNode {
		return nil
	}
	if s, ok := ctx.simpleCache[id]; ok {
		return s
	}
	if ctx.simpleSeen == nil {
		ctx.simpleSeen = make(map[compiled.NodeId]struct{})
	}
	if _, cyclic := ctx.simpleSeen[id]; cyclic {
		return nil
	}
	ctx.simpleSeen[id] = struct{}{}
	defer delete(ctx.simpleSeen, id)

	var result *simpleSet
	switch ctx.Graph.Nodes[id].Kind {
	case compiled.KindStringParser:
		p := ctx.Graph.Payloads[id].(compiled.StringParserPayload)
		result = &simpleSet{raws: map[string]struct{}{ctx.Graph.Strings.Value(p.Template): {}}}
	case compiled.KindMultiStringParser:
		p := ctx.Graph.Payloads[id].(compiled.MultiStringParserPayload)
		raws := make(map[string]struct{}, len(p.Templates))
		for _, t := range p.Templates {
			raws[ctx.Graph.Strings.Value(t)] = struct{}{}
		}
		result = &simpleSet{raws: raws}
	case compiled.KindTypedParser:
		p := ctx.Graph.Payloads[id].(compiled.TypedParserPayload)
		result = &simpleSet{kinds: map[syntax.Kind]struct{}{syntax.Kind(p.TemplateKind): {}}}
	case compiled.KindNodeMatcher:
		p := ctx.Graph.Payloads[id].(compiled.NodeMatcherPayload)
		inner := ctx.simple(p.Child)
		if inner != nil {
			kinds := map[syntax.Kind]struct{}{syntax.Kind(p.Kind): {}}
			for k := range inner.kinds {
				kinds[k] = struct{}{}
			}
			result = &simpleSet{raws: inner.raws, kinds: kinds}
		}
	case compiled.KindRef:
		p := ctx.Graph.Payloads[id].(compiled.RefPayload)
		result = ctx.simple(p.Resolved)
	case compiled.KindSequence:
		// The usable prefix is the union over every leading optional child
		// plus the first non-optional one; if any of those children is
		// unpredictable, or every child is optional (the sequence may match
		// empty), no prefix can be claimed.
		p := ctx.Graph.Payloads[id].(compiled.SequencePayload)
		merged := &simpleSet{raws: map[string]struct{}{}, kinds: map[syntax.Kind]struct{}{}}
		complete := false
		for _, k := range ctx.Graph.KidsSlice(p.Elements) {
			kind := ctx.Graph.Nodes[k].Kind
			if kind == compiled.KindMeta || kind == compiled.KindConditional {
				continue
			}
			s := ctx.simple(k)
			if s == nil {
				merged = nil
				complete = true
				break
			}
			for r := range s.raws {
				merged.raws[r] = struct{}{}
			}
			for kk := range s.kinds {
				merged.kinds[kk] = struct{}{}
			}
			if !isOptional(ctx.Graph, k) {
				complete = true
				break
			}
		}
		if complete {
			result = merged
		}
	case compiled.KindAnyNumberOf:
		p := ctx.Graph.Payloads[id].(compiled.AnyNumberOfPayload)
		merged := &simpleSet{raws: map[string]struct{}{}, kinds: map[syntax.Kind]struct{}{}}
		ok := len(ctx.Graph.KidsSlice(p.Elements)) > 0
		for _, k := range ctx.Graph.KidsSlice(p.Elements) {
			s := ctx.simple(k)
			if s == nil {
				ok = false
				break
			}
			for r := range s.raws {
				merged.raws[r] = struct{}{}
			}
			for kk := range s.kinds {
				merged.kinds[kk] = struct{}{}
			}
		}
		if ok {
			result = merged
		}
	default:
		result = nil
	}

	ctx.simpleCache[id] = result
	return result
}

func (ctx *ParseContext) skipBracketAt(pos, upperBound int) int {
	startKind := ctx.Segments[pos].Kind()
	endKind := matchingEndKind(startKind)
	depth := 1
	p := pos + 1
	for p < upperBound && p < len(ctx.Segments) {
		k := ctx.Segments[p].Kind()
		switch k {
		case startKind:
			depth++
		case endKind:
			depth--
			if depth == 0 {
				return p + 1
			}
		}
		p++
	}
	return upperBound
}

func matchingEndKind(k syntax.Kind) syntax.Kind {
	switch k {
	case syntax.StartBracket:
		return syntax.EndBracket
	case syntax.StartSquareBracket:
		return syntax.EndSquareBracket
	default:
		return syntax.Unknown
	}
}

// greedyMatchEnd scans forward for the nearest terminator outside brackets,
// backing up past trailing non-code (spec.md §4.E, "Greedy match"). Used by
// Anything and by Sequence's Greedy/GreedyOnceStarted upper-bound trimming.
func (ctx *ParseContext) greedyMatchEnd(idx, upperBound int, terminators []compiled.NodeId) int {
	if len(terminators) == 0 {
		return upperBound
	}
	pos := idx
	for pos < upperBound {
		if pos >= len(ctx.Segments) {
			break
		}
		if !ctx.Segments[pos].IsCode() {
			pos++
			continue
		}
		if _, _, ok := ctx.longestMatch(terminators, pos, upperBound); ok {
			end := pos
			for end > idx && end-1 < len(ctx.Segments) && !ctx.Segments[end-1].IsCode() {
				end--
			}
			return end
		}
		switch ctx.Segments[pos].Kind() {
		case syntax.StartBracket, syntax.StartSquareBracket:
			pos = ctx.skipBracketAt(pos, upperBound)
		default:
			pos++
		}
	}
	return upperBound
}

func (ctx *ParseContext) matchSequence(p compiled.SequencePayload, idx, upperBound int) MatchResult {
	elements := ctx.Graph.KidsSlice(p.Elements)
	terms := ctx.effectiveTerminators(ctx.Graph.KidsSlice(p.Terminators))
	mode := grammar.ParseMode(p.ParseMode)

	effectiveUpper := upperBound
	if mode == grammar.ParseModeGreedy {
		effectiveUpper = ctx.greedyMatchEnd(idx, upperBound, terms)
	}

	result := EmptyAt(idx)
	matchedIdx := idx
	started := false
	var metaBuf []InsertSegment

	for _, elemID := range elements {
		kind := ctx.Graph.Nodes[elemID].Kind
		if kind == compiled.KindMeta {
			mp := ctx.Graph.Payloads[elemID].(compiled.MetaPayload)
			metaBuf = append(metaBuf, InsertSegment{Idx: matchedIdx, Kind: syntax.Kind(mp.Kind)})
			continue
		}
		if kind == compiled.KindConditional {
			cp := ctx.Graph.Payloads[elemID].(compiled.ConditionalPayload)
			if ctx.Indentation.Satisfies(cp.Requirements) {
				metaBuf = append(metaBuf, InsertSegment{Idx: matchedIdx, Kind: syntax.Kind(cp.MetaKind)})
			}
			continue
		}

		pos := matchedIdx
		if p.AllowGaps {
			gapEnd := nextCodeIdx(ctx, pos, effectiveUpper)
			if gapEnd > pos {
				result = result.Append(FromSpan(pos, gapEnd))
				pos = gapEnd
				matchedIdx = pos
			}
		}

		optional := isOptional(ctx.Graph, elemID)

		if pos >= effectiveUpper {
			if optional {
				continue
			}
			if mode == grammar.ParseModeGreedyOnceStarted && !started {
				return EmptyAt(idx)
			}
			if mode == grammar.ParseModeStrict {
				return EmptyAt(idx)
			}
			break
		}

		m := ctx.matchNodeCached(elemID, pos, effectiveUpper)
		if !m.HasMatch() {
			if optional {
				continue
			}
			switch mode {
			case grammar.ParseModeStrict:
				return EmptyAt(idx)
			case grammar.ParseModeGreedyOnceStarted:
				if !started {
					return EmptyAt(idx)
				}
			}
			continue
		}

		if len(metaBuf) > 0 {
			// Buffered metas sit at the pre-gap index unless every one of
			// them is indent-positive, in which case they attach just before
			// the content they indent (spec.md §4.E Sequence step e).
			allIndent := true
			for _, ins := range metaBuf {
				if ins.Kind != syntax.Indent && ins.Kind != syntax.ImplicitIndent {
					allIndent = false
					break
				}
			}
			flushed := append([]InsertSegment(nil), metaBuf...)
			if allIndent {
				for i := range flushed {
					flushed[i].Idx = pos
				}
			}
			m.InsertSegments = append(flushed, m.InsertSegments...)
			metaBuf = nil
		}
		result = result.Append(m)
		matchedIdx = m.End
		if mode == grammar.ParseModeGreedyOnceStarted && !started {
			effectiveUpper = ctx.greedyMatchEnd(matchedIdx, upperBound, terms)
		}
		started = true
	}

	if len(metaBuf) > 0 {
		result.InsertSegments = append(result.InsertSegments, metaBuf...)
	}

	if (mode == grammar.ParseModeGreedy || (mode == grammar.ParseModeGreedyOnceStarted && started)) && effectiveUpper > matchedIdx {
		rec := MatchResult{Start: matchedIdx, End: effectiveUpper}.Wrap(syntax.Unparsable)
		result = result.Append(rec)
		matchedIdx = effectiveUpper
	}

	if matchedIdx == idx && !result.HasMatch() {
		return EmptyAt(idx)
	}
	return result
}

func (ctx *ParseContext) matchAnyNumberOf(p compiled.AnyNumberOfPayload, idx, upperBound int) MatchResult {
	elements := ctx.Graph.KidsSlice(p.Elements)
	terms := ctx.effectiveTerminators(ctx.Graph.KidsSlice(p.Terminators))
	mode := grammar.ParseMode(p.ParseMode)

	effectiveUpper := upperBound
	if mode == grammar.ParseModeGreedy {
		effectiveUpper = ctx.greedyMatchEnd(idx, upperBound, terms)
	}

	return ctx.deeperMatch(p.ResetTerminators, ctx.Graph.KidsSlice(p.Terminators), func() MatchResult {
		pos := idx
		result := EmptyAt(idx)
		nMatches := 0
		perElem := make(map[compiled.NodeId]int)

		for p.Max < 0 || nMatches < p.Max {
			if p.Exclude != compiled.NoNode {
				if ctx.matchNodeCached(p.Exclude, pos, effectiveUpper).HasMatch() {
					break
				}
			}

			candidates := elements
			if p.MaxPerElement > 0 {
				filtered := make([]compiled.NodeId, 0, len(elements))
				for _, e := range elements {
					if perElem[e] < p.MaxPerElement {
						filtered = append(filtered, e)
					}
				}
				candidates = filtered
			}

			best, bestID, ok := ctx.longestMatch(candidates, pos, effectiveUpper)
			if !ok || !best.HasMatch() || best.End == pos {
				break
			}
			result = result.Append(best)
			perElem[bestID]++
			pos = best.End
			nMatches++
			if mode == grammar.ParseModeGreedyOnceStarted && nMatches == 1 {
				effectiveUpper = ctx.greedyMatchEnd(pos, upperBound, terms)
			}
		}

		if nMatches < p.Min {
			return EmptyAt(idx)
		}
		greedy := mode == grammar.ParseModeGreedy ||
			(mode == grammar.ParseModeGreedyOnceStarted && nMatches > 0)
		if greedy && effectiveUpper > pos {
			rec := FromSpan(pos, effectiveUpper).Wrap(syntax.Unparsable)
			result = result.Append(rec)
		}
		return result
	})
}

func (ctx *ParseContext) checkTerminators(pos, upperBound int, terms []compiled.NodeId) bool {
	if len(terms) == 0 {
		return false
	}
	_, _, ok := ctx.longestMatch(terms, pos, upperBound)
	return ok
}

func (ctx *ParseContext) matchDelimited(p compiled.DelimitedPayload, idx, upperBound int) MatchResult {
	elements := ctx.Graph.KidsSlice(p.Elements)
	terms := ctx.effectiveTerminators(ctx.Graph.KidsSlice(p.Terminators))
	result := EmptyAt(idx)
	pos := idx
	count := 0
	delimCount := 0

	// Checkpoint taken after every complete element, so a trailing delimiter
	// can be handed back when AllowTrailing is false.
	ckResult, ckDelims := result, 0
	expectElement := true

	for pos < upperBound {
		work := result
		wpos := pos
		gapEnd := nextCodeIdx(ctx, wpos, upperBound)
		if gapEnd > wpos {
			if !p.AllowGaps {
				break
			}
			work = work.Append(FromSpan(wpos, gapEnd))
			wpos = gapEnd
		}
		if wpos >= upperBound || ctx.checkTerminators(wpos, upperBound, terms) {
			break
		}

		if expectElement {
			m, _, ok := ctx.longestMatch(elements, wpos, upperBound)
			if !ok || !m.HasMatch() || m.End == wpos {
				break
			}
			result = work.Append(m)
			pos = m.End
			count++
			ckResult, ckDelims = result, delimCount
			expectElement = false
			continue
		}

		dm := ctx.matchNodeCached(p.Delimiter, wpos, upperBound)
		if !dm.HasMatch() {
			if p.OptionalDelimiter {
				expectElement = true
				continue
			}
			break
		}
		result = work.Append(dm)
		pos = dm.End
		delimCount++
		expectElement = true
	}

	if expectElement && delimCount > 0 && !p.AllowTrailing {
		// The loop stopped right after a delimiter; without AllowTrailing
		// that delimiter belongs to whoever matches next, not to us.
		result, delimCount = ckResult, ckDelims
	}

	if count == 0 || delimCount < p.MinDelimiters {
		return EmptyAt(idx)
	}
	return result
}

// bracketNodes is one bracket pair from the dialect's set, resolved down to
// its compiled start/end matcher nodes.
type bracketNodes struct {
	bracketType string
	start, end  compiled.NodeId
	persists    bool
}

// bracketPairNodes resolves every pair in the named bracket set to compiled
// nodes, skipping pairs whose start/end grammars the dialect never defined.
func (ctx *ParseContext) bracketPairNodes(setLabel string) []bracketNodes {
	if ctx.Dialect == nil {
		return nil
	}
	var out []bracketNodes
	for _, bp := range ctx.Dialect.BracketSets(setLabel) {
		startSym, ok := ctx.Graph.Symbols.Lookup(bp.StartRefName)
		if !ok {
			continue
		}
		endSym, ok := ctx.Graph.Symbols.Lookup(bp.EndRefName)
		if !ok {
			continue
		}
		start := ctx.Graph.Definition(startSym)
		end := ctx.Graph.Definition(endSym)
		if start == compiled.NoNode || end == compiled.NoNode {
			continue
		}
		out = append(out, bracketNodes{bracketType: bp.BracketType, start: start, end: end, persists: bp.Persists})
	}
	return out
}

func (ctx *ParseContext) matchBracketed(p compiled.BracketedPayload, idx, upperBound int) MatchResult {
	pairs := ctx.bracketPairNodes(p.BracketPairsSet)
	open := -1
	for i, bp := range pairs {
		if bp.bracketType == p.BracketType {
			open = i
			break
		}
	}
	if open < 0 {
		return EmptyAt(idx)
	}

	startMatch := ctx.matchNodeCached(pairs[open].start, idx, upperBound)
	if !startMatch.HasMatch() {
		return EmptyAt(idx)
	}

	closeStart, closeEnd, ok := ctx.resolveBracket(pairs, open, startMatch.End, upperBound)
	if !ok {
		ctx.latchBracketErr(idx, "Couldn't find closing bracket for opening bracket.")
		return EmptyAt(idx)
	}

	innerResult := ctx.deeperMatch(false, []compiled.NodeId{pairs[open].end}, func() MatchResult {
		return ctx.matchNodeCached(p.Inner, startMatch.End, closeStart)
	})

	if grammar.ParseMode(p.ParseMode) == grammar.ParseModeStrict && innerResult.End < closeStart {
		return EmptyAt(idx)
	}

	endMatch := ctx.matchNodeCached(pairs[open].end, closeStart, closeEnd)

	result := startMatch
	result.InsertSegments = append(result.InsertSegments, InsertSegment{Idx: startMatch.End, Kind: syntax.Indent})
	result = result.Append(innerResult)
	result.InsertSegments = append(result.InsertSegments, InsertSegment{Idx: closeStart, Kind: syntax.Dedent})
	result = result.Append(endMatch)

	if pairs[open].persists {
		result = result.Wrap(syntax.Bracketed)
	}
	return result
}

// resolveBracket scans forward from pos for the close bracket matching the
// pair opened as pairs[open], recursing through nested opens of any pair in
// the set. A close belonging to a different pair at this nesting depth is a
// structural imbalance the parser cannot skip past (spec.md §4.E, "Bracket
// resolver"; §7: bracket errors always surface).
func (ctx *ParseContext) resolveBracket(pairs []bracketNodes, open int, pos, upperBound int) (int, int, bool) {
	for pos < upperBound {
		if pos >= len(ctx.Segments) || !ctx.Segments[pos].IsCode() {
			pos++
			continue
		}
		if m := ctx.matchNodeCached(pairs[open].end, pos, upperBound); m.HasMatch() {
			return pos, m.End, true
		}
		nested := -1
		var nestedMatch MatchResult
		for j := range pairs {
			if m := ctx.matchNodeCached(pairs[j].start, pos, upperBound); m.HasMatch() {
				nested = j
				nestedMatch = m
				break
			}
		}
		if nested >= 0 {
			_, closeEnd, ok := ctx.resolveBracket(pairs, nested, nestedMatch.End, upperBound)
			if !ok {
				return 0, 0, false
			}
			pos = closeEnd
			continue
		}
		for j := range pairs {
			if j == open {
				continue
			}
			if m := ctx.matchNodeCached(pairs[j].end, pos, upperBound); m.HasMatch() {
				ctx.latchBracketErr(pos, "Found unexpected end bracket!")
				return 0, 0, false
			}
		}
		pos++
	}
	return 0, 0, false
}
