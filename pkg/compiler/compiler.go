// Package compiler translates the rich, possibly-cyclic combinator graph in
// pkg/grammar into the flat IR in pkg/compiled (spec.md §4.C+4.D). It is a
// single-pass, pointer-identity-keyed translation: run once per dialect,
// never touched again once the resulting compiled.Graph is frozen.
package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapsql/pkg/compiled"
	"github.com/leapstack-labs/leapsql/pkg/dialect"
	"github.com/leapstack-labs/leapsql/pkg/grammar"
	"github.com/leapstack-labs/leapsql/pkg/syntax"
)

// SegmentGeneratorError is returned if a library entry has no matchable at
// compile time (spec.md §4.C). Compile only accepts an expanded dialect, and
// dialect.Expand forces every generator registered before it ran, so this
// only fires for a generator that returned nil or one registered while
// Expand was forcing generators.
type SegmentGeneratorError struct{ Name string }

func (e *SegmentGeneratorError) Error() string {
	return fmt.Sprintf("compiler: %q still has an unforced segment generator", e.Name)
}

// MissingReferenceError is returned when a Ref's target name is neither
// defined in the library nor resolvable as an implicit all-caps keyword.
type MissingReferenceError struct{ Name string }

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("compiler: unresolved reference %q", e.Name)
}

// UnsupportedError is returned for a grammar.Matchable variant the compiler
// does not know how to lower (should be unreachable for the variant set in
// pkg/grammar; kept so a future variant fails loudly instead of panicking).
type UnsupportedError struct{ Detail string }

func (e *UnsupportedError) Error() string { return "compiler: unsupported: " + e.Detail }

// compilerState carries the pointer-identity dedup table and structural
// equivalence-group assignment across one Compile call.
type compilerState struct {
	g             *compiled.Graph
	d             *dialect.Dialect
	seen          map[grammar.Matchable]compiled.NodeId
	eqGroupByKey  map[string]int32
	nextEqGroup   int32
	pendingRefs   []compiled.NodeId // nodes whose payload is RefPayload, awaiting resolution
}

// Compile lowers every named grammar rule in d's library into g, returning
// the frozen compiled.Graph. d must already be expanded.
func Compile(d *dialect.Dialect) (*compiled.Graph, error) {
	lib, err := d.Library()
	if err != nil {
		return nil, err
	}

	st := &compilerState{
		g:            compiled.NewGraph(),
		d:            d,
		seen:         make(map[grammar.Matchable]compiled.NodeId),
		eqGroupByKey: make(map[string]int32),
	}

	names := make([]string, 0, len(lib))
	for name := range lib {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic: no hashing-order dependence (spec.md §4.C)

	for _, name := range names {
		if lib[name] == nil {
			return nil, &SegmentGeneratorError{Name: name}
		}
		sym := st.g.Symbols.Intern(name)
		id, err := st.compile(lib[name])
		if err != nil {
			return nil, err
		}
		st.g.Define(sym, id)
	}

	if err := st.resolveRefs(); err != nil {
		return nil, err
	}

	st.normalize()

	st.g.BuiltinNonCode = st.g.AddNode(compiled.KindNonCode, compiled.NonCodePayload{})
	st.g.EqGroups[st.g.BuiltinNonCode] = st.groupFor("__builtin_non_code__")

	st.g.Freeze()
	return st.g, nil
}

func (st *compilerState) groupFor(key string) int32 {
	if id, ok := st.eqGroupByKey[key]; ok {
		return id
	}
	id := st.nextEqGroup
	st.nextEqGroup++
	st.eqGroupByKey[key] = id
	return id
}

// compile lowers m, memoizing by pointer identity (spec.md §4.C step 1).
func (st *compilerState) compile(m grammar.Matchable) (compiled.NodeId, error) {
	if id, ok := st.seen[m]; ok {
		return id, nil
	}

	var id compiled.NodeId
	var err error

	switch v := m.(type) {
	case *grammar.Ref:
		id, err = st.compileRef(v)
	case *grammar.Sequence:
		id, err = st.compileSequence(v)
	case *grammar.AnyNumberOf:
		id, err = st.compileAnyNumberOf(v)
	case *grammar.Delimited:
		id, err = st.compileDelimited(v)
	case *grammar.Bracketed:
		id, err = st.compileBracketed(v)
	case *grammar.StringParser:
		id = st.g.AddNode(compiled.KindStringParser, compiled.StringParserPayload{
			Template: st.g.Strings.Intern(v.Template), Kind: int32(v.Kind), Optional: v.Optional,
		})
	case *grammar.MultiStringParser:
		ids := make([]compiled.StringId, len(v.Templates))
		for i, t := range v.Templates {
			ids[i] = st.g.Strings.Intern(t)
		}
		id = st.g.AddNode(compiled.KindMultiStringParser, compiled.MultiStringParserPayload{
			Templates: ids, Kind: int32(v.Kind), Optional: v.Optional,
		})
	case *grammar.RegexParser:
		id = st.g.AddNode(compiled.KindRegexParser, compiled.RegexParserPayload{
			Pattern: st.g.Regexes.Intern(v.Pattern), AntiPattern: st.g.Regexes.Intern(v.AntiPattern),
			Kind: int32(v.Kind), Optional: v.Optional,
		})
	case *grammar.TypedParser:
		id = st.g.AddNode(compiled.KindTypedParser, compiled.TypedParserPayload{
			TemplateKind: int32(v.TemplateKind), OutKind: int32(v.OutKind), Optional: v.Optional,
		})
	case *grammar.Code:
		id = st.g.AddNode(compiled.KindCode, compiled.CodePayload{})
	case *grammar.NonCode:
		id = st.g.AddNode(compiled.KindNonCode, compiled.NonCodePayload{})
	case *grammar.Anything:
		id, err = st.compileAnything(v)
	case *grammar.Nothing:
		id = st.g.AddNode(compiled.KindNothing, compiled.NothingPayload{})
	case *grammar.NodeMatcher:
		id, err = st.compileNodeMatcher(v)
	case *grammar.Meta:
		id = st.g.AddNode(compiled.KindMeta, compiled.MetaPayload{Kind: int32(v.Kind)})
	case *grammar.Conditional:
		id = st.g.AddNode(compiled.KindConditional, compiled.ConditionalPayload{
			MetaKind: int32(v.MetaKind), Requirements: append([]string(nil), v.Requirements...),
		})
	case *grammar.BracketedSegmentMatcher:
		id = st.g.AddNode(compiled.KindBracketedSegmentMatcher, compiled.BracketedSegmentMatcherPayload{})
	case *grammar.LookaheadExclude:
		id = st.g.AddNode(compiled.KindLookaheadExclude, compiled.LookaheadExcludePayload{
			FirstRaw: st.g.Strings.Intern(v.FirstRaw), LookaheadRaw: st.g.Strings.Intern(v.LookaheadRaw),
		})
	default:
		return compiled.NoNode, &UnsupportedError{Detail: fmt.Sprintf("%T", m)}
	}
	if err != nil {
		return compiled.NoNode, err
	}

	st.seen[m] = id
	if int(id) < len(st.g.EqGroups) {
		st.g.EqGroups[id] = st.groupFor(structuralKey(m))
	}
	return id, nil
}

func (st *compilerState) compileRef(v *grammar.Ref) (compiled.NodeId, error) {
	sym := st.g.Symbols.Intern(v.Name)
	exclude := compiled.NoNode
	if v.Exclude != nil {
		var err error
		exclude, err = st.compile(v.Exclude)
		if err != nil {
			return compiled.NoNode, err
		}
	}
	terms, err := st.compileList(v.Terminators)
	if err != nil {
		return compiled.NoNode, err
	}
	id := st.g.AddNode(compiled.KindRef, compiled.RefPayload{
		Symbol: sym, Resolved: compiled.NoNode, Exclude: exclude,
		Terminators: terms, ResetTerminators: v.ResetTerminators, Optional: v.Optional,
	})
	st.pendingRefs = append(st.pendingRefs, id)
	return id, nil
}

func (st *compilerState) compileList(ms []grammar.Matchable) (compiled.NodeSlice, error) {
	ids := make([]compiled.NodeId, 0, len(ms))
	for _, m := range ms {
		id, err := st.compile(m)
		if err != nil {
			return compiled.NodeSlice{}, err
		}
		ids = append(ids, id)
	}
	return st.g.AppendKids(ids), nil
}

func (st *compilerState) compileSequence(v *grammar.Sequence) (compiled.NodeId, error) {
	elems, err := st.compileList(v.Elements)
	if err != nil {
		return compiled.NoNode, err
	}
	terms, err := st.compileList(v.Terminators)
	if err != nil {
		return compiled.NoNode, err
	}
	return st.g.AddNode(compiled.KindSequence, compiled.SequencePayload{
		Elements: elems, ParseMode: int(v.ParseMode), AllowGaps: v.AllowGaps,
		Optional: v.Optional, Terminators: terms,
	}), nil
}

func (st *compilerState) compileAnyNumberOf(v *grammar.AnyNumberOf) (compiled.NodeId, error) {
	elems, err := st.compileList(v.Elements)
	if err != nil {
		return compiled.NoNode, err
	}
	exclude := compiled.NoNode
	if v.Exclude != nil {
		exclude, err = st.compile(v.Exclude)
		if err != nil {
			return compiled.NoNode, err
		}
	}
	terms, err := st.compileList(v.Terminators)
	if err != nil {
		return compiled.NoNode, err
	}
	return st.g.AddNode(compiled.KindAnyNumberOf, compiled.AnyNumberOfPayload{
		Elements: elems, Min: v.Min, Max: v.Max, MaxPerElement: v.MaxPerElement,
		Exclude: exclude, ResetTerminators: v.ResetTerminators, ParseMode: int(v.ParseMode),
		AllowGaps: v.AllowGaps, Terminators: terms, Optional: v.Optional,
	}), nil
}

func (st *compilerState) compileDelimited(v *grammar.Delimited) (compiled.NodeId, error) {
	elems, err := st.compileList(v.Elements)
	if err != nil {
		return compiled.NoNode, err
	}
	delim, err := st.compile(v.Delimiter)
	if err != nil {
		return compiled.NoNode, err
	}
	terms, err := st.compileList(v.Terminators)
	if err != nil {
		return compiled.NoNode, err
	}
	return st.g.AddNode(compiled.KindDelimited, compiled.DelimitedPayload{
		Elements: elems, Delimiter: delim, MinDelimiters: v.MinDelimiters,
		AllowTrailing: v.AllowTrailing, OptionalDelimiter: v.OptionalDelimiter,
		AllowGaps: v.AllowGaps, Terminators: terms, Optional: v.Optional,
	}), nil
}

func (st *compilerState) compileBracketed(v *grammar.Bracketed) (compiled.NodeId, error) {
	inner, err := st.compileSequence(v.Inner)
	if err != nil {
		return compiled.NoNode, err
	}
	set := v.BracketPairsSet
	if set == "" {
		set = "bracket_pairs"
	}
	return st.g.AddNode(compiled.KindBracketed, compiled.BracketedPayload{
		BracketType: v.BracketType, BracketPairsSet: set, AllowGaps: v.AllowGaps,
		ParseMode: int(v.ParseMode), Inner: inner,
	}), nil
}

func (st *compilerState) compileAnything(v *grammar.Anything) (compiled.NodeId, error) {
	terms, err := st.compileList(v.Terminators)
	if err != nil {
		return compiled.NoNode, err
	}
	return st.g.AddNode(compiled.KindAnything, compiled.AnythingPayload{Terminators: terms}), nil
}

func (st *compilerState) compileNodeMatcher(v *grammar.NodeMatcher) (compiled.NodeId, error) {
	child, err := st.compile(v.Child)
	if err != nil {
		return compiled.NoNode, err
	}
	return st.g.AddNode(compiled.KindNodeMatcher, compiled.NodeMatcherPayload{
		Kind: int32(v.Kind), Child: child,
	}), nil
}

// resolveRefs is the dedicated post-compile pass (spec.md §4.C step 2):
// every Ref's Resolved field is filled from Definitions, or — if the name
// is all-uppercase — a synthetic keyword StringParser is registered on the
// fly. Running this after every name has been compiled is what lets
// Expression refer to Expression before Expression's own compile() call
// returns (spec.md §4.C, "Cyclic grammar graphs").
func (st *compilerState) resolveRefs() error {
	for _, refID := range st.pendingRefs {
		payload := st.g.Payloads[refID].(compiled.RefPayload)
		sym := payload.Symbol
		name := st.g.Symbols.Name(sym)

		if def := st.g.Definition(sym); def != compiled.NoNode {
			payload.Resolved = def
			st.g.Payloads[refID] = payload
			continue
		}

		if isAllCaps(name) {
			strID := st.g.Strings.Intern(name)
			node := st.g.AddNode(compiled.KindStringParser, compiled.StringParserPayload{
				Template: strID, Kind: int32(syntax.Keyword),
			})
			st.g.EqGroups[node] = st.groupFor("__implicit_keyword__:" + name)
			st.g.Define(sym, node)
			payload.Resolved = node
			st.g.Payloads[refID] = payload
			continue
		}

		return &MissingReferenceError{Name: name}
	}
	return nil
}

func isAllCaps(name string) bool {
	if name == "" {
		return false
	}
	hasLetter := false
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			hasLetter = true
		case r == '_' || (r >= '0' && r <= '9'):
			// ok
		default:
			return false
		}
	}
	return hasLetter
}

// normalize applies the two peephole rewrites once, in source order
// (spec.md §4.C step 3): flatten a nested Sequence/OneOf whose knobs match
// its parent's "plain" configuration, and drop Nothing children of a
// Sequence.
func (st *compilerState) normalize() {
	for id := range st.g.Nodes {
		nid := compiled.NodeId(id)
		switch st.g.Nodes[id].Kind {
		case compiled.KindSequence:
			p := st.g.Payloads[nid].(compiled.SequencePayload)
			p.Elements = st.flattenSequence(p)
			st.g.Payloads[nid] = p
		case compiled.KindAnyNumberOf:
			p := st.g.Payloads[nid].(compiled.AnyNumberOfPayload)
			p.Elements = st.flattenOneOf(p)
			st.g.Payloads[nid] = p
		}
	}
}

func (st *compilerState) flattenSequence(parent compiled.SequencePayload) compiled.NodeSlice {
	out := make([]compiled.NodeId, 0, parent.Elements.Len)
	for _, kid := range st.g.KidsSlice(parent.Elements) {
		if st.g.Nodes[kid].Kind == compiled.KindNothing {
			continue
		}
		if st.g.Nodes[kid].Kind == compiled.KindSequence {
			childP := st.g.Payloads[kid].(compiled.SequencePayload)
			if childP.ParseMode == parent.ParseMode && childP.AllowGaps == parent.AllowGaps &&
				!childP.Optional && childP.Terminators.Len == 0 {
				out = append(out, st.g.KidsSlice(childP.Elements)...)
				continue
			}
		}
		out = append(out, kid)
	}
	return st.g.AppendKids(out)
}

func (st *compilerState) flattenOneOf(parent compiled.AnyNumberOfPayload) compiled.NodeSlice {
	isPlain := func(p compiled.AnyNumberOfPayload) bool {
		return p.Exclude == compiled.NoNode && p.Terminators.Len == 0 && !p.ResetTerminators &&
			p.Max == parent.Max && p.Min == parent.Min && p.MaxPerElement == parent.MaxPerElement &&
			p.AllowGaps == parent.AllowGaps && !p.Optional && p.ParseMode == parent.ParseMode
	}
	out := make([]compiled.NodeId, 0, parent.Elements.Len)
	for _, kid := range st.g.KidsSlice(parent.Elements) {
		if st.g.Nodes[kid].Kind == compiled.KindAnyNumberOf {
			childP := st.g.Payloads[kid].(compiled.AnyNumberOfPayload)
			if isPlain(childP) {
				out = append(out, st.g.KidsSlice(childP.Elements)...)
				continue
			}
		}
		out = append(out, kid)
	}
	return st.g.AppendKids(out)
}

// structuralKey renders a Matchable's own fields (not its compiled
// children) into a string two structurally-equal-but-distinct matchables
// will share, used only to assign equivalence groups for terminator dedup
// (spec.md §9, "Structural equality of matchables"). It does not recurse
// into sub-matchables by pointer — doing so by content, not identity, is
// exactly what distinguishes this from the `seen` pointer-identity map.
func structuralKey(m grammar.Matchable) string {
	var b strings.Builder
	switch v := m.(type) {
	case *grammar.Ref:
		fmt.Fprintf(&b, "Ref(%s,%v,%v,%v)", v.Name, v.Terminators != nil, v.ResetTerminators, v.Optional)
	case *grammar.StringParser:
		fmt.Fprintf(&b, "String(%s,%d,%v)", v.Template, v.Kind, v.Optional)
	case *grammar.MultiStringParser:
		fmt.Fprintf(&b, "MultiString(%v,%d,%v)", v.Templates, v.Kind, v.Optional)
	case *grammar.RegexParser:
		pat := ""
		if v.Pattern != nil {
			pat = v.Pattern.String()
		}
		fmt.Fprintf(&b, "Regex(%s,%d,%v)", pat, v.Kind, v.Optional)
	case *grammar.TypedParser:
		fmt.Fprintf(&b, "Typed(%d,%d,%v)", v.TemplateKind, v.OutKind, v.Optional)
	case *grammar.Code:
		b.WriteString("Code")
	case *grammar.NonCode:
		b.WriteString("NonCode")
	case *grammar.Nothing:
		b.WriteString("Nothing")
	case *grammar.Anything:
		b.WriteString("Anything")
	case *grammar.NodeMatcher:
		// Recurse into the child: two keyword matchers both wrapping Kind
		// Keyword but over different templates must not share a group.
		fmt.Fprintf(&b, "NodeMatcher(%d,%s)", v.Kind, structuralKey(v.Child))
	case *grammar.Meta:
		fmt.Fprintf(&b, "Meta(%d)", v.Kind)
	case *grammar.Conditional:
		fmt.Fprintf(&b, "Conditional(%d,%v)", v.MetaKind, v.Requirements)
	case *grammar.BracketedSegmentMatcher:
		b.WriteString("BracketedSegmentMatcher")
	case *grammar.LookaheadExclude:
		fmt.Fprintf(&b, "LookaheadExclude(%s,%s)", v.FirstRaw, v.LookaheadRaw)
	default:
		fmt.Fprintf(&b, "%T@%p", m, m)
	}
	return b.String()
}
