// Package compiled is the flat, index-based grammar IR the match engine
// runs against (spec.md §3, "Compiled grammar"). It is produced once per
// dialect by pkg/compiler and is immutable thereafter: parses never lock
// against it, only against their own per-parse pkg/match.ParseContext
// (spec.md §5).
package compiled

import "regexp"

// NodeId indexes Graph.Nodes/Payloads. NoNode is the sentinel "absent" id,
// used where the source spec uses Option<NodeId> (an unresolved Ref, an
// absent Exclude, …) — ids are local to one Graph, never process-global
// (spec.md §9, "Global mutable state").
type NodeId int32

// NoNode marks an absent/unresolved node reference.
const NoNode NodeId = -1

// SymbolId indexes Graph.Definitions and is interned by name in a
// Graph's SymbolTable.
type SymbolId int32

// NoSymbol marks an absent symbol reference.
const NoSymbol SymbolId = -1

// NodeKind discriminates which Payload arm a Node carries, mirroring every
// grammar.Matchable variant (spec.md §3).
type NodeKind uint8

const (
	KindRef NodeKind = iota
	KindSequence
	KindAnyNumberOf
	KindDelimited
	KindBracketed
	KindStringParser
	KindMultiStringParser
	KindRegexParser
	KindTypedParser
	KindCode
	KindNonCode
	KindAnything
	KindNothing
	KindNodeMatcher
	KindMeta
	KindConditional
	KindBracketedSegmentMatcher
	KindLookaheadExclude
)

// NodeSlice addresses a contiguous run of Graph.Kids, used for both
// child-lists and terminator-lists (spec.md §3).
type NodeSlice struct {
	Start int32
	Len   int32
}

// Node is the compact, tagged half of a compiled grammar entry. It carries
// only Kind and no scalar fields; all per-variant data, small scalars
// included, lives in Payloads at the same index.
type Node struct {
	Kind NodeKind
}

// Payload is implemented by every per-variant payload struct.
type Payload interface{ payload() }

type RefPayload struct {
	Symbol           SymbolId
	Resolved         NodeId // NoNode until the resolve pass runs
	Exclude          NodeId
	Terminators      NodeSlice
	ResetTerminators bool
	Optional         bool
}

func (RefPayload) payload() {}

type SequencePayload struct {
	Elements    NodeSlice
	ParseMode   int // grammar.ParseMode, copied by value to avoid an import cycle
	AllowGaps   bool
	Optional    bool
	Terminators NodeSlice
}

func (SequencePayload) payload() {}

type AnyNumberOfPayload struct {
	Elements         NodeSlice
	Min              int
	Max              int
	MaxPerElement    int
	Exclude          NodeId
	ResetTerminators bool
	ParseMode        int
	AllowGaps        bool
	Terminators      NodeSlice
	Optional         bool
}

func (AnyNumberOfPayload) payload() {}

type DelimitedPayload struct {
	Elements          NodeSlice
	Delimiter         NodeId
	MinDelimiters     int
	AllowTrailing     bool
	OptionalDelimiter bool
	AllowGaps         bool
	Terminators       NodeSlice
	Optional          bool
}

func (DelimitedPayload) payload() {}

type BracketedPayload struct {
	BracketType     string
	BracketPairsSet string
	AllowGaps       bool
	ParseMode       int
	Inner           NodeId // the compiled Sequence node
}

func (BracketedPayload) payload() {}

type StringParserPayload struct {
	Template StringId
	Kind     int32 // syntax.Kind, copied by value
	Optional bool
}

func (StringParserPayload) payload() {}

type MultiStringParserPayload struct {
	Templates []StringId
	Kind      int32
	Optional  bool
}

func (MultiStringParserPayload) payload() {}

type RegexParserPayload struct {
	Pattern     RegexId
	AntiPattern RegexId // NoRegex if absent
	Kind        int32
	Optional    bool
}

func (RegexParserPayload) payload() {}

type TypedParserPayload struct {
	TemplateKind int32
	OutKind      int32
	Optional     bool
}

func (TypedParserPayload) payload() {}

type CodePayload struct{}

func (CodePayload) payload() {}

type NonCodePayload struct{}

func (NonCodePayload) payload() {}

type AnythingPayload struct {
	Terminators NodeSlice
}

func (AnythingPayload) payload() {}

type NothingPayload struct{}

func (NothingPayload) payload() {}

type NodeMatcherPayload struct {
	Kind  int32
	Child NodeId
}

func (NodeMatcherPayload) payload() {}

type MetaPayload struct {
	Kind int32
}

func (MetaPayload) payload() {}

type ConditionalPayload struct {
	MetaKind     int32
	Requirements []string
}

func (ConditionalPayload) payload() {}

type BracketedSegmentMatcherPayload struct{}

func (BracketedSegmentMatcherPayload) payload() {}

type LookaheadExcludePayload struct {
	FirstRaw     StringId
	LookaheadRaw StringId
}

func (LookaheadExcludePayload) payload() {}

// StringId interns literal string templates. RegexId interns compiled
// regexes. Both avoid repeating identical strings/patterns across many
// grammar sites (spec.md §3, "symbols, strings, regexes: interned").
type StringId int32
type RegexId int32

const (
	NoString StringId = -1
	NoRegex  RegexId  = -1
)

// SymbolTable interns grammar names in first-seen order (spec.md §4.C,
// "Determinism: ... insertion order").
type SymbolTable struct {
	byName []string
	index  map[string]SymbolId
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{index: make(map[string]SymbolId)}
}

// Intern returns name's SymbolId, assigning a new one on first use.
func (t *SymbolTable) Intern(name string) SymbolId {
	if id, ok := t.index[name]; ok {
		return id
	}
	id := SymbolId(len(t.byName))
	t.byName = append(t.byName, name)
	t.index[name] = id
	return id
}

// Lookup returns name's SymbolId without interning, and whether it exists.
func (t *SymbolTable) Lookup(name string) (SymbolId, bool) {
	id, ok := t.index[name]
	return id, ok
}

// Name returns the name interned under id.
func (t *SymbolTable) Name(id SymbolId) string {
	if id < 0 || int(id) >= len(t.byName) {
		return ""
	}
	return t.byName[id]
}

// Len reports how many distinct symbols have been interned.
func (t *SymbolTable) Len() int { return len(t.byName) }

// StringTable interns literal strings (StringParser/MultiStringParser
// templates, LookaheadExclude raws).
type StringTable struct {
	values []string
	index  map[string]StringId
}

func NewStringTable() *StringTable {
	return &StringTable{index: make(map[string]StringId)}
}

func (t *StringTable) Intern(s string) StringId {
	if id, ok := t.index[s]; ok {
		return id
	}
	id := StringId(len(t.values))
	t.values = append(t.values, s)
	t.index[s] = id
	return id
}

func (t *StringTable) Value(id StringId) string {
	if id < 0 || int(id) >= len(t.values) {
		return ""
	}
	return t.values[id]
}

// RegexTable interns compiled regexes by pointer identity, so two grammar
// sites that reference the same *regexp.Regexp value compile to one entry;
// separately compiled regexes with the same source pattern get distinct
// entries.
type RegexTable struct {
	values []*regexp.Regexp
	index  map[*regexp.Regexp]RegexId
}

func NewRegexTable() *RegexTable {
	return &RegexTable{index: make(map[*regexp.Regexp]RegexId)}
}

func (t *RegexTable) Intern(re *regexp.Regexp) RegexId {
	if re == nil {
		return NoRegex
	}
	if id, ok := t.index[re]; ok {
		return id
	}
	id := RegexId(len(t.values))
	t.values = append(t.values, re)
	t.index[re] = id
	return id
}

func (t *RegexTable) Value(id RegexId) *regexp.Regexp {
	if id < 0 || int(id) >= len(t.values) {
		return nil
	}
	return t.values[id]
}

// Graph is the complete compiled grammar for one dialect (spec.md §3).
// Freeze makes Compiled true; nothing in this package checks Compiled at
// read time (the compiler is the only writer and pkg/match the only other
// reader, and both honor the freeze by convention, mirroring the source's
// "readers do not lock" design, spec.md §5).
type Graph struct {
	Nodes    []Node
	Payloads []Payload
	Kids     []NodeId

	Symbols *SymbolTable
	Strings *StringTable
	Regexes *RegexTable

	// Definitions maps a SymbolId to the NodeId it resolved to during
	// compilation; NoNode until resolved.
	Definitions []NodeId

	// EqGroups[id] is the structural-equality class of node id, used by
	// the match engine to dedup terminator stacks in O(1) (spec.md §3,
	// §9 "Structural equality of matchables").
	EqGroups []int32

	BuiltinNonCode NodeId

	Compiled bool
}

// NewGraph returns an empty, mutable graph ready for the compiler to fill.
func NewGraph() *Graph {
	return &Graph{
		Symbols:        NewSymbolTable(),
		Strings:        NewStringTable(),
		Regexes:        NewRegexTable(),
		BuiltinNonCode: NoNode,
	}
}

// AddNode appends a new node/payload pair and returns its NodeId.
func (g *Graph) AddNode(kind NodeKind, p Payload) NodeId {
	id := NodeId(len(g.Nodes))
	g.Nodes = append(g.Nodes, Node{Kind: kind})
	g.Payloads = append(g.Payloads, p)
	g.EqGroups = append(g.EqGroups, -1)
	return id
}

// AppendKids appends ids to Kids and returns the NodeSlice addressing them.
func (g *Graph) AppendKids(ids []NodeId) NodeSlice {
	start := int32(len(g.Kids))
	g.Kids = append(g.Kids, ids...)
	return NodeSlice{Start: start, Len: int32(len(ids))}
}

// KidsSlice returns the NodeIds addressed by ns.
func (g *Graph) KidsSlice(ns NodeSlice) []NodeId {
	if ns.Len == 0 {
		return nil
	}
	return g.Kids[ns.Start : ns.Start+ns.Len]
}

// EnsureDefinitions grows Definitions to cover every symbol interned so
// far, filling new slots with NoNode.
func (g *Graph) EnsureDefinitions() {
	for len(g.Definitions) < g.Symbols.Len() {
		g.Definitions = append(g.Definitions, NoNode)
	}
}

// Define records that symbol resolves to node, growing Definitions first.
func (g *Graph) Define(symbol SymbolId, node NodeId) {
	g.EnsureDefinitions()
	g.Definitions[symbol] = node
}

// Definition returns the NodeId the symbol resolved to, or NoNode.
func (g *Graph) Definition(symbol SymbolId) NodeId {
	if int(symbol) >= len(g.Definitions) {
		return NoNode
	}
	return g.Definitions[symbol]
}

// Freeze marks the graph compiled. After this call the compiler performs
// no further writes.
func (g *Graph) Freeze() { g.Compiled = true }
