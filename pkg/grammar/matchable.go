// Package grammar is the rich, mutable, combinator-style grammar
// description dialects are authored in (spec.md §3, "Matchable"). It is
// the input to pkg/compiler, which translates it into the flat IR in
// pkg/compiled that the match engine actually runs against.
//
// Every variant is a distinct pointer type implementing Matchable; the
// compiler keys its dedup table by pointer identity, so two grammar
// authors who both write Ref("Expression") get two Matchable values that
// compile to the same compiled.NodeId only if they share the *same*
// pointer (spec.md §8 property 4) — distinct-but-equal Ref values instead
// get distinct NodeIds sharing an equivalence-class id for terminator
// dedup (spec.md §9, "Structural equality of matchables").
package grammar

import (
	"regexp"

	"github.com/leapstack-labs/leapsql/pkg/syntax"
)

// Matchable is implemented by every grammar combinator variant. It carries
// no methods of its own: dispatch happens in pkg/compiler and pkg/match via
// type switch, matching the teacher's preference for a tagged sum over a
// trait object (spec.md §9, "Deep/virtual matchable inheritance").
type Matchable interface {
	matchable()
}

// ParseMode controls how a Sequence or Bracketed handles elements it could
// not match (spec.md §3, §4.E).
type ParseMode int

const (
	// ParseModeStrict fails the whole construct if any required element fails.
	ParseModeStrict ParseMode = iota
	// ParseModeGreedy pre-trims to the first terminator and recovers failures
	// as Unparsable spans.
	ParseModeGreedy
	// ParseModeGreedyOnceStarted behaves like Strict until the first element
	// matches, then upgrades to Greedy.
	ParseModeGreedyOnceStarted
)

var parseModeNames = [...]string{"Strict", "Greedy", "GreedyOnceStarted"}

// String renders the parse mode name, used in compiler/engine error messages.
func (m ParseMode) String() string {
	if int(m) >= 0 && int(m) < len(parseModeNames) {
		return parseModeNames[m]
	}
	return "Strict"
}

// Ref matches the grammar registered in the dialect under Name. If Exclude
// is set and matches at the current position, Ref fails immediately without
// trying Name.
type Ref struct {
	Name             string
	Exclude          Matchable
	Terminators      []Matchable
	ResetTerminators bool
	Optional         bool
}

func (*Ref) matchable() {}

// RefKeyword builds a Ref to the conventional keyword grammar name for a
// literal keyword: "select" -> Ref{Name: "SelectKeywordSegment"}. This is
// the explicit-suffix convention SPEC_FULL.md's Open Question 1 settled on.
func RefKeyword(keyword string) *Ref {
	return &Ref{Name: keywordSegmentName(keyword)}
}

func keywordSegmentName(keyword string) string {
	if keyword == "" {
		return "KeywordSegment"
	}
	runes := []rune(keyword)
	cap := make([]rune, len(runes))
	for i, r := range runes {
		if i == 0 {
			if r >= 'a' && r <= 'z' {
				r -= 32
			}
			cap[i] = r
			continue
		}
		if r >= 'A' && r <= 'Z' {
			r += 32
		}
		cap[i] = r
	}
	return string(cap) + "KeywordSegment"
}

// Sequence matches its Elements in order, optionally skipping non-code gaps
// between them (spec.md §3, §4.E).
type Sequence struct {
	Elements    []Matchable
	ParseMode   ParseMode
	AllowGaps   bool
	Optional    bool
	Terminators []Matchable
}

func (*Sequence) matchable() {}

// AnyNumberOf matches a repeated choice among Elements. OneOf is the
// Min=Max=1 special case; AnyNumberOf is the general repeat (spec.md §3).
type AnyNumberOf struct {
	Elements         []Matchable
	Min              int
	Max              int // < 0 means unbounded
	MaxPerElement    int // 0 means unbounded
	Exclude          Matchable
	ResetTerminators bool
	ParseMode        ParseMode
	AllowGaps        bool
	Terminators      []Matchable
	Optional         bool
}

func (*AnyNumberOf) matchable() {}

// OneOf builds the Min=Max=1 special case of AnyNumberOf: match exactly one
// of elements, whichever is the longest match (spec.md §3).
func OneOf(elements ...Matchable) *AnyNumberOf {
	return &AnyNumberOf{Elements: elements, Min: 1, Max: 1, AllowGaps: true}
}

// Delimited matches Elements separated by Delimiter (spec.md §3).
type Delimited struct {
	Elements          []Matchable
	Delimiter         Matchable
	MinDelimiters     int
	AllowTrailing     bool
	OptionalDelimiter bool
	AllowGaps         bool
	Terminators       []Matchable
	Optional          bool
}

func (*Delimited) matchable() {}

// Bracketed matches a balanced bracket pair from the dialect's bracket set
// with Inner between (spec.md §3).
type Bracketed struct {
	BracketType     string // e.g. "round", "square" - a key into the dialect's bracket_collections entries
	BracketPairsSet string // which bracket_collections label to use; defaults to "bracket_pairs"
	AllowGaps       bool
	ParseMode       ParseMode
	Inner           *Sequence
}

func (*Bracketed) matchable() {}

// StringParser matches a single code segment whose uppercased raw equals
// Template (spec.md §3, §6: string templates match case-insensitively).
type StringParser struct {
	Template string
	Kind     syntax.Kind
	Optional bool
}

func (*StringParser) matchable() {}

// MultiStringParser is a StringParser with a set of acceptable templates.
type MultiStringParser struct {
	Templates []string
	Kind      syntax.Kind
	Optional  bool
}

func (*MultiStringParser) matchable() {}

// RegexParser matches when the uppercased raw is fully matched by Pattern
// and not matched anywhere by AntiPattern (spec.md §6).
type RegexParser struct {
	Pattern     *regexp.Regexp
	AntiPattern *regexp.Regexp
	Kind        syntax.Kind
	Optional    bool
}

func (*RegexParser) matchable() {}

// TypedParser matches any segment whose kind equals TemplateKind, re-tagging
// it as OutKind.
type TypedParser struct {
	TemplateKind syntax.Kind
	OutKind      syntax.Kind
	Optional     bool
}

func (*TypedParser) matchable() {}

// Code matches any single code segment.
type Code struct{}

func (*Code) matchable() {}

// NonCode matches a maximal run of non-code segments.
type NonCode struct{}

func (*NonCode) matchable() {}

// Anything greedily matches up to a terminator, or end of input.
type Anything struct {
	Terminators []Matchable
}

func (*Anything) matchable() {}

// Nothing always matches empty at the current position.
type Nothing struct{}

func (*Nothing) matchable() {}

// NodeMatcher wraps Child's result under a new node of Kind. It also
// matches directly, width 1, if the current segment already carries Kind.
type NodeMatcher struct {
	Kind  syntax.Kind
	Child Matchable
}

func (*NodeMatcher) matchable() {}

// Meta inserts a zero-width meta segment of Kind at the current position.
type Meta struct {
	Kind syntax.Kind
}

func (*Meta) matchable() {}

// Conditional inserts MetaKind iff the parse's IndentationConfig satisfies
// every flag in Requirements.
type Conditional struct {
	MetaKind     syntax.Kind
	Requirements []string
}

func (*Conditional) matchable() {}

// BracketedSegmentMatcher matches a single pre-bracketed segment; used by
// recovery paths that re-enter an already-bracketed region.
type BracketedSegmentMatcher struct{}

func (*BracketedSegmentMatcher) matchable() {}

// LookaheadExclude matches the current segment iff its raw equals FirstRaw
// AND the next code segment's raw does not equal LookaheadRaw. Used to
// disambiguate keywords like NOT NULL vs NOT IN.
type LookaheadExclude struct {
	FirstRaw     string
	LookaheadRaw string
}

func (*LookaheadExclude) matchable() {}
