// Package dialect provides the symbol table a SQL dialect is built from: a
// library of named grammar rules, keyword sets, bracket pair sets, and an
// ordered lexer matcher list (spec.md §3.B, §4.B). A Dialect goes through a
// strict mutation-then-freeze lifecycle: builders mutate it via Add,
// ReplaceGrammar, keyword/bracket/lexer helpers, then call Expand exactly
// once; after that it is read-only and safe to share across any number of
// concurrent parses (spec.md §5).
package dialect

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapsql/pkg/grammar"
	"github.com/leapstack-labs/leapsql/pkg/syntax"
)

// ErrAlreadyExpanded is returned by Expand when called a second time.
var ErrAlreadyExpanded = errors.New("dialect: already expanded")

// ErrNotExpanded is returned by operations (notably pkg/compiler.Compile)
// that require a fully expanded dialect.
var ErrNotExpanded = errors.New("dialect: not expanded")

// MissingGrammarError is returned by Ref and ReplaceGrammar when name is not
// registered. If name ends in "KeywordSegment" the error carries a hint that
// the keyword may need to be added to a keyword set instead.
type MissingGrammarError struct {
	Name string
}

func (e *MissingGrammarError) Error() string {
	msg := fmt.Sprintf("dialect: no grammar registered under %q", e.Name)
	if strings.HasSuffix(e.Name, "KeywordSegment") {
		msg += fmt.Sprintf(" (did you forget to add the keyword to a keyword set? expand() synthesizes %q automatically once it is)", e.Name)
	}
	return msg
}

// Generator lazily produces a Matchable once the dialect is available,
// letting a grammar rule reference sibling rules/keyword sets that are only
// populated later in the build (spec.md §3.B, "segment generator").
type Generator func(d *Dialect) grammar.Matchable

type libraryEntry struct {
	matchable grammar.Matchable
	generator Generator
}

// BracketPair is one entry of a bracket_collections set (spec.md §3.B).
type BracketPair struct {
	BracketType   string
	StartRefName  string
	EndRefName    string
	Persists      bool
}

// LexerMatcher is one named rule in the dialect's ordered lexer matcher
// list (spec.md §3.B). Exactly one of Pattern or Literal is set.
type LexerMatcher struct {
	Name    string
	Kind    syntax.Kind
	Pattern *regexp.Regexp
	Literal string
}

// Dialect is a named, mutable-then-frozen symbol table of grammar rules,
// keyword sets, bracket sets, and lexer matchers.
type Dialect struct {
	Name string

	library             map[string]libraryEntry
	sets                map[string]map[string]struct{}
	bracketCollections  map[string][]BracketPair
	lexerMatchers       []LexerMatcher
	expanded            bool
}

// New creates an empty, mutable dialect.
func New(name string) *Dialect {
	return &Dialect{
		Name:               name,
		library:            make(map[string]libraryEntry),
		sets:               make(map[string]map[string]struct{}),
		bracketCollections: make(map[string][]BracketPair),
	}
}

// CloneFrom returns a new mutable dialect named name, seeded with a copy of
// parent's library, sets, bracket collections, and lexer matchers. parent
// need not be expanded. Because unmodified library entries keep the exact
// same Matchable pointer as parent's, compiling the clone's unmodified rules
// reuses the identical grammar.Matchable values parent would compile — the
// mechanism behind dialects like Athena inheriting ANSI's rules wholesale
// and overriding only what differs (SPEC_FULL.md, Athena dialect).
func CloneFrom(name string, parent *Dialect) *Dialect {
	d := New(name)
	for k, v := range parent.library {
		d.library[k] = v
	}
	for label, set := range parent.sets {
		clone := make(map[string]struct{}, len(set))
		for kw := range set {
			clone[kw] = struct{}{}
		}
		d.sets[label] = clone
	}
	for label, pairs := range parent.bracketCollections {
		d.bracketCollections[label] = append([]BracketPair(nil), pairs...)
	}
	d.lexerMatchers = append([]LexerMatcher(nil), parent.lexerMatchers...)
	return d
}

func (d *Dialect) mustBeMutable(op string) error {
	if d.expanded {
		return fmt.Errorf("dialect %s: cannot %s after expand()", d.Name, op)
	}
	return nil
}

// Add registers a new grammar rule under name. Returns an error if name is
// already registered (use ReplaceGrammar to overwrite) or the dialect is
// already expanded.
func (d *Dialect) Add(name string, m grammar.Matchable) error {
	if err := d.mustBeMutable("add " + name); err != nil {
		return err
	}
	if _, exists := d.library[name]; exists {
		return fmt.Errorf("dialect %s: grammar %q already registered", d.Name, name)
	}
	d.library[name] = libraryEntry{matchable: m}
	return nil
}

// AddGenerator registers a lazily-built grammar rule under name.
func (d *Dialect) AddGenerator(name string, g Generator) error {
	if err := d.mustBeMutable("add " + name); err != nil {
		return err
	}
	if _, exists := d.library[name]; exists {
		return fmt.Errorf("dialect %s: grammar %q already registered", d.Name, name)
	}
	d.library[name] = libraryEntry{generator: g}
	return nil
}

// ReplaceGrammar replaces the matchable registered under name. If the
// current entry is a *grammar.NodeMatcher, its Child field is mutated in
// place instead of swapping the map entry, so anything already holding the
// old NodeMatcher pointer sees the new child (spec.md §4.B).
func (d *Dialect) ReplaceGrammar(name string, m grammar.Matchable) error {
	if err := d.mustBeMutable("replace " + name); err != nil {
		return err
	}
	entry, ok := d.library[name]
	if !ok {
		return &MissingGrammarError{Name: name}
	}
	if nm, ok := entry.matchable.(*grammar.NodeMatcher); ok {
		nm.Child = m
		return nil
	}
	d.library[name] = libraryEntry{matchable: m}
	return nil
}

// Ref returns the current matchable registered under name, forcing its
// generator if it has not yet been forced.
func (d *Dialect) Ref(name string) (grammar.Matchable, error) {
	entry, ok := d.library[name]
	if !ok {
		return nil, &MissingGrammarError{Name: name}
	}
	if entry.matchable != nil {
		return entry.matchable, nil
	}
	m := entry.generator(d)
	d.library[name] = libraryEntry{matchable: m}
	return m, nil
}

// Sets returns the (mutable, pre-expand) keyword set registered under
// label, creating it empty if absent.
func (d *Dialect) Sets(label string) map[string]struct{} {
	set, ok := d.sets[label]
	if !ok {
		set = make(map[string]struct{})
		d.sets[label] = set
	}
	return set
}

// AddKeywordToSet adds value (uppercased) to the keyword set named label.
func (d *Dialect) AddKeywordToSet(label, value string) error {
	if err := d.mustBeMutable("add keyword to " + label); err != nil {
		return err
	}
	d.Sets(label)[strings.ToUpper(value)] = struct{}{}
	return nil
}

// UpdateKeywordsFromMultilineString splits text on newlines, trims each
// line, and adds every non-empty line to the keyword set named label
// (spec.md §4.B).
func (d *Dialect) UpdateKeywordsFromMultilineString(label, text string) error {
	if err := d.mustBeMutable("update keywords in " + label); err != nil {
		return err
	}
	set := d.Sets(label)
	for _, line := range strings.Split(text, "\n") {
		kw := strings.ToUpper(strings.TrimSpace(line))
		if kw == "" {
			continue
		}
		set[kw] = struct{}{}
	}
	return nil
}

// BracketSets returns the bracket pairs registered under label.
func (d *Dialect) BracketSets(label string) []BracketPair {
	return d.bracketCollections[label]
}

// UpdateBracketSets appends pairs to the bracket collection named label.
// Calling this with label "bracket_pairs" or "angle_bracket_pairs" is the
// intended usage; using Sets() for bracket labels is a dialect-author error
// the spec calls out explicitly (spec.md §4.B error conditions) — Sets and
// BracketSets are backed by distinct maps precisely so that mistake cannot
// silently corrupt either structure.
func (d *Dialect) UpdateBracketSets(label string, pairs []BracketPair) error {
	if err := d.mustBeMutable("update bracket set " + label); err != nil {
		return err
	}
	d.bracketCollections[label] = append(d.bracketCollections[label], pairs...)
	return nil
}

// SetLexerMatchers replaces the dialect's entire lexer matcher list.
func (d *Dialect) SetLexerMatchers(list []LexerMatcher) error {
	if err := d.mustBeMutable("set lexer matchers"); err != nil {
		return err
	}
	d.lexerMatchers = append([]LexerMatcher(nil), list...)
	return nil
}

// InsertLexerMatchers inserts patch immediately before the matcher named
// beforeName. Errors if beforeName is not present or no lexer has been set
// yet (spec.md §4.B error conditions).
func (d *Dialect) InsertLexerMatchers(patch []LexerMatcher, beforeName string) error {
	if err := d.mustBeMutable("insert lexer matchers"); err != nil {
		return err
	}
	if d.lexerMatchers == nil {
		return fmt.Errorf("dialect %s: cannot insert lexer matchers before a lexer is set", d.Name)
	}
	idx := -1
	for i, m := range d.lexerMatchers {
		if m.Name == beforeName {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("dialect %s: no lexer matcher named %q to insert before", d.Name, beforeName)
	}
	out := make([]LexerMatcher, 0, len(d.lexerMatchers)+len(patch))
	out = append(out, d.lexerMatchers[:idx]...)
	out = append(out, patch...)
	out = append(out, d.lexerMatchers[idx:]...)
	d.lexerMatchers = out
	return nil
}

// PatchLexerMatchers replaces lexer matchers in place by name.
func (d *Dialect) PatchLexerMatchers(patch []LexerMatcher) error {
	if err := d.mustBeMutable("patch lexer matchers"); err != nil {
		return err
	}
	if d.lexerMatchers == nil {
		return fmt.Errorf("dialect %s: cannot patch lexer matchers before a lexer is set", d.Name)
	}
	byName := make(map[string]LexerMatcher, len(patch))
	for _, p := range patch {
		byName[p.Name] = p
	}
	for i, m := range d.lexerMatchers {
		if repl, ok := byName[m.Name]; ok {
			d.lexerMatchers[i] = repl
		}
	}
	return nil
}

// LexerMatchers returns the dialect's ordered lexer matcher list.
func (d *Dialect) LexerMatchers() []LexerMatcher {
	return d.lexerMatchers
}

// Expanded reports whether Expand has completed.
func (d *Dialect) Expanded() bool { return d.expanded }

// Library returns the dialect's name->matchable map. Only valid after
// Expand (no generators remain to force lazily at that point).
func (d *Dialect) Library() (map[string]grammar.Matchable, error) {
	if !d.expanded {
		return nil, ErrNotExpanded
	}
	out := make(map[string]grammar.Matchable, len(d.library))
	for name, entry := range d.library {
		out[name] = entry.matchable
	}
	return out, nil
}

// Expand is the one-shot finalisation step (spec.md §4.B): it forces every
// remaining segment generator, then synthesizes a StringParser keyword
// entry for every keyword string in every registered set that lacks an
// explicit grammar entry, then freezes the dialect. Calling Expand twice
// returns ErrAlreadyExpanded.
func (d *Dialect) Expand() error {
	if d.expanded {
		return ErrAlreadyExpanded
	}

	// Force every generator whose name is captured up front. Generators close
	// over `d` and may call d.Ref for sibling rules; an entry a generator
	// registers while being forced is not in this list and stays unforced.
	names := make([]string, 0, len(d.library))
	for name := range d.library {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic traversal order (spec.md §4.D, "no hashing-order dependence")
	for _, name := range names {
		if _, err := d.Ref(name); err != nil {
			return err
		}
	}

	// Synthesize keyword entries for every keyword in every set lacking one.
	labels := make([]string, 0, len(d.sets))
	for label := range d.sets {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		kws := make([]string, 0, len(d.sets[label]))
		for kw := range d.sets[label] {
			kws = append(kws, kw)
		}
		sort.Strings(kws)
		for _, kw := range kws {
			name := keywordSegmentNameFor(kw)
			if _, exists := d.library[name]; exists {
				continue
			}
			d.library[name] = libraryEntry{matchable: &grammar.NodeMatcher{
				Kind:  syntax.Keyword,
				Child: &grammar.StringParser{Template: kw, Kind: syntax.Keyword},
			}}
		}
	}

	d.expanded = true
	return nil
}

func keywordSegmentNameFor(kw string) string {
	lower := strings.ToLower(kw)
	if lower == "" {
		return "KeywordSegment"
	}
	r := []rune(lower)
	if r[0] >= 'a' && r[0] <= 'z' {
		r[0] -= 32
	}
	return string(r) + "KeywordSegment"
}
