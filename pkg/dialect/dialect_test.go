package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapsql/pkg/grammar"
	"github.com/leapstack-labs/leapsql/pkg/syntax"
)

func TestAdd_DuplicateFails(t *testing.T) {
	d := New("test")
	require.NoError(t, d.Add("Expression", &grammar.Nothing{}))
	err := d.Add("Expression", &grammar.Nothing{})
	assert.Error(t, err)
}

func TestRef_MissingGrammarHintsKeyword(t *testing.T) {
	d := New("test")
	_, err := d.Ref("SelectKeywordSegment")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keyword")
}

func TestReplaceGrammar_PreservesNodeMatcherIdentity(t *testing.T) {
	d := New("test")
	nm := &grammar.NodeMatcher{Kind: syntax.Expression, Child: &grammar.Nothing{}}
	require.NoError(t, d.Add("Expression", nm))

	replacement := &grammar.Code{}
	require.NoError(t, d.ReplaceGrammar("Expression", replacement))

	got, err := d.Ref("Expression")
	require.NoError(t, err)
	gotNM, ok := got.(*grammar.NodeMatcher)
	require.True(t, ok, "ReplaceGrammar must keep the original NodeMatcher pointer so prior Refs to it see the update")
	assert.Same(t, nm, gotNM)
	assert.Same(t, replacement, gotNM.Child)
}

func TestExpand_SynthesizesKeywordSegments(t *testing.T) {
	d := New("test")
	require.NoError(t, d.AddKeywordToSet("unreserved_keywords", "select"))
	require.NoError(t, d.Expand())

	m, err := d.Ref("SelectKeywordSegment")
	require.NoError(t, err)
	nm, ok := m.(*grammar.NodeMatcher)
	require.True(t, ok)
	assert.Equal(t, syntax.Keyword, nm.Kind)
	sp, ok := nm.Child.(*grammar.StringParser)
	require.True(t, ok)
	assert.Equal(t, "SELECT", sp.Template)
}

func TestExpand_DoesNotOverrideExplicitGrammar(t *testing.T) {
	d := New("test")
	custom := &grammar.NodeMatcher{Kind: syntax.Keyword, Child: &grammar.StringParser{Template: "SELECT", Kind: syntax.Keyword}}
	require.NoError(t, d.Add("SelectKeywordSegment", custom))
	require.NoError(t, d.AddKeywordToSet("unreserved_keywords", "select"))
	require.NoError(t, d.Expand())

	got, err := d.Ref("SelectKeywordSegment")
	require.NoError(t, err)
	assert.Same(t, custom, got)
}

func TestExpand_ForcesGenerators(t *testing.T) {
	d := New("test")
	forced := false
	require.NoError(t, d.AddGenerator("Expression", func(d *Dialect) grammar.Matchable {
		forced = true
		return &grammar.Nothing{}
	}))
	require.NoError(t, d.Expand())
	assert.True(t, forced)
}

func TestExpand_Idempotency(t *testing.T) {
	d := New("test")
	require.NoError(t, d.Expand())
	err := d.Expand()
	assert.ErrorIs(t, err, ErrAlreadyExpanded)
}

func TestMutationsRejectedAfterExpand(t *testing.T) {
	d := New("test")
	require.NoError(t, d.Expand())

	assert.Error(t, d.Add("Expression", &grammar.Nothing{}))
	assert.Error(t, d.AddKeywordToSet("unreserved_keywords", "select"))
	assert.Error(t, d.UpdateBracketSets("bracket_pairs", []BracketPair{{BracketType: "round"}}))
}

func TestCloneFrom_SharesUnmodifiedPointers(t *testing.T) {
	parent := New("ansi")
	expr := &grammar.Nothing{}
	require.NoError(t, parent.Add("Expression", expr))
	require.NoError(t, parent.AddKeywordToSet("unreserved_keywords", "select"))
	require.NoError(t, parent.Expand())

	child := CloneFrom("athena", parent)
	got, err := child.Ref("Expression")
	require.NoError(t, err)
	assert.Same(t, expr, got, "clone should share the parent's unmodified grammar pointer")

	require.NoError(t, child.ReplaceGrammar("Expression", &grammar.Code{}))
	require.NoError(t, child.Expand())

	parentExpr, _ := parent.Ref("Expression")
	assert.Same(t, expr, parentExpr, "mutating the clone must not affect the parent")
}

func TestInsertLexerMatchers_RequiresExistingName(t *testing.T) {
	d := New("test")
	require.NoError(t, d.SetLexerMatchers([]LexerMatcher{{Name: "whitespace"}}))
	err := d.InsertLexerMatchers([]LexerMatcher{{Name: "custom"}}, "does_not_exist")
	assert.Error(t, err)
}

func TestInsertLexerMatchers_InsertsBeforeTarget(t *testing.T) {
	d := New("test")
	require.NoError(t, d.SetLexerMatchers([]LexerMatcher{{Name: "whitespace"}, {Name: "word"}}))
	require.NoError(t, d.InsertLexerMatchers([]LexerMatcher{{Name: "custom"}}, "word"))

	names := make([]string, 0)
	for _, m := range d.LexerMatchers() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"whitespace", "custom", "word"}, names)
}

func TestRegistry_RejectsUnexpanded(t *testing.T) {
	d := New("unexpanded")
	err := Register(d)
	assert.Error(t, err)
}

func TestRegistry_RegisterGetList(t *testing.T) {
	d := New("test_registry_dialect")
	require.NoError(t, d.Expand())
	require.NoError(t, Register(d))

	got, ok := Get("test_registry_dialect")
	require.True(t, ok)
	assert.Same(t, d, got)

	assert.Contains(t, List(), "test_registry_dialect")

	err := Register(d)
	assert.Error(t, err, "duplicate registration must fail")
}
