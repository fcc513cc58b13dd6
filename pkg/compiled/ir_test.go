package compiled

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSymbolTable_InternIsIdempotent(t *testing.T) {
	st := NewSymbolTable()
	a := st.Intern("Expression")
	b := st.Intern("Expression")
	c := st.Intern("Statement")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "Expression", st.Name(a))
}

func TestGraph_AddNodeAndKids(t *testing.T) {
	g := NewGraph()
	leaf := g.AddNode(KindNothing, NothingPayload{})
	seq := g.AddNode(KindSequence, SequencePayload{})
	ns := g.AppendKids([]NodeId{leaf})
	g.Payloads[seq] = SequencePayload{Elements: ns}

	assert.Equal(t, []NodeId{leaf}, g.KidsSlice(ns))
	assert.Equal(t, KindSequence, g.Nodes[seq].Kind)
}

func TestGraph_DefinitionsGrowLazily(t *testing.T) {
	g := NewGraph()
	sym := g.Symbols.Intern("Expression")
	g.EnsureDefinitions()
	assert.Equal(t, NoNode, g.Definition(sym))

	target := g.AddNode(KindNothing, NothingPayload{})
	g.Define(sym, target)
	assert.Equal(t, target, g.Definition(sym))
}

func TestStringTable_Intern(t *testing.T) {
	st := NewStringTable()
	a := st.Intern("SELECT")
	b := st.Intern("SELECT")
	assert.Equal(t, a, b)
	assert.Equal(t, "SELECT", st.Value(a))
}
