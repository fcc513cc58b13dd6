package syntax

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{File, "File"},
		{SelectStatement, "SelectStatement"},
		{Kind(99999), "Kind(99999)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.String())
		})
	}
}

func TestIsMeta(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		want bool
	}{
		{"indent", Indent, true},
		{"dedent", Dedent, true},
		{"implicit indent", ImplicitIndent, true},
		{"end of file", EndOfFile, true},
		{"keyword", Keyword, false},
		{"select statement", SelectStatement, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.IsMeta())
		})
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	k1 := Register("MergeStatement")
	k2 := Register("MergeStatement")
	assert.Equal(t, k1, k2)
	assert.Equal(t, "MergeStatement", k1.String())
}

func TestRegisterDistinctNames(t *testing.T) {
	a := Register("UnloadStatement")
	b := Register("PivotClause")
	assert.NotEqual(t, a, b)
}

func TestClassTypes(t *testing.T) {
	child := Register("TestColumnReference")
	parent := Register("TestIdentifier")
	SetClassTypes(child, parent, Identifier)

	types := ClassTypes(child)
	assert.Contains(t, types, child)
	assert.Contains(t, types, parent)
	assert.Contains(t, types, Identifier)
	assert.NotContains(t, ClassTypes(parent), child)
}
