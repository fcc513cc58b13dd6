package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapsql/pkg/segment"
	"github.com/leapstack-labs/leapsql/pkg/syntax"
)

func TestBuildTree_Leaf(t *testing.T) {
	leaf := segment.NewLeaf(syntax.NakedIdentifier, "a", segment.Position{})
	n := buildTree(leaf)

	assert.Equal(t, "NakedIdentifier", n.Kind)
	assert.Equal(t, "a", n.Raw)
	assert.Empty(t, n.Children)
}

func TestBuildTree_Node(t *testing.T) {
	leaf := segment.NewLeaf(syntax.NakedIdentifier, "a", segment.Position{})
	node, err := segment.NewNode(syntax.ColumnReference, []*segment.Segment{leaf})
	require.NoError(t, err)

	n := buildTree(node)
	assert.Equal(t, "ColumnReference", n.Kind)
	assert.Empty(t, n.Raw)
	require.Len(t, n.Children, 1)
	assert.Equal(t, "a", n.Children[0].Raw)
}
