package commands

import "github.com/leapstack-labs/leapsql/pkg/segment"

// treeNode is the JSON-serializable projection of a segment.Segment: the
// engine's internal fields are unexported by design (spec.md §3 invariant
// iii, immutability), so commands render trees through the same accessor
// methods a library caller would use.
type treeNode struct {
	Kind     string     `json:"kind"`
	Raw      string     `json:"raw,omitempty"`
	Start    int        `json:"start"`
	End      int        `json:"end"`
	Children []treeNode `json:"children,omitempty"`
}

func buildTree(s *segment.Segment) treeNode {
	n := treeNode{
		Kind:  s.Kind().String(),
		Start: s.Position().SourceStart,
		End:   s.Position().SourceEnd,
	}
	if s.IsLeaf() {
		n.Raw = s.Raw()
		return n
	}
	for _, c := range s.Children() {
		n.Children = append(n.Children, buildTree(c))
	}
	return n
}
