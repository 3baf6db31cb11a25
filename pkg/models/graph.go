package models

// Graph is the persisted shape of a flow: its nodes and edges. Selection and
// other UI state are not part of it.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// IsEmpty reports whether the graph has neither nodes nor edges.
func (g *Graph) IsEmpty() bool {
	return g == nil || (len(g.Nodes) == 0 && len(g.Edges) == 0)
}

// Clone deep-copies the graph.
func (g *Graph) Clone() *Graph {
	if g == nil {
		return &Graph{Nodes: []Node{}, Edges: []Edge{}}
	}

	out := &Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}

	for i, n := range g.Nodes {
		out.Nodes[i] = n.Clone()
	}

	for i, e := range g.Edges {
		out.Edges[i] = e.Clone()
	}

	return out
}

// NodeByID returns the node with the given id.
func (g *Graph) NodeByID(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}

	return Node{}, false
}
