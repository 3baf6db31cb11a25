package graph

import (
	"math"

	"github.com/dukex/flowcanvas/pkg/models"
)

type clipboard struct {
	nodes []models.Node
	edges []models.Edge
}

// Clipboard returns a copy of the copied nodes and edges.
func (s *Store) Clipboard() *models.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return (&models.Graph{Nodes: s.clipboard.nodes, Edges: s.clipboard.edges}).Clone()
}

// CopySelectedNodes snapshots the selected nodes and every edge whose two
// endpoints are both selected. An empty selection leaves the clipboard as it
// was. It returns the number of nodes copied.
func (s *Store) CopySelectedNodes() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	picked := make(map[string]bool)
	var nodes []models.Node

	for _, n := range s.nodes {
		if n.Selected || n.ID == s.selection.NodeID {
			picked[n.ID] = true
			nodes = append(nodes, n.Clone())
		}
	}

	if len(nodes) == 0 {
		return 0
	}

	var edges []models.Edge

	for _, e := range s.edges {
		if picked[e.Source] && picked[e.Target] {
			edges = append(edges, e.Clone())
		}
	}

	s.clipboard = clipboard{nodes: nodes, edges: edges}

	return len(nodes)
}

// PasteNodes inserts the clipboard translated by offset. Every pasted node and
// edge gets a fresh id; edges whose endpoints were not both copied are
// dropped. It returns the ids of the new nodes.
func (s *Store) PasteNodes(offset models.Position) []string {
	var pasted []string

	s.mutate(func() []Change {
		pasted = s.paste(offset)
		if len(pasted) == 0 {
			return nil
		}

		return []Change{{Kind: ChangeNodes, IDs: pasted}}
	})

	return pasted
}

// PasteNodesAtPosition pastes the clipboard centered on point. A nil point
// falls back to the default offset.
func (s *Store) PasteNodesAtPosition(point *models.Position) []string {
	if point == nil {
		return s.PasteNodes(s.offset)
	}

	var pasted []string

	s.mutate(func() []Change {
		center, ok := boundsCenter(s.clipboard.nodes)
		if !ok {
			return nil
		}

		pasted = s.paste(models.Position{X: point.X - center.X, Y: point.Y - center.Y})

		return []Change{{Kind: ChangeNodes, IDs: pasted}}
	})

	return pasted
}

func (s *Store) paste(offset models.Position) []string {
	if len(s.clipboard.nodes) == 0 {
		return nil
	}

	remap := make(map[string]string, len(s.clipboard.nodes))
	pasted := make([]string, 0, len(s.clipboard.nodes))

	for _, n := range s.clipboard.nodes {
		id := s.freshNodeID()
		remap[n.ID] = id

		copied := n.Clone()
		copied.ID = id
		copied.Position = n.Position.Add(offset)
		copied.Selected = false

		s.nodes = append(s.nodes, copied)
		pasted = append(pasted, id)
	}

	for _, e := range s.clipboard.edges {
		source, okSource := remap[e.Source]
		target, okTarget := remap[e.Target]

		if !okSource || !okTarget {
			continue
		}

		copied := e.Clone()
		copied.ID = s.freshEdgeID()
		copied.Source = source
		copied.Target = target

		s.edges = append(s.edges, copied)
	}

	return pasted
}

func (s *Store) freshNodeID() string {
	for {
		id := s.ids.NewID()
		if id != "" && s.nodeIndex(id) < 0 {
			return id
		}
	}
}

func (s *Store) freshEdgeID() string {
	for {
		id := "e-" + s.ids.NewID()
		if s.edgeIndex(id) < 0 {
			return id
		}
	}
}

func boundsCenter(nodes []models.Node) (models.Position, bool) {
	if len(nodes) == 0 {
		return models.Position{}, false
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)

	for _, n := range nodes {
		minX = math.Min(minX, n.Position.X)
		minY = math.Min(minY, n.Position.Y)
		maxX = math.Max(maxX, n.Position.X)
		maxY = math.Max(maxY, n.Position.Y)
	}

	return models.Position{X: (minX + maxX) / 2, Y: (minY + maxY) / 2}, true
}
