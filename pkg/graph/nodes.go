package graph

import (
	"slices"

	"github.com/dukex/flowcanvas/pkg/models"
)

// AddNode appends a node. A node whose id is empty or already present is
// refused.
func (s *Store) AddNode(node models.Node) bool {
	added := false

	s.mutate(func() []Change {
		if node.ID == "" || s.nodeIndex(node.ID) >= 0 {
			return nil
		}

		n := node.Clone()
		if n.Data == nil {
			n.Data = map[string]any{}
		}

		s.nodes = append(s.nodes, n)
		added = true

		return []Change{{Kind: ChangeNodes, IDs: []string{n.ID}}}
	})

	return added
}

// RemoveNode removes a node together with every edge touching it and its
// error log. Unknown ids are a no-op.
func (s *Store) RemoveNode(id string) bool {
	return s.RemoveNodes(id) == 1
}

// RemoveNodes removes several nodes at once and returns how many existed.
func (s *Store) RemoveNodes(ids ...string) int {
	var removed []string

	s.mutate(func() []Change {
		drop := make(map[string]bool, len(ids))
		for _, id := range ids {
			if s.nodeIndex(id) >= 0 {
				drop[id] = true
			}
		}

		if len(drop) == 0 {
			return nil
		}

		s.nodes = slices.DeleteFunc(s.nodes, func(n models.Node) bool {
			if drop[n.ID] {
				removed = append(removed, n.ID)

				return true
			}

			return false
		})

		var edgeIDs []string

		s.edges = slices.DeleteFunc(s.edges, func(e models.Edge) bool {
			if drop[e.Source] || drop[e.Target] {
				edgeIDs = append(edgeIDs, e.ID)

				return true
			}

			return false
		})

		for id := range drop {
			delete(s.errors, id)
		}

		if drop[s.selection.NodeID] || slices.Contains(edgeIDs, s.selection.EdgeID) {
			s.selection = Selection{}
		}

		changes := []Change{{Kind: ChangeNodes, IDs: removed}}
		if len(edgeIDs) > 0 {
			changes = append(changes, Change{Kind: ChangeEdges, IDs: edgeIDs})
		}

		return changes
	})

	for _, id := range removed {
		s.releaser.ReleaseNode(id)
	}

	return len(removed)
}

// UpdateNodeData merges patch into the node data. A key is written only when
// its value differs from the stored one; the result reports whether anything
// was written.
func (s *Store) UpdateNodeData(id string, patch map[string]any) bool {
	changed := false

	s.mutate(func() []Change {
		i := s.nodeIndex(id)
		if i < 0 {
			return nil
		}

		node := &s.nodes[i]
		if node.Data == nil {
			node.Data = map[string]any{}
		}

		for key, value := range patch {
			current, exists := node.Data[key]
			if exists && valuesEqual(current, value) {
				continue
			}

			node.Data[key] = models.CloneData(map[string]any{key: value})[key]
			changed = true
		}

		if !changed {
			return nil
		}

		return []Change{{Kind: ChangeNodes, IDs: []string{id}}}
	})

	return changed
}

// UpdateNodePosition moves a node. It reports whether the position changed.
func (s *Store) UpdateNodePosition(id string, pos models.Position) bool {
	changed := false

	s.mutate(func() []Change {
		i := s.nodeIndex(id)
		if i < 0 || s.nodes[i].Position == pos {
			return nil
		}

		s.nodes[i].Position = pos
		changed = true

		return []Change{{Kind: ChangeNodes, IDs: []string{id}}}
	})

	return changed
}

// UpdateNodeID renames a node, remapping edge endpoints, the selection and
// the error log. It fails without mutating anything when newID is taken.
func (s *Store) UpdateNodeID(oldID, newID string) bool {
	renamed := false

	s.mutate(func() []Change {
		if newID == "" || oldID == newID {
			return nil
		}

		i := s.nodeIndex(oldID)
		if i < 0 || s.nodeIndex(newID) >= 0 {
			return nil
		}

		s.nodes[i].ID = newID

		var edgeIDs []string

		for j := range s.edges {
			e := &s.edges[j]
			if !e.Touches(oldID) {
				continue
			}

			if e.Source == oldID {
				e.Source = newID
			}

			if e.Target == oldID {
				e.Target = newID
			}

			edgeIDs = append(edgeIDs, e.ID)
		}

		if s.selection.NodeID == oldID {
			s.selection.NodeID = newID
		}

		if ring, ok := s.errors[oldID]; ok {
			s.errors[newID] = ring
			delete(s.errors, oldID)
		}

		renamed = true

		changes := []Change{{Kind: ChangeNodes, IDs: []string{oldID, newID}}}
		if len(edgeIDs) > 0 {
			changes = append(changes, Change{Kind: ChangeEdges, IDs: edgeIDs})
		}

		return changes
	})

	if renamed {
		s.logger.Debug("Renamed node", "old_id", oldID, "new_id", newID)
	}

	return renamed
}
