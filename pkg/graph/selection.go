package graph

// Selection returns the current single selection.
func (s *Store) Selection() Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.selection
}

// SelectNode selects a node and clears any edge selection. The node's
// selected flag is set and every other node is unselected.
func (s *Store) SelectNode(id string) bool {
	ok := false

	s.mutate(func() []Change {
		if s.nodeIndex(id) < 0 {
			return nil
		}

		s.selection = Selection{NodeID: id}
		for i := range s.nodes {
			s.nodes[i].Selected = s.nodes[i].ID == id
		}

		ok = true

		return []Change{{Kind: ChangeSelection, IDs: []string{id}}}
	})

	return ok
}

// SelectEdge selects an edge and clears any node selection.
func (s *Store) SelectEdge(id string) bool {
	ok := false

	s.mutate(func() []Change {
		if s.edgeIndex(id) < 0 {
			return nil
		}

		s.selection = Selection{EdgeID: id}
		s.unselectNodes()
		ok = true

		return []Change{{Kind: ChangeSelection, IDs: []string{id}}}
	})

	return ok
}

// SetNodeSelected toggles a node's selected flag without touching the single
// selection, for multi-select gestures.
func (s *Store) SetNodeSelected(id string, selected bool) bool {
	ok := false

	s.mutate(func() []Change {
		i := s.nodeIndex(id)
		if i < 0 || s.nodes[i].Selected == selected {
			return nil
		}

		s.nodes[i].Selected = selected
		ok = true

		return []Change{{Kind: ChangeSelection, IDs: []string{id}}}
	})

	return ok
}

// ClearSelection drops the selection and every node's selected flag.
func (s *Store) ClearSelection() {
	s.mutate(func() []Change {
		s.selection = Selection{}
		s.unselectNodes()

		return []Change{{Kind: ChangeSelection}}
	})
}

func (s *Store) unselectNodes() {
	for i := range s.nodes {
		s.nodes[i].Selected = false
	}
}
