package graph

import (
	"fmt"
	"maps"
	"slices"

	"github.com/dukex/flowcanvas/pkg/models"
)

// Rejection reasons reported by Connect.
const (
	ReasonMissingEndpoint = "source or target node does not exist"
	ReasonDuplicate       = "connection already exists"
	ReasonCycle           = "circular connection prevented"
	ReasonIncompatible    = "incompatible handle types"
)

// ConnectSource is the NodeError source used for connect diagnostics.
const ConnectSource = "connect"

// ConnectResult is the outcome of Connect.
type ConnectResult struct {
	Accepted bool        `json:"accepted"`
	Edge     models.Edge `json:"edge"`
	Reason   string      `json:"reason,omitempty"`
}

// AddEdge appends an edge. Edges with a missing endpoint or a duplicate id
// are refused. An empty id is derived from the endpoints.
func (s *Store) AddEdge(edge models.Edge) bool {
	added := false

	s.mutate(func() []Change {
		e := edge.Clone()
		if !s.endpointsExist(e) {
			return nil
		}

		if e.ID == "" {
			e.ID = s.edgeID(e)
		}

		if s.edgeIndex(e.ID) >= 0 {
			return nil
		}

		s.edges = append(s.edges, e)
		added = true

		return []Change{{Kind: ChangeEdges, IDs: []string{e.ID}}}
	})

	return added
}

// RemoveEdge removes an edge, clearing the selection if it pointed at it.
func (s *Store) RemoveEdge(id string) bool {
	removed := false

	s.mutate(func() []Change {
		i := s.edgeIndex(id)
		if i < 0 {
			return nil
		}

		s.edges = slices.Delete(s.edges, i, i+1)
		removed = true

		changes := []Change{{Kind: ChangeEdges, IDs: []string{id}}}

		if s.selection.EdgeID == id {
			s.selection = Selection{}
			changes = append(changes, Change{Kind: ChangeSelection})
		}

		return changes
	})

	return removed
}

// UpdateEdge applies a partial update to an edge. It reports whether the
// edge exists and something changed.
func (s *Store) UpdateEdge(id string, patch models.EdgePatch) bool {
	changed := false

	s.mutate(func() []Change {
		i := s.edgeIndex(id)
		if i < 0 {
			return nil
		}

		e := &s.edges[i]

		if patch.SourceHandle != nil && models.HandleValue(e.SourceHandle) != *patch.SourceHandle {
			e.SourceHandle = models.Handle(*patch.SourceHandle)
			changed = true
		}

		if patch.TargetHandle != nil && models.HandleValue(e.TargetHandle) != *patch.TargetHandle {
			e.TargetHandle = models.Handle(*patch.TargetHandle)
			changed = true
		}

		if patch.Style != nil && !maps.Equal(e.Style, patch.Style) {
			e.Style = maps.Clone(patch.Style)
			changed = true
		}

		if !changed {
			return nil
		}

		return []Change{{Kind: ChangeEdges, IDs: []string{id}}}
	})

	return changed
}

// Connect is the guarded path for user-drawn connections. The candidate is
// refused when an endpoint is missing, when the same connection exists, when
// the gate rejects the handle types, or when it would close a directed cycle.
// A cycle rejection files a warning on the source node.
func (s *Store) Connect(candidate models.Edge) ConnectResult {
	var result ConnectResult

	s.mutate(func() []Change {
		e := candidate.Clone()
		result.Edge = e

		si, ti := s.nodeIndex(e.Source), s.nodeIndex(e.Target)
		if si < 0 || ti < 0 {
			result.Reason = ReasonMissingEndpoint

			return nil
		}

		for _, existing := range s.edges {
			if existing.SameConnection(e) {
				result.Reason = ReasonDuplicate

				return nil
			}
		}

		if s.gate != nil {
			if ok, reason := s.gate.AllowConnection(s.nodes[si], s.nodes[ti], e); !ok {
				if reason == "" {
					reason = ReasonIncompatible
				}

				result.Reason = reason

				return nil
			}
		}

		if HasCycle(s.edges, e) {
			result.Reason = ReasonCycle
			s.appendError(e.Source, models.NodeError{
				Message:  fmt.Sprintf("%s: %s → %s", ReasonCycle, e.Source, e.Target),
				Severity: models.SeverityWarning,
				Source:   ConnectSource,
			})

			return []Change{{Kind: ChangeErrors, IDs: []string{e.Source}}}
		}

		if e.ID == "" || s.edgeIndex(e.ID) >= 0 {
			e.ID = s.edgeID(e)
		}

		s.edges = append(s.edges, e)
		result.Accepted = true
		result.Edge = e.Clone()

		return []Change{{Kind: ChangeEdges, IDs: []string{e.ID}}}
	})

	if !result.Accepted {
		s.logger.Debug("Connection rejected",
			"source", result.Edge.Source,
			"target", result.Edge.Target,
			"reason", result.Reason)
	}

	return result
}

func (s *Store) endpointsExist(e models.Edge) bool {
	return s.nodeIndex(e.Source) >= 0 && s.nodeIndex(e.Target) >= 0
}

// edgeID derives a readable id from the endpoints, falling back to the id
// generator when that id is taken.
func (s *Store) edgeID(e models.Edge) string {
	id := fmt.Sprintf("e-%s-%s-%s-%s",
		e.Source, models.HandleValue(e.SourceHandle),
		e.Target, models.HandleValue(e.TargetHandle))

	if s.edgeIndex(id) < 0 {
		return id
	}

	return s.freshEdgeID()
}

// HasCycle reports whether adding candidate to edges would create a directed
// cycle. It runs a depth-first search from every node, tracking the current
// recursion stack; reaching a node already on the stack means a cycle.
func HasCycle(edges []models.Edge, candidate models.Edge) bool {
	adjacency := make(map[string][]string, len(edges)+1)
	var order []string

	add := func(e models.Edge) {
		if _, ok := adjacency[e.Source]; !ok {
			order = append(order, e.Source)
		}

		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
	}

	for _, e := range edges {
		add(e)
	}

	add(candidate)

	visited := make(map[string]bool, len(adjacency))
	onStack := make(map[string]bool)

	var visit func(id string) bool
	visit = func(id string) bool {
		if onStack[id] {
			return true
		}

		if visited[id] {
			return false
		}

		visited[id] = true
		onStack[id] = true

		for _, next := range adjacency[id] {
			if visit(next) {
				return true
			}
		}

		onStack[id] = false

		return false
	}

	for _, id := range order {
		if !visited[id] && visit(id) {
			return true
		}
	}

	return false
}
