package graph

import (
	"github.com/dukex/flowcanvas/pkg/models"
)

// errorRing keeps the most recent entries up to a fixed capacity.
type errorRing struct {
	entries []models.NodeError
	start   int
	size    int
}

func newErrorRing(capacity int) *errorRing {
	return &errorRing{entries: make([]models.NodeError, capacity)}
}

func (r *errorRing) push(e models.NodeError) {
	capacity := len(r.entries)

	if r.size < capacity {
		r.entries[(r.start+r.size)%capacity] = e
		r.size++

		return
	}

	r.entries[r.start] = e
	r.start = (r.start + 1) % capacity
}

// items returns the entries oldest first.
func (r *errorRing) items() []models.NodeError {
	out := make([]models.NodeError, r.size)
	for i := range r.size {
		out[i] = r.entries[(r.start+i)%len(r.entries)]
	}

	return out
}

// LogNodeError files a diagnostic under a node. Unknown nodes are ignored.
func (s *Store) LogNodeError(nodeID, message string, severity models.Severity, source string) bool {
	logged := false

	s.mutate(func() []Change {
		if s.nodeIndex(nodeID) < 0 {
			return nil
		}

		if !severity.Valid() {
			severity = models.SeverityError
		}

		s.appendError(nodeID, models.NodeError{Message: message, Severity: severity, Source: source})
		logged = true

		return []Change{{Kind: ChangeErrors, IDs: []string{nodeID}}}
	})

	return logged
}

// ClearNodeErrors drops every diagnostic filed under a node.
func (s *Store) ClearNodeErrors(nodeID string) {
	s.mutate(func() []Change {
		if _, ok := s.errors[nodeID]; !ok {
			return nil
		}

		delete(s.errors, nodeID)

		return []Change{{Kind: ChangeErrors, IDs: []string{nodeID}}}
	})
}

// NodeErrors returns a node's diagnostics, oldest first.
func (s *Store) NodeErrors(nodeID string) []models.NodeError {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring, ok := s.errors[nodeID]
	if !ok {
		return nil
	}

	return ring.items()
}

// HasNodeErrors reports whether a bucket exists for the node.
func (s *Store) HasNodeErrors(nodeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.errors[nodeID]

	return ok
}

func (s *Store) appendError(nodeID string, e models.NodeError) {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.clock()
	}

	ring, ok := s.errors[nodeID]
	if !ok {
		ring = newErrorRing(s.errCap)
		s.errors[nodeID] = ring
	}

	ring.push(e)
}
