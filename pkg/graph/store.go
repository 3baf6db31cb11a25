// Package graph holds the canonical in-memory flow graph of the editor and
// every structural mutation applied to it.
package graph

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dukex/flowcanvas/pkg/models"
)

const (
	DefaultErrorLogCapacity = 10
)

// DefaultPasteOffset is the translation applied to pasted nodes when no
// target point is given.
var DefaultPasteOffset = models.Position{X: 40, Y: 40}

// ChangeKind classifies a store mutation for listeners.
type ChangeKind string

const (
	ChangeNodes     ChangeKind = "nodes"
	ChangeEdges     ChangeKind = "edges"
	ChangeSelection ChangeKind = "selection"
	ChangeErrors    ChangeKind = "errors"
	ChangeReset     ChangeKind = "reset"
	ChangeReplace   ChangeKind = "replace"
)

// Change describes one mutation. IDs lists the affected node or edge ids
// when the mutation is local to them.
type Change struct {
	Kind    ChangeKind
	IDs     []string
	Version uint64
}

// Structural reports whether the change can alter the persisted graph.
func (c Change) Structural() bool {
	switch c.Kind {
	case ChangeNodes, ChangeEdges, ChangeReset, ChangeReplace:
		return true
	default:
		return false
	}
}

// Listener is called after a mutation, outside the store lock.
type Listener func(Change)

// Selection is the single selected node or edge. At most one is set.
type Selection struct {
	NodeID string `json:"nodeId,omitempty"`
	EdgeID string `json:"edgeId,omitempty"`
}

// ConnectionGate decides whether a user-drawn connection may be created.
// It is called with the store lock held and must not call back into the store.
type ConnectionGate interface {
	AllowConnection(source, target models.Node, edge models.Edge) (bool, string)
}

type Options struct {
	Logger           *slog.Logger
	IDs              IDGenerator
	Releaser         ResourceReleaser
	Gate             ConnectionGate
	Clock            func() time.Time
	ErrorLogCapacity int
	PasteOffset      *models.Position
}

type listenerEntry struct {
	id int
	fn Listener
}

// Store is the single owned mutable graph. Every exported method is atomic
// with respect to the others.
type Store struct {
	logger   *slog.Logger
	ids      IDGenerator
	releaser ResourceReleaser
	gate     ConnectionGate
	clock    func() time.Time
	errCap   int
	offset   models.Position

	mu        sync.RWMutex
	nodes     []models.Node
	edges     []models.Edge
	selection Selection
	errors    map[string]*errorRing
	clipboard clipboard
	version   uint64

	listenersMu sync.Mutex
	listeners   []listenerEntry
	nextID      int
}

// NewStore creates an empty store.
func NewStore(opts Options) *Store {
	s := &Store{
		logger:   opts.Logger,
		ids:      opts.IDs,
		releaser: opts.Releaser,
		gate:     opts.Gate,
		clock:    opts.Clock,
		errCap:   opts.ErrorLogCapacity,
		offset:   DefaultPasteOffset,
		errors:   make(map[string]*errorRing),
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	if s.ids == nil {
		s.ids = UUIDGenerator{}
	}

	if s.releaser == nil {
		s.releaser = NopReleaser{}
	}

	if s.clock == nil {
		s.clock = time.Now
	}

	if s.errCap <= 0 {
		s.errCap = DefaultErrorLogCapacity
	}

	if opts.PasteOffset != nil {
		s.offset = *opts.PasteOffset
	}

	s.nodes = []models.Node{}
	s.edges = []models.Edge{}

	return s
}

// SetGate replaces the connection gate. A nil gate accepts every connection
// that passes the structural checks.
func (s *Store) SetGate(gate ConnectionGate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gate = gate
}

// Subscribe registers a listener and returns a function removing it.
func (s *Store) Subscribe(fn Listener) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})

	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()

		s.listeners = slices.DeleteFunc(s.listeners, func(e listenerEntry) bool {
			return e.id == id
		})
	}
}

// NewID returns a fresh id from the store's generator.
func (s *Store) NewID() string {
	return s.ids.NewID()
}

// Version increases with every mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.version
}

// Snapshot returns a deep copy of the current nodes and edges.
func (s *Store) Snapshot() *models.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return (&models.Graph{Nodes: s.nodes, Edges: s.edges}).Clone()
}

// Nodes returns a copy of the current nodes.
func (s *Store) Nodes() []models.Node {
	return s.Snapshot().Nodes
}

// Edges returns a copy of the current edges.
func (s *Store) Edges() []models.Edge {
	return s.Snapshot().Edges
}

// Node returns a copy of the node with the given id.
func (s *Store) Node(id string) (models.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.nodeIndex(id)
	if i < 0 {
		return models.Node{}, false
	}

	return s.nodes[i].Clone(), true
}

// Edge returns a copy of the edge with the given id.
func (s *Store) Edge(id string) (models.Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.edgeIndex(id)
	if i < 0 {
		return models.Edge{}, false
	}

	return s.edges[i].Clone(), true
}

// Replace overwrites nodes and edges with graph. Selection and node errors
// are cleared. Duplicate node ids and edges with a missing endpoint are
// dropped so the loaded graph satisfies the store invariants.
func (s *Store) Replace(graph *models.Graph) {
	g := graph.Clone()

	s.mutate(func() []Change {
		s.nodes = make([]models.Node, 0, len(g.Nodes))
		seen := make(map[string]bool, len(g.Nodes))

		for _, n := range g.Nodes {
			if seen[n.ID] {
				s.logger.Warn("Dropping node with duplicate id", "node_id", n.ID)

				continue
			}

			seen[n.ID] = true
			s.nodes = append(s.nodes, n)
		}

		s.edges = make([]models.Edge, 0, len(g.Edges))
		edgeIDs := make(map[string]bool, len(g.Edges))

		for _, e := range g.Edges {
			if !seen[e.Source] || !seen[e.Target] || edgeIDs[e.ID] {
				s.logger.Warn("Dropping invalid edge", "edge_id", e.ID, "source", e.Source, "target", e.Target)

				continue
			}

			edgeIDs[e.ID] = true
			s.edges = append(s.edges, e)
		}

		s.selection = Selection{}
		s.errors = make(map[string]*errorRing)

		return []Change{{Kind: ChangeReplace}}
	})
}

// ResetFlow replaces the state with an empty graph. The clipboard survives
// so nodes can be pasted into another flow.
func (s *Store) ResetFlow() {
	s.mutate(func() []Change {
		s.reset()

		return []Change{{Kind: ChangeReset}}
	})
}

// ForceReset releases every per-node resource before resetting. It is the
// recovery path for stuck states.
func (s *Store) ForceReset() {
	s.logger.Warn("Force resetting flow state")
	s.releaser.ReleaseAll()
	s.ResetFlow()
}

func (s *Store) reset() {
	s.nodes = []models.Node{}
	s.edges = []models.Edge{}
	s.selection = Selection{}
	s.errors = make(map[string]*errorRing)
}

// mutate runs fn under the write lock and delivers the returned changes to
// listeners once the lock is released.
func (s *Store) mutate(fn func() []Change) {
	s.mu.Lock()
	changes := fn()

	if len(changes) > 0 {
		s.version++
		for i := range changes {
			changes[i].Version = s.version
		}
	}
	s.mu.Unlock()

	if len(changes) == 0 {
		return
	}

	s.listenersMu.Lock()
	listeners := slices.Clone(s.listeners)
	s.listenersMu.Unlock()

	for _, change := range changes {
		for _, l := range listeners {
			l.fn(change)
		}
	}
}

func (s *Store) nodeIndex(id string) int {
	return slices.IndexFunc(s.nodes, func(n models.Node) bool { return n.ID == id })
}

func (s *Store) edgeIndex(id string) int {
	return slices.IndexFunc(s.edges, func(e models.Edge) bool { return e.ID == id })
}
