package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/dukex/flowcanvas/pkg/connection"
	"github.com/dukex/flowcanvas/pkg/eventbus"
	"github.com/dukex/flowcanvas/pkg/flowsync"
	"github.com/dukex/flowcanvas/pkg/graph"
	"github.com/dukex/flowcanvas/pkg/log"
	"github.com/dukex/flowcanvas/pkg/models"
	"github.com/dukex/flowcanvas/pkg/persistence"
	"github.com/dukex/flowcanvas/pkg/registry"
)

// CreateNodeRequest represents the request to add a node to the open flow.
type CreateNodeRequest struct {
	ID       string
	Type     string
	Position models.Position
	Data     map[string]any
}

// EdgeRequest describes an edge between two handles.
type EdgeRequest struct {
	ID           string
	Source       string
	SourceHandle *string
	Target       string
	TargetHandle *string
	Style        map[string]string
}

func (r EdgeRequest) edge() models.Edge {
	return models.Edge{
		ID:           r.ID,
		Source:       r.Source,
		SourceHandle: r.SourceHandle,
		Target:       r.Target,
		TargetHandle: r.TargetHandle,
		Style:        maps.Clone(r.Style),
	}
}

// GraphView is the open flow as shown on the canvas.
type GraphView struct {
	FlowID    string          `json:"flowId"`
	Nodes     []models.Node   `json:"nodes"`
	Edges     []models.Edge   `json:"edges"`
	Selection graph.Selection `json:"selection"`
	Status    flowsync.Status `json:"status"`
}

type EditorOptions struct {
	Store         *graph.Store
	Registry      *registry.Registry
	Validator     *connection.Validator
	Notifications *connection.MemorySink
	Orchestrator  *flowsync.Orchestrator
	Remote        persistence.RemoteStore
	Releaser      *eventbus.Releaser
	Logger        *slog.Logger
}

// Editor is the editing session of one user: a single open flow backed by
// the graph store and kept in sync by the orchestrator.
type Editor struct {
	store         *graph.Store
	registry      *registry.Registry
	validator     *connection.Validator
	notifications *connection.MemorySink
	orchestrator  *flowsync.Orchestrator
	remote        persistence.RemoteStore
	releaser      *eventbus.Releaser
	logger        *slog.Logger
}

func NewEditor(opts EditorOptions) *Editor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Editor{
		store:         opts.Store,
		registry:      opts.Registry,
		validator:     opts.Validator,
		notifications: opts.Notifications,
		orchestrator:  opts.Orchestrator,
		remote:        opts.Remote,
		releaser:      opts.Releaser,
		logger:        logger.With("module", "editor"),
	}
}

// HealthCheck checks the health of the remote store.
func (e *Editor) HealthCheck(ctx context.Context) (string, bool) {
	if e.remote == nil {
		return "Remote store not initialized", false
	}

	if err := e.remote.HealthCheck(ctx); err != nil {
		return "Remote store is unhealthy: " + err.Error(), false
	}

	return "Remote store is healthy", true
}

// OpenFlow switches the session to flowID and loads it.
func (e *Editor) OpenFlow(ctx context.Context, flowID string) (flowsync.Status, error) {
	if e.releaser != nil {
		e.releaser.SetFlow(flowID)
	}

	err := e.orchestrator.SwitchFlow(ctx, flowID)
	if errors.Is(err, persistence.ErrInvalidFlowID) {
		return e.orchestrator.Status(), NewServiceError("OpenFlow", "INVALID_FLOW_ID", err.Error(), ErrInvalidRequest)
	}

	if err != nil {
		return e.orchestrator.Status(), fmt.Errorf("failed to open flow: %w", err)
	}

	return e.orchestrator.Status(), nil
}

// CurrentGraph returns the open flow's graph once it is loaded.
func (e *Editor) CurrentGraph() (string, *models.Graph, bool) {
	status := e.orchestrator.Status()
	if status.State != flowsync.StateLoaded {
		return "", nil, false
	}

	return status.FlowID, e.store.Snapshot(), true
}

func (e *Editor) Status() flowsync.Status {
	return e.orchestrator.Status()
}

func (e *Editor) Notifications() []connection.Notification {
	if e.notifications == nil {
		return []connection.Notification{}
	}

	return e.notifications.List()
}

func (e *Editor) Graph(flowID string) (*GraphView, error) {
	status, err := e.requireFlow(flowID)
	if err != nil {
		return nil, err
	}

	g := e.store.Snapshot()

	return &GraphView{
		FlowID:    flowID,
		Nodes:     g.Nodes,
		Edges:     g.Edges,
		Selection: e.store.Selection(),
		Status:    status,
	}, nil
}

// CreateNode adds a node. An empty id is generated; known node types have
// their data checked against the type's config schema.
func (e *Editor) CreateNode(flowID string, req CreateNodeRequest) (models.Node, error) {
	if _, err := e.requireFlow(flowID); err != nil {
		return models.Node{}, err
	}

	if req.Type == "" {
		return models.Node{}, NewServiceError("CreateNode", "TYPE_REQUIRED", "node type is required", ErrInvalidRequest)
	}

	if err := e.validateData(req.Type, req.Data); err != nil {
		return models.Node{}, err
	}

	node := models.Node{
		ID:       req.ID,
		Type:     req.Type,
		Position: req.Position,
		Data:     models.CloneData(req.Data),
	}

	if node.ID == "" {
		node.ID = e.store.NewID()
	}

	if !e.store.AddNode(node) {
		return models.Node{}, NewServiceError("CreateNode", "NODE_ID_TAKEN",
			fmt.Sprintf("node id %s is already in use", node.ID), ErrNodeIDTaken)
	}

	created, _ := e.store.Node(node.ID)

	return created, nil
}

func (e *Editor) DeleteNode(flowID, nodeID string) error {
	if _, err := e.requireFlow(flowID); err != nil {
		return err
	}

	if !e.store.RemoveNode(nodeID) {
		return ErrNodeNotFound
	}

	e.logger.Debug("Node removed", log.FlowID(flowID), log.NodeID(nodeID))

	return nil
}

// UpdateNodeData merges patch into the node's data and reports whether
// anything changed.
func (e *Editor) UpdateNodeData(flowID, nodeID string, patch map[string]any) (models.Node, bool, error) {
	if _, err := e.requireFlow(flowID); err != nil {
		return models.Node{}, false, err
	}

	node, ok := e.store.Node(nodeID)
	if !ok {
		return models.Node{}, false, ErrNodeNotFound
	}

	merged := models.CloneData(node.Data)
	if merged == nil {
		merged = map[string]any{}
	}

	maps.Copy(merged, patch)

	if err := e.validateData(node.Type, merged); err != nil {
		return models.Node{}, false, err
	}

	changed := e.store.UpdateNodeData(nodeID, patch)
	node, _ = e.store.Node(nodeID)

	return node, changed, nil
}

func (e *Editor) MoveNode(flowID, nodeID string, pos models.Position) (bool, error) {
	if _, err := e.requireFlow(flowID); err != nil {
		return false, err
	}

	if _, ok := e.store.Node(nodeID); !ok {
		return false, ErrNodeNotFound
	}

	return e.store.UpdateNodePosition(nodeID, pos), nil
}

func (e *Editor) RenameNode(flowID, oldID, newID string) error {
	if _, err := e.requireFlow(flowID); err != nil {
		return err
	}

	if newID == "" {
		return NewServiceError("RenameNode", "ID_REQUIRED", "new node id is required", ErrInvalidRequest)
	}

	if _, ok := e.store.Node(oldID); !ok {
		return ErrNodeNotFound
	}

	if !e.store.UpdateNodeID(oldID, newID) {
		return NewServiceError("RenameNode", "NODE_ID_TAKEN",
			fmt.Sprintf("node id %s is already in use", newID), ErrNodeIDTaken)
	}

	return nil
}

func (e *Editor) NodeErrors(flowID, nodeID string) ([]models.NodeError, error) {
	if _, err := e.requireFlow(flowID); err != nil {
		return nil, err
	}

	if _, ok := e.store.Node(nodeID); !ok {
		return nil, ErrNodeNotFound
	}

	errs := e.store.NodeErrors(nodeID)
	if errs == nil {
		errs = []models.NodeError{}
	}

	return errs, nil
}

func (e *Editor) ClearNodeErrors(flowID, nodeID string) error {
	if _, err := e.requireFlow(flowID); err != nil {
		return err
	}

	if _, ok := e.store.Node(nodeID); !ok {
		return ErrNodeNotFound
	}

	e.store.ClearNodeErrors(nodeID)

	return nil
}

// AddEdge inserts an edge without the connection checks.
func (e *Editor) AddEdge(flowID string, req EdgeRequest) (models.Edge, error) {
	if _, err := e.requireFlow(flowID); err != nil {
		return models.Edge{}, err
	}

	edge := req.edge()
	if edge.ID == "" {
		edge.ID = "e-" + e.store.NewID()
	}

	if !e.store.AddEdge(edge) {
		return models.Edge{}, NewServiceError("AddEdge", "INVALID_EDGE",
			"edge endpoints must exist and its id must be unused", ErrInvalidEdge)
	}

	added, _ := e.store.Edge(edge.ID)

	return added, nil
}

func (e *Editor) DeleteEdge(flowID, edgeID string) error {
	if _, err := e.requireFlow(flowID); err != nil {
		return err
	}

	if !e.store.RemoveEdge(edgeID) {
		return ErrEdgeNotFound
	}

	return nil
}

// Connect is the checked path for a user-drawn connection.
func (e *Editor) Connect(flowID string, req EdgeRequest) (graph.ConnectResult, error) {
	if _, err := e.requireFlow(flowID); err != nil {
		return graph.ConnectResult{}, err
	}

	result := e.store.Connect(req.edge())
	if !result.Accepted {
		return result, NewServiceError("Connect", "CONNECTION_REJECTED", result.Reason, ErrConnectionRejected)
	}

	return result, nil
}

// EvaluateConnection reports whether a connection would pass the type check
// without creating it.
func (e *Editor) EvaluateConnection(flowID string, req EdgeRequest) (connection.Result, error) {
	if _, err := e.requireFlow(flowID); err != nil {
		return connection.Result{}, err
	}

	source, ok := e.store.Node(req.Source)
	if !ok {
		return connection.Result{}, ErrNodeNotFound
	}

	target, ok := e.store.Node(req.Target)
	if !ok {
		return connection.Result{}, ErrNodeNotFound
	}

	return e.validator.Check(source, target, req.edge()), nil
}

// Highlights evaluates a dragged source handle against every target handle
// of the open flow.
func (e *Editor) Highlights(flowID, nodeID string, handle *string) ([]connection.TargetHighlight, error) {
	if _, err := e.requireFlow(flowID); err != nil {
		return nil, err
	}

	source, ok := e.store.Node(nodeID)
	if !ok {
		return nil, ErrNodeNotFound
	}

	out := e.validator.Highlights(source, handle, e.store.Nodes(), e.registry)
	if out == nil {
		out = []connection.TargetHighlight{}
	}

	return out, nil
}

// Select selects a node or an edge. Empty ids clear the selection.
func (e *Editor) Select(flowID, nodeID, edgeID string) (graph.Selection, error) {
	if _, err := e.requireFlow(flowID); err != nil {
		return graph.Selection{}, err
	}

	switch {
	case nodeID != "":
		if !e.store.SelectNode(nodeID) {
			return graph.Selection{}, ErrNodeNotFound
		}
	case edgeID != "":
		if !e.store.SelectEdge(edgeID) {
			return graph.Selection{}, ErrEdgeNotFound
		}
	default:
		e.store.ClearSelection()
	}

	return e.store.Selection(), nil
}

// Copy copies nodeIDs, or the current selection when none are given.
func (e *Editor) Copy(flowID string, nodeIDs []string) (int, error) {
	if _, err := e.requireFlow(flowID); err != nil {
		return 0, err
	}

	if len(nodeIDs) > 0 {
		for _, id := range nodeIDs {
			if _, ok := e.store.Node(id); !ok {
				return 0, ErrNodeNotFound
			}
		}

		e.store.ClearSelection()

		for _, id := range nodeIDs {
			e.store.SetNodeSelected(id, true)
		}
	}

	copied := e.store.CopySelectedNodes()
	if copied == 0 {
		return 0, ErrEmptySelection
	}

	return copied, nil
}

// Paste inserts the clipboard centered on at, or shifted by offset. With
// neither, the default offset applies.
func (e *Editor) Paste(flowID string, at, offset *models.Position) ([]string, error) {
	if _, err := e.requireFlow(flowID); err != nil {
		return nil, err
	}

	var pasted []string

	if at == nil && offset != nil {
		pasted = e.store.PasteNodes(*offset)
	} else {
		pasted = e.store.PasteNodesAtPosition(at)
	}

	if len(pasted) == 0 {
		return nil, ErrEmptyClipboard
	}

	return pasted, nil
}

// Save saves the open flow now.
func (e *Editor) Save(ctx context.Context, flowID string) (flowsync.Status, error) {
	if _, err := e.requireFlow(flowID); err != nil {
		return flowsync.Status{}, err
	}

	err := e.orchestrator.Save(ctx)
	if flowsync.IsSaveBlocked(err) {
		return e.orchestrator.Status(), NewServiceError("Save", "SAVE_BLOCKED", err.Error(), ErrSaveBlocked)
	}

	if err != nil {
		return e.orchestrator.Status(), err
	}

	return e.orchestrator.Status(), nil
}

// Reset empties the open flow. A forced reset also releases every per-node
// resource first.
func (e *Editor) Reset(flowID string, force bool) error {
	if _, err := e.requireFlow(flowID); err != nil {
		return err
	}

	if force {
		e.store.ForceReset()
	} else {
		e.store.ResetFlow()
	}

	return nil
}

func (e *Editor) requireFlow(flowID string) (flowsync.Status, error) {
	status := e.orchestrator.Status()
	if flowID == "" || status.FlowID != flowID {
		return status, NewServiceError("requireFlow", "FLOW_NOT_OPEN",
			fmt.Sprintf("flow %s is not open", flowID), ErrFlowNotOpen)
	}

	return status, nil
}

func (e *Editor) validateData(nodeType string, data map[string]any) error {
	if e.registry == nil {
		return nil
	}

	if data == nil {
		data = map[string]any{}
	}

	if err := e.registry.ValidateConfig(nodeType, data); err != nil {
		return NewServiceError("validateData", "INVALID_NODE_DATA", err.Error(), ErrInvalidNodeData)
	}

	return nil
}
