package web

import "github.com/dukex/flowcanvas/pkg/models"

// CreateNodeRequest represents the request body for adding a node to the open flow.
type CreateNodeRequest struct {
	ID       string          `json:"id,omitempty"   validate:"omitempty,max=128"`
	Type     string          `json:"type"           validate:"required,max=128"`
	Position models.Position `json:"position"`
	Data     map[string]any  `json:"data,omitempty"`
}

// UpdateNodeDataRequest merges Data into the node's data.
type UpdateNodeDataRequest struct {
	Data map[string]any `json:"data" validate:"required"`
}

// MoveNodeRequest represents the request body for moving a node.
type MoveNodeRequest struct {
	X *float64 `json:"x" validate:"required"`
	Y *float64 `json:"y" validate:"required"`
}

// RenameNodeRequest represents the request body for changing a node id.
type RenameNodeRequest struct {
	ID string `json:"id" validate:"required,max=128"`
}

// EdgeRequest represents an edge between two node handles. It is used both to
// add edges and to draw or evaluate connections.
type EdgeRequest struct {
	ID           string            `json:"id,omitempty"`
	Source       string            `json:"source"                 validate:"required"`
	SourceHandle *string           `json:"sourceHandle,omitempty"`
	Target       string            `json:"target"                 validate:"required"`
	TargetHandle *string           `json:"targetHandle,omitempty"`
	Style        map[string]string `json:"style,omitempty"`
}

// CopyRequest copies NodeIDs, or the current selection when empty.
type CopyRequest struct {
	NodeIDs []string `json:"nodeIds,omitempty" validate:"omitempty,dive,required"`
}

// PasteRequest centers the pasted nodes on Position, or shifts them by Offset.
type PasteRequest struct {
	Position *models.Position `json:"position,omitempty"`
	Offset   *models.Position `json:"offset,omitempty"`
}

// ResetRequest empties the open flow. Force also releases per-node resources.
type ResetRequest struct {
	Force bool `json:"force"`
}

// SelectRequest selects a node or an edge; empty clears the selection.
type SelectRequest struct {
	NodeID string `json:"nodeId,omitempty" validate:"excluded_with=EdgeID"`
	EdgeID string `json:"edgeId,omitempty"`
}

// HighlightsRequest asks for the verdict of every target handle against a
// dragged source handle.
type HighlightsRequest struct {
	NodeID string  `json:"nodeId"           validate:"required"`
	Handle *string `json:"handle,omitempty"`
}
