package models

import "maps"

// EdgeStyle carries presentation-only attributes of an edge.
type EdgeStyle map[string]string

// Edge connects a source handle of one node to a target handle of another.
// A nil handle means the node's default handle.
type Edge struct {
	ID           string    `json:"id"                     validate:"required"`
	Source       string    `json:"source"                 validate:"required"`
	Target       string    `json:"target"                 validate:"required"`
	SourceHandle *string   `json:"sourceHandle,omitempty"`
	TargetHandle *string   `json:"targetHandle,omitempty"`
	Style        EdgeStyle `json:"style,omitempty"`
}

// Clone returns a copy of the edge that shares no pointers with the original.
func (e Edge) Clone() Edge {
	out := e
	out.SourceHandle = cloneHandle(e.SourceHandle)
	out.TargetHandle = cloneHandle(e.TargetHandle)
	out.Style = maps.Clone(e.Style)

	return out
}

// Touches reports whether the edge has nodeID as one of its endpoints.
func (e Edge) Touches(nodeID string) bool {
	return e.Source == nodeID || e.Target == nodeID
}

// SameConnection reports whether both edges join the same handles.
func (e Edge) SameConnection(other Edge) bool {
	return e.Source == other.Source &&
		e.Target == other.Target &&
		HandleValue(e.SourceHandle) == HandleValue(other.SourceHandle) &&
		HandleValue(e.TargetHandle) == HandleValue(other.TargetHandle)
}

// EdgePatch is a partial edge update. Nil fields are left untouched.
type EdgePatch struct {
	SourceHandle *string   `json:"sourceHandle,omitempty"`
	TargetHandle *string   `json:"targetHandle,omitempty"`
	Style        EdgeStyle `json:"style,omitempty"`
}

// Handle returns a pointer to a copy of id, for building edges inline.
func Handle(id string) *string {
	return &id
}

// HandleValue dereferences a handle id, returning "" for the default handle.
func HandleValue(h *string) string {
	if h == nil {
		return ""
	}

	return *h
}

func cloneHandle(h *string) *string {
	if h == nil {
		return nil
	}

	v := *h

	return &v
}
