// Package models defines the canvas graph model shared by the editor engine.
package models

import "maps"

// Position is a point on the canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns the position translated by the given offset.
func (p Position) Add(offset Position) Position {
	return Position{X: p.X + offset.X, Y: p.Y + offset.Y}
}

// Node is a typed node placed on the canvas.
type Node struct {
	ID       string         `json:"id"       validate:"required"`
	Type     string         `json:"type"     validate:"required"`
	Position Position       `json:"position"`
	Data     map[string]any `json:"data"`
	Selected bool           `json:"selected,omitempty"`
}

// Clone returns a copy of the node whose data map can be mutated independently.
func (n Node) Clone() Node {
	out := n
	out.Data = CloneData(n.Data)

	return out
}

// CloneData deep-copies maps and slices nested in node data. Other values are
// shared, which is fine for the JSON-shaped values nodes carry.
func CloneData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}

	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneData(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}

		return out
	case map[string]string:
		return maps.Clone(val)
	default:
		return v
	}
}
