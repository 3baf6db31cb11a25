package flowsync_test

import (
	"testing"

	"github.com/dukex/flowcanvas/pkg/flowsync"
	"github.com/dukex/flowcanvas/pkg/models"
	"github.com/dukex/flowcanvas/pkg/sanitize"
	"github.com/stretchr/testify/assert"
)

func fingerprintGraph(data map[string]any) *models.Graph {
	return &models.Graph{
		Nodes: []models.Node{
			{ID: "a", Type: "httprequest", Position: models.Position{X: 1, Y: 2}, Data: data},
			{ID: "b", Type: "log"},
		},
		Edges: []models.Edge{{ID: "e1", Source: "a", Target: "b", SourceHandle: models.Handle("out")}},
	}
}

func TestFingerprint_Stability(t *testing.T) {
	s := sanitize.New(sanitize.DefaultLimits())

	base := flowsync.Fingerprint(fingerprintGraph(map[string]any{
		"url":    "https://example.com",
		"config": map[string]any{"method": "GET", "retries": 3},
	}), s)

	reordered := flowsync.Fingerprint(fingerprintGraph(map[string]any{
		"config": map[string]any{"retries": 3, "method": "GET"},
		"url":    "https://example.com",
	}), s)

	withStrippedKey := flowsync.Fingerprint(fingerprintGraph(map[string]any{
		"url":      "https://example.com",
		"config":   map[string]any{"method": "GET", "retries": 3, "logs": []any{"x"}},
		"response": map[string]any{"status": 200},
	}), s)

	selected := fingerprintGraph(map[string]any{
		"url":    "https://example.com",
		"config": map[string]any{"method": "GET", "retries": 3},
	})
	selected.Nodes[0].Selected = true

	assert.Len(t, base, 16)
	assert.Equal(t, base, reordered)
	assert.Equal(t, base, withStrippedKey)
	assert.Equal(t, base, flowsync.Fingerprint(selected, s))
	assert.Equal(t, base, flowsync.Fingerprint(fingerprintGraph(map[string]any{
		"url":    "https://example.com",
		"config": map[string]any{"method": "GET", "retries": 3},
	}), nil))
}

func TestFingerprint_DetectsChanges(t *testing.T) {
	data := func() map[string]any { return map[string]any{"url": "https://example.com"} }
	base := flowsync.Fingerprint(fingerprintGraph(data()), nil)

	moved := fingerprintGraph(data())
	moved.Nodes[0].Position.X = 3

	retyped := fingerprintGraph(data())
	retyped.Nodes[1].Type = "transform"

	rewired := fingerprintGraph(data())
	rewired.Edges[0].TargetHandle = models.Handle("in")

	noEdges := fingerprintGraph(data())
	noEdges.Edges = nil

	for name, g := range map[string]*models.Graph{
		"position": moved,
		"type":     retyped,
		"handle":   rewired,
		"edges":    noEdges,
		"data":     fingerprintGraph(map[string]any{"url": "https://other.example.com"}),
	} {
		assert.NotEqual(t, base, flowsync.Fingerprint(g, nil), name)
	}
}

func TestFingerprint_EmptyGraph(t *testing.T) {
	assert.Equal(t,
		flowsync.Fingerprint(&models.Graph{}, nil),
		flowsync.Fingerprint(nil, nil))
}
