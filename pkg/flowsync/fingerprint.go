package flowsync

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/dukex/flowcanvas/pkg/models"
	"github.com/dukex/flowcanvas/pkg/sanitize"
)

var defaultSanitizer = sanitize.New(sanitize.DefaultLimits())

// Fingerprint digests the fields of a graph that autosave cares about: node
// id, type, position and sanitized data, and edge endpoints and handles. Map
// key order and keys the sanitizer strips do not affect the result.
func Fingerprint(graph *models.Graph, sanitizer *sanitize.Sanitizer) string {
	if sanitizer == nil {
		sanitizer = defaultSanitizer
	}

	return fingerprintSanitized(sanitizer.SanitizeGraph(graph))
}

// fingerprintSanitized expects a graph that already went through the
// sanitizer.
func fingerprintSanitized(graph *models.Graph) string {
	d := xxhash.New()

	write := func(parts ...string) {
		for _, p := range parts {
			_, _ = d.WriteString(p)
			_, _ = d.WriteString("\x1f")
		}

		_, _ = d.WriteString("\x1e")
	}

	for _, n := range graph.Nodes {
		// Sanitized data only holds JSON values, so encoding cannot fail.
		data, _ := json.Marshal(n.Data)
		write("n", n.ID, n.Type,
			strconv.FormatFloat(n.Position.X, 'g', -1, 64),
			strconv.FormatFloat(n.Position.Y, 'g', -1, 64),
			string(data))
	}

	for _, e := range graph.Edges {
		write("e", e.ID, e.Source, models.HandleValue(e.SourceHandle),
			e.Target, models.HandleValue(e.TargetHandle))
	}

	return fmt.Sprintf("%016x", d.Sum64())
}
