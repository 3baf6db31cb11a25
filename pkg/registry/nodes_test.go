package registry

import (
	"log/slog"
	"testing"

	"github.com/dukex/flowcanvas/pkg/datatype"
	"github.com/dukex/flowcanvas/pkg/models"
)

func TestRegisterDefaultNodes(t *testing.T) {
	registry := NewRegistry(slog.Default())

	registry.RegisterDefaultNodes()

	expectedNodes := []string{
		"conditional",
		"httprequest",
		"log",
		"note",
		"number",
		"text",
		"toggle",
		"transform",
		"trigger:scheduler",
		"trigger:webhook",
	}

	types := registry.Types()
	if len(types) != len(expectedNodes) {
		t.Fatalf("Expected %d node types, got %d", len(expectedNodes), len(types))
	}

	for i, expectedType := range expectedNodes {
		if types[i] != expectedType {
			t.Errorf("Expected node type '%s' at %d, got '%s'", expectedType, i, types[i])
		}
	}
}

func TestDefaultSchemas_HandlesResolve(t *testing.T) {
	registry := NewRegistry(slog.Default())
	registry.RegisterDefaultNodes()

	code, ok := registry.ResolveHandle(NodeTypeToggle, models.Handle("state"), models.HandleDirectionSource)
	if !ok || code != datatype.Boolean {
		t.Errorf("Expected toggle state to be boolean, got %q (ok=%v)", code, ok)
	}

	code, ok = registry.ResolveHandle(NodeTypeNumber, models.Handle("value"), models.HandleDirectionTarget)
	if !ok || code != datatype.Number {
		t.Errorf("Expected number input to be number, got %q (ok=%v)", code, ok)
	}

	code, ok = registry.ResolveHandle(NodeTypeTransform, nil, models.HandleDirectionTarget)
	if !ok || code != datatype.Any {
		t.Errorf("Expected transform default input to be any, got %q (ok=%v)", code, ok)
	}
}
