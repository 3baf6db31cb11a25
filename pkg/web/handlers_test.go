package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/flowcanvas/pkg/connection"
	"github.com/dukex/flowcanvas/pkg/flowsync"
	"github.com/dukex/flowcanvas/pkg/graph"
	"github.com/dukex/flowcanvas/pkg/persistence/file"
	"github.com/dukex/flowcanvas/pkg/registry"
	"github.com/dukex/flowcanvas/pkg/services"
	"github.com/dukex/flowcanvas/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	remote := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(nil)
	reg.RegisterDefaultNodes()

	typeValidator := connection.NewValidator(reg, false)
	sink := connection.NewMemorySink(10)
	feedback := connection.NewFeedback(sink, time.Minute, nil)

	store := graph.NewStore(graph.Options{Gate: connection.NewGate(typeValidator, feedback)})
	orchestrator := flowsync.New(flowsync.Options{
		Store:    store,
		Remote:   remote,
		Access:   flowsync.StaticAccess{User: "user-1"},
		Debounce: time.Hour,
	})
	t.Cleanup(orchestrator.Close)

	editor := services.NewEditor(services.EditorOptions{
		Store:         store,
		Registry:      reg,
		Validator:     typeValidator,
		Notifications: sink,
		Orchestrator:  orchestrator,
		Remote:        remote,
	})

	handlers := web.NewAPIHandlers(editor, validator.New(validator.WithRequiredStructEnabled()), reg)

	app := fiber.New()
	handlers.Register(app)

	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewBuffer(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, out
}

func openFlow(t *testing.T, app *fiber.App) {
	t.Helper()

	status, body := doRequest(t, app, http.MethodPut, "/flows/flow-1/open", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var st flowsync.Status
	require.NoError(t, json.Unmarshal(body, &st))
	require.Equal(t, flowsync.StateLoaded, st.State)
}

func problemType(t *testing.T, body []byte) string {
	t.Helper()

	var problem map[string]any
	require.NoError(t, json.Unmarshal(body, &problem))

	kind, _ := problem["type"].(string)

	return kind
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	status, body := doRequest(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"healthy"`)
}

func TestAPIHandlers_NodeTypes(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	status, body := doRequest(t, app, http.MethodGet, "/node-types", nil)
	require.Equal(t, http.StatusOK, status)

	var schemas []registry.NodeSchema
	require.NoError(t, json.Unmarshal(body, &schemas))
	assert.Len(t, schemas, len(registry.DefaultSchemas()))
}

func TestAPIHandlers_FlowNotOpen(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	status, body := doRequest(t, app, http.MethodGet, "/flows/flow-1/graph", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "flow_not_open", problemType(t, body))

	status, _ = doRequest(t, app, http.MethodGet, "/flows/flow-1/status", nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestAPIHandlers_CreateNode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		expectedType   string
	}{
		{
			name: "successful creation",
			requestBody: web.CreateNodeRequest{
				ID:   "req",
				Type: registry.NodeTypeHTTPRequest,
				Data: map[string]any{"method": "POST"},
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "validation error - missing type",
			requestBody:    web.CreateNodeRequest{ID: "x"},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name: "invalid node data",
			requestBody: web.CreateNodeRequest{
				Type: registry.NodeTypeHTTPRequest,
				Data: map[string]any{"method": "FETCH"},
			},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "invalid JSON",
			requestBody:    "invalid-json",
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app := setupTestApp(t)
			openFlow(t, app)

			status, body := doRequest(t, app, http.MethodPost, "/flows/flow-1/nodes", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, status, string(body))

			if tt.expectedType != "" {
				assert.Equal(t, tt.expectedType, problemType(t, body))
			}
		})
	}
}

func TestAPIHandlers_NodeLifecycle(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	openFlow(t, app)

	status, _ := doRequest(t, app, http.MethodPost, "/flows/flow-1/nodes",
		web.CreateNodeRequest{ID: "a", Type: registry.NodeTypeText})
	require.Equal(t, http.StatusCreated, status)

	status, _ = doRequest(t, app, http.MethodPost, "/flows/flow-1/nodes",
		web.CreateNodeRequest{ID: "a", Type: registry.NodeTypeText})
	assert.Equal(t, http.StatusConflict, status)

	status, body := doRequest(t, app, http.MethodPatch, "/flows/flow-1/nodes/a/data",
		web.UpdateNodeDataRequest{Data: map[string]any{"label": "hi"}})
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"changed":true`)

	status, _ = doRequest(t, app, http.MethodPatch, "/flows/flow-1/nodes/a/position", map[string]any{"x": 3})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doRequest(t, app, http.MethodPatch, "/flows/flow-1/nodes/a/position", map[string]any{"x": 3, "y": 4})
	assert.Equal(t, http.StatusOK, status)

	status, _ = doRequest(t, app, http.MethodPost, "/flows/flow-1/nodes/a/rename", web.RenameNodeRequest{ID: "b"})
	assert.Equal(t, http.StatusOK, status)

	status, body = doRequest(t, app, http.MethodGet, "/flows/flow-1/nodes/b/errors", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))

	status, _ = doRequest(t, app, http.MethodDelete, "/flows/flow-1/nodes/b/errors", nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = doRequest(t, app, http.MethodGet, "/flows/flow-1/graph", nil)
	require.Equal(t, http.StatusOK, status)

	var view services.GraphView
	require.NoError(t, json.Unmarshal(body, &view))
	require.Len(t, view.Nodes, 1)
	assert.Equal(t, "b", view.Nodes[0].ID)
	assert.Equal(t, "hi", view.Nodes[0].Data["label"])
	assert.InDelta(t, 4.0, view.Nodes[0].Position.Y, 0)

	status, _ = doRequest(t, app, http.MethodDelete, "/flows/flow-1/nodes/b", nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = doRequest(t, app, http.MethodDelete, "/flows/flow-1/nodes/b", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", problemType(t, body))
}

func TestAPIHandlers_Connections(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	openFlow(t, app)

	for id, typ := range map[string]string{
		"text": registry.NodeTypeText,
		"log":  registry.NodeTypeLog,
		"cond": registry.NodeTypeConditional,
	} {
		status, _ := doRequest(t, app, http.MethodPost, "/flows/flow-1/nodes", web.CreateNodeRequest{ID: id, Type: typ})
		require.Equal(t, http.StatusCreated, status)
	}

	handle := func(s string) *string { return &s }

	status, body := doRequest(t, app, http.MethodPost, "/flows/flow-1/connections/evaluate", web.EdgeRequest{
		Source: "text", SourceHandle: handle("text"),
		Target: "cond", TargetHandle: handle("condition"),
	})
	require.Equal(t, http.StatusOK, status)

	var result connection.Result
	require.NoError(t, json.Unmarshal(body, &result))
	assert.False(t, result.Allowed)
	assert.NotEmpty(t, result.Reason)

	status, body = doRequest(t, app, http.MethodPost, "/flows/flow-1/connect", web.EdgeRequest{
		Source: "text", SourceHandle: handle("text"),
		Target: "cond", TargetHandle: handle("condition"),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "connection_rejected", problemType(t, body))

	status, body = doRequest(t, app, http.MethodGet, "/flows/flow-1/notifications", nil)
	require.Equal(t, http.StatusOK, status)

	var notes []connection.Notification
	require.NoError(t, json.Unmarshal(body, &notes))
	assert.Len(t, notes, 1)

	status, body = doRequest(t, app, http.MethodPost, "/flows/flow-1/connect", web.EdgeRequest{
		Source: "text", SourceHandle: handle("text"),
		Target: "log", TargetHandle: handle("message"),
	})
	require.Equal(t, http.StatusCreated, status)

	var connected graph.ConnectResult
	require.NoError(t, json.Unmarshal(body, &connected))
	assert.True(t, connected.Accepted)

	status, _ = doRequest(t, app, http.MethodPost, "/flows/flow-1/connections/highlights",
		web.HighlightsRequest{NodeID: "text", Handle: handle("text")})
	assert.Equal(t, http.StatusOK, status)

	status, _ = doRequest(t, app, http.MethodDelete, "/flows/flow-1/edges/"+connected.Edge.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = doRequest(t, app, http.MethodPost, "/flows/flow-1/edges", web.EdgeRequest{Source: "text"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doRequest(t, app, http.MethodPost, "/flows/flow-1/edges", web.EdgeRequest{Source: "text", Target: "cond"})
	assert.Equal(t, http.StatusCreated, status)
}

func TestAPIHandlers_CopyPasteSaveReset(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	openFlow(t, app)

	status, body := doRequest(t, app, http.MethodPost, "/flows/flow-1/paste", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "rejected", problemType(t, body))

	status, _ = doRequest(t, app, http.MethodPost, "/flows/flow-1/nodes", web.CreateNodeRequest{ID: "a", Type: "custom"})
	require.Equal(t, http.StatusCreated, status)

	status, _ = doRequest(t, app, http.MethodPost, "/flows/flow-1/select", web.SelectRequest{NodeID: "a"})
	require.Equal(t, http.StatusOK, status)

	status, body = doRequest(t, app, http.MethodPost, "/flows/flow-1/copy", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"copied":1}`, string(body))

	status, _ = doRequest(t, app, http.MethodPost, "/flows/flow-1/paste", nil)
	require.Equal(t, http.StatusCreated, status)

	status, body = doRequest(t, app, http.MethodPost, "/flows/flow-1/save", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var st flowsync.Status
	require.NoError(t, json.Unmarshal(body, &st))
	assert.NotNil(t, st.LastSavedAt)
	assert.NotEmpty(t, st.Fingerprint)

	status, _ = doRequest(t, app, http.MethodPost, "/flows/flow-1/reset", web.ResetRequest{Force: true})
	assert.Equal(t, http.StatusNoContent, status)

	status, body = doRequest(t, app, http.MethodGet, "/flows/flow-1/graph", nil)
	require.Equal(t, http.StatusOK, status)

	var view services.GraphView
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Empty(t, view.Nodes)
}
