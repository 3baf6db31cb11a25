// Package web provides the HTTP handlers of the flow editor API.
package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/dukex/flowcanvas/pkg/models"
	"github.com/dukex/flowcanvas/pkg/registry"
	"github.com/dukex/flowcanvas/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

var errInvalidJSON = errors.New("invalid JSON format")

type APIHandlers struct {
	editor    *services.Editor
	validator *validator.Validate
	registry  *registry.Registry
}

func NewAPIHandlers(
	editor *services.Editor,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		editor:    editor,
		validator: validator,
		registry:  registry,
	}
}

// Register mounts the flow routes on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/node-types", h.GetNodeTypes)

	f := router.Group("/flows/:flowId")
	f.Put("/open", h.OpenFlow)
	f.Get("/graph", h.GetGraph)
	f.Get("/status", h.GetStatus)
	f.Get("/notifications", h.GetNotifications)

	f.Post("/nodes", h.CreateNode)
	f.Delete("/nodes/:nodeId", h.DeleteNode)
	f.Patch("/nodes/:nodeId/data", h.UpdateNodeData)
	f.Patch("/nodes/:nodeId/position", h.MoveNode)
	f.Post("/nodes/:nodeId/rename", h.RenameNode)
	f.Get("/nodes/:nodeId/errors", h.GetNodeErrors)
	f.Delete("/nodes/:nodeId/errors", h.ClearNodeErrors)

	f.Post("/edges", h.CreateEdge)
	f.Delete("/edges/:edgeId", h.DeleteEdge)
	f.Post("/connect", h.Connect)
	f.Post("/connections/evaluate", h.EvaluateConnection)
	f.Post("/connections/highlights", h.Highlights)

	f.Post("/select", h.Select)
	f.Post("/copy", h.Copy)
	f.Post("/paste", h.Paste)
	f.Post("/save", h.Save)
	f.Post("/reset", h.Reset)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	remoteCheck, remoteOk := h.editor.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Flowcanvas API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && remoteOk {
		status = "healthy"
		message = "Flowcanvas API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry": registryCheck,
			"remote":   remoteCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetNodeTypes(c fiber.Ctx) error {
	types := h.registry.Types()
	schemas := make([]*registry.NodeSchema, 0, len(types))

	for _, t := range types {
		if schema, ok := h.registry.Schema(t); ok {
			schemas = append(schemas, schema)
		}
	}

	return c.JSON(schemas)
}

func (h *APIHandlers) OpenFlow(c fiber.Ctx) error {
	status, err := h.editor.OpenFlow(c.Context(), c.Params("flowId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(status)
}

func (h *APIHandlers) GetGraph(c fiber.Ctx) error {
	view, err := h.editor.Graph(c.Params("flowId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(view)
}

func (h *APIHandlers) GetStatus(c fiber.Ctx) error {
	status := h.editor.Status()
	if status.FlowID != c.Params("flowId") {
		return handleServiceError(c, services.ErrFlowNotOpen)
	}

	return c.JSON(status)
}

func (h *APIHandlers) GetNotifications(c fiber.Ctx) error {
	return c.JSON(h.editor.Notifications())
}

func (h *APIHandlers) CreateNode(c fiber.Ctx) error {
	var req CreateNodeRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	node, err := h.editor.CreateNode(c.Params("flowId"), services.CreateNodeRequest{
		ID:       req.ID,
		Type:     req.Type,
		Position: req.Position,
		Data:     req.Data,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(node)
}

func (h *APIHandlers) DeleteNode(c fiber.Ctx) error {
	if err := h.editor.DeleteNode(c.Params("flowId"), c.Params("nodeId")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) UpdateNodeData(c fiber.Ctx) error {
	var req UpdateNodeDataRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	node, changed, err := h.editor.UpdateNodeData(c.Params("flowId"), c.Params("nodeId"), req.Data)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"node": node, "changed": changed})
}

func (h *APIHandlers) MoveNode(c fiber.Ctx) error {
	var req MoveNodeRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	moved, err := h.editor.MoveNode(c.Params("flowId"), c.Params("nodeId"),
		models.Position{X: *req.X, Y: *req.Y})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"changed": moved})
}

func (h *APIHandlers) RenameNode(c fiber.Ctx) error {
	var req RenameNodeRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.editor.RenameNode(c.Params("flowId"), c.Params("nodeId"), req.ID); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"id": req.ID})
}

func (h *APIHandlers) GetNodeErrors(c fiber.Ctx) error {
	errs, err := h.editor.NodeErrors(c.Params("flowId"), c.Params("nodeId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(errs)
}

func (h *APIHandlers) ClearNodeErrors(c fiber.Ctx) error {
	if err := h.editor.ClearNodeErrors(c.Params("flowId"), c.Params("nodeId")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CreateEdge(c fiber.Ctx) error {
	var req EdgeRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	edge, err := h.editor.AddEdge(c.Params("flowId"), req.service())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(edge)
}

func (h *APIHandlers) DeleteEdge(c fiber.Ctx) error {
	if err := h.editor.DeleteEdge(c.Params("flowId"), c.Params("edgeId")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) Connect(c fiber.Ctx) error {
	var req EdgeRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.editor.Connect(c.Params("flowId"), req.service())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *APIHandlers) EvaluateConnection(c fiber.Ctx) error {
	var req EdgeRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.editor.EvaluateConnection(c.Params("flowId"), req.service())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) Highlights(c fiber.Ctx) error {
	var req HighlightsRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	highlights, err := h.editor.Highlights(c.Params("flowId"), req.NodeID, req.Handle)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(highlights)
}

func (h *APIHandlers) Select(c fiber.Ctx) error {
	var req SelectRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	selection, err := h.editor.Select(c.Params("flowId"), req.NodeID, req.EdgeID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(selection)
}

func (h *APIHandlers) Copy(c fiber.Ctx) error {
	var req CopyRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	copied, err := h.editor.Copy(c.Params("flowId"), req.NodeIDs)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"copied": copied})
}

func (h *APIHandlers) Paste(c fiber.Ctx) error {
	var req PasteRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	pasted, err := h.editor.Paste(c.Params("flowId"), req.Position, req.Offset)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"nodeIds": pasted})
}

func (h *APIHandlers) Save(c fiber.Ctx) error {
	status, err := h.editor.Save(c.Context(), c.Params("flowId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(status)
}

func (h *APIHandlers) Reset(c fiber.Ctx) error {
	var req ResetRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.editor.Reset(c.Params("flowId"), req.Force); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// bind decodes an optional JSON body into req and validates it.
func (h *APIHandlers) bind(c fiber.Ctx, req any) error {
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(req); err != nil {
			return errInvalidJSON
		}
	}

	return h.validator.Struct(req)
}

func (r EdgeRequest) service() services.EdgeRequest {
	return services.EdgeRequest{
		ID:           r.ID,
		Source:       r.Source,
		SourceHandle: r.SourceHandle,
		Target:       r.Target,
		TargetHandle: r.TargetHandle,
		Style:        r.Style,
	}
}
