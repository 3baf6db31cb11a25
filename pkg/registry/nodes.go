package registry

import (
	"github.com/dukex/flowcanvas/pkg/datatype"
	"github.com/dukex/flowcanvas/pkg/models"
)

// Built-in node types.
const (
	NodeTypeTriggerWebhook   = "trigger:webhook"
	NodeTypeTriggerScheduler = "trigger:scheduler"
	NodeTypeHTTPRequest      = "httprequest"
	NodeTypeTransform        = "transform"
	NodeTypeConditional      = "conditional"
	NodeTypeLog              = "log"
	NodeTypeText             = "text"
	NodeTypeNumber           = "number"
	NodeTypeToggle           = "toggle"
	NodeTypeNote             = "note"
)

func source(id string, code datatype.Code) models.HandleSpec {
	return models.HandleSpec{ID: id, Direction: models.HandleDirectionSource, DataType: code}
}

func target(id string, code datatype.Code) models.HandleSpec {
	return models.HandleSpec{ID: id, Direction: models.HandleDirectionTarget, DataType: code}
}

// DefaultSchemas returns the schemas of the built-in node types.
func DefaultSchemas() []NodeSchema {
	return []NodeSchema{
		{
			Type:        NodeTypeTriggerWebhook,
			Name:        "Webhook Trigger",
			Description: "Starts the flow when an HTTP request arrives",
			Handles:     []models.HandleSpec{source("body", datatype.JSON), source("headers", datatype.JSON)},
		},
		{
			Type:        NodeTypeTriggerScheduler,
			Name:        "Scheduler Trigger",
			Description: "Starts the flow on a cron schedule",
			Handles:     []models.HandleSpec{source("tick", datatype.Number)},
			ConfigSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"cron_expression": map[string]any{"type": "string", "minLength": 1},
				},
			},
		},
		{
			Type:        NodeTypeHTTPRequest,
			Name:        "HTTP Request",
			Description: "Performs an HTTP request",
			Handles: []models.HandleSpec{
				target("url", datatype.String),
				target("body", datatype.JSON),
				source("response", datatype.JSON),
				source("status", datatype.Number),
			},
			ConfigSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"method": map[string]any{
						"type": "string",
						"enum": []any{"GET", "POST", "PUT", "PATCH", "DELETE"},
					},
					"url":     map[string]any{"type": "string"},
					"timeout": map[string]any{"type": "integer", "minimum": 0},
				},
			},
		},
		{
			Type:        NodeTypeTransform,
			Name:        "Transform",
			Description: "Reshapes its input",
			Handles:     []models.HandleSpec{target("input", datatype.Any), source("output", datatype.Any)},
		},
		{
			Type:        NodeTypeConditional,
			Name:        "Conditional",
			Description: "Routes on a boolean condition",
			Handles: []models.HandleSpec{
				target("condition", datatype.Boolean),
				target("value", datatype.Any),
				source("true", datatype.Any),
				source("false", datatype.Any),
			},
		},
		{
			Type:        NodeTypeLog,
			Name:        "Log",
			Description: "Writes its input to the flow log",
			Handles:     []models.HandleSpec{target("message", datatype.String)},
		},
		{
			Type:    NodeTypeText,
			Name:    "Text",
			Handles: []models.HandleSpec{source("text", datatype.String)},
		},
		{
			Type: NodeTypeNumber,
			Name: "Number",
			Handles: []models.HandleSpec{
				target("value", datatype.Number),
				source("value", datatype.Number),
			},
		},
		{
			Type:    NodeTypeToggle,
			Name:    "Toggle",
			Handles: []models.HandleSpec{source("state", datatype.Boolean)},
		},
		{
			Type: NodeTypeNote,
			Name: "Note",
		},
	}
}

// RegisterDefaultNodes registers all built-in node schemas.
func (r *Registry) RegisterDefaultNodes() {
	for _, schema := range DefaultSchemas() {
		if err := r.Register(schema); err != nil {
			r.logger.Error("Failed to register built-in node schema", "type", schema.Type, "error", err)
		}
	}
}
