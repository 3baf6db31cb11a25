package web

import (
	"errors"

	"github.com/dukex/flowcanvas/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

// handleServiceError maps service errors to problem documents.
func handleServiceError(c fiber.Ctx, err error) error {
	status, kind := fiber.StatusInternalServerError, "internal_error"

	switch {
	case services.IsValidationError(err):
		status, kind = fiber.StatusBadRequest, "validation_error"
	case services.IsNotFoundError(err):
		status, kind = fiber.StatusNotFound, "not_found"
	case services.IsConflictError(err):
		status, kind = fiber.StatusConflict, "conflict"
		if errors.Is(err, services.ErrFlowNotOpen) {
			kind = "flow_not_open"
		}
	case services.IsRejectionError(err):
		status, kind = fiber.StatusUnprocessableEntity, "rejected"
		if errors.Is(err, services.ErrConnectionRejected) {
			kind = "connection_rejected"
		}
	}

	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind)

	if status == fiber.StatusInternalServerError {
		problem = problem.WithError(err)
	} else {
		problem = problem.WithDetail(err.Error())
	}

	return c.Status(status).JSON(problem)
}
