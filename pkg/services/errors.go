// Package services provides the editor session operations and their error types.
package services

import (
	"errors"
	"fmt"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInvalidNodeData = errors.New("invalid node data")
	ErrInvalidEdge     = errors.New("invalid edge")

	// Not Found Errors (404 Not Found).
	ErrNodeNotFound = errors.New("node not found")
	ErrEdgeNotFound = errors.New("edge not found")

	// Business Logic Conflicts (409 Conflict).
	ErrFlowNotOpen = errors.New("flow is not open")
	ErrNodeIDTaken = errors.New("node id already in use")
	ErrSaveBlocked = errors.New("save is not allowed right now")

	// Rejections (422 Unprocessable Entity).
	ErrConnectionRejected = errors.New("connection rejected")
	ErrEmptyClipboard     = errors.New("nothing to paste")
	ErrEmptySelection     = errors.New("nothing selected to copy")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidNodeData) ||
		errors.Is(err, ErrInvalidEdge)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNodeNotFound) ||
		errors.Is(err, ErrEdgeNotFound)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrFlowNotOpen) ||
		errors.Is(err, ErrNodeIDTaken) ||
		errors.Is(err, ErrSaveBlocked)
}

// IsRejectionError checks if an error is a refused editor operation that should return HTTP 422.
func IsRejectionError(err error) bool {
	return errors.Is(err, ErrConnectionRejected) ||
		errors.Is(err, ErrEmptyClipboard) ||
		errors.Is(err, ErrEmptySelection)
}

// NewServiceError creates a new error with context.
func NewServiceError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
