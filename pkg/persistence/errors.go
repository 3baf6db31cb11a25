package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrLoadPending indicates the graph is not available yet.
	ErrLoadPending = errors.New("flow load pending")

	// ErrForbidden indicates the user does not own the flow.
	ErrForbidden = errors.New("flow belongs to another user")

	// ErrInvalidFlowID indicates an empty or malformed flow id.
	ErrInvalidFlowID = errors.New("invalid flow id")
)

// FlowError wraps flow store errors with additional context.
type FlowError struct {
	Op     string // Operation being performed (e.g., "Load", "Save")
	FlowID string
	UserID string
	Err    error
}

func (e *FlowError) Error() string {
	if e.UserID != "" {
		return fmt.Sprintf("%s operation failed for flow %s (user %s): %v", e.Op, e.FlowID, e.UserID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for flow %s: %v", e.Op, e.FlowID, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for flow errors.
func (e *FlowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewFlowError creates a new flow error with context.
func NewFlowError(op, flowID, userID string, err error) *FlowError {
	return &FlowError{
		Op:     op,
		FlowID: flowID,
		UserID: userID,
		Err:    err,
	}
}

// IsLoadPending checks if an error indicates the load has not resolved yet.
func IsLoadPending(err error) bool {
	return errors.Is(err, ErrLoadPending)
}

// IsForbidden checks if an error indicates an ownership violation.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}
