package models

import (
	"fmt"
	"time"
)

// Severity grades a node diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Valid reports whether the severity is one of the known values.
func (s Severity) Valid() bool {
	switch s {
	case SeverityError, SeverityWarning, SeverityInfo:
		return true
	default:
		return false
	}
}

// NodeError is a diagnostic attached to a node.
type NodeError struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Source    string    `json:"source"`
}

func (e NodeError) String() string {
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Source, e.Message)
}
