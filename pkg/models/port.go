package models

import "github.com/dukex/flowcanvas/pkg/datatype"

// HandleDirection is the direction of data flow through a handle.
type HandleDirection string

const (
	HandleDirectionSource HandleDirection = "source" // output
	HandleDirectionTarget HandleDirection = "target" // input
)

// Valid reports whether the direction is one of the known values.
func (d HandleDirection) Valid() bool {
	return d == HandleDirectionSource || d == HandleDirectionTarget
}

// HandleSpec is a connection point declared by a node type.
type HandleSpec struct {
	ID          string          `json:"id"                    yaml:"id"                    validate:"required"`
	Direction   HandleDirection `json:"direction"             yaml:"direction"             validate:"required,oneof=source target"`
	DataType    datatype.Code   `json:"dataType"              yaml:"dataType"              validate:"required,len=1"`
	Default     string          `json:"default,omitempty"     yaml:"default,omitempty"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
}
