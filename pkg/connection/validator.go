// Package connection decides whether a candidate edge may join two handles
// and reports rejections to the user.
package connection

import (
	"fmt"
	"sync/atomic"

	"github.com/dukex/flowcanvas/pkg/datatype"
	"github.com/dukex/flowcanvas/pkg/models"
)

// HandleResolver maps a node type's handle to its data-type code.
type HandleResolver interface {
	ResolveHandle(nodeType string, handleID *string, dir models.HandleDirection) (datatype.Code, bool)
}

// HandleLister lists the handles declared by a node type.
type HandleLister interface {
	Handles(nodeType string) []models.HandleSpec
}

// Result is the outcome of evaluating a candidate connection.
type Result struct {
	Allowed        bool            `json:"allowed"`
	Reason         string          `json:"reason,omitempty"`
	Confidence     float64         `json:"confidence"`
	SuggestedTypes []datatype.Code `json:"suggestedTypes,omitempty"`
	SourceType     datatype.Code   `json:"sourceType"`
	TargetType     datatype.Code   `json:"targetType"`
}

// Validator evaluates handle type compatibility. Relaxed rules can be
// switched at runtime.
type Validator struct {
	resolver HandleResolver
	relaxed  atomic.Bool
}

func NewValidator(resolver HandleResolver, relaxed bool) *Validator {
	v := &Validator{resolver: resolver}
	v.relaxed.Store(relaxed)

	return v
}

func (v *Validator) Relaxed() bool {
	return v.relaxed.Load()
}

func (v *Validator) SetRelaxed(relaxed bool) {
	v.relaxed.Store(relaxed)
}

// Evaluate compares a source type with a target type. It has no side
// effects and is safe to call on every pointer move of a drag.
func (v *Validator) Evaluate(source, target datatype.Code) Result {
	relaxed := v.Relaxed()
	match := datatype.Evaluate(source, target, relaxed)

	result := Result{
		Allowed:    match.Compatible,
		Confidence: match.Confidence,
		SourceType: source,
		TargetType: target,
	}

	switch {
	case !match.Compatible:
		result.Reason = fmt.Sprintf("Cannot connect %s to %s",
			datatype.Describe(source), datatype.Describe(target))
		result.SuggestedTypes = datatype.CompatibleTargets(source, relaxed)
	case match.Rule == datatype.RuleRelaxed:
		result.Reason = fmt.Sprintf("%s is loosely compatible with %s",
			datatype.Describe(source), datatype.Describe(target))
	}

	return result
}

// Check resolves the handle types of a candidate edge between two nodes and
// evaluates them. Handles the registry does not know resolve to the wildcard.
func (v *Validator) Check(source, target models.Node, edge models.Edge) Result {
	src, dst := datatype.Any, datatype.Any

	if v.resolver != nil {
		src, _ = v.resolver.ResolveHandle(source.Type, edge.SourceHandle, models.HandleDirectionSource)
		dst, _ = v.resolver.ResolveHandle(target.Type, edge.TargetHandle, models.HandleDirectionTarget)
	}

	return v.Evaluate(src, dst)
}

// TargetHighlight is the drag-time verdict for one target handle.
type TargetHighlight struct {
	NodeID   string `json:"nodeId"`
	HandleID string `json:"handleId"`
	Result   Result `json:"result"`
}

// Highlights evaluates a dragged source handle against every target handle
// in nodes, for dimming incompatible handles while a connection is drawn.
func (v *Validator) Highlights(source models.Node, sourceHandle *string, nodes []models.Node, lister HandleLister) []TargetHighlight {
	src := datatype.Any
	if v.resolver != nil {
		src, _ = v.resolver.ResolveHandle(source.Type, sourceHandle, models.HandleDirectionSource)
	}

	var out []TargetHighlight

	for _, n := range nodes {
		if n.ID == source.ID {
			continue
		}

		for _, h := range lister.Handles(n.Type) {
			if h.Direction != models.HandleDirectionTarget {
				continue
			}

			out = append(out, TargetHighlight{
				NodeID:   n.ID,
				HandleID: h.ID,
				Result:   v.Evaluate(src, h.DataType),
			})
		}
	}

	return out
}
