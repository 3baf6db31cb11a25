package connection

import "github.com/dukex/flowcanvas/pkg/models"

// Gate plugs the validator into the graph store's connect path and reports
// every rejection through feedback.
type Gate struct {
	validator *Validator
	feedback  *Feedback
}

func NewGate(validator *Validator, feedback *Feedback) *Gate {
	return &Gate{validator: validator, feedback: feedback}
}

func (g *Gate) AllowConnection(source, target models.Node, edge models.Edge) (bool, string) {
	result := g.validator.Check(source, target, edge)
	if result.Allowed {
		return true, ""
	}

	if g.feedback != nil {
		g.feedback.Reject(result.Reason)
	}

	return false, result.Reason
}
