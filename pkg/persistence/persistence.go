// Package persistence provides the remote store that flow graphs are loaded
// from and saved to.
package persistence

import (
	"context"

	"github.com/dukex/flowcanvas/pkg/models"
)

// RemoteStore is the source of truth for flow graphs.
//
// Load returns ErrLoadPending while the graph is not available yet; callers
// retry later. A flow that was never saved loads as an empty graph.
type RemoteStore interface {
	Load(ctx context.Context, flowID, userID string) (*models.Graph, error)
	Save(ctx context.Context, flowID, userID string, graph *models.Graph) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
