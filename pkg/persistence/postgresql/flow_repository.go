package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowcanvas/pkg/models"
	"github.com/dukex/flowcanvas/pkg/persistence"
)

// FlowRepository reads and writes the flow_graphs table.
type FlowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewFlowRepository(db *sql.DB, logger *slog.Logger) *FlowRepository {
	return &FlowRepository{db: db, logger: logger}
}

// Load returns the stored graph, or an empty graph for a flow never saved.
func (r *FlowRepository) Load(ctx context.Context, flowID, userID string) (*models.Graph, error) {
	if err := persistence.ValidateFlowID(flowID); err != nil {
		return nil, persistence.NewFlowError("Load", flowID, userID, err)
	}

	query := `SELECT owner_id, nodes, edges FROM flow_graphs WHERE flow_id = $1`

	var (
		ownerID   string
		nodesJSON []byte
		edgesJSON []byte
	)

	err := r.db.QueryRowContext(ctx, query, flowID).Scan(&ownerID, &nodesJSON, &edgesJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.Graph{Nodes: []models.Node{}, Edges: []models.Edge{}}, nil
		}

		return nil, persistence.NewFlowError("Load", flowID, userID, fmt.Errorf("failed to query flow: %w", err))
	}

	if ownerID != userID {
		return nil, persistence.NewFlowError("Load", flowID, userID, persistence.ErrForbidden)
	}

	graph := &models.Graph{Nodes: []models.Node{}, Edges: []models.Edge{}}

	if err := json.Unmarshal(nodesJSON, &graph.Nodes); err != nil {
		return nil, persistence.NewFlowError("Load", flowID, userID, fmt.Errorf("failed to unmarshal nodes: %w", err))
	}

	if err := json.Unmarshal(edgesJSON, &graph.Edges); err != nil {
		return nil, persistence.NewFlowError("Load", flowID, userID, fmt.Errorf("failed to unmarshal edges: %w", err))
	}

	return graph, nil
}

// Save upserts the graph. A flow owned by another user is left untouched.
func (r *FlowRepository) Save(ctx context.Context, flowID, userID string, graph *models.Graph) error {
	if err := persistence.ValidateFlowID(flowID); err != nil {
		return persistence.NewFlowError("Save", flowID, userID, err)
	}

	g := graph.Clone()

	nodesJSON, err := json.Marshal(g.Nodes)
	if err != nil {
		return persistence.NewFlowError("Save", flowID, userID, fmt.Errorf("failed to marshal nodes: %w", err))
	}

	edgesJSON, err := json.Marshal(g.Edges)
	if err != nil {
		return persistence.NewFlowError("Save", flowID, userID, fmt.Errorf("failed to marshal edges: %w", err))
	}

	query := `
		INSERT INTO flow_graphs (flow_id, owner_id, nodes, edges, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (flow_id) DO UPDATE SET
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			updated_at = NOW(),
			revision = flow_graphs.revision + 1
		WHERE flow_graphs.owner_id = EXCLUDED.owner_id
	`

	result, err := r.db.ExecContext(ctx, query, flowID, userID, nodesJSON, edgesJSON)
	if err != nil {
		return persistence.NewFlowError("Save", flowID, userID, fmt.Errorf("failed to save flow: %w", err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return persistence.NewFlowError("Save", flowID, userID, fmt.Errorf("failed to read affected rows: %w", err))
	}

	if rows == 0 {
		return persistence.NewFlowError("Save", flowID, userID, persistence.ErrForbidden)
	}

	r.logger.DebugContext(ctx, "Saved flow graph", "flow_id", flowID, "nodes", len(g.Nodes), "edges", len(g.Edges))

	return nil
}

// Revision returns how many times the flow was overwritten after creation.
func (r *FlowRepository) Revision(ctx context.Context, flowID string) (int64, error) {
	var revision int64

	err := r.db.QueryRowContext(ctx, `SELECT revision FROM flow_graphs WHERE flow_id = $1`, flowID).Scan(&revision)
	if err != nil {
		return 0, fmt.Errorf("failed to query revision: %w", err)
	}

	return revision, nil
}
