// Package file provides a file-based remote store: one JSON document per flow.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dukex/flowcanvas/pkg/models"
	"github.com/dukex/flowcanvas/pkg/persistence"
)

const flowsDir = "flows"

type flowDocument struct {
	FlowID    string        `json:"flow_id"`
	Owner     string        `json:"owner"`
	Nodes     []models.Node `json:"nodes"`
	Edges     []models.Edge `json:"edges"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Persistence implements persistence.RemoteStore on the file system.
type Persistence struct {
	root string

	mu sync.Mutex
}

// NewPersistence creates a store rooted at root. A file:// prefix is accepted.
func NewPersistence(root string) *Persistence {
	return &Persistence{root: strings.Replace(root, "file://", "", 1)}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks that the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) Load(_ context.Context, flowID, userID string) (*models.Graph, error) {
	if err := persistence.ValidateFlowID(flowID); err != nil {
		return nil, persistence.NewFlowError("Load", flowID, userID, err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	doc, err := fp.read(flowID)
	if err != nil {
		return nil, persistence.NewFlowError("Load", flowID, userID, err)
	}

	if doc == nil {
		return &models.Graph{Nodes: []models.Node{}, Edges: []models.Edge{}}, nil
	}

	if doc.Owner != "" && doc.Owner != userID {
		return nil, persistence.NewFlowError("Load", flowID, userID, persistence.ErrForbidden)
	}

	return (&models.Graph{Nodes: doc.Nodes, Edges: doc.Edges}).Clone(), nil
}

func (fp *Persistence) Save(_ context.Context, flowID, userID string, graph *models.Graph) error {
	if err := persistence.ValidateFlowID(flowID); err != nil {
		return persistence.NewFlowError("Save", flowID, userID, err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	existing, err := fp.read(flowID)
	if err != nil {
		return persistence.NewFlowError("Save", flowID, userID, err)
	}

	if existing != nil && existing.Owner != "" && existing.Owner != userID {
		return persistence.NewFlowError("Save", flowID, userID, persistence.ErrForbidden)
	}

	g := graph.Clone()
	doc := flowDocument{
		FlowID:    flowID,
		Owner:     userID,
		Nodes:     g.Nodes,
		Edges:     g.Edges,
		UpdatedAt: time.Now().UTC(),
	}

	if err := fp.write(doc); err != nil {
		return persistence.NewFlowError("Save", flowID, userID, err)
	}

	return nil
}

func (fp *Persistence) path(flowID string) string {
	return filepath.Clean(filepath.Join(fp.root, flowsDir, flowID+".json"))
}

func (fp *Persistence) read(flowID string) (*flowDocument, error) {
	body, err := os.ReadFile(fp.path(flowID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read flow %s: %w", flowID, err)
	}

	var doc flowDocument

	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow %s: %w", flowID, err)
	}

	return &doc, nil
}

// write replaces the flow file atomically through a temporary file.
func (fp *Persistence) write(doc flowDocument) error {
	dir := filepath.Join(fp.root, flowsDir)

	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create flows directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal flow %s: %w", doc.FlowID, err)
	}

	tmp, err := os.CreateTemp(dir, doc.FlowID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write flow %s: %w", doc.FlowID, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to close flow %s: %w", doc.FlowID, err)
	}

	return os.Rename(tmp.Name(), fp.path(doc.FlowID))
}
