// Package registry provides the node schema registry: the declared handles and
// configuration schema of every node type the editor knows about.
package registry

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/flowcanvas/pkg/datatype"
	"github.com/dukex/flowcanvas/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidSchema    = errors.New("invalid node schema")
	ErrDuplicateHandle  = errors.New("duplicate handle")
	ErrInvalidDataType  = errors.New("invalid handle data type")
	ErrInvalidDefault   = errors.New("invalid handle default")
	ErrConfigValidation = errors.New("node configuration does not match schema")
)

// NodeSchema describes a node type.
type NodeSchema struct {
	Type         string              `json:"type"                   yaml:"type"                   validate:"required"`
	Name         string              `json:"name"                   yaml:"name"`
	Description  string              `json:"description,omitempty"  yaml:"description,omitempty"`
	Handles      []models.HandleSpec `json:"handles"                yaml:"handles"                validate:"dive"`
	ConfigSchema map[string]any      `json:"configSchema,omitempty" yaml:"configSchema,omitempty"`
}

// Handle returns the handle declared with the given id and direction.
func (s *NodeSchema) Handle(id string, dir models.HandleDirection) (models.HandleSpec, bool) {
	for _, h := range s.Handles {
		if h.ID == id && h.Direction == dir {
			return h, true
		}
	}

	return models.HandleSpec{}, false
}

// Registry stores node schemas by type. It is safe for concurrent use.
type Registry struct {
	logger   *slog.Logger
	validate *validator.Validate

	mu      sync.RWMutex
	schemas map[string]*NodeSchema
	loaders map[string]gojsonschema.JSONLoader
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}

	return &Registry{
		logger:   log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		schemas:  make(map[string]*NodeSchema),
		loaders:  make(map[string]gojsonschema.JSONLoader),
	}
}

// Register validates and stores a schema, replacing any previous schema of
// the same type.
func (r *Registry) Register(schema NodeSchema) error {
	if err := r.check(&schema); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.schemas[schema.Type] = &schema
	if schema.ConfigSchema != nil {
		r.loaders[schema.Type] = gojsonschema.NewGoLoader(schema.ConfigSchema)
	} else {
		delete(r.loaders, schema.Type)
	}

	r.logger.Debug("Registered node schema", "type", schema.Type, "handles", len(schema.Handles))

	return nil
}

// LoadYAML registers every schema listed in a YAML document of the form
// `nodes: [...]`.
func (r *Registry) LoadYAML(reader io.Reader) (int, error) {
	var doc struct {
		Nodes []NodeSchema `yaml:"nodes"`
	}

	if err := yaml.NewDecoder(reader).Decode(&doc); err != nil {
		return 0, fmt.Errorf("failed to decode node schemas: %w", err)
	}

	for i, schema := range doc.Nodes {
		if err := r.Register(schema); err != nil {
			return i, fmt.Errorf("failed to register node schema %q: %w", schema.Type, err)
		}
	}

	return len(doc.Nodes), nil
}

// Schema returns the schema registered for nodeType.
func (r *Registry) Schema(nodeType string) (*NodeSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schema, ok := r.schemas[nodeType]

	return schema, ok
}

// Types returns the registered node types sorted by name.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.schemas))
	for t := range r.schemas {
		types = append(types, t)
	}

	sort.Strings(types)

	return types
}

// Handles returns a copy of the handles declared by nodeType.
func (r *Registry) Handles(nodeType string) []models.HandleSpec {
	schema, ok := r.Schema(nodeType)
	if !ok {
		return nil
	}

	return slices.Clone(schema.Handles)
}

// ResolveHandle maps a handle of a node type to its data-type code. Unknown
// node types and handles resolve to the wildcard with ok=false. A nil handle
// id picks the first handle declared in that direction.
func (r *Registry) ResolveHandle(nodeType string, handleID *string, dir models.HandleDirection) (datatype.Code, bool) {
	schema, ok := r.Schema(nodeType)
	if !ok {
		return datatype.Any, false
	}

	if handleID == nil {
		for _, h := range schema.Handles {
			if h.Direction == dir {
				return h.DataType, true
			}
		}

		return datatype.Any, false
	}

	h, ok := schema.Handle(*handleID, dir)
	if !ok {
		return datatype.Any, false
	}

	return h.DataType, true
}

// ValidateConfig checks node data against the configuration schema of its
// type. Types without a configuration schema accept anything.
func (r *Registry) ValidateConfig(nodeType string, data map[string]any) error {
	r.mu.RLock()
	loader, ok := r.loaders[nodeType]
	r.mu.RUnlock()

	if !ok {
		return nil
	}

	if data == nil {
		data = map[string]any{}
	}

	result, err := gojsonschema.Validate(loader, gojsonschema.NewGoLoader(data))
	if err != nil {
		return fmt.Errorf("failed to validate %s configuration: %w", nodeType, err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}

	return fmt.Errorf("%w: %s", ErrConfigValidation, strings.Join(details, "; "))
}

// HealthCheck reports whether any schema is registered.
func (r *Registry) HealthCheck() (string, bool) {
	r.mu.RLock()
	count := len(r.schemas)
	r.mu.RUnlock()

	if count == 0 {
		return "Registry has no node schemas", false
	}

	return fmt.Sprintf("Registry has %d node schemas", count), true
}

func (r *Registry) check(schema *NodeSchema) error {
	if err := r.validate.Struct(schema); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	seen := make(map[models.HandleDirection]map[string]bool, 2)

	for _, h := range schema.Handles {
		if !h.DataType.Valid() {
			return fmt.Errorf("%w: %q on handle %q", ErrInvalidDataType, h.DataType, h.ID)
		}

		if seen[h.Direction] == nil {
			seen[h.Direction] = map[string]bool{}
		}

		if seen[h.Direction][h.ID] {
			return fmt.Errorf("%w: %s handle %q", ErrDuplicateHandle, h.Direction, h.ID)
		}

		seen[h.Direction][h.ID] = true

		if h.Default != "" {
			if err := datatype.CheckLiteral(h.DataType, h.Default); err != nil {
				return fmt.Errorf("%w for handle %q: %v", ErrInvalidDefault, h.ID, err)
			}
		}
	}

	return nil
}
