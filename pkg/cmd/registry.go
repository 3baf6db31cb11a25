// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dukex/flowcanvas/pkg/registry"
)

// NewRegistry creates a registry with the built-in node types plus the
// schemas of the optional YAML file at schemasPath.
func NewRegistry(log *slog.Logger, schemasPath string) (*registry.Registry, error) {
	if log == nil {
		log = slog.Default()
	}

	reg := registry.NewRegistry(log)
	reg.RegisterDefaultNodes()

	if schemasPath == "" {
		return reg, nil
	}

	f, err := os.Open(schemasPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open node schemas: %w", err)
	}
	defer func() { _ = f.Close() }()

	count, err := reg.LoadYAML(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load node schemas from %s: %w", schemasPath, err)
	}

	log.Info("Loaded node schemas", "path", schemasPath, "count", count)

	return reg, nil
}
