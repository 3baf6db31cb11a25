package graph

import "github.com/google/uuid"

// IDGenerator produces collision-resistant ids for pasted nodes and edges.
type IDGenerator interface {
	NewID() string
}

// IDGeneratorFunc adapts a function to IDGenerator.
type IDGeneratorFunc func() string

func (f IDGeneratorFunc) NewID() string { return f() }

// UUIDGenerator generates random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// ResourceReleaser releases per-node runtime resources such as pending
// timers when nodes go away.
type ResourceReleaser interface {
	ReleaseNode(nodeID string)
	ReleaseAll()
}

// NopReleaser releases nothing.
type NopReleaser struct{}

func (NopReleaser) ReleaseNode(string) {}

func (NopReleaser) ReleaseAll() {}
