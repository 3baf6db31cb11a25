// Package events defines the lifecycle notifications emitted by the editor engine.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const Topic = "flowcanvas.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Flow synchronization events.
	FlowLoadedEvent     EventType = "flow.loaded"
	FlowSavedEvent      EventType = "flow.saved"
	FlowSaveFailedEvent EventType = "flow.save_failed"

	// Per-node resource cleanup.
	NodeReleasedEvent     EventType = "node.released"
	NodesReleasedAllEvent EventType = "nodes.released_all"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	FlowID    string         `json:"flow_id"`
	UserID    string         `json:"user_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// FlowLoaded is published after a remote load was applied to the graph.
type FlowLoaded struct {
	BaseEvent

	NodeCount   int    `json:"node_count"`
	EdgeCount   int    `json:"edge_count"`
	Fingerprint string `json:"fingerprint"`
}

func (e FlowLoaded) GetType() EventType {
	return FlowLoadedEvent
}

type FlowSaved struct {
	BaseEvent

	NodeCount   int           `json:"node_count"`
	EdgeCount   int           `json:"edge_count"`
	Fingerprint string        `json:"fingerprint"`
	Manual      bool          `json:"manual"`
	Duration    time.Duration `json:"duration"`
}

func (e FlowSaved) GetType() EventType {
	return FlowSavedEvent
}

type FlowSaveFailed struct {
	BaseEvent

	Error  string `json:"error"`
	Manual bool   `json:"manual"`
}

func (e FlowSaveFailed) GetType() EventType {
	return FlowSaveFailedEvent
}

// NodeReleased tells resource owners (execution timers, previews) that a
// node left the graph.
type NodeReleased struct {
	BaseEvent

	NodeID string `json:"node_id"`
}

func (e NodeReleased) GetType() EventType {
	return NodeReleasedEvent
}

type NodesReleasedAll struct {
	BaseEvent
}

func (e NodesReleasedAll) GetType() EventType {
	return NodesReleasedAllEvent
}

func NewBaseEvent(eventType EventType, flowID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		FlowID:    flowID,
		Metadata:  make(map[string]any),
	}
}
