package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/flowcanvas/pkg/events"
	"github.com/dukex/flowcanvas/pkg/log"
)

const releaseTimeout = 5 * time.Second

// Releaser announces node removals on the bus so that whoever owns per-node
// runtime resources can drop them. It satisfies graph.ResourceReleaser.
type Releaser struct {
	publisher EventPublisher
	logger    *slog.Logger

	mu     sync.RWMutex
	flowID string
}

func NewReleaser(publisher EventPublisher, logger *slog.Logger) *Releaser {
	if logger == nil {
		logger = slog.Default()
	}

	return &Releaser{publisher: publisher, logger: logger}
}

// SetFlow sets the flow id stamped on published events.
func (r *Releaser) SetFlow(flowID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.flowID = flowID
}

func (r *Releaser) flow() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.flowID
}

func (r *Releaser) ReleaseNode(nodeID string) {
	flowID := r.flow()
	event := events.NodeReleased{
		BaseEvent: events.NewBaseEvent(events.NodeReleasedEvent, flowID),
		NodeID:    nodeID,
	}

	r.publish(flowID, event, log.NodeID(nodeID))
}

func (r *Releaser) ReleaseAll() {
	flowID := r.flow()
	event := events.NodesReleasedAll{
		BaseEvent: events.NewBaseEvent(events.NodesReleasedAllEvent, flowID),
	}

	r.publish(flowID, event)
}

func (r *Releaser) publish(flowID string, event Event, attrs ...any) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	if err := r.publisher.Publish(ctx, flowID, event); err != nil {
		attrs = append(attrs, log.FlowID(flowID), log.Error(err))
		r.logger.Error("Failed to publish release event", attrs...)
	}
}
