package localcache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/flowcanvas/pkg/log"
	"github.com/dukex/flowcanvas/pkg/models"
	"github.com/robfig/cron/v3"
)

const DefaultBackupSchedule = "@every 30s"

// GraphSource yields the graph of the flow currently open, if any.
type GraphSource interface {
	CurrentGraph() (flowID string, graph *models.Graph, ok bool)
}

// Sanitizer strips runtime-only data before a graph is written locally.
type Sanitizer interface {
	SanitizeGraph(graph *models.Graph) *models.Graph
}

// BackupScheduler periodically persists and backs up the open flow.
type BackupScheduler struct {
	cache     *Cache
	source    GraphSource
	sanitizer Sanitizer
	schedule  string
	logger    *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

func NewBackupScheduler(cache *Cache, source GraphSource, sanitizer Sanitizer, schedule string, logger *slog.Logger) (*BackupScheduler, error) {
	if schedule == "" {
		schedule = DefaultBackupSchedule
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid backup schedule '%s': %w", schedule, err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &BackupScheduler{
		cache:     cache,
		source:    source,
		sanitizer: sanitizer,
		schedule:  schedule,
		logger:    logger.With("module", "backup_scheduler"),
	}, nil
}

func (s *BackupScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if _, err := c.AddFunc(s.schedule, func() {
		if err := s.RunOnce(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Backup failed", log.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("failed to add backup job: %w", err)
	}

	c.Start()
	s.cron = c
	s.logger.InfoContext(ctx, "Backup scheduler started", "schedule", s.schedule)

	return nil
}

// Stop halts the schedule and waits for a running backup to finish.
func (s *BackupScheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}

	<-c.Stop().Done()
	s.logger.Info("Backup scheduler stopped")
}

// RunOnce persists and backs up the current graph. An empty graph or no open
// flow does nothing.
func (s *BackupScheduler) RunOnce(ctx context.Context) error {
	flowID, graph, ok := s.source.CurrentGraph()
	if !ok || graph.IsEmpty() {
		return nil
	}

	if s.sanitizer != nil {
		graph = s.sanitizer.SanitizeGraph(graph)
	}

	if err := s.cache.Persist(flowID, graph); err != nil {
		return err
	}

	key, err := s.cache.Backup(ctx, flowID, graph)
	if err != nil {
		return err
	}

	s.logger.DebugContext(ctx, "Backup taken", log.FlowID(flowID), "key", key)

	return nil
}
