// Package localcache keeps a per-flow graph snapshot on local disk and takes
// crash-recovery backups into the marker store.
package localcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/flowcanvas/pkg/log"
	"github.com/dukex/flowcanvas/pkg/markers"
	"github.com/dukex/flowcanvas/pkg/models"
	"github.com/dukex/flowcanvas/pkg/persistence"
)

const snapshotExt = ".json"

var ErrNotHydrated = errors.New("local cache is not hydrated")

// Backup is one crash-recovery copy of a flow graph.
type Backup struct {
	Key     string        `json:"key"`
	FlowID  string        `json:"flow_id"`
	TakenAt time.Time     `json:"taken_at"`
	Graph   *models.Graph `json:"graph"`
}

// Cache is the local snapshot store. Snapshot reads are served from memory
// once Hydrate has loaded the directory.
type Cache struct {
	dir     string
	markers markers.Store
	logger  *slog.Logger
	clock   func() time.Time

	mu        sync.RWMutex
	snapshots map[string]*models.Graph
	hydrated  atomic.Bool
}

func New(dir string, store markers.Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}

	return &Cache{
		dir:       dir,
		markers:   store,
		logger:    logger.With("module", "localcache"),
		clock:     time.Now,
		snapshots: make(map[string]*models.Graph),
	}
}

// WithClock replaces the clock used to stamp backups.
func (c *Cache) WithClock(clock func() time.Time) *Cache {
	c.clock = clock

	return c
}

// Hydrate reads every snapshot in the cache directory. Unreadable files are
// logged and skipped. The cache counts as hydrated afterwards even when the
// directory does not exist yet.
func (c *Cache) Hydrate(ctx context.Context) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	loaded := make(map[string]*models.Graph, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), snapshotExt) {
			continue
		}

		flowID := strings.TrimSuffix(entry.Name(), snapshotExt)

		graph, err := c.readSnapshot(filepath.Join(c.dir, entry.Name()))
		if err != nil {
			c.logger.WarnContext(ctx, "Skipping unreadable snapshot", log.FlowID(flowID), log.Error(err))

			continue
		}

		loaded[flowID] = graph
	}

	c.mu.Lock()
	for flowID, graph := range loaded {
		if _, ok := c.snapshots[flowID]; !ok {
			c.snapshots[flowID] = graph
		}
	}
	c.mu.Unlock()

	c.hydrated.Store(true)
	c.logger.InfoContext(ctx, "Local cache hydrated", "snapshots", len(loaded))

	return nil
}

func (c *Cache) Hydrated() bool {
	return c.hydrated.Load()
}

// Persist writes the flow's snapshot to memory and disk.
func (c *Cache) Persist(flowID string, graph *models.Graph) error {
	if err := persistence.ValidateFlowID(flowID); err != nil {
		return err
	}

	g := graph.Clone()

	payload, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	path := filepath.Join(c.dir, flowID+snapshotExt)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	c.snapshots[flowID] = g

	return nil
}

// Snapshot returns a copy of the cached graph of a flow.
func (c *Cache) Snapshot(flowID string) (*models.Graph, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	g, ok := c.snapshots[flowID]
	if !ok {
		return nil, false
	}

	return g.Clone(), true
}

// Backup stores a copy of graph in the marker store and returns its key.
func (c *Cache) Backup(ctx context.Context, flowID string, graph *models.Graph) (string, error) {
	if err := persistence.ValidateFlowID(flowID); err != nil {
		return "", err
	}

	payload, err := json.Marshal(graph.Clone())
	if err != nil {
		return "", fmt.Errorf("failed to encode backup: %w", err)
	}

	key := markers.BackupKey(flowID, c.clock().UnixNano())
	if err := c.markers.Set(ctx, key, string(payload)); err != nil {
		return "", fmt.Errorf("failed to store backup: %w", err)
	}

	return key, nil
}

// Backups lists the flow's backups, oldest first. Entries that fail to decode
// are skipped.
func (c *Cache) Backups(ctx context.Context, flowID string) ([]Backup, error) {
	prefix := markers.BackupPrefix(flowID)

	keys, err := c.markers.Keys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	backups := make([]Backup, 0, len(keys))

	for _, key := range keys {
		stamp, err := strconv.ParseInt(strings.TrimPrefix(key, prefix), 10, 64)
		if err != nil {
			continue
		}

		raw, err := c.markers.Get(ctx, key)
		if err != nil {
			if errors.Is(err, markers.ErrNotFound) {
				continue
			}

			return nil, fmt.Errorf("failed to read backup %s: %w", key, err)
		}

		var g models.Graph
		if err := json.Unmarshal([]byte(raw), &g); err != nil {
			c.logger.WarnContext(ctx, "Skipping corrupt backup", "key", key, log.Error(err))

			continue
		}

		backups = append(backups, Backup{
			Key:     key,
			FlowID:  flowID,
			TakenAt: time.Unix(0, stamp).UTC(),
			Graph:   &g,
		})
	}

	slices.SortFunc(backups, func(a, b Backup) int { return a.TakenAt.Compare(b.TakenAt) })

	return backups, nil
}

// ClearBackups deletes every backup of the flow.
func (c *Cache) ClearBackups(ctx context.Context, flowID string) error {
	keys, err := c.markers.Keys(ctx, markers.BackupPrefix(flowID))
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	if err := c.markers.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to delete backups: %w", err)
	}

	c.logger.DebugContext(ctx, "Cleared backups", log.FlowID(flowID), "count", len(keys))

	return nil
}

func (c *Cache) readSnapshot(path string) (*models.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var g models.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, err
	}

	return g.Clone(), nil
}
