package flowsync_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dukex/flowcanvas/pkg/eventbus"
	"github.com/dukex/flowcanvas/pkg/events"
	"github.com/dukex/flowcanvas/pkg/flowsync"
	"github.com/dukex/flowcanvas/pkg/graph"
	"github.com/dukex/flowcanvas/pkg/markers"
	"github.com/dukex/flowcanvas/pkg/models"
	"github.com/dukex/flowcanvas/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true

	return active
}

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (f *fakeTimers) After(_ time.Duration, fn func()) flowsync.Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTimer{fn: fn}
	f.timers = append(f.timers, t)

	return t
}

func (f *fakeTimers) armed() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.timers)
}

// fireAll fires every timer that was not stopped.
func (f *fakeTimers) fireAll() {
	f.mu.Lock()
	timers := append([]*fakeTimer(nil), f.timers...)
	f.mu.Unlock()

	for _, t := range timers {
		if !t.stopped && !t.fired {
			t.fired = true
			t.fn()
		}
	}
}

// last returns the most recently armed timer.
func (f *fakeTimers) last() *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.timers[len(f.timers)-1]
}

type manualIdle struct {
	mu    sync.Mutex
	tasks []func()
}

func (m *manualIdle) Run(task func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tasks = append(m.tasks, task)
}

func (m *manualIdle) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.tasks)
}

func (m *manualIdle) runPending() {
	m.mu.Lock()
	tasks := m.tasks
	m.tasks = nil
	m.mu.Unlock()

	for _, task := range tasks {
		task()
	}
}

type savedGraph struct {
	flowID string
	userID string
	graph  *models.Graph
}

type fakeRemote struct {
	mu      sync.Mutex
	graphs  map[string]*models.Graph
	loadErr map[string]error
	saveErr error
	saves   []savedGraph
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{graphs: map[string]*models.Graph{}, loadErr: map[string]error{}}
}

func (r *fakeRemote) Load(_ context.Context, flowID, _ string) (*models.Graph, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadErr[flowID]; err != nil {
		return nil, err
	}

	if g, ok := r.graphs[flowID]; ok {
		return g.Clone(), nil
	}

	return &models.Graph{}, nil
}

func (r *fakeRemote) Save(_ context.Context, flowID, userID string, g *models.Graph) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saveErr != nil {
		return r.saveErr
	}

	r.saves = append(r.saves, savedGraph{flowID: flowID, userID: userID, graph: g.Clone()})
	r.graphs[flowID] = g.Clone()

	return nil
}

func (r *fakeRemote) HealthCheck(context.Context) error { return nil }

func (r *fakeRemote) Close(context.Context) error { return nil }

func (r *fakeRemote) saved() []savedGraph {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]savedGraph(nil), r.saves...)
}

type fakeHydration struct{ ready bool }

func (h *fakeHydration) Hydrated() bool { return h.ready }

type backupRecorder struct {
	mu      sync.Mutex
	cleared []string
}

func (b *backupRecorder) ClearBackups(_ context.Context, flowID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cleared = append(b.cleared, flowID)

	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]events.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.GetType()
	}

	return out
}

type harness struct {
	store     *graph.Store
	remote    *fakeRemote
	markers   *markers.Memory
	timers    *fakeTimers
	idle      *manualIdle
	hydration *fakeHydration
	access    *flowsync.StaticAccess
	backups   *backupRecorder
	publisher *recordingPublisher
	orch      *flowsync.Orchestrator
}

type accessFunc struct{ a *flowsync.StaticAccess }

func (f accessFunc) UserID() string { return f.a.UserID() }

func (f accessFunc) CanEdit(ctx context.Context, flowID string) bool { return f.a.CanEdit(ctx, flowID) }

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:     graph.NewStore(graph.Options{}),
		remote:    newFakeRemote(),
		markers:   markers.NewMemory(),
		timers:    &fakeTimers{},
		idle:      &manualIdle{},
		hydration: &fakeHydration{ready: true},
		access:    &flowsync.StaticAccess{User: "user-1"},
		backups:   &backupRecorder{},
		publisher: &recordingPublisher{},
	}

	h.orch = flowsync.New(flowsync.Options{
		Store:     h.store,
		Remote:    h.remote,
		Markers:   h.markers,
		Hydration: h.hydration,
		Access:    accessFunc{h.access},
		Backups:   h.backups,
		Publisher: h.publisher,
		Timers:    h.timers.After,
		Idle:      h.idle,
	})
	t.Cleanup(h.orch.Close)

	return h
}

func (h *harness) marker(t *testing.T, flowID string) string {
	t.Helper()

	v, err := h.markers.Get(t.Context(), markers.LoadingKey(flowID))
	require.NoError(t, err)

	return v
}

func twoNodeGraph() *models.Graph {
	return &models.Graph{
		Nodes: []models.Node{
			{ID: "a", Type: "number", Data: map[string]any{"value": 1.0}},
			{ID: "b", Type: "log", Data: map[string]any{}},
		},
		Edges: []models.Edge{{ID: "e1", Source: "a", Target: "b"}},
	}
}

func TestSwitchFlow_LoadsRemoteGraph(t *testing.T) {
	h := newHarness(t)
	h.remote.graphs["f1"] = twoNodeGraph()

	require.NoError(t, h.orch.SwitchFlow(t.Context(), "f1"))

	status := h.orch.Status()
	assert.Equal(t, flowsync.StateLoaded, status.State)
	assert.Equal(t, "f1", status.FlowID)
	assert.NotEmpty(t, status.Fingerprint)
	assert.Nil(t, status.LastSavedAt)

	assert.Len(t, h.store.Nodes(), 2)
	assert.Len(t, h.store.Edges(), 1)
	assert.Equal(t, markers.StateLoaded, h.marker(t, "f1"))
	assert.Equal(t, []string{"f1"}, h.backups.cleared)
	assert.Equal(t, []events.EventType{events.FlowLoadedEvent}, h.publisher.types())

	// Applying the load never arms an autosave.
	assert.Equal(t, 0, h.timers.armed())

	// Switching to the open flow again does nothing.
	require.NoError(t, h.orch.SwitchFlow(t.Context(), "f1"))
	assert.Len(t, h.publisher.types(), 1)
}

func TestSwitchFlow_EmptyRemoteKeepsBackups(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.orch.SwitchFlow(t.Context(), "fresh"))

	assert.Equal(t, flowsync.StateLoaded, h.orch.Status().State)
	assert.Empty(t, h.backups.cleared)
}

func TestSwitchFlow_ClearsPreviousGraphAndState(t *testing.T) {
	h := newHarness(t)
	h.remote.graphs["f1"] = twoNodeGraph()
	h.remote.loadErr["f2"] = persistence.ErrLoadPending

	require.NoError(t, h.orch.SwitchFlow(t.Context(), "f1"))
	require.True(t, h.store.AddNode(models.Node{ID: "c", Type: "log"}))
	require.NoError(t, h.orch.Save(t.Context()))
	require.NotNil(t, h.orch.Status().LastSavedAt)

	require.NoError(t, h.orch.SwitchFlow(t.Context(), "f2"))

	status := h.orch.Status()
	assert.Equal(t, flowsync.StateLoading, status.State)
	assert.Nil(t, status.LastSavedAt)
	assert.Empty(t, status.Fingerprint)
	assert.Empty(t, h.store.Nodes())
	assert.Equal(t, markers.StateLoading, h.marker(t, "f2"))
}

func TestSwitchFlow_InvalidID(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.orch.SwitchFlow(t.Context(), "../etc"), persistence.ErrInvalidFlowID)
	assert.Equal(t, flowsync.StateIdle, h.orch.Status().State)
}

func TestSwitchFlow_EmptyIDClosesFlow(t *testing.T) {
	h := newHarness(t)
	h.remote.graphs["f1"] = twoNodeGraph()

	require.NoError(t, h.orch.SwitchFlow(t.Context(), "f1"))
	require.NoError(t, h.orch.SwitchFlow(t.Context(), ""))

	assert.Equal(t, flowsync.StateIdle, h.orch.Status().State)
	assert.Empty(t, h.store.Nodes())
	assert.ErrorIs(t, h.orch.Save(t.Context()), flowsync.ErrNoFlow)
}

func TestApplyLoad_PendingAndStaleResults(t *testing.T) {
	h := newHarness(t)
	h.remote.loadErr["f2"] = persistence.ErrLoadPending

	require.NoError(t, h.orch.SwitchFlow(t.Context(), "f2"))
	assert.Equal(t, flowsync.StateLoading, h.orch.Status().State)

	// A late result for another flow is ignored.
	assert.False(t, h.orch.ApplyLoad(t.Context(), "f1", twoNodeGraph(), nil))
	assert.Empty(t, h.store.Nodes())

	// Still pending.
	assert.False(t, h.orch.ApplyLoad(t.Context(), "f2", nil, persistence.ErrLoadPending))
	assert.Equal(t, flowsync.StateLoading, h.orch.Status().State)
	assert.Equal(t, markers.StateLoading, h.marker(t, "f2"))

	assert.True(t, h.orch.ApplyLoad(t.Context(), "f2", twoNodeGraph(), nil))
	assert.Equal(t, flowsync.StateLoaded, h.orch.Status().State)
	assert.Len(t, h.store.Nodes(), 2)
	assert.Equal(t, markers.StateLoaded, h.marker(t, "f2"))

	// A second result for a loaded flow does not overwrite local edits.
	require.True(t, h.store.AddNode(models.Node{ID: "c", Type: "log"}))
	assert.False(t, h.orch.ApplyLoad(t.Context(), "f2", &models.Graph{}, nil))
	assert.Len(t, h.store.Nodes(), 3)
}

func TestApplyLoad_OverwritesWithoutMerging(t *testing.T) {
	h := newHarness(t)
	h.remote.loadErr["f1"] = persistence.ErrLoadPending

	require.NoError(t, h.orch.SwitchFlow(t.Context(), "f1"))

	// Edits made while loading are discarded by the load.
	require.True(t, h.store.AddNode(models.Node{ID: "local", Type: "log"}))
	assert.Equal(t, 0, h.timers.armed())

	require.True(t, h.orch.ApplyLoad(t.Context(), "f1", twoNodeGraph(), nil))

	_, ok := h.store.Node("local")
	assert.False(t, ok)
	assert.Len(t, h.store.Nodes(), 2)
}

func TestLoadFailure_KeepsAutosaveFenced(t *testing.T) {
	h := newHarness(t)
	h.remote.loadErr["f1"] = errors.New("connection refused")

	err := h.orch.SwitchFlow(t.Context(), "f1")
	require.Error(t, err)

	status := h.orch.Status()
	assert.Equal(t, flowsync.StateLoading, status.State)
	assert.Contains(t, status.LastError, "connection refused")
	assert.Equal(t, markers.StateLoading, h.marker(t, "f1"))

	require.True(t, h.store.AddNode(models.Node{ID: "x", Type: "log"}))
	assert.Equal(t, 0, h.timers.armed())
	assert.ErrorIs(t, h.orch.Save(t.Context()), flowsync.ErrNotLoaded)

	delete(h.remote.loadErr, "f1")
	h.remote.graphs["f1"] = twoNodeGraph()

	require.NoError(t, h.orch.Reload(t.Context()))

	status = h.orch.Status()
	assert.Equal(t, flowsync.StateLoaded, status.State)
	assert.Empty(t, status.LastError)
	assert.Equal(t, markers.StateLoaded, h.marker(t, "f1"))
}

func TestReload_WithoutFlow(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.orch.Reload(t.Context()), flowsync.ErrNoFlow)
}

func TestAutosave_DebouncesBurst(t *testing.T) {
	h := newHarness(t)
	h.remote.graphs["f1"] = twoNodeGraph()
	require.NoError(t, h.orch.SwitchFlow(t.Context(), "f1"))

	require.True(t, h.store.AddNode(models.Node{ID: "c", Type: "log", Data: map[string]any{"output": "big"}}))
	require.True(t, h.store.UpdateNodePosition("c", models.Position{X: 5, Y: 5}))
	require.True(t, h.store.UpdateNodeData("a", map[string]any{"value": 2.0}))

	assert.Equal(t, 3, h.timers.armed())
	assert.True(t, h.orch.Status().Pending)

	h.timers.fireAll()

	// Only the last timer was still armed, and the save waits for the idle tick.
	assert.Equal(t, 1, h.idle.pending())
	assert.Empty(t, h.remote.saved())
	assert.False(t, h.orch.Status().Pending)

	h.idle.runPending()

	saves := h.remote.saved()
	require.Len(t, saves, 1)
	assert.Equal(t, "f1", saves[0].flowID)
	assert.Equal(t, "user-1", saves[0].userID)
	require.Len(t, saves[0].graph.Nodes, 3)
	assert.Equal(t, 2.0, saves[0].graph.Nodes[0].Data["value"])
	assert.NotContains(t, saves[0].graph.Nodes[2].Data, "output")

	status := h.orch.Status()
	assert.NotNil(t, status.LastSavedAt)
	assert.Empty(t, status.LastError)
	assert.Contains(t, h.publisher.types(), events.FlowSavedEvent)
}

func TestAutosave_SkipsWhenGraphMatchesLastSave(t *testing.T) {
	h := newHarness(t)
	h.remote.graphs["f1"] = twoNodeGraph()
	require.NoError(t, h.orch.SwitchFlow(t.Context(), "f1"))

	require.True(t, h.store.UpdateNodePosition("a", models.Position{X: 10, Y: 0}))
	require.True(t, h.store.UpdateNodePosition("a", models.Position{}))

	h.timers.fireAll()
	h.idle.runPending()

	assert.Empty(t, h.remote.saved())
}

func TestAutosave_IgnoresSelectionAndErrorLog(t *testing.T) {
	h := newHarness(t)
	h.remote.graphs["f1"] = twoNodeGraph()
	require.NoError(t, h.orch.SwitchFlow(t.Context(), "f1"))

	h.store.SelectNode("a")
	h.store.LogNodeError("a", "boom", models.SeverityError, "test")

	assert.Equal(t, 0, h.timers.armed())
}

func TestAutosave_StaleTimerAfterFlowSwitch(t *testing.T) {
	h := newHarness(t)
	h.remote.graphs["f1"] = twoNodeGraph()
	h.remote.loadErr["f2"] = persistence.ErrLoadPending
	require.NoError(t, h.orch.SwitchFlow(t.Context(), "f1"))

	require.True(t, h.store.AddNode(models.Node{ID: "c", Type: "log"}))
	require.Equal(t, 1, h.timers.armed())
	f1Timer := h.timers.last()

	require.NoError(t, h.orch.SwitchFlow(t.Context(), "f2"))
	assert.True(t, f1Timer.stopped)

	// The timer callback racing with Stop must still do nothing.
	f1Timer.fn()
	assert.Equal(t, 0, h.idle.pending())

	h.idle.runPending()
	assert.Empty(t, h.remote.saved())
	assert.Len(t, h.remote.graphs["f1"].Nodes, 2)
}

func TestAutosave_QueuedSaveDroppedAfterFlowSwitch(t *testing.T) {
	h := newHarness(t)
	h.remote.graphs["f1"] = twoNodeGraph()
	h.remote.loadErr["f2"] = persistence.ErrLoadPending
	require.NoError(t, h.orch.SwitchFlow(t.Context(), "f1"))

	require.True(t, h.store.RemoveNode("b"))
	h.timers.fireAll()
	require.Equal(t, 1, h.idle.pending())

	require.NoError(t, h.orch.SwitchFlow(t.Context(), "f2"))
	h.idle.runPending()

	assert.Empty(t, h.remote.saved())
}

func TestAutosave_MarkerFromAnotherSessionFencesSave(t *testing.T) {
	h := newHarness(t)
	h.remote.graphs["f1"] = twoNodeGraph()
	require.NoError(t, h.orch.SwitchFlow(t.Context(), "f1"))

	require.True(t, h.store.AddNode(models.Node{ID: "c", Type: "log"}))
	h.timers.fireAll()

	require.NoError(t, h.markers.Set(t.Context(), markers.LoadingKey("f1"), markers.StateLoading))
	h.idle.runPending()
	assert.Empty(t, h.remote.saved())

	require.True(t, h.store.AddNode(models.Node{ID: "d", Type: "log"}))
	h.timers.fireAll()
	h.idle.runPending()
	assert.Empty(t, h.remote.saved())
	assert.ErrorIs(t, h.orch.Save(t.Context()), flowsync.ErrFlowLoading)
}

func TestAutosave_Gates(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
		armed int
		want  error
	}{
		{"not hydrated", func(h *harness) { h.hydration.ready = false }, 0, flowsync.ErrNotHydrated},
		{"unauthenticated", func(h *harness) { h.access.User = "" }, 0, flowsync.ErrUnauthenticated},
		// Edit rights are checked on the idle tick, not while editing.
		{"read only", func(h *harness) { h.access.ReadOnly = true }, 1, flowsync.ErrReadOnly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.remote.graphs["f1"] = twoNodeGraph()
			require.NoError(t, h.orch.SwitchFlow(t.Context(), "f1"))

			tt.setup(h)

			require.True(t, h.store.AddNode(models.Node{ID: "c", Type: "log"}))
			assert.Equal(t, tt.armed, h.timers.armed())

			h.timers.fireAll()
			h.idle.runPending()
			assert.Empty(t, h.remote.saved())

			err := h.orch.Save(t.Context())
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, flowsync.IsSaveBlocked(err))
			assert.Empty(t, h.remote.saved())
		})
	}
}

func TestManualSave_CancelsPendingTimer(t *testing.T) {
	h := newHarness(t)
	h.remote.graphs["f1"] = twoNodeGraph()
	require.NoError(t, h.orch.SwitchFlow(t.Context(), "f1"))

	require.True(t, h.store.AddNode(models.Node{ID: "c", Type: "log"}))
	pending := h.timers.last()

	require.NoError(t, h.orch.Save(t.Context()))
	assert.True(t, pending.stopped)
	assert.False(t, h.orch.Status().Pending)
	require.Len(t, h.remote.saved(), 1)

	// A manual save goes through even when nothing changed.
	require.NoError(t, h.orch.Save(t.Context()))
	assert.Len(t, h.remote.saved(), 2)
}

func TestSaveFailure_RecordsErrorWithoutRetry(t *testing.T) {
	h := newHarness(t)
	h.remote.graphs["f1"] = twoNodeGraph()
	require.NoError(t, h.orch.SwitchFlow(t.Context(), "f1"))

	h.remote.saveErr = errors.New("503 unavailable")
	require.True(t, h.store.AddNode(models.Node{ID: "c", Type: "log"}))
	h.timers.fireAll()
	h.idle.runPending()

	status := h.orch.Status()
	assert.Contains(t, status.LastError, "503 unavailable")
	assert.Nil(t, status.LastSavedAt)
	assert.Equal(t, 1, h.timers.armed())
	assert.Contains(t, h.publisher.types(), events.FlowSaveFailedEvent)

	err := h.orch.Save(t.Context())
	require.Error(t, err)
	assert.False(t, flowsync.IsSaveBlocked(err))

	h.remote.saveErr = nil
	require.NoError(t, h.orch.Save(t.Context()))

	status = h.orch.Status()
	assert.Empty(t, status.LastError)
	assert.NotNil(t, status.LastSavedAt)
}

func TestClose_StopsEverything(t *testing.T) {
	h := newHarness(t)
	h.remote.graphs["f1"] = twoNodeGraph()
	require.NoError(t, h.orch.SwitchFlow(t.Context(), "f1"))

	require.True(t, h.store.AddNode(models.Node{ID: "c", Type: "log"}))
	pending := h.timers.last()

	h.orch.Close()
	assert.True(t, pending.stopped)

	require.True(t, h.store.AddNode(models.Node{ID: "d", Type: "log"}))
	assert.Equal(t, 1, h.timers.armed())

	assert.ErrorIs(t, h.orch.Save(t.Context()), flowsync.ErrClosed)
	assert.ErrorIs(t, h.orch.SwitchFlow(t.Context(), "f2"), flowsync.ErrClosed)
}

func TestOrchestrator_RealTimersAndIdleQueue(t *testing.T) {
	store := graph.NewStore(graph.Options{})
	remote := newFakeRemote()
	remote.graphs["f1"] = twoNodeGraph()

	orch := flowsync.New(flowsync.Options{
		Store:    store,
		Remote:   remote,
		Access:   flowsync.StaticAccess{User: "u"},
		Debounce: 10 * time.Millisecond,
	})
	defer orch.Close()

	require.NoError(t, orch.SwitchFlow(t.Context(), "f1"))
	require.True(t, store.AddNode(models.Node{ID: "c", Type: "log"}))

	assert.Eventually(t, func() bool {
		return len(remote.saved()) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

type countingMarkers struct {
	*markers.Memory

	mu   sync.Mutex
	gets int
}

func (c *countingMarkers) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	c.gets++
	c.mu.Unlock()

	return c.Memory.Get(ctx, key)
}

func (c *countingMarkers) lookups() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.gets
}

func TestAutosave_DragBurstStaysOffTheMarkerStore(t *testing.T) {
	store := graph.NewStore(graph.Options{})
	remote := newFakeRemote()
	remote.graphs["f1"] = twoNodeGraph()
	marks := &countingMarkers{Memory: markers.NewMemory()}
	timers := &fakeTimers{}
	idle := &manualIdle{}

	orch := flowsync.New(flowsync.Options{
		Store:   store,
		Remote:  remote,
		Markers: marks,
		Access:  flowsync.StaticAccess{User: "u"},
		Timers:  timers.After,
		Idle:    idle,
	})
	t.Cleanup(orch.Close)

	require.NoError(t, orch.SwitchFlow(t.Context(), "f1"))
	before := marks.lookups()

	for i := 1; i <= 100; i++ {
		require.True(t, store.UpdateNodePosition("a", models.Position{X: float64(i), Y: float64(i)}))
	}

	assert.Equal(t, before, marks.lookups())
	assert.True(t, orch.Status().Pending)

	timers.fireAll()
	idle.runPending()

	assert.Equal(t, before+1, marks.lookups())

	saves := remote.saved()
	require.Len(t, saves, 1)
	assert.Equal(t, models.Position{X: 100, Y: 100}, saves[0].graph.Nodes[0].Position)
}

// switchingStore runs beforeReplace once, ahead of the next Replace.
type switchingStore struct {
	*graph.Store

	beforeReplace func()
}

func (s *switchingStore) Replace(g *models.Graph) {
	if hook := s.beforeReplace; hook != nil {
		s.beforeReplace = nil
		hook()
	}

	s.Store.Replace(g)
}

func TestApplyLoad_SwitchDuringReplaceKeepsNewFlowEmpty(t *testing.T) {
	store := &switchingStore{Store: graph.NewStore(graph.Options{})}
	remote := newFakeRemote()
	remote.graphs["f1"] = twoNodeGraph()
	remote.loadErr["f2"] = persistence.ErrLoadPending

	orch := flowsync.New(flowsync.Options{
		Store:  store,
		Remote: remote,
		Access: flowsync.StaticAccess{User: "u"},
		Timers: (&fakeTimers{}).After,
		Idle:   &manualIdle{},
	})
	t.Cleanup(orch.Close)

	switched := make(chan error, 1)
	store.beforeReplace = func() {
		go func() { switched <- orch.SwitchFlow(context.Background(), "f2") }()

		require.Eventually(t, func() bool {
			return orch.Status().FlowID == "f2"
		}, 2*time.Second, time.Millisecond)
	}

	require.NoError(t, orch.SwitchFlow(t.Context(), "f1"))
	require.NoError(t, <-switched)

	status := orch.Status()
	assert.Equal(t, "f2", status.FlowID)
	assert.Equal(t, flowsync.StateLoading, status.State)
	assert.Empty(t, store.Nodes())
	assert.Empty(t, store.Edges())
}
