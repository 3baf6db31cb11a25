// Package flowsync loads flows into the graph store and autosaves them back
// to the remote store.
package flowsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/flowcanvas/pkg/eventbus"
	"github.com/dukex/flowcanvas/pkg/events"
	"github.com/dukex/flowcanvas/pkg/graph"
	"github.com/dukex/flowcanvas/pkg/log"
	"github.com/dukex/flowcanvas/pkg/markers"
	"github.com/dukex/flowcanvas/pkg/models"
	"github.com/dukex/flowcanvas/pkg/otelhelper"
	"github.com/dukex/flowcanvas/pkg/persistence"
	"github.com/dukex/flowcanvas/pkg/sanitize"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const DefaultDebounce = 1500 * time.Millisecond

var (
	ErrNoFlow          = errors.New("no flow is open")
	ErrNotLoaded       = errors.New("flow is not loaded")
	ErrFlowLoading     = errors.New("flow is loading")
	ErrNotHydrated     = errors.New("local cache is not hydrated")
	ErrUnauthenticated = errors.New("user is not authenticated")
	ErrReadOnly        = errors.New("user cannot edit this flow")
	ErrClosed          = errors.New("orchestrator is closed")
)

// IsSaveBlocked reports whether err is a gating refusal rather than a
// transport failure.
func IsSaveBlocked(err error) bool {
	return errors.Is(err, ErrNoFlow) ||
		errors.Is(err, ErrNotLoaded) ||
		errors.Is(err, ErrFlowLoading) ||
		errors.Is(err, ErrNotHydrated) ||
		errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrReadOnly)
}

type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateLoaded  State = "loaded"
)

// Status is the orchestrator state shown to the user.
type Status struct {
	FlowID      string     `json:"flowId"`
	State       State      `json:"state"`
	Saving      bool       `json:"saving"`
	Pending     bool       `json:"pending"`
	LastSavedAt *time.Time `json:"lastSavedAt,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
	Fingerprint string     `json:"fingerprint,omitempty"`
}

// GraphStore is the part of graph.Store the orchestrator drives.
type GraphStore interface {
	Snapshot() *models.Graph
	Replace(g *models.Graph)
	ResetFlow()
	Subscribe(fn graph.Listener) func()
}

type Hydration interface {
	Hydrated() bool
}

type Access interface {
	UserID() string
	CanEdit(ctx context.Context, flowID string) bool
}

type BackupCleaner interface {
	ClearBackups(ctx context.Context, flowID string) error
}

// StaticAccess grants a fixed user edit rights on every flow unless ReadOnly.
type StaticAccess struct {
	User     string
	ReadOnly bool
}

func (a StaticAccess) UserID() string { return a.User }

func (a StaticAccess) CanEdit(context.Context, string) bool { return !a.ReadOnly }

type Options struct {
	Store     GraphStore
	Remote    persistence.RemoteStore
	Markers   markers.Store
	Hydration Hydration
	Access    Access
	Backups   BackupCleaner
	Publisher eventbus.EventPublisher
	Sanitizer *sanitize.Sanitizer
	Debounce  time.Duration
	Timers    TimerFunc
	Idle      IdleRunner
	Tracer    trace.Tracer
	Clock     func() time.Time
	Logger    *slog.Logger
}

// armed identifies one debounce timer. A timer whose tag no longer matches
// the orchestrator's is stale and does nothing when it fires.
type armed struct {
	flowID     string
	generation uint64
	seq        uint64
}

// Orchestrator owns the load and autosave lifecycle of the open flow.
type Orchestrator struct {
	store     GraphStore
	remote    persistence.RemoteStore
	markers   markers.Store
	hydration Hydration
	access    Access
	backups   BackupCleaner
	publisher eventbus.EventPublisher
	sanitizer *sanitize.Sanitizer
	debounce  time.Duration
	timers    TimerFunc
	idle      IdleRunner
	ownIdle   *IdleQueue
	tracer    trace.Tracer
	clock     func() time.Time
	logger    *slog.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()

	// saveMu keeps at most one remote save in flight.
	saveMu sync.Mutex

	// applyMu orders store resets on flow switch against load results
	// replacing the store, so a late result never lands under a newer flow.
	applyMu sync.Mutex

	mu          sync.Mutex
	flowID      string
	state       State
	generation  uint64
	seq         uint64
	timer       Timer
	tag         armed
	saving      bool
	lastSavedFP string
	lastSavedAt time.Time
	lastError   string
	closed      bool
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		store:     opts.Store,
		remote:    opts.Remote,
		markers:   opts.Markers,
		hydration: opts.Hydration,
		access:    opts.Access,
		backups:   opts.Backups,
		publisher: opts.Publisher,
		sanitizer: opts.Sanitizer,
		debounce:  opts.Debounce,
		timers:    opts.Timers,
		idle:      opts.Idle,
		tracer:    opts.Tracer,
		clock:     opts.Clock,
		logger:    opts.Logger,
		state:     StateIdle,
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}

	o.logger = o.logger.With("module", "flowsync")

	if o.markers == nil {
		o.markers = markers.NewMemory()
	}

	if o.access == nil {
		o.access = StaticAccess{}
	}

	if o.sanitizer == nil {
		o.sanitizer = defaultSanitizer
	}

	if o.debounce <= 0 {
		o.debounce = DefaultDebounce
	}

	if o.timers == nil {
		o.timers = AfterFunc
	}

	if o.idle == nil {
		o.ownIdle = NewIdleQueue(o.logger)
		o.idle = o.ownIdle
	}

	if o.tracer == nil {
		o.tracer = otel.Tracer("flowcanvas/flowsync")
	}

	if o.clock == nil {
		o.clock = time.Now
	}

	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.unsubscribe = o.store.Subscribe(func(c graph.Change) {
		if c.Structural() {
			o.OnGraphChange()
		}
	})

	return o
}

// Status returns a copy of the current state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Status{
		FlowID:      o.flowID,
		State:       o.state,
		Saving:      o.saving,
		Pending:     o.timer != nil,
		LastError:   o.lastError,
		Fingerprint: o.lastSavedFP,
	}

	if !o.lastSavedAt.IsZero() {
		at := o.lastSavedAt
		s.LastSavedAt = &at
	}

	return s
}

// SwitchFlow opens flowID: pending autosaves are cancelled, the store is
// cleared, the flow is marked as loading and a remote load is issued. An
// empty flowID closes the current flow. Switching to the flow already open
// does nothing.
func (o *Orchestrator) SwitchFlow(ctx context.Context, flowID string) error {
	if flowID != "" {
		if err := persistence.ValidateFlowID(flowID); err != nil {
			return err
		}
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()

		return ErrClosed
	}

	if flowID == o.flowID && o.state != StateIdle {
		o.mu.Unlock()

		return nil
	}

	previous := o.flowID
	o.stopTimerLocked()
	o.generation++
	o.flowID = flowID
	o.lastSavedFP = ""
	o.lastSavedAt = time.Time{}
	o.lastError = ""

	if flowID == "" {
		o.state = StateIdle
	} else {
		o.state = StateLoading
	}
	o.mu.Unlock()

	o.logger.InfoContext(ctx, "Switching flow", "previous_flow_id", previous, log.FlowID(flowID))

	if flowID == "" {
		o.resetStore()

		return nil
	}

	o.setMarker(ctx, flowID, markers.StateLoading)
	o.resetStore()

	return o.load(ctx, flowID)
}

// Reload fetches the open flow again. Pending autosaves are cancelled and
// autosave stays fenced until the load resolves.
func (o *Orchestrator) Reload(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()

		return ErrClosed
	}

	flowID := o.flowID
	if flowID == "" {
		o.mu.Unlock()

		return ErrNoFlow
	}

	o.stopTimerLocked()
	o.generation++
	o.state = StateLoading
	o.mu.Unlock()

	o.setMarker(ctx, flowID, markers.StateLoading)

	return o.load(ctx, flowID)
}

func (o *Orchestrator) load(ctx context.Context, flowID string) error {
	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "flow.load",
		attribute.String(otelhelper.FlowIDKey, flowID),
		attribute.String(otelhelper.UserIDKey, o.access.UserID()))
	defer span.End()

	g, err := o.remote.Load(ctx, flowID, o.access.UserID())
	if err != nil && !persistence.IsLoadPending(err) {
		otelhelper.SetError(span, err, attribute.String(otelhelper.FlowIDKey, flowID))
	}

	o.ApplyLoad(ctx, flowID, g, err)

	if err != nil && !persistence.IsLoadPending(err) {
		return fmt.Errorf("failed to load flow %s: %w", flowID, err)
	}

	return nil
}

// ApplyLoad resolves a remote load for flowID. Results for a flow that is no
// longer loading are ignored, as are pending results. A failed load keeps the
// flow fenced in the loading state and records the error. Otherwise the
// store is overwritten with the remote graph, the loading marker is cleared
// and, when the remote graph is not empty, local backups of the flow are
// dropped. It reports whether the graph was applied.
func (o *Orchestrator) ApplyLoad(ctx context.Context, flowID string, g *models.Graph, err error) bool {
	o.applyMu.Lock()
	o.mu.Lock()
	if o.closed || flowID == "" || flowID != o.flowID || o.state != StateLoading {
		o.mu.Unlock()
		o.applyMu.Unlock()
		o.logger.DebugContext(ctx, "Ignoring load result", log.FlowID(flowID))

		return false
	}

	if err != nil {
		if !persistence.IsLoadPending(err) {
			o.lastError = err.Error()
			o.logger.ErrorContext(ctx, "Flow load failed", log.FlowID(flowID), log.Error(err))
		}
		o.mu.Unlock()
		o.applyMu.Unlock()

		return false
	}

	gen := o.generation
	o.mu.Unlock()

	if g == nil {
		g = &models.Graph{}
	}

	o.store.Replace(g)
	loaded := o.store.Snapshot()
	fp := Fingerprint(loaded, o.sanitizer)

	o.mu.Lock()
	if gen != o.generation {
		// A flow switch resets the store once applyMu is released; a reload
		// of the same flow replaces it with its own result.
		o.mu.Unlock()
		o.applyMu.Unlock()

		return false
	}

	o.state = StateLoaded
	o.lastSavedFP = fp
	o.lastError = ""
	o.mu.Unlock()
	o.applyMu.Unlock()

	o.setMarker(ctx, flowID, markers.StateLoaded)

	if !g.IsEmpty() && o.backups != nil {
		if err := o.backups.ClearBackups(ctx, flowID); err != nil {
			o.logger.WarnContext(ctx, "Failed to clear local backups", log.FlowID(flowID), log.Error(err))
		}
	}

	o.logger.InfoContext(ctx, "Flow loaded", log.FlowID(flowID),
		"nodes", len(loaded.Nodes), "edges", len(loaded.Edges))

	o.publish(ctx, flowID, events.FlowLoaded{
		BaseEvent:   o.baseEvent(events.FlowLoadedEvent, flowID),
		NodeCount:   len(loaded.Nodes),
		EdgeCount:   len(loaded.Edges),
		Fingerprint: fp,
	})

	return true
}

// OnGraphChange (re)arms the autosave debounce for the loaded flow. It runs
// on the goroutine that mutated the store, so it only checks in-memory gates;
// the fingerprint comparison and the remote gates run on the idle tick. It is
// subscribed to the store and may also be called directly.
func (o *Orchestrator) OnGraphChange() {
	if o.hydration != nil && !o.hydration.Hydrated() {
		return
	}

	if o.access.UserID() == "" {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || o.state != StateLoaded {
		return
	}

	flowID, gen := o.flowID, o.generation
	o.stopTimerLocked()
	o.seq++
	tag := armed{flowID: flowID, generation: gen, seq: o.seq}
	o.tag = tag
	o.timer = o.timers(o.debounce, func() { o.fire(tag) })
}

func (o *Orchestrator) fire(tag armed) {
	o.mu.Lock()
	if o.tag != tag || o.timer == nil {
		o.mu.Unlock()

		return
	}

	o.timer = nil
	o.mu.Unlock()

	o.idle.Run(func() { o.autosave(tag) })
}

func (o *Orchestrator) autosave(tag armed) {
	o.mu.Lock()
	stale := o.closed || tag.generation != o.generation || o.state != StateLoaded
	o.mu.Unlock()

	if stale {
		o.logger.Debug("Dropping stale autosave", log.FlowID(tag.flowID))

		return
	}

	if err := o.gate(o.ctx, tag.flowID); err != nil {
		o.logger.Debug("Autosave gated", log.FlowID(tag.flowID), log.Error(err))

		return
	}

	_ = o.save(o.ctx, tag.flowID, tag.generation, false)
}

// Save cancels any pending autosave and saves the open flow now.
func (o *Orchestrator) Save(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()

		return ErrClosed
	}

	o.stopTimerLocked()
	flowID, gen, state := o.flowID, o.generation, o.state
	o.mu.Unlock()

	switch {
	case flowID == "":
		return ErrNoFlow
	case state != StateLoaded:
		return ErrNotLoaded
	}

	if err := o.gate(ctx, flowID); err != nil {
		return err
	}

	return o.save(ctx, flowID, gen, true)
}

func (o *Orchestrator) gate(ctx context.Context, flowID string) error {
	if o.hydration != nil && !o.hydration.Hydrated() {
		return ErrNotHydrated
	}

	if o.access.UserID() == "" {
		return ErrUnauthenticated
	}

	if !o.access.CanEdit(ctx, flowID) {
		return ErrReadOnly
	}

	if markers.IsLoading(ctx, o.markers, flowID) {
		return ErrFlowLoading
	}

	return nil
}

// save sanitizes the current graph and sends it to the remote store. An
// autosave whose graph matches the last saved fingerprint is skipped.
func (o *Orchestrator) save(ctx context.Context, flowID string, gen uint64, manual bool) error {
	o.saveMu.Lock()
	defer o.saveMu.Unlock()

	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()

		return nil
	}
	o.mu.Unlock()

	sanitized := o.sanitizer.SanitizeGraph(o.store.Snapshot())
	fp := fingerprintSanitized(sanitized)

	// The snapshot must belong to flowID: a switch in between clears the store.
	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()

		return nil
	}

	if !manual && fp == o.lastSavedFP {
		o.mu.Unlock()

		return nil
	}

	o.saving = true
	o.mu.Unlock()

	userID := o.access.UserID()
	start := o.clock()

	spanCtx, span := otelhelper.StartSpan(ctx, o.tracer, "flow.save",
		attribute.String(otelhelper.FlowIDKey, flowID),
		attribute.String(otelhelper.UserIDKey, userID),
		attribute.Int(otelhelper.NodeCountKey, len(sanitized.Nodes)),
		attribute.Int(otelhelper.EdgeCountKey, len(sanitized.Edges)),
		attribute.String(otelhelper.FingerprintKey, fp),
		attribute.Bool(otelhelper.SaveManualKey, manual))

	err := o.remote.Save(spanCtx, flowID, userID, sanitized)
	if err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.FlowIDKey, flowID))
	}

	span.End()

	o.mu.Lock()
	o.saving = false
	current := gen == o.generation

	if current {
		if err != nil {
			o.lastError = err.Error()
		} else {
			o.lastSavedFP = fp
			o.lastSavedAt = o.clock()
			o.lastError = ""
		}
	}
	o.mu.Unlock()

	if err != nil {
		o.logger.ErrorContext(ctx, "Flow save failed", log.FlowID(flowID), "manual", manual, log.Error(err))
		o.publish(ctx, flowID, events.FlowSaveFailed{
			BaseEvent: o.baseEvent(events.FlowSaveFailedEvent, flowID),
			Error:     err.Error(),
			Manual:    manual,
		})

		return fmt.Errorf("failed to save flow %s: %w", flowID, err)
	}

	o.logger.InfoContext(ctx, "Flow saved", log.FlowID(flowID),
		"nodes", len(sanitized.Nodes), "edges", len(sanitized.Edges), "manual", manual)

	o.publish(ctx, flowID, events.FlowSaved{
		BaseEvent:   o.baseEvent(events.FlowSavedEvent, flowID),
		NodeCount:   len(sanitized.Nodes),
		EdgeCount:   len(sanitized.Edges),
		Fingerprint: fp,
		Manual:      manual,
		Duration:    o.clock().Sub(start),
	})

	return nil
}

// Close cancels pending autosaves, detaches from the store and stops the
// idle queue the orchestrator created.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()

		return
	}

	o.closed = true
	o.stopTimerLocked()
	o.generation++
	o.mu.Unlock()

	o.unsubscribe()

	if o.ownIdle != nil {
		o.ownIdle.Close()
	}

	o.cancel()
}

func (o *Orchestrator) resetStore() {
	o.applyMu.Lock()
	defer o.applyMu.Unlock()

	o.store.ResetFlow()
}

func (o *Orchestrator) stopTimerLocked() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}

	o.tag = armed{}
}

func (o *Orchestrator) setMarker(ctx context.Context, flowID, value string) {
	if err := o.markers.Set(ctx, markers.LoadingKey(flowID), value); err != nil {
		o.logger.WarnContext(ctx, "Failed to set flow marker", log.FlowID(flowID), "value", value, log.Error(err))
	}
}

func (o *Orchestrator) baseEvent(t events.EventType, flowID string) events.BaseEvent {
	base := events.NewBaseEvent(t, flowID)
	base.UserID = o.access.UserID()

	return base
}

func (o *Orchestrator) publish(ctx context.Context, flowID string, event eventbus.Event) {
	if o.publisher == nil {
		return
	}

	if err := o.publisher.Publish(ctx, flowID, event); err != nil {
		o.logger.WarnContext(ctx, "Failed to publish event", log.FlowID(flowID),
			"event_type", string(event.GetType()), log.Error(err))
	}
}
