// Package main provides the flowcanvas editor API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/dukex/flowcanvas/pkg/config"
	"github.com/dukex/flowcanvas/pkg/connection"
	"github.com/dukex/flowcanvas/pkg/eventbus"
	"github.com/dukex/flowcanvas/pkg/events"
	"github.com/dukex/flowcanvas/pkg/flowsync"
	"github.com/dukex/flowcanvas/pkg/graph"
	"github.com/dukex/flowcanvas/pkg/localcache"
	"github.com/dukex/flowcanvas/pkg/log"
	"github.com/dukex/flowcanvas/pkg/markers"
	"github.com/dukex/flowcanvas/pkg/persistence"
	"github.com/dukex/flowcanvas/pkg/registry"
	"github.com/dukex/flowcanvas/pkg/sanitize"
	"github.com/dukex/flowcanvas/pkg/services"
	"github.com/dukex/flowcanvas/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"
)

// Dependencies are the external collaborators of the API.
type Dependencies struct {
	Registry *registry.Registry
	Remote   persistence.RemoteStore
	Markers  markers.Store
	EventBus eventbus.EventBus
	Tracer   trace.Tracer
}

type API struct {
	cfg          *config.Config
	logger       *slog.Logger
	deps         Dependencies
	validate     *validator.Validate
	editor       *services.Editor
	orchestrator *flowsync.Orchestrator
	cache        *localcache.Cache
	backups      *localcache.BackupScheduler
}

func NewAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps Dependencies) (*API, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if deps.Markers == nil {
		deps.Markers = markers.NewMemory()
	}

	cache := localcache.New(cfg.Backup.Dir, deps.Markers, logger)
	if err := cache.Hydrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to hydrate local cache: %w", err)
	}

	releaser := eventbus.NewReleaser(deps.EventBus, logger)
	typeValidator := connection.NewValidator(deps.Registry, cfg.Validation.RelaxedTypes)
	notifications := connection.NewMemorySink(cfg.Validation.NotificationLimit)
	feedback := connection.NewFeedback(
		connection.MultiSink{notifications, connection.LogSink{Logger: logger}},
		cfg.Validation.FeedbackCooldown, nil)
	sanitizer := sanitize.New(cfg.Sanitizer)

	offset := cfg.Graph.PasteOffset
	store := graph.NewStore(graph.Options{
		Logger:           logger,
		Releaser:         releaser,
		Gate:             connection.NewGate(typeValidator, feedback),
		ErrorLogCapacity: cfg.Graph.ErrorLogCapacity,
		PasteOffset:      &offset,
	})

	orchestrator := flowsync.New(flowsync.Options{
		Store:     store,
		Remote:    deps.Remote,
		Markers:   deps.Markers,
		Hydration: cache,
		Access:    flowsync.StaticAccess{User: cfg.UserID},
		Backups:   cache,
		Publisher: deps.EventBus,
		Sanitizer: sanitizer,
		Debounce:  cfg.Sync.Debounce,
		Tracer:    deps.Tracer,
		Logger:    logger,
	})

	editor := services.NewEditor(services.EditorOptions{
		Store:         store,
		Registry:      deps.Registry,
		Validator:     typeValidator,
		Notifications: notifications,
		Orchestrator:  orchestrator,
		Remote:        deps.Remote,
		Releaser:      releaser,
		Logger:        logger,
	})

	api := &API{
		cfg:          cfg,
		logger:       logger,
		deps:         deps,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		editor:       editor,
		orchestrator: orchestrator,
		cache:        cache,
	}

	if cfg.Backup.Enabled {
		backups, err := localcache.NewBackupScheduler(cache, editor, sanitizer, cfg.Backup.Schedule, logger)
		if err != nil {
			orchestrator.Close()

			return nil, err
		}

		api.backups = backups
	}

	return api, nil
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.editor, a.validate, a.deps.Registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowcanvas API")
	})

	handlers.Register(app)

	return app
}

// Start runs the background workers. They stop when ctx is cancelled or on
// Shutdown.
func (a *API) Start(ctx context.Context) error {
	if err := a.subscribeEvents(ctx); err != nil {
		return err
	}

	if a.backups != nil {
		if err := a.backups.Start(ctx); err != nil {
			return fmt.Errorf("failed to start backup scheduler: %w", err)
		}
	}

	return nil
}

func (a *API) Listen(app *fiber.App) error {
	return app.Listen(":" + strconv.Itoa(a.cfg.Port))
}

// Shutdown takes a last backup of the open flow and stops the workers.
func (a *API) Shutdown(ctx context.Context) {
	if a.backups != nil {
		a.backups.Stop()

		if err := a.backups.RunOnce(ctx); err != nil {
			a.logger.ErrorContext(ctx, "Failed to back up flow on shutdown", log.Error(err))
		}
	}

	a.orchestrator.Close()
}

// subscribeEvents logs the editor lifecycle events seen on the bus.
func (a *API) subscribeEvents(ctx context.Context) error {
	handlers := map[events.EventType]eventbus.EventHandler{
		events.FlowSavedEvent: func(ctx context.Context, event any) error {
			if e, ok := event.(*events.FlowSaved); ok {
				a.logger.DebugContext(ctx, "Flow saved", log.FlowID(e.FlowID),
					"nodes", e.NodeCount, "edges", e.EdgeCount, "manual", e.Manual)
			}

			return nil
		},
		events.FlowSaveFailedEvent: func(ctx context.Context, event any) error {
			if e, ok := event.(*events.FlowSaveFailed); ok {
				a.logger.WarnContext(ctx, "Flow save failed", log.FlowID(e.FlowID), "error", e.Error)
			}

			return nil
		},
		events.NodeReleasedEvent: func(ctx context.Context, event any) error {
			if e, ok := event.(*events.NodeReleased); ok {
				a.logger.DebugContext(ctx, "Node released", log.FlowID(e.FlowID), log.NodeID(e.NodeID))
			}

			return nil
		},
	}

	for eventType, handler := range handlers {
		if err := a.deps.EventBus.Handle(eventType, handler); err != nil {
			return fmt.Errorf("failed to register %s handler: %w", eventType, err)
		}
	}

	if err := a.deps.EventBus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	return nil
}
