package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/flowcanvas/pkg/cmd"
	"github.com/dukex/flowcanvas/pkg/config"
	"github.com/dukex/flowcanvas/pkg/log"
	"github.com/dukex/flowcanvas/pkg/otelhelper"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "flowcanvas-api",
		Usage:                 "Edit flow graphs and keep them in sync with the remote store",
		EnableShellCompletion: true,
		Flags:                 flags(),
		Action:                run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("api").Error("Failed to run API", log.Error(err))
		os.Exit(1)
	}
}

func flags() []cli.Flag {
	defaults := config.NewDefaultConfig()

	return []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaults.Port,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.StringFlag{
			Name:     "user-id",
			Usage:    "Authenticated user the editor saves flows as",
			Required: true,
			Sources:  cli.EnvVars("USER_ID"),
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Remote store URL (file://path or postgres://...)",
			Value:   defaults.Storage.DatabaseURL,
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "marker-store",
			Usage:   "Marker store (memory, redis)",
			Value:   defaults.Storage.MarkerStore,
			Sources: cli.EnvVars("MARKER_STORE"),
		},
		&cli.StringFlag{
			Name:    "redis-addr",
			Usage:   "Redis address for the marker store",
			Value:   defaults.Storage.RedisAddr,
			Sources: cli.EnvVars("REDIS_ADDR"),
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis password",
			Sources: cli.EnvVars("REDIS_PASSWORD"),
		},
		&cli.IntFlag{
			Name:    "redis-db",
			Usage:   "Redis database number",
			Sources: cli.EnvVars("REDIS_DB"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   defaults.Events.Provider,
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "node-types",
			Usage:   "YAML file with additional node type schemas",
			Sources: cli.EnvVars("NODE_TYPES_FILE"),
		},
		&cli.DurationFlag{
			Name:    "autosave-debounce",
			Usage:   "Quiet period before an edit is autosaved",
			Value:   defaults.Sync.Debounce,
			Sources: cli.EnvVars("AUTOSAVE_DEBOUNCE"),
		},
		&cli.BoolFlag{
			Name:    "relaxed-types",
			Usage:   "Allow loosely compatible handle types to connect",
			Sources: cli.EnvVars("RELAXED_TYPES"),
		},
		&cli.BoolFlag{
			Name:    "backups",
			Usage:   "Take periodic local backups of the open flow",
			Value:   defaults.Backup.Enabled,
			Sources: cli.EnvVars("BACKUPS_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "backup-schedule",
			Usage:   "Cron schedule of local backups",
			Value:   defaults.Backup.Schedule,
			Sources: cli.EnvVars("BACKUP_SCHEDULE"),
		},
		&cli.StringFlag{
			Name:    "backup-dir",
			Usage:   "Directory of the local flow cache",
			Value:   defaults.Backup.Dir,
			Sources: cli.EnvVars("BACKUP_DIR"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   defaults.LogLevel,
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
	}
}

func configFrom(command *cli.Command) *config.Config {
	cfg := config.NewDefaultConfig()

	cfg.Port = command.Int("port")
	cfg.UserID = command.String("user-id")
	cfg.LogLevel = command.String("log-level")
	cfg.NodeTypesFile = command.String("node-types")
	cfg.Tracing = command.Bool("tracing")
	cfg.Sync.Debounce = command.Duration("autosave-debounce")
	cfg.Validation.RelaxedTypes = command.Bool("relaxed-types")
	cfg.Backup.Enabled = command.Bool("backups")
	cfg.Backup.Schedule = command.String("backup-schedule")
	cfg.Backup.Dir = command.String("backup-dir")
	cfg.Storage.DatabaseURL = command.String("database-url")
	cfg.Storage.MarkerStore = command.String("marker-store")
	cfg.Storage.RedisAddr = command.String("redis-addr")
	cfg.Storage.RedisPassword = command.String("redis-password")
	cfg.Storage.RedisDB = command.Int("redis-db")
	cfg.Events.Provider = command.String("event-bus")
	cfg.Events.KafkaBrokers = command.String("kafka-brokers")

	return cfg
}

func run(ctx context.Context, command *cli.Command) error {
	cfg := configFrom(command)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log.Setup(cfg.LogLevel)
	logger := log.WithModule("api")

	logger.InfoContext(ctx, "Initializing Flowcanvas API", log.UserID(cfg.UserID))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	api, err := NewAPI(ctx, cfg, logger, deps)
	if err != nil {
		return err
	}

	if err := api.Start(ctx); err != nil {
		return err
	}

	app := api.App()
	errCh := make(chan error, 1)

	go func() {
		errCh <- api.Listen(app)
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if shutdownErr := app.ShutdownWithContext(shutdownCtx); shutdownErr != nil {
		logger.Error("Failed to shut down HTTP server", log.Error(shutdownErr))
	}

	api.Shutdown(shutdownCtx)

	return err
}

func buildDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Dependencies, func(), error) {
	var closers []func()

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	fail := func(err error) (Dependencies, func(), error) {
		cleanup()

		return Dependencies{}, func() {}, err
	}

	reg, err := cmd.NewRegistry(logger, cfg.NodeTypesFile)
	if err != nil {
		return fail(err)
	}

	remote, err := cmd.NewRemoteStore(ctx, logger, cfg.Storage.DatabaseURL)
	if err != nil {
		return fail(err)
	}

	closers = append(closers, func() {
		if err := remote.Close(context.Background()); err != nil {
			logger.Error("Failed to close remote store", log.Error(err))
		}
	})

	markerStore, closeMarkers, err := cmd.NewMarkerStore(ctx, logger, cmd.MarkerOptions{
		Provider: cfg.Storage.MarkerStore,
		Addr:     cfg.Storage.RedisAddr,
		Password: cfg.Storage.RedisPassword,
		DB:       cfg.Storage.RedisDB,
		TTL:      cfg.Storage.MarkerTTL,
	})
	if err != nil {
		return fail(err)
	}

	closers = append(closers, func() {
		if err := closeMarkers(); err != nil {
			logger.Error("Failed to close marker store", log.Error(err))
		}
	})

	bus, err := cmd.NewEventBus(cfg.Events.Provider, cfg.Events.KafkaBrokers, logger)
	if err != nil {
		return fail(err)
	}

	closers = append(closers, func() {
		if err := bus.Close(); err != nil {
			logger.Error("Failed to close event bus", log.Error(err))
		}
	})

	deps := Dependencies{
		Registry: reg,
		Remote:   remote,
		Markers:  markerStore,
		EventBus: bus,
	}

	if cfg.Tracing {
		tracer, err := otelhelper.NewTracer(ctx, "flowcanvas-api")
		if err != nil {
			return fail(errors.Join(errTracing, err))
		}

		deps.Tracer = tracer
	}

	return deps, cleanup, nil
}

var errTracing = errors.New("failed to initialize tracer")
