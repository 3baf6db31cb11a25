// Package config holds the editor engine settings and their defaults.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dukex/flowcanvas/pkg/models"
	"github.com/dukex/flowcanvas/pkg/sanitize"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

const (
	DefaultPort              = 9091
	DefaultLogLevel          = "info"
	DefaultDebounce          = 1500 * time.Millisecond
	DefaultFeedbackCooldown  = time.Second
	DefaultNotificationLimit = 50
	DefaultErrorLogCapacity  = 10
	DefaultBackupSchedule    = "@every 30s"
	DefaultBackupDir         = "./data/cache"
	DefaultDatabaseURL       = "file://./data"
	DefaultMarkerTTL         = 7 * 24 * time.Hour
	DefaultRedisAddr         = "localhost:6379"
	DefaultEventBus          = "gochannel"
	DefaultShutdownTimeout   = 10 * time.Second
)

var (
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrInvalidSchedule = errors.New("invalid backup schedule")
)

type (
	// Config holds every setting of the editor service.
	Config struct {
		LogLevel        string        `validate:"oneof=debug info warn error"`
		Port            int           `validate:"min=1,max=65535"`
		UserID          string        `validate:"required"`
		ShutdownTimeout time.Duration `validate:"gt=0"`
		NodeTypesFile   string
		Tracing         bool

		Sync       SyncConfig
		Sanitizer  sanitize.Limits
		Validation ValidationConfig
		Graph      GraphConfig
		Backup     BackupConfig
		Storage    StorageConfig
		Events     EventsConfig
	}

	SyncConfig struct {
		Debounce time.Duration `validate:"gt=0"`
	}

	ValidationConfig struct {
		RelaxedTypes      bool
		FeedbackCooldown  time.Duration `validate:"gte=0"`
		NotificationLimit int           `validate:"min=1"`
	}

	GraphConfig struct {
		ErrorLogCapacity int `validate:"min=1,max=1000"`
		PasteOffset      models.Position
	}

	BackupConfig struct {
		Enabled  bool
		Schedule string `validate:"required"`
		Dir      string `validate:"required"`
	}

	StorageConfig struct {
		DatabaseURL   string `validate:"required"`
		MarkerStore   string `validate:"oneof=memory redis"`
		RedisAddr     string `validate:"required_if=MarkerStore redis"`
		RedisPassword string
		RedisDB       int           `validate:"min=0"`
		MarkerTTL     time.Duration `validate:"gte=0"`
	}

	EventsConfig struct {
		Provider     string `validate:"oneof=gochannel kafka"`
		KafkaBrokers string `validate:"required_if=Provider kafka"`
	}
)

func NewDefaultConfig() *Config {
	return &Config{
		LogLevel:        DefaultLogLevel,
		Port:            DefaultPort,
		ShutdownTimeout: DefaultShutdownTimeout,
		Sync: SyncConfig{
			Debounce: DefaultDebounce,
		},
		Sanitizer: sanitize.DefaultLimits(),
		Validation: ValidationConfig{
			FeedbackCooldown:  DefaultFeedbackCooldown,
			NotificationLimit: DefaultNotificationLimit,
		},
		Graph: GraphConfig{
			ErrorLogCapacity: DefaultErrorLogCapacity,
			PasteOffset:      models.Position{X: 40, Y: 40},
		},
		Backup: BackupConfig{
			Enabled:  true,
			Schedule: DefaultBackupSchedule,
			Dir:      DefaultBackupDir,
		},
		Storage: StorageConfig{
			DatabaseURL: DefaultDatabaseURL,
			MarkerStore: "memory",
			RedisAddr:   DefaultRedisAddr,
			MarkerTTL:   DefaultMarkerTTL,
		},
		Events: EventsConfig{
			Provider: DefaultEventBus,
		},
	}
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if _, err := cron.ParseStandard(c.Backup.Schedule); err != nil {
		return fmt.Errorf("%w '%s': %w", ErrInvalidSchedule, c.Backup.Schedule, err)
	}

	return nil
}
