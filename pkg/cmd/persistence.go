package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/flowcanvas/pkg/markers"
	"github.com/dukex/flowcanvas/pkg/persistence"
	"github.com/dukex/flowcanvas/pkg/persistence/file"
	"github.com/dukex/flowcanvas/pkg/persistence/postgresql"
)

var ErrUnsupportedProvider = errors.New("unsupported provider")

// NewRemoteStore creates the remote flow store named by databaseURL. The
// scheme selects the provider: file:// or postgres(ql)://.
func NewRemoteStore(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.RemoteStore, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "file":
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres persistence: %w", err)
		}

		return store, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, databaseURL)
	}
}

// MarkerOptions configures NewMarkerStore.
type MarkerOptions struct {
	Provider string
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewMarkerStore creates the marker store. The returned close function is
// never nil.
func NewMarkerStore(ctx context.Context, logger *slog.Logger, opts MarkerOptions) (markers.Store, func() error, error) {
	switch opts.Provider {
	case "", "memory":
		return markers.NewMemory(), func() error { return nil }, nil
	case "redis":
		store, err := markers.ConnectRedis(ctx, opts.Addr, opts.Password, opts.DB, opts.TTL, logger)
		if err != nil {
			return nil, nil, err
		}

		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, opts.Provider)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return scheme
}
