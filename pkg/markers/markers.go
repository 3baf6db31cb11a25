// Package markers is the cross-session key-value store used to fence flow
// loads and to locate local crash-recovery backups.
package markers

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("marker not found")

const keyPrefix = "flowcanvas"

// Marker values stored under LoadingKey.
const (
	StateLoading = "loading"
	StateLoaded  = "loaded"
)

// Store is a string key-value store shared by every session of a user.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	// Keys lists the keys starting with prefix, in no particular order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// LoadingKey is the key of a flow's load-state marker.
func LoadingKey(flowID string) string {
	return fmt.Sprintf("%s:flow:%s:state", keyPrefix, flowID)
}

// BackupPrefix is the common prefix of a flow's backup keys.
func BackupPrefix(flowID string) string {
	return fmt.Sprintf("%s:backup:%s:", keyPrefix, flowID)
}

// BackupKey is the key of one backup of a flow taken at stamp.
func BackupKey(flowID string, stamp int64) string {
	return fmt.Sprintf("%s%d", BackupPrefix(flowID), stamp)
}

// IsLoading reports whether the flow's marker says a load is in progress.
// Lookup failures count as loading so autosave stays fenced.
func IsLoading(ctx context.Context, store Store, flowID string) bool {
	value, err := store.Get(ctx, LoadingKey(flowID))
	if err != nil {
		return !errors.Is(err, ErrNotFound)
	}

	return strings.EqualFold(value, StateLoading)
}
