package markers_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dukex/flowcanvas/pkg/markers"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T, ttl time.Duration) (*markers.Redis, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{
		Addr:            server.Addr(),
		Protocol:        2,
		DisableIdentity: true,
	})

	store := markers.NewRedis(client, ttl, nil)
	t.Cleanup(func() { _ = store.Close() })

	return store, server
}

func stores(t *testing.T) map[string]markers.Store {
	t.Helper()

	r, _ := newRedis(t, 0)

	return map[string]markers.Store{
		"memory": markers.NewMemory(),
		"redis":  r,
	}
}

func TestStore_Contract(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Get(ctx, "missing")
			assert.ErrorIs(t, err, markers.ErrNotFound)

			require.NoError(t, store.Set(ctx, markers.LoadingKey("f1"), markers.StateLoading))
			require.NoError(t, store.Set(ctx, markers.BackupKey("f1", 1), "{}"))
			require.NoError(t, store.Set(ctx, markers.BackupKey("f1", 2), "{}"))
			require.NoError(t, store.Set(ctx, markers.BackupKey("f10", 3), "{}"))

			value, err := store.Get(ctx, markers.LoadingKey("f1"))
			require.NoError(t, err)
			assert.Equal(t, markers.StateLoading, value)

			keys, err := store.Keys(ctx, markers.BackupPrefix("f1"))
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{
				"flowcanvas:backup:f1:1",
				"flowcanvas:backup:f1:2",
			}, keys)

			require.NoError(t, store.Delete(ctx, keys...))
			require.NoError(t, store.Delete(ctx))

			keys, err = store.Keys(ctx, markers.BackupPrefix("f1"))
			require.NoError(t, err)
			assert.Empty(t, keys)

			keys, err = store.Keys(ctx, markers.BackupPrefix("f10"))
			require.NoError(t, err)
			assert.Len(t, keys, 1)
		})
	}
}

func TestIsLoading(t *testing.T) {
	ctx := context.Background()
	store := markers.NewMemory()

	assert.False(t, markers.IsLoading(ctx, store, "f1"))

	require.NoError(t, store.Set(ctx, markers.LoadingKey("f1"), markers.StateLoading))
	assert.True(t, markers.IsLoading(ctx, store, "f1"))

	require.NoError(t, store.Set(ctx, markers.LoadingKey("f1"), markers.StateLoaded))
	assert.False(t, markers.IsLoading(ctx, store, "f1"))

	assert.True(t, markers.IsLoading(ctx, failingStore{}, "f1"))
}

func TestRedis_TTL(t *testing.T) {
	store, server := newRedis(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v"))
	assert.Equal(t, time.Minute, server.TTL("k"))

	server.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, markers.ErrNotFound)
}

func TestRedis_ScanManyKeys(t *testing.T) {
	store, _ := newRedis(t, 0)
	ctx := context.Background()

	for i := range 250 {
		require.NoError(t, store.Set(ctx, markers.BackupKey("big", int64(i)), "{}"))
	}

	keys, err := store.Keys(ctx, markers.BackupPrefix("big"))
	require.NoError(t, err)
	assert.Len(t, keys, 250)
}

func TestConnectRedis_Unreachable(t *testing.T) {
	_, err := markers.ConnectRedis(context.Background(), "127.0.0.1:1", "", 0, 0, nil)
	assert.Error(t, err)
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, error) {
	return "", errors.New("unavailable")
}

func (failingStore) Set(context.Context, string, string) error { return nil }

func (failingStore) Delete(context.Context, ...string) error { return nil }

func (failingStore) Keys(context.Context, string) ([]string, error) { return nil, nil }
