package storage

import (
	"context"
	"path/filepath"
	"testing"

	"fuel-monitor/internal/config"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseBlobStore runs the same contract against every backend.
func exerciseBlobStore(t *testing.T, store BlobStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("PutThenGet", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "alerts", []byte(`[{"message":"a"}]`)))
		data, err := store.Get(ctx, "alerts")
		require.NoError(t, err)
		assert.JSONEq(t, `[{"message":"a"}]`, string(data))
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "alerts", []byte(`[]`)))
		data, err := store.Get(ctx, "alerts")
		require.NoError(t, err)
		assert.Equal(t, "[]", string(data))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "alerts"))
		_, err := store.Get(ctx, "alerts")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStore(t *testing.T) {
	exerciseBlobStore(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "blobs.db")
	store, err := NewSQLite(context.Background(), dsn)
	require.NoError(t, err)
	defer store.Close()

	exerciseBlobStore(t, store)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "blobs.db")

	first, err := NewSQLite(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, "k", []byte("v1")))
	require.NoError(t, first.Close())

	second, err := NewSQLite(ctx, dsn)
	require.NoError(t, err)
	defer second.Close()

	data, err := second.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedis(client, "test:")
	exerciseBlobStore(t, store)
	assert.NoError(t, store.Ping(context.Background()))

	mr.Close()
	assert.Error(t, store.Ping(context.Background()))
}

func TestRedisStoreUsesPrefix(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedis(client, "")
	require.NoError(t, store.Put(context.Background(), "agilfleet-alerts", []byte("[]")))

	value, err := mr.Get(defaultRedisPrefix + "agilfleet-alerts")
	require.NoError(t, err)
	assert.Equal(t, "[]", value)
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, config.StorageConfig{Driver: "redis"}, nil)
	assert.Error(t, err)

	_, err = Open(ctx, config.StorageConfig{Driver: "floppy"}, nil)
	assert.Error(t, err)

	store, err := Open(ctx, config.StorageConfig{Driver: "sqlite", DSN: "file:" + filepath.Join(t.TempDir(), "x.db")}, nil)
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &SQLiteStore{}, store)
}
