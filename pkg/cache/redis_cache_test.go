package cache

import (
	"context"
	"testing"
	"time"

	"fuel-monitor/internal/models"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticClient struct {
	client *goredis.Client
}

func (s staticClient) GetClient() *goredis.Client { return s.client }

func newTestManager(t *testing.T) (*RedisCacheManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	config := DefaultCacheConfig()
	config.KeyPrefix = "test:"
	return NewRedisCacheManager(staticClient{client}, config), mr
}

func TestRedisCacheManager_VehicleList(t *testing.T) {
	ctx := context.Background()
	manager, mr := newTestManager(t)

	vehicles := []models.Vehicle{
		{ID: 1, LicensePlate: "AB-123-CD", Brand: "Renault", Model: "Kangoo", FuelType: "DIESEL"},
		{ID: 2, LicensePlate: "EF-456-GH", Brand: "Peugeot", Model: "Partner", FuelType: "GASOLINE"},
	}

	t.Run("Miss", func(t *testing.T) {
		got, err := manager.GetVehicleList(ctx, "all")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("SetThenGet", func(t *testing.T) {
		require.NoError(t, manager.SetVehicleList(ctx, "all", vehicles, time.Minute))
		got, err := manager.GetVehicleList(ctx, "all")
		require.NoError(t, err)
		assert.Equal(t, vehicles, got)
		assert.True(t, mr.Exists("test:vehicle_list:all"))
	})

	t.Run("Expires", func(t *testing.T) {
		mr.FastForward(2 * time.Minute)
		got, err := manager.GetVehicleList(ctx, "all")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Invalidate", func(t *testing.T) {
		require.NoError(t, manager.SetVehicleList(ctx, "all", vehicles, time.Minute))
		require.NoError(t, manager.InvalidateVehicleList(ctx, "all"))
		got, err := manager.GetVehicleList(ctx, "all")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("EmptyListIsAHit", func(t *testing.T) {
		require.NoError(t, manager.SetVehicleList(ctx, "none", nil, time.Minute))
		got, err := manager.GetVehicleList(ctx, "none")
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func TestRedisCacheManager_GenericOperations(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	type prediction struct {
		Litres float64 `json:"litres"`
	}

	var dest prediction
	found, err := manager.Get(ctx, "predict:DIESEL:100", &dest)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, manager.Set(ctx, "predict:DIESEL:100", prediction{Litres: 6.4}, time.Minute))
	found, err = manager.Get(ctx, "predict:DIESEL:100", &dest)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 6.4, dest.Litres)

	require.NoError(t, manager.Delete(ctx, "predict:DIESEL:100"))
	found, err = manager.Get(ctx, "predict:DIESEL:100", &dest)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisCacheManager_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	manager, mr := newTestManager(t)

	require.NoError(t, mr.Set("test:vehicle_list:all", "{broken"))
	_, err := manager.GetVehicleList(ctx, "all")
	assert.Error(t, err)
	assert.Equal(t, int64(1), manager.GetCacheStats().Errors)
}

func TestRedisCacheManager_Stats(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	_, _ = manager.GetVehicleList(ctx, "all")
	require.NoError(t, manager.SetVehicleList(ctx, "all", []models.Vehicle{{ID: 1}}, time.Minute))
	_, _ = manager.GetVehicleList(ctx, "all")
	_, _ = manager.GetVehicleList(ctx, "all")

	stats := manager.GetCacheStats()
	assert.Equal(t, int64(2), stats.TotalHits)
	assert.Equal(t, int64(1), stats.TotalMisses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 1e-9)
	assert.NoError(t, manager.HealthCheck(ctx))
}
