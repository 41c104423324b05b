package cache

import (
	"context"
	"time"

	"fuel-monitor/internal/models"

	goredis "github.com/redis/go-redis/v9"
)

// CacheManager caches read-mostly backend lookups.
type CacheManager interface {
	// Vehicle list operations
	GetVehicleList(ctx context.Context, key string) ([]models.Vehicle, error)
	SetVehicleList(ctx context.Context, key string, vehicles []models.Vehicle, ttl time.Duration) error
	InvalidateVehicleList(ctx context.Context, key string) error

	// Generic operations
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	GetCacheStats() CacheStats
	HealthCheck(ctx context.Context) error
}

// ClientProvider hands out the current go-redis client. *redis.Client from
// pkg/redis satisfies it and swaps the client after a reconnect.
type ClientProvider interface {
	GetClient() *goredis.Client
}

// CacheStats provides cache performance metrics
type CacheStats struct {
	HitRate     float64 `json:"hitRate"`
	MissRate    float64 `json:"missRate"`
	TotalHits   int64   `json:"totalHits"`
	TotalMisses int64   `json:"totalMisses"`
	Errors      int64   `json:"errors"`
}
