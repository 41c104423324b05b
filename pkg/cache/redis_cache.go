package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"fuel-monitor/internal/models"

	goredis "github.com/redis/go-redis/v9"
)

// RedisCacheManager implements CacheManager using Redis
type RedisCacheManager struct {
	client ClientProvider
	config CacheConfig
	stats  *cacheStats
}

type cacheStats struct {
	mu          sync.RWMutex
	totalHits   int64
	totalMisses int64
	errors      int64
}

func NewRedisCacheManager(client ClientProvider, config CacheConfig) *RedisCacheManager {
	return &RedisCacheManager{
		client: client,
		config: config,
		stats:  &cacheStats{},
	}
}

// GetVehicleList returns nil, nil on a miss.
func (r *RedisCacheManager) GetVehicleList(ctx context.Context, key string) ([]models.Vehicle, error) {
	var vehicles []models.Vehicle
	found, err := r.getJSON(ctx, r.buildKey("vehicle_list", key), &vehicles)
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle list from cache: %w", err)
	}
	if !found {
		return nil, nil
	}
	return vehicles, nil
}

func (r *RedisCacheManager) SetVehicleList(ctx context.Context, key string, vehicles []models.Vehicle, ttl time.Duration) error {
	if vehicles == nil {
		vehicles = []models.Vehicle{}
	}
	if err := r.setJSON(ctx, r.buildKey("vehicle_list", key), vehicles, ttl); err != nil {
		return fmt.Errorf("failed to set vehicle list in cache: %w", err)
	}
	return nil
}

func (r *RedisCacheManager) InvalidateVehicleList(ctx context.Context, key string) error {
	return r.redis().Del(ctx, r.buildKey("vehicle_list", key)).Err()
}

// Get decodes a cached value into dest and reports whether it was present.
func (r *RedisCacheManager) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	found, err := r.getJSON(ctx, r.buildKey("generic", key), dest)
	if err != nil {
		return false, fmt.Errorf("failed to get from cache: %w", err)
	}
	return found, nil
}

func (r *RedisCacheManager) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return r.setJSON(ctx, r.buildKey("generic", key), value, ttl)
}

func (r *RedisCacheManager) Delete(ctx context.Context, key string) error {
	return r.redis().Del(ctx, r.buildKey("generic", key)).Err()
}

func (r *RedisCacheManager) GetCacheStats() CacheStats {
	r.stats.mu.RLock()
	hits, misses, errs := r.stats.totalHits, r.stats.totalMisses, r.stats.errors
	r.stats.mu.RUnlock()

	stats := CacheStats{TotalHits: hits, TotalMisses: misses, Errors: errs}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
		stats.MissRate = float64(misses) / float64(total)
	}
	return stats
}

func (r *RedisCacheManager) HealthCheck(ctx context.Context) error {
	return r.redis().Ping(ctx).Err()
}

func (r *RedisCacheManager) redis() *goredis.Client {
	return r.client.GetClient()
}

func (r *RedisCacheManager) getJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := r.redis().Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		r.record(false)
		return false, nil
	}
	if err != nil {
		r.recordError()
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		r.recordError()
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	r.record(true)
	return true, nil
}

func (r *RedisCacheManager) setJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := r.redis().Set(ctx, key, data, ttl).Err(); err != nil {
		r.recordError()
		return err
	}
	return nil
}

func (r *RedisCacheManager) buildKey(keyType, identifier string) string {
	return fmt.Sprintf("%s%s:%s", r.config.KeyPrefix, keyType, identifier)
}

func (r *RedisCacheManager) record(hit bool) {
	r.stats.mu.Lock()
	if hit {
		r.stats.totalHits++
	} else {
		r.stats.totalMisses++
	}
	r.stats.mu.Unlock()
}

func (r *RedisCacheManager) recordError() {
	r.stats.mu.Lock()
	r.stats.errors++
	r.stats.mu.Unlock()
}
