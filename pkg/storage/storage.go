package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"fuel-monitor/internal/config"
	"fuel-monitor/pkg/database"

	goredis "github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get when nothing is stored under the key.
var ErrNotFound = errors.New("blob not found")

// BlobStore keeps one opaque value per key, overwritten wholesale on every Put.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Pinger is implemented by backends that can check their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Open builds the backend selected by cfg.Driver. rdb is only used by the redis driver.
func Open(ctx context.Context, cfg config.StorageConfig, rdb *goredis.Client) (BlobStore, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "":
		return NewSQLite(ctx, cfg.DSN)
	case "redis":
		if rdb == nil {
			return nil, errors.New("redis storage requires a redis client")
		}
		return NewRedis(rdb, ""), nil
	case "mongo", "mongodb":
		db, err := database.Connect(cfg.MongoURI)
		if err != nil {
			return nil, fmt.Errorf("failed to open mongo storage: %w", err)
		}
		return NewMongo(db), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// MemoryStore is a process-local BlobStore, used for tests and the CLI dry runs.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemory() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.blobs[key] = v
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
