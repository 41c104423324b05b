package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"fuel-monitor/pkg/storage"
)

// ImportLogSuffix is appended to the ledger key to name the import log blob.
const ImportLogSuffix = "-imported"

// ImportLog remembers which externally detected findings were already turned
// into alerts, so re-importing them after a restart raises nothing. It survives
// Clear on the ledger.
type ImportLog struct {
	mu     sync.Mutex
	blob   storage.BlobStore
	key    string
	seen   map[string]struct{}
	loaded bool
	logger *slog.Logger
}

func NewImportLog(blob storage.BlobStore, key string, logger *slog.Logger) *ImportLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportLog{
		blob:   blob,
		key:    key,
		seen:   make(map[string]struct{}),
		logger: logger,
	}
}

// Filter returns the keys not imported yet, in input order.
func (l *ImportLog) Filter(ctx context.Context, keys []string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.loadLocked(ctx); err != nil {
		return nil, err
	}
	fresh := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, done := l.seen[key]; !done {
			fresh = append(fresh, key)
		}
	}
	return fresh, nil
}

// Mark records keys as imported and persists the log.
func (l *ImportLog) Mark(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.loadLocked(ctx); err != nil {
		return err
	}
	for _, key := range keys {
		l.seen[key] = struct{}{}
	}

	list := make([]string, 0, len(l.seen))
	for key := range l.seen {
		list = append(list, key)
	}
	sort.Strings(list)
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to encode import log: %w", err)
	}
	if err := l.blob.Put(ctx, l.key, data); err != nil {
		return fmt.Errorf("failed to persist import log: %w", err)
	}
	return nil
}

func (l *ImportLog) loadLocked(ctx context.Context) error {
	if l.loaded {
		return nil
	}
	data, err := l.blob.Get(ctx, l.key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		l.loaded = true
		return nil
	case err != nil:
		return fmt.Errorf("failed to read import log: %w", err)
	}

	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		l.logger.Warn("discarding corrupt import log", "key", l.key, "error", err)
	}
	for _, key := range keys {
		l.seen[key] = struct{}{}
	}
	l.loaded = true
	return nil
}
