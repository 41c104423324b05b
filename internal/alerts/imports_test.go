package alerts

import (
	"context"
	"testing"

	"fuel-monitor/internal/logging"
	"fuel-monitor/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportLogSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	blob := storage.NewMemory()
	key := DefaultStorageKey + ImportLogSuffix

	first := NewImportLog(blob, key, logging.Discard())
	fresh, err := first.Filter(ctx, []string{"remote|3", "remote|4"})
	require.NoError(t, err)
	assert.Equal(t, []string{"remote|3", "remote|4"}, fresh)
	require.NoError(t, first.Mark(ctx, "remote|3"))

	restarted := NewImportLog(blob, key, logging.Discard())
	fresh, err = restarted.Filter(ctx, []string{"remote|3", "remote|4"})
	require.NoError(t, err)
	assert.Equal(t, []string{"remote|4"}, fresh)
}

func TestImportLogIgnoresCorruptBlob(t *testing.T) {
	ctx := context.Background()
	blob := storage.NewMemory()
	require.NoError(t, blob.Put(ctx, "log", []byte("{not json")))

	log := NewImportLog(blob, "log", logging.Discard())
	fresh, err := log.Filter(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, fresh)

	require.NoError(t, log.Mark(ctx, "a"))
	data, err := blob.Get(ctx, "log")
	require.NoError(t, err)
	assert.JSONEq(t, `["a"]`, string(data))
}

func TestImportLogReadFailure(t *testing.T) {
	log := NewImportLog(&failingBlob{}, "log", logging.Discard())
	_, err := log.Filter(context.Background(), []string{"a"})
	assert.Error(t, err)
}
