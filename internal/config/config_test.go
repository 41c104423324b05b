package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, 20.0, cfg.Detection.ConsumptionThreshold)
	assert.Equal(t, 1, cfg.Detection.PreviousRank)
	assert.Equal(t, 100.0, cfg.Detection.LargeRefillThreshold)
	assert.Equal(t, "agilfleet-alerts", cfg.Alerts.StorageKey)
}

func TestLoadAppliesYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fuelmon.yaml")
	doc := []byte(`
backend:
  base_url: http://fleet.example:9000
detection:
  consumption_threshold: 15
alerts:
  max_alerts: 50
  max_age: 720h
`)
	require.NoError(t, os.WriteFile(path, doc, 0o644))

	t.Setenv("FUELMON_CONFIG", path)
	t.Setenv("CONSUMPTION_THRESHOLD", "25.5")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://fleet.example:9000", cfg.Backend.BaseURL)
	assert.Equal(t, 25.5, cfg.Detection.ConsumptionThreshold)
	assert.Equal(t, 50, cfg.Alerts.MaxAlerts)
	assert.Equal(t, 720*time.Hour, cfg.Alerts.MaxAge)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero threshold", func(c *Config) { c.Detection.ConsumptionThreshold = 0 }},
		{"rank zero", func(c *Config) { c.Detection.PreviousRank = 0 }},
		{"zero large refill threshold", func(c *Config) { c.Detection.LargeRefillThreshold = 0 }},
		{"hour out of range", func(c *Config) { c.Detection.DefaultRefuelHour = 24 }},
		{"empty key", func(c *Config) { c.Alerts.StorageKey = "" }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "etcd" }},
		{"mongo without uri", func(c *Config) { c.Storage.Driver = "mongo" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestLoadFileRejectsEmptyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o644))

	err := LoadFile(path, DefaultConfig())
	assert.Error(t, err)
}
