package redis

import (
	"testing"
	"time"

	"fuel-monitor/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(mr *miniredis.Miniredis) config.RedisConfig {
	return config.RedisConfig{
		Host:         mr.Host(),
		Port:         mr.Port(),
		PoolSize:     4,
		MinIdleConns: 1,
		MaxRetries:   1,
		RetryDelay:   10 * time.Millisecond,
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolTimeout:  time.Second,
	}
}

func TestNewClientConnects(t *testing.T) {
	mr := miniredis.RunT(t)

	client := NewClient(testConfig(mr))
	defer client.Close()

	require.NotNil(t, client.GetClient())
	assert.True(t, client.IsConnected())
	assert.Equal(t, mr.Addr(), client.Addr())
}

func TestNewClientFromURL(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(mr)
	cfg.URL = "redis://" + mr.Addr() + "/0"
	client := NewClient(cfg)
	defer client.Close()

	assert.True(t, client.IsConnected())
}

func TestHealthCheckReportsOutage(t *testing.T) {
	mr := miniredis.RunT(t)

	client := NewClient(testConfig(mr))
	defer client.Close()

	status := client.HealthCheck()
	assert.True(t, status.IsConnected)
	assert.False(t, status.LastPing.IsZero())
	assert.Equal(t, mr.Addr(), status.ConnectionInfo)

	mr.Close()

	status = client.HealthCheck()
	assert.False(t, status.IsConnected)
	assert.NotEmpty(t, status.Error)
}

func TestStats(t *testing.T) {
	mr := miniredis.RunT(t)

	client := NewClient(testConfig(mr))
	defer client.Close()

	stats := client.Stats()
	for _, key := range []string{"hits", "misses", "timeouts", "totalConns", "idleConns", "staleConns", "isConnected"} {
		assert.Contains(t, stats, key)
	}
}
