package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"fuel-monitor/internal/alerts"
	"fuel-monitor/internal/websocket"
	"fuel-monitor/pkg/redis"
	"fuel-monitor/pkg/storage"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	blob        storage.BlobStore
	blobKey     string
	store       *alerts.Store
	redisClient *redis.Client
	wsManager   websocket.WebSocketManager
}

type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]interface{} `json:"services"`
}

// NewHealthHandler reports on the alert storage and, when configured, Redis.
// redisClient and wsManager may be nil.
func NewHealthHandler(blob storage.BlobStore, blobKey string, store *alerts.Store, redisClient *redis.Client, wsManager websocket.WebSocketManager) *HealthHandler {
	return &HealthHandler{
		blob:        blob,
		blobKey:     blobKey,
		store:       store,
		redisClient: redisClient,
		wsManager:   wsManager,
	}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Timestamp: time.Now(),
		Services:  make(map[string]interface{}),
	}

	overallHealthy := true

	storageStatus := h.checkStorage(c.Request.Context())
	response.Services["storage"] = storageStatus
	if !storageStatus["healthy"].(bool) {
		overallHealthy = false
	}

	if h.redisClient != nil {
		redisStatus := h.checkRedis()
		response.Services["redis"] = redisStatus
		if !redisStatus["healthy"].(bool) {
			overallHealthy = false
		}
	}

	if h.store != nil {
		snapshot := h.store.Snapshot()
		response.Services["alerts"] = map[string]interface{}{
			"count":       len(snapshot.Alerts),
			"unread":      snapshot.UnreadCount(),
			"version":     snapshot.Version,
			"subscribers": h.store.Subscribers(),
		}
	}

	if h.wsManager != nil {
		response.Services["websocket"] = h.wsManager.GetClientStats()
	}

	if overallHealthy {
		response.Status = "healthy"
		c.JSON(http.StatusOK, response)
	} else {
		response.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, response)
	}
}

func (h *HealthHandler) checkStorage(parent context.Context) map[string]interface{} {
	status := map[string]interface{}{
		"service": "storage",
		"healthy": false,
	}

	if h.blob == nil {
		status["error"] = "Alert storage not initialized"
		return status
	}

	ctx, cancel := context.WithTimeout(parent, 5*time.Second)
	defer cancel()

	start := time.Now()
	var err error
	if pinger, ok := h.blob.(storage.Pinger); ok {
		err = pinger.Ping(ctx)
	} else {
		_, err = h.blob.Get(ctx, h.blobKey)
	}
	status["responseTime"] = time.Since(start).String()
	if err == nil || errors.Is(err, storage.ErrNotFound) {
		status["healthy"] = true
		status["message"] = "Reachable"
	} else {
		status["error"] = err.Error()
	}
	return status
}

func (h *HealthHandler) checkRedis() map[string]interface{} {
	status := map[string]interface{}{
		"service": "redis",
		"healthy": false,
	}

	healthStatus := h.redisClient.HealthCheck()
	status["healthy"] = healthStatus.IsConnected
	status["connectionInfo"] = healthStatus.ConnectionInfo
	status["responseTime"] = healthStatus.ResponseTime.String()
	status["lastPing"] = healthStatus.LastPing
	if healthStatus.Error != "" {
		status["error"] = healthStatus.Error
	}
	status["connectionStats"] = h.redisClient.Stats()

	return status
}
