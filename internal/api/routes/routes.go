package routes

import (
	"fuel-monitor/internal/api/handlers"
	"fuel-monitor/internal/api/middleware"

	"github.com/gin-gonic/gin"
)

// Handlers groups everything SetupRoutes mounts.
type Handlers struct {
	Fuel      *handlers.FuelHandler
	Anomaly   *handlers.AnomalyHandler
	Alert     *handlers.AlertHandler
	Health    *handlers.HealthHandler
	WebSocket *handlers.WebSocketHandler
}

// SetupRoutes mounts the API under /api/v1. limiter may be nil.
func SetupRoutes(router *gin.Engine, h Handlers, limiter *middleware.RateLimiter) {
	api := router.Group("/api/v1")
	if limiter != nil {
		api.Use(middleware.RateLimitMiddleware(limiter))
	}

	api.GET("/health", h.Health.HealthCheck)

	// Refills
	fuel := api.Group("/fuel")
	{
		fuel.POST("", h.Fuel.SubmitRefill)
		fuel.GET("/history", h.Fuel.GetHistory)
		fuel.DELETE("/:id", h.Fuel.DeleteRefill)
		fuel.GET("/summary", h.Fuel.GetSummary)
		fuel.GET("/predict", h.Fuel.PredictConsumption)
	}

	api.GET("/vehicles", h.Fuel.GetVehicles)

	anomalies := api.Group("/anomalies")
	{
		anomalies.POST("", h.Anomaly.ReportAnomaly)
		anomalies.GET("/remote", h.Anomaly.GetAnomalies)
		anomalies.POST("/remote/import", h.Anomaly.ImportAnomalies)
		anomalies.GET("/large-refills", h.Anomaly.GetLargeRefills)
		anomalies.POST("/large-refills/import", h.Anomaly.ImportLargeRefills)
	}

	// Alerts
	alerts := api.Group("/alerts")
	{
		alerts.GET("", h.Alert.GetAlerts)
		alerts.PATCH("/:id/read", h.Alert.MarkAsRead)
		alerts.DELETE("", h.Alert.ClearAlerts)
		alerts.GET("/ws", h.WebSocket.HandleWebSocket)
		alerts.GET("/ws/clients", h.WebSocket.GetConnectedClients)
		alerts.DELETE("/ws/clients/:clientId", h.WebSocket.DisconnectClient)
	}
}
