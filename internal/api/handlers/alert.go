package handlers

import (
	"errors"
	"net/http"

	"fuel-monitor/internal/alerts"
	"fuel-monitor/pkg/utils"

	"github.com/gin-gonic/gin"
)

type AlertHandler struct {
	store *alerts.Store
}

func NewAlertHandler(store *alerts.Store) *AlertHandler {
	return &AlertHandler{
		store: store,
	}
}

// GetAlerts returns the current ledger, newest first, with its unread count
func (h *AlertHandler) GetAlerts(c *gin.Context) {
	snapshot := h.store.Snapshot()

	utils.SuccessResponse(c, http.StatusOK, "Alerts retrieved successfully", gin.H{
		"version": snapshot.Version,
		"unread":  snapshot.UnreadCount(),
		"alerts":  snapshot.Alerts,
	})
}

// MarkAsRead flags one alert as read
func (h *AlertHandler) MarkAsRead(c *gin.Context) {
	alertID := c.Param("id")
	if alertID == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "Alert ID is required", nil)
		return
	}

	alert, err := h.store.MarkAsRead(c.Request.Context(), alertID)
	switch {
	case errors.Is(err, alerts.ErrAlertNotFound):
		utils.ErrorResponse(c, http.StatusNotFound, "Alert not found", err)
		return
	case errors.Is(err, alerts.ErrStoreClosed):
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Alert store is unavailable", err)
		return
	case err != nil:
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to update alert", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Alert marked as read", alert)
}

// ClearAlerts empties the ledger
func (h *AlertHandler) ClearAlerts(c *gin.Context) {
	if err := h.store.Clear(c.Request.Context()); err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to clear alerts", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Alerts cleared successfully", nil)
}
