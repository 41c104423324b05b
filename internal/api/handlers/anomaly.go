package handlers

import (
	"net/http"

	"fuel-monitor/internal/models"
	"fuel-monitor/internal/services"
	"fuel-monitor/pkg/utils"

	"github.com/gin-gonic/gin"
)

type AnomalyHandler struct {
	fuelService *services.FuelService
}

func NewAnomalyHandler(fuelService *services.FuelService) *AnomalyHandler {
	return &AnomalyHandler{
		fuelService: fuelService,
	}
}

// ReportAnomaly forwards a driver-reported incident to the backend
func (h *AnomalyHandler) ReportAnomaly(c *gin.Context) {
	var report models.AnomalyReport
	if err := c.ShouldBindJSON(&report); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.fuelService.ReportAnomaly(c.Request.Context(), report); err != nil {
		respondServiceError(c, "Failed to report anomaly", err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Anomaly reported successfully", nil)
}

// GetAnomalies lists anomalies detected by the backend
func (h *AnomalyHandler) GetAnomalies(c *gin.Context) {
	anomalies, err := h.fuelService.RemoteAnomalies(c.Request.Context())
	if err != nil {
		respondServiceError(c, "Failed to retrieve anomalies", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Anomalies retrieved successfully", anomalies)
}

// ImportAnomalies raises a local alert for every backend anomaly not seen before
func (h *AnomalyHandler) ImportAnomalies(c *gin.Context) {
	raised, err := h.fuelService.ImportRemoteAnomalies(c.Request.Context())
	if err != nil {
		respondServiceError(c, "Failed to import anomalies", err)
		return
	}
	if raised == nil {
		raised = []models.Alert{}
	}

	utils.SuccessResponse(c, http.StatusOK, "Anomalies imported successfully", gin.H{
		"imported": len(raised),
		"alerts":   raised,
	})
}

// GetLargeRefills lists refills above the fleet-wide quantity ceiling
func (h *AnomalyHandler) GetLargeRefills(c *gin.Context) {
	flagged, err := h.fuelService.LargeRefills(c.Request.Context())
	if err != nil {
		respondServiceError(c, "Failed to retrieve large refills", err)
		return
	}
	if flagged == nil {
		flagged = []services.LargeRefill{}
	}

	utils.SuccessResponse(c, http.StatusOK, "Large refills retrieved successfully", flagged)
}

func (h *AnomalyHandler) ImportLargeRefills(c *gin.Context) {
	raised, err := h.fuelService.ImportLargeRefills(c.Request.Context())
	if err != nil {
		respondServiceError(c, "Failed to import large refills", err)
		return
	}
	if raised == nil {
		raised = []models.Alert{}
	}

	utils.SuccessResponse(c, http.StatusOK, "Large refills imported successfully", gin.H{
		"imported": len(raised),
		"alerts":   raised,
	})
}
