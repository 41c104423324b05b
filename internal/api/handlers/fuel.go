package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fuel-monitor/internal/models"
	"fuel-monitor/internal/repository"
	"fuel-monitor/internal/services"
	"fuel-monitor/pkg/utils"

	"github.com/gin-gonic/gin"
)

type FuelHandler struct {
	fuelService *services.FuelService
}

func NewFuelHandler(fuelService *services.FuelService) *FuelHandler {
	return &FuelHandler{
		fuelService: fuelService,
	}
}

// SubmitRefill records a refill and runs anomaly detection on it
func (h *FuelHandler) SubmitRefill(c *gin.Context) {
	var event models.FuelEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, services.MsgInvalidData, err)
		return
	}

	created, err := h.fuelService.Submit(c.Request.Context(), event)
	if err != nil {
		respondServiceError(c, services.MsgRefillFailed, err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, services.MsgRefillRecorded, created)
}

// GetHistory lists refills newest first. Supported query parameters:
// vehicleId, fuelType, from, to, limit and labelled.
func (h *FuelHandler) GetHistory(c *gin.Context) {
	filter, err := parseHistoryFilter(c)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid query parameters", err)
		return
	}

	if labelled, _ := strconv.ParseBool(c.Query("labelled")); labelled {
		rows, err := h.fuelService.LabelledHistory(c.Request.Context(), filter)
		if err != nil {
			respondServiceError(c, "Failed to retrieve history", err)
			return
		}
		utils.SuccessResponse(c, http.StatusOK, "History retrieved successfully", rows)
		return
	}

	events, err := h.fuelService.History(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, "Failed to retrieve history", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "History retrieved successfully", events)
}

// DeleteRefill removes a refill from the backend
func (h *FuelHandler) DeleteRefill(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Refill ID must be a number", err)
		return
	}

	if err := h.fuelService.Delete(c.Request.Context(), id); err != nil {
		respondServiceError(c, "Failed to delete refill", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Refill deleted successfully", nil)
}

// GetSummary aggregates one vehicle's refills, selected by the vehicleId query parameter
func (h *FuelHandler) GetSummary(c *gin.Context) {
	vehicleID, err := strconv.ParseInt(c.Query("vehicleId"), 10, 64)
	if err != nil || vehicleID <= 0 {
		utils.ErrorResponse(c, http.StatusBadRequest, "Vehicle ID must be a positive number", err)
		return
	}

	summary, err := h.fuelService.Summary(c.Request.Context(), vehicleID)
	if err != nil {
		respondServiceError(c, "Failed to compute summary", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Summary computed successfully", summary)
}

// PredictConsumption estimates the litres needed for a trip
func (h *FuelHandler) PredictConsumption(c *gin.Context) {
	distance, err := strconv.ParseFloat(c.Query("distanceKm"), 64)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "distanceKm must be a number", err)
		return
	}

	litres, err := h.fuelService.PredictConsumption(c.Request.Context(), c.Query("fuelType"), distance)
	if err != nil {
		respondServiceError(c, "Failed to predict consumption", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Prediction computed successfully", gin.H{
		"fuelType":   strings.ToUpper(c.Query("fuelType")),
		"distanceKm": distance,
		"litres":     litres,
	})
}

func (h *FuelHandler) GetVehicles(c *gin.Context) {
	vehicles, err := h.fuelService.Vehicles(c.Request.Context())
	if err != nil {
		respondServiceError(c, "Failed to retrieve vehicles", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Vehicles retrieved successfully", vehicles)
}

func parseHistoryFilter(c *gin.Context) (services.HistoryFilter, error) {
	filter := services.HistoryFilter{FuelType: c.Query("fuelType")}

	if raw := c.Query("vehicleId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, errors.New("vehicleId must be a number")
		}
		filter.VehicleID = id
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, errors.New("limit must be a non-negative number")
		}
		filter.Limit = limit
	}

	var err error
	if filter.From, err = parseTimeQuery(c, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = parseTimeQuery(c, "to"); err != nil {
		return filter, err
	}
	if filter.To != nil && isDateOnly(c.Query("to")) {
		// a bare day includes everything up to its last instant
		end := filter.To.AddDate(0, 0, 1).Add(-time.Nanosecond)
		filter.To = &end
	}
	return filter, nil
}

func parseTimeQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	parsed, err := models.ParseLocalDateTime(raw)
	if err != nil {
		return nil, errors.New(name + " must be a date or date-time")
	}
	return &parsed.Time, nil
}

func isDateOnly(raw string) bool {
	_, err := time.Parse(models.DateLayout, strings.TrimSpace(raw))
	return err == nil
}

// respondServiceError maps service errors onto HTTP statuses. Backend client
// errors surface as 400 (404 stays 404), anything else from the backend as 502.
func respondServiceError(c *gin.Context, fallback string, err error) {
	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		utils.ValidationErrorResponse(c, validationErr.Err)
		return
	}

	message := fallback
	var submissionErr *services.SubmissionError
	if errors.As(err, &submissionErr) {
		message = submissionErr.Message
	}

	backendErr, ok := repository.AsBackendError(err)
	switch {
	case ok && backendErr.Status == http.StatusNotFound:
		utils.ErrorResponse(c, http.StatusNotFound, message, err)
	case ok && backendErr.IsClientError():
		utils.ErrorResponse(c, http.StatusBadRequest, message, err)
	default:
		utils.ErrorResponse(c, http.StatusBadGateway, message, err)
	}
}
