package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"fuel-monitor/internal/config"
	"fuel-monitor/internal/models"
)

// Backend paths, relative to BackendConfig.BaseURL.
const (
	fuelConsumptionsPath = "/api/fuel-consumptions"
	registerPath         = fuelConsumptionsPath + "/register"
	remoteAnomaliesPath  = fuelConsumptionsPath + "/anomalies"
	predictPath          = fuelConsumptionsPath + "/predict"
	vehiclesPath         = "/api/vehicles"
	reportAnomalyPath    = "/api/anomalies/report"
)

// FuelRepository is the remote fuel-consumption backend.
type FuelRepository interface {
	CreateFuelEvent(ctx context.Context, event *models.FuelEvent) (*models.FuelEvent, error)
	ListFuelEvents(ctx context.Context) ([]models.FuelEvent, error)
	DeleteFuelEvent(ctx context.Context, id int64) error
	ListVehicles(ctx context.Context) ([]models.Vehicle, error)
	ReportAnomaly(ctx context.Context, report *models.AnomalyReport) error
	ListAnomalies(ctx context.Context) ([]models.RemoteAnomaly, error)
	PredictConsumption(ctx context.Context, fuelType string, distanceKm float64) (float64, error)
}

// HTTPFuelRepository talks JSON to the backend over HTTP.
type HTTPFuelRepository struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewFuelRepository(cfg config.BackendConfig) *HTTPFuelRepository {
	return &HTTPFuelRepository{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// SetHTTPClient replaces the underlying client, e.g. to add a transport.
func (r *HTTPFuelRepository) SetHTTPClient(client *http.Client) {
	r.client = client
}

func (r *HTTPFuelRepository) CreateFuelEvent(ctx context.Context, event *models.FuelEvent) (*models.FuelEvent, error) {
	var created models.FuelEvent
	if err := r.do(ctx, http.MethodPost, registerPath, event, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *HTTPFuelRepository) ListFuelEvents(ctx context.Context) ([]models.FuelEvent, error) {
	var events []models.FuelEvent
	if err := r.do(ctx, http.MethodGet, fuelConsumptionsPath, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *HTTPFuelRepository) DeleteFuelEvent(ctx context.Context, id int64) error {
	return r.do(ctx, http.MethodDelete, fuelConsumptionsPath+"/"+strconv.FormatInt(id, 10), nil, nil)
}

func (r *HTTPFuelRepository) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	var vehicles []models.Vehicle
	if err := r.do(ctx, http.MethodGet, vehiclesPath, nil, &vehicles); err != nil {
		return nil, err
	}
	return vehicles, nil
}

func (r *HTTPFuelRepository) ReportAnomaly(ctx context.Context, report *models.AnomalyReport) error {
	return r.do(ctx, http.MethodPost, reportAnomalyPath, report, nil)
}

func (r *HTTPFuelRepository) ListAnomalies(ctx context.Context) ([]models.RemoteAnomaly, error) {
	var anomalies []models.RemoteAnomaly
	if err := r.do(ctx, http.MethodGet, remoteAnomaliesPath, nil, &anomalies); err != nil {
		return nil, err
	}
	return anomalies, nil
}

// PredictConsumption returns the backend's litre estimate for a trip.
func (r *HTTPFuelRepository) PredictConsumption(ctx context.Context, fuelType string, distanceKm float64) (float64, error) {
	query := url.Values{}
	query.Set("fuelType", fuelType)
	query.Set("distanceKm", strconv.FormatFloat(distanceKm, 'f', -1, 64))

	var litres float64
	if err := r.do(ctx, http.MethodGet, predictPath+"?"+query.Encode(), nil, &litres); err != nil {
		return 0, err
	}
	return litres, nil
}

func (r *HTTPFuelRepository) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &BackendError{Status: resp.StatusCode, Message: extractMessage(data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}
