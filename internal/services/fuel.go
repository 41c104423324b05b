package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"fuel-monitor/internal/alerts"
	"fuel-monitor/internal/config"
	"fuel-monitor/internal/models"
	"fuel-monitor/internal/repository"
	"fuel-monitor/pkg/cache"
	"fuel-monitor/pkg/storage"

	"github.com/go-playground/validator/v10"
)

// Alert messages and fallbacks shown to the driver.
const (
	MsgRefillRecorded    = "Refill recorded successfully"
	MsgInvalidData       = "Invalid data"
	MsgRefillFailed      = "Failed to record refill"
	vehicleListCacheKey  = "all"
	predictionCacheGroup = "predict"
)

// AlertStore is what the fuel service needs from the alert ledger.
type AlertStore interface {
	AlertSink
}

// ValidationError rejects a request before it reaches the backend.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "validation failed: " + e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

// SubmissionError is a failed backend write, carrying the message to show.
type SubmissionError struct {
	Message string
	Err     error
}

func (e *SubmissionError) Error() string { return e.Message }

func (e *SubmissionError) Unwrap() error { return e.Err }

func newSubmissionError(err error) *SubmissionError {
	msg := MsgRefillFailed
	if backendErr, ok := repository.AsBackendError(err); ok {
		switch {
		case backendErr.Message != "":
			msg = backendErr.Message
		case backendErr.IsClientError():
			msg = MsgInvalidData
		}
	}
	return &SubmissionError{Message: msg, Err: err}
}

// HistoryFilter narrows History. Zero values mean "no constraint".
type HistoryFilter struct {
	VehicleID int64
	FuelType  string
	From      *time.Time
	To        *time.Time
	Limit     int
}

func (f HistoryFilter) matches(e models.FuelEvent) bool {
	if f.VehicleID != 0 && e.VehicleID != f.VehicleID {
		return false
	}
	if f.FuelType != "" && !strings.EqualFold(e.FuelType, f.FuelType) {
		return false
	}
	if f.From != nil && e.RefuelDate.Before(*f.From) {
		return false
	}
	if f.To != nil && e.RefuelDate.After(*f.To) {
		return false
	}
	return true
}

type FuelService struct {
	repo         repository.FuelRepository
	alerts       AlertStore
	detector     *Detector
	cfg          config.DetectionConfig
	validator    *validator.Validate
	cacheManager cache.CacheManager
	cacheConfig  cache.CacheConfig
	logger       *slog.Logger
	now          func() time.Time

	importMu sync.Mutex
	imports  *alerts.ImportLog
}

func NewFuelService(repo repository.FuelRepository, alertStore AlertStore, cfg config.DetectionConfig, logger *slog.Logger) *FuelService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FuelService{
		repo:        repo,
		alerts:      alertStore,
		detector:    NewDetector(cfg, alertStore, logger),
		cfg:         cfg,
		validator:   validator.New(),
		cacheConfig: cache.DefaultCacheConfig(),
		logger:      logger,
		now:         time.Now,
		imports:     alerts.NewImportLog(storage.NewMemory(), alerts.DefaultStorageKey+alerts.ImportLogSuffix, logger),
	}
}

// SetImportLog replaces the process-local record of imported findings with a persisted one.
func (s *FuelService) SetImportLog(log *alerts.ImportLog) {
	s.imports = log
}

// SetCacheManager enables caching of backend lookups
func (s *FuelService) SetCacheManager(cacheManager cache.CacheManager) {
	s.cacheManager = cacheManager
}

func (s *FuelService) SetCacheConfig(config cache.CacheConfig) {
	s.cacheConfig = config
}

// SetClock overrides the source of "today".
func (s *FuelService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *FuelService) Detector() *Detector {
	return s.detector
}

// Submit records a refill, runs anomaly detection on it and confirms with an alert.
// Detection problems are logged and never fail the submission.
func (s *FuelService) Submit(ctx context.Context, event models.FuelEvent) (*models.FuelEvent, error) {
	if err := s.validator.Struct(&event); err != nil {
		return nil, &ValidationError{Err: err}
	}

	if event.RefuelDate.IsZero() {
		event.RefuelDate = s.defaultRefuelDate()
	}

	created, err := s.repo.CreateFuelEvent(ctx, &event)
	if err != nil {
		s.logger.Warn("refill rejected", "vehicle_id", event.VehicleID, "error", err)
		return nil, newSubmissionError(err)
	}

	current := event
	current.ID = created.ID
	s.detect(ctx, current)

	if _, err := s.alerts.Add(ctx, MsgRefillRecorded); err != nil {
		s.logger.Error("failed to add confirmation alert", "error", err)
	}

	s.logger.Info("refill recorded", "id", created.IDValue(), "vehicle_id", event.VehicleID, "quantity", event.Quantity)
	return created, nil
}

func (s *FuelService) detect(ctx context.Context, current models.FuelEvent) {
	if current.Odometer() <= 0 {
		return
	}

	history, err := s.repo.ListFuelEvents(ctx)
	if err != nil {
		s.logger.Warn("anomaly detection skipped: history unavailable", "error", err)
		return
	}

	if _, err := s.detector.Run(ctx, current, history); err != nil {
		s.logger.Error("anomaly detection failed", "error", err)
	}
}

// defaultRefuelDate is today at the configured hour.
func (s *FuelService) defaultRefuelDate() models.LocalDateTime {
	now := s.now()
	return models.NewLocalDateTime(time.Date(now.Year(), now.Month(), now.Day(), s.cfg.DefaultRefuelHour, 0, 0, 0, now.Location()))
}

// History filters, sorts newest first and only then truncates to the limit.
func (s *FuelService) History(ctx context.Context, filter HistoryFilter) ([]models.FuelEvent, error) {
	events, err := s.repo.ListFuelEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	return ProjectHistory(events, filter), nil
}

// ProjectHistory applies filter -> stable sort descending by refuel date -> truncate.
func ProjectHistory(events []models.FuelEvent, filter HistoryFilter) []models.FuelEvent {
	projected := make([]models.FuelEvent, 0, len(events))
	for _, e := range events {
		if filter.matches(e) {
			projected = append(projected, e)
		}
	}

	sort.SliceStable(projected, func(i, j int) bool {
		return projected[i].RefuelDate.After(projected[j].RefuelDate.Time)
	})

	if filter.Limit > 0 && len(projected) > filter.Limit {
		projected = projected[:filter.Limit]
	}
	return projected
}

func (s *FuelService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return &ValidationError{Err: errors.New("id must be positive")}
	}
	if err := s.repo.DeleteFuelEvent(ctx, id); err != nil {
		return fmt.Errorf("failed to delete refill %d: %w", id, err)
	}
	return nil
}

// Vehicles returns the fleet, served from cache when one is configured.
func (s *FuelService) Vehicles(ctx context.Context) ([]models.Vehicle, error) {
	if s.cacheManager != nil {
		cached, err := s.cacheManager.GetVehicleList(ctx, vehicleListCacheKey)
		if err == nil && cached != nil {
			return cached, nil
		}
		if err != nil {
			s.logger.Warn("vehicle cache read failed", "error", err)
		}
	}

	vehicles, err := s.repo.ListVehicles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch vehicles: %w", err)
	}

	if s.cacheManager != nil {
		ttl := s.cacheConfig.GetTTLForDataType("vehicle_list")
		if err := s.cacheManager.SetVehicleList(ctx, vehicleListCacheKey, vehicles, ttl); err != nil {
			s.logger.Warn("failed to cache vehicles", "error", err)
		}
	}
	return vehicles, nil
}

// LabelledHistory is History with a display name per row. Vehicles that
// cannot be resolved are labelled by id.
func (s *FuelService) LabelledHistory(ctx context.Context, filter HistoryFilter) ([]models.LabelledFuelEvent, error) {
	events, err := s.History(ctx, filter)
	if err != nil {
		return nil, err
	}

	names := make(map[int64]string)
	if vehicles, err := s.Vehicles(ctx); err != nil {
		s.logger.Warn("vehicle labels unavailable", "error", err)
	} else {
		for i := range vehicles {
			names[vehicles[i].ID] = vehicles[i].DisplayName()
		}
	}

	labelled := make([]models.LabelledFuelEvent, 0, len(events))
	for _, e := range events {
		name, ok := names[e.VehicleID]
		if !ok {
			name = models.UnknownVehicleName(e.VehicleID)
		}
		labelled = append(labelled, models.LabelledFuelEvent{FuelEvent: e, DisplayName: name})
	}
	return labelled, nil
}

// Summary derives dashboard figures for one vehicle.
func (s *FuelService) Summary(ctx context.Context, vehicleID int64) (*models.ConsumptionSummary, error) {
	events, err := s.History(ctx, HistoryFilter{VehicleID: vehicleID})
	if err != nil {
		return nil, err
	}
	summary := Summarize(events, vehicleID)
	return &summary, nil
}

// ReportAnomaly forwards a driver incident report. Type defaults to breakdown
// and the date to now.
func (s *FuelService) ReportAnomaly(ctx context.Context, report models.AnomalyReport) error {
	if err := s.validator.Struct(&report); err != nil {
		return &ValidationError{Err: err}
	}
	if strings.TrimSpace(report.Type) == "" {
		report.Type = models.AnomalyTypeBreakdown
	}
	if report.RefuelDate.IsZero() {
		report.RefuelDate = models.NewLocalDateTime(s.now())
	}

	if err := s.repo.ReportAnomaly(ctx, &report); err != nil {
		return fmt.Errorf("failed to report anomaly: %w", err)
	}
	s.logger.Info("anomaly reported", "vehicle_id", report.VehicleID, "type", report.Type)
	return nil
}

func (s *FuelService) RemoteAnomalies(ctx context.Context) ([]models.RemoteAnomaly, error) {
	anomalies, err := s.repo.ListAnomalies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch anomalies: %w", err)
	}
	return anomalies, nil
}

// ImportRemoteAnomalies turns backend-detected anomalies into local alerts,
// dated on their refuel day. Anomalies already imported are skipped, across restarts
// when the import log is persisted.
func (s *FuelService) ImportRemoteAnomalies(ctx context.Context) ([]models.Alert, error) {
	anomalies, err := s.RemoteAnomalies(ctx)
	if err != nil {
		return nil, err
	}

	pending := make([]importCandidate, 0, len(anomalies))
	for _, anomaly := range anomalies {
		at := s.now()
		if anomaly.RefuelDate != nil && !anomaly.RefuelDate.IsZero() {
			at = anomaly.RefuelDate.Time
		}
		pending = append(pending, importCandidate{
			key:     strconv.FormatInt(anomaly.FuelConsumptionID, 10) + "|" + anomaly.Description,
			message: remoteAnomalyMessage(anomaly),
			at:      at,
		})
	}
	return s.importAlerts(ctx, pending)
}

// LargeRefills lists every refill in the fleet above the large-refill threshold.
func (s *FuelService) LargeRefills(ctx context.Context) ([]LargeRefill, error) {
	events, err := s.repo.ListFuelEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	return LargeRefills(ProjectHistory(events, HistoryFilter{}), s.cfg.LargeRefillThreshold), nil
}

// ImportLargeRefills raises one alert per large refill not imported before,
// dated on its refuel day.
func (s *FuelService) ImportLargeRefills(ctx context.Context) ([]models.Alert, error) {
	flagged, err := s.LargeRefills(ctx)
	if err != nil {
		return nil, err
	}

	pending := make([]importCandidate, 0, len(flagged))
	for _, large := range flagged {
		at := large.Event.RefuelDate.Time
		if at.IsZero() {
			at = s.now()
		}
		pending = append(pending, importCandidate{key: large.key(), message: large.Message(), at: at})
	}
	return s.importAlerts(ctx, pending)
}

type importCandidate struct {
	key     string
	message string
	at      time.Time
}

func (s *FuelService) importAlerts(ctx context.Context, pending []importCandidate) ([]models.Alert, error) {
	s.importMu.Lock()
	defer s.importMu.Unlock()

	keys := make([]string, 0, len(pending))
	for _, c := range pending {
		keys = append(keys, c.key)
	}
	fresh, err := s.imports.Filter(ctx, keys)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]struct{}, len(fresh))
	for _, key := range fresh {
		wanted[key] = struct{}{}
	}

	var raised []models.Alert
	for _, c := range pending {
		if _, ok := wanted[c.key]; !ok {
			continue
		}
		delete(wanted, c.key)

		alert, err := s.alerts.AddAt(ctx, c.message, c.at)
		if err != nil {
			return raised, fmt.Errorf("failed to import anomaly: %w", err)
		}
		if err := s.imports.Mark(ctx, c.key); err != nil {
			s.logger.Warn("import log not updated", "key", c.key, "error", err)
		}
		raised = append(raised, alert)
	}
	return raised, nil
}

func remoteAnomalyMessage(a models.RemoteAnomaly) string {
	description := strings.TrimSpace(a.Description)
	if description == "" {
		description = "anomaly detected"
	}
	return fmt.Sprintf("%s: %s", models.UnknownVehicleName(a.VehicleID), description)
}

// PredictConsumption asks the backend how many litres a trip needs.
func (s *FuelService) PredictConsumption(ctx context.Context, fuelType string, distanceKm float64) (float64, error) {
	fuelType = strings.TrimSpace(fuelType)
	if fuelType == "" {
		return 0, &ValidationError{Err: errors.New("fuelType is required")}
	}
	if distanceKm <= 0 {
		return 0, &ValidationError{Err: errors.New("distanceKm must be greater than 0")}
	}

	key := fmt.Sprintf("%s:%s:%s", predictionCacheGroup, strings.ToUpper(fuelType), strconv.FormatFloat(distanceKm, 'f', -1, 64))
	if s.cacheManager != nil {
		var cached float64
		if found, err := s.cacheManager.Get(ctx, key, &cached); err == nil && found {
			return cached, nil
		}
	}

	litres, err := s.repo.PredictConsumption(ctx, fuelType, distanceKm)
	if err != nil {
		return 0, fmt.Errorf("failed to predict consumption: %w", err)
	}

	if s.cacheManager != nil {
		if err := s.cacheManager.Set(ctx, key, litres, s.cacheConfig.GetTTLForDataType("prediction")); err != nil {
			s.logger.Warn("failed to cache prediction", "error", err)
		}
	}
	return litres, nil
}
