package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"fuel-monitor/internal/alerts"
	"fuel-monitor/internal/logging"
	"fuel-monitor/internal/models"
	"fuel-monitor/internal/repository"
	"fuel-monitor/pkg/cache"
	"fuel-monitor/pkg/storage"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRepository is an in-process FuelRepository.
type memoryRepository struct {
	mu        sync.Mutex
	nextID    int64
	events    []models.FuelEvent
	vehicles  []models.Vehicle
	anomalies []models.RemoteAnomaly
	reports   []models.AnomalyReport

	createErr   error
	listErr     error
	creates     int
	vehicleHits int
	predictHits int
}

func newMemoryRepository(events ...models.FuelEvent) *memoryRepository {
	return &memoryRepository{nextID: 100, events: events}
}

func (m *memoryRepository) CreateFuelEvent(_ context.Context, event *models.FuelEvent) (*models.FuelEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return nil, m.createErr
	}
	created := *event
	created.ID = models.Int64Ptr(m.nextID)
	m.nextID++
	m.events = append(m.events, created)
	return &created, nil
}

func (m *memoryRepository) ListFuelEvents(context.Context) ([]models.FuelEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]models.FuelEvent(nil), m.events...), nil
}

func (m *memoryRepository) DeleteFuelEvent(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.events {
		if e.IDValue() == id {
			m.events = append(m.events[:i], m.events[i+1:]...)
			return nil
		}
	}
	return &repository.BackendError{Status: http.StatusNotFound}
}

func (m *memoryRepository) ListVehicles(context.Context) ([]models.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vehicleHits++
	return m.vehicles, nil
}

func (m *memoryRepository) ReportAnomaly(_ context.Context, report *models.AnomalyReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, *report)
	return nil
}

func (m *memoryRepository) ListAnomalies(context.Context) ([]models.RemoteAnomaly, error) {
	return m.anomalies, nil
}

func (m *memoryRepository) PredictConsumption(_ context.Context, _ string, distanceKm float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictHits++
	return distanceKm * 0.07, nil
}

var serviceNow = time.Date(2025, 10, 3, 8, 15, 0, 0, time.Local)

func newFuelService(t *testing.T, repo *memoryRepository) (*FuelService, *alerts.Store) {
	t.Helper()
	store := newStore(t)
	svc := NewFuelService(repo, store, defaultDetection(), logging.Discard())
	svc.SetClock(func() time.Time { return serviceNow })
	return svc, store
}

func TestSubmitRejectsInvalidInputBeforeNetwork(t *testing.T) {
	repo := newMemoryRepository()
	svc, store := newFuelService(t, repo)

	tests := []struct {
		name  string
		event models.FuelEvent
	}{
		{"ZeroQuantity", models.FuelEvent{Quantity: 0, VehicleID: 1}},
		{"NegativeQuantity", models.FuelEvent{Quantity: -5, VehicleID: 1}},
		{"MissingVehicle", models.FuelEvent{Quantity: 10}},
		{"NegativeCost", models.FuelEvent{Quantity: 10, VehicleID: 1, Cost: models.Float64Ptr(-1)}},
		{"NegativeOdometer", models.FuelEvent{Quantity: 10, VehicleID: 1, OdometerReading: models.Int64Ptr(-3)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tt.event)
			var validationErr *ValidationError
			assert.ErrorAs(t, err, &validationErr)
		})
	}

	assert.Zero(t, repo.creates)
	assert.Empty(t, store.List())
}

func TestSubmitDefaultsRefuelDateToNoon(t *testing.T) {
	repo := newMemoryRepository()
	svc, _ := newFuelService(t, repo)

	created, err := svc.Submit(context.Background(), models.FuelEvent{Quantity: 30, VehicleID: 1})
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 10, 3, 12, 0, 0, 0, time.Local), created.RefuelDate.Time)
}

func TestSubmitRunsDetectionThenConfirms(t *testing.T) {
	repo := newMemoryRepository(
		refill(1, 1000, 40, day(1)),
		refill(1, 1200, 50, day(2)),
	)
	svc, store := newFuelService(t, repo)

	created, err := svc.Submit(context.Background(), refill(1, 1250, 30, day(3)))
	require.NoError(t, err)
	require.NotNil(t, created.ID)

	list := store.List()
	require.Len(t, list, 2)
	assert.Equal(t, MsgRefillRecorded, list[0].Message)
	assert.Equal(t, "Abnormal consumption: 60.0 L/100km", list[1].Message)
	assert.Equal(t, "2025-10-03", list[0].Date)
	assert.Equal(t, "2025-09-03", list[1].Date)

	_, err = svc.Submit(context.Background(), refill(1, 1100, 10, day(4)))
	require.NoError(t, err)

	list = store.List()
	require.Len(t, list, 4)
	assert.Equal(t, MsgRefillRecorded, list[0].Message)
	assert.Equal(t, "Odometer decreasing: 1100 < 1250", list[1].Message)
	assert.Equal(t, "2025-09-04", list[1].Date)
}

func TestSubmitWithoutOdometerOnlyConfirms(t *testing.T) {
	repo := newMemoryRepository(refill(1, 1000, 40, day(1)))
	svc, store := newFuelService(t, repo)

	_, err := svc.Submit(context.Background(), refill(1, -1, 90, day(2)))
	require.NoError(t, err)

	list := store.List()
	require.Len(t, list, 1)
	assert.Equal(t, MsgRefillRecorded, list[0].Message)
}

func TestSubmitSurvivesDetectionFailure(t *testing.T) {
	repo := newMemoryRepository(refill(1, 1000, 40, day(1)))
	repo.listErr = errors.New("connection reset")
	svc, store := newFuelService(t, repo)

	_, err := svc.Submit(context.Background(), refill(1, 1010, 90, day(2)))
	require.NoError(t, err)

	list := store.List()
	require.Len(t, list, 1)
	assert.Equal(t, MsgRefillRecorded, list[0].Message)
}

func TestSubmitErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"BackendMessage", &repository.BackendError{Status: 400, Message: "Vehicle not found"}, "Vehicle not found"},
		{"ClientErrorWithoutMessage", &repository.BackendError{Status: 422}, MsgInvalidData},
		{"ServerErrorWithoutMessage", &repository.BackendError{Status: 503}, MsgRefillFailed},
		{"ServerErrorWithMessage", &repository.BackendError{Status: 500, Message: "Database down"}, "Database down"},
		{"NetworkError", errors.New("dial tcp: connection refused"), MsgRefillFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemoryRepository()
			repo.createErr = tt.err
			svc, store := newFuelService(t, repo)

			created, err := svc.Submit(context.Background(), models.FuelEvent{Quantity: 10, VehicleID: 1})
			assert.Nil(t, created)

			var submissionErr *SubmissionError
			require.ErrorAs(t, err, &submissionErr)
			assert.Equal(t, tt.want, submissionErr.Message)
			assert.ErrorIs(t, err, tt.err)
			assert.Empty(t, store.List())
		})
	}
}

func TestProjectHistoryFiltersSortsThenTruncates(t *testing.T) {
	events := []models.FuelEvent{
		refill(1, 100, 10, day(1)),
		refill(2, 900, 10, day(9)),
		refill(1, 300, 10, day(3)),
		refill(1, 200, 10, day(2)),
		refill(2, 800, 10, day(8)),
	}

	got := ProjectHistory(events, HistoryFilter{VehicleID: 1, Limit: 2})
	require.Len(t, got, 2)
	assert.Equal(t, int64(300), got[0].Odometer())
	assert.Equal(t, int64(200), got[1].Odometer())

	all := ProjectHistory(events, HistoryFilter{})
	require.Len(t, all, 5)
	assert.Equal(t, int64(900), all[0].Odometer())
	assert.Equal(t, int64(100), all[4].Odometer())
}

func TestProjectHistoryFuelTypeAndRange(t *testing.T) {
	diesel := refill(1, 100, 10, day(5))
	diesel.FuelType = "DIESEL"
	petrol := refill(1, 200, 10, day(6))
	petrol.FuelType = "GASOLINE"
	early := refill(1, 50, 10, day(1))
	early.FuelType = "DIESEL"

	events := []models.FuelEvent{diesel, petrol, early}

	got := ProjectHistory(events, HistoryFilter{FuelType: "diesel"})
	assert.Len(t, got, 2)

	from := day(3).Time
	to := day(5).Time
	got = ProjectHistory(events, HistoryFilter{From: &from, To: &to})
	require.Len(t, got, 1)
	assert.Equal(t, int64(100), got[0].Odometer())
}

func TestHistoryAndDelete(t *testing.T) {
	ctx := context.Background()
	first := refill(1, 100, 10, day(1))
	first.ID = models.Int64Ptr(1)
	second := refill(1, 200, 10, day(2))
	second.ID = models.Int64Ptr(2)

	repo := newMemoryRepository(first, second)
	svc, _ := newFuelService(t, repo)

	history, err := svc.History(ctx, HistoryFilter{VehicleID: 1})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(2), history[0].IDValue())

	require.NoError(t, svc.Delete(ctx, 2))
	history, err = svc.History(ctx, HistoryFilter{VehicleID: 1})
	require.NoError(t, err)
	require.Len(t, history, 1)

	err = svc.Delete(ctx, 2)
	_, ok := repository.AsBackendError(err)
	assert.True(t, ok)

	var validationErr *ValidationError
	assert.ErrorAs(t, svc.Delete(ctx, 0), &validationErr)
}

func TestLabelledHistory(t *testing.T) {
	repo := newMemoryRepository(refill(7, 100, 10, day(1)), refill(8, 100, 10, day(2)))
	repo.vehicles = []models.Vehicle{{ID: 7, LicensePlate: "AB-123-CD", Brand: "Renault", Model: "Kangoo"}}
	svc, _ := newFuelService(t, repo)

	rows, err := svc.LabelledHistory(context.Background(), HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Vehicle #8", rows[0].DisplayName)
	assert.Equal(t, "AB-123-CD (Renault Kangoo)", rows[1].DisplayName)
}

type staticClient struct{ client *goredis.Client }

func (s staticClient) GetClient() *goredis.Client { return s.client }

func withCache(t *testing.T, svc *FuelService) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	svc.SetCacheManager(cache.NewRedisCacheManager(staticClient{client}, cache.DefaultCacheConfig()))
}

func TestVehiclesAreCached(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository()
	repo.vehicles = []models.Vehicle{{ID: 7, LicensePlate: "AB-123-CD"}}
	svc, _ := newFuelService(t, repo)
	withCache(t, svc)

	for i := 0; i < 3; i++ {
		vehicles, err := svc.Vehicles(ctx)
		require.NoError(t, err)
		require.Len(t, vehicles, 1)
	}
	assert.Equal(t, 1, repo.vehicleHits)
}

func TestPredictConsumption(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository()
	svc, _ := newFuelService(t, repo)
	withCache(t, svc)

	var validationErr *ValidationError
	_, err := svc.PredictConsumption(ctx, "", 100)
	assert.ErrorAs(t, err, &validationErr)
	_, err = svc.PredictConsumption(ctx, "DIESEL", 0)
	assert.ErrorAs(t, err, &validationErr)

	litres, err := svc.PredictConsumption(ctx, "DIESEL", 100)
	require.NoError(t, err)
	assert.InDelta(t, 7.0, litres, 1e-9)

	litres, err = svc.PredictConsumption(ctx, "diesel", 100)
	require.NoError(t, err)
	assert.InDelta(t, 7.0, litres, 1e-9)
	assert.Equal(t, 1, repo.predictHits)
}

func TestReportAnomalyDefaults(t *testing.T) {
	repo := newMemoryRepository()
	svc, _ := newFuelService(t, repo)

	require.NoError(t, svc.ReportAnomaly(context.Background(), models.AnomalyReport{
		Description: "Fuel cap missing",
		VehicleID:   7,
	}))
	require.Len(t, repo.reports, 1)
	assert.Equal(t, models.AnomalyTypeBreakdown, repo.reports[0].Type)
	assert.Equal(t, serviceNow, repo.reports[0].RefuelDate.Time)

	err := svc.ReportAnomaly(context.Background(), models.AnomalyReport{VehicleID: 7})
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestImportRemoteAnomalies(t *testing.T) {
	ctx := context.Background()
	refuel := day(28)
	repo := newMemoryRepository()
	repo.anomalies = []models.RemoteAnomaly{
		{FuelConsumptionID: 3, VehicleID: 7, Description: "Consumption spike", RefuelDate: &refuel},
		{FuelConsumptionID: 4, VehicleID: 8},
	}
	svc, store := newFuelService(t, repo)

	raised, err := svc.ImportRemoteAnomalies(ctx)
	require.NoError(t, err)
	require.Len(t, raised, 2)
	assert.Equal(t, "Vehicle #7: Consumption spike", raised[0].Message)
	assert.Equal(t, "2025-09-28", raised[0].Date)
	assert.Equal(t, "Vehicle #8: anomaly detected", raised[1].Message)

	raised, err = svc.ImportRemoteAnomalies(ctx)
	require.NoError(t, err)
	assert.Empty(t, raised)
	assert.Len(t, store.List(), 2)
}

func TestImportsAreRememberedAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	blob := storage.NewMemory()
	key := alerts.DefaultStorageKey + alerts.ImportLogSuffix
	repo := newMemoryRepository(refill(1, 1000, 120, day(5)))
	repo.anomalies = []models.RemoteAnomaly{{FuelConsumptionID: 3, VehicleID: 7, Description: "Consumption spike"}}

	svc, store := newFuelService(t, repo)
	svc.SetImportLog(alerts.NewImportLog(blob, key, logging.Discard()))
	raised, err := svc.ImportRemoteAnomalies(ctx)
	require.NoError(t, err)
	require.Len(t, raised, 1)
	raised, err = svc.ImportLargeRefills(ctx)
	require.NoError(t, err)
	require.Len(t, raised, 1)
	require.NoError(t, store.Clear(ctx))

	restarted, store := newFuelService(t, repo)
	restarted.SetImportLog(alerts.NewImportLog(blob, key, logging.Discard()))
	raised, err = restarted.ImportRemoteAnomalies(ctx)
	require.NoError(t, err)
	assert.Empty(t, raised)
	raised, err = restarted.ImportLargeRefills(ctx)
	require.NoError(t, err)
	assert.Empty(t, raised)
	assert.Empty(t, store.List())
}

func TestImportLargeRefills(t *testing.T) {
	ctx := context.Background()
	electric := refill(2, -1, 140, day(6))
	electric.FuelType = "Électrique"
	repo := newMemoryRepository(
		refill(1, 1000, 100, day(4)),
		refill(1, 1500, 101, day(5)),
		electric,
	)
	svc, store := newFuelService(t, repo)

	flagged, err := svc.LargeRefills(ctx)
	require.NoError(t, err)
	require.Len(t, flagged, 2)
	assert.Equal(t, models.UnitKWh, flagged[0].Unit)
	assert.Equal(t, models.UnitLitres, flagged[1].Unit)

	raised, err := svc.ImportLargeRefills(ctx)
	require.NoError(t, err)
	require.Len(t, raised, 2)
	assert.Equal(t, "Abnormal consumption for vehicle 2: 140 kWh", raised[0].Message)
	assert.Equal(t, "2025-09-06", raised[0].Date)
	assert.Equal(t, "Abnormal consumption for vehicle 1: 101 litres", raised[1].Message)

	raised, err = svc.ImportLargeRefills(ctx)
	require.NoError(t, err)
	assert.Empty(t, raised)
	assert.Len(t, store.List(), 2)
}

func TestSummary(t *testing.T) {
	withCost := refill(1, 1000, 40, day(1))
	withCost.Cost = models.Float64Ptr(70)
	repo := newMemoryRepository(
		withCost,
		refill(1, 1200, 50, day(2)),
		refill(1, 1250, 30, models.NewLocalDateTime(time.Date(2025, 10, 1, 12, 0, 0, 0, time.Local))),
		refill(1, -1, 20, day(3)),
		refill(2, 99999, 500, day(4)),
	)
	svc, _ := newFuelService(t, repo)

	summary, err := svc.Summary(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Refills)
	assert.InDelta(t, 140.0, summary.TotalQuantity, 1e-9)
	assert.InDelta(t, 70.0, summary.TotalCost, 1e-9)
	assert.Equal(t, int64(250), summary.MeasuredDistance)
	assert.InDelta(t, 32.0, summary.AverageConsumption, 1e-9)
	assert.InDelta(t, 110.0, summary.MonthlyQuantity["2025-09"], 1e-9)
	assert.InDelta(t, 30.0, summary.MonthlyQuantity["2025-10"], 1e-9)
	require.NotNil(t, summary.LastRefuel)
	assert.Equal(t, "2025-10-01", summary.LastRefuel.Day())
}
