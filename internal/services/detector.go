package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"fuel-monitor/internal/config"
	"fuel-monitor/internal/models"
)

// AlertSink receives the messages detection produces. *alerts.Store implements it.
type AlertSink interface {
	Add(ctx context.Context, message string) (models.Alert, error)
	AddAt(ctx context.Context, message string, at time.Time) (models.Alert, error)
}

// RankedHistory is one vehicle's odometer-bearing events, most recent first.
type RankedHistory []models.FuelEvent

// Comparison pairs a submitted event with the event it is checked against.
type Comparison struct {
	Current  models.FuelEvent
	Previous models.FuelEvent
}

// Delta is the distance driven between the two readings; negative on regression.
func (c Comparison) Delta() int64 {
	return c.Current.Odometer() - c.Previous.Odometer()
}

// Finding is one anomaly detected in a Comparison.
type Finding struct {
	Kind     string
	Current  int64
	Previous int64
	Rate     float64 // L/100km, set for high consumption only
}

// Message renders the alert text for the finding.
func (f Finding) Message() string {
	switch f.Kind {
	case models.FindingOdometerRegression:
		return fmt.Sprintf("Odometer decreasing: %d < %d", f.Current, f.Previous)
	case models.FindingHighConsumption:
		return fmt.Sprintf("Abnormal consumption: %.1f L/100km", f.Rate)
	default:
		return f.Kind
	}
}

// Detector compares a freshly submitted refill with the vehicle's previous
// odometer-bearing refill and raises alerts for what looks wrong.
type Detector struct {
	cfg    config.DetectionConfig
	alerts AlertSink
	logger *slog.Logger
}

func NewDetector(cfg config.DetectionConfig, alerts AlertSink, logger *slog.Logger) *Detector {
	if cfg.PreviousRank < 1 {
		cfg.PreviousRank = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{cfg: cfg, alerts: alerts, logger: logger}
}

// Rank keeps the events of vehicleID with a positive odometer reading and
// orders them by refuel date, most recent first. Equal dates keep their order.
// A zero reading counts as absent.
func Rank(history []models.FuelEvent, vehicleID int64) RankedHistory {
	ranked := make(RankedHistory, 0, len(history))
	for _, event := range history {
		if event.VehicleID == vehicleID && event.Odometer() > 0 {
			ranked = append(ranked, event)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RefuelDate.After(ranked[j].RefuelDate.Time)
	})
	return ranked
}

// Compare picks the reference event at the configured recency rank.
func (d *Detector) Compare(current models.FuelEvent, ranked RankedHistory) (Comparison, bool) {
	if len(ranked) <= d.cfg.PreviousRank {
		return Comparison{}, false
	}
	return Comparison{Current: current, Previous: ranked[d.cfg.PreviousRank]}, true
}

// Evaluate runs the regression and consumption checks independently.
func (d *Detector) Evaluate(cmp Comparison) []Finding {
	var findings []Finding
	current, previous := cmp.Current.Odometer(), cmp.Previous.Odometer()

	if current < previous {
		findings = append(findings, Finding{
			Kind:     models.FindingOdometerRegression,
			Current:  current,
			Previous: previous,
		})
	}

	if delta := cmp.Delta(); delta > 0 {
		rate := cmp.Current.Quantity * 100 / float64(delta)
		if rate > d.cfg.ConsumptionThreshold {
			findings = append(findings, Finding{
				Kind:     models.FindingHighConsumption,
				Current:  current,
				Previous: previous,
				Rate:     rate,
			})
		}
	}
	return findings
}

// Detect runs the pure stages against an already fetched history.
func (d *Detector) Detect(current models.FuelEvent, history []models.FuelEvent) []Finding {
	if current.Odometer() <= 0 {
		return nil
	}
	cmp, ok := d.Compare(current, Rank(history, current.VehicleID))
	if !ok {
		return nil
	}
	return d.Evaluate(cmp)
}

// Run turns findings into alerts dated on the refuel day of current.
// Alerts already added stay added if a later one fails.
func (d *Detector) Run(ctx context.Context, current models.FuelEvent, history []models.FuelEvent) ([]models.Alert, error) {
	findings := d.Detect(current, history)
	if len(findings) == 0 {
		return nil, nil
	}

	at := current.RefuelDate.Time
	if at.IsZero() {
		at = time.Now()
	}

	raised := make([]models.Alert, 0, len(findings))
	for _, finding := range findings {
		alert, err := d.alerts.AddAt(ctx, finding.Message(), at)
		if err != nil {
			return raised, fmt.Errorf("failed to raise %s alert: %w", finding.Kind, err)
		}
		d.logger.Info("anomaly detected",
			"kind", finding.Kind,
			"vehicle_id", current.VehicleID,
			"current", finding.Current,
			"previous", finding.Previous,
		)
		raised = append(raised, alert)
	}
	return raised, nil
}

// LargeRefill is a single refill whose quantity exceeds the fleet-wide ceiling.
type LargeRefill struct {
	Event models.FuelEvent `json:"event"`
	Unit  string           `json:"unit"`
}

// Message renders the alert text, e.g. "Abnormal consumption for vehicle 7: 120 litres".
func (r LargeRefill) Message() string {
	return fmt.Sprintf("Abnormal consumption for vehicle %d: %s %s",
		r.Event.VehicleID, strconv.FormatFloat(r.Event.Quantity, 'f', -1, 64), r.Unit)
}

// key identifies the refill for import bookkeeping.
func (r LargeRefill) key() string {
	if id := r.Event.IDValue(); id != 0 {
		return "large|" + strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("large|%d|%s|%g", r.Event.VehicleID, r.Event.RefuelDate.Format(models.LocalDateTimeLayout), r.Event.Quantity)
}

// LargeRefills flags every event, across all vehicles, whose quantity is
// strictly above threshold. Order follows events.
func LargeRefills(events []models.FuelEvent, threshold float64) []LargeRefill {
	var flagged []LargeRefill
	for _, event := range events {
		if event.Quantity > threshold {
			flagged = append(flagged, LargeRefill{Event: event, Unit: models.QuantityUnit(event.FuelType)})
		}
	}
	return flagged
}
