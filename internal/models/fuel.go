package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// LocalDateTimeLayout is the wire format the fuel backend uses for refuel dates.
const LocalDateTimeLayout = "2006-01-02T15:04:05"

// DateLayout is the day-precision format used for alert dates.
const DateLayout = "2006-01-02"

var localDateTimeLayouts = []string{
	LocalDateTimeLayout,
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	DateLayout,
}

// LocalDateTime is a zone-less date-time as emitted by the backend.
type LocalDateTime struct {
	time.Time
}

func NewLocalDateTime(t time.Time) LocalDateTime {
	return LocalDateTime{Time: t}
}

// ParseLocalDateTime accepts the backend layout, fractional seconds, RFC 3339 and bare dates.
func ParseLocalDateTime(value string) (LocalDateTime, error) {
	value = strings.TrimSpace(value)
	for _, layout := range localDateTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return LocalDateTime{Time: t}, nil
		}
	}
	return LocalDateTime{}, fmt.Errorf("invalid date-time %q", value)
}

// Day returns the date part as YYYY-MM-DD.
func (d LocalDateTime) Day() string {
	return d.Format(DateLayout)
}

func (d LocalDateTime) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(LocalDateTimeLayout))
}

func (d *LocalDateTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = LocalDateTime{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*d = LocalDateTime{}
		return nil
	}
	parsed, err := ParseLocalDateTime(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// FuelEvent is one refill submission as stored by the fuel backend.
type FuelEvent struct {
	ID              *int64        `json:"id,omitempty"`
	Quantity        float64       `json:"quantity" validate:"gt=0"`
	RefuelDate      LocalDateTime `json:"refuelDate"`
	Cost            *float64      `json:"cost,omitempty" validate:"omitempty,gte=0"`
	OdometerReading *int64        `json:"odometerReading,omitempty" validate:"omitempty,gte=0"`
	VehicleID       int64         `json:"vehicleId" validate:"required,gt=0"`
	FuelType        string        `json:"fuelType,omitempty"`
}

// Quantity units as shown in alerts.
const (
	UnitLitres = "litres"
	UnitKWh    = "kWh"
)

// QuantityUnit is kWh for electric vehicles and litres for everything else.
func QuantityUnit(fuelType string) string {
	switch strings.ToLower(strings.TrimSpace(fuelType)) {
	case "électrique", "electrique", "electric", "electricity":
		return UnitKWh
	}
	return UnitLitres
}

// Odometer returns the odometer reading or zero when absent.
func (e FuelEvent) Odometer() int64 {
	if e.OdometerReading == nil {
		return 0
	}
	return *e.OdometerReading
}

// CostValue returns the cost or zero when absent.
func (e FuelEvent) CostValue() float64 {
	if e.Cost == nil {
		return 0
	}
	return *e.Cost
}

// IDValue returns the server id or zero before persistence.
func (e FuelEvent) IDValue() int64 {
	if e.ID == nil {
		return 0
	}
	return *e.ID
}

// Int64Ptr and Float64Ptr help build optional fields.
func Int64Ptr(v int64) *int64 { return &v }

func Float64Ptr(v float64) *float64 { return &v }

// ConsumptionSummary holds dashboard figures derived from a vehicle's history.
type ConsumptionSummary struct {
	VehicleID          int64              `json:"vehicleId"`
	Refills            int                `json:"refills"`
	TotalQuantity      float64            `json:"totalQuantity"`
	TotalCost          float64            `json:"totalCost"`
	AverageConsumption float64            `json:"averageConsumption"` // L/100km over measured pairs
	MeasuredDistance   int64              `json:"measuredDistance"`
	MonthlyQuantity    map[string]float64 `json:"monthlyQuantity"`
	LastRefuel         *LocalDateTime     `json:"lastRefuel,omitempty"`
}
