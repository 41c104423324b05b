package models

// AnomalyReport is an incident a driver reports by hand.
type AnomalyReport struct {
	Description string        `json:"description" validate:"required,min=1,max=500"`
	Type        string        `json:"type"`
	Quantity    float64       `json:"quantity" validate:"gte=0"`
	VehicleID   int64         `json:"vehicleId" validate:"required,gt=0"`
	RefuelDate  LocalDateTime `json:"refuelDate"`
}

// Default anomaly report type.
const AnomalyTypeBreakdown = "breakdown"

// RemoteAnomaly is an anomaly detected by the backend.
type RemoteAnomaly struct {
	FuelConsumptionID int64          `json:"fuelConsumptionId"`
	VehicleID         int64          `json:"vehicleId"`
	FuelType          string         `json:"fuelType"`
	Description       string         `json:"description"`
	RefuelDate        *LocalDateTime `json:"refuelDate,omitempty"`
	Quantity          float64        `json:"quantity"`
	OdometerReading   int64          `json:"odometerReading"`
	Username          string         `json:"username,omitempty"`
}

// Finding kinds produced by local anomaly detection.
const (
	FindingOdometerRegression = "odometer_regression"
	FindingHighConsumption    = "high_consumption"
)
