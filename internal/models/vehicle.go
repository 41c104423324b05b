package models

import "fmt"

type Vehicle struct {
	ID           int64  `json:"id"`
	LicensePlate string `json:"licensePlate"`
	Brand        string `json:"brand"`
	Model        string `json:"model"`
	FuelType     string `json:"fuelType"`
	Year         int    `json:"year,omitempty"`
}

// DisplayName renders the label shown next to a refill in history lists.
func (v *Vehicle) DisplayName() string {
	return fmt.Sprintf("%s (%s %s)", v.LicensePlate, v.Brand, v.Model)
}

// UnknownVehicleName is used when a refill references a vehicle that is not known locally.
func UnknownVehicleName(id int64) string {
	return fmt.Sprintf("Vehicle #%d", id)
}

// LabelledFuelEvent is a history row enriched with a vehicle label.
type LabelledFuelEvent struct {
	FuelEvent
	DisplayName string `json:"displayName"`
}
