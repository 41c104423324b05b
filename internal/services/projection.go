package services

import "fuel-monitor/internal/models"

const monthLayout = "2006-01"

// Summarize aggregates one vehicle's refills. The average consumption covers
// consecutive odometer-bearing refills with a positive distance only.
func Summarize(events []models.FuelEvent, vehicleID int64) models.ConsumptionSummary {
	summary := models.ConsumptionSummary{
		VehicleID:       vehicleID,
		MonthlyQuantity: make(map[string]float64),
	}

	var own []models.FuelEvent
	for _, e := range events {
		if e.VehicleID != vehicleID {
			continue
		}
		own = append(own, e)
		summary.Refills++
		summary.TotalQuantity += e.Quantity
		summary.TotalCost += e.CostValue()
		if !e.RefuelDate.IsZero() {
			summary.MonthlyQuantity[e.RefuelDate.Format(monthLayout)] += e.Quantity
		}
	}

	// ranked is newest first; each refill is paired with the next older one
	ranked := Rank(own, vehicleID)
	var litres float64
	for i := len(ranked) - 2; i >= 0; i-- {
		delta := ranked[i].Odometer() - ranked[i+1].Odometer()
		if delta <= 0 {
			continue
		}
		litres += ranked[i].Quantity
		summary.MeasuredDistance += delta
	}
	if summary.MeasuredDistance > 0 {
		summary.AverageConsumption = litres / float64(summary.MeasuredDistance) * 100
	}

	if len(own) > 0 {
		latest := own[0]
		for _, e := range own[1:] {
			if e.RefuelDate.After(latest.RefuelDate.Time) {
				latest = e
			}
		}
		if !latest.RefuelDate.IsZero() {
			last := latest.RefuelDate
			summary.LastRefuel = &last
		}
	}
	return summary
}
