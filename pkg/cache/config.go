package cache

import "time"

// CacheConfig holds key layout and TTLs.
type CacheConfig struct {
	VehicleListTTL time.Duration `json:"vehicleListTTL"`
	PredictionTTL  time.Duration `json:"predictionTTL"`
	KeyPrefix      string        `json:"keyPrefix"`
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		VehicleListTTL: 2 * time.Minute,
		PredictionTTL:  10 * time.Minute,
		KeyPrefix:      "fuelmon:cache:",
	}
}

// GetTTLForDataType returns the TTL for a kind of cached data.
func (c CacheConfig) GetTTLForDataType(dataType string) time.Duration {
	switch dataType {
	case "vehicle_list":
		return c.VehicleListTTL
	case "prediction":
		return c.PredictionTTL
	default:
		return c.VehicleListTTL
	}
}
