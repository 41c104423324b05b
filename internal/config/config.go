package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port           string          `yaml:"port"`
	LogLevel       string          `yaml:"log_level"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	Backend        BackendConfig   `yaml:"backend"`
	Detection      DetectionConfig `yaml:"detection"`
	Alerts         AlertsConfig    `yaml:"alerts"`
	Storage        StorageConfig   `yaml:"storage"`
	Redis          RedisConfig     `yaml:"redis"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// BackendConfig points at the remote fuel-consumption REST API.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// DetectionConfig holds the tunable anomaly-detection parameters.
type DetectionConfig struct {
	ConsumptionThreshold float64 `yaml:"consumption_threshold"` // L/100km, strictly exceeded
	PreviousRank         int     `yaml:"previous_rank"`         // recency rank of the reference event
	DefaultRefuelHour    int     `yaml:"default_refuel_hour"`
	LargeRefillThreshold float64 `yaml:"large_refill_threshold"` // litres or kWh per refill, strictly exceeded
}

type AlertsConfig struct {
	StorageKey    string        `yaml:"storage_key"`
	MaxAlerts     int           `yaml:"max_alerts"`
	MaxAge        time.Duration `yaml:"max_age"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// StorageConfig selects where the alert blob lives: sqlite, redis or mongo.
type StorageConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	MongoURI string `yaml:"mongo_uri"`
}

type RedisConfig struct {
	URL          string        `yaml:"url"`
	Host         string        `yaml:"host"`
	Port         string        `yaml:"port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolTimeout  time.Duration `yaml:"pool_timeout"`
	// VehicleCacheTTL is how long the vehicle list is cached; zero disables the cache.
	VehicleCacheTTL time.Duration `yaml:"vehicle_cache_ttl"`
}

type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

func DefaultConfig() *Config {
	return &Config{
		Port:           "8080",
		LogLevel:       "info",
		AllowedOrigins: []string{"http://localhost:8100", "http://localhost:4200"},
		Backend: BackendConfig{
			BaseURL: "http://localhost:8081",
			Timeout: 30 * time.Second,
		},
		Detection: DetectionConfig{
			ConsumptionThreshold: 20,
			PreviousRank:         1,
			DefaultRefuelHour:    12,
			LargeRefillThreshold: 100,
		},
		Alerts: AlertsConfig{
			StorageKey:    "agilfleet-alerts",
			MaxAlerts:     200,
			SweepInterval: time.Hour,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			DSN:    "file:fuelmon.db?_pragma=busy_timeout(5000)",
		},
		Redis: RedisConfig{
			Host:            "localhost",
			Port:            "6379",
			PoolSize:        10,
			MinIdleConns:    2,
			MaxRetries:      3,
			RetryDelay:      time.Second,
			DialTimeout:     5 * time.Second,
			ReadTimeout:     3 * time.Second,
			WriteTimeout:    3 * time.Second,
			PoolTimeout:     4 * time.Second,
			VehicleCacheTTL: 2 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 120,
			Burst:             20,
		},
	}
}

// Load reads .env (optional), an optional YAML file named by FUELMON_CONFIG and
// environment variables, in that order of increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	cfg := DefaultConfig()

	if path := os.Getenv("FUELMON_CONFIG"); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML document at path onto cfg.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return errors.New("config file is empty")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Port, "PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitAndTrim(origins)
	}

	setString(&cfg.Backend.BaseURL, "BACKEND_URL")
	setString(&cfg.Backend.Token, "BACKEND_TOKEN")
	setDuration(&cfg.Backend.Timeout, "BACKEND_TIMEOUT")

	setFloat(&cfg.Detection.ConsumptionThreshold, "CONSUMPTION_THRESHOLD")
	setInt(&cfg.Detection.PreviousRank, "PREVIOUS_RANK")
	setInt(&cfg.Detection.DefaultRefuelHour, "DEFAULT_REFUEL_HOUR")
	setFloat(&cfg.Detection.LargeRefillThreshold, "LARGE_REFILL_THRESHOLD")

	setString(&cfg.Alerts.StorageKey, "ALERTS_STORAGE_KEY")
	setInt(&cfg.Alerts.MaxAlerts, "ALERTS_MAX_COUNT")
	setDuration(&cfg.Alerts.MaxAge, "ALERTS_MAX_AGE")
	setDuration(&cfg.Alerts.SweepInterval, "ALERTS_SWEEP_INTERVAL")

	setString(&cfg.Storage.Driver, "STORAGE_DRIVER")
	setString(&cfg.Storage.DSN, "STORAGE_DSN")
	setString(&cfg.Storage.MongoURI, "MONGO_URI")

	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Redis.Host, "REDIS_HOST")
	setString(&cfg.Redis.Port, "REDIS_PORT")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	setDuration(&cfg.Redis.VehicleCacheTTL, "VEHICLE_CACHE_TTL")

	if v := os.Getenv("RATE_LIMIT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RateLimit.Enabled = b
		}
	}
	setInt(&cfg.RateLimit.RequestsPerMinute, "RATE_LIMIT_RPM")
	setInt(&cfg.RateLimit.Burst, "RATE_LIMIT_BURST")
}

func Validate(cfg *Config) error {
	if cfg.Backend.BaseURL == "" {
		return errors.New("backend base URL is required")
	}
	if cfg.Detection.ConsumptionThreshold <= 0 {
		return errors.New("detection.consumption_threshold must be > 0")
	}
	if cfg.Detection.LargeRefillThreshold <= 0 {
		return errors.New("detection.large_refill_threshold must be > 0")
	}
	if cfg.Detection.PreviousRank < 1 {
		return errors.New("detection.previous_rank must be >= 1")
	}
	if cfg.Detection.DefaultRefuelHour < 0 || cfg.Detection.DefaultRefuelHour > 23 {
		return errors.New("detection.default_refuel_hour must be within 0-23")
	}
	if cfg.Alerts.StorageKey == "" {
		return errors.New("alerts.storage_key is required")
	}
	if cfg.Alerts.MaxAlerts < 0 {
		return errors.New("alerts.max_alerts must be >= 0")
	}
	switch strings.ToLower(cfg.Storage.Driver) {
	case "sqlite", "redis":
	case "mongo", "mongodb":
		if cfg.Storage.MongoURI == "" {
			return errors.New("storage.mongo_uri is required for the mongo driver")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
	if cfg.RateLimit.Enabled && cfg.RateLimit.RequestsPerMinute <= 0 {
		return errors.New("rate_limit.requests_per_minute must be > 0")
	}
	return nil
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return strings.EqualFold(c.Storage.Driver, "redis") || c.Redis.URL != "" || os.Getenv("REDIS_HOST") != ""
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		} else {
			log.Printf("Warning: ignoring invalid %s=%q", key, v)
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		} else {
			log.Printf("Warning: ignoring invalid %s=%q", key, v)
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		} else {
			log.Printf("Warning: ignoring invalid %s=%q", key, v)
		}
	}
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
