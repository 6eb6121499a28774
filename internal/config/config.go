package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// ErrMissingServiceKey means the Daegu open-data API key is not configured.
// No upstream call can succeed without it, so startup must fail.
var ErrMissingServiceKey = errors.New("DAEGU_BUS_SERVICE_KEY is not set")

// Config holds all configuration for the tracker service
type Config struct {
	// Upstream API
	ServiceKey     string
	BaseURL        string
	ResponseFormat string // "json" (default) or "xml" provider mode
	RequestTimeout time.Duration

	// Polling
	PollInterval     time.Duration
	InactivityWindow time.Duration
	DefaultStopID    string

	// Cache
	CachePath       string
	RedisAddr       string // when set, Redis replaces SQLite as the persistent tier
	StationCacheTTL time.Duration
	HistoryLimit    int

	// HTTP surface
	ListenAddr     string
	AllowedOrigins []string
}

// Load reads configuration from environment variables with sensible
// defaults. The service key has no default: its absence is an error.
func Load() (*Config, error) {
	key := os.Getenv("DAEGU_BUS_SERVICE_KEY")
	if key == "" {
		return nil, ErrMissingServiceKey
	}

	cfg := &Config{
		ServiceKey:     key,
		BaseURL:        getEnv("DAEGU_BUS_BASE_URL", "https://apis.data.go.kr/6270000/dbmsapi02"),
		ResponseFormat: getEnv("DAEGU_BUS_RESPONSE_FORMAT", "json"),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,

		PollInterval:     time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 5)) * time.Second,
		InactivityWindow: time.Duration(getEnvInt("INACTIVITY_WINDOW_SECONDS", 180)) * time.Second,
		DefaultStopID:    getEnv("DEFAULT_STOP_ID", "00192"), // 대구역

		CachePath:       getEnv("CACHE_DATABASE", "data/buscache.db"),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		StationCacheTTL: time.Duration(getEnvInt("STATION_CACHE_HOURS", 24)) * time.Hour,
		HistoryLimit:    getEnvInt("HISTORY_LIMIT", 5),

		ListenAddr:     getEnv("LISTEN_ADDR", ":8082"),
		AllowedOrigins: []string{getEnv("ALLOWED_ORIGIN", "http://localhost:5173")},
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
