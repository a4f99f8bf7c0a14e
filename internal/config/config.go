package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
// Monitor behavior (locations, interval, flags) lives in the settings file
// instead; see the settings package.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Upstream endpoints.
	NWSBaseURL     string
	GeocodeBaseURL string
	UserAgent      string
	FetchTimeout   time.Duration

	// Local state.
	SettingsPath string
	HistoryPath  string
	HistoryLimit int

	// Speech output. An empty command selects the log-only engine.
	SpeechCommand string

	// Delay before the first check after the scheduler arms.
	FirstCheckDelay time.Duration
}

// Load reads configuration from the environment, applying defaults where
// unset. A .env file in the working directory is merged in first without
// overriding variables already exported.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	firstCheckDelay, err := parseDuration("FIRST_CHECK_DELAY", "100ms")
	if err != nil {
		return nil, err
	}
	historyLimit, err := parsePositiveInt("HISTORY_LIMIT", 100)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		NWSBaseURL:     envOrDefault("NWS_BASE_URL", "https://api.weather.gov"),
		GeocodeBaseURL: envOrDefault("GEOCODE_BASE_URL", "https://api.zippopotam.us"),
		UserAgent:      envOrDefault("NWS_USER_AGENT", "weather-alert-monitor (github.com/couchcryptid/weather-alert-monitor)"),
		FetchTimeout:   fetchTimeout,

		SettingsPath: envOrDefault("SETTINGS_PATH", "settings.yaml"),
		HistoryPath:  envOrDefault("HISTORY_DB_PATH", "alert-history.db"),
		HistoryLimit: historyLimit,

		SpeechCommand: os.Getenv("SPEECH_COMMAND"),

		FirstCheckDelay: firstCheckDelay,
	}

	if cfg.NWSBaseURL == "" {
		return nil, errors.New("NWS_BASE_URL is required")
	}
	if cfg.GeocodeBaseURL == "" {
		return nil, errors.New("GEOCODE_BASE_URL is required")
	}
	if cfg.UserAgent == "" {
		return nil, errors.New("NWS_USER_AGENT is required: the NWS API rejects anonymous clients")
	}
	if cfg.SettingsPath == "" {
		return nil, errors.New("SETTINGS_PATH is required")
	}
	if cfg.HistoryPath == "" {
		return nil, errors.New("HISTORY_DB_PATH is required")
	}

	return cfg, nil
}

// envOrDefault returns the variable's value, or def when unset or blank.
func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parseDuration reads a positive duration from the environment.
func parseDuration(key, def string) (time.Duration, error) {
	s := envOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

// parsePositiveInt reads an integer > 0 from the environment.
func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}
