package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "https://api.weather.gov", cfg.NWSBaseURL)
	assert.Equal(t, "https://api.zippopotam.us", cfg.GeocodeBaseURL)
	assert.Contains(t, cfg.UserAgent, "weather-alert-monitor")
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.Equal(t, "settings.yaml", cfg.SettingsPath)
	assert.Equal(t, "alert-history.db", cfg.HistoryPath)
	assert.Equal(t, 100, cfg.HistoryLimit)
	assert.Empty(t, cfg.SpeechCommand)
	assert.Equal(t, 100*time.Millisecond, cfg.FirstCheckDelay)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("NWS_BASE_URL", "http://localhost:7070")
	t.Setenv("GEOCODE_BASE_URL", "http://localhost:7071")
	t.Setenv("NWS_USER_AGENT", "test-agent (ops@example.com)")
	t.Setenv("FETCH_TIMEOUT", "5s")
	t.Setenv("SETTINGS_PATH", "/tmp/settings.yaml")
	t.Setenv("HISTORY_DB_PATH", "/tmp/history.db")
	t.Setenv("HISTORY_LIMIT", "250")
	t.Setenv("SPEECH_COMMAND", "espeak")
	t.Setenv("FIRST_CHECK_DELAY", "1s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "http://localhost:7070", cfg.NWSBaseURL)
	assert.Equal(t, "http://localhost:7071", cfg.GeocodeBaseURL)
	assert.Equal(t, "test-agent (ops@example.com)", cfg.UserAgent)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
	assert.Equal(t, "/tmp/settings.yaml", cfg.SettingsPath)
	assert.Equal(t, "/tmp/history.db", cfg.HistoryPath)
	assert.Equal(t, 250, cfg.HistoryLimit)
	assert.Equal(t, "espeak", cfg.SpeechCommand)
	assert.Equal(t, time.Second, cfg.FirstCheckDelay)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_NegativeFetchTimeout(t *testing.T) {
	t.Setenv("FETCH_TIMEOUT", "-1s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FETCH_TIMEOUT")
}

func TestLoad_InvalidHistoryLimit(t *testing.T) {
	t.Setenv("HISTORY_LIMIT", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HISTORY_LIMIT")
}

func TestLoad_InvalidFirstCheckDelay(t *testing.T) {
	t.Setenv("FIRST_CHECK_DELAY", "soon")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FIRST_CHECK_DELAY")
}
