package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	// Server config
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

	// Terminal config
	assert.Empty(t, cfg.Terminal.DefaultShell)
	assert.EqualValues(t, 24, cfg.Terminal.Rows)
	assert.EqualValues(t, 80, cfg.Terminal.Cols)
	assert.Equal(t, 1048576, cfg.Terminal.BufferSize)
	assert.Equal(t, 4096, cfg.Terminal.ReadChunkSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Terminal.PollInterval)
	assert.Zero(t, cfg.Terminal.MaxSessions)

	// Storage and logging
	assert.Empty(t, cfg.Storage.DBPath)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)

	// Listing
	assert.Equal(t, 30*time.Second, cfg.Listing.Timeout)
	assert.Equal(t, 2, cfg.Listing.Retries)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                   "9000",
		"HOST":                   "127.0.0.1",
		"SHUTDOWN_TIMEOUT":       "3s",
		"TERMINAL_SHELL":         "/bin/bash",
		"TERMINAL_ROWS":          "40",
		"TERMINAL_COLS":          "120",
		"TERMINAL_BUFFER_SIZE":   "2048",
		"TERMINAL_POLL_INTERVAL": "50ms",
		"TERMINAL_MAX_SESSIONS":  "4",
		"TERMINAL_ENV":           "LANG:C.UTF-8,EDITOR:vi",
		"DB_PATH":                "/var/lib/ptyhost/audit.db",
		"LOG_LEVEL":              "debug",
		"LOG_DEV":                "true",
		"LISTING_RETRIES":        "5",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr())
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/bin/bash", cfg.Terminal.DefaultShell)
	assert.EqualValues(t, 40, cfg.Terminal.Rows)
	assert.EqualValues(t, 120, cfg.Terminal.Cols)
	assert.Equal(t, 2048, cfg.Terminal.BufferSize)
	assert.Equal(t, 50*time.Millisecond, cfg.Terminal.PollInterval)
	assert.Equal(t, 4, cfg.Terminal.MaxSessions)
	assert.Equal(t, map[string]string{"LANG": "C.UTF-8", "EDITOR": "vi"}, cfg.Terminal.Env)
	assert.Equal(t, "/var/lib/ptyhost/audit.db", cfg.Storage.DBPath)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 5, cfg.Listing.Retries)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("TERMINAL_ROWS", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("TERMINAL_POLL_INTERVAL", "soon")

	_, err := Load()
	assert.Error(t, err)
}
