// Package config loads ptyhost configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Terminal TerminalConfig
	Storage  StorageConfig
	Logging  LogConfig
	Listing  ListingConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// TerminalConfig holds session defaults.
type TerminalConfig struct {
	DefaultShell  string            `envconfig:"TERMINAL_SHELL"`
	Rows          uint16            `envconfig:"TERMINAL_ROWS" default:"24"`
	Cols          uint16            `envconfig:"TERMINAL_COLS" default:"80"`
	BufferSize    int               `envconfig:"TERMINAL_BUFFER_SIZE" default:"1048576"`
	ReadChunkSize int               `envconfig:"TERMINAL_READ_CHUNK" default:"4096"`
	PollInterval  time.Duration     `envconfig:"TERMINAL_POLL_INTERVAL" default:"100ms"`
	MaxSessions   int               `envconfig:"TERMINAL_MAX_SESSIONS" default:"0"`
	RecordDir     string            `envconfig:"TERMINAL_RECORD_DIR"`
	Env           map[string]string `envconfig:"TERMINAL_ENV"`
}

// StorageConfig holds audit database configuration. An empty DBPath
// disables the audit trail.
type StorageConfig struct {
	DBPath string `envconfig:"DB_PATH"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
	File        string `envconfig:"LOG_FILE"`
}

// ListingConfig holds the directory listing client configuration.
type ListingConfig struct {
	Timeout time.Duration `envconfig:"LISTING_TIMEOUT" default:"30s"`
	Retries int           `envconfig:"LISTING_RETRIES" default:"2"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	if c.Terminal.Rows == 0 || c.Terminal.Cols == 0 {
		return fmt.Errorf("invalid terminal size %dx%d", c.Terminal.Cols, c.Terminal.Rows)
	}
	if c.Terminal.BufferSize <= 0 {
		return fmt.Errorf("invalid terminal buffer size %d", c.Terminal.BufferSize)
	}
	if c.Terminal.ReadChunkSize <= 0 {
		return fmt.Errorf("invalid terminal read chunk %d", c.Terminal.ReadChunkSize)
	}
	if c.Terminal.PollInterval <= 0 {
		return fmt.Errorf("invalid terminal poll interval %s", c.Terminal.PollInterval)
	}
	if c.Terminal.MaxSessions < 0 {
		return fmt.Errorf("invalid max sessions %d", c.Terminal.MaxSessions)
	}
	return nil
}
