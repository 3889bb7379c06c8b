// Package config provides centralized configuration management for the importer.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0, imports can be slow)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig selects and configures the record storage backend.
type DatabaseConfig struct {
	// Driver is one of postgres, sqlite or memory (default: postgres)
	Driver string `env:"DB_DRIVER" default:"postgres"`

	// DSN is the connection string. Required unless Driver is memory.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	DSN string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of pooled connections (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`
}

// ImportConfig holds pipeline and transaction settings.
type ImportConfig struct {
	// MaxFileSize is the maximum accepted file size in bytes (default: 100MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of parallel imports (default: 5)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an import slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds a single import from upload to last batch (default: 10m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"10m"`

	// PipelineBatchSize is rows per prepared pipeline batch (default: 100)
	PipelineBatchSize int `env:"IMPORT_PIPELINE_BATCH_SIZE" default:"100"`

	// TransactionBatchSize is records persisted per transaction batch (default: 50)
	TransactionBatchSize int `env:"IMPORT_BATCH_SIZE" default:"50"`

	// MaxErrors is the error row count above which a run is unsuccessful (default: 100)
	MaxErrors int `env:"IMPORT_MAX_ERRORS" default:"100"`

	// SampleSize is values inspected per column during inference (default: 100)
	SampleSize int `env:"IMPORT_SAMPLE_SIZE" default:"100"`

	// EnumThreshold is the max unique/non-empty ratio for enum columns (default: 0.1)
	EnumThreshold float64 `env:"IMPORT_ENUM_THRESHOLD" default:"0.1"`

	// MinConfidence is the confidence a column name hint needs to win (default: 0.7)
	MinConfidence float64 `env:"IMPORT_MIN_CONFIDENCE" default:"0.7"`

	// Dir is the directory JSON requests may name files in. Empty disables
	// path imports; uploads always work.
	Dir string `env:"IMPORT_DIR"`

	// RulesFile is an optional YAML file with field mappings and validation rules
	RulesFile string `env:"IMPORT_RULES_FILE"`

	// Retention is how long finished transactions are kept (default: 24h)
	Retention time.Duration `env:"IMPORT_RETENTION" default:"24h"`

	// CleanupInterval is how often old transactions are evicted (default: 1h)
	CleanupInterval time.Duration `env:"IMPORT_CLEANUP_INTERVAL" default:"1h"`
}

// SecurityConfig holds API access settings.
type SecurityConfig struct {
	// RequireAPIKey enforces X-API-Key on /api routes (default: true)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"true"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
