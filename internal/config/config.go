// Package config provides centralized configuration management for the importer.
// It loads configuration from environment variables with sensible defaults,
// optionally overlays a YAML import profile, and validates all settings on
// startup to fail fast on misconfiguration.
package config

import (
	"time"

	"github.com/petermich29/uf-database/internal/source"
)

// Config holds all importer configuration.
// All settings can be configured via environment variables.
type Config struct {
	Database DatabaseConfig
	Sources  SourcesConfig
	Import   ImportConfig
	Logging  LoggingConfig
	Progress ProgressConfig
	Metrics  MetricsConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver selects the engine: postgres or sqlite (default: postgres)
	Driver string `env:"DB_DRIVER" default:"postgres"`

	// URL is the connection string, or the database file path for sqlite (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// CreateIfMissing creates the target database (postgres) or file (sqlite) (default: true)
	CreateIfMissing bool `env:"DB_CREATE_IF_MISSING" default:"true"`

	// MaxConns is the maximum number of pooled connections (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// ConnectTimeout bounds connection setup and schema provisioning (default: 30s)
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" default:"30s"`
}

// SourcesConfig locates the three spreadsheet exports.
type SourcesConfig struct {
	InstitutionFile string `env:"INSTITUTION_FILE_PATH" default:"data/institutions.xlsx"`
	MetadataFile    string `env:"METADATA_FILE_PATH" default:"data/metadata.xlsx"`
	EnrollmentFile  string `env:"INSCRIPTION_FILE_PATH" envAlt:"ENROLLMENT_FILE_PATH" default:"data/inscriptions.xlsx"`

	// Sheet names the worksheet to read in every workbook (default: first sheet)
	Sheet string `env:"SOURCE_SHEET"`

	// Encoding applies to csv sources (default: utf-8)
	Encoding string `env:"SOURCE_ENCODING" default:"utf-8"`

	// Aliases are extra enrollment column renames as alias=canonical pairs
	Aliases []string `env:"IMPORT_COLUMN_ALIASES"`

	// sheets holds per-source sheet overrides from the profile
	sheets map[source.Kind]string
	// aliases holds per-source renames from the profile
	aliases map[source.Kind]map[string]string
}

// ImportConfig holds pipeline settings.
type ImportConfig struct {
	// BatchSize is the number of enrollment rows per commit (default: 500)
	BatchSize int `env:"IMPORT_BATCH_SIZE" default:"500"`

	// ErrorLogPath is the row-failure log, truncated on every run (default: import_errors.log)
	ErrorLogPath string `env:"IMPORT_ERROR_LOG" default:"import_errors.log"`

	// DateOrder disambiguates numeric dates: dmy or mdy (default: dmy)
	DateOrder string `env:"IMPORT_DATE_ORDER" default:"dmy"`

	// Profile is an optional YAML import profile overlaid on the environment
	Profile string `env:"IMPORT_PROFILE"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// ProgressConfig controls the per-stage progress display.
type ProgressConfig struct {
	// Mode is bar, log or off (default: bar)
	Mode string `env:"PROGRESS_MODE" default:"bar"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	// TextfilePath receives the run metrics in text exposition format when set
	TextfilePath string `env:"METRICS_TEXTFILE"`
}
