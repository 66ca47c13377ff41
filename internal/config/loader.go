package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/petermich29/uf-database/internal/schema"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values, overlays the import profile named by
// IMPORT_PROFILE (or profilePath when non-empty), and validates the result.
// Returns an error if required values are missing or validation fails.
func Load(profilePath string) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if profilePath != "" {
		cfg.Import.Profile = profilePath
	}
	if cfg.Import.Profile != "" {
		p, err := LoadProfile(cfg.Import.Profile)
		if err != nil {
			return nil, fmt.Errorf("config profile: %w", err)
		}
		cfg.ApplyProfile(p)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		// Get tags
		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		// Try primary env var, then alternate
		value := os.Getenv(envName)
		if value == "" && envAlt != "" {
			value = os.Getenv(envAlt)
		}

		// Apply default if not set
		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		// Set the field value
		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			// Split comma-separated values, trim whitespace
			parts := strings.Split(value, ",")
			result := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					result = append(result, p)
				}
			}
			field.Set(reflect.ValueOf(result))
		} else {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if _, err := schema.ParseDialect(c.Database.Driver); err != nil {
		errs = append(errs, fmt.Sprintf("DB_DRIVER (%q) must be one of: postgres, sqlite", c.Database.Driver))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.ConnectTimeout < 0 {
		errs = append(errs, "DB_CONNECT_TIMEOUT must be non-negative")
	}

	// Source validation
	if c.Sources.InstitutionFile == "" {
		errs = append(errs, "INSTITUTION_FILE_PATH is required")
	}
	if c.Sources.MetadataFile == "" {
		errs = append(errs, "METADATA_FILE_PATH is required")
	}
	if c.Sources.EnrollmentFile == "" {
		errs = append(errs, "INSCRIPTION_FILE_PATH is required")
	}
	if _, err := parseAliases(c.Sources.Aliases); err != nil {
		errs = append(errs, fmt.Sprintf("IMPORT_COLUMN_ALIASES: %v", err))
	}

	// Import validation
	if c.Import.BatchSize <= 0 {
		errs = append(errs, "IMPORT_BATCH_SIZE must be positive")
	}
	if c.Import.ErrorLogPath == "" {
		errs = append(errs, "IMPORT_ERROR_LOG is required")
	}
	validOrders := map[string]bool{"dmy": true, "mdy": true}
	if !validOrders[strings.ToLower(c.Import.DateOrder)] {
		errs = append(errs, fmt.Sprintf("IMPORT_DATE_ORDER (%q) must be one of: dmy, mdy", c.Import.DateOrder))
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	validModes := map[string]bool{"bar": true, "log": true, "off": true}
	if !validModes[strings.ToLower(c.Progress.Mode)] {
		errs = append(errs, fmt.Sprintf("PROGRESS_MODE (%q) must be one of: bar, log, off", c.Progress.Mode))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Database: {Driver: %q, URL: [MASKED], MaxConns: %d}, ",
		c.Database.Driver, c.Database.MaxConns))
	b.WriteString(fmt.Sprintf("Sources: {Institutions: %q, Metadata: %q, Enrollments: %q}, ",
		c.Sources.InstitutionFile, c.Sources.MetadataFile, c.Sources.EnrollmentFile))
	b.WriteString(fmt.Sprintf("Import: {BatchSize: %d, ErrorLog: %q, DateOrder: %q}, ",
		c.Import.BatchSize, c.Import.ErrorLogPath, c.Import.DateOrder))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}

// Dialect returns the parsed DB_DRIVER. Validate guarantees it parses.
func (c *Config) Dialect() schema.Dialect {
	d, _ := schema.ParseDialect(c.Database.Driver)
	return d
}
