// Package config provides centralized configuration for Tabula runtime values.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/field"
	"github.com/manav03panchal/tabula/internal/ids"
	"github.com/manav03panchal/tabula/internal/validate"
)

// AppName names the config directory.
const AppName = "tabula"

// RuntimeConfig holds all runtime configuration values.
type RuntimeConfig struct {
	// Storage configures the undo history database.
	Storage StorageConfig `yaml:"storage"`

	// Postgres configures the record store. An empty DSN keeps records in
	// memory.
	Postgres PostgresConfig `yaml:"postgres"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`

	// Undo configures history recording.
	Undo UndoConfig `yaml:"undo"`

	// Notify configures change notifications.
	Notify NotifyConfig `yaml:"notify"`

	// Session holds the default actor and window of CLI requests.
	Session SessionConfig `yaml:"session"`

	// Tables is the schema the record commands work against.
	Tables []TableConfig `yaml:"tables"`
}

// StorageConfig holds storage-related configuration.
type StorageConfig struct {
	// HistoryPath is the badger directory of the undo history.
	// Default: $XDG_DATA_HOME/tabula/history
	HistoryPath string `yaml:"history_path"`

	// InMemory keeps the history in memory only.
	// Default: false
	InMemory bool `yaml:"in_memory"`
}

// PostgresConfig holds record store configuration.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: warn
	Level string `yaml:"level"`

	// JSON switches from text to JSON lines.
	JSON bool `yaml:"json"`
}

// UndoConfig holds undo history configuration.
type UndoConfig struct {
	// MaxRetries bounds retries of a conflicting history write.
	// Default: 3
	MaxRetries int `yaml:"max_retries"`
}

// SessionConfig holds request identity defaults.
type SessionConfig struct {
	Actor  string `yaml:"actor"`
	Window string `yaml:"window"`
}

// NotifyConfig holds change notification configuration.
type NotifyConfig struct {
	// WebhookURL receives every change event. Empty disables delivery.
	WebhookURL string `yaml:"webhook_url"`

	// Template is a text/template for the request body. Empty posts JSON.
	Template string `yaml:"template"`

	// Timeout bounds one delivery attempt.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// TableConfig describes one table of the schema.
type TableConfig struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	DBTableName string        `yaml:"db_table_name"`
	Fields      []FieldConfig `yaml:"fields"`
}

// FieldConfig describes one field of a table.
type FieldConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	DBFieldName string `yaml:"db_field_name"`
	Type        string `yaml:"type"`
	Generated   bool   `yaml:"generated"`
}

// Build validates the table description and returns the table.
func (t TableConfig) Build() (*field.Table, error) {
	tableID, err := ids.ParseTableID(t.ID)
	if err != nil {
		return nil, err
	}
	if err := validate.NonEmpty("name", t.Name); err != nil {
		return nil, errors.WithContextf(err, "table %s", t.ID)
	}
	if err := validate.QualifiedIdentifier("db_table_name", t.DBTableName); err != nil {
		return nil, errors.WithContextf(err, "table %s", t.ID)
	}
	fields := make([]*field.Field, 0, len(t.Fields))
	for _, fc := range t.Fields {
		kind, err := field.ParseKind(fc.Type)
		if err != nil {
			return nil, errors.WithContextf(err, "table %s field %s", t.ID, fc.ID)
		}
		if err := validate.Identifier("db_field_name", fc.DBFieldName); err != nil {
			return nil, errors.WithContextf(err, "table %s field %s", t.ID, fc.ID)
		}
		f := field.New(ids.FieldID(fc.ID), fc.Name, fc.DBFieldName, kind)
		f.Generated = fc.Generated
		fields = append(fields, f)
	}
	return field.NewTable(tableID, t.Name, t.DBTableName, fields...)
}

// DefaultRuntimeConfig returns the default runtime configuration.
func DefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		Log: LogConfig{
			Level: "warn",
		},
		Undo: UndoConfig{
			MaxRetries: 3,
		},
		Notify: NotifyConfig{
			Timeout: 10 * time.Second,
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// Load reads the config file at path over the defaults and applies
// environment overrides. A missing file is not an error; an empty path
// uses DefaultPath.
func Load(path string) (*RuntimeConfig, error) {
	cfg := DefaultRuntimeConfig()
	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.ValidationField("config", "invalid config file "+path, err)
		}
	case !os.IsNotExist(err):
		return nil, errors.WithContextf(err, "read config %s", path)
	}
	cfg.loadFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *RuntimeConfig) Validate() error {
	if c.Undo.MaxRetries < 0 {
		return errors.ValidationField("undo.max_retries", "cannot be negative", nil)
	}
	if c.Notify.Timeout < 0 {
		return errors.ValidationField("notify.timeout", "cannot be negative", nil)
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return errors.ValidationField("log.level", "unknown level "+c.Log.Level, nil)
	}
	if c.Notify.WebhookURL != "" {
		if err := validate.URL(c.Notify.WebhookURL); err != nil {
			return errors.WithContext(err, "notify.webhook_url")
		}
	}
	return nil
}

// Global holds the global runtime configuration instance.
// It is initialized with defaults and can be overridden via environment variables.
var Global = initGlobal()

// initGlobal initializes the global config with defaults and environment overrides.
func initGlobal() *RuntimeConfig {
	cfg := DefaultRuntimeConfig()
	cfg.loadFromEnv()
	return cfg
}

// loadFromEnv loads configuration overrides from environment variables.
func (c *RuntimeConfig) loadFromEnv() {
	if v := os.Getenv("TABULA_HISTORY_DB"); v != "" {
		c.Storage.HistoryPath = v
	}
	if v := os.Getenv("TABULA_POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}

	if v := os.Getenv("TABULA_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("TABULA_LOG_JSON"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Log.JSON = b
		}
	}

	if v := os.Getenv("TABULA_ACTOR"); v != "" {
		c.Session.Actor = v
	}
	if v := os.Getenv("TABULA_WINDOW"); v != "" {
		c.Session.Window = v
	}

	if v := os.Getenv("TABULA_WEBHOOK_URL"); v != "" {
		c.Notify.WebhookURL = v
	}

	if v := os.Getenv("TABULA_UNDO_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Undo.MaxRetries = n
		}
	}
}

// ReloadFromEnv reloads configuration from environment variables.
// This is useful for testing or when environment variables change.
func (c *RuntimeConfig) ReloadFromEnv() {
	c.loadFromEnv()
}

// Reset resets the configuration to defaults.
// This is primarily useful for testing.
func (c *RuntimeConfig) Reset() {
	defaults := DefaultRuntimeConfig()
	*c = *defaults
}
