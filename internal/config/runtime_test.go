package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/manav03panchal/tabula/internal/errors"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TABULA_HISTORY_DB",
		"TABULA_POSTGRES_DSN",
		"TABULA_LOG_LEVEL",
		"TABULA_LOG_JSON",
		"TABULA_UNDO_MAX_RETRIES",
		"TABULA_WEBHOOK_URL",
		"TABULA_ACTOR",
		"TABULA_WINDOW",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultRuntimeConfig(t *testing.T) {
	cfg := DefaultRuntimeConfig()

	if cfg.Log.Level != "warn" {
		t.Errorf("expected Log.Level = warn, got %q", cfg.Log.Level)
	}
	if cfg.Log.JSON {
		t.Error("expected Log.JSON = false")
	}
	if cfg.Undo.MaxRetries != 3 {
		t.Errorf("expected Undo.MaxRetries = 3, got %d", cfg.Undo.MaxRetries)
	}
	if cfg.Postgres.DSN != "" {
		t.Errorf("expected empty Postgres.DSN, got %q", cfg.Postgres.DSN)
	}
	if cfg.Notify.Timeout != 10*time.Second {
		t.Errorf("expected Notify.Timeout = 10s, got %v", cfg.Notify.Timeout)
	}
	if cfg.Storage.HistoryPath != "" || cfg.Storage.InMemory {
		t.Errorf("expected zero Storage config, got %+v", cfg.Storage)
	}
}

func TestGlobalConfigExists(t *testing.T) {
	if Global == nil {
		t.Fatal("Global config should not be nil")
	}
}

func TestDefaultPath(t *testing.T) {
	path := DefaultPath()
	if !strings.HasSuffix(path, filepath.Join("tabula", "config.yaml")) {
		t.Errorf("unexpected default path %q", path)
	}
}

func TestConfigReset(t *testing.T) {
	originalCfg := *Global
	defer func() {
		*Global = originalCfg
	}()

	Global.Undo.MaxRetries = 9
	Global.Reset()

	if Global.Undo.MaxRetries != 3 {
		t.Errorf("expected Undo.MaxRetries = 3 after reset, got %d", Global.Undo.MaxRetries)
	}
}

func TestConfigLoadFromEnv(t *testing.T) {
	t.Setenv("TABULA_HISTORY_DB", "/tmp/history")
	t.Setenv("TABULA_POSTGRES_DSN", "postgres://app@db/tabula")
	t.Setenv("TABULA_LOG_LEVEL", "debug")
	t.Setenv("TABULA_LOG_JSON", "true")
	t.Setenv("TABULA_UNDO_MAX_RETRIES", "5")
	t.Setenv("TABULA_WEBHOOK_URL", "https://hooks.example.com/x")
	t.Setenv("TABULA_ACTOR", "usrAAAAAAAAAAAAAAAA")
	t.Setenv("TABULA_WINDOW", "winAAAAAAAAAAAAAAAA")

	cfg := DefaultRuntimeConfig()
	cfg.ReloadFromEnv()

	if cfg.Storage.HistoryPath != "/tmp/history" {
		t.Errorf("expected HistoryPath from env, got %q", cfg.Storage.HistoryPath)
	}
	if cfg.Postgres.DSN != "postgres://app@db/tabula" {
		t.Errorf("expected DSN from env, got %q", cfg.Postgres.DSN)
	}
	if cfg.Log.Level != "debug" || !cfg.Log.JSON {
		t.Errorf("expected debug JSON logging from env, got %+v", cfg.Log)
	}
	if cfg.Undo.MaxRetries != 5 {
		t.Errorf("expected Undo.MaxRetries = 5 from env, got %d", cfg.Undo.MaxRetries)
	}
	if cfg.Session.Actor != "usrAAAAAAAAAAAAAAAA" || cfg.Session.Window != "winAAAAAAAAAAAAAAAA" {
		t.Errorf("expected session from env, got %+v", cfg.Session)
	}
	if cfg.Notify.WebhookURL != "https://hooks.example.com/x" {
		t.Errorf("expected WebhookURL from env, got %q", cfg.Notify.WebhookURL)
	}
}

func TestConfigLoadFromEnvInvalidValues(t *testing.T) {
	t.Setenv("TABULA_LOG_JSON", "maybe")
	t.Setenv("TABULA_UNDO_MAX_RETRIES", "-1")

	cfg := DefaultRuntimeConfig()
	cfg.loadFromEnv()

	if cfg.Log.JSON {
		t.Error("expected Log.JSON = false (default)")
	}
	if cfg.Undo.MaxRetries != 3 {
		t.Errorf("expected Undo.MaxRetries = 3 (default), got %d", cfg.Undo.MaxRetries)
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)

	t.Run("missing_file", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Undo.MaxRetries != 3 {
			t.Errorf("expected defaults, got %+v", cfg)
		}
	})

	t.Run("file_over_defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := "postgres:\n  dsn: postgres://app@db/tabula\nlog:\n  level: info\nundo:\n  max_retries: 7\n"
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Postgres.DSN != "postgres://app@db/tabula" {
			t.Errorf("expected DSN from file, got %q", cfg.Postgres.DSN)
		}
		if cfg.Log.Level != "info" {
			t.Errorf("expected Log.Level = info, got %q", cfg.Log.Level)
		}
		if cfg.Undo.MaxRetries != 7 {
			t.Errorf("expected Undo.MaxRetries = 7, got %d", cfg.Undo.MaxRetries)
		}
	})

	t.Run("env_over_file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("log:\n  level: info\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("TABULA_LOG_LEVEL", "error")
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Log.Level != "error" {
			t.Errorf("expected Log.Level = error, got %q", cfg.Log.Level)
		}
	})

	t.Run("invalid_yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("log: [unclosed"), 0o600); err != nil {
			t.Fatal(err)
		}
		_, err := Load(path)
		if !errors.IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("invalid_level", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		_, err := Load(path)
		if !errors.IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}

const schemaYAML = `
notify:
  timeout: 2s
tables:
  - id: tblAAAAAAAAAAAAAAAA
    name: People
    db_table_name: bse.people
    fields:
      - id: fldNAMEAAAAAAAAAAAA
        name: Name
        db_field_name: name
        type: singleLineText
      - id: fldTOTALAAAAAAAAAAA
        name: Total
        db_field_name: total
        type: formula
        generated: true
`

func TestLoadTables(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(schemaYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Notify.Timeout != 2*time.Second {
		t.Errorf("expected Notify.Timeout = 2s, got %v", cfg.Notify.Timeout)
	}
	if len(cfg.Tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(cfg.Tables))
	}

	table, err := cfg.Tables[0].Build()
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	if len(table.Fields()) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(table.Fields()))
	}
	total, ok := table.FieldByDBName("total")
	if !ok || !total.Generated || !total.IsComputed() {
		t.Errorf("expected generated total field, got %+v", total)
	}
}

func TestTableConfigBuildErrors(t *testing.T) {
	tests := []struct {
		name  string
		table TableConfig
	}{
		{"bad_table_id", TableConfig{ID: "nope", Name: "x", DBTableName: "x"}},
		{"bad_kind", TableConfig{ID: "tblAAAAAAAAAAAAAAAA", Name: "x", DBTableName: "x",
			Fields: []FieldConfig{{ID: "fldAAAAAAAAAAAAAAAA", Name: "a", DBFieldName: "a", Type: "hologram"}}}},
		{"blank_name", TableConfig{ID: "tblAAAAAAAAAAAAAAAA", Name: "  ", DBTableName: "x"}},
		{"bad_table_name", TableConfig{ID: "tblAAAAAAAAAAAAAAAA", Name: "x", DBTableName: "a.b.c"}},
		{"bad_column", TableConfig{ID: "tblAAAAAAAAAAAAAAAA", Name: "x", DBTableName: "x",
			Fields: []FieldConfig{{ID: "fldAAAAAAAAAAAAAAAA", Name: "a", DBFieldName: `a"; drop`, Type: "number"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.table.Build(); !errors.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestValidateWebhookURL(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.Notify.WebhookURL = "https://10.0.0.1/hook"
	if err := cfg.Validate(); !errors.IsValidation(err) {
		t.Errorf("expected validation error for internal webhook, got %v", err)
	}

	cfg.Notify.WebhookURL = "http://localhost:8080/hook"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected localhost webhook to pass, got %v", err)
	}
}
