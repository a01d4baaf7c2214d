package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manav03panchal/tabula/internal/errors"
)

// run executes the root command with args and returns its output. The
// package level flag variables are reset first.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	flagFormat, flagColor, flagActor, flagWindow, flagConfig = "cli", "never", "", "", ""
	flagSQLRows, flagSQLAt, flagSQLType, flagSQLNull, flagSQLGenerated = false, "", "", false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	flagHistoryTable, flagHistoryLimit, flagHistoryOffset, flagHistoryBackup = "", 20, 0, false
	flagRecordTable, flagRecordSet = "", nil
	t.Cleanup(func() {
		if ctx != nil {
			_ = ctx.Close()
			ctx = nil
		}
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

const batchJSON = `{
  "table": "bse1.tbl_people",
  "columns": {"col_name": [{"recordId": "rec_001", "value": "Alice"}]},
  "system": {"lastModifiedTime": "2025-01-17T00:00:00.000Z", "lastModifiedBy": "usr_test", "versionIncrement": true},
  "fields": [{"id": "fldNameAAAAAAAAAAAA", "name": "Name", "dbFieldName": "col_name", "type": "singleLineText"}]
}`

const rowsJSON = `{
  "table": "bse1.tbl_people",
  "records": [
    {"recordId": "rec_001", "values": {"col_age": 36}},
    {"recordId": "rec_002", "values": {"col_age": 41.5}}
  ],
  "system": {"versionIncrement": false},
  "fields": [{"id": "fldAgeAAAAAAAAAAAAA", "name": "Age", "dbFieldName": "col_age", "type": "number"}]
}`

func TestSQLBuildStdin(t *testing.T) {
	out, err := run(t, batchJSON, "sql", "build")
	require.NoError(t, err)
	assert.Contains(t, out, `UPDATE "bse1"."tbl_people" AS t SET "col_name" = v."col_name"`)
	assert.Contains(t, out, "('rec_001','Alice',")
	assert.Contains(t, out, `"__version" = t."__version" + 1`)
	assert.Contains(t, out, "-- 1 record(s)")
}

func TestSQLBuildFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(batchJSON), 0o600))

	out, err := run(t, "", "sql", "build", path, "-f", "json")
	require.NoError(t, err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Contains(t, resp["sql"], `"bse1"."tbl_people"`)
}

func TestSQLBuildRows(t *testing.T) {
	out, err := run(t, rowsJSON, "sql", "build", "--rows")
	require.NoError(t, err)
	assert.Contains(t, out, "('rec_001',36::double precision,NULL::timestamptz,NULL)")
	assert.Contains(t, out, "('rec_002',41.5::double precision,NULL::timestamptz,NULL)")
	assert.NotContains(t, out, "__version")
}

func TestSQLBuildActorOverride(t *testing.T) {
	out, err := run(t, batchJSON, "sql", "build", "--actor", "usr_other")
	require.NoError(t, err)
	assert.Contains(t, out, "'usr_other'")
	assert.NotContains(t, out, "'usr_test'")
}

func TestSQLBuildAt(t *testing.T) {
	out, err := run(t, batchJSON, "sql", "build", "--at", "2025-03-01T10:00:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "'2025-03-01T10:00:00.000Z'::timestamptz")
}

func TestSQLBuildErrors(t *testing.T) {
	t.Run("invalid_json", func(t *testing.T) {
		_, err := run(t, "{", "sql", "build")
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("no_columns", func(t *testing.T) {
		_, err := run(t, `{"table": "t", "columns": {}}`, "sql", "build")
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrNoColumns)
	})

	t.Run("bad_at", func(t *testing.T) {
		_, err := run(t, batchJSON, "sql", "build", "--at", "not a time at all xyz")
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
		assert.Contains(t, err.Error(), "Valid examples:")
	})
}

func TestSQLLiteral(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"text", []string{"--type", "singleLineText", "O'Brien"}, "'O''Brien'"},
		{"number", []string{"--type", "number", "36.0"}, "36::double precision"},
		{"checkbox", []string{"--type", "checkbox", "true"}, "true::boolean"},
		{"json_array", []string{"--type", "multipleSelect", `["a","b"]`}, `'["a","b"]'::jsonb`},
		{"null_number", []string{"--type", "number", "--null"}, "NULL::double precision"},
		{"generated", []string{"--type", "number", "--generated", "1"}, "NULL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, "", append([]string{"sql", "literal"}, tt.args...)...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strings.TrimSpace(out))
		})
	}
}

func TestSQLLiteralJSON(t *testing.T) {
	out, err := run(t, "", "sql", "literal", "--type", "number", "2.5", "-f", "json")
	require.NoError(t, err)

	var resp map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "number", resp["type"])
	assert.Equal(t, "2.5::double precision", resp["literal"])
}

func TestSQLLiteralErrors(t *testing.T) {
	t.Run("unknown_kind", func(t *testing.T) {
		_, err := run(t, "", "sql", "literal", "--type", "nope", "x")
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("missing_value", func(t *testing.T) {
		_, err := run(t, "", "sql", "literal", "--type", "number")
		require.Error(t, err)
	})

	t.Run("type_mismatch", func(t *testing.T) {
		_, err := run(t, "", "sql", "literal", "--type", "checkbox", "yes")
		require.Error(t, err)
	})
}

func TestParseSetFlags(t *testing.T) {
	values, err := parseSetFlags([]string{"Name=Ada", "Age=36", "Tags=[\"a\"]", "Note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", values["Name"])
	assert.Equal(t, json.Number("36"), values["Age"])
	assert.Equal(t, []any{"a"}, values["Tags"])
	assert.Equal(t, "a=b", values["Note"])

	_, err = parseSetFlags([]string{"novalue"})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	_, err = parseSetFlags([]string{"=x"})
	require.Error(t, err)
}

func TestIsOffline(t *testing.T) {
	assert.True(t, isOffline(sqlBuildCmd))
	assert.True(t, isOffline(versionCmd))
	assert.False(t, isOffline(historyListCmd))
	assert.False(t, isOffline(recordUpdateCmd))
}

func TestCompleteKinds(t *testing.T) {
	got, _ := completeKinds(sqlLiteralCmd, nil, "multiple")
	assert.Contains(t, got, "multipleSelect")
	for _, k := range got {
		assert.True(t, strings.HasPrefix(k, "multiple"))
	}
}

func TestCompleteTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `tables:
  - id: tblAbCdEfGh12345678
    name: People
    db_table_name: bse1.tbl_people
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	flagConfig = path
	t.Cleanup(func() { flagConfig = "" })

	got, _ := completeTables(recordGetCmd, nil, "tbl")
	assert.Equal(t, []string{"tblAbCdEfGh12345678\tPeople"}, got)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tabula dev")
}

// onlineConfig writes a config with a persistent history under a temp dir
// and returns its path.
func onlineConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := `storage:
  history_path: ` + filepath.Join(dir, "history") + `
session:
  actor: usrAAAAAAAAAAAAAAAA
  window: winAAAAAAAAAAAAAAAA
tables:
  - id: tblAbCdEfGh12345678
    name: People
    db_table_name: bse1.tbl_people
    fields:
      - id: fldNameAAAAAAAAAAAA
        name: Name
        db_field_name: col_name
        type: singleLineText
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRecordCreateRecordsHistory(t *testing.T) {
	cfg := onlineConfig(t)

	out, err := run(t, "", "--config", cfg, "-f", "json",
		"record", "create", "recAbCdEfGh12345678", "--table", "tblAbCdEfGh12345678", "--set", "Name=Ada")
	require.NoError(t, err)

	var created struct {
		Records []struct {
			ID      string `json:"id"`
			Version int64  `json:"version"`
		} `json:"records"`
		EntryID string `json:"entry_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	require.Len(t, created.Records, 1)
	assert.Equal(t, "recAbCdEfGh12345678", created.Records[0].ID)
	assert.Equal(t, int64(1), created.Records[0].Version)
	assert.NotEmpty(t, created.EntryID)

	// The history outlives the process that wrote it.
	out, err = run(t, "", "--config", cfg, "-f", "json", "history", "status", "--table", "tblAbCdEfGh12345678")
	require.NoError(t, err)

	var status struct {
		Cursor  int  `json:"cursor"`
		Length  int  `json:"length"`
		CanUndo bool `json:"can_undo"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, 1, status.Cursor)
	assert.Equal(t, 1, status.Length)
	assert.True(t, status.CanUndo)
}

func TestHistoryStatusEmpty(t *testing.T) {
	cfg := onlineConfig(t)
	out, err := run(t, "", "--config", cfg, "history", "status", "--table", "tblAbCdEfGh12345678")
	require.NoError(t, err)
	assert.Contains(t, out, "No history yet.")
}

func TestHistoryCheckBackup(t *testing.T) {
	cfg := onlineConfig(t)
	out, err := run(t, "", "--config", cfg, "history", "check", "--backup")
	require.NoError(t, err)
	assert.Contains(t, out, "Backup written to ")
	assert.Contains(t, out, "History healthy")

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(cfg), "backups", "history-backup-*"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestUndoRequiresActor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  in_memory: true\n"), 0o600))

	_, err := run(t, "", "--config", path, "undo", "--table", "tblAbCdEfGh12345678")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestHistoryScopes(t *testing.T) {
	cfg := onlineConfig(t)
	_, err := run(t, "", "--config", cfg,
		"record", "create", "recAbCdEfGh12345678", "--table", "tblAbCdEfGh12345678", "--set", "Name=Bo")
	require.NoError(t, err)

	out, err := run(t, "", "--config", cfg, "-f", "json", "history", "scopes")
	require.NoError(t, err)

	var resp struct {
		Scopes []string `json:"scopes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []string{"usrAAAAAAAAAAAAAAAA:tblAbCdEfGh12345678:winAAAAAAAAAAAAAAAA"}, resp.Scopes)
}

func TestHistoryListLimitRange(t *testing.T) {
	cfg := onlineConfig(t)
	_, err := run(t, "", "--config", cfg, "history", "list", "--table", "tblAbCdEfGh12345678", "--limit", "5000")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "limit: must be between 0 and 1000")
}
