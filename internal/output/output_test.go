package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manav03panchal/tabula/internal/batchsql"
	"github.com/manav03panchal/tabula/internal/field"
	"github.com/manav03panchal/tabula/internal/record"
	"github.com/manav03panchal/tabula/internal/storage"
	"github.com/manav03panchal/tabula/internal/undo"
)

// =============================================================================
// Formatter Tests
// =============================================================================

func TestNewFormatter(t *testing.T) {
	f := NewFormatter()
	assert.NotNil(t, f)
	assert.Equal(t, FormatCLI, f.Format)
	assert.Equal(t, ColorAuto, f.ColorMode)
	assert.False(t, f.NoNewline)
}

func TestFormatterIsColorEnabled(t *testing.T) {
	t.Run("color_always", func(t *testing.T) {
		f := &Formatter{ColorMode: ColorAlways}
		assert.True(t, f.IsColorEnabled())
	})

	t.Run("color_never", func(t *testing.T) {
		f := &Formatter{ColorMode: ColorNever}
		assert.False(t, f.IsColorEnabled())
	})

	t.Run("color_auto_non_terminal", func(t *testing.T) {
		var buf bytes.Buffer
		f := &Formatter{
			Writer:    &buf,
			ColorMode: ColorAuto,
		}
		// Buffer is not a terminal
		assert.False(t, f.IsColorEnabled())
	})
}

func TestFormatterPrint(t *testing.T) {
	var buf bytes.Buffer
	f := &Formatter{Writer: &buf}

	f.Print("hello")
	assert.Equal(t, "hello", buf.String())
}

func TestFormatterPrintln(t *testing.T) {
	var buf bytes.Buffer
	f := &Formatter{Writer: &buf}

	f.Println("hello")
	assert.Equal(t, "hello\n", buf.String())
}

func TestFormatterPrintf(t *testing.T) {
	var buf bytes.Buffer
	f := &Formatter{Writer: &buf}

	f.Printf("hello %s", "world")
	assert.Equal(t, "hello world", buf.String())
}

func TestFormatterJSON(t *testing.T) {
	var buf bytes.Buffer
	f := &Formatter{Writer: &buf}

	data := map[string]string{"key": "value"}
	err := f.JSON(data)
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), `"key": "value"`)
}

func TestFormatterPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	f := &Formatter{Writer: &buf}

	data := map[string]int{"count": 42}
	err := f.PrintJSON(data)
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), `"count": 42`)
}

// =============================================================================
// Format and ColorMode Constants Tests
// =============================================================================

func TestFormatConstants(t *testing.T) {
	assert.Equal(t, Format("cli"), FormatCLI)
	assert.Equal(t, Format("json"), FormatJSON)
	assert.Equal(t, Format("plain"), FormatPlain)
}

func TestColorModeConstants(t *testing.T) {
	assert.Equal(t, ColorMode("auto"), ColorAuto)
	assert.Equal(t, ColorMode("always"), ColorAlways)
	assert.Equal(t, ColorMode("never"), ColorNever)
}

// =============================================================================
// Duration Formatting Tests
// =============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{0, "0s"},
		{30 * time.Second, "30s"},
		{59 * time.Second, "59s"},
		{60 * time.Second, "1m"},
		{90 * time.Second, "1m 30s"},
		{5 * time.Minute, "5m"},
		{5*time.Minute + 30*time.Second, "5m 30s"},
		{59 * time.Minute, "59m"},
		{60 * time.Minute, "1h"},
		{90 * time.Minute, "1h 30m"},
		{2 * time.Hour, "2h"},
		{2*time.Hour + 15*time.Minute, "2h 15m"},
		{8*time.Hour + 30*time.Minute, "8h 30m"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := FormatDuration(tt.duration)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, "5m ago", FormatAge(now.Add(-5*time.Minute), now))
	assert.Equal(t, "0s ago", FormatAge(now.Add(time.Minute), now))
}

// =============================================================================
// Time Formatting Tests
// =============================================================================

func TestFormatTime(t *testing.T) {
	tm := time.Date(2024, 1, 15, 14, 30, 45, 0, time.UTC)
	result := FormatTime(tm)
	assert.Contains(t, result, "2024-01-15")
	assert.Contains(t, result, "30")
	assert.Contains(t, result, "45")
}

func TestFormatTimeShort(t *testing.T) {
	tm := time.Date(2024, 1, 15, 14, 30, 45, 0, time.UTC)
	result := FormatTimeShort(tm)
	assert.Contains(t, result, "2024-01-15")
	assert.Contains(t, result, "30")
	assert.NotContains(t, result, ":45")
}

// =============================================================================
// Fixtures
// =============================================================================

var (
	testNow   = time.Date(2025, 1, 17, 12, 0, 0, 0, time.UTC)
	testScope = undo.Scope{
		ActorID:  "usrAAAAAAAAAAAAAAAA",
		TableID:  "tblAAAAAAAAAAAAAAAA",
		WindowID: "winAAAAAAAAAAAAAAAA",
	}
)

func version(v int64) *int64 { return &v }

func testEntry(id string) undo.Entry {
	return undo.Entry{
		ID:                  id,
		Scope:               testScope,
		UndoCommand:         undo.CommandData{Type: undo.DataUpdateRecord, Version: undo.CurrentVersion, Payload: []byte(`{}`)},
		RedoCommand:         undo.CommandData{Type: undo.DataUpdateRecord, Version: undo.CurrentVersion, Payload: []byte(`{}`)},
		RecordVersionBefore: version(4),
		RecordVersionAfter:  version(5),
		CreatedAt:           testNow.Add(-10 * time.Minute),
	}
}

func newCLI() (*CLIFormatter, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewCLIFormatter(&Formatter{Writer: &buf, ColorMode: ColorNever}), &buf
}

func newJSON() (*JSONFormatter, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewJSONFormatter(&Formatter{Writer: &buf}), &buf
}

// =============================================================================
// CLIFormatter Tests
// =============================================================================

func TestCLIFormatterMessages(t *testing.T) {
	c, buf := newCLI()
	c.Title("Title")
	c.Success("done")
	c.Warning("careful")
	c.Error("failed")
	c.Muted("quiet")
	assert.Equal(t, "Title\n✓ done\n⚠ careful\n✗ failed\nquiet\n", buf.String())
}

func TestCLIFormatterColor(t *testing.T) {
	var buf bytes.Buffer
	c := NewCLIFormatter(&Formatter{Writer: &buf, ColorMode: ColorAlways})
	assert.Contains(t, c.CommandName("UpdateRecord"), "UpdateRecord")
	assert.Contains(t, c.ScopeName(testScope), "usrAAAAAAAAAAAAAAAA/tblAAAAAAAAAAAAAAAA/winAAAAAAAAAAAAAAAA")
}

func TestCLIFormatterPrintPosition(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		c, buf := newCLI()
		c.PrintPosition(testScope, undo.Position{})
		assert.Contains(t, buf.String(), "No history yet.")
	})

	t.Run("middle", func(t *testing.T) {
		c, buf := newCLI()
		c.PrintPosition(testScope, undo.Position{Cursor: 1, Length: 2})
		out := buf.String()
		assert.Contains(t, out, "1/2")
		assert.Contains(t, out, ProgressBar(50, 20))
		assert.Contains(t, out, "Undo: yes  Redo: yes")
	})
}

func TestCLIFormatterPrintHistory(t *testing.T) {
	c, buf := newCLI()
	view := undo.HistoryView{
		Scope:    testScope,
		Position: undo.Position{Cursor: 1, Length: 2},
		Entries:  []undo.Entry{testEntry("e1"), testEntry("e2")},
	}
	c.PrintHistory(view, 0, testNow)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	last := lines[len(lines)-2:]
	assert.True(t, strings.HasPrefix(last[0], "▶"), last[0])
	assert.Contains(t, last[0], "4 → 5")
	assert.Contains(t, last[0], "10m ago")
	assert.True(t, strings.HasPrefix(last[1], "·"), last[1])
}

func TestCLIFormatterPrintOutcome(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		c, buf := newCLI()
		c.PrintOutcome("undo", undo.Outcome{Status: undo.StatusEmpty})
		assert.Equal(t, "⚠ Nothing to undo.\n", buf.String())
	})

	t.Run("applied", func(t *testing.T) {
		c, buf := newCLI()
		e := testEntry("e1")
		e.RedoCommand.Type = undo.DataRestoreRecords
		c.PrintOutcome("redo", undo.Outcome{Status: undo.StatusApplied, Entry: &e})
		out := buf.String()
		assert.Contains(t, out, "✓ Applied redo: RestoreRecords")
		assert.Contains(t, out, "Entry: e1")
		assert.Contains(t, out, "Version: 4 → 5")
	})
}

func TestCLIFormatterPrintIntegrity(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		c, buf := newCLI()
		c.PrintIntegrity(&storage.IntegrityReport{Healthy: true, Scopes: 2, Entries: 7})
		assert.Equal(t, "✓ History healthy: 2 scope(s), 7 entries\n", buf.String())
	})

	t.Run("unhealthy", func(t *testing.T) {
		c, buf := newCLI()
		c.PrintIntegrity(&storage.IntegrityReport{ErrorCount: 1, Errors: []string{"cursor 3 past length 2"}})
		assert.Contains(t, buf.String(), "✗ History has 1 problem(s)")
		assert.Contains(t, buf.String(), "  - cursor 3 past length 2")
	})
}

func TestCLIFormatterPrintStatement(t *testing.T) {
	c, buf := newCLI()
	c.PrintStatement(&batchsql.Statement{
		SQL:       `UPDATE "t" SET "a" = NULL WHERE "__id" IN ('rec1')`,
		RecordIDs: []string{"rec1"},
		Constant:  []string{"a"},
	})
	out := buf.String()
	assert.Contains(t, out, `WHERE "__id" IN ('rec1');`)
	assert.Contains(t, out, "-- 1 record(s); varying: -; constant: a")
}

func TestCLIFormatterPrintRecords(t *testing.T) {
	table, err := field.NewTable("tblAAAAAAAAAAAAAAAA", "People", "bse.people",
		field.New("fldNAMEAAAAAAAAAAAA", "Name", "name", field.KindSingleLineText),
		field.New("fldTAGSAAAAAAAAAAAA", "Tags", "tags", field.KindMultipleSelect),
		field.New("fldAGEAAAAAAAAAAAAA", "Age", "age", field.KindNumber),
	)
	require.NoError(t, err)

	t.Run("empty", func(t *testing.T) {
		c, buf := newCLI()
		c.PrintRecords(table, nil)
		assert.Equal(t, "No records.\n", buf.String())
	})

	t.Run("columns_present", func(t *testing.T) {
		c, buf := newCLI()
		c.PrintRecords(table, []record.Record{{
			ID:      "recAAAAAAAAAAAAAAAA",
			Version: 2,
			Fields:  map[string]any{"fldNAMEAAAAAAAAAAAA": "Ada", "fldTAGSAAAAAAAAAAAA": []any{"x", "y"}},
		}})
		out := buf.String()
		assert.Contains(t, out, "Name")
		assert.Contains(t, out, "Tags")
		assert.NotContains(t, out, "Age")
		assert.Contains(t, out, "x, y")
	})
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "░░░░", ProgressBar(-5, 4))
	assert.Equal(t, "██░░", ProgressBar(50, 4))
	assert.Equal(t, "████", ProgressBar(150, 4))
}

func TestCLIFormatterPrintTable(t *testing.T) {
	t.Run("aligned", func(t *testing.T) {
		c, buf := newCLI()
		c.PrintTable([]string{"A", "B"}, []TableRow{{Columns: []string{"long", "x"}}})
		lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, "A     B", lines[0])
		assert.Equal(t, "────  ─", lines[1])
		assert.Equal(t, "long  x", lines[2])
	})

	t.Run("no_rows", func(t *testing.T) {
		c, buf := newCLI()
		c.PrintTable([]string{"A"}, nil)
		assert.Empty(t, buf.String())
	})
}

// =============================================================================
// JSONFormatter Tests
// =============================================================================

func TestJSONFormatterPrintHistory(t *testing.T) {
	j, buf := newJSON()
	view := undo.HistoryView{
		Scope:    testScope,
		Position: undo.Position{Cursor: 2, Length: 3},
		Entries:  []undo.Entry{testEntry("e2")},
	}
	require.NoError(t, j.PrintHistory(view, 1))

	var resp HistoryResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "tblAAAAAAAAAAAAAAAA", resp.Scope.TableID)
	assert.Equal(t, 2, resp.Cursor)
	assert.True(t, resp.CanUndo)
	assert.True(t, resp.CanRedo)
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, 2, resp.Entries[0].Index)
	assert.Equal(t, "2025-01-17T11:50:00Z", resp.Entries[0].CreatedAt)
	assert.Equal(t, int64(5), *resp.Entries[0].RecordVersionAfter)
	assert.Equal(t, 1, resp.ShownCount)
}

func TestJSONFormatterPrintStatus(t *testing.T) {
	j, buf := newJSON()
	require.NoError(t, j.PrintStatus(testScope, undo.Position{}))
	assert.Contains(t, buf.String(), `"can_undo": false`)
	assert.Contains(t, buf.String(), `"window_id": "winAAAAAAAAAAAAAAAA"`)
}

func TestJSONFormatterPrintOutcome(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		j, buf := newJSON()
		require.NoError(t, j.PrintOutcome("undo", undo.Outcome{Status: undo.StatusEmpty}))
		assert.NotContains(t, buf.String(), `"entry"`)
		assert.Contains(t, buf.String(), `"status": "empty"`)
	})

	t.Run("applied", func(t *testing.T) {
		j, buf := newJSON()
		e := testEntry("e1")
		require.NoError(t, j.PrintOutcome("redo", undo.Outcome{Status: undo.StatusApplied, Entry: &e}))
		var resp OutcomeResponse
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "redo", resp.Operation)
		require.NotNil(t, resp.Entry)
		assert.Equal(t, "e1", resp.Entry.ID)
		assert.Equal(t, undo.DataUpdateRecord, resp.Entry.RedoCommand.Type)
	})
}

func TestJSONFormatterPrintStatement(t *testing.T) {
	j, buf := newJSON()
	require.NoError(t, j.PrintStatement(&batchsql.Statement{SQL: "UPDATE x", RecordIDs: []string{"rec1"}}))
	var resp StatementResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "UPDATE x", resp.SQL)
	assert.Equal(t, []string{}, resp.Varying)
	assert.Equal(t, []string{}, resp.Constant)
}

func TestJSONFormatterPrintRecords(t *testing.T) {
	j, buf := newJSON()
	at := testNow
	entry := testEntry("e1")
	require.NoError(t, j.PrintRecords([]record.Record{{
		ID:               "recAAAAAAAAAAAAAAAA",
		Version:          3,
		Fields:           map[string]any{"fldNAMEAAAAAAAAAAAA": "Ada"},
		LastModifiedTime: &at,
	}}, &entry))
	var resp RecordsResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Len(t, resp.Records, 1)
	assert.Equal(t, int64(3), resp.Records[0].Version)
	assert.Equal(t, "2025-01-17T12:00:00Z", resp.Records[0].LastModifiedTime)
	assert.Equal(t, "e1", resp.EntryID)
}

func TestJSONFormatterPrintIntegrity(t *testing.T) {
	j, buf := newJSON()
	require.NoError(t, j.PrintIntegrity(&storage.IntegrityReport{Healthy: true, Scopes: 1}))
	assert.Contains(t, buf.String(), `"healthy": true`)
}

func TestJSONFormatterPrintError(t *testing.T) {
	j, buf := newJSON()
	require.NoError(t, j.PrintError("boom", "validation", "try again"))
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, ErrorResponse{Status: "error", Error: "boom", Kind: "validation", Suggestion: "try again"}, resp)
}
