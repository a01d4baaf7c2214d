package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manav03panchal/tabula/internal/bus"
	"github.com/manav03panchal/tabula/internal/command"
	terrors "github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/ids"
	"github.com/manav03panchal/tabula/internal/output"
	"github.com/manav03panchal/tabula/internal/record"
	"github.com/manav03panchal/tabula/internal/undo"
)

const schemaYAML = `
tables:
  - id: tblAAAAAAAAAAAAAAAA
    name: People
    db_table_name: bse.people
    fields:
      - id: fldNAMEAAAAAAAAAAAA
        name: Name
        db_field_name: name
        type: singleLineText
`

// isolate keeps user config and environment out of the test.
func isolate(t *testing.T, configBody string) Options {
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
	path := filepath.Join(t.TempDir(), "config.yaml")
	if configBody != "" {
		require.NoError(t, os.WriteFile(path, []byte(configBody), 0o600))
	}
	return Options{ConfigPath: path, InMemory: true}
}

// =============================================================================
// Context Tests
// =============================================================================

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.NotEmpty(t, opts.DBPath)
	assert.False(t, opts.InMemory)
	assert.Equal(t, output.FormatCLI, opts.Format)
	assert.Equal(t, output.ColorAuto, opts.ColorMode)
	assert.False(t, opts.Debug)
}

func TestNew(t *testing.T) {
	ctx, err := New(context.Background(), isolate(t, schemaYAML))
	require.NoError(t, err)
	defer ctx.Close()

	assert.NotNil(t, ctx.DB)
	assert.NotNil(t, ctx.Formatter)
	assert.NotNil(t, ctx.History)
	assert.NotNil(t, ctx.Undo)
	assert.NotNil(t, ctx.Bus)
	assert.NotNil(t, ctx.Metrics)
	assert.IsType(t, &record.MemoryRepository{}, ctx.Records)
	assert.Len(t, ctx.Catalog.Tables(), 1)
	require.Len(t, command.Types(), 4)
	for _, typ := range command.Types() {
		assert.True(t, ctx.Bus.Has(typ), typ)
	}
}

func TestNewWithOptions(t *testing.T) {
	opts := isolate(t, "")
	opts.Format = output.FormatJSON
	opts.ColorMode = output.ColorNever
	opts.Debug = true

	ctx, err := New(context.Background(), opts)
	require.NoError(t, err)
	defer ctx.Close()

	assert.Equal(t, output.FormatJSON, ctx.Formatter.Format)
	assert.Equal(t, output.ColorNever, ctx.Formatter.ColorMode)
	assert.True(t, ctx.Debug)
}

func TestNewWithEnvVariable(t *testing.T) {
	opts := isolate(t, "")
	opts.InMemory = false
	opts.DBPath = ""
	t.Setenv("TABULA_HISTORY_DB", MemoryPath)

	ctx, err := New(context.Background(), opts)
	require.NoError(t, err)
	defer ctx.Close()

	assert.Equal(t, "", ctx.DB.Path())
}

func TestNewWithEnvVariablePath(t *testing.T) {
	opts := isolate(t, "")
	opts.InMemory = false
	opts.DBPath = DefaultOptions().DBPath
	dbPath := filepath.Join(t.TempDir(), "history")
	t.Setenv("TABULA_HISTORY_DB", dbPath)

	ctx, err := New(context.Background(), opts)
	require.NoError(t, err)
	defer ctx.Close()

	assert.Equal(t, dbPath, ctx.DB.Path())
}

func TestNewInvalidSchema(t *testing.T) {
	opts := isolate(t, "tables:\n  - id: nope\n    name: x\n    db_table_name: x\n")
	_, err := New(context.Background(), opts)
	assert.True(t, terrors.IsValidation(err))
}

func TestNewInvalidWebhookTemplate(t *testing.T) {
	opts := isolate(t, "notify:\n  webhook_url: http://127.0.0.1:1/hook\n  template: '{{'\n")
	_, err := New(context.Background(), opts)
	assert.True(t, terrors.IsValidation(err))
}

func TestContextClose(t *testing.T) {
	ctx, err := New(context.Background(), isolate(t, ""))
	require.NoError(t, err)

	err = ctx.Close()
	assert.NoError(t, err)

	// Closing nil DB should be safe
	nilCtx := &Context{}
	err = nilCtx.Close()
	assert.NoError(t, err)
}

func TestContextFormatters(t *testing.T) {
	ctx, err := New(context.Background(), isolate(t, ""))
	require.NoError(t, err)
	defer ctx.Close()

	assert.NotNil(t, ctx.CLIFormatter())
	assert.NotNil(t, ctx.JSONFormatter())
}

func TestContextIsJSON(t *testing.T) {
	t.Run("json_format", func(t *testing.T) {
		opts := isolate(t, "")
		opts.Format = output.FormatJSON
		ctx, err := New(context.Background(), opts)
		require.NoError(t, err)
		defer ctx.Close()

		assert.True(t, ctx.IsJSON())
		assert.False(t, ctx.IsCLI())
	})

	t.Run("cli_format", func(t *testing.T) {
		opts := isolate(t, "")
		opts.Format = output.FormatCLI
		ctx, err := New(context.Background(), opts)
		require.NoError(t, err)
		defer ctx.Close()

		assert.False(t, ctx.IsJSON())
		assert.True(t, ctx.IsCLI())
	})
}

func TestContextDebugf(t *testing.T) {
	t.Run("debug_enabled", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := &Context{Formatter: &output.Formatter{Writer: &buf}, Debug: true}
		ctx.Debugf("scope %s", "x")
		assert.Equal(t, "[DEBUG] scope x\n", buf.String())
	})

	t.Run("debug_disabled", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := &Context{Formatter: &output.Formatter{Writer: &buf}}
		ctx.Debugf("scope %s", "x")
		assert.Empty(t, buf.String())
	})
}

func TestContextExec(t *testing.T) {
	ctx := &Context{}
	window := ids.WindowID("winAAAAAAAAAAAAAAAA")

	ec := ctx.Exec("usrAAAAAAAAAAAAAAAA", &window)
	require.NotNil(t, ec.WindowID)
	assert.Equal(t, window, *ec.WindowID)
	assert.NotEmpty(t, ec.RequestID)

	assert.Nil(t, ctx.Exec("usrAAAAAAAAAAAAAAAA", nil).WindowID)
}

// TestPipeline drives a create, an undo and a redo through the wired bus,
// service and badger history.
func TestPipeline(t *testing.T) {
	rt, err := New(context.Background(), isolate(t, schemaYAML))
	require.NoError(t, err)
	defer rt.Close()

	const (
		tableID ids.TableID  = "tblAAAAAAAAAAAAAAAA"
		recID   ids.RecordID = "recAAAAAAAAAAAAAAAA"
	)
	window := ids.WindowID("winAAAAAAAAAAAAAAAA")
	ec := rt.Exec("usrAAAAAAAAAAAAAAAA", &window)
	bg := context.Background()

	cmd, err := command.NewCreateRecord(command.CreateRecordPayload{
		TableID:  tableID,
		RecordID: recID,
		Fields:   map[string]any{"Name": "Ada"},
	})
	require.NoError(t, err)
	res, err := bus.ExecuteAs[*record.Result](bg, rt.Bus, ec, cmd)
	require.NoError(t, err)
	require.NotNil(t, res.Entry)

	pos, err := rt.Undo.Position(bg, ec, tableID, nil)
	require.NoError(t, err)
	assert.Equal(t, undo.Position{Cursor: 1, Length: 1}, pos)

	out, err := rt.Undo.Undo(bg, ec, tableID, nil)
	require.NoError(t, err)
	assert.Equal(t, undo.StatusApplied, out.Status)
	assert.Equal(t, 0, rt.Records.(*record.MemoryRepository).Count(tableID))

	out, err = rt.Undo.Redo(bg, ec, tableID, nil)
	require.NoError(t, err)
	assert.Equal(t, undo.StatusApplied, out.Status)
	assert.Equal(t, 1, rt.Records.(*record.MemoryRepository).Count(tableID))

	samples, err := rt.Metrics.Snapshot()
	require.NoError(t, err)
	assert.NotEmpty(t, samples)
}

// =============================================================================
// Error Tests
// =============================================================================

func TestParseError(t *testing.T) {
	err := NewParseError("field", "Name", "expected key=value")
	assert.True(t, terrors.IsValidation(err))

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "invalid field 'Name': expected key=value", pe.Error())
}

func TestFormatError(t *testing.T) {
	t.Run("with_suggestion", func(t *testing.T) {
		err := terrors.ValidationField("windowId", "missing", terrors.ErrMissingWindow)
		msg := FormatError(err)
		assert.Contains(t, msg, "windowId: missing")
		assert.Contains(t, msg, "--window")
	})

	t.Run("disk_full", func(t *testing.T) {
		msg := FormatError(NewDiskFullError("append", "", syscall.ENOSPC))
		assert.Contains(t, msg, "disk full during append")
		assert.Contains(t, msg, "Free up disk space")
	})
}

func TestNewDiskFullError(t *testing.T) {
	original := errors.New("underlying error")
	err := NewDiskFullError("write", "/path/to/db", original)

	assert.NotNil(t, err)
	assert.Equal(t, "write", err.Op)
	assert.Equal(t, "/path/to/db", err.Path)
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, err.Error(), "write")
	assert.Contains(t, err.Error(), "/path/to/db")
}

func TestDiskFullErrorWithoutPath(t *testing.T) {
	original := errors.New("underlying error")
	err := NewDiskFullError("sync", "", original)

	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, err.Error(), "sync")
	assert.NotContains(t, err.Error(), "on ")
}

func TestDiskFullErrorUnwrap(t *testing.T) {
	original := errors.New("underlying error")
	err := NewDiskFullError("write", "", original)

	assert.True(t, errors.Is(err, ErrDiskFull))
	assert.True(t, errors.Is(err, original))
}

func TestIsDiskFullError(t *testing.T) {
	t.Run("nil_error", func(t *testing.T) {
		assert.False(t, IsDiskFullError(nil))
	})

	t.Run("disk_full_error_type", func(t *testing.T) {
		err := NewDiskFullError("write", "", nil)
		assert.True(t, IsDiskFullError(err))
	})

	t.Run("sentinel_disk_full", func(t *testing.T) {
		assert.True(t, IsDiskFullError(ErrDiskFull))
	})

	t.Run("wrapped_sentinel", func(t *testing.T) {
		wrapped := fmt.Errorf("context: %w", ErrDiskFull)
		assert.True(t, IsDiskFullError(wrapped))
	})

	t.Run("enospc_errno", func(t *testing.T) {
		assert.True(t, IsDiskFullError(syscall.ENOSPC))
	})

	t.Run("error_messages", func(t *testing.T) {
		for _, msg := range []string{
			"no space left on device",
			"DISK FULL",
			"write failed: ENOSPC",
			"not enough space on disk",
			"insufficient disk space",
			"out of disk space",
		} {
			assert.True(t, IsDiskFullError(errors.New(msg)), msg)
		}
	})

	t.Run("regular_error", func(t *testing.T) {
		assert.False(t, IsDiskFullError(errors.New("connection timeout")))
	})
}

func TestWrapDiskFullError(t *testing.T) {
	t.Run("nil_error", func(t *testing.T) {
		assert.Nil(t, WrapDiskFullError(nil, "write", "/path"))
	})

	t.Run("disk_full_error", func(t *testing.T) {
		err := errors.New("no space left on device")
		result := WrapDiskFullError(err, "write", "/path/to/db")

		var diskFullErr *DiskFullError
		assert.True(t, errors.As(result, &diskFullErr))
		assert.Equal(t, "write", diskFullErr.Op)
		assert.Equal(t, "/path/to/db", diskFullErr.Path)
	})

	t.Run("regular_error_not_wrapped", func(t *testing.T) {
		err := errors.New("connection timeout")
		result := WrapDiskFullError(err, "write", "/path")

		assert.Equal(t, err, result)
		var diskFullErr *DiskFullError
		assert.False(t, errors.As(result, &diskFullErr))
	})
}
