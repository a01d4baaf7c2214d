package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/manav03panchal/tabula/internal/batchsql"
	"github.com/manav03panchal/tabula/internal/field"
	"github.com/manav03panchal/tabula/internal/record"
	"github.com/manav03panchal/tabula/internal/storage"
	"github.com/manav03panchal/tabula/internal/undo"
	"github.com/manav03panchal/tabula/internal/validate"
)

// Styles for CLI output.
var (
	// Colors
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#10B981") // Green
	colorMuted     = lipgloss.Color("#6B7280") // Gray
	colorWarning   = lipgloss.Color("#F59E0B") // Yellow
	colorError     = lipgloss.Color("#EF4444") // Red
	colorSuccess   = lipgloss.Color("#10B981") // Green

	// Styles
	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	styleSuccess = lipgloss.NewStyle().
			Foreground(colorSuccess)

	styleWarning = lipgloss.NewStyle().
			Foreground(colorWarning)

	styleError = lipgloss.NewStyle().
			Foreground(colorError)

	styleMuted = lipgloss.NewStyle().
			Foreground(colorMuted)

	styleBold = lipgloss.NewStyle().
			Bold(true)

	styleScope = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	styleCommand = lipgloss.NewStyle().
			Foreground(colorSecondary)

	styleCursor = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWarning)

	styleSQL = lipgloss.NewStyle().
			Foreground(colorSecondary)
)

// CLIFormatter provides CLI-specific formatting.
type CLIFormatter struct {
	*Formatter
}

// NewCLIFormatter creates a new CLI formatter.
func NewCLIFormatter(f *Formatter) *CLIFormatter {
	return &CLIFormatter{Formatter: f}
}

func (c *CLIFormatter) render(style lipgloss.Style, text string) string {
	if c.IsColorEnabled() {
		return style.Render(text)
	}
	return text
}

// Title prints a title.
func (c *CLIFormatter) Title(text string) {
	c.Println(c.render(styleTitle, text))
}

// Success prints a success message.
func (c *CLIFormatter) Success(text string) {
	c.Println(c.render(styleSuccess, "✓ "+text))
}

// Warning prints a warning message.
func (c *CLIFormatter) Warning(text string) {
	c.Println(c.render(styleWarning, "⚠ "+text))
}

// Error prints an error message.
func (c *CLIFormatter) Error(text string) {
	c.Println(c.render(styleError, "✗ "+text))
}

// Muted prints muted text.
func (c *CLIFormatter) Muted(text string) {
	c.Println(c.render(styleMuted, text))
}

// ScopeName formats a history scope as "actor/table/window".
func (c *CLIFormatter) ScopeName(s undo.Scope) string {
	return c.render(styleScope, fmt.Sprintf("%s/%s/%s", s.ActorID, s.TableID, s.WindowID))
}

// CommandName formats a command type.
func (c *CLIFormatter) CommandName(name string) string {
	return c.render(styleCommand, name)
}

// =============================================================================
// History
// =============================================================================

// PrintPosition prints the cursor of a scope with a fill bar.
func (c *CLIFormatter) PrintPosition(scope undo.Scope, pos undo.Position) {
	c.Printf("History of %s\n", c.ScopeName(scope))
	if pos.Length == 0 {
		c.Muted("  No history yet.")
		return
	}
	c.Printf("  %s %d/%d\n", ProgressBar(float64(pos.Cursor)*100/float64(pos.Length), 20), pos.Cursor, pos.Length)
	c.Printf("  Undo: %s  Redo: %s\n", yesNo(pos.CanUndo()), yesNo(pos.CanRedo()))
}

// PrintHistory prints a page of history. The entry just below the cursor is
// the one the next undo replays.
func (c *CLIFormatter) PrintHistory(view undo.HistoryView, offset int, now time.Time) {
	c.PrintPosition(view.Scope, view.Position)
	if len(view.Entries) == 0 {
		return
	}
	c.Println()

	rows := make([]TableRow, 0, len(view.Entries))
	for i, e := range view.Entries {
		index := offset + i + 1
		marker := " "
		if index == view.Position.Cursor {
			marker = c.render(styleCursor, "▶")
		} else if index > view.Position.Cursor {
			marker = c.render(styleMuted, "·")
		}
		rows = append(rows, TableRow{Columns: []string{
			marker,
			fmt.Sprintf("%d", index),
			string(e.RedoCommand.Type),
			string(e.UndoCommand.Type),
			formatVersions(e),
			FormatAge(e.CreatedAt, now),
		}})
	}
	c.PrintTable([]string{"", "#", "DO", "UNDO", "VERSION", "CREATED"}, rows)
}

// PrintOutcome prints the result of an undo or redo.
func (c *CLIFormatter) PrintOutcome(op string, out undo.Outcome) {
	if out.Status == undo.StatusEmpty || out.Entry == nil {
		c.Warning(fmt.Sprintf("Nothing to %s.", op))
		return
	}
	data := out.Entry.UndoCommand
	if op == "redo" {
		data = out.Entry.RedoCommand
	}
	c.Success(fmt.Sprintf("Applied %s: %s", op, c.CommandName(string(data.Type))))
	c.Printf("  Entry: %s\n", out.Entry.ID)
	c.Printf("  Recorded: %s\n", FormatTime(out.Entry.CreatedAt))
	if v := formatVersions(*out.Entry); v != "" {
		c.Printf("  Version: %s\n", v)
	}
}

func formatVersions(e undo.Entry) string {
	switch {
	case e.RecordVersionBefore != nil && e.RecordVersionAfter != nil:
		return fmt.Sprintf("%d → %d", *e.RecordVersionBefore, *e.RecordVersionAfter)
	case e.RecordVersionAfter != nil:
		return fmt.Sprintf("→ %d", *e.RecordVersionAfter)
	case e.RecordVersionBefore != nil:
		return fmt.Sprintf("%d →", *e.RecordVersionBefore)
	}
	return ""
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// PrintIntegrity prints a history health check.
func (c *CLIFormatter) PrintIntegrity(r *storage.IntegrityReport) {
	if r.Healthy {
		c.Success(fmt.Sprintf("History healthy: %d scope(s), %d entries", r.Scopes, r.Entries))
		return
	}
	c.Error(fmt.Sprintf("History has %d problem(s)", r.ErrorCount))
	for _, e := range r.Errors {
		c.Printf("  - %s\n", e)
	}
}

// =============================================================================
// SQL and records
// =============================================================================

// PrintStatement prints a compiled batch.
func (c *CLIFormatter) PrintStatement(stmt *batchsql.Statement) {
	c.Println(c.render(styleSQL, stmt.SQL+";"))
	c.Muted(fmt.Sprintf("-- %d record(s); varying: %s; constant: %s",
		len(stmt.RecordIDs), listOrDash(stmt.Varying), listOrDash(stmt.Constant)))
}

func listOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

// PrintRecords prints records as a table with one column per field of table
// that at least one record carries.
func (c *CLIFormatter) PrintRecords(table *field.Table, records []record.Record) {
	if len(records) == 0 {
		c.Muted("No records.")
		return
	}
	var fields []*field.Field
	for _, f := range table.Fields() {
		for _, r := range records {
			if _, ok := r.Fields[string(f.ID)]; ok {
				fields = append(fields, f)
				break
			}
		}
	}
	headers := []string{"ID", "VERSION"}
	for _, f := range fields {
		headers = append(headers, f.Name)
	}
	rows := make([]TableRow, 0, len(records))
	for _, r := range records {
		cols := []string{string(r.ID), fmt.Sprintf("%d", r.Version)}
		for _, f := range fields {
			cols = append(cols, validate.CellText(formatCell(r.Fields[string(f.ID)]), maxCellWidth))
		}
		rows = append(rows, TableRow{Columns: cols})
	}
	c.PrintTable(headers, rows)
}

// maxCellWidth caps the rendered width of one record cell.
const maxCellWidth = 40

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, len(t))
		for i, p := range t {
			parts[i] = formatCell(p)
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + formatCell(t[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return fmt.Sprint(v)
}

// ProgressBar creates a simple progress bar.
func ProgressBar(percentage float64, width int) string {
	if percentage > 100 {
		percentage = 100
	}
	if percentage < 0 {
		percentage = 0
	}

	filled := int(float64(width) * percentage / 100)
	empty := width - filled

	bar := strings.Repeat("█", filled) + strings.Repeat("░", empty)
	return bar
}

// Table helpers for CLI output.
type TableRow struct {
	Columns []string
}

// PrintTable prints a simple table.
func (c *CLIFormatter) PrintTable(headers []string, rows []TableRow) {
	if len(rows) == 0 {
		return
	}

	// Calculate column widths
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, col := range row.Columns {
			if i < len(widths) && lipgloss.Width(col) > widths[i] {
				widths[i] = lipgloss.Width(col)
			}
		}
	}

	// Print headers
	var headerLine strings.Builder
	for i, h := range headers {
		headerLine.WriteString(pad(h, widths[i]))
	}
	c.Println(c.render(styleBold, strings.TrimRight(headerLine.String(), " ")))

	// Print separator
	var sep strings.Builder
	for _, w := range widths {
		sep.WriteString(strings.Repeat("─", w) + "  ")
	}
	c.Println(strings.TrimRight(sep.String(), " "))

	// Print rows
	for _, row := range rows {
		var rowLine strings.Builder
		for i, col := range row.Columns {
			if i < len(widths) {
				rowLine.WriteString(pad(col, widths[i]))
			}
		}
		c.Println(strings.TrimRight(rowLine.String(), " "))
	}
}

// pad left-aligns s in a column of width w, measuring display width so
// styled cells line up.
func pad(s string, w int) string {
	return s + strings.Repeat(" ", w-lipgloss.Width(s)+2)
}
