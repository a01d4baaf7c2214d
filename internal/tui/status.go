package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/manav03panchal/tabula/internal/output"
	"github.com/manav03panchal/tabula/internal/undo"
	"github.com/manav03panchal/tabula/internal/validate"
)

// PositionComponent displays the cursor of a scope.
type PositionComponent struct {
	Scope    undo.Scope
	Position undo.Position
	Width    int
}

// NewPositionComponent creates a new position component.
func NewPositionComponent(scope undo.Scope, pos undo.Position, width int) *PositionComponent {
	return &PositionComponent{Scope: scope, Position: pos, Width: width}
}

// View renders the position component.
func (pc *PositionComponent) View() string {
	var content strings.Builder

	content.WriteString(FormatScope(pc.Scope))
	content.WriteString("\n")

	if pc.Position.Length == 0 {
		content.WriteString(StyleSubtitle.Render("No history yet"))
		return StylePositionBox.Width(pc.Width - 4).Render(content.String())
	}

	barWidth := pc.Width - 20
	if barWidth < 10 {
		barWidth = 10
	}
	pct := float64(pc.Position.Cursor) * 100 / float64(pc.Position.Length)
	content.WriteString(ProgressBar(pct, barWidth))
	content.WriteString(fmt.Sprintf(" %d/%d", pc.Position.Cursor, pc.Position.Length))
	content.WriteString("\n")
	content.WriteString(StyleSubtitle.Render(fmt.Sprintf("undo: %s  redo: %s",
		yesNo(pc.Position.CanUndo()), yesNo(pc.Position.CanRedo()))))

	return StylePositionBox.Width(pc.Width - 4).Render(content.String())
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// EntriesComponent lists the entries of a scope, oldest first.
type EntriesComponent struct {
	Entries  []undo.Entry
	Cursor   int
	Selected int
	Width    int
	// Height is the number of rows shown; the list scrolls to keep the
	// selection visible.
	Height int
	Now    time.Time
}

// View renders the entries component.
func (ec *EntriesComponent) View() string {
	var content strings.Builder

	content.WriteString(StyleTitle.Render("Steps"))
	content.WriteString("\n")

	if len(ec.Entries) == 0 {
		content.WriteString(StyleSubtitle.Render("Nothing recorded"))
		return StyleEntriesBox.Width(ec.Width - 4).Render(content.String())
	}

	first, last := ec.visible()
	for i := first; i < last; i++ {
		if i > first {
			content.WriteString("\n")
		}
		content.WriteString(ec.renderEntry(i))
	}

	return StyleEntriesBox.Width(ec.Width - 4).Render(content.String())
}

// visible returns the half-open range of rows to render.
func (ec *EntriesComponent) visible() (int, int) {
	n := len(ec.Entries)
	if ec.Height <= 0 || n <= ec.Height {
		return 0, n
	}
	first := ec.Selected - ec.Height/2
	if first < 0 {
		first = 0
	}
	if first+ec.Height > n {
		first = n - ec.Height
	}
	return first, first + ec.Height
}

func (ec *EntriesComponent) renderEntry(i int) string {
	e := ec.Entries[i]
	marker := " "
	if i+1 == ec.Cursor {
		marker = StyleCursor.Render("▶")
	}

	line := fmt.Sprintf("%3d  %-16s %s", i+1, e.RedoCommand.Type, output.FormatAge(e.CreatedAt, ec.Now))
	switch {
	case i == ec.Selected:
		line = StyleSelected.Render(line)
	case i >= ec.Cursor:
		line = StyleUndone.Render(line)
	}
	return marker + " " + line
}

// DetailComponent shows both directions of one entry.
type DetailComponent struct {
	Entry *undo.Entry
	Width int
}

// View renders the detail component.
func (dc *DetailComponent) View() string {
	if dc.Entry == nil {
		return ""
	}
	e := dc.Entry
	payloadWidth := dc.Width - 16
	if payloadWidth < 20 {
		payloadWidth = 20
	}

	var content strings.Builder
	content.WriteString(StyleSubtitle.Render("Entry " + e.ID))
	if !e.CreatedAt.IsZero() {
		content.WriteString(StyleSubtitle.Render("  recorded " + output.FormatTimeShort(e.CreatedAt)))
	}
	content.WriteString("\n")
	content.WriteString("redo  " + StyleCommand.Render(string(e.RedoCommand.Type)) + "  ")
	content.WriteString(StylePayload.Render(validate.CellText(string(e.RedoCommand.Payload), payloadWidth)))
	content.WriteString("\n")
	content.WriteString("undo  " + StyleCommand.Render(string(e.UndoCommand.Type)) + "  ")
	content.WriteString(StylePayload.Render(validate.CellText(string(e.UndoCommand.Payload), payloadWidth)))
	if e.RecordVersionBefore != nil || e.RecordVersionAfter != nil {
		content.WriteString("\n")
		content.WriteString(StyleSubtitle.Render("version " + versionText(e.RecordVersionBefore) + " → " + versionText(e.RecordVersionAfter)))
	}
	if e.RequestID != "" {
		content.WriteString("\n")
		content.WriteString(StyleSubtitle.Render("request " + e.RequestID))
	}

	return StyleDetailBox.Width(dc.Width - 4).Render(content.String())
}

func versionText(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

// HelpBar renders the help bar at the bottom.
func HelpBar() string {
	keys := []struct {
		key  string
		desc string
	}{
		{"↑/↓", "select"},
		{"u", "undo"},
		{"r", "redo"},
		{"R", "refresh"},
		{"q", "quit"},
	}

	var parts []string
	for _, k := range keys {
		part := StyleHelpKey.Render(k.key) + " " + StyleHelpDesc.Render(k.desc)
		parts = append(parts, part)
	}

	return StyleHelp.Render(strings.Join(parts, "  •  "))
}
