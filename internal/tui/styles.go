// Package tui provides the interactive history browser.
package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/manav03panchal/tabula/internal/undo"
)

// Color palette for the history browser.
var (
	ColorPrimary   = lipgloss.Color("#7C3AED") // Purple
	ColorSecondary = lipgloss.Color("#10B981") // Green
	ColorMuted     = lipgloss.Color("#6B7280") // Gray
	ColorWarning   = lipgloss.Color("#F59E0B") // Yellow
	ColorError     = lipgloss.Color("#EF4444") // Red
	ColorSuccess   = lipgloss.Color("#10B981") // Green
	ColorActive    = lipgloss.Color("#3B82F6") // Blue
	ColorBorder    = lipgloss.Color("#4B5563") // Dark gray
)

// Base styles.
var (
	// StyleTitle is used for section titles.
	StyleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	// StyleSubtitle is used for subtitles and secondary information.
	StyleSubtitle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// StyleScope is used for scope names.
	StyleScope = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	// StyleCommand is used for command types.
	StyleCommand = lipgloss.NewStyle().
			Foreground(ColorSecondary)

	// StyleCursor marks the entry the next undo replays.
	StyleCursor = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorActive)

	// StyleSelected highlights the selected row.
	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Reverse(true)

	// StyleUndone is used for entries past the cursor.
	StyleUndone = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Strikethrough(true)

	// StylePayload is used for raw command payloads.
	StylePayload = lipgloss.NewStyle().
			Italic(true).
			Foreground(ColorMuted)

	// StyleWarning is used for warning messages.
	StyleWarning = lipgloss.NewStyle().
			Foreground(ColorWarning)

	// StyleError is used for error messages.
	StyleError = lipgloss.NewStyle().
			Foreground(ColorError)

	// StyleSuccess is used for success messages.
	StyleSuccess = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	// StyleHelp is used for help text at the bottom.
	StyleHelp = lipgloss.NewStyle().
			Foreground(ColorMuted).
			MarginTop(1)

	// StyleHelpKey is used for keyboard shortcut keys.
	StyleHelpKey = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSecondary)

	// StyleHelpDesc is used for keyboard shortcut descriptions.
	StyleHelpDesc = lipgloss.NewStyle().
			Foreground(ColorMuted)
)

// Box styles for the browser sections.
var (
	// StylePositionBox frames the cursor summary.
	StylePositionBox = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorBorder).
				Padding(0, 2).
				MarginBottom(1)

	// StyleEntriesBox frames the entry list.
	StyleEntriesBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 2).
			MarginBottom(1)

	// StyleDetailBox frames the selected entry.
	StyleDetailBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorActive).
			Padding(0, 2)
)

// ProgressBar creates a progress bar string.
func ProgressBar(percentage float64, width int) string {
	if percentage > 100 {
		percentage = 100
	}
	if percentage < 0 {
		percentage = 0
	}

	filled := int(float64(width) * percentage / 100)
	empty := width - filled

	filledStyle := lipgloss.NewStyle().Foreground(ColorSuccess)
	emptyStyle := lipgloss.NewStyle().Foreground(ColorMuted)

	bar := ""
	for i := 0; i < filled; i++ {
		bar += filledStyle.Render("█") // Full block
	}
	for i := 0; i < empty; i++ {
		bar += emptyStyle.Render("░") // Light shade
	}

	return bar
}

// FormatScope formats a scope as "actor/table/window".
func FormatScope(s undo.Scope) string {
	return StyleScope.Render(fmt.Sprintf("%s/%s/%s", s.ActorID, s.TableID, s.WindowID))
}
