package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Color palette
var (
	PrimaryColor = lipgloss.Color("#7D56F4") // Purple - headers, borders
	SuccessColor = lipgloss.Color("#43BF6D") // Green - success, checkmarks
	ErrorColor   = lipgloss.Color("#FF5555") // Red - errors, X marks
	WarningColor = lipgloss.Color("#FFA500") // Orange - warnings
	MutedColor   = lipgloss.Color("#626262") // Gray - secondary info
	TextColor    = lipgloss.Color("#FFFFFF") // White - main content
	HexColor     = lipgloss.Color("#8BE9FD") // Cyan - hex dumps
)

// Layout constants
const (
	MinTerminalWidth = 60
	MaxContentWidth  = 100
	DefaultPadding   = 2
)

var (
	HeaderTitleStyle = lipgloss.NewStyle().
				Foreground(TextColor).
				Bold(true).
				PaddingLeft(2)

	HeaderCommandStyle = lipgloss.NewStyle().
				Foreground(MutedColor).
				PaddingLeft(2)

	HeaderParamKeyStyle = lipgloss.NewStyle().
				Foreground(MutedColor).
				PaddingLeft(2)

	HeaderParamValueStyle = lipgloss.NewStyle().
				Foreground(TextColor)

	ProgressLabelStyle = lipgloss.NewStyle().
				Foreground(TextColor).
				PaddingLeft(2)

	ProgressCountStyle = lipgloss.NewStyle().
				Foreground(MutedColor)

	SuccessTitleStyle = lipgloss.NewStyle().
				Foreground(SuccessColor).
				Bold(true)

	ErrorTitleStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	WarningTitleStyle = lipgloss.NewStyle().
				Foreground(WarningColor).
				Bold(true)

	ErrorMessageStyle = lipgloss.NewStyle().
				Foreground(ErrorColor)

	ResultKeyStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Width(15)

	ResultValueStyle = lipgloss.NewStyle().
				Foreground(TextColor)

	HintStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	HexDumpTitleStyle = lipgloss.NewStyle().
				Foreground(MutedColor).
				Bold(true)

	HexDumpContentStyle = lipgloss.NewStyle().
				Foreground(HexColor)

	TableHeaderStyle = lipgloss.NewStyle().
				Foreground(PrimaryColor).
				Bold(true).
				Padding(0, 1)

	TableCellStyle = lipgloss.NewStyle().
			Foreground(TextColor).
			Padding(0, 1)
)

// Status markers
const (
	SuccessMarker = "✓"
	FailureMarker = "✗"
	WarningMarker = "⚠"
)

// GetTerminalWidth returns the current terminal width, clamped to the
// supported range.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < MinTerminalWidth {
		return MinTerminalWidth
	}
	if width > MaxContentWidth {
		return MaxContentWidth
	}
	return width
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// boxStyle is the double border used by result boxes.
func boxStyle(color lipgloss.Color, width int) lipgloss.Style {
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}
	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(color).
		Width(width-2).
		Padding(0, 2)
}

// RenderHorizontalDivider creates a horizontal line of the given width.
func RenderHorizontalDivider(width int, char string) string {
	if width < 1 {
		width = 1
	}
	return lipgloss.NewStyle().
		Foreground(PrimaryColor).
		Render(strings.Repeat(char, width))
}
