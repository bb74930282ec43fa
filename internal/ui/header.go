package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Param is one key/value line in a header or result box. Params keep
// their order.
type Param struct {
	Key   string
	Value string
}

// P is shorthand for Param{key, value}.
func P(key, value string) Param { return Param{Key: key, Value: value} }

// Header is the banner printed before a command runs.
type Header struct {
	Title   string // e.g., "NV BACKUP"
	Command string // e.g., "qcdiag nv backup"
	Params  []Param
	Width   int
}

// NewHeader creates a header sized to the terminal.
func NewHeader(title, command string, params ...Param) *Header {
	return &Header{
		Title:   title,
		Command: command,
		Params:  params,
		Width:   GetTerminalWidth(),
	}
}

// SetWidth sets the terminal width for responsive rendering
func (h *Header) SetWidth(width int) *Header {
	h.Width = width
	return h
}

// Add appends a parameter line.
func (h *Header) Add(key, value string) *Header {
	h.Params = append(h.Params, Param{Key: key, Value: value})
	return h
}

// Render returns the styled header.
func (h *Header) Render() string {
	width := h.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	top := lipgloss.JoinVertical(lipgloss.Left,
		HeaderTitleStyle.Render(strings.ToUpper(h.Title)),
		HeaderCommandStyle.Render(h.Command))

	content := top
	if len(h.Params) > 0 {
		keyWidth := 0
		for _, p := range h.Params {
			keyWidth = max(keyWidth, lipgloss.Width(p.Key)+1)
		}
		lines := make([]string, 0, len(h.Params))
		for _, p := range h.Params {
			key := HeaderParamKeyStyle.Render(padRight(p.Key+":", keyWidth))
			lines = append(lines, key+" "+HeaderParamValueStyle.Render(p.Value))
		}
		divider := RenderHorizontalDivider(max(width-6, 10), "─")
		content = lipgloss.JoinVertical(lipgloss.Left, top, divider, strings.Join(lines, "\n"))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2).
		Render(content)
}

// String implements fmt.Stringer
func (h *Header) String() string {
	return h.Render()
}

func padRight(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
