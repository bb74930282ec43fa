package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/qcdiag/internal/protocol"
)

// HexDump is a box holding a hex and ASCII dump of a reply.
type HexDump struct {
	Title    string
	Data     []byte
	Width    int
	MaxLines int // 0 = unlimited
}

// NewHexDump creates a dump box sized to the terminal.
func NewHexDump(title string, data []byte) *HexDump {
	return &HexDump{Title: title, Data: data, Width: GetTerminalWidth()}
}

// SetWidth sets the terminal width for responsive rendering
func (h *HexDump) SetWidth(width int) *HexDump {
	h.Width = width
	return h
}

// SetMaxLines limits the number of lines displayed
func (h *HexDump) SetMaxLines(n int) *HexDump {
	h.MaxLines = n
	return h
}

// Render returns the styled box.
func (h *HexDump) Render() string {
	body := strings.TrimRight(protocol.HexASCII(h.Data), "\n")
	if body == "" {
		body = "(empty)"
	}

	lines := strings.Split(body, "\n")
	if h.MaxLines > 0 && len(lines) > h.MaxLines {
		hidden := len(lines) - h.MaxLines
		lines = append(lines[:h.MaxLines], HintStyle.Render(fmt.Sprintf("... %d more lines", hidden)))
	}

	title := fmt.Sprintf("%s (%d bytes)", h.Title, len(h.Data))
	content := HexDumpTitleStyle.Render(title) + "\n" + HexDumpContentStyle.Render(strings.Join(lines, "\n"))

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Width(max(h.Width-4, 52)).
		Padding(0, 1).
		Render(content)
}

// String implements fmt.Stringer
func (h *HexDump) String() string {
	return h.Render()
}
