package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ConfirmPhrase must be typed to approve a dangerous operation.
const ConfirmPhrase = "I AGREE"

// ConfirmDangerousOperation prints a warning box to out and reads one line
// from in. It returns true only if the line is ConfirmPhrase.
func ConfirmDangerousOperation(in io.Reader, out io.Writer, title string, warnings []string, disclaimer string) bool {
	width := GetTerminalWidth()

	lines := []string{"", WarningTitleStyle.Render(fmt.Sprintf("   %s  WARNING  ─  %s", WarningMarker, title)), ""}
	bullet := lipgloss.NewStyle().Foreground(TextColor)
	for _, w := range warnings {
		lines = append(lines, bullet.Render("   • "+w))
	}
	lines = append(lines, "")

	if disclaimer != "" {
		lines = append(lines, lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true).
			Width(width-12).
			PaddingLeft(3).
			Render(disclaimer), "")
	}

	_, _ = fmt.Fprintln(out, boxStyle(WarningColor, width).Render(strings.Join(lines, "\n")))
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprint(out, WarningTitleStyle.Render(fmt.Sprintf("To proceed, type %q and press Enter: ", ConfirmPhrase)))

	input, err := bufio.NewReader(in).ReadString('\n')
	_, _ = fmt.Fprintln(out)
	if err != nil && input == "" {
		return false
	}
	if strings.TrimSpace(input) == ConfirmPhrase {
		return true
	}

	_, _ = fmt.Fprintln(out, lipgloss.NewStyle().Foreground(MutedColor).Render("  Operation cancelled."))
	_, _ = fmt.Fprintln(out)
	return false
}

const writeDisclaimer = "DISCLAIMER: This software is provided as-is, without warranty of any kind. " +
	"Writing NV items or EFS files can leave a modem unable to register on the network, " +
	"and some items cannot be restored once overwritten."

// NVWriteConfirmation confirms writing one NV item.
func NVWriteConfirmation(in io.Reader, out io.Writer, item string) bool {
	return ConfirmDangerousOperation(in, out,
		"NV WRITE",
		[]string{
			"This will overwrite NV item " + item,
			"Take a backup first: qcdiag nv backup",
			"Do not unplug the device while the write is in progress",
		},
		writeDisclaimer)
}

// RestoreConfirmation confirms writing a backup back to the device.
func RestoreConfirmation(in io.Reader, out io.Writer, items int) bool {
	return ConfirmDangerousOperation(in, out,
		"NV RESTORE",
		[]string{
			fmt.Sprintf("This will write %d NV items", items),
			"Only restore a backup taken from this same device",
			"The restore can take several minutes",
		},
		writeDisclaimer)
}

// IMEIWriteConfirmation confirms an IMEI change.
func IMEIWriteConfirmation(in io.Reader, out io.Writer, imeis []string) bool {
	return ConfirmDangerousOperation(in, out,
		"IMEI WRITE",
		[]string{
			"This will write NV item 550 with: " + strings.Join(imeis, ", "),
			"Changing the IMEI may be illegal in your jurisdiction",
			"Reboot the device afterwards for the change to take effect",
		},
		writeDisclaimer)
}

// CrashConfirmation confirms forcing a modem crash.
func CrashConfirmation(in io.Reader, out io.Writer) bool {
	return ConfirmDangerousOperation(in, out,
		"FORCED CRASH",
		[]string{
			"This will crash the modem firmware on purpose",
			"The device reboots or drops into its crash dump mode",
		},
		"")
}
