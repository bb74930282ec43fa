package ui

import (
	"fmt"
	"io"
	"os"
)

// Printer writes UI components to a writer. Short commands use it directly;
// long transfers go through Runner.
type Printer struct {
	out      io.Writer
	width    int
	hexLines int
}

// DefaultHexDumpLines caps hex dumps printed by a Printer (1 KiB of data).
const DefaultHexDumpLines = 64

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{out: w, width: GetTerminalWidth(), hexLines: DefaultHexDumpLines}
}

// SetHexDumpLines sets how many dump rows PrintHexDump shows. 0 shows all.
func (p *Printer) SetHexDumpLines(n int) *Printer {
	p.hexLines = n
	return p
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	return p.out
}

// Width returns the current terminal width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// Printf writes formatted content.
func (p *Printer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}

// Newline prints an empty line
func (p *Printer) Newline() {
	_, _ = fmt.Fprintln(p.out)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params ...Param) {
	p.Println(NewHeader(title, command, params...).SetWidth(p.width).Render())
	p.Newline()
}

// PrintSuccess prints a success result box
func (p *Printer) PrintSuccess(title string, details ...Param) {
	p.Println(NewSuccessResult(title, details...).SetWidth(p.width).Render())
}

// PrintWarning prints a warning result box
func (p *Printer) PrintWarning(title string, details ...Param) {
	p.Println(NewWarningResult(title, details...).SetWidth(p.width).Render())
}

// PrintError prints a failure box with the troubleshooting hint for err.
func (p *Printer) PrintError(title string, err error) {
	p.Println(NewFailureResult(title, err).SetWidth(p.width).Render())
}

// PrintHexDump prints a reply as a hex dump box.
func (p *Printer) PrintHexDump(title string, data []byte) {
	p.Println(NewHexDump(title, data).SetWidth(p.width).SetMaxLines(p.hexLines).Render())
}

// PrintTable prints a bordered table.
func (p *Printer) PrintTable(headers []string, rows [][]string) {
	p.Println(RenderTable(headers, rows))
}
