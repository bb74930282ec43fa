package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muurk/qcdiag/internal/diag"
)

func TestHeaderKeepsParamOrder(t *testing.T) {
	h := NewHeader("nv backup", "qcdiag nv backup out.json",
		P("Port", "/dev/ttyUSB0"),
		P("Range", "0x0000-0xFFFF")).SetWidth(80)

	out := h.Render()
	if !strings.Contains(out, "NV BACKUP") {
		t.Error("title not upper-cased")
	}
	port, rng := strings.Index(out, "Port:"), strings.Index(out, "Range:")
	if port < 0 || rng < 0 || port > rng {
		t.Errorf("params out of order:\n%s", out)
	}
}

func TestFailureResultCarriesHint(t *testing.T) {
	err := diag.NewSecurityGate("nv read 0x226", 0x47)
	out := NewFailureResult("NV read failed", err).SetWidth(100).Render()

	if !strings.Contains(out, "FAILED") {
		t.Error("missing FAILED title")
	}
	if !strings.Contains(out, "qcdiag sp") {
		t.Errorf("security hint missing:\n%s", out)
	}
	if !strings.Contains(out, "Security privileges required") {
		t.Errorf("short message missing:\n%s", out)
	}
}

func TestFailureResultPlainError(t *testing.T) {
	r := NewFailureResult("Config", errors.New("bad value"))
	if r.Summary != "bad value" {
		t.Errorf("Summary = %q", r.Summary)
	}
	if n := strings.Count(r.SetWidth(100).Render(), "bad value"); n != 1 {
		t.Errorf("plain error printed %d times, want once", n)
	}
}

func TestProgressCount(t *testing.T) {
	tests := []struct {
		unit        Unit
		done, total int64
		want        string
		pct         float64
	}{
		{UnitPages, 3, 8, "3/8 pages", 0.375},
		{UnitItems, 0, 0, "0/0 items", 0},
		{UnitBytes, 1536, 4096, "1.5 KiB/4.0 KiB", 0.375},
		{UnitBytes, 100, 0, "100 B", 0},
		{UnitBytes, 10, 5, "10 B/5 B", 1},
	}
	for _, tt := range tests {
		p := NewProgress("x", tt.unit)
		p.Set(tt.done, tt.total)
		if got := p.Count(); got != tt.want {
			t.Errorf("Count() = %q, want %q", got, tt.want)
		}
		if got := p.Percent(); got != tt.pct {
			t.Errorf("Percent() = %v, want %v", got, tt.pct)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:             "0 B",
		1023:          "1023 B",
		1024:          "1.0 KiB",
		1 << 20:       "1.0 MiB",
		5*(1<<30) + 1: "5.0 GiB",
	}
	for n, want := range tests {
		if got := FormatBytes(n); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"I AGREE\n", true},
		{"  I AGREE  \n", true},
		{"I AGREE", true},
		{"yes\n", false},
		{"i agree\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got := NVWriteConfirmation(strings.NewReader(tt.input), &out, "0x226")
		if got != tt.want {
			t.Errorf("input %q: got %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "0x226") {
			t.Error("warning box does not name the item")
		}
	}
}

func TestHexDumpTruncates(t *testing.T) {
	data := bytes.Repeat([]byte{0x4B}, 16*10)
	out := NewHexDump("Response", data).SetWidth(80).SetMaxLines(3).Render()
	if !strings.Contains(out, "160 bytes") {
		t.Error("missing length")
	}
	if !strings.Contains(out, "more lines") {
		t.Errorf("expected truncation marker:\n%s", out)
	}
}

func TestPrinterHexDumpLines(t *testing.T) {
	// Zero bytes have no printable column, so the dump is the hex rows plus one separator.
	data := make([]byte, 16*(DefaultHexDumpLines+5))

	var out bytes.Buffer
	NewPrinter(&out).PrintHexDump("Reply", data)
	if !strings.Contains(out.String(), "... 6 more lines") {
		t.Errorf("expected dump capped at %d lines:\n%s", DefaultHexDumpLines, out.String())
	}

	out.Reset()
	NewPrinter(&out).SetHexDumpLines(0).PrintHexDump("Reply", data)
	if strings.Contains(out.String(), "more lines") {
		t.Error("SetHexDumpLines(0) should print every row")
	}
}

func TestProgressElapsed(t *testing.T) {
	p := NewProgress("x", UnitBytes)
	time.Sleep(2 * time.Millisecond)
	if p.Elapsed() < 2*time.Millisecond {
		t.Errorf("Elapsed() = %v", p.Elapsed())
	}
}

func TestRenderTable(t *testing.T) {
	out := RenderTable([]string{"Name", "Size"}, [][]string{{"nv", "12"}, {"mbn", "4096"}})
	for _, s := range []string{"Name", "Size", "nv", "mbn", "4096"} {
		if !strings.Contains(out, s) {
			t.Errorf("table missing %q", s)
		}
	}
}

func TestRunnerPlainOutput(t *testing.T) {
	var out bytes.Buffer
	r := NewRunner(RunnerConfig{Title: "Copy", Command: "qcdiag efs get /nv", Unit: UnitBytes, Output: &out})

	err := r.Run(context.Background(), func(ctx context.Context, report ReportFunc) ([]Param, error) {
		for i := int64(1); i <= 4; i++ {
			report(i*256, 1024)
		}
		return []Param{P("Bytes", "1024")}, nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	s := out.String()
	if strings.Count(s, "%") != 4 {
		t.Errorf("expected one progress line per report:\n%s", s)
	}
	if !strings.Contains(s, "Copy complete") || !strings.Contains(s, "Duration") {
		t.Errorf("missing success box:\n%s", s)
	}
}

func TestRunnerReturnsError(t *testing.T) {
	var out bytes.Buffer
	want := diag.NewTransportEmpty("factory image page 3")
	err := NewRunner(RunnerConfig{Title: "Dump", Output: &out}).Run(context.Background(),
		func(ctx context.Context, report ReportFunc) ([]Param, error) {
			return nil, want
		})
	if !errors.Is(err, want) {
		t.Fatalf("Run() error = %v, want %v", err, want)
	}
	if !strings.Contains(out.String(), "Dump failed") {
		t.Error("missing failure box")
	}
}

func TestTransferModel(t *testing.T) {
	m := newTransferModel(NewProgress("", UnitPages))

	next, cmd := m.Update(progressMsg{done: 2, total: 4})
	if cmd != nil {
		t.Error("progress should not quit")
	}
	m = next.(transferModel)
	if m.progress.Percent() != 0.5 {
		t.Errorf("Percent() = %v", m.progress.Percent())
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !next.(transferModel).interrupted {
		t.Error("ctrl+c not recorded")
	}

	next, cmd = m.Update(doneMsg{err: context.Canceled})
	m = next.(transferModel)
	if !m.finished || m.err != context.Canceled || cmd == nil {
		t.Error("done message should finish and quit")
	}
}
