package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// Unit says how a Progress counts.
type Unit int

const (
	UnitBytes Unit = iota
	UnitPages
	UnitItems
)

// Progress is a single-line transfer bar: label, bar, percentage, count.
type Progress struct {
	Label string
	Unit  Unit
	Done  int64
	Total int64 // 0 while unknown
	Width int

	bar   progress.Model
	start time.Time
}

// NewProgress creates a progress bar sized to the terminal.
func NewProgress(label string, unit Unit) *Progress {
	p := &Progress{Label: label, Unit: unit, start: time.Now()}
	p.SetWidth(GetTerminalWidth())
	return p
}

// SetWidth sets the terminal width for responsive rendering
func (p *Progress) SetWidth(width int) *Progress {
	p.Width = width
	barWidth := min(max(width-40, 20), 50)
	p.bar = progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(barWidth),
	)
	return p
}

// Set records done out of total.
func (p *Progress) Set(done, total int64) {
	p.Done = done
	p.Total = total
}

// Percent is between 0 and 1. It stays 0 until the total is known.
func (p *Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	return min(float64(p.Done)/float64(p.Total), 1)
}

// Count formats done/total in the progress unit.
func (p *Progress) Count() string {
	switch p.Unit {
	case UnitPages:
		return fmt.Sprintf("%d/%d pages", p.Done, p.Total)
	case UnitItems:
		return fmt.Sprintf("%d/%d items", p.Done, p.Total)
	default:
		if p.Total <= 0 {
			return FormatBytes(p.Done)
		}
		return FormatBytes(p.Done) + "/" + FormatBytes(p.Total)
	}
}

// Render returns the styled bar line.
func (p *Progress) Render() string {
	var b strings.Builder
	if p.Label != "" {
		b.WriteString(ProgressLabelStyle.Render(p.Label))
		b.WriteString("\n")
	}
	line := fmt.Sprintf("%s  %3.0f%%  %s",
		p.bar.ViewAs(p.Percent()),
		p.Percent()*100,
		ProgressCountStyle.Render(p.Count()))
	b.WriteString(lipgloss.NewStyle().PaddingLeft(2).Render(line))
	return b.String()
}

// Elapsed is the time since the bar was created.
func (p *Progress) Elapsed() time.Duration {
	return time.Since(p.start)
}

// String implements fmt.Stringer
func (p *Progress) String() string {
	return p.Render()
}

// FormatBytes renders n with a binary unit, e.g. 1.5 KiB.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
