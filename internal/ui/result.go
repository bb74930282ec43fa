package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/qcdiag/internal/diag"
)

// ResultType indicates success or failure
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
	ResultWarning
)

// Result is a success, failure or warning box.
type Result struct {
	Type    ResultType
	Title   string
	Details []Param
	Error   error
	// Summary is a one-line form of Error, usually diag.ShortMessage.
	Summary string
	// Hint is shown under the error, usually diag.TroubleshootingHint.
	Hint  string
	Width int
}

// NewSuccessResult creates a success result box
func NewSuccessResult(title string, details ...Param) *Result {
	return &Result{Type: ResultSuccess, Title: title, Details: details, Width: GetTerminalWidth()}
}

// NewFailureResult creates a failure box with the operator hint for err.
func NewFailureResult(title string, err error) *Result {
	r := &Result{Type: ResultFailure, Title: title, Error: err, Width: GetTerminalWidth()}
	if err != nil {
		r.Summary = diag.ShortMessage(err)
		r.Hint = diag.TroubleshootingHint(err)
	}
	return r
}

// NewWarningResult creates a warning result box
func NewWarningResult(title string, details ...Param) *Result {
	return &Result{Type: ResultWarning, Title: title, Details: details, Width: GetTerminalWidth()}
}

// SetWidth sets the terminal width for responsive rendering
func (r *Result) SetWidth(width int) *Result {
	r.Width = width
	return r
}

// AddDetail appends a detail line.
func (r *Result) AddDetail(key, value string) *Result {
	r.Details = append(r.Details, Param{Key: key, Value: value})
	return r
}

// Render returns the styled result box as a string
func (r *Result) Render() string {
	var (
		title string
		color lipgloss.Color
	)
	switch r.Type {
	case ResultFailure:
		title = ErrorTitleStyle.Render(fmt.Sprintf("   %s  FAILED  ─  %s", FailureMarker, r.Title))
		color = ErrorColor
	case ResultWarning:
		title = WarningTitleStyle.Render(fmt.Sprintf("   %s  WARNING  ─  %s", WarningMarker, r.Title))
		color = WarningColor
	default:
		title = SuccessTitleStyle.Render(fmt.Sprintf("   %s  SUCCESS  ─  %s", SuccessMarker, r.Title))
		color = SuccessColor
	}

	lines := []string{"", title, ""}
	for _, d := range r.Details {
		lines = append(lines, ResultKeyStyle.Render("   "+d.Key+":")+" "+ResultValueStyle.Render(d.Value))
	}
	if len(r.Details) > 0 {
		lines = append(lines, "")
	}

	if r.Error != nil {
		msg := r.Error.Error()
		if r.Summary != "" && r.Summary != msg {
			lines = append(lines, ErrorMessageStyle.Render("   "+r.Summary))
		}
		lines = append(lines, ErrorMessageStyle.Render("   Error: "+msg), "")
	}
	if r.Hint != "" {
		lines = append(lines, r.renderHint(), "")
	}

	return boxStyle(color, r.Width).Render(strings.Join(lines, "\n"))
}

func (r *Result) renderHint() string {
	innerWidth := max(r.Width-12, 40)
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Width(innerWidth).
		Padding(0, 1).
		MarginLeft(3).
		Render(HintStyle.Render(r.Hint))
}

// String implements fmt.Stringer
func (r *Result) String() string {
	return r.Render()
}
