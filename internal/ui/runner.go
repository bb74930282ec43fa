package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// RunnerConfig describes a long running command.
type RunnerConfig struct {
	Title   string // e.g., "Factory image export"
	Command string // e.g., "qcdiag efs dump image.bin"
	Params  []Param
	Unit    Unit
	Output  io.Writer // default: os.Stdout
}

// Runner prints the header, shows a progress bar while the operation runs,
// and prints the result box.
type Runner struct {
	config RunnerConfig
	output io.Writer
	width  int
}

// NewRunner creates a runner for one command.
func NewRunner(config RunnerConfig) *Runner {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	return &Runner{config: config, output: config.Output, width: GetTerminalWidth()}
}

// Operation does the work and returns the detail lines for the success box.
type Operation func(ctx context.Context, report ReportFunc) ([]Param, error)

// Run executes op. Its error is returned unchanged after the failure box is
// printed.
func (r *Runner) Run(ctx context.Context, op Operation) error {
	_, _ = fmt.Fprintln(r.output, NewHeader(r.config.Title, r.config.Command, r.config.Params...).SetWidth(r.width).Render())
	_, _ = fmt.Fprintln(r.output)

	var details []Param
	bar := NewProgress("", r.config.Unit).SetWidth(r.width)
	err := RunTransfer(ctx, r.output, bar, func(ctx context.Context, report ReportFunc) error {
		var opErr error
		details, opErr = op(ctx, report)
		return opErr
	})
	duration := bar.Elapsed().Round(time.Millisecond)

	_, _ = fmt.Fprintln(r.output)
	if err != nil {
		res := NewFailureResult(r.config.Title+" failed", err).SetWidth(r.width)
		res.AddDetail("Duration", duration.String())
		_, _ = fmt.Fprintln(r.output, res.Render())
		return err
	}

	res := NewSuccessResult(r.config.Title+" complete", details...).SetWidth(r.width)
	res.AddDetail("Duration", duration.String())
	_, _ = fmt.Fprintln(r.output, res.Render())
	return nil
}
