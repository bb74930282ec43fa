// Package ui provides terminal UI components for the qcdiag CLI.
//
// This package uses Bubble Tea and Lipgloss. Most output follows a "run
// once and exit" pattern: a command prints a header, does its work and
// prints a result box. Long transfers (NV backup and restore, EFS copies,
// factory image export) show a live progress bar while they run.
//
// # Components
//
//   - Header: command banner with the operation name and parameters
//   - Progress: transfer bar counting bytes, pages or items
//   - Result: success, failure or warning box; failures carry the
//     troubleshooting hint for the diag error kind
//   - HexDump: raw reply box for qcdiag cmd and verbose output
//   - RenderTable: bordered tables for directory listings and NV summaries
//
// # Usage Pattern
//
//	runner := ui.NewRunner(ui.RunnerConfig{
//	    Title:   "NV backup",
//	    Command: "qcdiag nv backup nv.json",
//	    Params:  []ui.Param{ui.P("Range", "0x0000-0xFFFF")},
//	    Unit:    ui.UnitItems,
//	})
//
//	err := runner.Run(ctx, func(ctx context.Context, report ui.ReportFunc) ([]ui.Param, error) {
//	    res, err := store.BackupAll(ctx, nv.BackupOptions{Progress: ...})
//	    ...
//	    return []ui.Param{ui.P("Items", strconv.Itoa(len(res.Entries)))}, nil
//	})
//
// On a terminal the bar is redrawn in place by a Bubble Tea program and
// Ctrl+C cancels the operation's context. When stdout is redirected, a
// plain line is written every ten percent instead.
//
// # Logging Integration
//
// Logging is controlled by QCDIAG_LOG_LEVEL (or --log-level). When unset,
// zap is silent so the UI output stays clean.
package ui
