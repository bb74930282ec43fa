package ui

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

// ReportFunc is handed to a transfer so it can report progress.
type ReportFunc func(done, total int64)

// TransferFunc is a long running device operation.
type TransferFunc func(ctx context.Context, report ReportFunc) error

type progressMsg struct{ done, total int64 }

type doneMsg struct{ err error }

// transferModel redraws a Progress as the transfer reports and quits when
// the transfer returns.
type transferModel struct {
	progress    *Progress
	err         error
	finished    bool
	interrupted bool
}

func newTransferModel(p *Progress) transferModel {
	return transferModel{progress: p}
}

// Init implements tea.Model
func (m transferModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m transferModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		m.progress.Set(msg.done, msg.total)
	case doneMsg:
		m.finished = true
		m.err = msg.err
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.progress.SetWidth(min(max(msg.Width, MinTerminalWidth), MaxContentWidth))
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.interrupted = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View implements tea.Model
func (m transferModel) View() string {
	return m.progress.Render() + "\n"
}

// RunTransfer runs fn while drawing p. On a terminal the bar is redrawn in
// place by a Bubble Tea program; otherwise a line is written every tenth of
// the way. Interrupting the program cancels fn's context.
func RunTransfer(ctx context.Context, out io.Writer, p *Progress, fn TransferFunc) error {
	f, ok := out.(*os.File)
	if !ok || !IsTerminal(f) {
		return runPlain(ctx, out, p, fn)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tea.NewProgram(newTransferModel(p),
		tea.WithOutput(out),
		tea.WithContext(ctx),
		tea.WithInput(os.Stdin))

	result := make(chan error, 1)
	go func() {
		err := fn(ctx, func(done, total int64) {
			prog.Send(progressMsg{done: done, total: total})
		})
		result <- err
		prog.Send(doneMsg{err: err})
	}()

	final, err := prog.Run()
	if m, ok := final.(transferModel); err != nil || (ok && m.interrupted) {
		cancel()
		if opErr := <-result; opErr != nil {
			return opErr
		}
		if err == nil {
			err = context.Canceled
		}
		return err
	}
	return <-result
}

func runPlain(ctx context.Context, out io.Writer, p *Progress, fn TransferFunc) error {
	lastDecile := -1
	return fn(ctx, func(done, total int64) {
		p.Set(done, total)
		decile := int(p.Percent() * 10)
		if total <= 0 || decile == lastDecile {
			return
		}
		lastDecile = decile
		_, _ = fmt.Fprintf(out, "  %s %3.0f%% %s\n", p.Label, p.Percent()*100, p.Count())
	})
}
