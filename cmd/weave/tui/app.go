package tui

import (
	"context"
	"errors"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jamesainslie/weave/pkg/weave/upload"
)

// ErrInterrupted is returned when the user stopped the deploy.
var ErrInterrupted = errors.New("deploy interrupted")

// Run shows the progress view while opts.Deploy runs and returns its error.
func Run(ctx context.Context, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := NewModel(opts, cancel)
	p := tea.NewProgram(model, tea.WithOutput(os.Stderr))

	go func() {
		err := opts.Deploy(ctx, func(e upload.Event) {
			p.Send(EventMsg(e))
		})
		p.Send(DoneMsg{Err: err})
	}()

	final, err := p.Run()
	if err != nil {
		cancel()
		return err
	}
	m, ok := final.(Model)
	if !ok {
		return nil
	}
	if m.canceled && m.err == nil {
		return ErrInterrupted
	}
	return m.err
}
