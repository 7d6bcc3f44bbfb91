package ui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the room view until the user quits or ctx is done.
func Run(ctx context.Context, model *RoomModel, presenter *Presenter) error {
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	go presenter.Attach(program)

	if _, err := program.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}
