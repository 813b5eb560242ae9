package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
)

// ErrInterrupted is returned when the operator quits the dashboard before
// the run finished.
var ErrInterrupted = errors.New("provisioning interrupted by operator")

// Run shows the dashboard while runFn provisions the host. runFn receives a
// context that is cancelled when the operator quits and the observer that
// feeds the dashboard. Run returns runFn's error.
func Run(
	ctx context.Context,
	host string,
	phases []string,
	runFn func(ctx context.Context, obs provisioning.Observer) error,
) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(host, phases), tea.WithContext(runCtx))

	result := make(chan error, 1)
	go func() {
		err := runFn(runCtx, NewObserver(p))
		result <- err
		if err != nil {
			p.Send(ErrMsg{Err: err})
		} else {
			p.Send(DoneMsg{})
		}
	}()

	finalModel, uiErr := p.Run()
	// The program also stops when runFn finished; otherwise the operator quit.
	cancel()
	runErr := <-result

	if runErr != nil {
		if fm, ok := finalModel.(Model); ok && fm.Quit && !fm.Done && fm.Err == nil {
			return fmt.Errorf("%w: %w", ErrInterrupted, runErr)
		}
		return runErr
	}
	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", uiErr)
	}
	return nil
}
