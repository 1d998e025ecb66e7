package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/KilimcininKorOglu/parisprobe/internal/trace"
)

// Run shows session in a full-screen TUI until the user quits and returns
// what was traced.
func Run(ctx context.Context, session *Session) (*trace.TraceResult, error) {
	model, err := New(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to create TUI model: %w", err)
	}
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen())

	finalModel, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("TUI error: %w", err)
	}

	// Check if there was an error during the trace
	if m, ok := finalModel.(Model); ok {
		if m.state == StateError && m.err != nil {
			return nil, m.err
		}
		if m.state == StateComplete {
			return m.result(), nil
		}
	}

	// Quit before the trace finished.
	return session.Recorder.Result(), nil
}
