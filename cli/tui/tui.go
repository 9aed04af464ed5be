package tui

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// View names.
const (
	ViewFiles   = "files"
	ViewStats   = "stats"
	ViewHistory = "history"
)

// Run starts the TUI for a view and blocks until the user quits.
func Run(view string, data any) error {
	model, err := newModel(view, data)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

// RenderStatic renders a view once without a terminal program.
func RenderStatic(view string, data any) (string, error) {
	model, err := newModel(view, data)
	if err != nil {
		return "", err
	}
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View()), nil
}

// IsTUISupported reports whether a view has a TUI.
func IsTUISupported(view string) bool {
	return slices.Contains(SupportedTUIViews(), view)
}

// SupportedTUIViews lists the views with a TUI.
func SupportedTUIViews() []string {
	return []string{ViewFiles, ViewStats, ViewHistory}
}

func newModel(view string, data any) (tea.Model, error) {
	switch view {
	case ViewFiles:
		return newFilesModel(data)
	case ViewHistory:
		return newHistoryModel(data)
	case ViewStats:
		return newStatsModel(data)
	default:
		return nil, fmt.Errorf("TUI mode is not supported for %s", view)
	}
}

type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

const quitHelp = "Press q or Ctrl+C to quit"
