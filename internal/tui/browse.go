package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"diagload/internal/storage"
	"diagload/internal/tui/history"
)

type browser struct {
	history history.Model
}

func (b browser) Init() tea.Cmd {
	return nil
}

func (b browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok && (k.String() == "q" || k.String() == "ctrl+c") {
		return b, tea.Quit
	}
	var cmd tea.Cmd
	b.history, cmd = b.history.Update(msg)
	return b, cmd
}

func (b browser) View() string {
	return b.history.View()
}

// BrowseHistory opens an interactive table over records.
func BrowseHistory(records []storage.RunRecord) error {
	_, err := tea.NewProgram(browser{history: history.NewModel(records)}, tea.WithAltScreen()).Run()
	return err
}
