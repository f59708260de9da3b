package history

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"diagload/internal/metrics"
	"diagload/internal/storage"
	"diagload/internal/tui/result"
	"diagload/internal/tui/styles"
)

// Model browses past runs; enter opens one, esc goes back to the list.
type Model struct {
	Records []storage.RunRecord
	Table   table.Model

	Detail *result.Model

	Width  int
	Height int
}

func NewModel(records []storage.RunRecord) Model {
	columns := []table.Column{
		{Title: "Started", Width: 20},
		{Title: "Endpoint", Width: 30},
		{Title: "Scale", Width: 7},
		{Title: "Duration", Width: 9},
		{Title: "Attempted", Width: 9},
		{Title: "Correct", Width: 8},
		{Title: "Errors", Width: 7},
		{Title: "P99 (ms)", Width: 9},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.ColorBorder).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.ColorPrimary)
	s.Selected = s.Selected.
		Foreground(styles.ColorBg).
		Background(styles.ColorPrimary).
		Bold(true)
	t.SetStyles(s)

	m := Model{Table: t}
	m.SetRecords(records)
	return m
}

func (m *Model) SetRecords(records []storage.RunRecord) {
	m.Records = records
	m.Table.SetRows(Rows(records))
}

// Rows renders records as table rows, in the order given.
func Rows(records []storage.RunRecord) []table.Row {
	rows := make([]table.Row, len(records))
	for i, rec := range records {
		status := fmt.Sprintf("%.0f", rec.Counter(metrics.Errors))
		if rec.Cancelled {
			status += "*"
		}
		rows[i] = table.Row{
			rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
			rec.Endpoint,
			fmt.Sprintf("%g", rec.TimeScale),
			rec.Elapsed().Round(time.Second).String(),
			fmt.Sprintf("%.0f", rec.Counter(metrics.AnalysesAttempted)),
			fmt.Sprintf("%.0f", rec.Counter(metrics.AnalysisCorrect)),
			status,
			fmt.Sprintf("%.1f", rec.Latency.P99Ms),
		}
	}
	return rows
}

// Render draws every record once, for non-interactive output.
func Render(records []storage.RunRecord) string {
	m := NewModel(records)
	if len(records) == 0 {
		return m.View()
	}
	m.Table.Blur()
	m.Table.SetHeight(len(records) + 3)
	return styles.Box.Render(m.Table.View())
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Table.SetWidth(msg.Width - 4)
		if h := msg.Height - 6; h > 3 {
			m.Table.SetHeight(h)
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			if i := m.Table.Cursor(); i >= 0 && i < len(m.Records) {
				d := result.NewModel(m.Records[i])
				m.Detail = &d
			}
			return m, nil
		case "esc", "backspace":
			m.Detail = nil
			return m, nil
		}
	}

	if m.Detail != nil {
		return m, nil
	}

	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.Detail != nil {
		return m.Detail.View() + "\n" + styles.RenderKey("esc", "back")
	}
	if len(m.Records) == 0 {
		return styles.Subtle.Render("No runs recorded yet.")
	}
	return styles.Box.Render(m.Table.View()) + "\n" +
		styles.RenderKey("↑/↓", "select") + "  " +
		styles.RenderKey("enter", "details") + "  " +
		styles.RenderKey("q", "quit")
}
