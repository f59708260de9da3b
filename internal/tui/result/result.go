package result

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"diagload/internal/metrics"
	"diagload/internal/runner"
	"diagload/internal/storage"
	"diagload/internal/tui/styles"
)

type Model struct {
	Record storage.RunRecord

	Width  int
	Height int
}

func NewModel(rec storage.RunRecord) Model {
	return Model{Record: rec}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
	}
	return m, nil
}

func (m Model) View() string {
	s := strings.Builder{}
	rec := m.Record

	title := "📊 Run Complete"
	if rec.Cancelled {
		title = "📊 Run Cancelled"
	}
	s.WriteString(styles.Title.Render(title))
	s.WriteString("\n")
	s.WriteString(styles.Subtle.Render(fmt.Sprintf("%s · %s · %s", rec.ID, rec.Endpoint, rec.Elapsed().Round(time.Second))))
	s.WriteString("\n\n")

	// 1. Scenarios
	s.WriteString(styles.Active.Render("Scenarios"))
	s.WriteString("\n")
	var sc strings.Builder
	for i, st := range rec.Schedules {
		if i > 0 {
			sc.WriteString("\n")
		}
		phase := styles.Phase(phaseOf(st)).Render(fmt.Sprintf("%-9s", st.PhaseName))
		fmt.Fprintf(&sc, "%-24s %s iterations %d", st.Name, phase, st.Iterations)
		if st.Panics > 0 {
			sc.WriteString(styles.Error.Render(fmt.Sprintf("  panics %d", st.Panics)))
		}
	}
	s.WriteString(styles.Box.Render(sc.String()))
	s.WriteString("\n\n")

	// 2. Counters
	s.WriteString(styles.Active.Render("Counters"))
	s.WriteString("\n")
	errs := rec.Counter(metrics.Errors)
	attempted := rec.Counter(metrics.AnalysesAttempted)
	counters := fmt.Sprintf(
		"Analyses attempted: %.0f\nAnalysis correct:   %.0f\n%s",
		attempted,
		rec.Counter(metrics.AnalysisCorrect),
		styles.Errors(errs, attempted).Render(fmt.Sprintf("Errors:             %.0f", errs)),
	)
	for _, c := range rec.Counters {
		if c.Name == metrics.Errors {
			counters += fmt.Sprintf("\n  %s · %s: %.0f", c.Endpoint, c.Tag, c.Value)
		}
	}
	s.WriteString(styles.Box.Render(counters))
	s.WriteString("\n\n")

	// 3. Latency
	s.WriteString(styles.Active.Render("Latency"))
	s.WriteString("\n")
	l := rec.Latency
	latency := fmt.Sprintf(
		"Requests: %d (%d failed)\nAvg: %.2f ms\nP50: %.2f ms\nP90: %.2f ms\nP99: %.2f ms\nMax: %.2f ms",
		l.Requests, l.Fail, l.AvgMs, l.P50Ms, l.P90Ms, l.P99Ms, l.MaxMs,
	)
	s.WriteString(styles.Box.Render(latency))

	s.WriteString("\n\n")
	s.WriteString(styles.Subtle.Render("Press q to quit"))

	return s.String()
}

// phaseOf recovers the phase from a stored status, where only the name
// survives serialization.
func phaseOf(st runner.Status) runner.Phase {
	for p := runner.PhaseWaiting; p <= runner.PhaseDone; p++ {
		if p.String() == st.PhaseName {
			return p
		}
	}
	return st.Phase
}
