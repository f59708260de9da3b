package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"diagload/internal/metrics"
	"diagload/internal/runner"
	"diagload/internal/session"
	"diagload/internal/tui/components"
	"diagload/internal/tui/styles"
)

// Snapshot is everything the dashboard draws, read from a session once per
// tick.
type Snapshot struct {
	At        time.Time
	Elapsed   time.Duration
	Total     time.Duration
	Live      int
	Schedules []runner.Status

	Requests uint64
	Fail     uint64
	Inflight int64

	Attempted float64
	Correct   float64
	Errors    float64

	P50Ms float64
	P90Ms float64
	P99Ms float64
}

func Capture(s *session.Session) Snapshot {
	return Snapshot{
		At:        time.Now(),
		Elapsed:   s.Scheduler.Elapsed(),
		Total:     s.Scheduler.TotalDuration(),
		Live:      s.Scheduler.Live(),
		Schedules: s.Scheduler.Status(),
		Requests:  s.Stats.Requests.Load(),
		Fail:      s.Stats.Fail.Load(),
		Inflight:  s.Stats.Inflight.Load(),
		Attempted: s.Sink.Total(metrics.AnalysesAttempted),
		Correct:   s.Sink.Total(metrics.AnalysisCorrect),
		Errors:    s.Sink.Total(metrics.Errors),
		P50Ms:     s.Stats.Latency.Quantile(50),
		P90Ms:     s.Stats.Latency.Quantile(90),
		P99Ms:     s.Stats.Latency.Quantile(99),
	}
}

type Model struct {
	Stats    Snapshot
	Progress progress.Model
	Table    table.Model

	VULine  components.Sparkline
	RpsLine components.Sparkline

	LastUpdate time.Time
	LastReqs   uint64

	Width  int
	Height int
}

func NewModel() Model {
	columns := []table.Column{
		{Title: "Scenario", Width: 24},
		{Title: "Phase", Width: 9},
		{Title: "Start", Width: 7},
		{Title: "Target", Width: 6},
		{Title: "VUs", Width: 5},
		{Title: "Peak", Width: 5},
		{Title: "Iter", Width: 7},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(6),
	)
	ts := table.DefaultStyles()
	ts.Header = ts.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.ColorBorder).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.ColorPrimary)
	ts.Selected = lipgloss.NewStyle()
	t.SetStyles(ts)

	return Model{
		Progress: progress.New(progress.WithDefaultGradient()),
		Table:    t,
		VULine:   components.NewSparkline(40, "Live VUs", styles.Active),
		RpsLine:  components.NewSparkline(40, "Requests/s", styles.Warn),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case Snapshot:
		if !m.LastUpdate.IsZero() {
			dt := msg.At.Sub(m.LastUpdate).Seconds()
			if dt < 0.01 {
				dt = 0.01
			}
			m.RpsLine.Add(uint64(float64(msg.Requests-m.LastReqs) / dt))
		}
		m.VULine.Add(uint64(msg.Live))

		m.Stats = msg
		m.LastReqs = msg.Requests
		m.LastUpdate = msg.At
		m.Table.SetRows(rows(msg.Schedules))

		pct := 0.0
		if msg.Total > 0 {
			pct = float64(msg.Elapsed) / float64(msg.Total)
		}
		if pct > 1.0 {
			pct = 1.0
		}
		return m, m.Progress.SetPercent(pct)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.Width = msg.Width - 4

		half := (msg.Width / 2) - 6
		if half < 10 {
			half = 10
		}
		m.VULine.Resize(half)
		m.RpsLine.Resize(half)
		return m, nil

	case progress.FrameMsg:
		prog, cmd := m.Progress.Update(msg)
		m.Progress = prog.(progress.Model)
		return m, cmd
	}

	return m, nil
}

func rows(statuses []runner.Status) []table.Row {
	out := make([]table.Row, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, table.Row{
			st.Name,
			st.PhaseName,
			"+" + st.StartOffset.Round(time.Second).String(),
			fmt.Sprintf("%d", st.Target),
			fmt.Sprintf("%d", st.Live),
			fmt.Sprintf("%d", st.Peak),
			fmt.Sprintf("%d", st.Iterations),
		})
	}
	return out
}

func (m Model) View() string {
	s := strings.Builder{}
	st := m.Stats

	col1 := fmt.Sprintf("VUs: %d\nREQ: %d\nINF: %d", st.Live, st.Requests, st.Inflight)
	col2 := fmt.Sprintf("ATTEMPTED: %.0f\nCORRECT:   %.0f\n%s",
		st.Attempted, st.Correct,
		styles.Errors(st.Errors, st.Attempted).Render(fmt.Sprintf("ERRORS:    %.0f", st.Errors)),
	)
	col3 := fmt.Sprintf("P50: %.1f ms\nP90: %.1f ms\nP99: %.1f ms", st.P50Ms, st.P90Ms, st.P99Ms)

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(col1),
		styles.Box.Render(col2),
		styles.Box.Render(col3),
	))
	s.WriteString("\n")

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(m.VULine.View()),
		styles.Box.Render(m.RpsLine.View()),
	))
	s.WriteString("\n")

	s.WriteString(styles.Box.Render(m.Table.View()))
	s.WriteString("\n\n")

	s.WriteString(m.Progress.View())
	s.WriteString("\n")
	s.WriteString(styles.Subtle.Render(fmt.Sprintf("%s / %s",
		st.Elapsed.Round(time.Second), st.Total.Round(time.Second))))

	return s.String()
}
