// Package tui is the interactive front end: a live dashboard while a run is
// in progress and a browser over past runs.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"diagload/internal/session"
	"diagload/internal/storage"
	"diagload/internal/tui/live"
	"diagload/internal/tui/result"
	"diagload/internal/tui/styles"
)

const tickInterval = 200 * time.Millisecond

type tickMsg time.Time

type doneMsg struct{}

// runState is shared by the run goroutine and the program; err is only
// read after done is closed.
type runState struct {
	done chan struct{}
	err  error
}

type Model struct {
	Session *session.Session
	Live    live.Model
	Result  *result.Model

	Quitting bool
	Width    int
	Height   int

	run *runState
}

func NewModel(s *session.Session, run *runState) Model {
	return Model{
		Session: s,
		Live:    live.NewModel(),
		run:     run,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.waitDone())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		var cmd tea.Cmd
		m.Live, cmd = m.Live.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.Quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		var cmd tea.Cmd
		m.Live, cmd = m.Live.Update(live.Capture(m.Session))
		return m, tea.Batch(cmd, tickCmd())

	case doneMsg:
		r := result.NewModel(m.Session.Record())
		m.Result = &r
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.Live, cmd = m.Live.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	if m.Result != nil {
		return m.Result.View() + "\n"
	}
	if m.Quitting {
		return "Stopping run, waiting for in-flight iterations...\n"
	}

	header := styles.Title.Render(fmt.Sprintf("🧪 diagload %s → %s", m.Session.ID, m.Session.Config.Endpoint))
	return header + "\n\n" + m.Live.View() + "\n" + styles.RenderKey("q", "stop")
}

func (m Model) waitDone() tea.Cmd {
	if m.run == nil {
		return nil
	}
	return func() tea.Msg {
		<-m.run.done
		return doneMsg{}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Run drives s under the live dashboard. Quitting early cancels the run
// and waits for its actors to drain.
func Run(ctx context.Context, s *session.Session) (storage.RunRecord, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := &runState{done: make(chan struct{})}
	go func() {
		st.err = s.Run(ctx)
		close(st.done)
	}()

	p := tea.NewProgram(NewModel(s, st), tea.WithContext(ctx))
	_, uiErr := p.Run()
	interrupted := ctx.Err() != nil

	cancel()
	<-st.done

	if uiErr != nil && !interrupted {
		return s.Record(), fmt.Errorf("dashboard: %w", uiErr)
	}
	return s.Record(), st.err
}
