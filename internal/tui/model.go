package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/supremeagent/promptrunner/pkg/runner"
)

// snapshotMsg carries a runner state change.
type snapshotMsg struct {
	snap runner.Snapshot
}

// doneMsg is sent when Run returns.
type doneMsg struct {
	res runner.Result
	err error
}

// Model is the run view.
type Model struct {
	command  string
	snap     runner.Snapshot
	spinner  spinner.Model
	viewport viewport.Model
	cancel   context.CancelFunc

	width      int
	height     int
	done       bool
	cancelling bool
	res        runner.Result
	err        error
}

// NewModel creates the run view for command. cancel stops the run.
func NewModel(command string, cancel context.CancelFunc) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = actionStyle
	return Model{
		command:  command,
		spinner:  sp,
		viewport: viewport.New(80, 12),
		cancel:   cancel,
		snap:     runner.Snapshot{Phase: runner.StateIdle, Stream: runner.StateIdle, Dispatch: runner.StateIdle},
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = max(msg.Width-2, 10)
		m.viewport.Height = max(msg.Height-8, 3)
		m.viewport.SetContent(m.renderLogs())
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, runKeys.Quit):
			if m.done {
				return m, tea.Quit
			}
			m.cancelling = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		case key.Matches(msg, runKeys.Up):
			m.viewport.LineUp(1)
		case key.Matches(msg, runKeys.Down):
			m.viewport.LineDown(1)
		}
		return m, nil

	case snapshotMsg:
		if msg.snap.Version < m.snap.Version {
			return m, nil
		}
		m.snap = msg.snap
		m.viewport.SetContent(m.renderLogs())
		m.viewport.GotoBottom()
		return m, nil

	case doneMsg:
		m.done = true
		m.res = msg.res
		m.err = msg.err
		if msg.res.SessionID != "" {
			m.snap.Logs = msg.res.Logs
			m.snap.Result = msg.res.Response
		}
		m.viewport.SetContent(m.renderLogs())
		m.viewport.GotoBottom()
		return m, tea.Quit

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) renderLogs() string {
	if len(m.snap.Logs) == 0 {
		return dimStyle.Render("waiting for progress…")
	}
	var b strings.Builder
	for i, e := range m.snap.Logs {
		if i > 0 {
			b.WriteByte('\n')
		}
		if e.Kind == runner.EntryAction {
			b.WriteString(actionStyle.Render("▸ " + e.Text))
		} else {
			b.WriteString(dimStyle.Render("• ") + e.Text)
		}
	}
	return b.String()
}

func (m Model) View() string {
	var b strings.Builder

	status := m.spinner.View() + " " + string(m.snap.Phase)
	if m.done {
		status = string(m.snap.Phase)
	} else if m.cancelling {
		status += " (cancelling)"
	}
	b.WriteString(headerStyle.Render("promptrunner") + " " + dimStyle.Render(m.snap.SessionID) + "\n")
	b.WriteString(dimStyle.Render("> ") + m.command + "\n")
	b.WriteString(statusBarStyle.Render(fmt.Sprintf(" %s  stream: %s  dispatch: %s ", status, m.snap.Stream, m.snap.Dispatch)) + "\n")
	b.WriteString(logBoxStyle.Render(m.viewport.View()) + "\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render("Error: "+m.err.Error()) + "\n")
	case m.snap.StreamErr != nil:
		b.WriteString(warningStyle.Render("Stream: "+m.snap.StreamErr.Error()) + "\n")
	}
	if m.snap.Result != "" {
		b.WriteString(resultStyle.Render("Result: ") + m.snap.Result + "\n")
	}
	if !m.done {
		b.WriteString(dimStyle.Render(runKeys.Quit.Help().Key+" "+runKeys.Quit.Help().Desc) + "\n")
	}
	return b.String()
}
