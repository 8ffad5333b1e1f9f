package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/supremeagent/promptrunner/pkg/runner"
)

func TestModelTracksSnapshotsAndResult(t *testing.T) {
	cancelled := false
	var m tea.Model = NewModel("send weekly report", func() { cancelled = true })

	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m, _ = m.Update(snapshotMsg{snap: runner.Snapshot{
		SessionID: "a1b2c3d4e5",
		Phase:     runner.StateRunning,
		Stream:    runner.StateStreamOpen,
		Dispatch:  runner.StateAwaitingResult,
		Logs: []runner.LogEntry{
			{Seq: 1, Kind: runner.EntryResponse, Text: "Drafting email"},
			{Seq: 2, Kind: runner.EntryAction, Text: "Executing tool: send_email"},
		},
	}})

	view := m.View()
	for _, want := range []string{"a1b2c3d4e5", "Drafting email", "Executing tool: send_email", "awaiting_result"} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected view to contain %q:\n%s", want, view)
		}
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if !cancelled {
		t.Fatal("expected quit key to cancel the run")
	}

	m, cmd := m.Update(doneMsg{res: runner.Result{SessionID: "a1b2c3d4e5", Response: "Report sent"}})
	if cmd == nil {
		t.Fatal("expected quit command after done")
	}
	final := m.(Model)
	if final.res.Response != "Report sent" || !strings.Contains(final.View(), "Report sent") {
		t.Fatalf("unexpected final model %#v", final.res)
	}
}

func TestModelShowsError(t *testing.T) {
	var m tea.Model = NewModel("", nil)
	m, _ = m.Update(doneMsg{err: runner.ErrCommandRequired})
	final := m.(Model)
	if !errors.Is(final.err, runner.ErrCommandRequired) {
		t.Fatalf("expected validation error, got %v", final.err)
	}
	if !strings.Contains(final.View(), runner.ErrCommandRequired.Error()) {
		t.Fatalf("expected error in view:\n%s", final.View())
	}
}

func TestModelIgnoresOlderSnapshots(t *testing.T) {
	var m tea.Model = NewModel("send report", nil)
	m, _ = m.Update(snapshotMsg{snap: runner.Snapshot{
		Version: 4,
		Phase:   runner.StateRunning,
		Logs:    []runner.LogEntry{{Seq: 1, Kind: runner.EntryResponse, Text: "Drafting"}},
	}})
	m, _ = m.Update(snapshotMsg{snap: runner.Snapshot{Version: 3, Phase: runner.StateStreamOpen}})

	if got := m.(Model).snap; got.Version != 4 || len(got.Logs) != 1 {
		t.Fatalf("expected the newer snapshot to stay, got %#v", got)
	}
}
