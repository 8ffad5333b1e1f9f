// Package tui implements the live terminal view of a run.
package tui

import (
	"context"
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/supremeagent/promptrunner/pkg/runner"
)

// programRef is a shared reference to the tea.Program for goroutine sends.
// It's set after tea.NewProgram but before p.Run().
type programRef struct {
	mu sync.Mutex
	p  *tea.Program
}

func (r *programRef) Set(p *tea.Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.p = p
}

func (r *programRef) Send(msg tea.Msg) {
	r.mu.Lock()
	p := r.p
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Clear nils out the program reference, preventing post-exit sends.
func (r *programRef) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.p = nil
}

// Run runs command with a runner built from opts while showing its progress.
// opts.Hooks is replaced.
func Run(ctx context.Context, opts runner.Options, command string) (runner.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ref := &programRef{}
	opts.Hooks = runner.Hooks{
		OnStateChange: func(snap runner.Snapshot) { ref.Send(snapshotMsg{snap: snap}) },
	}
	r := runner.New(opts)

	p := tea.NewProgram(NewModel(command, cancel))
	ref.Set(p)

	go func() {
		res, err := r.Run(ctx, command)
		ref.Send(doneMsg{res: res, err: err})
	}()

	final, err := p.Run()
	ref.Clear()
	if err != nil {
		return runner.Result{}, fmt.Errorf("run view: %w", err)
	}
	m, ok := final.(Model)
	if !ok {
		return runner.Result{}, fmt.Errorf("run view: unexpected model %T", final)
	}
	return m.res, m.err
}
