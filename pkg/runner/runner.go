// Package runner runs one free-text command against the prompt backend while
// collecting the progress that the backend streams for its session.
package runner

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mylxsw/asteria/log"
	"github.com/supremeagent/promptrunner/pkg/api"
	"github.com/supremeagent/promptrunner/pkg/session"
	"github.com/supremeagent/promptrunner/pkg/streaming"
)

// Runner owns the log and result of the runs it performs. Starting a run
// cancels the run in flight, if any.
type Runner struct {
	streams    StreamOpener
	dispatcher Dispatcher
	newID      func() string
	hooks      Hooks
	grace      time.Duration

	mu      sync.Mutex
	gen     uint64
	version uint64
	cancel  context.CancelFunc
	snap    Snapshot

	// notifyMu orders OnStateChange deliveries; delivered is the newest
	// version handed out.
	notifyMu  sync.Mutex
	delivered uint64
}

// New creates a runner.
func New(opts Options) *Runner {
	if opts.NewSessionID == nil {
		opts.NewSessionID = session.NewID
	}
	return &Runner{
		streams:    opts.Streams,
		dispatcher: opts.Dispatcher,
		newID:      opts.NewSessionID,
		hooks:      opts.Hooks,
		grace:      opts.StreamGrace,
		snap: Snapshot{
			Phase:    StateIdle,
			Stream:   StateIdle,
			Dispatch: StateIdle,
		},
	}
}

// NewWithClient creates a runner that streams and dispatches through client.
func NewWithClient(client *api.Client, hooks Hooks) *Runner {
	return New(Options{Streams: client, Dispatcher: client, Hooks: hooks})
}

// Run validates command, opens the progress stream of a fresh session, and
// once the stream is open dispatches the command under that session. It
// returns when both the stream and the dispatch have finished, or when ctx is
// done. With Options.StreamGrace set, a stream still open that long after the
// dispatch finished is closed with ErrStreamGraceExpired.
//
// A stream failure before the stream opens fails the run without dispatching.
// Later stream failures do not affect the dispatch. A dispatch failure leaves
// the previous result in place and is returned as a *DispatchError.
func (r *Runner) Run(ctx context.Context, command string) (Result, error) {
	validating := r.transient()
	validating.Phase = StateValidating
	validating.Command = command
	r.notify(validating)

	if strings.TrimSpace(command) == "" {
		r.notify(r.transient())
		r.hooks.error("", ErrCommandRequired)
		return Result{}, ErrCommandRequired
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sessionID := r.newID()
	gen := r.begin(sessionID, command, cancel)
	r.hooks.runStart(sessionID, command)
	log.Debugf("runner: session=%s connecting progress stream", sessionID)

	stream, err := r.streams.OpenStream(runCtx, sessionID)
	if err != nil {
		serr := &StreamError{SessionID: sessionID, Err: err}
		log.Errorf("runner: session=%s stream failed before open: %v", sessionID, err)
		if r.update(gen, func(s *Snapshot) {
			s.Stream = StateFailed
			s.Phase = StateFailed
			s.StreamErr = serr
		}) {
			r.hooks.error(sessionID, serr)
		}
		return r.finish(ctx, gen, serr)
	}

	r.update(gen, func(s *Snapshot) {
		s.Stream = StateStreamOpen
		s.Phase = StateRunning
	})
	log.Debugf("runner: session=%s stream open, dispatching", sessionID)

	streamCtx, cancelStream := context.WithCancelCause(runCtx)
	defer cancelStream(nil)

	streamDone := make(chan struct{})
	dispatchDone := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(streamDone)
		r.consume(streamCtx, gen, sessionID, stream)
	}()
	go func() {
		defer wg.Done()
		defer close(dispatchDone)
		r.dispatch(runCtx, gen, sessionID, command)
	}()

	if r.grace > 0 {
		go func() {
			select {
			case <-dispatchDone:
			case <-streamDone:
				return
			}
			timer := time.NewTimer(r.grace)
			defer timer.Stop()
			select {
			case <-timer.C:
				cancelStream(ErrStreamGraceExpired)
			case <-streamDone:
			}
		}()
	}
	wg.Wait()

	r.update(gen, func(s *Snapshot) {
		if s.Dispatch == StateDone {
			s.Phase = StateDone
		} else {
			s.Phase = StateFailed
		}
	})

	var runErr error
	if snap := r.Snapshot(); snap.DispatchErr != nil {
		runErr = snap.DispatchErr
	}
	return r.finish(ctx, gen, runErr)
}

// Snapshot returns a copy of the current state.
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copySnapshot()
}

// Cancel stops the run in flight, if any.
func (r *Runner) Cancel() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// begin starts a new generation: the previous run is cancelled and the log is
// cleared. The result of the previous run is kept until overwritten.
func (r *Runner) begin(sessionID, command string, cancel context.CancelFunc) uint64 {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.gen++
	r.version++
	gen := r.gen
	r.cancel = cancel
	r.snap = Snapshot{
		SessionID: sessionID,
		Command:   command,
		Phase:     StateStreamConnecting,
		Stream:    StateStreamConnecting,
		Dispatch:  StateIdle,
		Result:    r.snap.Result,
	}
	snap := r.copySnapshot()
	r.mu.Unlock()

	r.notify(snap)
	return gen
}

func (r *Runner) finish(ctx context.Context, gen uint64, err error) (Result, error) {
	r.mu.Lock()
	current := gen == r.gen
	snap := r.copySnapshot()
	if current {
		r.cancel = nil
	}
	r.mu.Unlock()

	if !current {
		return Result{}, ErrSuperseded
	}

	res := Result{
		SessionID:   snap.SessionID,
		Logs:        snap.Logs,
		Response:    snap.Result,
		Stream:      snap.Stream,
		Dispatch:    snap.Dispatch,
		StreamErr:   snap.StreamErr,
		DispatchErr: snap.DispatchErr,
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return res, err
}

// update applies fn to the snapshot if gen is still the current run.
func (r *Runner) update(gen uint64, fn func(s *Snapshot)) bool {
	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return false
	}
	fn(&r.snap)
	r.version++
	snap := r.copySnapshot()
	r.mu.Unlock()

	r.notify(snap)
	return true
}

// transient returns the current state under a fresh version without
// changing it.
func (r *Runner) transient() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.version++
	return r.copySnapshot()
}

// notify hands snap to OnStateChange unless a newer snapshot already went out.
func (r *Runner) notify(snap Snapshot) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	if snap.Version <= r.delivered {
		return
	}
	r.delivered = snap.Version
	r.hooks.stateChange(snap)
}

func (r *Runner) copySnapshot() Snapshot {
	snap := r.snap
	snap.Version = r.version
	snap.Logs = append([]LogEntry(nil), r.snap.Logs...)
	return snap
}

func (r *Runner) consume(ctx context.Context, gen uint64, sessionID string, stream *streaming.Stream) {
	stop := context.AfterFunc(ctx, func() { _ = stream.Close() })
	defer stop()
	defer stream.Close()

	for {
		evt, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil {
				err = context.Cause(ctx)
			} else if errors.Is(err, io.EOF) {
				err = ErrStreamEnded
			}
			r.streamFailed(gen, sessionID, err)
			return
		}

		switch evt.Name {
		case api.EventComplete:
			log.Debugf("runner: session=%s stream complete: %s", sessionID, evt.Data)
			r.update(gen, func(s *Snapshot) { s.Stream = StateStreamClosed })
			return
		case api.EventError:
			r.streamFailed(gen, sessionID, &RemoteError{Data: evt.Data})
			return
		case streaming.EventMessage:
			r.record(gen, sessionID, evt.Data)
		default:
			log.Debugf("runner: session=%s ignoring event %q", sessionID, evt.Name)
		}
	}
}

func (r *Runner) streamFailed(gen uint64, sessionID string, err error) {
	serr := &StreamError{SessionID: sessionID, Err: err}
	if r.update(gen, func(s *Snapshot) {
		s.Stream = StateFailed
		s.StreamErr = serr
	}) {
		log.Errorf("runner: session=%s stream closed with error: %v", sessionID, err)
		r.hooks.error(sessionID, serr)
	}
}

// record turns one progress record into zero, one or two log entries.
func (r *Runner) record(gen uint64, sessionID, data string) {
	rec, err := api.DecodeProgressRecord([]byte(data))
	if err != nil {
		log.Debugf("runner: session=%s skipping malformed record: %v", sessionID, err)
		return
	}

	var entries []LogEntry
	if rec.Response != "" {
		entries = append(entries, LogEntry{Kind: EntryResponse, Text: rec.Response})
	}
	if rec.IsAction() {
		actionID := rec.ExecutedActionID
		if actionID == "" {
			actionID = "unknown"
		}
		entries = append(entries, LogEntry{Kind: EntryAction, Text: ActionPrefix + actionID, ActionID: actionID})
	}
	if len(entries) == 0 {
		return
	}

	var appended []LogEntry
	r.update(gen, func(s *Snapshot) {
		for _, e := range entries {
			e.Seq = len(s.Logs) + 1
			s.Logs = append(s.Logs, e)
			appended = append(appended, e)
		}
	})
	for _, e := range appended {
		r.hooks.log(sessionID, e)
	}
}

func (r *Runner) dispatch(ctx context.Context, gen uint64, sessionID, command string) {
	r.update(gen, func(s *Snapshot) { s.Dispatch = StateDispatching })
	r.update(gen, func(s *Snapshot) { s.Dispatch = StateAwaitingResult })

	resp, err := r.dispatcher.Prompt(ctx, api.PromptRequest{Input: command, SessionID: sessionID})
	var text string
	if err == nil {
		text, err = resp.Text()
	}
	if err != nil {
		derr := &DispatchError{SessionID: sessionID, Err: err}
		if r.update(gen, func(s *Snapshot) {
			s.Dispatch = StateFailed
			s.DispatchErr = derr
		}) {
			log.Errorf("runner: session=%s dispatch failed: %v", sessionID, err)
			r.hooks.error(sessionID, derr)
		}
		return
	}

	if r.update(gen, func(s *Snapshot) {
		s.Dispatch = StateDone
		s.Result = text
	}) {
		log.Debugf("runner: session=%s result received", sessionID)
		r.hooks.result(sessionID, text)
	}
}
