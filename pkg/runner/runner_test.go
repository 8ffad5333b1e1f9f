package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/supremeagent/promptrunner/pkg/api"
	"github.com/supremeagent/promptrunner/pkg/streaming"
)

type promptFunc func(ctx context.Context, w *io.PipeWriter, req api.PromptRequest) (api.PromptResponse, error)

type fakeBackend struct {
	mu       sync.Mutex
	calls    []string
	pipes    map[string]*io.PipeWriter
	requests []api.PromptRequest

	openErr  error
	openGate chan struct{}
	opened   chan string
	prompt   promptFunc
}

func newFakeBackend(prompt promptFunc) *fakeBackend {
	return &fakeBackend{pipes: make(map[string]*io.PipeWriter), prompt: prompt}
}

func (f *fakeBackend) OpenStream(ctx context.Context, sessionID string) (*streaming.Stream, error) {
	f.record("open:" + sessionID)
	if f.opened != nil {
		f.opened <- sessionID
	}
	if f.openGate != nil {
		select {
		case <-f.openGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.openErr != nil {
		return nil, f.openErr
	}

	pr, pw := io.Pipe()
	f.mu.Lock()
	f.pipes[sessionID] = pw
	f.mu.Unlock()
	return streaming.NewStream(pr), nil
}

func (f *fakeBackend) Prompt(ctx context.Context, req api.PromptRequest) (api.PromptResponse, error) {
	f.record("prompt:" + req.SessionID)
	f.mu.Lock()
	pw := f.pipes[req.SessionID]
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.prompt(ctx, pw, req)
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func fixedIDs(ids ...string) func() string {
	var n atomic.Int32
	return func() string {
		i := int(n.Add(1)) - 1
		if i < len(ids) {
			return ids[i]
		}
		return fmt.Sprintf("id%08d", i)
	}
}

func emit(w *io.PipeWriter, raw string) {
	_, _ = io.WriteString(w, raw)
}

func logTexts(entries []LogEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Text)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRunScenario(t *testing.T) {
	backend := newFakeBackend(func(ctx context.Context, w *io.PipeWriter, req api.PromptRequest) (api.PromptResponse, error) {
		emit(w, "data: {\"response\":\"Parsing request\"}\n\n"+
			"data: {\"step_type\":\"execute_action\",\"executed_action_id\":\"send_email\"}\n\n"+
			"event: complete\ndata: {}\n\n")
		return api.NewPromptResponse("Report sent"), nil
	})

	var (
		mu      sync.Mutex
		hooked  []string
		results []string
	)
	r := New(Options{
		Streams:      backend,
		Dispatcher:   backend,
		NewSessionID: fixedIDs("a1b2c3d4e5"),
		Hooks: Hooks{
			OnLog: func(sessionID string, entry LogEntry) {
				mu.Lock()
				defer mu.Unlock()
				hooked = append(hooked, entry.Text)
			},
			OnResult: func(sessionID, response string) {
				mu.Lock()
				defer mu.Unlock()
				results = append(results, response)
			},
		},
	})

	res, err := r.Run(context.Background(), "send weekly report")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	wantLogs := []string{"Parsing request", "Executing tool: send_email"}
	if got := logTexts(res.Logs); !equalStrings(got, wantLogs) {
		t.Fatalf("unexpected logs: %q", got)
	}
	if res.Logs[1].Kind != EntryAction || res.Logs[1].ActionID != "send_email" || res.Logs[1].Seq != 2 {
		t.Fatalf("unexpected action entry: %#v", res.Logs[1])
	}
	if res.Response != "Report sent" {
		t.Fatalf("expected result %q, got %q", "Report sent", res.Response)
	}
	if res.SessionID != "a1b2c3d4e5" {
		t.Fatalf("unexpected session id %q", res.SessionID)
	}
	if res.Stream != StateStreamClosed || res.Dispatch != StateDone {
		t.Fatalf("unexpected terminal states stream=%s dispatch=%s", res.Stream, res.Dispatch)
	}

	if len(backend.requests) != 1 || backend.requests[0].Input != "send weekly report" || backend.requests[0].SessionID != "a1b2c3d4e5" {
		t.Fatalf("unexpected dispatch requests: %#v", backend.requests)
	}

	mu.Lock()
	defer mu.Unlock()
	if !equalStrings(hooked, wantLogs) {
		t.Fatalf("OnLog saw %q", hooked)
	}
	if len(results) != 1 || results[0] != "Report sent" {
		t.Fatalf("OnResult saw %q", results)
	}

	snap := r.Snapshot()
	if snap.Phase != StateDone || snap.Result != "Report sent" {
		t.Fatalf("unexpected snapshot: %#v", snap)
	}
}

func TestRunEmptyCommand(t *testing.T) {
	backend := newFakeBackend(func(ctx context.Context, w *io.PipeWriter, req api.PromptRequest) (api.PromptResponse, error) {
		t.Error("prompt must not be dispatched")
		return api.PromptResponse{}, nil
	})

	var surfaced []error
	r := New(Options{
		Streams:    backend,
		Dispatcher: backend,
		Hooks: Hooks{
			OnError: func(sessionID string, err error) { surfaced = append(surfaced, err) },
		},
	})

	for _, command := range []string{"", "   ", "\t\n"} {
		_, err := r.Run(context.Background(), command)
		if !errors.Is(err, ErrCommandRequired) {
			t.Fatalf("command %q: expected ErrCommandRequired, got %v", command, err)
		}
	}

	if calls := backend.Calls(); len(calls) != 0 {
		t.Fatalf("expected no network activity, got %v", calls)
	}
	if len(surfaced) != 3 {
		t.Fatalf("expected the validation error to be surfaced 3 times, got %d", len(surfaced))
	}
	if snap := r.Snapshot(); snap.Phase != StateIdle || snap.SessionID != "" {
		t.Fatalf("validation must not touch runner state: %#v", snap)
	}
}

func TestRunDispatchWaitsForStreamOpen(t *testing.T) {
	backend := newFakeBackend(func(ctx context.Context, w *io.PipeWriter, req api.PromptRequest) (api.PromptResponse, error) {
		emit(w, "event: complete\ndata: {}\n\n")
		return api.NewPromptResponse("ok"), nil
	})
	backend.openGate = make(chan struct{})
	backend.opened = make(chan string, 1)

	r := New(Options{Streams: backend, Dispatcher: backend, NewSessionID: fixedIDs("gate000001")})

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), "hello")
		done <- err
	}()

	select {
	case <-backend.opened:
	case <-time.After(time.Second):
		t.Fatal("stream was never opened")
	}

	time.Sleep(50 * time.Millisecond)
	for _, call := range backend.Calls() {
		if strings.HasPrefix(call, "prompt:") {
			t.Fatal("prompt dispatched before the stream was open")
		}
	}
	if snap := r.Snapshot(); snap.Stream != StateStreamConnecting || snap.Dispatch != StateIdle {
		t.Fatalf("unexpected states while connecting: stream=%s dispatch=%s", snap.Stream, snap.Dispatch)
	}

	close(backend.openGate)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not finish")
	}

	calls := backend.Calls()
	if len(calls) != 2 || calls[0] != "open:gate000001" || calls[1] != "prompt:gate000001" {
		t.Fatalf("unexpected call order: %v", calls)
	}
}

func TestRunIgnoresEventsAfterComplete(t *testing.T) {
	backend := newFakeBackend(func(ctx context.Context, w *io.PipeWriter, req api.PromptRequest) (api.PromptResponse, error) {
		emit(w, "data: {\"response\":\"first\"}\n\n"+
			"event: complete\ndata: {}\n\n"+
			"data: {\"response\":\"late\"}\n\n")
		return api.NewPromptResponse("ok"), nil
	})

	r := New(Options{Streams: backend, Dispatcher: backend})
	res, err := r.Run(context.Background(), "hello")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := logTexts(res.Logs); !equalStrings(got, []string{"first"}) {
		t.Fatalf("expected only entries before complete, got %q", got)
	}
}

func TestRunDecodesRecordsDefensively(t *testing.T) {
	backend := newFakeBackend(func(ctx context.Context, w *io.PipeWriter, req api.PromptRequest) (api.PromptResponse, error) {
		emit(w, "data: not json\n\n"+
			"data: {\"step_type\":\"thinking\"}\n\n"+
			"data: {\"response\":\"\"}\n\n"+
			"data: {\"response\":{\"nested\":true}}\n\n"+
			"event: heartbeat\ndata: {\"response\":\"named events are not progress\"}\n\n"+
			"data: {\"response\":\"Calling tool\",\"step_type\":\"execute_action\"}\n\n"+
			"event: complete\ndata: {}\n\n")
		return api.NewPromptResponse("ok"), nil
	})

	r := New(Options{Streams: backend, Dispatcher: backend})
	res, err := r.Run(context.Background(), "hello")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	want := []string{"Calling tool", "Executing tool: unknown"}
	if got := logTexts(res.Logs); !equalStrings(got, want) {
		t.Fatalf("unexpected logs: %q", got)
	}
}

func TestRunResultOverwrittenAndKeptOnDispatchFailure(t *testing.T) {
	var attempt atomic.Int32
	backend := newFakeBackend(func(ctx context.Context, w *io.PipeWriter, req api.PromptRequest) (api.PromptResponse, error) {
		n := attempt.Add(1)
		emit(w, fmt.Sprintf("data: {\"response\":\"run %d\"}\n\nevent: complete\ndata: {}\n\n", n))
		switch n {
		case 1:
			return api.NewPromptResponse("first"), nil
		case 2:
			return api.PromptResponse{}, &api.StatusError{Method: "POST", URL: "/prompt", Code: 502}
		default:
			return api.NewPromptResponse("third"), nil
		}
	})

	var surfaced []error
	r := New(Options{
		Streams:    backend,
		Dispatcher: backend,
		Hooks: Hooks{
			OnError: func(sessionID string, err error) { surfaced = append(surfaced, err) },
		},
	})

	if res, err := r.Run(context.Background(), "one"); err != nil || res.Response != "first" {
		t.Fatalf("first run: res=%#v err=%v", res, err)
	}

	res, err := r.Run(context.Background(), "two")
	var derr *DispatchError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DispatchError, got %v", err)
	}
	var serr *api.StatusError
	if !errors.As(err, &serr) || serr.Code != 502 {
		t.Fatalf("expected wrapped StatusError, got %v", err)
	}
	if res.Response != "first" {
		t.Fatalf("failed dispatch must keep the previous result, got %q", res.Response)
	}
	if got := logTexts(res.Logs); !equalStrings(got, []string{"run 2"}) {
		t.Fatalf("log must be reset per run, got %q", got)
	}
	if r.Snapshot().Phase != StateFailed {
		t.Fatalf("expected failed phase, got %s", r.Snapshot().Phase)
	}
	if len(surfaced) != 1 || !errors.As(surfaced[0], &derr) {
		t.Fatalf("expected dispatch failure to be surfaced, got %v", surfaced)
	}

	if res, err := r.Run(context.Background(), "three"); err != nil || res.Response != "third" {
		t.Fatalf("third run: res=%#v err=%v", res, err)
	}
}

func TestRunMissingResponseFieldFailsDispatch(t *testing.T) {
	backend := newFakeBackend(func(ctx context.Context, w *io.PipeWriter, req api.PromptRequest) (api.PromptResponse, error) {
		emit(w, "event: complete\ndata: {}\n\n")
		return api.PromptResponse{}, nil
	})

	r := New(Options{Streams: backend, Dispatcher: backend})
	_, err := r.Run(context.Background(), "hello")
	if !errors.Is(err, api.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestRunStreamFailsBeforeOpen(t *testing.T) {
	backend := newFakeBackend(func(ctx context.Context, w *io.PipeWriter, req api.PromptRequest) (api.PromptResponse, error) {
		t.Error("prompt must not be dispatched when the stream cannot open")
		return api.PromptResponse{}, nil
	})
	backend.openErr = errors.New("connection refused")

	r := New(Options{Streams: backend, Dispatcher: backend})
	res, err := r.Run(context.Background(), "hello")

	var serr *StreamError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StreamError, got %v", err)
	}
	if res.Stream != StateFailed || res.Dispatch != StateIdle {
		t.Fatalf("unexpected states stream=%s dispatch=%s", res.Stream, res.Dispatch)
	}
	if r.Snapshot().Phase != StateFailed {
		t.Fatalf("expected failed phase, got %s", r.Snapshot().Phase)
	}
}

func TestRunStreamErrorAfterOpenDoesNotAffectDispatch(t *testing.T) {
	backend := newFakeBackend(func(ctx context.Context, w *io.PipeWriter, req api.PromptRequest) (api.PromptResponse, error) {
		emit(w, "data: {\"response\":\"partial\"}\n\n")
		_ = w.Close()
		time.Sleep(20 * time.Millisecond)
		return api.NewPromptResponse("still answered"), nil
	})

	r := New(Options{Streams: backend, Dispatcher: backend})
	res, err := r.Run(context.Background(), "hello")
	if err != nil {
		t.Fatalf("stream failure must not fail the run: %v", err)
	}
	if res.Response != "still answered" {
		t.Fatalf("unexpected response %q", res.Response)
	}
	if !errors.Is(res.StreamErr, ErrStreamEnded) {
		t.Fatalf("expected ErrStreamEnded, got %v", res.StreamErr)
	}
	if got := logTexts(res.Logs); !equalStrings(got, []string{"partial"}) {
		t.Fatalf("unexpected logs %q", got)
	}
}

func TestRunRemoteErrorEvent(t *testing.T) {
	backend := newFakeBackend(func(ctx context.Context, w *io.PipeWriter, req api.PromptRequest) (api.PromptResponse, error) {
		emit(w, "event: error\ndata: session expired\n\ndata: {\"response\":\"ignored\"}\n\n")
		return api.NewPromptResponse("ok"), nil
	})

	r := New(Options{Streams: backend, Dispatcher: backend})
	res, err := r.Run(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	var remote *RemoteError
	if !errors.As(res.StreamErr, &remote) || remote.Data != "session expired" {
		t.Fatalf("expected RemoteError, got %v", res.StreamErr)
	}
	if len(res.Logs) != 0 {
		t.Fatalf("expected no entries after a stream error, got %q", logTexts(res.Logs))
	}
}

func TestRunStreamGrace(t *testing.T) {
	backend := newFakeBackend(func(ctx context.Context, w *io.PipeWriter, req api.PromptRequest) (api.PromptResponse, error) {
		return api.NewPromptResponse("done without complete"), nil
	})

	r := New(Options{Streams: backend, Dispatcher: backend, StreamGrace: 20 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := r.Run(ctx, "hello")
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if !errors.Is(res.StreamErr, ErrStreamGraceExpired) {
		t.Fatalf("expected ErrStreamGraceExpired, got %v", res.StreamErr)
	}
	if res.Response != "done without complete" {
		t.Fatalf("unexpected response %q", res.Response)
	}
}

func TestRunContextCancel(t *testing.T) {
	backend := newFakeBackend(func(ctx context.Context, w *io.PipeWriter, req api.PromptRequest) (api.PromptResponse, error) {
		<-ctx.Done()
		return api.PromptResponse{}, ctx.Err()
	})

	r := New(Options{Streams: backend, Dispatcher: backend})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx, "hello")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRunCancelAndReplace(t *testing.T) {
	firstDispatched := make(chan struct{})
	backend := newFakeBackend(func(ctx context.Context, w *io.PipeWriter, req api.PromptRequest) (api.PromptResponse, error) {
		if req.SessionID == "first00001" {
			emit(w, "data: {\"response\":\"from first\"}\n\n")
			close(firstDispatched)
			<-ctx.Done()
			return api.PromptResponse{}, ctx.Err()
		}
		emit(w, "data: {\"response\":\"from second\"}\n\nevent: complete\ndata: {}\n\n")
		return api.NewPromptResponse("second"), nil
	})

	r := New(Options{Streams: backend, Dispatcher: backend, NewSessionID: fixedIDs("first00001", "second0001")})

	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), "first")
		firstErr <- err
	}()

	select {
	case <-firstDispatched:
	case <-time.After(time.Second):
		t.Fatal("first run never dispatched")
	}

	res, err := r.Run(context.Background(), "second")
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	select {
	case err := <-firstErr:
		if !errors.Is(err, ErrSuperseded) {
			t.Fatalf("expected first run to be superseded, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("first run was not cancelled")
	}

	if got := logTexts(res.Logs); !equalStrings(got, []string{"from second"}) {
		t.Fatalf("runs must not interleave logs, got %q", got)
	}
	snap := r.Snapshot()
	if snap.SessionID != "second0001" || snap.Result != "second" {
		t.Fatalf("unexpected snapshot after replace: %#v", snap)
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateStreamClosed, StateDone, StateFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []State{StateIdle, StateStreamConnecting, StateStreamOpen, StateDispatching, StateAwaitingResult} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestRunStateChangesNeverGoBack(t *testing.T) {
	backend := newFakeBackend(func(ctx context.Context, w *io.PipeWriter, req api.PromptRequest) (api.PromptResponse, error) {
		emit(w, "event: complete\ndata: {}\n\n")
		return api.NewPromptResponse("ok"), nil
	})

	var (
		r        *Runner
		mu       sync.Mutex
		counts   []int
		versions []uint64
		phases   []State
		held     bool
	)
	r = New(Options{
		Streams:      backend,
		Dispatcher:   backend,
		NewSessionID: fixedIDs("order00001"),
		Hooks: Hooks{
			OnStateChange: func(snap Snapshot) {
				if snap.Dispatch == StateDispatching && !held {
					held = true
					// Stream a record while this older snapshot is still
					// being delivered.
					backend.mu.Lock()
					pw := backend.pipes[snap.SessionID]
					backend.mu.Unlock()
					emit(pw, "data: {\"response\":\"streamed\"}\n\n")
					deadline := time.Now().Add(time.Second)
					for len(r.Snapshot().Logs) == 0 && time.Now().Before(deadline) {
						time.Sleep(time.Millisecond)
					}
				}
				mu.Lock()
				defer mu.Unlock()
				counts = append(counts, len(snap.Logs))
				versions = append(versions, snap.Version)
				phases = append(phases, snap.Phase)
			},
		},
	})

	res, err := r.Run(context.Background(), "hello")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !equalStrings(logTexts(res.Logs), []string{"streamed"}) {
		t.Fatalf("unexpected logs %v", logTexts(res.Logs))
	}

	mu.Lock()
	defer mu.Unlock()
	if !held {
		t.Fatal("dispatching snapshot was never observed")
	}
	if phases[0] != StateValidating || phases[1] != StateStreamConnecting {
		t.Fatalf("expected validating then stream_connecting, got %v", phases)
	}
	for i := 1; i < len(counts); i++ {
		if counts[i] < counts[i-1] {
			t.Fatalf("observed log count went back: %v", counts)
		}
		if versions[i] <= versions[i-1] {
			t.Fatalf("observed versions out of order: %v", versions)
		}
	}
	if counts[len(counts)-1] != 1 || phases[len(phases)-1] != StateDone {
		t.Fatalf("expected final snapshot with one entry and done, got counts=%v phases=%v", counts, phases)
	}
}

func TestRunReportsValidating(t *testing.T) {
	var phases []State
	r := New(Options{
		Streams:    newFakeBackend(nil),
		Dispatcher: newFakeBackend(nil),
		Hooks: Hooks{
			OnStateChange: func(snap Snapshot) { phases = append(phases, snap.Phase) },
		},
	})

	if _, err := r.Run(context.Background(), "  "); !errors.Is(err, ErrCommandRequired) {
		t.Fatalf("expected ErrCommandRequired, got %v", err)
	}
	if len(phases) != 2 || phases[0] != StateValidating || phases[1] != StateIdle {
		t.Fatalf("expected validating then idle, got %v", phases)
	}
	if snap := r.Snapshot(); snap.Phase != StateIdle {
		t.Fatalf("validation must leave the runner idle, got %s", snap.Phase)
	}
}
