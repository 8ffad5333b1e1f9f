package runner

import (
	"context"
	"time"

	"github.com/supremeagent/promptrunner/pkg/api"
	"github.com/supremeagent/promptrunner/pkg/streaming"
)

// State is a state of a run or of one of its two channels.
type State string

const (
	StateIdle             State = "idle"
	StateValidating       State = "validating"
	StateStreamConnecting State = "stream_connecting"
	StateStreamOpen       State = "stream_open"
	StateStreamClosed     State = "stream_closed"
	StateDispatching      State = "dispatching"
	StateAwaitingResult   State = "awaiting_result"
	StateRunning          State = "running"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

// Terminal reports whether a channel in state s will not change again this run.
func (s State) Terminal() bool {
	return s == StateStreamClosed || s == StateDone || s == StateFailed
}

// EntryKind tells where a log entry came from.
type EntryKind string

const (
	EntryResponse EntryKind = "response"
	EntryAction   EntryKind = "action"
)

// ActionPrefix starts every entry synthesized for an executed action.
const ActionPrefix = "Executing tool: "

// LogEntry is one line of run progress.
type LogEntry struct {
	Seq      int       `json:"seq"`
	Kind     EntryKind `json:"kind"`
	Text     string    `json:"text"`
	ActionID string    `json:"action_id,omitempty"`
}

// Snapshot is a copy of the runner state. Version grows with every change;
// OnStateChange observers receive versions in increasing order.
type Snapshot struct {
	Version     uint64     `json:"version"`
	SessionID   string     `json:"session_id"`
	Command     string     `json:"command"`
	Phase       State      `json:"phase"`
	Stream      State      `json:"stream"`
	Dispatch    State      `json:"dispatch"`
	Logs        []LogEntry `json:"logs"`
	Result      string     `json:"result"`
	StreamErr   error      `json:"-"`
	DispatchErr error      `json:"-"`
}

// Result is returned by Run.
type Result struct {
	SessionID   string     `json:"session_id"`
	Logs        []LogEntry `json:"logs"`
	Response    string     `json:"response"`
	Stream      State      `json:"stream"`
	Dispatch    State      `json:"dispatch"`
	StreamErr   error      `json:"-"`
	DispatchErr error      `json:"-"`
}

// StreamOpener opens the progress stream of a session. It must return only
// after the server has accepted the stream.
type StreamOpener interface {
	OpenStream(ctx context.Context, sessionID string) (*streaming.Stream, error)
}

// Dispatcher sends a command for execution.
type Dispatcher interface {
	Prompt(ctx context.Context, req api.PromptRequest) (api.PromptResponse, error)
}

// Options configures a Runner.
type Options struct {
	Streams      StreamOpener
	Dispatcher   Dispatcher
	NewSessionID func() string
	Hooks        Hooks
	// StreamGrace bounds how long the stream may stay open once the dispatch
	// has finished. Zero waits for the complete event indefinitely.
	StreamGrace time.Duration
}
