package runner

import (
	"errors"
	"fmt"
)

var (
	ErrCommandRequired = errors.New("command is required")
	ErrStreamEnded     = errors.New("progress stream ended before completion")
	ErrSuperseded      = errors.New("run superseded by a newer run")

	ErrStreamGraceExpired = errors.New("progress stream still open after the dispatch finished")
)

// StreamError reports a failure of the progress stream of a run.
type StreamError struct {
	SessionID string
	Err       error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("progress stream for session %s: %v", e.SessionID, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// DispatchError reports a failure of the execution call of a run.
type DispatchError struct {
	SessionID string
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("prompt dispatch for session %s: %v", e.SessionID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// RemoteError carries the payload of an error event sent by the server.
type RemoteError struct {
	Data string
}

func (e *RemoteError) Error() string {
	if e.Data == "" {
		return "server reported a stream error"
	}
	return "server reported a stream error: " + e.Data
}
