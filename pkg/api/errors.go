package api

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedResponse = errors.New("response is missing message.response")
	ErrBaseURLRequired   = errors.New("backend url is required")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// ErrNotEventStream is returned when the progress endpoint answers with
// something other than text/event-stream.
var ErrNotEventStream = errors.New("response is not an event stream")
