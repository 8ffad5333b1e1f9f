package streaming

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// EventMessage is the name of events sent without an explicit event field.
const EventMessage = "message"

const maxEventSize = 1024 * 1024

// Event is one dispatched server-sent event.
type Event struct {
	ID    string
	Name  string
	Data  string
	Retry time.Duration
}

// Stream reads server-sent events from an open response body.
type Stream struct {
	body      io.ReadCloser
	scanner   *bufio.Scanner
	lastID    string
	closeOnce sync.Once
	closeErr  error
}

// NewStream wraps body, which must already be positioned at the start of the
// event stream. The stream owns body and closes it on Close.
func NewStream(body io.ReadCloser) *Stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &Stream{body: body, scanner: scanner}
}

// Next blocks until the next event is dispatched. It returns io.EOF when the
// server ends the stream, or the read error when the connection fails.
func (s *Stream) Next() (Event, error) {
	var (
		evt     Event
		data    []string
		hasData bool
	)

	for s.scanner.Scan() {
		line := s.scanner.Text()

		if line == "" {
			if !hasData {
				evt = Event{}
				continue
			}
			if evt.Name == "" {
				evt.Name = EventMessage
			}
			evt.ID = s.lastID
			evt.Data = strings.Join(data, "\n")
			return evt, nil
		}

		// comment, used for keep-alives
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			evt.Name = value
		case "data":
			data = append(data, value)
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				s.lastID = value
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				evt.Retry = time.Duration(ms) * time.Millisecond
			}
		}
	}

	if err := s.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

// LastEventID returns the most recent id field seen on the stream.
func (s *Stream) LastEventID() string {
	return s.lastID
}

// Close releases the underlying connection. It is safe to call more than once
// and from another goroutine than the one blocked in Next.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
