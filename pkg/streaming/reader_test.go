package streaming

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func newTestStream(raw string) *Stream {
	return NewStream(io.NopCloser(strings.NewReader(raw)))
}

func TestStreamNext(t *testing.T) {
	raw := ": ping\n\n" +
		"data: {\"response\":\"Parsing request\"}\n\n" +
		"id: 7\r\nevent: update\r\ndata: line one\r\ndata: line two\r\n\r\n" +
		"retry: 1500\ndata:no-space\n\n" +
		"event: orphan\n\n" +
		"event: complete\ndata: {}\n\n"

	s := newTestStream(raw)
	defer s.Close()

	want := []Event{
		{Name: EventMessage, Data: `{"response":"Parsing request"}`},
		{ID: "7", Name: "update", Data: "line one\nline two"},
		{ID: "7", Name: EventMessage, Data: "no-space", Retry: 1500 * time.Millisecond},
		{ID: "7", Name: "complete", Data: "{}"},
	}

	for i, w := range want {
		got, err := s.Next()
		if err != nil {
			t.Fatalf("event %d: unexpected error: %v", i, err)
		}
		if got != w {
			t.Fatalf("event %d: got %#v, want %#v", i, got, w)
		}
	}

	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at end of stream, got %v", err)
	}
	if s.LastEventID() != "7" {
		t.Fatalf("expected last event id 7, got %q", s.LastEventID())
	}
}

func TestStreamIncompleteEventIsNotDispatched(t *testing.T) {
	s := newTestStream("data: half")
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF for unterminated event, got %v", err)
	}
}

type countingCloser struct {
	io.Reader
	closes int
}

func (c *countingCloser) Close() error {
	c.closes++
	return nil
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	body := &countingCloser{Reader: strings.NewReader("")}
	s := NewStream(body)
	_ = s.Close()
	_ = s.Close()
	if body.closes != 1 {
		t.Fatalf("expected body to be closed once, got %d", body.closes)
	}
}
