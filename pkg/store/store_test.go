package store

import (
	"context"
	"testing"
	"time"

	"github.com/supremeagent/promptrunner/pkg/api"
)

func TestMemoryEventStoreAppendAndList(t *testing.T) {
	s := NewMemoryEventStore()
	defer s.Close()
	ctx := context.Background()

	for i, name := range []string{"message", "message", "message", api.EventComplete} {
		evt, err := s.Append(ctx, Event{SessionID: "s1", Name: name, Payload: i})
		if err != nil {
			t.Fatalf("append failed: %v", err)
		}
		if evt.Seq != uint64(i+1) {
			t.Fatalf("expected seq %d, got %d", i+1, evt.Seq)
		}
		if evt.Timestamp.IsZero() {
			t.Fatal("expected timestamp to be set")
		}
	}
	_, _ = s.Append(ctx, Event{SessionID: "s2", Name: "message"})

	all, _ := s.List(ctx, "s1", ListOptions{})
	if len(all) != 4 {
		t.Fatalf("expected 4 events, got %d", len(all))
	}

	page, _ := s.List(ctx, "s1", ListOptions{AfterSeq: 1, UntilSeq: 3})
	if len(page) != 2 || page[0].Seq != 2 || page[1].Seq != 3 {
		t.Fatalf("unexpected page %#v", page)
	}

	limited, _ := s.List(ctx, "s1", ListOptions{Limit: 1})
	if len(limited) != 1 || limited[0].Seq != 1 {
		t.Fatalf("unexpected limited list %#v", limited)
	}

	if seq, _ := s.LatestSeq(ctx, "s1"); seq != 4 {
		t.Fatalf("expected latest seq 4, got %d", seq)
	}
	if done, _ := s.Completed(ctx, "s1"); !done {
		t.Fatal("expected s1 to be completed")
	}
	if done, _ := s.Completed(ctx, "s2"); done {
		t.Fatal("expected s2 to be running")
	}
}

func TestMemoryEventStoreCleanupAfterDoneTTL(t *testing.T) {
	s := NewMemoryEventStoreWithOptions(MemoryEventStoreOptions{
		ExpireAfterDone: 80 * time.Millisecond,
		CleanupInterval: 20 * time.Millisecond,
	})
	defer s.Close()

	sessionID := "session-done-expire"
	_, _ = s.Append(context.Background(), Event{SessionID: sessionID, Name: "message", Payload: "hello"})
	_, _ = s.Append(context.Background(), Event{SessionID: sessionID, Name: api.EventComplete})

	deadline := time.Now().Add(500 * time.Millisecond)
	for {
		events, err := s.List(context.Background(), sessionID, ListOptions{})
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(events) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected session to be cleaned up, still has %d events", len(events))
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestMemoryEventStoreDoesNotCleanupRunningSession(t *testing.T) {
	s := NewMemoryEventStoreWithOptions(MemoryEventStoreOptions{
		ExpireAfterDone: 60 * time.Millisecond,
		CleanupInterval: 20 * time.Millisecond,
	})
	defer s.Close()

	sessionID := "session-running-keep"
	_, _ = s.Append(context.Background(), Event{SessionID: sessionID, Name: "message", Payload: "still running"})

	time.Sleep(200 * time.Millisecond)
	events, err := s.List(context.Background(), sessionID, ListOptions{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("expected running session events to be kept")
	}
}

func TestMemoryEventStoreWithExpirationHelper(t *testing.T) {
	s := NewMemoryEventStoreWithExpiration(50 * time.Millisecond)
	defer s.Close()

	if s.expireAfterDone <= 0 {
		t.Fatalf("expected expireAfterDone to be set")
	}
	if s.cleanupInterval != 50*time.Millisecond {
		t.Fatalf("expected cleanup interval to default to the TTL, got %v", s.cleanupInterval)
	}
}
