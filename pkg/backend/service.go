// Package backend executes prompts for the development server and publishes
// their progress to stream subscribers.
package backend

import (
	"context"
	"strings"
	"sync"

	"github.com/mylxsw/asteria/log"
	"github.com/supremeagent/promptrunner/pkg/api"
	"github.com/supremeagent/promptrunner/pkg/executor"
	"github.com/supremeagent/promptrunner/pkg/store"
	"github.com/supremeagent/promptrunner/pkg/streaming"
)

// Options configures the service.
type Options struct {
	Registry      *executor.Registry
	StreamManager *streaming.Manager
	EventStore    store.EventStore
	Hooks         Hooks
	// Executor names the registry entry used for prompts. Defaults to executor.Scripted.
	Executor string
}

// Service runs prompts and serves their progress events.
type Service struct {
	registry *executor.Registry
	stream   *streaming.Manager
	store    store.EventStore
	hooks    Hooks
	executor string
}

type storeCloser interface {
	Close()
}

// New creates a service with the scripted executor registered.
func New() *Service {
	registry := executor.NewRegistry()
	registry.Register(executor.Scripted, executor.NewScriptedFactory(executor.ScriptOptions{}))
	return NewWithOptions(Options{Registry: registry})
}

// NewWithOptions creates a service with custom dependencies.
func NewWithOptions(opts Options) *Service {
	if opts.Registry == nil {
		opts.Registry = executor.NewRegistry()
	}
	if opts.StreamManager == nil {
		opts.StreamManager = streaming.NewManager()
	}
	if opts.EventStore == nil {
		opts.EventStore = store.NewMemoryEventStore()
	}
	if opts.Executor == "" {
		opts.Executor = executor.Scripted
	}

	return &Service{
		registry: opts.Registry,
		stream:   opts.StreamManager,
		store:    opts.EventStore,
		hooks:    opts.Hooks,
		executor: opts.Executor,
	}
}

// Prompt executes req synchronously. Every progress record is stored and
// published under req.SessionID, followed by a complete event.
func (s *Service) Prompt(ctx context.Context, req api.PromptRequest) (api.PromptResponse, error) {
	if strings.TrimSpace(req.Input) == "" {
		return api.PromptResponse{}, ErrInputRequired
	}
	if req.SessionID == "" {
		return api.PromptResponse{}, ErrSessionIDRequired
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	exec, err := s.registry.CreateSession(req.SessionID, s.executor, cancel)
	if err != nil {
		return api.PromptResponse{}, err
	}
	defer s.registry.RemoveSession(req.SessionID)

	if s.hooks.OnSessionStart != nil {
		s.hooks.OnSessionStart(ctx, req.SessionID, req.Input)
	}
	log.Debugf("backend: session=%s prompt started", req.SessionID)

	final, err := exec.Execute(runCtx, req.Input, func(rec api.ProgressRecord) {
		s.publish(req.SessionID, streaming.EventMessage, rec)
	})

	status := "done"
	if err != nil {
		status = "failed"
		s.publish(req.SessionID, api.EventError, map[string]string{"error": err.Error()})
	}
	s.publish(req.SessionID, api.EventComplete, api.Completion{SessionID: req.SessionID, Status: status})

	if s.hooks.OnSessionEnd != nil {
		s.hooks.OnSessionEnd(context.Background(), req.SessionID, err)
	}
	if err != nil {
		log.Errorf("backend: session=%s prompt failed: %v", req.SessionID, err)
		return api.PromptResponse{}, err
	}
	return api.NewPromptResponse(final), nil
}

func (s *Service) publish(sessionID, name string, payload any) {
	evt := store.Event{SessionID: sessionID, Name: name, Payload: payload}
	stored, err := s.store.Append(context.Background(), evt)
	if err != nil {
		if s.hooks.OnStoreError != nil {
			s.hooks.OnStoreError(context.Background(), sessionID, evt, err)
		}
		log.Errorf("store append failed: session=%s name=%s err=%v", sessionID, name, err)
		return
	}
	if s.hooks.OnEventStored != nil {
		s.hooks.OnEventStored(context.Background(), stored)
	}

	s.stream.Publish(sessionID, streaming.Entry{Seq: stored.Seq, Name: stored.Name, Payload: stored})
}

// CancelSession stops a running prompt.
func (s *Service) CancelSession(sessionID string) error {
	return s.registry.CancelSession(sessionID)
}

// SessionRunning reports whether a session is still active.
func (s *Service) SessionRunning(sessionID string) bool {
	_, ok := s.registry.GetSession(sessionID)
	return ok
}

// ListEvents reads persisted session events.
func (s *Service) ListEvents(ctx context.Context, sessionID string, afterSeq uint64, limit int) ([]store.Event, error) {
	return s.store.List(ctx, sessionID, store.ListOptions{AfterSeq: afterSeq, Limit: limit})
}

// Subscribe streams session events via channel. The channel closes after the
// complete event, or when the returned function is called. A session that has
// not started yet is waited for.
//
// Without ReturnAll, the subscriber sees every event stored after Subscribe
// began. Events stored while the live subscription was being registered are
// replayed from the store; later ones arrive live.
func (s *Service) Subscribe(sessionID string, opts SubscribeOptions) (<-chan store.Event, func()) {
	ctx := context.Background()

	startSeq, _ := s.store.LatestSeq(ctx, sessionID)
	live, unsubscribeStream := s.stream.Subscribe(sessionID)
	barrierSeq, _ := s.store.LatestSeq(ctx, sessionID)
	completed, _ := s.store.Completed(ctx, sessionID)
	finished := completed && !s.SessionRunning(sessionID)

	replay := store.ListOptions{AfterSeq: startSeq, UntilSeq: barrierSeq}
	if opts.ReturnAll {
		replay = store.ListOptions{AfterSeq: opts.AfterSeq, UntilSeq: barrierSeq, Limit: opts.Limit}
	}

	out := make(chan store.Event, 100)
	stop := make(chan struct{})
	stopOnce := sync.Once{}

	go func() {
		defer close(out)
		defer unsubscribeStream()

		lastEmittedSeq := replay.AfterSeq

		emit := func(evt store.Event) bool {
			select {
			case out <- evt:
				if evt.Seq > lastEmittedSeq {
					lastEmittedSeq = evt.Seq
				}
				return true
			case <-stop:
				return false
			}
		}

		if barrierSeq > replay.AfterSeq {
			history, err := s.store.List(ctx, sessionID, replay)
			if err != nil {
				if s.hooks.OnStoreError != nil {
					s.hooks.OnStoreError(ctx, sessionID, store.Event{SessionID: sessionID, Name: "history"}, err)
				}
				return
			}
			for _, evt := range history {
				if !emit(evt) {
					return
				}
				if evt.Completes() {
					return
				}
			}
		}

		if finished {
			_ = emit(store.Event{SessionID: sessionID, Name: api.EventComplete, Payload: api.Completion{SessionID: sessionID, Status: "done"}})
			return
		}

		for {
			select {
			case entry, ok := <-live:
				if !ok {
					return
				}

				evt, ok := entry.Payload.(store.Event)
				if !ok {
					evt = store.Event{SessionID: sessionID, Seq: entry.Seq, Name: entry.Name, Payload: entry.Payload}
				}
				if evt.Seq > 0 && evt.Seq <= lastEmittedSeq {
					continue
				}
				if !emit(evt) {
					return
				}
				if evt.Completes() {
					return
				}
			case <-stop:
				return
			}
		}
	}()

	cancel := func() {
		stopOnce.Do(func() {
			close(stop)
		})
	}

	return out, cancel
}

// Shutdown cancels all running prompts and closes live streams.
func (s *Service) Shutdown() {
	s.registry.ShutdownAll()
	s.stream.CloseAll()
	if closer, ok := s.store.(storeCloser); ok {
		closer.Close()
	}
}
