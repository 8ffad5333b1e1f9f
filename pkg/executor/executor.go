package executor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/supremeagent/promptrunner/pkg/api"
)

// Executor turns one command into a sequence of progress records and a final response.
type Executor interface {
	// Execute runs input, calling emit for every progress record in order.
	Execute(ctx context.Context, input string, emit func(api.ProgressRecord)) (string, error)
}

// Factory creates executor instances
type Factory interface {
	Create() (Executor, error)
}

// FactoryFunc is a function that creates executor instances
type FactoryFunc func() (Executor, error)

func (f FactoryFunc) Create() (Executor, error) {
	return f()
}

// Session is one running execution.
type Session struct {
	ID        string
	Executor  string
	StartedAt time.Time

	cancel context.CancelFunc
}

// Registry manages executor factories and the sessions currently running.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	sessions  map[string]*Session
}

// NewRegistry creates a new executor registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		sessions:  make(map[string]*Session),
	}
}

// Register registers an executor factory
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Names returns the registered executor names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateSession creates an executor for session id. cancel is called when the
// session is shut down. A session id may only run once at a time.
func (r *Registry) CreateSession(id, executorType string, cancel context.CancelFunc) (Executor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, running := r.sessions[id]; running {
		return nil, ErrSessionRunning
	}
	factory, ok := r.factories[executorType]
	if !ok {
		return nil, ErrUnknownExecutorType
	}

	exec, err := factory.Create()
	if err != nil {
		return nil, err
	}

	r.sessions[id] = &Session{ID: id, Executor: executorType, StartedAt: time.Now(), cancel: cancel}
	return exec, nil
}

// GetSession gets a running session by ID
func (r *Registry) GetSession(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// CancelSession stops a running session.
func (r *Registry) CancelSession(id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	if sess.cancel != nil {
		sess.cancel()
	}
	return nil
}

// RemoveSession removes a session from the registry
func (r *Registry) RemoveSession(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// ShutdownAll cancels all running sessions
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.Unlock()

	for _, sess := range sessions {
		if sess.cancel != nil {
			sess.cancel()
		}
	}
}
