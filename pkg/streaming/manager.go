// Package streaming fans progress events out to live subscribers and reads
// server-sent event streams on the client side.
package streaming

import (
	"sync"

	"github.com/mylxsw/asteria/log"
)

const subscriberBuffer = 256

// Entry is one event published to a session.
type Entry struct {
	Seq     uint64 `json:"seq,omitempty"`
	Name    string `json:"name"`
	Payload any    `json:"payload"`
}

// Manager manages live subscribers of session progress streams.
type Manager struct {
	subscribers map[string][]chan Entry
	mu          sync.RWMutex
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		subscribers: make(map[string][]chan Entry),
	}
}

// Publish delivers entry to every subscriber of sessionID. A subscriber whose
// buffer is full misses the entry.
func (m *Manager) Publish(sessionID string, entry Entry) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subs := m.subscribers[sessionID]
	delivered := 0
	for i, ch := range subs {
		select {
		case ch <- entry:
			delivered++
		default:
			log.Errorf("streaming: subscriber %d of session=%s is full, dropped %s", i, sessionID, entry.Name)
		}
	}
	log.Debugf("streaming: publish session=%s name=%s delivered=%d/%d", sessionID, entry.Name, delivered, len(subs))
	return delivered
}

// Subscribe registers a subscriber for sessionID. The returned function
// unsubscribes and closes the channel.
func (m *Manager) Subscribe(sessionID string) (<-chan Entry, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Entry, subscriberBuffer)
	m.subscribers[sessionID] = append(m.subscribers[sessionID], ch)
	log.Debugf("streaming: subscribe session=%s subscribers=%d", sessionID, len(m.subscribers[sessionID]))

	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.subscribers[sessionID]
		for i, sub := range subs {
			if sub == ch {
				m.subscribers[sessionID] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
		if len(m.subscribers[sessionID]) == 0 {
			delete(m.subscribers, sessionID)
		}
	}

	return ch, unsubscribe
}

// Subscribers returns the number of live subscribers of sessionID.
func (m *Manager) Subscribers(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers[sessionID])
}

// CloseSession closes every subscriber of sessionID.
func (m *Manager) CloseSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ch := range m.subscribers[sessionID] {
		close(ch)
	}
	delete(m.subscribers, sessionID)
}

// CloseAll closes every subscriber of every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for sessionID, subs := range m.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(m.subscribers, sessionID)
	}
}
