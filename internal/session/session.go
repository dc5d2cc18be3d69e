// Package session keeps short-lived, in-memory conversation history for
// the chat API. Sessions expire after a fixed idle TTL and history is
// trimmed to a bounded number of turns. Nothing here is persisted;
// restarting the server clears all sessions.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openregs/regrag/internal/llm"
)

const (
	// DefaultTTL is how long an idle session survives.
	DefaultTTL = time.Hour
	// DefaultMaxHistory bounds the stored messages per session.
	DefaultMaxHistory = 20
)

type entry struct {
	messages []llm.Message
	lastSeen time.Time
}

// Manager stores sessions keyed by opaque IDs. Safe for concurrent use.
type Manager struct {
	ttl        time.Duration
	maxHistory int
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewManager creates a Manager. Non-positive ttl or maxHistory fall back
// to the defaults.
func NewManager(ttl time.Duration, maxHistory int) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Manager{
		ttl:        ttl,
		maxHistory: maxHistory,
		now:        time.Now,
		sessions:   make(map[string]*entry),
	}
}

// Get returns the session history for id, creating the session when the
// id is empty or unknown/expired. The returned id identifies the session
// for subsequent calls; history is a copy.
func (m *Manager) Get(id string) (string, []llm.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.evictLocked(now)

	if id != "" {
		if e, ok := m.sessions[id]; ok {
			e.lastSeen = now
			history := make([]llm.Message, len(e.messages))
			copy(history, e.messages)
			return id, history
		}
	}

	id = uuid.NewString()
	m.sessions[id] = &entry{lastSeen: now}
	return id, nil
}

// Append records a user/assistant exchange on the session, trimming the
// oldest messages beyond the history bound. Appending to an expired or
// unknown session recreates it.
func (m *Manager) Append(id string, messages ...llm.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.sessions[id]
	if !ok {
		e = &entry{}
		m.sessions[id] = e
	}
	e.lastSeen = now
	e.messages = append(e.messages, messages...)
	if over := len(e.messages) - m.maxHistory; over > 0 {
		e.messages = append([]llm.Message(nil), e.messages[over:]...)
	}
}

// Len reports the number of live sessions, for the status surface.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictLocked(m.now())
	return len(m.sessions)
}

func (m *Manager) evictLocked(now time.Time) {
	for id, e := range m.sessions {
		if now.Sub(e.lastSeen) > m.ttl {
			delete(m.sessions, id)
		}
	}
}
