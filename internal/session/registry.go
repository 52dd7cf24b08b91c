package session

import (
	"errors"
	"sync"
)

// Registry errors.
var (
	// ErrConflict is returned when a chat already has a live session.
	ErrConflict = errors.New("session: chat already streaming")
	// ErrNotFound is returned when no live session exists for a chat.
	ErrNotFound = errors.New("session: no active stream")
)

// Registry maps chat ids to their live sessions so an unrelated request
// (the stop endpoint) can reach a running relay loop. Entries are created
// when a send begins and removed by the owning session's terminal
// transition. This is the only shared mutable state in the streaming core.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register claims the chat id for the given session. A second send on a
// chat that is still streaming is rejected with ErrConflict rather than
// superseding (and leaking) the first session.
func (r *Registry) Register(chatID string, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[chatID]; ok {
		return ErrConflict
	}
	r.sessions[chatID] = s
	return nil
}

// Lookup returns the live session for a chat id.
func (r *Registry) Lookup(chatID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Deregister releases the chat id. Releasing an absent id is a no-op.
func (r *Registry) Deregister(chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, chatID)
}

// Active reports the number of live sessions.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
