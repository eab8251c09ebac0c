// Package session owns the active pairing table: creation and teardown of
// bidirectional 1:1 sessions, message relay, and the reputation hooks that
// fire on termination.
package session

import (
	"sync"
	"time"
)

// Session is an active pairing between two users. Immutable once created.
type Session struct {
	ID        string
	UserA     string
	UserB     string
	StartedAt time.Time
}

// Partner returns the other participant's id, or "" if userID is not part
// of this session.
func (s *Session) Partner(userID string) string {
	switch userID {
	case s.UserA:
		return s.UserB
	case s.UserB:
		return s.UserA
	}
	return ""
}

// Registry is the mutex-guarded session table. Both participants map to the
// same Session value, so a user id appears in at most one session at a time.
type Registry struct {
	mu     sync.Mutex
	byUser map[string]*Session
}

// NewRegistry returns an empty session table.
func NewRegistry() *Registry {
	return &Registry{byUser: make(map[string]*Session)}
}

// Add registers both sides of the session. Callers must have torn down any
// prior session for either user first.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byUser[s.UserA] = s
	r.byUser[s.UserB] = s
}

// Get returns the session userID currently participates in.
func (r *Registry) Get(userID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byUser[userID]
	return s, ok
}

// InSession reports whether userID currently holds a session.
func (r *Registry) InSession(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byUser[userID]
	return ok
}

// Remove deletes both sides of s if they still point to it. Returns false
// when the session was already removed, making teardown idempotent under
// racing disconnects.
func (r *Registry) Remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := false
	if cur, ok := r.byUser[s.UserA]; ok && cur.ID == s.ID {
		delete(r.byUser, s.UserA)
		removed = true
	}
	if cur, ok := r.byUser[s.UserB]; ok && cur.ID == s.ID {
		delete(r.byUser, s.UserB)
		removed = true
	}
	return removed
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser) / 2
}
