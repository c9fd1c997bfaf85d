package main

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// hashPassword takes a plaintext password and returns a bcrypt hash.  If hashing
// fails the program panics because it is a programmer error.
func hashPassword(password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return string(hash)
}

// checkPasswordHash verifies a plaintext password against a stored bcrypt hash.
// It returns nil if the password matches, or an error otherwise.
func checkPasswordHash(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// Session represents an authenticated operator session.  Sessions are kept in
// memory; they are not persisted.
type Session struct {
	Username string
	Expires  time.Time
}

// SessionManager manages active sessions.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time
}

// NewSessionManager constructs an empty session store.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]Session), now: time.Now}
}

// Create starts a new session for username that expires after ttl.
func (sm *SessionManager) Create(username string, ttl time.Duration) (string, Session) {
	id := uuid.NewString()
	s := Session{Username: username, Expires: sm.now().Add(ttl)}
	sm.mu.Lock()
	sm.sessions[id] = s
	sm.mu.Unlock()
	return id, s
}

// Get retrieves a session by ID.  If the session has expired or does not exist
// it returns false.
func (sm *SessionManager) Get(id string) (Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sessions[id]
	if !ok || sm.now().After(s.Expires) {
		return Session{}, false
	}
	return s, true
}

// Delete removes a session.  It returns true if the session existed.
func (sm *SessionManager) Delete(id string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, ok := sm.sessions[id]; ok {
		delete(sm.sessions, id)
		return true
	}
	return false
}

// Purge removes all expired sessions and returns how many were dropped.
func (sm *SessionManager) Purge() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	now := sm.now()
	n := 0
	for id, s := range sm.sessions {
		if now.After(s.Expires) {
			delete(sm.sessions, id)
			n++
		}
	}
	return n
}
