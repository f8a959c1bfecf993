package http

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionManager manages MCP sessions for Streamable HTTP
type SessionManager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	now      func() time.Time
}

// Session represents an MCP session
type Session struct {
	ID              string
	Created         time.Time
	LastSeen        time.Time
	Initialized     bool
	ProtocolVersion string
	Transport       *StreamableHTTPTransport
}

// NewSessionManager creates a new session manager
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// CreateSession registers a session under a fresh id and returns it.
func (sm *SessionManager) CreateSession() string {
	sessionID := uuid.NewString()
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := sm.now()
	sm.sessions[sessionID] = &Session{
		ID:       sessionID,
		Created:  now,
		LastSeen: now,
	}
	return sessionID
}

// TouchSession refreshes LastSeen and reports whether the session exists.
func (sm *SessionManager) TouchSession(sessionID string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, exists := sm.sessions[sessionID]
	if exists {
		session.LastSeen = sm.now()
	}
	return exists
}

func (sm *SessionManager) HasSession(sessionID string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	_, exists := sm.sessions[sessionID]
	return exists
}

func (sm *SessionManager) MarkInitialized(sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if session, exists := sm.sessions[sessionID]; exists {
		session.Initialized = true
	}
}

func (sm *SessionManager) IsInitialized(sessionID string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	session, exists := sm.sessions[sessionID]
	return exists && session.Initialized
}

func (sm *SessionManager) SetProtocolVersion(sessionID, version string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if session, exists := sm.sessions[sessionID]; exists {
		session.ProtocolVersion = version
	}
}

func (sm *SessionManager) GetProtocolVersion(sessionID string) (string, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	session, exists := sm.sessions[sessionID]
	if !exists {
		return "", false
	}
	return session.ProtocolVersion, true
}

// SetTransport binds an open SSE stream to the session. It closes any stream it replaces.
func (sm *SessionManager) SetTransport(sessionID string, transport *StreamableHTTPTransport) bool {
	sm.mu.Lock()
	session, exists := sm.sessions[sessionID]
	var previous *StreamableHTTPTransport
	if exists {
		previous = session.Transport
		session.Transport = transport
		session.LastSeen = sm.now()
	}
	sm.mu.Unlock()

	if previous != nil && previous != transport {
		previous.Close()
	}
	return exists
}

// ClearTransportIfMatch unbinds transport unless a newer stream replaced it.
func (sm *SessionManager) ClearTransportIfMatch(sessionID string, transport *StreamableHTTPTransport) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if session, exists := sm.sessions[sessionID]; exists && session.Transport == transport {
		session.Transport = nil
	}
}

// Transports returns the open SSE streams of every session.
func (sm *SessionManager) Transports() []*StreamableHTTPTransport {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]*StreamableHTTPTransport, 0, len(sm.sessions))
	for _, session := range sm.sessions {
		if session.Transport != nil && !session.Transport.IsClosed() {
			out = append(out, session.Transport)
		}
	}
	return out
}

// Count returns the number of live sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// RemoveSession removes a session
func (sm *SessionManager) RemoveSession(sessionID string) {
	sm.mu.Lock()
	session, exists := sm.sessions[sessionID]
	delete(sm.sessions, sessionID)
	sm.mu.Unlock()

	if exists && session.Transport != nil {
		session.Transport.Close()
	}
}

// CleanupSessions removes expired sessions and returns how many were dropped.
func (sm *SessionManager) CleanupSessions(timeout time.Duration) int {
	sm.mu.Lock()
	now := sm.now()
	var expired []*Session
	for sessionID, session := range sm.sessions {
		if now.Sub(session.LastSeen) > timeout {
			expired = append(expired, session)
			delete(sm.sessions, sessionID)
		}
	}
	sm.mu.Unlock()

	for _, session := range expired {
		if session.Transport != nil {
			session.Transport.Close()
		}
	}
	return len(expired)
}
