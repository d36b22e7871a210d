package memory

import (
	"context"
	"sync"
	"time"

	"hifdh-quest-service/internal/app"
)

// DefaultIdleTTL is how long a session nobody is connected to survives.
const DefaultIdleTTL = 10 * time.Minute

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	factory app.SessionFactory
	idleTTL time.Duration

	mu       sync.RWMutex
	sessions map[string]*app.GameSession
}

type StoreOption func(*SessionStore)

// WithIdleTTL sets how long an idle session is kept for a reconnect.
func WithIdleTTL(ttl time.Duration) StoreOption {
	return func(s *SessionStore) {
		if ttl > 0 {
			s.idleTTL = ttl
		}
	}
}

func NewSessionStore(factory app.SessionFactory, opts ...StoreOption) *SessionStore {
	s := &SessionStore{
		factory:  factory,
		idleTTL:  DefaultIdleTTL,
		sessions: make(map[string]*app.GameSession),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionStore) GetOrCreate(sessionID string) *app.GameSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[sessionID]; ok {
		return session
	}
	session := s.factory(sessionID)
	s.sessions[sessionID] = session
	return session
}

func (s *SessionStore) Get(sessionID string) (*app.GameSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

// Touch is a no-op; idleness is tracked by the sessions themselves.
func (s *SessionStore) Touch(context.Context, string) error {
	return nil
}

// Sweep drops sessions that have been idle for the idle TTL.
func (s *SessionStore) Sweep(context.Context) int {
	s.mu.Lock()
	var retired []*app.GameSession
	for id, session := range s.sessions {
		if session.Retire(s.idleTTL) {
			delete(s.sessions, id)
			retired = append(retired, session)
		}
	}
	s.mu.Unlock()

	for _, session := range retired {
		session.Close()
	}
	return len(retired)
}
