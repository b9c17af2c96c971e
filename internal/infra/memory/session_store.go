package memory

import (
	"context"
	"sync"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	codes    map[string]string // join code -> session id, live sessions only
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domain.Session),
		codes:    make(map[string]string),
	}
}

func (s *SessionStore) Create(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.codes[session.JoinCode]; taken {
		return domain.ErrJoinCodeTaken
	}
	s.sessions[session.ID] = session.Clone()
	s.codes[session.JoinCode] = session.ID
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (s *SessionStore) GetByJoinCode(_ context.Context, code string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codes[code]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return s.sessions[id].Clone(), nil
}

// Update replaces the stored record when session was read at the stored
// version and frees the join code of completed sessions.
func (s *SessionStore) Update(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[session.ID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if stored.Version != session.Version {
		return domain.ErrStaleSession
	}
	next := session.Clone()
	next.Version++
	s.sessions[session.ID] = next
	if session.Status == domain.StatusCompleted && s.codes[session.JoinCode] == session.ID {
		delete(s.codes, session.JoinCode)
	}
	return nil
}
