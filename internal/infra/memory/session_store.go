package memory

import (
	"sync"

	"group-quiz-service/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Insert(groupID string, session *app.Session) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[groupID]; ok {
		return false, nil
	}
	s.sessions[groupID] = session
	return true, nil
}

func (s *SessionStore) Get(groupID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[groupID]
	return session, ok
}

func (s *SessionStore) Delete(groupID string, session *app.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[groupID]
	if !ok || current != session {
		return false
	}
	delete(s.sessions, groupID)
	return true
}

// Refresh is a no-op; in-process claims do not expire.
func (s *SessionStore) Refresh(string, *app.Session) error {
	return nil
}

func (s *SessionStore) List() []*app.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}
