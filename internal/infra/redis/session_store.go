package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"group-quiz-service/internal/app"
	"github.com/redis/go-redis/v9"
)

// releaseMarker deletes the group marker only if it still names the given session.
var releaseMarker = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshMarker extends the group marker only if it still names the given session.
var refreshMarker = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Sessions themselves live in a local map; they hold timers and channels and
//     cannot leave the process.
//   - Redis holds an active_quiz:{groupID} marker set with SETNX, so two engine
//     processes sharing the Redis never run a quiz in the same group at once.
//   - The marker carries a TTL so a crashed process does not lock a group forever.
//     Sessions refresh it on every question, so the TTL bounds one question, not a quiz.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration

	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Insert(groupID string, session *app.Session) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[groupID]; ok {
		return false, nil
	}
	ok, err := s.client.SetNX(context.Background(), markerKey(groupID), session.ID(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim group %s: %w", groupID, err)
	}
	if !ok {
		// another process runs a quiz in this group
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
	// best-effort; the marker expires on its own if this fails
	_ = releaseMarker.Run(context.Background(), s.client, []string{markerKey(groupID)}, session.ID()).Err()
	return true
}

func (s *SessionStore) Refresh(groupID string, session *app.Session) error {
	s.mu.RLock()
	current, ok := s.sessions[groupID]
	s.mu.RUnlock()
	if !ok || current != session {
		return nil
	}
	n, err := refreshMarker.Run(context.Background(), s.client, []string{markerKey(groupID)}, session.ID(), s.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh group %s: %w", groupID, err)
	}
	if n == 0 {
		return fmt.Errorf("refresh group %s: marker lost", groupID)
	}
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

func markerKey(groupID string) string {
	return "active_quiz:" + groupID
}
