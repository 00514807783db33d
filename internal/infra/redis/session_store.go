package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"aptitude-ace/internal/app"
	"github.com/redis/go-redis/v9"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions stay in process (each is bound to its view and timer); Redis holds
// a liveness marker with the session's mode and user so operators can see
// which sessions are open across instances.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

type sessionMarker struct {
	Mode    string `json:"mode"`
	TopicID string `json:"topicId,omitempty"`
	UserID  string `json:"userId,omitempty"`
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Put(session *app.Session) {
	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	marker, _ := json.Marshal(sessionMarker{
		Mode:    string(session.Mode()),
		TopicID: session.TopicID(),
		UserID:  session.UserID(),
	})
	// best-effort liveness marker
	if err := s.client.Set(context.Background(), s.key(session.ID()), marker, s.ttl).Err(); err != nil {
		log.Printf("session marker %s: %v", session.ID(), err)
	}
}

func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	_ = s.client.Del(context.Background(), s.key(sessionID)).Err()
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

func (s *SessionStore) key(sessionID string) string {
	return "quiz:session:" + sessionID
}
