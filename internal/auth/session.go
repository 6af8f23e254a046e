package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNoSession is returned when a token is unknown or expired.
var ErrNoSession = errors.New("no active session")

type session struct {
	userID    int64
	expiresAt time.Time
}

// SessionStore is an in-memory token-to-user map with TTL expiry.
// Sessions do not survive a restart; users simply log in again.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]session
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionStore creates a session store with the given TTL.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create issues a new session token for a user.
func (s *SessionStore) Create(userID int64) string {
	token := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[token] = session{
		userID:    userID,
		expiresAt: s.now().Add(s.ttl),
	}

	return token
}

// Resolve returns the user id for a token, or ErrNoSession if the
// token is unknown or expired. Expired sessions are removed lazily.
func (s *SessionStore) Resolve(token string) (int64, error) {
	if token == "" {
		return 0, ErrNoSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return 0, ErrNoSession
	}

	if s.now().After(sess.expiresAt) {
		delete(s.sessions, token)
		return 0, ErrNoSession
	}

	return sess.userID, nil
}

// Destroy removes a session token. Destroying an unknown token is a no-op.
func (s *SessionStore) Destroy(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// Len returns the number of stored sessions, including any not yet
// swept expired entries.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
