package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"energy-forecast/internal/models"
	"energy-forecast/pkg/logging"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "session_token"

type identityKey struct{}

// Identity is what the gate exposes to the core: the authenticated
// user's id and registered plant coordinates.
type Identity struct {
	UserID    int64
	Latitude  float64
	Longitude float64
}

// UserLoader resolves a session's user id to the stored user record.
type UserLoader interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// Middleware authenticates requests before any core logic runs.
type Middleware struct {
	sessions *SessionStore
	users    UserLoader
	logger   *logging.StructuredLogger
}

// NewMiddleware creates the authentication middleware.
func NewMiddleware(sessions *SessionStore, users UserLoader, logger *logging.StructuredLogger) *Middleware {
	return &Middleware{
		sessions: sessions,
		users:    users,
		logger:   logger,
	}
}

// RequireAuth rejects the request with 401 unless a live session exists.
// On success the request context carries the caller's Identity and the
// user id for log correlation.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookie)
		if err != nil {
			m.reject(w, r)
			return
		}

		userID, err := m.sessions.Resolve(cookie.Value)
		if err != nil {
			m.reject(w, r)
			return
		}

		user, err := m.users.GetUserByID(r.Context(), userID)
		if err != nil {
			m.logger.Warn(r.Context(), "[AUTH_STALE_SESSION] Session user no longer exists", logging.Fields{
				"user_id": userID,
			})
			m.sessions.Destroy(cookie.Value)
			m.reject(w, r)
			return
		}

		identity := Identity{
			UserID:    user.ID,
			Latitude:  user.Latitude,
			Longitude: user.Longitude,
		}

		ctx := context.WithValue(r.Context(), identityKey{}, identity)
		ctx = context.WithValue(ctx, logging.UserIDKey, user.ID)
		next(w, r.WithContext(ctx))
	}
}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}

func (m *Middleware) reject(w http.ResponseWriter, r *http.Request) {
	m.logger.Debug(r.Context(), "[AUTH_REJECTED] Unauthenticated request", logging.Fields{
		"path": r.URL.Path,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "authentication required"})
}
