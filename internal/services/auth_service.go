package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"energy-forecast/internal/auth"
	"energy-forecast/internal/models"
	"energy-forecast/internal/repository"
	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

// ErrInvalidCredentials is returned on login with an unknown username
// or a wrong password. The two cases are deliberately indistinguishable.
var ErrInvalidCredentials = errors.New("invalid credentials")

// RegisterRequest carries the fields a plant owner supplies at signup.
type RegisterRequest struct {
	PlantName string  `json:"plant_name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city"`
	Username  string  `json:"username"`
	Password  string  `json:"password"`
}

// AuthService handles registration and the session lifecycle.
type AuthService struct {
	repo     repository.ForecastRepository
	sessions *auth.SessionStore
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// NewAuthService creates a new auth service
func NewAuthService(repo repository.ForecastRepository, sessions *auth.SessionStore, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *AuthService {
	return &AuthService{
		repo:     repo,
		sessions: sessions,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// Register validates the request, hashes the password and persists the
// user. Returns repository.ErrUsernameTaken on a duplicate username.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	if err := validateRegistration(req); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		PlantName:    strings.TrimSpace(req.PlantName),
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		City:         strings.TrimSpace(req.City),
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "[AUTH_REGISTER] User registered", logging.Fields{
		"user_id":  user.ID,
		"username": user.Username,
		"city":     user.City,
	})

	return user, nil
}

// Login verifies credentials and opens a session. The returned token
// goes into the session cookie.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		var notFound *repository.NotFoundError
		if errors.As(err, &notFound) {
			s.metrics.LoginsTotal.WithLabelValues("invalid").Inc()
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		s.metrics.LoginsTotal.WithLabelValues("invalid").Inc()
		s.logger.Warn(ctx, "[AUTH_LOGIN_FAILED] Wrong password", logging.Fields{
			"username": username,
		})
		return "", nil, ErrInvalidCredentials
	}

	token := s.sessions.Create(user.ID)
	s.metrics.LoginsTotal.WithLabelValues("success").Inc()
	s.metrics.ActiveSessions.Set(float64(s.sessions.Len()))

	s.logger.Info(ctx, "[AUTH_LOGIN] User logged in", logging.Fields{
		"user_id": user.ID,
	})

	return token, user, nil
}

// Logout destroys the session for a token. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, token string) {
	s.sessions.Destroy(token)
	s.metrics.ActiveSessions.Set(float64(s.sessions.Len()))
	s.logger.Info(ctx, "[AUTH_LOGOUT] Session destroyed", logging.Fields{})
}

// validateRegistration checks required fields. Coordinates only need to
// be decimal degrees; bounds are left to the upstream weather API.
func validateRegistration(req RegisterRequest) error {
	if strings.TrimSpace(req.PlantName) == "" {
		return &models.ValidationError{Field: "plant_name", Message: "plant_name is required"}
	}
	if strings.TrimSpace(req.City) == "" {
		return &models.ValidationError{Field: "city", Message: "city is required"}
	}
	if strings.TrimSpace(req.Username) == "" {
		return &models.ValidationError{Field: "username", Message: "username is required"}
	}
	if len(req.Password) < 8 {
		return &models.ValidationError{Field: "password", Message: "password must be at least 8 characters"}
	}
	return nil
}
