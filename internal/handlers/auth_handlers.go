package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"energy-forecast/internal/auth"
	"energy-forecast/internal/models"
	"energy-forecast/internal/repository"
	"energy-forecast/internal/services"
	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

// AuthHandler handles registration and session endpoints
type AuthHandler struct {
	authService *services.AuthService
	sessionTTL  time.Duration
	logger      *logging.StructuredLogger
	metrics     *metrics.Collector
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *services.AuthService, sessionTTL time.Duration, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		sessionTTL:  sessionTTL,
		logger:      logger,
		metrics:     metricsCollector,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register handles POST /api/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/register").Observe(time.Since(startTime).Seconds())
	}()

	var req services.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, r, h.metrics, "invalid JSON body", http.StatusBadRequest)
		return
	}

	user, err := h.authService.Register(ctx, req)
	if err != nil {
		var validation *models.ValidationError
		switch {
		case errors.As(err, &validation):
			sendError(w, r, h.metrics, validation.Message, http.StatusBadRequest)
		case errors.Is(err, repository.ErrUsernameTaken):
			sendError(w, r, h.metrics, "username already taken", http.StatusConflict)
		default:
			h.logger.Error(ctx, "[API_REGISTER_ERROR] Registration failed", logging.Fields{
				"username": req.Username,
			}, err)
			h.metrics.RecordAPIError("internal_error", "/api/register")
			sendError(w, r, h.metrics, "registration failed", http.StatusInternalServerError)
		}
		return
	}

	h.metrics.RecordAPIRequest("/api/register", "POST", "201")
	sendJSON(w, map[string]interface{}{
		"message": "registration successful",
		"user_id": user.ID,
	}, http.StatusCreated)
}

// Login handles POST /api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/login").Observe(time.Since(startTime).Seconds())
	}()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, r, h.metrics, "invalid JSON body", http.StatusBadRequest)
		return
	}

	token, user, err := h.authService.Login(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			sendError(w, r, h.metrics, "invalid credentials", http.StatusUnauthorized)
			return
		}
		h.logger.Error(ctx, "[API_LOGIN_ERROR] Login failed", logging.Fields{
			"username": req.Username,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/login")
		sendError(w, r, h.metrics, "login failed", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.sessionTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	h.metrics.RecordAPIRequest("/api/login", "POST", "200")
	sendJSON(w, map[string]interface{}{
		"message": "login successful",
		"user_id": user.ID,
	}, http.StatusOK)
}

// Logout handles POST /api/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.SessionCookie); err == nil {
		h.authService.Logout(r.Context(), cookie.Value)
	}

	// Expire the cookie client-side as well
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	h.metrics.RecordAPIRequest("/api/logout", "POST", "200")
	sendJSON(w, map[string]string{"message": "logged out"}, http.StatusOK)
}

// RegisterRoutes registers auth routes
func (h *AuthHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/register", h.Register).Methods("POST")
	router.HandleFunc("/api/login", h.Login).Methods("POST")
	router.HandleFunc("/api/logout", h.Logout).Methods("POST")
}
