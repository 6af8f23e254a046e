package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"energy-forecast/internal/auth"
	"energy-forecast/internal/services"
	"energy-forecast/internal/weather"
	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

// ForecastHandler handles forecast pipeline and dashboard endpoints
type ForecastHandler struct {
	forecastService *services.ForecastService
	authMW          *auth.Middleware
	logger          *logging.StructuredLogger
	metrics         *metrics.Collector
}

// NewForecastHandler creates a new forecast handler
func NewForecastHandler(
	forecastService *services.ForecastService,
	authMW *auth.Middleware,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *ForecastHandler {
	return &ForecastHandler{
		forecastService: forecastService,
		authMW:          authMW,
		logger:          logger,
		metrics:         metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Predict handles GET /predict and GET /forecast: it runs the full
// pipeline for the authenticated user's registered coordinates.
func (h *ForecastHandler) Predict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/predict").Observe(time.Since(startTime).Seconds())
	}()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		// RequireAuth guarantees an identity; reaching here is a wiring bug.
		sendError(w, r, h.metrics, "authentication required", http.StatusUnauthorized)
		return
	}

	result, err := h.forecastService.GenerateForecasts(ctx, identity)
	if err != nil {
		h.logger.Error(ctx, "[API_PREDICT_ERROR] Forecast pipeline failed", logging.Fields{
			"user_id": identity.UserID,
			"lat":     identity.Latitude,
			"lon":     identity.Longitude,
		}, err)

		switch {
		case errors.Is(err, weather.ErrWeatherFetch), errors.Is(err, weather.ErrMalformedResponse):
			h.metrics.RecordAPIError("weather_error", "/predict")
		default:
			h.metrics.RecordAPIError("internal_error", "/predict")
		}

		sendError(w, r, h.metrics, "failed to generate forecasts", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/predict", "GET", "200")
	sendJSON(w, map[string]interface{}{
		"message": "Predictions stored successfully",
		"result":  result,
	}, http.StatusOK)
}

// Dashboard handles GET /dashboard: the current user's stored forecast
// rows.
func (h *ForecastHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/dashboard").Observe(time.Since(startTime).Seconds())
	}()

	identity, _ := auth.IdentityFromContext(ctx)

	solar, wind, err := h.forecastService.ListForecasts(ctx, identity.UserID)
	if err != nil {
		h.logger.Error(ctx, "[API_DASHBOARD_ERROR] Failed to load forecasts", logging.Fields{
			"user_id": identity.UserID,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/dashboard")
		sendError(w, r, h.metrics, "failed to load forecasts", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/dashboard", "GET", "200")
	sendJSON(w, map[string]interface{}{
		"solar": solar,
		"wind":  wind,
	}, http.StatusOK)
}

// DashboardData handles GET /dashboard-data: chart series consumed by
// the dashboard front end.
func (h *ForecastHandler) DashboardData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, _ := auth.IdentityFromContext(ctx)

	data, err := h.forecastService.Dashboard(ctx, identity.UserID)
	if err != nil {
		h.logger.Error(ctx, "[API_DASHBOARD_DATA_ERROR] Failed to load chart data", logging.Fields{
			"user_id": identity.UserID,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/dashboard-data")
		sendError(w, r, h.metrics, "failed to load forecast data", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/dashboard-data", "GET", "200")
	sendJSON(w, data, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *ForecastHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	sendJSON(w, status, http.StatusOK)
}

// RegisterRoutes registers forecast routes. /forecast is an alias kept
// for clients of the older revision of the API.
func (h *ForecastHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/predict", h.authMW.RequireAuth(h.Predict)).Methods("GET")
	router.HandleFunc("/forecast", h.authMW.RequireAuth(h.Predict)).Methods("GET")
	router.HandleFunc("/dashboard", h.authMW.RequireAuth(h.Dashboard)).Methods("GET")
	router.HandleFunc("/dashboard-data", h.authMW.RequireAuth(h.DashboardData)).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}

// sendJSON sends a JSON response
func sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func sendError(w http.ResponseWriter, r *http.Request, m *metrics.Collector, message string, statusCode int) {
	m.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))
	sendJSON(w, ErrorResponse{Error: message}, statusCode)
}
