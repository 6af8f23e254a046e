package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"energy-forecast/internal/auth"
	"energy-forecast/internal/config"
	"energy-forecast/internal/handlers"
	"energy-forecast/internal/prediction"
	"energy-forecast/internal/repository"
	"energy-forecast/internal/services"
	"energy-forecast/internal/weather"
	"energy-forecast/pkg/database"
	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logLevel := logging.InfoLevel
	if cfg.Logging.Level == "debug" {
		logLevel = logging.DebugLevel
	}

	logger := logging.NewStructuredLogger("energy-forecast-api", "1.0.0", logLevel)

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting energy forecast API server", logging.Fields{
		"version":     "1.0.0",
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"db_host":     cfg.Database.Host,
		"db_name":     cfg.Database.Database,
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("energy_forecast")

	// Initialize database
	dbConfig := &database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}

	db, err := database.NewPostgresDB(dbConfig, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	// Initialize repository
	repo := repository.NewForecastRepository(db, logger, metricsCollector)

	// Initialize weather client
	weatherClient, err := weather.NewClient(
		cfg.Weather.APIKey,
		cfg.Weather.APIURL,
		cfg.Weather.Timeout,
		cfg.Weather.RateLimitRPS,
		cfg.Weather.RateLimitBurst,
		logger,
		metricsCollector,
	)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to create weather client", logging.Fields{}, err)
	}

	// Load prediction models; placeholder coefficients when unconfigured
	solarModel, err := prediction.LoadOrPlaceholder(cfg.Models.SolarModelPath, prediction.PlaceholderSolarModel())
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to load solar model", logging.Fields{
			"path": cfg.Models.SolarModelPath,
		}, err)
	}

	windModel, err := prediction.LoadOrPlaceholder(cfg.Models.WindModelPath, prediction.PlaceholderWindModel())
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to load wind model", logging.Fields{
			"path": cfg.Models.WindModelPath,
		}, err)
	}

	logger.Info(ctx, "[STARTUP] Prediction models loaded", logging.Fields{
		"solar_model": solarModel.Name,
		"wind_model":  windModel.Name,
	})

	// Initialize auth
	sessions := auth.NewSessionStore(cfg.Auth.SessionTTL)
	authMW := auth.NewMiddleware(sessions, repo, logger)

	// Initialize services
	authService := services.NewAuthService(repo, sessions, logger, metricsCollector)
	forecastService := services.NewForecastService(repo, weatherClient, solarModel, windModel, logger, metricsCollector)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, cfg.Auth.SessionTTL, logger, metricsCollector)
	forecastHandler := handlers.NewForecastHandler(forecastService, authMW, logger, metricsCollector)

	// Setup router
	router := mux.NewRouter()

	// Register routes
	authHandler.RegisterRoutes(router)
	forecastHandler.RegisterRoutes(router)

	// API documentation
	router.HandleFunc("/api/docs/openapi.json", handlers.OpenAPISpec).Methods("GET")
	router.HandleFunc("/api/docs", handlers.SwaggerUI).Methods("GET")

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
