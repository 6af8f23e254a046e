package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"energy-forecast/internal/config"
	"energy-forecast/internal/prediction"
	"energy-forecast/internal/repository"
	"energy-forecast/internal/services"
	"energy-forecast/internal/weather"
	"energy-forecast/pkg/database"
	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

// forecaster runs the forecast pipeline for every registered plant owner,
// either once or on a fixed interval.
func main() {
	var (
		interval = flag.Duration("interval", 0, "run continuously at this interval (0 = run once and exit)")
		timeout  = flag.Duration("timeout", 10*time.Minute, "timeout for a single full run")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logLevel := logging.InfoLevel
	if cfg.Logging.Level == "debug" {
		logLevel = logging.DebugLevel
	}

	logger := logging.NewStructuredLogger("energy-forecaster", "1.0.0", logLevel)
	ctx := context.Background()

	logger.Info(ctx, "[STARTUP] Starting batch forecaster", logging.Fields{
		"interval": interval.String(),
		"db_host":  cfg.Database.Host,
		"db_name":  cfg.Database.Database,
	})

	metricsCollector := metrics.NewCollector("energy_forecaster")

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

	repo := repository.NewForecastRepository(db, logger, metricsCollector)

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

	forecastService := services.NewForecastService(repo, weatherClient, solarModel, windModel, logger, metricsCollector)

	runOnce := func() {
		runCtx, cancel := context.WithTimeout(ctx, *timeout)
		defer cancel()

		start := time.Now()
		succeeded, failed, err := forecastService.RunAll(runCtx)
		if err != nil {
			logger.Error(ctx, "[RUN_ERROR] Batch run aborted", logging.Fields{
				"succeeded": succeeded,
				"failed":    failed,
			}, err)
			return
		}

		logger.Info(ctx, "[RUN_COMPLETE] Batch run finished", logging.Fields{
			"succeeded":   succeeded,
			"failed":      failed,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}

	if *interval <= 0 {
		runOnce()
		logger.Info(ctx, "[SHUTDOWN_COMPLETE] Forecaster finished", logging.Fields{})
		return
	}

	runOnce()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			runOnce()
		case <-quit:
			logger.Info(ctx, "[SHUTDOWN_COMPLETE] Forecaster stopped", logging.Fields{})
			return
		}
	}
}
