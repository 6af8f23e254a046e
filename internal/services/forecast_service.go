package services

import (
	"context"
	"fmt"
	"time"

	"energy-forecast/internal/auth"
	"energy-forecast/internal/models"
	"energy-forecast/internal/prediction"
	"energy-forecast/internal/repository"
	"energy-forecast/internal/weather"
	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

// PipelineResult summarizes one forecast pipeline run for a user.
type PipelineResult struct {
	Observations  int `json:"observations"`
	Skipped       int `json:"skipped"`
	SolarInserted int `json:"solar_inserted"`
	SolarSkipped  int `json:"solar_skipped"`
	WindInserted  int `json:"wind_inserted"`
	WindSkipped   int `json:"wind_skipped"`
}

// DashboardData is the chart payload for a user's dashboard: one
// (date, energy) series per forecast type.
type DashboardData struct {
	Solar []models.ForecastPoint `json:"solar"`
	Wind  []models.ForecastPoint `json:"wind"`
}

// ForecastService runs the weather-to-forecast pipeline:
// fetch -> extract features -> predict -> persist, sequentially,
// with no retries. A fetch or commit failure fails the whole run;
// an incomplete observation only skips itself.
type ForecastService struct {
	repo       repository.ForecastRepository
	fetcher    weather.ForecastFetcher
	solarModel prediction.Model
	windModel  prediction.Model
	logger     *logging.StructuredLogger
	metrics    *metrics.Collector
}

// NewForecastService creates a new forecast service
func NewForecastService(
	repo repository.ForecastRepository,
	fetcher weather.ForecastFetcher,
	solarModel prediction.Model,
	windModel prediction.Model,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *ForecastService {
	return &ForecastService{
		repo:       repo,
		fetcher:    fetcher,
		solarModel: solarModel,
		windModel:  windModel,
		logger:     logger,
		metrics:    metricsCollector,
	}
}

// GenerateForecasts runs the full pipeline for one authenticated user.
// Rows for (user, date) keys that already exist are skipped by the
// store, never overwritten.
func (s *ForecastService) GenerateForecasts(ctx context.Context, identity auth.Identity) (*PipelineResult, error) {
	startTime := time.Now()
	defer func() {
		s.metrics.PipelineDuration.Observe(time.Since(startTime).Seconds())
	}()

	log := s.logger.WithFields(logging.Fields{
		"user_id": identity.UserID,
		"lat":     identity.Latitude,
		"lon":     identity.Longitude,
	})

	log.Info(ctx, "[PIPELINE_START] Generating forecasts", logging.Fields{})

	observations, err := s.fetcher.FetchForecast(ctx, identity.Latitude, identity.Longitude)
	if err != nil {
		log.Error(ctx, "[PIPELINE_FETCH_ERROR] Weather data unavailable", logging.Fields{}, err)
		return nil, err
	}

	result := &PipelineResult{Observations: len(observations)}
	now := time.Now().UTC()

	var solarRows []*models.SolarForecast
	var windRows []*models.WindForecast

	for _, obs := range observations {
		solarFeatures, err := obs.SolarFeatures()
		if err != nil {
			s.skipObservation(ctx, log, obs, err, result)
			continue
		}

		windFeatures, err := obs.WindFeatures()
		if err != nil {
			s.skipObservation(ctx, log, obs, err, result)
			continue
		}

		solarEnergy, err := s.solarModel.Predict(solarFeatures)
		if err != nil {
			// Arity mismatch means extractor and model disagree; this
			// is a deployment fault, not a per-observation one.
			return nil, fmt.Errorf("solar prediction: %w", err)
		}
		s.metrics.PredictionsTotal.WithLabelValues("solar").Inc()

		windEnergy, err := s.windModel.Predict(windFeatures)
		if err != nil {
			return nil, fmt.Errorf("wind prediction: %w", err)
		}
		s.metrics.PredictionsTotal.WithLabelValues("wind").Inc()

		forecastDate := dateOnly(obs.Date)

		solarRows = append(solarRows, &models.SolarForecast{
			UserID:                identity.UserID,
			ForecastDate:          forecastDate,
			TemperatureCelsius:    solarFeatures[0],
			MaxTemperatureCelsius: solarFeatures[1],
			SunlightIntensity:     solarFeatures[2],
			PredictedEnergyMW:     solarEnergy,
			CreatedAt:             now,
		})

		windRows = append(windRows, &models.WindForecast{
			UserID:            identity.UserID,
			ForecastDate:      forecastDate,
			WindSpeedMS:       windFeatures[0],
			WindDirectionDeg:  windFeatures[1],
			PredictedEnergyMW: windEnergy,
			CreatedAt:         now,
		})
	}

	batch, err := s.repo.InsertForecastBatch(ctx, solarRows, windRows)
	if err != nil {
		log.Error(ctx, "[PIPELINE_PERSIST_ERROR] Forecast batch rolled back", logging.Fields{
			"solar_rows": len(solarRows),
			"wind_rows":  len(windRows),
		}, err)
		return nil, err
	}

	result.SolarInserted = batch.SolarInserted
	result.SolarSkipped = batch.SolarSkipped
	result.WindInserted = batch.WindInserted
	result.WindSkipped = batch.WindSkipped

	log.Info(ctx, "[PIPELINE_COMPLETE] Forecasts stored", logging.Fields{
		"observations":   result.Observations,
		"skipped":        result.Skipped,
		"solar_inserted": result.SolarInserted,
		"solar_skipped":  result.SolarSkipped,
		"wind_inserted":  result.WindInserted,
		"wind_skipped":   result.WindSkipped,
		"duration_ms":    time.Since(startTime).Milliseconds(),
	})

	return result, nil
}

// skipObservation logs and counts an observation dropped for missing
// fields. The rest of the batch continues.
func (s *ForecastService) skipObservation(ctx context.Context, log *logging.ContextLogger, obs models.WeatherObservation, err error, result *PipelineResult) {
	s.metrics.ObservationsSkipped.Inc()
	result.Skipped++
	log.Warn(ctx, "[PIPELINE_SKIP] Observation skipped", logging.Fields{
		"date":   obs.Date.Format("2006-01-02"),
		"reason": err.Error(),
	})
}

// Dashboard returns a user's stored forecasts, newest window first by
// date, shaped for the dashboard chart.
func (s *ForecastService) Dashboard(ctx context.Context, userID int64) (*DashboardData, error) {
	solar, err := s.repo.ListSolarForecasts(ctx, userID)
	if err != nil {
		return nil, err
	}

	wind, err := s.repo.ListWindForecasts(ctx, userID)
	if err != nil {
		return nil, err
	}

	data := &DashboardData{
		Solar: make([]models.ForecastPoint, 0, len(solar)),
		Wind:  make([]models.ForecastPoint, 0, len(wind)),
	}

	for _, fc := range solar {
		data.Solar = append(data.Solar, models.ForecastPoint{
			Date:   fc.ForecastDate.Format("2006-01-02"),
			Energy: fc.PredictedEnergyMW,
		})
	}

	for _, fc := range wind {
		data.Wind = append(data.Wind, models.ForecastPoint{
			Date:   fc.ForecastDate.Format("2006-01-02"),
			Energy: fc.PredictedEnergyMW,
		})
	}

	return data, nil
}

// ListForecasts returns the full stored forecast rows for a user.
func (s *ForecastService) ListForecasts(ctx context.Context, userID int64) ([]*models.SolarForecast, []*models.WindForecast, error) {
	solar, err := s.repo.ListSolarForecasts(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	wind, err := s.repo.ListWindForecasts(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	return solar, wind, nil
}

// RunAll generates forecasts for every registered user. Used by the
// batch forecaster; a failure for one user does not stop the others.
func (s *ForecastService) RunAll(ctx context.Context) (int, int, error) {
	const pageSize = 500

	succeeded, failed := 0, 0

	for offset := 0; ; offset += pageSize {
		users, err := s.repo.ListUsers(ctx, pageSize, offset)
		if err != nil {
			return succeeded, failed, fmt.Errorf("list users: %w", err)
		}
		if len(users) == 0 {
			break
		}

		for _, user := range users {
			identity := auth.Identity{
				UserID:    user.ID,
				Latitude:  user.Latitude,
				Longitude: user.Longitude,
			}

			if _, err := s.GenerateForecasts(ctx, identity); err != nil {
				failed++
				s.logger.Error(ctx, "[BATCH_USER_ERROR] Forecast run failed for user", logging.Fields{
					"user_id": user.ID,
				}, err)
				continue
			}
			succeeded++
		}

		if len(users) < pageSize {
			break
		}
	}

	return succeeded, failed, nil
}

// dateOnly truncates a timestamp to its calendar date in UTC. Forecast
// uniqueness is per calendar date, not per 3-hour slot.
func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
