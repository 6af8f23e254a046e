package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"

	"energy-forecast/internal/models"
	"energy-forecast/pkg/database"
	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

// ErrUsernameTaken is returned when registration hits the username
// uniqueness constraint.
var ErrUsernameTaken = errors.New("username already taken")

// ForecastRepository provides data access for users and forecasts.
type ForecastRepository interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)

	// Forecast persistence. All rows produced by one request commit in
	// a single transaction or none do. Rows conflicting on
	// (user_id, forecast_date) are skipped, never overwritten.
	InsertForecastBatch(ctx context.Context, solar []*models.SolarForecast, wind []*models.WindForecast) (BatchResult, error)
	ListSolarForecasts(ctx context.Context, userID int64) ([]*models.SolarForecast, error)
	ListWindForecasts(ctx context.Context, userID int64) ([]*models.WindForecast, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// forecastRepository implements ForecastRepository
type forecastRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewForecastRepository creates a new forecast repository
func NewForecastRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) ForecastRepository {
	return &forecastRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// CreateUser inserts a new user and fills in the generated id.
func (r *forecastRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (plant_name, latitude, longitude, city, username, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := r.db.DB().QueryRowContext(ctx, query,
		user.PlantName,
		user.Latitude,
		user.Longitude,
		user.City,
		user.Username,
		user.PasswordHash,
		user.CreatedAt,
	).Scan(&user.ID)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrUsernameTaken
		}
		r.metrics.RecordDBError("insert_user_error")
		return fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_CREATE_USER] User created", logging.Fields{
		"user_id":  user.ID,
		"username": user.Username,
	})

	return nil
}

// GetUserByUsername retrieves a user by unique username
func (r *forecastRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT id, plant_name, latitude, longitude, city, username, password_hash, created_at
		FROM users
		WHERE username = $1
	`

	var user models.User
	err := r.db.GetContext(ctx, "get_user_by_username", &user, query, username)

	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "user", ID: username}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// GetUserByID retrieves a user by id
func (r *forecastRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT id, plant_name, latitude, longitude, city, username, password_hash, created_at
		FROM users
		WHERE id = $1
	`

	var user models.User
	err := r.db.GetContext(ctx, "get_user_by_id", &user, query, id)

	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "user", ID: strconv.FormatInt(id, 10)}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// ListUsers retrieves registered users with pagination
func (r *forecastRepository) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `
		SELECT id, plant_name, latitude, longitude, city, username, password_hash, created_at
		FROM users
		ORDER BY id
		LIMIT $1 OFFSET $2
	`

	var users []*models.User
	err := r.db.SelectContext(ctx, "list_users", &users, query, limit, offset)

	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return users, nil
}

// BatchResult reports how a forecast batch landed: rows actually
// inserted versus rows skipped on an existing (user_id, forecast_date).
type BatchResult struct {
	SolarInserted int
	SolarSkipped  int
	WindInserted  int
	WindSkipped   int
}

// InsertForecastBatch persists all forecast rows produced by one
// request in a single transaction. Rows whose (user_id, forecast_date)
// key already exists are silently skipped; a commit failure rolls the
// whole batch back.
func (r *forecastRepository) InsertForecastBatch(ctx context.Context, solar []*models.SolarForecast, wind []*models.WindForecast) (BatchResult, error) {
	var result BatchResult

	if len(solar) == 0 && len(wind) == 0 {
		return result, nil
	}

	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		r.metrics.PipelineBatchSize.Observe(float64(len(solar) + len(wind)))
		r.logger.Debug(ctx, "[REPO_BATCH_INSERT] Forecast batch insert completed", logging.Fields{
			"solar_rows":  len(solar),
			"wind_rows":   len(wind),
			"duration_ms": duration.Milliseconds(),
		})
	}()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if len(solar) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO solar_forecasts (
				user_id, forecast_date,
				temperature_celsius, max_temperature_celsius, sunlight_intensity,
				predicted_energy_mw, created_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (user_id, forecast_date) DO NOTHING
		`)
		if err != nil {
			return BatchResult{}, fmt.Errorf("failed to prepare solar statement: %w", err)
		}
		defer stmt.Close()

		for _, fc := range solar {
			res, err := stmt.ExecContext(ctx,
				fc.UserID,
				fc.ForecastDate,
				fc.TemperatureCelsius,
				fc.MaxTemperatureCelsius,
				fc.SunlightIntensity,
				fc.PredictedEnergyMW,
				fc.CreatedAt,
			)
			if err != nil {
				return BatchResult{}, fmt.Errorf("failed to insert solar forecast: %w", err)
			}
			if n, err := res.RowsAffected(); err == nil {
				result.SolarInserted += int(n)
			}
		}
		result.SolarSkipped = len(solar) - result.SolarInserted
	}

	if len(wind) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO wind_forecasts (
				user_id, forecast_date,
				wind_speed_ms, wind_direction_deg,
				predicted_energy_mw, created_at
			)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id, forecast_date) DO NOTHING
		`)
		if err != nil {
			return BatchResult{}, fmt.Errorf("failed to prepare wind statement: %w", err)
		}
		defer stmt.Close()

		for _, fc := range wind {
			res, err := stmt.ExecContext(ctx,
				fc.UserID,
				fc.ForecastDate,
				fc.WindSpeedMS,
				fc.WindDirectionDeg,
				fc.PredictedEnergyMW,
				fc.CreatedAt,
			)
			if err != nil {
				return BatchResult{}, fmt.Errorf("failed to insert wind forecast: %w", err)
			}
			if n, err := res.RowsAffected(); err == nil {
				result.WindInserted += int(n)
			}
		}
		result.WindSkipped = len(wind) - result.WindInserted
	}

	if err := tx.Commit(); err != nil {
		r.metrics.RecordDBError("commit_error")
		return BatchResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.metrics.RecordForecastRows("solar", result.SolarInserted, result.SolarSkipped)
	r.metrics.RecordForecastRows("wind", result.WindInserted, result.WindSkipped)

	return result, nil
}

// ListSolarForecasts retrieves a user's solar forecasts ordered by date
func (r *forecastRepository) ListSolarForecasts(ctx context.Context, userID int64) ([]*models.SolarForecast, error) {
	query := `
		SELECT id, user_id, forecast_date,
		       temperature_celsius, max_temperature_celsius, sunlight_intensity,
		       predicted_energy_mw, created_at
		FROM solar_forecasts
		WHERE user_id = $1
		ORDER BY forecast_date
	`

	var forecasts []*models.SolarForecast
	err := r.db.SelectContext(ctx, "list_solar_forecasts", &forecasts, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list solar forecasts: %w", err)
	}

	return forecasts, nil
}

// ListWindForecasts retrieves a user's wind forecasts ordered by date
func (r *forecastRepository) ListWindForecasts(ctx context.Context, userID int64) ([]*models.WindForecast, error) {
	query := `
		SELECT id, user_id, forecast_date,
		       wind_speed_ms, wind_direction_deg,
		       predicted_energy_mw, created_at
		FROM wind_forecasts
		WHERE user_id = $1
		ORDER BY forecast_date
	`

	var forecasts []*models.WindForecast
	err := r.db.SelectContext(ctx, "list_wind_forecasts", &forecasts, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wind forecasts: %w", err)
	}

	return forecasts, nil
}

// HealthCheck performs a repository health check
func (r *forecastRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
