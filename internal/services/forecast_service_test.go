package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"energy-forecast/internal/auth"
	"energy-forecast/internal/models"
	"energy-forecast/internal/prediction"
	"energy-forecast/internal/repository"
	"energy-forecast/internal/weather"
	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

var (
	testLogger  = logging.NewStructuredLogger("services-test", "test", logging.ErrorLevel)
	testMetrics = metrics.NewCollector("services_test")
)

func f(v float64) *float64 { return &v }

// fakeRepository is an in-memory ForecastRepository for pipeline tests.
// It honors the write-once rule on (user_id, forecast_date).
type fakeRepository struct {
	users        []*models.User
	solar        map[string]*models.SolarForecast
	wind         map[string]*models.WindForecast
	batchCalls   int
	insertErr    error
	listUsersErr error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		solar: make(map[string]*models.SolarForecast),
		wind:  make(map[string]*models.WindForecast),
	}
}

func forecastKey(userID int64, date time.Time) string {
	return fmt.Sprintf("%d/%s", userID, date.Format("2006-01-02"))
}

func (r *fakeRepository) CreateUser(ctx context.Context, user *models.User) error {
	for _, u := range r.users {
		if u.Username == user.Username {
			return repository.ErrUsernameTaken
		}
	}
	user.ID = int64(len(r.users) + 1)
	r.users = append(r.users, user)
	return nil
}

func (r *fakeRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	for _, u := range r.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, &repository.NotFoundError{Resource: "user", ID: username}
}

func (r *fakeRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, &repository.NotFoundError{Resource: "user", ID: strconv.FormatInt(id, 10)}
}

func (r *fakeRepository) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if r.listUsersErr != nil {
		return nil, r.listUsersErr
	}
	if offset >= len(r.users) {
		return nil, nil
	}
	end := offset + limit
	if end > len(r.users) {
		end = len(r.users)
	}
	return r.users[offset:end], nil
}

func (r *fakeRepository) InsertForecastBatch(ctx context.Context, solar []*models.SolarForecast, wind []*models.WindForecast) (repository.BatchResult, error) {
	r.batchCalls++
	if r.insertErr != nil {
		return repository.BatchResult{}, r.insertErr
	}

	var result repository.BatchResult
	for _, fc := range solar {
		key := forecastKey(fc.UserID, fc.ForecastDate)
		if _, exists := r.solar[key]; exists {
			result.SolarSkipped++
			continue
		}
		r.solar[key] = fc
		result.SolarInserted++
	}
	for _, fc := range wind {
		key := forecastKey(fc.UserID, fc.ForecastDate)
		if _, exists := r.wind[key]; exists {
			result.WindSkipped++
			continue
		}
		r.wind[key] = fc
		result.WindInserted++
	}
	return result, nil
}

func (r *fakeRepository) ListSolarForecasts(ctx context.Context, userID int64) ([]*models.SolarForecast, error) {
	var out []*models.SolarForecast
	for _, fc := range r.solar {
		if fc.UserID == userID {
			out = append(out, fc)
		}
	}
	return out, nil
}

func (r *fakeRepository) ListWindForecasts(ctx context.Context, userID int64) ([]*models.WindForecast, error) {
	var out []*models.WindForecast
	for _, fc := range r.wind {
		if fc.UserID == userID {
			out = append(out, fc)
		}
	}
	return out, nil
}

func (r *fakeRepository) HealthCheck(ctx context.Context) error { return nil }

// fakeFetcher returns canned observations or a canned error.
type fakeFetcher struct {
	observations []models.WeatherObservation
	err          error
}

func (f *fakeFetcher) FetchForecast(ctx context.Context, lat, lon float64) ([]models.WeatherObservation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.observations, nil
}

func completeObservation(day int) models.WeatherObservation {
	return models.WeatherObservation{
		Date:              time.Date(2026, 8, 30+day, 12, 0, 0, 0, time.UTC),
		Temperature:       f(20),
		MaxTemperature:    f(25),
		SunlightIntensity: f(70),
		WindSpeed:         f(4.2),
		WindDirection:     f(180),
	}
}

func newTestService(repo repository.ForecastRepository, fetcher weather.ForecastFetcher) *ForecastService {
	return NewForecastService(
		repo,
		fetcher,
		prediction.PlaceholderSolarModel(),
		prediction.PlaceholderWindModel(),
		testLogger,
		testMetrics,
	)
}

func TestGenerateForecasts_HappyPath(t *testing.T) {
	repo := newFakeRepository()
	fetcher := &fakeFetcher{observations: []models.WeatherObservation{
		completeObservation(0),
		completeObservation(1),
		completeObservation(2),
	}}

	service := newTestService(repo, fetcher)
	identity := auth.Identity{UserID: 1, Latitude: 48.1, Longitude: 11.5}

	result, err := service.GenerateForecasts(context.Background(), identity)
	if err != nil {
		t.Fatalf("GenerateForecasts() error: %v", err)
	}

	if result.Observations != 3 {
		t.Errorf("Observations = %d, want 3", result.Observations)
	}
	if result.Skipped != 0 {
		t.Errorf("Skipped = %d, want 0", result.Skipped)
	}
	if result.SolarInserted != 3 || result.WindInserted != 3 {
		t.Errorf("inserted solar=%d wind=%d, want 3 each", result.SolarInserted, result.WindInserted)
	}
	if repo.batchCalls != 1 {
		t.Errorf("batchCalls = %d, want 1 (all rows in one batch)", repo.batchCalls)
	}

	// Placeholder wind model: 0.5 * 4.2 = 2.10.
	key := forecastKey(1, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC))
	wind, ok := repo.wind[key]
	if !ok {
		t.Fatalf("wind forecast for %s not stored", key)
	}
	if wind.PredictedEnergyMW != 2.10 {
		t.Errorf("wind energy = %v, want 2.10", wind.PredictedEnergyMW)
	}
	if wind.WindSpeedMS != 4.2 || wind.WindDirectionDeg != 180 {
		t.Errorf("wind features = (%v, %v), want (4.2, 180)", wind.WindSpeedMS, wind.WindDirectionDeg)
	}

	solar, ok := repo.solar[key]
	if !ok {
		t.Fatalf("solar forecast for %s not stored", key)
	}
	// 0.05*20 + 0.02*25 + 0.04*70 = 4.30.
	if solar.PredictedEnergyMW != 4.30 {
		t.Errorf("solar energy = %v, want 4.30", solar.PredictedEnergyMW)
	}

	// Forecast dates are truncated to calendar days in UTC.
	if !solar.ForecastDate.Equal(time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ForecastDate = %v, want midnight UTC", solar.ForecastDate)
	}
}

func TestGenerateForecasts_SkipsIncompleteObservations(t *testing.T) {
	incomplete := completeObservation(1)
	incomplete.WindSpeed = nil // one missing field drops the whole observation

	repo := newFakeRepository()
	fetcher := &fakeFetcher{observations: []models.WeatherObservation{
		completeObservation(0),
		incomplete,
		completeObservation(2),
	}}

	service := newTestService(repo, fetcher)

	result, err := service.GenerateForecasts(context.Background(), auth.Identity{UserID: 1})
	if err != nil {
		t.Fatalf("GenerateForecasts() error: %v", err)
	}

	if result.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", result.Skipped)
	}
	if result.SolarInserted != 2 || result.WindInserted != 2 {
		t.Errorf("inserted solar=%d wind=%d, want 2 each", result.SolarInserted, result.WindInserted)
	}

	// The incomplete day produced neither a solar nor a wind row.
	key := forecastKey(1, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC))
	if _, ok := repo.solar[key]; ok {
		t.Error("solar row stored for incomplete observation")
	}
	if _, ok := repo.wind[key]; ok {
		t.Error("wind row stored for incomplete observation")
	}
}

func TestGenerateForecasts_FetchErrorFailsRun(t *testing.T) {
	repo := newFakeRepository()
	fetcher := &fakeFetcher{err: fmt.Errorf("%w: HTTP 503", weather.ErrWeatherFetch)}

	service := newTestService(repo, fetcher)

	_, err := service.GenerateForecasts(context.Background(), auth.Identity{UserID: 1})
	if !errors.Is(err, weather.ErrWeatherFetch) {
		t.Errorf("GenerateForecasts() error = %v, want ErrWeatherFetch", err)
	}
	if repo.batchCalls != 0 {
		t.Error("no batch should be attempted when the fetch fails")
	}
}

func TestGenerateForecasts_ArityMismatchIsFatal(t *testing.T) {
	repo := newFakeRepository()
	fetcher := &fakeFetcher{observations: []models.WeatherObservation{completeObservation(0)}}

	// A solar model expecting the wrong feature count is a deployment
	// fault: the run fails, nothing is persisted.
	badModel := &prediction.LinearModel{Name: "bad", Coefficients: []float64{1, 2}}
	service := NewForecastService(repo, fetcher, badModel, prediction.PlaceholderWindModel(), testLogger, testMetrics)

	_, err := service.GenerateForecasts(context.Background(), auth.Identity{UserID: 1})
	if !errors.Is(err, prediction.ErrFeatureArity) {
		t.Errorf("GenerateForecasts() error = %v, want ErrFeatureArity", err)
	}
	if repo.batchCalls != 0 {
		t.Error("no batch should be attempted on an arity mismatch")
	}
}

func TestGenerateForecasts_ExistingRowsSkipped(t *testing.T) {
	repo := newFakeRepository()
	fetcher := &fakeFetcher{observations: []models.WeatherObservation{
		completeObservation(0),
		completeObservation(1),
	}}

	service := newTestService(repo, fetcher)
	identity := auth.Identity{UserID: 1}

	if _, err := service.GenerateForecasts(context.Background(), identity); err != nil {
		t.Fatalf("first run: %v", err)
	}

	first := repo.solar[forecastKey(1, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC))]

	result, err := service.GenerateForecasts(context.Background(), identity)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if result.SolarInserted != 0 || result.SolarSkipped != 2 {
		t.Errorf("second run solar inserted=%d skipped=%d, want 0/2", result.SolarInserted, result.SolarSkipped)
	}
	if result.WindInserted != 0 || result.WindSkipped != 2 {
		t.Errorf("second run wind inserted=%d skipped=%d, want 0/2", result.WindInserted, result.WindSkipped)
	}

	// The original row survives untouched.
	second := repo.solar[forecastKey(1, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC))]
	if first != second {
		t.Error("existing forecast row was replaced")
	}
}

func TestGenerateForecasts_PersistErrorFailsRun(t *testing.T) {
	repo := newFakeRepository()
	repo.insertErr = errors.New("connection lost")
	fetcher := &fakeFetcher{observations: []models.WeatherObservation{completeObservation(0)}}

	service := newTestService(repo, fetcher)

	if _, err := service.GenerateForecasts(context.Background(), auth.Identity{UserID: 1}); err == nil {
		t.Error("GenerateForecasts() should fail when the batch insert fails")
	}
}

func TestDashboard(t *testing.T) {
	repo := newFakeRepository()
	fetcher := &fakeFetcher{observations: []models.WeatherObservation{
		completeObservation(0),
		completeObservation(1),
	}}

	service := newTestService(repo, fetcher)

	if _, err := service.GenerateForecasts(context.Background(), auth.Identity{UserID: 1}); err != nil {
		t.Fatal(err)
	}

	data, err := service.Dashboard(context.Background(), 1)
	if err != nil {
		t.Fatalf("Dashboard() error: %v", err)
	}

	if len(data.Solar) != 2 || len(data.Wind) != 2 {
		t.Fatalf("Dashboard() solar=%d wind=%d points, want 2 each", len(data.Solar), len(data.Wind))
	}

	for _, p := range data.Wind {
		if p.Energy != 2.10 {
			t.Errorf("wind point energy = %v, want 2.10", p.Energy)
		}
		if p.Date == "" {
			t.Error("wind point date is empty")
		}
	}

	// Another user sees nothing.
	other, err := service.Dashboard(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(other.Solar) != 0 || len(other.Wind) != 0 {
		t.Error("Dashboard() leaked rows across users")
	}
}

func TestRunAll_ContinuesPastFailures(t *testing.T) {
	repo := newFakeRepository()
	repo.users = []*models.User{
		{ID: 1, Username: "alpha", Latitude: 48.1, Longitude: 11.5},
		{ID: 2, Username: "beta", Latitude: 52.5, Longitude: 13.4},
		{ID: 3, Username: "gamma", Latitude: 40.4, Longitude: -3.7},
	}

	// Fetch fails for the second user's longitude only.
	fetcher := &selectiveFetcher{failLon: 13.4}

	service := newTestService(repo, fetcher)

	succeeded, failed, err := service.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll() error: %v", err)
	}
	if succeeded != 2 || failed != 1 {
		t.Errorf("RunAll() = (%d, %d), want (2, 1)", succeeded, failed)
	}
}

type selectiveFetcher struct {
	failLon float64
}

func (s *selectiveFetcher) FetchForecast(ctx context.Context, lat, lon float64) ([]models.WeatherObservation, error) {
	if lon == s.failLon {
		return nil, fmt.Errorf("%w: HTTP 500", weather.ErrWeatherFetch)
	}
	return []models.WeatherObservation{completeObservation(0)}, nil
}
