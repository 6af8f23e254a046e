package models

import (
	"errors"
	"fmt"
	"time"
)

// User represents a registered plant owner.
// PasswordHash is a bcrypt digest; the plaintext is never stored.
type User struct {
	ID           int64     `json:"id" db:"id"`
	PlantName    string    `json:"plant_name" db:"plant_name"`
	Latitude     float64   `json:"latitude" db:"latitude"`
	Longitude    float64   `json:"longitude" db:"longitude"`
	City         string    `json:"city" db:"city"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// WeatherObservation is a single downsampled forecast entry from the
// upstream weather API. It is transient: consumed by the pipeline and
// never persisted. Optional fields are pointers so a missing upstream
// value is distinguishable from zero.
type WeatherObservation struct {
	Date              time.Time
	Temperature       *float64 // °C
	MaxTemperature    *float64 // °C
	SunlightIntensity *float64 // 0-100, derived as 100 - cloud cover %
	WindSpeed         *float64 // m/s
	WindDirection     *float64 // degrees
}

// ErrIncompleteObservation marks an observation missing a field the
// requested feature vector needs. The observation is skipped; siblings
// in the same batch are unaffected.
var ErrIncompleteObservation = errors.New("observation missing required field")

// SolarFeatures returns the ordered feature vector the solar model was
// trained on: [temperature, max_temperature, sunlight_intensity].
func (o *WeatherObservation) SolarFeatures() ([]float64, error) {
	if o.Temperature == nil || o.MaxTemperature == nil || o.SunlightIntensity == nil {
		return nil, fmt.Errorf("%w: solar features for %s", ErrIncompleteObservation, o.Date.Format("2006-01-02"))
	}
	return []float64{*o.Temperature, *o.MaxTemperature, *o.SunlightIntensity}, nil
}

// WindFeatures returns the ordered feature vector the wind model was
// trained on: [wind_speed, wind_direction].
func (o *WeatherObservation) WindFeatures() ([]float64, error) {
	if o.WindSpeed == nil || o.WindDirection == nil {
		return nil, fmt.Errorf("%w: wind features for %s", ErrIncompleteObservation, o.Date.Format("2006-01-02"))
	}
	return []float64{*o.WindSpeed, *o.WindDirection}, nil
}

// SolarForecast is one persisted solar prediction. Rows are write-once
// per (user_id, forecast_date); conflicting inserts are skipped.
type SolarForecast struct {
	ID                    int64     `json:"id" db:"id"`
	UserID                int64     `json:"user_id" db:"user_id"`
	ForecastDate          time.Time `json:"forecast_date" db:"forecast_date"`
	TemperatureCelsius    float64   `json:"temperature_celsius" db:"temperature_celsius"`
	MaxTemperatureCelsius float64   `json:"max_temperature_celsius" db:"max_temperature_celsius"`
	SunlightIntensity     float64   `json:"sunlight_intensity" db:"sunlight_intensity"`
	PredictedEnergyMW     float64   `json:"predicted_energy_mw" db:"predicted_energy_mw"`
	CreatedAt             time.Time `json:"created_at" db:"created_at"`
}

// WindForecast is one persisted wind prediction, write-once per
// (user_id, forecast_date) like SolarForecast.
type WindForecast struct {
	ID                int64     `json:"id" db:"id"`
	UserID            int64     `json:"user_id" db:"user_id"`
	ForecastDate      time.Time `json:"forecast_date" db:"forecast_date"`
	WindSpeedMS       float64   `json:"wind_speed_ms" db:"wind_speed_ms"`
	WindDirectionDeg  float64   `json:"wind_direction_deg" db:"wind_direction_deg"`
	PredictedEnergyMW float64   `json:"predicted_energy_mw" db:"predicted_energy_mw"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// ForecastPoint is one (date, energy) pair in a dashboard chart series.
type ForecastPoint struct {
	Date   string  `json:"date"`
	Energy float64 `json:"energy"`
}

// ValidationError represents a request data validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}
