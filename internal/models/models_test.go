package models

import (
	"errors"
	"testing"
	"time"
)

func f(v float64) *float64 { return &v }

// TestWeatherObservation_SolarFeatures covers the solar feature vector
// ordering and the skip-on-missing-field rule.
func TestWeatherObservation_SolarFeatures(t *testing.T) {
	date := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		obs     WeatherObservation
		want    []float64
		wantErr bool
	}{
		{
			name: "all fields present",
			obs: WeatherObservation{
				Date:              date,
				Temperature:       f(21.5),
				MaxTemperature:    f(25.0),
				SunlightIntensity: f(70.0),
			},
			want: []float64{21.5, 25.0, 70.0},
		},
		{
			name: "missing temperature",
			obs: WeatherObservation{
				Date:              date,
				MaxTemperature:    f(25.0),
				SunlightIntensity: f(70.0),
			},
			wantErr: true,
		},
		{
			name: "missing max temperature",
			obs: WeatherObservation{
				Date:              date,
				Temperature:       f(21.5),
				SunlightIntensity: f(70.0),
			},
			wantErr: true,
		},
		{
			name: "missing sunlight intensity",
			obs: WeatherObservation{
				Date:           date,
				Temperature:    f(21.5),
				MaxTemperature: f(25.0),
			},
			wantErr: true,
		},
		{
			name: "zero values are valid",
			obs: WeatherObservation{
				Date:              date,
				Temperature:       f(0),
				MaxTemperature:    f(0),
				SunlightIntensity: f(0),
			},
			want: []float64{0, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.obs.SolarFeatures()

			if tt.wantErr {
				if err == nil {
					t.Fatal("SolarFeatures() expected error, got nil")
				}
				if !errors.Is(err, ErrIncompleteObservation) {
					t.Errorf("SolarFeatures() error = %v, want ErrIncompleteObservation", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("SolarFeatures() unexpected error: %v", err)
			}

			if len(got) != len(tt.want) {
				t.Fatalf("SolarFeatures() len = %d, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("SolarFeatures()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// TestWeatherObservation_WindFeatures covers the wind feature vector
// ordering and the skip-on-missing-field rule.
func TestWeatherObservation_WindFeatures(t *testing.T) {
	date := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		obs     WeatherObservation
		want    []float64
		wantErr bool
	}{
		{
			name: "all fields present",
			obs: WeatherObservation{
				Date:          date,
				WindSpeed:     f(4.2),
				WindDirection: f(180),
			},
			want: []float64{4.2, 180},
		},
		{
			name: "missing wind speed",
			obs: WeatherObservation{
				Date:          date,
				WindDirection: f(180),
			},
			wantErr: true,
		},
		{
			name: "missing wind direction",
			obs: WeatherObservation{
				Date:      date,
				WindSpeed: f(4.2),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.obs.WindFeatures()

			if tt.wantErr {
				if !errors.Is(err, ErrIncompleteObservation) {
					t.Errorf("WindFeatures() error = %v, want ErrIncompleteObservation", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("WindFeatures() unexpected error: %v", err)
			}

			if len(got) != 2 || got[0] != tt.want[0] || got[1] != tt.want[1] {
				t.Errorf("WindFeatures() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestValidationError tests error handling
func TestValidationError(t *testing.T) {
	err := &ValidationError{
		Field:   "username",
		Value:   "",
		Message: "username is required",
	}

	if err.Error() != "username is required" {
		t.Errorf("Error() = %v, want %v", err.Error(), "username is required")
	}

	if err.IsTransient() {
		t.Error("ValidationError should not be transient")
	}
}
