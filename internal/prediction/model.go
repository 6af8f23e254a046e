package prediction

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// ErrFeatureArity is returned when a feature vector does not match the
// model's expected input width. This is a configuration error: the
// extractor and the model were trained against different feature sets,
// and no per-request recovery is possible.
var ErrFeatureArity = errors.New("feature count does not match model arity")

// Model is an opaque scalar regression function. Predictions are
// non-negative energy estimates in MW, rounded to 2 decimal places.
type Model interface {
	Arity() int
	Predict(features []float64) (float64, error)
}

// LinearModel is a linear regression over a fixed-order feature vector.
// Trained coefficients are loaded from a JSON blob; the zero-intercept
// placeholder coefficients below stand in when no blob is configured.
type LinearModel struct {
	Name         string    `json:"name"`
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

// Arity returns the expected feature count.
func (m *LinearModel) Arity() int {
	return len(m.Coefficients)
}

// Predict evaluates the regression. The result is clamped at zero and
// rounded to 2 decimals.
func (m *LinearModel) Predict(features []float64) (float64, error) {
	if len(features) != len(m.Coefficients) {
		return 0, fmt.Errorf("%w: model %s expects %d features, got %d",
			ErrFeatureArity, m.Name, len(m.Coefficients), len(features))
	}

	value := m.Intercept
	for i, f := range features {
		value += m.Coefficients[i] * f
	}

	if value < 0 {
		value = 0
	}

	return round2(value), nil
}

// LoadModel reads a serialized LinearModel from a JSON blob.
func LoadModel(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model blob: %w", err)
	}

	var m LinearModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse model blob %s: %w", path, err)
	}

	if len(m.Coefficients) == 0 {
		return nil, fmt.Errorf("model blob %s has no coefficients", path)
	}

	return &m, nil
}

// PlaceholderSolarModel returns the placeholder solar formula over
// [temperature, max_temperature, sunlight_intensity].
func PlaceholderSolarModel() *LinearModel {
	return &LinearModel{
		Name:         "solar_placeholder",
		Coefficients: []float64{0.05, 0.02, 0.04},
	}
}

// PlaceholderWindModel returns the placeholder wind formula
// 0.5 * wind_speed over [wind_speed, wind_direction].
func PlaceholderWindModel() *LinearModel {
	return &LinearModel{
		Name:         "wind_placeholder",
		Coefficients: []float64{0.5, 0},
	}
}

// LoadOrPlaceholder loads a model blob when path is set, otherwise
// falls back to the given placeholder.
func LoadOrPlaceholder(path string, placeholder *LinearModel) (*LinearModel, error) {
	if path == "" {
		return placeholder, nil
	}
	return LoadModel(path)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
