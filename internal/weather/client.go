package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"energy-forecast/internal/models"
	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

var (
	// ErrWeatherFetch covers transport failures and non-success HTTP
	// responses from the upstream forecast API.
	ErrWeatherFetch = errors.New("weather fetch failed")
	// ErrMalformedResponse covers payloads missing expected fields.
	// The whole fetch fails; a malformed payload is never partially used.
	ErrMalformedResponse = errors.New("malformed upstream response")
)

// sampleStride picks one entry per calendar day from the upstream
// 3-hour list: 8 entries x 3h = 24h. A snapshot, not a daily aggregate.
const sampleStride = 8

// upstreamTimeLayout is the dt_txt format in the forecast payload.
const upstreamTimeLayout = "2006-01-02 15:04:05"

// ForecastFetcher is the interface the pipeline consumes; satisfied by
// Client and by test doubles.
type ForecastFetcher interface {
	FetchForecast(ctx context.Context, lat, lon float64) ([]models.WeatherObservation, error)
}

// Client calls the OpenWeatherMap 5-day/3-hour forecast endpoint and
// returns one observation per day. No caching, no retries: a failed
// call fails the whole forecast cycle.
type Client struct {
	apiKey  string
	apiURL  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewClient creates a forecast API client. The rate limiter guards the
// upstream quota; it delays calls rather than dropping them.
func NewClient(apiKey, apiURL string, timeout time.Duration, rps float64, burst int, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("weather: API key is required")
	}

	return &Client{
		apiKey:  apiKey,
		apiURL:  apiURL,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
		metrics: metricsCollector,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// forecastResponse mirrors the fields we consume from the upstream
// payload. Pointers distinguish absent fields from zero values.
type forecastResponse struct {
	List []struct {
		DtTxt string `json:"dt_txt"`
		Main  struct {
			Temp    *float64 `json:"temp"`
			TempMax *float64 `json:"temp_max"`
		} `json:"main"`
		Clouds struct {
			All *float64 `json:"all"`
		} `json:"clouds"`
		Wind struct {
			Speed *float64 `json:"speed"`
			Deg   *float64 `json:"deg"`
		} `json:"wind"`
	} `json:"list"`
}

// FetchForecast retrieves the multi-day forecast window for a
// coordinate, downsampled to one observation per day, ordered by date.
// It returns ErrWeatherFetch on transport or HTTP failure and
// ErrMalformedResponse when the payload cannot be trusted.
func (c *Client) FetchForecast(ctx context.Context, lat, lon float64) ([]models.WeatherObservation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", ErrWeatherFetch, err)
	}

	start := time.Now()

	req, err := c.buildRequest(ctx, lat, lon)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrWeatherFetch, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.RecordWeatherFetch("error", time.Since(start))
		c.logger.Error(ctx, "[WEATHER_FETCH_ERROR] Upstream request failed", logging.Fields{
			"lat": lat,
			"lon": lon,
		}, err)
		return nil, fmt.Errorf("%w: %v", ErrWeatherFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.RecordWeatherFetch(statusLabel(resp.StatusCode), time.Since(start))
		c.logger.Error(ctx, "[WEATHER_FETCH_ERROR] Upstream returned non-success status", logging.Fields{
			"lat":    lat,
			"lon":    lon,
			"status": resp.StatusCode,
		}, nil)
		return nil, fmt.Errorf("%w: HTTP %d", ErrWeatherFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordWeatherFetch("error", time.Since(start))
		return nil, fmt.Errorf("%w: read body: %v", ErrWeatherFetch, err)
	}

	c.metrics.RecordWeatherFetch("success", time.Since(start))

	observations, err := parseForecast(body)
	if err != nil {
		c.logger.Error(ctx, "[WEATHER_PARSE_ERROR] Upstream payload rejected", logging.Fields{
			"lat": lat,
			"lon": lon,
		}, err)
		return nil, err
	}

	c.logger.Debug(ctx, "[WEATHER_FETCH] Forecast retrieved", logging.Fields{
		"lat":          lat,
		"lon":          lon,
		"observations": len(observations),
		"duration_ms":  time.Since(start).Milliseconds(),
	})

	return observations, nil
}

// parseForecast decodes the payload and downsamples the 3-hour list to
// one entry per day. Fail-fast: any entry with an unparseable date
// poisons the whole payload.
func parseForecast(body []byte) ([]models.WeatherObservation, error) {
	var payload forecastResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if len(payload.List) == 0 {
		return nil, fmt.Errorf("%w: empty forecast list", ErrMalformedResponse)
	}

	observations := make([]models.WeatherObservation, 0, (len(payload.List)+sampleStride-1)/sampleStride)

	for i := 0; i < len(payload.List); i += sampleStride {
		entry := payload.List[i]

		date, err := time.Parse(upstreamTimeLayout, entry.DtTxt)
		if err != nil {
			return nil, fmt.Errorf("%w: bad dt_txt %q", ErrMalformedResponse, entry.DtTxt)
		}

		obs := models.WeatherObservation{
			Date:           date,
			Temperature:    entry.Main.Temp,
			MaxTemperature: entry.Main.TempMax,
			WindSpeed:      entry.Wind.Speed,
			WindDirection:  entry.Wind.Deg,
		}

		// Sunlight intensity is a cloud-cover proxy, not measured irradiance.
		if entry.Clouds.All != nil {
			intensity := 100 - *entry.Clouds.All
			obs.SunlightIntensity = &intensity
		}

		observations = append(observations, obs)
	}

	return observations, nil
}

func (c *Client) buildRequest(ctx context.Context, lat, lon float64) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	default:
		return "error"
	}
}
