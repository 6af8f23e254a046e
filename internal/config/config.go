package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Weather  WeatherConfig
	Auth     AuthConfig
	Models   ModelsConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// WeatherConfig holds upstream forecast API settings. The API key is
// never stored in the config file; it comes from the environment only.
type WeatherConfig struct {
	APIKey         string
	APIURL         string
	Timeout        time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

// AuthConfig holds session settings.
type AuthConfig struct {
	SessionTTL time.Duration
}

// ModelsConfig holds paths to serialized prediction model blobs.
// Empty paths fall back to the built-in placeholder coefficients.
type ModelsConfig struct {
	SolarModelPath string
	WindModelPath  string
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level string
}

type fileConfig struct {
	Server struct {
		Host         string `yaml:"host"`
		Port         int    `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
		IdleTimeout  string `yaml:"idle_timeout"`
	} `yaml:"server"`

	Database struct {
		Host            string `yaml:"host"`
		Port            int    `yaml:"port"`
		User            string `yaml:"user"`
		Database        string `yaml:"database"`
		SSLMode         string `yaml:"ssl_mode"`
		MaxOpenConns    int    `yaml:"max_open_conns"`
		MaxIdleConns    int    `yaml:"max_idle_conns"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		ConnMaxIdleTime string `yaml:"conn_max_idle_time"`
	} `yaml:"database"`

	Weather struct {
		URL            string  `yaml:"url"`
		Timeout        string  `yaml:"timeout"`
		RateLimitRPS   float64 `yaml:"rate_limit_rps"`
		RateLimitBurst int     `yaml:"rate_limit_burst"`
	} `yaml:"weather"`

	Auth struct {
		SessionTTL string `yaml:"session_ttl"`
	} `yaml:"auth"`

	Models struct {
		SolarModelPath string `yaml:"solar_model_path"`
		WindModelPath  string `yaml:"wind_model_path"`
	} `yaml:"models"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads config/{ENV_NAME}.yaml (default dev) plus a .env file
// if present, then applies environment overrides. Secrets (database
// password, weather API key) are environment-only.
func LoadConfig() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}

	var fc fileConfig
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// Missing file means defaults + environment only.
	} else {
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	}

	cfg := &Config{}

	cfg.Server.Host = firstNonEmpty(os.Getenv("SERVER_HOST"), fc.Server.Host, "0.0.0.0")
	cfg.Server.Port = firstPositive(envInt("SERVER_PORT"), fc.Server.Port, 8080)
	cfg.Server.ReadTimeout = parseDuration(fc.Server.ReadTimeout, 10*time.Second)
	cfg.Server.WriteTimeout = parseDuration(fc.Server.WriteTimeout, 30*time.Second)
	cfg.Server.IdleTimeout = parseDuration(fc.Server.IdleTimeout, 60*time.Second)

	cfg.Database.Host = firstNonEmpty(os.Getenv("DB_HOST"), fc.Database.Host, "localhost")
	cfg.Database.Port = firstPositive(envInt("DB_PORT"), fc.Database.Port, 5432)
	cfg.Database.User = firstNonEmpty(os.Getenv("DB_USER"), fc.Database.User, "postgres")
	cfg.Database.Password = os.Getenv("DB_PASSWORD")
	cfg.Database.Database = firstNonEmpty(os.Getenv("DB_NAME"), fc.Database.Database, "energy_forecast")
	cfg.Database.SSLMode = firstNonEmpty(os.Getenv("DB_SSLMODE"), fc.Database.SSLMode, "disable")
	cfg.Database.MaxOpenConns = firstPositive(0, fc.Database.MaxOpenConns, 25)
	cfg.Database.MaxIdleConns = firstPositive(0, fc.Database.MaxIdleConns, 5)
	cfg.Database.ConnMaxLifetime = parseDuration(fc.Database.ConnMaxLifetime, 30*time.Minute)
	cfg.Database.ConnMaxIdleTime = parseDuration(fc.Database.ConnMaxIdleTime, 5*time.Minute)

	cfg.Weather.APIKey = os.Getenv("WEATHER_API_KEY")
	cfg.Weather.APIURL = firstNonEmpty(os.Getenv("WEATHER_API_URL"), fc.Weather.URL,
		"https://api.openweathermap.org/data/2.5/forecast")
	cfg.Weather.Timeout = parseDuration(fc.Weather.Timeout, 10*time.Second)
	cfg.Weather.RateLimitRPS = fc.Weather.RateLimitRPS
	if cfg.Weather.RateLimitRPS <= 0 {
		cfg.Weather.RateLimitRPS = 1
	}
	cfg.Weather.RateLimitBurst = fc.Weather.RateLimitBurst
	if cfg.Weather.RateLimitBurst <= 0 {
		cfg.Weather.RateLimitBurst = 5
	}

	cfg.Auth.SessionTTL = parseDuration(fc.Auth.SessionTTL, 24*time.Hour)

	cfg.Models.SolarModelPath = firstNonEmpty(os.Getenv("SOLAR_MODEL_PATH"), fc.Models.SolarModelPath, "")
	cfg.Models.WindModelPath = firstNonEmpty(os.Getenv("WIND_MODEL_PATH"), fc.Models.WindModelPath, "")

	cfg.Logging.Level = strings.ToLower(firstNonEmpty(os.Getenv("LOG_LEVEL"), fc.Logging.Level, "info"))

	return cfg, nil
}

// Validate checks that required settings are present and consistent.
func (c *Config) Validate() error {
	if c.Weather.APIKey == "" {
		return fmt.Errorf("WEATHER_API_KEY is required (set env or .env)")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	if c.Weather.Timeout <= 0 {
		return fmt.Errorf("weather timeout must be positive")
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func envInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// parseDuration parses a duration string and returns defaultVal if
// parsing fails or the result is not positive.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
