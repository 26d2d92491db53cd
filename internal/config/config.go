package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-form/internal/loading"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	APIBaseURL string
	APIOrigin  string
	APITimeout time.Duration // 0 waits for the backend indefinitely

	SessionTTL           time.Duration
	SessionSweepInterval time.Duration
	SessionCookieName    string

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	LoadingMode loading.Mode

	ZipkinURL string
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	API struct {
		BaseURL string `yaml:"base_url"`
		Origin  string `yaml:"origin"`
		Timeout string `yaml:"timeout"`
	} `yaml:"api"`

	Session struct {
		TTL           string `yaml:"ttl"`
		SweepInterval string `yaml:"sweep_interval"`
		CookieName    string `yaml:"cookie_name"`
	} `yaml:"session"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Loading struct {
		Mode string `yaml:"mode"`
	} `yaml:"loading"`

	Tracing struct {
		ZipkinURL string `yaml:"zipkin_url"`
	} `yaml:"tracing"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and applies env
// overrides: SERVER_PORT, API_URL, API_ORIGIN, LOADING_MODE, ZIPKIN_URL. Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = envOr("SERVER_PORT", fc.Server.Port)
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.APIBaseURL = envOr("API_URL", fc.API.BaseURL)
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "/api"
	}
	cfg.APIOrigin = envOr("API_ORIGIN", fc.API.Origin)
	if cfg.APIOrigin == "" {
		cfg.APIOrigin = "http://localhost:8081"
	}
	cfg.APITimeout = parseDurationOrZero(fc.API.Timeout, 0)

	cfg.SessionTTL = parseDuration(fc.Session.TTL, 30*time.Minute)
	cfg.SessionSweepInterval = parseDuration(fc.Session.SweepInterval, time.Minute)
	cfg.SessionCookieName = strings.TrimSpace(fc.Session.CookieName)
	if cfg.SessionCookieName == "" {
		cfg.SessionCookieName = "wf_session"
	}

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	mode, err := loading.ParseMode(envOr("LOADING_MODE", fc.Loading.Mode))
	if err != nil {
		return nil, err
	}
	cfg.LoadingMode = mode

	cfg.ZipkinURL = envOr("ZIPKIN_URL", fc.Tracing.ZipkinURL)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envOr returns the trimmed env var when set, otherwise the trimmed file value.
func envOr(key, fileVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return strings.TrimSpace(fileVal)
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
// Used for parsing duration fields from YAML config with safe fallback to defaults.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// A relative API base URL needs an absolute origin; negative API timeouts are rejected.
func validate(cfg *Config) error {
	if cfg.APITimeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}
	if !strings.Contains(cfg.APIBaseURL, "://") {
		if !strings.HasPrefix(cfg.APIOrigin, "http://") && !strings.HasPrefix(cfg.APIOrigin, "https://") {
			return fmt.Errorf("api.origin must be an absolute http(s) URL when api.base_url is relative, got %q", cfg.APIOrigin)
		}
	}
	if cfg.SessionSweepInterval > cfg.SessionTTL {
		cfg.SessionSweepInterval = cfg.SessionTTL
	}
	return nil
}
