package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kjstillabower/weather-form/internal/loading"
)

const minimalEnvYAML = `
server:
  port: "8080"
api:
  base_url: "/api"
  origin: "http://backend.test:8081"
session:
  ttl: "10m"
reliability:
  rate_limit_rps: 5
  rate_limit_burst: 10
shutdown:
  timeout: "10s"
`

// clearEnv blanks every override so the developer's shell does not leak into tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ENV_NAME", "SERVER_PORT", "API_URL", "API_ORIGIN", "LOADING_MODE", "ZIPKIN_URL"} {
		t.Setenv(k, "")
	}
}

func loadFrom(t *testing.T, content string) (*Config, error) {
	t.Helper()
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	dir := t.TempDir()
	writeEnvFile(t, dir, content)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	return Load()
}

func TestLoad_Minimal(t *testing.T) {
	clearEnv(t)
	cfg, err := loadFrom(t, minimalEnvYAML)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.APIBaseURL != "/api" || cfg.APIOrigin != "http://backend.test:8081" {
		t.Errorf("API = %q on %q", cfg.APIBaseURL, cfg.APIOrigin)
	}
	if cfg.APITimeout != 0 {
		t.Errorf("APITimeout = %v, want 0 (no timeout)", cfg.APITimeout)
	}
	if cfg.SessionTTL != 10*time.Minute {
		t.Errorf("SessionTTL = %v, want 10m", cfg.SessionTTL)
	}
	if cfg.SessionCookieName != "wf_session" {
		t.Errorf("SessionCookieName = %q, want wf_session", cfg.SessionCookieName)
	}
	if cfg.RateLimitRPS != 5 || cfg.RateLimitBurst != 10 {
		t.Errorf("rate limit = %d/%d, want 5/10", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.LoadingMode != loading.ModeFlat {
		t.Errorf("LoadingMode = %q, want flat", cfg.LoadingMode)
	}
	if cfg.ZipkinURL != "" {
		t.Errorf("ZipkinURL = %q, want empty", cfg.ZipkinURL)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadFrom(t, "server: {}\n")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIBaseURL != "/api" {
		t.Errorf("APIBaseURL = %q, want /api", cfg.APIBaseURL)
	}
	if cfg.APIOrigin != "http://localhost:8081" {
		t.Errorf("APIOrigin = %q, want http://localhost:8081", cfg.APIOrigin)
	}
	if cfg.SessionTTL != 30*time.Minute || cfg.SessionSweepInterval != time.Minute {
		t.Errorf("session = %v/%v, want 30m/1m", cfg.SessionTTL, cfg.SessionSweepInterval)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 30s", cfg.ShutdownTimeout)
	}
	if cfg.ShutdownInFlightCheckInterval != 100*time.Millisecond {
		t.Errorf("ShutdownInFlightCheckInterval = %v, want 100ms", cfg.ShutdownInFlightCheckInterval)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("API_URL", "https://weather.example.com/v1")
	t.Setenv("LOADING_MODE", "counted")
	t.Setenv("ZIPKIN_URL", "http://zipkin:9411/api/v2/spans")

	cfg, err := loadFrom(t, minimalEnvYAML)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
	if cfg.APIBaseURL != "https://weather.example.com/v1" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.LoadingMode != loading.ModeCounted {
		t.Errorf("LoadingMode = %q, want counted", cfg.LoadingMode)
	}
	if cfg.ZipkinURL != "http://zipkin:9411/api/v2/spans" {
		t.Errorf("ZipkinURL = %q", cfg.ZipkinURL)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	cfg, err := loadFrom(t, `
api:
  timeout: "soon"
session:
  ttl: "-5m"
`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APITimeout != 0 {
		t.Errorf("APITimeout = %v, want 0", cfg.APITimeout)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Errorf("SessionTTL = %v, want default 30m", cfg.SessionTTL)
	}
}

func TestLoad_APITimeout(t *testing.T) {
	clearEnv(t)
	cfg, err := loadFrom(t, "api:\n  timeout: \"3s\"\n")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APITimeout != 3*time.Second {
		t.Errorf("APITimeout = %v, want 3s", cfg.APITimeout)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{"negative timeout", "api:\n  timeout: \"-1s\"\n", "api.timeout"},
		{"relative origin", "api:\n  origin: \"backend:8081\"\n", "api.origin"},
		{"unknown loading mode", "loading:\n  mode: \"refcount\"\n", "loading mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg, err := loadFrom(t, tt.yaml)
			if err == nil {
				t.Fatalf("Load() = %+v, want error", cfg)
			}
			if cfg != nil {
				t.Errorf("Load() expected nil config on error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Load() error = %v, want message containing %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoad_AbsoluteBaseURLIgnoresOrigin(t *testing.T) {
	clearEnv(t)
	cfg, err := loadFrom(t, "api:\n  base_url: \"http://backend:8081/api\"\n  origin: \"not-a-url\"\n")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIBaseURL != "http://backend:8081/api" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
}

func TestLoad_SweepIntervalCappedByTTL(t *testing.T) {
	clearEnv(t)
	cfg, err := loadFrom(t, "session:\n  ttl: \"20s\"\n  sweep_interval: \"5m\"\n")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SessionSweepInterval != 20*time.Second {
		t.Errorf("SessionSweepInterval = %v, want 20s", cfg.SessionSweepInterval)
	}
}

func TestLoad_InvalidConfigYAML(t *testing.T) {
	clearEnv(t)
	_, err := loadFrom(t, "server: [unclosed\n")
	if err == nil {
		t.Fatal("Load() expected error for invalid YAML, got nil")
	}
	if !strings.Contains(err.Error(), "parse config file") {
		t.Errorf("Load() error = %v, want parse config file", err)
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV_NAME", "nonexistent")

	origWd, _ := os.Getwd()
	if err := os.Chdir(findProjectRoot(t)); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer func() { _ = os.Chdir(origWd) }()

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing env file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Load() error = %v, want message about config file not found", err)
	}
}

// TestLoad_ProjectDevConfig keeps config/dev.yaml loadable.
func TestLoad_ProjectDevConfig(t *testing.T) {
	clearEnv(t)
	origWd, _ := os.Getwd()
	if err := os.Chdir(findProjectRoot(t)); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer func() { _ = os.Chdir(origWd) }()

	if _, err := Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "config", "dev.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("config/dev.yaml not found (run tests from project root)")
		}
		dir = parent
	}
}
