package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv(ConfigPathEnvVar, "")
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.HTTPPort != "8000" {
		t.Errorf("Expected HTTP port 8000, got %s", cfg.Server.HTTPPort)
	}
	if cfg.Quality.ElevationMask != 10 {
		t.Errorf("Expected elevation mask 10, got %v", cfg.Quality.ElevationMask)
	}
	if cfg.Quality.DefaultPeriodMinutes != 15 {
		t.Errorf("Expected period 15, got %d", cfg.Quality.DefaultPeriodMinutes)
	}
	if cfg.Redis.TaskTTL != 24*time.Hour {
		t.Errorf("Expected task TTL 24h, got %v", cfg.Redis.TaskTTL)
	}
	if cfg.Log.RetentionDays != 30 {
		t.Errorf("Expected 30 retention days, got %d", cfg.Log.RetentionDays)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "qualityd.yaml")
	yaml := "quality:\n  elevation_mask: 15\n  workers: 2\nredis:\n  addr: redis:6379\n"
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("ELEVATION_MASK", "5")
	t.Setenv("CONVERTER_POLL_INTERVAL", "500ms")
	t.Setenv("UNRELATED_VARIABLE", "ignored")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Quality.ElevationMask != 5 {
		t.Errorf("Environment must override file, got mask %v", cfg.Quality.ElevationMask)
	}
	if cfg.Quality.Workers != 2 {
		t.Errorf("Expected 2 workers from file, got %d", cfg.Quality.Workers)
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Errorf("Expected redis addr from file, got %s", cfg.Redis.Addr)
	}
	if cfg.Converter.PollInterval != 500*time.Millisecond {
		t.Errorf("Expected poll interval 500ms, got %v", cfg.Converter.PollInterval)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	isolate(t)
	t.Setenv("DEFAULT_PERIOD_MINUTES", "7")

	if _, err := Load(); err == nil {
		t.Fatal("Expected validation error for period not dividing a day")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"mask too high", func(c *Config) { c.Quality.ElevationMask = 91 }, "elevation_mask"},
		{"zero period", func(c *Config) { c.Quality.DefaultPeriodMinutes = 0 }, "default_period_minutes"},
		{"no workers", func(c *Config) { c.Quality.Workers = 0 }, "workers"},
		{"nav template", func(c *Config) { c.Converter.NavURLTemplate = "https://example.org/nav" }, "nav_url_template"},
		{"postgres dsn", func(c *Config) { c.Postgres.Enabled = true; c.Postgres.DSN = "" }, "postgres.dsn"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Expected error about %s, got %v", tt.field, err)
			}
		})
	}

	if err := defaultConfig().Validate(); err != nil {
		t.Errorf("Defaults must be valid, got %v", err)
	}
}
