package config

import (
	"errors"
	"fmt"
	"strings"
)

const minutesPerDay = 24 * 60

// Validate проверяет значения, при которых сервис не сможет работать
func (c *Config) Validate() error {
	var errs []error

	if c.Server.HTTPPort == "" {
		errs = append(errs, errors.New("server.http_port is required"))
	}
	if c.Server.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_mb must be positive, got %d", c.Server.MaxUploadMB))
	}

	if c.Quality.ElevationMask < -90 || c.Quality.ElevationMask > 90 {
		errs = append(errs, fmt.Errorf("quality.elevation_mask must be within [-90, 90], got %v", c.Quality.ElevationMask))
	}
	if p := c.Quality.DefaultPeriodMinutes; p <= 0 || minutesPerDay%p != 0 {
		errs = append(errs, fmt.Errorf("quality.default_period_minutes must divide %d, got %d", minutesPerDay, p))
	}
	if c.Quality.Workers <= 0 {
		errs = append(errs, fmt.Errorf("quality.workers must be positive, got %d", c.Quality.Workers))
	}
	if c.Quality.BasePath == "" {
		errs = append(errs, errors.New("quality.base_path is required"))
	}

	if c.Converter.BaseURL == "" {
		errs = append(errs, errors.New("converter.base_url is required"))
	}
	if !strings.Contains(c.Converter.NavURLTemplate, "{name}") {
		errs = append(errs, errors.New("converter.nav_url_template must contain {name}"))
	}
	if c.Converter.RequestsPerSec <= 0 {
		errs = append(errs, fmt.Errorf("converter.requests_per_sec must be positive, got %v", c.Converter.RequestsPerSec))
	}

	if c.Postgres.Enabled && c.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn is required when postgres is enabled"))
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
