package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks that the settings required by the given mode are present
// and in range. Mode is "run" or "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Jobs.MaxActive < 1 {
			errs = append(errs, "jobs.max_active must be >= 1")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Geocode.Provider {
	case "maptiler":
		if c.Geocode.MapTiler.APIKey == "" {
			errs = append(errs, "geocode.maptiler.api_key is required")
		}
		if c.Geocode.MapTiler.BaseURL == "" {
			errs = append(errs, "geocode.maptiler.base_url is required")
		}
	case "static":
	default:
		errs = append(errs, "geocode.provider must be one of maptiler, static")
	}

	if c.Classify.SuccessThreshold < 0 || c.Classify.SuccessThreshold > 1 {
		errs = append(errs, "classify.success_threshold must be between 0 and 1")
	}
	if c.Classify.DoubtThreshold < 0 || c.Classify.DoubtThreshold > 1 {
		errs = append(errs, "classify.doubt_threshold must be between 0 and 1")
	}
	if c.Classify.DoubtThreshold >= c.Classify.SuccessThreshold {
		errs = append(errs, "classify.doubt_threshold must be below classify.success_threshold")
	}

	if c.Circuit.FailureThreshold < 1 {
		errs = append(errs, "circuit.failure_threshold must be >= 1")
	}

	if c.Cache.Enabled && c.Cache.DatabaseURL == "" {
		errs = append(errs, "cache.database_url is required when cache.enabled is set")
	}

	if c.Store.DatabaseURL != "" && c.Store.Driver != "sqlite" {
		errs = append(errs, "store.driver must be sqlite")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
