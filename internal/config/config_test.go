package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "maptiler", cfg.Geocode.Provider)
	assert.Equal(t, "https://api.maptiler.com/geocoding", cfg.Geocode.MapTiler.BaseURL)
	assert.Equal(t, 10, cfg.Geocode.TimeoutSecs)
	assert.Equal(t, " ", cfg.Geocode.Separator)
	assert.Equal(t, 2000, cfg.Geocode.Static.DelayMs)
	assert.InDelta(t, 0.8, cfg.Classify.SuccessThreshold, 0.001)
	assert.InDelta(t, 0.49, cfg.Classify.DoubtThreshold, 0.001)
	assert.Equal(t, 2, cfg.Circuit.FailureThreshold)
	assert.True(t, cfg.Circuit.TripOnFirstFailure)
	assert.Equal(t, 1, cfg.Jobs.MaxActive)
	assert.Equal(t, 60, cfg.Jobs.RetentionMins)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "public.geocode_cache", cfg.Cache.Table)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "geobatch.db", cfg.Store.DatabaseURL)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
geocode:
  provider: static
  static:
    delay_ms: 5
log:
  level: debug
  format: console
server:
  port: 9090
jobs:
  max_active: 3
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "static", cfg.Geocode.Provider)
	assert.Equal(t, 5, cfg.Geocode.Static.DelayMs)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Jobs.MaxActive)
	// Defaults still apply for unset values
	assert.Equal(t, 2, cfg.Circuit.FailureThreshold)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
geocode:
  provider: static
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("GEOBATCH_GEOCODE_PROVIDER", "maptiler")
	t.Setenv("GEOBATCH_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "maptiler", cfg.Geocode.Provider)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("GEOBATCH_SERVER_PORT", "3000")
	t.Setenv("GEOBATCH_GEOCODE_MAPTILER_API_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Geocode.MapTiler.APIKey)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unterminated"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Geocode.Provider = "maptiler"
	cfg.Geocode.MapTiler.APIKey = "key"
	cfg.Geocode.MapTiler.BaseURL = "https://api.maptiler.com/geocoding"
	cfg.Classify.SuccessThreshold = 0.8
	cfg.Classify.DoubtThreshold = 0.49
	cfg.Circuit.FailureThreshold = 2
	cfg.Jobs.MaxActive = 1
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "geobatch.db"
	cfg.Server.Port = 8088
	return cfg
}

func TestValidateRun_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("run"))
}

func TestValidateRun_MissingAPIKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Geocode.MapTiler.APIKey = ""

	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "geocode.maptiler.api_key is required")
}

func TestValidateRun_StaticNeedsNoKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Geocode.Provider = "static"
	cfg.Geocode.MapTiler.APIKey = ""

	assert.NoError(t, cfg.Validate("run"))
}

func TestValidateRun_UnknownProvider(t *testing.T) {
	cfg := validDefaults()
	cfg.Geocode.Provider = "nominatim"

	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "geocode.provider must be one of")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateServe_MaxActive(t *testing.T) {
	cfg := validDefaults()
	cfg.Jobs.MaxActive = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "jobs.max_active must be >= 1")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateThresholds(t *testing.T) {
	cfg := validDefaults()

	cfg.Classify.SuccessThreshold = 1.1
	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "classify.success_threshold")

	cfg.Classify.SuccessThreshold = 0.4
	err = cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "must be below")

	cfg.Classify.SuccessThreshold = 0.8
	cfg.Circuit.FailureThreshold = 0
	err = cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "circuit.failure_threshold")
}

func TestValidateCacheNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Cache.Enabled = true

	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cache.database_url is required")

	cfg.Cache.DatabaseURL = "postgres://localhost/geo"
	assert.NoError(t, cfg.Validate("run"))
}
