package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Geocode  GeocodeConfig  `yaml:"geocode" mapstructure:"geocode"`
	Classify ClassifyConfig `yaml:"classify" mapstructure:"classify"`
	Circuit  CircuitConfig  `yaml:"circuit" mapstructure:"circuit"`
	Jobs     JobsConfig     `yaml:"jobs" mapstructure:"jobs"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// GeocodeConfig selects and tunes the geocoding provider.
type GeocodeConfig struct {
	Provider    string         `yaml:"provider" mapstructure:"provider"` // "maptiler" or "static"
	TimeoutSecs int            `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64        `yaml:"rate_limit" mapstructure:"rate_limit"`
	Separator   string         `yaml:"separator" mapstructure:"separator"`
	MapTiler    MapTilerConfig `yaml:"maptiler" mapstructure:"maptiler"`
	Static      StaticConfig   `yaml:"static" mapstructure:"static"`
}

// MapTilerConfig holds MapTiler geocoding API settings.
type MapTilerConfig struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// StaticConfig configures the fixture-driven provider used for demos and tests.
type StaticConfig struct {
	Fixture string `yaml:"fixture" mapstructure:"fixture"`
	DelayMs int    `yaml:"delay_ms" mapstructure:"delay_ms"`
}

// ClassifyConfig holds the confidence thresholds for result classification.
type ClassifyConfig struct {
	SuccessThreshold float64 `yaml:"success_threshold" mapstructure:"success_threshold"`
	DoubtThreshold   float64 `yaml:"doubt_threshold" mapstructure:"doubt_threshold"`
}

// CircuitConfig controls when a batch is aborted on provider failures.
type CircuitConfig struct {
	FailureThreshold   int  `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	TripOnFirstFailure bool `yaml:"trip_on_first_failure" mapstructure:"trip_on_first_failure"`
}

// JobsConfig configures the job registry.
type JobsConfig struct {
	MaxActive     int `yaml:"max_active" mapstructure:"max_active"`
	RetentionMins int `yaml:"retention_mins" mapstructure:"retention_mins"`
}

// CacheConfig configures the Postgres-backed geocode cache.
type CacheConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
	TTLDays     int    `yaml:"ttl_days" mapstructure:"ttl_days"`
}

// StoreConfig configures the job history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the job control server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GEOBATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8088)
	v.SetDefault("geocode.provider", "maptiler")
	v.SetDefault("geocode.timeout_secs", 10)
	v.SetDefault("geocode.rate_limit", 10)
	v.SetDefault("geocode.separator", " ")
	v.SetDefault("geocode.maptiler.api_key", "")
	v.SetDefault("geocode.maptiler.base_url", "https://api.maptiler.com/geocoding")
	v.SetDefault("geocode.static.fixture", "")
	v.SetDefault("geocode.static.delay_ms", 2000)
	v.SetDefault("classify.success_threshold", 0.8)
	v.SetDefault("classify.doubt_threshold", 0.49)
	v.SetDefault("circuit.failure_threshold", 2)
	v.SetDefault("circuit.trip_on_first_failure", true)
	v.SetDefault("jobs.max_active", 1)
	v.SetDefault("jobs.retention_mins", 60)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.database_url", "")
	v.SetDefault("cache.table", "public.geocode_cache")
	v.SetDefault("cache.ttl_days", 0)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "geobatch.db")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
