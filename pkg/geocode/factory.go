package geocode

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geobatch/internal/config"
)

// NewFromConfig builds the provider named by cfg.Provider.
func NewFromConfig(cfg config.GeocodeConfig) (Provider, error) {
	switch cfg.Provider {
	case "maptiler", "":
		m, err := NewMapTiler(cfg.MapTiler.APIKey,
			WithBaseURL(cfg.MapTiler.BaseURL),
			WithTimeout(time.Duration(cfg.TimeoutSecs)*time.Second),
			WithRateLimit(cfg.RateLimit),
		)
		if err != nil {
			return nil, err
		}
		return m, nil
	case "static":
		opts := []StaticOption{WithDelay(time.Duration(cfg.Static.DelayMs) * time.Millisecond)}
		if cfg.Static.Fixture == "" {
			return NewStatic(nil, opts...), nil
		}
		fixture, err := LoadStaticFixture(cfg.Static.Fixture)
		if err != nil {
			return nil, err
		}
		table, fixtureOpts, err := fixture.Options()
		if err != nil {
			return nil, err
		}
		return NewStatic(table, append(opts, fixtureOpts...)...), nil
	default:
		return nil, eris.Errorf("geocode: unknown provider %q", cfg.Provider)
	}
}
