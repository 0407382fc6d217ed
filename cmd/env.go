package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geobatch/internal/config"
	"github.com/sells-group/geobatch/internal/db"
	"github.com/sells-group/geobatch/internal/geocoding"
	"github.com/sells-group/geobatch/internal/jobs"
	"github.com/sells-group/geobatch/internal/resilience"
	"github.com/sells-group/geobatch/internal/store"
	"github.com/sells-group/geobatch/pkg/geocode"
)

// geoEnv holds the components shared by run and serve.
type geoEnv struct {
	Provider geocode.Provider
	Engine   *geocoding.Engine
	Store    store.Store // nil when history is disabled
	closers  []func()
}

// Close releases the cache pool and history store.
func (e *geoEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// ManagerOptions returns the registry options derived from cfg.
func (e *geoEnv) ManagerOptions(c *config.Config) []jobs.Option {
	opts := []jobs.Option{
		jobs.WithMaxActive(c.Jobs.MaxActive),
		jobs.WithRetention(time.Duration(c.Jobs.RetentionMins) * time.Minute),
	}
	if e.Store != nil {
		opts = append(opts, jobs.WithHistory(e.Store))
	}
	return opts
}

// initGeoEnv builds the provider, optional cache, engine and history store.
func initGeoEnv(ctx context.Context, c *config.Config, mode string) (*geoEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}
	env := &geoEnv{}

	provider, err := geocode.NewFromConfig(c.Geocode)
	if err != nil {
		return nil, eris.Wrap(err, "init provider")
	}

	if c.Cache.Enabled {
		pool, err := db.NewPool(ctx, c.Cache.DatabaseURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "init cache pool")
		}
		env.closers = append(env.closers, pool.Close)

		cached := geocode.NewCached(provider, pool,
			geocode.WithCacheTable(c.Cache.Table),
			geocode.WithCacheTTLDays(c.Cache.TTLDays),
		)
		if err := cached.Migrate(ctx); err != nil {
			env.Close()
			return nil, err
		}
		provider = cached
		zap.L().Info("geocode cache enabled", zap.String("table", c.Cache.Table))
	}
	env.Provider = provider

	env.Engine = geocoding.NewEngine(provider,
		geocoding.WithClassifier(geocoding.Classifier{
			SuccessThreshold: c.Classify.SuccessThreshold,
			DoubtThreshold:   c.Classify.DoubtThreshold,
		}),
		geocoding.WithSeparator(c.Geocode.Separator),
		geocoding.WithCircuitBreaker(resilience.FromCircuitConfig(c.Circuit.FailureThreshold, c.Circuit.TripOnFirstFailure)),
	)

	if c.Store.DatabaseURL != "" {
		st, err := initStore(ctx, c.Store)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Store = st
		env.closers = append(env.closers, func() { _ = st.Close() })
	}

	return env, nil
}

// initStore opens and migrates the job history store.
func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	if sc.Driver != "" && sc.Driver != "sqlite" {
		return nil, eris.Errorf("store: unsupported driver %q", sc.Driver)
	}
	st, err := store.NewSQLite(sc.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
