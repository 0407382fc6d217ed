package geocode

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geobatch/internal/db"
)

// CacheOption configures the cache decorator.
type CacheOption func(*Cached)

// WithCacheTable sets the schema-qualified cache table name.
func WithCacheTable(table string) CacheOption {
	return func(c *Cached) {
		if table != "" {
			c.table = table
		}
	}
}

// WithCacheTTLDays ignores cache rows older than days. Zero keeps rows forever.
func WithCacheTTLDays(days int) CacheOption {
	return func(c *Cached) {
		c.ttlDays = days
	}
}

// Cached wraps a Provider with a Postgres-backed result cache. Matches and
// non-matches are cached; provider errors never are.
type Cached struct {
	inner   Provider
	pool    db.Pool
	table   string
	ttlDays int
}

// NewCached decorates inner with a cache stored through pool.
func NewCached(inner Provider, pool db.Pool, opts ...CacheOption) *Cached {
	c := &Cached{
		inner: inner,
		pool:  pool,
		table: "public.geocode_cache",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements Provider.
func (c *Cached) Name() string { return c.inner.Name() }

// Resolve implements Provider, consulting the cache before the inner provider.
func (c *Cached) Resolve(ctx context.Context, address string) (*Result, error) {
	key := cacheKey(address)

	if cached, err := c.checkCache(ctx, key); err == nil && cached != nil {
		return cached, nil
	}

	result, err := c.inner.Resolve(ctx, address)
	if err != nil {
		return nil, err
	}

	if storeErr := c.storeCache(ctx, key, result); storeErr != nil {
		zap.L().Warn("geocode cache: store failed", zap.String("provider", c.Name()), zap.Error(storeErr))
	}
	return result, nil
}

// Migrate creates the cache table if it does not exist.
func (c *Cached) Migrate(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			address_hash TEXT PRIMARY KEY,
			longitude    DOUBLE PRECISION NOT NULL DEFAULT 0,
			latitude     DOUBLE PRECISION NOT NULL DEFAULT 0,
			confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
			matched      BOOLEAN NOT NULL,
			source       TEXT NOT NULL,
			place_name   TEXT,
			cached_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, c.tableIdent()))
	return eris.Wrap(err, "geocode cache: migrate")
}

// cacheKey returns SHA-256 hex of the normalized address for cache lookup.
func cacheKey(address string) string {
	h := sha256.Sum256([]byte(normalizeAddress(address)))
	return fmt.Sprintf("%x", h)
}

func (c *Cached) tableIdent() string {
	return pgx.Identifier(strings.Split(c.table, ".")).Sanitize()
}

// checkCache looks up a cached result, respecting TTL if configured.
func (c *Cached) checkCache(ctx context.Context, key string) (*Result, error) {
	query := fmt.Sprintf("SELECT longitude, latitude, confidence, matched, source, place_name FROM %s WHERE address_hash = $1", c.tableIdent())
	args := []any{key}

	if c.ttlDays > 0 {
		query += " AND cached_at > now() - make_interval(days => $2)"
		args = append(args, c.ttlDays)
	}

	var r Result
	var placeName *string
	row := c.pool.QueryRow(ctx, query, args...)
	if err := row.Scan(&r.Coordinate.Longitude, &r.Coordinate.Latitude, &r.Confidence, &r.Matched, &r.Source, &placeName); err != nil {
		return nil, err // miss or scan error, caller falls through to the provider
	}
	if placeName != nil {
		r.PlaceName = *placeName
	}

	keyPrefix := key
	if len(keyPrefix) > 12 {
		keyPrefix = keyPrefix[:12]
	}
	zap.L().Debug("geocode cache hit", zap.String("key", keyPrefix), zap.Bool("matched", r.Matched))
	return &r, nil
}

// storeCache upserts a result (match or non-match) into the cache.
func (c *Cached) storeCache(ctx context.Context, key string, result *Result) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (address_hash, longitude, latitude, confidence, matched, source, place_name, cached_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (address_hash) DO UPDATE SET
			longitude = EXCLUDED.longitude,
			latitude = EXCLUDED.latitude,
			confidence = EXCLUDED.confidence,
			matched = EXCLUDED.matched,
			source = EXCLUDED.source,
			place_name = EXCLUDED.place_name,
			cached_at = now()`, c.tableIdent())

	_, err := c.pool.Exec(ctx, query,
		key, result.Coordinate.Longitude, result.Coordinate.Latitude, result.Confidence, result.Matched, result.Source, nilIfEmpty(result.PlaceName),
	)
	if err != nil {
		return eris.Wrap(err, "geocode cache: store")
	}
	return nil
}

// nilIfEmpty returns nil for empty strings, allowing NULL storage in Postgres.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
