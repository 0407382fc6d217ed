package geocode

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// StaticOption configures the static provider.
type StaticOption func(*Static)

// WithDelay makes every Resolve call take d before answering.
func WithDelay(d time.Duration) StaticOption {
	return func(s *Static) {
		s.delay = d
	}
}

// WithFailure makes Resolve fail with the given kind for address.
func WithFailure(address string, kind ErrorKind) StaticOption {
	return func(s *Static) {
		s.failures[normalizeAddress(address)] = kind
	}
}

// WithFailures registers several failing addresses at once.
func WithFailures(failures map[string]ErrorKind) StaticOption {
	return func(s *Static) {
		for addr, kind := range failures {
			s.failures[normalizeAddress(addr)] = kind
		}
	}
}

// Static answers from a fixed table after a fixed delay. It makes progress
// and cancellation behaviour reproducible without a network.
type Static struct {
	table    map[string]Result
	failures map[string]ErrorKind
	delay    time.Duration
	calls    atomic.Int64
}

// NewStatic builds a Static provider from address -> result entries.
// Lookups ignore case and whitespace differences.
func NewStatic(table map[string]Result, opts ...StaticOption) *Static {
	s := &Static{
		table:    make(map[string]Result, len(table)),
		failures: make(map[string]ErrorKind),
	}
	for addr, r := range table {
		r.Matched = true
		r.Source = "static"
		s.table[normalizeAddress(addr)] = r
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Provider.
func (s *Static) Name() string { return "static" }

// Calls returns how many times Resolve has been invoked.
func (s *Static) Calls() int64 { return s.calls.Load() }

// Resolve implements Provider.
func (s *Static) Resolve(ctx context.Context, address string) (*Result, error) {
	s.calls.Add(1)

	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, transportError(s.Name(), eris.Wrap(ctx.Err(), "static wait"))
		}
	}

	key := normalizeAddress(address)
	if kind, ok := s.failures[key]; ok {
		pe := &ProviderError{Provider: s.Name(), Kind: kind, Err: eris.Errorf("static failure for %q", address)}
		if kind == KindHTTPStatus {
			pe.StatusCode = 503
		}
		return nil, pe
	}

	r, ok := s.table[key]
	if !ok {
		return notFound(s.Name()), nil
	}
	return &r, nil
}

// StaticFixture is the on-disk form of a static provider table.
type StaticFixture struct {
	Addresses []StaticEntry   `yaml:"addresses"`
	Failures  []StaticFailure `yaml:"failures"`
}

// StaticEntry is one canned match.
type StaticEntry struct {
	Address    string  `yaml:"address"`
	Longitude  float64 `yaml:"longitude"`
	Latitude   float64 `yaml:"latitude"`
	Confidence float64 `yaml:"confidence"`
}

// StaticFailure is an address that always fails with Kind.
type StaticFailure struct {
	Address string `yaml:"address"`
	Kind    string `yaml:"kind"`
}

// LoadStaticFixture reads a YAML fixture file.
func LoadStaticFixture(path string) (*StaticFixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: read fixture %s", path)
	}
	var f StaticFixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "geocode: parse fixture %s", path)
	}
	return &f, nil
}

// Options converts the fixture into a table and provider options.
func (f *StaticFixture) Options() (map[string]Result, []StaticOption, error) {
	table := make(map[string]Result, len(f.Addresses))
	for _, e := range f.Addresses {
		if e.Address == "" {
			return nil, nil, eris.New("geocode: fixture entry without address")
		}
		table[e.Address] = Result{
			Coordinate: Coordinate{Longitude: e.Longitude, Latitude: e.Latitude},
			Confidence: e.Confidence,
		}
	}

	var opts []StaticOption
	for _, fl := range f.Failures {
		kind, err := ParseErrorKind(fl.Kind)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, WithFailure(fl.Address, kind))
	}
	return table, opts, nil
}
