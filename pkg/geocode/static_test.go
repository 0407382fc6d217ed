package geocode

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_Resolve_Match(t *testing.T) {
	s := NewStatic(map[string]Result{
		"ETH Zürich": {Coordinate: Coordinate{Longitude: 8.5476, Latitude: 47.3763}, Confidence: 0.9},
	})

	result, err := s.Resolve(context.Background(), "  eth   ZÜRICH ")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, "static", result.Source)
	assert.InDelta(t, 8.5476, result.Coordinate.Longitude, 0.0001)
	assert.InDelta(t, 0.9, result.Confidence, 0.0001)
	assert.Equal(t, int64(1), s.Calls())
}

func TestStatic_Resolve_NotFound(t *testing.T) {
	s := NewStatic(nil)

	result, err := s.Resolve(context.Background(), "unknown place")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestStatic_Resolve_ReturnsCopy(t *testing.T) {
	s := NewStatic(map[string]Result{"a": {Confidence: 0.9}})

	r1, err := s.Resolve(context.Background(), "a")
	require.NoError(t, err)
	r1.Confidence = 0

	r2, err := s.Resolve(context.Background(), "a")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, r2.Confidence, 0.0001)
}

func TestStatic_Resolve_Failure(t *testing.T) {
	s := NewStatic(nil, WithFailure("Broken Rd", KindNetwork), WithFailures(map[string]ErrorKind{"Bad Gateway": KindHTTPStatus}))

	_, err := s.Resolve(context.Background(), "broken rd")
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, KindNetwork, pe.Kind)

	_, err = s.Resolve(context.Background(), "Bad Gateway")
	pe, ok = AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, KindHTTPStatus, pe.Kind)
	assert.Equal(t, 503, pe.StatusCode)
}

func TestStatic_Resolve_Delay(t *testing.T) {
	s := NewStatic(nil, WithDelay(30*time.Millisecond))

	start := time.Now()
	_, err := s.Resolve(context.Background(), "x")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestStatic_Resolve_ContextCancelledDuringDelay(t *testing.T) {
	s := NewStatic(nil, WithDelay(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Resolve(ctx, "x")
	_, ok := AsProviderError(err)
	assert.True(t, ok)
}

func TestLoadStaticFixture(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addresses:
  - address: HSR Oberseestrasse 10 Rapperswil
    longitude: 8.8175
    latitude: 47.2231
    confidence: 0.95
failures:
  - address: Flaky Lane 1
    kind: timeout
`), 0644))

	f, err := LoadStaticFixture(path)
	require.NoError(t, err)
	require.Len(t, f.Addresses, 1)

	table, opts, err := f.Options()
	require.NoError(t, err)
	s := NewStatic(table, opts...)

	result, err := s.Resolve(context.Background(), "HSR Oberseestrasse 10 Rapperswil")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.InDelta(t, 47.2231, result.Coordinate.Latitude, 0.0001)

	_, err = s.Resolve(context.Background(), "Flaky Lane 1")
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, KindTimeout, pe.Kind)
}

func TestLoadStaticFixture_Errors(t *testing.T) {
	_, err := LoadStaticFixture(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := &StaticFixture{Failures: []StaticFailure{{Address: "x", Kind: "gremlins"}}}
	_, _, err = bad.Options()
	assert.Error(t, err)

	empty := &StaticFixture{Addresses: []StaticEntry{{Confidence: 1}}}
	_, _, err = empty.Options()
	assert.Error(t, err)
}

func TestAddressRecord_Query(t *testing.T) {
	tests := []struct {
		name   string
		record AddressRecord
		sep    string
		want   string
	}{
		{"all fields", AddressRecord{"Oberseestrasse 10", "Rapperswil", "Switzerland"}, " ", "Oberseestrasse 10 Rapperswil Switzerland"},
		{"empty middle field", AddressRecord{"Main St 1", "", "USA"}, " ", "Main St 1 USA"},
		{"trims fields", AddressRecord{" ETH ", "Zürich "}, ", ", "ETH, Zürich"},
		{"no fields", AddressRecord{}, " ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.record.Query(tt.sep))
		})
	}
}

func TestErrorKind_RoundTrip(t *testing.T) {
	for _, k := range []ErrorKind{KindUnknown, KindNetwork, KindHTTPStatus, KindTimeout} {
		parsed, err := ParseErrorKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
}
