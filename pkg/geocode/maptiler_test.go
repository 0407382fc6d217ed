package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMapTiler(t *testing.T, srvURL string, opts ...MapTilerOption) *MapTiler {
	t.Helper()
	opts = append([]MapTilerOption{WithBaseURL(srvURL)}, opts...)
	m, err := NewMapTiler("test-key", opts...)
	require.NoError(t, err)
	m.limiter = newTestLimiter()
	return m
}

func TestMapTiler_Resolve_TopFeature(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotKey = r.URL.Query().Get("key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"type": "FeatureCollection",
			"features": [
				{"center": [8.8175, 47.2231], "relevance": 0.95, "place_name": "Oberseestrasse 10, Rapperswil"},
				{"center": [8.5, 47.3], "relevance": 0.4}
			]
		}`)
	}))
	defer srv.Close()

	m := newTestMapTiler(t, srv.URL)
	result, err := m.Resolve(context.Background(), "HSR Oberseestrasse 10 Rapperswil")
	require.NoError(t, err)

	assert.Equal(t, "/HSR%20Oberseestrasse%2010%20Rapperswil.json", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.True(t, result.Matched)
	assert.InDelta(t, 8.8175, result.Coordinate.Longitude, 0.0001)
	assert.InDelta(t, 47.2231, result.Coordinate.Latitude, 0.0001)
	assert.InDelta(t, 0.95, result.Confidence, 0.0001)
	assert.Equal(t, "maptiler", result.Source)
	assert.Equal(t, "Oberseestrasse 10, Rapperswil", result.PlaceName)
}

func TestMapTiler_Resolve_DefaultBaseURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"features": [{"center": [1.5, 2.5], "relevance": 1}]}`)
	}))
	defer srv.Close()

	m, err := NewMapTiler("test-key", WithHTTPClient(newRewriteClient(srv.URL, maptilerBaseURL)))
	require.NoError(t, err)
	m.limiter = newTestLimiter()

	result, err := m.Resolve(context.Background(), "ETH Zürich")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.InDelta(t, 1.5, result.Coordinate.Longitude, 0.0001)
}

func TestMapTiler_Resolve_NoFeatures(t *testing.T) {
	for name, body := range map[string]string{
		"empty":   `{"features": []}`,
		"missing": `{"type": "FeatureCollection"}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, body)
			}))
			defer srv.Close()

			m := newTestMapTiler(t, srv.URL)
			result, err := m.Resolve(context.Background(), "000 Nowhere")
			require.NoError(t, err)
			assert.False(t, result.Matched)
			assert.Equal(t, "maptiler", result.Source)
		})
	}
}

func TestMapTiler_Resolve_HTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	m := newTestMapTiler(t, srv.URL)
	_, err := m.Resolve(context.Background(), "123 Main St")
	require.Error(t, err)

	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, KindHTTPStatus, pe.Kind)
	assert.Equal(t, http.StatusForbidden, pe.StatusCode)
	assert.False(t, pe.Transient())
	assert.Contains(t, err.Error(), "status 403")
}

func TestMapTiler_Resolve_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := newTestMapTiler(t, srv.URL)
	_, err := m.Resolve(context.Background(), "123 Main St")
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.True(t, pe.Transient())
}

func TestMapTiler_Resolve_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = io.WriteString(w, `{"features": []}`)
	}))
	defer srv.Close()

	m := newTestMapTiler(t, srv.URL, WithTimeout(20*time.Millisecond))
	_, err := m.Resolve(context.Background(), "123 Main St")
	require.Error(t, err)

	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, KindTimeout, pe.Kind)
}

func TestMapTiler_Resolve_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	m := newTestMapTiler(t, url)
	_, err := m.Resolve(context.Background(), "123 Main St")
	require.Error(t, err)

	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, KindNetwork, pe.Kind)
}

func TestMapTiler_Resolve_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `not json`)
	}))
	defer srv.Close()

	m := newTestMapTiler(t, srv.URL)
	_, err := m.Resolve(context.Background(), "123 Main St")
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, KindUnknown, pe.Kind)
}

func TestMapTiler_Resolve_FeatureWithoutCenter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"features": [{"relevance": 0.9}]}`)
	}))
	defer srv.Close()

	m := newTestMapTiler(t, srv.URL)
	_, err := m.Resolve(context.Background(), "123 Main St")
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, KindUnknown, pe.Kind)
}

func TestNewMapTiler_NoKey(t *testing.T) {
	_, err := NewMapTiler("")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestNewMapTiler_Options(t *testing.T) {
	m, err := NewMapTiler("k", WithBaseURL("https://proxy.example.com/geo/"), WithTimeout(3*time.Second), WithRateLimit(0.5))
	require.NoError(t, err)
	assert.Equal(t, "https://proxy.example.com/geo", m.baseURL)
	assert.Equal(t, 3*time.Second, m.httpClient.Timeout)
	assert.Equal(t, "https://proxy.example.com/geo/a%2Fb.json?key=k", m.requestURL("a/b"))
	assert.Equal(t, 1, m.limiter.Burst())
}

func TestNewMapTiler_TimeoutKeepsCustomClient(t *testing.T) {
	custom := newRewriteClient("http://127.0.0.1:1", maptilerBaseURL)
	m, err := NewMapTiler("k", WithHTTPClient(custom), WithTimeout(2*time.Second))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, m.httpClient.Timeout)
	assert.Equal(t, custom.Transport, m.httpClient.Transport)
	assert.Zero(t, custom.Timeout)
}
