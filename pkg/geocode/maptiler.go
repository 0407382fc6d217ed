package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const maptilerBaseURL = "https://api.maptiler.com/geocoding"

// maptilerResponse is the subset of the MapTiler forward geocoding response we read.
type maptilerResponse struct {
	Features []maptilerFeature `json:"features"`
}

type maptilerFeature struct {
	Center    []float64 `json:"center"`
	Relevance float64   `json:"relevance"`
	PlaceName string    `json:"place_name"`
}

// MapTilerOption configures the MapTiler provider.
type MapTilerOption func(*MapTiler)

// WithBaseURL overrides the geocoding endpoint, e.g. for a proxy.
func WithBaseURL(u string) MapTilerOption {
	return func(m *MapTiler) {
		if u != "" {
			m.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) MapTilerOption {
	return func(m *MapTiler) {
		m.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout. It keeps any client set by
// WithHTTPClient and does not modify the caller's copy.
func WithTimeout(d time.Duration) MapTilerOption {
	return func(m *MapTiler) {
		if d <= 0 {
			return
		}
		var hc http.Client
		if m.httpClient != nil {
			hc = *m.httpClient
		}
		hc.Timeout = d
		m.httpClient = &hc
	}
}

// WithRateLimit sets the requests-per-second rate limit.
func WithRateLimit(rps float64) MapTilerOption {
	return func(m *MapTiler) {
		if rps > 0 {
			burst := int(rps)
			if burst < 1 {
				burst = 1
			}
			m.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// MapTiler geocodes via the MapTiler Cloud forward geocoding API.
type MapTiler struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
}

// NewMapTiler creates a MapTiler provider. An empty key is rejected with
// ErrMissingAPIKey.
func NewMapTiler(apiKey string, opts ...MapTilerOption) (*MapTiler, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	m := &MapTiler{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    maptilerBaseURL,
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Name implements Provider.
func (m *MapTiler) Name() string { return "maptiler" }

// Resolve implements Provider. It issues GET <base>/<address>.json?key=<key>
// and returns the top-ranked feature.
func (m *MapTiler) Resolve(ctx context.Context, address string) (*Result, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, transportError(m.Name(), eris.Wrap(err, "maptiler rate limit"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.requestURL(address), nil)
	if err != nil {
		return nil, &ProviderError{Provider: m.Name(), Kind: KindUnknown, Err: eris.Wrap(err, "maptiler build request")}
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, transportError(m.Name(), eris.Wrap(err, "maptiler request"))
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProviderError{
			Provider:   m.Name(),
			Kind:       KindHTTPStatus,
			StatusCode: resp.StatusCode,
			Err:        eris.Errorf("maptiler returned status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(m.Name(), eris.Wrap(err, "maptiler read body"))
	}

	var mtResp maptilerResponse
	if err := json.Unmarshal(body, &mtResp); err != nil {
		return nil, &ProviderError{Provider: m.Name(), Kind: KindUnknown, Err: eris.Wrap(err, "maptiler parse response")}
	}

	if len(mtResp.Features) == 0 {
		return notFound(m.Name()), nil
	}

	feature := mtResp.Features[0]
	if len(feature.Center) < 2 {
		return nil, &ProviderError{Provider: m.Name(), Kind: KindUnknown, Err: eris.New("maptiler feature has no center")}
	}

	return &Result{
		Coordinate: Coordinate{Longitude: feature.Center[0], Latitude: feature.Center[1]},
		Confidence: feature.Relevance,
		Source:     m.Name(),
		PlaceName:  feature.PlaceName,
		Matched:    true,
	}, nil
}

func (m *MapTiler) requestURL(address string) string {
	params := url.Values{"key": {m.apiKey}}
	return m.baseURL + "/" + url.PathEscape(address) + ".json?" + params.Encode()
}
