package geocode

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geobatch/internal/resilience"
)

// ErrMissingAPIKey is returned when a live provider is built without credentials.
var ErrMissingAPIKey = eris.New("geocode: api key not configured")

// ErrorKind classifies why a provider call failed.
type ErrorKind int

const (
	// KindUnknown covers failures that fit no other kind (bad payloads, bugs).
	KindUnknown ErrorKind = iota
	// KindNetwork is a connection-level failure.
	KindNetwork
	// KindHTTPStatus is a non-2xx response.
	KindHTTPStatus
	// KindTimeout is a request that exceeded its deadline.
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindHTTPStatus:
		return "http_status"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ParseErrorKind maps a kind name back to its ErrorKind.
func ParseErrorKind(s string) (ErrorKind, error) {
	switch s {
	case "network":
		return KindNetwork, nil
	case "http_status":
		return KindHTTPStatus, nil
	case "timeout":
		return KindTimeout, nil
	case "unknown", "":
		return KindUnknown, nil
	default:
		return KindUnknown, eris.Errorf("geocode: unknown error kind %q", s)
	}
}

// ProviderError is returned by a Provider when the remote call could not be completed.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int // set for KindHTTPStatus
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("geocode: %s returned status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("geocode: %s %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure is likely to clear on its own.
func (e *ProviderError) Transient() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout:
		return true
	case KindHTTPStatus:
		return resilience.IsTransientHTTPStatus(e.StatusCode)
	default:
		return false
	}
}

// AsProviderError extracts a *ProviderError from err's chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// transportError wraps an error from the HTTP round trip, classifying it as
// timeout, network or unknown.
func transportError(provider string, err error) *ProviderError {
	kind := KindUnknown
	switch {
	case resilience.IsTimeout(err):
		kind = KindTimeout
	case resilience.IsNetwork(err):
		kind = KindNetwork
	}
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}
