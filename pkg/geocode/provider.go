// Package geocode resolves address strings to coordinates through interchangeable providers.
package geocode

import (
	"context"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Provider represents a single geocoding backend.
//
// Resolve returns a Result with Matched=false when the provider has no match
// for the address. A non-nil error is always a *ProviderError and means the
// remote call could not be completed.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, address string) (*Result, error)
}

// Coordinate is a WGS84 position.
type Coordinate struct {
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
}

// Result holds the geocoding output for an address.
type Result struct {
	Coordinate Coordinate `json:"coordinate"`
	Confidence float64    `json:"confidence"` // provider relevance in [0,1]
	Source     string     `json:"source"`
	PlaceName  string     `json:"place_name,omitempty"`
	Matched    bool       `json:"matched"`
}

// AddressRecord is one input row: the ordered address fields (street, city,
// country, ...) that form a single query.
type AddressRecord []string

// Query joins the non-empty fields with sep. Fields are trimmed first so that
// optional columns do not leave doubled separators behind.
func (r AddressRecord) Query(sep string) string {
	parts := make([]string, 0, len(r))
	for _, f := range r {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, sep)
}

// normalizeAddress folds an address query to the form used for table and
// cache lookups: NFC, lower case, single spaces.
func normalizeAddress(address string) string {
	return strings.Join(strings.Fields(strings.ToLower(norm.NFC.String(address))), " ")
}

func notFound(source string) *Result {
	return &Result{Matched: false, Source: source}
}
