package geocoding

import (
	"fmt"
	"strconv"

	"github.com/sells-group/geobatch/internal/resilience"
	"github.com/sells-group/geobatch/pkg/geocode"
)

// Status is how a run ended.
type Status string

// Run outcomes.
const (
	StatusCompleted   Status = "completed"
	StatusInterrupted Status = "interrupted"
	StatusAborted     Status = "aborted"
)

// Report messages.
const (
	msgInterrupted  = "geocoding interrupted"
	msgStartupAbort = "provider error at the start of the geocoding process"
	msgStreakAbort  = "%d consecutive provider errors during the geocoding process"
)

// GeocodedRow is an input record with its resolved coordinate.
type GeocodedRow struct {
	Fields         geocode.AddressRecord `json:"fields"`
	Coordinate     geocode.Coordinate    `json:"coordinate"`
	Confidence     float64               `json:"confidence"`
	Classification string                `json:"classification"`
}

// Values returns the original fields followed by longitude and latitude.
func (r GeocodedRow) Values() []string {
	out := make([]string, 0, len(r.Fields)+2)
	out = append(out, r.Fields...)
	return append(out,
		strconv.FormatFloat(r.Coordinate.Longitude, 'f', -1, 64),
		strconv.FormatFloat(r.Coordinate.Latitude, 'f', -1, 64),
	)
}

// RecordFailure describes a record skipped because the provider call failed.
type RecordFailure struct {
	Index   int    `json:"index"`
	Address string `json:"address"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// AbortError explains why the circuit breaker stopped a run.
type AbortError struct {
	Reason resilience.TripReason
	Err    error // the provider error that tripped the breaker
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("geocoding: aborted (%s): %v", e.Reason, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// Report is the result of one run. Message is empty when the run completed.
type Report struct {
	Status   Status          `json:"status"`
	Message  string          `json:"message"`
	Rows     []GeocodedRow   `json:"rows"`
	Progress ProgressState   `json:"progress"`
	Failures []RecordFailure `json:"failures,omitempty"`
	Abort    *AbortError     `json:"-"`
}

// Summary renders the final counters for logs and job history.
func (r *Report) Summary() string {
	return fmt.Sprintf("Geocoded values, success: %d, doubt: %d, fail: %d",
		r.Progress.Success, r.Progress.Doubt, r.Progress.Failed)
}

// Partial reports whether the run stopped before all records were attempted.
func (r *Report) Partial() bool {
	return r.Status != StatusCompleted
}
