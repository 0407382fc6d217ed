// Package store persists the history of finished geocoding jobs.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geobatch/internal/geocoding"
)

// ErrNotFound is returned when a job id has no history entry.
var ErrNotFound = eris.New("store: job not found")

// JobRecord is the persisted outcome of one job.
type JobRecord struct {
	ID         string                    `json:"id"`
	Provider   string                    `json:"provider"`
	Status     geocoding.Status          `json:"status"`
	Message    string                    `json:"message,omitempty"`
	Summary    string                    `json:"summary"`
	Progress   geocoding.ProgressState   `json:"progress"`
	Failures   []geocoding.RecordFailure `json:"failures,omitempty"`
	RowCount   int                       `json:"row_count"`
	CreatedAt  time.Time                 `json:"created_at"`
	FinishedAt time.Time                 `json:"finished_at"`
}

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Status geocoding.Status `json:"status,omitempty"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

// Store defines the job history interface.
type Store interface {
	SaveJob(ctx context.Context, job JobRecord) error
	GetJob(ctx context.Context, id string) (*JobRecord, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]JobRecord, error)

	Migrate(ctx context.Context) error
	Close() error
}
