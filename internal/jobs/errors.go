package jobs

import (
	"fmt"

	"github.com/rotisserie/eris"
)

var (
	// ErrUnknownJob is returned for a job id the registry does not hold.
	ErrUnknownJob = eris.New("jobs: unknown job")
	// ErrJobActive is returned by Start when the active job limit is reached.
	ErrJobActive = eris.New("jobs: active job limit reached")
)

// PersistenceError wraps a failure of the ResultSink for one job.
type PersistenceError struct {
	JobID string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("jobs: persist results of %s: %v", e.JobID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
