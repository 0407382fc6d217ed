package geocoding

import "sync"

// ProgressState is a point-in-time view of a run.
//
// Success+Doubt+Failed always equals Processed. Records skipped because of a
// provider error are counted in Errors, not in Processed. Fraction is on a
// 0-100 scale.
type ProgressState struct {
	Processed int     `json:"processed_count"`
	Success   int     `json:"success_count"`
	Doubt     int     `json:"doubt_count"`
	Failed    int     `json:"failed_count"`
	Errors    int     `json:"error_count"`
	Total     int     `json:"total_count"`
	Fraction  float64 `json:"fraction_complete"`
	Running   bool    `json:"is_running"`
}

// Tracker holds the ProgressState of one run. The engine writes it; any
// number of goroutines may read it through Snapshot.
type Tracker struct {
	mu    sync.RWMutex
	state ProgressState
}

// NewTracker returns an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() ProgressState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Begin marks the run as started over total records and clears any counts.
// Run calls it; a job registry may call it earlier so the job reads as
// running from the moment it is accepted.
func (t *Tracker) Begin(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = ProgressState{Total: total, Running: true}
}

// record counts one processed record and advances the fraction.
func (t *Tracker) record(c Classification) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch c {
	case Success:
		t.state.Success++
	case Doubt:
		t.state.Doubt++
	default:
		t.state.Failed++
	}
	t.state.Processed++
	if t.state.Total > 0 {
		t.state.Fraction = float64(t.state.Processed) / float64(t.state.Total) * 100
	}
}

func (t *Tracker) recordError() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Errors++
}

// finish stops the run. A clean run ends at 100, anything else at 0.
func (t *Tracker) finish(completed bool) ProgressState {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Running = false
	if completed {
		t.state.Fraction = 100
	} else {
		t.state.Fraction = 0
	}
	return t.state
}
