package geocoding

import "sync/atomic"

// Canceller is the cancellation token of one run. The engine checks it
// between records, so an in-flight provider call always completes.
type Canceller struct {
	requested atomic.Bool
}

// NewCanceller returns a token with no cancel requested.
func NewCanceller() *Canceller {
	return &Canceller{}
}

// RequestCancel asks the run to stop. Safe to call repeatedly and from any goroutine.
func (c *Canceller) RequestCancel() {
	c.requested.Store(true)
}

// CancelRequested reports whether RequestCancel has been called.
func (c *Canceller) CancelRequested() bool {
	return c.requested.Load()
}
