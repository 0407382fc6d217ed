package resilience

import "testing"

func TestFromCircuitConfig(t *testing.T) {
	cfg := FromCircuitConfig(3, false)
	if cfg.FailureThreshold != 3 {
		t.Errorf("expected threshold 3, got %d", cfg.FailureThreshold)
	}
	if cfg.TripOnFirstFailure {
		t.Error("expected TripOnFirstFailure to be false")
	}
}

func TestFromCircuitConfig_ZeroUsesDefault(t *testing.T) {
	cfg := FromCircuitConfig(0, true)
	if cfg.FailureThreshold != 2 {
		t.Errorf("expected default threshold 2, got %d", cfg.FailureThreshold)
	}
	if !cfg.TripOnFirstFailure {
		t.Error("expected TripOnFirstFailure to be true")
	}
}
