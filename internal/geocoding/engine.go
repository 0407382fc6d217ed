package geocoding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/geobatch/internal/resilience"
	"github.com/sells-group/geobatch/pkg/geocode"
)

// Option configures an Engine.
type Option func(*Engine)

// WithClassifier sets the confidence thresholds.
func WithClassifier(c Classifier) Option {
	return func(e *Engine) {
		e.classifier = c
	}
}

// WithSeparator sets the string placed between address fields.
func WithSeparator(sep string) Option {
	return func(e *Engine) {
		e.separator = sep
	}
}

// WithCircuitBreaker sets the abort policy for provider errors.
func WithCircuitBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(e *Engine) {
		e.circuit = cfg
	}
}

// Engine geocodes records one at a time through a single provider.
// An Engine holds no run state and may be reused for any number of runs.
type Engine struct {
	provider   geocode.Provider
	classifier Classifier
	separator  string
	circuit    resilience.CircuitBreakerConfig
}

// NewEngine creates an Engine bound to provider.
func NewEngine(provider geocode.Provider, opts ...Option) *Engine {
	e := &Engine{
		provider:   provider,
		classifier: DefaultClassifier(),
		separator:  " ",
		circuit:    resilience.DefaultCircuitBreakerConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProviderName returns the name of the bound provider.
func (e *Engine) ProviderName() string { return e.provider.Name() }

// Run geocodes records in order, publishing progress to tracker.
//
// The run stops before the next record once canceller is raised or ctx is
// done, and immediately when the circuit breaker opens. The provider call in
// flight at that moment is never cut short. Run always returns a Report with
// the rows produced so far; stopping early is not an error.
func (e *Engine) Run(ctx context.Context, records []geocode.AddressRecord, tracker *Tracker, canceller *Canceller) *Report {
	log := zap.L().With(
		zap.String("component", "geocoding.engine"),
		zap.String("provider", e.provider.Name()),
	)

	cfg := e.circuit
	notify := cfg.OnStateChange
	cfg.OnStateChange = func(from, to resilience.CircuitState, reason resilience.TripReason) {
		log.Warn("geocoding: circuit opened", zap.Stringer("reason", reason))
		if notify != nil {
			notify(from, to, reason)
		}
	}
	breaker := resilience.NewCircuitBreaker(cfg)

	// Cancellation is observed between records only.
	callCtx := context.WithoutCancel(ctx)

	report := &Report{Rows: make([]GeocodedRow, 0, len(records))}
	tracker.Begin(len(records))
	log.Info("geocoding: run started", zap.Int("records", len(records)))

	for i, rec := range records {
		if canceller.CancelRequested() || ctx.Err() != nil {
			log.Info("geocoding: run interrupted", zap.Int("record", i))
			return e.finish(report, tracker, StatusInterrupted, msgInterrupted)
		}

		address := rec.Query(e.separator)
		if address == "" {
			breaker.RecordSkip()
			tracker.record(Failed)
			continue
		}

		result, err := e.provider.Resolve(callCtx, address)
		if err != nil {
			tracker.recordError()
			report.Failures = append(report.Failures, recordFailure(i, address, err))
			log.Warn("geocoding: provider error",
				zap.Int("record", i),
				zap.String("address", address),
				zap.Bool("transient", transient(err)),
				zap.Error(err),
			)
			if breaker.RecordFailure() {
				failures, state := breaker.Counters()
				log.Error("geocoding: run aborted",
					zap.Int("record", i),
					zap.Int("consecutive_failures", failures),
					zap.Stringer("circuit", state),
				)
				report.Abort = &AbortError{Reason: breaker.Reason(), Err: err}
				return e.finish(report, tracker, StatusAborted, abortMessage(breaker.Reason(), cfg.FailureThreshold))
			}
			continue
		}
		breaker.RecordSuccess()

		if !result.Matched {
			tracker.record(Failed)
			continue
		}

		class := e.classifier.Classify(result.Confidence)
		tracker.record(class)
		report.Rows = append(report.Rows, GeocodedRow{
			Fields:         rec,
			Coordinate:     result.Coordinate,
			Confidence:     result.Confidence,
			Classification: class.String(),
		})
	}

	report = e.finish(report, tracker, StatusCompleted, "")
	log.Info("geocoding: run completed", zap.String("summary", report.Summary()))
	return report
}

func (e *Engine) finish(report *Report, tracker *Tracker, status Status, message string) *Report {
	report.Status = status
	report.Message = message
	report.Progress = tracker.finish(status == StatusCompleted)
	return report
}

func recordFailure(index int, address string, err error) RecordFailure {
	kind := geocode.KindUnknown
	if pe, ok := geocode.AsProviderError(err); ok {
		kind = pe.Kind
	}
	return RecordFailure{Index: index, Address: address, Kind: kind.String(), Message: err.Error()}
}

func transient(err error) bool {
	pe, ok := geocode.AsProviderError(err)
	return ok && pe.Transient()
}

func abortMessage(reason resilience.TripReason, threshold int) string {
	if reason == resilience.TripStartup {
		return msgStartupAbort
	}
	if threshold <= 0 {
		threshold = 2
	}
	return fmt.Sprintf(msgStreakAbort, threshold)
}
