// Package geocoding runs a batch of address records through a geocode.Provider,
// classifying each match and publishing progress while it runs.
package geocoding

// Classification is the quality bucket of one geocoded record.
type Classification int

const (
	// Failed covers low confidence and "no match".
	Failed Classification = iota
	// Doubt is a match that should be reviewed.
	Doubt
	// Success is a confident match.
	Success
)

func (c Classification) String() string {
	switch c {
	case Success:
		return "success"
	case Doubt:
		return "doubt"
	default:
		return "failed"
	}
}

// Default confidence thresholds.
const (
	DefaultSuccessThreshold = 0.8
	DefaultDoubtThreshold   = 0.49
)

// Classifier maps a confidence score to a Classification.
// Confidence above SuccessThreshold is Success, above DoubtThreshold is
// Doubt, anything else is Failed. Both bounds are exclusive.
type Classifier struct {
	SuccessThreshold float64
	DoubtThreshold   float64
}

// DefaultClassifier returns a Classifier with the default thresholds.
func DefaultClassifier() Classifier {
	return Classifier{SuccessThreshold: DefaultSuccessThreshold, DoubtThreshold: DefaultDoubtThreshold}
}

// Classify buckets confidence.
func (c Classifier) Classify(confidence float64) Classification {
	switch {
	case confidence > c.SuccessThreshold:
		return Success
	case confidence > c.DoubtThreshold:
		return Doubt
	default:
		return Failed
	}
}
