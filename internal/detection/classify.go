package detection

import "fmt"

// Tier is the discrete confidence bucket derived from a continuous
// detector score.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// Default classifier bounds. These are starting points, not constants of
// nature: deployments tune them per model via flags.
const (
	DefaultHighThreshold = 0.85
	DefaultLowThreshold  = 0.50
)

// Classifier maps a raw detector confidence score to a tier. Scores
// strictly above High are HIGH, scores from Low up to and including High
// are MEDIUM, anything below Low is LOW.
type Classifier struct {
	high float64
	low  float64
}

// NewClassifier builds a classifier with the given tier bounds. Passing
// zero for either bound selects the default.
func NewClassifier(high, low float64) (*Classifier, error) {
	if high == 0 {
		high = DefaultHighThreshold
	}
	if low == 0 {
		low = DefaultLowThreshold
	}
	if low <= 0 || high >= 1 || low > high {
		return nil, fmt.Errorf("invalid classifier bounds: low=%v high=%v (need 0 < low <= high < 1)", low, high)
	}
	return &Classifier{high: high, low: low}, nil
}

// Classify buckets a confidence score. Out-of-range input is clamped to
// [0,1] rather than rejected.
func (c *Classifier) Classify(score float64) Tier {
	score = clamp01(score)
	switch {
	case score > c.high:
		return TierHigh
	case score >= c.low:
		return TierMedium
	default:
		return TierLow
	}
}

// AutoConfirmEligible reports whether candidates in this tier may be
// auto-confirmed by the caller without surfacing alternatives.
func AutoConfirmEligible(tier Tier) bool {
	return tier == TierHigh
}

// NeedsAlternatives reports whether candidates in this tier must have the
// ranked alternative list attached before being shown to the user.
func NeedsAlternatives(tier Tier) bool {
	return tier != TierHigh
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
