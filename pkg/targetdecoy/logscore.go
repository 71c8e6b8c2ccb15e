package targetdecoy

import "math"

// maxLogScore is the log score assigned to non-positive scores; +Inf gets its
// opposite.
var maxLogScore = -10 * math.Log10(math.SmallestNonzeroFloat64)

// LogScore maps a score to the log domain used for display and histograms:
// -10·log10(score). Smaller scores give larger log scores, so the log axis
// runs in the opposite direction to the raw score axis.
func LogScore(score float64) float64 {
	if score <= 0 {
		return maxLogScore
	}
	if math.IsInf(score, 1) {
		return -maxLogScore
	}
	return -10 * math.Log10(score)
}
