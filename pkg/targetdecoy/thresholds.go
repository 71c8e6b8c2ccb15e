package targetdecoy

import (
	"fmt"
	"strings"
)

// Estimator selects how false positives are counted.
type Estimator int

const (
	// Classical counts decoy hits as false positives.
	Classical Estimator = iota
	// Probabilistic sums the PEPs of target hits.
	Probabilistic
)

func (e Estimator) String() string {
	switch e {
	case Classical:
		return "classical"
	case Probabilistic:
		return "probabilistic"
	default:
		return fmt.Sprintf("Estimator(%d)", int(e))
	}
}

// ParseEstimator parses "classical" or "probabilistic".
func ParseEstimator(s string) (Estimator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "classical", "":
		return Classical, nil
	case "probabilistic", "proba":
		return Probabilistic, nil
	default:
		return Classical, fmt.Errorf("invalid estimator '%s', must be classical or probabilistic", s)
	}
}

// Criterion is the quantity a user threshold is expressed in.
type Criterion int

const (
	// CriterionUnset falls back to CriterionFDR.
	CriterionUnset Criterion = iota
	CriterionConfidence
	CriterionFDR
	CriterionFNR
)

func (c Criterion) String() string {
	switch c {
	case CriterionConfidence:
		return "confidence"
	case CriterionFDR, CriterionUnset:
		return "fdr"
	case CriterionFNR:
		return "fnr"
	default:
		return fmt.Sprintf("Criterion(%d)", int(c))
	}
}

// ParseCriterion parses "confidence", "fdr" or "fnr".
func ParseCriterion(s string) (Criterion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "confidence":
		return CriterionConfidence, nil
	case "fdr", "":
		return CriterionFDR, nil
	case "fnr":
		return CriterionFNR, nil
	default:
		return CriterionUnset, fmt.Errorf("invalid criterion '%s', must be confidence, fdr or fnr", s)
	}
}

// defaultUserInput is the threshold used when none was given, in percent.
const defaultUserInput = 1.0

// Thresholds is a validation request and, once resolved by a Series, its
// outcome. All rates are percentages.
type Thresholds struct {
	Estimator Estimator

	inputType Criterion
	userInput float64
	inputSet  bool

	ScoreLimit      float64
	ConfidenceLimit float64
	FDRLimit        float64
	FNRLimit        float64
	N               int
	NFP             float64 // decoys (classical) or summed PEPs (probabilistic)
	NTPTotal        float64
	NoneValidated   bool
}

// NewThresholds returns a request validating at value percent of criterion.
func NewThresholds(estimator Estimator, criterion Criterion, value float64) *Thresholds {
	t := &Thresholds{Estimator: estimator}
	t.SetInput(criterion, value)
	return t
}

// SetInput sets the requested criterion and threshold.
func (t *Thresholds) SetInput(criterion Criterion, value float64) {
	t.inputType = criterion
	t.userInput = value
	t.inputSet = true
}

// InputType returns the requested criterion, FDR when unset.
func (t *Thresholds) InputType() Criterion {
	if t.inputType == CriterionUnset {
		return CriterionFDR
	}
	return t.inputType
}

// UserInput returns the requested threshold, 1% when unset.
func (t *Thresholds) UserInput() float64 {
	if !t.inputSet {
		return defaultUserInput
	}
	return t.userInput
}

// LogScoreLimit returns ScoreLimit in the log domain.
func (t *Thresholds) LogScoreLimit() float64 {
	return LogScore(t.ScoreLimit)
}

// Accepts reports whether a hit at score passes the resolved limit. Lower
// scores are better, so ScoreLimit is an upper bound (score <= ScoreLimit),
// not the lower bound a higher-is-better score would call for. Pipelines
// with higher-is-better scores must negate or invert them before Put. A hit
// exactly at the limit passes.
func (t *Thresholds) Accepts(score float64) bool {
	return !t.NoneValidated && score <= t.ScoreLimit
}
