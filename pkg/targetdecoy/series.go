package targetdecoy

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// histogramBinWidth is the width of a histogram bin in log score units.
const histogramBinWidth = 5.0

// HistogramBin counts the hits falling into [LogLower, LogUpper).
type HistogramBin struct {
	LogLower float64
	LogUpper float64
	NTarget  int
	NDecoy   int
}

// Series is an immutable snapshot of an estimated Map with the cumulative
// validation curves, one entry per distinct score in ascending score order.
// It is safe for concurrent use.
type Series struct {
	scores        []float64
	scoresLog     []float64
	pep           []float64
	confidence    []float64
	confidenceLog []float64 // confidence in reversed index order
	n             []int
	classicalFP   []float64
	probaFP       []float64
	classicalFDR  []float64
	probaFDR      []float64
	probaFNR      []float64
	probaBenefit  []float64
	decoy         []bool
	probaNTotal   float64
	histogram     []HistogramBin
}

// NewSeries builds the validation curves of m. m must hold hits and have gone
// through a complete EstimateProbabilities run.
func NewSeries(m *Map) (*Series, error) {
	pts, err := m.snapshot()
	if err != nil {
		return nil, err
	}

	size := len(pts)
	s := &Series{
		scores:        make([]float64, size),
		scoresLog:     make([]float64, size),
		pep:           make([]float64, size),
		confidence:    make([]float64, size),
		confidenceLog: make([]float64, size),
		n:             make([]int, size),
		classicalFDR:  make([]float64, size),
		probaFDR:      make([]float64, size),
		probaFNR:      make([]float64, size),
		probaBenefit:  make([]float64, size),
		decoy:         make([]bool, size),
	}

	targets := make([]float64, size)
	decoys := make([]float64, size)
	falsePositives := make([]float64, size)
	truePositives := make([]float64, size)
	for i, pt := range pts {
		p := pt.P()
		nTarget := float64(pt.NTarget())
		s.scores[i] = pt.score
		s.scoresLog[i] = LogScore(pt.score)
		targets[i] = nTarget
		decoys[i] = float64(pt.NDecoy())
		falsePositives[i] = nTarget * p
		truePositives[i] = nTarget * (1 - p)
	}

	cumTarget := floats.CumSum(make([]float64, size), targets)
	s.classicalFP = floats.CumSum(make([]float64, size), decoys)
	s.probaFP = floats.CumSum(make([]float64, size), falsePositives)
	cumTP := floats.CumSum(make([]float64, size), truePositives)
	s.probaNTotal = cumTP[size-1]

	for i, pt := range pts {
		p := pt.P()
		s.n[i] = int(cumTarget[i])
		s.pep[i] = 100 * p
		s.confidence[i] = 100 * (1 - p)
		s.confidenceLog[size-1-i] = s.confidence[i]
		if s.n[i] > 0 {
			s.classicalFDR[i] = 100 * s.classicalFP[i] / cumTarget[i]
			s.probaFDR[i] = 100 * s.probaFP[i] / cumTarget[i]
		}
		if s.probaNTotal > 0 {
			s.probaFNR[i] = 100 * (s.probaNTotal - cumTP[i]) / s.probaNTotal
		}
		s.probaBenefit[i] = 100 - s.probaFNR[i]
		s.decoy[i] = pt.NTarget() == 0
	}

	s.histogram = buildHistogram(s.scoresLog, pts)
	return s, nil
}

func buildHistogram(scoresLog []float64, pts []*Point) []HistogramBin {
	lower, upper := floats.Min(scoresLog), floats.Max(scoresLog)
	lower, upper = math.Floor(lower), math.Ceil(upper)

	nBins := int(math.Ceil((upper - lower) / histogramBinWidth))
	if nBins < 1 {
		nBins = 1
	}
	bins := make([]HistogramBin, nBins)
	for i := range bins {
		bins[i].LogLower = lower + float64(i)*histogramBinWidth
		bins[i].LogUpper = bins[i].LogLower + histogramBinWidth
	}
	for i, pt := range pts {
		idx := int((scoresLog[i] - lower) / histogramBinWidth)
		if idx < 0 {
			idx = 0
		} else if idx >= nBins {
			idx = nBins - 1
		}
		bins[idx].NTarget += pt.NTarget()
		bins[idx].NDecoy += pt.NDecoy()
	}
	return bins
}

// FDRResults resolves t.UserInput() as a maximal FDR: the best-covering
// non-decoy bin whose FDR does not exceed it.
func (s *Series) FDRResults(t *Thresholds) {
	fdr := s.fdrFor(t.Estimator)
	limit := t.UserInput()
	for i := len(s.scores) - 1; i >= 0; i-- {
		if !s.decoy[i] && fdr[i] <= limit {
			s.report(t, i)
			return
		}
	}
	s.reportNone(t, 0)
}

// ConfidenceResults resolves t.UserInput() as a minimal confidence: the last
// non-decoy bin before confidence first drops below it.
func (s *Series) ConfidenceResults(t *Thresholds) {
	limit := t.UserInput()
	start := len(s.scores) - 1
	for i, c := range s.confidence {
		if c < limit {
			start = i - 1
			break
		}
	}
	for i := start; i >= 0; i-- {
		if !s.decoy[i] {
			s.report(t, i)
			return
		}
	}
	s.reportNone(t, s.confidence[0])
}

// FNRResults resolves t.UserInput() as a maximal FNR: from the first bin, going
// down the scores from the worst one, whose FNR exceeds it, the next non-decoy
// bin towards worse scores.
func (s *Series) FNRResults(t *Thresholds) {
	limit := t.UserInput()
	start := 0
	for i := len(s.scores) - 1; i >= 0; i-- {
		if s.probaFNR[i] > limit {
			start = i
			break
		}
	}
	for i := start; i < len(s.scores); i++ {
		if !s.decoy[i] {
			s.report(t, i)
			return
		}
	}
	s.reportNone(t, 0)
}

// Resolve dispatches t to the search matching its input type.
func (s *Series) Resolve(t *Thresholds) {
	switch t.InputType() {
	case CriterionConfidence:
		s.ConfidenceResults(t)
	case CriterionFNR:
		s.FNRResults(t)
	default:
		s.FDRResults(t)
	}
}

func (s *Series) fdrFor(e Estimator) []float64 {
	if e == Probabilistic {
		return s.probaFDR
	}
	return s.classicalFDR
}

func (s *Series) fpFor(e Estimator) []float64 {
	if e == Probabilistic {
		return s.probaFP
	}
	return s.classicalFP
}

func (s *Series) report(t *Thresholds, i int) {
	t.NoneValidated = false
	t.ScoreLimit = s.scores[i]
	t.ConfidenceLimit = s.confidence[i]
	t.FDRLimit = s.fdrFor(t.Estimator)[i]
	t.FNRLimit = s.probaFNR[i]
	t.N = s.n[i]
	t.NFP = s.fpFor(t.Estimator)[i]
	t.NTPTotal = s.probaNTotal
}

func (s *Series) reportNone(t *Thresholds, confidence float64) {
	t.NoneValidated = true
	t.ScoreLimit = s.scores[0]
	t.ConfidenceLimit = confidence
	t.FDRLimit = 0
	t.FNRLimit = s.probaFNR[0]
	t.N = 0
	t.NFP = 0
	t.NTPTotal = s.probaNTotal
}

// Len returns the number of distinct scores.
func (s *Series) Len() int { return len(s.scores) }

// ProbaNTotal returns the estimated number of true positives in the dataset.
func (s *Series) ProbaNTotal() float64 { return s.probaNTotal }

// Histogram returns the coarse log score histogram.
func (s *Series) Histogram() []HistogramBin { return append([]HistogramBin(nil), s.histogram...) }

func (s *Series) Scores() []float64        { return cloneFloats(s.scores) }
func (s *Series) ScoresLog() []float64     { return cloneFloats(s.scoresLog) }
func (s *Series) PEP() []float64           { return cloneFloats(s.pep) }
func (s *Series) Confidence() []float64    { return cloneFloats(s.confidence) }
func (s *Series) ConfidenceLog() []float64 { return cloneFloats(s.confidenceLog) }
func (s *Series) ClassicalFP() []float64   { return cloneFloats(s.classicalFP) }
func (s *Series) ProbaFP() []float64       { return cloneFloats(s.probaFP) }
func (s *Series) ClassicalFDR() []float64  { return cloneFloats(s.classicalFDR) }
func (s *Series) ProbaFDR() []float64      { return cloneFloats(s.probaFDR) }
func (s *Series) ProbaFNR() []float64      { return cloneFloats(s.probaFNR) }
func (s *Series) ProbaBenefit() []float64  { return cloneFloats(s.probaBenefit) }
func (s *Series) N() []int                 { return append([]int(nil), s.n...) }
func (s *Series) Decoy() []bool            { return append([]bool(nil), s.decoy...) }

func cloneFloats(v []float64) []float64 {
	return append([]float64(nil), v...)
}
