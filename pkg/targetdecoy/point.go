// Package targetdecoy implements the target/decoy competition statistics used to
// validate identification results: score distributions, posterior error
// probabilities, FDR/FNR curves and threshold resolution.
package targetdecoy

import (
	"math"
	"sync/atomic"
)

// Point holds the hit counts observed at a single score together with the
// posterior error probability estimated for that score.
//
// Counters are safe for concurrent use. The probability is written by
// Map.EstimateProbabilities and must not be read before it ran.
type Point struct {
	score   float64
	nTarget atomic.Int64
	nDecoy  atomic.Int64
	p       atomic.Uint64 // math.Float64bits of the PEP
}

func newPoint(score float64) *Point {
	return &Point{score: score}
}

// Score returns the score this point is keyed by.
func (pt *Point) Score() float64 {
	return pt.score
}

// NTarget returns the number of target hits at this score.
func (pt *Point) NTarget() int {
	return int(pt.nTarget.Load())
}

// NDecoy returns the number of decoy hits at this score.
func (pt *Point) NDecoy() int {
	return int(pt.nDecoy.Load())
}

// P returns the estimated posterior error probability.
func (pt *Point) P() float64 {
	return math.Float64frombits(pt.p.Load())
}

func (pt *Point) setP(p float64) {
	pt.p.Store(math.Float64bits(clamp01(p)))
}

// IncreaseTarget records one more target hit.
func (pt *Point) IncreaseTarget() {
	pt.nTarget.Add(1)
}

// IncreaseDecoy records one more decoy hit.
func (pt *Point) IncreaseDecoy() {
	pt.nDecoy.Add(1)
}

// DecreaseTarget removes one target hit. Calling it on a point without target
// hits is a caller bug.
func (pt *Point) DecreaseTarget() {
	pt.nTarget.Add(-1)
}

// DecreaseDecoy removes one decoy hit. Calling it on a point without decoy
// hits is a caller bug.
func (pt *Point) DecreaseDecoy() {
	pt.nDecoy.Add(-1)
}

func (pt *Point) addTarget(n int) {
	pt.nTarget.Add(int64(n))
}

func (pt *Point) addDecoy(n int) {
	pt.nDecoy.Add(int64(n))
}

func (pt *Point) empty() bool {
	return pt.nTarget.Load() == 0 && pt.nDecoy.Load() == 0
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
