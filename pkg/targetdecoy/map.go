package targetdecoy

import (
	"context"
	"math"
	"sort"
	"sync"
)

const (
	// saturationPEP is the PEP past which every worse score is assigned 1.
	saturationPEP = 0.98
	// minReliableNmax is the Nmax below which a distribution is flagged as suspicious.
	minReliableNmax = 100
	// nmaxScoreCeiling bounds the scores allowed to contribute Nmax candidates.
	nmaxScoreCeiling = 1.0
)

// summary holds the statistics derived from the current key set. It is either
// absent or fully consistent with the keys; it is never patched in place.
type summary struct {
	points      []*Point // sorted by ascending score
	nmax        int
	nTargetOnly int
	minFDR      float64
	nsEstimated bool
}

// Map is the score distribution of one validation category. Scores are keyed
// exactly; ascending score order is descending confidence, so the first point
// is the most confident one.
//
// Put and Remove may be called concurrently during accumulation. Everything
// else belongs to the single-threaded finalisation phase that follows it.
type Map struct {
	points sync.Map // float64 -> *Point

	mu         sync.Mutex
	stats      *summary
	windowSize int // 0 when unset
	estimated  bool
}

// NewMap creates an empty score distribution.
func NewMap() *Map {
	return &Map{}
}

// Put records a hit at score. NaN scores cannot be keyed and are ignored.
func (m *Map) Put(score float64, isDecoy bool) {
	if math.IsNaN(score) {
		return
	}
	pt := m.pointFor(score)
	if isDecoy {
		pt.IncreaseDecoy()
	} else {
		pt.IncreaseTarget()
	}
}

// pointFor returns the unique point at score, creating it when absent.
func (m *Map) pointFor(score float64) *Point {
	if v, ok := m.points.Load(score); ok {
		return v.(*Point)
	}
	actual, loaded := m.points.LoadOrStore(score, newPoint(score))
	if !loaded {
		m.invalidate()
	}
	return actual.(*Point)
}

// Remove takes one hit away from the point at score. Callers must run CleanUp
// once they are done removing.
func (m *Map) Remove(score float64, isDecoy bool) error {
	v, ok := m.points.Load(score)
	if !ok {
		return ErrUnknownScore
	}
	pt := v.(*Point)
	if isDecoy {
		pt.DecreaseDecoy()
	} else {
		pt.DecreaseTarget()
	}
	return nil
}

// CleanUp deletes every point left without hits.
func (m *Map) CleanUp() {
	removed := false
	m.points.Range(func(key, value any) bool {
		if value.(*Point).empty() {
			m.points.Delete(key)
			removed = true
		}
		return true
	})
	if removed {
		m.invalidate()
	}
}

func (m *Map) invalidate() {
	m.mu.Lock()
	m.stats = nil
	m.windowSize = 0
	m.estimated = false
	m.mu.Unlock()
}

// Size returns the number of distinct scores.
func (m *Map) Size() int {
	n := 0
	m.points.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Point returns the point at score, if any.
func (m *Map) Point(score float64) (*Point, bool) {
	v, ok := m.points.Load(score)
	if !ok {
		return nil, false
	}
	return v.(*Point), true
}

// Scores returns the distinct scores in ascending order.
func (m *Map) Scores() []float64 {
	m.mu.Lock()
	pts := m.sortedLocked()
	m.mu.Unlock()

	scores := make([]float64, len(pts))
	for i, pt := range pts {
		scores[i] = pt.score
	}
	return scores
}

// sortedLocked returns the cached sorted points, building them when needed.
func (m *Map) sortedLocked() []*Point {
	if m.stats == nil {
		var pts []*Point
		m.points.Range(func(_, value any) bool {
			pts = append(pts, value.(*Point))
			return true
		})
		sort.Slice(pts, func(i, j int) bool {
			return pts[i].score < pts[j].score
		})
		m.stats = &summary{points: pts, minFDR: 1}
	}
	return m.stats.points
}

// EstimateNs computes Nmax, the number of target hits before the first decoy
// and the minimal achievable FDR. The map must hold at least one point.
func (m *Map) EstimateNs() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.estimateNsLocked()
}

func (m *Map) estimateNsLocked() error {
	pts := m.sortedLocked()
	if len(pts) == 0 {
		return ErrNoHits
	}

	st := m.stats
	st.nmax = 0
	st.nTargetOnly = 0
	st.minFDR = 1

	onlyTarget := true
	targetCpt := 0
	cumTarget, cumDecoy := 0, 0

	for _, pt := range pts {
		nTarget, nDecoy := pt.NTarget(), pt.NDecoy()
		cumTarget += nTarget
		cumDecoy += nDecoy
		if cumTarget > 0 {
			if fdr := float64(cumDecoy) / float64(cumTarget); fdr < st.minFDR {
				st.minFDR = fdr
			}
		}

		switch {
		case onlyTarget && nDecoy == 0:
			st.nTargetOnly += nTarget
		case onlyTarget:
			// half of the transition bin is credited on each side of the decoy
			onlyTarget = false
			st.nTargetOnly += ceilHalf(nTarget)
			targetCpt = nTarget / 2
		case nDecoy > 0:
			targetCpt += ceilHalf(nTarget)
			if pt.score < nmaxScoreCeiling && (nDecoy == 1 || targetCpt < st.nTargetOnly) && targetCpt > st.nmax {
				st.nmax = targetCpt
			}
			targetCpt = nTarget / 2
		default:
			targetCpt += nTarget
		}
	}

	st.nsEstimated = true
	return nil
}

func ceilHalf(n int) int {
	return (n + 1) / 2
}

// ensureNsLocked runs EstimateNs when the cached statistics are stale.
func (m *Map) ensureNsLocked() {
	if m.stats == nil || !m.stats.nsEstimated {
		_ = m.estimateNsLocked()
	}
}

// NMax returns the largest run of target hits bracketed by decoys.
func (m *Map) NMax() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureNsLocked()
	return m.stats.nmax
}

// MinFDR returns the lowest cumulative decoy/target ratio of the distribution,
// as a fraction. It is 1 until a target hit is seen.
func (m *Map) MinFDR() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureNsLocked()
	return m.stats.minFDR
}

// Resolution returns the finest PEP step achievable in percent, 0 when Nmax is 0.
func (m *Map) Resolution() float64 {
	nmax := m.NMax()
	if nmax > 0 {
		return 100.0 / float64(nmax)
	}
	return 0.0
}

// NTargetOnly returns the number of target hits seen before the first decoy.
func (m *Map) NTargetOnly() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stats == nil {
		return 0
	}
	return m.stats.nTargetOnly
}

// WindowSize returns the smoothing window in target hits, Nmax unless set.
func (m *Map) WindowSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.windowSizeLocked()
}

func (m *Map) windowSizeLocked() int {
	if m.windowSize > 0 {
		return m.windowSize
	}
	m.ensureNsLocked()
	return m.stats.nmax
}

// SetWindowSize overrides the smoothing window. Any later change of the key
// set resets it to Nmax.
func (m *Map) SetWindowSize(size int) {
	m.mu.Lock()
	m.windowSize = size
	m.estimated = false
	m.mu.Unlock()
}

// SuspiciousInput reports whether the distribution is too sparse for a
// reliable estimation, or requestedFDR (a fraction) cannot be reached.
func (m *Map) SuspiciousInput(requestedFDR float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureNsLocked()
	return m.stats.nmax < minReliableNmax || m.stats.minFDR > requestedFDR
}

// EstimateProbabilities assigns a PEP to every point from the decoy/target
// ratio inside a sliding window of WindowSize target hits centred on it.
// Once a PEP reaches 0.98 every worse score gets 1.
//
// The context is polled once per score. On cancellation ctx.Err() is returned
// and the map stays unestimated; partial PEPs must not be used.
func (m *Map) EstimateProbabilities(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.estimated = false
	m.ensureNsLocked()
	pts := m.stats.points
	if len(pts) == 0 {
		return ErrNoHits
	}

	halfWidth := 0.5 * float64(m.windowSizeLocked())

	// [lower, upper) is the window. The current point's targets count half in
	// each of nTargetDown and nTargetUp.
	previous := pts[0]
	nTargetDown := -0.5 * float64(previous.NTarget())
	nTargetUp := 1.5 * float64(previous.NTarget())
	nDecoy := float64(previous.NDecoy())
	lower, upper := 0, 1
	saturated := false

	for cpt, current := range pts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if saturated {
			current.setP(1)
			continue
		}

		change := 0.5 * float64(previous.NTarget()+current.NTarget())
		nTargetDown += change
		nTargetUp -= change

		for lower < cpt {
			pt := pts[lower]
			remaining := nTargetDown - float64(pt.NTarget())
			if remaining < halfWidth {
				break
			}
			nTargetDown = remaining
			nDecoy -= float64(pt.NDecoy())
			lower++
		}

		for upper < len(pts) && (upper <= cpt || nTargetUp < halfWidth) {
			pt := pts[upper]
			nTargetUp += float64(pt.NTarget())
			nDecoy += float64(pt.NDecoy())
			upper++
		}

		var p float64
		if nTarget := nTargetDown + nTargetUp; nTarget > 0 {
			p = nDecoy / nTarget
		} else if nDecoy > 0 {
			p = 1
		}
		current.setP(p)
		if current.P() >= saturationPEP {
			saturated = true
		}
		previous = current
	}

	m.estimated = true
	return nil
}

// Estimated reports whether every point carries a PEP from a completed
// EstimateProbabilities run on the current key set.
func (m *Map) Estimated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.estimated
}

// Probability returns the PEP at score. Scores between two observed ones get
// the plain mean of both neighbours; scores outside the observed range get
// the PEP of the nearest end.
func (m *Map) Probability(score float64) (float64, error) {
	if pt, ok := m.Point(score); ok {
		return pt.P(), nil
	}

	m.mu.Lock()
	pts := m.sortedLocked()
	m.mu.Unlock()

	if len(pts) == 0 {
		return 0, ErrNoHits
	}
	last := len(pts) - 1
	if score > pts[last].score {
		return pts[last].P(), nil
	}
	idx := sort.Search(len(pts), func(i int) bool {
		return pts[i].score >= score
	})
	if idx == 0 {
		return pts[0].P(), nil
	}
	return (pts[idx-1].P() + pts[idx].P()) / 2, nil
}

// AddAll merges the hits of other into m, score by score in ascending order,
// decoys before targets. other must not be mutated concurrently.
func (m *Map) AddAll(other *Map) {
	for _, score := range other.Scores() {
		src, ok := other.Point(score)
		if !ok {
			continue
		}
		dst := m.pointFor(score)
		dst.addDecoy(src.NDecoy())
		dst.addTarget(src.NTarget())
	}
	m.invalidate()
}

// snapshot returns the sorted points of a fully estimated map.
func (m *Map) snapshot() ([]*Point, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pts := m.sortedLocked()
	if len(pts) == 0 {
		return nil, ErrNoHits
	}
	if !m.estimated {
		return nil, ErrNotEstimated
	}
	return pts, nil
}
