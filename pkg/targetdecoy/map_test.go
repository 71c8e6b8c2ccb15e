package targetdecoy

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hit struct {
	score   float64
	isDecoy bool
}

func mapFromHits(hits []hit) *Map {
	m := NewMap()
	for _, h := range hits {
		m.Put(h.score, h.isDecoy)
	}
	return m
}

// regressionHits is the four score fixture: 10 decoy, 20 target x2, 30 target
// and decoy, 40 target.
func regressionHits() []hit {
	return []hit{
		{10, true},
		{20, false},
		{20, false},
		{30, false},
		{30, true},
		{40, false},
	}
}

// smallScoreHits has every score below 1 so that Nmax candidates count.
//
//	score  0.01 0.02 0.03 0.04 0.05 0.06 0.5
//	target    3    2    1    2    0    1   0
//	decoy     0    0    1    0    1    1   2
func smallScoreHits() []hit {
	var hits []hit
	add := func(score float64, nTarget, nDecoy int) {
		for i := 0; i < nTarget; i++ {
			hits = append(hits, hit{score, false})
		}
		for i := 0; i < nDecoy; i++ {
			hits = append(hits, hit{score, true})
		}
	}
	add(0.01, 3, 0)
	add(0.02, 2, 0)
	add(0.03, 1, 1)
	add(0.04, 2, 0)
	add(0.05, 0, 1)
	add(0.06, 1, 1)
	add(0.5, 0, 2)
	return hits
}

func estimated(t *testing.T, hits []hit) *Map {
	t.Helper()
	m := mapFromHits(hits)
	require.NoError(t, m.EstimateNs())
	require.NoError(t, m.EstimateProbabilities(context.Background()))
	return m
}

func peps(m *Map) []float64 {
	var out []float64
	for _, score := range m.Scores() {
		pt, _ := m.Point(score)
		out = append(out, pt.P())
	}
	return out
}

func TestPutCountsHits(t *testing.T) {
	m := mapFromHits(regressionHits())

	require.Equal(t, 4, m.Size())
	assert.Equal(t, []float64{10, 20, 30, 40}, m.Scores())

	counts := map[float64][2]int{
		10: {0, 1},
		20: {2, 0},
		30: {1, 1},
		40: {1, 0},
	}
	for score, want := range counts {
		pt, ok := m.Point(score)
		require.True(t, ok, "score %v", score)
		assert.Equal(t, want[0], pt.NTarget(), "targets at %v", score)
		assert.Equal(t, want[1], pt.NDecoy(), "decoys at %v", score)
	}
}

func TestPutIgnoresNaN(t *testing.T) {
	m := NewMap()
	m.Put(math.NaN(), false)
	assert.Equal(t, 0, m.Size())
}

func TestConcurrentPut(t *testing.T) {
	const (
		workers   = 8
		perWorker = 2000
		nScores   = 50
	)

	m := NewMap()
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < perWorker; i++ {
				score := float64(rng.Intn(nScores)) / 100
				m.Put(score, i%3 == 0)
			}
		}(int64(w))
	}
	wg.Wait()

	targets, decoys := 0, 0
	for _, score := range m.Scores() {
		pt, ok := m.Point(score)
		require.True(t, ok)
		targets += pt.NTarget()
		decoys += pt.NDecoy()
	}

	wantDecoys := workers * ((perWorker + 2) / 3)
	assert.Equal(t, wantDecoys, decoys)
	assert.Equal(t, workers*perWorker-wantDecoys, targets)
	assert.LessOrEqual(t, m.Size(), nScores)
}

func TestRemoveAndCleanUp(t *testing.T) {
	m := mapFromHits(regressionHits())
	require.Equal(t, 0, m.NMax(), "scores >= 1 never yield nmax candidates")

	require.NoError(t, m.Remove(10, true))
	require.NoError(t, m.Remove(40, false))
	assert.Equal(t, 4, m.Size(), "points stay until CleanUp")

	m.CleanUp()
	assert.Equal(t, []float64{20, 30}, m.Scores())

	assert.ErrorIs(t, m.Remove(99, false), ErrUnknownScore)
}

func TestEstimateNsRegression(t *testing.T) {
	m := mapFromHits(regressionHits())
	require.NoError(t, m.EstimateNs())

	assert.Equal(t, 0, m.NTargetOnly())
	assert.Equal(t, 0, m.NMax())
	assert.InDelta(t, 0.5, m.MinFDR(), 1e-12)
	assert.Equal(t, 0.0, m.Resolution())
	assert.Equal(t, 0, m.WindowSize())
}

func TestEstimateNsSmallScores(t *testing.T) {
	m := mapFromHits(smallScoreHits())
	require.NoError(t, m.EstimateNs())

	assert.Equal(t, 6, m.NTargetOnly())
	assert.Equal(t, 2, m.NMax())
	assert.Equal(t, 0.0, m.MinFDR())
	assert.Equal(t, 50.0, m.Resolution())
	assert.Equal(t, 2, m.WindowSize())
}

func TestEstimateNsEmpty(t *testing.T) {
	m := NewMap()
	assert.ErrorIs(t, m.EstimateNs(), ErrNoHits)
	assert.ErrorIs(t, m.EstimateProbabilities(context.Background()), ErrNoHits)
	_, err := m.Probability(1)
	assert.ErrorIs(t, err, ErrNoHits)
}

func TestEstimateProbabilitiesRegression(t *testing.T) {
	m := estimated(t, regressionHits())

	// the best bin is decoy only, so the very first PEP saturates
	assert.Equal(t, []float64{1, 1, 1, 1}, peps(m))
	assert.True(t, m.Estimated())
}

func TestEstimateProbabilitiesSmallScores(t *testing.T) {
	m := estimated(t, smallScoreHits())

	want := []float64{0, 0, 0.2, 0, 2.0 / 3.0, 1, 1}
	got := peps(m)
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-9, "pep at index %d", i)
	}
}

func TestEstimateProbabilitiesWindowOverride(t *testing.T) {
	m := mapFromHits(smallScoreHits())
	m.SetWindowSize(100)
	require.NoError(t, m.EstimateProbabilities(context.Background()))

	// the window covers everything: 6 decoys over 9 targets
	for i, p := range peps(m) {
		assert.InDelta(t, 6.0/9.0, p, 1e-9, "pep at index %d", i)
	}
}

func TestEstimateProbabilitiesSaturation(t *testing.T) {
	var hits []hit
	for i := 0; i < 200; i++ {
		score := 0.001 * float64(i+1)
		switch {
		case i < 100:
			hits = append(hits, hit{score, false}, hit{score, false})
		case i%10 == 0:
			hits = append(hits, hit{score, false}, hit{score, true})
		default:
			hits = append(hits, hit{score, true})
		}
	}
	m := estimated(t, hits)

	ps := peps(m)
	first := -1
	for i, p := range ps {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
		if first < 0 && p >= saturationPEP {
			first = i
		}
	}
	require.GreaterOrEqual(t, first, 0, "decoy tail must saturate")
	for i := first; i < len(ps); i++ {
		assert.Equal(t, 1.0, ps[i], "pep at index %d", i)
	}
	assert.Equal(t, 0.0, ps[0])
}

func TestEstimateProbabilitiesCancelled(t *testing.T) {
	m := mapFromHits(smallScoreHits())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.EstimateProbabilities(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, m.Estimated())

	_, err = NewSeries(m)
	assert.ErrorIs(t, err, ErrNotEstimated)
}

func TestProbability(t *testing.T) {
	m := estimated(t, smallScoreHits())

	tests := []struct {
		name  string
		score float64
		want  float64
	}{
		{"exact match", 0.03, 0.2},
		{"between two scores", 0.035, 0.1},
		{"between saturated scores", 0.1, 1},
		{"above max", 2, 1},
		{"below min", 0.001, 0},
		{"unweighted mean", 0.049, (0 + 2.0/3.0) / 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Probability(tt.score)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestAddAllIntoEmptyMap(t *testing.T) {
	src := mapFromHits(smallScoreHits())
	dst := NewMap()
	dst.AddAll(src)

	require.Equal(t, src.Scores(), dst.Scores())
	for _, score := range src.Scores() {
		want, _ := src.Point(score)
		got, ok := dst.Point(score)
		require.True(t, ok)
		assert.Equal(t, want.NTarget(), got.NTarget(), "targets at %v", score)
		assert.Equal(t, want.NDecoy(), got.NDecoy(), "decoys at %v", score)
	}
}

func TestAddAllMatchesUnion(t *testing.T) {
	a := mapFromHits(regressionHits())
	b := mapFromHits(smallScoreHits())
	a.AddAll(b)

	union := mapFromHits(append(regressionHits(), smallScoreHits()...))
	require.Equal(t, union.Scores(), a.Scores())
	assert.Equal(t, union.NMax(), a.NMax())
	assert.Equal(t, union.MinFDR(), a.MinFDR())
	assert.Equal(t, union.NTargetOnly(), a.NTargetOnly())
}

func TestKeyChangeInvalidatesCaches(t *testing.T) {
	m := estimated(t, smallScoreHits())
	m.SetWindowSize(10)
	require.NoError(t, m.EstimateProbabilities(context.Background()))
	require.True(t, m.Estimated())

	m.Put(0.7, true)
	assert.False(t, m.Estimated())
	assert.Equal(t, m.NMax(), m.WindowSize(), "window size falls back to nmax")

	// new counts at an existing score leave the key set alone
	require.NoError(t, m.EstimateProbabilities(context.Background()))
	m.Put(0.7, true)
	assert.True(t, m.Estimated())
}

func TestSuspiciousInput(t *testing.T) {
	small := mapFromHits(smallScoreHits())
	assert.True(t, small.SuspiciousInput(0.01), "nmax below 100")

	var hits []hit
	for i := 0; i < 3; i++ {
		base := 0.01 * float64(i)
		for j := 0; j < 150; j++ {
			hits = append(hits, hit{base + 0.00001*float64(j), false})
		}
		hits = append(hits, hit{base + 0.005, true})
	}
	large := mapFromHits(hits)
	require.Equal(t, 150, large.NMax())
	assert.Equal(t, 0.0, large.MinFDR())
	assert.False(t, large.SuspiciousInput(0.01))

	unreachable := mapFromHits(regressionHits())
	assert.True(t, unreachable.SuspiciousInput(0.4))
}
