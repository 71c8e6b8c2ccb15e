package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/DecoyVal/pkg/targetdecoy"
)

func estimatedMap(t *testing.T) *targetdecoy.Map {
	t.Helper()
	m := targetdecoy.NewMap()
	for _, score := range []float64{0.01, 0.01, 0.02, 0.04} {
		m.Put(score, false)
	}
	m.Put(0.03, true)
	m.Put(0.05, true)
	require.NoError(t, m.EstimateProbabilities(context.Background()))
	return m
}

func TestWriterReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.db")

	m := estimatedMap(t)
	s, err := targetdecoy.NewSeries(m)
	require.NoError(t, err)
	th := targetdecoy.NewThresholds(targetdecoy.Classical, targetdecoy.CriterionFDR, 50)
	s.Resolve(th)

	w, err := NewWriter(path, Run{
		Estimator: targetdecoy.Classical,
		Criterion: targetdecoy.CriterionFDR,
		Threshold: 50,
	})
	require.NoError(t, err)
	runID := w.RunID()
	require.NotEmpty(t, runID)

	require.NoError(t, w.WriteSeries("all", s))
	require.NoError(t, w.WriteThresholds(Category{
		Name:       "all",
		Pool:       "all",
		Map:        m,
		Thresholds: th,
	}))
	require.NoError(t, w.Finalize())
	require.NoError(t, w.Close(), "second close is a no-op")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var criterion string
	require.NoError(t, db.QueryRow(`SELECT Criterion FROM RunTable WHERE RunId = ?`, runID).Scan(&criterion))
	assert.Equal(t, "fdr", criterion)

	var rows int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM SeriesTable WHERE RunId = ?`, runID).Scan(&rows))
	assert.Equal(t, s.Len(), rows)

	var histTargets int
	require.NoError(t, db.QueryRow(`SELECT SUM(NTarget) FROM HistogramTable WHERE RunId = ?`, runID).Scan(&histTargets))
	assert.Equal(t, 4, histTargets)

	var (
		scoreLimit float64
		n          int
		none       bool
	)
	require.NoError(t, db.QueryRow(
		`SELECT ScoreLimit, N, NoneValidated FROM ThresholdTable WHERE RunId = ? AND Category = ?`, runID, "all",
	).Scan(&scoreLimit, &n, &none))
	assert.Equal(t, th.ScoreLimit, scoreLimit)
	assert.Equal(t, th.N, n)
	assert.Equal(t, th.NoneValidated, none)
}
