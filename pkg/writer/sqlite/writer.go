// Package sqlite provides SQLite report writing for validation results
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ChrisMcGann/DecoyVal/pkg/targetdecoy"
)

// Date format for RunTable (ISO 8601)
const runDateFormat = "2006-01-02T15:04:05Z07:00"

// Run describes the validation request a report was produced for.
type Run struct {
	Estimator targetdecoy.Estimator
	Criterion targetdecoy.Criterion
	Threshold float64
}

// Category bundles what is written for one validation category.
type Category struct {
	Name       string
	Pool       string // distribution the category was validated with
	Map        *targetdecoy.Map
	Thresholds *targetdecoy.Thresholds
	Suspicious bool
}

// Writer handles writing validation reports to SQLite database files
type Writer struct {
	db            *sql.DB
	outputPath    string
	runID         string
	thresholdStmt *sql.Stmt
	closed        bool
}

// NewWriter creates a new SQLite writer and records the run
func NewWriter(outputPath string, run Run) (*Writer, error) {
	db, err := sql.Open("sqlite3", outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	w := &Writer{
		db:         db,
		outputPath: outputPath,
		runID:      uuid.NewString(),
	}

	if err := w.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	if err := w.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	_, err = w.db.Exec(`
		INSERT INTO RunTable (RunId, CreationDate, Estimator, Criterion, Threshold)
		VALUES (?, ?, ?, ?, ?)
	`, w.runID, time.Now().UTC().Format(runDateFormat), run.Estimator.String(), run.Criterion.String(), run.Threshold)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}

	return w, nil
}

// RunID returns the identifier of the run rows written by w.
func (w *Writer) RunID() string {
	return w.runID
}

// createTables creates the required database schema
func (w *Writer) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS RunTable (
		RunId TEXT PRIMARY KEY,
		CreationDate TEXT,
		Estimator TEXT,
		Criterion TEXT,
		Threshold DOUBLE
	);

	CREATE TABLE IF NOT EXISTS ThresholdTable (
		RunId TEXT REFERENCES RunTable(RunId),
		Category TEXT,
		Pool TEXT,
		ScoreLimit DOUBLE,
		LogScoreLimit DOUBLE,
		ConfidenceLimit DOUBLE,
		FdrLimit DOUBLE,
		FnrLimit DOUBLE,
		N INTEGER,
		NFP DOUBLE,
		NTPTotal DOUBLE,
		NoneValidated BOOL,
		Nmax INTEGER,
		Resolution DOUBLE,
		MinFdr DOUBLE,
		Suspicious BOOL
	);

	CREATE TABLE IF NOT EXISTS SeriesTable (
		RunId TEXT REFERENCES RunTable(RunId),
		Category TEXT,
		Idx INTEGER,
		Score DOUBLE,
		LogScore DOUBLE,
		Pep DOUBLE,
		Confidence DOUBLE,
		N INTEGER,
		ClassicalFDR DOUBLE,
		ProbaFDR DOUBLE,
		ProbaFNR DOUBLE,
		Decoy BOOL
	);

	CREATE TABLE IF NOT EXISTS HistogramTable (
		RunId TEXT REFERENCES RunTable(RunId),
		Category TEXT,
		LogLower DOUBLE,
		LogUpper DOUBLE,
		NTarget INTEGER,
		NDecoy INTEGER
	);
	`

	_, err := w.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// prepareStatements prepares SQL statements for repeated insertion
func (w *Writer) prepareStatements() error {
	var err error

	w.thresholdStmt, err = w.db.Prepare(`
		INSERT INTO ThresholdTable (
			RunId, Category, Pool, ScoreLimit, LogScoreLimit, ConfidenceLimit,
			FdrLimit, FnrLimit, N, NFP, NTPTotal, NoneValidated,
			Nmax, Resolution, MinFdr, Suspicious
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare threshold statement: %w", err)
	}

	return nil
}

// WriteThresholds writes the resolved thresholds of one category
func (w *Writer) WriteThresholds(c Category) error {
	t := c.Thresholds
	_, err := w.thresholdStmt.Exec(
		w.runID,
		c.Name,
		c.Pool,
		t.ScoreLimit,
		t.LogScoreLimit(),
		t.ConfidenceLimit,
		t.FDRLimit,
		t.FNRLimit,
		t.N,
		t.NFP,
		t.NTPTotal,
		t.NoneValidated,
		c.Map.NMax(),
		c.Map.Resolution(),
		c.Map.MinFDR(),
		c.Suspicious,
	)
	if err != nil {
		return fmt.Errorf("failed to insert thresholds for %s: %w", c.Name, err)
	}
	return nil
}

// WriteSeries writes the validation curves and histogram of one distribution
// in a single transaction
func (w *Writer) WriteSeries(name string, s *targetdecoy.Series) error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	seriesStmt, err := tx.Prepare(`
		INSERT INTO SeriesTable (
			RunId, Category, Idx, Score, LogScore, Pep, Confidence,
			N, ClassicalFDR, ProbaFDR, ProbaFNR, Decoy
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare series statement: %w", err)
	}
	defer seriesStmt.Close()

	scores, scoresLog := s.Scores(), s.ScoresLog()
	pep, confidence := s.PEP(), s.Confidence()
	n, decoy := s.N(), s.Decoy()
	classicalFDR, probaFDR, probaFNR := s.ClassicalFDR(), s.ProbaFDR(), s.ProbaFNR()

	for i := range scores {
		_, err := seriesStmt.Exec(
			w.runID, name, i,
			scores[i], scoresLog[i], pep[i], confidence[i],
			n[i], classicalFDR[i], probaFDR[i], probaFNR[i], decoy[i],
		)
		if err != nil {
			return fmt.Errorf("failed to insert series row %d for %s: %w", i, name, err)
		}
	}

	for _, bin := range s.Histogram() {
		_, err := tx.Exec(`
			INSERT INTO HistogramTable (RunId, Category, LogLower, LogUpper, NTarget, NDecoy)
			VALUES (?, ?, ?, ?, ?, ?)
		`, w.runID, name, bin.LogLower, bin.LogUpper, bin.NTarget, bin.NDecoy)
		if err != nil {
			return fmt.Errorf("failed to insert histogram for %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit series for %s: %w", name, err)
	}
	return nil
}

// Finalize closes prepared statements and the database
func (w *Writer) Finalize() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if w.thresholdStmt != nil {
		w.thresholdStmt.Close()
	}

	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// Close closes the database connection (alias for Finalize)
func (w *Writer) Close() error {
	return w.Finalize()
}
