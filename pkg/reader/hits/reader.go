// Package hits provides a streaming reader for scored target/decoy hit lists
package hits

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DefaultCategory is assigned to hits whose line carries no category column.
const DefaultCategory = "all"

// Hit is one scored match submitted for validation.
type Hit struct {
	Score    float64
	IsDecoy  bool
	Category string
}

// Reader provides streaming access to hit files.
//
// Each line holds a score, a decoy flag and an optional category, separated
// by tabs or spaces. Blank lines and lines starting with '#' are skipped, and
// a header line is tolerated as the first record.
type Reader struct {
	scanner *bufio.Scanner
	lineNum int
	records int // non-blank, non-comment lines seen
	current Hit
	err     error
}

// NewReader creates a new hit reader
func NewReader(r io.Reader) *Reader {
	return &Reader{
		scanner: bufio.NewScanner(r),
	}
}

// Next advances to the next hit. Returns false when no more hits or error.
func (r *Reader) Next() bool {
	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		r.records++
		hit, err := parseLine(line)
		if err != nil {
			if r.records == 1 && isHeader(line) {
				continue
			}
			r.err = fmt.Errorf("line %d: %w", r.lineNum, err)
			return false
		}
		r.current = hit
		return true
	}

	if err := r.scanner.Err(); err != nil {
		r.err = err
	}
	return false
}

// Hit returns the current hit
func (r *Reader) Hit() Hit {
	return r.current
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

// ReadAll reads every remaining hit.
func ReadAll(rd io.Reader) ([]Hit, error) {
	r := NewReader(rd)
	var out []Hit
	for r.Next() {
		out = append(out, r.Hit())
	}
	return out, r.Err()
}

func isHeader(line string) bool {
	fields := strings.Fields(line)
	_, err := strconv.ParseFloat(fields[0], 64)
	return err != nil
}

// parseLine parses "score decoy [category]"
func parseLine(line string) (Hit, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Hit{}, fmt.Errorf("invalid hit format, expected at least 2 fields")
	}

	score, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Hit{}, fmt.Errorf("invalid score value: %w", err)
	}

	isDecoy, err := ParseDecoy(fields[1])
	if err != nil {
		return Hit{}, err
	}

	hit := Hit{
		Score:    score,
		IsDecoy:  isDecoy,
		Category: DefaultCategory,
	}
	if len(fields) >= 3 {
		hit.Category = fields[2]
	}

	return hit, nil
}

// ParseDecoy parses a decoy flag: 1/0, true/false, decoy/target or D/T.
func ParseDecoy(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "decoy", "d":
		return true, nil
	case "0", "false", "target", "t":
		return false, nil
	default:
		return false, fmt.Errorf("invalid decoy flag '%s'", s)
	}
}
